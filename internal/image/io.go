// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package image

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// I/O errors.
var (
	// ErrUnsupportedFormat is returned when the image format is not supported.
	ErrUnsupportedFormat = errors.New("image: unsupported format")

	// ErrEmptyData is returned when image data is empty.
	ErrEmptyData = errors.New("image: empty data")
)

// LoadImage loads an image file. PNG, JPEG, BMP and TIFF are recognized
// by content.
func LoadImage(path string) (*Buf, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("image: open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Decode(f)
}

// LoadImageFromBytes decodes an in-memory image.
func LoadImageFromBytes(data []byte) (*Buf, error) {
	if len(data) == 0 {
		return nil, ErrEmptyData
	}
	return Decode(bytes.NewReader(data))
}

// Decode decodes an image from r, auto-detecting the format.
func Decode(r io.Reader) (*Buf, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("image: decode: %w", err)
	}
	return FromStdImage(img)
}

// FromStdImage converts a standard library image to a float surface with
// components in [0, 1].
func FromStdImage(img image.Image) (*Buf, error) {
	bounds := img.Bounds()
	buf, err := NewBuf(bounds.Dx(), bounds.Dy())
	if err != nil {
		return nil, err
	}

	// Fast path for NRGBA images
	if nrgba, ok := img.(*image.NRGBA); ok {
		for y := range buf.height {
			src := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+buf.width*4]
			dst := buf.Row(y)
			for i, v := range src {
				dst[i] = float32(v) / 255
			}
		}
		return buf, nil
	}

	for y := range buf.height {
		for x := range buf.width {
			c := color.NRGBA64Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA64)
			_ = buf.Set(x, y, Texel{
				float32(c.R) / 0xffff,
				float32(c.G) / 0xffff,
				float32(c.B) / 0xffff,
				float32(c.A) / 0xffff,
			})
		}
	}
	return buf, nil
}

func toByte(v float32) uint8 {
	v = min(max(v, 0), 1)
	return uint8(v*255 + 0.5)
}

// ToStdImage converts the surface to an 8-bit non-premultiplied image.
// Components are clamped to [0, 1].
func (b *Buf) ToStdImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, b.width, b.height))
	for y := range b.height {
		row := b.Row(y)
		dst := img.Pix[y*img.Stride : y*img.Stride+b.width*4]
		for i, v := range row {
			dst[i] = toByte(v)
		}
	}
	return img
}

// Encode writes the surface in the named format: "png", "jpeg", "bmp" or "tiff".
func (b *Buf) Encode(w io.Writer, format string) error {
	img := b.ToStdImage()
	var err error
	switch strings.ToLower(format) {
	case "png":
		err = png.Encode(w, img)
	case "jpg", "jpeg":
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: 95})
	case "bmp":
		err = bmp.Encode(w, img)
	case "tif", "tiff":
		err = tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return fmt.Errorf("image: encode %s: %w", format, err)
	}
	return nil
}

// Save writes the surface to path, choosing the format from the extension.
func (b *Buf) Save(path string) error {
	format := strings.TrimPrefix(filepath.Ext(path), ".")
	if format == "" {
		return fmt.Errorf("%w: %q has no extension", ErrUnsupportedFormat, path)
	}

	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("image: create file: %w", err)
	}
	if err := b.Encode(f, format); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
