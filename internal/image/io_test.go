// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package image

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"testing"
)

func TestFromStdImage(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	src.SetNRGBA(1, 0, color.NRGBA{R: 255, G: 0, B: 51, A: 255})

	buf, err := FromStdImage(src)
	if err != nil {
		t.Fatalf("FromStdImage() error = %v", err)
	}
	if got, want := buf.At(1, 0), (Texel{1, 0, 0.2, 1}); got != want {
		t.Errorf("At(1,0) = %v, want %v", got, want)
	}

	gray := image.NewGray(image.Rect(10, 10, 12, 11))
	gray.SetGray(11, 10, color.Gray{Y: 255})
	buf, err = FromStdImage(gray)
	if err != nil {
		t.Fatalf("FromStdImage(gray) error = %v", err)
	}
	if buf.Width() != 2 || buf.Height() != 1 {
		t.Fatalf("size = %dx%d", buf.Width(), buf.Height())
	}
	if got := buf.At(1, 0); got != (Texel{1, 1, 1, 1}) {
		t.Errorf("gray At(1,0) = %v", got)
	}

	if _, err := FromStdImage(image.NewNRGBA(image.Rect(0, 0, 0, 0))); !errors.Is(err, ErrInvalidDimensions) {
		t.Errorf("empty image error = %v", err)
	}
}

func TestToStdImage_Clamps(t *testing.T) {
	buf, _ := NewBuf(1, 1)
	_ = buf.Set(0, 0, Texel{-0.5, 0.5, 2, 1})
	img := buf.ToStdImage()
	if got := img.NRGBAAt(0, 0); got != (color.NRGBA{R: 0, G: 128, B: 255, A: 255}) {
		t.Errorf("ToStdImage = %v", got)
	}
}

func TestEncodeDecode(t *testing.T) {
	buf, _ := NewBuf(3, 2)
	buf.Fill(Texel{1, 0, 1, 1})
	_ = buf.Set(2, 1, Texel{0, 1, 0, 1})

	for _, format := range []string{"png", "bmp", "tiff"} {
		t.Run(format, func(t *testing.T) {
			var w bytes.Buffer
			if err := buf.Encode(&w, format); err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			back, err := LoadImageFromBytes(w.Bytes())
			if err != nil {
				t.Fatalf("decode error = %v", err)
			}
			if !back.Equal(buf) {
				t.Error("lossless round trip changed texels")
			}
		})
	}

	if err := buf.Encode(&bytes.Buffer{}, "webp"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Encode(webp) error = %v", err)
	}
	if _, err := LoadImageFromBytes(nil); !errors.Is(err, ErrEmptyData) {
		t.Errorf("LoadImageFromBytes(nil) error = %v", err)
	}
}

func TestSaveLoad(t *testing.T) {
	buf, _ := NewBuf(4, 4)
	buf.Fill(Texel{0, 0, 1, 1})
	path := filepath.Join(t.TempDir(), "level.png")
	if err := buf.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	back, err := LoadImage(path)
	if err != nil {
		t.Fatalf("LoadImage() error = %v", err)
	}
	if !back.Equal(buf) {
		t.Error("Save/LoadImage changed texels")
	}
	if err := buf.Save(filepath.Join(t.TempDir(), "noext")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Save(noext) error = %v", err)
	}
}
