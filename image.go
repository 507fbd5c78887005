// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package spd

import (
	stdimage "image"

	"github.com/gogpu/spd/internal/image"
	"github.com/gogpu/spd/internal/schedule"
)

// Image is an RGBA float32 surface, row-major and non-premultiplied.
type Image = image.Buf

// Texel is one RGBA value.
type Texel = image.Texel

// MipChain holds the output levels. Level 0 is the first downsample.
type MipChain = image.MipChain

// NewImage creates a zeroed width×height image.
func NewImage(width, height int) (*Image, error) {
	return image.NewBuf(width, height)
}

// ImageFromPix wraps tightly packed RGBA float32 data without copying.
func ImageFromPix(pix []float32, width, height int) (*Image, error) {
	return image.FromPix(pix, width, height)
}

// FromStdImage converts a standard library image to an Image with
// components in [0, 1].
func FromStdImage(img stdimage.Image) (*Image, error) {
	return image.FromStdImage(img)
}

// LoadImage loads a PNG, JPEG, BMP or TIFF file.
func LoadImage(path string) (*Image, error) {
	return image.LoadImage(path)
}

// LevelSize returns the dimensions of output level i of a width×height
// source.
func LevelSize(width, height, level int) (int, int) {
	return image.LevelSize(width, height, level)
}

// MaxLevels returns the deepest chain a width×height source supports.
func MaxLevels(width, height int) int {
	return schedule.MaxLevels(uint32(max(width, 0)), uint32(max(height, 0)))
}

// Reference computes the chain on the calling goroutine, one level at a
// time. Every engine matches it bit for bit.
func Reference(src *Image, mipCount int) *MipChain {
	return image.GenerateMipChain(src, mipCount)
}
