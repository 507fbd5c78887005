// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package image

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/x448/float16"
)

// ToHalf returns the texels as IEEE 754 half-precision values, the layout of
// an RGBA16Float texture.
func (b *Buf) ToHalf() []uint16 {
	out := make([]uint16, len(b.pix))
	for i, v := range b.pix {
		out[i] = float16.Fromfloat32(v).Bits()
	}
	return out
}

// FromHalf builds a surface from RGBA16Float texels.
func FromHalf(bits []uint16, width, height int) (*Buf, error) {
	buf, err := NewBuf(width, height)
	if err != nil {
		return nil, err
	}
	if len(bits) < len(buf.pix) {
		return nil, fmt.Errorf("%w: %d halfs for %dx%d", ErrDataTooSmall, len(bits), width, height)
	}
	for i := range buf.pix {
		buf.pix[i] = float16.Frombits(bits[i]).Float32()
	}
	return buf, nil
}

// WriteHalf writes the surface as little-endian RGBA16Float texels.
func (b *Buf) WriteHalf(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, b.ToHalf()); err != nil {
		return fmt.Errorf("image: write half: %w", err)
	}
	return nil
}
