// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package image

import (
	"testing"
)

func gradient(t *testing.T, w, h int) *Buf {
	t.Helper()
	src, err := NewBuf(w, h)
	if err != nil {
		t.Fatalf("NewBuf() error = %v", err)
	}
	for y := range h {
		for x := range w {
			_ = src.Set(x, y, Texel{
				float32(x) / float32(w),
				float32(y) / float32(h),
				float32((x*7+y*13)%17) / 17,
				1,
			})
		}
	}
	return src
}

func TestGenerateMipChain(t *testing.T) {
	tests := []struct {
		name   string
		width  int
		height int
		mips   int
	}{
		{"64x64 square", 64, 64, 6},
		{"128x64 rectangle", 128, 64, 7},
		{"256x256 full", 256, 256, 8},
		{"100x50 odd dimensions", 100, 50, 6},
		{"5x3 tiny", 5, 3, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := gradient(t, tt.width, tt.height)
			chain := GenerateMipChain(src, tt.mips)
			if chain == nil {
				t.Fatal("GenerateMipChain() returned nil")
			}
			defer chain.Release()

			if got := chain.NumLevels(); got != tt.mips {
				t.Errorf("NumLevels() = %d, want %d", got, tt.mips)
			}
			for i := range chain.NumLevels() {
				w, h := LevelSize(tt.width, tt.height, i)
				l := chain.Level(i)
				if l.Width() != w || l.Height() != h {
					t.Errorf("level %d = %dx%d, want %dx%d", i, l.Width(), l.Height(), w, h)
				}
			}
		})
	}
}

func TestGenerateMipChain_Nil(t *testing.T) {
	if GenerateMipChain(nil, 3) != nil {
		t.Error("GenerateMipChain(nil) should return nil")
	}
	src, _ := NewBuf(4, 4)
	if GenerateMipChain(src, 0) != nil {
		t.Error("GenerateMipChain(src, 0) should return nil")
	}
}

func TestGenerateMipChain_Average(t *testing.T) {
	src, _ := NewBuf(2, 2)
	_ = src.Set(0, 0, Texel{1, 0, 0, 1})
	_ = src.Set(1, 0, Texel{0, 1, 0, 1})
	_ = src.Set(0, 1, Texel{0, 0, 1, 1})
	_ = src.Set(1, 1, Texel{1, 1, 1, 1})

	chain := GenerateMipChain(src, 1)
	got := chain.Level(0).At(0, 0)
	want := Texel{0.5, 0.5, 0.5, 1}
	if got != want {
		t.Errorf("level 0 = %v, want %v", got, want)
	}
}

func TestGenerateMipChain_ClampsThinAxis(t *testing.T) {
	// A 4x1 source: level 0 is 2x1, the y+1 taps clamp to row 0.
	src, _ := NewBuf(4, 1)
	for x := range 4 {
		_ = src.Set(x, 0, Texel{float32(x), 0, 0, 0})
	}
	chain := GenerateMipChain(src, 2)

	l0 := chain.Level(0)
	if got := l0.At(0, 0)[0]; got != 0.5 {
		t.Errorf("level 0 (0,0) = %v, want 0.5", got)
	}
	if got := l0.At(1, 0)[0]; got != 2.5 {
		t.Errorf("level 0 (1,0) = %v, want 2.5", got)
	}
	if got := chain.Level(1).At(0, 0)[0]; got != 1.5 {
		t.Errorf("level 1 (0,0) = %v, want 1.5", got)
	}
}

func TestGenerateMipChain_Idempotent(t *testing.T) {
	src := gradient(t, 97, 61)
	before := src.Clone()
	a := GenerateMipChain(src, 6)
	b := GenerateMipChain(src, 6)
	if !a.Equal(b) {
		t.Error("two runs over the same source differ")
	}
	if !src.Equal(before) {
		t.Error("source was modified")
	}
}

func TestMipChain_LevelForScale(t *testing.T) {
	chain := GenerateMipChain(gradient(t, 64, 64), 6)
	tests := []struct {
		scale float64
		want  int
	}{
		{1.0, 0},
		{0.5, 0},
		{0.25, 1},
		{0.2, 1},
		{0.125, 2},
		{0.001, 5},
	}
	for _, tt := range tests {
		if got := chain.LevelForScale(tt.scale); got != chain.Level(tt.want) {
			t.Errorf("LevelForScale(%v) != Level(%d)", tt.scale, tt.want)
		}
	}
	var nilChain *MipChain
	if nilChain.LevelForScale(0.5) != nil || nilChain.NumLevels() != 0 {
		t.Error("nil chain should have no levels")
	}
}

func TestMipChain_LevelDims(t *testing.T) {
	chain := NewMipChain(100, 30, 4)
	want := [][2]int{{50, 15}, {25, 7}, {12, 3}, {6, 1}}
	for i, w := range want {
		if chain.Width(i) != w[0] || chain.Height(i) != w[1] {
			t.Errorf("level %d is %dx%d, want %dx%d", i, chain.Width(i), chain.Height(i), w[0], w[1])
		}
	}
	if chain.Width(4) != 0 || chain.Height(-1) != 0 {
		t.Error("out of range level has a size")
	}
}

func TestAverage_Order(t *testing.T) {
	// Both pair sums round the 1 away in float32; a left-to-right sum
	// would keep the last one and return 0.25.
	a, b, c, d := Texel{1e8}, Texel{1}, Texel{-1e8}, Texel{1}
	if got := Average(a, b, c, d)[0]; got != 0 {
		t.Errorf("Average = %v, want 0", got)
	}
}

func BenchmarkGenerateMipChain(b *testing.B) {
	src, _ := NewBuf(512, 512)
	src.Fill(Texel{0.5, 0.25, 0.125, 1})
	b.ReportAllocs()
	for b.Loop() {
		GenerateMipChain(src, 9).Release()
	}
}
