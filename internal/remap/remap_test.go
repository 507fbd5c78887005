// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package remap

import "testing"

func TestThreadGroup_Bijection(t *testing.T) {
	strides := [][2]uint32{{1, 1}, {2, 2}, {4, 2}, {8, 8}, {16, 16}, {3, 5}}
	for gw := uint32(1); gw <= 40; gw++ {
		for gh := uint32(1); gh <= 40; gh++ {
			for _, s := range strides {
				checkBijection(t, gw, gh, s[0], s[1])
			}
		}
	}
}

func TestThreadGroup_BijectionLarge(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping large grids in short mode")
	}
	for _, g := range [][2]uint32{{256, 256}, {255, 129}, {257, 3}, {64, 64}, {63, 65}} {
		checkBijection(t, g[0], g[1], 16, 16)
		checkBijection(t, g[0], g[1], 8, 8)
	}
}

func checkBijection(t *testing.T, gw, gh, xs, ys uint32) {
	t.Helper()
	seen := make([]bool, gw*gh)
	for id := range gw * gh {
		x, y := ThreadGroup(gw, gh, xs, ys, id)
		if x >= gw || y >= gh {
			t.Fatalf("grid %dx%d stride %dx%d: id %d -> (%d,%d) out of range", gw, gh, xs, ys, id, x, y)
		}
		i := y*gw + x
		if seen[i] {
			t.Fatalf("grid %dx%d stride %dx%d: (%d,%d) produced twice", gw, gh, xs, ys, x, y)
		}
		seen[i] = true
	}
}

func TestThreadGroup_PerfectTileOrder(t *testing.T) {
	// 32x32 grid, 16x16 tiles: ids 0..255 fill tile (0,0) row-major.
	for id := range uint32(256) {
		x, y := ThreadGroup(32, 32, 16, 16, id)
		if x != id%16 || y != id/16 {
			t.Fatalf("id %d -> (%d,%d), want (%d,%d)", id, x, y, id%16, id/16)
		}
	}
	x, y := ThreadGroup(32, 32, 16, 16, 256)
	if x != 16 || y != 0 {
		t.Errorf("id 256 -> (%d,%d), want (16,0)", x, y)
	}
	x, y = ThreadGroup(32, 32, 16, 16, 512)
	if x != 0 || y != 16 {
		t.Errorf("id 512 -> (%d,%d), want (0,16)", x, y)
	}
}

func TestThreadGroup_ClippedTiles(t *testing.T) {
	// 5x3 grid, 4x2 tiles: one full tile, a 1-wide right tile, and a
	// 1-high bottom row.
	want := [][2]uint32{
		{0, 0}, {1, 0}, {2, 0}, {3, 0}, {0, 1}, {1, 1}, {2, 1}, {3, 1},
		{4, 0}, {4, 1},
		{0, 2}, {1, 2}, {2, 2}, {3, 2},
		{4, 2},
	}
	for id, w := range want {
		x, y := ThreadGroup(5, 3, 4, 2, uint32(id))
		if x != w[0] || y != w[1] {
			t.Errorf("id %d -> (%d,%d), want (%d,%d)", id, x, y, w[0], w[1])
		}
	}
}

func BenchmarkThreadGroup(b *testing.B) {
	b.ReportAllocs()
	var sink uint32
	for i := 0; b.Loop(); i++ {
		x, y := ThreadGroup(255, 129, 16, 16, uint32(i)%(255*129))
		sink += x + y
	}
	_ = sink
}
