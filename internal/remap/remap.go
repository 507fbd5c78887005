// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package remap maps a linear workgroup index onto a swizzled 2D tile
// coordinate so that consecutively scheduled workgroups cover a compact
// region of the image.
//
// The group grid is cut into tiles of xStride×yStride groups. Tiles are
// visited row by row and groups inside a tile row-major. Tiles clipped by the
// right or bottom edge of the grid keep the same visiting order with a
// reduced local width or height.
package remap

// ThreadGroup returns the 2D group coordinate of flatID in a
// groupWidth×groupHeight grid swizzled into xStride×yStride tiles.
//
// ThreadGroup is a bijection from [0, groupWidth*groupHeight) onto the grid.
// Both strides must be positive.
func ThreadGroup(groupWidth, groupHeight, xStride, yStride, flatID uint32) (x, y uint32) {
	tileSize := xStride * yStride

	fullTilesX := groupWidth / xStride
	edgeWidth := groupWidth - fullTilesX*xStride
	fullTilesY := groupHeight / yStride
	edgeHeight := groupHeight - fullTilesY*yStride

	// Groups in one row of tiles, and in a tile of the bottom row.
	rowGroups := fullTilesX*tileSize + edgeWidth*yStride
	bottomTileGroups := edgeHeight * xStride

	tileY := flatID / rowGroups
	id := flatID % rowGroups

	var tileX uint32
	if tileY < fullTilesY {
		tileX = id / tileSize
		id %= tileSize
	} else {
		tileX = id / bottomTileGroups
		id %= bottomTileGroups
	}

	var localX, localY uint32
	if tileX < fullTilesX {
		localX, localY = id%xStride, id/xStride
	} else {
		localX, localY = id%edgeWidth, id/edgeWidth
	}

	return localX + tileX*xStride, localY + tileY*yStride
}
