// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package kernel

import "github.com/gogpu/spd/internal/image"

// reducer is the intra-group 2×2 reduction strategy.
type reducer interface {
	// reduce writes into out the level computed from in.
	reduce(in, out *block)
}

// laneReducer models four lanes of a quad exchanging values: every lane
// adds its horizontal neighbour, then its vertical neighbour's partial sum.
// Lane 0 ends with ((v0+v1)+(v2+v3)).
type laneReducer struct{}

func (laneReducer) reduce(in, out *block) {
	for j := range out.n {
		oy := out.y0 + j
		if oy >= out.h {
			break
		}
		for i := range out.n {
			ox := out.x0 + i
			if ox >= out.w {
				break
			}
			quad := [4]image.Texel{
				in.at(2*ox, 2*oy),
				in.at(2*ox+1, 2*oy),
				in.at(2*ox, 2*oy+1),
				in.at(2*ox+1, 2*oy+1),
			}
			out.px[j*out.n+i] = quadReduce(&quad)
		}
	}
}

// quadReduce is the lane-exchange sum of a 2×2 quad in lane order
// (0,0) (1,0) (0,1) (1,1), scaled by one quarter.
func quadReduce(lanes *[4]image.Texel) image.Texel {
	var x [4]image.Texel
	for l := range lanes {
		for c := range image.Channels {
			x[l][c] = lanes[l][c] + lanes[l^1][c]
		}
	}
	var r image.Texel
	for c := range image.Channels {
		r[c] = (x[0][c] + x[2][c]) * 0.25
	}
	return r
}

// sharedReducer models the shared-memory tree: the block sits in group
// shared storage and one thread per output texel averages its four taps
// after a barrier.
type sharedReducer struct{}

func (sharedReducer) reduce(in, out *block) {
	for j := range out.n {
		oy := out.y0 + j
		if oy >= out.h {
			break
		}
		for i := range out.n {
			ox := out.x0 + i
			if ox >= out.w {
				break
			}
			out.px[j*out.n+i] = image.Average(
				in.at(2*ox, 2*oy),
				in.at(2*ox+1, 2*oy),
				in.at(2*ox, 2*oy+1),
				in.at(2*ox+1, 2*oy+1),
			)
		}
	}
}
