package main

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"

	"github.com/gogpu/spd"
)

// sheetCell is the edge of one contact sheet cell.
const sheetCell = 128

var errChainMismatch = errors.New("chains differ")

// checkerboard synthesizes a source with cells of size x size texels.
func checkerboard(width, height, size int) (*spd.Image, error) {
	img, err := spd.NewImage(width, height)
	if err != nil {
		return nil, err
	}
	for y := range height {
		for x := range width {
			v := float32(((x / size) + (y / size)) % 2)
			_ = img.Set(x, y, spd.Texel{v, float32(x) / float32(width), float32(y) / float32(height), 1})
		}
	}
	return img, nil
}

// crossCheck verifies that both engines produced the reference chain.
func crossCheck(single, multi, ref *spd.MipChain) error {
	for i := range ref.NumLevels() {
		want := ref.Level(i)
		if x, y, ok := single.Level(i).FirstDifference(want); ok {
			return fmt.Errorf("%w: single-pass level %d at (%d,%d)", errChainMismatch, i, x, y)
		}
		if x, y, ok := multi.Level(i).FirstDifference(want); ok {
			return fmt.Errorf("%w: multi-pass level %d at (%d,%d)", errChainMismatch, i, x, y)
		}
	}
	return nil
}

// writeLevels saves every level as level_NN.<format>, plus level_NN.f16
// when half is set.
func writeLevels(dir, format string, chain *spd.MipChain, half bool) error {
	for i := range chain.NumLevels() {
		l := chain.Level(i)
		if err := l.Save(filepath.Join(dir, fmt.Sprintf("level_%02d.%s", i, format))); err != nil {
			return err
		}
		if !half {
			continue
		}
		f, err := os.Create(filepath.Join(dir, fmt.Sprintf("level_%02d.f16", i)))
		if err != nil {
			return err
		}
		if err := l.WriteHalf(f); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}

// contactSheet lays the levels out left to right, each scaled up to a
// sheetCell square with nearest-neighbor sampling.
func contactSheet(chain *spd.MipChain) (*spd.Image, error) {
	n := chain.NumLevels()
	if n == 0 {
		return nil, fmt.Errorf("empty chain")
	}
	dst := image.NewNRGBA(image.Rect(0, 0, n*sheetCell, sheetCell))
	for i := range n {
		cell := image.Rect(i*sheetCell, 0, (i+1)*sheetCell, sheetCell)
		src := chain.Level(i).ToStdImage()
		draw.NearestNeighbor.Scale(dst, cell, src, src.Bounds(), draw.Src, nil)
	}
	return spd.FromStdImage(dst)
}

// chainTexels returns the number of texels in the chain.
func chainTexels(chain *spd.MipChain) int {
	total := 0
	for i := range chain.NumLevels() {
		w, h := chain.Level(i).Bounds()
		total += w * h
	}
	return total
}
