//go:build !nogpu

package main

// Register the gpu backend for -backend gpu.
import _ "github.com/gogpu/spd/recording/backends/gpu"
