//go:build !nogpu

// Package gpu runs the downsampling kernels on a WebGPU device.
//
// It uses the gogpu/wgpu Pure Go HAL (zero CGO) and compiles the embedded
// WGSL kernels to SPIR-V with gogpu/naga. Only the shared-memory reduction
// kernels exist here; WGSL has no portable quad lane exchange.
//
// # Resources
//
// The output mip chain lives in one storage buffer with the levels packed
// back to back. A uniform buffer describes where each level starts:
//
//	binding 0  constants     uniform, 32 bytes per dispatch (ring offset)
//	binding 1  chain layout  uniform, level offsets and sizes
//	binding 2  pass info     uniform, first mip and input level
//	binding 3  source        storage, read
//	binding 4  chain         storage, read_write
//	binding 5  counters      storage, atomic
//
// # Invocations
//
// A Frame encodes one invocation. Every dispatch is a compute pass of its
// own, which orders it after the previous dispatch. Finish copies the
// chain to a staging buffer, submits, waits on a fence and returns the
// texels on the host.
//
//	d, err := gpu.Open()
//	if err != nil {
//	    return err
//	}
//	defer d.Close()
//
//	_ = d.Configure(desc, 4096)
//	f, _ := d.Begin(src)
//	f.Seed(start)
//	_ = f.Dispatch(cmd)
//	texels, err := f.Finish()
//
// Build with -tags nogpu to exclude the package.
package gpu
