// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
	"unsafe"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/spd/internal/params"
	"github.com/gogpu/spd/internal/rendezvous"
	"github.com/gogpu/spd/internal/schedule"
	"github.com/gogpu/spd/recording"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// fenceTimeout is the maximum time to wait for an invocation to retire.
	fenceTimeout = 5 * time.Second

	// texelSize is the size of one RGBA float32 texel.
	texelSize = 16

	// layoutSize is the size of the chain layout uniform: the source size
	// followed by one (offset, width, height, 0) entry per level.
	layoutSize = 16 + 16*schedule.MaxMipLevels

	// passInfoSize is the size of the per-dispatch pass uniform.
	passInfoSize = 16
)

// Dispatcher errors.
var (
	// ErrNotConfigured is returned when a frame starts before Configure.
	ErrNotConfigured = errors.New("gpu: dispatcher not configured")

	// ErrNoAdapter is returned by Open when no GPU is available.
	ErrNoAdapter = errors.New("gpu: no adapter available")
)

// LevelSpan locates one output level inside the chain buffer.
type LevelSpan struct {
	Offset        uint64 // in texels
	Width, Height uint32
}

// Buffers are the per-resolution device resources.
type Buffers struct {
	Desc   recording.Desc
	Levels []LevelSpan
	Texels uint64 // total texels of the chain

	Source    hal.Buffer
	Chain     hal.Buffer
	Staging   hal.Buffer
	Counters  hal.Buffer
	Constants hal.Buffer
	Pass      hal.Buffer
	Layout    hal.Buffer

	uniformSize uint64
}

// ChainLayout computes the level spans of desc, packed back to back.
func ChainLayout(desc recording.Desc) ([]LevelSpan, uint64) {
	spans := make([]LevelSpan, desc.MipCount)
	var off uint64
	for i := range spans {
		w, h := desc.LevelSize(i)
		spans[i] = LevelSpan{Offset: off, Width: uint32(w), Height: uint32(h)}
		off += uint64(w) * uint64(h)
	}
	return spans, off
}

// layoutBytes packs the chain layout uniform.
func layoutBytes(desc recording.Desc, spans []LevelSpan) []byte {
	b := make([]byte, layoutSize)
	le := binary.LittleEndian
	le.PutUint32(b[0:], uint32(desc.Width))
	le.PutUint32(b[4:], uint32(desc.Height))
	for i, s := range spans {
		o := 16 + 16*i
		le.PutUint32(b[o:], uint32(s.Offset))
		le.PutUint32(b[o+4:], s.Width)
		le.PutUint32(b[o+8:], s.Height)
	}
	return b
}

// passInfoBytes packs the per-dispatch pass uniform.
func passInfoBytes(firstMip, inputLevel int) []byte {
	b := make([]byte, passInfoSize)
	binary.LittleEndian.PutUint32(b[0:], uint32(firstMip))
	binary.LittleEndian.PutUint32(b[4:], uint32(int32(inputLevel)))
	return b
}

// =============================================================================
// Dispatcher
// =============================================================================

// Dispatcher owns the kernel pipelines and the device resources of one
// downsampler and encodes invocations onto a wgpu/hal device.
type Dispatcher struct {
	mu sync.Mutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	external bool // device is shared, don't destroy on Close

	bgLayout   hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	modules    map[recording.Kernel]hal.ShaderModule
	pipelines  map[recording.Kernel]hal.ComputePipeline

	bufs *Buffers
}

// New creates a dispatcher on an existing device. The device is not
// destroyed by Close.
func New(device hal.Device, queue hal.Queue) (*Dispatcher, error) {
	if device == nil || queue == nil {
		return nil, fmt.Errorf("gpu: nil device or queue")
	}
	d := &Dispatcher{
		device:    device,
		queue:     queue,
		external:  true,
		modules:   make(map[recording.Kernel]hal.ShaderModule),
		pipelines: make(map[recording.Kernel]hal.ComputePipeline),
	}
	if err := d.createLayouts(); err != nil {
		return nil, err
	}
	return d, nil
}

// NewFromProvider creates a dispatcher on the device of a gpucontext
// provider. The provider must expose its HAL objects through
// HalDevice() any and HalQueue() any.
func NewFromProvider(provider gpucontext.DeviceProvider) (*Dispatcher, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("gpu: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("gpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("gpu: provider HalQueue is not hal.Queue")
	}
	return New(device, queue)
}

// Open creates a dispatcher on its own Vulkan device, preferring a
// discrete or integrated GPU.
func Open() (*Dispatcher, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("%w: vulkan backend not available", ErrNoAdapter)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("gpu: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("gpu: open device: %w", err)
	}

	d, err := New(openDev.Device, openDev.Queue)
	if err != nil {
		openDev.Device.Destroy()
		instance.Destroy()
		return nil, err
	}
	d.instance = instance
	d.external = false
	slogger().Info("gpu: device opened", "adapter", selected.Info.Name)
	return d, nil
}

// Capabilities reports what the dispatcher can run.
func (d *Dispatcher) Capabilities() recording.Capabilities {
	return recording.Capabilities{
		WideGroup:   true,
		LaneReduce:  false,
		MaxDispatch: schedule.DefaultLimits().MaxDispatch,
	}
}

func (d *Dispatcher) createLayouts() error {
	uniform := func(binding uint32) gputypes.BindGroupLayoutEntry {
		return gputypes.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
		}
	}
	storage := func(binding uint32, t gputypes.BufferBindingType) gputypes.BindGroupLayoutEntry {
		return gputypes.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: t},
		}
	}

	bgLayout, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "spd_bgl",
		Entries: []gputypes.BindGroupLayoutEntry{
			uniform(bindingConstants),
			uniform(bindingLayout),
			uniform(bindingPass),
			storage(bindingSource, gputypes.BufferBindingTypeReadOnlyStorage),
			storage(bindingChain, gputypes.BufferBindingTypeStorage),
			storage(bindingCounters, gputypes.BufferBindingTypeStorage),
		},
	})
	if err != nil {
		return fmt.Errorf("gpu: create bind group layout: %w", err)
	}
	d.bgLayout = bgLayout

	pipeLayout, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "spd_pl",
		BindGroupLayouts: []hal.BindGroupLayout{bgLayout},
	})
	if err != nil {
		d.device.DestroyBindGroupLayout(bgLayout)
		d.bgLayout = nil
		return fmt.Errorf("gpu: create pipeline layout: %w", err)
	}
	d.pipeLayout = pipeLayout
	return nil
}

// pipeline returns the compute pipeline of k, creating it on first use.
// The kernel is compiled to SPIR-V with naga; if naga rejects it the WGSL
// source is handed to the device instead.
func (d *Dispatcher) pipeline(k recording.Kernel) (hal.ComputePipeline, error) {
	if p, ok := d.pipelines[k]; ok {
		return p, nil
	}
	src, err := KernelSource(k)
	if err != nil {
		return nil, err
	}

	source := hal.ShaderSource{WGSL: src}
	if words, err := CompileKernel(k); err == nil {
		source = hal.ShaderSource{SPIRV: words}
	} else {
		slogger().Warn("gpu: naga compile failed, passing WGSL to the device", "kernel", k.String(), "err", err)
	}

	label := "spd_" + k.String()
	module, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{Label: label, Source: source})
	if err != nil {
		return nil, fmt.Errorf("gpu: create shader module for %s: %w", k, err)
	}
	p, err := d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  label,
		Layout: d.pipeLayout,
		Compute: hal.ComputeState{
			Module:     module,
			EntryPoint: "main",
		},
	})
	if err != nil {
		d.device.DestroyShaderModule(module)
		return nil, fmt.Errorf("gpu: create compute pipeline for %s: %w", k, err)
	}
	d.modules[k] = module
	d.pipelines[k] = p

	slogger().Debug("gpu: pipeline created", "kernel", k.String(), "shader_bytes", len(src))
	return p, nil
}

// Configure destroys the previous buffers and creates the buffers for
// desc. uniformCapacity is the size of the uniform scratch ring.
func (d *Dispatcher) Configure(desc recording.Desc, uniformCapacity int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.destroyBuffers()

	spans, texels := ChainLayout(desc)
	b := &Buffers{
		Desc:        desc,
		Levels:      spans,
		Texels:      texels,
		uniformSize: uint64(max(uniformCapacity, params.Alignment)),
	}
	d.bufs = b

	chainBytes := texels * texelSize
	create := []struct {
		dst   *hal.Buffer
		label string
		size  uint64
		usage gputypes.BufferUsage
	}{
		{&b.Source, "spd_source", uint64(desc.Width) * uint64(desc.Height) * texelSize,
			gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst},
		{&b.Chain, "spd_chain", chainBytes,
			gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc},
		{&b.Staging, "spd_staging", chainBytes,
			gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst},
		{&b.Counters, "spd_counters", rendezvous.NumCounters * 4,
			gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst},
		{&b.Constants, "spd_constants", b.uniformSize,
			gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst},
		{&b.Pass, "spd_pass", b.uniformSize,
			gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst},
		{&b.Layout, "spd_layout", layoutSize,
			gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst},
	}
	for _, c := range create {
		buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{Label: c.label, Size: c.size, Usage: c.usage})
		if err != nil {
			d.destroyBuffers()
			return fmt.Errorf("gpu: create %s buffer: %w", c.label, err)
		}
		*c.dst = buf
	}
	d.queue.WriteBuffer(b.Layout, 0, layoutBytes(desc, spans))

	slogger().Debug("gpu: buffers configured", "desc", desc.String(), "chain_bytes", chainBytes)
	return nil
}

// Layout returns the level spans of the configured chain.
func (d *Dispatcher) Layout() []LevelSpan {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bufs == nil {
		return nil
	}
	return d.bufs.Levels
}

func (d *Dispatcher) destroyBuffers() {
	b := d.bufs
	if b == nil {
		return
	}
	for _, buf := range []hal.Buffer{b.Source, b.Chain, b.Staging, b.Counters, b.Constants, b.Pass, b.Layout} {
		if buf != nil {
			d.device.DestroyBuffer(buf)
		}
	}
	d.bufs = nil
}

// Close releases every resource. A device opened by Open is destroyed too.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device == nil {
		return
	}
	d.destroyBuffers()
	for k, p := range d.pipelines {
		d.device.DestroyComputePipeline(p)
		delete(d.pipelines, k)
	}
	for k, m := range d.modules {
		d.device.DestroyShaderModule(m)
		delete(d.modules, k)
	}
	if d.pipeLayout != nil {
		d.device.DestroyPipelineLayout(d.pipeLayout)
		d.pipeLayout = nil
	}
	if d.bgLayout != nil {
		d.device.DestroyBindGroupLayout(d.bgLayout)
		d.bgLayout = nil
	}
	if !d.external {
		d.device.Destroy()
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	d.device = nil
	d.queue = nil
	d.instance = nil
}

// =============================================================================
// Frame
// =============================================================================

// frameResources tracks per-invocation GPU resources for cleanup.
type frameResources struct {
	device     hal.Device
	bindGroups []hal.BindGroup
	cmdBuf     hal.CommandBuffer
	fence      hal.Fence
}

// cleanup destroys all tracked per-invocation resources.
func (r *frameResources) cleanup() {
	if r.fence != nil {
		r.device.DestroyFence(r.fence)
	}
	if r.cmdBuf != nil {
		r.device.FreeCommandBuffer(r.cmdBuf)
	}
	for _, g := range r.bindGroups {
		r.device.DestroyBindGroup(g)
	}
	r.bindGroups = nil
	r.cmdBuf = nil
	r.fence = nil
}

// Frame encodes one invocation. Every dispatch gets its own compute pass,
// so writes of one dispatch are visible to the next.
type Frame struct {
	d       *Dispatcher
	bufs    *Buffers
	encoder hal.CommandEncoder
	res     frameResources
}

// Begin uploads src and starts encoding an invocation.
func (d *Dispatcher) Begin(src []float32) (*Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b := d.bufs
	if b == nil {
		return nil, ErrNotConfigured
	}
	if want := b.Desc.Width * b.Desc.Height * 4; len(src) < want {
		return nil, fmt.Errorf("gpu: source has %d floats, want %d", len(src), want)
	}

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "spd"})
	if err != nil {
		return nil, fmt.Errorf("gpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("spd"); err != nil {
		return nil, fmt.Errorf("gpu: begin encoding: %w", err)
	}
	d.queue.WriteBuffer(b.Source, 0, float32Bytes(src[:b.Desc.Width*b.Desc.Height*4]))

	return &Frame{d: d, bufs: b, encoder: encoder, res: frameResources{device: d.device}}, nil
}

// Seed uploads counter start values. Uploads are ordered before the
// submission of the frame.
func (f *Frame) Seed(values []uint32) {
	b := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(b[4*i:], v)
	}
	f.d.queue.WriteBuffer(f.bufs.Counters, 0, b)
}

// Dispatch encodes cmd in a compute pass of its own.
func (f *Frame) Dispatch(cmd recording.DispatchCommand) error {
	d, b := f.d, f.bufs
	p, err := d.pipeline(cmd.Kernel)
	if err != nil {
		return err
	}
	off := cmd.Uniform.Offset
	if off+params.Size > b.uniformSize {
		return fmt.Errorf("gpu: uniform offset %d beyond ring of %d bytes", off, b.uniformSize)
	}
	d.queue.WriteBuffer(b.Constants, off, cmd.Uniform.Data[:params.Size])
	d.queue.WriteBuffer(b.Pass, off, passInfoBytes(cmd.FirstMip, cmd.Input))

	chainBytes := b.Texels * texelSize
	bg, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "spd_bg",
		Layout: d.bgLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: bindingConstants, Resource: gputypes.BufferBinding{Buffer: b.Constants.NativeHandle(), Offset: off, Size: params.Size}},
			{Binding: bindingLayout, Resource: gputypes.BufferBinding{Buffer: b.Layout.NativeHandle(), Offset: 0, Size: layoutSize}},
			{Binding: bindingPass, Resource: gputypes.BufferBinding{Buffer: b.Pass.NativeHandle(), Offset: off, Size: passInfoSize}},
			{Binding: bindingSource, Resource: gputypes.BufferBinding{Buffer: b.Source.NativeHandle(), Offset: 0, Size: uint64(b.Desc.Width) * uint64(b.Desc.Height) * texelSize}},
			{Binding: bindingChain, Resource: gputypes.BufferBinding{Buffer: b.Chain.NativeHandle(), Offset: 0, Size: chainBytes}},
			{Binding: bindingCounters, Resource: gputypes.BufferBinding{Buffer: b.Counters.NativeHandle(), Offset: 0, Size: rendezvous.NumCounters * 4}},
		},
	})
	if err != nil {
		return fmt.Errorf("gpu: create bind group: %w", err)
	}
	f.res.bindGroups = append(f.res.bindGroups, bg)

	pass := f.encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "spd_" + cmd.Kernel.String()})
	pass.SetPipeline(p)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(cmd.Groups[0], cmd.Groups[1], cmd.Groups[2])
	pass.End()

	slogger().Debug("gpu: dispatch encoded", "cmd", cmd.String())
	return nil
}

// Finish submits the frame, waits for it to retire and returns the whole
// chain read back to host memory.
func (f *Frame) Finish() ([]float32, error) {
	defer f.res.cleanup()

	d, b := f.d, f.bufs
	size := b.Texels * texelSize
	f.encoder.CopyBufferToBuffer(b.Chain, b.Staging, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: size},
	})
	cmdBuf, err := f.encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("gpu: end encoding: %w", err)
	}
	f.res.cmdBuf = cmdBuf

	fence, err := d.device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("gpu: create fence: %w", err)
	}
	f.res.fence = fence
	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return nil, fmt.Errorf("gpu: submit: %w", err)
	}
	ok, err := d.device.Wait(fence, 1, fenceTimeout)
	if err != nil {
		return nil, fmt.Errorf("gpu: wait for GPU: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("gpu: GPU timeout after %v", fenceTimeout)
	}

	readback := make([]byte, size)
	if err := d.queue.ReadBuffer(b.Staging, 0, readback); err != nil {
		return nil, fmt.Errorf("gpu: readback: %w", err)
	}
	return bytesFloat32(readback), nil
}

// Abandon discards the frame without submitting it.
func (f *Frame) Abandon() {
	f.encoder.DiscardEncoding()
	f.res.cleanup()
}

func float32Bytes(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*4) //nolint:gosec // float32 slice viewed as bytes
}

func bytesFloat32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
