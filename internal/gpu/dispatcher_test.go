//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/spd/internal/params"
	"github.com/gogpu/spd/recording"
)

// createNoopDevice creates a noop device and queue for testing.
// Returns the device, queue, and a cleanup function.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup
}

// =============================================================================
// Kernel Source Tests
// =============================================================================

func TestKernelSource(t *testing.T) {
	tests := []struct {
		kernel recording.Kernel
		want   []string
	}{
		{recording.KernelFor(false, false, true), []string{"@workgroup_size(64)", "reduce_tile"}},
		{recording.KernelFor(false, true, true), []string{"@workgroup_size(256)", "reduce_wide"}},
		{recording.KernelFor(true, false, true), []string{"@workgroup_size(64)", "arrive(", "remap("}},
		{recording.KernelFor(true, true, true), []string{"@workgroup_size(256)", "arrive(", "num_work_groups"}},
	}
	for _, tt := range tests {
		t.Run(tt.kernel.String(), func(t *testing.T) {
			src, err := KernelSource(tt.kernel)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(src, "struct SpdConstants") {
				t.Error("source misses the shared declarations")
			}
			for _, w := range tt.want {
				if !strings.Contains(src, w) {
					t.Errorf("source misses %q", w)
				}
			}
		})
	}
}

func TestKernelSource_LaneReduceUnavailable(t *testing.T) {
	for _, k := range recording.Kernels() {
		if k.Fallback() {
			continue
		}
		if _, err := KernelSource(k); !errors.Is(err, ErrKernelUnavailable) {
			t.Errorf("KernelSource(%s) = %v, want ErrKernelUnavailable", k, err)
		}
	}
}

// TestCompileKernel tests that every WGSL kernel compiles to SPIR-V.
func TestCompileKernel(t *testing.T) {
	for _, k := range recording.Kernels() {
		if !k.Fallback() {
			continue
		}
		t.Run(k.String(), func(t *testing.T) {
			words, err := CompileKernel(k)
			if err != nil {
				errStr := err.Error()
				if strings.Contains(errStr, "not yet implemented") || strings.Contains(errStr, "not supported") {
					t.Skipf("Skipping: naga feature not yet implemented: %v", err)
				}
				// Atomics are a known limitation in naga
				if strings.Contains(errStr, "lowering error") || strings.Contains(errStr, "atomic") {
					t.Skipf("Skipping: naga atomic/lowering limitation: %v", err)
				}
				t.Fatalf("failed to compile %s: %v", k, err)
			}
			// SPIR-V magic number.
			if len(words) == 0 || words[0] != 0x07230203 {
				t.Errorf("bad SPIR-V header: %d words", len(words))
			}
		})
	}
}

// =============================================================================
// Layout Tests
// =============================================================================

func TestChainLayout(t *testing.T) {
	spans, texels := ChainLayout(recording.Desc{Width: 10, Height: 4, MipCount: 3})
	want := []LevelSpan{
		{Offset: 0, Width: 5, Height: 2},
		{Offset: 10, Width: 2, Height: 1},
		{Offset: 12, Width: 1, Height: 1},
	}
	if texels != 13 {
		t.Errorf("texels = %d, want 13", texels)
	}
	for i := range want {
		if spans[i] != want[i] {
			t.Errorf("span %d = %+v, want %+v", i, spans[i], want[i])
		}
	}
}

func TestLayoutBytes(t *testing.T) {
	desc := recording.Desc{Width: 10, Height: 4, MipCount: 3}
	spans, _ := ChainLayout(desc)
	b := layoutBytes(desc, spans)
	if len(b) != layoutSize {
		t.Fatalf("len = %d, want %d", len(b), layoutSize)
	}
	le := binary.LittleEndian
	if le.Uint32(b[0:]) != 10 || le.Uint32(b[4:]) != 4 {
		t.Errorf("src size = %d x %d", le.Uint32(b[0:]), le.Uint32(b[4:]))
	}
	// Level 1 entry.
	if le.Uint32(b[32:]) != 10 || le.Uint32(b[36:]) != 2 || le.Uint32(b[40:]) != 1 {
		t.Errorf("level 1 = %v", b[32:44])
	}
}

func TestPassInfoBytes(t *testing.T) {
	b := passInfoBytes(4, recording.SourceLevel)
	if binary.LittleEndian.Uint32(b[0:]) != 4 {
		t.Errorf("first_mip = %d", binary.LittleEndian.Uint32(b[0:]))
	}
	if int32(binary.LittleEndian.Uint32(b[4:])) != -1 {
		t.Errorf("input_level = %d", int32(binary.LittleEndian.Uint32(b[4:])))
	}
}

func TestFloatBytes(t *testing.T) {
	v := []float32{0, 1, -2.5, 1e-8}
	got := bytesFloat32(float32Bytes(v))
	for i := range v {
		if got[i] != v[i] {
			t.Errorf("texel %d = %v, want %v", i, got[i], v[i])
		}
	}
	if float32Bytes(nil) != nil {
		t.Error("float32Bytes(nil) != nil")
	}
}

// =============================================================================
// Dispatcher Tests (noop device)
// =============================================================================

func TestDispatcher_New(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	d, err := New(device, queue)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	if d.bgLayout == nil || d.pipeLayout == nil {
		t.Error("layouts not created")
	}
	caps := d.Capabilities()
	if caps.LaneReduce || !caps.WideGroup {
		t.Errorf("capabilities = %+v", caps)
	}
	if _, err := New(nil, queue); err == nil {
		t.Error("New(nil) succeeded")
	}
}

func TestDispatcher_Pipelines(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	d, err := New(device, queue)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	for _, k := range recording.Kernels() {
		p, err := d.pipeline(k)
		if !k.Fallback() {
			if !errors.Is(err, ErrKernelUnavailable) {
				t.Errorf("pipeline(%s) = %v, want ErrKernelUnavailable", k, err)
			}
			continue
		}
		if err != nil || p == nil {
			t.Fatalf("pipeline(%s) = %v, %v", k, p, err)
		}
		if _, err := d.pipeline(k); err != nil {
			t.Errorf("second pipeline(%s) = %v", k, err)
		}
	}
	if len(d.pipelines) != 4 {
		t.Errorf("%d pipelines, want 4", len(d.pipelines))
	}
}

func TestDispatcher_Configure(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	d, err := New(device, queue)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	if _, err := d.Begin(nil); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Begin() before Configure = %v, want ErrNotConfigured", err)
	}

	desc := recording.Desc{Width: 64, Height: 32, MipCount: 5}
	if err := d.Configure(desc, 4*params.Alignment); err != nil {
		t.Fatal(err)
	}
	b := d.bufs
	if b.Source == nil || b.Chain == nil || b.Staging == nil || b.Counters == nil ||
		b.Constants == nil || b.Pass == nil || b.Layout == nil {
		t.Fatalf("buffers = %+v", b)
	}
	if len(d.Layout()) != 5 {
		t.Errorf("Layout() has %d levels, want 5", len(d.Layout()))
	}

	// Reconfigure replaces the buffers.
	if err := d.Configure(recording.Desc{Width: 16, Height: 16, MipCount: 4}, params.Alignment); err != nil {
		t.Fatal(err)
	}
	if d.bufs == b {
		t.Error("Configure kept the old buffers")
	}
}

func TestDispatcher_FrameEncode(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	d, err := New(device, queue)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	desc := recording.Desc{Width: 32, Height: 32, MipCount: 5}
	if err := d.Configure(desc, 2*params.Alignment); err != nil {
		t.Fatal(err)
	}

	if _, err := d.Begin(make([]float32, 10)); err == nil {
		t.Error("Begin() with a short source succeeded")
	}

	f, err := d.Begin(make([]float32, 32*32*4))
	if err != nil {
		t.Fatal(err)
	}
	f.Seed([]uint32{0})

	k := recording.KernelFor(true, false, true)
	c := params.Pack(5, 2, 2, 1, 32, 32)
	cmd := recording.DispatchCommand{
		Kernel:   k,
		Groups:   [3]uint32{2, 2, 1},
		Input:    recording.SourceLevel,
		MipCount: 5,
		Uniform:  recording.Uniform{Offset: params.Alignment, Data: c.Bytes()},
	}
	if err := f.Dispatch(cmd); err != nil {
		t.Fatalf("Dispatch() = %v", err)
	}
	if len(f.res.bindGroups) != 1 {
		t.Errorf("%d bind groups, want 1", len(f.res.bindGroups))
	}

	cmd.Uniform.Offset = 2 * params.Alignment
	if err := f.Dispatch(cmd); err == nil {
		t.Error("Dispatch() beyond the uniform ring succeeded")
	}
	f.Abandon()
	if f.res.bindGroups != nil {
		t.Error("Abandon() left bind groups")
	}
}

func TestDispatcher_CloseIdempotent(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	d, err := New(device, queue)
	if err != nil {
		t.Fatal(err)
	}
	d.Close()
	d.Close()
}

// fakeProvider exposes HAL objects the way gogpu's device provider does.
type fakeProvider struct {
	device hal.Device
	queue  hal.Queue
}

func (p fakeProvider) Device() gpucontext.Device             { return nil }
func (p fakeProvider) Queue() gpucontext.Queue               { return nil }
func (p fakeProvider) Adapter() gpucontext.Adapter           { return nil }
func (p fakeProvider) SurfaceFormat() gputypes.TextureFormat { return gputypes.TextureFormatUndefined }
func (p fakeProvider) HalDevice() any                        { return p.device }
func (p fakeProvider) HalQueue() any                         { return p.queue }

func TestNewFromProvider(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	d, err := NewFromProvider(fakeProvider{device: device, queue: queue})
	if err != nil {
		t.Fatalf("NewFromProvider() = %v", err)
	}
	d.Close()

	if _, err := NewFromProvider(fakeProvider{}); err == nil {
		t.Error("NewFromProvider() without a device succeeded")
	}
	if _, err := NewFromProvider(gpucontext.DeviceProvider(nullProvider{})); err == nil {
		t.Error("NewFromProvider() without HAL accessors succeeded")
	}
}

// nullProvider implements only gpucontext.DeviceProvider.
type nullProvider struct{}

func (nullProvider) Device() gpucontext.Device             { return nil }
func (nullProvider) Queue() gpucontext.Queue               { return nil }
func (nullProvider) Adapter() gpucontext.Adapter           { return nil }
func (nullProvider) SurfaceFormat() gputypes.TextureFormat { return gputypes.TextureFormatUndefined }
