// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package recording

import "testing"

func TestCommandType_String(t *testing.T) {
	tests := []struct {
		cmd  Command
		want string
	}{
		{SeedCountersCommand{}, "SeedCounters"},
		{TransitionCommand{}, "Transition"},
		{DispatchCommand{}, "Dispatch"},
	}
	for _, tt := range tests {
		if got := tt.cmd.Type().String(); got != tt.want {
			t.Errorf("%T.Type() = %q, want %q", tt.cmd, got, tt.want)
		}
	}
	if got := CommandType(200).String(); got != "Unknown" {
		t.Errorf("CommandType(200) = %q", got)
	}
}

func TestTransitionCommand_String(t *testing.T) {
	c := TransitionCommand{Resource: ResourceOutput, Level: 3, Before: StateUnorderedAccess, After: StateShaderRead}
	if got, want := c.String(), "output[3] UnorderedAccess->ShaderRead"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	c = TransitionCommand{Resource: ResourceCounters, Level: AllLevels, Before: StateUnorderedAccess, After: StateCopyDest}
	if got, want := c.String(), "counters[all] UnorderedAccess->CopyDest"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

// =============================================================================
// Kernel Tests
// =============================================================================

func TestKernels(t *testing.T) {
	ks := Kernels()
	if len(ks) != 8 {
		t.Fatalf("len(Kernels()) = %d, want 8", len(ks))
	}
	seen := map[string]bool{}
	for _, k := range ks {
		if !k.Valid() {
			t.Errorf("%v not valid", k)
		}
		name := k.String()
		if seen[name] {
			t.Errorf("duplicate kernel name %q", name)
		}
		seen[name] = true
		if KernelFor(k.SinglePass(), k.Wide(), k.Fallback()) != k {
			t.Errorf("KernelFor round trip failed for %v", k)
		}
	}
	if Kernel(8).Valid() || Kernel(8).String() != "invalid" {
		t.Error("Kernel(8) should be invalid")
	}
}

func TestKernel_String(t *testing.T) {
	tests := []struct {
		k    Kernel
		want string
	}{
		{KernelFor(false, false, false), "multi-narrow-lane"},
		{KernelFor(true, false, false), "single-narrow-lane"},
		{KernelFor(true, true, true), "single-wide-shared"},
		{KernelFor(false, true, true), "multi-wide-shared"},
	}
	for _, tt := range tests {
		if got := tt.k.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestDesc_LevelSize(t *testing.T) {
	d := Desc{Width: 300, Height: 200, MipCount: 8}
	if w, h := d.LevelSize(0); w != 150 || h != 100 {
		t.Errorf("LevelSize(0) = %dx%d", w, h)
	}
	if w, h := d.LevelSize(7); w != 1 || h != 1 {
		t.Errorf("LevelSize(7) = %dx%d", w, h)
	}
}
