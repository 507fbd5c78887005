// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package recording

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
)

// mockBackend records the calls it receives.
type mockBackend struct {
	name        string
	calls       []string
	failOn      CommandType
	failEnabled bool
}

func newMockBackend(name string) *mockBackend {
	return &mockBackend{name: name}
}

func (b *mockBackend) Name() string { return b.name }

func (b *mockBackend) Capabilities() Capabilities {
	return Capabilities{WideGroup: true, LaneReduce: true, MaxDispatch: [3]uint32{65535, 65535, 65535}}
}

func (b *mockBackend) Configure(d Desc) error {
	b.calls = append(b.calls, "configure "+d.String())
	return nil
}

func (b *mockBackend) Begin(src Surface) error {
	b.calls = append(b.calls, fmt.Sprintf("begin %dx%d", src.Width, src.Height))
	return nil
}

func (b *mockBackend) fail(t CommandType) error {
	if b.failEnabled && b.failOn == t {
		return errors.New("mock failure")
	}
	return nil
}

func (b *mockBackend) SeedCounters(c SeedCountersCommand) error {
	b.calls = append(b.calls, fmt.Sprintf("seed %d", len(c.Values)))
	return b.fail(CmdSeedCounters)
}

func (b *mockBackend) Transition(c TransitionCommand) error {
	b.calls = append(b.calls, "transition "+c.String())
	return b.fail(CmdTransition)
}

func (b *mockBackend) Dispatch(c DispatchCommand) error {
	b.calls = append(b.calls, "dispatch "+c.String())
	return b.fail(CmdDispatch)
}

func (b *mockBackend) End() error {
	b.calls = append(b.calls, "end")
	return nil
}

func (b *mockBackend) Reset() error {
	b.calls = append(b.calls, "reset")
	return nil
}

func (b *mockBackend) ReadLevel(int) (Surface, error) { return Surface{}, nil }
func (b *mockBackend) Close() error                   { return nil }

// resetRegistry clears all registered backends for test isolation.
func resetRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends = make(map[string]BackendFactory)
}

func TestRegisterAndNewBackend(t *testing.T) {
	resetRegistry()
	defer resetRegistry()

	Register("test", func() (Backend, error) { return newMockBackend("test"), nil })

	b, err := NewBackend("test")
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	if b.Name() != "test" {
		t.Errorf("Name() = %q", b.Name())
	}
	if !IsRegistered("test") {
		t.Error("IsRegistered(test) = false")
	}
}

func TestNewBackend_Unknown(t *testing.T) {
	resetRegistry()
	defer resetRegistry()

	_, err := NewBackend("nope")
	if err == nil || !strings.Contains(err.Error(), "forgotten import") {
		t.Errorf("NewBackend(nope) error = %v", err)
	}
}

func TestNewBackend_FactoryError(t *testing.T) {
	resetRegistry()
	defer resetRegistry()

	sentinel := errors.New("no adapter")
	Register("broken", func() (Backend, error) { return nil, sentinel })
	if _, err := NewBackend("broken"); !errors.Is(err, sentinel) {
		t.Errorf("NewBackend(broken) error = %v, want wrapped sentinel", err)
	}
}

func TestRegister_Panics(t *testing.T) {
	resetRegistry()
	defer resetRegistry()

	tests := []struct {
		name string
		fn   func()
	}{
		{"nil factory", func() { Register("x", nil) }},
		{"duplicate", func() {
			f := func() (Backend, error) { return newMockBackend("d"), nil }
			Register("d", f)
			Register("d", f)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			tt.fn()
		})
	}
}

func TestBackends_Sorted(t *testing.T) {
	resetRegistry()
	defer resetRegistry()

	for _, n := range []string{"gpu", "cpu", "null"} {
		Register(n, func() (Backend, error) { return newMockBackend(n), nil })
	}
	if got, want := Backends(), []string{"cpu", "gpu", "null"}; !slices.Equal(got, want) {
		t.Errorf("Backends() = %v, want %v", got, want)
	}
	Unregister("gpu")
	if IsRegistered("gpu") {
		t.Error("gpu still registered after Unregister")
	}
}
