// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package handle

import (
	"errors"
	"testing"
)

func TestInsertGet(t *testing.T) {
	var tab Table[string]
	a := tab.Insert("a")
	b := tab.Insert("b")

	if a == Invalid || b == Invalid {
		t.Fatalf("Insert() returned Invalid")
	}
	if a == b {
		t.Fatalf("Insert() returned duplicate handle %v", a)
	}
	for _, tt := range []struct {
		h    Handle
		want string
	}{{a, "a"}, {b, "b"}} {
		got, ok := tab.Get(tt.h)
		if !ok || got != tt.want {
			t.Errorf("Get(%v) = %q, %v, want %q, true", tt.h, got, ok, tt.want)
		}
	}
	if tab.Len() != 2 || tab.Live() != 2 {
		t.Errorf("Len(), Live() = %d, %d, want 2, 2", tab.Len(), tab.Live())
	}
}

func TestGetRejectsBadHandles(t *testing.T) {
	var tab Table[int]
	h := tab.Insert(7)

	tests := []struct {
		name string
		h    Handle
	}{
		{"invalid", Invalid},
		{"out of range", makeHandle(5, 1)},
		{"wrong generation", makeHandle(h.Index(), h.Generation()+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if v, ok := tab.Get(tt.h); ok {
				t.Errorf("Get(%v) = %d, true, want false", tt.h, v)
			}
		})
	}
}

func TestRemove(t *testing.T) {
	var tab Table[int]
	h := tab.Insert(42)

	v, err := tab.Remove(h)
	if err != nil || v != 42 {
		t.Fatalf("Remove() = %d, %v, want 42, nil", v, err)
	}
	if _, ok := tab.Get(h); ok {
		t.Errorf("Get() after Remove succeeded")
	}
	if _, err := tab.Remove(h); !errors.Is(err, ErrStaleHandle) {
		t.Errorf("second Remove() error = %v, want ErrStaleHandle", err)
	}
	if _, err := tab.Remove(Invalid); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("Remove(Invalid) error = %v, want ErrInvalidHandle", err)
	}
	if _, err := tab.Remove(makeHandle(9, 1)); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("Remove(out of range) error = %v, want ErrInvalidHandle", err)
	}
	if tab.Live() != 0 {
		t.Errorf("Live() = %d, want 0", tab.Live())
	}
}

func TestSlotReuse(t *testing.T) {
	var tab Table[int]
	a := tab.Insert(1)
	tab.Insert(2)
	if _, err := tab.Remove(a); err != nil {
		t.Fatal(err)
	}

	c := tab.Insert(3)
	if c.Index() != a.Index() {
		t.Errorf("Insert() index = %d, want reused %d", c.Index(), a.Index())
	}
	if tab.Len() != 2 {
		t.Errorf("Len() = %d, want 2", tab.Len())
	}
	if _, ok := tab.Get(a); ok {
		t.Errorf("stale handle %v resolved after slot reuse", a)
	}
	if v, ok := tab.Get(c); !ok || v != 3 {
		t.Errorf("Get(%v) = %d, %v, want 3, true", c, v, ok)
	}
}

func TestEachAndClear(t *testing.T) {
	var tab Table[int]
	hs := []Handle{tab.Insert(1), tab.Insert(2), tab.Insert(3)}
	if _, err := tab.Remove(hs[1]); err != nil {
		t.Fatal(err)
	}

	sum := 0
	tab.Each(func(_ Handle, v int) { sum += v })
	if sum != 4 {
		t.Errorf("Each() sum = %d, want 4", sum)
	}

	tab.Clear()
	if tab.Live() != 0 {
		t.Errorf("Live() after Clear = %d, want 0", tab.Live())
	}
	for _, h := range hs {
		if _, ok := tab.Get(h); ok {
			t.Errorf("Get(%v) after Clear succeeded", h)
		}
	}
}

func TestSet(t *testing.T) {
	var tab Table[int]
	h := tab.Insert(1)
	if !tab.Set(h, 5) {
		t.Fatalf("Set() = false, want true")
	}
	if v, _ := tab.Get(h); v != 5 {
		t.Errorf("Get() = %d, want 5", v)
	}
	if tab.Set(Invalid, 1) {
		t.Errorf("Set(Invalid) = true, want false")
	}
}
