// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package surface

import (
	"sync"
	"testing"
)

type size struct{ w, h uint32 }

func TestHeadlessExtent(t *testing.T) {
	s := NewHeadless(640, 480)
	if w, h := s.Extent(); w != 640 || h != 480 {
		t.Errorf("Extent() = %dx%d, want 640x480", w, h)
	}
	if s.NativeHandle() == 0 {
		t.Error("NativeHandle() = 0, want non-zero")
	}
	if other := NewHeadless(1, 1); other.NativeHandle() == s.NativeHandle() {
		t.Error("two headless surfaces share a handle")
	}
}

func TestHeadlessResizeNotifies(t *testing.T) {
	tests := []struct {
		name    string
		resizes []size
		want    []size
	}{
		{"single", []size{{800, 600}}, []size{{800, 600}}},
		{"unchanged is silent", []size{{640, 480}}, nil},
		{"minimize and restore", []size{{0, 0}, {640, 480}}, []size{{0, 0}, {640, 480}}},
		{"repeated", []size{{100, 100}, {100, 100}, {200, 100}}, []size{{100, 100}, {200, 100}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewHeadless(640, 480)
			var got []size
			s.OnResize(func(w, h uint32) { got = append(got, size{w, h}) })
			for _, r := range tt.resizes {
				s.Resize(r.w, r.h)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("notifications = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("notification[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestNotifierRemove(t *testing.T) {
	var n Notifier
	var calls []string
	removeA := n.OnResize(func(uint32, uint32) { calls = append(calls, "a") })
	n.OnResize(func(uint32, uint32) { calls = append(calls, "b") })

	n.Notify(1, 1)
	removeA()
	removeA()
	n.Notify(2, 2)

	want := []string{"a", "b", "b"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("calls[%d] = %q, want %q", i, calls[i], want[i])
		}
	}
}

func TestNotifierNil(t *testing.T) {
	var n Notifier
	remove := n.OnResize(nil)
	remove()
	n.Notify(1, 1)
}

func TestNotifierListenerMayRemoveItself(t *testing.T) {
	var n Notifier
	count := 0
	var remove func()
	remove = n.OnResize(func(uint32, uint32) {
		count++
		remove()
	})
	n.Notify(1, 1)
	n.Notify(2, 2)
	if count != 1 {
		t.Errorf("listener called %d times, want 1", count)
	}
}

func TestHeadlessConcurrentResize(t *testing.T) {
	s := NewHeadless(1, 1)
	var mu sync.Mutex
	calls := 0
	s.OnResize(func(uint32, uint32) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Resize(uint32(100+i), 100)
			_, _ = s.Extent()
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if calls == 0 || calls > 8 {
		t.Errorf("calls = %d, want 1..8", calls)
	}
}
