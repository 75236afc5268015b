package resource

import (
	"errors"
	"sync"
	"testing"
)

func TestLocalBackend_Basic(t *testing.T) {
	b := NewLocalBackend()

	// Create a resource
	handle, err := b.Create(1, "test value")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if handle == 0 {
		t.Fatal("Expected non-zero handle")
	}

	// Get it back
	val, ok := b.Get(handle)
	if !ok {
		t.Fatal("Get failed")
	}
	if val != "test value" {
		t.Fatalf("Expected 'test value', got %v", val)
	}

	// Drop it
	val, ok = b.Drop(handle)
	if !ok {
		t.Fatal("Drop failed")
	}
	if val != "test value" {
		t.Fatalf("Expected 'test value', got %v", val)
	}

	// Should not exist anymore
	_, ok = b.Get(handle)
	if ok {
		t.Fatal("Expected Get to fail after Drop")
	}
}

func TestLocalBackend_TypeID(t *testing.T) {
	b := NewLocalBackend()

	handle, _ := b.Create(7, 12345)
	typeID, ok := b.TypeID(handle)
	if !ok {
		t.Fatal("TypeID failed")
	}
	if typeID != 7 {
		t.Fatalf("Expected typeID 7, got %d", typeID)
	}

	b.Drop(handle)
	if _, ok := b.TypeID(handle); ok {
		t.Fatal("TypeID should fail after Drop")
	}
}

func TestLocalBackend_GenerationInvalidatesStaleHandles(t *testing.T) {
	b := NewLocalBackend()

	h1, _ := b.Create(1, "first")
	b.Drop(h1)

	// Slot is reused with a new generation
	h2, _ := b.Create(1, "second")
	if h2.Index() != h1.Index() {
		t.Fatalf("Expected slot reuse, got index %d and %d", h1.Index(), h2.Index())
	}
	if h2.Generation() == h1.Generation() {
		t.Fatal("Expected generation to change on reuse")
	}

	if _, ok := b.Get(h1); ok {
		t.Fatal("Stale handle must not resolve to the new occupant")
	}
	if _, ok := b.Drop(h1); ok {
		t.Fatal("Stale handle must not drop the new occupant")
	}
	if v, ok := b.Get(h2); !ok || v != "second" {
		t.Fatalf("Expected 'second', got %v", v)
	}
}

func TestLocalBackend_DoubleDrop(t *testing.T) {
	b := NewLocalBackend()

	h, _ := b.Create(1, "x")
	if _, ok := b.Drop(h); !ok {
		t.Fatal("First Drop failed")
	}
	if _, ok := b.Drop(h); ok {
		t.Fatal("Second Drop should report a dead handle")
	}
	if b.Len() != 0 {
		t.Fatalf("Expected Len() == 0, got %d", b.Len())
	}
}

func TestLocalBackend_HandleReuse(t *testing.T) {
	b := NewLocalBackend()

	h1, _ := b.Create(1, 1)
	h2, _ := b.Create(1, 2)
	h3, _ := b.Create(1, 3)

	b.Drop(h2)
	b.Drop(h1)

	h4, _ := b.Create(1, 4)
	h5, _ := b.Create(1, 5)

	if h4.Index() != h1.Index() && h4.Index() != h2.Index() {
		t.Fatalf("Expected h4 to reuse a freed slot, got index %d", h4.Index())
	}

	for _, h := range []Handle{h3, h4, h5} {
		if _, ok := b.Get(h); !ok {
			t.Fatalf("handle %#x should be valid", uint64(h))
		}
	}
}

func TestLocalBackend_Close(t *testing.T) {
	b := NewLocalBackend()

	d := &dropCounter{}
	b.Create(1, d)
	b.Create(1, 2)

	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if d.count != 1 {
		t.Fatalf("Expected Drop() on close, called %d times", d.count)
	}

	// Operations should fail after close
	_, err := b.Create(1, "test")
	if !errors.Is(err, ErrClosed) {
		t.Fatal("Expected ErrClosed after Close")
	}
}

func TestLocalBackend_Concurrent(t *testing.T) {
	b := NewLocalBackend()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			h, _ := b.Create(1, id)
			if v, ok := b.Get(h); !ok || v != id {
				t.Errorf("Get(%d) = %v, %v", id, v, ok)
			}
			b.Drop(h)
		}(i)
	}

	wg.Wait()
	if b.Len() != 0 {
		t.Fatalf("Expected Len() == 0, got %d", b.Len())
	}
}

func TestLocalBackend_Len(t *testing.T) {
	b := NewLocalBackend()

	if b.Len() != 0 {
		t.Fatal("Expected Len() == 0 initially")
	}

	h1, _ := b.Create(1, "a")
	h2, _ := b.Create(1, "b")
	b.Create(1, "c")

	if b.Len() != 3 {
		t.Fatalf("Expected Len() == 3, got %d", b.Len())
	}

	b.Drop(h1)
	if b.Len() != 2 {
		t.Fatalf("Expected Len() == 2, got %d", b.Len())
	}

	b.Drop(h2)
	if b.Len() != 1 {
		t.Fatalf("Expected Len() == 1, got %d", b.Len())
	}
}

func TestLocalBackend_Each(t *testing.T) {
	b := NewLocalBackend()

	b.Create(1, "a")
	b.Create(2, "b")
	b.Create(1, "c")

	count := 0
	b.Each(func(h Handle, typeID uint32, value any) bool {
		if b.entries[h.Index()].value != value {
			t.Errorf("Each handle %#x does not address its value", uint64(h))
		}
		count++
		return true
	})

	if count != 3 {
		t.Fatalf("Expected to iterate over 3 items, got %d", count)
	}

	// Test early termination
	count = 0
	b.Each(func(h Handle, typeID uint32, value any) bool {
		count++
		return false
	})

	if count != 1 {
		t.Fatalf("Expected to iterate over 1 item (early term), got %d", count)
	}
}

func TestLocalBackend_InvalidHandle(t *testing.T) {
	b := NewLocalBackend()

	// Handle 0 is always invalid
	if _, ok := b.Get(0); ok {
		t.Fatal("Handle 0 should be invalid")
	}
	if _, ok := b.TypeID(0); ok {
		t.Fatal("Handle 0 should be invalid for TypeID")
	}
	if _, ok := b.Drop(0); ok {
		t.Fatal("Handle 0 should fail Drop")
	}

	// Non-existent handle
	if _, ok := b.Get(makeHandle(998, 1)); ok {
		t.Fatal("Non-existent handle should be invalid")
	}
}
