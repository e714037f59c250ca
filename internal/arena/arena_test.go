package arena

import (
	"errors"
	"testing"
)

func TestStdAllocatorNeverFails(t *testing.T) {
	a := StdAllocator{}
	for _, n := range []int{0, 1, 1024, 1 << 20} {
		buf, err := a.Alloc(n)
		if err != nil {
			t.Fatalf("Alloc(%d): unexpected error %v", n, err)
		}
		if len(buf) != n {
			t.Fatalf("Alloc(%d): got len %d", n, len(buf))
		}
	}
}

func TestBoundedAllocatorRespectsBudget(t *testing.T) {
	b := NewBoundedAllocator(100)

	if _, err := b.Alloc(60); err != nil {
		t.Fatalf("Alloc(60): unexpected error %v", err)
	}
	if _, err := b.Alloc(30); err != nil {
		t.Fatalf("Alloc(30): unexpected error %v", err)
	}
	if _, err := b.Alloc(20); !errors.Is(err, ErrOutOfMemory) {
		t.Fatalf("Alloc(20): got err %v, want ErrOutOfMemory", err)
	}
	if b.Used() != 90 {
		t.Fatalf("Used() = %d, want 90", b.Used())
	}
}

func TestBoundedAllocatorExactFit(t *testing.T) {
	b := NewBoundedAllocator(64)
	if _, err := b.Alloc(64); err != nil {
		t.Fatalf("Alloc(64): unexpected error %v", err)
	}
	if _, err := b.Alloc(1); !errors.Is(err, ErrOutOfMemory) {
		t.Fatalf("Alloc(1): got err %v, want ErrOutOfMemory", err)
	}
}
