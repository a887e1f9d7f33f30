package mempool

import "testing"

func TestCycleAllocatorBump(t *testing.T) {
	p := newTestPool(t)
	c := NewCycleAllocator(p, 64*1024)

	var prev uintptr
	for i := 0; i < 100; i++ {
		ptr := c.Allocate(100, 64)
		if ptr == nil {
			t.Fatalf("cycle allocation %d failed", i)
		}
		addr := uintptr(ptr)
		if addr%64 != 0 {
			t.Fatalf("allocation %d not 64-aligned: %#x", i, addr)
		}
		if prev != 0 && addr < prev+100 {
			t.Fatalf("allocation %d overlaps previous", i)
		}
		prev = addr
	}
	if got := c.CycleAllocations(); got != 100 {
		t.Fatalf("cycle allocations = %d, want 100", got)
	}
	if !c.InUse() {
		t.Fatal("expected an arena in use")
	}
}

func TestCycleAllocatorReset(t *testing.T) {
	p := newTestPool(t)
	c := NewCycleAllocator(p, 0)

	for i := 0; i < 10; i++ {
		if c.Allocate(1024, 0) == nil {
			t.Fatalf("allocation %d failed", i)
		}
	}
	c.Reset()

	if c.InUse() {
		t.Fatal("reset must release every arena")
	}
	if c.CycleAllocations() != 0 || c.CycleBytes() != 0 {
		t.Fatal("reset must clear cycle counters")
	}

	// The next allocation re-acquires exactly one arena.
	if c.Allocate(64, 0) == nil {
		t.Fatal("allocation after reset failed")
	}
	if got := len(c.arenas); got != 1 {
		t.Fatalf("arenas after reset = %d, want 1", got)
	}
}

func TestCycleAllocatorGrowsOnDemand(t *testing.T) {
	p := newTestPool(t)
	c := NewCycleAllocator(p, minArenaSize)

	first := c.Allocate(2048, 0)
	if first == nil {
		t.Fatal("first allocation failed")
	}
	// Larger than the remaining arena space: must acquire a fresh arena.
	second := c.Allocate(64*1024, 0)
	if second == nil {
		t.Fatal("second allocation failed")
	}
	if len(c.arenas) < 2 {
		t.Fatalf("arenas = %d, want >= 2", len(c.arenas))
	}
	if !c.HasSpaceFor(1, 1) {
		t.Fatal("fresh arena should have space")
	}
}

func TestCycleAllocatorWritable(t *testing.T) {
	p := newTestPool(t)
	c := NewCycleAllocator(p, 0)
	defer c.Reset()

	ptr := c.Allocate(4096, 64)
	if ptr == nil {
		t.Fatal("allocate failed")
	}
	buf := (*[4096]byte)(ptr)
	for i := range buf {
		buf[i] = byte(i)
	}
	if buf[0] != 0 || buf[255] != 255 {
		t.Fatal("arena memory not writable")
	}
}

func BenchmarkCycleAllocate(b *testing.B) {
	p, err := NewPool(Config{})
	if err != nil {
		b.Fatalf("NewPool: %v", err)
	}
	defer p.Close()
	c := NewCycleAllocator(p, 0)
	defer c.Reset()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if c.Allocate(128, 64) == nil {
			b.Fatal("allocate failed")
		}
		if i%10000 == 9999 {
			c.Reset()
		}
	}
}
