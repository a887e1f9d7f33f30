package mempool

import (
	"testing"
	"unsafe"
)

func newTestPool(t *testing.T) *Pool {
	t.Helper()
	p, err := NewPool(Config{InitialSize: 1 << 20, ChunkSize: 1 << 20})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(p.Close)
	return p
}

func TestAllocateAlignment(t *testing.T) {
	p := newTestPool(t)

	type span struct{ start, end uintptr }
	var spans []span

	const count = 100
	ptrs := make([]unsafe.Pointer, 0, count)
	for i := 0; i < count; i++ {
		ptr := p.Allocate(200, 128)
		if ptr == nil {
			t.Fatalf("allocation %d failed", i)
		}
		addr := uintptr(ptr)
		if addr%128 != 0 {
			t.Fatalf("allocation %d not 128-aligned: %#x", i, addr)
		}
		for _, s := range spans {
			if addr < s.end && addr+200 > s.start {
				t.Fatalf("allocation %d overlaps span [%#x, %#x)", i, s.start, s.end)
			}
		}
		spans = append(spans, span{addr, addr + 200})
		ptrs = append(ptrs, ptr)
	}

	if got := p.AllocationCount(); got != count {
		t.Fatalf("allocation count = %d, want %d", got, count)
	}

	for _, ptr := range ptrs {
		p.Release(ptr)
	}
	if got := p.DeallocationCount(); got != count {
		t.Fatalf("deallocation count = %d, want %d", got, count)
	}
}

func TestAllocateReleaseRoundTrip(t *testing.T) {
	p := newTestPool(t)

	first := p.Allocate(256, 0)
	if first == nil {
		t.Fatal("allocate failed")
	}
	allocatedAfterFirst := p.TotalAllocated()
	p.Release(first)

	second := p.Allocate(256, 0)
	if second == nil {
		t.Fatal("second allocate failed")
	}
	if got := p.TotalAllocated(); got != allocatedAfterFirst {
		t.Fatalf("allocated bytes = %d after re-allocate, want %d", got, allocatedAfterFirst)
	}
	p.Release(second)

	if p.AllocationCount() != 2 || p.DeallocationCount() != 2 {
		t.Fatalf("counters = %d/%d, want 2/2", p.AllocationCount(), p.DeallocationCount())
	}
	if p.TotalAllocated() != 0 {
		t.Fatalf("allocated bytes = %d after release, want 0", p.TotalAllocated())
	}
}

func TestDoubleFreeIgnored(t *testing.T) {
	p := newTestPool(t)

	ptr := p.Allocate(64, 0)
	if ptr == nil {
		t.Fatal("allocate failed")
	}
	p.Release(ptr)
	p.Release(ptr)
	if got := p.DeallocationCount(); got != 1 {
		t.Fatalf("deallocation count = %d after double free, want 1", got)
	}
}

func TestForeignPointerIgnored(t *testing.T) {
	p := newTestPool(t)

	local := make([]byte, 64)
	p.Release(unsafe.Pointer(&local[0]))
	if got := p.DeallocationCount(); got != 0 {
		t.Fatalf("deallocation count = %d after foreign release, want 0", got)
	}
}

func TestOversizeRequestMapsNewChunk(t *testing.T) {
	p, err := NewPool(Config{InitialSize: 4096, ChunkSize: 4096})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer p.Close()

	ptr := p.Allocate(1<<20, 0)
	if ptr == nil {
		t.Fatal("oversize allocation failed")
	}
	b := (*[1 << 20]byte)(ptr)
	b[0] = 0xAA
	b[len(b)-1] = 0x55
	p.Release(ptr)
}

func TestZeroSizeAllocation(t *testing.T) {
	p := newTestPool(t)
	if ptr := p.Allocate(0, 0); ptr != nil {
		t.Fatal("zero-size allocation must fail")
	}
}

func TestSizeClassRouting(t *testing.T) {
	cases := []struct {
		size uintptr
		want int
	}{
		{1, 0},
		{64, 0},
		{65, 1},
		{128, 1},
		{129, 2},
		{64 << 14, 14},
		{1 << 30, NumSizeClasses - 1},
	}
	for _, tc := range cases {
		if got := sizeClass(tc.size); got != tc.want {
			t.Fatalf("sizeClass(%d) = %d, want %d", tc.size, got, tc.want)
		}
	}
}

func TestUtilization(t *testing.T) {
	p := newTestPool(t)
	if u := p.Utilization(); u != 0 {
		t.Fatalf("empty pool utilization = %v, want 0", u)
	}
	ptr := p.Allocate(4096, 0)
	if ptr == nil {
		t.Fatal("allocate failed")
	}
	if u := p.Utilization(); u <= 0 || u > 1 {
		t.Fatalf("utilization out of range: %v", u)
	}
	p.Release(ptr)
}

func BenchmarkAllocateRelease(b *testing.B) {
	p, err := NewPool(Config{})
	if err != nil {
		b.Fatalf("NewPool: %v", err)
	}
	defer p.Close()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ptr := p.Allocate(256, 64)
		if ptr == nil {
			b.Fatal("allocate failed")
		}
		p.Release(ptr)
	}
}
