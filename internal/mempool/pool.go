/*
Mempool furnishes aligned, bounded-latency allocations for the scheduled hot
path without touching the Go heap or the system allocator.

# Module
  - pool: segregated-fit free lists over private anonymous mappings
  - cycle allocator: bump-pointer arenas acquired whole from the pool

# Source
  - scratch requests from scheduled tasks

# Produce
  - raw regions loaned to callers; returned on Release / cycle Reset

# Sharded
  - none; the pool is a single mutex-guarded instance
*/
package mempool

import (
	"os"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	// NumSizeClasses buckets requests from 64 B up to 2 MB; anything larger is
	// routed to the last class.
	NumSizeClasses = 16

	// MinAllocation is the class-0 granularity and the default alignment.
	MinAllocation = 64

	defaultChunkSize   = 16 * 1024 * 1024
	defaultInitialSize = 64 * 1024 * 1024

	blockMagic uint64 = 0xdeadbeefa110cbad
)

// blockHeader precedes every block's data area inside a chunk. Blocks tile a
// chunk completely, which is what makes the release-time walk valid.
type blockHeader struct {
	size      uint64
	sizeClass uint32
	free      uint32
	nextFree  uintptr
	magic     uint64
}

const headerSize = unsafe.Sizeof(blockHeader{})

// chunk is one page-aligned OS mapping owned by the pool for its entire life.
type chunk struct {
	mem   []byte
	base  uintptr
	size  uintptr
	arena bool
}

// Pool is a segregated-fit allocator. All public operations are safe for
// concurrent use; each acquires the pool mutex.
type Pool struct {
	mu        sync.Mutex
	chunks    []*chunk
	freeLists [NumSizeClasses]uintptr

	chunkSize uintptr
	pageSize  uintptr

	totalAllocated uintptr
	totalFree      uintptr

	allocationCount   atomic.Uint64
	deallocationCount atomic.Uint64
}

// Config sizes a pool. Zero values take defaults.
type Config struct {
	// InitialSize is mapped up front so steady-state allocation avoids mmap.
	InitialSize int
	// ChunkSize is the granularity of later OS requests.
	ChunkSize int
}

func (c Config) withDefaults() Config {
	if c.InitialSize == 0 {
		c.InitialSize = defaultInitialSize
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = defaultChunkSize
	}
	return c
}

// NewPool maps the initial chunk and prepares the free lists. A mapping
// failure here is a setup error; later mapping failures surface as nil
// allocations instead.
func NewPool(cfg Config) (*Pool, error) {
	cfg = cfg.withDefaults()
	p := &Pool{
		chunkSize: uintptr(cfg.ChunkSize),
		pageSize:  uintptr(os.Getpagesize()),
	}
	if cfg.InitialSize > 0 {
		if _, err := p.addChunk(uintptr(cfg.InitialSize)); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Close unmaps every chunk. All loaned pointers are invalidated.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.chunks {
		_ = unix.Munmap(c.mem)
	}
	p.chunks = nil
	for i := range p.freeLists {
		p.freeLists[i] = 0
	}
	p.totalAllocated = 0
	p.totalFree = 0
}

// Allocate returns a pointer aligned to align (power of two, default
// MinAllocation) to at least size bytes, or nil when neither the free lists
// nor a fresh mapping can satisfy the request. The returned pointer must be
// handed back to Release unchanged.
func (p *Pool) Allocate(size, align uintptr) unsafe.Pointer {
	if size == 0 {
		return nil
	}
	if align == 0 || align&(align-1) != 0 {
		align = MinAllocation
	}

	// Alignment slack must fit inside whatever block comes back.
	effective := size + align - 1

	p.mu.Lock()
	defer p.mu.Unlock()

	block := p.takeBlock(effective)
	if block == 0 {
		need := headerSize + effective
		if need < p.chunkSize {
			need = p.chunkSize
		}
		if _, err := p.addChunk(need); err != nil {
			return nil
		}
		block = p.takeBlock(effective)
		if block == 0 {
			return nil
		}
	}

	hdr := header(block)
	hdr.free = 0
	hdr.nextFree = 0
	p.totalAllocated += uintptr(hdr.size)
	p.totalFree -= uintptr(hdr.size)
	p.allocationCount.Add(1)

	data := block + headerSize
	return unsafe.Pointer(alignUp(data, align))
}

// Release returns a previously allocated pointer to its free list. Double
// frees and pointers the pool does not own are ignored.
func (p *Pool) Release(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	addr := uintptr(ptr)

	p.mu.Lock()
	defer p.mu.Unlock()

	c := p.chunkContaining(addr)
	if c == nil || c.arena {
		return
	}

	// Walk the block tiling; a bad magic means the tiling is corrupt and the
	// walk cannot continue safely.
	cursor := c.base
	end := c.base + c.size
	for cursor+headerSize <= end {
		hdr := header(cursor)
		if hdr.magic != blockMagic {
			return
		}
		dataStart := cursor + headerSize
		dataEnd := dataStart + uintptr(hdr.size)
		if addr >= dataStart && addr < dataEnd {
			if hdr.free != 0 {
				return
			}
			hdr.free = 1
			p.pushFree(cursor)
			p.totalAllocated -= uintptr(hdr.size)
			p.totalFree += uintptr(hdr.size)
			p.deallocationCount.Add(1)
			return
		}
		cursor = dataEnd
	}
}

// PreAllocate maps additional capacity ahead of time.
func (p *Pool) PreAllocate(bytes uintptr) error {
	if bytes == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.addChunk(bytes)
	return err
}

// Reset reinitializes every non-arena chunk as a single free block. Every
// loaned pointer is invalidated.
func (p *Pool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.freeLists {
		p.freeLists[i] = 0
	}
	p.totalAllocated = 0
	p.totalFree = 0
	for _, c := range p.chunks {
		if c.arena {
			continue
		}
		p.formatChunk(c)
	}
}

// TotalAllocated reports bytes currently loaned out.
func (p *Pool) TotalAllocated() uintptr {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalAllocated
}

// TotalFree reports bytes sitting on free lists.
func (p *Pool) TotalFree() uintptr {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalFree
}

// Utilization is allocated / (allocated + free), in [0, 1].
func (p *Pool) Utilization() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := p.totalAllocated + p.totalFree
	if total == 0 {
		return 0
	}
	return float64(p.totalAllocated) / float64(total)
}

// AllocationCount reports allocations served since construction.
func (p *Pool) AllocationCount() uint64 { return p.allocationCount.Load() }

// DeallocationCount reports releases accepted since construction.
func (p *Pool) DeallocationCount() uint64 { return p.deallocationCount.Load() }

// AllocateArena maps a dedicated chunk for bump allocation and returns its
// base and usable size. Arena chunks never feed the free lists.
func (p *Pool) AllocateArena(size uintptr) (unsafe.Pointer, uintptr) {
	if size == 0 {
		return nil, 0
	}
	mapped := alignUp(size, uintptr(os.Getpagesize()))
	mem, err := unix.Mmap(-1, 0, int(mapped), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, 0
	}
	c := &chunk{
		mem:   mem,
		base:  uintptr(unsafe.Pointer(&mem[0])),
		size:  mapped,
		arena: true,
	}
	p.mu.Lock()
	p.chunks = append(p.chunks, c)
	p.mu.Unlock()
	return unsafe.Pointer(c.base), mapped
}

// ReleaseArena returns an arena chunk to the OS. Unknown pointers are ignored.
func (p *Pool) ReleaseArena(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	addr := uintptr(ptr)
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, c := range p.chunks {
		if c.arena && c.base == addr {
			_ = unix.Munmap(c.mem)
			p.chunks = append(p.chunks[:i], p.chunks[i+1:]...)
			return
		}
	}
}

func (p *Pool) addChunk(minSize uintptr) (*chunk, error) {
	size := alignUp(minSize, p.pageSize)
	mem, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, err
	}
	c := &chunk{
		mem:  mem,
		base: uintptr(unsafe.Pointer(&mem[0])),
		size: size,
	}
	p.chunks = append(p.chunks, c)
	p.formatChunk(c)
	return c, nil
}

// formatChunk lays the chunk out as one free block spanning its usable area.
func (p *Pool) formatChunk(c *chunk) {
	dataSize := c.size - headerSize
	hdr := header(c.base)
	*hdr = blockHeader{
		size:      uint64(dataSize),
		sizeClass: uint32(sizeClass(dataSize)),
		free:      1,
		magic:     blockMagic,
	}
	p.pushFree(c.base)
	p.totalFree += dataSize
}

// takeBlock unlinks the first free block able to hold need bytes, splitting
// larger blocks when the remainder can host a header plus a class-0
// allocation. Free lists hold mixed sizes after splits, so each candidate's
// recorded size is checked, not just its class.
func (p *Pool) takeBlock(need uintptr) uintptr {
	for class := sizeClass(need); class < NumSizeClasses; class++ {
		prev := uintptr(0)
		for block := p.freeLists[class]; block != 0; {
			hdr := header(block)
			if uintptr(hdr.size) >= need {
				if prev == 0 {
					p.freeLists[class] = hdr.nextFree
				} else {
					header(prev).nextFree = hdr.nextFree
				}
				hdr.nextFree = 0
				p.splitBlock(block, need)
				return block
			}
			prev = block
			block = hdr.nextFree
		}
	}
	return 0
}

func (p *Pool) splitBlock(block, need uintptr) {
	hdr := header(block)
	remainder := uintptr(hdr.size) - need
	if remainder < headerSize+MinAllocation {
		return
	}

	restAddr := block + headerSize + need
	restSize := remainder - headerSize
	rest := header(restAddr)
	*rest = blockHeader{
		size:      uint64(restSize),
		sizeClass: uint32(sizeClass(restSize)),
		free:      1,
		magic:     blockMagic,
	}
	p.pushFree(restAddr)
	// The remainder's header is carved out of what was free space.
	p.totalFree -= headerSize

	hdr.size = uint64(need)
	hdr.sizeClass = uint32(sizeClass(need))
}

func (p *Pool) pushFree(block uintptr) {
	hdr := header(block)
	class := int(hdr.sizeClass)
	hdr.nextFree = p.freeLists[class]
	p.freeLists[class] = block
}

func (p *Pool) chunkContaining(addr uintptr) *chunk {
	for _, c := range p.chunks {
		if addr >= c.base && addr < c.base+c.size {
			return c
		}
	}
	return nil
}

func header(addr uintptr) *blockHeader {
	return (*blockHeader)(unsafe.Pointer(addr))
}

// sizeClass maps a request to the smallest class whose block size covers it.
// Requests beyond the largest class are routed to the largest class.
func sizeClass(size uintptr) int {
	classSize := uintptr(MinAllocation)
	for class := 0; class < NumSizeClasses-1; class++ {
		if size <= classSize {
			return class
		}
		classSize <<= 1
	}
	return NumSizeClasses - 1
}

func alignUp(v, align uintptr) uintptr {
	return (v + align - 1) &^ (align - 1)
}
