/*
Shm moves fixed-size records between two processes over named shared-memory
segments with bounded per-operation latency.

# Module
  - segment: named, memory-mapped region with owner/opener lifecycle
  - ring: lock-free SPSC queue of 128-byte records with batch I/O
  - manager: the three process channels (market data, signals, control)

# Source
  - records published by the scheduled producer tasks

# Produce
  - identical byte images observed by the consumer process

# Sharded
  - one producer and one consumer per ring; concurrent same-side access is
    out of contract
*/
package shm

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/yanun0323/errors"
	"golang.org/x/sys/unix"
)

// shmDir is where POSIX shared-memory objects appear on Linux.
const shmDir = "/dev/shm"

// Segment is one named, memory-mapped region. The owner creates and unlinks
// the name; openers only map it.
type Segment struct {
	name  string
	path  string
	mem   []byte
	owner bool
}

func segmentPath(name string) (string, error) {
	trimmed := strings.TrimPrefix(name, "/")
	if trimmed == "" || strings.ContainsRune(trimmed, '/') {
		return "", ErrEmptyName
	}
	return filepath.Join(shmDir, trimmed), nil
}

// CreateSegment exclusively creates a shared-memory object of the given size
// and maps it. The fresh mapping is zero-filled by the kernel.
func CreateSegment(name string, size int) (*Segment, error) {
	path, err := segmentPath(name)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, ErrSegmentSize
	}

	fd, err := unix.Open(path, unix.O_CREAT|unix.O_EXCL|unix.O_RDWR, 0o600)
	if err != nil {
		return nil, errors.Wrap(err, "create shm object "+name)
	}
	defer unix.Close(fd)

	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		_ = os.Remove(path)
		return nil, errors.Wrap(err, "size shm object "+name)
	}
	mem, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = os.Remove(path)
		return nil, errors.Wrap(err, "map shm object "+name)
	}
	return &Segment{name: name, path: path, mem: mem, owner: true}, nil
}

// OpenSegment maps an existing shared-memory object and verifies its size.
func OpenSegment(name string, size int) (*Segment, error) {
	path, err := segmentPath(name)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, ErrSegmentSize
	}

	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, errors.Wrap(err, "open shm object "+name)
	}
	defer unix.Close(fd)

	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		return nil, errors.Wrap(err, "stat shm object "+name)
	}
	if stat.Size < int64(size) {
		return nil, ErrSegmentSize
	}
	mem, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrap(err, "map shm object "+name)
	}
	return &Segment{name: name, path: path, mem: mem}, nil
}

// Bytes exposes the mapped region.
func (s *Segment) Bytes() []byte { return s.mem }

// Name returns the segment's shared name.
func (s *Segment) Name() string { return s.name }

// Owner reports whether this end created the segment.
func (s *Segment) Owner() bool { return s.owner }

// Close unmaps the region. The owner also unlinks the name; openers never do.
func (s *Segment) Close() error {
	if s.mem == nil {
		return ErrClosed
	}
	err := unix.Munmap(s.mem)
	s.mem = nil
	if s.owner {
		if rmErr := os.Remove(s.path); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
			err = rmErr
		}
	}
	return err
}
