package shm

import "errors"

var (
	ErrEmptyName         = errors.New("shm: empty segment name")
	ErrSegmentSize       = errors.New("shm: segment size mismatch")
	ErrInitTimeout       = errors.New("shm: timed out waiting for segment initialization")
	ErrInvalidCapacity   = errors.New("shm: capacity must be a power of two >= 64")
	ErrInvalidRecordSize = errors.New("shm: record type must be exactly one slot wide")
	ErrClosed            = errors.New("shm: segment closed")
)
