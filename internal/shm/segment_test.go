package shm

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSegmentLifecycle(t *testing.T) {
	name := testSegName(t, "seg")
	seg, err := CreateSegment(name, 4096)
	if err != nil {
		t.Fatalf("CreateSegment: %v", err)
	}
	if !seg.Owner() {
		t.Fatal("creator must be owner")
	}
	if len(seg.Bytes()) != 4096 {
		t.Fatalf("mapped size = %d, want 4096", len(seg.Bytes()))
	}

	// Exclusive creation: a second create on the same name must fail.
	if _, err := CreateSegment(name, 4096); err == nil {
		t.Fatal("duplicate create must fail")
	}

	other, err := OpenSegment(name, 4096)
	if err != nil {
		t.Fatalf("OpenSegment: %v", err)
	}
	if other.Owner() {
		t.Fatal("opener must not be owner")
	}

	seg.Bytes()[100] = 0xAB
	if other.Bytes()[100] != 0xAB {
		t.Fatal("mappings do not share bytes")
	}

	// Non-owner close must not unlink the name.
	if err := other.Close(); err != nil {
		t.Fatalf("opener close: %v", err)
	}
	path := filepath.Join(shmDir, name[1:])
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("name unlinked by non-owner: %v", err)
	}

	// Owner close unlinks.
	if err := seg.Close(); err != nil {
		t.Fatalf("owner close: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected name removed, got %v", err)
	}
}

func TestSegmentNameValidation(t *testing.T) {
	if _, err := CreateSegment("", 4096); err != ErrEmptyName {
		t.Fatalf("empty name: got %v", err)
	}
	if _, err := CreateSegment("/a/b", 4096); err != ErrEmptyName {
		t.Fatalf("nested name: got %v", err)
	}
	if _, err := CreateSegment("/ok", 0); err != ErrSegmentSize {
		t.Fatalf("zero size: got %v", err)
	}
}

func TestOpenSegmentSizeMismatch(t *testing.T) {
	name := testSegName(t, "size")
	seg, err := CreateSegment(name, 4096)
	if err != nil {
		t.Fatalf("CreateSegment: %v", err)
	}
	defer seg.Close()

	if _, err := OpenSegment(name, 8192); err != ErrSegmentSize {
		t.Fatalf("oversized open: got %v", err)
	}
}
