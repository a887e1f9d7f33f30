package uds

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewStatusServerEmptyPath(t *testing.T) {
	if _, err := NewStatusServer("", func() ([]byte, error) { return nil, nil }); err != ErrEmptyPath {
		t.Fatalf("expected ErrEmptyPath, got %v", err)
	}
}

func TestQueryStatusEmptyPath(t *testing.T) {
	if _, err := QueryStatus("", time.Second); err != ErrEmptyPath {
		t.Fatalf("expected ErrEmptyPath, got %v", err)
	}
}

func TestRemoveIfExistsRejectsNonSocket(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "not-socket")
	if err := os.WriteFile(path, []byte("data"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := RemoveIfExists(path); err != ErrPathNotSocket {
		t.Fatalf("expected ErrPathNotSocket, got %v", err)
	}
}

func TestServeSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "status.sock")

	server, err := NewStatusServer(path, func() ([]byte, error) {
		return []byte(`{"healthy":true}`), nil
	})
	if err != nil {
		t.Fatalf("NewStatusServer: %v", err)
	}
	if err := server.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := server.Start(); err != ErrAlreadyListening {
		t.Fatalf("second Start: got %v", err)
	}

	body, err := QueryStatus(path, 2*time.Second)
	if err != nil {
		t.Fatalf("QueryStatus: %v", err)
	}
	if string(body) != `{"healthy":true}` {
		t.Fatalf("snapshot = %q", body)
	}

	// Every connection gets a fresh snapshot.
	body, err = QueryStatus(path, 2*time.Second)
	if err != nil {
		t.Fatalf("second QueryStatus: %v", err)
	}
	if len(body) == 0 {
		t.Fatal("empty second snapshot")
	}

	if err := server.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected socket path removed, got %v", err)
	}
}
