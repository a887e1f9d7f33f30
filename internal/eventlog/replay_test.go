package eventlog

import (
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"main/internal/schema"
)

func writeJournal(t *testing.T, count int) (string, [][]byte) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.bin")
	l, err := NewLogger(path, FormatBinary)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	payloads := make([][]byte, count)
	for i := range payloads {
		payloads[i] = make([]byte, rand.Intn(4097))
		rand.Read(payloads[i])
		l.Log(schema.EventCustomBase, payloads[i])
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return path, payloads
}

type collector struct {
	mu     sync.Mutex
	frames []Frame
	bodies [][]byte
}

func (c *collector) cb(f Frame, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	c.bodies = append(c.bodies, bytes.Clone(payload))
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func waitReplayDone(t *testing.T, r *Replayer) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for r.Replaying() {
		if time.Now().After(deadline) {
			t.Fatal("replay did not finish")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestReplayRoundTrip(t *testing.T) {
	const count = 1000
	path, payloads := writeJournal(t, count)

	var c collector
	r, err := NewReplayer(path, c.cb, 1000)
	if err != nil {
		t.Fatalf("NewReplayer: %v", err)
	}
	if err := r.Start(0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitReplayDone(t, r)

	if got := c.count(); got != count {
		t.Fatalf("callbacks = %d, want %d", got, count)
	}
	for i, f := range c.frames {
		if f.Sequence != uint64(i) {
			t.Fatalf("frame %d has sequence %d", i, f.Sequence)
		}
		if !Verify(f, c.bodies[i]) {
			t.Fatalf("frame %d CRC does not verify", i)
		}
		if !bytes.Equal(c.bodies[i], payloads[i]) {
			t.Fatalf("frame %d payload mismatch", i)
		}
	}
}

func TestReplayStartSeq(t *testing.T) {
	path, _ := writeJournal(t, 100)

	var c collector
	r, err := NewReplayer(path, c.cb, 0)
	if err != nil {
		t.Fatalf("NewReplayer: %v", err)
	}
	r.SetSpeed(1000)
	if err := r.Start(90); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitReplayDone(t, r)

	if got := c.count(); got != 10 {
		t.Fatalf("callbacks = %d, want 10", got)
	}
	if c.frames[0].Sequence != 90 {
		t.Fatalf("first sequence = %d, want 90", c.frames[0].Sequence)
	}
}

func TestReplaySingleStep(t *testing.T) {
	path, _ := writeJournal(t, 5)

	var c collector
	r, err := NewReplayer(path, c.cb, 0)
	if err != nil {
		t.Fatalf("NewReplayer: %v", err)
	}
	if err := r.Start(0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop()

	// Speed zero pauses after every event: exactly one callback per Resume.
	for step := 1; step <= 5; step++ {
		deadline := time.Now().Add(2 * time.Second)
		for c.count() < step {
			if time.Now().After(deadline) {
				t.Fatalf("step %d never dispatched", step)
			}
			time.Sleep(time.Millisecond)
		}
		time.Sleep(5 * time.Millisecond)
		if got := c.count(); got != step {
			t.Fatalf("dispatched %d events after step %d", got, step)
		}
		if !r.Paused() && r.Replaying() {
			t.Fatalf("replayer not paused after step %d", step)
		}
		r.Resume()
	}
	waitReplayDone(t, r)
}

func TestReplayPauseResumeStop(t *testing.T) {
	// Synthetic timestamps 10 ms apart: at speed 1 the replay spans ~10 s,
	// which leaves ample time to pause and stop mid-flight.
	path := filepath.Join(t.TempDir(), "events.bin")
	var fakeNs uint64
	l, err := NewLogger(path, FormatBinary, WithClock(func() uint64 {
		fakeNs += uint64(10 * time.Millisecond)
		return fakeNs
	}))
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	for i := 0; i < 1000; i++ {
		l.Log(schema.EventInfo, []byte("tick"))
	}
	l.Close()

	var c collector
	r, err := NewReplayer(path, c.cb, 1)
	if err != nil {
		t.Fatalf("NewReplayer: %v", err)
	}
	if err := r.Start(0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Start(0); err != ErrAlreadyReplaying {
		t.Fatalf("concurrent start: got %v", err)
	}

	r.Pause()
	if !r.Paused() {
		t.Fatal("expected paused")
	}
	r.Stop()
	r.Stop() // idempotent
	if r.Replaying() {
		t.Fatal("expected stopped")
	}

	// Start after stop is legal.
	r.SetSpeed(1000)
	if err := r.Start(0); err != nil {
		t.Fatalf("restart: %v", err)
	}
	waitReplayDone(t, r)
	if c.count() == 0 {
		t.Fatal("restarted replay dispatched nothing")
	}
}

func TestReplaySpeedClamp(t *testing.T) {
	path, _ := writeJournal(t, 1)
	r, err := NewReplayer(path, func(Frame, []byte) {}, -5)
	if err != nil {
		t.Fatalf("NewReplayer: %v", err)
	}
	if got := r.Speed(); got != 0 {
		t.Fatalf("negative speed clamped to %v, want 0", got)
	}
}

func TestReplayCRCMismatchStillDispatches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.bin")
	l, err := NewLogger(path, FormatBinary)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	for i := 0; i < 3; i++ {
		l.Log(schema.EventCustomBase, []byte("payload"))
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Corrupt a payload byte of the second frame.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	off := len(Magic)
	f0, _ := decodeFrame(data[off:])
	off += frameHeaderSize + int(f0.PayloadSize)
	data[off+frameHeaderSize] ^= 0xFF
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("rewrite journal: %v", err)
	}

	var c collector
	r, err := NewReplayer(path, c.cb, 1000)
	if err != nil {
		t.Fatalf("NewReplayer: %v", err)
	}
	if err := r.Start(0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitReplayDone(t, r)

	// A CRC mismatch warns but does not stop replay or drop the frame.
	if got := c.count(); got != 3 {
		t.Fatalf("callbacks = %d, want 3 (corrupt frame still delivered)", got)
	}
	for i, f := range c.frames {
		if f.Sequence != uint64(i) {
			t.Fatalf("frame %d has sequence %d", i, f.Sequence)
		}
	}
	if Verify(c.frames[1], c.bodies[1]) {
		t.Fatal("second frame should fail verification")
	}
	if !Verify(c.frames[0], c.bodies[0]) || !Verify(c.frames[2], c.bodies[2]) {
		t.Fatal("intact frames should verify")
	}
	if got := r.CurrentSequence(); got != 2 {
		t.Fatalf("current sequence = %d, want 2", got)
	}
}

func TestReplayUnknownPrefix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.log")
	if err := os.WriteFile(path, []byte("timestamp,sequence,kind\n"), 0o644); err != nil {
		t.Fatalf("write legacy file: %v", err)
	}

	var c collector
	r, err := NewReplayer(path, c.cb, 1000)
	if err != nil {
		t.Fatalf("NewReplayer: %v", err)
	}
	if err := r.Start(0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitReplayDone(t, r)
	if c.count() != 0 {
		t.Fatal("legacy file must replay nothing useful")
	}
}

func TestReplayMissingFile(t *testing.T) {
	if _, err := NewReplayer(filepath.Join(t.TempDir(), "absent.bin"), func(Frame, []byte) {}, 1); err == nil {
		t.Fatal("expected setup error for missing journal")
	}
	if _, err := NewReplayer("x", nil, 1); err != ErrNilCallback {
		t.Fatalf("nil callback: got %v", err)
	}
}
