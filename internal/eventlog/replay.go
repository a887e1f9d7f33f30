package eventlog

import (
	"bufio"
	"bytes"
	"io"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

var (
	ErrNilCallback      = errors.New("eventlog: nil replay callback")
	ErrAlreadyReplaying = errors.New("eventlog: replay already running")
)

const pausePollInterval = time.Millisecond

// Callback receives each replayed frame. The payload slice is only valid for
// the duration of the call.
type Callback func(Frame, []byte)

type replaySession struct {
	stopCh chan struct{}
	once   sync.Once
}

func (s *replaySession) requestStop() {
	s.once.Do(func() { close(s.stopCh) })
}

// Replayer reads a binary journal and dispatches frames to a callback under
// virtual-time pacing. One worker goroutine; pause, resume, and stop are
// observed at every iteration.
type Replayer struct {
	path string
	cb   Callback

	speedBits  atomic.Uint64
	replaying  atomic.Bool
	paused     atomic.Bool
	currentSeq atomic.Uint64

	mu      sync.Mutex
	session *replaySession
	wg      sync.WaitGroup
}

// NewReplayer binds a replayer to an existing journal file. Speed 1 realizes
// the original spacing, >1 compresses, 0 single-steps; negative speeds clamp
// to 0.
func NewReplayer(path string, cb Callback, speed float64) (*Replayer, error) {
	if cb == nil {
		return nil, ErrNilCallback
	}
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrap(err, "stat journal "+path)
	}
	r := &Replayer{path: path, cb: cb}
	r.SetSpeed(speed)
	return r, nil
}

// SetSpeed changes the pacing factor; negative values clamp to 0.
func (r *Replayer) SetSpeed(speed float64) {
	if speed < 0 {
		speed = 0
	}
	r.speedBits.Store(math.Float64bits(speed))
}

// Speed returns the current pacing factor.
func (r *Replayer) Speed() float64 {
	return math.Float64frombits(r.speedBits.Load())
}

// Start launches replay from the first event with sequence >= startSeq.
// Concurrent starts are rejected; starting again after Stop is legal.
func (r *Replayer) Start(startSeq uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.replaying.CompareAndSwap(false, true) {
		return ErrAlreadyReplaying
	}
	r.paused.Store(false)
	r.session = &replaySession{stopCh: make(chan struct{})}
	r.wg.Add(1)
	go r.run(r.session, startSeq)
	return nil
}

// Pause suspends dispatch before the next event.
func (r *Replayer) Pause() {
	if r.replaying.Load() {
		r.paused.Store(true)
	}
}

// Resume releases a paused replay.
func (r *Replayer) Resume() { r.paused.Store(false) }

// Stop halts the worker and joins it. Idempotent.
func (r *Replayer) Stop() {
	r.mu.Lock()
	session := r.session
	r.mu.Unlock()
	if session == nil {
		return
	}
	r.paused.Store(false)
	session.requestStop()
	r.wg.Wait()
}

// Replaying reports whether the worker is active.
func (r *Replayer) Replaying() bool { return r.replaying.Load() }

// Paused reports whether dispatch is suspended.
func (r *Replayer) Paused() bool { return r.paused.Load() }

// CurrentSequence returns the sequence of the last dispatched frame.
func (r *Replayer) CurrentSequence() uint64 { return r.currentSeq.Load() }

func (r *Replayer) run(session *replaySession, startSeq uint64) {
	defer func() {
		r.replaying.Store(false)
		r.paused.Store(false)
		r.wg.Done()
	}()

	file, err := os.Open(r.path)
	if err != nil {
		logs.Errorf("replay open failed: %+v", err)
		return
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	prefix := make([]byte, len(Magic))
	if _, err := io.ReadFull(reader, prefix); err != nil || !bytes.Equal(prefix, []byte(Magic)) {
		// Unknown or legacy file: read from byte 0 and let frame sanity
		// checks decide.
		logs.Warn("replay: journal prefix missing or unknown in " + r.path)
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			logs.Errorf("replay seek failed: %+v", err)
			return
		}
		reader.Reset(file)
	}

	var (
		headerBuf  = make([]byte, frameHeaderSize)
		payload    []byte
		anchorHost time.Time
		firstTs    uint64
		anchored   bool
	)

	for {
		select {
		case <-session.stopCh:
			return
		default:
		}

		n, err := io.ReadFull(reader, headerBuf)
		if err != nil {
			if err == io.EOF && n == 0 {
				return
			}
			if err == io.ErrUnexpectedEOF || err == io.EOF {
				logs.Warn("replay: truncated frame at end of journal")
				return
			}
			logs.Errorf("replay read failed: %+v", err)
			return
		}
		frame, err := decodeFrame(headerBuf)
		if err != nil {
			logs.Errorf("replay decode failed: %+v", err)
			return
		}
		if frame.PayloadSize > maxPayloadSize {
			logs.Errorf("replay: payload size %d exceeds sanity ceiling; aborting for suspected corruption", frame.PayloadSize)
			return
		}

		if cap(payload) < int(frame.PayloadSize) {
			payload = make([]byte, frame.PayloadSize)
		}
		payload = payload[:frame.PayloadSize]
		if len(payload) > 0 {
			if _, err := io.ReadFull(reader, payload); err != nil {
				logs.Warn("replay: truncated payload at end of journal")
				return
			}
		}

		if frame.Sequence < startSeq {
			continue
		}
		if !anchored {
			anchorHost = time.Now()
			firstTs = frame.TimestampNs
			anchored = true
		}

		if speed := r.Speed(); speed > 0 {
			offset := time.Duration(float64(frame.TimestampNs-firstTs) / speed)
			if !r.sleepUntil(session, anchorHost.Add(offset)) {
				return
			}
		}
		if !r.waitWhilePaused(session) {
			return
		}

		// Integrity faults warn but never stop replay; the frame is still
		// delivered so the consumer sees the full recorded stream.
		if !Verify(frame, payload) {
			logs.Warnf("replay: CRC mismatch on sequence %d", frame.Sequence)
		}

		r.currentSeq.Store(frame.Sequence)
		r.cb(frame, payload)

		// Speed zero single-steps: pause after every dispatched event.
		if r.Speed() == 0 {
			r.paused.Store(true)
		}
	}
}

func (r *Replayer) sleepUntil(session *replaySession, target time.Time) bool {
	d := time.Until(target)
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-session.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

func (r *Replayer) waitWhilePaused(session *replaySession) bool {
	for r.paused.Load() {
		select {
		case <-session.stopCh:
			return false
		case <-time.After(pausePollInterval):
		}
	}
	return true
}
