/*
Eventlog appends typed, checksummed events to an append-only journal and
replays them under virtual-time pacing.

# Module
  - logger: mutex-serialized frame writer, binary or text variant
  - replay: single-threaded engine pacing frames to a consumer callback

# Source
  - audit entries from scheduled tasks and the supervisor

# Produce
  - journal files consumed by the replay engine and the archive tool

# Sharded
  - one writer per file; replayers attach after the writer has flushed
*/
package eventlog

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
	"unicode"
	"unsafe"

	"github.com/yanun0323/errors"

	"main/internal/bus"
	"main/internal/schema"
)

// Format selects the journal variant. Text is a diagnostic sink; only the
// binary variant replays.
type Format int

const (
	FormatBinary Format = iota
	FormatText
)

// Fault reports one dropped frame on the out-of-band channel.
type Fault struct {
	Sequence uint64
	Kind     schema.EventKind
	Err      error
}

// Logger appends frames to the journal. Writes are serialized under the
// logger mutex; sequence numbers are strictly increasing from 0 and advance
// even when a frame is dropped.
type Logger struct {
	mu     sync.Mutex
	file   *os.File
	buf    *bufio.Writer
	path   string
	format Format

	sequence atomic.Uint64

	totalEvents atomic.Uint64
	totalBytes  atomic.Uint64
	drops       atomic.Uint64

	firstErr atomic.Value
	faults   *bus.Queue[Fault]

	headerBuf [frameHeaderSize]byte
	clockNs   func() uint64
}

// Option tweaks logger construction.
type Option func(*Logger)

// WithFaultQueue routes dropped-frame reports to the given queue.
func WithFaultQueue(q *bus.Queue[Fault]) Option {
	return func(l *Logger) { l.faults = q }
}

// WithClock overrides the timestamp source.
func WithClock(clock func() uint64) Option {
	return func(l *Logger) {
		if clock != nil {
			l.clockNs = clock
		}
	}
}

// NewLogger opens (or creates) the journal file and writes the magic prefix
// when the file is empty.
func NewLogger(path string, format Format, opts ...Option) (*Logger, error) {
	l := &Logger{
		path:    path,
		format:  format,
		clockNs: nowNs,
	}
	for _, opt := range opts {
		opt(l)
	}
	if err := l.open(path); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Logger) open(path string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrap(err, "open journal "+path)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return errors.Wrap(err, "stat journal "+path)
	}
	buf := bufio.NewWriter(file)
	if info.Size() == 0 && l.format == FormatBinary {
		if _, err := buf.WriteString(Magic); err != nil {
			_ = file.Close()
			return errors.Wrap(err, "write journal prefix")
		}
		l.totalBytes.Add(uint64(len(Magic)))
	}
	l.file = file
	l.buf = buf
	l.path = path
	return nil
}

// Log appends one typed payload. The frame is flushed to the OS before Log
// returns so co-process readers observe it promptly. A write failure drops
// the frame, reports it out of band, and still consumes a sequence number.
func (l *Logger) Log(kind schema.EventKind, payload []byte) uint64 {
	seq := l.sequence.Add(1) - 1

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		l.drop(seq, kind, errors.New("eventlog: logger closed"))
		return seq
	}

	frame := Frame{
		TimestampNs: l.clockNs(),
		Sequence:    seq,
		Kind:        kind,
		PayloadSize: uint32(len(payload)),
		CRC:         Checksum(payload),
	}

	var err error
	if l.format == FormatText {
		err = l.writeText(frame, payload)
	} else {
		err = l.writeBinary(frame, payload)
	}
	if err == nil {
		err = l.buf.Flush()
	}
	if err != nil {
		l.drop(seq, kind, err)
		return seq
	}

	l.totalEvents.Add(1)
	l.totalBytes.Add(uint64(frameHeaderSize + len(payload)))
	return seq
}

func (l *Logger) writeBinary(frame Frame, payload []byte) error {
	encodeFrame(l.headerBuf[:], frame)
	if _, err := l.buf.Write(l.headerBuf[:]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := l.buf.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

func (l *Logger) writeText(frame Frame, payload []byte) error {
	body := payloadText(payload)
	_, err := fmt.Fprintf(l.buf, "%d,%d,%d,%d,%d,%s\n",
		frame.TimestampNs, frame.Sequence, uint32(frame.Kind), frame.PayloadSize, frame.CRC, body)
	return err
}

// payloadText renders printable payloads verbatim and everything else as hex.
func payloadText(payload []byte) string {
	for _, b := range payload {
		if b > unicode.MaxASCII || (!unicode.IsPrint(rune(b)) && b != ' ') {
			return fmt.Sprintf("%x", payload)
		}
	}
	return string(payload)
}

// Rotate flushes and closes the current file, then continues on a fresh one.
// The sequence counter carries across files.
func (l *Logger) Rotate(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		if err := l.buf.Flush(); err != nil {
			return errors.Wrap(err, "flush before rotate")
		}
		if err := l.file.Close(); err != nil {
			return errors.Wrap(err, "close before rotate")
		}
		l.file = nil
	}
	return l.open(path)
}

// Close flushes and closes the journal.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	flushErr := l.buf.Flush()
	closeErr := l.file.Close()
	l.file = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// Typed helpers mirror the event kinds the runtime emits.

// LogMarketData journals the raw record bytes.
func (l *Logger) LogMarketData(msg *schema.MarketDataMessage) uint64 {
	return l.Log(schema.EventMarketDataUpdate, recordBytes(unsafe.Pointer(msg)))
}

// LogSignal journals the raw record bytes.
func (l *Logger) LogSignal(sig *schema.TradingSignalMessage) uint64 {
	return l.Log(schema.EventTradingSignalGenerated, recordBytes(unsafe.Pointer(sig)))
}

// LogControl journals the raw record bytes.
func (l *Logger) LogControl(msg *schema.ControlMessage) uint64 {
	return l.Log(schema.EventControlMessageReceived, recordBytes(unsafe.Pointer(msg)))
}

// LogStatus journals a system status change.
func (l *Logger) LogStatus(status string) uint64 {
	return l.Log(schema.EventSystemStatusChange, []byte(status))
}

// LogMetric journals one named performance sample.
func (l *Logger) LogMetric(name string, value float64) uint64 {
	payload := name + "=" + strconv.FormatFloat(value, 'g', -1, 64)
	return l.Log(schema.EventPerformanceMetric, []byte(payload))
}

// LogError journals an error-level message.
func (l *Logger) LogError(msg string) uint64 { return l.Log(schema.EventError, []byte(msg)) }

// LogWarning journals a warning-level message.
func (l *Logger) LogWarning(msg string) uint64 { return l.Log(schema.EventWarning, []byte(msg)) }

// LogInfo journals an info-level message.
func (l *Logger) LogInfo(msg string) uint64 { return l.Log(schema.EventInfo, []byte(msg)) }

// TotalEvents reports successfully journaled frames.
func (l *Logger) TotalEvents() uint64 { return l.totalEvents.Load() }

// TotalBytes reports bytes written including the prefix.
func (l *Logger) TotalBytes() uint64 { return l.totalBytes.Load() }

// Drops reports frames lost to stream errors.
func (l *Logger) Drops() uint64 { return l.drops.Load() }

// Err returns the first stream error observed, if any.
func (l *Logger) Err() error {
	if v := l.firstErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// Healthy reports whether the stream has seen no errors.
func (l *Logger) Healthy() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file != nil && l.firstErr.Load() == nil
}

func (l *Logger) drop(seq uint64, kind schema.EventKind, err error) {
	l.drops.Add(1)
	if l.firstErr.Load() == nil {
		l.firstErr.Store(err)
	}
	if l.faults != nil {
		_ = l.faults.TryPublish(Fault{Sequence: seq, Kind: kind, Err: err})
	}
}

func recordBytes(p unsafe.Pointer) []byte {
	return unsafe.Slice((*byte)(p), schema.MessageSize)
}

func nowNs() uint64 { return uint64(time.Now().UnixNano()) }
