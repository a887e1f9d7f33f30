package eventlog

import (
	"bufio"
	"bytes"
	"io"
	"os"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

var ErrChecksumMismatch = errors.New("eventlog: frame checksum mismatch")

// ReaderOptions controls frame decoding.
type ReaderOptions struct {
	DisableChecksum bool
}

// Reader decodes journal frames sequentially without pacing. It is the
// building block for the archive tool; interactive consumers use Replayer.
type Reader struct {
	r         *bufio.Reader
	opts      ReaderOptions
	headerBuf []byte
	payload   []byte
}

// NewReader wraps an io.Reader positioned after the file prefix.
func NewReader(r io.Reader, opts ReaderOptions) *Reader {
	return &Reader{
		r:         bufio.NewReader(r),
		opts:      opts,
		headerBuf: make([]byte, frameHeaderSize),
	}
}

// Next returns the next frame header and payload.
// The payload is only valid until the next call to Next.
func (r *Reader) Next() (Frame, []byte, error) {
	n, err := io.ReadFull(r.r, r.headerBuf)
	if err != nil {
		if err == io.EOF && n == 0 {
			return Frame{}, nil, io.EOF
		}
		if err == io.ErrUnexpectedEOF {
			return Frame{}, nil, io.EOF
		}
		return Frame{}, nil, err
	}

	frame, err := decodeFrame(r.headerBuf)
	if err != nil {
		return frame, nil, err
	}
	if frame.PayloadSize > maxPayloadSize {
		return frame, nil, ErrPayloadTooLarge
	}

	if frame.PayloadSize > 0 {
		if cap(r.payload) < int(frame.PayloadSize) {
			r.payload = make([]byte, frame.PayloadSize)
		}
		r.payload = r.payload[:frame.PayloadSize]
		if _, err := io.ReadFull(r.r, r.payload); err != nil {
			return frame, nil, io.EOF
		}
	} else {
		r.payload = r.payload[:0]
	}

	if !r.opts.DisableChecksum && !Verify(frame, r.payload) {
		return frame, r.payload, ErrChecksumMismatch
	}
	return frame, r.payload, nil
}

// ReadFile walks every frame of a binary journal, skipping the prefix, and
// hands each to fn. A fn error stops the walk and is returned.
func ReadFile(path string, opts ReaderOptions, fn func(Frame, []byte) error) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open journal "+path)
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	prefix, err := reader.Peek(len(Magic))
	if err == nil && bytes.Equal(prefix, []byte(Magic)) {
		if _, err := reader.Discard(len(Magic)); err != nil {
			return err
		}
	}

	r := &Reader{r: reader, opts: opts, headerBuf: make([]byte, frameHeaderSize)}
	for {
		frame, payload, err := r.Next()
		if err == io.EOF {
			return nil
		}
		// A checksum fault warns but the frame is still handed on, so the
		// archive keeps the complete recorded stream.
		if err == ErrChecksumMismatch {
			logs.Warnf("journal: CRC mismatch on sequence %d in %s", frame.Sequence, path)
		} else if err != nil {
			return err
		}
		if err := fn(frame, payload); err != nil {
			return err
		}
	}
}
