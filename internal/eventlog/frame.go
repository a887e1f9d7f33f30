package eventlog

import (
	"encoding/binary"
	"errors"
	"hash/crc32"

	"main/internal/schema"
)

// Magic prefixes every binary journal file.
const Magic = "ALARISLOG_V1B"

const (
	frameHeaderSize = 28

	// maxPayloadSize is the replay-side sanity ceiling; a larger recorded
	// size means the file is corrupt.
	maxPayloadSize = 16 << 20
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

var (
	ErrPayloadTooLarge = errors.New("eventlog: payload exceeds sanity ceiling")
	ErrShortHeader     = errors.New("eventlog: short frame header")
)

// Frame is the fixed-layout header of one journal record.
type Frame struct {
	TimestampNs uint64
	Sequence    uint64
	Kind        schema.EventKind
	PayloadSize uint32
	CRC         uint32
}

// Checksum computes the payload CRC; the empty payload checksums to the
// CRC-32 of empty input.
func Checksum(payload []byte) uint32 {
	return crc32.Checksum(payload, crcTable)
}

// Verify reports whether the frame's recorded CRC matches its payload.
func Verify(f Frame, payload []byte) bool {
	return f.CRC == Checksum(payload)
}

func encodeFrame(dst []byte, f Frame) {
	_ = dst[frameHeaderSize-1]
	binary.LittleEndian.PutUint64(dst[0:8], f.TimestampNs)
	binary.LittleEndian.PutUint64(dst[8:16], f.Sequence)
	binary.LittleEndian.PutUint32(dst[16:20], uint32(f.Kind))
	binary.LittleEndian.PutUint32(dst[20:24], f.PayloadSize)
	binary.LittleEndian.PutUint32(dst[24:28], f.CRC)
}

func decodeFrame(src []byte) (Frame, error) {
	if len(src) < frameHeaderSize {
		return Frame{}, ErrShortHeader
	}
	return Frame{
		TimestampNs: binary.LittleEndian.Uint64(src[0:8]),
		Sequence:    binary.LittleEndian.Uint64(src[8:16]),
		Kind:        schema.EventKind(binary.LittleEndian.Uint32(src[16:20])),
		PayloadSize: binary.LittleEndian.Uint32(src[20:24]),
		CRC:         binary.LittleEndian.Uint32(src[24:28]),
	}, nil
}
