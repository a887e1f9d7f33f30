// Package archive loads journal frames into Postgres for offline analysis.
// It is strictly an offline tool path; nothing here runs inside the
// scheduled process.
package archive

import (
	"gorm.io/gorm"

	"main/internal/eventlog"
)

const defaultBatchSize = 500

// EventRow is the persisted form of one journal frame.
type EventRow struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	Sequence    uint64 `gorm:"index"`
	TimestampNs uint64 `gorm:"index"`
	Kind        uint32
	PayloadSize uint32
	CRC         uint32
	Payload     []byte
}

// TableName pins the table the archiver writes to.
func (EventRow) TableName() string { return "journal_events" }

// Archiver batches frames into Postgres.
type Archiver struct {
	db        *gorm.DB
	batch     []EventRow
	batchSize int
	stored    uint64
}

// NewArchiver migrates the schema and prepares a batch writer.
func NewArchiver(db *gorm.DB, batchSize int) (*Archiver, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if err := db.AutoMigrate(&EventRow{}); err != nil {
		return nil, err
	}
	return &Archiver{
		db:        db,
		batch:     make([]EventRow, 0, batchSize),
		batchSize: batchSize,
	}, nil
}

// Append buffers one frame, flushing when the batch fills.
func (a *Archiver) Append(frame eventlog.Frame, payload []byte) error {
	row := EventRow{
		Sequence:    frame.Sequence,
		TimestampNs: frame.TimestampNs,
		Kind:        uint32(frame.Kind),
		PayloadSize: frame.PayloadSize,
		CRC:         frame.CRC,
	}
	if len(payload) > 0 {
		row.Payload = append([]byte(nil), payload...)
	}
	a.batch = append(a.batch, row)
	if len(a.batch) >= a.batchSize {
		return a.Flush()
	}
	return nil
}

// Flush writes the pending batch.
func (a *Archiver) Flush() error {
	if len(a.batch) == 0 {
		return nil
	}
	if err := a.db.Create(&a.batch).Error; err != nil {
		return err
	}
	a.stored += uint64(len(a.batch))
	a.batch = a.batch[:0]
	return nil
}

// Stored reports rows written so far.
func (a *Archiver) Stored() uint64 { return a.stored }

// ArchiveFile walks a binary journal into the database.
func (a *Archiver) ArchiveFile(path string) error {
	err := eventlog.ReadFile(path, eventlog.ReaderOptions{}, a.Append)
	if err != nil {
		return err
	}
	return a.Flush()
}
