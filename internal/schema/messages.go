package schema

import "unsafe"

// MessageSize is the wire size of every IPC record. Records are padded to two
// cache lines so a slot never straddles a line boundary.
const MessageSize = 128

// MarketDataMessage carries one option quote update across the market data
// channel. All fields are naturally aligned; the trailing pad fixes the record
// at exactly MessageSize bytes.
type MarketDataMessage struct {
	TimestampNs        uint64
	Bid                float64
	Ask                float64
	UnderlyingPrice    float64
	BidIV              float64
	AskIV              float64
	SymbolID           uint32
	BidSize            uint32
	AskSize            uint32
	ProcessingSequence uint32
	SourcePID          uint32

	_ [60]byte
}

// TradingSignalMessage carries one strategy decision across the signal channel.
type TradingSignalMessage struct {
	TimestampNs        uint64
	ExpiryTimestampNs  uint64
	TheoreticalPrice   float64
	MarketPrice        float64
	ImpliedVolatility  float64
	ForecastVolatility float64
	Confidence         float64
	ExpectedProfit     float64
	SymbolID           uint32
	Quantity           int32
	SequenceNumber     uint32
	DeadlineUs         uint32
	Side               uint8
	Urgency            uint8
	SignalType         uint8
	ModelSource        uint8

	_ [44]byte
}

// ControlMessage coordinates the producer and consumer processes.
type ControlMessage struct {
	TimestampNs    uint64
	SequenceNumber uint64
	Value1         float64
	Value2         float64
	Parameter1     uint64
	Parameter2     uint64
	MessageType    uint32
	SourcePID      uint32
	TargetPID      uint32
	Priority       uint32
	Data           [8]byte

	_ [56]byte
}

// Signal sides.
const (
	SideBuy  uint8 = 0
	SideSell uint8 = 1
)

// Layout guards: each record must be exactly MessageSize bytes so the shared
// ring slot arithmetic stays valid across processes.
var (
	_ [unsafe.Sizeof(MarketDataMessage{}) - MessageSize]byte
	_ [MessageSize - unsafe.Sizeof(MarketDataMessage{})]byte
	_ [unsafe.Sizeof(TradingSignalMessage{}) - MessageSize]byte
	_ [MessageSize - unsafe.Sizeof(TradingSignalMessage{})]byte
	_ [unsafe.Sizeof(ControlMessage{}) - MessageSize]byte
	_ [MessageSize - unsafe.Sizeof(ControlMessage{})]byte
)

// Valid reports whether the quote passes the publish/consume gate.
func (m *MarketDataMessage) Valid() bool {
	return m.TimestampNs > 0 &&
		m.SymbolID > 0 &&
		m.Bid >= 0 && m.Ask >= 0 &&
		m.Bid <= m.Ask &&
		m.UnderlyingPrice > 0
}

// Valid reports whether the signal passes the publish/consume gate.
func (s *TradingSignalMessage) Valid() bool {
	return s.TimestampNs > 0 &&
		s.SymbolID > 0 &&
		s.Confidence >= 0 && s.Confidence <= 1 &&
		(s.Side == SideBuy || s.Side == SideSell) &&
		s.Quantity != 0
}

// Expired reports whether the signal's expiry has passed at nowNs. A zero
// expiry never expires.
func (s *TradingSignalMessage) Expired(nowNs uint64) bool {
	return s.ExpiryTimestampNs > 0 && s.ExpiryTimestampNs < nowNs
}

// Valid reports whether the control message passes the publish/consume gate.
func (c *ControlMessage) Valid() bool {
	return c.MessageType > 0 && c.TimestampNs > 0
}
