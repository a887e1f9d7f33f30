package schema

import (
	"testing"
	"unsafe"
)

func TestMessageSizes(t *testing.T) {
	if got := unsafe.Sizeof(MarketDataMessage{}); got != MessageSize {
		t.Fatalf("MarketDataMessage size = %d, want %d", got, MessageSize)
	}
	if got := unsafe.Sizeof(TradingSignalMessage{}); got != MessageSize {
		t.Fatalf("TradingSignalMessage size = %d, want %d", got, MessageSize)
	}
	if got := unsafe.Sizeof(ControlMessage{}); got != MessageSize {
		t.Fatalf("ControlMessage size = %d, want %d", got, MessageSize)
	}
}

func TestMarketDataValid(t *testing.T) {
	md := MarketDataMessage{
		TimestampNs:     1,
		SymbolID:        7,
		Bid:             99.5,
		Ask:             100.5,
		UnderlyingPrice: 100,
	}
	if !md.Valid() {
		t.Fatal("expected valid market data")
	}

	crossed := md
	crossed.Bid = 101
	if crossed.Valid() {
		t.Fatal("crossed quote must be invalid")
	}

	noUnderlying := md
	noUnderlying.UnderlyingPrice = 0
	if noUnderlying.Valid() {
		t.Fatal("zero underlying must be invalid")
	}

	noSymbol := md
	noSymbol.SymbolID = 0
	if noSymbol.Valid() {
		t.Fatal("zero symbol must be invalid")
	}
}

func TestSignalValidAndExpiry(t *testing.T) {
	sig := TradingSignalMessage{
		TimestampNs: 10,
		SymbolID:    3,
		Confidence:  0.5,
		Side:        SideBuy,
		Quantity:    10,
	}
	if !sig.Valid() {
		t.Fatal("expected valid signal")
	}

	badSide := sig
	badSide.Side = 2
	if badSide.Valid() {
		t.Fatal("side outside {0,1} must be invalid")
	}

	badConfidence := sig
	badConfidence.Confidence = 1.5
	if badConfidence.Valid() {
		t.Fatal("confidence > 1 must be invalid")
	}

	zeroQty := sig
	zeroQty.Quantity = 0
	if zeroQty.Valid() {
		t.Fatal("zero quantity must be invalid")
	}

	if sig.Expired(100) {
		t.Fatal("signal without expiry must never expire")
	}
	sig.ExpiryTimestampNs = 50
	if !sig.Expired(100) {
		t.Fatal("expected expired signal")
	}
	if sig.Expired(40) {
		t.Fatal("signal before expiry must not be expired")
	}
}

func TestControlValid(t *testing.T) {
	cm := ControlMessage{TimestampNs: 1, MessageType: uint32(ControlHeartbeat)}
	if !cm.Valid() {
		t.Fatal("expected valid control message")
	}
	cm.MessageType = 0
	if cm.Valid() {
		t.Fatal("zero message type must be invalid")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	id, err := r.Add(Symbol{Name: "SPY"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if id != 1 {
		t.Fatalf("first id = %d, want 1", id)
	}
	if _, err := r.Add(Symbol{Name: "SPY"}); err == nil {
		t.Fatal("duplicate symbol must be rejected")
	}
	got, ok := r.Lookup("SPY")
	if !ok || got != id {
		t.Fatalf("Lookup = (%d, %v)", got, ok)
	}
	if _, ok := r.Symbol(99); ok {
		t.Fatal("unknown id must not resolve")
	}
}
