package main

import (
	"flag"
	"fmt"
	"log"
	"time"
	"unsafe"

	"main/internal/eventlog"
	"main/internal/schema"
)

func main() {
	journal := flag.String("journal", "alaris_events.bin", "Journal file to replay")
	speed := flag.Float64("speed", 0, "Replay speed (1=real-time, 0=single-step disabled here: frames stream without pacing)")
	startSeq := flag.Uint64("start-seq", 0, "First sequence to dispatch")
	decode := flag.Bool("decode", false, "Decode known payload types")
	flag.Parse()

	// Single-step makes no sense for a streaming dump; treat 0 as unpaced by
	// resuming immediately after each frame.
	var index int
	replayer, err := eventlog.NewReplayer(*journal, func(frame eventlog.Frame, payload []byte) {
		index++
		fmt.Printf("%06d seq=%d kind=%s ts=%d len=%d crc=%08x\n",
			index, frame.Sequence, frame.Kind, frame.TimestampNs, len(payload), frame.CRC)
		if *decode {
			printDecoded(frame.Kind, payload)
		}
	}, *speed)
	if err != nil {
		log.Fatalf("replay init failed: %v", err)
	}

	if err := replayer.Start(*startSeq); err != nil {
		log.Fatalf("replay start failed: %v", err)
	}
	for replayer.Replaying() {
		if replayer.Paused() {
			replayer.Resume()
		}
		time.Sleep(time.Millisecond)
	}
	fmt.Printf("replayed %d frames\n", index)
}

func printDecoded(kind schema.EventKind, payload []byte) {
	if len(payload) != schema.MessageSize {
		if len(payload) > 0 {
			fmt.Printf("  text %q\n", payload)
		}
		return
	}
	switch kind {
	case schema.EventMarketDataUpdate:
		var md schema.MarketDataMessage
		copy(recordBytes(unsafe.Pointer(&md)), payload)
		fmt.Printf("  md symbol=%d bid=%.4f ask=%.4f underlying=%.4f seq=%d\n",
			md.SymbolID, md.Bid, md.Ask, md.UnderlyingPrice, md.ProcessingSequence)
	case schema.EventTradingSignalGenerated:
		var sig schema.TradingSignalMessage
		copy(recordBytes(unsafe.Pointer(&sig)), payload)
		fmt.Printf("  signal symbol=%d side=%d qty=%d theo=%.4f mkt=%.4f conf=%.2f\n",
			sig.SymbolID, sig.Side, sig.Quantity, sig.TheoreticalPrice, sig.MarketPrice, sig.Confidence)
	case schema.EventControlMessageReceived:
		var cm schema.ControlMessage
		copy(recordBytes(unsafe.Pointer(&cm)), payload)
		fmt.Printf("  control type=%s source=%d target=%d\n",
			schema.ControlType(cm.MessageType), cm.SourcePID, cm.TargetPID)
	}
}

func recordBytes(p unsafe.Pointer) []byte {
	return unsafe.Slice((*byte)(p), schema.MessageSize)
}
