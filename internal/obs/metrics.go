package obs

import (
	"sync/atomic"
	"time"

	"main/internal/schema"
)

const maxEventKind = int(schema.EventDebug)

// Metrics collects lightweight counters and latency stats for the runtime.
type Metrics struct {
	eventCounts [maxEventKind + 1]uint64

	journalDrops    uint64
	publishFailures uint64
	consumeMisses   uint64

	publishLatency LatencyStats
	journalLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	EventCounts     map[schema.EventKind]uint64
	JournalDrops    uint64
	PublishFailures uint64
	ConsumeMisses   uint64
	PublishLatency  LatencySnapshot
	JournalLatency  LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveEvent counts one journaled event by kind.
func (m *Metrics) ObserveEvent(kind schema.EventKind) {
	if m == nil {
		return
	}
	idx := int(kind)
	if idx >= 0 && idx < len(m.eventCounts) {
		atomic.AddUint64(&m.eventCounts[idx], 1)
	}
}

// IncJournalDrop records a dropped journal frame.
func (m *Metrics) IncJournalDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.journalDrops, 1)
}

// IncPublishFailure records a rejected or backpressured publish.
func (m *Metrics) IncPublishFailure() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.publishFailures, 1)
}

// IncConsumeMiss records an empty consume attempt.
func (m *Metrics) IncConsumeMiss() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.consumeMisses, 1)
}

// ObservePublish measures one IPC publish.
func (m *Metrics) ObservePublish(d time.Duration) {
	if m == nil {
		return
	}
	m.publishLatency.Observe(d)
}

// ObserveJournal measures one journal append.
func (m *Metrics) ObserveJournal(d time.Duration) {
	if m == nil {
		return
	}
	m.journalLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	eventCounts := make(map[schema.EventKind]uint64)
	for i := range m.eventCounts {
		if v := atomic.LoadUint64(&m.eventCounts[i]); v > 0 {
			eventCounts[schema.EventKind(i)] = v
		}
	}
	return Snapshot{
		EventCounts:     eventCounts,
		JournalDrops:    atomic.LoadUint64(&m.journalDrops),
		PublishFailures: atomic.LoadUint64(&m.publishFailures),
		ConsumeMisses:   atomic.LoadUint64(&m.consumeMisses),
		PublishLatency:  m.publishLatency.Snapshot(),
		JournalLatency:  m.journalLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
