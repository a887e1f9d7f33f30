package shm

import "time"

// Health thresholds for steady-state operation.
const (
	healthyContentionRate = 0.05
	healthyDepthRatio     = 0.80
	healthyAccessWindow   = 5 * time.Second
	healthyStarvationMax  = 1000
)

// Metrics is a point-in-time view of one ring's counters.
type Metrics struct {
	TotalWrites           uint64
	TotalReads            uint64
	ContentionEvents      uint64
	MaxDepth              uint64
	ConsecutiveEmptyReads uint64
	ConsecutiveFullWrites uint64
	Depth                 uint64
	Capacity              uint64
	ContentionRate        float64
	TimeSinceLastAccess   time.Duration
}

// Metrics snapshots the ring's counters.
func (r *Ring[T]) Metrics() Metrics {
	m := Metrics{
		TotalWrites:           r.hdr.totalWrites.Load(),
		TotalReads:            r.hdr.totalReads.Load(),
		ContentionEvents:      r.hdr.contentionEvents.Load(),
		MaxDepth:              r.hdr.maxDepth.Load(),
		ConsecutiveEmptyReads: r.hdr.consecutiveEmptyReads.Load(),
		ConsecutiveFullWrites: r.hdr.consecutiveFullWrites.Load(),
		Depth:                 r.Size(),
		Capacity:              r.capacity,
	}
	if ops := m.TotalWrites + m.TotalReads + m.ContentionEvents; ops > 0 {
		m.ContentionRate = float64(m.ContentionEvents) / float64(ops)
	}
	if last := r.hdr.lastAccessNs.Load(); last > 0 {
		m.TimeSinceLastAccess = time.Duration(time.Now().UnixNano() - last)
	}
	return m
}

// Healthy applies the steady-state liveness predicate: contention below 5%,
// depth below 80% of capacity, recent access, and no runaway starvation
// streak on either side.
func (r *Ring[T]) Healthy() bool {
	m := r.Metrics()
	return m.Healthy()
}

// Healthy evaluates the predicate on a snapshot.
func (m Metrics) Healthy() bool {
	if m.ContentionRate >= healthyContentionRate {
		return false
	}
	if float64(m.Depth) >= healthyDepthRatio*float64(m.Capacity) {
		return false
	}
	if m.TimeSinceLastAccess > healthyAccessWindow {
		return false
	}
	if m.ConsecutiveEmptyReads >= healthyStarvationMax ||
		m.ConsecutiveFullWrites >= healthyStarvationMax {
		return false
	}
	return true
}

// ResetMetrics clears the advisory counters. Indices are untouched.
func (r *Ring[T]) ResetMetrics() {
	r.hdr.totalWrites.Store(0)
	r.hdr.totalReads.Store(0)
	r.hdr.contentionEvents.Store(0)
	r.hdr.maxDepth.Store(0)
	r.hdr.consecutiveEmptyReads.Store(0)
	r.hdr.consecutiveFullWrites.Store(0)
	r.hdr.lastAccessNs.Store(time.Now().UnixNano())
}
