package shm

import (
	"sync/atomic"
	"time"

	"main/internal/schema"
)

// Channel capacities are compile-time constants; every slot is SlotSize bytes.
const (
	MarketDataCapacity = 4096
	SignalCapacity     = 1024
	ControlCapacity    = 256
)

// Default segment names for the three logical channels.
const (
	DefaultMarketDataName = "/alaris_market_data"
	DefaultSignalName     = "/alaris_signals"
	DefaultControlName    = "/alaris_control"
)

const (
	defaultOperationDeadline = 100 * time.Microsecond
	defaultMaxBatch          = 32
	healthCheckInterval      = time.Second
)

// Role selects which side of the channels this process drives.
type Role int

const (
	// RoleProducer creates the segments, publishes market data and signals,
	// and consumes control traffic.
	RoleProducer Role = iota
	// RoleConsumer opens the segments, consumes market data and signals, and
	// publishes control traffic.
	RoleConsumer
)

// ManagerConfig wires a Manager. Zero values take defaults.
type ManagerConfig struct {
	Role      Role
	ProcessID uint32

	MarketDataName string
	SignalName     string
	ControlName    string

	// OpenTimeout bounds the consumer-side wait for producer initialization.
	OpenTimeout time.Duration
	// OperationDeadline is the per-message hot-path budget; operations that
	// exceed it are counted as timeout events.
	OperationDeadline time.Duration
	// MaxBatch caps batch consume sizes.
	MaxBatch int
}

func (c ManagerConfig) withDefaults() ManagerConfig {
	if c.MarketDataName == "" {
		c.MarketDataName = DefaultMarketDataName
	}
	if c.SignalName == "" {
		c.SignalName = DefaultSignalName
	}
	if c.ControlName == "" {
		c.ControlName = DefaultControlName
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = DefaultOpenTimeout
	}
	if c.OperationDeadline <= 0 {
		c.OperationDeadline = defaultOperationDeadline
	}
	if c.MaxBatch <= 0 {
		c.MaxBatch = defaultMaxBatch
	}
	return c
}

// Manager binds the three process channels and enforces record validity,
// per-operation deadlines, and periodic health checks.
type Manager struct {
	cfg ManagerConfig

	marketData *Ring[schema.MarketDataMessage]
	signals    *Ring[schema.TradingSignalMessage]
	control    *Ring[schema.ControlMessage]

	totalOperations  atomic.Uint64
	failedOperations atomic.Uint64
	timeoutEvents    atomic.Uint64

	lastHealthCheckNs atomic.Int64
	marketHealthy     atomic.Bool
	signalHealthy     atomic.Bool
	controlHealthy    atomic.Bool
}

// NewManager creates (producer) or opens (consumer) the three channels. Any
// failure tears down what was built; no partial manager is returned.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	cfg = cfg.withDefaults()
	m := &Manager{cfg: cfg}
	m.marketHealthy.Store(true)
	m.signalHealthy.Store(true)
	m.controlHealthy.Store(true)

	var err error
	if cfg.Role == RoleProducer {
		m.marketData, err = CreateRing[schema.MarketDataMessage](cfg.MarketDataName, MarketDataCapacity)
		if err == nil {
			m.signals, err = CreateRing[schema.TradingSignalMessage](cfg.SignalName, SignalCapacity)
		}
		if err == nil {
			m.control, err = CreateRing[schema.ControlMessage](cfg.ControlName, ControlCapacity)
		}
	} else {
		m.marketData, err = OpenRing[schema.MarketDataMessage](cfg.MarketDataName, MarketDataCapacity, cfg.OpenTimeout)
		if err == nil {
			m.signals, err = OpenRing[schema.TradingSignalMessage](cfg.SignalName, SignalCapacity, cfg.OpenTimeout)
		}
		if err == nil {
			m.control, err = OpenRing[schema.ControlMessage](cfg.ControlName, ControlCapacity, cfg.OpenTimeout)
		}
	}
	if err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

// Close releases every channel this manager holds.
func (m *Manager) Close() {
	if m.marketData != nil {
		_ = m.marketData.Close()
		m.marketData = nil
	}
	if m.signals != nil {
		_ = m.signals.Close()
		m.signals = nil
	}
	if m.control != nil {
		_ = m.control.Close()
		m.control = nil
	}
}

// PublishMarketData validates and writes one quote. The source PID is stamped
// when the caller left it zero.
func (m *Manager) PublishMarketData(msg *schema.MarketDataMessage) bool {
	start := time.Now()
	if msg.SourcePID == 0 {
		msg.SourcePID = m.cfg.ProcessID
	}
	if !msg.Valid() {
		return m.finish(start, false)
	}
	return m.finish(start, m.marketData.TryWrite(msg))
}

// ConsumeMarketData reads one quote, rejecting records that fail validation.
func (m *Manager) ConsumeMarketData(msg *schema.MarketDataMessage) bool {
	start := time.Now()
	if !m.marketData.TryRead(msg) {
		return m.finish(start, false)
	}
	return m.finish(start, msg.Valid())
}

// ConsumeMarketDataBatch fills out with up to MaxBatch validated quotes.
func (m *Manager) ConsumeMarketDataBatch(out []schema.MarketDataMessage) int {
	start := time.Now()
	if len(out) > m.cfg.MaxBatch {
		out = out[:m.cfg.MaxBatch]
	}
	n := m.marketData.TryReadBatch(out)
	kept := 0
	for i := 0; i < n; i++ {
		if out[i].Valid() {
			out[kept] = out[i]
			kept++
		}
	}
	m.finish(start, kept > 0)
	return kept
}

// PublishSignal validates and writes one trading signal.
func (m *Manager) PublishSignal(sig *schema.TradingSignalMessage) bool {
	start := time.Now()
	if !sig.Valid() {
		return m.finish(start, false)
	}
	return m.finish(start, m.signals.TryWrite(sig))
}

// ConsumeSignal reads one signal, dropping invalid and expired records.
func (m *Manager) ConsumeSignal(sig *schema.TradingSignalMessage) bool {
	start := time.Now()
	nowNs := uint64(time.Now().UnixNano())
	for m.signals.TryRead(sig) {
		if sig.Valid() && !sig.Expired(nowNs) {
			return m.finish(start, true)
		}
	}
	return m.finish(start, false)
}

// ConsumeSignalBatch fills out with up to MaxBatch live, valid signals.
func (m *Manager) ConsumeSignalBatch(out []schema.TradingSignalMessage) int {
	start := time.Now()
	if len(out) > m.cfg.MaxBatch {
		out = out[:m.cfg.MaxBatch]
	}
	n := m.signals.TryReadBatch(out)
	nowNs := uint64(time.Now().UnixNano())
	kept := 0
	for i := 0; i < n; i++ {
		if out[i].Valid() && !out[i].Expired(nowNs) {
			out[kept] = out[i]
			kept++
		}
	}
	m.finish(start, kept > 0)
	return kept
}

// PublishControl validates and writes one control message.
func (m *Manager) PublishControl(msg *schema.ControlMessage) bool {
	start := time.Now()
	if msg.SourcePID == 0 {
		msg.SourcePID = m.cfg.ProcessID
	}
	if !msg.Valid() {
		return m.finish(start, false)
	}
	return m.finish(start, m.control.TryWrite(msg))
}

// ConsumeControl reads one control message.
func (m *Manager) ConsumeControl(msg *schema.ControlMessage) bool {
	start := time.Now()
	if !m.control.TryRead(msg) {
		return m.finish(start, false)
	}
	return m.finish(start, msg.Valid())
}

// Status aggregates the three channels and the manager's own counters.
type Status struct {
	MarketData Metrics
	Signals    Metrics
	Control    Metrics

	TotalOperations  uint64
	FailedOperations uint64
	TimeoutEvents    uint64
	FailureRate      float64

	Healthy           bool
	MarketDataHealthy bool
	SignalsHealthy    bool
	ControlHealthy    bool
}

// Status snapshots everything a monitor needs.
func (m *Manager) Status() Status {
	s := Status{
		MarketData:       m.marketData.Metrics(),
		Signals:          m.signals.Metrics(),
		Control:          m.control.Metrics(),
		TotalOperations:  m.totalOperations.Load(),
		FailedOperations: m.failedOperations.Load(),
		TimeoutEvents:    m.timeoutEvents.Load(),
	}
	if s.TotalOperations > 0 {
		s.FailureRate = float64(s.FailedOperations) / float64(s.TotalOperations)
	}
	s.MarketDataHealthy = s.MarketData.Healthy()
	s.SignalsHealthy = s.Signals.Healthy()
	s.ControlHealthy = s.Control.Healthy()
	s.Healthy = s.MarketDataHealthy && s.SignalsHealthy && s.ControlHealthy
	return s
}

// HealthCheck re-evaluates per-buffer health at most once per interval and
// returns the combined verdict.
func (m *Manager) HealthCheck() bool {
	now := time.Now().UnixNano()
	last := m.lastHealthCheckNs.Load()
	if now-last >= int64(healthCheckInterval) && m.lastHealthCheckNs.CompareAndSwap(last, now) {
		m.marketHealthy.Store(m.marketData.Healthy())
		m.signalHealthy.Store(m.signals.Healthy())
		m.controlHealthy.Store(m.control.Healthy())
	}
	return m.marketHealthy.Load() && m.signalHealthy.Load() && m.controlHealthy.Load()
}

// ResetMetrics clears advisory counters on every channel and the manager.
func (m *Manager) ResetMetrics() {
	m.marketData.ResetMetrics()
	m.signals.ResetMetrics()
	m.control.ResetMetrics()
	m.totalOperations.Store(0)
	m.failedOperations.Store(0)
	m.timeoutEvents.Store(0)
}

// ClearAll drains every channel. Intended for tests and controlled restarts
// only; draining a live channel discards records.
func (m *Manager) ClearAll() {
	var md schema.MarketDataMessage
	for m.marketData.TryRead(&md) {
	}
	var sig schema.TradingSignalMessage
	for m.signals.TryRead(&sig) {
	}
	var cm schema.ControlMessage
	for m.control.TryRead(&cm) {
	}
}

// finish folds one operation into the counters, including the per-message
// deadline accounting.
func (m *Manager) finish(start time.Time, ok bool) bool {
	m.totalOperations.Add(1)
	if !ok {
		m.failedOperations.Add(1)
	}
	if time.Since(start) > m.cfg.OperationDeadline {
		m.timeoutEvents.Add(1)
	}
	return ok
}
