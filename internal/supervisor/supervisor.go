/*
Supervisor wires the runtime core together and drives it on the
time-triggered schedule.

# Module
  - setup: pool, cycle arena, shared channels, journal, scheduler
  - tasks: market data, signal generation, control dispatch, heartbeat,
    metrics report
  - status: JSON snapshot over a unix socket

# Source
  - market data handed in by an external ingest adapter
  - control messages from the consumer process

# Produce
  - market data and trading signals on the shared channels
  - journal frames for every published record and status change

# Sharded
  - none; one supervisor per process
*/
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"main/internal/bus"
	"main/internal/eventlog"
	"main/internal/mempool"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/sched"
	"main/internal/schema"
	"main/internal/shm"
	"main/internal/strategy"
	"main/pkg/uds"
)

const (
	ingestQueueCapacity = 8192
	faultQueueCapacity  = 256
	signalScratchBytes  = 64 * 1024
)

// Supervisor owns every core component for one producer process.
type Supervisor struct {
	cfg ops.Loaded

	pool    *mempool.Pool
	arena   *mempool.CycleAllocator
	manager *shm.Manager
	journal *eventlog.Logger
	sched   *sched.Scheduler
	metrics *obs.Metrics

	ingest *bus.Queue[schema.MarketDataMessage]
	faults *bus.Queue[eventlog.Fault]
	status *uds.StatusServer

	strat strategy.Strategy

	tradingEnabled    atomic.Bool
	shutdownRequested atomic.Bool

	mdSequence     atomic.Uint32
	signalSequence atomic.Uint32

	lastQuote   atomic.Pointer[schema.MarketDataMessage]
	scratchHigh atomic.Uint64
}

// New builds the full producer-side runtime. Every failure here is a setup
// error; nothing partial is returned.
func New(cfg ops.Loaded, strat strategy.Strategy) (*Supervisor, error) {
	s := &Supervisor{
		cfg:     cfg,
		metrics: obs.NewMetrics(),
		ingest:  bus.NewQueue[schema.MarketDataMessage](ingestQueueCapacity),
		faults:  bus.NewQueue[eventlog.Fault](faultQueueCapacity),
		strat:   strat,
	}
	s.tradingEnabled.Store(true)

	pool, err := mempool.NewPool(mempool.Config{
		InitialSize: cfg.PoolInitialSize,
		ChunkSize:   cfg.PoolChunkSize,
	})
	if err != nil {
		return nil, err
	}
	s.pool = pool
	s.arena = mempool.NewCycleAllocator(pool, uintptr(cfg.ArenaSize))

	manager, err := shm.NewManager(shm.ManagerConfig{
		Role:              shm.RoleProducer,
		ProcessID:         cfg.ProcessID,
		MarketDataName:    cfg.MarketDataName,
		SignalName:        cfg.SignalName,
		ControlName:       cfg.ControlName,
		OpenTimeout:       cfg.OpenTimeout,
		OperationDeadline: cfg.OperationDeadline,
		MaxBatch:          cfg.MaxBatch,
	})
	if err != nil {
		s.teardown()
		return nil, err
	}
	s.manager = manager

	format := eventlog.FormatBinary
	if !cfg.JournalBinary {
		format = eventlog.FormatText
	}
	journal, err := eventlog.NewLogger(cfg.JournalPath, format, eventlog.WithFaultQueue(s.faults))
	if err != nil {
		s.teardown()
		return nil, err
	}
	s.journal = journal

	s.sched = sched.New(cfg.BasicTimeUnit)
	if err := s.declareTasks(); err != nil {
		s.teardown()
		return nil, err
	}
	report, err := s.sched.Finalize()
	if err != nil {
		s.teardown()
		return nil, err
	}
	if !report.Schedulable {
		s.teardown()
		return nil, fmt.Errorf("supervisor: task set unschedulable: %v", report.Conflicts)
	}
	logs.Infof("schedule finalized: hyperperiod=%v utilization=%.3f instances=%d",
		report.Hyperperiod, report.Utilization, report.TotalInstances)

	if cfg.StatusSocketPath != "" {
		server, err := uds.NewStatusServer(cfg.StatusSocketPath, s.statusJSON)
		if err != nil {
			s.teardown()
			return nil, err
		}
		s.status = server
	}
	return s, nil
}

// Ingest hands one external quote to the market data task. Non-blocking; a
// full queue drops the quote.
func (s *Supervisor) Ingest(msg schema.MarketDataMessage) error {
	return s.ingest.TryPublish(msg)
}

// Run starts the schedule and blocks until the context ends, a shutdown
// signal arrives, or a SYSTEM_SHUTDOWN control message is dispatched.
func (s *Supervisor) Run(ctx context.Context) error {
	if s.status != nil {
		if err := s.status.Start(); err != nil {
			return err
		}
	}
	if err := s.sched.Start(); err != nil {
		return err
	}
	s.journal.LogStatus("running")
	logs.Info("supervisor running")

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.shutdown("context done")
			return ctx.Err()
		case <-sys.Shutdown():
			s.shutdown("signal")
			return nil
		case <-ticker.C:
			s.drainFaults()
			if s.shutdownRequested.Load() {
				s.shutdown("control message")
				return nil
			}
		}
	}
}

// Close releases every resource. Safe after a failed New.
func (s *Supervisor) Close() {
	if s == nil {
		return
	}
	s.shutdown("close")
}

func (s *Supervisor) shutdown(reason string) {
	if s.sched != nil {
		s.sched.Stop()
	}
	if s.journal != nil {
		s.journal.LogStatus("shutdown: " + reason)
	}
	s.teardown()
	logs.Info("supervisor stopped: " + reason)
}

func (s *Supervisor) teardown() {
	if s.status != nil {
		_ = s.status.Close()
		s.status = nil
	}
	if s.journal != nil {
		_ = s.journal.Close()
		s.journal = nil
	}
	if s.manager != nil {
		s.manager.Close()
		s.manager = nil
	}
	if s.arena != nil {
		s.arena.Reset()
		s.arena = nil
	}
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
}

func (s *Supervisor) declareTasks() error {
	tasks := []sched.Task{
		{
			Name:     "market_data_processing",
			Func:     s.processMarketData,
			Period:   time.Millisecond,
			WCET:     200 * time.Microsecond,
			Priority: 100,
			Critical: true,
		},
		{
			Name:     "signal_generation",
			Func:     s.generateSignals,
			Period:   5 * time.Millisecond,
			WCET:     600 * time.Microsecond,
			Priority: 80,
		},
		{
			Name:     "control_processing",
			Func:     s.processControl,
			Period:   10 * time.Millisecond,
			WCET:     300 * time.Microsecond,
			Priority: 60,
		},
		{
			Name:     "heartbeat",
			Func:     s.heartbeat,
			Period:   time.Second,
			WCET:     200 * time.Microsecond,
			Priority: 10,
		},
		{
			Name:     "metrics_report",
			Func:     s.reportMetrics,
			Period:   10 * time.Second,
			WCET:     500 * time.Microsecond,
			Priority: 5,
		},
	}
	for _, task := range tasks {
		if err := s.sched.AddTask(task); err != nil {
			return err
		}
	}
	return nil
}

// processMarketData takes up to MarketDataCapacity/128 quotes from the ingest
// queue per activation, publishes the valid ones, and journals them.
func (s *Supervisor) processMarketData() {
	for i := 0; i < shm.MarketDataCapacity/128; i++ {
		msg, ok := s.ingest.TryReceive()
		if !ok {
			return
		}
		msg.ProcessingSequence = s.mdSequence.Add(1)
		began := time.Now()
		published := s.manager.PublishMarketData(&msg)
		s.metrics.ObservePublish(time.Since(began))
		if !published {
			s.metrics.IncPublishFailure()
			continue
		}
		began = time.Now()
		s.journal.LogMarketData(&msg)
		s.metrics.ObserveJournal(time.Since(began))
		s.metrics.ObserveEvent(schema.EventMarketDataUpdate)
		s.lastQuote.Store(&msg)
		if s.strat != nil {
			s.strat.OnMarketData(&msg)
		}
	}
}

// generateSignals runs the strategy scan against the latest quote using
// per-cycle arena scratch, then publishes and journals the results.
func (s *Supervisor) generateSignals() {
	defer s.arena.Reset()

	if !s.tradingEnabled.Load() || s.strat == nil {
		return
	}
	quote := s.lastQuote.Load()
	if quote == nil {
		return
	}

	// Scratch for the scan; the high-water mark feeds the metrics report.
	if ptr := s.arena.Allocate(signalScratchBytes, 64); ptr == nil {
		s.metrics.IncPublishFailure()
		return
	}
	if used := s.arena.CycleBytes(); used > s.scratchHigh.Load() {
		s.scratchHigh.Store(used)
	}

	signals := make([]schema.TradingSignalMessage, 0, 8)
	s.strat.ScanAndGenerateSignals(quote.UnderlyingPrice, nil, quote, &signals)
	for i := range signals {
		signals[i].SequenceNumber = s.signalSequence.Add(1)
		if signals[i].TimestampNs == 0 {
			signals[i].TimestampNs = uint64(time.Now().UnixNano())
		}
		if !s.manager.PublishSignal(&signals[i]) {
			s.metrics.IncPublishFailure()
			continue
		}
		s.journal.LogSignal(&signals[i])
		s.metrics.ObserveEvent(schema.EventTradingSignalGenerated)
	}
}

// processControl consumes pending control messages and applies them.
func (s *Supervisor) processControl() {
	var msg schema.ControlMessage
	if !s.manager.ConsumeControl(&msg) {
		s.metrics.IncConsumeMiss()
		return
	}
	for ok := true; ok; ok = s.manager.ConsumeControl(&msg) {
		s.journal.LogControl(&msg)
		s.metrics.ObserveEvent(schema.EventControlMessageReceived)

		switch schema.ControlType(msg.MessageType) {
		case schema.ControlStartTrading:
			s.tradingEnabled.Store(true)
			logs.Info("trading enabled by control message")
		case schema.ControlStopTrading:
			s.tradingEnabled.Store(false)
			logs.Info("trading disabled by control message")
		case schema.ControlEmergencyStop:
			s.tradingEnabled.Store(false)
			s.journal.LogError("emergency stop received")
			logs.Error("emergency stop received")
		case schema.ControlSystemShutdown:
			s.shutdownRequested.Store(true)
		case schema.ControlHeartbeat, schema.ControlHealthCheck:
			// Presence on the channel is the signal; journaling above is
			// enough.
		default:
			logs.Warnf("unhandled control message type %d", msg.MessageType)
		}
	}
}

// heartbeat journals liveness so replay and the archive can bracket sessions.
func (s *Supervisor) heartbeat() {
	s.journal.LogStatus("heartbeat")
}

// reportMetrics journals the periodic performance snapshot.
func (s *Supervisor) reportMetrics() {
	st := s.manager.Status()
	s.journal.LogMetric("md_utilization", float64(st.MarketData.Depth)/float64(st.MarketData.Capacity))
	s.journal.LogMetric("signal_utilization", float64(st.Signals.Depth)/float64(st.Signals.Capacity))
	s.journal.LogMetric("control_utilization", float64(st.Control.Depth)/float64(st.Control.Capacity))
	s.journal.LogMetric("pool_utilization", s.pool.Utilization())
	s.journal.LogMetric("journal_drops", float64(s.journal.Drops()))
	s.journal.LogMetric("scratch_high_water", float64(s.scratchHigh.Load()))
	if !s.manager.HealthCheck() {
		s.journal.LogWarning("shared channel health degraded")
		logs.Warn("shared channel health degraded")
	}
}

func (s *Supervisor) drainFaults() {
	for {
		fault, ok := s.faults.TryReceive()
		if !ok {
			return
		}
		s.metrics.IncJournalDrop()
		logs.Errorf("journal frame %d dropped: %+v", fault.Sequence, fault.Err)
	}
}

// statusJSON renders the snapshot served on the unix socket.
func (s *Supervisor) statusJSON() ([]byte, error) {
	type taskStatus struct {
		Name           string `json:"name"`
		Executions     uint64 `json:"executions"`
		DeadlineMisses uint64 `json:"deadlineMisses"`
		LastExecutionNs int64  `json:"lastExecutionNs"`
		MaxExecutionNs  int64  `json:"maxExecutionNs"`
	}
	type statusBody struct {
		Healthy        bool         `json:"healthy"`
		TradingEnabled bool         `json:"tradingEnabled"`
		Manager        shm.Status   `json:"manager"`
		Tasks          []taskStatus `json:"tasks"`
		JournalEvents  uint64       `json:"journalEvents"`
		JournalDrops   uint64       `json:"journalDrops"`
		PoolAllocated  uint64       `json:"poolAllocated"`
		PoolFree       uint64       `json:"poolFree"`
	}

	body := statusBody{
		TradingEnabled: s.tradingEnabled.Load(),
		Manager:        s.manager.Status(),
		JournalEvents:  s.journal.TotalEvents(),
		JournalDrops:   s.journal.Drops(),
		PoolAllocated:  uint64(s.pool.TotalAllocated()),
		PoolFree:       uint64(s.pool.TotalFree()),
	}
	body.Healthy = body.Manager.Healthy && s.journal.Healthy()
	for _, name := range []string{"market_data_processing", "signal_generation", "control_processing", "heartbeat", "metrics_report"} {
		if m, ok := s.sched.Metrics(name); ok {
			body.Tasks = append(body.Tasks, taskStatus{
				Name:           name,
				Executions:     m.Executions,
				DeadlineMisses: m.DeadlineMisses,
				LastExecutionNs: int64(m.LastExecution),
				MaxExecutionNs:  int64(m.MaxExecution),
			})
		}
	}
	return json.Marshal(body)
}
