/*
Sched drives the process on a time-triggered schedule: a static table computed
once offline and repeated every hyperperiod.

# Module
  - admission: task validation and utilization tests
  - table: instance enumeration and conflict-free placement
  - runtime: one worker thread sleeping to each entry's offset

# Source
  - periodic task declarations from the supervisor

# Produce
  - synchronous task invocations in start-offset order

# Sharded
  - none; execution is single-threaded and cooperative
*/
package sched

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"
)

// DefaultBasicTimeUnit is the scheduler quantum when none is configured.
const DefaultBasicTimeUnit = 100 * time.Microsecond

// hyperperiodCeiling is advisory; exceeding it warns but does not reject.
const hyperperiodCeiling = 60 * time.Second

var (
	ErrNotConfiguring = errors.New("sched: tasks may only be added before finalization")
	ErrAlreadyFinal   = errors.New("sched: schedule already finalized")
	ErrNotFinalized   = errors.New("sched: schedule not finalized")
	ErrNotSchedulable = errors.New("sched: task set is not schedulable")
	ErrAlreadyStarted = errors.New("sched: scheduler already started")
	ErrDuplicateTask  = errors.New("sched: duplicate task name")
	ErrInvalidTask    = errors.New("sched: invalid task definition")
	ErrPeriodNotOnBTU = errors.New("sched: period is not a multiple of the basic time unit")
)

// TaskFunc is one periodic task body, invoked synchronously by the worker.
type TaskFunc func()

// Task declares one periodic task. Immutable once the schedule is finalized.
type Task struct {
	Name     string
	Func     TaskFunc
	Period   time.Duration
	WCET     time.Duration
	Deadline time.Duration // zero defaults to Period
	Priority int           // larger is higher
	Critical bool
}

// Entry is one placed execution within the hyperperiod. Start and End are
// multiples of the basic time unit; Release is the instance's nominal release
// offset used for deadline accounting.
type Entry struct {
	TaskID   int
	Release  time.Duration
	Start    time.Duration
	End      time.Duration
	Instance uint64
}

// Report is the outcome of finalization.
type Report struct {
	Schedulable    bool
	Hyperperiod    time.Duration
	BasicTimeUnit  time.Duration
	Utilization    float64
	TotalInstances int
	Conflicts      []string
	Warnings       []string
}

// Lifecycle states.
const (
	stateConfiguring int32 = iota
	stateFinalized
	stateRunning
	stateStopped
)

type taskMetrics struct {
	executions     atomic.Uint64
	deadlineMisses atomic.Uint64
	lastExecNs     atomic.Int64
	maxExecNs      atomic.Int64
	totalExecNs    atomic.Int64
}

// TaskMetrics is a snapshot of one task's runtime accounting.
type TaskMetrics struct {
	Executions     uint64
	DeadlineMisses uint64
	LastExecution  time.Duration
	MaxExecution   time.Duration
	TotalExecution time.Duration
}

// Scheduler owns the task set, the finalized table, and the worker.
type Scheduler struct {
	btu time.Duration

	mu     sync.Mutex
	tasks  []Task
	byName map[string]int
	table  []Entry
	report Report

	state   atomic.Int32
	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	metrics []*taskMetrics
}

// New creates a scheduler with the given basic time unit.
func New(btu time.Duration) *Scheduler {
	if btu <= 0 {
		btu = DefaultBasicTimeUnit
	}
	return &Scheduler{
		btu:    btu,
		byName: make(map[string]int),
	}
}

// BasicTimeUnit returns the scheduler quantum.
func (s *Scheduler) BasicTimeUnit() time.Duration { return s.btu }

// AddTask admits one task declaration. Only legal before finalization.
func (s *Scheduler) AddTask(task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Load() != stateConfiguring {
		return ErrNotConfiguring
	}
	if task.Name == "" || task.Func == nil {
		return ErrInvalidTask
	}
	if _, exists := s.byName[task.Name]; exists {
		return ErrDuplicateTask
	}
	if task.Period <= 0 {
		return ErrInvalidTask
	}
	if task.Period%s.btu != 0 {
		return ErrPeriodNotOnBTU
	}
	if task.WCET <= 0 || task.WCET > task.Period {
		return ErrInvalidTask
	}
	if task.Deadline == 0 {
		task.Deadline = task.Period
	}
	if task.Deadline > task.Period {
		return ErrInvalidTask
	}

	s.byName[task.Name] = len(s.tasks)
	s.tasks = append(s.tasks, task)
	s.metrics = append(s.metrics, &taskMetrics{})
	return nil
}

// Finalize computes the static schedule table. It may be called once; a
// second call is rejected regardless of the outcome of the first.
func (s *Scheduler) Finalize() (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Load() != stateConfiguring {
		return s.report, ErrAlreadyFinal
	}
	s.report = s.buildSchedule()
	s.state.Store(stateFinalized)
	if !s.report.Schedulable {
		s.table = nil
	}
	for _, w := range s.report.Warnings {
		logs.Warn("schedule warning: " + w)
	}
	for _, c := range s.report.Conflicts {
		logs.Warn("schedule conflict: " + c)
	}
	return s.report, nil
}

// Report returns the finalization outcome.
func (s *Scheduler) Report() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// Table returns a copy of the finalized schedule table.
func (s *Scheduler) Table() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.table))
	copy(out, s.table)
	return out
}

// Hyperperiod returns the schedule repetition interval.
func (s *Scheduler) Hyperperiod() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report.Hyperperiod
}

// Start launches the worker. Legal exactly once per finalized, schedulable
// table.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state.Load() {
	case stateConfiguring:
		return ErrNotFinalized
	case stateRunning, stateStopped:
		return ErrAlreadyStarted
	}
	if !s.report.Schedulable {
		return ErrNotSchedulable
	}

	s.stopCh = make(chan struct{})
	s.running.Store(true)
	s.state.Store(stateRunning)
	s.wg.Add(1)
	go s.run()
	return nil
}

// Stop halts the worker after its current task and joins it. Idempotent.
func (s *Scheduler) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		if s.state.Load() == stateRunning {
			s.wg.Wait()
		}
		return
	}
	close(s.stopCh)
	s.wg.Wait()
	s.state.Store(stateStopped)
}

// Running reports whether the worker is active.
func (s *Scheduler) Running() bool { return s.running.Load() }

// Metrics returns the runtime accounting for a task by name.
func (s *Scheduler) Metrics(name string) (TaskMetrics, bool) {
	s.mu.Lock()
	id, ok := s.byName[name]
	s.mu.Unlock()
	if !ok {
		return TaskMetrics{}, false
	}
	m := s.metrics[id]
	return TaskMetrics{
		Executions:     m.executions.Load(),
		DeadlineMisses: m.deadlineMisses.Load(),
		LastExecution:  time.Duration(m.lastExecNs.Load()),
		MaxExecution:   time.Duration(m.maxExecNs.Load()),
		TotalExecution: time.Duration(m.totalExecNs.Load()),
	}, true
}

// run executes the table repeatedly, re-anchoring at each hyperperiod so the
// phase relationship is preserved up to host-clock accuracy.
func (s *Scheduler) run() {
	defer s.wg.Done()

	s.mu.Lock()
	table := s.table
	tasks := s.tasks
	hyperperiod := s.report.Hyperperiod
	s.mu.Unlock()

	anchor := time.Now()
	for {
		for _, e := range table {
			if !s.sleepUntil(anchor.Add(e.Start)) {
				return
			}
			if !s.running.Load() {
				return
			}

			task := tasks[e.TaskID]
			began := time.Now()
			task.Func()
			elapsed := time.Since(began)

			m := s.metrics[e.TaskID]
			m.executions.Add(1)
			m.lastExecNs.Store(int64(elapsed))
			m.totalExecNs.Add(int64(elapsed))
			if int64(elapsed) > m.maxExecNs.Load() {
				m.maxExecNs.Store(int64(elapsed))
			}

			if elapsed > task.WCET {
				logs.Warnf("task %s overran WCET: ran %v, budget %v", task.Name, elapsed, task.WCET)
			}
			deadlineAt := anchor.Add(e.Release + task.Deadline)
			if time.Now().After(deadlineAt) {
				m.deadlineMisses.Add(1)
				logs.Warnf("task %s missed deadline at offset %v", task.Name, e.Release)
			}
		}
		anchor = anchor.Add(hyperperiod)
	}
}

// sleepUntil blocks until target or a stop request; false means stop.
func (s *Scheduler) sleepUntil(target time.Time) bool {
	d := time.Until(target)
	if d <= 0 {
		select {
		case <-s.stopCh:
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.stopCh:
		return false
	case <-timer.C:
		return true
	}
}
