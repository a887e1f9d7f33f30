package sched

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// buildSchedule runs the admission tests and, when they pass, places every
// instance into a conflict-free table. Caller holds the scheduler mutex.
func (s *Scheduler) buildSchedule() Report {
	report := Report{
		BasicTimeUnit: s.btu,
		Schedulable:   true,
	}
	if len(s.tasks) == 0 {
		report.Schedulable = false
		report.Conflicts = append(report.Conflicts, "no tasks declared")
		return report
	}

	// Utilization uses the raw WCETs; placement uses BTU-rounded slots.
	var utilization float64
	for _, t := range s.tasks {
		utilization += float64(t.WCET) / float64(t.Period)
	}
	report.Utilization = utilization
	if utilization > 1 {
		report.Schedulable = false
		report.Conflicts = append(report.Conflicts,
			fmt.Sprintf("total utilization %.3f exceeds 1.0", utilization))
		return report
	}
	if bound := liuLaylandBound(len(s.tasks)); utilization > bound {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("utilization %.3f exceeds Liu-Layland bound %.3f; schedulability is not guaranteed for priority-driven execution", utilization, bound))
	}

	hyperperiod := s.tasks[0].Period
	for _, t := range s.tasks[1:] {
		hyperperiod = lcm(hyperperiod, t.Period)
	}
	report.Hyperperiod = hyperperiod
	if hyperperiod > hyperperiodCeiling {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("hyperperiod %v exceeds operational ceiling %v", hyperperiod, hyperperiodCeiling))
	}

	// Enumerate every instance in the hyperperiod.
	var pending []Entry
	for id, t := range s.tasks {
		count := int(hyperperiod / t.Period)
		for k := 0; k < count; k++ {
			release := time.Duration(k) * t.Period
			pending = append(pending, Entry{
				TaskID:   id,
				Release:  release,
				Instance: uint64(k),
			})
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		a, b := pending[i], pending[j]
		if a.Release != b.Release {
			return a.Release < b.Release
		}
		return s.tasks[a.TaskID].Priority > s.tasks[b.TaskID].Priority
	})

	var placed []Entry
	for _, inst := range pending {
		task := s.tasks[inst.TaskID]
		slot := roundUpTo(task.WCET, s.btu)
		latestEnd := inst.Release + task.Deadline

		start := inst.Release
		ok := false
		warned := -1
		for start+slot <= hyperperiod {
			blocker := overlap(placed, start, start+slot)
			if blocker < 0 {
				ok = start+slot <= latestEnd
				break
			}
			incumbent := s.tasks[placed[blocker].TaskID]
			if task.Priority > incumbent.Priority && blocker != warned {
				// Preemption is not part of this model; the higher-priority
				// instance is deferred instead.
				report.Warnings = append(report.Warnings,
					fmt.Sprintf("task %s (prio %d) would preempt %s (prio %d) at offset %v; deferring",
						task.Name, task.Priority, incumbent.Name, incumbent.Priority, start))
				warned = blocker
			}
			start += s.btu
			if start+slot > latestEnd {
				break
			}
		}
		if !ok {
			report.Schedulable = false
			report.Conflicts = append(report.Conflicts,
				fmt.Sprintf("task %s instance %d cannot be placed before its deadline at %v",
					task.Name, inst.Instance, latestEnd))
			continue
		}

		inst.Start = start
		inst.End = start + slot
		placed = append(placed, inst)
	}

	sort.Slice(placed, func(i, j int) bool { return placed[i].Start < placed[j].Start })
	report.TotalInstances = len(placed)
	if report.Schedulable {
		s.table = placed
	}
	return report
}

// overlap returns the index of a placed entry intersecting [start, end), or
// -1 when the interval is free.
func overlap(placed []Entry, start, end time.Duration) int {
	for i, e := range placed {
		if start < e.End && end > e.Start {
			return i
		}
	}
	return -1
}

// liuLaylandBound is n(2^(1/n) - 1) for n tasks.
func liuLaylandBound(n int) float64 {
	if n <= 0 {
		return 0
	}
	return float64(n) * (math.Pow(2, 1/float64(n)) - 1)
}

func roundUpTo(d, unit time.Duration) time.Duration {
	if d%unit == 0 {
		return d
	}
	return (d/unit + 1) * unit
}

func gcd(a, b time.Duration) time.Duration {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b time.Duration) time.Duration {
	return a / gcd(a, b) * b
}
