// Package scheduler decides which subsystems run on a given frame.
package scheduler

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Task is a subsystem with its own cadence.
type Task uint8

const (
	TaskFocus Task = iota
	TaskCollect
	TaskNearest
	TaskDecor
	TaskAnim
	TaskSummon
	taskCount
)

var taskNames = [taskCount]string{"focus", "collect", "nearest", "decor", "anim", "summon"}

func (t Task) String() string {
	if t < taskCount {
		return taskNames[t]
	}
	return fmt.Sprintf("task(%d)", uint8(t))
}

// Tasks lists every task in evaluation order.
func Tasks() []Task {
	out := make([]Task, taskCount)
	for i := range out {
		out[i] = Task(i)
	}
	return out
}

// Intervals is the normal-mode cadence per task, in frames.
type Intervals [taskCount]uint64

// DefaultIntervals runs focus every 6th frame, collection every 3rd, the nearest
// sweep every 9th, decor every 15th, and animation and summon every frame.
func DefaultIntervals() Intervals {
	return Intervals{
		TaskFocus:   6,
		TaskCollect: 3,
		TaskNearest: 9,
		TaskDecor:   15,
		TaskAnim:    1,
		TaskSummon:  1,
	}
}

// Due is the set of tasks to run this frame.
type Due uint16

// Has reports whether t is due.
func (d Due) Has(t Task) bool {
	return d&(1<<t) != 0
}

// everyFrame tasks keep their cadence in reduced mode
var everyFrame = [taskCount]bool{TaskAnim: true, TaskSummon: true}

// Scheduler keeps a next-due frame per task. Frame numbers start at 1.
type Scheduler struct {
	base    Intervals
	next    [taskCount]uint64
	last    [taskCount]uint64
	forced  [taskCount]bool
	frame   uint64
	reduced bool

	runs     metric.Int64Counter
	runAttrs [taskCount]metric.AddOption
}

func New(base Intervals) (*Scheduler, error) {
	s := &Scheduler{base: base}
	for t := range base {
		if s.base[t] == 0 {
			s.base[t] = 1
		}
		s.next[t] = s.base[t]
	}

	var err error
	s.runs, err = meter().Int64Counter(
		"scheduler.task.runs",
		metric.WithDescription("Total scheduled task runs"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating runs counter: %w", err)
	}
	for t := range s.runAttrs {
		s.runAttrs[t] = metric.WithAttributes(attribute.String("task", Task(t).String()))
	}
	return s, nil
}

// Interval returns the current cadence of t, doubled in reduced mode.
func (s *Scheduler) Interval(t Task) uint64 {
	n := s.base[t]
	if s.reduced && !everyFrame[t] {
		n *= 2
	}
	return n
}

// Frame returns the number of frames advanced so far.
func (s *Scheduler) Frame() uint64 {
	return s.frame
}

// Reduced reports whether reduced-performance mode is on.
func (s *Scheduler) Reduced() bool {
	return s.reduced
}

// SetReduced switches reduced-performance mode. Each task is rescheduled one new
// interval after its last scheduled run; an overdue task runs on the next frame.
func (s *Scheduler) SetReduced(on bool) {
	if s.reduced == on {
		return
	}
	s.reduced = on
	for t := Task(0); t < taskCount; t++ {
		s.next[t] = s.last[t] + s.Interval(t)
	}
}

// Force makes t run every frame while on, regardless of its cadence.
func (s *Scheduler) Force(t Task, on bool) {
	s.forced[t] = on
}

// Forced reports whether t is forced.
func (s *Scheduler) Forced(t Task) bool {
	return s.forced[t]
}

// Advance moves to the next frame and returns the tasks due on it.
func (s *Scheduler) Advance() Due {
	s.frame++
	var due Due
	for t := Task(0); t < taskCount; t++ {
		if s.frame >= s.next[t] {
			s.last[t] = s.frame
			s.next[t] = s.frame + s.Interval(t)
		} else if !s.forced[t] {
			continue
		}
		due |= 1 << t
		s.runs.Add(context.Background(), 1, s.runAttrs[t])
	}
	return due
}
