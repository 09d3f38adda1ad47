// Package schedule is a cyclic executive. Tasks run one after another on
// the caller's goroutine at whole multiples of a fixed minor cycle, so no
// task is ever invoked while another one (or itself) is still running.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrPeriod is returned for a period that is not a positive multiple of
// the minor cycle.
var ErrPeriod = errors.New("task period must be a positive multiple of the minor cycle")

// Task is invoked once per period. An error stops the executive.
type Task func(ctx context.Context) error

type entry struct {
	name   string
	period int
	run    Task
}

// Executive runs registered tasks in registration order within each minor
// cycle. The major cycle is the least common multiple of all periods.
type Executive struct {
	minor time.Duration
	tasks []entry
	major int
	tick  int

	overruns int
}

// New returns an executive with the given minor cycle.
func New(minor time.Duration) *Executive {
	return &Executive{minor: minor, major: 1}
}

// Add registers a task. period must be a whole number of minor cycles.
func (e *Executive) Add(name string, period time.Duration, run Task) error {
	if e.minor <= 0 || period <= 0 || period%e.minor != 0 {
		return fmt.Errorf("%w: %s every %s with minor cycle %s", ErrPeriod, name, period, e.minor)
	}
	n := int(period / e.minor)
	e.tasks = append(e.tasks, entry{name: name, period: n, run: run})
	e.major = lcm(e.major, n)
	return nil
}

// MinorCycle returns the tick length.
func (e *Executive) MinorCycle() time.Duration { return e.minor }

// MajorCycle returns the length of the full schedule in minor cycles.
func (e *Executive) MajorCycle() int { return e.major }

// Overruns returns how many minor cycles took longer than their slot.
func (e *Executive) Overruns() int { return e.overruns }

// Tick runs every task due in the current minor cycle and advances to the
// next one. All tasks are due in the first cycle. The first failing task
// ends the cycle and its error is returned.
func (e *Executive) Tick(ctx context.Context) error {
	defer func() { e.tick = (e.tick + 1) % e.major }()
	for _, t := range e.tasks {
		if e.tick%t.period != 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.run(ctx); err != nil {
			return fmt.Errorf("task %s: %w", t.name, err)
		}
	}
	return nil
}

// Run ticks once per minor cycle until ctx ends or a task fails. Cycles
// that overrun their slot are logged; the ticks they cover are skipped.
func (e *Executive) Run(ctx context.Context) error {
	slog.Info("Starting cyclic executive", "minor", e.minor, "major", e.major, "tasks", len(e.tasks))
	ticker := time.NewTicker(e.minor)
	defer ticker.Stop()

	for {
		start := time.Now()
		if err := e.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if took := time.Since(start); took > e.minor {
			e.overruns++
			slog.Warn("Minor cycle overrun", "took", took, "slot", e.minor)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	return a / gcd(a, b) * b
}
