// Package runner runs independent units of work concurrently and reports the
// outcome of every unit instead of only the first error.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/wafbackup/internal/config"
	"github.com/edvin/wafbackup/internal/metrics"
)

// Outcome is the result of one unit.
type Outcome struct {
	Kind     string
	Name     string
	Err      error
	Skipped  bool
	Duration time.Duration
}

func (o Outcome) Unit() string {
	if o.Name == "" {
		return o.Kind
	}
	return o.Kind + " " + o.Name
}

func (o Outcome) OK() bool { return o.Err == nil }

// Report collects the outcomes of a group in submission order.
type Report struct {
	Outcomes []Outcome
}

func (r Report) Failures() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if !o.OK() {
			out = append(out, o)
		}
	}
	return out
}

// Err joins every failure into one error, nil when all units succeeded.
func (r Report) Err() error {
	var errs []error
	for _, o := range r.Failures() {
		errs = append(errs, fmt.Errorf("%s: %w", o.Unit(), o.Err))
	}
	return errors.Join(errs...)
}

// Merge appends the outcomes of other reports.
func (r *Report) Merge(others ...Report) {
	for _, o := range others {
		r.Outcomes = append(r.Outcomes, o.Outcomes...)
	}
}

// Group is a barrier over concurrently running units. With the abort policy
// the first failure cancels the context handed to every unit and units that
// have not started yet are recorded as skipped. With the continue policy
// every unit runs to completion regardless of its siblings.
type Group struct {
	eg     *errgroup.Group
	ctx    context.Context
	abort  bool
	logger zerolog.Logger

	mu       sync.Mutex
	outcomes []Outcome
}

// NewGroup creates a group running at most limit units at a time (limit <= 0
// means unbounded). onFailure is config.OnFailureAbort or config.OnFailureContinue.
func NewGroup(ctx context.Context, onFailure string, limit int, logger zerolog.Logger) *Group {
	g := &Group{logger: logger, abort: onFailure == config.OnFailureAbort}
	if g.abort {
		g.eg, g.ctx = errgroup.WithContext(ctx)
	} else {
		g.eg, g.ctx = &errgroup.Group{}, ctx
	}
	if limit > 0 {
		g.eg.SetLimit(limit)
	}
	return g
}

// Go schedules fn. It may block while the group is at its limit.
func (g *Group) Go(kind, name string, fn func(ctx context.Context) error) {
	g.mu.Lock()
	slot := len(g.outcomes)
	g.outcomes = append(g.outcomes, Outcome{Kind: kind, Name: name})
	g.mu.Unlock()

	g.eg.Go(func() error {
		if err := g.ctx.Err(); err != nil && g.abort {
			g.record(slot, Outcome{Kind: kind, Name: name, Err: err, Skipped: true})
			return nil
		}

		start := time.Now()
		err := fn(g.ctx)
		o := Outcome{Kind: kind, Name: name, Err: err, Duration: time.Since(start)}
		g.record(slot, o)

		if err != nil {
			metrics.UnitFailures.WithLabelValues(kind).Inc()
			g.logger.Error().Err(err).Str("unit", o.Unit()).Msg("unit failed")
			if g.abort {
				return err
			}
		}
		return nil
	})
}

func (g *Group) record(slot int, o Outcome) {
	g.mu.Lock()
	g.outcomes[slot] = o
	g.mu.Unlock()
}

// Wait blocks until every scheduled unit has finished and returns the report.
func (g *Group) Wait() Report {
	_ = g.eg.Wait()
	g.mu.Lock()
	defer g.mu.Unlock()
	return Report{Outcomes: append([]Outcome(nil), g.outcomes...)}
}
