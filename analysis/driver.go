package analysis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// ErrIterationLimit is returned when the worklist does not drain within
// Options.MaxIterations unit runs.
var ErrIterationLimit = errors.New("exceeded maximum iterations")

// Analyze runs queued units one at a time until the worklist is empty.
// Stale units are skipped. The first unit error aborts the run.
func (p *Project) Analyze(ctx context.Context) error {
	p.logger.With(map[string]any{
		"pending": p.queue.len(),
		"modules": len(p.Modules()),
	}).Infof("Starting analysis")

	maxIterations := p.opts.MaxIterations
	iterations := 0
	skipped := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		u := p.queue.pop()
		if u == nil {
			break
		}
		if !u.Alive() {
			skipped++
			continue
		}

		iterations++
		if iterations > maxIterations {
			return fmt.Errorf("%w (%d) - possible non-monotonic unit", ErrIterationLimit, maxIterations)
		}

		p.logger.With(map[string]any{
			"unit":    u.name,
			"run":     u.Runs() + 1,
			"pending": p.queue.len(),
		}).Debugf("Running unit")

		if err := u.run(); err != nil {
			p.logger.With(map[string]any{"unit": u.name}).Errorf("Unit failed: %v", err)
			return fmt.Errorf("unit %s: %w", u.name, err)
		}
		p.count(func(s *Stats) { s.Runs++ })
	}

	p.logger.With(map[string]any{
		"runs":     iterations,
		"skipped":  skipped,
		"warnings": len(p.Warnings()),
	}).Infof("Analysis completed")
	return nil
}

// AnalyzeParallel drains the worklist in rounds. Each round takes every
// queued unit, groups them by module and runs the groups concurrently on
// up to workers goroutines; units of one module run in queue order.
// Anything enqueued during a round runs in the next one.
func (p *Project) AnalyzeParallel(ctx context.Context, workers int) error {
	if workers <= 0 {
		workers = p.opts.Workers
	}
	p.logger.With(map[string]any{
		"pending": p.queue.len(),
		"workers": workers,
	}).Infof("Starting parallel analysis")

	maxIterations := int64(p.opts.MaxIterations)
	var iterations atomic.Int64
	rounds := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		units := p.queue.popAll()
		if len(units) == 0 {
			break
		}
		rounds++

		groups := make(map[ModuleID][]*Unit)
		for _, u := range units {
			groups[u.module] = append(groups[u.module], u)
		}
		keys := make([]ModuleID, 0, len(groups))
		for id := range groups {
			keys = append(keys, id)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

		p.logger.With(map[string]any{
			"round":  rounds,
			"units":  len(units),
			"groups": len(groups),
		}).Debugf("Starting round")

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for _, id := range keys {
			batch := groups[id]
			g.Go(func() error {
				for _, u := range batch {
					if err := gctx.Err(); err != nil {
						return err
					}
					if !u.Alive() {
						continue
					}
					if n := iterations.Add(1); n > maxIterations {
						return fmt.Errorf("%w (%d) - possible non-monotonic unit", ErrIterationLimit, maxIterations)
					}
					if err := u.run(); err != nil {
						return fmt.Errorf("unit %s: %w", u.name, err)
					}
					p.count(func(s *Stats) { s.Runs++ })
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			p.logger.Errorf("Parallel analysis failed: %v", err)
			return err
		}
	}

	p.logger.With(map[string]any{
		"runs":   iterations.Load(),
		"rounds": rounds,
	}).Infof("Parallel analysis completed")
	return nil
}
