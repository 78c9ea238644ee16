package pipeline

import (
	"context"
	"sync"

	"github.com/slipway-sh/slipway/internal/logging"
)

// runFunc is the unit of work the runner serializes. Tests substitute a
// fake; production wires Pipeline.Run.
type runFunc func(ctx context.Context, revision string) (*Result, error)

// Runner serializes pipeline runs. Triggers arriving while a run is in
// flight coalesce into at most one pending follow-up run carrying the most
// recent revision.
type Runner struct {
	run runFunc

	mu      sync.Mutex
	running bool
	pending *string
	wg      sync.WaitGroup
}

// NewRunner wraps the pipeline in a serializing runner.
func NewRunner(p *Pipeline) *Runner {
	return &Runner{run: p.Run}
}

// Trigger requests a deployment of the given revision. If a run is already
// in flight the request is queued; repeated triggers while queued replace
// the queued revision rather than piling up.
func (r *Runner) Trigger(ctx context.Context, revision string) {
	r.mu.Lock()
	if r.running {
		r.pending = &revision
		r.mu.Unlock()
		logging.Get().Info().Str("revision", revision).Msg("deployment in progress; queued follow-up run")
		return
	}
	r.running = true
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		rev := revision
		for {
			if _, err := r.run(ctx, rev); err != nil {
				logging.Get().Error().Err(err).Str("revision", rev).Msg("deployment run failed")
			}
			r.mu.Lock()
			if r.pending == nil {
				r.running = false
				r.mu.Unlock()
				return
			}
			rev = *r.pending
			r.pending = nil
			r.mu.Unlock()
		}
	}()
}

// Wait blocks until in-flight and queued runs complete or the context is
// cancelled.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Busy reports whether a run is currently in flight.
func (r *Runner) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
