package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/Adda-Baaj/jist-harvester/internal/domain"
	"github.com/Adda-Baaj/jist-harvester/internal/logger"
)

// ErrRunInProgress is returned when a run is requested while another is active.
var ErrRunInProgress = errors.New("run already in progress")

// RunFunc performs one run.
type RunFunc func(ctx context.Context) (*domain.RunOutcome, error)

// Runner serialises runs: at most one is active at a time.
type Runner struct {
	run     RunFunc
	log     logger.Logger
	running atomic.Bool
	wg      sync.WaitGroup

	mu   sync.Mutex
	last *domain.RunOutcome
}

func NewRunner(run RunFunc, log logger.Logger) *Runner {
	return &Runner{run: run, log: logger.Ensure(log)}
}

// Run executes a run synchronously.
func (r *Runner) Run(ctx context.Context) (*domain.RunOutcome, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer r.running.Store(false)
	return r.execute(ctx)
}

// Start launches a run in the background and reports whether it did. It
// returns false when a run is already active.
func (r *Runner) Start(ctx context.Context) bool {
	if !r.running.CompareAndSwap(false, true) {
		return false
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.running.Store(false)
		if _, err := r.execute(ctx); err != nil {
			r.log.ErrorObj("background run failed", "run_error", map[string]any{"error": err.Error()})
		}
	}()
	return true
}

// Running reports whether a run is active.
func (r *Runner) Running() bool { return r.running.Load() }

// Wait blocks until background runs have finished.
func (r *Runner) Wait() { r.wg.Wait() }

// Last returns the outcome of the most recent completed run, or nil.
func (r *Runner) Last() *domain.RunOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *Runner) execute(ctx context.Context) (*domain.RunOutcome, error) {
	outcome, err := r.run(ctx)
	if outcome != nil {
		r.mu.Lock()
		r.last = outcome
		r.mu.Unlock()
	}
	return outcome, err
}
