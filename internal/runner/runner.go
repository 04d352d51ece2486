// Package runner serializes crawl execution: one crawl across all
// kinds at a time, cooperative pause, resume without losing counters,
// and non-blocking progress reads.
package runner

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/appdex/catalog-crawler/internal/catalog"
	"github.com/appdex/catalog-crawler/internal/crawl"
	"github.com/appdex/catalog-crawler/internal/progress"
)

// ErrAlreadyRunning is returned by Start while any crawl kind is
// starting or running. The kinds are mutually exclusive across the
// whole process, not just within a kind.
var ErrAlreadyRunning = errors.New("a crawl is already running")

// ErrUnknownKind is returned for kinds no job was registered for.
var ErrUnknownKind = errors.New("unknown crawl kind")

// Job is one runnable crawl, registered per kind.
type Job interface {
	Kind() catalog.Kind
	Run(ctx context.Context, runID uuid.UUID, tracker crawl.Tracker, cancel *catalog.CancelToken) error
}

type state struct {
	total  int
	done   int
	status catalog.Status
	cancel *catalog.CancelToken
	runID  uuid.UUID
}

// Runner owns the per-kind progress state and the single-active-crawl
// invariant. All state transitions happen under one lock so two
// concurrent Start calls cannot both pass the exclusivity check.
type Runner struct {
	mu      sync.Mutex
	jobs    map[catalog.Kind]Job
	states  map[catalog.Kind]*state
	emitter progress.Emitter
	clock   catalog.Clock
	logger  *zap.Logger
}

// New builds a Runner over the given jobs.
func New(clk catalog.Clock, emitter progress.Emitter, logger *zap.Logger, jobs ...Job) *Runner {
	if emitter == nil {
		emitter = progress.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		jobs:    make(map[catalog.Kind]Job, len(jobs)),
		states:  make(map[catalog.Kind]*state, len(jobs)),
		emitter: emitter,
		clock:   clk,
		logger:  logger,
	}
	for _, job := range jobs {
		r.jobs[job.Kind()] = job
		r.states[job.Kind()] = &state{status: catalog.StatusIdle}
	}
	return r
}

// Start launches the kind's crawl on a worker goroutine the caller
// does not wait on. Resuming a paused kind preserves its counters;
// starting from idle or completed resets them. The exclusivity check
// and the status write form one atomic decision under the lock.
func (r *Runner) Start(kind catalog.Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[kind]
	if !ok {
		return ErrUnknownKind
	}
	for _, st := range r.states {
		if st.status == catalog.StatusStarting || st.status == catalog.StatusRunning {
			return ErrAlreadyRunning
		}
	}

	st := r.states[kind]
	if st.status != catalog.StatusPaused {
		st.total = 0
		st.done = 0
	}
	// A fresh token clears any previous cancellation request.
	st.cancel = &catalog.CancelToken{}
	st.status = catalog.StatusStarting
	st.runID = uuid.New()

	go r.work(job, st.cancel, st.runID)
	return nil
}

// Pause requests a cooperative stop and reports the kind as paused
// immediately. The status reflects intent: the worker may still be
// winding down when observers read it.
func (r *Runner) Pause(kind catalog.Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.states[kind]
	if !ok {
		return ErrUnknownKind
	}
	if st.status != catalog.StatusStarting && st.status != catalog.StatusRunning {
		return nil
	}
	st.cancel.Cancel()
	st.status = catalog.StatusPaused
	return nil
}

// Progress returns a snapshot of the kind's counters. It never blocks
// on the worker and returns the zero/idle state for kinds that have
// never run (or were never registered).
func (r *Runner) Progress(kind catalog.Kind) catalog.Progress {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.states[kind]
	if !ok {
		return catalog.Progress{Status: catalog.StatusIdle}
	}
	return catalog.Progress{Total: st.total, Done: st.done, Status: st.status}
}

// work runs the job and always settles the kind's status: completed on
// success or unrecoverable fault (ledgers unchanged, cause logged),
// paused when the cancellation token stopped the run.
func (r *Runner) work(job Job, cancel *catalog.CancelToken, runID uuid.UUID) {
	err := job.Run(context.Background(), runID, &tracker{runner: r, kind: job.Kind()}, cancel)

	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.states[job.Kind()]
	if st.runID != runID {
		// A stale worker must not clobber a newer run's state.
		return
	}
	switch {
	case errors.Is(err, crawl.ErrCancelled):
		st.status = catalog.StatusPaused
	case err != nil:
		r.logger.Error("crawl worker failed",
			zap.String("kind", string(job.Kind())),
			zap.String("run_id", runID.String()),
			zap.Error(err),
		)
		r.emitter.Emit(progress.Event{
			RunID: runID,
			Kind:  job.Kind(),
			TS:    r.clock.Now(),
			Stage: progress.StageRunError,
			Note:  err.Error(),
		})
		st.status = catalog.StatusCompleted
	default:
		st.status = catalog.StatusCompleted
	}
}

// tracker is the lock-guarded counter handle injected into workers.
type tracker struct {
	runner *Runner
	kind   catalog.Kind
}

// SetTotal replaces the progress denominator.
func (t *tracker) SetTotal(total int) {
	t.runner.mu.Lock()
	defer t.runner.mu.Unlock()
	t.runner.states[t.kind].total = total
}

// Add advances the done counter.
func (t *tracker) Add(done int) {
	t.runner.mu.Lock()
	defer t.runner.mu.Unlock()
	t.runner.states[t.kind].done += done
}

// MarkRunning moves starting to running. A pause that raced in wins:
// the paused status set by Pause is never overwritten.
func (t *tracker) MarkRunning() {
	t.runner.mu.Lock()
	defer t.runner.mu.Unlock()
	st := t.runner.states[t.kind]
	if st.status == catalog.StatusStarting {
		st.status = catalog.StatusRunning
	}
}
