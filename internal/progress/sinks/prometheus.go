package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/appdex/catalog-crawler/internal/progress"
)

// PrometheusSink exports crawl progress metrics. It owns all collectors
// for runs started/completed/active and per-kind fetch counters.
type PrometheusSink struct {
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runsActive    prometheus.Gauge

	fetchOutcomes *prometheus.CounterVec
	retryWaits    *prometheus.CounterVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided
// registry (nil falls back to the default registerer).
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_crawl_runs_started_total",
			Help: "Total crawl runs started, partitioned by kind.",
		}, []string{"kind"}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_crawl_runs_completed_total",
			Help: "Total crawl runs finished, partitioned by kind and result.",
		}, []string{"kind", "result"}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "catalog_crawl_runs_active",
			Help: "Current number of active crawl runs.",
		}),
		fetchOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_fetch_outcomes_total",
			Help: "Detail fetch completions partitioned by kind and outcome.",
		}, []string{"kind", "outcome"}),
		retryWaits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_fetch_retry_waits_total",
			Help: "Backoff waits taken by the detail fetcher, partitioned by kind.",
		}, []string{"kind"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsActive,
		s.fetchOutcomes,
		s.retryWaits,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors using the provided batch. It is safe
// for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	kind := string(evt.Kind)
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.WithLabelValues(kind).Inc()
		if s.tracker.start(evt.RunID) {
			s.runsActive.Inc()
		}
	case progress.StageRunDone:
		s.completeRun(evt, "completed")
	case progress.StageRunCancelled:
		s.completeRun(evt, "cancelled")
	case progress.StageRunError:
		s.completeRun(evt, "error")
	case progress.StageFetchDone:
		s.fetchOutcomes.WithLabelValues(kind, string(evt.Outcome)).Inc()
	case progress.StageFetchWait:
		s.retryWaits.WithLabelValues(kind).Inc()
	}
}

func (s *PrometheusSink) completeRun(evt progress.Event, result string) {
	s.runsCompleted.WithLabelValues(string(evt.Kind), result).Inc()
	if s.tracker.complete(evt.RunID) {
		s.runsActive.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu     sync.Mutex
	active map[uuid.UUID]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{active: make(map[uuid.UUID]struct{})}
}

func (t *runTracker) start(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[id]; ok {
		return false
	}
	t.active[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[id]; !ok {
		return false
	}
	delete(t.active, id)
	return true
}
