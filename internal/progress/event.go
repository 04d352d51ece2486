// Package progress defines the event stream emitted by crawl workers
// and the hub that fans it out to sinks.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/appdex/catalog-crawler/internal/catalog"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart     Stage = "RUN_START"
	StageRunDone      Stage = "RUN_DONE"
	StageRunCancelled Stage = "RUN_CANCELLED"
	StageRunError     Stage = "RUN_ERROR"
	StageFetchDone    Stage = "FETCH_DONE"
	StageFetchWait    Stage = "FETCH_WAIT"
)

// Event captures a single milestone of crawl progress.
type Event struct {
	// RunID identifies one crawl run.
	RunID uuid.UUID
	// Kind is the crawl kind the run belongs to.
	Kind catalog.Kind
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle or fetch milestone occurred.
	Stage Stage
	// AppID scopes fetch events to one catalog item.
	AppID catalog.AppID
	// Outcome classifies fetch completions.
	Outcome catalog.Outcome
	// Wait is the backoff interval for FETCH_WAIT events.
	Wait time.Duration
	// Note carries low-volume context (error text, skip reasons).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.Kind == "" {
		return errors.New("kind is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunCancelled, StageRunError:
	case StageFetchDone:
		if !e.AppID.Valid() {
			return errors.New("fetch done requires an app id")
		}
		if e.Outcome == "" {
			return errors.New("fetch done requires an outcome")
		}
	case StageFetchWait:
		if e.Wait <= 0 {
			return errors.New("fetch wait requires a positive interval")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	return nil
}

