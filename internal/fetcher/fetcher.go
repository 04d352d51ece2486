// Package fetcher retrieves one item's full record from the remote
// API, absorbing rate limits and transient blocks with fixed-interval
// blocking retries.
package fetcher

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/appdex/catalog-crawler/internal/catalog"
)

// Notifier receives one notification per fetch outcome and one per
// backoff wait. The crawl layer bridges these to the progress stream.
type Notifier interface {
	FetchWait(id catalog.AppID, wait time.Duration, note string)
	FetchDone(id catalog.AppID, outcome catalog.Outcome, note string)
}

// NopNotifier discards notifications.
type NopNotifier struct{}

// FetchWait implements Notifier.
func (NopNotifier) FetchWait(catalog.AppID, time.Duration, string) {}

// FetchDone implements Notifier.
func (NopNotifier) FetchDone(catalog.AppID, catalog.Outcome, string) {}

// Config controls the fixed retry waits.
type Config struct {
	// RateLimitWait is slept after a 429 before retrying (default 10s).
	RateLimitWait time.Duration
	// BlockedWait is slept after a 403 before retrying (default 5m).
	// The longer interval reflects a harsher, longer-lived block.
	BlockedWait time.Duration
}

func (c Config) withDefaults() Config {
	if c.RateLimitWait <= 0 {
		c.RateLimitWait = 10 * time.Second
	}
	if c.BlockedWait <= 0 {
		c.BlockedWait = 5 * time.Minute
	}
	return c
}

// retryState tracks one blocked fetch. Attempts is not used for a
// cutoff today; it exists so a bounded-retry policy can be added
// without restructuring the loop.
type retryState struct {
	Since    time.Time
	Attempts int
}

// Fetcher fetches single items synchronously. 429 and 403 are retried
// indefinitely with fixed waits; the remote quota is expected to clear
// within seconds to minutes, and giving up would silently lose data.
// The waits are plain sleeps, not cancellation-aware: a pause during a
// wait takes effect at the next item boundary, which bounds pause
// latency at one wait interval.
type Fetcher struct {
	client catalog.DetailClient
	cfg    Config
	logger *zap.Logger
	sleep  func(time.Duration)
	now    func() time.Time
}

// New builds a Fetcher around a DetailClient.
func New(client catalog.DetailClient, cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		client: client,
		cfg:    cfg.withDefaults(),
		logger: logger,
		sleep:  time.Sleep,
		now:    time.Now,
	}
}

// Fetch retrieves one item's details. The returned result is always
// routable: fetched records go to the dataset, excluded and failed IDs
// to their ledgers. The error return is reserved for context
// cancellation between retries.
func (f *Fetcher) Fetch(ctx context.Context, id catalog.AppID, notify Notifier) (catalog.FetchResult, error) {
	if notify == nil {
		notify = NopNotifier{}
	}
	state := retryState{Since: f.now()}
	for {
		resp, err := f.client.AppDetails(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return catalog.FetchResult{}, ctx.Err()
			}
			f.logger.Warn("details request failed",
				zap.Int64("app_id", int64(id)), zap.Error(err))
			notify.FetchDone(id, catalog.OutcomeFailed, err.Error())
			return catalog.FetchResult{AppID: id, Outcome: catalog.OutcomeFailed}, nil
		}

		switch resp.StatusCode {
		case http.StatusOK:
			if resp.Success {
				f.logger.Debug("app fetched", zap.Int64("app_id", int64(id)))
				notify.FetchDone(id, catalog.OutcomeFetched, "")
				return catalog.FetchResult{AppID: id, Outcome: catalog.OutcomeFetched, Record: resp.Data}, nil
			}
			f.logger.Debug("app excluded", zap.Int64("app_id", int64(id)))
			notify.FetchDone(id, catalog.OutcomeExcluded, "success=false")
			return catalog.FetchResult{AppID: id, Outcome: catalog.OutcomeExcluded}, nil

		case http.StatusTooManyRequests:
			state.Attempts++
			f.logger.Info("rate limited, backing off",
				zap.Int64("app_id", int64(id)),
				zap.Duration("wait", f.cfg.RateLimitWait),
				zap.Int("attempts", state.Attempts),
				zap.Time("since", state.Since),
			)
			notify.FetchWait(id, f.cfg.RateLimitWait, "too many requests")
			f.sleep(f.cfg.RateLimitWait)

		case http.StatusForbidden:
			state.Attempts++
			f.logger.Warn("access forbidden, backing off",
				zap.Int64("app_id", int64(id)),
				zap.Duration("wait", f.cfg.BlockedWait),
				zap.Int("attempts", state.Attempts),
				zap.Time("since", state.Since),
			)
			notify.FetchWait(id, f.cfg.BlockedWait, "forbidden")
			f.sleep(f.cfg.BlockedWait)

		default:
			f.logger.Warn("unexpected details status",
				zap.Int64("app_id", int64(id)),
				zap.Int("status", resp.StatusCode),
			)
			notify.FetchDone(id, catalog.OutcomeFailed, http.StatusText(resp.StatusCode))
			return catalog.FetchResult{AppID: id, Outcome: catalog.OutcomeFailed}, nil
		}
	}
}
