// Package crawl implements the crawl runs: the trending category walk
// and the full catalog sync. Both pull checkpoint state, drive the
// detail fetcher, merge results into the in-memory ledgers, and flush
// them back through the checkpoint store.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/appdex/catalog-crawler/internal/catalog"
	"github.com/appdex/catalog-crawler/internal/checkpoint"
	"github.com/appdex/catalog-crawler/internal/fetcher"
	"github.com/appdex/catalog-crawler/internal/progress"
)

// ErrCancelled reports that a run stopped at a cancellation checkpoint
// before completing. Ledgers checkpointed up to the last completed
// category remain valid and are picked up by the next run.
var ErrCancelled = errors.New("crawl cancelled")

// Tracker receives counter updates from a running crawl. The runner
// owns the concrete, lock-guarded implementation.
type Tracker interface {
	SetTotal(total int)
	Add(done int)
	MarkRunning()
}

// DetailFetcher is the single-item fetch the runs drive.
type DetailFetcher interface {
	Fetch(ctx context.Context, id catalog.AppID, notify fetcher.Notifier) (catalog.FetchResult, error)
}

// category is one fixed listing filter. The specials listing uses an
// empty filter plus the specials query flag.
type category struct {
	name     string
	filter   string
	specials bool
}

// Categories are processed in this order on every run.
var categories = []category{
	{name: "topsellers", filter: "topsellers"},
	{name: "globaltopsellers", filter: "globaltopsellers"},
	{name: "popularnew", filter: "popularnew"},
	{name: "popularcomingsoon", filter: "popularcomingsoon"},
	{name: "specials", filter: "", specials: true},
}

// CategoryNames returns the category names in crawl order. Readers
// that merge per-category artifacts rely on this order being stable.
func CategoryNames() []string {
	names := make([]string, len(categories))
	for i, cat := range categories {
		names[i] = cat.name
	}
	return names
}

// TrendingConfig sizes the trending walk.
type TrendingConfig struct {
	// Pages is the page range walked per category (1..Pages).
	Pages int
	// TotalEstimate seeds the progress denominator. It is a rough
	// constant; done is a pacing indicator, not an exact count.
	TotalEstimate int
	// SkipIncrement advances done when a category's artifact already
	// exists and the category is skipped wholesale.
	SkipIncrement int
}

func (c TrendingConfig) withDefaults() TrendingConfig {
	if c.Pages <= 0 {
		c.Pages = 4
	}
	if c.TotalEstimate <= 0 {
		c.TotalEstimate = 500
	}
	if c.SkipIncrement <= 0 {
		c.SkipIncrement = 100
	}
	return c
}

// Trending walks the fixed category listings, discovers candidate app
// IDs from listing logo URLs, fetches details per ID, and writes one
// artifact per category per run.
type Trending struct {
	store    *checkpoint.Store
	listings catalog.ListingClient
	fetch    DetailFetcher
	clock    catalog.Clock
	emitter  progress.Emitter
	cfg      TrendingConfig
	logger   *zap.Logger
}

// NewTrending wires a trending run.
func NewTrending(
	store *checkpoint.Store,
	listings catalog.ListingClient,
	fetch DetailFetcher,
	clk catalog.Clock,
	emitter progress.Emitter,
	cfg TrendingConfig,
	logger *zap.Logger,
) *Trending {
	if emitter == nil {
		emitter = progress.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trending{
		store:    store,
		listings: listings,
		fetch:    fetch,
		clock:    clk,
		emitter:  emitter,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

// Kind identifies the crawl kind this run implements.
func (t *Trending) Kind() catalog.Kind { return catalog.KindTrending }

// Run executes one trending crawl. It returns ErrCancelled when the
// token fires at a checkpoint; any other error is an orchestration
// fault (the per-item taxonomy is absorbed into the ledgers).
func (t *Trending) Run(ctx context.Context, runID uuid.UUID, tracker Tracker, cancel *catalog.CancelToken) error {
	tracker.SetTotal(t.cfg.TotalEstimate)
	t.emit(runID, progress.StageRunStart, "")
	tracker.MarkRunning()

	ledgers := loadLedgers(t.store, t.logger)
	runToken := catalog.RunToken(t.clock.Now())
	notify := &fetchNotifier{emitter: t.emitter, runID: runID, kind: t.Kind(), now: t.clock.Now}

	for _, cat := range categories {
		if cancel.Cancelled() {
			t.emit(runID, progress.StageRunCancelled, cat.name)
			return ErrCancelled
		}
		if t.store.ArtifactExists(cat.name, runToken) {
			t.logger.Info("artifact exists, skipping category",
				zap.String("category", cat.name), zap.String("run", runToken))
			tracker.Add(t.cfg.SkipIncrement)
			continue
		}

		buffer, err := t.drainCategory(ctx, cat, runToken, ledgers, tracker, cancel, notify)
		if err != nil {
			if errors.Is(err, ErrCancelled) {
				t.emit(runID, progress.StageRunCancelled, cat.name)
			}
			return err
		}

		if err := t.store.SaveArtifact(cat.name, runToken, buffer); err != nil {
			return err
		}
		if err := ledgers.save(t.store); err != nil {
			return err
		}
	}

	t.emit(runID, progress.StageRunDone, "")
	return nil
}

// drainCategory walks every page of one category, fetching details for
// each extracted ID and accumulating all non-bundle entries.
func (t *Trending) drainCategory(
	ctx context.Context,
	cat category,
	runToken string,
	ledgers *ledgers,
	tracker Tracker,
	cancel *catalog.CancelToken,
	notify fetcher.Notifier,
) ([]catalog.ListingEntry, error) {
	buffer := []catalog.ListingEntry{}
	for page := 1; page <= t.cfg.Pages; page++ {
		if cancel.Cancelled() {
			return nil, ErrCancelled
		}

		raw, err := t.listings.SearchResults(ctx, catalog.ListingQuery{
			Filter:   cat.filter,
			Specials: cat.specials,
			Page:     page,
		})
		if err != nil {
			// A failed listing page yields nothing to fetch; the crawl
			// moves on rather than aborting the run.
			t.logger.Warn("listing page failed",
				zap.String("category", cat.name), zap.Int("page", page), zap.Error(err))
			continue
		}

		entries := filterListing(raw)
		t.logger.Info("listing page drained",
			zap.String("category", cat.name),
			zap.Int("page", page),
			zap.Int("entries", len(entries)),
			zap.Int("dropped", len(raw)-len(entries)),
		)

		for _, entry := range entries {
			if cancel.Cancelled() {
				return nil, ErrCancelled
			}
			if entry.AppID.Valid() {
				result, err := t.fetch.Fetch(ctx, entry.AppID, notify)
				if err != nil {
					return nil, fmt.Errorf("fetch app %d: %w", entry.AppID, err)
				}
				ledgers.apply(result, t.logger)
			}
			// Entries without an extractable ID still advance done;
			// progress is a pacing indicator, not a fetch count.
			tracker.Add(1)
		}
		buffer = append(buffer, entries...)
	}
	return buffer, nil
}

// filterListing drops bundle entries and extracts the app ID from each
// remaining entry's logo URL. Entries with no extractable ID are kept
// in the listing buffer with a zero ID.
func filterListing(raw []catalog.ListingEntry) []catalog.ListingEntry {
	out := make([]catalog.ListingEntry, 0, len(raw))
	for _, entry := range raw {
		if catalog.IsBundle(entry.Logo) {
			continue
		}
		entry.AppID = catalog.ExtractAppID(entry.Logo)
		out = append(out, entry)
	}
	return out
}

func (t *Trending) emit(runID uuid.UUID, stage progress.Stage, note string) {
	t.emitter.Emit(progress.Event{
		RunID: runID,
		Kind:  t.Kind(),
		TS:    t.clock.Now(),
		Stage: stage,
		Note:  note,
	})
}

// fetchNotifier bridges fetcher notifications onto the progress stream
// with the run's identity attached.
type fetchNotifier struct {
	emitter progress.Emitter
	runID   uuid.UUID
	kind    catalog.Kind
	now     func() time.Time
}

func (n *fetchNotifier) FetchWait(id catalog.AppID, wait time.Duration, note string) {
	n.emitter.Emit(progress.Event{
		RunID: n.runID,
		Kind:  n.kind,
		TS:    n.now(),
		Stage: progress.StageFetchWait,
		AppID: id,
		Wait:  wait,
		Note:  note,
	})
}

func (n *fetchNotifier) FetchDone(id catalog.AppID, outcome catalog.Outcome, note string) {
	n.emitter.Emit(progress.Event{
		RunID:   n.runID,
		Kind:    n.kind,
		TS:      n.now(),
		Stage:   progress.StageFetchDone,
		AppID:   id,
		Outcome: outcome,
		Note:    note,
	})
}
