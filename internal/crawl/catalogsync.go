package crawl

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/appdex/catalog-crawler/internal/catalog"
	"github.com/appdex/catalog-crawler/internal/checkpoint"
	"github.com/appdex/catalog-crawler/internal/progress"
)

// checkpointEvery bounds how much catalog-sync work can be lost to an
// interruption between flushes.
const checkpointEvery = 50

// CatalogSyncConfig bounds one catalog-sync run.
type CatalogSyncConfig struct {
	// MaxNewPerRun caps detail fetches per run; the next run continues
	// where the ledgers left off.
	MaxNewPerRun int
}

func (c CatalogSyncConfig) withDefaults() CatalogSyncConfig {
	if c.MaxNewPerRun <= 0 {
		c.MaxNewPerRun = 200
	}
	return c
}

// CatalogSync walks the full application index and fetches details for
// IDs no ledger has seen yet.
type CatalogSync struct {
	store   *checkpoint.Store
	index   catalog.AppListClient
	fetch   DetailFetcher
	clock   catalog.Clock
	emitter progress.Emitter
	cfg     CatalogSyncConfig
	logger  *zap.Logger
}

// NewCatalogSync wires a catalog-sync run.
func NewCatalogSync(
	store *checkpoint.Store,
	index catalog.AppListClient,
	fetch DetailFetcher,
	clk catalog.Clock,
	emitter progress.Emitter,
	cfg CatalogSyncConfig,
	logger *zap.Logger,
) *CatalogSync {
	if emitter == nil {
		emitter = progress.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogSync{
		store:   store,
		index:   index,
		fetch:   fetch,
		clock:   clk,
		emitter: emitter,
		cfg:     cfg.withDefaults(),
		logger:  logger,
	}
}

// Kind identifies the crawl kind this run implements.
func (c *CatalogSync) Kind() catalog.Kind { return catalog.KindCatalog }

// Run executes one catalog sync: fetch the index, drop entries with
// empty names, fetch details for unknown IDs up to the per-run cap,
// and checkpoint periodically so interruption loses little work.
func (c *CatalogSync) Run(ctx context.Context, runID uuid.UUID, tracker Tracker, cancel *catalog.CancelToken) error {
	index, err := c.index.AppList(ctx)
	if err != nil {
		return fmt.Errorf("fetch app index: %w", err)
	}

	ledgers := loadLedgers(c.store, c.logger)

	candidates := make([]catalog.AppID, 0, c.cfg.MaxNewPerRun)
	for _, entry := range index {
		if !entry.AppID.Valid() || entry.Name == "" {
			continue
		}
		if ledgers.knows(entry.AppID) {
			continue
		}
		candidates = append(candidates, entry.AppID)
		if len(candidates) == c.cfg.MaxNewPerRun {
			break
		}
	}

	tracker.SetTotal(len(candidates))
	c.emit(runID, progress.StageRunStart, "")
	tracker.MarkRunning()
	c.logger.Info("catalog sync starting",
		zap.Int("index_size", len(index)), zap.Int("candidates", len(candidates)))

	notify := &fetchNotifier{emitter: c.emitter, runID: runID, kind: c.Kind(), now: c.clock.Now}
	sinceFlush := 0
	for _, id := range candidates {
		if cancel.Cancelled() {
			c.emit(runID, progress.StageRunCancelled, "")
			return ErrCancelled
		}
		result, err := c.fetch.Fetch(ctx, id, notify)
		if err != nil {
			return fmt.Errorf("fetch app %d: %w", id, err)
		}
		ledgers.apply(result, c.logger)
		tracker.Add(1)
		sinceFlush++
		if sinceFlush >= checkpointEvery {
			if err := ledgers.save(c.store); err != nil {
				return err
			}
			sinceFlush = 0
		}
	}

	if err := ledgers.save(c.store); err != nil {
		return err
	}
	c.emit(runID, progress.StageRunDone, "")
	return nil
}

func (c *CatalogSync) emit(runID uuid.UUID, stage progress.Stage, note string) {
	c.emitter.Emit(progress.Event{
		RunID: runID,
		Kind:  c.Kind(),
		TS:    c.clock.Now(),
		Stage: stage,
		Note:  note,
	})
}
