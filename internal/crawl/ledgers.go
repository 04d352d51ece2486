package crawl

import (
	"errors"

	"go.uber.org/zap"

	"github.com/appdex/catalog-crawler/internal/catalog"
	"github.com/appdex/catalog-crawler/internal/checkpoint"
)

// ledgers is the in-memory working copy of the three durable
// collections. The active worker holds the only mutable copy during a
// run and is solely responsible for flushing it back.
type ledgers struct {
	apps     catalog.Apps
	excluded catalog.IDList
	errored  catalog.IDList
}

// loadLedgers pulls the latest checkpoint of each ledger. An absent or
// corrupt checkpoint starts that ledger empty; corruption is logged
// for the operator but never aborts a crawl.
func loadLedgers(store *checkpoint.Store, logger *zap.Logger) *ledgers {
	l := &ledgers{apps: catalog.Apps{}}

	if path, ok := store.Latest(checkpoint.AppsPrefix); ok {
		apps, err := store.LoadApps(path)
		if err != nil {
			logLedgerLoad(logger, checkpoint.AppsPrefix, path, err)
		} else {
			l.apps = apps
			logger.Info("loaded item dataset", zap.String("path", path), zap.Int("items", len(apps)))
		}
	} else {
		logger.Info("no item dataset checkpoint found")
	}

	l.excluded = loadIDLedger(store, logger, checkpoint.ExcludedPrefix)
	l.errored = loadIDLedger(store, logger, checkpoint.ErrorsPrefix)
	return l
}

func loadIDLedger(store *checkpoint.Store, logger *zap.Logger, prefix string) catalog.IDList {
	path, ok := store.Latest(prefix)
	if !ok {
		logger.Info("no checkpoint found", zap.String("ledger", prefix))
		return catalog.IDList{}
	}
	list, err := store.LoadIDList(path)
	if err != nil {
		logLedgerLoad(logger, prefix, path, err)
		return catalog.IDList{}
	}
	logger.Info("loaded ledger", zap.String("ledger", prefix), zap.String("path", path), zap.Int("items", len(list)))
	return list
}

func logLedgerLoad(logger *zap.Logger, prefix, path string, err error) {
	if errors.Is(err, checkpoint.ErrCorruptCheckpoint) {
		logger.Warn("corrupt checkpoint, starting ledger empty",
			zap.String("ledger", prefix), zap.String("path", path))
		return
	}
	logger.Warn("checkpoint load failed, starting ledger empty",
		zap.String("ledger", prefix), zap.String("path", path), zap.Error(err))
}

// apply merges one fetch result. Upserts are idempotent; the ID
// ledgers never take duplicates. Exclusion is a property of one fetch
// outcome, not an identifier-level ban, so an excluded ID seen again
// on a later run is simply re-fetched.
func (l *ledgers) apply(result catalog.FetchResult, logger *zap.Logger) {
	switch result.Outcome {
	case catalog.OutcomeFetched:
		_, known := l.apps[result.AppID]
		l.apps[result.AppID] = result.Record
		if known {
			logger.Debug("updated app", zap.Int64("app_id", int64(result.AppID)))
		} else {
			logger.Debug("added app", zap.Int64("app_id", int64(result.AppID)))
		}
	case catalog.OutcomeExcluded:
		l.excluded = l.excluded.AppendUnique(result.AppID)
		logger.Debug("excluded app", zap.Int64("app_id", int64(result.AppID)))
	case catalog.OutcomeFailed:
		l.errored = l.errored.AppendUnique(result.AppID)
		logger.Warn("app routed to error ledger", zap.Int64("app_id", int64(result.AppID)))
	}
}

// knows reports whether any ledger has already seen the ID.
func (l *ledgers) knows(id catalog.AppID) bool {
	if _, ok := l.apps[id]; ok {
		return true
	}
	return l.excluded.Contains(id) || l.errored.Contains(id)
}

// save flushes all three ledgers through the checkpoint store.
func (l *ledgers) save(store *checkpoint.Store) error {
	return store.Save(l.apps, l.excluded, l.errored)
}
