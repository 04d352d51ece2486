// Package dataset is the read side of the crawler: it serves queries
// over the latest checkpointed ledgers without touching the live crawl
// loop. Snapshots are loaded once and swapped whole on Reload, so
// readers never see a half-written view.
package dataset

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/appdex/catalog-crawler/internal/catalog"
	"github.com/appdex/catalog-crawler/internal/checkpoint"
	"github.com/appdex/catalog-crawler/internal/crawl"
)

// searchCacheSize bounds the memoized name-search results.
const searchCacheSize = 256

// Stats summarizes the three ledgers.
type Stats struct {
	TotalApps    int `json:"total_apps"`
	ExcludedApps int `json:"excluded_apps"`
	ErrorApps    int `json:"error_apps"`
}

// Retriever answers queries over an in-memory snapshot of the latest
// checkpoints. It is safe for concurrent use; Reload swaps the
// snapshot atomically under the lock.
type Retriever struct {
	store  *checkpoint.Store
	logger *zap.Logger

	mu       sync.RWMutex
	apps     catalog.Apps
	excluded catalog.IDList
	errored  catalog.IDList

	search *lru.Cache[string, []catalog.AppID]
}

// NewRetriever loads the latest checkpoints into memory. Absent or
// corrupt checkpoints yield an empty snapshot rather than an error; a
// crawler that has never run still serves an empty, queryable dataset.
func NewRetriever(store *checkpoint.Store, logger *zap.Logger) (*Retriever, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	search, err := lru.New[string, []catalog.AppID](searchCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create search cache: %w", err)
	}
	r := &Retriever{store: store, logger: logger, search: search}
	r.Reload()
	return r, nil
}

// Reload re-reads the latest checkpoints and swaps the snapshot. The
// search cache is purged because cached results may reference a stale
// dataset.
func (r *Retriever) Reload() {
	apps := catalog.Apps{}
	if path, ok := r.store.Latest(checkpoint.AppsPrefix); ok {
		loaded, err := r.store.LoadApps(path)
		if err != nil {
			r.logger.Warn("loading item dataset failed", zap.String("path", path), zap.Error(err))
		} else {
			apps = loaded
		}
	}
	excluded := r.loadList(checkpoint.ExcludedPrefix)
	errored := r.loadList(checkpoint.ErrorsPrefix)

	r.mu.Lock()
	r.apps = apps
	r.excluded = excluded
	r.errored = errored
	r.search.Purge()
	r.mu.Unlock()

	r.logger.Info("dataset snapshot loaded",
		zap.Int("apps", len(apps)),
		zap.Int("excluded", len(excluded)),
		zap.Int("errored", len(errored)),
	)
}

func (r *Retriever) loadList(prefix string) catalog.IDList {
	path, ok := r.store.Latest(prefix)
	if !ok {
		return catalog.IDList{}
	}
	list, err := r.store.LoadIDList(path)
	if err != nil {
		r.logger.Warn("loading ledger failed", zap.String("path", path), zap.Error(err))
		return catalog.IDList{}
	}
	return list
}

// AppDetails returns the record for one app and whether it exists in
// the dataset.
func (r *Retriever) AppDetails(id catalog.AppID) (catalog.Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.apps[id]
	return rec, ok
}

// AllAppIDs returns every dataset ID in ascending order.
func (r *Retriever) AllAppIDs() []catalog.AppID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]catalog.AppID, 0, len(r.apps))
	for id := range r.apps {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SearchByName returns the IDs whose names contain the query,
// case-insensitive, in ascending ID order. Results are memoized per
// normalized query until the next Reload.
func (r *Retriever) SearchByName(query string) []catalog.AppID {
	key := strings.ToLower(strings.TrimSpace(query))
	if key == "" {
		return nil
	}

	// Add happens under the same read lock as the scan so Reload's
	// purge, which takes the write lock, cannot miss a stale insert.
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cached, ok := r.search.Get(key); ok {
		return cached
	}
	ids := r.filterLocked(func(rec catalog.Record) bool {
		return strings.Contains(strings.ToLower(rec.Name()), key)
	})
	r.search.Add(key, ids)
	return ids
}

// FilterByType returns the IDs whose item type matches exactly,
// case-insensitive.
func (r *Retriever) FilterByType(itemType string) []catalog.AppID {
	want := strings.ToLower(itemType)
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filterLocked(func(rec catalog.Record) bool {
		return strings.ToLower(rec.Type()) == want
	})
}

// FilterByPriceRange returns the IDs whose pre-discount price falls in
// [min, max]. Free items match only when min is zero; items with no
// price block never match.
func (r *Retriever) FilterByPriceRange(min, max float64) []catalog.AppID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filterLocked(func(rec catalog.Record) bool {
		if rec.IsFree() {
			return min <= 0
		}
		price, ok := rec.InitialPrice()
		if !ok {
			return false
		}
		return price >= min && price <= max
	})
}

// AppsWithGenre returns the IDs whose genres contain the given genre.
func (r *Retriever) AppsWithGenre(genre string) []catalog.AppID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filterLocked(func(rec catalog.Record) bool { return rec.HasGenre(genre) })
}

// AppsWithTag returns the IDs whose categories contain the given tag.
func (r *Retriever) AppsWithTag(tag string) []catalog.AppID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filterLocked(func(rec catalog.Record) bool { return rec.HasTag(tag) })
}

// AppsByDeveloper returns the IDs developed by a studio whose name
// contains dev.
func (r *Retriever) AppsByDeveloper(dev string) []catalog.AppID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filterLocked(func(rec catalog.Record) bool { return rec.HasDeveloper(dev) })
}

// AppsByPublisher returns the IDs published by a company whose name
// contains pub.
func (r *Retriever) AppsByPublisher(pub string) []catalog.AppID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filterLocked(func(rec catalog.Record) bool { return rec.HasPublisher(pub) })
}

// filterLocked collects matching IDs in ascending order. Callers must
// hold at least a read lock.
func (r *Retriever) filterLocked(match func(catalog.Record) bool) []catalog.AppID {
	var ids []catalog.AppID
	for id, rec := range r.apps {
		if match(rec) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Stats reports ledger sizes from the current snapshot.
func (r *Retriever) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{
		TotalApps:    len(r.apps),
		ExcludedApps: len(r.excluded),
		ErrorApps:    len(r.errored),
	}
}

// LatestSearchResults merges the newest run's category artifacts into
// one listing, de-duplicated by app ID. Categories merge in crawl
// order and the first occurrence of an ID wins, so the merged order is
// deterministic across calls. No artifacts at all yields an empty
// slice.
func (r *Retriever) LatestSearchResults() ([]catalog.ListingEntry, error) {
	token, ok := r.store.LatestRunToken()
	if !ok {
		return []catalog.ListingEntry{}, nil
	}
	seen := map[catalog.AppID]struct{}{}
	merged := []catalog.ListingEntry{}
	for _, category := range crawl.CategoryNames() {
		entries, err := r.store.LoadArtifact(category, token)
		if err != nil {
			return nil, fmt.Errorf("load %s artifact: %w", category, err)
		}
		for _, entry := range entries {
			if entry.AppID.Valid() {
				if _, dup := seen[entry.AppID]; dup {
					continue
				}
				seen[entry.AppID] = struct{}{}
			}
			merged = append(merged, entry)
		}
	}
	return merged, nil
}
