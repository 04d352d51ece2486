// Package checkpoint persists the three crawl ledgers (item dataset,
// exclusion list, error list) and the per-category listing artifacts.
//
// Layout is a committed contract shared with downstream consumers:
// ledger files are named {prefix}-ckpt-{token}.json under the
// checkpoint root, and "latest" is the lexicographically greatest
// filename matching a ledger's prefix. Tokens are zero-padded dates or
// the terminal token "fin", so lexicographic order is recency order.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/appdex/catalog-crawler/internal/catalog"
)

// Ledger file prefixes.
const (
	AppsPrefix     = "apps_dict"
	ExcludedPrefix = "excluded_apps_list"
	ErrorsPrefix   = "error_apps_list"
)

const (
	marker        = "-ckpt-"
	terminalToken = "fin"
	ledgerExt     = ".json"

	searchResultsDir    = "searchresults"
	searchResultsPrefix = "search_results_"

	dirPerm  = 0o750
	filePerm = 0o600
)

// ErrCorruptCheckpoint marks a checkpoint file whose bytes cannot be
// decoded. Callers treat it as "no usable checkpoint" rather than a
// fatal fault.
var ErrCorruptCheckpoint = errors.New("corrupt checkpoint")

// Store owns the on-disk ledger files under a single root directory.
type Store struct {
	root   string
	logger *zap.Logger
}

// NewStore builds a Store rooted at root. The directory does not need
// to exist yet; Save creates it.
func NewStore(root string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{root: root, logger: logger}
}

// Root returns the checkpoint root directory.
func (s *Store) Root() string { return s.root }

// Latest resolves the newest checkpoint file for a ledger prefix,
// scanning the root recursively. A missing root is not an error; it
// simply means no checkpoint exists for any ledger.
func (s *Store) Latest(prefix string) (string, bool) {
	var matches []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, prefix) && strings.Contains(name, marker) && strings.HasSuffix(name, ledgerExt) {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("checkpoint scan failed", zap.String("root", s.root), zap.Error(err))
		}
		return "", false
	}
	if len(matches) == 0 {
		return "", false
	}
	sort.Strings(matches)
	return matches[len(matches)-1], true
}

// LoadApps decodes an item-dataset checkpoint.
func (s *Store) LoadApps(path string) (catalog.Apps, error) {
	var apps catalog.Apps
	if err := s.loadJSON(path, &apps); err != nil {
		return nil, err
	}
	if apps == nil {
		apps = catalog.Apps{}
	}
	return apps, nil
}

// LoadIDList decodes an exclusion or error ledger checkpoint.
func (s *Store) LoadIDList(path string) (catalog.IDList, error) {
	var list catalog.IDList
	if err := s.loadJSON(path, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *Store) loadJSON(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read checkpoint %s: %w", path, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode checkpoint %s: %w", path, ErrCorruptCheckpoint)
	}
	return nil
}

// Save writes all three ledgers as terminal checkpoints, creating the
// root if needed. After Save returns, Latest resolves each ledger to
// the data just written.
func (s *Store) Save(apps catalog.Apps, excluded, errored catalog.IDList) error {
	if err := os.MkdirAll(s.root, dirPerm); err != nil {
		return fmt.Errorf("create checkpoint root: %w", err)
	}
	for _, ledger := range []struct {
		prefix string
		value  any
	}{
		{AppsPrefix, apps},
		{ExcludedPrefix, excluded},
		{ErrorsPrefix, errored},
	} {
		path := filepath.Join(s.root, ledger.prefix+marker+terminalToken+ledgerExt)
		if err := writeJSONAtomic(path, ledger.value); err != nil {
			return fmt.Errorf("save %s checkpoint: %w", ledger.prefix, err)
		}
		s.logger.Debug("checkpoint saved", zap.String("ledger", ledger.prefix), zap.String("path", path))
	}
	return nil
}

// Clean removes every dataset entry whose value is absent, not a
// record, or has an empty name, moves the removed identifiers into the
// exclusion ledger, and rewrites the dataset at the checkpoint path it
// was loaded from. It returns the number of entries removed. Offline
// maintenance only; never part of the live crawl loop.
func (s *Store) Clean() (int, error) {
	appsPath, ok := s.Latest(AppsPrefix)
	if !ok {
		return 0, nil
	}

	// Decode loosely so malformed values survive to be judged here.
	var raw map[catalog.AppID]any
	if err := s.loadJSON(appsPath, &raw); err != nil {
		return 0, err
	}

	excluded := catalog.IDList{}
	if excPath, ok := s.Latest(ExcludedPrefix); ok {
		list, err := s.LoadIDList(excPath)
		if err != nil {
			return 0, err
		}
		excluded = list
	}

	apps := catalog.Apps{}
	var removed []catalog.AppID
	for id, value := range raw {
		rec, ok := value.(map[string]any)
		if !ok || catalog.Record(rec).Name() == "" {
			removed = append(removed, id)
			continue
		}
		apps[id] = catalog.Record(rec)
	}
	if len(removed) == 0 {
		return 0, nil
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })
	for _, id := range removed {
		excluded = excluded.AppendUnique(id)
	}

	if err := writeJSONAtomic(appsPath, apps); err != nil {
		return 0, fmt.Errorf("rewrite cleaned dataset: %w", err)
	}
	excPath, ok := s.Latest(ExcludedPrefix)
	if !ok {
		excPath = filepath.Join(s.root, ExcludedPrefix+marker+terminalToken+ledgerExt)
	}
	if err := writeJSONAtomic(excPath, excluded); err != nil {
		return 0, fmt.Errorf("rewrite exclusion ledger: %w", err)
	}

	s.logger.Info("dataset cleaned",
		zap.Int("removed", len(removed)),
		zap.String("path", appsPath),
	)
	return len(removed), nil
}

// writeJSONAtomic writes value to path via a temp file and rename, so
// readers never observe a torn checkpoint.
func writeJSONAtomic(path string, value any) error {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("create parent directories: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}
