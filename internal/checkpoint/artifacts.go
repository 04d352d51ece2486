package checkpoint

import (
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

// ArtifactDir returns the directory holding one run's category
// artifacts: <root>/searchresults/search_results_<token>.
func (s *Store) ArtifactDir(runToken string) string {
	return filepath.Join(s.root, searchResultsDir, searchResultsPrefix+runToken)
}

// ArtifactPath returns the output artifact path for one category in
// one run: <artifact dir>/<category>_<token>.json.
func (s *Store) ArtifactPath(category, runToken string) string {
	return filepath.Join(s.ArtifactDir(runToken), fmt.Sprintf("%s_%s%s", category, runToken, ledgerExt))
}

// ArtifactExists reports whether a category's artifact was already
// written for the run, which makes a re-run skip the category.
func (s *Store) ArtifactExists(category, runToken string) bool {
	_, err := os.Stat(s.ArtifactPath(category, runToken))
	return err == nil
}

// SaveArtifact persists a category's filtered listing exactly once per
// run, after the category's pages are fully drained.
func (s *Store) SaveArtifact(category, runToken string, entries []catalog.ListingEntry) error {
	path := s.ArtifactPath(category, runToken)
	if entries == nil {
		entries = []catalog.ListingEntry{}
	}
	if err := writeJSONAtomic(path, entries); err != nil {
		return fmt.Errorf("save %s artifact: %w", category, err)
	}
	s.logger.Info("search results saved",
		zap.String("category", category),
		zap.String("run", runToken),
		zap.Int("entries", len(entries)),
	)
	return nil
}

// LoadArtifact reads one category's listing for a run. A missing
// artifact yields an empty list, matching the read-side contract.
func (s *Store) LoadArtifact(category, runToken string) ([]catalog.ListingEntry, error) {
	path := s.ArtifactPath(category, runToken)
	var entries []catalog.ListingEntry
	if err := s.loadJSON(path, &entries); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []catalog.ListingEntry{}, nil
		}
		return nil, err
	}
	return entries, nil
}

// LatestRunToken finds the most recent run with any artifacts, by the
// same lexicographic rule the ledgers use.
func (s *Store) LatestRunToken() (string, bool) {
	base := filepath.Join(s.root, searchResultsDir)
	dirEntries, err := os.ReadDir(base)
	if err != nil {
		return "", false
	}
	var tokens []string
	for _, e := range dirEntries {
		if e.IsDir() && strings.HasPrefix(e.Name(), searchResultsPrefix) {
			tokens = append(tokens, strings.TrimPrefix(e.Name(), searchResultsPrefix))
		}
	}
	if len(tokens) == 0 {
		return "", false
	}
	sort.Strings(tokens)
	return tokens[len(tokens)-1], true
}
