package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/appdex/catalog-crawler/internal/catalog"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

// TestLatestPicksLexicographicMax verifies the newest checkpoint wins,
// including the terminal token sorting after any date token.
func TestLatestPicksLexicographicMax(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store := NewStore(root, nil)

	writeFile(t, filepath.Join(root, "apps_dict-ckpt-20240101.json"), "{}")
	writeFile(t, filepath.Join(root, "apps_dict-ckpt-20240301.json"), "{}")
	writeFile(t, filepath.Join(root, "apps_dict-ckpt-fin.json"), "{}")

	path, ok := store.Latest(AppsPrefix)
	require.True(t, ok)
	require.Equal(t, filepath.Join(root, "apps_dict-ckpt-fin.json"), path)
}

// TestLatestScansSubdirectories verifies checkpoints in nested
// directories are found.
func TestLatestScansSubdirectories(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store := NewStore(root, nil)
	nested := filepath.Join(root, "archive", "apps_dict-ckpt-20240101.json")
	writeFile(t, nested, "{}")

	path, ok := store.Latest(AppsPrefix)
	require.True(t, ok)
	require.Equal(t, nested, path)
}

// TestLatestMissingRoot verifies a store rooted at a directory that
// does not exist reports no checkpoint instead of an error.
func TestLatestMissingRoot(t *testing.T) {
	t.Parallel()

	store := NewStore(filepath.Join(t.TempDir(), "does-not-exist"), nil)
	_, ok := store.Latest(AppsPrefix)
	require.False(t, ok)
}

// TestLatestIgnoresOtherPrefixes verifies ledgers do not shadow each other.
func TestLatestIgnoresOtherPrefixes(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store := NewStore(root, nil)
	writeFile(t, filepath.Join(root, "excluded_apps_list-ckpt-fin.json"), "[]")

	_, ok := store.Latest(AppsPrefix)
	require.False(t, ok)

	path, ok := store.Latest(ExcludedPrefix)
	require.True(t, ok)
	require.Equal(t, filepath.Join(root, "excluded_apps_list-ckpt-fin.json"), path)
}

// TestLoadAppsCorrupt verifies undecodable bytes surface as
// ErrCorruptCheckpoint so callers can start empty.
func TestLoadAppsCorrupt(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store := NewStore(root, nil)
	path := filepath.Join(root, "apps_dict-ckpt-fin.json")
	writeFile(t, path, "{not json")

	_, err := store.LoadApps(path)
	require.ErrorIs(t, err, ErrCorruptCheckpoint)
}

// TestSaveThenLoadRoundTrip verifies Save writes all three ledgers and
// Latest resolves each to the data just written.
func TestSaveThenLoadRoundTrip(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "checkpoints")
	store := NewStore(root, nil)

	apps := catalog.Apps{
		440: catalog.Record{"name": "Team Fortress 2"},
	}
	excluded := catalog.IDList{10}
	errored := catalog.IDList{20, 30}
	require.NoError(t, store.Save(apps, excluded, errored))

	appsPath, ok := store.Latest(AppsPrefix)
	require.True(t, ok)
	loaded, err := store.LoadApps(appsPath)
	require.NoError(t, err)
	require.Equal(t, "Team Fortress 2", loaded[440].Name())

	excPath, ok := store.Latest(ExcludedPrefix)
	require.True(t, ok)
	loadedExc, err := store.LoadIDList(excPath)
	require.NoError(t, err)
	require.Equal(t, excluded, loadedExc)

	errPath, ok := store.Latest(ErrorsPrefix)
	require.True(t, ok)
	loadedErr, err := store.LoadIDList(errPath)
	require.NoError(t, err)
	require.Equal(t, errored, loadedErr)
}

// TestSaveOverwritesTerminal verifies repeated saves keep exactly one
// terminal checkpoint per ledger with the latest contents.
func TestSaveOverwritesTerminal(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store := NewStore(root, nil)

	require.NoError(t, store.Save(catalog.Apps{1: catalog.Record{"name": "one"}}, nil, nil))
	require.NoError(t, store.Save(catalog.Apps{2: catalog.Record{"name": "two"}}, nil, nil))

	path, ok := store.Latest(AppsPrefix)
	require.True(t, ok)
	loaded, err := store.LoadApps(path)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, "two", loaded[2].Name())
}

// TestCleanRemovesEmptyRecords verifies malformed and empty-name
// entries move to the exclusion ledger and the dataset is rewritten in
// place.
func TestCleanRemovesEmptyRecords(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store := NewStore(root, nil)
	path := filepath.Join(root, "apps_dict-ckpt-fin.json")
	writeFile(t, path, `{
		"10": {"name": "keeper"},
		"20": {"name": ""},
		"30": null,
		"40": {"type": "game"}
	}`)

	removed, err := store.Clean()
	require.NoError(t, err)
	require.Equal(t, 3, removed)

	apps, err := store.LoadApps(path)
	require.NoError(t, err)
	require.Len(t, apps, 1)
	require.Equal(t, "keeper", apps[10].Name())

	excPath, ok := store.Latest(ExcludedPrefix)
	require.True(t, ok)
	excluded, err := store.LoadIDList(excPath)
	require.NoError(t, err)
	require.Equal(t, catalog.IDList{20, 30, 40}, excluded)
}

// TestCleanNothingToRemove verifies a healthy dataset is untouched.
func TestCleanNothingToRemove(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store := NewStore(root, nil)
	writeFile(t, filepath.Join(root, "apps_dict-ckpt-fin.json"), `{"10": {"name": "fine"}}`)

	removed, err := store.Clean()
	require.NoError(t, err)
	require.Zero(t, removed)

	_, ok := store.Latest(ExcludedPrefix)
	require.False(t, ok)
}

// TestCleanNoDataset verifies Clean on an empty store is a no-op.
func TestCleanNoDataset(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir(), nil)
	removed, err := store.Clean()
	require.NoError(t, err)
	require.Zero(t, removed)
}

// TestCleanMergesExistingExclusions verifies already-excluded IDs are
// preserved and not duplicated.
func TestCleanMergesExistingExclusions(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store := NewStore(root, nil)
	writeFile(t, filepath.Join(root, "apps_dict-ckpt-fin.json"), `{"20": {"name": ""}}`)
	writeFile(t, filepath.Join(root, "excluded_apps_list-ckpt-fin.json"), `[20, 99]`)

	removed, err := store.Clean()
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	excPath, ok := store.Latest(ExcludedPrefix)
	require.True(t, ok)
	excluded, err := store.LoadIDList(excPath)
	require.NoError(t, err)
	require.Equal(t, catalog.IDList{20, 99}, excluded)
}
