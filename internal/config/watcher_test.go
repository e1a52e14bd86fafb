package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/docleaai/doclea/internal/config"
)

const watcherTestJSON = `{"embedding":{"provider":"openai"},"scoring":{"weights":{"semantic":0.5,"recency":0.2,"confidence":0.2,"frequency":0.1},"searchOverfetch":3}}`

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestWatcher_LoadsInitialConfig(t *testing.T) {
	path := writeConfigFile(t, watcherTestJSON)
	w, err := config.NewWatcher(path, nil)
	require.NoError(t, err)
	defer w.Stop()
	require.NotNil(t, w.Current())
	require.Equal(t, "openai", w.Current().Embedding.Provider)
}

func TestWatcher_DetectsReload(t *testing.T) {
	path := writeConfigFile(t, watcherTestJSON)
	changes := make(chan config.Diff, 1)
	w, err := config.NewWatcher(path, func(old, new *config.Config, diff config.Diff) {
		changes <- diff
	}, config.WithInterval(20*time.Millisecond))
	require.NoError(t, err)
	defer w.Stop()

	updated := `{"embedding":{"provider":"openai"},"scoring":{"weights":{"semantic":0.9,"recency":0.2,"confidence":0.2,"frequency":0.1},"searchOverfetch":3}}`
	// Ensure mtime advances even on coarse filesystem clocks.
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	select {
	case diff := <-changes:
		require.True(t, diff.ScoringChanged)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for watcher to detect reload")
	}
	require.Equal(t, 0.9, w.Current().Scoring.Weights.Semantic)
}

func TestWatcher_IgnoresInvalidReload(t *testing.T) {
	path := writeConfigFile(t, watcherTestJSON)
	w, err := config.NewWatcher(path, nil, config.WithInterval(20*time.Millisecond))
	require.NoError(t, err)
	defer w.Stop()

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`{not valid json`), 0o644))
	time.Sleep(100 * time.Millisecond)

	require.Equal(t, "openai", w.Current().Embedding.Provider)
}
