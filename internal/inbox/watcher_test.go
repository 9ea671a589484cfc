package inbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/conductor/internal/orchestrator"
)

type collector struct {
	mu    sync.Mutex
	files []string
	tasks []orchestrator.TaskRequest
	fail  map[string]bool
}

func (c *collector) handle(_ context.Context, file string, tasks []orchestrator.TaskRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail[file] {
		return errors.New("rejected")
	}
	c.files = append(c.files, file)
	c.tasks = append(c.tasks, tasks...)
	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tasks)
}

func newTestWatcher(t *testing.T, c *collector) *Watcher {
	t.Helper()
	w, err := NewWatcher(t.TempDir(), c.handle,
		WithPollInterval(20*time.Millisecond),
		WithSettleDelay(0))
	require.NoError(t, err)
	return w
}

func write(t *testing.T, dir, name, data string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(data), 0644))
}

func runAsync(t *testing.T, w *Watcher) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func TestNewWatcher_CreatesDirectories(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "inbox")
	_, err := NewWatcher(dir, func(context.Context, string, []orchestrator.TaskRequest) error { return nil })
	require.NoError(t, err)

	assert.DirExists(t, filepath.Join(dir, ProcessedDir))
	assert.DirExists(t, filepath.Join(dir, FailedDir))

	_, err = NewWatcher(dir, nil)
	assert.Error(t, err)
}

func TestWatcher_ExistingFilesAndStop(t *testing.T) {
	c := &collector{}
	w := newTestWatcher(t, c)
	write(t, w.Dir(), "a.yaml", "- type: deploy\n- type: report\n")
	write(t, w.Dir(), "b.yml", "tasks:\n  - type: analyze\n")
	write(t, w.Dir(), "notes.txt", "ignored")
	write(t, w.Dir(), StopFile, "")

	err := w.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a.yaml", "b.yml"}, c.files)
	assert.Equal(t, 3, c.count())
	assert.Equal(t, int64(2), w.Processed())
	assert.FileExists(t, filepath.Join(w.Dir(), ProcessedDir, "a.yaml"))
	assert.FileExists(t, filepath.Join(w.Dir(), ProcessedDir, "b.yml"))
	assert.FileExists(t, filepath.Join(w.Dir(), "notes.txt"))
	assert.NoFileExists(t, filepath.Join(w.Dir(), StopFile))
}

func TestWatcher_PicksUpNewFiles(t *testing.T) {
	c := &collector{}
	w := newTestWatcher(t, c)
	_, done := runAsync(t, w)

	write(t, w.Dir(), "late.yaml", "- type: deploy\n")
	require.Eventually(t, func() bool { return c.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	write(t, w.Dir(), StopFile, "")
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
	assert.FileExists(t, filepath.Join(w.Dir(), ProcessedDir, "late.yaml"))
}

func TestWatcher_Failures(t *testing.T) {
	c := &collector{fail: map[string]bool{"rejected.yaml": true}}
	w := newTestWatcher(t, c)
	write(t, w.Dir(), "broken.yaml", "- type: [unclosed")
	write(t, w.Dir(), "empty.yaml", "[]")
	write(t, w.Dir(), "rejected.yaml", "- type: deploy\n")
	write(t, w.Dir(), "ok.yaml", "- type: deploy\n")
	write(t, w.Dir(), StopFile, "")

	require.NoError(t, w.Run(context.Background()))

	assert.Equal(t, int64(3), w.Failed())
	assert.Equal(t, int64(1), w.Processed())
	for _, name := range []string{"broken.yaml", "empty.yaml", "rejected.yaml"} {
		assert.FileExists(t, filepath.Join(w.Dir(), FailedDir, name))
	}
	assert.FileExists(t, filepath.Join(w.Dir(), ProcessedDir, "ok.yaml"))
}

func TestWatcher_DuplicateNamesKept(t *testing.T) {
	c := &collector{}
	w := newTestWatcher(t, c)

	write(t, w.Dir(), "batch.yaml", "- type: deploy\n")
	write(t, w.Dir(), StopFile, "")
	require.NoError(t, w.Run(context.Background()))

	write(t, w.Dir(), "batch.yaml", "- type: report\n")
	write(t, w.Dir(), StopFile, "")
	require.NoError(t, w.Run(context.Background()))

	entries, err := os.ReadDir(filepath.Join(w.Dir(), ProcessedDir))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, 2, c.count())
}

func TestWatcher_ContextCancel(t *testing.T) {
	w := newTestWatcher(t, &collector{})
	cancel, done := runAsync(t, w)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcher_SettleDelay(t *testing.T) {
	c := &collector{}
	w, err := NewWatcher(t.TempDir(), c.handle, WithSettleDelay(time.Hour))
	require.NoError(t, err)

	write(t, w.Dir(), "fresh.yaml", "- type: deploy\n")
	write(t, w.Dir(), StopFile, "")
	require.NoError(t, w.Run(context.Background()))

	assert.Zero(t, c.count())
	assert.FileExists(t, filepath.Join(w.Dir(), "fresh.yaml"))
}
