package watch

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
)

type recorder struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (r *recorder) handle(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, filepath.Base(path))
	return r.err
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func startWatcher(t *testing.T, dir string, h Handler) *Watcher {
	t.Helper()
	w, err := New(dir, 30*time.Millisecond, h)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)
	return w
}

func TestNewRequiresHandler(t *testing.T) {
	_, err := New(t.TempDir(), 0, nil)
	assert.Error(t, err)
}

func TestWatcherHandlesNewTranscripts(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "inbox")
	rec := &recorder{}
	w := startWatcher(t, dir, rec.handle)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "match.txt"), []byte("Turn # 1"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("ignore me"), 0644))

	assert.Eventually(t, func() bool { return len(rec.seen()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"match.txt"}, rec.seen())

	stats := w.Stats()
	assert.Equal(t, 1, stats.Handled)
	assert.GreaterOrEqual(t, stats.Events, 1)
	assert.Equal(t, "match.txt", filepath.Base(stats.LastEventPath))
}

func TestWatcherDebouncesRepeatedWrites(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, dir, rec.handle)

	path := filepath.Join(dir, "match.log")
	f, err := os.Create(path)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := f.WriteString("line\n")
		require.NoError(t, err)
	}
	require.NoError(t, f.Close())

	assert.Eventually(t, func() bool { return len(rec.seen()) > 0 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []string{"match.log"}, rec.seen())
}

func TestWatcherQueuesExistingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0644))

	rec := &recorder{}
	startWatcher(t, dir, rec.handle)

	assert.Eventually(t, func() bool { return len(rec.seen()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"a.txt", "b.txt"}, rec.seen())
}

func TestWatcherCountsFailures(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{err: errors.New("setup aborted")}
	w := startWatcher(t, dir, rec.handle)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.txt"), []byte("x"), 0644))

	assert.Eventually(t, func() bool { return w.Stats().Failed == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, w.Stats().Handled)
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	w, err := New(t.TempDir(), 0, (&recorder{}).handle)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Start(context.Background()))

	w.Stop()
	w.Stop()

	select {
	case <-w.Done():
	default:
		t.Fatal("event loop still running after Stop")
	}
}

func TestWatcherStartFailureReleasesWatcher(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	w, err := New(filepath.Join(file, "inbox"), 0, (&recorder{}).handle)
	require.NoError(t, err)
	require.Error(t, w.Start(context.Background()))

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked after a failed Start")
	}

	// The fsnotify watcher is closed, so a retry fails instead of leaking.
	assert.Error(t, w.Start(context.Background()))
}

func TestProcessSettledOldestFirst(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.txt", "m.txt", "z.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}

	rec := &recorder{}
	w, err := New(dir, 30*time.Millisecond, rec.handle)
	require.NoError(t, err)
	t.Cleanup(func() { w.watcher.Close() })

	now := time.Now()
	w.debounceMap[filepath.Join(dir, "z.txt")] = now.Add(-3 * time.Second)
	w.debounceMap[filepath.Join(dir, "a.txt")] = now.Add(-2 * time.Second)
	w.debounceMap[filepath.Join(dir, "m.txt")] = now.Add(-time.Second)

	w.processSettled(context.Background())

	assert.Equal(t, []string{"z.txt", "a.txt", "m.txt"}, rec.seen())
	assert.Empty(t, w.debounceMap)
}
