package watcher

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
}

func (r *recorder) handle(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, filepath.Base(path))
	return nil
}

func (r *recorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.paths {
		if p == name {
			n++
		}
	}
	return n
}

func (r *recorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.paths)
}

func startInbox(t *testing.T, in *Inbox) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- in.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("inbox did not stop")
		}
	})
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

func TestInbox_syncsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "TNET_10-K_2024-02-15.txt"), "annual report")
	write(t, filepath.Join(dir, "scratch.tmp"), "ignored")

	rec := &recorder{}
	startInbox(t, NewInbox([]string{dir}, []string{".txt"}, rec.handle))

	require.Eventually(t, func() bool { return rec.count("TNET_10-K_2024-02-15.txt") == 1 },
		5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, rec.count("scratch.tmp"))
}

func TestInbox_debouncesWrites(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startInbox(t, NewInbox([]string{dir}, []string{".txt"}, rec.handle, WithDebounce(150*time.Millisecond)))
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "ADP_10-Q_2024-05-01.txt")
	for i := 0; i < 3; i++ {
		write(t, path, "draft")
		time.Sleep(10 * time.Millisecond)
	}
	write(t, filepath.Join(dir, "ADP_10-Q_2024-05-01.tmp"), "ignored")

	require.Eventually(t, func() bool { return rec.count("ADP_10-Q_2024-05-01.txt") >= 1 },
		5*time.Second, 10*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, rec.count("ADP_10-Q_2024-05-01.txt"), "bursts of writes are handled once")
	assert.Equal(t, 0, rec.count("ADP_10-Q_2024-05-01.tmp"))
}

func TestInbox_newSubdirectory(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startInbox(t, NewInbox([]string{dir}, []string{".txt", ".md"}, rec.handle, WithDebounce(20*time.Millisecond)))
	time.Sleep(100 * time.Millisecond)

	// Build the folder elsewhere and move it in, like a copy from another volume.
	staging := filepath.Join(t.TempDir(), "payx")
	require.NoError(t, os.Mkdir(staging, 0700))
	write(t, filepath.Join(staging, "PAYX_8-K_2024-01-05.md"), "dividend")
	require.NoError(t, os.Rename(staging, filepath.Join(dir, "payx")))

	require.Eventually(t, func() bool { return rec.count("PAYX_8-K_2024-01-05.md") >= 1 },
		5*time.Second, 10*time.Millisecond)

	write(t, filepath.Join(dir, "payx", "PAYX_10-Q_2024-04-01.txt"), "quarter")
	require.Eventually(t, func() bool { return rec.count("PAYX_10-Q_2024-04-01.txt") >= 1 },
		5*time.Second, 10*time.Millisecond)
}

func TestInbox_createsMissingDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "inbox", "filings")
	rec := &recorder{}
	startInbox(t, NewInbox([]string{root}, nil, rec.handle))

	require.Eventually(t, func() bool {
		info, err := os.Stat(root)
		return err == nil && info.IsDir()
	}, 5*time.Second, 10*time.Millisecond)
}

func TestInbox_handlerErrorsDoNotStopInbox(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "bad.txt"), "x")

	var mu sync.Mutex
	var seen []string
	handle := func(_ context.Context, path string) error {
		mu.Lock()
		seen = append(seen, filepath.Base(path))
		mu.Unlock()
		if filepath.Base(path) == "bad.txt" {
			return errors.New("unparseable filing")
		}
		return nil
	}
	startInbox(t, NewInbox([]string{dir}, []string{".txt"}, handle, WithDebounce(20*time.Millisecond)))
	time.Sleep(100 * time.Millisecond)
	write(t, filepath.Join(dir, "good.txt"), "y")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, s := range seen {
			if s == "good.txt" {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
}

func TestInbox_stopsWithoutPendingWork(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	in := NewInbox([]string{dir}, []string{".txt"}, rec.handle, WithDebounce(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- in.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	write(t, filepath.Join(dir, "late.txt"), "z")
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("inbox did not stop")
	}
	assert.Equal(t, 0, rec.total(), "debounced work is dropped on shutdown")
}

func TestInbox_staleTimerDoesNotDropReschedule(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "TNET_10-Q_2024-08-01.txt")
	rec := &recorder{}
	in := NewInbox([]string{dir}, []string{".txt"}, rec.handle, WithDebounce(time.Hour))
	t.Cleanup(in.shutdown)
	ctx := context.Background()

	in.schedule(ctx, path)
	first := in.pending[path]
	in.schedule(ctx, path)
	second := in.pending[path]
	require.NotSame(t, first, second)

	// The replaced timer expired before Stop could prevent it.
	in.fire(ctx, path, first)
	assert.Equal(t, 0, rec.total())
	assert.Same(t, second, in.pending[path], "newer schedule must stay pending")

	in.fire(ctx, path, second)
	assert.Equal(t, 1, rec.count("TNET_10-Q_2024-08-01.txt"))
	assert.Empty(t, in.pending)

	in.schedule(ctx, path)
	cancelled := in.pending[path]
	in.cancel(path)
	in.fire(ctx, path, cancelled)
	assert.Equal(t, 1, rec.total(), "cancelled work does not run")
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/a/b.txt", []string{".txt"}, true},
		{"/a/b.TXT", []string{"txt"}, true},
		{"/a/b.md", []string{".txt"}, false},
		{"/a/b", nil, true},
		{"/a/b", []string{}, true},
	}
	for _, tt := range tests {
		if got := matchExtension(tt.path, tt.extensions); got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}
