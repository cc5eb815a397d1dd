// Package watcher watches inbox directories with fsnotify and hands new or changed
// filing files to a handler after a debounce delay.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/marketiq/internal/indexer"
)

const defaultDebounce = 400 * time.Millisecond

// Handler processes one file. Errors are logged and do not stop the inbox.
type Handler func(ctx context.Context, path string) error

// Inbox watches directories, including subdirectories created later.
type Inbox struct {
	dirs       []string
	extensions []string
	handle     Handler
	debounce   time.Duration
	logger     *zap.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool
	running sync.WaitGroup
}

// Option configures an Inbox.
type Option func(*Inbox)

// WithLogger sets the inbox logger.
func WithLogger(l *zap.Logger) Option {
	return func(in *Inbox) { in.logger = l }
}

// WithDebounce sets how long a file must stay quiet before it is handled.
func WithDebounce(d time.Duration) Option {
	return func(in *Inbox) {
		if d > 0 {
			in.debounce = d
		}
	}
}

// NewInbox creates an inbox over dirs. Only files whose extension is in extensions
// are handled; an empty list accepts every file.
func NewInbox(dirs, extensions []string, handle Handler, opts ...Option) *Inbox {
	in := &Inbox{
		dirs:       append([]string(nil), dirs...),
		extensions: extensions,
		handle:     handle,
		debounce:   defaultDebounce,
		logger:     zap.NewNop(),
		pending:    make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Run creates missing directories, handles the files already present, then handles
// changes until ctx is cancelled. Handlers still running when ctx ends are waited for.
func (in *Inbox) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()
	defer in.shutdown()

	for _, dir := range in.dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create inbox %s: %w", dir, err)
		}
		if err := in.watchTree(fsw, dir); err != nil {
			return err
		}
	}
	in.logger.Info("watching inbox", zap.Strings("dirs", in.dirs), zap.Strings("extensions", in.extensions))
	for _, dir := range in.dirs {
		in.sync(ctx, dir)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			in.handleEvent(ctx, fsw, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			in.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (in *Inbox) handleEvent(ctx context.Context, fsw *fsnotify.Watcher, ev fsnotify.Event) {
	in.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", ev.Name))
	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(ev.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			// A folder moved or copied in: watch it and pick up what it already holds.
			if err := in.watchTree(fsw, ev.Name); err != nil {
				in.logger.Warn("watch new directory failed", zap.String("path", ev.Name), zap.Error(err))
				return
			}
			in.sync(ctx, ev.Name)
			return
		}
		if matchExtension(ev.Name, in.extensions) {
			in.schedule(ctx, ev.Name)
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		in.cancel(ev.Name)
	}
}

func (in *Inbox) watchTree(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// sync handles every matching file under root right away.
func (in *Inbox) sync(ctx context.Context, root string) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			in.logger.Warn("inbox walk failed", zap.String("path", path), zap.Error(err))
			return nil
		}
		if ctx.Err() != nil {
			return filepath.SkipAll
		}
		if !d.IsDir() && matchExtension(path, in.extensions) {
			in.run(ctx, path)
		}
		return nil
	})
}

func (in *Inbox) schedule(ctx context.Context, path string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return
	}
	if t, ok := in.pending[path]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(in.debounce, func() { in.fire(ctx, path, t) })
	in.pending[path] = t
}

// fire runs the handler for a debounced path unless t was replaced or cancelled
// after it had already expired.
func (in *Inbox) fire(ctx context.Context, path string, t *time.Timer) {
	in.mu.Lock()
	if in.closed || in.pending[path] != t {
		in.mu.Unlock()
		return
	}
	delete(in.pending, path)
	in.running.Add(1)
	in.mu.Unlock()
	defer in.running.Done()
	in.run(ctx, path)
}

func (in *Inbox) cancel(path string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if t, ok := in.pending[path]; ok {
		t.Stop()
		delete(in.pending, path)
	}
}

func (in *Inbox) run(ctx context.Context, path string) {
	if err := in.handle(ctx, path); err != nil {
		in.logger.Warn("inbox file failed", zap.String("path", path), zap.Error(err))
		return
	}
	in.logger.Debug("inbox file handled", zap.String("path", path))
}

func (in *Inbox) shutdown() {
	in.mu.Lock()
	in.closed = true
	for path, t := range in.pending {
		t.Stop()
		delete(in.pending, path)
	}
	in.mu.Unlock()
	in.running.Wait()
}

func matchExtension(path string, extensions []string) bool {
	return indexer.ExtensionAllowed(filepath.Ext(path), extensions)
}
