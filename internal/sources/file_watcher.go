package sources

import (
	"context"
	"io/fs"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
	"github.com/rs/zerolog/log"

	"github.com/gatewatch/sentinel/internal/config"
	"github.com/gatewatch/sentinel/internal/events"
)

// renamePairWindow bounds how long a bare Rename (old name only) waits
// for the Create (new name) fsnotify pairs it with on both the Linux
// and Windows backends (IN_MOVED_FROM/IN_MOVED_TO, FILE_ACTION_RENAMED_
// OLD_NAME/NEW_NAME respectively) before being emitted alone.
const renamePairWindow = 2 * time.Second

// fileWatcher emits FileCreated/FileModified/FileDeleted/FileRenamed
// events for a set of watched paths, grounded on
// original_source/engine/src/plugins/file_watcher.rs's should_emit_event
// glob filter and per-path watch/unwatch lifecycle, reimplemented over
// github.com/fsnotify/fsnotify rather than the Rust notify crate.
type fileWatcher struct {
	name      string
	paths     []string
	pattern   glob.Glob
	recursive bool

	watcher *fsnotify.Watcher
	running atomic.Bool
	mu      sync.Mutex
	stop    chan struct{}

	pendingRenameOld  string
	pendingRenameTime time.Time
}

func newFileWatcher(sc config.SourceConfig) (Source, error) {
	if len(sc.Paths) == 0 {
		return nil, configErr("file_watcher %q requires at least one path", sc.Name)
	}
	fw := &fileWatcher{name: sc.Name, paths: sc.Paths, recursive: sc.IsRecursive()}
	if sc.Pattern != "" {
		g, err := glob.Compile(sc.Pattern)
		if err != nil {
			return nil, configErr("file_watcher %q: invalid pattern %q: %v", sc.Name, sc.Pattern, err)
		}
		fw.pattern = g
	}
	return fw, nil
}

func (f *fileWatcher) Name() string { return f.name }

func (f *fileWatcher) Start(ctx context.Context, emit events.Emitter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running.Load() {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return initErr("creating watcher for %q: %v", f.name, err)
	}

	for _, p := range f.paths {
		if f.recursive {
			if err := addWatchRecursive(w, p); err != nil {
				log.Warn().Str("source", f.name).Str("path", p).Err(err).Msg("failed to watch path")
			}
			continue
		}
		if err := w.Add(p); err != nil {
			log.Warn().Str("source", f.name).Str("path", p).Err(err).Msg("failed to watch path")
		}
	}

	f.watcher = w
	f.stop = make(chan struct{})
	f.running.Store(true)

	go f.loop(ctx, emit)
	return nil
}

func addWatchRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}

func (f *fileWatcher) loop(ctx context.Context, emit events.Emitter) {
	defer f.running.Store(false)
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.stop:
			return
		case ev, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			f.handle(ev, emit)
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Str("source", f.name).Err(err).Msg("file watcher error")
		}
	}
}

func (f *fileWatcher) handle(ev fsnotify.Event, emit events.Emitter) {
	if f.pendingRenameOld != "" {
		old, since := f.pendingRenameOld, time.Since(f.pendingRenameTime)
		f.pendingRenameOld = ""
		if ev.Op&fsnotify.Create != 0 && since <= renamePairWindow {
			emit.Emit(events.New(events.KindFileRenamed, f.name).
				WithMetadata("old_path", old).
				WithMetadata("new_path", ev.Name))
			return
		}
		emit.Emit(events.New(events.KindFileRenamed, f.name).WithMetadata("old_path", old))
	}

	if f.pattern != nil && !f.pattern.Match(filepath.Base(ev.Name)) {
		return
	}

	var kind events.Kind
	switch {
	case ev.Op&fsnotify.Rename != 0:
		f.pendingRenameOld = ev.Name
		f.pendingRenameTime = time.Now()
		return
	case ev.Op&fsnotify.Create != 0:
		kind = events.KindFileCreated
	case ev.Op&fsnotify.Write != 0:
		kind = events.KindFileModified
	case ev.Op&fsnotify.Remove != 0:
		kind = events.KindFileDeleted
	default:
		return
	}

	out := events.New(kind, f.name).WithMetadata("path", ev.Name)
	emit.Emit(out)
}

func (f *fileWatcher) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running.Load() {
		return nil
	}
	close(f.stop)
	err := f.watcher.Close()
	f.running.Store(false)
	return err
}

func (f *fileWatcher) IsRunning() bool { return f.running.Load() }
