package supervisor

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// configWatcher signals the supervisor whenever a .toml file under a
// config directory changes, debounced so a burst of saves produces one
// reload. It is written independently of the teacher's PolicyWatcher,
// which this tree does not contain (isTOMLFile decides which files
// count), and follows original_source/engine/src/engine.rs's
// watch_config, which signals a
// reload request rather than handing the watcher a path to load itself
// — the supervisor always reloads the whole directory via
// config.LoadDir, so there is nothing for a per-path Loader to do.
type configWatcher struct {
	dir      string
	debounce time.Duration
	onChange func()

	watcher *fsnotify.Watcher
	running atomic.Bool
	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
}

func newConfigWatcher(dir string, debounce time.Duration, onChange func()) *configWatcher {
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	return &configWatcher{dir: dir, debounce: debounce, onChange: onChange}
}

func (w *configWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running.Load() {
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.dir); err != nil {
		fw.Close()
		return err
	}

	w.watcher = fw
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	w.running.Store(true)
	go w.loop(ctx)
	return nil
}

func (w *configWatcher) loop(ctx context.Context) {
	defer close(w.done)
	defer w.running.Store(false)

	pending := false
	lastChange := time.Time{}
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if !isTOMLFile(ev.Name) {
				continue
			}
			pending = true
			lastChange = time.Now()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Str("dir", w.dir).Msg("config watcher error")
		case <-ticker.C:
			if pending && time.Since(lastChange) >= w.debounce {
				pending = false
				if w.onChange != nil {
					w.onChange()
				}
			}
		}
	}
}

func (w *configWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running.Load() {
		return nil
	}
	close(w.stop)
	err := w.watcher.Close()
	<-w.done
	return err
}

func isTOMLFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}
