package config

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a Config in place whenever its backing file changes,
// matching the teacher's fsnotify-based hot-reload convention.
type Watcher struct {
	path    string
	cfg     *Config
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// WatchFile starts watching path for changes and reloading cfg in place.
// Callers must call Close when done.
func WatchFile(path string, cfg *Config) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{path: path, cfg: cfg, watcher: fw, done: make(chan struct{})}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			fresh, err := Load(w.path)
			if err != nil {
				slog.Warn("config.reload_failed", "path", w.path, "error", err)
				continue
			}
			w.cfg.ReplaceFrom(fresh)
			slog.Info("config.reloaded", "path", w.path)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config.watch_error", "error", err)
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
