package server

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	logx "github.com/ije/gox/log"
)

// watcher observes the project source tree and the project manifest. Events
// are advisory: source paths are re-stat'ed before acting; manifest events
// trigger a refresh without a stat.
type watcher struct {
	config           *ProjectConfig
	fsw              *fsnotify.Watcher
	onSourceChange   func(filename string)
	onManifestChange func()
	log              *logx.Logger
	done             chan struct{}
}

func newWatcher(config *ProjectConfig, log *logx.Logger) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &watcher{
		config: config,
		fsw:    fsw,
		log:    log,
		done:   make(chan struct{}),
	}, nil
}

// Start registers the source tree (recursively, skipping the dep-cache
// directory) and the project root (for manifest events), then runs the event
// loop until Close.
func (w *watcher) Start() error {
	err := filepath.WalkDir(w.config.SrcDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p == w.config.CacheDir || strings.HasPrefix(p, w.config.CacheDir+string(filepath.Separator)) {
				return filepath.SkipDir
			}
			return w.fsw.Add(p)
		}
		return nil
	})
	if err != nil {
		return err
	}
	// the root watch is non-recursive; it exists for package.json events
	if err := w.fsw.Add(w.config.RootDir); err != nil {
		return err
	}

	go w.loop()
	return nil
}

func (w *watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warnf("watch: %v", err)
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		}
	}
}

func (w *watcher) handle(event fsnotify.Event) {
	filename := event.Name

	if filename == w.config.ManifestPath() {
		if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 && w.onManifestChange != nil {
			w.onManifestChange()
		}
		return
	}

	rel, err := filepath.Rel(w.config.SrcDir, filename)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}

	fi, statErr := os.Lstat(filename)
	if event.Op&fsnotify.Create != 0 && statErr == nil && fi.IsDir() {
		// new directory under the source tree: extend the watch
		if err := w.fsw.Add(filename); err != nil {
			w.log.Warnf("watch %s: %v", filename, err)
		}
		return
	}

	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
		if statErr == nil && fi.IsDir() {
			return
		}
		if w.onSourceChange != nil {
			w.onSourceChange(filename)
		}
	}
}

// Close stops the event loop and releases the underlying watches.
func (w *watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
