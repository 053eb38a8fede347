package watcher

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/cairnlabs/cairn/pkg/log"
	"github.com/cairnlabs/cairn/pkg/overlay"
)

// maxMirrorBytes caps the size of files mirrored into stable, matching
// the overlay's per-file limit.
var maxMirrorBytes int64 = 10 << 20

// ignoredDirs are never watched or mirrored.
var ignoredDirs = map[string]bool{
	".agentfs":     true,
	".cairn":       true,
	".git":         true,
	".jj":          true,
	".hg":          true,
	"__pycache__":  true,
	"node_modules": true,
}

// Watcher mirrors live project-root changes into the stable overlay so
// agents always read the operator's current files.
type Watcher struct {
	root   string
	stable *overlay.Overlay

	fsw    *fsnotify.Watcher
	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a watcher over root that writes into stable.
func New(root string, stable *overlay.Overlay) *Watcher {
	return &Watcher{root: root, stable: stable}
}

// Start registers watches on the whole tree and launches the mirror
// loop.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	w.fsw = fsw
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	if err := w.watchTree(w.root); err != nil {
		fsw.Close()
		return err
	}

	go w.run()
	log.Logger.Info().
		Str("component", "watcher").
		Str("root", w.root).
		Msg("file watcher started")
	return nil
}

// Stop shuts the mirror loop down and releases the watches.
func (w *Watcher) Stop() {
	if w.stopCh == nil {
		return
	}
	close(w.stopCh)
	<-w.doneCh
	log.Logger.Info().Str("component", "watcher").Msg("file watcher stopped")
}

func (w *Watcher) run() {
	defer close(w.doneCh)
	defer w.fsw.Close()
	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Logger.Warn().
				Str("component", "watcher").
				Err(err).
				Msg("file watcher error")
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	rel, ok := w.relPath(ev.Name)
	if !ok {
		return
	}

	switch {
	case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
		// The path is already gone, so files and directories look the
		// same here; a directory delete only clears its exact key.
		if err := w.stable.DeleteFile(rel); err != nil {
			log.Logger.Warn().
				Str("component", "watcher").
				Str("path", rel).
				Err(err).
				Msg("failed to mirror delete")
		}
	case ev.Op.Has(fsnotify.Create):
		info, err := os.Stat(ev.Name)
		if err != nil {
			return // vanished between event and stat
		}
		if info.IsDir() {
			w.adoptTree(ev.Name)
			return
		}
		w.mirrorFile(ev.Name, rel, info.Size())
	case ev.Op.Has(fsnotify.Write):
		info, err := os.Stat(ev.Name)
		if err != nil || info.IsDir() {
			return
		}
		w.mirrorFile(ev.Name, rel, info.Size())
	}
}

// mirrorFile copies one host file into stable.
func (w *Watcher) mirrorFile(hostPath, rel string, size int64) {
	if size > maxMirrorBytes {
		log.Logger.Warn().
			Str("component", "watcher").
			Str("path", rel).
			Int64("size", size).
			Msg("skipping oversized file")
		return
	}
	data, err := os.ReadFile(hostPath)
	if err != nil {
		log.Logger.Warn().
			Str("component", "watcher").
			Str("path", rel).
			Err(err).
			Msg("failed to read changed file")
		return
	}
	if err := w.stable.WriteFile(rel, data); err != nil {
		log.Logger.Warn().
			Str("component", "watcher").
			Str("path", rel).
			Err(err).
			Msg("failed to mirror file into stable")
	}
}

// adoptTree watches a directory that appeared after startup and mirrors
// anything already inside it (a tree moved into the project produces
// only one create event, for its root).
func (w *Watcher) adoptTree(dir string) {
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if ignoredDirs[d.Name()] {
				return filepath.SkipDir
			}
			if err := w.fsw.Add(p); err != nil {
				log.Logger.Warn().
					Str("component", "watcher").
					Str("dir", p).
					Err(err).
					Msg("failed to watch new directory")
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, ok := w.relPath(p)
		if !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		w.mirrorFile(p, rel, info.Size())
		return nil
	})
	if err != nil {
		log.Logger.Warn().
			Str("component", "watcher").
			Str("dir", dir).
			Err(err).
			Msg("failed to adopt new directory")
	}
}

// watchTree registers watches on dir and every non-ignored directory
// below it.
func (w *Watcher) watchTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && ignoredDirs[d.Name()] {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
		return nil
	})
}

// relPath converts a host path to a slash-separated path relative to
// the project root. ok is false for paths outside the root or under an
// ignored directory.
func (w *Watcher) relPath(hostPath string) (string, bool) {
	rel, err := filepath.Rel(w.root, hostPath)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	for _, part := range strings.Split(rel, "/") {
		if ignoredDirs[part] {
			return "", false
		}
	}
	return rel, true
}
