package watcher

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cairnlabs/cairn/pkg/log"
	"github.com/cairnlabs/cairn/pkg/overlay"
)

// SyncStable walks the project root once and writes every regular file
// into the stable overlay, returning the number of files written.
// Unreadable and oversized files are logged and skipped; ignored
// directories are never entered.
func SyncStable(root string, stable *overlay.Overlay) (int, error) {
	count := 0
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && ignoredDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		info, err := d.Info()
		if err != nil {
			return nil // vanished mid-walk
		}
		if info.Size() > maxMirrorBytes {
			log.Logger.Warn().
				Str("component", "watcher").
				Str("path", rel).
				Int64("size", info.Size()).
				Msg("skipping oversized file during sync")
			return nil
		}

		data, err := os.ReadFile(p)
		if err != nil {
			log.Logger.Warn().
				Str("component", "watcher").
				Str("path", rel).
				Err(err).
				Msg("skipping unreadable file during sync")
			return nil
		}
		if err := stable.WriteFile(rel, data); err != nil {
			return fmt.Errorf("failed to sync %s: %w", rel, err)
		}
		count++
		return nil
	})
	if err != nil {
		return count, err
	}

	log.Logger.Info().
		Str("component", "watcher").
		Str("root", root).
		Int("files", count).
		Msg("stable sync completed")
	return count, nil
}
