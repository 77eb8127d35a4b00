package repository

import (
	"context"
	"fmt"
	"path/filepath"

	"musicbox/logger"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads repo whenever the catalog document at path is written or
// replaced by another process, then calls onReload. The parent directory is
// watched because saves replace the file through a rename.
// Watch blocks until ctx is done.
func Watch(ctx context.Context, repo TrackRepository, path string, onReload func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create catalog watcher: %w", err)
	}
	defer watcher.Close()

	target, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve catalog path %s: %w", path, err)
	}
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
	}
	logger.Info("watching catalog document", logger.String("path", target))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name, err := filepath.Abs(event.Name)
			if err != nil || name != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := repo.Reload(); err != nil {
				logger.Warn("catalog reload failed", logger.ErrorField(err))
				continue
			}
			if onReload != nil {
				onReload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("catalog watcher error", logger.ErrorField(err))
		}
	}
}
