package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/poiesic/semdex/core"
	"github.com/poiesic/semdex/storage"
)

// Watch invalidates the cache entry for a local-disk model whenever its
// directory changes, waiting for changes to settle first. onChange, if not
// nil, is called after each invalidation. Watch blocks until ctx is done.
func (r *Repository) Watch(ctx context.Context, path, strategyName string, onChange func(path string)) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	if _, err := r.factory.Resolve(strategyName); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("%w: watching %s: %v", storage.ErrConfiguration, path, err)
	}
	for _, t := range core.EntityTypes {
		dir := filepath.Join(path, t.Folder())
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			if err := watcher.Add(dir); err != nil {
				r.logger.Warn("failed to watch directory", "path", dir, "err", err)
			}
		}
	}

	r.logger.Info("watching model", "path", path)

	timer := time.NewTimer(r.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("stopping watcher", "path", path)
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := watcher.Add(event.Name); err != nil {
						r.logger.Warn("failed to watch directory", "path", event.Name, "err", err)
					}
				}
			}
			r.logger.Debug("model changed", "path", event.Name, "op", event.Op.String())
			timer.Reset(r.debounce)

		case <-timer.C:
			if err := r.InvalidateCache(path, strategyName); err != nil {
				return err
			}
			r.logger.Debug("invalidated cached model", "path", path)
			if onChange != nil {
				onChange(path)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("watcher error", "err", err)
		}
	}
}
