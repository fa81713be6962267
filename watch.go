package main

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// watchSettings blocks until the settings file is written, created or
// renamed, then returns errSettingsChanged. The parent directory is watched
// rather than the file itself: most editors replace the file on save, which
// drops a direct watch.
func watchSettings(ctx context.Context, path string, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("settings watch unavailable", slog.String("error", err.Error()))
		<-ctx.Done()

		return nil
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		logger.Warn("settings watch unavailable", slog.String("error", err.Error()))
		<-ctx.Done()

		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(event.Name) != abs {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				return errSettingsChanged
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logger.Warn("settings watch error", slog.String("error", err.Error()))
		}
	}
}
