package plugin

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// settleDelay coalesces the burst of events an install produces.
const settleDelay = 250 * time.Millisecond

// Watch reloads the plugins under dir whenever its contents change and
// hands the result to onChange. It blocks until ctx is done. dir is
// created if missing.
func Watch(ctx context.Context, dir string, onChange func([]Manifest), logger *log.Logger) error {
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithPrefix("plugin")

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	watchTree(watcher, dir, logger)
	logger.Debug("Watching plugins", "dir", dir)

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			logger.Debug("fsnotify event", "file", event.Name, "event", event.Op)
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watcher.Add(event.Name)
				}
			}
			if timer == nil {
				timer = time.NewTimer(settleDelay)
			} else {
				timer.Reset(settleDelay)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			manifests, err := LoadDir(dir)
			if err != nil {
				logger.Warn("Some plugins could not be loaded", "err", err)
			}
			logger.Info("Plugins reloaded", "count", len(manifests))
			onChange(manifests)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Debug("fsnotify error", "dir", dir, "error", err)
		}
	}
}

// watchTree adds dir and its immediate plugin directories. fsnotify does
// not recurse.
func watchTree(w *fsnotify.Watcher, dir string, logger *log.Logger) {
	if err := w.Add(dir); err != nil {
		logger.Error("error adding dir to fsnotify watcher", "dir", dir, "error", err)
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			_ = w.Add(filepath.Join(dir, e.Name()))
		}
	}
}
