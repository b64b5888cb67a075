package jobs

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 200 * time.Millisecond

// Watch calls reload whenever the file at path changes, until ctx is done.
// The parent directory is watched so editor renames and atomic writes are seen.
func Watch(ctx context.Context, path string, logger *slog.Logger, reload func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	base := filepath.Base(path)
	if err := w.Add(filepath.Dir(path)); err != nil {
		return err
	}
	logger.Info("watching config", "path", path)

	// Debounce to coalesce bursty editor/atomic-write events.
	var timer *time.Timer
	var timerCh <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(reloadDebounce)
		} else {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(reloadDebounce)
		}
		timerCh = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			schedule()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watch error", "error", err)
		case <-timerCh:
			timerCh = nil
			reload()
		}
	}
}
