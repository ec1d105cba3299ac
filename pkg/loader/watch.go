package loader

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/wsaadi/nova/pkg/adl"
)

// Reload debounce: editors emit bursts of write events per save.
const debounceDelay = 500 * time.Millisecond

type watcher struct {
	fsw    *fsnotify.Watcher
	cancel context.CancelFunc
}

// Watch reloads the registry whenever an ADL file in the directory changes.
// Stop it with StopWatching or by cancelling ctx.
func (l *Loader) Watch(ctx context.Context) error {
	if l.watcher != nil {
		return fmt.Errorf("already watching")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fsw.Add(l.dir); err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", l.dir, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	l.watcher = &watcher{fsw: fsw, cancel: cancel}

	go l.watchLoop(ctx, fsw)

	slog.Info("watching agents directory", "dir", l.dir)
	return nil
}

// StopWatching tears the watcher down. Idempotent.
func (l *Loader) StopWatching() {
	if l.watcher == nil {
		return
	}
	l.watcher.cancel()
	l.watcher.fsw.Close()
	l.watcher = nil
}

func (l *Loader) watchLoop(ctx context.Context, fsw *fsnotify.Watcher) {
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !adl.HasKnownExtension(filepath.Base(event.Name)) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			// Coalesce event bursts into one reload.
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, func() {
				if err := l.Load(); err != nil {
					slog.Error("hot reload failed", "error", err)
				}
			})

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			slog.Error("agents watcher error", "error", err)
		}
	}
}
