package rules

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadSettle is how long the watcher waits after a write event before
// re-reading the file, so editors that write in multiple syscalls do not
// trigger a read of a half-written file.
const reloadSettle = 200 * time.Millisecond

// Watch re-loads the rule table at path whenever the file changes and calls
// onReload with the new table. A malformed update is rejected and logged;
// the previously loaded table stays live.
//
// Watch blocks until ctx is cancelled. It watches the parent directory
// rather than the file itself so atomic-rename saves are observed.
func Watch(ctx context.Context, path string, onReload func(*Table)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	target := filepath.Clean(path)
	var settle *time.Timer
	var settleCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case evt, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(evt.Name) != target {
				continue
			}
			if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) && !evt.Has(fsnotify.Rename) {
				continue
			}
			// Debounce bursts of events into a single reload.
			if settle == nil {
				settle = time.NewTimer(reloadSettle)
			} else {
				settle.Reset(reloadSettle)
			}
			settleCh = settle.C

		case <-settleCh:
			settleCh = nil
			table, err := LoadFile(path)
			if err != nil {
				slog.Warn("rules: reload rejected, keeping previous table",
					"path", path, "err", err)
				continue
			}
			slog.Info("rules: reloaded table", "path", path, "rules", table.Len())
			onReload(table)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("rules: watcher error", "err", err)
		}
	}
}
