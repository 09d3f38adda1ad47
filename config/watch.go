package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch re-reads cfile whenever it is written or replaced and hands every
// valid result to onChange. Invalid files are logged and skipped. The
// directory is watched rather than the file so editors that save by
// renaming are noticed too. Watching stops when ctx ends.
func Watch(ctx context.Context, cfile string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	abs, err := filepath.Abs(cfile)
	if err != nil {
		watcher.Close()
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", cfile, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
					continue
				}
				conf, err := ReadConfig(abs)
				if err != nil {
					slog.Warn("Ignoring changed config file", "file", cfile, "error", err)
					continue
				}
				slog.Info("Config file changed", "file", cfile)
				onChange(conf)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Config watcher failed", "error", err)
			}
		}
	}()
	return nil
}
