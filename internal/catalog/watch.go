package catalog

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors the given files and directories and calls onChange whenever
// one of them (or, for a directory, any entry in it) is created, written,
// removed, or renamed. It runs until ctx is cancelled.
//
// Files are watched through their parent directory so atomic saves that
// replace the inode are still seen.
func Watch(ctx context.Context, targets []string, onChange func(), logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	files := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, t := range targets {
		if t == "" {
			continue
		}
		abs, err := filepath.Abs(t)
		if err != nil {
			return err
		}
		info, err := os.Stat(abs)
		switch {
		case err == nil && info.IsDir():
			dirs[abs] = true
		case err == nil || os.IsNotExist(err):
			files[abs] = true
			abs = filepath.Dir(abs)
		default:
			return err
		}
		if err := watcher.Add(abs); err != nil {
			return err
		}
		logger.Info("watching catalog sources for changes", "path", abs)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op == fsnotify.Chmod {
				continue
			}
			name, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			if !files[name] && !dirs[filepath.Dir(name)] {
				continue
			}

			logger.Debug("catalog change detected", "path", name, "op", event.Op.String())
			onChange()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("catalog watcher error", "error", err)
		}
	}
}
