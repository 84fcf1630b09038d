package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	infralogger "github.com/Siriusbar/SlopedIn/infrastructure/logger"
)

// FileWatcher keeps an HTMLDocument in sync with a snapshot file on disk.
type FileWatcher struct {
	*HTMLDocument

	path   string
	logger infralogger.Logger
}

// NewFileWatcher loads path once. Call Run to follow later changes.
func NewFileWatcher(path string, log infralogger.Logger, opts ...HTMLOption) (*FileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve snapshot path: %w", err)
	}

	w := &FileWatcher{
		HTMLDocument: NewHTMLDocument(opts...),
		path:         abs,
		logger:       log.With(infralogger.Component("file-watcher"), infralogger.String("path", abs)),
	}
	if err = w.reload(); err != nil {
		return nil, err
	}
	return w, nil
}

// Run watches the snapshot's directory until ctx is done. Watching the
// directory keeps the watch alive across editors that replace the file.
func (w *FileWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err = watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}

	w.logger.Info("Watching feed snapshot")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if reloadErr := w.reload(); reloadErr != nil {
				w.logger.Warn("Failed to reload feed snapshot", infralogger.Error(reloadErr))
			}
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Snapshot watcher error", infralogger.Error(watchErr))
		}
	}
}

func (w *FileWatcher) reload() error {
	f, err := os.Open(w.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			w.logger.Debug("Feed snapshot missing, keeping previous contents")
			return nil
		}
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	if err = w.Load(f); err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	w.logger.Debug("Feed snapshot loaded", infralogger.Int("items", len(w.Handles())))
	return nil
}
