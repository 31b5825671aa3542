package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileSource reads a document from disk.
//
// The parent directory is watched rather than the file itself so that editors
// and config management tools replacing the file by rename are noticed.
type FileSource struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger
}

// NewFileSource returns a source for path. Bursts of filesystem events closer
// than debounce are reported once.
func NewFileSource(logger *slog.Logger, path string, debounce time.Duration) *FileSource {
	if logger == nil {
		panic("source: logger cannot be nil")
	}
	return &FileSource{path: filepath.Clean(path), debounce: debounce, logger: logger}
}

func (s *FileSource) Name() string { return "file:" + s.path }

func (s *FileSource) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	return data, nil
}

func (s *FileSource) Watch(ctx context.Context, notify func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			s.logger.Warn("failed to close file watcher", slog.String("error", err.Error()))
		}
	}()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	s.logger.Info("watching rule document", slog.String("path", s.path))

	// A stopped timer whose channel only fires after an event has been seen.
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != s.path || event.Op == fsnotify.Chmod {
				continue
			}
			s.logger.Debug("rule document changed", slog.String("op", event.Op.String()))
			if s.debounce <= 0 {
				notify()
				continue
			}
			timer.Reset(s.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("file watcher error", slog.String("error", err.Error()))

		case <-timer.C:
			notify()
		}
	}
}
