package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/rafaeljc/heimdall-go/internal/validation"
)

var (
	_ Source  = (*FileSource)(nil)
	_ Watcher = (*FileSource)(nil)
)

// FileSource reads the flag document from the local filesystem.
type FileSource struct {
	path   string
	logger *slog.Logger
}

// NewFileSource creates a source for the document at path.
func NewFileSource(logger *slog.Logger, path string) *FileSource {
	validation.AssertNotEmpty(path, "flag file path")
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSource{path: path, logger: logger}
}

// Name implements Source.
func (s *FileSource) Name() string { return "file" }

// Path returns the watched file path.
func (s *FileSource) Path() string { return s.path }

// Fetch implements Source. An empty file is reported as ErrSourceEmpty.
func (s *FileSource) Fetch(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s does not exist", ErrSourceEmpty, s.path)
		}
		return nil, fmt.Errorf("failed to read flag file: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrSourceEmpty, s.path)
	}
	return data, nil
}

// Watch implements Watcher.
//
// The parent directory is watched rather than the file itself: editors and
// config-map mounts replace files by rename, which drops a watch held on the
// old inode.
func (s *FileSource) Watch(ctx context.Context, notify func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(s.path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
	}

	s.logger.Info("watching flag file", slog.String("path", target))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				s.logger.Debug("flag file changed", slog.String("op", event.Op.String()))
				notify()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			// Overflow and transient errors are not fatal; the poller still ticks.
			s.logger.Warn("file watcher error", slog.String("error", err.Error()))
		}
	}
}
