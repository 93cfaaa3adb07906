package connectivity

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"favsync/internal/fav"
)

// StatusFile is a Source backed by a file containing "online" or "offline",
// rewritten by an external hook such as a network dispatcher script. A
// missing file means online.
type StatusFile struct {
	path   string
	logger fav.Logger
}

// NewStatusFile creates a StatusFile source for path.
func NewStatusFile(path string, logger fav.Logger) *StatusFile {
	if logger == nil {
		logger = fav.NewNopLogger()
	}
	return &StatusFile{path: filepath.Clean(path), logger: logger}
}

func (s *StatusFile) Online() (bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading status file: %w", err)
	}

	switch state := strings.ToLower(strings.TrimSpace(string(data))); state {
	case "online", "":
		return true, nil
	case "offline":
		return false, nil
	default:
		return false, fmt.Errorf("unknown connectivity state %q", state)
	}
}

// Start watches the file's directory, so replacing the file by rename is
// seen too, and calls notify after every change until ctx is done.
func (s *StatusFile) Start(ctx context.Context, notify func(online bool)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		w.Close()
		return fmt.Errorf("watching %s: %w", filepath.Dir(s.path), err)
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != s.path {
					continue
				}
				online, err := s.Online()
				if err != nil {
					s.logger.Warn("reading connectivity failed", "path", s.path, "error", err)
					continue
				}
				notify(online)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.logger.Warn("connectivity watcher error", "error", err)
			}
		}
	}()
	return nil
}
