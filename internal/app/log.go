package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// favsHandler is a slog.Handler that formats log records as:
//
//	<timestamp>\t<level>\t<sessionID>\t<message>\t<key=value ...>
type favsHandler struct {
	mu        *sync.Mutex
	w         io.Writer
	level     slog.Leveler
	sessionID string
	attrs     []slog.Attr
}

func (h *favsHandler) Enabled(_ context.Context, level slog.Level) bool {
	if h.level == nil {
		return true
	}
	return level >= h.level.Level()
}

func (h *favsHandler) Handle(_ context.Context, r slog.Record) error {
	buf := fmt.Appendf(nil, "%s\t%s\t%s\t%s",
		r.Time.UTC().Format("2006-01-02T15:04:05Z"), r.Level, h.sessionID, r.Message)

	for _, a := range h.attrs {
		buf = fmt.Appendf(buf, "\t%s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		buf = fmt.Appendf(buf, "\t%s=%v", a.Key, a.Value)
		return true
	})
	buf = append(buf, '\n')

	// One write per record so lines from the sync lane and watchers never interleave.
	if h.mu != nil {
		h.mu.Lock()
		defer h.mu.Unlock()
	}
	_, err := h.w.Write(buf)
	return err
}

func (h *favsHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &favsHandler{
		mu:        h.mu,
		w:         h.w,
		level:     h.level,
		sessionID: h.sessionID,
		attrs:     append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *favsHandler) WithGroup(string) slog.Handler { return h }

// newLogger creates a structured logger that writes to both logDir/favs.log
// and stderr. It returns the slog.Logger, the open log file (for cleanup),
// and any error.
func newLogger(logDir, sessionID string, level slog.Leveler) (*slog.Logger, *os.File, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	logPath := filepath.Join(logDir, "favs.log")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	handler := &favsHandler{
		mu:        &sync.Mutex{},
		w:         io.MultiWriter(f, os.Stderr),
		level:     level,
		sessionID: sessionID,
	}
	return slog.New(handler), f, nil
}

// slogAdapter wraps *slog.Logger to satisfy the fav.Logger interface.
type slogAdapter struct {
	l *slog.Logger
}

func (a *slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }
