package audit

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// FileSink appends audit lines to a file opened once in append mode.
type FileSink struct {
	mu     sync.Mutex
	file   *os.File
	path   string
	logger *slog.Logger
}

// OpenFile opens (or creates) path for appending.
func OpenFile(path string, logger *slog.Logger) (*FileSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit file %s: %w", path, err)
	}
	logger.Info("audit file opened", "path", path)
	return &FileSink{file: f, path: path, logger: logger}, nil
}

// Path returns the file the sink writes to.
func (s *FileSink) Path() string {
	return s.path
}

// Append writes rec as one line. The whole line goes out in a single write
// while holding the lock so concurrent appends never interleave.
func (s *FileSink) Append(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return ErrClosed
	}
	if _, err := s.file.WriteString(rec.Line()); err != nil {
		return fmt.Errorf("append audit record to %s: %w", s.path, err)
	}
	return nil
}

// Close flushes and closes the underlying file. Closing twice is a no-op.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	if err != nil {
		return fmt.Errorf("close audit file %s: %w", s.path, err)
	}
	return nil
}
