// Package file writes pixel results as a JSON-lines or MessagePack stream.
package file

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/chrissnell/landchange/internal/storage"
	"github.com/chrissnell/landchange/pkg/responseformat"
	"go.uber.org/zap"
)

var _ storage.Sink = (*Storage)(nil)

// Storage appends one encoded PixelResult per Store call.
type Storage struct {
	mu     sync.Mutex
	f      *os.File
	w      *bufio.Writer
	enc    responseformat.Encoder
	logger *zap.SugaredLogger
}

// New creates (truncating) the file at path.
func New(path string, format responseformat.Format, logger *zap.SugaredLogger) (*Storage, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create result file: %w", err)
	}

	w := bufio.NewWriter(f)
	logger.Infof("writing %s results to %s", format, path)
	return &Storage{
		f:      f,
		w:      w,
		enc:    responseformat.NewFormatter().NewEncoder(w, format),
		logger: logger,
	}, nil
}

// Store encodes r onto the stream.
func (s *Storage) Store(ctx context.Context, r storage.PixelResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode pixel (%d,%d): %w", r.Px, r.Py, err)
	}
	return nil
}

// Close flushes buffered output and closes the file.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.w.Flush(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}
