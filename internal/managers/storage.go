// Package managers assembles the configured result sinks.
package managers

import (
	"context"
	"errors"
	"fmt"

	"github.com/chrissnell/landchange/internal/metrics"
	"github.com/chrissnell/landchange/internal/storage"
	"github.com/chrissnell/landchange/internal/storage/file"
	"github.com/chrissnell/landchange/internal/storage/sqlite"
	"github.com/chrissnell/landchange/internal/storage/timescaledb"
	"github.com/chrissnell/landchange/pkg/config"
	"github.com/chrissnell/landchange/pkg/responseformat"
	"go.uber.org/zap"
)

// StorageManager holds our active storage backends
type StorageManager struct {
	Engines []StorageEngine
	metrics *metrics.Metrics
	logger  *zap.SugaredLogger
}

// StorageEngine pairs a sink with the name used in logs and metrics
type StorageEngine struct {
	Name string
	Sink storage.Sink
}

// NewStorageManager creates a StorageManager object, populated with all
// configured sinks. m may be nil.
func NewStorageManager(ctx context.Context, c *config.StorageData, m *metrics.Metrics, logger *zap.SugaredLogger) (*StorageManager, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &StorageManager{metrics: m, logger: logger}

	// Check the configuration for the supported backends and enable them if found
	for _, name := range []string{"sqlite", "timescaledb", "file"} {
		if err := s.AddEngine(ctx, name, c); err != nil {
			s.Close()
			return nil, fmt.Errorf("could not add %s storage backend: %w", name, err)
		}
	}

	if len(s.Engines) == 0 {
		logger.Warn("no storage backends configured; results will only be logged")
	}
	return s, nil
}

// AddEngine adds the backend engineName if c configures it
func (s *StorageManager) AddEngine(ctx context.Context, engineName string, c *config.StorageData) error {
	var sink storage.Sink
	var err error

	switch engineName {
	case "sqlite":
		if c.SQLite == nil {
			return nil
		}
		sink, err = sqlite.New(ctx, c.SQLite.Path, s.logger)
	case "timescaledb":
		if c.TimescaleDB == nil || c.TimescaleDB.ConnectionString == "" {
			return nil
		}
		sink, err = timescaledb.New(ctx, c.TimescaleDB.ConnectionString, s.logger)
	case "file":
		if c.File == nil {
			return nil
		}
		var format responseformat.Format
		if format, err = responseformat.ParseFormat(c.File.Format); err != nil {
			return err
		}
		sink, err = file.New(c.File.Path, format, s.logger)
	default:
		return fmt.Errorf("unknown storage backend %q", engineName)
	}
	if err != nil {
		return err
	}

	s.AddSink(engineName, sink)
	return nil
}

// AddSink registers an already constructed sink
func (s *StorageManager) AddSink(name string, sink storage.Sink) {
	s.Engines = append(s.Engines, StorageEngine{Name: name, Sink: sink})
}

// Store sends r to every sink. All sinks are attempted; the errors of those
// that failed are joined.
func (s *StorageManager) Store(ctx context.Context, r storage.PixelResult) error {
	var errs []error
	for _, e := range s.Engines {
		if err := e.Sink.Store(ctx, r); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.Name, err))
			continue
		}
		if s.metrics != nil {
			s.metrics.SegmentsStored.WithLabelValues(e.Name).Add(float64(len(r.Segments)))
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink
func (s *StorageManager) Close() error {
	var errs []error
	for _, e := range s.Engines {
		if err := e.Sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.Name, err))
		}
	}
	return errors.Join(errs...)
}
