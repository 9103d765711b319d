package timescaledb

import (
	"context"
	"fmt"

	"github.com/chrissnell/landchange/internal/database"
	"github.com/chrissnell/landchange/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ storage.Sink = (*Storage)(nil)

// Storage holds the configuration for a TimescaleDB storage backend
type Storage struct {
	TimescaleDBConn *gorm.DB
	logger          *zap.SugaredLogger
}

// Store writes the segments of one pixel in a single transaction. Rewriting
// a pixel within the same run replaces its rows.
func (t *Storage) Store(ctx context.Context, r storage.PixelResult) error {
	rows, err := database.SegmentRows(r)
	if err != nil {
		return fmt.Errorf("could not encode segments for pixel (%d,%d): %w", r.Px, r.Py, err)
	}
	if len(rows) == 0 {
		return nil
	}

	err = t.TimescaleDBConn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ? AND px = ? AND py = ?", r.RunID.String(), r.Px, r.Py).
			Delete(&database.SegmentRow{}).Error; err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
	})
	if err != nil {
		t.logger.Errorw("could not store segments", "px", r.Px, "py", r.Py, "error", err)
		return err
	}
	return nil
}

// Segments returns the non-robust segments stored for a pixel in a run.
func (t *Storage) Segments(ctx context.Context, runID string, px, py int) ([]storage.Segment, error) {
	var rows []database.SegmentRow
	err := t.TimescaleDBConn.WithContext(ctx).
		Where("run_id = ? AND px = ? AND py = ? AND robust = false", runID, px, py).
		Order("seq").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error querying segments: %w", err)
	}

	out := make([]storage.Segment, 0, len(rows))
	for _, row := range rows {
		s, err := row.Segment()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Close releases the underlying connection pool
func (t *Storage) Close() error {
	sqlDB, err := t.TimescaleDBConn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// New sets up a new TimescaleDB storage backend
func New(ctx context.Context, connectionString string, logger *zap.SugaredLogger) (*Storage, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	db, err := database.CreateConnection(connectionString)
	if err != nil {
		return nil, err
	}

	t := &Storage{TimescaleDBConn: db, logger: logger}
	if err := t.init(ctx); err != nil {
		t.closeOnError()
		return nil, err
	}
	return t, nil
}

// init verifies the connection and creates the schema.
func (t *Storage) init(ctx context.Context) error {
	if err := t.checkHealth(ctx); err != nil {
		return err
	}

	steps := []struct {
		name string
		sql  string
	}{
		{"creating TimescaleDB extension", createExtensionSQL},
		{"creating segments table", createTableSQL},
		{"adding residual check column", addCheckColumnSQL},
		{"creating hypertable", createHypertableSQL},
		{"creating pixel index", createPixelIndexSQL},
		{"creating breaks view", createBreaksViewSQL},
	}
	for _, step := range steps {
		t.logger.Info(step.name + "...")
		if err := t.TimescaleDBConn.WithContext(ctx).Exec(step.sql).Error; err != nil {
			t.logger.Warnf("warning: %s failed: %v", step.name, err)
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}
	return nil
}

// closeOnError releases the pool of a half-initialized backend.
func (t *Storage) closeOnError() {
	if err := t.Close(); err != nil {
		t.logger.Warnf("could not close TimescaleDB connection: %v", err)
	}
}
