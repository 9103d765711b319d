// Package sqlite stores detected segments in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/chrissnell/landchange/internal/storage"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS segments (
	run_id       TEXT NOT NULL,
	px           INTEGER NOT NULL,
	py           INTEGER NOT NULL,
	seq          INTEGER NOT NULL,
	robust       INTEGER NOT NULL DEFAULT 0,
	start_date   INTEGER NOT NULL,
	end_date     INTEGER NOT NULL,
	break_date   INTEGER,
	fit_bands    BLOB,
	coef         BLOB NOT NULL,
	rmse         BLOB,
	residual_check BLOB,
	processed_at TEXT NOT NULL,
	PRIMARY KEY (run_id, px, py, seq, robust)
);
CREATE INDEX IF NOT EXISTS segments_pixel_idx ON segments (px, py, start_date);
`

var _ storage.Sink = (*Storage)(nil)

// Storage writes segments to a SQLite file. Coefficient arrays are stored as
// MessagePack blobs.
type Storage struct {
	db     *sql.DB
	path   string
	logger *zap.SugaredLogger
}

// New opens (creating if needed) the database at path.
func New(ctx context.Context, path string, logger *zap.SugaredLogger) (*Storage, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	// between workers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}
	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create segments table: %w", err)
	}

	logger.Infof("storing segments in SQLite database %s", path)
	return &Storage{db: db, path: path, logger: logger}, nil
}

// Store replaces the rows of the pixel for the result's run.
func (s *Storage) Store(ctx context.Context, r storage.PixelResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	runID := r.RunID.String()
	if _, err := tx.ExecContext(ctx, "DELETE FROM segments WHERE run_id = ? AND px = ? AND py = ?", runID, r.Px, r.Py); err != nil {
		return fmt.Errorf("failed to clear pixel (%d,%d): %w", r.Px, r.Py, err)
	}

	fitBands, err := msgpack.Marshal(r.FitBands)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO segments (
			run_id, px, py, seq, robust, start_date, end_date,
			break_date, fit_bands, coef, rmse, residual_check, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	processed := r.Processed.UTC().Format(time.RFC3339Nano)
	insert := func(segs []storage.Segment, robust bool) error {
		for i, seg := range segs {
			coef, err := msgpack.Marshal(seg.Coef)
			if err != nil {
				return err
			}
			rmse, err := msgpack.Marshal(seg.RMSE)
			if err != nil {
				return err
			}
			var check []byte
			if seg.Check != nil {
				if check, err = msgpack.Marshal(seg.Check); err != nil {
					return err
				}
			}
			var brk sql.NullInt64
			if seg.Break != 0 {
				brk = sql.NullInt64{Int64: int64(seg.Break), Valid: true}
			}
			if _, err := stmt.ExecContext(ctx, runID, r.Px, r.Py, i, robust, seg.Start, seg.End,
				brk, fitBands, coef, rmse, check, processed); err != nil {
				return fmt.Errorf("failed to insert segment %d of pixel (%d,%d): %w", i, r.Px, r.Py, err)
			}
		}
		return nil
	}

	if err := insert(r.Segments, false); err != nil {
		return err
	}
	if err := insert(r.Robust, true); err != nil {
		return err
	}

	return tx.Commit()
}

// Segments returns the segments stored for a pixel in a run, ordered by
// sequence. robust selects the robust refits.
func (s *Storage) Segments(ctx context.Context, runID string, px, py int, robust bool) ([]storage.Segment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT start_date, end_date, break_date, coef, rmse, residual_check
		FROM segments
		WHERE run_id = ? AND px = ? AND py = ? AND robust = ?
		ORDER BY seq
	`, runID, px, py, robust)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	defer rows.Close()

	var out []storage.Segment
	for rows.Next() {
		var seg storage.Segment
		var brk sql.NullInt64
		var coef, rmse, check []byte
		if err := rows.Scan(&seg.Start, &seg.End, &brk, &coef, &rmse, &check); err != nil {
			return nil, fmt.Errorf("failed to scan segment row: %w", err)
		}
		seg.Break = int(brk.Int64)
		if err := msgpack.Unmarshal(coef, &seg.Coef); err != nil {
			return nil, err
		}
		if err := msgpack.Unmarshal(rmse, &seg.RMSE); err != nil {
			return nil, err
		}
		if check != nil {
			seg.Check = new(storage.Check)
			if err := msgpack.Unmarshal(check, seg.Check); err != nil {
				return nil, err
			}
		}
		out = append(out, seg)
	}
	return out, rows.Err()
}

// Pixels returns the number of distinct pixels stored for a run.
func (s *Storage) Pixels(ctx context.Context, runID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM (SELECT DISTINCT px, py FROM segments WHERE run_id = ?)", runID).Scan(&n)
	return n, err
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// String describes the sink for log messages.
func (s *Storage) String() string {
	return "sqlite:" + s.path
}
