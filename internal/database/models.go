package database

import (
	"encoding/json"
	"time"

	"github.com/chrissnell/landchange/internal/storage"
	"github.com/jackc/pgtype"
	"github.com/lib/pq"
)

// SegmentRow is one stored segment. Rows of a pixel are ordered by Seq;
// robust refits share the Seq of the segment they were derived from.
type SegmentRow struct {
	RunID     string          `gorm:"column:run_id;type:uuid;primaryKey"`
	Px        int             `gorm:"column:px;primaryKey"`
	Py        int             `gorm:"column:py;primaryKey"`
	Seq       int             `gorm:"column:seq;primaryKey"`
	Robust    bool            `gorm:"column:robust;primaryKey"`
	StartDate int             `gorm:"column:start_date;primaryKey"`
	EndDate   int             `gorm:"column:end_date;not null"`
	BreakDate *int            `gorm:"column:break_date"`
	FitBands  pq.Int64Array   `gorm:"column:fit_bands;type:integer[]"`
	Coef      pgtype.JSONB    `gorm:"column:coef;type:jsonb;not null"`
	RMSE      pq.Float64Array `gorm:"column:rmse;type:float8[]"`
	Check     pgtype.JSONB    `gorm:"column:residual_check;type:jsonb"`
	Processed time.Time       `gorm:"column:processed_at;not null"`
}

// TableName specifies the table name for SegmentRow
func (SegmentRow) TableName() string {
	return "segments"
}

// SegmentRows flattens a pixel result into table rows.
func SegmentRows(r storage.PixelResult) ([]SegmentRow, error) {
	fitBands := make(pq.Int64Array, len(r.FitBands))
	for i, b := range r.FitBands {
		fitBands[i] = int64(b)
	}

	var rows []SegmentRow
	add := func(segs []storage.Segment, robust bool) error {
		for i, s := range segs {
			coef, err := json.Marshal(s.Coef)
			if err != nil {
				return err
			}
			row := SegmentRow{
				RunID:     r.RunID.String(),
				Px:        r.Px,
				Py:        r.Py,
				Seq:       i,
				Robust:    robust,
				StartDate: s.Start,
				EndDate:   s.End,
				FitBands:  fitBands,
				Coef:      pgtype.JSONB{Bytes: coef, Status: pgtype.Present},
				RMSE:      pq.Float64Array(s.RMSE),
				Check:     pgtype.JSONB{Status: pgtype.Null},
				Processed: r.Processed,
			}
			if s.Check != nil {
				check, err := json.Marshal(s.Check)
				if err != nil {
					return err
				}
				row.Check = pgtype.JSONB{Bytes: check, Status: pgtype.Present}
			}
			if s.Break != 0 {
				b := s.Break
				row.BreakDate = &b
			}
			rows = append(rows, row)
		}
		return nil
	}

	if err := add(r.Segments, false); err != nil {
		return nil, err
	}
	if err := add(r.Robust, true); err != nil {
		return nil, err
	}
	return rows, nil
}

// Segment converts a row back into a storage.Segment.
func (row SegmentRow) Segment() (storage.Segment, error) {
	s := storage.Segment{
		Start: row.StartDate,
		End:   row.EndDate,
		RMSE:  []float64(row.RMSE),
	}
	if row.BreakDate != nil {
		s.Break = *row.BreakDate
	}
	if row.Coef.Status == pgtype.Present {
		if err := json.Unmarshal(row.Coef.Bytes, &s.Coef); err != nil {
			return storage.Segment{}, err
		}
	}
	if row.Check.Status == pgtype.Present {
		s.Check = new(storage.Check)
		if err := json.Unmarshal(row.Check.Bytes, s.Check); err != nil {
			return storage.Segment{}, err
		}
	}
	return s, nil
}
