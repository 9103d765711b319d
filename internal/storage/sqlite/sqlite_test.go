package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/chrissnell/landchange/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func result(runID uuid.UUID, px, py int) storage.PixelResult {
	return storage.PixelResult{
		RunID:    runID,
		Px:       px,
		Py:       py,
		FitBands: []int{0, 1},
		Segments: []storage.Segment{
			{Start: 730000, End: 731920, Break: 731936, Coef: [][]float64{{1000, 0.1}, {2000, 0.2}}, RMSE: []float64{50, 51},
				Check: &storage.Check{Method: "EWMA", Band: 1, Date: 731904, Score: 212.5, Signif: true}},
			{Start: 731936, End: 733088, Coef: [][]float64{{2000, 0}, {3000, 0}}, RMSE: []float64{49, 48}},
		},
		Robust: []storage.Segment{
			{Start: 730000, End: 731920, Break: 731936, Coef: [][]float64{{999, 0.1}, {2001, 0.2}}, RMSE: []float64{45, 46}},
		},
		Processed: time.Now(),
	}
}

func TestStoreAndQuery(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, filepath.Join(t.TempDir(), "results.db"), zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer s.Close()

	runID := uuid.New()
	r := result(runID, 1, 2)
	require.NoError(t, s.Store(ctx, r))
	require.NoError(t, s.Store(ctx, result(runID, 1, 3)))

	segs, err := s.Segments(ctx, runID.String(), 1, 2, false)
	require.NoError(t, err)
	assert.Equal(t, r.Segments, segs)

	robust, err := s.Segments(ctx, runID.String(), 1, 2, true)
	require.NoError(t, err)
	assert.Equal(t, r.Robust, robust)

	n, err := s.Pixels(ctx, runID.String())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStoreReplacesPixel(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, filepath.Join(t.TempDir(), "results.db"), nil)
	require.NoError(t, err)
	defer s.Close()

	runID := uuid.New()
	r := result(runID, 0, 0)
	require.NoError(t, s.Store(ctx, r))

	r.Segments = r.Segments[:1]
	r.Robust = nil
	require.NoError(t, s.Store(ctx, r))

	segs, err := s.Segments(ctx, runID.String(), 0, 0, false)
	require.NoError(t, err)
	assert.Len(t, segs, 1)

	robust, err := s.Segments(ctx, runID.String(), 0, 0, true)
	require.NoError(t, err)
	assert.Empty(t, robust)
}

func TestRunsAreIndependent(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, filepath.Join(t.TempDir(), "results.db"), nil)
	require.NoError(t, err)
	defer s.Close()

	a, b := uuid.New(), uuid.New()
	require.NoError(t, s.Store(ctx, result(a, 0, 0)))
	require.NoError(t, s.Store(ctx, result(b, 0, 0)))

	n, err := s.Pixels(ctx, a.String())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
