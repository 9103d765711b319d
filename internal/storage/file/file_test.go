package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/chrissnell/landchange/internal/storage"
	"github.com/chrissnell/landchange/pkg/responseformat"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndReadBack(t *testing.T) {
	for _, format := range []responseformat.Format{responseformat.JSON, responseformat.MsgPack} {
		t.Run(string(format), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "results")
			s, err := New(path, format, nil)
			require.NoError(t, err)

			runID := uuid.New()
			for px := 0; px < 3; px++ {
				require.NoError(t, s.Store(context.Background(), storage.PixelResult{
					RunID:    runID,
					Px:       px,
					FitBands: []int{0},
					Segments: []storage.Segment{{Start: 1, End: 2, Coef: [][]float64{{1, 2}}, RMSE: []float64{3},
						Check: &storage.Check{Method: "EWMA", Date: 2, Score: 1.5, Signif: true}}},
				}))
			}
			require.NoError(t, s.Close())

			f, err := os.Open(path)
			require.NoError(t, err)
			defer f.Close()

			dec := responseformat.NewFormatter().NewDecoder(f, format)
			for px := 0; px < 3; px++ {
				var r storage.PixelResult
				require.NoError(t, dec.Decode(&r))
				assert.Equal(t, px, r.Px)
				assert.Equal(t, runID, r.RunID)
				require.Len(t, r.Segments, 1)
				assert.Equal(t, []float64{1, 2}, r.Segments[0].Coef[0])
				assert.Equal(t, &storage.Check{Method: "EWMA", Date: 2, Score: 1.5, Signif: true}, r.Segments[0].Check)
			}
		})
	}
}

func TestStoreHonorsCancellation(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "results"), responseformat.JSON, nil)
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Store(ctx, storage.PixelResult{}), context.Canceled)
}
