package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chrissnell/landchange/internal/segment"
	"github.com/chrissnell/landchange/internal/storage/sqlite"
	"github.com/chrissnell/landchange/pkg/config"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	firstDate = 730000
	cadence   = 16
)

// writeSeries appends n observations of a three band pixel to b. Bands sit
// at 1000, 2000 and 3000 with alternating +/-50 noise; from shiftAt on every
// band is raised by 1000. A negative shiftAt means no change.
func writeSeries(b *strings.Builder, px, py, n, shiftAt int) {
	for i := 0; i < n; i++ {
		fmt.Fprintf(b, "%d,%d,%d", px, py, firstDate+cadence*i)
		for band := 0; band < 3; band++ {
			v := 1000 * (band + 1)
			if i%2 == 0 {
				v += 50
			} else {
				v -= 50
			}
			if shiftAt >= 0 && i >= shiftAt {
				v += 1000
			}
			fmt.Fprintf(b, ",%d", v)
		}
		b.WriteString("\n")
	}
}

func setup(t *testing.T, failFast bool) (cfgPath, dbPath string) {
	t.Helper()
	dir := t.TempDir()

	var csv strings.Builder
	csv.WriteString("px,py,date,blue,green,swir1\n")
	writeSeries(&csv, 0, 0, 200, 120)
	writeSeries(&csv, 1, 0, 200, -1)
	writeSeries(&csv, 2, 0, 8, -1)
	input := filepath.Join(dir, "series.csv")
	require.NoError(t, os.WriteFile(input, []byte(csv.String()), 0o644))

	dbPath = filepath.Join(dir, "results.db")
	cfgPath = filepath.Join(dir, "config.yaml")
	yaml := fmt.Sprintf(`
input:
  path: %s
  frequencies: [1]
detection:
  swir1_band: 2
  robust: true
  residual_check:
    band: 0
storage:
  sqlite:
    path: %s
  file:
    path: %s
workers: 2
fail_fast: %t
`, input, dbPath, filepath.Join(dir, "results.json"), failFast)
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o644))
	return cfgPath, dbPath
}

func TestRun(t *testing.T) {
	cfgPath, dbPath := setup(t, false)

	a := New(config.NewYAMLProvider(cfgPath), zaptest.NewLogger(t).Sugar())
	require.NoError(t, a.Run(context.Background()))

	st := a.Status()
	assert.True(t, st.Done)
	assert.Equal(t, int64(3), st.Pixels)
	assert.Equal(t, int64(2), st.Processed)
	assert.Equal(t, int64(1), st.Failed)
	assert.Equal(t, int64(1), st.Breaks)

	m := a.Metrics()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PixelsProcessed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreaksDetected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PixelsFailed.WithLabelValues("insufficient_observations")))

	ctx := context.Background()
	s, err := sqlite.New(ctx, dbPath, nil)
	require.NoError(t, err)
	defer s.Close()

	runID := a.RunID().String()
	n, err := s.Pixels(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	segs, err := s.Segments(ctx, runID, 0, 0, false)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, firstDate+cadence*121, segs[0].Break)
	assert.Equal(t, 0, segs[1].Break)
	require.Len(t, segs[0].Coef, 3)
	for _, seg := range segs {
		require.NotNil(t, seg.Check)
		assert.Equal(t, "EWMA", seg.Check.Method)
		assert.Equal(t, 0, seg.Check.Band)
		assert.False(t, seg.Check.Signif)
		assert.GreaterOrEqual(t, seg.Check.Date, seg.Start)
		assert.LessOrEqual(t, seg.Check.Date, seg.End)
	}
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ResidualBreaks))
	assert.InDelta(t, 1000, segs[0].Coef[0][0], 5)

	robust, err := s.Segments(ctx, runID, 0, 0, true)
	require.NoError(t, err)
	assert.Len(t, robust, 2)

	segs, err = s.Segments(ctx, runID, 1, 0, false)
	require.NoError(t, err)
	assert.Len(t, segs, 1)
}

func TestRunFailFast(t *testing.T) {
	cfgPath, _ := setup(t, true)

	a := New(config.NewYAMLProvider(cfgPath), zaptest.NewLogger(t).Sugar())
	err := a.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, segment.ErrInsufficientObservations)
}

func TestRunBadConfig(t *testing.T) {
	a := New(config.NewYAMLProvider(filepath.Join(t.TempDir(), "missing.yaml")), nil)
	assert.Error(t, a.Run(context.Background()))
}
