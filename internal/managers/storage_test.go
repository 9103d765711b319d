package managers

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/chrissnell/landchange/internal/metrics"
	"github.com/chrissnell/landchange/internal/storage"
	"github.com/chrissnell/landchange/pkg/config"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSink struct {
	mu      sync.Mutex
	results []storage.PixelResult
	err     error
	closed  bool
}

func (m *memSink) Store(_ context.Context, r storage.PixelResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.results = append(m.results, r)
	return nil
}

func (m *memSink) Close() error {
	m.closed = true
	return nil
}

func TestNewStorageManagerBuildsConfiguredSinks(t *testing.T) {
	dir := t.TempDir()
	c := &config.StorageData{
		SQLite: &config.SQLiteData{Path: filepath.Join(dir, "r.db")},
		File:   &config.FileData{Path: filepath.Join(dir, "r.msgpack"), Format: "msgpack"},
	}

	s, err := NewStorageManager(context.Background(), c, nil, nil)
	require.NoError(t, err)
	defer s.Close()

	require.Len(t, s.Engines, 2)
	assert.Equal(t, "sqlite", s.Engines[0].Name)
	assert.Equal(t, "file", s.Engines[1].Name)
}

func TestNewStorageManagerRejectsBadFormat(t *testing.T) {
	c := &config.StorageData{File: &config.FileData{Path: filepath.Join(t.TempDir(), "r"), Format: "xml"}}
	_, err := NewStorageManager(context.Background(), c, nil, nil)
	assert.Error(t, err)
}

func TestStoreFansOut(t *testing.T) {
	m := metrics.New()
	s, err := NewStorageManager(context.Background(), &config.StorageData{}, m, nil)
	require.NoError(t, err)

	good, bad := &memSink{}, &memSink{err: errors.New("disk full")}
	s.AddSink("good", good)
	s.AddSink("bad", bad)

	r := storage.PixelResult{Px: 1, Segments: make([]storage.Segment, 2)}
	err = s.Store(context.Background(), r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: disk full")

	assert.Len(t, good.results, 1)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SegmentsStored.WithLabelValues("good")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SegmentsStored.WithLabelValues("bad")))

	require.NoError(t, s.Close())
	assert.True(t, good.closed)
	assert.True(t, bad.closed)
}
