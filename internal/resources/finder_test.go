package resources

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSource struct {
	calls atomic.Int32
}

func (s *failingSource) Registry(context.Context) (*Registry, error) {
	s.calls.Add(1)
	return nil, errors.New("registry offline")
}

type blockingSource struct{}

func (blockingSource) Registry(ctx context.Context) (*Registry, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestFinder_StaticSource(t *testing.T) {
	f := NewFinder(NewStaticSource(DefaultRegistry()), FinderConfig{}, nil)
	got, fellBack := f.Find(context.Background(), crisisOnly, nil, MatchOptions{PrioritizeCrisis: true})
	assert.False(t, fellBack)
	require.NotEmpty(t, got)
	assert.Equal(t, "us-988-lifeline", got[0].Resource.ID)

	res, ok := f.Get(context.Background(), "gb-refuge")
	require.True(t, ok)
	assert.True(t, res.Discreet)
}

func TestFinder_SourceErrorFallsBack(t *testing.T) {
	var reasons atomic.Int32
	f := NewFinder(&failingSource{}, FinderConfig{}, nil)
	f.OnFallback = func(error) { reasons.Add(1) }

	got, fellBack := f.Find(context.Background(), crisisOnly, nil, MatchOptions{})
	assert.True(t, fellBack)
	require.NotEmpty(t, got)
	assert.True(t, got[0].Fallback)
	assert.Equal(t, int32(1), reasons.Load())

	_, ok := f.Get(context.Background(), "fallback-ndvh")
	assert.True(t, ok)
}

func TestFinder_TimeoutFallsBack(t *testing.T) {
	f := NewFinder(blockingSource{}, FinderConfig{Timeout: 20 * time.Millisecond}, nil)

	start := time.Now()
	got, fellBack := f.Find(context.Background(), crisisOnly, nil, MatchOptions{})
	assert.True(t, fellBack)
	assert.NotEmpty(t, got)
	assert.Less(t, time.Since(start), time.Second)
}

func TestFinder_BreakerOpens(t *testing.T) {
	src := &failingSource{}
	f := NewFinder(src, FinderConfig{BreakerFailures: 2, BreakerTimeout: time.Minute}, nil)

	for i := 0; i < 4; i++ {
		_, fellBack := f.Find(context.Background(), crisisOnly, nil, MatchOptions{})
		assert.True(t, fellBack)
	}
	assert.Equal(t, int32(2), src.calls.Load())
	assert.Equal(t, "open", f.State())
}

const smallRegistry = `
version: "%s"
resources:
  - {id: a, name: A, categories: [crisis], active: true, contact: {phone: "1"}, coverage: {scope: national, country_codes: [US]}}
`

func TestFileSource_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	write := func(version string, mtime time.Time) {
		require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(smallRegistry, version)), 0o600))
		require.NoError(t, os.Chtimes(path, mtime, mtime))
	}
	base := time.Now().Add(-time.Hour)
	write("v1", base)

	src := NewFileSource(path, nil)
	reg, err := src.Registry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v1", reg.Version)

	write("v2", base.Add(time.Minute))
	reg, err = src.Registry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v2", reg.Version)

	// A broken edit keeps the last good registry.
	require.NoError(t, os.WriteFile(path, []byte("version: ["), 0o600))
	require.NoError(t, os.Chtimes(path, base.Add(2*time.Minute), base.Add(2*time.Minute)))
	reg, err = src.Registry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v2", reg.Version)
}

func TestFileSource_MissingFile(t *testing.T) {
	src := NewFileSource(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	_, err := src.Registry(context.Background())
	assert.Error(t, err)
}
