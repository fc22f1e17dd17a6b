package reseed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/theory-cloud/phototheory/pkg/catalog"
	"github.com/theory-cloud/phototheory/pkg/observability"
	"github.com/theory-cloud/phototheory/pkg/screensaver"
)

type failingCatalog struct {
	catalog.Catalog
	err error
}

func (f failingCatalog) FetchAll(context.Context) (map[string]screensaver.Image, error) {
	return nil, f.err
}

type countingRotation struct {
	mu    sync.Mutex
	calls int
	last  map[string]screensaver.Image
}

func (c *countingRotation) Replace(images map[string]screensaver.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.last = images
}

func (c *countingRotation) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func seededCatalog(t *testing.T, names ...string) *catalog.MemoryCatalog {
	t.Helper()
	cat := catalog.NewMemoryCatalog()
	for _, name := range names {
		require.NoError(t, cat.Save(context.Background(), screensaver.Image{Name: name, Width: 1, Height: 1}))
	}
	return cat
}

func TestReseeder_ReplacesRotationFromCatalog(t *testing.T) {
	manager := screensaver.NewManager(screensaver.WithRandomness(screensaver.NewRandomness(1)))
	require.NoError(t, manager.Insert(screensaver.Image{Name: "stale.jpg"}))
	logger := observability.NewTestLogger()

	n, err := New(seededCatalog(t, "a.jpg", "b.jpg"), manager, WithLogger(logger)).Reseed(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, 2, manager.Len())

	current, ok := manager.Current()
	require.True(t, ok)
	require.NotEqual(t, "stale.jpg", current.Name)

	entries := logger.EntriesAt("info")
	require.Len(t, entries, 1)
	require.Equal(t, "reseed", entries[0].Fields["component"])
}

func TestReseeder_FetchErrorKeepsRotation(t *testing.T) {
	rotation := &countingRotation{}
	_, err := New(failingCatalog{err: errors.New("unavailable")}, rotation).Reseed(context.Background())
	require.ErrorContains(t, err, "unavailable")
	require.Zero(t, rotation.count())
}

func TestReseeder_RunTicksUntilCanceled(t *testing.T) {
	rotation := &countingRotation{}
	r := New(seededCatalog(t, "a.jpg"), rotation, WithFetchTimeout(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, 5*time.Millisecond) }()

	require.Eventually(t, func() bool { return rotation.count() >= 2 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestReseeder_RunWithoutIntervalWaits(t *testing.T) {
	rotation := &countingRotation{}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	require.NoError(t, New(seededCatalog(t), rotation).Run(ctx, 0))
	require.Zero(t, rotation.count())
}
