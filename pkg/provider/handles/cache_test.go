package handles

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/spoolwatch/pkg/provider"
	"github.com/3leaps/spoolwatch/pkg/provider/fixture"
)

func newSpooler() *fixture.Spooler {
	return fixture.New(&fixture.State{Devices: []fixture.Device{
		{Name: "A", Jobs: []fixture.Job{{ID: 1}}},
		{Name: "B"},
	}})
}

func TestCache_AcquireReuses(t *testing.T) {
	ctx := context.Background()
	s := newSpooler()
	c := New(s, Options{})

	h1, err := c.Acquire(ctx, "A")
	require.NoError(t, err)
	h2, err := c.Acquire(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Equal(t, 1, s.Calls(fixture.OpOpen))
	assert.Equal(t, []string{"A"}, c.OpenDevices())
}

func TestCache_ReleaseIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newSpooler()
	c := New(s, Options{})

	_, err := c.Acquire(ctx, "A")
	require.NoError(t, err)
	require.NoError(t, c.Release(ctx, "A"))
	require.NoError(t, c.Release(ctx, "A"))
	require.NoError(t, c.Release(ctx, "never-opened"))
	assert.Equal(t, 0, s.OpenHandles())
}

func TestCache_CloseAll(t *testing.T) {
	ctx := context.Background()
	s := newSpooler()
	c := New(s, Options{})

	_, err := c.Acquire(ctx, "A")
	require.NoError(t, err)
	_, err = c.Acquire(ctx, "B")
	require.NoError(t, err)

	s.FailNext(fixture.OpClose, errors.New("close failed"))
	err = c.CloseAll(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "A: ")
	assert.Empty(t, c.OpenDevices())
}

func TestCache_AcquireErrors(t *testing.T) {
	c := New(newSpooler(), Options{})
	_, err := c.Acquire(context.Background(), "")
	require.Error(t, err)

	_, err = c.Acquire(context.Background(), "Missing")
	assert.True(t, provider.IsDeviceNotFound(err))
	assert.Empty(t, c.OpenDevices())
}

func TestCache_WithReleasesOnEveryPath(t *testing.T) {
	ctx := context.Background()
	s := newSpooler()
	c := New(s, Options{})

	err := c.With(ctx, "A", func(ctx context.Context, p provider.Provider, h provider.Handle) error {
		jobs, err := p.EnumerateJobs(ctx, h)
		require.NoError(t, err)
		assert.Len(t, jobs, 1)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, s.OpenHandles())

	boom := errors.New("boom")
	err = c.With(ctx, "A", func(ctx context.Context, p provider.Provider, h provider.Handle) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, s.OpenHandles())

	assert.Panics(t, func() {
		_ = c.With(ctx, "A", func(ctx context.Context, p provider.Provider, h provider.Handle) error {
			panic("kaboom")
		})
	})
	assert.Equal(t, 0, s.OpenHandles())
	assert.Empty(t, c.OpenDevices())
}

func TestCache_WithSerializesSameDevice(t *testing.T) {
	ctx := context.Background()
	c := New(newSpooler(), Options{})

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.With(ctx, "A", func(ctx context.Context, p provider.Provider, h provider.Handle) error {
				n := inside.Add(1)
				for {
					m := maxInside.Load()
					if n <= m || maxInside.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				inside.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())
}

func TestCache_DifferentDevicesDoNotContend(t *testing.T) {
	ctx := context.Background()
	c := New(newSpooler(), Options{})

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- c.With(ctx, "A", func(ctx context.Context, p provider.Provider, h provider.Handle) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	err := c.With(ctx, "B", func(ctx context.Context, p provider.Provider, h provider.Handle) error {
		return nil
	})
	require.NoError(t, err)
	close(release)
	require.NoError(t, <-done)
}

func TestCache_RateLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := New(newSpooler(), Options{RateLimit: 0.001, Burst: 1})

	require.NoError(t, c.With(ctx, "A", func(context.Context, provider.Provider, provider.Handle) error { return nil }))

	cancel()
	_, err := c.Acquire(ctx, "B")
	require.Error(t, err)
}
