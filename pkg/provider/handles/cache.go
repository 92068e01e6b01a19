// Package handles owns open provider handles.
//
// A Cache hands out at most one open handle per device name and serializes
// sessions on the same device. Sessions on different devices never contend.
package handles

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/3leaps/spoolwatch/pkg/provider"
)

// Options configures a Cache.
type Options struct {
	// RateLimit caps handle acquisitions per second across all devices.
	// Zero means unlimited.
	RateLimit float64

	// Burst is the limiter burst size. Default: 1
	Burst int

	// Logger receives debug output. Nil disables logging.
	Logger *zap.Logger
}

// Cache maps device names to open handles.
type Cache struct {
	provider provider.Provider
	logger   *zap.Logger
	limiter  *rate.Limiter

	mu      sync.Mutex
	handles map[string]provider.Handle
	locks   map[string]*sync.Mutex
}

// New creates a cache over p.
func New(p provider.Provider, opts Options) *Cache {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cache{
		provider: p,
		logger:   logger,
		handles:  make(map[string]provider.Handle),
		locks:    make(map[string]*sync.Mutex),
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return c
}

// Provider returns the wrapped provider.
func (c *Cache) Provider() provider.Provider {
	return c.provider
}

// Acquire returns the open handle for device, opening one if needed.
func (c *Cache) Acquire(ctx context.Context, device string) (provider.Handle, error) {
	if device == "" {
		return provider.Handle{}, fmt.Errorf("device name is required")
	}

	c.mu.Lock()
	if h, ok := c.handles[device]; ok {
		c.mu.Unlock()
		return h, nil
	}
	c.mu.Unlock()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return provider.Handle{}, err
		}
	}

	h, err := c.provider.Open(ctx, device)
	if err != nil {
		return provider.Handle{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.handles[device]; ok {
		// Lost a race with another Acquire; keep the first handle.
		_ = c.provider.Close(ctx, h)
		return existing, nil
	}
	c.handles[device] = h
	c.logger.Debug("Opened device handle", zap.String("device", device))
	return h, nil
}

// Release closes the handle for device. Releasing an absent handle is a no-op.
func (c *Cache) Release(ctx context.Context, device string) error {
	c.mu.Lock()
	h, ok := c.handles[device]
	if ok {
		delete(c.handles, device)
	}
	c.mu.Unlock()

	if !ok {
		return nil
	}
	if err := c.provider.Close(ctx, h); err != nil && !errors.Is(err, provider.ErrHandleClosed) {
		c.logger.Warn("Failed to close device handle", zap.String("device", device), zap.Error(err))
		return err
	}
	c.logger.Debug("Closed device handle", zap.String("device", device))
	return nil
}

// CloseAll closes every open handle and returns the joined errors.
func (c *Cache) CloseAll(ctx context.Context) error {
	var errs []error
	for _, name := range c.OpenDevices() {
		if err := c.Release(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// OpenDevices returns the names of devices with an open handle, sorted.
func (c *Cache) OpenDevices() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, len(c.handles))
	for name := range c.handles {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Func runs one logical operation on an open handle.
type Func func(ctx context.Context, p provider.Provider, h provider.Handle) error

// With runs fn against device under the device lock.
//
// The handle is acquired before fn and released after it on every path,
// including when fn returns an error or panics.
func (c *Cache) With(ctx context.Context, device string, fn Func) (err error) {
	lock := c.deviceLock(device)
	lock.Lock()
	defer lock.Unlock()

	h, err := c.Acquire(ctx, device)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := c.Release(context.WithoutCancel(ctx), device); rerr != nil && err == nil {
			err = rerr
		}
	}()

	return fn(ctx, c.provider, h)
}

func (c *Cache) deviceLock(device string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.locks[device]
	if !ok {
		l = &sync.Mutex{}
		c.locks[device] = l
	}
	return l
}
