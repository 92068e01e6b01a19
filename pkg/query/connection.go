package query

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/spoolwatch/pkg/provider"
	"github.com/3leaps/spoolwatch/pkg/spool"
)

// ConnectionResult is the outcome of TestConnection.
type ConnectionResult struct {
	Device       string        `json:"device"`
	Success      bool          `json:"success"`
	ResponseTime time.Duration `json:"response_time"`
	Error        string        `json:"error,omitempty"`
}

// TestConnection opens the device, reads its info and reports how long it took.
func (s *Service) TestConnection(ctx context.Context, device string) ConnectionResult {
	start := s.now()
	err := s.cache.With(ctx, device, func(ctx context.Context, p provider.Provider, h provider.Handle) error {
		_, err := p.GetDeviceInfo(ctx, h)
		return err
	})
	res := ConnectionResult{
		Device:       device,
		Success:      err == nil,
		ResponseTime: s.now().Sub(start),
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

// Ping checks that the provider backend is reachable.
func (s *Service) Ping(ctx context.Context) error {
	if p, ok := s.cache.Provider().(provider.Pinger); ok {
		return p.Ping(ctx)
	}
	_, err := s.cache.Provider().ListDevices(ctx)
	return err
}

// PrintTestPage submits copies of a plain test page and returns the new
// job ids, which can seed a scoped watch. Providers without raw submission
// return provider.ErrUnsupportedCommand.
func (s *Service) PrintTestPage(ctx context.Context, device string, copies int) ([]int, error) {
	if copies <= 0 {
		copies = 1
	}
	submitter, ok := s.cache.Provider().(provider.RawSubmitter)
	if !ok {
		return nil, &provider.ProviderError{
			Op:       "PrintTestPage",
			Provider: s.cache.Provider().Kind(),
			Device:   device,
			Err:      provider.ErrUnsupportedCommand,
		}
	}

	payload := testPage(device, s.now())
	ids := make([]int, 0, copies)
	err := s.cache.With(ctx, device, func(ctx context.Context, p provider.Provider, h provider.Handle) error {
		for i := 0; i < copies; i++ {
			id, err := submitter.SubmitRaw(ctx, h, "spoolwatch test page", payload)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return ids, err
	}
	s.logger.Info("Test page submitted", zap.String("device", device), zap.Ints("job_ids", ids))
	return ids, nil
}

func testPage(device string, at time.Time) []byte {
	return []byte(fmt.Sprintf("spoolwatch test page\r\n\r\nDevice: %s\r\nPrinted: %s\r\n\f",
		device, at.UTC().Format(time.RFC3339)))
}

// DefaultPollInterval and DefaultPollDuration apply to zero PollStatus arguments.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultPollDuration = 60 * time.Second
)

// PollStatus reads device status every interval for duration, calling fn
// with each result. It returns the number of checks made and ctx.Err() if
// cancelled early.
func (s *Service) PollStatus(ctx context.Context, device string, interval, duration time.Duration, fn func(spool.DeviceStatus)) (int, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if duration <= 0 {
		duration = DefaultPollDuration
	}

	deadline := time.NewTimer(duration)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	checks := 0
	for {
		ds := s.GetStatus(ctx, device)
		checks++
		if fn != nil {
			fn(ds)
		}

		select {
		case <-ctx.Done():
			return checks, ctx.Err()
		case <-deadline.C:
			return checks, nil
		case <-ticker.C:
		}
	}
}
