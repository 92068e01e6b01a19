// Package query provides point-in-time device and job operations.
//
// Every call performs one logical query or command against the provider
// and releases the device handle before returning. No state is kept
// between calls.
package query

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/3leaps/spoolwatch/pkg/provider"
	"github.com/3leaps/spoolwatch/pkg/provider/handles"
	"github.com/3leaps/spoolwatch/pkg/spool"
	"github.com/3leaps/spoolwatch/pkg/status"
)

// DefaultHistoryWindow is used when GetHistory is given a zero window.
const DefaultHistoryWindow = 24 * time.Hour

// Service answers status and job questions and issues control commands.
type Service struct {
	cache  *handles.Cache
	reader *spool.Reader
	logger *zap.Logger
	now    func() time.Time
}

// New creates a service over cache. A nil logger disables logging.
func New(cache *handles.Cache, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cache:  cache,
		reader: spool.NewReader(cache, logger),
		logger: logger,
		now:    time.Now,
	}
}

// Reader returns the snapshot reader backing the service.
func (s *Service) Reader() *spool.Reader { return s.reader }

// Cache returns the handle cache backing the service.
func (s *Service) Cache() *handles.Cache { return s.cache }

// ListDevices returns devices whose name matches pattern. An empty pattern
// matches everything.
func (s *Service) ListDevices(ctx context.Context, pattern string) ([]provider.DeviceEntry, error) {
	if pattern != "" && !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid device pattern %q", pattern)
	}
	entries, err := s.cache.Provider().ListDevices(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]provider.DeviceEntry, 0, len(entries))
	for _, e := range entries {
		if pattern != "" {
			ok, _ := doublestar.Match(pattern, e.Name)
			if !ok {
				continue
			}
		}
		out = append(out, e)
	}
	return out, nil
}

// LocalDevices returns devices attached directly to the host.
func (s *Service) LocalDevices(ctx context.Context) ([]provider.DeviceEntry, error) {
	return s.devicesOfType(ctx, provider.DeviceTypeLocal)
}

// NetworkDevices returns devices reached over the network.
func (s *Service) NetworkDevices(ctx context.Context) ([]provider.DeviceEntry, error) {
	return s.devicesOfType(ctx, provider.DeviceTypeNetwork)
}

func (s *Service) devicesOfType(ctx context.Context, typ string) ([]provider.DeviceEntry, error) {
	all, err := s.ListDevices(ctx, "")
	if err != nil {
		return nil, err
	}
	out := make([]provider.DeviceEntry, 0, len(all))
	for _, e := range all {
		if e.Type() == typ {
			out = append(out, e)
		}
	}
	return out, nil
}

// GetStatus returns the device status. It never fails; an unreadable
// device is reported with Available false and the cause in Error.
func (s *Service) GetStatus(ctx context.Context, device string) spool.DeviceStatus {
	ds, err := s.reader.DeviceStatus(ctx, device)
	if err != nil {
		s.logger.Warn("Failed to read device status", zap.String("device", device), zap.Error(err))
	}
	return ds
}

// GetJobCount returns the number of queued jobs, or 0 when the device
// cannot be read.
func (s *Service) GetJobCount(ctx context.Context, device string) int {
	return s.GetStatus(ctx, device).JobCount
}

// IsReady reports whether the device is readable and has no status bits set.
func (s *Service) IsReady(ctx context.Context, device string) bool {
	ds := s.GetStatus(ctx, device)
	return ds.Available && ds.Ready
}

// ListJobs returns every job on the device; failures yield an empty list.
func (s *Service) ListJobs(ctx context.Context, device string) []spool.JobRecord {
	return s.reader.ListJobs(ctx, device)
}

// GetJob returns a single job.
func (s *Service) GetJob(ctx context.Context, device string, jobID int) (spool.JobRecord, bool) {
	return s.reader.GetJob(ctx, device, jobID)
}

// GetHistory returns jobs submitted after now-window, newest first. A job
// submitted exactly at the cutoff is outside the window. Ties are broken by ascending job id. Jobs without a submission
// time are excluded.
func (s *Service) GetHistory(ctx context.Context, device string, window time.Duration) []spool.JobRecord {
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	cutoff := s.now().Add(-window)

	jobs := s.reader.ListJobs(ctx, device)
	out := make([]spool.JobRecord, 0, len(jobs))
	for _, j := range jobs {
		if j.Submitted == nil || !j.Submitted.After(cutoff) {
			continue
		}
		out = append(out, j)
	}
	sort.SliceStable(out, func(i, k int) bool {
		a, b := out[i].Submitted, out[k].Submitted
		if !a.Equal(*b) {
			return a.After(*b)
		}
		return out[i].JobID < out[k].JobID
	})
	return out
}

// Pause stops the device from printing.
func (s *Service) Pause(ctx context.Context, device string) error {
	return s.deviceControl(ctx, device, provider.DevicePause)
}

// Resume lets a paused device print again.
func (s *Service) Resume(ctx context.Context, device string) error {
	return s.deviceControl(ctx, device, provider.DeviceResume)
}

// PurgeJobs removes every job from the device queue.
func (s *Service) PurgeJobs(ctx context.Context, device string) error {
	return s.deviceControl(ctx, device, provider.DevicePurge)
}

func (s *Service) deviceControl(ctx context.Context, device string, cmd provider.DeviceCommand) error {
	err := s.cache.With(ctx, device, func(ctx context.Context, p provider.Provider, h provider.Handle) error {
		return p.SetDeviceControl(ctx, h, cmd)
	})
	if err != nil {
		s.logger.Warn("Device control failed", zap.String("device", device), zap.String("command", string(cmd)), zap.Error(err))
		return err
	}
	s.logger.Info("Device control applied", zap.String("device", device), zap.String("command", string(cmd)))
	return nil
}

// JobControl issues cmd against one job.
func (s *Service) JobControl(ctx context.Context, device string, jobID int, cmd provider.JobCommand) error {
	err := s.cache.With(ctx, device, func(ctx context.Context, p provider.Provider, h provider.Handle) error {
		return p.SetJobControl(ctx, h, jobID, cmd)
	})
	if err != nil {
		s.logger.Warn("Job control failed",
			zap.String("device", device), zap.Int("job_id", jobID), zap.String("command", string(cmd)), zap.Error(err))
		return err
	}
	s.logger.Info("Job control applied", zap.String("device", device), zap.Int("job_id", jobID), zap.String("command", string(cmd)))
	return nil
}

// CancelJob removes a job from the queue.
func (s *Service) CancelJob(ctx context.Context, device string, jobID int) error {
	return s.JobControl(ctx, device, jobID, provider.JobCancel)
}

// PauseJob holds a job.
func (s *Service) PauseJob(ctx context.Context, device string, jobID int) error {
	return s.JobControl(ctx, device, jobID, provider.JobPause)
}

// ResumeJob releases a held job.
func (s *Service) ResumeJob(ctx context.Context, device string, jobID int) error {
	return s.JobControl(ctx, device, jobID, provider.JobResume)
}

// RestartJob prints a job again from the beginning.
func (s *Service) RestartJob(ctx context.Context, device string, jobID int) error {
	return s.JobControl(ctx, device, jobID, provider.JobRestart)
}

// CheckPaperFault interprets the device's paper bits.
func (s *Service) CheckPaperFault(ctx context.Context, device string) (status.PaperStatus, error) {
	ds, err := s.reader.DeviceStatus(ctx, device)
	if err != nil {
		return status.PaperStatus{}, err
	}
	return ds.Paper(), nil
}
