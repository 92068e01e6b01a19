package spool

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/spoolwatch/pkg/provider"
	"github.com/3leaps/spoolwatch/pkg/provider/handles"
)

// Reader reads typed job and device state through a handle cache.
//
// Every read runs as one logical operation: the device handle is acquired,
// a single provider call is made, and the handle is released.
type Reader struct {
	cache  *handles.Cache
	logger *zap.Logger
	now    func() time.Time
}

// NewReader creates a reader. A nil logger disables logging.
func NewReader(cache *handles.Cache, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{cache: cache, logger: logger, now: time.Now}
}

// Snapshot reads every job on device. Failures are returned so callers can
// tell an unreadable device from an empty queue.
func (r *Reader) Snapshot(ctx context.Context, device string) (Snapshot, error) {
	var records []JobRecord
	err := r.cache.With(ctx, device, func(ctx context.Context, p provider.Provider, h provider.Handle) error {
		raw, err := p.EnumerateJobs(ctx, h)
		if err != nil {
			return err
		}
		records = make([]JobRecord, 0, len(raw))
		for _, j := range raw {
			records = append(records, NewJobRecord(device, j))
		}
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return NewSnapshot(records), nil
}

// ListJobs returns every job on device. Failures are logged and yield an
// empty list.
func (r *Reader) ListJobs(ctx context.Context, device string) []JobRecord {
	snap, err := r.Snapshot(ctx, device)
	if err != nil {
		r.logger.Warn("Failed to list jobs", zap.String("device", device), zap.Error(err))
		return []JobRecord{}
	}
	return snap.Records()
}

// GetJob returns one job. Absent jobs and failures both yield false;
// failures other than a missing job are logged.
func (r *Reader) GetJob(ctx context.Context, device string, jobID int) (JobRecord, bool) {
	var rec JobRecord
	err := r.cache.With(ctx, device, func(ctx context.Context, p provider.Provider, h provider.Handle) error {
		raw, err := p.GetJob(ctx, h, jobID)
		if err != nil {
			return err
		}
		if raw == nil {
			return &provider.ProviderError{Op: "GetJob", Provider: p.Kind(), Device: device, JobID: jobID, Err: provider.ErrJobNotFound}
		}
		rec = NewJobRecord(device, *raw)
		return nil
	})
	if err != nil {
		if !provider.IsJobNotFound(err) {
			r.logger.Warn("Failed to read job", zap.String("device", device), zap.Int("job_id", jobID), zap.Error(err))
		}
		return JobRecord{}, false
	}
	return rec, true
}

// DeviceStatus reads device identity and status.
func (r *Reader) DeviceStatus(ctx context.Context, device string) (DeviceStatus, error) {
	var ds DeviceStatus
	err := r.cache.With(ctx, device, func(ctx context.Context, p provider.Provider, h provider.Handle) error {
		raw, err := p.GetDeviceInfo(ctx, h)
		if err != nil {
			return err
		}
		ds = NewDeviceStatus(device, raw, r.now())
		return nil
	})
	if err != nil {
		return UnavailableStatus(device, err, r.now()), err
	}
	return ds, nil
}
