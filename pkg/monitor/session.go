// Package monitor runs polling sessions that turn spooler snapshots into a
// stream of lifecycle events.
//
// A Session moves between Idle and Running. While running, a single
// goroutine reads the device, diffs against the retained snapshot and
// delivers events to the sink before sleeping until the next tick. Ticks
// never overlap.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/3leaps/spoolwatch/pkg/detect"
	"github.com/3leaps/spoolwatch/pkg/spool"
)

// Stats are counters for the current or most recent run.
type Stats struct {
	Ticks      uint64    `json:"ticks"`
	Events     uint64    `json:"events"`
	ReadErrors uint64    `json:"read_errors"`
	SinkErrors uint64    `json:"sink_errors"`
	LastTick   time.Time `json:"last_tick,omitempty"`
}

// SessionInfo describes a session run.
type SessionInfo struct {
	ID        string        `json:"session_id"`
	Device    string        `json:"device"`
	Running   bool          `json:"running"`
	Interval  time.Duration `json:"interval"`
	JobIDs    []int         `json:"job_ids,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Stats     Stats         `json:"stats"`
}

type counters struct {
	ticks      atomic.Uint64
	events     atomic.Uint64
	readErrors atomic.Uint64
	sinkErrors atomic.Uint64
	lastTick   atomic.Int64
}

func (c *counters) snapshot() Stats {
	st := Stats{
		Ticks:      c.ticks.Load(),
		Events:     c.events.Load(),
		ReadErrors: c.readErrors.Load(),
		SinkErrors: c.sinkErrors.Load(),
	}
	if ns := c.lastTick.Load(); ns != 0 {
		st.LastTick = time.Unix(0, ns).UTC()
	}
	return st
}

// run is one Start..Stop lifetime. Retained snapshots live on the loop
// goroutine's stack, so a new run never sees the previous run's state.
type run struct {
	id        string
	opts      Options
	sink      Sink
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}
	stats     *counters

	// abandoned is set, under Session.mu, when Stop gave up waiting. A loop
	// that has not yet begun exiting then skips its lifecycle callbacks.
	abandoned bool
}

// Session monitors one device at a time.
type Session struct {
	reader   *spool.Reader
	logger   *zap.Logger
	observer Observer
	now      func() time.Time

	mu       sync.Mutex
	current  *run
	last     *run
	draining *run
}

// NewSession creates an idle session. A nil logger or observer disables
// that output.
func NewSession(reader *spool.Reader, logger *zap.Logger, observer Observer) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = NopObserver{}
	}
	return &Session{
		reader:   reader,
		logger:   logger,
		observer: observer,
		now:      time.Now,
	}
}

// Start begins monitoring and returns immediately. It returns
// ErrAlreadyRunning, without side effects, while a run is active or while
// a run abandoned by a timed-out Stop has not yet exited.
//
// The loop also ends when ctx is cancelled.
func (s *Session) Start(ctx context.Context, opts Options, sink Sink) error {
	if opts.Device == "" {
		return ErrNoDevice
	}
	if sink == nil {
		return ErrNilSink
	}
	opts = opts.withDefaults()

	s.mu.Lock()
	if s.current != nil {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	if d := s.draining; d != nil {
		select {
		case <-d.done:
			s.draining = nil
		default:
			s.mu.Unlock()
			return fmt.Errorf("%w: previous run %s is still draining", ErrAlreadyRunning, d.id)
		}
	}
	r := &run{
		id:        uuid.NewString(),
		opts:      opts,
		sink:      sink,
		startedAt: s.now().UTC(),
		done:      make(chan struct{}),
		stats:     &counters{},
	}
	loopCtx, cancel := context.WithCancel(WithSessionID(ctx, r.id))
	r.cancel = cancel
	s.current = r
	s.last = r
	s.mu.Unlock()

	s.logger.Info("Monitor session started",
		zap.String("session_id", r.id),
		zap.String("device", opts.Device),
		zap.Duration("interval", opts.Interval),
		zap.Ints("job_ids", opts.Scope.IDs()),
	)
	s.observer.SessionStarted(opts.Device)

	go s.loop(loopCtx, r)
	return nil
}

// Stop ends the current run and waits up to the grace period for the loop
// to exit. Stopping an idle session is a no-op. Once Stop returns the sink
// receives no further lifecycle callbacks; an event delivery already in
// progress may still complete.
//
// When the wait ends early the run is abandoned: the session reports Idle,
// but Start is refused until the old loop has exited.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	r := s.current
	s.current = nil
	s.mu.Unlock()

	if r == nil {
		return nil
	}
	r.cancel()

	timer := time.NewTimer(r.opts.StopGrace)
	defer timer.Stop()

	select {
	case <-r.done:
		return nil
	case <-timer.C:
		s.logger.Warn("Monitor loop did not exit within grace period",
			zap.String("session_id", r.id),
			zap.Duration("grace", r.opts.StopGrace),
		)
		s.abandon(r)
		return ErrStopTimeout
	case <-ctx.Done():
		s.abandon(r)
		return ctx.Err()
	}
}

func (s *Session) abandon(r *run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-r.done:
		return
	default:
	}
	r.abandoned = true
	s.draining = r
}

// Close stops the session if it is running. It logs failures and never
// panics, so it is safe in deferred cleanup.
func (s *Session) Close() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Monitor session close panicked", zap.Any("panic", r))
		}
	}()
	if err := s.Stop(context.Background()); err != nil {
		s.logger.Warn("Monitor session close failed", zap.Error(err))
	}
}

// Running reports whether a run is active.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Stats returns counters for the current or most recent run.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	r := s.last
	s.mu.Unlock()
	if r == nil {
		return Stats{}
	}
	return r.stats.snapshot()
}

// Info describes the current or most recent run.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	r := s.last
	running := s.current != nil && s.current == r
	s.mu.Unlock()
	if r == nil {
		return SessionInfo{}
	}
	return r.info(running)
}

func (r *run) info(running bool) SessionInfo {
	return SessionInfo{
		ID:        r.id,
		Device:    r.opts.Device,
		Running:   running,
		Interval:  r.opts.Interval,
		JobIDs:    r.opts.Scope.IDs(),
		StartedAt: r.startedAt,
		Stats:     r.stats.snapshot(),
	}
}

func (s *Session) loop(ctx context.Context, r *run) {
	defer close(r.done)
	defer s.finish(ctx, r)

	if ls, ok := r.sink.(LifecycleSink); ok {
		if err := ls.SessionStarted(ctx, r.info(true)); err != nil {
			s.logger.Warn("Sink rejected session start", zap.String("session_id", r.id), zap.Error(err))
		}
	}

	var (
		prev       spool.Snapshot
		prevDevice *spool.DeviceStatus
	)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		prev, prevDevice = s.tick(ctx, r, prev, prevDevice)

		timer.Reset(r.opts.Interval)
	}
}

// finish runs on the loop goroutine after the loop exits.
func (s *Session) finish(ctx context.Context, r *run) {
	s.mu.Lock()
	if s.current == r {
		s.current = nil
	}
	abandoned := r.abandoned
	s.mu.Unlock()

	if ls, ok := r.sink.(LifecycleSink); ok && !abandoned {
		stopCtx := context.WithoutCancel(ctx)
		if err := ls.SessionStopped(stopCtx, r.info(false)); err != nil {
			s.logger.Warn("Sink rejected session stop", zap.String("session_id", r.id), zap.Error(err))
		}
	}

	st := r.stats.snapshot()
	s.observer.SessionStopped(r.opts.Device)
	s.logger.Info("Monitor session stopped",
		zap.String("session_id", r.id),
		zap.Bool("abandoned", abandoned),
		zap.String("device", r.opts.Device),
		zap.Uint64("ticks", st.Ticks),
		zap.Uint64("events", st.Events),
		zap.Uint64("read_errors", st.ReadErrors),
		zap.Uint64("sink_errors", st.SinkErrors),
	)
}

func (s *Session) tick(ctx context.Context, r *run, prev spool.Snapshot, prevDevice *spool.DeviceStatus) (spool.Snapshot, *spool.DeviceStatus) {
	started := s.now()
	device := r.opts.Device

	curr, err := s.reader.Snapshot(ctx, device)
	if err != nil {
		if ctx.Err() != nil {
			return prev, prevDevice
		}
		r.stats.readErrors.Add(1)
		s.observer.ReadFailed(device)
		s.logger.Warn("Snapshot read failed",
			zap.String("session_id", r.id),
			zap.String("device", device),
			zap.String("policy", string(r.opts.ReadErrorPolicy)),
			zap.Error(err),
		)
		if r.opts.ReadErrorPolicy == TreatAsEmpty {
			curr = spool.Snapshot{}
		} else {
			curr = prev
		}
	}
	if !r.opts.Scope.All() {
		curr = curr.Filter(r.opts.Scope.ids)
	}

	now := s.now()
	events := detect.Diff(prev, curr, now)

	nextDevice := prevDevice
	if r.opts.WatchDevice {
		ds, derr := s.reader.DeviceStatus(ctx, device)
		if derr != nil && ctx.Err() != nil {
			return prev, prevDevice
		}
		if derr != nil {
			s.logger.Debug("Device status read failed", zap.String("device", device), zap.Error(derr))
		}
		events = append(events, detect.DiffDevice(prevDevice, &ds, now)...)
		nextDevice = &ds
	}

	for _, e := range events {
		if ctx.Err() != nil {
			return curr, nextDevice
		}
		s.deliver(ctx, r, e)
	}

	r.stats.ticks.Add(1)
	r.stats.lastTick.Store(now.UnixNano())
	s.observer.TickCompleted(device, s.now().Sub(started))
	return curr, nextDevice
}

func (s *Session) deliver(ctx context.Context, r *run, e detect.Event) {
	if err := safeHandle(ctx, r.sink, e); err != nil {
		r.stats.sinkErrors.Add(1)
		s.observer.SinkFailed(r.opts.Device)
		s.logger.Error("Sink failed to handle event",
			zap.String("session_id", r.id),
			zap.String("device", r.opts.Device),
			zap.String("kind", string(e.Kind)),
			zap.Int("job_id", e.JobID),
			zap.Error(err),
		)
		return
	}
	r.stats.events.Add(1)
	s.observer.EventDelivered(r.opts.Device, e.Kind)
}

// String implements fmt.Stringer for log output.
func (i SessionInfo) String() string {
	state := "idle"
	if i.Running {
		state = "running"
	}
	return fmt.Sprintf("%s %s (%s, every %s)", i.ID, i.Device, state, i.Interval)
}
