package watchregistry

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/3leaps/spoolwatch/pkg/detect"
	"github.com/3leaps/spoolwatch/pkg/monitor"
)

// DefaultFlushInterval bounds how often event counters are persisted while
// a session runs.
const DefaultFlushInterval = 5 * time.Second

// Recorder keeps session records current from monitor lifecycle calls. One
// Recorder may serve many sessions.
type Recorder struct {
	store        *Store
	manifestPath string
	flushEvery   time.Duration
	now          func() time.Time

	mu       sync.Mutex
	sessions map[string]*tracked
}

type tracked struct {
	rec       SessionRecord
	lastFlush time.Time
}

// NewRecorder creates a recorder writing to store. manifestPath is copied
// into each record and may be empty.
func NewRecorder(store *Store, manifestPath string) *Recorder {
	return &Recorder{
		store:        store,
		manifestPath: manifestPath,
		flushEvery:   DefaultFlushInterval,
		now:          time.Now,
		sessions:     make(map[string]*tracked),
	}
}

// SessionStarted writes a running record.
func (r *Recorder) SessionStarted(_ context.Context, info monitor.SessionInfo) error {
	now := r.now().UTC()
	started := info.StartedAt.UTC()
	host, _ := os.Hostname()

	t := &tracked{
		rec: SessionRecord{
			SessionID:    info.ID,
			Device:       info.Device,
			State:        StateRunning,
			PID:          os.Getpid(),
			Host:         host,
			Interval:     info.Interval,
			JobIDs:       info.JobIDs,
			ManifestPath: r.manifestPath,
			CreatedAt:    now,
			StartedAt:    &started,
		},
		lastFlush: now,
	}

	r.mu.Lock()
	r.sessions[info.ID] = t
	rec := t.rec
	r.mu.Unlock()

	return r.store.Write(&rec)
}

// HandleEvent counts e and periodically persists the counters.
func (r *Recorder) HandleEvent(ctx context.Context, e detect.Event) error {
	id := monitor.SessionIDFromContext(ctx)

	r.mu.Lock()
	t, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	now := r.now().UTC()
	ts := e.Timestamp.UTC()
	if ts.IsZero() {
		ts = now
	}
	t.rec.LastEventAt = &ts
	t.rec.Counters.Events++
	flush := now.Sub(t.lastFlush) >= r.flushEvery
	var rec SessionRecord
	if flush {
		t.lastFlush = now
		rec = t.rec
	}
	r.mu.Unlock()

	if !flush {
		return nil
	}
	return r.store.Write(&rec)
}

// SessionStopped writes the final record.
func (r *Recorder) SessionStopped(_ context.Context, info monitor.SessionInfo) error {
	return r.finish(info, StateStopped, "")
}

// Fail marks a session failed with err.
func (r *Recorder) Fail(info monitor.SessionInfo, err error) error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return r.finish(info, StateFailed, msg)
}

func (r *Recorder) finish(info monitor.SessionInfo, state State, msg string) error {
	stopped := r.now().UTC()

	r.mu.Lock()
	t, ok := r.sessions[info.ID]
	delete(r.sessions, info.ID)
	r.mu.Unlock()

	var rec SessionRecord
	if ok {
		rec = t.rec
	} else {
		started := info.StartedAt.UTC()
		rec = SessionRecord{
			SessionID: info.ID,
			Device:    info.Device,
			Interval:  info.Interval,
			JobIDs:    info.JobIDs,
			CreatedAt: stopped,
			StartedAt: &started,
		}
	}
	rec.State = state
	rec.StoppedAt = &stopped
	rec.Error = msg
	rec.Counters = Counters{
		Ticks:      info.Stats.Ticks,
		Events:     info.Stats.Events,
		ReadErrors: info.Stats.ReadErrors,
		SinkErrors: info.Stats.SinkErrors,
	}
	return r.store.Write(&rec)
}

var (
	_ monitor.Sink          = (*Recorder)(nil)
	_ monitor.LifecycleSink = (*Recorder)(nil)
)
