package history

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/3leaps/spoolwatch/pkg/detect"
	"github.com/3leaps/spoolwatch/pkg/monitor"
)

// Sink stores delivered events and session markers.
type Sink struct {
	store     *Store
	sessionID string
}

// Sink returns a monitor sink writing into s. sessionID is used when the
// delivery context carries none.
func (s *Store) Sink(sessionID string) *Sink {
	return &Sink{store: s, sessionID: sessionID}
}

// HandleEvent appends e.
func (k *Sink) HandleEvent(ctx context.Context, e detect.Event) error {
	id := monitor.SessionIDFromContext(ctx)
	if id == "" {
		id = k.sessionID
	}
	_, err := k.store.Append(ctx, id, e)
	return err
}

// SessionStarted records the start of a run.
func (k *Sink) SessionStarted(ctx context.Context, info monitor.SessionInfo) error {
	return k.store.UpsertSession(ctx, info, time.Time{})
}

// SessionStopped records the end of a run and its final counters.
func (k *Sink) SessionStopped(ctx context.Context, info monitor.SessionInfo) error {
	return k.store.UpsertSession(ctx, info, time.Now())
}

var (
	_ monitor.Sink          = (*Sink)(nil)
	_ monitor.LifecycleSink = (*Sink)(nil)
)

// SessionRow is one stored monitor run.
type SessionRow struct {
	SessionID  string        `json:"session_id"`
	Device     string        `json:"device"`
	StartedAt  time.Time     `json:"started_at"`
	StoppedAt  *time.Time    `json:"stopped_at,omitempty"`
	Interval   time.Duration `json:"interval"`
	JobIDs     []int         `json:"job_ids,omitempty"`
	Ticks      uint64        `json:"ticks"`
	Events     uint64        `json:"events"`
	ReadErrors uint64        `json:"read_errors"`
	SinkErrors uint64        `json:"sink_errors"`
}

// UpsertSession writes info. A zero stoppedAt leaves the run open.
func (s *Store) UpsertSession(ctx context.Context, info monitor.SessionInfo, stoppedAt time.Time) error {
	if info.ID == "" {
		return fmt.Errorf("session id is required")
	}
	var stopped any
	if !stoppedAt.IsZero() {
		stopped = stoppedAt.UTC().Format(time.RFC3339Nano)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, device, started_at, stopped_at, interval_ms, job_ids, ticks, events, read_errors, sink_errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			stopped_at = excluded.stopped_at,
			ticks = excluded.ticks,
			events = excluded.events,
			read_errors = excluded.read_errors,
			sink_errors = excluded.sink_errors
	`, info.ID, info.Device, info.StartedAt.UTC().Format(time.RFC3339Nano), stopped,
		info.Interval.Milliseconds(), joinIDs(info.JobIDs),
		int64(info.Stats.Ticks), int64(info.Stats.Events), int64(info.Stats.ReadErrors), int64(info.Stats.SinkErrors))
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// Sessions lists stored runs newest first, optionally for one device.
func (s *Store) Sessions(ctx context.Context, device string, limit int) ([]SessionRow, error) {
	query := `SELECT session_id, device, started_at, stopped_at, interval_ms, job_ids, ticks, events, read_errors, sink_errors
		FROM sessions`
	var args []any
	if device != "" {
		query += ` WHERE device = ?`
		args = append(args, device)
	}
	query += ` ORDER BY started_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []SessionRow
	for rows.Next() {
		var (
			r          SessionRow
			started    string
			stopped    sql.NullString
			intervalMS int64
			jobIDs     sql.NullString
			ticks      int64
			events     int64
			readErrs   int64
			sinkErrs   int64
		)
		if err := rows.Scan(&r.SessionID, &r.Device, &started, &stopped, &intervalMS, &jobIDs, &ticks, &events, &readErrs, &sinkErrs); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, started); err == nil {
			r.StartedAt = t
		}
		if stopped.Valid {
			if t, err := time.Parse(time.RFC3339Nano, stopped.String); err == nil {
				r.StoppedAt = &t
			}
		}
		r.Interval = time.Duration(intervalMS) * time.Millisecond
		r.JobIDs = splitIDs(jobIDs.String)
		r.Ticks, r.Events = uint64(ticks), uint64(events)
		r.ReadErrors, r.SinkErrors = uint64(readErrs), uint64(sinkErrs)
		out = append(out, r)
	}
	return out, rows.Err()
}

func joinIDs(ids []int) any {
	if len(ids) == 0 {
		return nil
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

func splitIDs(s string) []int {
	if s == "" {
		return nil
	}
	var out []int
	for _, p := range strings.Split(s, ",") {
		if id, err := strconv.Atoi(p); err == nil {
			out = append(out, id)
		}
	}
	return out
}
