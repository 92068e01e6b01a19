package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/spoolwatch/pkg/detect"
	"github.com/3leaps/spoolwatch/pkg/eventlog"
)

// Entry is one stored event.
type Entry struct {
	ID     int64           `json:"id"`
	Kind   detect.Kind     `json:"kind"`
	JobID  int             `json:"job_id,omitempty"`
	Record eventlog.Record `json:"record"`
}

// Filter selects stored events. Zero fields do not filter.
type Filter struct {
	Device    string
	SessionID string
	Kinds     []detect.Kind
	JobID     int
	Since     time.Time
	Until     time.Time

	// Limit caps results. Zero means no limit.
	Limit int
}

// Append stores e under sessionID.
func (s *Store) Append(ctx context.Context, sessionID string, e detect.Event) (int64, error) {
	rec, err := eventlog.NewRecord(sessionID, e)
	if err != nil {
		return 0, err
	}
	return s.insert(ctx, e.Kind, e.JobID, rec)
}

// AppendRecord stores an already encoded envelope, such as one read back
// from a JSONL log. Session records are rejected.
func (s *Store) AppendRecord(ctx context.Context, rec eventlog.Record) (int64, error) {
	kind, ok := eventlog.KindFor(rec.Type)
	if !ok {
		return 0, fmt.Errorf("%w: record type %q", eventlog.ErrUnknownKind, rec.Type)
	}
	var jobID int
	if kind.JobEvent() {
		var jd eventlog.JobData
		if err := json.Unmarshal(rec.Data, &jd); err != nil {
			return 0, fmt.Errorf("decode job payload: %w", err)
		}
		jobID = jd.JobID
	}
	return s.insert(ctx, kind, jobID, rec)
}

func (s *Store) insert(ctx context.Context, kind detect.Kind, jobID int, rec eventlog.Record) (int64, error) {
	var job any
	if kind.JobEvent() {
		job = jobID
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO events (session_id, device, kind, record_type, job_id, occurred_at, occurred_ns, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.SessionID, rec.Device, string(kind), rec.Type, job,
		rec.TS.UTC().Format(time.RFC3339Nano), rec.TS.UnixNano(), string(rec.Data))
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	return res.LastInsertId()
}

// Query returns matching events newest first. Events sharing a timestamp
// are returned in reverse insertion order.
func (s *Store) Query(ctx context.Context, f Filter) ([]Entry, error) {
	query := `SELECT event_id, session_id, device, kind, record_type, job_id, occurred_ns, data
		FROM events
		WHERE 1=1`
	var args []any

	if f.Device != "" {
		query += ` AND device = ?`
		args = append(args, f.Device)
	}
	if f.SessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, f.SessionID)
	}
	if len(f.Kinds) > 0 {
		query += ` AND kind IN (` + strings.TrimSuffix(strings.Repeat("?,", len(f.Kinds)), ",") + `)`
		for _, k := range f.Kinds {
			args = append(args, string(k))
		}
	}
	if f.JobID != 0 {
		query += ` AND job_id = ?`
		args = append(args, f.JobID)
	}
	if !f.Since.IsZero() {
		query += ` AND occurred_ns >= ?`
		args = append(args, f.Since.UnixNano())
	}
	if !f.Until.IsZero() {
		query += ` AND occurred_ns < ?`
		args = append(args, f.Until.UnixNano())
	}

	query += ` ORDER BY occurred_ns DESC, event_id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var (
			e      Entry
			kind   string
			jobID  sql.NullInt64
			tsNano int64
			data   string
		)
		if err := rows.Scan(&e.ID, &e.Record.SessionID, &e.Record.Device, &kind, &e.Record.Type, &jobID, &tsNano, &data); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Kind = detect.Kind(kind)
		if jobID.Valid {
			e.JobID = int(jobID.Int64)
		}
		e.Record.TS = time.Unix(0, tsNano).UTC()
		e.Record.Data = json.RawMessage(data)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// Prune deletes events that occurred before cutoff and returns how many
// were removed.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE occurred_ns < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	if n > 0 {
		s.logger.Info("Pruned history events", zap.Int64("events", n), zap.Time("before", before))
	}
	return n, nil
}

// CountByKind returns event counts per kind for device, or all devices
// when device is empty.
func (s *Store) CountByKind(ctx context.Context, device string) (map[detect.Kind]int64, error) {
	query := `SELECT kind, COUNT(*) FROM events`
	var args []any
	if device != "" {
		query += ` WHERE device = ?`
		args = append(args, device)
	}
	query += ` GROUP BY kind`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[detect.Kind]int64)
	for rows.Next() {
		var (
			kind string
			n    int64
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[detect.Kind(kind)] = n
	}
	return out, rows.Err()
}
