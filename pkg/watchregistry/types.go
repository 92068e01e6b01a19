package watchregistry

import "time"

// State is the lifecycle state of a recorded watch session.
//
// Values are persisted in session.json.
type State string

const (
	StateRunning State = "running"
	StateStopped State = "stopped"
	StateFailed  State = "failed"

	// StateUnknown marks a record that claims running but whose process is
	// gone.
	StateUnknown State = "unknown"
)

// Counters mirrors monitor.Stats in the on-disk record.
type Counters struct {
	Ticks      uint64 `json:"ticks"`
	Events     uint64 `json:"events"`
	ReadErrors uint64 `json:"read_errors"`
	SinkErrors uint64 `json:"sink_errors"`
}

// SessionRecord is the persistent record written to session.json. New
// fields are additive.
type SessionRecord struct {
	SessionID    string        `json:"session_id"`
	Device       string        `json:"device"`
	State        State         `json:"state"`
	PID          int           `json:"pid,omitempty"`
	Host         string        `json:"host,omitempty"`
	Interval     time.Duration `json:"interval"`
	JobIDs       []int         `json:"job_ids,omitempty"`
	ManifestPath string        `json:"manifest_path,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	StoppedAt   *time.Time `json:"stopped_at,omitempty"`
	LastEventAt *time.Time `json:"last_event_at,omitempty"`
	Counters    Counters   `json:"counters"`
	Error       string     `json:"error,omitempty"`
}
