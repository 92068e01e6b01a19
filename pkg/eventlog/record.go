// Package eventlog encodes lifecycle events as JSONL records.
//
// Each line is a self-contained envelope with a versioned type, the event
// timestamp, the monitor session id and a type-specific payload.
package eventlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/3leaps/spoolwatch/pkg/detect"
	"github.com/3leaps/spoolwatch/pkg/monitor"
	"github.com/3leaps/spoolwatch/pkg/spool"
	"github.com/3leaps/spoolwatch/pkg/status"
)

// Record types follow the pattern spoolwatch.<type>.v<version>.
const (
	TypeJobAdded     = "spoolwatch.job.added.v1"
	TypeJobRemoved   = "spoolwatch.job.removed.v1"
	TypeJobUpdated   = "spoolwatch.job.updated.v1"
	TypeDeviceStatus = "spoolwatch.device.status.v1"
	TypeDevicePaper  = "spoolwatch.device.paper.v1"
	TypeSession      = "spoolwatch.session.v1"
)

// Record is the envelope for every line of output.
type Record struct {
	// Type identifies the payload (e.g., "spoolwatch.job.added.v1").
	Type string `json:"type"`

	// TS is the event timestamp. Events from one diff share it.
	TS time.Time `json:"ts"`

	// SessionID correlates records from one monitor run.
	SessionID string `json:"session_id"`

	Device string `json:"device"`

	// Data holds the type-specific payload.
	Data json.RawMessage `json:"data"`
}

// JobData is the payload for job records.
type JobData struct {
	JobID int `json:"job_id"`

	// Job is the added job or the last observation of a removed job.
	Job *spool.JobRecord `json:"job,omitempty"`

	Old *spool.JobRecord `json:"old,omitempty"`
	New *spool.JobRecord `json:"new,omitempty"`

	PagesDelta    int  `json:"pages_delta,omitempty"`
	StatusChanged bool `json:"status_changed,omitempty"`
}

// DeviceStatusData is the payload for device status records.
type DeviceStatusData struct {
	OldCode   uint32          `json:"old_code"`
	NewCode   uint32          `json:"new_code"`
	OldStatus status.LabelSet `json:"old_status"`
	NewStatus status.LabelSet `json:"new_status"`
	Online    bool            `json:"is_online"`
	Available bool            `json:"available"`
	Error     string          `json:"error,omitempty"`
}

// PaperData is the payload for paper records.
type PaperData struct {
	status.PaperStatus
	StatusCode uint32 `json:"status_code"`
	Fault      bool   `json:"fault"`
}

// Session phases.
const (
	PhaseStarted = "started"
	PhaseStopped = "stopped"
)

// SessionData marks the start or end of a monitor run.
type SessionData struct {
	Phase string              `json:"phase"`
	Info  monitor.SessionInfo `json:"info"`
}

// ErrUnknownKind is returned for events with no record type.
var ErrUnknownKind = errors.New("unknown event kind")

// TypeFor maps an event kind to its record type.
func TypeFor(k detect.Kind) (string, error) {
	switch k {
	case detect.KindJobAdded:
		return TypeJobAdded, nil
	case detect.KindJobRemoved:
		return TypeJobRemoved, nil
	case detect.KindJobUpdated:
		return TypeJobUpdated, nil
	case detect.KindDeviceStatusChanged:
		return TypeDeviceStatus, nil
	case detect.KindPaperFault:
		return TypeDevicePaper, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, k)
	}
}

// KindFor maps a record type back to an event kind. Session records have
// no kind.
func KindFor(recordType string) (detect.Kind, bool) {
	switch recordType {
	case TypeJobAdded:
		return detect.KindJobAdded, true
	case TypeJobRemoved:
		return detect.KindJobRemoved, true
	case TypeJobUpdated:
		return detect.KindJobUpdated, true
	case TypeDeviceStatus:
		return detect.KindDeviceStatusChanged, true
	case TypeDevicePaper:
		return detect.KindPaperFault, true
	default:
		return "", false
	}
}

// Payload builds the data payload for e.
func Payload(e detect.Event) (any, error) {
	switch e.Kind {
	case detect.KindJobAdded, detect.KindJobRemoved:
		return JobData{JobID: e.JobID, Job: e.Record}, nil
	case detect.KindJobUpdated:
		return JobData{
			JobID:         e.JobID,
			Old:           e.Old,
			New:           e.New,
			PagesDelta:    e.PagesDelta(),
			StatusChanged: e.StatusChanged(),
		}, nil
	case detect.KindDeviceStatusChanged:
		d := DeviceStatusData{}
		if e.OldStatus != nil {
			d.OldCode = e.OldStatus.StatusCode
			d.OldStatus = e.OldStatus.Status
		}
		if e.NewStatus != nil {
			d.NewCode = e.NewStatus.StatusCode
			d.NewStatus = e.NewStatus.Status
			d.Online = e.NewStatus.Online
			d.Available = e.NewStatus.Available
			d.Error = e.NewStatus.Error
		}
		return d, nil
	case detect.KindPaperFault:
		d := PaperData{}
		if e.Paper != nil {
			d.PaperStatus = *e.Paper
			d.Fault = e.Paper.Fault()
		}
		if e.NewStatus != nil {
			d.StatusCode = e.NewStatus.StatusCode
		}
		return d, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, e.Kind)
	}
}

// NewRecord encodes e as an envelope.
func NewRecord(sessionID string, e detect.Event) (Record, error) {
	typ, err := TypeFor(e.Kind)
	if err != nil {
		return Record{}, err
	}
	payload, err := Payload(e)
	if err != nil {
		return Record{}, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Record{}, &WriteError{Op: "marshal_data", Err: err}
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return Record{
		Type:      typ,
		TS:        ts.UTC(),
		SessionID: sessionID,
		Device:    e.Device,
		Data:      data,
	}, nil
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error
}

func (e *WriteError) Error() string {
	return "eventlog: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
