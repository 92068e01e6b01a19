// Package detect turns successive spooler snapshots into lifecycle events.
package detect

import (
	"time"

	"github.com/3leaps/spoolwatch/pkg/spool"
	"github.com/3leaps/spoolwatch/pkg/status"
)

// Kind identifies a lifecycle event variant.
type Kind string

const (
	KindJobAdded            Kind = "job_added"
	KindJobRemoved          Kind = "job_removed"
	KindJobUpdated          Kind = "job_updated"
	KindDeviceStatusChanged Kind = "device_status_changed"
	KindPaperFault          Kind = "paper_fault"
)

// Kinds lists every event kind in a stable order.
var Kinds = []Kind{
	KindJobAdded,
	KindJobRemoved,
	KindJobUpdated,
	KindDeviceStatusChanged,
	KindPaperFault,
}

// ParseKind returns the kind named by s.
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// JobEvent reports whether k is one of the job variants.
func (k Kind) JobEvent() bool {
	return k == KindJobAdded || k == KindJobRemoved || k == KindJobUpdated
}

// Event is one discrete observation produced by a diff.
//
// Which payload fields are set depends on Kind:
//   - job_added: Record (the new job)
//   - job_removed: Record (the last observation of the job)
//   - job_updated: Old and New
//   - device_status_changed: OldStatus and NewStatus
//   - paper_fault: Paper, plus OldStatus/NewStatus for context
type Event struct {
	Kind      Kind                `json:"kind"`
	Device    string              `json:"device"`
	JobID     int                 `json:"job_id,omitempty"`
	Record    *spool.JobRecord    `json:"record,omitempty"`
	Old       *spool.JobRecord    `json:"old,omitempty"`
	New       *spool.JobRecord    `json:"new,omitempty"`
	OldStatus *spool.DeviceStatus `json:"old_status,omitempty"`
	NewStatus *spool.DeviceStatus `json:"new_status,omitempty"`
	Paper     *status.PaperStatus `json:"paper,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// PagesDelta returns the page progress carried by an update event.
func (e Event) PagesDelta() int {
	if e.Kind != KindJobUpdated || e.Old == nil || e.New == nil {
		return 0
	}
	return e.New.PagesPrinted - e.Old.PagesPrinted
}

// StatusChanged reports whether an update event changed the job status code.
func (e Event) StatusChanged() bool {
	return e.Kind == KindJobUpdated && e.Old != nil && e.New != nil && e.Old.StatusCode != e.New.StatusCode
}
