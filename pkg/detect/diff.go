package detect

import (
	"time"

	"github.com/3leaps/spoolwatch/pkg/spool"
)

// Diff compares two snapshots of the same device and returns the events
// that explain the transition from prev to curr.
//
// Additions come first in curr order, then removals in prev order, then
// updates in curr order. Every event carries now as its timestamp. An update
// is reported only when the status code or the printed page count changed;
// other field changes, priority included, produce no event.
//
// Jobs are compared by id alone, so an id that leaves and is reused between
// two snapshots looks like an unchanged or updated job.
func Diff(prev, curr spool.Snapshot, now time.Time) []Event {
	now = now.UTC()
	var events []Event

	for _, id := range curr.IDs() {
		if prev.Has(id) {
			continue
		}
		rec, _ := curr.Get(id)
		events = append(events, Event{
			Kind:      KindJobAdded,
			Device:    rec.Device,
			JobID:     id,
			Record:    &rec,
			Timestamp: now,
		})
	}

	for _, id := range prev.IDs() {
		if curr.Has(id) {
			continue
		}
		rec, _ := prev.Get(id)
		events = append(events, Event{
			Kind:      KindJobRemoved,
			Device:    rec.Device,
			JobID:     id,
			Record:    &rec,
			Timestamp: now,
		})
	}

	for _, id := range curr.IDs() {
		old, ok := prev.Get(id)
		if !ok {
			continue
		}
		cur, _ := curr.Get(id)
		if old.StatusCode == cur.StatusCode && old.PagesPrinted == cur.PagesPrinted {
			continue
		}
		events = append(events, Event{
			Kind:      KindJobUpdated,
			Device:    cur.Device,
			JobID:     id,
			Old:       &old,
			New:       &cur,
			Timestamp: now,
		})
	}

	return events
}

// DiffDevice compares two device observations. A nil prev is the first
// observation and yields nothing. A device dropping off or coming back
// reports a status change; paper is only compared between two readable
// observations, since an unreadable device has no paper state.
func DiffDevice(prev, curr *spool.DeviceStatus, now time.Time) []Event {
	if prev == nil || curr == nil {
		return nil
	}
	now = now.UTC()
	var events []Event

	if prev.StatusCode != curr.StatusCode || prev.Online != curr.Online || prev.Available != curr.Available {
		o, n := *prev, *curr
		events = append(events, Event{
			Kind:      KindDeviceStatusChanged,
			Device:    curr.Device,
			OldStatus: &o,
			NewStatus: &n,
			Timestamp: now,
		})
	}

	if !prev.Available || !curr.Available {
		return events
	}
	oldPaper, newPaper := prev.Paper(), curr.Paper()
	if oldPaper != newPaper {
		o, n := *prev, *curr
		events = append(events, Event{
			Kind:      KindPaperFault,
			Device:    curr.Device,
			OldStatus: &o,
			NewStatus: &n,
			Paper:     &newPaper,
			Timestamp: now,
		})
	}

	return events
}

// Apply replays job events onto an id sequence. Added ids are appended,
// removed ids dropped; update and device events leave the set unchanged.
func Apply(ids []int, events []Event) []int {
	out := make([]int, 0, len(ids))
	removed := make(map[int]struct{})
	for _, e := range events {
		if e.Kind == KindJobRemoved {
			removed[e.JobID] = struct{}{}
		}
	}
	seen := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		if _, gone := removed[id]; gone {
			continue
		}
		out = append(out, id)
		seen[id] = struct{}{}
	}
	for _, e := range events {
		if e.Kind != KindJobAdded {
			continue
		}
		if _, dup := seen[e.JobID]; dup {
			continue
		}
		out = append(out, e.JobID)
		seen[e.JobID] = struct{}{}
	}
	return out
}
