package detect

import (
	"errors"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/spoolwatch/pkg/provider"
	"github.com/3leaps/spoolwatch/pkg/spool"
	"github.com/3leaps/spoolwatch/pkg/status"
)

var tick = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func job(id int, code uint32, pages int) spool.JobRecord {
	return spool.JobRecord{
		Device:       "Office",
		JobID:        id,
		DocumentName: "doc",
		StatusCode:   code,
		Status:       status.DecodeJob(code),
		PagesPrinted: pages,
	}
}

func snap(records ...spool.JobRecord) spool.Snapshot {
	return spool.NewSnapshot(records)
}

func kinds(events []Event) []Kind {
	out := make([]Kind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

func ids(events []Event) []int {
	out := make([]int, len(events))
	for i, e := range events {
		out[i] = e.JobID
	}
	return out
}

func TestDiff_Identical(t *testing.T) {
	s := snap(job(1, 0, 0), job(2, status.JobPrinting, 3))
	assert.Empty(t, Diff(s, s, tick))
	assert.Empty(t, Diff(spool.Snapshot{}, spool.Snapshot{}, tick))
}

func TestDiff_FromEmpty(t *testing.T) {
	curr := snap(job(7, 0, 0), job(3, 0, 0), job(5, 0, 0))
	events := Diff(spool.Snapshot{}, curr, tick)

	require.Len(t, events, 3)
	assert.Equal(t, []int{7, 3, 5}, ids(events))
	for _, e := range events {
		assert.Equal(t, KindJobAdded, e.Kind)
		assert.Equal(t, tick, e.Timestamp)
		require.NotNil(t, e.Record)
		assert.Equal(t, e.JobID, e.Record.JobID)
	}
}

func TestDiff_ToEmpty(t *testing.T) {
	prev := snap(job(4, 0, 0), job(2, 0, 0))
	events := Diff(prev, spool.Snapshot{}, tick)

	assert.Equal(t, []Kind{KindJobRemoved, KindJobRemoved}, kinds(events))
	assert.Equal(t, []int{4, 2}, ids(events))
}

func TestDiff_Ordering(t *testing.T) {
	prev := snap(job(1, 0, 0), job(2, 0, 0), job(3, 0, 0))
	curr := snap(job(5, 0, 0), job(3, status.JobPrinting, 0), job(4, 0, 0), job(1, 0, 1))

	events := Diff(prev, curr, tick)
	assert.Equal(t, []Kind{KindJobAdded, KindJobAdded, KindJobRemoved, KindJobUpdated, KindJobUpdated}, kinds(events))
	assert.Equal(t, []int{5, 4, 2, 3, 1}, ids(events))

	for _, e := range events {
		assert.Equal(t, tick, e.Timestamp, "one timestamp per diff")
	}
}

func TestDiff_UpdateFields(t *testing.T) {
	old := job(9, 0, 1)
	tests := []struct {
		name    string
		mutate  func(*spool.JobRecord)
		updated bool
	}{
		{"status change", func(r *spool.JobRecord) { r.StatusCode = status.JobPrinting }, true},
		{"page progress", func(r *spool.JobRecord) { r.PagesPrinted = 2 }, true},
		{"priority only", func(r *spool.JobRecord) { r.Priority = 99 }, false},
		{"document only", func(r *spool.JobRecord) { r.DocumentName = "renamed" }, false},
		{"total pages only", func(r *spool.JobRecord) { r.TotalPages = 10 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cur := old
			tt.mutate(&cur)
			events := Diff(snap(old), snap(cur), tick)
			if !tt.updated {
				assert.Empty(t, events)
				return
			}
			require.Len(t, events, 1)
			e := events[0]
			assert.Equal(t, KindJobUpdated, e.Kind)
			require.NotNil(t, e.Old)
			require.NotNil(t, e.New)
			assert.Equal(t, old, *e.Old)
			assert.Equal(t, cur, *e.New)
		})
	}
}

func TestDiff_DoesNotMutateInputs(t *testing.T) {
	prev := snap(job(1, 0, 0), job(2, 0, 0))
	curr := snap(job(2, status.JobPrinting, 1), job(3, 0, 0))

	events := Diff(prev, curr, tick)
	for _, e := range events {
		if e.New != nil {
			e.New.PagesPrinted = 100
		}
		if e.Record != nil {
			e.Record.DocumentName = "changed"
		}
	}

	assert.Equal(t, []int{1, 2}, prev.IDs())
	assert.Equal(t, []int{2, 3}, curr.IDs())
	r, _ := curr.Get(2)
	assert.Equal(t, 1, r.PagesPrinted)
	r, _ = curr.Get(3)
	assert.Equal(t, "doc", r.DocumentName)
}

func TestDiff_ReusedIDLooksUnchanged(t *testing.T) {
	prev := snap(job(1, 0, 0))
	replacement := job(1, 0, 0)
	replacement.DocumentName = "another.pdf"
	assert.Empty(t, Diff(prev, snap(replacement), tick))
}

func TestDiff_ApplyReconstructsIDSet(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	randomSnap := func() spool.Snapshot {
		var recs []spool.JobRecord
		for id := 1; id <= 12; id++ {
			if rng.Intn(2) == 0 {
				recs = append(recs, job(id, uint32(rng.Intn(3)), rng.Intn(3)))
			}
		}
		rng.Shuffle(len(recs), func(i, j int) { recs[i], recs[j] = recs[j], recs[i] })
		return snap(recs...)
	}

	for i := 0; i < 200; i++ {
		s1, s2 := randomSnap(), randomSnap()
		got := Apply(s1.IDs(), Diff(s1, s2, tick))
		want := s2.IDs()
		sort.Ints(got)
		sort.Ints(want)
		assert.Equal(t, want, got)
	}
}

func device(code uint32) *spool.DeviceStatus {
	ds := spool.NewDeviceStatus("Office", &provider.RawDevice{Name: "Office", Status: code}, tick)
	return &ds
}

func TestDiffDevice(t *testing.T) {
	assert.Nil(t, DiffDevice(nil, device(0), tick))

	assert.Empty(t, DiffDevice(device(0), device(0), tick))

	events := DiffDevice(device(0), device(status.DevicePrinting), tick)
	assert.Equal(t, []Kind{KindDeviceStatusChanged}, kinds(events))
	assert.Equal(t, uint32(0), events[0].OldStatus.StatusCode)
	assert.Equal(t, status.DevicePrinting, events[0].NewStatus.StatusCode)

	events = DiffDevice(device(0), device(status.DevicePaperJam), tick)
	assert.Equal(t, []Kind{KindDeviceStatusChanged, KindPaperFault}, kinds(events))
	require.NotNil(t, events[1].Paper)
	assert.True(t, events[1].Paper.Jammed)
	assert.False(t, events[1].Paper.Available)

	events = DiffDevice(device(status.DevicePaperJam), device(0), tick)
	require.Len(t, events, 2)
	assert.True(t, events[1].Paper.Available)
}

func TestDiffDevice_Unavailable(t *testing.T) {
	gone := spool.UnavailableStatus("Office", errors.New("rpc unavailable"), tick)

	tests := []struct {
		name       string
		prev, curr *spool.DeviceStatus
	}{
		{name: "ready to unreadable", prev: device(0), curr: &gone},
		{name: "paper out to unreadable", prev: device(status.DevicePaperOut), curr: &gone},
		{name: "unreadable to paper jam", prev: &gone, curr: device(status.DevicePaperJam)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := DiffDevice(tt.prev, tt.curr, tick)
			assert.Equal(t, []Kind{KindDeviceStatusChanged}, kinds(events))
		})
	}

	assert.Empty(t, DiffDevice(&gone, &gone, tick))
}

func TestEventHelpers(t *testing.T) {
	events := Diff(snap(job(1, 0, 1)), snap(job(1, status.JobPrinting, 4)), tick)
	require.Len(t, events, 1)
	assert.Equal(t, 3, events[0].PagesDelta())
	assert.True(t, events[0].StatusChanged())

	k, ok := ParseKind("paper_fault")
	assert.True(t, ok)
	assert.Equal(t, KindPaperFault, k)
	_, ok = ParseKind("nope")
	assert.False(t, ok)
	assert.True(t, KindJobRemoved.JobEvent())
	assert.False(t, KindPaperFault.JobEvent())
}
