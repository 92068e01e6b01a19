package spool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/spoolwatch/pkg/provider"
	"github.com/3leaps/spoolwatch/pkg/provider/fixture"
	"github.com/3leaps/spoolwatch/pkg/provider/handles"
	"github.com/3leaps/spoolwatch/pkg/status"
)

func newFixture() *fixture.Spooler {
	submitted := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	return fixture.New(&fixture.State{Devices: []fixture.Device{{
		Name:       "Office",
		Attributes: status.AttrLocal,
		Driver:     "HP Universal",
		Status:     status.DevicePaperOut,
		Jobs: []fixture.Job{
			{ID: 9, Document: "b.pdf", Status: status.JobPrinting, TotalPages: 3, Submitted: &submitted},
			{ID: 4, Document: "a.pdf"},
		},
	}}})
}

func TestReader_Snapshot(t *testing.T) {
	s := newFixture()
	r := NewReader(handles.New(s, handles.Options{}), nil)

	snap, err := r.Snapshot(context.Background(), "Office")
	require.NoError(t, err)
	assert.Equal(t, []int{9, 4}, snap.IDs())

	rec, ok := snap.Get(9)
	require.True(t, ok)
	assert.Equal(t, "Office", rec.Device)
	assert.Equal(t, status.LabelSet{"Printing"}, rec.Status)
	assert.Equal(t, 3, rec.TotalPages)

	rec, _ = snap.Get(4)
	assert.Equal(t, status.LabelSet{"Queued"}, rec.Status)
	assert.Nil(t, rec.Submitted)
	assert.Equal(t, 0, s.OpenHandles())
}

func TestReader_SnapshotErrorReleasesHandle(t *testing.T) {
	s := newFixture()
	s.FailNext(fixture.OpEnumerateJobs, errors.New("rpc down"))
	r := NewReader(handles.New(s, handles.Options{}), nil)

	_, err := r.Snapshot(context.Background(), "Office")
	require.Error(t, err)
	assert.Equal(t, 0, s.OpenHandles())
}

func TestReader_ListJobsSwallowsErrors(t *testing.T) {
	s := newFixture()
	r := NewReader(handles.New(s, handles.Options{}), nil)

	assert.Len(t, r.ListJobs(context.Background(), "Office"), 2)

	jobs := r.ListJobs(context.Background(), "Missing")
	assert.NotNil(t, jobs)
	assert.Empty(t, jobs)

	s.FailNext(fixture.OpEnumerateJobs, errors.New("rpc down"))
	assert.Empty(t, r.ListJobs(context.Background(), "Office"))
}

func TestReader_GetJob(t *testing.T) {
	s := newFixture()
	r := NewReader(handles.New(s, handles.Options{}), nil)

	rec, ok := r.GetJob(context.Background(), "Office", 4)
	require.True(t, ok)
	assert.Equal(t, "a.pdf", rec.DocumentName)

	_, ok = r.GetJob(context.Background(), "Office", 77)
	assert.False(t, ok)

	_, ok = r.GetJob(context.Background(), "Missing", 4)
	assert.False(t, ok)
	assert.Equal(t, 0, s.OpenHandles())
}

// emptyJobSpooler answers GetJob with neither a job nor an error.
type emptyJobSpooler struct {
	*fixture.Spooler
}

func (emptyJobSpooler) GetJob(context.Context, provider.Handle, int) (*provider.RawJob, error) {
	return nil, nil
}

func TestReader_GetJobNilResult(t *testing.T) {
	s := newFixture()
	r := NewReader(handles.New(emptyJobSpooler{s}, handles.Options{}), nil)

	var (
		rec JobRecord
		ok  bool
	)
	require.NotPanics(t, func() { rec, ok = r.GetJob(context.Background(), "Office", 4) })
	assert.False(t, ok)
	assert.Equal(t, JobRecord{}, rec)
	assert.Equal(t, 0, s.OpenHandles())
}

func TestReader_DeviceStatus(t *testing.T) {
	s := newFixture()
	r := NewReader(handles.New(s, handles.Options{}), nil)

	ds, err := r.DeviceStatus(context.Background(), "Office")
	require.NoError(t, err)
	assert.True(t, ds.Available)
	assert.Equal(t, status.LabelSet{"Paper Out"}, ds.Status)
	assert.Equal(t, status.LabelSet{"Local"}, ds.Attributes)
	assert.True(t, ds.Online)
	assert.False(t, ds.Ready)
	assert.Equal(t, 2, ds.JobCount)
	assert.True(t, ds.Paper().Out)

	ds, err = r.DeviceStatus(context.Background(), "Missing")
	require.Error(t, err)
	assert.True(t, provider.IsDeviceNotFound(err))
	assert.False(t, ds.Available)
	assert.False(t, ds.Online)
	assert.False(t, ds.Ready)
	assert.Equal(t, status.LabelSet{LabelUnknown}, ds.Status)
	assert.Equal(t, NotAvailable, ds.DriverName)
	assert.NotEmpty(t, ds.Error)
}

func TestSnapshot_Basics(t *testing.T) {
	var zero Snapshot
	assert.Equal(t, 0, zero.Len())
	assert.False(t, zero.Has(1))
	assert.Empty(t, zero.Records())

	s := NewSnapshot([]JobRecord{{JobID: 3, DocumentName: "x"}, {JobID: 1}, {JobID: 3, DocumentName: "y"}})
	assert.Equal(t, []int{3, 1}, s.IDs())
	rec, _ := s.Get(3)
	assert.Equal(t, "y", rec.DocumentName)

	f := s.Filter(map[int]struct{}{1: {}, 42: {}})
	assert.Equal(t, []int{1}, f.IDs())
	assert.Equal(t, 2, s.Len(), "filter does not mutate")
}
