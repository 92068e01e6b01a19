package query

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
	"github.com/3leaps/spoolwatch/pkg/spool"
	"github.com/3leaps/spoolwatch/pkg/status"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := now.Add(-d)
	return &t
}

func newService(t *testing.T) (*Service, *fixture.Spooler) {
	t.Helper()
	sp := fixture.New(&fixture.State{Devices: []fixture.Device{
		{
			Name:     "Office-Laser",
			FullName: "Office-Laser,http://10.0.0.5/ipp",
			Driver:   "HP Universal",
			Jobs: []fixture.Job{
				{ID: 1, Document: "old.pdf", Submitted: at(30 * time.Hour)},
				{ID: 2, Document: "recent.pdf", Submitted: at(time.Hour)},
				{ID: 3, Document: "tie-b.pdf", Submitted: at(2 * time.Hour)},
				{ID: 4, Document: "no-time.pdf"},
				{ID: 5, Document: "newest.pdf", Submitted: at(time.Minute)},
			},
		},
		{Name: "Front-Desk", Attributes: status.AttrLocal, Status: status.DevicePaperProblem},
		{Name: "WSD-Lobby", FullName: "WSD-1234,WSD Port", ReadOnly: true},
	}})
	sp.Now = func() time.Time { return now }
	svc := New(handles.New(sp, handles.Options{}), nil)
	svc.now = func() time.Time { return now }
	return svc, sp
}

func TestListDevices(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	all, err := svc.ListDevices(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	office, err := svc.ListDevices(ctx, "Office-*")
	require.NoError(t, err)
	require.Len(t, office, 1)
	assert.Equal(t, "Office-Laser", office[0].Name)

	_, err = svc.ListDevices(ctx, "[")
	assert.Error(t, err)

	local, err := svc.LocalDevices(ctx)
	require.NoError(t, err)
	require.Len(t, local, 1)
	assert.Equal(t, "Front-Desk", local[0].Name)

	network, err := svc.NetworkDevices(ctx)
	require.NoError(t, err)
	assert.Len(t, network, 2)
}

func TestListDevices_ProviderError(t *testing.T) {
	svc, sp := newService(t)
	sp.FailNext(fixture.OpListDevices, provider.ErrProviderUnavailable)
	_, err := svc.ListDevices(context.Background(), "")
	assert.True(t, provider.IsProviderUnavailable(err))
}

func TestGetStatus(t *testing.T) {
	svc, sp := newService(t)
	ctx := context.Background()

	ds := svc.GetStatus(ctx, "Front-Desk")
	assert.True(t, ds.Available)
	assert.Equal(t, status.LabelSet{"Paper Problem"}, ds.Status)
	assert.False(t, svc.IsReady(ctx, "Front-Desk"))

	assert.True(t, svc.IsReady(ctx, "WSD-Lobby"))

	missing := svc.GetStatus(ctx, "Nope")
	assert.False(t, missing.Available)
	assert.NotEmpty(t, missing.Error)
	assert.False(t, svc.IsReady(ctx, "Nope"))
	assert.Zero(t, svc.GetJobCount(ctx, "Nope"))

	assert.Equal(t, 5, svc.GetJobCount(ctx, "Office-Laser"))
	assert.Equal(t, 0, sp.OpenHandles())
}

func TestGetHistory(t *testing.T) {
	svc, sp := newService(t)
	ctx := context.Background()

	// A second job at the same instant as job 3 checks tie ordering.
	_, err := sp.AddJob("Office-Laser", fixture.Job{ID: 9, Document: "tie-a.pdf", Submitted: at(2 * time.Hour)})
	require.NoError(t, err)

	jobs := svc.GetHistory(ctx, "Office-Laser", 0)
	ids := make([]int, len(jobs))
	for i, j := range jobs {
		ids[i] = j.JobID
	}
	assert.Equal(t, []int{5, 2, 3, 9}, ids)

	jobs = svc.GetHistory(ctx, "Office-Laser", 90*time.Minute)
	require.Len(t, jobs, 2)
	assert.Equal(t, 5, jobs[0].JobID)

	// job 2 was submitted exactly one hour ago, on the cutoff
	jobs = svc.GetHistory(ctx, "Office-Laser", time.Hour)
	require.Len(t, jobs, 1)
	assert.Equal(t, 5, jobs[0].JobID)

	assert.Empty(t, svc.GetHistory(ctx, "Nope", time.Hour))
}

func TestDeviceControls(t *testing.T) {
	svc, sp := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Pause(ctx, "Front-Desk"))
	assert.True(t, svc.GetStatus(ctx, "Front-Desk").Status.Has("Paused"))
	require.NoError(t, svc.Resume(ctx, "Front-Desk"))
	assert.False(t, svc.GetStatus(ctx, "Front-Desk").Status.Has("Paused"))

	require.NoError(t, svc.PurgeJobs(ctx, "Office-Laser"))
	assert.Empty(t, svc.ListJobs(ctx, "Office-Laser"))

	err := svc.Pause(ctx, "WSD-Lobby")
	assert.True(t, provider.IsAccessDenied(err))
	assert.True(t, provider.IsDeviceNotFound(svc.Pause(ctx, "Nope")))
	assert.Equal(t, 0, sp.OpenHandles())
}

func TestJobControls(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.PauseJob(ctx, "Office-Laser", 2))
	job, ok := svc.GetJob(ctx, "Office-Laser", 2)
	require.True(t, ok)
	assert.True(t, job.Status.Has("Paused"))

	require.NoError(t, svc.ResumeJob(ctx, "Office-Laser", 2))
	require.NoError(t, svc.RestartJob(ctx, "Office-Laser", 2))
	job, _ = svc.GetJob(ctx, "Office-Laser", 2)
	assert.True(t, job.Status.Has("Restart"))

	require.NoError(t, svc.CancelJob(ctx, "Office-Laser", 2))
	_, ok = svc.GetJob(ctx, "Office-Laser", 2)
	assert.False(t, ok)

	assert.True(t, provider.IsJobNotFound(svc.CancelJob(ctx, "Office-Laser", 2)))
}

func TestCheckPaperFault(t *testing.T) {
	svc, sp := newService(t)
	ctx := context.Background()

	paper, err := svc.CheckPaperFault(ctx, "Front-Desk")
	require.NoError(t, err)
	assert.True(t, paper.Available)
	assert.True(t, paper.Low)
	assert.True(t, paper.Fault())

	require.NoError(t, sp.SetDeviceStatus("Front-Desk", status.DevicePaperJam|status.DevicePaperOut))
	paper, err = svc.CheckPaperFault(ctx, "Front-Desk")
	require.NoError(t, err)
	assert.Equal(t, status.PaperStatus{Out: true, Jammed: true}, paper)

	_, err = svc.CheckPaperFault(ctx, "Nope")
	assert.Error(t, err)
}

func TestTestConnection(t *testing.T) {
	svc, sp := newService(t)
	ctx := context.Background()

	res := svc.TestConnection(ctx, "Front-Desk")
	assert.True(t, res.Success)
	assert.Empty(t, res.Error)

	sp.FailNext(fixture.OpGetDeviceInfo, errors.New("timeout"))
	res = svc.TestConnection(ctx, "Front-Desk")
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "timeout")

	assert.NoError(t, svc.Ping(ctx))
}

func TestPrintTestPage(t *testing.T) {
	svc, sp := newService(t)
	ctx := context.Background()

	ids, err := svc.PrintTestPage(ctx, "Front-Desk", 2)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, ids)
	assert.Len(t, sp.Jobs("Front-Desk"), 2)

	ids, err = svc.PrintTestPage(ctx, "Front-Desk", 0)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

// plainProvider hides the fixture's optional capabilities.
type plainProvider struct{ provider.Provider }

func TestPrintTestPage_Unsupported(t *testing.T) {
	sp := fixture.New(&fixture.State{Devices: []fixture.Device{{Name: "Office"}}})
	svc := New(handles.New(plainProvider{sp}, handles.Options{}), nil)

	_, err := svc.PrintTestPage(context.Background(), "Office", 1)
	assert.True(t, provider.IsUnsupported(err))

	assert.NoError(t, svc.Ping(context.Background()))
}

func TestPollStatus(t *testing.T) {
	svc, _ := newService(t)

	var seen []spool.DeviceStatus
	checks, err := svc.PollStatus(context.Background(), "Front-Desk", 10*time.Millisecond, 55*time.Millisecond, func(ds spool.DeviceStatus) {
		seen = append(seen, ds)
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, checks, 2)
	assert.Len(t, seen, checks)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checks, err = svc.PollStatus(ctx, "Front-Desk", time.Hour, time.Hour, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, checks)
}
