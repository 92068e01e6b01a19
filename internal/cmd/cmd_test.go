package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/spoolwatch/pkg/detect"
	"github.com/3leaps/spoolwatch/pkg/eventlog"
	"github.com/3leaps/spoolwatch/pkg/history"
	"github.com/3leaps/spoolwatch/pkg/watchregistry"
)

const testFixture = `
devices:
  - name: Office
    full_name: Office
    jobs:
      - id: 1
        document: report.pdf
        total_pages: 3
      - id: 2
        document: memo.txt
  - name: Lobby
    read_only: true
    jobs:
      - id: 7
`

// setupCLI isolates config and data directories and returns the fixture
// path.
func setupCLI(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(home, "data"))
	t.Setenv("SPOOLWATCH_CONFIG", "")

	path := filepath.Join(t.TempDir(), "fixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testFixture), 0o600))
	t.Cleanup(func() {
		resetFlags(rootCmd)
		appConfig = nil
	})
	return path
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func runCLI(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(context.Background())
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var ee *cliExitError
	require.True(t, errors.As(err, &ee), "expected exit error, got %v", err)
	return ee.code
}

func TestParseJobIDs(t *testing.T) {
	ids, err := parseJobIDs([]string{"5,7", "9 11"})
	require.NoError(t, err)
	assert.Equal(t, []int{5, 7, 9, 11}, ids)

	ids, err = parseJobIDs([]string{""})
	require.NoError(t, err)
	assert.Empty(t, ids)

	for _, bad := range []string{"0", "-3", "x"} {
		_, err := parseJobIDs([]string{bad})
		var idErr *invalidJobIDError
		assert.ErrorAs(t, err, &idErr, bad)
	}
}

func TestExitError(t *testing.T) {
	cause := errors.New("boom")
	err := exitError(foundry.ExitFileNotFound, "Job not found", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "Job not found")
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, int(foundry.ExitFileNotFound), exitCode(t, err))

	assert.Contains(t, exitError(2, "bare", nil).Error(), "(exit code 2)")
}

func TestReadonlyBlocksControl(t *testing.T) {
	fixture := setupCLI(t)

	err := runCLI(t, "--fixture", fixture, "--readonly", "jobs", "cancel", "Office", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "readonly")
	assert.Equal(t, int(foundry.ExitInvalidArgument), exitCode(t, err))
}

func TestJobControlErrors(t *testing.T) {
	fixture := setupCLI(t)

	require.NoError(t, runCLI(t, "--fixture", fixture, "jobs", "cancel", "Office", "1,2"))

	err := runCLI(t, "--fixture", fixture, "jobs", "pause", "Office", "99")
	assert.Equal(t, int(foundry.ExitFileNotFound), exitCode(t, err))

	err = runCLI(t, "--fixture", fixture, "jobs", "resume", "Lobby", "7")
	assert.Equal(t, int(foundry.ExitInvalidArgument), exitCode(t, err))

	err = runCLI(t, "--fixture", fixture, "jobs", "restart", "Office", "abc")
	assert.Equal(t, int(foundry.ExitInvalidArgument), exitCode(t, err))
}

func TestQueryCommands(t *testing.T) {
	fixture := setupCLI(t)

	assert.NoError(t, runCLI(t, "--fixture", fixture, "devices", "--json"))
	assert.NoError(t, runCLI(t, "--fixture", fixture, "status", "Office"))
	assert.NoError(t, runCLI(t, "--fixture", fixture, "jobs", "list", "Office"))
	assert.NoError(t, runCLI(t, "--fixture", fixture, "jobs", "get", "Office", "1", "--json"))

	err := runCLI(t, "--fixture", fixture, "jobs", "get", "Office", "42")
	assert.Equal(t, int(foundry.ExitFileNotFound), exitCode(t, err))

	err = runCLI(t, "--fixture", fixture, "devices", "--type", "wireless")
	assert.Equal(t, int(foundry.ExitInvalidArgument), exitCode(t, err))
}

func TestWatchWritesEventsHistoryAndRegistry(t *testing.T) {
	fixture := setupCLI(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "events.jsonl")
	db := filepath.Join(dir, "history.db")
	reg := filepath.Join(dir, "sessions")

	require.NoError(t, runCLI(t, "--fixture", fixture, "watch", "Office",
		"--interval", "50ms", "--duration", "300ms",
		"--output", out, "--history", db, "--registry", reg))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	var added, sessions int
	require.NoError(t, eventlog.Read(f, func(rec eventlog.Record) error {
		switch rec.Type {
		case eventlog.TypeJobAdded:
			added++
		case eventlog.TypeSession:
			sessions++
		}
		return nil
	}))
	assert.Equal(t, 2, added)
	assert.Equal(t, 2, sessions, "start and stop markers")

	store, err := history.Open(context.Background(), history.Config{Path: db})
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	entries, err := store.Query(context.Background(), history.Filter{Device: "Office", Kinds: []detect.Kind{detect.KindJobAdded}})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	recs, err := watchregistry.NewStore(reg).List()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Office", recs[0].Device)
	assert.Equal(t, watchregistry.StateStopped, recs[0].State)
	assert.GreaterOrEqual(t, recs[0].Counters.Events, uint64(2))
	assert.NotNil(t, recs[0].StoppedAt)
}

func TestBuildWatchPlan(t *testing.T) {
	setupCLI(t)
	appConfig = nil

	_, err := buildWatchPlan(watchCmd, nil)
	assert.Equal(t, int(foundry.ExitInvalidArgument), exitCode(t, err))

	manifest := filepath.Join(t.TempDir(), "watch.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte(`
version: "1.0"
watches:
  - device: Office
    interval: 1s
    jobs: [1]
  - device: Lobby
output:
  destination: out.jsonl
`), 0o600))

	watchManifest = manifest
	_, err = buildWatchPlan(watchCmd, []string{"Office"})
	assert.Equal(t, int(foundry.ExitInvalidArgument), exitCode(t, err))

	plan, err := buildWatchPlan(watchCmd, nil)
	require.NoError(t, err)
	require.Len(t, plan.watches, 2)
	assert.Equal(t, time.Second, plan.watches[0].Interval)
	assert.Equal(t, []int{1}, plan.watches[0].Scope.IDs())
	assert.Equal(t, "out.jsonl", plan.output)
	assert.True(t, filepath.IsAbs(plan.manifestPath))
}

func TestEventFilterFlags(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	f, err := eventFilterFlags{kinds: "job_added", since: "1h", job: 4, limit: 10}.build([]string{"Office"}, now)
	require.NoError(t, err)
	assert.Equal(t, "Office", f.Device)
	assert.Equal(t, []detect.Kind{detect.KindJobAdded}, f.Kinds)
	assert.Equal(t, now.Add(-time.Hour), f.Since)
	assert.Equal(t, 4, f.JobID)
	assert.Equal(t, 10, f.Limit)

	_, err = eventFilterFlags{kinds: "nope"}.build(nil, now)
	assert.Error(t, err)
	_, err = eventFilterFlags{limit: -1}.build(nil, now)
	assert.Error(t, err)
	_, err = eventFilterFlags{until: "tomorrow"}.build(nil, now)
	assert.Error(t, err)
}

func TestFilterSessionRecords(t *testing.T) {
	recs := []watchregistry.SessionRecord{
		{SessionID: "a", Device: "Office"},
		{SessionID: "b", Device: "Lobby"},
		{SessionID: "c", Device: "Office"},
	}
	got := filterSessionRecords(append([]watchregistry.SessionRecord(nil), recs...), "Office", 0)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[1].SessionID)

	got = filterSessionRecords(append([]watchregistry.SessionRecord(nil), recs...), "", 1)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].SessionID)
}

func TestIdentityHealthChecker(t *testing.T) {
	tests := []struct {
		name       string
		checker    identityHealthChecker
		errContain string
	}{
		{name: "all fields valid", checker: identityHealthChecker{binaryName: "spoolwatch", envPrefix: "SPOOLWATCH", configName: "spoolwatch"}},
		{name: "missing binary name", checker: identityHealthChecker{envPrefix: "SPOOLWATCH", configName: "spoolwatch"}, errContain: "missing binary name"},
		{name: "missing env prefix", checker: identityHealthChecker{binaryName: "spoolwatch", configName: "spoolwatch"}, errContain: "missing env prefix"},
		{name: "missing config name", checker: identityHealthChecker{binaryName: "spoolwatch", envPrefix: "SPOOLWATCH"}, errContain: "missing config name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.checker.CheckHealth(context.Background())
			if tt.errContain == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContain)
		})
	}
}

func TestHistoryHealthChecker(t *testing.T) {
	assert.Error(t, historyHealthChecker{}.CheckHealth(context.Background()))

	store, err := history.Open(context.Background(), history.Config{Path: ":memory:"})
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	assert.NoError(t, historyHealthChecker{store: store}.CheckHealth(context.Background()))
}

func TestEventsAndSessionsAfterWatch(t *testing.T) {
	fixture := setupCLI(t)
	dir := t.TempDir()
	db := filepath.Join(dir, "history.db")
	reg := filepath.Join(dir, "sessions")

	require.NoError(t, runCLI(t, "--fixture", fixture, "watch", "Office",
		"--interval", "50ms", "--duration", "200ms",
		"--output", filepath.Join(dir, "events.jsonl"), "--history", db, "--registry", reg))
	resetFlags(rootCmd)

	assert.NoError(t, runCLI(t, "--fixture", fixture, "events", "query", "Office", "--history", db, "--kind", "job_added", "--json"))
	resetFlags(rootCmd)

	err := runCLI(t, "--fixture", fixture, "events", "query", "--history", db, "--kind", "jammed")
	assert.Equal(t, int(foundry.ExitInvalidArgument), exitCode(t, err))
	resetFlags(rootCmd)

	export := filepath.Join(dir, "export", "office.jsonl")
	require.NoError(t, runCLI(t, "--fixture", fixture, "events", "export", "Office", "--history", db, "--kind", "job_added", "--to", export))
	resetFlags(rootCmd)

	f, err := os.Open(export)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	var exported int
	require.NoError(t, eventlog.Read(f, func(rec eventlog.Record) error {
		assert.Equal(t, eventlog.TypeJobAdded, rec.Type)
		exported++
		return nil
	}))
	assert.Equal(t, 2, exported)

	err = runCLI(t, "--fixture", fixture, "events", "export", "--history", db, "--to", "gs://bucket/key")
	assert.Equal(t, int(foundry.ExitInvalidArgument), exitCode(t, err))
	resetFlags(rootCmd)

	recs, err := watchregistry.NewStore(reg).List()
	require.NoError(t, err)
	require.Len(t, recs, 1)

	assert.NoError(t, runCLI(t, "--fixture", fixture, "sessions", "list", "--registry", reg, "--json"))
	resetFlags(rootCmd)
	assert.NoError(t, runCLI(t, "--fixture", fixture, "sessions", "list", "--from-history", "--history", db))
	resetFlags(rootCmd)
	assert.NoError(t, runCLI(t, "--fixture", fixture, "sessions", "show", recs[0].SessionID, "--registry", reg))
	resetFlags(rootCmd)
	require.NoError(t, runCLI(t, "--fixture", fixture, "sessions", "remove", recs[0].SessionID, "--registry", reg))

	recs, err = watchregistry.NewStore(reg).List()
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestPollAndTestPage(t *testing.T) {
	fixture := setupCLI(t)

	assert.NoError(t, runCLI(t, "--fixture", fixture, "poll", "Office", "--interval", "20ms", "--duration", "60ms", "--json"))
	resetFlags(rootCmd)

	assert.NoError(t, runCLI(t, "--fixture", fixture, "test-page", "Office", "--copies", "2", "--json"))
	resetFlags(rootCmd)

	err := runCLI(t, "--fixture", fixture, "test-page", "Office", "--copies", "0")
	assert.Equal(t, int(foundry.ExitInvalidArgument), exitCode(t, err))
}
