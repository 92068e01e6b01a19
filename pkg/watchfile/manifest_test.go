package watchfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/spoolwatch/pkg/monitor"
)

const validYAML = `
version: "1.0"
watches:
  - device: Office-Laser
    interval: 2s
    jobs: [5, 7]
    read_error_policy: treat_as_empty
  - device: Lobby
    watch_device: false
output:
  destination: /tmp/events.jsonl
  history: /tmp/history.db
`

func TestLoadFromBytes_YAML(t *testing.T) {
	m, err := LoadFromBytes([]byte(validYAML), "watch.yaml")
	require.NoError(t, err)
	require.Len(t, m.Watches, 2)

	office, err := m.Watches[0].Options()
	require.NoError(t, err)
	assert.Equal(t, "Office-Laser", office.Device)
	assert.Equal(t, 2*time.Second, office.Interval)
	assert.Equal(t, []int{5, 7}, office.Scope.IDs())
	assert.True(t, office.WatchDevice)
	assert.Equal(t, monitor.TreatAsEmpty, office.ReadErrorPolicy)

	lobby, err := m.Watches[1].Options()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, lobby.Interval)
	assert.True(t, lobby.Scope.All())
	assert.False(t, lobby.WatchDevice)
	assert.Equal(t, monitor.RetainPrevious, lobby.ReadErrorPolicy)

	assert.Equal(t, "/tmp/events.jsonl", m.Output.Destination)
	assert.Equal(t, "/tmp/history.db", m.Output.History)
}

func TestLoadFromBytes_JSONDefaults(t *testing.T) {
	m, err := LoadFromBytes([]byte(`{"version":"1.0","watches":[{"device":"Office"}]}`), "watch.json")
	require.NoError(t, err)
	assert.Equal(t, DefaultDestination, m.Output.Destination)
	assert.Equal(t, DefaultInterval, m.Watches[0].Interval)
	assert.True(t, m.Watches[0].WatchesDevice())
}

func TestLoadFromBytes_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "unknown top-level field", data: "version: \"1.0\"\nwatches: [{device: A}]\nextra: 1\n"},
		{name: "unknown watch field", data: "version: \"1.0\"\nwatches: [{device: A, colour: red}]\n"},
		{name: "missing watches", data: "version: \"1.0\"\n"},
		{name: "empty watches", data: "version: \"1.0\"\nwatches: []\n"},
		{name: "wrong version", data: "version: \"2.0\"\nwatches: [{device: A}]\n"},
		{name: "bad interval", data: "version: \"1.0\"\nwatches: [{device: A, interval: soon}]\n"},
		{name: "zero job id", data: "version: \"1.0\"\nwatches: [{device: A, jobs: [0]}]\n"},
		{name: "bad policy", data: "version: \"1.0\"\nwatches: [{device: A, read_error_policy: ignore}]\n"},
		{name: "duplicate device", data: "version: \"1.0\"\nwatches: [{device: A}, {device: A}]\n"},
		{name: "zero interval", data: "version: \"1.0\"\nwatches: [{device: A, interval: 0s}]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromBytes([]byte(tt.data), "watch.yaml")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidationFailed)
		})
	}
}

func TestLoadFromBytes_Malformed(t *testing.T) {
	_, err := LoadFromBytes(nil, "watch.yaml")
	assert.EqualError(t, err, "manifest file is empty")

	_, err = LoadFromBytes([]byte("{not json"), "watch.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSON")

	_, err = LoadFromBytes([]byte("watches: [unclosed"), "watch.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid YAML")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watch.yml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o600))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, m.Watches, 2)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	m, err = LoadFromReader(strings.NewReader(validYAML), "")
	require.NoError(t, err)
	assert.Equal(t, DefaultVersion, m.Version)
}

func TestValidationErrors_Error(t *testing.T) {
	assert.Equal(t, "validation failed", ValidationErrors{}.Error())
	assert.Equal(t, "/a: bad", ValidationErrors{{Path: "/a", Message: "bad"}}.Error())
	multi := ValidationErrors{{Path: "/a", Message: "bad"}, {Message: "worse"}}.Error()
	assert.Contains(t, multi, "2 errors")
	assert.Contains(t, multi, "  - worse")
}
