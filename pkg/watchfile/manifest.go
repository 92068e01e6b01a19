// Package watchfile loads and validates spoolwatch watch manifests.
//
// A watch manifest lists the devices to monitor and where lifecycle events
// go. It is validated against an embedded JSON Schema that rejects unknown
// properties.
//
// Example manifest (YAML):
//
//	version: "1.0"
//	watches:
//	  - device: Office-Laser
//	    interval: 2s
//	    jobs: [5, 7]
//	  - device: Lobby
//	    watch_device: false
//	output:
//	  destination: /var/log/spoolwatch/events.jsonl
//	  history: /var/lib/spoolwatch/history.db
package watchfile

import (
	"fmt"
	"time"

	"github.com/3leaps/spoolwatch/pkg/monitor"
)

// Manifest is a validated watch manifest.
type Manifest struct {
	// Schema is an optional JSON Schema reference for editor support.
	Schema string `json:"$schema,omitempty" yaml:"$schema,omitempty"`

	// Version must be "1.0".
	Version string `json:"version" yaml:"version"`

	Watches []Watch      `json:"watches" yaml:"watches"`
	Output  OutputConfig `json:"output,omitempty" yaml:"output,omitempty"`
}

// Watch configures one monitored device.
type Watch struct {
	Device string `json:"device" yaml:"device"`

	// Interval is a Go duration string. Default: 5s.
	Interval string `json:"interval,omitempty" yaml:"interval,omitempty"`

	// Jobs limits tracking to these ids. Empty tracks every job.
	Jobs []int `json:"jobs,omitempty" yaml:"jobs,omitempty"`

	// WatchDevice also reports device status and paper changes. Default: true.
	WatchDevice *bool `json:"watch_device,omitempty" yaml:"watch_device,omitempty"`

	ReadErrorPolicy string `json:"read_error_policy,omitempty" yaml:"read_error_policy,omitempty"`
	StopGrace       string `json:"stop_grace,omitempty" yaml:"stop_grace,omitempty"`
}

// OutputConfig configures where events are written.
type OutputConfig struct {
	// Destination is "stdout" or a JSONL file path. Default: "stdout".
	Destination string `json:"destination,omitempty" yaml:"destination,omitempty"`

	// History is an optional SQLite history database path.
	History string `json:"history,omitempty" yaml:"history,omitempty"`

	// Registry is an optional session registry directory.
	Registry string `json:"registry,omitempty" yaml:"registry,omitempty"`
}

const (
	DefaultVersion     = "1.0"
	DefaultInterval    = "5s"
	DefaultDestination = "stdout"
	DefaultWatchDevice = true
)

// ApplyDefaults fills optional fields.
func (m *Manifest) ApplyDefaults() {
	if m.Version == "" {
		m.Version = DefaultVersion
	}
	for i := range m.Watches {
		w := &m.Watches[i]
		if w.Interval == "" {
			w.Interval = DefaultInterval
		}
		if w.WatchDevice == nil {
			v := DefaultWatchDevice
			w.WatchDevice = &v
		}
		if w.ReadErrorPolicy == "" {
			w.ReadErrorPolicy = string(monitor.RetainPrevious)
		}
	}
	if m.Output.Destination == "" {
		m.Output.Destination = DefaultDestination
	}
}

// WatchesDevice reports whether device status is watched.
func (w Watch) WatchesDevice() bool {
	if w.WatchDevice == nil {
		return DefaultWatchDevice
	}
	return *w.WatchDevice
}

// Options converts w into monitor options.
func (w Watch) Options() (monitor.Options, error) {
	opts := monitor.Options{
		Device:      w.Device,
		Scope:       monitor.Jobs(w.Jobs...),
		WatchDevice: w.WatchesDevice(),
	}

	var err error
	if w.Interval != "" {
		if opts.Interval, err = time.ParseDuration(w.Interval); err != nil {
			return monitor.Options{}, fmt.Errorf("watch %s: invalid interval: %w", w.Device, err)
		}
		if opts.Interval <= 0 {
			return monitor.Options{}, fmt.Errorf("watch %s: interval must be positive", w.Device)
		}
	}
	if w.StopGrace != "" {
		if opts.StopGrace, err = time.ParseDuration(w.StopGrace); err != nil {
			return monitor.Options{}, fmt.Errorf("watch %s: invalid stop_grace: %w", w.Device, err)
		}
	}
	if opts.ReadErrorPolicy, err = monitor.ParseReadErrorPolicy(w.ReadErrorPolicy); err != nil {
		return monitor.Options{}, fmt.Errorf("watch %s: %w", w.Device, err)
	}
	return opts, nil
}

// DuplicateDevices returns device names listed more than once.
func (m *Manifest) DuplicateDevices() []string {
	seen := make(map[string]int, len(m.Watches))
	var dups []string
	for _, w := range m.Watches {
		seen[w.Device]++
		if seen[w.Device] == 2 {
			dups = append(dups, w.Device)
		}
	}
	return dups
}
