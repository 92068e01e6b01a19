// Package provider defines the abstraction over a host print spooler.
//
// Providers expose a minimal surface: enumerate devices, open and close
// per-device handles, read jobs and device info, and issue control commands.
// Nothing above this package talks to the spooler directly.
package provider

import (
	"context"
	"strings"
	"time"
)

// Provider abstracts a host print spooler.
//
// Implementations should:
//   - Return ErrDeviceNotFound when a device name cannot be opened
//   - Return ErrJobNotFound from GetJob when the job is absent
//   - Treat Close on an already closed handle as a no-op
//   - Be safe for concurrent use across different handles
type Provider interface {
	// ListDevices enumerates devices known to the spooler.
	ListDevices(ctx context.Context) ([]DeviceEntry, error)

	// Open acquires a handle for the named device.
	Open(ctx context.Context, device string) (Handle, error)

	// Close releases a handle.
	Close(ctx context.Context, h Handle) error

	// EnumerateJobs returns every job currently queued on the device.
	EnumerateJobs(ctx context.Context, h Handle) ([]RawJob, error)

	// GetJob returns a single job.
	GetJob(ctx context.Context, h Handle, jobID int) (*RawJob, error)

	// GetDeviceInfo returns device identity and status.
	GetDeviceInfo(ctx context.Context, h Handle) (*RawDevice, error)

	// SetDeviceControl applies a device-wide command.
	SetDeviceControl(ctx context.Context, h Handle, cmd DeviceCommand) error

	// SetJobControl applies a command to a single job.
	SetJobControl(ctx context.Context, h Handle, jobID int, cmd JobCommand) error

	// Kind identifies the provider implementation.
	Kind() Kind
}

// Handle is an open session on one device.
//
// Handles are opaque to callers; Token is meaningful only to the provider
// that issued it.
type Handle struct {
	Device string
	Token  uint64
}

// IsZero reports whether the handle was never opened.
func (h Handle) IsZero() bool {
	return h.Device == "" && h.Token == 0
}

// RawJob is a job as reported by the spooler.
type RawJob struct {
	ID           int
	Document     string
	Status       uint32
	PagesPrinted int
	TotalPages   int

	// Submitted may be nil when the spooler does not report it.
	Submitted   *time.Time
	UserName    string
	MachineName string
	DataType    string
	Priority    int
}

// RawDevice is device identity and status as reported by the spooler.
type RawDevice struct {
	Name       string
	Status     uint32
	Attributes uint32
	ServerName string
	ShareName  string
	PortName   string
	DriverName string
	Location   string
	Comment    string
	JobCount   int
}

// DeviceEntry is one row of a device enumeration.
type DeviceEntry struct {
	Name        string `json:"name"`
	FullName    string `json:"full_name"`
	Description string `json:"description"`
	Flags       uint32 `json:"flags"`
}

// Device types derived from the full name.
const (
	DeviceTypeLocal   = "local"
	DeviceTypeNetwork = "network"
)

// Type classifies the device as network or local.
func (d DeviceEntry) Type() string {
	if strings.Contains(d.FullName, "http://") || strings.Contains(d.FullName, "WSD") {
		return DeviceTypeNetwork
	}
	return DeviceTypeLocal
}

// Protocol guesses the transport protocol from the full name.
func (d DeviceEntry) Protocol() string {
	switch {
	case strings.Contains(d.FullName, "WSD"):
		return "WSD"
	case strings.Contains(d.FullName, "IPP"):
		return "IPP"
	case strings.Contains(d.FullName, "http://"), strings.Contains(d.FullName, "https://"):
		return "HTTP"
	default:
		return "unknown"
	}
}

// DeviceCommand is a device-wide control command.
type DeviceCommand string

const (
	DevicePause  DeviceCommand = "pause"
	DeviceResume DeviceCommand = "resume"

	// DevicePurge removes every job queued on the device.
	DevicePurge DeviceCommand = "purge"
)

// JobCommand is a per-job control command.
type JobCommand string

const (
	JobCancel  JobCommand = "cancel"
	JobPause   JobCommand = "pause"
	JobResume  JobCommand = "resume"
	JobRestart JobCommand = "restart"
)

// ParseJobCommand maps a user-facing verb to a JobCommand.
func ParseJobCommand(s string) (JobCommand, bool) {
	switch JobCommand(strings.ToLower(strings.TrimSpace(s))) {
	case JobCancel:
		return JobCancel, true
	case JobPause:
		return JobPause, true
	case JobResume:
		return JobResume, true
	case JobRestart:
		return JobRestart, true
	}
	return "", false
}

// Kind identifies a spooler provider.
type Kind string

const (
	// KindFixture is the in-memory scripted spooler.
	KindFixture Kind = "fixture"

	// KindCUPS drives a CUPS server through its command-line tools.
	KindCUPS Kind = "cups"
)

// String returns the string representation of the provider kind.
func (k Kind) String() string {
	return string(k)
}
