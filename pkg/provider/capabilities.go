package provider

import "context"

// Optional provider capability interfaces.
//
// These interfaces are used for feature detection (type assertions). The core
// Provider interface remains intentionally small.

// RawSubmitter can queue an already-rendered payload on a device.
//
// Used for connectivity test pages; the returned job id can seed a scoped
// monitor session.
type RawSubmitter interface {
	SubmitRaw(ctx context.Context, h Handle, document string, payload []byte) (jobID int, err error)
}

// Pinger can check spooler reachability without opening a device.
type Pinger interface {
	Ping(ctx context.Context) error
}
