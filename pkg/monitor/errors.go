package monitor

import "errors"

var (
	// ErrAlreadyRunning is returned by Start when the session is running.
	ErrAlreadyRunning = errors.New("monitor session already running")

	// ErrStopTimeout is returned by Stop when the loop did not exit within
	// the grace period. The session reports Idle, but Start returns
	// ErrAlreadyRunning until the abandoned loop has exited.
	ErrStopTimeout = errors.New("monitor session did not stop within grace period")

	// ErrNoDevice is returned by Start when Options.Device is empty.
	ErrNoDevice = errors.New("monitor options: device is required")

	// ErrNilSink is returned by Start when no sink is supplied.
	ErrNilSink = errors.New("monitor options: sink is required")
)
