package monitor

import (
	"time"

	"github.com/3leaps/spoolwatch/pkg/detect"
)

// Observer receives session telemetry. Implementations must be safe for
// concurrent use by several sessions.
type Observer interface {
	SessionStarted(device string)
	SessionStopped(device string)
	TickCompleted(device string, took time.Duration)
	EventDelivered(device string, kind detect.Kind)
	ReadFailed(device string)
	SinkFailed(device string)
}

// NopObserver discards telemetry.
type NopObserver struct{}

func (NopObserver) SessionStarted(string)               {}
func (NopObserver) SessionStopped(string)               {}
func (NopObserver) TickCompleted(string, time.Duration) {}
func (NopObserver) EventDelivered(string, detect.Kind)  {}
func (NopObserver) ReadFailed(string)                   {}
func (NopObserver) SinkFailed(string)                   {}
