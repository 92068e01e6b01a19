package monitor

import (
	"context"
	"errors"
	"fmt"

	"github.com/3leaps/spoolwatch/pkg/detect"
)

// Sink receives lifecycle events. HandleEvent is called synchronously from
// the session loop, one event at a time, in detection order. A returned
// error is logged and does not stop the session.
type Sink interface {
	HandleEvent(ctx context.Context, e detect.Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e detect.Event) error

// HandleEvent calls f.
func (f SinkFunc) HandleEvent(ctx context.Context, e detect.Event) error {
	return f(ctx, e)
}

// LifecycleSink is implemented by sinks that want session start and stop
// markers. SessionStopped is called from the loop before Stop returns.
type LifecycleSink interface {
	SessionStarted(ctx context.Context, info SessionInfo) error
	SessionStopped(ctx context.Context, info SessionInfo) error
}

// Fanout delivers each event to every sink in order. A failing sink does
// not prevent delivery to the rest.
type Fanout []Sink

// HandleEvent delivers e to every sink and joins their errors.
func (f Fanout) HandleEvent(ctx context.Context, e detect.Event) error {
	var errs []error
	for i, s := range f {
		if s == nil {
			continue
		}
		if err := safeHandle(ctx, s, e); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// SessionStarted forwards to sinks implementing LifecycleSink.
func (f Fanout) SessionStarted(ctx context.Context, info SessionInfo) error {
	var errs []error
	for _, s := range f {
		if ls, ok := s.(LifecycleSink); ok {
			if err := ls.SessionStarted(ctx, info); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// SessionStopped forwards to sinks implementing LifecycleSink.
func (f Fanout) SessionStopped(ctx context.Context, info SessionInfo) error {
	var errs []error
	for _, s := range f {
		if ls, ok := s.(LifecycleSink); ok {
			if err := ls.SessionStopped(ctx, info); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// safeHandle converts a sink panic into an error.
func safeHandle(ctx context.Context, s Sink, e detect.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	return s.HandleEvent(ctx, e)
}
