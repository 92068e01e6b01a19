package monitor

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	// DefaultInterval is the poll interval when Options.Interval is zero.
	DefaultInterval = 5 * time.Second

	// DefaultStopGrace bounds how long Stop waits for the loop to exit.
	DefaultStopGrace = 2 * time.Second
)

// ReadErrorPolicy controls how a failed snapshot read is diffed.
type ReadErrorPolicy string

const (
	// RetainPrevious keeps the last good snapshot; the tick emits no job events.
	RetainPrevious ReadErrorPolicy = "retain_previous"

	// TreatAsEmpty diffs against an empty queue, reporting every retained job
	// as removed. This reproduces spoolers that cannot tell an error from an
	// empty queue.
	TreatAsEmpty ReadErrorPolicy = "treat_as_empty"
)

// ParseReadErrorPolicy accepts the policy names used in config files.
func ParseReadErrorPolicy(s string) (ReadErrorPolicy, error) {
	switch ReadErrorPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", RetainPrevious:
		return RetainPrevious, nil
	case TreatAsEmpty:
		return TreatAsEmpty, nil
	default:
		return "", fmt.Errorf("invalid read error policy %q (expected %s or %s)", s, RetainPrevious, TreatAsEmpty)
	}
}

// Scope selects which jobs a session tracks. The zero Scope tracks all jobs.
type Scope struct {
	ids map[int]struct{}
}

// AllJobs tracks every job on the device.
func AllJobs() Scope { return Scope{} }

// Jobs tracks only the given job ids. With no ids it tracks all jobs.
func Jobs(ids ...int) Scope {
	if len(ids) == 0 {
		return Scope{}
	}
	s := Scope{ids: make(map[int]struct{}, len(ids))}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return s
}

// All reports whether the scope tracks every job.
func (s Scope) All() bool { return len(s.ids) == 0 }

// IDs returns the tracked ids in ascending order, or nil for all jobs.
func (s Scope) IDs() []int {
	if s.All() {
		return nil
	}
	out := make([]int, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// Options configure one monitor run.
type Options struct {
	Device          string
	Interval        time.Duration
	Scope           Scope
	WatchDevice     bool
	StopGrace       time.Duration
	ReadErrorPolicy ReadErrorPolicy
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.StopGrace <= 0 {
		o.StopGrace = DefaultStopGrace
	}
	if o.ReadErrorPolicy == "" {
		o.ReadErrorPolicy = RetainPrevious
	}
	return o
}
