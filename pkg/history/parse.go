package history

import (
	"fmt"
	"strings"
	"time"

	"github.com/3leaps/spoolwatch/pkg/detect"
)

// ParseKinds parses a comma-separated list of event kinds.
func ParseKinds(raw string) ([]detect.Kind, error) {
	var kinds []detect.Kind
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, ok := detect.ParseKind(part)
		if !ok {
			return nil, fmt.Errorf("unknown event kind %q", part)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// ParseWhen accepts an RFC 3339 timestamp or a duration counted back from
// now. Empty input yields the zero time.
func ParseWhen(raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither RFC 3339 nor a duration", raw)
	}
	return now.Add(-d), nil
}
