// Package status decodes spooler status bitmasks into readable labels.
//
// Decoding is table driven. Each Mapping lists the bits it understands in a
// fixed order; decoded label sets follow that order so output is stable
// across runs.
package status

import (
	"encoding/json"
	"strings"
)

// Flag pairs a single status bit with its label.
type Flag struct {
	Bit   uint32
	Label string
}

// Mapping is an ordered set of flags plus the label reported when no flag
// matches. An empty Sentinel means "report nothing".
type Mapping struct {
	Name     string
	Flags    []Flag
	Sentinel string
}

// LabelSet is an ordered, duplicate-free list of decoded labels.
type LabelSet []string

// Has reports whether label is present.
func (s LabelSet) Has(label string) bool {
	for _, l := range s {
		if l == label {
			return true
		}
	}
	return false
}

// Strings returns a copy of the labels.
func (s LabelSet) Strings() []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}

// String joins labels with ", ".
func (s LabelSet) String() string {
	return strings.Join(s, ", ")
}

// MarshalJSON always emits an array, never null.
func (s LabelSet) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(s))
}

// Decode returns the labels of every flag set in code.
//
// When no flag matches, the result holds only the mapping's sentinel, or is
// empty if the mapping has none. Bits the mapping does not know are ignored.
func Decode(code uint32, m Mapping) LabelSet {
	out := LabelSet{}
	for _, f := range m.Flags {
		if code&f.Bit != 0 {
			out = append(out, f.Label)
		}
	}
	if len(out) == 0 && m.Sentinel != "" {
		out = append(out, m.Sentinel)
	}
	return out
}

// DecodeDevice decodes a device status code.
func DecodeDevice(code uint32) LabelSet { return Decode(code, DeviceStatusMapping) }

// DecodeAttributes decodes a device attribute code.
func DecodeAttributes(code uint32) LabelSet { return Decode(code, DeviceAttributeMapping) }

// DecodeJob decodes a job status code.
func DecodeJob(code uint32) LabelSet { return Decode(code, JobStatusMapping) }

// Online reports whether the device is not flagged offline.
func Online(code uint32) bool {
	return code&DeviceOffline == 0
}

// Ready reports whether the device has no status bits set at all.
func Ready(code uint32) bool {
	return code == 0
}
