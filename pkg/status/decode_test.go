package status

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Sentinels(t *testing.T) {
	assert.Equal(t, LabelSet{"Ready"}, DecodeDevice(0))
	assert.Equal(t, LabelSet{"Queued"}, DecodeJob(0))
	assert.Empty(t, DecodeAttributes(0))
	assert.NotNil(t, DecodeAttributes(0))
}

func TestDecode_Combinations(t *testing.T) {
	tests := []struct {
		name string
		code uint32
		m    Mapping
		want LabelSet
	}{
		{"paused and error", 0x3, DeviceStatusMapping, LabelSet{"Paused", "Error"}},
		{"paper out offline", DevicePaperOut | DeviceOffline, DeviceStatusMapping, LabelSet{"Paper Out", "Offline"}},
		{"power save", DevicePowerSave, DeviceStatusMapping, LabelSet{"Power Save"}},
		{"job printing", JobPrinting, JobStatusMapping, LabelSet{"Printing"}},
		{"job spooling printing", JobSpooling | JobPrinting, JobStatusMapping, LabelSet{"Spooling", "Printing"}},
		{"job complete printed", JobComplete | JobPrinted, JobStatusMapping, LabelSet{"Printed", "Complete"}},
		{"attrs local default", AttrLocal | AttrDefault, DeviceAttributeMapping, LabelSet{"Default", "Local"}},
		{"attrs ipp wsd", AttrIPPWSD | AttrNetwork, DeviceAttributeMapping, LabelSet{"Network", "IPP/WSD"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decode(tt.code, tt.m))
		})
	}
}

func TestDecode_UnknownBitsIgnored(t *testing.T) {
	assert.Equal(t, LabelSet{"Ready"}, DecodeDevice(0x80000000))
	assert.Equal(t, LabelSet{"Paused"}, DecodeDevice(0x80000001))
	assert.Equal(t, LabelSet{"Queued"}, DecodeJob(0x00100000))
}

func TestDecode_SetMatchesBits(t *testing.T) {
	// Every known bit yields exactly its label, and OR-ing bits yields the union.
	for _, m := range []Mapping{DeviceStatusMapping, DeviceAttributeMapping, JobStatusMapping} {
		var all uint32
		for _, f := range m.Flags {
			got := Decode(f.Bit, m)
			require.Equal(t, LabelSet{f.Label}, got, "%s bit %#x", m.Name, f.Bit)
			all |= f.Bit
		}
		assert.Len(t, Decode(all, m), len(m.Flags), m.Name)
	}
}

func TestOnlineReady(t *testing.T) {
	assert.True(t, Online(0))
	assert.True(t, Ready(0))
	assert.False(t, Online(DeviceOffline))
	assert.False(t, Ready(DeviceOffline))
	assert.True(t, Online(DevicePaused))
	assert.False(t, Ready(DevicePaused))
}

func TestLabelSet_JSON(t *testing.T) {
	var nilSet LabelSet
	b, err := json.Marshal(nilSet)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(b))

	b, err = json.Marshal(LabelSet{"Paused", "Error"})
	require.NoError(t, err)
	assert.Equal(t, `["Paused","Error"]`, string(b))

	assert.True(t, LabelSet{"Paused"}.Has("Paused"))
	assert.False(t, LabelSet{"Paused"}.Has("Error"))
	assert.Equal(t, "Paused, Error", LabelSet{"Paused", "Error"}.String())
}

func TestPaperReport(t *testing.T) {
	tests := []struct {
		name string
		code uint32
		want PaperStatus
	}{
		{"clear", 0, PaperStatus{Available: true}},
		{"out", DevicePaperOut, PaperStatus{Out: true}},
		{"jam", DevicePaperJam, PaperStatus{Jammed: true}},
		{"problem", DevicePaperProblem, PaperStatus{Available: true, Low: true}},
		{"out and jam", DevicePaperOut | DevicePaperJam, PaperStatus{Out: true, Jammed: true}},
		{"unrelated bits", DevicePaused | DeviceOffline, PaperStatus{Available: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PaperReport(tt.code)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.False(t, PaperReport(0).Fault())
	assert.True(t, PaperReport(DevicePaperProblem).Fault())
	assert.True(t, PaperReport(DevicePaperOut).Fault())
}
