package provider

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeviceEntry_Classification(t *testing.T) {
	tests := []struct {
		fullName string
		wantType string
		wantProt string
	}{
		{"HP LaserJet,HP Universal,Office", DeviceTypeLocal, "unknown"},
		{"WSD-1234,Brother,Lobby", DeviceTypeNetwork, "WSD"},
		{"http://print.example/ipp,Generic,IPP Printer", DeviceTypeNetwork, "IPP"},
		{"https://print.example/queue,Generic,Queue", DeviceTypeLocal, "HTTP"},
		{"IPP Everywhere,Driver,Desk", DeviceTypeLocal, "IPP"},
	}

	for _, tt := range tests {
		t.Run(tt.fullName, func(t *testing.T) {
			d := DeviceEntry{FullName: tt.fullName}
			assert.Equal(t, tt.wantType, d.Type())
			assert.Equal(t, tt.wantProt, d.Protocol())
		})
	}
}

func TestParseJobCommand(t *testing.T) {
	for _, s := range []string{"cancel", "Pause", " resume ", "RESTART"} {
		_, ok := ParseJobCommand(s)
		assert.True(t, ok, s)
	}
	_, ok := ParseJobCommand("explode")
	assert.False(t, ok)
}

func TestProviderError(t *testing.T) {
	err := &ProviderError{Op: "GetJob", Provider: KindFixture, Device: "lab", JobID: 7, Err: ErrJobNotFound}
	assert.Equal(t, "fixture GetJob: lab job 7: job not found", err.Error())
	assert.True(t, IsJobNotFound(err))
	assert.False(t, IsDeviceNotFound(err))

	err = &ProviderError{Op: "Open", Provider: KindCUPS, Device: "lab", Err: ErrDeviceNotFound}
	assert.Equal(t, "cups Open: lab: device not found", err.Error())
	assert.True(t, IsDeviceNotFound(err))

	err = &ProviderError{Op: "ListDevices", Provider: KindCUPS, Err: ErrProviderUnavailable}
	assert.Equal(t, "cups ListDevices: provider unavailable", err.Error())
	assert.True(t, IsProviderUnavailable(err))

	var pe *ProviderError
	assert.True(t, errors.As(error(err), &pe))
	assert.True(t, IsUnsupported(&ProviderError{Err: ErrUnsupportedCommand}))
	assert.True(t, IsAccessDenied(&ProviderError{Err: ErrAccessDenied}))
	assert.True(t, Handle{}.IsZero())
	assert.False(t, Handle{Device: "x", Token: 1}.IsZero())
}
