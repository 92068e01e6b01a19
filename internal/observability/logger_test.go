package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{in: "", want: zapcore.InfoLevel},
		{in: "INFO", want: zapcore.InfoLevel},
		{in: "debug", want: zapcore.DebugLevel},
		{in: "trace", want: zapcore.DebugLevel},
		{in: "Warning", want: zapcore.WarnLevel},
		{in: "error", want: zapcore.ErrorLevel},
		{in: "loud", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInitCLILogger(t *testing.T) {
	orig := CLILogger
	defer func() { CLILogger = orig }()

	InitCLILogger("test", false)
	assert.False(t, CLILogger.Core().Enabled(zapcore.DebugLevel))

	InitCLILogger("test", true)
	assert.True(t, CLILogger.Core().Enabled(zapcore.DebugLevel))
}

func TestInitServerLogger(t *testing.T) {
	orig := CLILogger
	defer func() { CLILogger = orig }()

	require.NoError(t, InitServerLogger("serve", "warn", "structured"))
	assert.False(t, CLILogger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, CLILogger.Core().Enabled(zapcore.WarnLevel))

	assert.Error(t, InitServerLogger("serve", "bogus", ""))
}
