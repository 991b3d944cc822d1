package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		verbose bool
		want    zapcore.Level
	}{
		{"defaults", "", "", false, zapcore.InfoLevel},
		{"console warn", "warn", "console", false, zapcore.WarnLevel},
		{"json error", "error", "json", false, zapcore.ErrorLevel},
		{"verbose wins", "error", "console", true, zapcore.DebugLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.level, tt.format, tt.verbose)
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.want))
			if tt.want > zapcore.DebugLevel {
				assert.False(t, logger.Core().Enabled(tt.want-1))
			}
		})
	}
}

func TestNew_Invalid(t *testing.T) {
	_, err := New("loud", "json", false)
	assert.Error(t, err)

	_, err = New("info", "xml", false)
	assert.Error(t, err)
}
