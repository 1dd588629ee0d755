package logging

import (
	"bytes"
	"testing"
	"time"

	"github.com/Dans-labs/laf-fabric/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseVerbosity(t *testing.T) {
	tests := []struct {
		in      string
		want    Verbosity
		wantErr bool
	}{
		{"DETAIL", Detail, false},
		{"detail", Detail, false},
		{" info ", Normal, false},
		{"NOTHING", Silent, false},
		{"DEBUG", Debug, false},
		{"LOUD", Normal, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseVerbosity(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStampFiltersByVerbosity(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	s := NewStamp(zap.New(core), Normal)

	var sink bytes.Buffer
	s.SetSink(&sink)

	s.Emsg("bad %d", 1)
	s.Imsg("progress")
	s.Dmsg("detail hidden")
	s.Xmsg("debug hidden")

	assert.Equal(t, 2, logs.Len())
	assert.Equal(t, "bad 1", logs.All()[0].Message)
	assert.Contains(t, sink.String(), "progress\n")
	assert.NotContains(t, sink.String(), "hidden")

	s.SetVerbosity(Debug)
	s.Xmsg("now shown")
	assert.Equal(t, 3, logs.Len())
}

func TestStampElapsed(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewStamp(zap.NewNop(), Normal)
	s.now = func() time.Time { return now }
	s.Reset()

	now = now.Add(1500 * time.Millisecond)
	assert.Equal(t, 1500*time.Millisecond, s.Elapsed())

	var sink bytes.Buffer
	s.SetSink(&sink)
	s.Imsg("half way")
	assert.Equal(t, "  1.50s half way\n", sink.String())
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "  0.25s", FormatElapsed(250*time.Millisecond))
	assert.Equal(t, " 2m 05s", FormatElapsed(2*time.Minute+5*time.Second))
	assert.Equal(t, " 1h 30m", FormatElapsed(90*time.Minute))
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(config.LoggingConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	_, err = NewLogger(config.LoggingConfig{Level: "chatty", Format: "json"})
	assert.Error(t, err)
}
