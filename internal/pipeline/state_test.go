package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMarkSeen(t *testing.T) {
	s := NewState(Settings{DelaySeconds: 30, IntervalMinutes: 15, MaxMessages: 10})

	assert.True(t, s.MarkSeen("a"))
	assert.False(t, s.MarkSeen("a"))
	assert.True(t, s.Seen("a"))
	assert.False(t, s.Seen("b"))
	assert.Equal(t, 1, s.SeenCount())
}

func TestStateLogBufferIsBounded(t *testing.T) {
	s := NewState(Settings{})
	for i := 0; i < MaxLogEntries+25; i++ {
		s.AppendLog(LogEntry{Message: fmt.Sprintf("line %d", i)})
	}

	all := s.Logs(0)
	require.Len(t, all, MaxLogEntries)
	assert.Equal(t, "line 25", all[0].Message)
	assert.Equal(t, fmt.Sprintf("line %d", MaxLogEntries+24), all[len(all)-1].Message)

	last := s.Logs(3)
	require.Len(t, last, 3)
	assert.Equal(t, fmt.Sprintf("line %d", MaxLogEntries+22), last[0].Message)
}

func TestSettingsValidate(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		wantErr  string
	}{
		{"valid", Settings{DelaySeconds: 30, IntervalMinutes: 15, MaxMessages: 10}, ""},
		{"bounds", Settings{DelaySeconds: 5, IntervalMinutes: 180, MaxMessages: 100}, ""},
		{"delay too low", Settings{DelaySeconds: 4, IntervalMinutes: 15, MaxMessages: 10}, "delay_seconds"},
		{"delay too high", Settings{DelaySeconds: 301, IntervalMinutes: 15, MaxMessages: 10}, "delay_seconds"},
		{"interval zero", Settings{DelaySeconds: 30, IntervalMinutes: 0, MaxMessages: 10}, "interval_minutes"},
		{"max too high", Settings{DelaySeconds: 30, IntervalMinutes: 15, MaxMessages: 101}, "max_messages"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.settings.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestUpdateSettingsKeepsOldValuesOnError(t *testing.T) {
	initial := Settings{DelaySeconds: 30, IntervalMinutes: 15, MaxMessages: 10}
	s := NewState(initial)

	assert.Error(t, s.UpdateSettings(Settings{DelaySeconds: 1, IntervalMinutes: 15, MaxMessages: 10}))
	assert.Equal(t, initial, s.Settings())

	next := Settings{DelaySeconds: 10, IntervalMinutes: 5, MaxMessages: 20}
	require.NoError(t, s.UpdateSettings(next))
	assert.Equal(t, next, s.Settings())
	assert.Equal(t, 10*time.Second, s.Settings().Delay())
	assert.Equal(t, 5*time.Minute, s.Settings().Interval())
}

func TestLogHookFormatsFields(t *testing.T) {
	s := NewState(Settings{})
	logger := logrus.New()
	logger.AddHook(NewLogHook(s))

	logger.WithFields(logrus.Fields{"id": "m1", "card": "c1"}).Warn("Created")
	logger.Debug("hidden")

	logs := s.Logs(0)
	require.Len(t, logs, 1)
	assert.Equal(t, "warning", logs[0].Level)
	assert.Equal(t, "Created card=c1 id=m1", logs[0].Message)
}

func TestRealClockSleepObservesCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := RealClock{}.Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)

	assert.NoError(t, RealClock{}.Sleep(context.Background(), time.Millisecond))
}
