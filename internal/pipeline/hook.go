package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// LogHook copies every log line at Info or above into the State log buffer
type LogHook struct {
	state *State
}

// NewLogHook creates a hook feeding state
func NewLogHook(state *State) *LogHook {
	return &LogHook{state: state}
}

// Levels implements logrus.Hook
func (h *LogHook) Levels() []logrus.Level {
	return []logrus.Level{
		logrus.PanicLevel,
		logrus.FatalLevel,
		logrus.ErrorLevel,
		logrus.WarnLevel,
		logrus.InfoLevel,
	}
}

// Fire implements logrus.Hook
func (h *LogHook) Fire(entry *logrus.Entry) error {
	msg := entry.Message
	if len(entry.Data) > 0 {
		keys := make([]string, 0, len(entry.Data))
		for k := range entry.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString(msg)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
		}
		msg = b.String()
	}

	h.state.AppendLog(LogEntry{
		Time:    entry.Time,
		Level:   entry.Level.String(),
		Message: msg,
	})
	return nil
}

// Clock is the time source for passes and waits
type Clock interface {
	Now() time.Time
	// Sleep waits for d or until ctx is done, returning ctx.Err() in that case
	Sleep(ctx context.Context, d time.Duration) error
}

// RealClock uses wall-clock time
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
