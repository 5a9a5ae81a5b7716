package pipeline

import (
	"fmt"
	"sync"
	"time"

	"smart-card-relay-go/internal/model"
)

// MaxLogEntries caps the log buffer
const MaxLogEntries = 500

// Settings are the numeric knobs an operator can change while running
type Settings struct {
	DelaySeconds    int `json:"delay_seconds"`
	IntervalMinutes int `json:"interval_minutes"`
	MaxMessages     int `json:"max_messages"`
}

// Validate checks the settings against the accepted ranges
func (s Settings) Validate() error {
	if s.DelaySeconds < 5 || s.DelaySeconds > 300 {
		return fmt.Errorf("delay_seconds must be between 5 and 300")
	}
	if s.IntervalMinutes < 1 || s.IntervalMinutes > 180 {
		return fmt.Errorf("interval_minutes must be between 1 and 180")
	}
	if s.MaxMessages < 1 || s.MaxMessages > 100 {
		return fmt.Errorf("max_messages must be between 1 and 100")
	}
	return nil
}

// Delay is the wait after each inserted card and before a rate-limit retry
func (s Settings) Delay() time.Duration {
	return time.Duration(s.DelaySeconds) * time.Second
}

// Interval is the wait between passes in repeating mode
func (s Settings) Interval() time.Duration {
	return time.Duration(s.IntervalMinutes) * time.Minute
}

// LogEntry is one line of the operator-visible log
type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// State is shared between manual passes and the background worker: the dedup
// set, the log buffer, the live settings and the last pass summary.
// All access goes through its methods.
type State struct {
	mu       sync.RWMutex
	seen     map[string]struct{}
	logs     []LogEntry
	settings Settings
	last     *model.RunSummary
}

// NewState creates an empty state with the given settings
func NewState(settings Settings) *State {
	return &State{
		seen:     make(map[string]struct{}),
		settings: settings,
	}
}

// MarkSeen adds id to the dedup set. It returns false when id was already there.
func (s *State) MarkSeen(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	return true
}

// Seen reports whether id is in the dedup set
func (s *State) Seen(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[id]
	return ok
}

// SeenCount returns the size of the dedup set
func (s *State) SeenCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}

// AppendLog adds an entry, dropping the oldest beyond MaxLogEntries
func (s *State) AppendLog(entry LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
	if over := len(s.logs) - MaxLogEntries; over > 0 {
		s.logs = append(s.logs[:0:0], s.logs[over:]...)
	}
}

// Logs returns up to n of the newest entries, oldest first. n <= 0 means all.
func (s *State) Logs(n int) []LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if n > 0 && len(s.logs) > n {
		start = len(s.logs) - n
	}
	out := make([]LogEntry, len(s.logs)-start)
	copy(out, s.logs[start:])
	return out
}

// Settings returns the current settings
func (s *State) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// UpdateSettings validates and replaces the settings. A running pass keeps
// the values it started with.
func (s *State) UpdateSettings(settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	return nil
}

// LastSummary returns the summary of the most recent finished pass
func (s *State) LastSummary() (model.RunSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return model.RunSummary{}, false
	}
	return *s.last, true
}

func (s *State) setLastSummary(summary model.RunSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &summary
}
