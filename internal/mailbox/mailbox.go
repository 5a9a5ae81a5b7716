// Package mailbox lists recent messages from the configured mailbox and
// fetches their attachments. Gmail (REST API) and IMAP backends are provided.
package mailbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"smart-card-relay-go/internal/config"
	"smart-card-relay-go/internal/model"
)

// MaxAttachmentSize defines the maximum attachment size in bytes (25MB)
const MaxAttachmentSize = 25 * 1024 * 1024

// Reader fetches recent messages from a mailbox
type Reader interface {
	// FetchRecent returns up to max messages matching the recency predicate
	FetchRecent(ctx context.Context, max int) ([]model.Message, error)
	// GetAttachment returns the raw bytes of one attachment
	GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error)
	Close() error
}

// Query is the server-side recency predicate, evaluated at call time
type Query struct {
	Mode      string
	BaseQuery string
	Window    string
	Location  *time.Location
}

// NewQuery builds a Query from configuration
func NewQuery(cfg config.MailboxConfig) (Query, error) {
	loc, err := cfg.Location()
	if err != nil {
		return Query{}, err
	}
	return Query{
		Mode:      cfg.QueryMode,
		BaseQuery: cfg.BaseQuery,
		Window:    cfg.Window,
		Location:  loc,
	}, nil
}

// Since returns the earliest receive time the predicate admits at now
func (q Query) Since(now time.Time) time.Time {
	if q.Mode == config.QueryModeSinceMidnight {
		return midnight(now, q.location())
	}
	return now.Add(-windowDuration(q.Window))
}

// Gmail renders the predicate in Gmail search syntax
func (q Query) Gmail(now time.Time) string {
	var filter string
	if q.Mode == config.QueryModeSinceMidnight {
		filter = fmt.Sprintf("after:%d", midnight(now, q.location()).Unix())
	} else {
		window := q.Window
		if window == "" {
			window = "1d"
		}
		filter = "newer_than:" + window
	}
	return strings.TrimSpace(q.BaseQuery + " " + filter)
}

func (q Query) location() *time.Location {
	if q.Location == nil {
		return time.Local
	}
	return q.Location
}

func midnight(now time.Time, loc *time.Location) time.Time {
	t := now.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// windowDuration converts a Gmail newer_than window (e.g. 1d, 12h, 2w) into a
// duration, defaulting to one day
func windowDuration(window string) time.Duration {
	if len(window) < 2 {
		return 24 * time.Hour
	}
	var n int
	if _, err := fmt.Sscanf(window[:len(window)-1], "%d", &n); err != nil || n <= 0 {
		return 24 * time.Hour
	}
	switch window[len(window)-1] {
	case 'h':
		return time.Duration(n) * time.Hour
	case 'd':
		return time.Duration(n) * 24 * time.Hour
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour
	case 'm':
		return time.Duration(n) * 30 * 24 * time.Hour
	case 'y':
		return time.Duration(n) * 365 * 24 * time.Hour
	}
	return 24 * time.Hour
}
