package model

import (
	"fmt"
	"time"
)

// ProjectRecord is the classifier's structured output for one message
type ProjectRecord struct {
	IsProject    bool     `json:"is_project"`
	ProjectName  string   `json:"project_name"`
	ClientName   string   `json:"client_name"`
	Instructions string   `json:"instructions"`
	DueDate      string   `json:"due_date"`
	FileLinks    []string `json:"file_links"`
}

// StagedFile is an artifact downloaded into the staging folder
type StagedFile struct {
	LocalPath string `json:"local_path"`
	// Source is the mailbox attachment id or the URL the file came from
	Source  string `json:"source"`
	FromURL bool   `json:"from_url"`
}

// RunSummary holds the counters for one pipeline pass
type RunSummary struct {
	RunID      string    `json:"run_id"`
	Trigger    string    `json:"trigger"`
	Fetched    int       `json:"fetched"`
	Processed  int       `json:"processed"`
	Inserted   int       `json:"inserted"`
	Skipped    int       `json:"skipped"`
	Errors     int       `json:"errors"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

func (s RunSummary) String() string {
	return fmt.Sprintf("fetched=%d processed=%d inserted=%d skipped=%d errors=%d",
		s.Fetched, s.Processed, s.Inserted, s.Skipped, s.Errors)
}

// PassLog converts the summary into its audit row
func (s RunSummary) PassLog(errMsg string) PassLog {
	return PassLog{
		RunID:      s.RunID,
		Trigger:    s.Trigger,
		Fetched:    s.Fetched,
		Processed:  s.Processed,
		Inserted:   s.Inserted,
		Skipped:    s.Skipped,
		Errors:     s.Errors,
		ErrorMsg:   errMsg,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
	}
}
