// Package pipeline runs one pass of the email-to-card flow: fetch recent
// messages, skip the ones already seen, and turn each project message into a
// board card with its files attached.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"smart-card-relay-go/internal/apperr"
	"smart-card-relay-go/internal/composer"
	"smart-card-relay-go/internal/metrics"
	"smart-card-relay-go/internal/model"
	"smart-card-relay-go/internal/normalizer"
)

// Triggers recorded on each pass
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
)

// Pass outcomes
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeStopped   = "stopped"
)

// Mailbox lists recent messages
type Mailbox interface {
	FetchRecent(ctx context.Context, max int) ([]model.Message, error)
}

// Classifier decides whether a message is a project and extracts its fields
type Classifier interface {
	Classify(ctx context.Context, text string) (model.ProjectRecord, error)
}

// Resolver stages attachments and downloadable links into a folder
type Resolver interface {
	Resolve(ctx context.Context, msg model.Message, record model.ProjectRecord, dir string) ([]model.StagedFile, []string)
}

// Board creates cards and attaches files or links to them
type Board interface {
	CreateCard(ctx context.Context, title, description string) (string, error)
	AttachFile(ctx context.Context, cardID, path, name string) error
	AttachLink(ctx context.Context, cardID, link, name string) error
}

// Audit keeps a history of card outcomes and passes
type Audit interface {
	RecordCard(entry *model.CardLog) error
	RecordPass(entry *model.PassLog) error
}

type noopAudit struct{}

func (noopAudit) RecordCard(*model.CardLog) error { return nil }
func (noopAudit) RecordPass(*model.PassLog) error { return nil }

// Deps are the collaborators of a Pipeline. Audit, Metrics and Clock are optional.
type Deps struct {
	Mailbox    Mailbox
	Classifier Classifier
	Resolver   Resolver
	Board      Board
	Audit      Audit
	Metrics    *metrics.Metrics
	State      *State
	Clock      Clock
	StagingDir string
}

// Pipeline runs passes. Passes never overlap.
type Pipeline struct {
	mailbox    Mailbox
	classifier Classifier
	resolver   Resolver
	board      Board
	audit      Audit
	metrics    *metrics.Metrics
	state      *State
	clock      Clock
	stagingDir string

	passMu sync.Mutex
}

// New creates a pipeline
func New(deps Deps) *Pipeline {
	p := &Pipeline{
		mailbox:    deps.Mailbox,
		classifier: deps.Classifier,
		resolver:   deps.Resolver,
		board:      deps.Board,
		audit:      deps.Audit,
		metrics:    deps.Metrics,
		state:      deps.State,
		clock:      deps.Clock,
		stagingDir: deps.StagingDir,
	}
	if p.audit == nil {
		p.audit = noopAudit{}
	}
	if p.clock == nil {
		p.clock = RealClock{}
	}
	if p.state == nil {
		p.state = NewState(Settings{DelaySeconds: 30, IntervalMinutes: 15, MaxMessages: 10})
	}
	return p
}

// State returns the shared state
func (p *Pipeline) State() *State {
	return p.state
}

// Interval returns the current wait between passes in repeating mode
func (p *Pipeline) Interval() time.Duration {
	return p.state.Settings().Interval()
}

// Clock returns the pipeline's time source
func (p *Pipeline) Clock() Clock {
	return p.clock
}

// messageOutcome is the single result counted for one processed message
type messageOutcome int

const (
	outcomeInserted messageOutcome = iota
	outcomeNotProject
	outcomeFailed
)

// RunOnce executes one pass. A fetch failure aborts the pass and is returned.
// When ctx is cancelled between messages or during a wait the pass stops and
// ctx.Err() is returned with the partial summary.
func (p *Pipeline) RunOnce(ctx context.Context, trigger string) (model.RunSummary, error) {
	p.passMu.Lock()
	defer p.passMu.Unlock()

	settings := p.state.Settings()
	summary := model.RunSummary{RunID: uuid.NewString(), Trigger: trigger, StartedAt: p.clock.Now()}

	logrus.WithField("run_id", summary.RunID).Infof("Starting %s pass (max %d messages)", trigger, settings.MaxMessages)

	messages, err := p.mailbox.FetchRecent(ctx, settings.MaxMessages)
	if err != nil {
		summary.Errors++
		err = fmt.Errorf("failed to fetch messages: %w", err)
		logrus.Errorf("Pass aborted: %v", err)
		return p.finish(summary, OutcomeFailed, err), err
	}

	summary.Fetched = len(messages)
	logrus.Infof("Fetched %d messages", len(messages))

	for i, msg := range messages {
		if err := ctx.Err(); err != nil {
			logrus.Warn("Pass stopped before all messages were processed")
			return p.finish(summary, OutcomeStopped, err), err
		}

		// Marked before classification: a message that fails is not retried.
		if !p.state.MarkSeen(msg.ID) {
			logrus.Debugf("Message %s already processed, skipping", msg.ID)
			summary.Skipped++
			continue
		}
		summary.Processed++
		if p.metrics != nil {
			p.metrics.ProcessedIDs.Set(float64(p.state.SeenCount()))
		}

		switch p.processMessage(ctx, summary.RunID, msg, settings) {
		case outcomeInserted:
			summary.Inserted++
			if i < len(messages)-1 {
				if err := p.clock.Sleep(ctx, settings.Delay()); err != nil {
					logrus.Warn("Pass stopped during delay")
					return p.finish(summary, OutcomeStopped, err), err
				}
			}
		case outcomeNotProject:
			summary.Skipped++
		case outcomeFailed:
			summary.Errors++
		}
	}

	return p.finish(summary, OutcomeCompleted, nil), nil
}

func (p *Pipeline) finish(summary model.RunSummary, outcome string, err error) model.RunSummary {
	summary.FinishedAt = p.clock.Now()

	logrus.WithField("run_id", summary.RunID).Infof("Pass %s: %s", outcome, summary)

	p.state.setLastSummary(summary)
	if p.metrics != nil {
		p.metrics.ObservePass(summary, outcome)
	}

	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	entry := summary.PassLog(errMsg)
	if auditErr := p.audit.RecordPass(&entry); auditErr != nil {
		logrus.Warnf("Failed to record pass: %v", auditErr)
	}
	return summary
}

// processMessage runs one message through classification, staging, card
// creation and attachment. Once started it is not interrupted by ctx; only
// the rate-limit wait observes cancellation.
func (p *Pipeline) processMessage(ctx context.Context, runID string, msg model.Message, settings Settings) messageOutcome {
	callCtx := context.WithoutCancel(ctx)

	if msg.Body == "" {
		msg.Body = normalizer.Normalize(msg.Parts)
	}

	record, err := p.classify(ctx, callCtx, msg, settings)
	if err != nil {
		logrus.Errorf("AI extraction error for %q: %v", msg.Subject, err)
		p.recordCard(runID, msg, "", "", model.CardStatusFailed, err, 0, 0)
		return outcomeFailed
	}

	if !record.IsProject {
		logrus.Infof("Not a project: %s", msg.Subject)
		p.recordCard(runID, msg, "", "", model.CardStatusNotProject, nil, 0, 0)
		return outcomeNotProject
	}

	title := composer.Title(record, msg)
	folder := filepath.Join(p.stagingDir, composer.FolderName(title))
	if abs, err := filepath.Abs(folder); err == nil {
		folder = abs
	}

	files, links := p.resolver.Resolve(callCtx, msg, record, filepath.Join(folder, "attachments"))
	if p.metrics != nil {
		p.metrics.StagedFiles.Add(float64(len(files)))
	}

	title, description := composer.Compose(record, files, links, msg, folder)

	cardID, err := p.createCard(ctx, callCtx, title, description, settings)
	if err != nil {
		logrus.Errorf("Failed to create Trello card %q: %v", title, err)
		p.recordCard(runID, msg, title, "", model.CardStatusFailed, err, len(files), len(links))
		return outcomeFailed
	}
	logrus.Infof("Created Trello card: %s (id=%s)", title, cardID)

	if err := p.attach(callCtx, cardID, files, links); err != nil {
		p.recordCard(runID, msg, title, cardID, model.CardStatusInserted, err, len(files), len(links))
		return outcomeInserted
	}

	p.recordCard(runID, msg, title, cardID, model.CardStatusInserted, nil, len(files), len(links))
	return outcomeInserted
}

// classify calls the classifier, retrying exactly once after the configured
// delay when the failure is rate limiting. A failed retry is an extraction error.
func (p *Pipeline) classify(ctx, callCtx context.Context, msg model.Message, settings Settings) (model.ProjectRecord, error) {
	text := msg.PromptText()

	record, err := p.classifier.Classify(callCtx, text)
	if err == nil || !apperr.IsRateLimited(err) {
		return record, err
	}

	logrus.Warnf("Rate limit detected. Waiting %s then retrying extraction.", settings.Delay())
	if p.metrics != nil {
		p.metrics.RateLimitRetries.Inc()
	}
	if sleepErr := p.clock.Sleep(ctx, settings.Delay()); sleepErr != nil {
		return model.ProjectRecord{}, &apperr.ExtractionError{Reason: "retry cancelled", Err: err}
	}

	record, err = p.classifier.Classify(callCtx, text)
	if err != nil {
		var extErr *apperr.ExtractionError
		if errors.As(err, &extErr) {
			return model.ProjectRecord{}, err
		}
		return model.ProjectRecord{}, &apperr.ExtractionError{Reason: "retry failed", Err: err}
	}
	return record, nil
}

// createCard retries once after the delay when the board reports rate limiting
func (p *Pipeline) createCard(ctx, callCtx context.Context, title, description string, settings Settings) (string, error) {
	cardID, err := p.board.CreateCard(callCtx, title, description)
	if err == nil || !apperr.IsRateLimited(err) {
		return cardID, err
	}

	logrus.Warnf("Board rate limit detected. Waiting %s then retrying card creation.", settings.Delay())
	if p.metrics != nil {
		p.metrics.RateLimitRetries.Inc()
	}
	if sleepErr := p.clock.Sleep(ctx, settings.Delay()); sleepErr != nil {
		return "", err
	}
	return p.board.CreateCard(callCtx, title, description)
}

// attach adds staged files to the card, or the unresolved links when nothing
// was staged. Each attachment is tried on its own; the failures are joined.
func (p *Pipeline) attach(ctx context.Context, cardID string, files []model.StagedFile, links []string) error {
	var errs []error
	if len(files) > 0 {
		for _, f := range files {
			if err := p.board.AttachFile(ctx, cardID, f.LocalPath, filepath.Base(f.LocalPath)); err != nil {
				logrus.Errorf("Failed to attach file %s to card %s: %v", f.LocalPath, cardID, err)
				errs = append(errs, fmt.Errorf("attach file %s: %w", f.LocalPath, err))
				continue
			}
			logrus.Infof("Attached file to Trello: %s", f.LocalPath)
		}
		return errors.Join(errs...)
	}

	for _, link := range links {
		if err := p.board.AttachLink(ctx, cardID, link, link); err != nil {
			logrus.Errorf("Failed to attach link %s to card %s: %v", link, cardID, err)
			errs = append(errs, fmt.Errorf("attach link %s: %w", link, err))
			continue
		}
		logrus.Infof("Attached link to Trello: %s", link)
	}
	return errors.Join(errs...)
}

func (p *Pipeline) recordCard(runID string, msg model.Message, title, cardID, status string, err error, files, links int) {
	entry := &model.CardLog{
		RunID:     runID,
		MessageID: msg.ID,
		Subject:   msg.Subject,
		Title:     title,
		CardID:    cardID,
		Status:    status,
		Files:     files,
		Links:     links,
		CreatedAt: p.clock.Now(),
	}
	if err != nil {
		entry.ErrorMsg = err.Error()
	}
	if auditErr := p.audit.RecordCard(entry); auditErr != nil {
		logrus.Warnf("Failed to record card outcome for %s: %v", msg.ID, auditErr)
	}
}
