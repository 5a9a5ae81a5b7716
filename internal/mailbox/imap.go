package mailbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/sirupsen/logrus"

	// Register charset decoders for non UTF-8 messages
	_ "github.com/emersion/go-message/charset"

	"smart-card-relay-go/internal/apperr"
	"smart-card-relay-go/internal/config"
	"smart-card-relay-go/internal/model"
)

// IMAPReader implements Reader over IMAP. The connection is opened on first
// use and re-opened after a transport failure.
type IMAPReader struct {
	mu      sync.Mutex
	cfg     config.GmailConfig
	query   Query
	now     func() time.Time
	client  *client.Client
	mailbox string
}

// NewIMAPReader creates a new IMAP reader
func NewIMAPReader(cfg *config.GmailConfig, query Query) *IMAPReader {
	mailbox := cfg.IMAPMailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	return &IMAPReader{
		cfg:     *cfg,
		query:   query,
		now:     time.Now,
		mailbox: mailbox,
	}
}

// connect dials and logs in if there is no live connection. Caller holds mu.
func (r *IMAPReader) connect() (*client.Client, error) {
	if r.client != nil {
		return r.client, nil
	}

	c, err := client.DialTLS(fmt.Sprintf("%s:%d", r.cfg.IMAPHost, r.cfg.IMAPPort), nil)
	if err != nil {
		return nil, &apperr.TransportError{Op: "connect to IMAP server", Err: err}
	}

	if err := c.Login(r.cfg.IMAPUser, r.cfg.IMAPPassword); err != nil {
		c.Logout()
		return nil, &apperr.AuthenticationError{Err: fmt.Errorf("IMAP login: %w", err)}
	}

	if _, err := c.Select(r.mailbox, true); err != nil {
		c.Logout()
		return nil, &apperr.TransportError{Op: "select " + r.mailbox, Err: err}
	}

	r.client = c
	return c, nil
}

// reset drops the connection after a failure. Caller holds mu.
func (r *IMAPReader) reset() {
	if r.client != nil {
		r.client.Logout()
		r.client = nil
	}
}

// FetchRecent searches for messages received since the predicate's start and
// loads the newest max of them
func (r *IMAPReader) FetchRecent(ctx context.Context, max int) ([]model.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.connect()
	if err != nil {
		return nil, err
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = r.query.Since(r.now())

	uids, err := c.UidSearch(criteria)
	if err != nil {
		r.reset()
		return nil, &apperr.TransportError{Op: "search messages", Err: err}
	}
	if len(uids) == 0 {
		return []model.Message{}, nil
	}

	sort.Slice(uids, func(i, j int) bool { return uids[i] > uids[j] })
	if max > 0 && len(uids) > max {
		uids = uids[:max]
	}

	fetched, err := r.fetchRaw(c, uids)
	if err != nil {
		r.reset()
		return nil, err
	}

	messages := make([]model.Message, 0, len(fetched))
	for _, uid := range uids {
		raw, ok := fetched[uid]
		if !ok {
			continue
		}
		msg, _, err := parseMIMEMessage(strconv.FormatUint(uint64(uid), 10), raw)
		if err != nil {
			logrus.Warnf("Failed to parse IMAP message %d: %v", uid, err)
			continue
		}
		messages = append(messages, msg)
	}

	return messages, nil
}

// GetAttachment re-fetches the message and returns the attachment at the
// 1-based index given as attachmentID
func (r *IMAPReader) GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	uid, err := strconv.ParseUint(messageID, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid IMAP message id %q: %w", messageID, err)
	}
	index, err := strconv.Atoi(attachmentID)
	if err != nil || index < 1 {
		return nil, fmt.Errorf("invalid IMAP attachment id %q", attachmentID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.connect()
	if err != nil {
		return nil, err
	}

	fetched, err := r.fetchRaw(c, []uint32{uint32(uid)})
	if err != nil {
		r.reset()
		return nil, err
	}
	raw, ok := fetched[uint32(uid)]
	if !ok {
		return nil, fmt.Errorf("message %s not found", messageID)
	}

	_, attachments, err := parseMIMEMessage(messageID, raw)
	if err != nil {
		return nil, err
	}
	if index > len(attachments) {
		return nil, fmt.Errorf("attachment %d not found in message %s", index, messageID)
	}
	return attachments[index-1], nil
}

// fetchRaw downloads the full RFC 822 source of each uid without setting \Seen
func (r *IMAPReader) fetchRaw(c *client.Client, uids []uint32) (map[uint32][]byte, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchEnvelope, imap.FetchUid}

	ch := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, ch)
	}()

	out := make(map[uint32][]byte, len(uids))
	for msg := range ch {
		body := msg.GetBody(section)
		if body == nil {
			logrus.Warnf("IMAP message %d has no body", msg.Uid)
			continue
		}
		data, err := io.ReadAll(body)
		if err != nil {
			logrus.Warnf("Failed to read IMAP message %d: %v", msg.Uid, err)
			continue
		}
		out[msg.Uid] = data
	}

	if err := <-done; err != nil {
		return nil, &apperr.TransportError{Op: "fetch messages", Err: err}
	}
	return out, nil
}

// parseMIMEMessage walks a raw message, returning the pipeline Message and the
// attachment payloads in part order
func parseMIMEMessage(id string, raw []byte) (model.Message, [][]byte, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return model.Message{}, nil, fmt.Errorf("failed to read message: %w", err)
	}
	defer mr.Close()

	msg := model.Message{
		ID:      id,
		Subject: model.DefaultSubject,
		Sender:  model.DefaultSender,
	}
	if subject, err := mr.Header.Subject(); err == nil && subject != "" {
		msg.Subject = subject
	}
	if from := mr.Header.Get("From"); from != "" {
		msg.Sender = from
	}
	msg.Date = mr.Header.Get("Date")

	var attachments [][]byte
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return msg, attachments, fmt.Errorf("failed to read part: %w", err)
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			if !isTextPart(contentType) {
				continue
			}
			content, err := io.ReadAll(part.Body)
			if err != nil {
				return msg, attachments, fmt.Errorf("failed to read part body: %w", err)
			}
			msg.Parts = append(msg.Parts, model.BodyPart{
				MimeType: contentType,
				Data:     string(content),
				Encoding: model.EncodingNone,
			})
		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()
			data, err := io.ReadAll(io.LimitReader(part.Body, MaxAttachmentSize+1))
			if err != nil {
				return msg, attachments, fmt.Errorf("failed to read attachment: %w", err)
			}
			if len(data) > MaxAttachmentSize {
				logrus.Warnf("Skipping oversized attachment %q in message %s", filename, id)
				continue
			}
			attachments = append(attachments, data)
			msg.AttachmentRefs = append(msg.AttachmentRefs, model.AttachmentRef{
				Filename:     filename,
				AttachmentID: strconv.Itoa(len(attachments)),
				MimeType:     contentType,
				Size:         int64(len(data)),
			})
		}
	}

	msg.Snippet = snippet(msg.Parts)
	return msg, attachments, nil
}

// snippet approximates Gmail's preview from the first plain text part
func snippet(parts []model.BodyPart) string {
	for _, p := range parts {
		if strings.HasPrefix(strings.ToLower(p.MimeType), "text/plain") {
			s := strings.Join(strings.Fields(p.Data), " ")
			if r := []rune(s); len(r) > 200 {
				s = string(r[:200])
			}
			return s
		}
	}
	return ""
}

// Close logs out of the IMAP server
func (r *IMAPReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		return nil
	}
	err := r.client.Logout()
	r.client = nil
	return err
}
