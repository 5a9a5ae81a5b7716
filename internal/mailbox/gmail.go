package mailbox

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"smart-card-relay-go/internal/apperr"
	"smart-card-relay-go/internal/config"
	"smart-card-relay-go/internal/model"
)

// GmailReader implements Reader using the Gmail API
type GmailReader struct {
	service   *gmail.Service
	userEmail string
	query     Query
	now       func() time.Time
	authErr   error
}

// NewGmailReader creates a Gmail API reader from a stored refresh token.
// Without a refresh token the reader is still returned, and every call on it
// fails with an authentication error.
func NewGmailReader(ctx context.Context, cfg *config.GmailConfig, query Query, opts ...option.ClientOption) (*GmailReader, error) {
	userEmail := cfg.UserEmail
	if userEmail == "" {
		userEmail = "me"
	}

	if cfg.RefreshToken == "" {
		logrus.Warn("No Gmail refresh token configured; passes will fail until one is set")
		return &GmailReader{
			userEmail: userEmail,
			query:     query,
			now:       time.Now,
			authErr:   &apperr.AuthenticationError{Err: errors.New("no Gmail refresh token configured")},
		}, nil
	}

	oauth2Config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       []string{gmail.GmailReadonlyScope},
		Endpoint:     google.Endpoint,
	}
	tokenSource := oauth2Config.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	opts = append([]option.ClientOption{option.WithTokenSource(tokenSource)}, opts...)
	service, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &GmailReader{
		service:   service,
		userEmail: userEmail,
		query:     query,
		now:       time.Now,
	}, nil
}

// FetchRecent lists the messages matching the recency predicate and loads
// each one in full
func (r *GmailReader) FetchRecent(ctx context.Context, max int) ([]model.Message, error) {
	if r.authErr != nil {
		return nil, r.authErr
	}
	q := r.query.Gmail(r.now())

	response, err := r.service.Users.Messages.List(r.userEmail).
		Q(q).
		MaxResults(int64(max)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classifyError("list messages", err)
	}

	logrus.WithFields(logrus.Fields{
		"query": q,
		"count": len(response.Messages),
	}).Debug("Listed recent messages")

	messages := make([]model.Message, 0, len(response.Messages))
	for _, ref := range response.Messages {
		full, err := r.service.Users.Messages.Get(r.userEmail, ref.Id).
			Format("full").
			Context(ctx).
			Do()
		if err != nil {
			err = classifyError("get message", err)
			if apperr.IsAuthentication(err) || ctx.Err() != nil {
				return nil, err
			}
			logrus.Warnf("Failed to get message %s: %v", ref.Id, err)
			continue
		}

		messages = append(messages, parseGmailMessage(full))
	}

	return messages, nil
}

// GetAttachment downloads one attachment and decodes its payload
func (r *GmailReader) GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	if r.authErr != nil {
		return nil, r.authErr
	}
	body, err := r.service.Users.Messages.Attachments.Get(r.userEmail, messageID, attachmentID).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classifyError("get attachment", err)
	}

	if body.Size > MaxAttachmentSize {
		return nil, fmt.Errorf("attachment too large: %d bytes (max %d)", body.Size, MaxAttachmentSize)
	}

	return decodeAttachment(body.Data)
}

// Close closes the Gmail reader
func (r *GmailReader) Close() error {
	// Gmail API service doesn't need explicit closing
	return nil
}

// parseGmailMessage converts a full Gmail message into the pipeline's Message
func parseGmailMessage(msg *gmail.Message) model.Message {
	out := model.Message{
		ID:      msg.Id,
		Subject: model.DefaultSubject,
		Sender:  model.DefaultSender,
		Snippet: msg.Snippet,
	}

	if msg.Payload == nil {
		return out
	}

	headers := make(map[string]string, len(msg.Payload.Headers))
	for _, header := range msg.Payload.Headers {
		headers[strings.ToLower(header.Name)] = header.Value
	}
	if v := headers["subject"]; v != "" {
		out.Subject = v
	}
	if v := headers["from"]; v != "" {
		out.Sender = v
	}
	out.Date = headers["date"]

	walkParts(msg.Payload, &out)
	return out
}

// walkParts collects text parts and attachment references in structural order
func walkParts(part *gmail.MessagePart, out *model.Message) {
	if part == nil {
		return
	}

	if part.Filename != "" && part.Body != nil && part.Body.AttachmentId != "" {
		out.AttachmentRefs = append(out.AttachmentRefs, model.AttachmentRef{
			Filename:     part.Filename,
			AttachmentID: part.Body.AttachmentId,
			MimeType:     part.MimeType,
			Size:         part.Body.Size,
		})
	} else if part.Body != nil && part.Body.Data != "" && isTextPart(part.MimeType) {
		out.Parts = append(out.Parts, model.BodyPart{
			MimeType: part.MimeType,
			Data:     part.Body.Data,
			Encoding: model.EncodingBase64URL,
		})
	}

	for _, sub := range part.Parts {
		walkParts(sub, out)
	}
}

func isTextPart(mimeType string) bool {
	mimeType = strings.ToLower(mimeType)
	return strings.HasPrefix(mimeType, "text/plain") || strings.HasPrefix(mimeType, "text/html")
}

// decodeAttachment decodes Gmail's URL-safe base64, padded or not, with a
// standard fallback
func decodeAttachment(data string) ([]byte, error) {
	if decoded, err := base64.URLEncoding.DecodeString(data); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return decoded, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode attachment data: %w", err)
	}
	return decoded, nil
}

// classifyError maps Gmail client failures onto the shared error kinds
func classifyError(op string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return &apperr.AuthenticationError{Err: err}
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
		return &apperr.AuthenticationError{Err: err}
	}

	return &apperr.TransportError{Op: op, Err: err}
}
