package mailbox

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	"smart-card-relay-go/internal/apperr"
	"smart-card-relay-go/internal/config"
	"smart-card-relay-go/internal/model"
)

func TestQueryGmail(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	now := time.Date(2024, 3, 10, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		query Query
		want  string
	}{
		{
			name:  "newer than default",
			query: Query{Mode: config.QueryModeNewerThan, BaseQuery: "in:inbox", Window: "1d"},
			want:  "in:inbox newer_than:1d",
		},
		{
			name:  "newer than empty window",
			query: Query{Mode: config.QueryModeNewerThan, BaseQuery: "in:inbox"},
			want:  "in:inbox newer_than:1d",
		},
		{
			name:  "since midnight",
			query: Query{Mode: config.QueryModeSinceMidnight, BaseQuery: "in:inbox", Location: loc},
			want:  fmt.Sprintf("in:inbox after:%d", time.Date(2024, 3, 10, 0, 0, 0, 0, loc).Unix()),
		},
		{
			name:  "no base query",
			query: Query{Mode: config.QueryModeNewerThan, Window: "12h"},
			want:  "newer_than:12h",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.query.Gmail(now))
		})
	}
}

func TestQuerySince(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 30, 0, 0, time.UTC)

	q := Query{Mode: config.QueryModeNewerThan, Window: "2d"}
	assert.Equal(t, now.Add(-48*time.Hour), q.Since(now))

	q = Query{Mode: config.QueryModeNewerThan, Window: "garbage"}
	assert.Equal(t, now.Add(-24*time.Hour), q.Since(now))

	q = Query{Mode: config.QueryModeSinceMidnight, Location: time.UTC}
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), q.Since(now))
}

func TestNewQueryRejectsBadTimezone(t *testing.T) {
	_, err := NewQuery(config.MailboxConfig{QueryMode: config.QueryModeNewerThan, Timezone: "Not/AZone"})
	assert.Error(t, err)

	q, err := NewQuery(config.MailboxConfig{QueryMode: config.QueryModeSinceMidnight, Timezone: "UTC", BaseQuery: "in:inbox"})
	require.NoError(t, err)
	assert.Equal(t, time.UTC, q.Location)
}

func b64(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func TestParseGmailMessage(t *testing.T) {
	msg := &gmail.Message{
		Id:      "18c1",
		Snippet: "Please see the brief",
		Payload: &gmail.MessagePart{
			MimeType: "multipart/mixed",
			Headers: []*gmail.MessagePartHeader{
				{Name: "SUBJECT", Value: "Re: Logo Design"},
				{Name: "From", Value: "Ana <ana@example.com>"},
				{Name: "Date", Value: "Mon, 4 Mar 2024 10:00:00 +0000"},
			},
			Parts: []*gmail.MessagePart{
				{
					MimeType: "multipart/alternative",
					Parts: []*gmail.MessagePart{
						{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64("plain body")}},
						{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: b64("<p>html body</p>")}},
					},
				},
				{
					MimeType: "application/pdf",
					Filename: "brief.pdf",
					Body:     &gmail.MessagePartBody{AttachmentId: "att-1", Size: 1234},
				},
				{MimeType: "image/png", Body: &gmail.MessagePartBody{Data: b64("inline image")}},
			},
		},
	}

	got := parseGmailMessage(msg)

	assert.Equal(t, "18c1", got.ID)
	assert.Equal(t, "Re: Logo Design", got.Subject)
	assert.Equal(t, "Ana <ana@example.com>", got.Sender)
	assert.Equal(t, "Mon, 4 Mar 2024 10:00:00 +0000", got.Date)
	assert.Equal(t, "Please see the brief", got.Snippet)

	require.Len(t, got.Parts, 2)
	assert.Equal(t, "text/plain", got.Parts[0].MimeType)
	assert.Equal(t, "text/html", got.Parts[1].MimeType)
	assert.Equal(t, model.EncodingBase64URL, got.Parts[0].Encoding)

	require.Len(t, got.AttachmentRefs, 1)
	assert.Equal(t, model.AttachmentRef{
		Filename:     "brief.pdf",
		AttachmentID: "att-1",
		MimeType:     "application/pdf",
		Size:         1234,
	}, got.AttachmentRefs[0])
}

func TestParseGmailMessageDefaults(t *testing.T) {
	got := parseGmailMessage(&gmail.Message{Id: "x", Payload: &gmail.MessagePart{MimeType: "text/plain"}})
	assert.Equal(t, model.DefaultSubject, got.Subject)
	assert.Equal(t, model.DefaultSender, got.Sender)
	assert.Empty(t, got.Parts)

	got = parseGmailMessage(&gmail.Message{Id: "y"})
	assert.Equal(t, "y", got.ID)
	assert.Equal(t, model.DefaultSubject, got.Subject)
}

func TestDecodeAttachment(t *testing.T) {
	data, err := decodeAttachment(base64.URLEncoding.EncodeToString([]byte{0xfb, 0xff}))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xfb, 0xff}, data)

	data, err = decodeAttachment(base64.RawURLEncoding.EncodeToString([]byte{0xfb, 0xff}))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xfb, 0xff}, data)

	data, err = decodeAttachment(base64.StdEncoding.EncodeToString([]byte{0xfb, 0xff}))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xfb, 0xff}, data)

	_, err = decodeAttachment("%%%")
	assert.Error(t, err)
}

func TestClassifyError(t *testing.T) {
	err := classifyError("list messages", &oauth2.RetrieveError{Response: &http.Response{StatusCode: 400}})
	assert.True(t, apperr.IsAuthentication(err))

	err = classifyError("list messages", &googleapi.Error{Code: http.StatusUnauthorized})
	assert.True(t, apperr.IsAuthentication(err))

	err = classifyError("list messages", &googleapi.Error{Code: http.StatusInternalServerError})
	var transportErr *apperr.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, "list messages", transportErr.Op)

	err = classifyError("get message", errors.New("connection reset"))
	assert.ErrorAs(t, err, &transportErr)
}

func TestGmailReaderWithoutRefreshTokenFailsEachFetch(t *testing.T) {
	reader, err := NewGmailReader(context.Background(), &config.GmailConfig{ClientID: "id", ClientSecret: "secret"}, Query{})
	require.NoError(t, err)

	_, err = reader.FetchRecent(context.Background(), 10)
	assert.True(t, apperr.IsAuthentication(err))

	_, err = reader.GetAttachment(context.Background(), "m1", "a1")
	assert.True(t, apperr.IsAuthentication(err))
	assert.NoError(t, reader.Close())
}

const rawMIME = "From: Bob <bob@example.com>\r\n" +
	"Subject: Fwd: New project\r\n" +
	"Date: Tue, 5 Mar 2024 09:00:00 +0000\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=XYZ\r\n" +
	"\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Files at https://example.com/brief.pdf\r\n" +
	"--XYZ\r\n" +
	"Content-Type: application/pdf\r\n" +
	"Content-Disposition: attachment; filename=\"brief.pdf\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"JVBERi0xLjQ=\r\n" +
	"--XYZ--\r\n"

func TestParseMIMEMessage(t *testing.T) {
	msg, attachments, err := parseMIMEMessage("42", []byte(rawMIME))
	require.NoError(t, err)

	assert.Equal(t, "42", msg.ID)
	assert.Equal(t, "Fwd: New project", msg.Subject)
	assert.Equal(t, "Bob <bob@example.com>", msg.Sender)
	assert.Equal(t, "Files at https://example.com/brief.pdf", msg.Snippet)

	require.Len(t, msg.Parts, 1)
	assert.Equal(t, model.EncodingNone, msg.Parts[0].Encoding)
	assert.Contains(t, msg.Parts[0].Data, "https://example.com/brief.pdf")

	require.Len(t, msg.AttachmentRefs, 1)
	assert.Equal(t, "brief.pdf", msg.AttachmentRefs[0].Filename)
	assert.Equal(t, "1", msg.AttachmentRefs[0].AttachmentID)
	require.Len(t, attachments, 1)
	assert.Equal(t, []byte("%PDF-1.4"), attachments[0])
}
