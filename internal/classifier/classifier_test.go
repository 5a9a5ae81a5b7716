package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-card-relay-go/internal/apperr"
	"smart-card-relay-go/internal/config"
	"smart-card-relay-go/internal/model"
)

type fakeCompleter struct {
	reply   string
	err     error
	prompts []string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

func TestParseRecord(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  model.ProjectRecord
	}{
		{
			name:  "plain json",
			reply: `{"is_project": true, "project_name": "Logo Design", "client_name": "Acme", "instructions": " Need a logo by Friday ", "due_date": "Friday", "file_links": []}`,
			want: model.ProjectRecord{
				IsProject:    true,
				ProjectName:  "Logo Design",
				ClientName:   "Acme",
				Instructions: "Need a logo by Friday",
				DueDate:      "Friday",
			},
		},
		{
			name:  "fenced with prose",
			reply: "Here you go:\n```json\n{\"is_project\": \"yes\", \"project_name\": \"Site\", \"file_links\": \"https://x.io/a.pdf\"}\n```",
			want: model.ProjectRecord{
				IsProject:   true,
				ProjectName: "Site",
				FileLinks:   []string{"https://x.io/a.pdf"},
			},
		},
		{
			name:  "not a project with nulls",
			reply: `{"is_project": false, "project_name": null, "due_date": null, "file_links": null}`,
			want:  model.ProjectRecord{IsProject: false},
		},
		{
			name:  "link list filters blanks",
			reply: `{"is_project": true, "file_links": ["https://a.io/x.zip", "", 3]}`,
			want:  model.ProjectRecord{IsProject: true, FileLinks: []string{"https://a.io/x.zip"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRecord(tt.reply)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRecordErrors(t *testing.T) {
	replies := []string{
		"I cannot help with that",
		`{"project_name": "No flag"}`,
		`{"is_project": "maybe"}`,
		`{"is_project": true,}`,
	}

	for _, reply := range replies {
		_, err := ParseRecord(reply)
		assert.True(t, apperr.IsExtraction(err), "reply %q", reply)
	}
}

func TestParseLabel(t *testing.T) {
	rec, err := ParseLabel("PROJECT: YES")
	require.NoError(t, err)
	assert.True(t, rec.IsProject)

	rec, err = ParseLabel("Thinking...\nproject: no")
	require.NoError(t, err)
	assert.False(t, rec.IsProject)

	_, err = ParseLabel("Sure!")
	assert.True(t, apperr.IsExtraction(err))
}

func TestClassifyEmbedsText(t *testing.T) {
	completer := &fakeCompleter{reply: `{"is_project": true, "project_name": "X"}`}
	c, err := New(completer, config.LLMModeExtract, "")
	require.NoError(t, err)

	rec, err := c.Classify(context.Background(), "Subject: hello")
	require.NoError(t, err)
	assert.True(t, rec.IsProject)

	require.Len(t, completer.prompts, 1)
	assert.Contains(t, completer.prompts[0], "Subject: hello")
	assert.NotContains(t, completer.prompts[0], emailPlaceholder)
}

func TestClassifyBooleanMode(t *testing.T) {
	completer := &fakeCompleter{reply: "PROJECT: NO"}
	c, err := New(completer, config.LLMModeBoolean, "")
	require.NoError(t, err)
	assert.Equal(t, config.LLMModeBoolean, c.Mode())

	rec, err := c.Classify(context.Background(), "newsletter")
	require.NoError(t, err)
	assert.False(t, rec.IsProject)
}

func TestClassifyPassesTransportErrorThrough(t *testing.T) {
	rateErr := &apperr.RateLimitedError{Service: "completion", Err: errors.New("429")}
	c, err := New(&fakeCompleter{err: rateErr}, config.LLMModeExtract, "")
	require.NoError(t, err)

	_, err = c.Classify(context.Background(), "x")
	assert.True(t, apperr.IsRateLimited(err))
	assert.False(t, apperr.IsExtraction(err))
}

func TestNewValidatesTemplate(t *testing.T) {
	_, err := New(&fakeCompleter{}, "fuzzy", "")
	assert.Error(t, err)

	_, err = New(&fakeCompleter{}, config.LLMModeExtract, "no placeholder")
	assert.Error(t, err)
}

func TestClientComplete(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"<think>hmm</think>\nPROJECT: YES"}}]}`))
	}))
	defer server.Close()

	client := NewClient(&config.LLMConfig{BaseURL: server.URL + "/", APIKey: "secret", Model: "llama-3.1-8b-instant"})
	reply, err := client.Complete(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, "PROJECT: YES", reply)
	assert.Equal(t, "llama-3.1-8b-instant", got.Model)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "hello", got.Messages[0].Content)
}

func stubServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestClientErrors(t *testing.T) {
	server := stubServer(t, http.StatusTooManyRequests, `{"error":{"message":"Rate limit reached"}}`)
	_, err := NewClient(&config.LLMConfig{BaseURL: server.URL}).Complete(context.Background(), "x")
	var rlErr *apperr.RateLimitedError
	require.ErrorAs(t, err, &rlErr)

	server = stubServer(t, http.StatusInternalServerError, "boom")
	_, err = NewClient(&config.LLMConfig{BaseURL: server.URL}).Complete(context.Background(), "x")
	require.Error(t, err)
	assert.False(t, errors.As(err, &rlErr))
	assert.True(t, strings.Contains(err.Error(), "500"))

	server = stubServer(t, http.StatusOK, `{"choices":[]}`)
	_, err = NewClient(&config.LLMConfig{BaseURL: server.URL}).Complete(context.Background(), "x")
	assert.EqualError(t, err, "empty response from model")
}
