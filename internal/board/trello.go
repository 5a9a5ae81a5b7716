// Package board creates cards and card attachments on a Trello list.
package board

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"smart-card-relay-go/internal/apperr"
	"smart-card-relay-go/internal/config"
)

// TrelloClient is a thin client for the Trello REST API. Credentials travel
// as key and token query parameters. It does not retry; callers decide.
type TrelloClient struct {
	baseURL    string
	key        string
	token      string
	listID     string
	httpClient *http.Client
}

// NewTrelloClient creates a new Trello client
func NewTrelloClient(cfg *config.TrelloConfig, httpClient *http.Client) *TrelloClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.trello.com/1"
	}
	return &TrelloClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		key:        cfg.Key,
		token:      cfg.Token,
		listID:     cfg.ListID,
		httpClient: httpClient,
	}
}

// CreateCard creates a card on the configured list and returns its id.
// There is no idempotency key: two calls create two cards.
func (c *TrelloClient) CreateCard(ctx context.Context, title, description string) (string, error) {
	params := c.auth()
	params.Set("idList", c.listID)
	params.Set("name", title)
	params.Set("desc", description)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/cards?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req, "create_card")
	if err != nil {
		return "", err
	}

	var card struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &card); err != nil {
		return "", fmt.Errorf("failed to decode card response: %w", err)
	}
	if card.ID == "" {
		return "", fmt.Errorf("card response carried no id")
	}
	return card.ID, nil
}

// AttachFile uploads a local file to the card as a multipart "file" part
func (c *TrelloClient) AttachFile(ctx context.Context, cardID, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if name == "" {
		name = filepath.Base(path)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("name", name); err != nil {
		return fmt.Errorf("failed to write form: %w", err)
	}
	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return fmt.Errorf("failed to write form: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to write form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.attachmentsURL(cardID, nil), &buf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	_, err = c.do(req, "attach_file")
	return err
}

// AttachLink adds a URL attachment to the card
func (c *TrelloClient) AttachLink(ctx context.Context, cardID, link, name string) error {
	params := url.Values{}
	params.Set("url", link)
	if name == "" {
		name = link
	}
	params.Set("name", name)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.attachmentsURL(cardID, params), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	_, err = c.do(req, "attach_link")
	return err
}

func (c *TrelloClient) auth() url.Values {
	params := url.Values{}
	params.Set("key", c.key)
	params.Set("token", c.token)
	return params
}

func (c *TrelloClient) attachmentsURL(cardID string, extra url.Values) string {
	params := c.auth()
	for k, vs := range extra {
		for _, v := range vs {
			params.Add(k, v)
		}
	}
	return fmt.Sprintf("%s/cards/%s/attachments?%s", c.baseURL, url.PathEscape(cardID), params.Encode())
}

// do executes the request; any status other than 200 or 201 becomes a
// BoardAPIError
func (c *TrelloClient) do(req *http.Request, op string) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("board %s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read board response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, &apperr.BoardAPIError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
