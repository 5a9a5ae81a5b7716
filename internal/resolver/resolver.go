// Package resolver stages a project's files locally. Mailbox attachments are
// always downloaded; URLs are downloaded only when they look like direct file
// links and are otherwise kept as plain links.
package resolver

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"smart-card-relay-go/internal/model"
)

const (
	// MaxDownloadSize defines the maximum size of a staged file in bytes (25MB)
	MaxDownloadSize = 25 * 1024 * 1024

	// DownloadTimeout bounds a single URL download
	DownloadTimeout = 20 * time.Second

	userAgent = "Mozilla/5.0"
)

// DownloadExtensions lists URL path extensions that are fetched
var DownloadExtensions = []string{".pdf", ".png", ".jpg", ".jpeg", ".zip", ".doc", ".docx", ".xls", ".xlsx"}

// DownloadHosts lists hosts whose links are always fetched (subdomains included)
var DownloadHosts = []string{"dropbox.com"}

var reURL = regexp.MustCompile(`https?://[^\s'"<>]+`)

// AttachmentGetter fetches raw mailbox attachments
type AttachmentGetter interface {
	GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error)
}

// Resolver downloads attachments and file links into a staging folder
type Resolver struct {
	attachments AttachmentGetter
	httpClient  *http.Client
	now         func() time.Time
}

// New creates a resolver. A nil client gets the default download timeout.
func New(attachments AttachmentGetter, httpClient *http.Client) *Resolver {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DownloadTimeout}
	}
	return &Resolver{
		attachments: attachments,
		httpClient:  httpClient,
		now:         time.Now,
	}
}

// Resolve stages the message's attachments and downloadable links into dir.
// It returns the staged files and the links that were not staged. Individual
// failures are logged; they never fail the message.
func (r *Resolver) Resolve(ctx context.Context, msg model.Message, record model.ProjectRecord, dir string) ([]model.StagedFile, []string) {
	var files []model.StagedFile
	var links []string
	used := make(map[string]bool)

	for _, ref := range msg.AttachmentRefs {
		data, err := r.attachments.GetAttachment(ctx, msg.ID, ref.AttachmentID)
		if err != nil {
			logrus.Warnf("Attachment download failed (%s): %v", ref.Filename, err)
			continue
		}

		p, err := writeFile(dir, ref.Filename, data, used)
		if err != nil {
			logrus.Warnf("Failed to save attachment %s: %v", ref.Filename, err)
			continue
		}

		logrus.Infof("Saved attachment: %s", p)
		files = append(files, model.StagedFile{LocalPath: p, Source: ref.AttachmentID})
	}

	for _, u := range CandidateLinks(msg.ScanText(), record.FileLinks) {
		if !ShouldDownload(u) {
			links = append(links, u)
			continue
		}

		p, err := r.download(ctx, u, dir, used)
		if err != nil {
			logrus.Warnf("Link download failed (%s): %v", u, err)
			links = append(links, u)
			continue
		}

		logrus.Infof("Downloaded link to: %s", p)
		files = append(files, model.StagedFile{LocalPath: p, Source: u, FromURL: true})
	}

	return files, links
}

// CandidateLinks returns URLs scanned from text followed by extracted links,
// de-duplicated in first-seen order
func CandidateLinks(text string, extracted []string) []string {
	seen := make(map[string]bool)
	var out []string

	add := func(u string) {
		u = strings.TrimRight(strings.TrimSpace(u), ".,;:!?)]}")
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		out = append(out, u)
	}

	for _, u := range reURL.FindAllString(text, -1) {
		add(u)
	}
	for _, u := range extracted {
		add(u)
	}
	return out
}

// ShouldDownload reports whether a URL points at a file worth staging
func ShouldDownload(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}

	host := strings.ToLower(u.Hostname())
	for _, h := range DownloadHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}

	ext := strings.ToLower(path.Ext(u.Path))
	for _, e := range DownloadExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

func (r *Resolver) download(ctx context.Context, rawURL, dir string, used map[string]bool) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownloadSize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}
	if len(data) > MaxDownloadSize {
		return "", fmt.Errorf("file too large (max %d bytes)", MaxDownloadSize)
	}

	name := filenameFor(resp.Header.Get("Content-Disposition"), resp.Request.URL, r.now())
	return writeFile(dir, name, data, used)
}

// filenameFor picks a name from Content-Disposition, then the URL path
func filenameFor(disposition string, u *url.URL, now time.Time) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil && params["filename"] != "" {
			return params["filename"]
		}
	}
	if u != nil {
		if base := path.Base(u.Path); base != "" && base != "/" && base != "." {
			if unescaped, err := url.PathUnescape(base); err == nil {
				return unescaped
			}
			return base
		}
	}
	return "file_" + strconv.FormatInt(now.Unix(), 10)
}

// writeFile saves data under dir, creating it on first use. Names already
// used in this resolution or present on disk get a numeric suffix.
func writeFile(dir, name string, data []byte, used map[string]bool) (string, error) {
	name = SanitizeFilename(name)
	if name == "" {
		name = "attachment"
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; used[name] || fileExists(filepath.Join(dir, name)); i++ {
		name = fmt.Sprintf("%s_%d%s", stem, i, ext)
	}
	used[name] = true

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create staging folder: %w", err)
	}

	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return p, nil
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// SanitizeFilename sanitizes a filename to prevent path traversal attacks
func SanitizeFilename(filename string) string {
	filename = strings.ReplaceAll(filename, "/", "_")
	filename = strings.ReplaceAll(filename, "\\", "_")
	filename = strings.ReplaceAll(filename, "..", "_")
	return strings.TrimSpace(filename)
}
