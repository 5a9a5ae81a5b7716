// Package normalizer turns the raw text-bearing parts of a message into the
// plain text handed to the classifier.
package normalizer

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"smart-card-relay-go/internal/model"
)

var blankLines = regexp.MustCompile(`\n{3,}`)

// Normalize decodes every part, strips markup from HTML parts and joins the
// results in structural order. A part that fails to decode is skipped.
func Normalize(parts []model.BodyPart) string {
	var texts []string
	for i, part := range parts {
		content, err := Decode(part)
		if err != nil {
			logrus.Debugf("Skipping body part %d (%s): %v", i, part.MimeType, err)
			continue
		}

		if isHTML(part.MimeType) {
			content = HTMLToText(content)
		}

		texts = append(texts, content)
	}
	return strings.Join(texts, "\n")
}

// Decode reverses the transport encoding of a part
func Decode(part model.BodyPart) (string, error) {
	switch part.Encoding {
	case model.EncodingBase64URL:
		data, err := decodeBase64(part.Data)
		if err != nil {
			return "", err
		}
		return strings.ToValidUTF8(string(data), ""), nil
	case model.EncodingNone, "":
		return strings.ToValidUTF8(part.Data, ""), nil
	default:
		return "", fmt.Errorf("unsupported encoding %q", part.Encoding)
	}
}

// decodeBase64 accepts the base64url alphabet Gmail uses, with or without
// padding, and falls back to the standard alphabet
func decodeBase64(s string) ([]byte, error) {
	if data, err := base64.URLEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	if data, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode body data: %w", err)
	}
	return data, nil
}

func isHTML(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(mimeType), "text/html")
}

// HTMLToText returns the visible text of an HTML document. Block level
// elements are rendered as line breaks; whitespace is not preserved exactly.
func HTMLToText(doc string) string {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(doc))
	skip := 0

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return cleanup(b.String())
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if isHidden(tok.DataAtom) {
				if tt == html.StartTagToken {
					skip++
				}
				continue
			}
			if isBlock(tok.DataAtom) {
				b.WriteString("\n")
			}
		case html.EndTagToken:
			tok := z.Token()
			if isHidden(tok.DataAtom) {
				if skip > 0 {
					skip--
				}
				continue
			}
			if isBlock(tok.DataAtom) {
				b.WriteString("\n")
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			b.Write(z.Text())
		}
	}
}

func isHidden(a atom.Atom) bool {
	switch a {
	case atom.Script, atom.Style, atom.Head, atom.Title, atom.Noscript:
		return true
	}
	return false
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.Br, atom.P, atom.Div, atom.Li, atom.Tr, atom.Table, atom.Ul, atom.Ol,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.Blockquote, atom.Hr:
		return true
	}
	return false
}

func cleanup(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(strings.ReplaceAll(line, "\u00a0", " "))
	}
	out := strings.Join(lines, "\n")
	out = blankLines.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}
