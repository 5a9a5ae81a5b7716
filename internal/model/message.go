package model

import (
	"fmt"
	"strings"
)

// Defaults used when a message lacks the corresponding header
const (
	DefaultSubject = "(No Subject)"
	DefaultSender  = "Unknown Sender"
)

// Encoding describes the transport encoding of a raw body part
type Encoding string

const (
	EncodingNone      Encoding = "none"
	EncodingBase64URL Encoding = "base64url"
)

// BodyPart is one text-bearing part of a message as delivered by the mailbox
type BodyPart struct {
	MimeType string   `json:"mime_type"`
	Data     string   `json:"data"`
	Encoding Encoding `json:"encoding"`
}

// AttachmentRef points at a mailbox-native attachment
type AttachmentRef struct {
	Filename     string `json:"filename"`
	AttachmentID string `json:"attachment_id"`
	MimeType     string `json:"mime_type"`
	Size         int64  `json:"size"`
}

// Message represents one fetched mailbox entry. It is created fresh on every
// fetch and never mutated afterwards.
type Message struct {
	ID             string          `json:"id"`
	Subject        string          `json:"subject"`
	Sender         string          `json:"sender"`
	Date           string          `json:"date"`
	Snippet        string          `json:"snippet"`
	Body           string          `json:"body"`
	Parts          []BodyPart      `json:"-"`
	AttachmentRefs []AttachmentRef `json:"attachment_refs"`
}

// ScanText is the text links are harvested from: snippet followed by body
func (m Message) ScanText() string {
	if m.Body == "" {
		return m.Snippet
	}
	return m.Snippet + "\n" + m.Body
}

// PromptText renders the message the way it is handed to the classifier
func (m Message) PromptText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Subject: %s\n", m.Subject)
	fmt.Fprintf(&b, "From: %s\n", m.Sender)
	fmt.Fprintf(&b, "Date: %s\n\n", m.Date)
	b.WriteString(m.ScanText())
	return b.String()
}
