// Package composer builds the card title, description and staging folder
// name for a project message. Everything here is pure.
package composer

import (
	"path/filepath"
	"regexp"
	"strings"

	"smart-card-relay-go/internal/model"
)

// FallbackTitle is used when neither the project name nor the subject yields text
const FallbackTitle = "Unnamed Project"

// FallbackFolder is used when the title has no usable characters
const FallbackFolder = "project"

const maxFolderLen = 120

var (
	reReplyPrefix = regexp.MustCompile(`(?i)^(\s*(re|fwd|fw)\s*:\s*)+`)
	reFolderChars = regexp.MustCompile(`[^\p{L}\p{N}_\s\-.]`)
)

// CleanSubject strips leading reply and forward prefixes and trims whitespace
func CleanSubject(subject string) string {
	return strings.TrimSpace(reReplyPrefix.ReplaceAllString(subject, ""))
}

// Title picks the card title for a message
func Title(record model.ProjectRecord, msg model.Message) string {
	if name := CleanSubject(record.ProjectName); name != "" {
		return name
	}
	if subject := CleanSubject(msg.Subject); subject != "" && subject != model.DefaultSubject {
		return subject
	}
	return FallbackTitle
}

// FolderName turns a title into a single safe path segment
func FolderName(title string) string {
	name := reFolderChars.ReplaceAllString(title, "")
	name = strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
	if r := []rune(name); len(r) > maxFolderLen {
		name = string(r[:maxFolderLen])
	}
	if name == "" || name == "." || name == ".." {
		return FallbackFolder
	}
	return name
}

// Compose renders the card title and description. folder is the absolute
// staging folder path shown on the card.
func Compose(record model.ProjectRecord, files []model.StagedFile, links []string, msg model.Message, folder string) (string, string) {
	client := strings.TrimSpace(record.ClientName)
	if client == "" {
		client = msg.Sender
	}

	sections := []string{
		"Client: " + client,
		"Instructions: " + strings.TrimSpace(record.Instructions),
		"Due Date: " + strings.TrimSpace(record.DueDate),
		strings.Join(append([]string{"Links:"}, links...), "\n"),
	}

	stored := "Stored files folder: " + folder
	for _, f := range files {
		stored += "\n" + filepath.Base(f.LocalPath)
	}
	sections = append(sections, stored)

	return Title(record, msg), strings.Join(sections, "\n\n")
}
