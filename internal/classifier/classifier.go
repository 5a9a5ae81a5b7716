// Package classifier asks a language model whether a message describes a
// project and extracts the project fields from its reply.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"smart-card-relay-go/internal/apperr"
	"smart-card-relay-go/internal/config"
	"smart-card-relay-go/internal/model"
)

// DefaultExtractTemplate asks for a JSON record. {email} is replaced with the
// message text.
const DefaultExtractTemplate = `You are an assistant that extracts structured project information from an email message.
Return JSON only with keys:
{
  "is_project": true/false,
  "project_name": "string (project title or subject)",
  "client_name": "string (client name or sender name/email)",
  "instructions": "string (cleaned main request/instructions)",
  "due_date": "string or empty",
  "file_links": ["list","of","urls"]
}

Email:
{email}
`

// DefaultBooleanTemplate asks for a single fixed label
const DefaultBooleanTemplate = `You decide whether an email describes a new project or work request for us.
Answer with exactly one line: "PROJECT: YES" or "PROJECT: NO".

Email:
{email}
`

const emailPlaceholder = "{email}"

// Classifier turns message text into a ProjectRecord. It keeps no state
// between calls; retry policy belongs to the caller.
type Classifier struct {
	completer Completer
	mode      string
	template  string
}

// New creates a classifier for the given mode. An empty template selects
// the default for that mode.
func New(completer Completer, mode, template string) (*Classifier, error) {
	switch mode {
	case config.LLMModeExtract:
		if template == "" {
			template = DefaultExtractTemplate
		}
	case config.LLMModeBoolean:
		if template == "" {
			template = DefaultBooleanTemplate
		}
	default:
		return nil, fmt.Errorf("unknown classifier mode %q", mode)
	}

	if !strings.Contains(template, emailPlaceholder) {
		return nil, fmt.Errorf("prompt template must contain %s", emailPlaceholder)
	}

	return &Classifier{completer: completer, mode: mode, template: template}, nil
}

// Mode returns the configured classifier mode
func (c *Classifier) Mode() string {
	return c.mode
}

// Classify sends text to the completion service and parses the reply.
// Transport failures are returned as is so the caller can detect rate
// limiting; unusable replies are returned as ExtractionError.
func (c *Classifier) Classify(ctx context.Context, text string) (model.ProjectRecord, error) {
	prompt := strings.ReplaceAll(c.template, emailPlaceholder, text)

	reply, err := c.completer.Complete(ctx, prompt)
	if err != nil {
		return model.ProjectRecord{}, err
	}

	if c.mode == config.LLMModeBoolean {
		return ParseLabel(reply)
	}
	return ParseRecord(reply)
}

var reLabel = regexp.MustCompile(`(?i)\bPROJECT\s*:\s*(YES|NO)\b`)

// ParseLabel reads a "PROJECT: YES|NO" reply
func ParseLabel(reply string) (model.ProjectRecord, error) {
	m := reLabel.FindStringSubmatch(reply)
	if m == nil {
		return model.ProjectRecord{}, &apperr.ExtractionError{Reason: "missing PROJECT label", Raw: reply}
	}
	return model.ProjectRecord{IsProject: strings.EqualFold(m[1], "yes")}, nil
}

// ParseRecord reads the JSON record out of a reply, tolerating markdown
// fences and prose around the object
func ParseRecord(reply string) (model.ProjectRecord, error) {
	obj, ok := extractObject(reply)
	if !ok {
		return model.ProjectRecord{}, &apperr.ExtractionError{Reason: "no JSON object in reply", Raw: reply}
	}

	var raw struct {
		IsProject    *flexBool  `json:"is_project"`
		ProjectName  flexString `json:"project_name"`
		ClientName   flexString `json:"client_name"`
		Instructions flexString `json:"instructions"`
		DueDate      flexString `json:"due_date"`
		FileLinks    flexList   `json:"file_links"`
	}
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return model.ProjectRecord{}, &apperr.ExtractionError{Reason: "invalid JSON", Raw: reply, Err: err}
	}
	if raw.IsProject == nil {
		return model.ProjectRecord{}, &apperr.ExtractionError{Reason: "missing is_project", Raw: reply}
	}

	return model.ProjectRecord{
		IsProject:    bool(*raw.IsProject),
		ProjectName:  strings.TrimSpace(string(raw.ProjectName)),
		ClientName:   strings.TrimSpace(string(raw.ClientName)),
		Instructions: strings.TrimSpace(string(raw.Instructions)),
		DueDate:      strings.TrimSpace(string(raw.DueDate)),
		FileLinks:    []string(raw.FileLinks),
	}, nil
}

// extractObject returns the text from the first '{' to the last '}'
func extractObject(reply string) (string, bool) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return reply[start : end+1], true
}

// flexBool accepts true/false as JSON booleans or as strings such as "yes"
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	var v bool
	if err := json.Unmarshal(data, &v); err == nil {
		*b = flexBool(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("is_project is neither bool nor string: %s", data)
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "1":
		*b = true
	case "false", "no", "n", "0", "":
		*b = false
	default:
		return fmt.Errorf("unrecognised is_project value %q", s)
	}
	return nil
}

// flexString accepts strings and renders null or other scalars as text
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case nil:
		*s = ""
	case string:
		*s = flexString(t)
	default:
		*s = flexString(strings.TrimSpace(string(data)))
	}
	return nil
}

// flexList accepts a list of strings or a single string
type flexList []string

func (l *flexList) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	var out []string
	switch t := v.(type) {
	case nil:
	case string:
		if s := strings.TrimSpace(t); s != "" {
			out = append(out, s)
		}
	case []interface{}:
		for _, item := range t {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	default:
		return fmt.Errorf("file_links has unexpected type %T", v)
	}
	*l = out
	return nil
}
