// Package schema defines the canonical data types shared by the prompt QA,
// asset, rendering and repair packages.
package schema

// Modality is the output medium a prompt targets.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
	ModalityVideo Modality = "video"
	ModalityEmail Modality = "email"
	ModalityAudio Modality = "audio"
)

// Subtype refines a modality. Only video has subtypes.
type Subtype string

const (
	SubtypeNone         Subtype = ""
	SubtypeTextToVideo  Subtype = "text-to-video"
	SubtypeImageToVideo Subtype = "image-to-video"
)

// ParseModality converts a string to a Modality constant. The second return
// value is false for unrecognized values.
func ParseModality(s string) (Modality, bool) {
	switch Modality(s) {
	case ModalityText, ModalityImage, ModalityVideo, ModalityEmail, ModalityAudio:
		return Modality(s), true
	}
	return "", false
}

// IssueLevel is the severity of a QA issue.
type IssueLevel string

const (
	IssueError   IssueLevel = "error"
	IssueWarning IssueLevel = "warning"
)

// Level is the QA classification of a prompt.
type Level string

const (
	LevelDraft    Level = "draft"
	LevelVerified Level = "verified"
)

// VerifiedThreshold is the minimum score for the verified level.
const VerifiedThreshold = 85

// QaIssue is a single finding produced by an evaluator. Errors block the
// verified level; warnings are advisory.
type QaIssue struct {
	Level   IssueLevel `json:"level"`
	Code    string     `json:"code"`
	Message string     `json:"message"`
}

// QaResult is the unified evaluator output. It is a value object recomputed
// on every call.
type QaResult struct {
	Level     Level           `json:"level"`
	Score     int             `json:"score"`
	Issues    []QaIssue       `json:"issues"`
	Checks    map[string]bool `json:"checks"`
	Breakdown map[string]int  `json:"breakdown"`
	Modality  Modality        `json:"modality"`
	Subtype   Subtype         `json:"subtype,omitempty"`
}

// HasErrors reports whether any issue is error-level.
func (r QaResult) HasErrors() bool {
	for _, is := range r.Issues {
		if is.Level == IssueError {
			return true
		}
	}
	return false
}

// Section is a labeled region of a prompt supplied separately from the raw text.
type Section struct {
	Label string `json:"label"`
	Body  string `json:"body"`
}

// PromptContent is raw template text plus an optional ordered list of
// labeled sections.
type PromptContent struct {
	Text     string    `json:"text"`
	Sections []Section `json:"sections,omitempty"`
}

// ContentType distinguishes single prompts from multi-step workflows.
type ContentType string

const (
	ContentPrompt   ContentType = "prompt"
	ContentWorkflow ContentType = "workflow"
)

// ContentSource is the read-only record the router classifies.
type ContentSource struct {
	ID          string                 `json:"id"`
	Title       string                 `json:"title"`
	Description string                 `json:"description,omitempty"`
	Tags        []string               `json:"tags,omitempty"`
	Category    string                 `json:"category,omitempty"`
	Type        ContentType            `json:"type,omitempty"`
	Template    string                 `json:"template,omitempty"`
	Code        string                 `json:"code,omitempty"`
	Sections    []Section              `json:"sections,omitempty"`
	InputSchema map[string]interface{} `json:"input_schema,omitempty"`
}

// Body returns the text the evaluators should inspect. Workflows without a
// template fall back to their code text.
func (c ContentSource) Body() string {
	if c.Template == "" && c.Type == ContentWorkflow {
		return c.Code
	}
	return c.Template
}

// PatchResult records an append-only repair of prompt text. Patched always
// starts with Original.
type PatchResult struct {
	Original        string   `json:"original"`
	Patched         string   `json:"patched"`
	Changes         []string `json:"changes"`
	IssuesAddressed []string `json:"issues_addressed"`
}

// Changed reports whether the patch appended anything.
func (p PatchResult) Changed() bool {
	return len(p.Changes) > 0
}

// Role tags a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single role-tagged chat message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// OutputFormat is the expected shape of a model response.
type OutputFormat string

const (
	FormatText       OutputFormat = "text"
	FormatMarkdown   OutputFormat = "markdown"
	FormatBlocks     OutputFormat = "blocks"
	FormatJSON       OutputFormat = "json"
	FormatStructured OutputFormat = "structured"
)

// IsStructured reports whether f requires JSON parsing.
func (f OutputFormat) IsStructured() bool {
	return f == FormatJSON || f == FormatStructured
}

// ExecutionConfig carries the model call parameters assembled by the renderer.
type ExecutionConfig struct {
	Provider     string       `json:"provider,omitempty"`
	Model        string       `json:"model,omitempty"`
	Temperature  float64      `json:"temperature"`
	MaxTokens    int          `json:"max_tokens,omitempty"`
	OutputFormat OutputFormat `json:"output_format"`
}

// ModelResponse is what the invocation boundary returns.
type ModelResponse struct {
	RawText string `json:"raw_text"`
}
