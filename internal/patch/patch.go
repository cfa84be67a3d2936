// Package patch synthesizes scaffolding for missing prompt sections.
//
// Patching is append-only: the original text is always a prefix of the
// patched text, and a prompt with every section present comes back unchanged.
package patch

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dshills/promptqa/internal/detect"
	"github.com/dshills/promptqa/internal/evaluate"
	"github.com/dshills/promptqa/internal/rubric"
	"github.com/dshills/promptqa/internal/schema"
	"github.com/dshills/promptqa/internal/tmpl"
)

// Context carries the metadata the scaffolding text is built from.
type Context struct {
	Title        string
	Category     string
	SchemaKeys   []string
	Placeholders []string
}

// ContextFrom derives a patch context from a content record.
func ContextFrom(src schema.ContentSource) Context {
	keys := make([]string, 0, len(src.InputSchema))
	for k := range src.InputSchema {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return Context{
		Title:        src.Title,
		Category:     src.Category,
		SchemaKeys:   keys,
		Placeholders: tmpl.Vars(src.Body()),
	}
}

// inputs returns the union of schema keys and placeholders, sorted.
func (c Context) inputs() []string {
	seen := make(map[string]bool)
	var out []string
	for _, k := range append(append([]string{}, c.SchemaKeys...), c.Placeholders...) {
		if k != "" && !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func (c Context) subject() string {
	if t := strings.TrimSpace(c.Title); t != "" {
		return t
	}
	return "this prompt"
}

// Generate appends a scaffold for every section of r missing from c.
func Generate(r rubric.Rubric, c schema.PromptContent, ctx Context) schema.PatchResult {
	res := schema.PatchResult{
		Original:        c.Text,
		Patched:         c.Text,
		Changes:         []string{},
		IssuesAddressed: []string{},
	}
	missing := detect.Missing(r, c)
	if len(missing) == 0 {
		return res
	}

	blocks := make([]string, 0, len(missing))
	for _, name := range missing {
		blocks = append(blocks, name+":\n"+Scaffold(r, name, ctx))
		res.Changes = append(res.Changes, fmt.Sprintf("added %s section", name))
		res.IssuesAddressed = append(res.IssuesAddressed, evaluate.MissingCode(name))
	}
	res.Patched = c.Text + separator(c.Text) + strings.Join(blocks, "\n\n")
	return res
}

func separator(text string) string {
	switch {
	case text == "", strings.HasSuffix(text, "\n\n"):
		return ""
	case strings.HasSuffix(text, "\n"):
		return "\n"
	default:
		return "\n\n"
	}
}

// Scaffold returns the bracketed placeholder body for one section.
// Modality-specific text takes precedence over the shared table.
func Scaffold(r rubric.Rubric, section string, ctx Context) string {
	if section == "CONTEXT" {
		return contextScaffold(ctx)
	}
	if s, ok := byRubric[r.Name+"/"+section]; ok {
		return fill(s, ctx)
	}
	if s, ok := shared[section]; ok {
		return fill(s, ctx)
	}
	return fmt.Sprintf("[Describe the %s]", strings.ToLower(section))
}

func fill(s string, ctx Context) string {
	category := strings.TrimSpace(ctx.Category)
	if category == "" {
		category = "the subject area"
	}
	return strings.NewReplacer("%title%", ctx.subject(), "%category%", category).Replace(s)
}

func contextScaffold(ctx Context) string {
	body := "[Provide the background the model needs to complete the task]"
	in := ctx.inputs()
	if len(in) == 0 {
		return body
	}
	vars := make([]string, len(in))
	for i, k := range in {
		vars[i] = "{{" + k + "}}"
	}
	return body + "\nInputs: " + strings.Join(vars, ", ")
}

// Scaffold text must stay clear of every contradiction term and instability
// phrase, and must not start a line with a bare section alias.
var shared = map[string]string{
	"ROLE":          "[Define the role the model should take, e.g. an expert in %category%]",
	"TASK":          "[Describe the task for %title% in one or two sentences]",
	"OUTPUT FORMAT": "[Specify the structure of the response, e.g. headings, a table or named JSON fields]",
	"CONSTRAINTS":   "[List what the output must never include and any length limits]",
	"SUBJECT":       "[Describe the main subject of %title%]",
	"STYLE":         "[Name the visual style, medium and color palette]",
	"COMPOSITION":   "[Describe the framing, camera angle and layout]",
	"DETAILS":       "[List the key details, textures and lighting]",
	"ACTION":        "[Describe how the subject moves during the clip]",
	"CAMERA":        "[Describe the camera movement, e.g. a slow pan or a dolly in]",
	"SCENE":         "[Describe the location and environment around the subject]",
	"TIMING":        "[Give the clip duration in seconds and its pacing]",
}

var byRubric = map[string]string{
	"image/OUTPUT SETTINGS":      "[Give the aspect ratio, resolution and other generation parameters]",
	"image-to-video/SUBJECT":     "[Identify the subject in the source image and keep it consistent]",
	"image-to-video/STYLE":       "[Preserve the look of the source image]",
	"text-to-video/CONSTRAINTS":  "[List what the video must avoid]",
	"image-to-video/CONSTRAINTS": "[List what must stay unchanged and what the video must avoid]",
	"email/SUBJECT LINE":         "[Write a subject line under 60 characters for %title%]",
	"email/AUDIENCE":             "[Describe who receives this email]",
	"email/PURPOSE":              "[State the goal of this email]",
	"email/TONE":                 "[Describe the tone of voice]",
	"email/BODY":                 "[List the key points the email must cover]",
	"email/CALL TO ACTION":       "[State the one next step the reader should take]",
	"email/SIGNATURE":            "[Give the sender name and closing line]",
	"audio/VOICE":                "[Describe the speaker or narrator]",
	"audio/CONTENT":              "[Provide the script or lyrics for %title%]",
	"audio/STYLE":                "[Name the genre and mood]",
	"audio/TEMPO":                "[Give the tempo in BPM]",
	"audio/DURATION":             "[Give the target length in seconds]",
	"audio/OUTPUT SETTINGS":      "[Give the file format and sample rate]",
	"audio/CONSTRAINTS":          "[List what the audio must avoid]",
}
