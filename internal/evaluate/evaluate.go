// Package evaluate implements one evaluator per modality. Every evaluator
// runs the same pipeline over its rubric (detect, scan, score) and then adds
// issues and the level decision. The modality-specific behavior lives in the
// rubric tables plus an optional extra-issue hook.
package evaluate

import (
	"fmt"
	"strings"

	"github.com/dshills/promptqa/internal/detect"
	"github.com/dshills/promptqa/internal/rubric"
	"github.com/dshills/promptqa/internal/schema"
	"github.com/dshills/promptqa/internal/score"
)

// Issue codes that are not derived from a section or check name.
const (
	CodeEmptyPrompt        = "EMPTY_PROMPT"
	CodeContradiction      = "CONTRADICTION"
	CodeInstability        = "INSTABILITY_PHRASE"
	CodeEmptySection       = "EMPTY_SECTION"
	CodeSubjectLineTooLong = "SUBJECT_LINE_TOO_LONG"
	CodeTaskTooShort       = "TASK_TOO_SHORT"
)

// MaxSubjectLineChars is the longest email subject line accepted without a warning.
const MaxSubjectLineChars = 78

// Evaluator scores a prompt against one modality rubric.
type Evaluator struct {
	rubric rubric.Rubric
	extra  func(r rubric.Rubric, c schema.PromptContent) []schema.QaIssue
}

// New returns an evaluator for an arbitrary rubric with no extra issues.
func New(r rubric.Rubric) Evaluator {
	return Evaluator{rubric: r}
}

func builtin(name string, extra func(rubric.Rubric, schema.PromptContent) []schema.QaIssue) Evaluator {
	r, err := rubric.Load(name)
	if err != nil {
		panic(err) // registry names are compile-time constants
	}
	return Evaluator{rubric: r, extra: extra}
}

var (
	textEvaluator         = builtin("text", textExtras)
	imageEvaluator        = builtin("image", nil)
	textToVideoEvaluator  = builtin("text-to-video", nil)
	imageToVideoEvaluator = builtin("image-to-video", nil)
	emailEvaluator        = builtin("email", emailExtras)
	audioEvaluator        = builtin("audio", nil)
)

func Text() Evaluator         { return textEvaluator }
func Image() Evaluator        { return imageEvaluator }
func TextToVideo() Evaluator  { return textToVideoEvaluator }
func ImageToVideo() Evaluator { return imageToVideoEvaluator }
func Email() Evaluator        { return emailEvaluator }
func Audio() Evaluator        { return audioEvaluator }

// For returns the evaluator for a modality and subtype. Unknown modalities
// use the text evaluator.
func For(m schema.Modality, sub schema.Subtype) Evaluator {
	switch m {
	case schema.ModalityImage:
		return imageEvaluator
	case schema.ModalityVideo:
		if sub == schema.SubtypeImageToVideo {
			return imageToVideoEvaluator
		}
		return textToVideoEvaluator
	case schema.ModalityEmail:
		return emailEvaluator
	case schema.ModalityAudio:
		return audioEvaluator
	default:
		return textEvaluator
	}
}

// Rubric returns the rubric the evaluator applies.
func (e Evaluator) Rubric() rubric.Rubric {
	return e.rubric
}

// Evaluate scores c and returns the unified result.
func (e Evaluator) Evaluate(c schema.PromptContent) schema.QaResult {
	r := e.rubric
	res := score.Score(r, c)
	out := schema.QaResult{
		Score:     res.Score,
		Checks:    res.Checks,
		Breakdown: res.Breakdown,
		Modality:  r.Modality,
		Subtype:   r.Subtype,
		Issues:    []schema.QaIssue{},
	}

	if isEmpty(c) {
		out.Score = 0
		out.Issues = append(out.Issues, schema.QaIssue{
			Level:   schema.IssueError,
			Code:    CodeEmptyPrompt,
			Message: "prompt text is empty",
		})
		out.Level = schema.LevelDraft
		return out
	}

	for _, s := range r.Sections {
		if !res.Present[s.Name] {
			out.Issues = append(out.Issues, schema.QaIssue{
				Level:   r.MissingLevel,
				Code:    MissingCode(s.Name),
				Message: fmt.Sprintf("missing %s section", s.Name),
			})
			continue
		}
		if detect.Body(r, c, s.Name) == "" {
			out.Issues = append(out.Issues, schema.QaIssue{
				Level:   schema.IssueWarning,
				Code:    CodeEmptySection,
				Message: fmt.Sprintf("%s section has no content", s.Name),
			})
		}
	}

	for _, p := range res.Contradictions {
		out.Issues = append(out.Issues, schema.QaIssue{
			Level:   schema.IssueError,
			Code:    CodeContradiction,
			Message: fmt.Sprintf("contradictory instructions: %q and %q", p.A, p.B),
		})
	}

	for _, phrase := range res.Instability {
		out.Issues = append(out.Issues, schema.QaIssue{
			Level:   schema.IssueWarning,
			Code:    CodeInstability,
			Message: fmt.Sprintf("instability phrase %q tends to produce unstable motion", phrase),
		})
	}

	if r.FlagVagueChecks {
		for _, chk := range r.Checks {
			if !res.Checks[chk.Name] {
				out.Issues = append(out.Issues, schema.QaIssue{
					Level:   schema.IssueWarning,
					Code:    VagueCode(chk.Name),
					Message: fmt.Sprintf("no explicit %s specified", strings.ReplaceAll(chk.Name, "_", " ")),
				})
			}
		}
	}

	if e.extra != nil {
		out.Issues = append(out.Issues, e.extra(r, c)...)
	}

	out.Level = score.DetermineLevel(out.Score, out.Issues)
	return out
}

// MissingCode returns the issue code for a missing section,
// e.g. "OUTPUT SETTINGS" becomes "MISSING_OUTPUT_SETTINGS".
func MissingCode(section string) string {
	return "MISSING_" + codeName(section)
}

// VagueCode returns the issue code for a failed explicitness check.
func VagueCode(check string) string {
	return "VAGUE_" + codeName(check)
}

// SectionFromMissingCode reverses MissingCode against the sections of r.
func SectionFromMissingCode(r rubric.Rubric, code string) (string, bool) {
	for _, s := range r.Sections {
		if MissingCode(s.Name) == code {
			return s.Name, true
		}
	}
	return "", false
}

func codeName(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

func isEmpty(c schema.PromptContent) bool {
	if strings.TrimSpace(c.Text) != "" {
		return false
	}
	for _, s := range c.Sections {
		if strings.TrimSpace(s.Body) != "" {
			return false
		}
	}
	return true
}

func textExtras(r rubric.Rubric, c schema.PromptContent) []schema.QaIssue {
	task := detect.Body(r, c, "TASK")
	if task == "" {
		return nil
	}
	if n := len(strings.Fields(task)); n < 5 {
		return []schema.QaIssue{{
			Level:   schema.IssueWarning,
			Code:    CodeTaskTooShort,
			Message: fmt.Sprintf("TASK section has only %d words; describe the task in at least 5", n),
		}}
	}
	return nil
}

func emailExtras(r rubric.Rubric, c schema.PromptContent) []schema.QaIssue {
	subject := detect.Body(r, c, "SUBJECT LINE")
	if subject == "" {
		return nil
	}
	first := strings.TrimSpace(strings.SplitN(subject, "\n", 2)[0])
	if n := len([]rune(first)); n > MaxSubjectLineChars {
		return []schema.QaIssue{{
			Level:   schema.IssueWarning,
			Code:    CodeSubjectLineTooLong,
			Message: fmt.Sprintf("subject line is %d characters; keep it under %d", n, MaxSubjectLineChars),
		}}
	}
	return nil
}
