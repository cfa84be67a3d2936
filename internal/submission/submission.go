// Package submission scores prompt asset contributions, classifies them as
// verified, submitted or rejected, and records them in an injected Store.
package submission

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/copystructure"

	"github.com/dshills/promptqa/internal/asset"
	"github.com/dshills/promptqa/internal/assetqa"
	"github.com/dshills/promptqa/internal/outputqa"
	"github.com/dshills/promptqa/internal/render"
	"github.com/dshills/promptqa/internal/router"
	"github.com/dshills/promptqa/internal/schema"
	"github.com/dshills/promptqa/internal/score"
)

// Status classifies a submission.
type Status string

const (
	StatusVerified  Status = "verified"
	StatusSubmitted Status = "submitted"
	StatusRejected  Status = "rejected"
)

// Thresholds and per-finding penalties.
const (
	VerifiedMin  = 85
	SubmittedMin = 70

	ErrorPenalty   = 5
	WarningPenalty = 2
)

// Classify maps a final score to a status.
func Classify(finalScore int) Status {
	switch {
	case finalScore >= VerifiedMin:
		return StatusVerified
	case finalScore >= SubmittedMin:
		return StatusSubmitted
	default:
		return StatusRejected
	}
}

// Compliance finding codes produced here in addition to asset validation codes.
const (
	CodeRenderFailed       = "RENDER_FAILED"
	CodeMissingDescription = "MISSING_DESCRIPTION"
	CodeNoTags             = "NO_TAGS"
	CodeNoAdapters         = "NO_ADAPTERS"
)

// Finding is one compliance problem.
type Finding struct {
	Level   schema.IssueLevel `json:"level"`
	Code    string            `json:"code"`
	Path    string            `json:"path,omitempty"`
	Message string            `json:"message"`
}

// Breakdown itemizes the final score.
type Breakdown struct {
	BaseScore      int `json:"base_score"`
	Errors         int `json:"errors"`
	Warnings       int `json:"warnings"`
	ErrorPenalty   int `json:"error_penalty"`
	WarningPenalty int `json:"warning_penalty"`
	Final          int `json:"final"`
}

// Report is the full QA record kept with a submission.
type Report struct {
	QA              schema.QaResult        `json:"qa"`
	Route           string                 `json:"route"`
	Compliance      []Finding              `json:"compliance"`
	SyntheticInputs map[string]interface{} `json:"synthetic_inputs"`
	Guidance        string                 `json:"guidance"`
}

// Submission is immutable once created.
type Submission struct {
	ID          string      `json:"id"`
	AssetID     string      `json:"asset_id"`
	Version     string      `json:"version"`
	SubmitterID string      `json:"submitter_id"`
	Status      Status      `json:"status"`
	Score       int         `json:"score"`
	Breakdown   Breakdown   `json:"breakdown"`
	Report      Report      `json:"report"`
	Asset       asset.Asset `json:"asset"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Clone returns a deep copy of s that shares no maps, slices or pointers
// with it.
func (s Submission) Clone() Submission {
	return copystructure.Must(copystructure.Copy(s)).(Submission)
}

// Assessment is the deterministic part of a submission.
type Assessment struct {
	Status    Status    `json:"status"`
	Score     int       `json:"score"`
	Breakdown Breakdown `json:"breakdown"`
	Report    Report    `json:"report"`
}

// Assess scores a without side effects.
func Assess(a *asset.Asset) Assessment {
	src := a.Source()
	route := router.Classify(src)
	qa := route.Evaluator().Evaluate(router.Content(src))

	synthetic := SyntheticInputs(a.InputSchema)
	findings := Compliance(a, synthetic)

	b := Breakdown{BaseScore: qa.Score}
	for _, f := range findings {
		if f.Level == schema.IssueError {
			b.Errors++
		} else {
			b.Warnings++
		}
	}
	b.ErrorPenalty = b.Errors * ErrorPenalty
	b.WarningPenalty = b.Warnings * WarningPenalty
	b.Final = score.Clamp(b.BaseScore - b.ErrorPenalty - b.WarningPenalty)

	status := Classify(b.Final)
	return Assessment{
		Status:    status,
		Score:     b.Final,
		Breakdown: b,
		Report: Report{
			QA:              qa,
			Route:           route.String(),
			Compliance:      findings,
			SyntheticInputs: synthetic,
			Guidance:        Guidance(status, qa, findings),
		},
	}
}

// patternMismatch reports whether e only says that a synthetic value missed a
// declared pattern. Synthetic values cannot satisfy arbitrary patterns, so
// such misses are not held against the asset.
func patternMismatch(a *asset.Asset, e render.InputError) bool {
	p, ok := a.InputSchema[e.Field]
	return ok && e.Code == render.CodeInvalidFormat && p.Pattern != "" && p.Format == ""
}

// Compliance collects authoring problems: asset validation issues, a failed
// render with synthetic inputs, an output schema that does not compile,
// unknown QA check ids and missing catalog metadata.
func Compliance(a *asset.Asset, synthetic map[string]interface{}) []Finding {
	findings := []Finding{}
	for _, is := range asset.Validate(a).Issues {
		findings = append(findings, Finding{Level: schema.IssueError, Code: is.Code, Path: is.Path, Message: is.Message})
	}

	if r := render.Render(a, synthetic, render.Options{}); !r.OK() {
		for _, e := range r.InputValidation.Errors {
			if patternMismatch(a, e) {
				continue
			}
			findings = append(findings, Finding{
				Level:   schema.IssueError,
				Code:    CodeRenderFailed,
				Path:    "input_schema." + e.Field,
				Message: fmt.Sprintf("synthetic input rejected: %s (%s)", e.Message, e.Code),
			})
		}
	}
	if len(a.OutputSchema) > 0 {
		if err := outputqa.CompileSchema(a.OutputSchema); err != nil {
			findings = append(findings, Finding{Level: schema.IssueError, Code: outputqa.CodeSchemaCompile, Path: "output_schema", Message: err.Error()})
		}
	}
	for i, c := range a.Checks {
		if !assetqa.Known(c.ID) {
			findings = append(findings, Finding{
				Level:   schema.IssueWarning,
				Code:    assetqa.CodeUnknownCheck,
				Path:    fmt.Sprintf("qa_checks[%d].id", i),
				Message: fmt.Sprintf("unknown check %q", c.ID),
			})
		}
	}

	if strings.TrimSpace(a.Description) == "" {
		findings = append(findings, Finding{Level: schema.IssueWarning, Code: CodeMissingDescription, Path: "description", Message: "description is empty"})
	}
	if len(a.Tags) == 0 {
		findings = append(findings, Finding{Level: schema.IssueWarning, Code: CodeNoTags, Path: "tags", Message: "no tags declared"})
	}
	if len(a.Adapters) == 0 {
		findings = append(findings, Finding{Level: schema.IssueWarning, Code: CodeNoAdapters, Path: "adapters", Message: "no provider adapters declared"})
	}
	return findings
}

// Guidance returns the next-step text for status. Rejections list every
// blocking finding.
func Guidance(status Status, qa schema.QaResult, findings []Finding) string {
	switch status {
	case StatusVerified:
		return "Verified: the asset meets the quality bar and is approved for the catalog."
	case StatusSubmitted:
		msg := "Submitted: the asset is queued for review."
		if n := countWarnings(findings) + countQAWarnings(qa); n > 0 {
			msg += fmt.Sprintf(" Resolving the %d warning(s) in the report may qualify it for automatic verification.", n)
		}
		return msg
	}

	var sb strings.Builder
	sb.WriteString("Rejected: fix the following before resubmitting:")
	blockers := 0
	for _, f := range findings {
		if f.Level == schema.IssueError {
			fmt.Fprintf(&sb, "\n- %s: %s", f.Code, f.Message)
			blockers++
		}
	}
	for _, is := range qa.Issues {
		if is.Level == schema.IssueError || strings.HasPrefix(is.Code, "MISSING_") {
			fmt.Fprintf(&sb, "\n- %s: %s", is.Code, is.Message)
			blockers++
		}
	}
	if blockers == 0 {
		fmt.Fprintf(&sb, "\n- QA score %d is below %d; add the sections and explicit details the rubric expects", qa.Score, SubmittedMin)
	}
	return sb.String()
}

func countWarnings(findings []Finding) int {
	n := 0
	for _, f := range findings {
		if f.Level == schema.IssueWarning {
			n++
		}
	}
	return n
}

func countQAWarnings(qa schema.QaResult) int {
	_, w := score.CountLevels(qa.Issues)
	return w
}

// Scorer assesses assets and records the resulting submissions.
type Scorer struct {
	store Store
	// NewID generates submission ids. Defaults to random UUIDs.
	NewID func() string
	// Now stamps submissions. Defaults to time.Now in UTC.
	Now func() time.Time
}

// NewScorer returns a Scorer writing to store.
func NewScorer(store Store) *Scorer {
	return &Scorer{
		store: store,
		NewID: func() string { return uuid.NewString() },
		Now:   func() time.Time { return time.Now().UTC() },
	}
}

// Submit assesses a and inserts the submission under a fresh id.
func (s *Scorer) Submit(ctx context.Context, a *asset.Asset, submitterID string) (Submission, error) {
	as := Assess(a)
	sub := Submission{
		ID:          s.NewID(),
		AssetID:     a.ID,
		Version:     a.Version,
		SubmitterID: submitterID,
		Status:      as.Status,
		Score:       as.Score,
		Breakdown:   as.Breakdown,
		Report:      as.Report,
		Asset:       *a,
		CreatedAt:   s.Now(),
	}.Clone()
	if err := s.store.Insert(ctx, sub); err != nil {
		return Submission{}, fmt.Errorf("submission: insert: %w", err)
	}
	return sub, nil
}
