package repair

import (
	"context"

	"github.com/dshills/promptqa/internal/asset"
	"github.com/dshills/promptqa/internal/outputqa"
	"github.com/dshills/promptqa/internal/render"
	"github.com/dshills/promptqa/internal/schema"
)

// RunContract is the canonical record of one render, validate and repair
// cycle, consumed by downstream routing.
type RunContract struct {
	PromptID       string                 `json:"prompt_id"`
	Version        string                 `json:"version"`
	ResolvedInputs map[string]interface{} `json:"resolved_inputs"`
	OutputOK       bool                   `json:"output_ok"`
	Repaired       bool                   `json:"repaired"`
	Issues         []outputqa.Issue       `json:"issues"`
	Output         interface{}            `json:"output,omitempty"`
	RawOutput      string                 `json:"raw_output"`
	State          State                  `json:"state"`
	Calls          int                    `json:"calls"`
}

// Run renders a with inputs and executes the result. Invalid inputs stop the
// run before any model call and are reported as issues. The error is non-nil
// only when a model call fails or is canceled.
func (o *Orchestrator) Run(ctx context.Context, a *asset.Asset, inputs map[string]interface{}, opts render.Options) (RunContract, error) {
	r := render.Render(a, inputs, opts)
	rc := RunContract{
		PromptID:       a.ID,
		Version:        a.Version,
		ResolvedInputs: r.ResolvedInputs,
		Issues:         []outputqa.Issue{},
	}
	if !r.OK() {
		rc.State = StateInputInvalid
		for _, e := range r.InputValidation.Errors {
			rc.Issues = append(rc.Issues, outputqa.Issue{
				Level:   schema.IssueError,
				Code:    e.Code,
				Path:    "/" + e.Field,
				Message: e.Message,
			})
		}
		return rc, nil
	}

	out, err := o.Execute(ctx, r.Messages, r.Config, a.OutputSchema)
	rc.State = out.State
	rc.Calls = out.Calls
	rc.Repaired = out.Repaired
	rc.OutputOK = out.Validation.OK
	rc.RawOutput = out.Validation.RawText
	if out.Validation.Issues != nil {
		rc.Issues = out.Validation.Issues
	}
	if rc.OutputOK {
		rc.Output = out.Validation.Value
	}
	return rc, err
}
