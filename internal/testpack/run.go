package testpack

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dshills/promptqa/internal/asset"
	"github.com/dshills/promptqa/internal/assetqa"
	"github.com/dshills/promptqa/internal/render"
	"github.com/dshills/promptqa/internal/repair"
)

// AssertionResult is the outcome of one assertion.
type AssertionResult struct {
	Assertion Assertion `json:"assertion"`
	Passed    bool      `json:"passed"`
	Message   string    `json:"message,omitempty"`
}

// Evaluate checks as against output.
func Evaluate(as Assertion, output string) AssertionResult {
	params := map[string]interface{}{}
	switch as.Kind {
	case KindMaxWords:
		params["max"] = as.Value
	case KindRegexMatch:
		params["pattern"] = as.Value
	default:
		params["value"] = as.Value
	}
	r, ok := assetqa.RunCheck(as.Kind, assetqa.Input{Output: output, Params: params})
	if !ok {
		return AssertionResult{Assertion: as, Message: fmt.Sprintf("unknown assertion kind %q", as.Kind)}
	}
	return AssertionResult{Assertion: as, Passed: r.Passed, Message: r.Message}
}

// CaseResult is the outcome of one test case.
type CaseResult struct {
	ID         string             `json:"id"`
	Passed     bool               `json:"passed"`
	Run        repair.RunContract `json:"run"`
	Assertions []AssertionResult  `json:"assertions"`
	Error      string             `json:"error,omitempty"`
}

// Report aggregates a pack run.
type Report struct {
	PromptID string       `json:"prompt_id"`
	Version  string       `json:"version"`
	Passed   int          `json:"passed"`
	Failed   int          `json:"failed"`
	Cases    []CaseResult `json:"cases"`
}

// OK reports whether every case passed.
func (r Report) OK() bool { return r.Failed == 0 }

// Runner executes test packs through a repair orchestrator.
type Runner struct {
	orch *repair.Orchestrator
	opts render.Options
}

// NewRunner returns a Runner rendering with opts.
func NewRunner(orch *repair.Orchestrator, opts render.Options) *Runner {
	return &Runner{orch: orch, opts: opts}
}

// Run renders every case with its inputs, executes it and evaluates the
// assertions against the raw output. Output that fails validation fails the
// case. A case whose inputs do not resolve or whose model call fails is
// reported as failed without assertions. The error is non-nil only when ctx
// is done.
func (r *Runner) Run(ctx context.Context, p *Pack, a *asset.Asset) (Report, error) {
	rep := Report{PromptID: a.ID, Version: a.Version, Cases: []CaseResult{}}
	for _, c := range p.Cases {
		cr, err := r.runCase(ctx, c, a)
		if err != nil {
			return rep, err
		}
		if cr.Passed {
			rep.Passed++
		} else {
			rep.Failed++
		}
		rep.Cases = append(rep.Cases, cr)
	}
	return rep, nil
}

func (r *Runner) runCase(ctx context.Context, c Case, a *asset.Asset) (CaseResult, error) {
	cr := CaseResult{ID: c.ID, Assertions: []AssertionResult{}}
	rc, err := r.orch.Run(ctx, a, c.Inputs, r.opts)
	cr.Run = rc
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return cr, fmt.Errorf("testpack: case %s: %w", c.ID, err)
		}
		cr.Error = err.Error()
		return cr, nil
	}
	if rc.State == repair.StateInputInvalid {
		cr.Error = fmt.Sprintf("inputs rejected with %d issue(s)", len(rc.Issues))
		return cr, nil
	}

	cr.Passed = rc.OutputOK
	if !rc.OutputOK {
		cr.Error = fmt.Sprintf("output failed validation in state %s", rc.State)
	}
	for _, as := range c.Assertions {
		ar := Evaluate(as, rc.RawOutput)
		cr.Assertions = append(cr.Assertions, ar)
		if !ar.Passed {
			cr.Passed = false
		}
	}
	return cr, nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
