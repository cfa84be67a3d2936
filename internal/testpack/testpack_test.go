package testpack

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/promptqa/internal/asset"
	"github.com/dshills/promptqa/internal/render"
	"github.com/dshills/promptqa/internal/repair"
	"github.com/dshills/promptqa/internal/schema"
)

const packYAML = `version: "1"
prompt_id: article-summary
prompt_version: 1.0.0
description: Smoke cases
test_cases:
  - id: short
    inputs:
      topic: tracing
    assertions:
      - kind: contains
        value: tracing
      - type: max_words
        value: 20
        description: stays brief
  - id: no-hype
    inputs:
      topic: metrics
    assertions:
      - kind: not_contains
        value: revolutionary
      - kind: regex_match
        value: "(?i)^overview"
`

func summaryAsset() *asset.Asset {
	return &asset.Asset{
		ID:           "article-summary",
		Version:      "1.0.0",
		Template:     "Summarize {{topic}}.",
		InputSchema:  map[string]asset.Property{"topic": {Type: asset.TypeString, Required: true}},
		OutputBlocks: []asset.BlockSpec{{Key: "SUMMARY", Required: true}},
	}
}

func TestParse_YAML(t *testing.T) {
	p, err := Parse([]byte(packYAML))
	require.NoError(t, err)
	assert.Equal(t, "article-summary", p.PromptID)
	require.Len(t, p.Cases, 2)

	want := []Assertion{
		{Kind: KindContains, Value: "tracing"},
		{Kind: KindMaxWords, Value: 20, Description: "stays brief"},
	}
	if diff := cmp.Diff(want, p.Cases[0].Assertions); diff != "" {
		t.Errorf("assertions mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, Validate(p, summaryAsset()))
}

func TestParse_JSON(t *testing.T) {
	doc := `{"version":"1","prompt_id":"x","description":"","test_cases":[{"id":"a","inputs":{},"assertions":[{"type":"contains","value":"hi"}]}]}`
	p, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, p.Cases, 1)
	assert.Equal(t, KindContains, p.Cases[0].Assertions[0].Kind)
}

func TestParse_UnknownKind(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"kind", "test_cases:\n  - id: a\n    assertions:\n      - kind: equals\n        value: x\n"},
		{"legacy type", "test_cases:\n  - id: a\n    assertions:\n      - type: starts_with\n        value: x\n"},
		{"missing", "test_cases:\n  - id: a\n    assertions:\n      - value: x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnknownAssertionKind), "got %v", err)
			assert.Contains(t, err.Error(), "contains, not_contains, regex_match, max_words")
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse([]byte("test_cases: [\n"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnknownAssertionKind))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pack.yaml")
	require.NoError(t, os.WriteFile(path, []byte(packYAML), 0o644))
	p, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, p.Cases, 2)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	p := &Pack{
		PromptID:      "other",
		PromptVersion: "2.0.0",
		Cases: []Case{
			{ID: "a", Inputs: map[string]interface{}{"topic": "x", "tone": "dry"}, Assertions: []Assertion{{Kind: KindContains, Value: ""}}},
			{ID: "a", Assertions: []Assertion{{Kind: KindMaxWords, Value: "ten"}}},
			{ID: "", Assertions: []Assertion{{Kind: KindRegexMatch, Value: "("}}},
			{ID: "b"},
		},
	}
	var codes []string
	for _, is := range Validate(p, summaryAsset()) {
		codes = append(codes, is.Code)
	}
	want := []string{
		CodeMissingField,
		CodePromptMismatch,
		CodePromptMismatch,
		CodeInvalidAssertion,
		CodeUndeclaredInput,
		CodeDuplicateCaseID,
		CodeInvalidAssertion,
		CodeEmptyCaseID,
		CodeInvalidAssertion,
		CodeNoAssertions,
	}
	if diff := cmp.Diff(want, codes); diff != "" {
		t.Errorf("codes mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, []Issue{{Level: schema.IssueError, Code: CodeNoCases, Path: "test_cases", Message: "at least one test case is required"}},
		Validate(&Pack{Version: "1", PromptID: "x"}, nil))
}

func TestEvaluate(t *testing.T) {
	out := "Summary: tracing helps teams find slow requests."
	tests := []struct {
		as   Assertion
		want bool
	}{
		{Assertion{Kind: KindContains, Value: "TRACING"}, true},
		{Assertion{Kind: KindContains, Value: "metrics"}, false},
		{Assertion{Kind: KindNotContains, Value: "revolutionary"}, true},
		{Assertion{Kind: KindNotContains, Value: "slow"}, false},
		{Assertion{Kind: KindRegexMatch, Value: `^Summary:`}, true},
		{Assertion{Kind: KindRegexMatch, Value: `\d+`}, false},
		{Assertion{Kind: KindMaxWords, Value: 7}, true},
		{Assertion{Kind: KindMaxWords, Value: 6.0}, false},
		{Assertion{Kind: "equals", Value: out}, false},
	}
	for _, tt := range tests {
		got := Evaluate(tt.as, out)
		if got.Passed != tt.want {
			t.Errorf("Evaluate(%s %v) = %v (%s), want %v", tt.as.Kind, tt.as.Value, got.Passed, got.Message, tt.want)
		}
	}
}

func invokeReturning(raw string, err error) (*int, func(context.Context, []schema.Message, schema.ExecutionConfig) (schema.ModelResponse, error)) {
	n := 0
	return &n, func(context.Context, []schema.Message, schema.ExecutionConfig) (schema.ModelResponse, error) {
		n++
		return schema.ModelResponse{RawText: raw}, err
	}
}

func TestRunner_Run(t *testing.T) {
	p, err := Parse([]byte(packYAML))
	require.NoError(t, err)

	n, invoke := invokeReturning("SUMMARY: tracing shows where requests spend time.", nil)
	r := NewRunner(repair.New(invoke, repair.DefaultOptions(), nil), render.Options{})
	rep, err := r.Run(context.Background(), p, summaryAsset())
	require.NoError(t, err)

	assert.Equal(t, 2, *n)
	require.Len(t, rep.Cases, 2)
	assert.True(t, rep.Cases[0].Passed, "%+v", rep.Cases[0].Assertions)
	assert.False(t, rep.Cases[1].Passed)
	assert.True(t, rep.Cases[1].Assertions[0].Passed)
	assert.False(t, rep.Cases[1].Assertions[1].Passed)
	assert.Equal(t, 1, rep.Passed)
	assert.Equal(t, 1, rep.Failed)
	assert.False(t, rep.OK())
}

func TestRunner_InputInvalidAndFailures(t *testing.T) {
	p := &Pack{Cases: []Case{{ID: "no-topic", Assertions: []Assertion{{Kind: KindContains, Value: "x"}}}}}
	n, invoke := invokeReturning("", nil)
	rep, err := NewRunner(repair.New(invoke, repair.DefaultOptions(), nil), render.Options{}).
		Run(context.Background(), p, summaryAsset())
	require.NoError(t, err)
	assert.Zero(t, *n)
	assert.False(t, rep.Cases[0].Passed)
	assert.Equal(t, repair.StateInputInvalid, rep.Cases[0].Run.State)
	assert.Empty(t, rep.Cases[0].Assertions)

	p.Cases[0].Inputs = map[string]interface{}{"topic": "x"}
	_, failing := invokeReturning("", errors.New("quota"))
	rep, err = NewRunner(repair.New(failing, repair.DefaultOptions(), nil), render.Options{}).
		Run(context.Background(), p, summaryAsset())
	require.NoError(t, err)
	assert.Contains(t, rep.Cases[0].Error, "quota")

	_, canceled := invokeReturning("", context.Canceled)
	_, err = NewRunner(repair.New(canceled, repair.DefaultOptions(), nil), render.Options{}).
		Run(context.Background(), p, summaryAsset())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunner_InvalidStructuredOutputFails(t *testing.T) {
	a := summaryAsset()
	a.OutputFormat = schema.FormatJSON
	p := &Pack{Cases: []Case{{ID: "json", Inputs: map[string]interface{}{"topic": "x"}, Assertions: []Assertion{{Kind: KindContains, Value: "x"}}}}}
	_, invoke := invokeReturning("x is not json", nil)
	rep, err := NewRunner(repair.New(invoke, repair.Options{}, nil), render.Options{}).
		Run(context.Background(), p, a)
	require.NoError(t, err)
	assert.False(t, rep.Cases[0].Passed)
	assert.True(t, rep.Cases[0].Assertions[0].Passed)
	assert.Equal(t, repair.StateExhausted, rep.Cases[0].Run.State)
}
