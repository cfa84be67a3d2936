package assetqa

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/promptqa/internal/asset"
	"github.com/dshills/promptqa/internal/blocktext"
	"github.com/dshills/promptqa/internal/schema"
)

func testAsset(checks ...asset.Check) *asset.Asset {
	return &asset.Asset{
		ID:       "outline",
		Version:  "1.0.0",
		Template: "Outline {{topic}}",
		InputSchema: map[string]asset.Property{
			"topic": {Type: asset.TypeString, Required: true},
		},
		OutputBlocks: []asset.BlockSpec{
			{Key: "TITLE", Description: "Post title", Required: true},
			{Key: "BODY", Description: "Main content", Required: true},
			{Key: "SUMMARY", Description: "Short overview", Required: true},
			{Key: "NOTES"},
		},
		Checks: checks,
	}
}

var inputs = map[string]interface{}{"topic": "distributed tracing"}

const goodOutput = "TITLE:\nDistributed Tracing\n\nBODY:\nTracing follows a request across services. It helps debugging.\n\nSUMMARY:\nA short tour of distributed tracing."

func failureIDs(r RunResult) []string {
	var ids []string
	for _, f := range r.Failures {
		ids = append(ids, f.CheckID)
	}
	return ids
}

func TestRun_BaselineAlwaysRuns(t *testing.T) {
	res := Run(testAsset(), inputs, "TITLE:\nOnly a title")
	assert.False(t, res.Pass)
	require.Len(t, res.Failures, 1)
	f := res.Failures[0]
	assert.Equal(t, CheckRequiredBlocks, f.CheckID)
	assert.Equal(t, []string{"BODY", "SUMMARY"}, f.Missing)
	assert.True(t, f.Patchable)
	assert.True(t, res.Patchable)
	assert.Equal(t, schema.IssueError, f.Severity)
}

func TestRun_Pass(t *testing.T) {
	a := testAsset(
		asset.Check{ID: CheckNoExtraKeys},
		asset.Check{ID: CheckNoDuplicateBlocks},
		asset.Check{ID: CheckBlockOrder},
		asset.Check{ID: CheckMaxWords, Params: map[string]interface{}{"max": 50}},
		asset.Check{ID: CheckContains, Params: map[string]interface{}{"value": "TRACING"}},
		asset.Check{ID: CheckNotContains, Params: map[string]interface{}{"value": "lorem ipsum"}},
		asset.Check{ID: CheckRegexMatch, Params: map[string]interface{}{"pattern": `(?m)^TITLE:$`}},
		asset.Check{ID: CheckMentionsInput, Params: map[string]interface{}{"input": "topic"}},
	)
	res := Run(a, inputs, goodOutput)
	assert.True(t, res.Pass, "failures: %+v", res.Failures)
	assert.False(t, res.Patchable, "no failures means not patchable")
	assert.Len(t, res.Results, 9)
}

func TestRun_NonPatchableFailure(t *testing.T) {
	a := testAsset(asset.Check{ID: CheckContains, Params: map[string]interface{}{"value": "kubernetes"}})
	res := Run(a, inputs, "TITLE:\nx")
	assert.ElementsMatch(t, []string{CheckRequiredBlocks, CheckContains}, failureIDs(res))
	assert.False(t, res.Patchable)
	res = Run(a, inputs, goodOutput)
	assert.Equal(t, []string{CheckContains}, failureIDs(res))
	assert.False(t, res.Patchable)
}

func TestRun_WarningsDoNotFail(t *testing.T) {
	a := testAsset(asset.Check{ID: CheckMaxWords, Severity: schema.IssueWarning, Params: map[string]interface{}{"max": 3}})
	res := Run(a, inputs, goodOutput)
	assert.True(t, res.Pass)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, CheckMaxWords, res.Warnings[0].CheckID)
}

func TestRun_UnknownCheck(t *testing.T) {
	res := Run(testAsset(asset.Check{ID: "spellcheck", Severity: schema.IssueWarning}), inputs, goodOutput)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, CodeUnknownCheck, res.Failures[0].Code)
	assert.Equal(t, schema.IssueError, res.Failures[0].Severity)
	assert.False(t, res.Failures[0].Patchable)
	assert.False(t, res.Pass)
}

func TestRun_StructureChecks(t *testing.T) {
	a := testAsset(
		asset.Check{ID: CheckNoExtraKeys},
		asset.Check{ID: CheckNoDuplicateBlocks},
		asset.Check{ID: CheckBlockOrder},
	)
	out := "SUMMARY:\ns\n\nTITLE:\nt\n\nBODY:\nb\nnote:\n\nEXTRA:\ne\n\nTITLE:\nagain"
	res := Run(a, inputs, out)
	assert.ElementsMatch(t, []string{CheckNoExtraKeys, CheckNoDuplicateBlocks, CheckBlockOrder}, failureIDs(res))
	for _, f := range res.Failures {
		if f.CheckID == CheckNoExtraKeys {
			assert.Contains(t, f.Message, "EXTRA")
			assert.Contains(t, f.Message, "note")
		}
	}
}

func TestRun_ExplicitBaselineNotDuplicated(t *testing.T) {
	res := Run(testAsset(asset.Check{ID: CheckRequiredBlocks, Severity: schema.IssueWarning}), inputs, "TITLE:\nx")
	assert.Len(t, res.Results, 1)
	assert.True(t, res.Pass)
	assert.Len(t, res.Warnings, 1)
}

func TestRun_JSONValidAndBadParams(t *testing.T) {
	a := &asset.Asset{
		OutputBlocks: []asset.BlockSpec{{Key: "BODY"}},
		Checks: []asset.Check{
			{ID: CheckJSONValid},
			{ID: CheckRegexMatch, Params: map[string]interface{}{"pattern": "("}},
			{ID: CheckMaxWords},
		},
	}
	res := Run(a, nil, `{"ok": true}`)
	assert.ElementsMatch(t, []string{CheckRegexMatch, CheckMaxWords}, failureIDs(res))
	res = Run(a, nil, `{"ok": `)
	assert.Contains(t, failureIDs(res), CheckJSONValid)
}

func TestPatch_FillsMissingBlocks(t *testing.T) {
	a := testAsset()
	out := "Here you go.\n\nBODY:\nTracing follows a request across services. It helps debugging. More text."
	res := Patch(a, inputs, out)

	require.True(t, res.Applied)
	assert.Equal(t, []string{"TITLE", "SUMMARY"}, res.Added)
	assert.False(t, res.Before.Pass)
	assert.True(t, res.After.Pass, "after: %+v", res.After.Failures)
	assert.True(t, strings.HasPrefix(res.Output, "Here you go.\n\nBODY:\n"))

	parsed := blocktext.Parse(res.Output)
	assert.Equal(t, []string{"BODY", "TITLE", "SUMMARY"}, parsed.Blocks.Keys())
	title, _ := parsed.Blocks.Get("TITLE")
	assert.Equal(t, "Distributed Tracing", title)
	summary, _ := parsed.Blocks.Get("SUMMARY")
	assert.Equal(t, "Tracing follows a request across services. It helps debugging.", summary)
}

func TestPatch_AppendsOnly(t *testing.T) {
	outputs := []string{
		"BODY:\nfirst body.\n\nBODY:\nsecond body kept by author.",
		"  Intro with   spacing.  \n\n\nBODY:\n  indented line\n",
		"BODY:\ntext\n\n",
	}
	for _, out := range outputs {
		res := Patch(testAsset(), inputs, out)
		require.True(t, res.Applied, "%q", out)
		if !strings.HasPrefix(res.Output, out) {
			t.Errorf("patched output does not start with the original:\n%q\ngot:\n%q", out, res.Output)
		}
		for _, line := range strings.Split(out, "\n") {
			assert.Contains(t, res.Output, line)
		}
		assert.True(t, res.After.Pass, "%q after: %+v", out, res.After.Failures)
	}
}

func TestPatch_NoOpWhenComplete(t *testing.T) {
	res := Patch(testAsset(), inputs, goodOutput)
	assert.False(t, res.Applied)
	assert.Equal(t, goodOutput, res.Output)
	assert.Empty(t, res.Added)
}

func TestPatch_UnsuccessfulRerunStillReturned(t *testing.T) {
	a := testAsset(asset.Check{ID: CheckContains, Params: map[string]interface{}{"value": "kubernetes"}})
	res := Patch(a, inputs, "TITLE:\nx")
	assert.True(t, res.Applied)
	assert.False(t, res.After.Pass)
	assert.Equal(t, []string{CheckContains}, failureIDs(res.After))
}

func TestGenerate(t *testing.T) {
	cases := []struct {
		spec asset.BlockSpec
		want string
	}{
		{asset.BlockSpec{Key: "HEADLINE"}, "Distributed Tracing"},
		{asset.BlockSpec{Key: "CONCLUSION"}, "In short, tracing helps."},
		{asset.BlockSpec{Key: "META", Description: "metadata"}, "topic: distributed tracing"},
		{asset.BlockSpec{Key: "CALL_TO_ACTION", Description: "Ask the reader to subscribe"}, "[Ask the reader to subscribe to be completed]"},
		{asset.BlockSpec{Key: "FAQ"}, "[faq to be completed]"},
	}
	for _, c := range cases {
		if got := Generate(c.spec, inputs, "Tracing helps. A lot."); got != c.want {
			t.Errorf("Generate(%s) = %q, want %q", c.spec.Key, got, c.want)
		}
	}
	if got := Generate(asset.BlockSpec{Key: "TITLE"}, nil, ""); got != "Untitled" {
		t.Errorf("empty title = %q", got)
	}
	if got := Generate(asset.BlockSpec{Key: "SUMMARY"}, nil, ""); got != "Summary: the requested content" {
		t.Errorf("empty summary = %q", got)
	}
}
