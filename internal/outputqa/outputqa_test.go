package outputqa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/promptqa/internal/schema"
)

var titleSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"title"},
	"properties": map[string]interface{}{
		"title": map[string]interface{}{"type": "string"},
	},
}

func TestValidate_TextPassesThrough(t *testing.T) {
	for _, f := range []schema.OutputFormat{schema.FormatText, schema.FormatMarkdown, schema.FormatBlocks} {
		res := Validate("```not json", f, titleSchema)
		assert.True(t, res.OK, f)
		assert.Empty(t, res.Issues)
		assert.Equal(t, "```not json", res.Value)
	}
}

func TestValidate_FenceIsHardErrorBeforeParse(t *testing.T) {
	raw := "```json\n{\"title\": \"x\"}\n```"
	res := Validate(raw, schema.FormatJSON, titleSchema)
	require.False(t, res.OK)
	assert.Equal(t, []string{CodeMarkdownFence}, res.Codes())
	assert.Equal(t, map[string]interface{}{"title": "x"}, res.LastParsed)
	assert.Equal(t, raw, res.RawText)
	assert.True(t, res.Repairable())

	res = Validate("  ~~~\n[]\n~~~", schema.FormatStructured, nil)
	assert.Equal(t, []string{CodeMarkdownFence}, res.Codes())
}

func TestValidate_StrictParse(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"empty", "   "},
		{"trailing data", `{"title": "x"} and more`},
		{"two values", `{"title": "x"}{"title": "y"}`},
		{"prose", "Sure! Here is the JSON."},
	}
	for _, c := range cases {
		res := Validate(c.raw, schema.FormatJSON, nil)
		assert.Equal(t, []string{CodeJSONParse}, res.Codes(), c.name)
		assert.False(t, res.OK, c.name)
	}
}

func TestValidate_TruncatedOutputSalvaged(t *testing.T) {
	res := Validate(`{"title": "x"`, schema.FormatJSON, titleSchema)
	assert.Equal(t, []string{CodeJSONParse}, res.Codes())
	assert.Equal(t, map[string]interface{}{"title": "x"}, res.LastParsed)
}

func TestValidate_Schema(t *testing.T) {
	res := Validate(`{"title": "Hello"}`, schema.FormatJSON, titleSchema)
	assert.True(t, res.OK, "issues: %v", res.Issues)
	assert.Equal(t, map[string]interface{}{"title": "Hello"}, res.Value)

	res = Validate(`{"name": "Hello"}`, schema.FormatJSON, titleSchema)
	require.False(t, res.OK)
	require.NotEmpty(t, res.Issues)
	for _, is := range res.Issues {
		assert.Equal(t, CodeSchemaViolation, is.Code)
		assert.Equal(t, schema.IssueError, is.Level)
	}
	assert.Nil(t, res.Value)
	assert.Equal(t, map[string]interface{}{"name": "Hello"}, res.LastParsed, "pre-schema value is kept")
	assert.True(t, res.Repairable())
}

func TestValidate_SchemaCompileFailure(t *testing.T) {
	bad := map[string]interface{}{"type": "object", "minimum": "low"}
	res := Validate(`{"title": "x"}`, schema.FormatJSON, bad)
	assert.Equal(t, []string{CodeSchemaCompile}, res.Codes())
	assert.False(t, res.Repairable())
	assert.Error(t, CompileSchema(bad))
	assert.NoError(t, CompileSchema(titleSchema))
}

func TestValidate_MarkdownLeakageIsAdvisory(t *testing.T) {
	res := Validate(`{"title": "**Bold** title", "notes": ["plain", "see [docs](https://x.io)"]}`, schema.FormatJSON, titleSchema)
	assert.True(t, res.OK)
	require.Len(t, res.Warnings, 2)
	assert.Equal(t, "/notes/1", res.Warnings[0].Path)
	assert.Equal(t, "/title", res.Warnings[1].Path)
	for _, w := range res.Warnings {
		assert.Equal(t, CodeMarkdownLeakage, w.Code)
		assert.Equal(t, schema.IssueWarning, w.Level)
	}
}

func TestValidate_VisualPack(t *testing.T) {
	raw := `{"prompts": [
		{"provider": "Midjourney", "subject": "a cat", "style": "watercolor", "parameters": {"stylize": 2000, "chaos": 10}},
		{"provider": "flux", "prompt": "# Title", "parameters": {"steps": "many"}}
	]}`
	res := Validate(raw, schema.FormatJSON, nil)
	require.False(t, res.OK)
	assert.Equal(t, []string{CodeVisualParamRange, CodeVisualStyle, CodeVisualMarkdown, CodeVisualParamRange}, res.Codes())
	assert.Equal(t, "/prompts/0/parameters/stylize", res.Issues[0].Path)
	assert.Equal(t, "/prompts/1/parameters/steps", res.Issues[3].Path)

	ok := `{"prompts": [{"provider": "sdxl", "subject": "a lighthouse", "style": "oil painting", "parameters": {"cfg_scale": 7, "steps": 30}}]}`
	assert.True(t, Validate(ok, schema.FormatJSON, nil).OK)
}

func TestNormalizeProvider(t *testing.T) {
	cases := map[string]string{
		"Midjourney":       "midjourney",
		"stable-diffusion": "stable_diffusion",
		"SD":               "stable_diffusion",
		"DALL-E":           "dalle",
		"dall-e-3":         "dalle",
		"Flux":             "flux",
		"other":            "other",
	}
	for in, want := range cases {
		if got := NormalizeProvider(in); got != want {
			t.Errorf("NormalizeProvider(%q) = %q, want %q", in, got, want)
		}
	}
}
