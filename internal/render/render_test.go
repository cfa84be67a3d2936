package render

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dshills/promptqa/internal/asset"
	"github.com/dshills/promptqa/internal/schema"
)

func ptr[T any](v T) *T { return &v }

func sampleAsset() *asset.Asset {
	return &asset.Asset{
		ID:       "blog-outline",
		Version:  "1.2.0",
		System:   "You are an editor for {{audience}}.",
		Template: "Outline a post about {{topic}} in {{sections}} sections. Keep {{unknown}} as is.\n",
		InputSchema: map[string]asset.Property{
			"topic":    {Type: asset.TypeString, Required: true, MinLength: ptr(3)},
			"audience": {Type: asset.TypeString, Enum: []interface{}{"beginners", "experts"}, Default: "beginners"},
			"sections": {Type: asset.TypeInteger, Default: 3, Minimum: ptr(1.0), Maximum: ptr(10.0)},
		},
		OutputBlocks: []asset.BlockSpec{
			{Key: "TITLE", Description: "Post title", Required: true},
			{Key: "OUTLINE", Required: true},
		},
		Adapters: []asset.Adapter{{Provider: "anthropic", Model: "claude-sonnet-4-5", Temperature: ptr(0.7)}},
	}
}

func TestRender_Success(t *testing.T) {
	r := Render(sampleAsset(), map[string]interface{}{"topic": "tracing", "extra": "ignored"}, Options{})
	if !r.OK() {
		t.Fatalf("input validation failed: %+v", r.InputValidation.Errors)
	}
	if len(r.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(r.Messages))
	}
	if r.Messages[0].Role != schema.RoleSystem || r.Messages[0].Content != "You are an editor for beginners." {
		t.Errorf("system message = %+v", r.Messages[0])
	}
	user := r.Messages[1]
	if user.Role != schema.RoleUser {
		t.Errorf("second role = %q", user.Role)
	}
	if !strings.HasPrefix(user.Content, "Outline a post about tracing in 3 sections. Keep {{unknown}} as is.") {
		t.Errorf("user content = %q", user.Content)
	}
	if !strings.Contains(user.Content, "- TITLE (Post title) [required]") {
		t.Errorf("block instructions missing: %q", user.Content)
	}
	if _, ok := r.ResolvedInputs["extra"]; ok {
		t.Error("undeclared input was resolved")
	}
	want := schema.ExecutionConfig{
		Provider:     "anthropic",
		Model:        "claude-sonnet-4-5",
		Temperature:  0.7,
		MaxTokens:    DefaultMaxTokens,
		OutputFormat: schema.FormatBlocks,
	}
	if diff := cmp.Diff(want, r.Config); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestRender_FailsClosed(t *testing.T) {
	r := Render(sampleAsset(), nil, Options{})
	if r.InputValidation.Valid {
		t.Fatal("expected invalid inputs")
	}
	if len(r.Messages) != 0 {
		t.Errorf("messages = %v, want none", r.Messages)
	}
	if r.Messages == nil {
		t.Error("messages should be an empty slice, not nil")
	}
	if len(r.InputValidation.Errors) != 1 || r.InputValidation.Errors[0].Code != CodeRequiredField {
		t.Errorf("errors = %+v", r.InputValidation.Errors)
	}
}

func TestResolveInputs_ErrorCodes(t *testing.T) {
	props := map[string]asset.Property{
		"a_required": {Type: asset.TypeString, Required: true},
		"b_type":     {Type: asset.TypeNumber},
		"c_option":   {Type: asset.TypeString, Enum: []interface{}{"x", "y"}},
		"d_pattern":  {Type: asset.TypeString, Pattern: `^[a-z]+$`},
		"e_small":    {Type: asset.TypeNumber, Minimum: ptr(5.0)},
		"f_large":    {Type: asset.TypeInteger, Maximum: ptr(5.0)},
		"g_short":    {Type: asset.TypeString, MinLength: ptr(4)},
		"h_long":     {Type: asset.TypeString, MaxLength: ptr(2)},
		"i_format":   {Type: asset.TypeString, Format: "email"},
		"j_integer":  {Type: asset.TypeInteger},
	}
	supplied := map[string]interface{}{
		"b_type":    "seven",
		"c_option":  "z",
		"d_pattern": "ABC",
		"e_small":   1.5,
		"f_large":   9,
		"g_short":   "abc",
		"h_long":    "abc",
		"i_format":  "not-an-email",
		"j_integer": 2.5,
	}
	_, iv := ResolveInputs(props, supplied)
	var got []string
	for _, e := range iv.Errors {
		got = append(got, e.Field+":"+e.Code)
	}
	want := []string{
		"a_required:" + CodeRequiredField,
		"b_type:" + CodeInvalidType,
		"c_option:" + CodeInvalidOption,
		"d_pattern:" + CodeInvalidFormat,
		"e_small:" + CodeValueTooSmall,
		"f_large:" + CodeValueTooLarge,
		"g_short:" + CodeStringTooShort,
		"h_long:" + CodeStringTooLong,
		"i_format:" + CodeInvalidFormat,
		"j_integer:" + CodeInvalidType,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("errors mismatch (-want +got):\n%s", diff)
	}
	if iv.Valid {
		t.Error("Valid = true")
	}
}

func TestResolveInputs_Formats(t *testing.T) {
	cases := []struct {
		format, value string
		ok            bool
	}{
		{"email", "ada@example.com", true},
		{"email", "Ada <ada@example.com>", false},
		{"uri", "https://example.com/x", true},
		{"uri", "example.com", false},
		{"date", "2026-10-14", true},
		{"date", "14/10/2026", false},
		{"date-time", "2026-10-14T09:30:00Z", true},
		{"uuid", "6ba7b810-9dad-11d1-80b4-00c04fd430c8", true},
		{"uuid", "nope", false},
		{"color", "anything", true},
	}
	for _, c := range cases {
		props := map[string]asset.Property{"v": {Type: asset.TypeString, Format: c.format}}
		_, iv := ResolveInputs(props, map[string]interface{}{"v": c.value})
		if iv.Valid != c.ok {
			t.Errorf("format %s value %q: valid = %v, want %v", c.format, c.value, iv.Valid, c.ok)
		}
	}
}

func TestResolveInputs_NestedObject(t *testing.T) {
	props := map[string]asset.Property{
		"author": {Type: asset.TypeObject, Properties: map[string]asset.Property{
			"name": {Type: asset.TypeString, Required: true},
			"role": {Type: asset.TypeString, Default: "writer"},
		}},
	}
	resolved, iv := ResolveInputs(props, map[string]interface{}{"author": map[string]interface{}{"name": "Ada"}})
	if !iv.Valid {
		t.Fatalf("errors: %+v", iv.Errors)
	}
	want := map[string]interface{}{"author": map[string]interface{}{"name": "Ada", "role": "writer"}}
	if diff := cmp.Diff(want, resolved); diff != "" {
		t.Errorf("resolved mismatch (-want +got):\n%s", diff)
	}

	_, iv = ResolveInputs(props, map[string]interface{}{"author": map[string]interface{}{}})
	if iv.Valid || iv.Errors[0].Field != "author.name" {
		t.Errorf("nested required: %+v", iv.Errors)
	}
}

func TestConfig_Precedence(t *testing.T) {
	a := sampleAsset()
	cfg := Config(a, Options{Provider: "openai", Model: "gpt-4o", Temperature: ptr(0.0), MaxTokens: 100})
	if cfg.Provider != "openai" || cfg.Model != "gpt-4o" || cfg.Temperature != 0 || cfg.MaxTokens != 100 {
		t.Errorf("options not applied: %+v", cfg)
	}
	a.Adapters = nil
	cfg = Config(a, Options{})
	if cfg.Temperature != DefaultTemperature || cfg.Provider != "" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestRender_JSONInstructions(t *testing.T) {
	a := &asset.Asset{
		ID: "j", Version: "1.0.0", Template: "List colors",
		OutputFormat: schema.FormatJSON,
		OutputSchema: map[string]interface{}{"type": "array"},
	}
	r := Render(a, nil, Options{})
	if len(r.Messages) != 1 {
		t.Fatalf("messages = %v", r.Messages)
	}
	if !strings.Contains(r.Messages[0].Content, `"type": "array"`) {
		t.Errorf("schema not in instructions: %q", r.Messages[0].Content)
	}
}

func TestStringify(t *testing.T) {
	got := Stringify(map[string]interface{}{
		"s": "x", "i": 3, "f": 2.5, "b": true, "l": []interface{}{"a", 1.0}, "n": nil,
	})
	want := map[string]string{"s": "x", "i": "3", "f": "2.5", "b": "true", "l": `["a",1]`, "n": ""}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Stringify mismatch (-want +got):\n%s", diff)
	}
}

func TestPayload(t *testing.T) {
	a := sampleAsset()
	at := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	p := Render(a, map[string]interface{}{"topic": "tracing"}, Options{}).Payload(a, at)
	b, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatal(err)
	}
	meta := decoded["metadata"].(map[string]interface{})
	if meta["prompt_id"] != "blog-outline" || meta["prompt_version"] != "1.2.0" || meta["rendered_at"] != "2026-10-14T12:00:00Z" {
		t.Errorf("metadata = %v", meta)
	}
}
