// Package render turns a prompt asset and caller inputs into role-tagged
// messages and an execution config. Rendering fails closed: when any input
// is invalid no messages are produced.
package render

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/dshills/promptqa/internal/asset"
	"github.com/dshills/promptqa/internal/schema"
	"github.com/dshills/promptqa/internal/tmpl"
)

// Defaults applied when neither the options nor the asset's adapter set a value.
const (
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 4096
)

// Options override the execution config derived from the asset.
type Options struct {
	Provider    string
	Model       string
	Temperature *float64
	MaxTokens   int
}

// Rendered is the immutable result of one render.
type Rendered struct {
	ResolvedInputs  map[string]interface{} `json:"resolved_inputs"`
	Messages        []schema.Message       `json:"messages"`
	Config          schema.ExecutionConfig `json:"execution_config"`
	InputValidation InputValidation        `json:"input_validation"`
}

// OK reports whether inputs were valid and messages were produced.
func (r Rendered) OK() bool {
	return r.InputValidation.Valid
}

// Render resolves inputs, substitutes placeholders and assembles messages.
// The system message, when the asset has one, comes first.
func Render(a *asset.Asset, supplied map[string]interface{}, opts Options) Rendered {
	resolved, iv := ResolveInputs(a.InputSchema, supplied)
	out := Rendered{
		ResolvedInputs:  resolved,
		Messages:        []schema.Message{},
		Config:          Config(a, opts),
		InputValidation: iv,
	}
	if !iv.Valid {
		return out
	}

	values := Stringify(resolved)
	if sys := strings.TrimSpace(a.System); sys != "" {
		out.Messages = append(out.Messages, schema.Message{
			Role:    schema.RoleSystem,
			Content: tmpl.Substitute(sys, values),
		})
	}
	user := tmpl.Substitute(strings.TrimRight(a.Template, "\n"), values)
	if ins := formatInstructions(a); ins != "" {
		user += "\n\n" + ins
	}
	out.Messages = append(out.Messages, schema.Message{Role: schema.RoleUser, Content: user})
	return out
}

// Config builds the execution config. Options win over the asset's first
// adapter, which wins over the package defaults.
func Config(a *asset.Asset, opts Options) schema.ExecutionConfig {
	cfg := schema.ExecutionConfig{
		Temperature:  DefaultTemperature,
		MaxTokens:    DefaultMaxTokens,
		OutputFormat: a.Format(),
	}
	if len(a.Adapters) > 0 {
		ad := a.Adapters[0]
		cfg.Provider, cfg.Model = ad.Provider, ad.Model
		if ad.Temperature != nil {
			cfg.Temperature = *ad.Temperature
		}
		if ad.MaxTokens > 0 {
			cfg.MaxTokens = ad.MaxTokens
		}
	}
	if opts.Provider != "" {
		cfg.Provider = opts.Provider
	}
	if opts.Model != "" {
		cfg.Model = opts.Model
	}
	if opts.Temperature != nil {
		cfg.Temperature = *opts.Temperature
	}
	if opts.MaxTokens > 0 {
		cfg.MaxTokens = opts.MaxTokens
	}
	return cfg
}

func formatInstructions(a *asset.Asset) string {
	switch a.Format() {
	case schema.FormatBlocks:
		if len(a.OutputBlocks) == 0 {
			return ""
		}
		var sb strings.Builder
		sb.WriteString("Respond using exactly these blocks. Put each key alone on its own line, followed by its content:")
		for _, b := range a.OutputBlocks {
			sb.WriteString("\n- " + b.Key)
			if b.Description != "" {
				sb.WriteString(" (" + b.Description + ")")
			}
			if b.Required {
				sb.WriteString(" [required]")
			}
		}
		return sb.String()
	case schema.FormatJSON, schema.FormatStructured:
		ins := "Respond with a single JSON value only. Do not wrap it in code fences."
		if len(a.OutputSchema) > 0 {
			if b, err := json.MarshalIndent(a.OutputSchema, "", "  "); err == nil {
				ins += "\nThe JSON must conform to this schema:\n" + string(b)
			}
		}
		return ins
	}
	return ""
}

// Stringify converts resolved values to their placeholder text. Strings are
// used as is, numbers in shortest form, and arrays and objects as JSON.
func Stringify(values map[string]interface{}) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = stringValue(v)
	}
	return out
}

func stringValue(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case nil:
		return ""
	}
	if f, ok := toFloat(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// Metadata identifies the prompt behind an execution payload.
type Metadata struct {
	PromptID      string    `json:"prompt_id"`
	PromptVersion string    `json:"prompt_version"`
	RenderedAt    time.Time `json:"rendered_at"`
}

// Payload is the execution payload handed to the automation layer.
type Payload struct {
	Messages        []schema.Message       `json:"messages"`
	ExecutionConfig schema.ExecutionConfig `json:"execution_config"`
	Metadata        Metadata               `json:"metadata"`
}

// Payload packages r for execution. renderedAt is supplied by the caller.
func (r Rendered) Payload(a *asset.Asset, renderedAt time.Time) Payload {
	return Payload{
		Messages:        r.Messages,
		ExecutionConfig: r.Config,
		Metadata: Metadata{
			PromptID:      a.ID,
			PromptVersion: a.Version,
			RenderedAt:    renderedAt,
		},
	}
}
