// Package asset defines the versioned prompt asset model, loads assets from
// YAML or JSON, and validates them at authoring time.
package asset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dshills/promptqa/internal/schema"
)

// Input property types.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
)

// Property describes one declared input.
type Property struct {
	Type        string              `yaml:"type" json:"type"`
	Description string              `yaml:"description,omitempty" json:"description,omitempty"`
	Required    bool                `yaml:"required,omitempty" json:"required,omitempty"`
	Default     interface{}         `yaml:"default,omitempty" json:"default,omitempty"`
	Enum        []interface{}       `yaml:"enum,omitempty" json:"enum,omitempty"`
	Pattern     string              `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Format      string              `yaml:"format,omitempty" json:"format,omitempty"`
	Minimum     *float64            `yaml:"minimum,omitempty" json:"minimum,omitempty"`
	Maximum     *float64            `yaml:"maximum,omitempty" json:"maximum,omitempty"`
	MinLength   *int                `yaml:"min_length,omitempty" json:"min_length,omitempty"`
	MaxLength   *int                `yaml:"max_length,omitempty" json:"max_length,omitempty"`
	Properties  map[string]Property `yaml:"properties,omitempty" json:"properties,omitempty"`
	Items       *Property           `yaml:"items,omitempty" json:"items,omitempty"`
}

// BlockSpec declares one output block.
type BlockSpec struct {
	Key         string `yaml:"key" json:"key"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Required    bool   `yaml:"required,omitempty" json:"required,omitempty"`
	Format      string `yaml:"format,omitempty" json:"format,omitempty"`
}

// Check declares one QA check run against a candidate output.
type Check struct {
	ID       string                 `yaml:"id" json:"id"`
	Severity schema.IssueLevel      `yaml:"severity,omitempty" json:"severity,omitempty"`
	Params   map[string]interface{} `yaml:"params,omitempty" json:"params,omitempty"`
}

// Adapter binds the asset to one provider and model.
type Adapter struct {
	Provider    string   `yaml:"provider" json:"provider"`
	Model       string   `yaml:"model" json:"model"`
	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	MaxTokens   int      `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
}

// Asset is an authoring-time prompt definition.
type Asset struct {
	ID           string                 `yaml:"id" json:"id"`
	Version      string                 `yaml:"version" json:"version"`
	Title        string                 `yaml:"title,omitempty" json:"title,omitempty"`
	Description  string                 `yaml:"description,omitempty" json:"description,omitempty"`
	Category     string                 `yaml:"category,omitempty" json:"category,omitempty"`
	Tags         []string               `yaml:"tags,omitempty" json:"tags,omitempty"`
	System       string                 `yaml:"system,omitempty" json:"system,omitempty"`
	Template     string                 `yaml:"template" json:"template"`
	InputSchema  map[string]Property    `yaml:"input_schema,omitempty" json:"input_schema,omitempty"`
	OutputFormat schema.OutputFormat    `yaml:"output_format,omitempty" json:"output_format,omitempty"`
	OutputSchema map[string]interface{} `yaml:"output_schema,omitempty" json:"output_schema,omitempty"`
	OutputBlocks []BlockSpec            `yaml:"output_blocks" json:"output_blocks"`
	Checks       []Check                `yaml:"qa_checks,omitempty" json:"qa_checks,omitempty"`
	Adapters     []Adapter              `yaml:"adapters,omitempty" json:"adapters,omitempty"`
}

// InputNames returns the declared input names, sorted.
func (a Asset) InputNames() []string {
	names := make([]string, 0, len(a.InputSchema))
	for k := range a.InputSchema {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// RequiredBlocks returns the keys of required output blocks in declared order.
func (a Asset) RequiredBlocks() []BlockSpec {
	var out []BlockSpec
	for _, b := range a.OutputBlocks {
		if b.Required {
			out = append(out, b)
		}
	}
	return out
}

// BlockKeys returns every declared block key in order.
func (a Asset) BlockKeys() []string {
	out := make([]string, len(a.OutputBlocks))
	for i, b := range a.OutputBlocks {
		out[i] = b.Key
	}
	return out
}

// Format returns the output format, defaulting to blocks when blocks are
// declared and text otherwise.
func (a Asset) Format() schema.OutputFormat {
	if a.OutputFormat != "" {
		return a.OutputFormat
	}
	if len(a.OutputBlocks) > 0 {
		return schema.FormatBlocks
	}
	return schema.FormatText
}

// Ref returns "id@version".
func (a Asset) Ref() string {
	return a.ID + "@" + a.Version
}

// Source converts the asset to the content record the router evaluates.
func (a Asset) Source() schema.ContentSource {
	var in map[string]interface{}
	if len(a.InputSchema) > 0 {
		in = make(map[string]interface{}, len(a.InputSchema))
		for k, p := range a.InputSchema {
			in[k] = p.AsMap()
		}
	}
	return schema.ContentSource{
		ID:          a.ID,
		Title:       a.Title,
		Description: a.Description,
		Tags:        a.Tags,
		Category:    a.Category,
		Type:        schema.ContentPrompt,
		Template:    a.Template,
		InputSchema: in,
	}
}

// AsMap returns the property as a plain JSON-schema-like map.
func (p Property) AsMap() map[string]interface{} {
	m := map[string]interface{}{"type": p.Type}
	if p.Description != "" {
		m["description"] = p.Description
	}
	if p.Default != nil {
		m["default"] = p.Default
	}
	if len(p.Enum) > 0 {
		m["enum"] = p.Enum
	}
	if p.Format != "" {
		m["format"] = p.Format
	}
	if len(p.Properties) > 0 {
		props := make(map[string]interface{}, len(p.Properties))
		for k, sub := range p.Properties {
			props[k] = sub.AsMap()
		}
		m["properties"] = props
	}
	if p.Items != nil {
		m["items"] = p.Items.AsMap()
	}
	return m
}

// Parse decodes an asset document. Shape problems are returned as issues with
// a nil asset; err is reserved for undecodable input.
func Parse(data []byte) (*Asset, []Issue, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("asset: decode: %w", err)
	}
	if raw == nil {
		return nil, []Issue{{Code: CodeMissingField, Path: "", Message: "document is empty"}}, nil
	}
	if issues := shapeIssues(raw); len(issues) > 0 {
		return nil, issues, nil
	}
	var a Asset
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, nil, fmt.Errorf("asset: decode: %w", err)
	}
	return &a, nil, nil
}

// LoadFile reads and parses one asset file (.yaml, .yml or .json).
func LoadFile(path string) (*Asset, []Issue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("asset: read %s: %w", path, err)
	}
	return Parse(data)
}

// LoadDir parses every asset file in dir, sorted by file name. Files with
// shape issues are reported per path rather than failing the whole load.
func LoadDir(dir string) ([]Asset, map[string][]Issue, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("asset: read dir %s: %w", dir, err)
	}
	var assets []Asset
	bad := make(map[string][]Issue)
	for _, e := range entries {
		if e.IsDir() || !IsAssetFile(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		a, issues, err := LoadFile(path)
		if err != nil {
			return nil, nil, err
		}
		if len(issues) > 0 {
			bad[path] = issues
			continue
		}
		assets = append(assets, *a)
	}
	return assets, bad, nil
}

// IsAssetFile reports whether name has an asset file extension.
func IsAssetFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}
