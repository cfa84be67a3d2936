// Package testpack loads and validates test packs: named input cases with
// assertions over the raw model output of one prompt asset.
package testpack

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dshills/promptqa/internal/asset"
	"github.com/dshills/promptqa/internal/schema"
)

// Assertion kinds.
const (
	KindContains    = "contains"
	KindNotContains = "not_contains"
	KindRegexMatch  = "regex_match"
	KindMaxWords    = "max_words"
)

// Kinds lists every accepted assertion kind.
var Kinds = []string{KindContains, KindNotContains, KindRegexMatch, KindMaxWords}

// ErrUnknownAssertionKind is returned when an assertion names a kind outside Kinds.
var ErrUnknownAssertionKind = errors.New("testpack: unknown assertion kind")

// Validation issue codes.
const (
	CodeMissingField     = "MISSING_FIELD"
	CodeNoCases          = "NO_CASES"
	CodeEmptyCaseID      = "EMPTY_CASE_ID"
	CodeDuplicateCaseID  = "DUPLICATE_CASE_ID"
	CodeNoAssertions     = "NO_ASSERTIONS"
	CodeInvalidAssertion = "INVALID_ASSERTION"
	CodePromptMismatch   = "PROMPT_MISMATCH"
	CodeUndeclaredInput  = "UNDECLARED_INPUT"
)

// Pack is the test pack exchange document.
type Pack struct {
	Version       string `yaml:"version" json:"version"`
	PromptID      string `yaml:"prompt_id" json:"prompt_id"`
	PromptVersion string `yaml:"prompt_version" json:"prompt_version"`
	Modality      string `yaml:"modality,omitempty" json:"modality,omitempty"`
	Description   string `yaml:"description" json:"description"`
	Cases         []Case `yaml:"test_cases" json:"test_cases"`
}

// Case is one set of inputs and the assertions its output must satisfy.
type Case struct {
	ID          string                 `yaml:"id" json:"id"`
	Description string                 `yaml:"description,omitempty" json:"description,omitempty"`
	Inputs      map[string]interface{} `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Assertions  []Assertion            `yaml:"assertions" json:"assertions"`
}

// Assertion is one expectation on the output. Value is a string for the text
// kinds and a word count for max_words.
type Assertion struct {
	Kind        string      `yaml:"kind" json:"kind"`
	Value       interface{} `yaml:"value" json:"value"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
}

// UnmarshalYAML accepts the legacy "type" key as a synonym for "kind".
func (a *Assertion) UnmarshalYAML(n *yaml.Node) error {
	var raw struct {
		Kind        string      `yaml:"kind"`
		Type        string      `yaml:"type"`
		Value       interface{} `yaml:"value"`
		Description string      `yaml:"description"`
	}
	if err := n.Decode(&raw); err != nil {
		return err
	}
	kind := raw.Kind
	if kind == "" {
		kind = raw.Type
	}
	if !ValidKind(kind) {
		return fmt.Errorf("%w %q at line %d (valid kinds: %s)", ErrUnknownAssertionKind, kind, n.Line, strings.Join(Kinds, ", "))
	}
	*a = Assertion{Kind: kind, Value: raw.Value, Description: raw.Description}
	return nil
}

// ValidKind reports whether kind is one of Kinds.
func ValidKind(kind string) bool {
	for _, k := range Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Issue is one test pack validation problem.
type Issue struct {
	Level   schema.IssueLevel `json:"level"`
	Code    string            `json:"code"`
	Path    string            `json:"path"`
	Message string            `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("[%s] %s at %s: %s", i.Level, i.Code, i.Path, i.Message)
}

// Parse decodes a YAML or JSON test pack. An unknown assertion kind fails
// the whole document with ErrUnknownAssertionKind.
func Parse(data []byte) (*Pack, error) {
	var p Pack
	if err := yaml.Unmarshal(data, &p); err != nil {
		if errors.Is(err, ErrUnknownAssertionKind) {
			return nil, err
		}
		return nil, fmt.Errorf("testpack: decode: %w", err)
	}
	return &p, nil
}

// LoadFile reads and parses the test pack at path.
func LoadFile(path string) (*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("testpack: read %s: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Validate checks the pack's own shape and, when a is non-nil, that it
// targets a and only supplies declared inputs.
func Validate(p *Pack, a *asset.Asset) []Issue {
	issues := []Issue{}
	add := func(level schema.IssueLevel, code, path, format string, args ...interface{}) {
		issues = append(issues, Issue{Level: level, Code: code, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(p.Version) == "" {
		add(schema.IssueError, CodeMissingField, "version", "version is required")
	}
	if strings.TrimSpace(p.PromptID) == "" {
		add(schema.IssueError, CodeMissingField, "prompt_id", "prompt_id is required")
	}
	if len(p.Cases) == 0 {
		add(schema.IssueError, CodeNoCases, "test_cases", "at least one test case is required")
	}
	if a != nil {
		if p.PromptID != "" && p.PromptID != a.ID {
			add(schema.IssueError, CodePromptMismatch, "prompt_id", "pack targets %q, asset is %q", p.PromptID, a.ID)
		}
		if p.PromptVersion != "" && p.PromptVersion != a.Version {
			add(schema.IssueWarning, CodePromptMismatch, "prompt_version", "pack targets version %s, asset is %s", p.PromptVersion, a.Version)
		}
	}

	seen := make(map[string]bool)
	for i, c := range p.Cases {
		base := fmt.Sprintf("test_cases[%d]", i)
		switch {
		case strings.TrimSpace(c.ID) == "":
			add(schema.IssueError, CodeEmptyCaseID, base+".id", "case id is required")
		case seen[c.ID]:
			add(schema.IssueError, CodeDuplicateCaseID, base+".id", "duplicate case id %q", c.ID)
		}
		seen[c.ID] = true

		if len(c.Assertions) == 0 {
			add(schema.IssueWarning, CodeNoAssertions, base+".assertions", "case %q has no assertions", c.ID)
		}
		for j, as := range c.Assertions {
			if msg := assertionProblem(as); msg != "" {
				add(schema.IssueError, CodeInvalidAssertion, fmt.Sprintf("%s.assertions[%d]", base, j), "%s", msg)
			}
		}
		if a != nil {
			for _, name := range sortedKeys(c.Inputs) {
				if _, ok := a.InputSchema[name]; !ok {
					add(schema.IssueWarning, CodeUndeclaredInput, base+".inputs."+name, "input %q is not declared by the asset", name)
				}
			}
		}
	}
	return issues
}

func assertionProblem(as Assertion) string {
	switch as.Kind {
	case KindMaxWords:
		n, ok := wordLimit(as.Value)
		if !ok || n < 0 {
			return "max_words needs a non-negative numeric value"
		}
	case KindRegexMatch:
		s, _ := as.Value.(string)
		if s == "" {
			return "regex_match needs a pattern"
		}
		if _, err := regexp.Compile(s); err != nil {
			return fmt.Sprintf("pattern does not compile: %v", err)
		}
	default:
		if s, _ := as.Value.(string); s == "" {
			return as.Kind + " needs a non-empty string value"
		}
	}
	return ""
}

func wordLimit(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
