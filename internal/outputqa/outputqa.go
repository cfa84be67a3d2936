// Package outputqa validates raw model output against the format an asset
// expects. Non-structured formats pass through unchecked. Structured output is
// checked for a leading code fence, strictly parsed, scanned for markdown
// leakage and visual prompt pack problems, then checked against the declared
// output schema.
package outputqa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/kaptinlin/jsonrepair"

	"github.com/dshills/promptqa/internal/blocktext"
	"github.com/dshills/promptqa/internal/schema"
)

// Issue codes.
const (
	CodeMarkdownFence    = "MARKDOWN_FENCE"
	CodeJSONParse        = "JSON_PARSE"
	CodeMarkdownLeakage  = "MARKDOWN_LEAKAGE"
	CodeSchemaCompile    = "SCHEMA_COMPILE"
	CodeSchemaViolation  = "SCHEMA_VIOLATION"
	CodeVisualSubject    = "VISUAL_MISSING_SUBJECT"
	CodeVisualStyle      = "VISUAL_MISSING_STYLE"
	CodeVisualMarkdown   = "VISUAL_MARKDOWN"
	CodeVisualParamRange = "VISUAL_PARAM_OUT_OF_RANGE"
)

// Issue is one output validation finding. Path is a JSON pointer into the
// parsed value, empty for whole-document problems.
type Issue struct {
	Level   schema.IssueLevel `json:"level"`
	Code    string            `json:"code"`
	Path    string            `json:"path,omitempty"`
	Message string            `json:"message"`
}

func (i Issue) String() string {
	if i.Path == "" {
		return fmt.Sprintf("%s: %s", i.Code, i.Message)
	}
	return fmt.Sprintf("%s at %s: %s", i.Code, i.Path, i.Message)
}

// Result is the outcome of Validate. Issues holds blocking errors only;
// advisory findings go to Warnings. LastParsed keeps the best value recovered
// from the output, even when validation failed, so a repair prompt can
// reference it.
type Result struct {
	OK         bool        `json:"ok"`
	Value      interface{} `json:"value,omitempty"`
	Warnings   []Issue     `json:"warnings"`
	Issues     []Issue     `json:"issues"`
	RawText    string      `json:"raw_text"`
	LastParsed interface{} `json:"last_parsed,omitempty"`
}

// Repairable reports whether a failed result is a candidate for repair. A
// schema that does not compile cannot be fixed by the model.
func (r Result) Repairable() bool {
	if r.OK {
		return false
	}
	for _, is := range r.Issues {
		if is.Code == CodeSchemaCompile {
			return false
		}
	}
	return true
}

// Codes returns the issue codes in order.
func (r Result) Codes() []string {
	out := make([]string, len(r.Issues))
	for i, is := range r.Issues {
		out[i] = is.Code
	}
	return out
}

// Validate checks raw against format and, when non-empty, outSchema.
func Validate(raw string, format schema.OutputFormat, outSchema map[string]interface{}) Result {
	res := Result{RawText: raw, Warnings: []Issue{}, Issues: []Issue{}}
	if !format.IsStructured() {
		res.OK = true
		res.Value = raw
		return res
	}

	trimmed := strings.TrimSpace(raw)
	firstLine := trimmed
	if i := strings.IndexByte(trimmed, '\n'); i >= 0 {
		firstLine = trimmed[:i]
	}
	if marker := blocktext.FencePrefix(firstLine); marker != "" {
		res.Issues = append(res.Issues, errorIssue(CodeMarkdownFence, "",
			fmt.Sprintf("output starts with a %s code fence; return bare JSON", marker)))
		res.LastParsed = salvage(trimmed)
		return res
	}

	v, err := decodeStrict(trimmed)
	if err != nil {
		res.Issues = append(res.Issues, errorIssue(CodeJSONParse, "", err.Error()))
		res.LastParsed = salvage(trimmed)
		return res
	}
	res.LastParsed = v

	res.Warnings = append(res.Warnings, leakage(v, "")...)
	if pack, ok := visualPack(v); ok {
		res.Issues = append(res.Issues, checkVisualPack(pack)...)
	}
	if len(outSchema) > 0 {
		res.Issues = append(res.Issues, checkSchema(v, outSchema)...)
	}

	res.OK = len(res.Issues) == 0
	if res.OK {
		res.Value = v
	}
	return res
}

func errorIssue(code, path, msg string) Issue {
	return Issue{Level: schema.IssueError, Code: code, Path: path, Message: msg}
}

// decodeStrict parses exactly one JSON value and rejects trailing data.
func decodeStrict(s string) (interface{}, error) {
	if s == "" {
		return nil, errors.New("output is empty")
	}
	dec := json.NewDecoder(strings.NewReader(s))
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("invalid JSON: unexpected data after the top-level value")
	}
	return v, nil
}

var fenceLineRe = regexp.MustCompile("(?m)^\\s{0,3}(?:`{3,}|~{3,})[^\\n]*$")

// salvage makes a best-effort attempt to extract a JSON value from broken
// output. It never fails; nil means nothing could be recovered.
func salvage(s string) interface{} {
	s = strings.TrimSpace(fenceLineRe.ReplaceAllString(s, ""))
	if s == "" {
		return nil
	}
	if v, err := decodeStrict(s); err == nil {
		return v
	}
	fixed, err := jsonrepair.JSONRepair(s)
	if err != nil {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal([]byte(fixed), &v); err != nil {
		return nil
	}
	return v
}

var markdownRes = []struct {
	re   *regexp.Regexp
	name string
}{
	{regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s`), "heading"},
	{regexp.MustCompile(`\*\*[^*\n]+\*\*|__[^_\n]+__`), "bold text"},
	{regexp.MustCompile("```|~~~"), "code fence"},
	{regexp.MustCompile(`\[[^\]\n]+\]\([^)\s]+\)`), "link"},
	{regexp.MustCompile(`(?m)^\s*[-*+]\s+\S`), "bullet list"},
}

func markdownKind(s string) string {
	for _, m := range markdownRes {
		if m.re.MatchString(s) {
			return m.name
		}
	}
	return ""
}

// leakage walks every string in v and warns on markdown syntax.
func leakage(v interface{}, path string) []Issue {
	var out []Issue
	switch x := v.(type) {
	case string:
		if kind := markdownKind(x); kind != "" {
			out = append(out, Issue{
				Level:   schema.IssueWarning,
				Code:    CodeMarkdownLeakage,
				Path:    rootPath(path),
				Message: "string contains markdown " + kind,
			})
		}
	case []interface{}:
		for i, e := range x {
			out = append(out, leakage(e, fmt.Sprintf("%s/%d", path, i))...)
		}
	case map[string]interface{}:
		for _, k := range sortedKeys(x) {
			out = append(out, leakage(x[k], path+"/"+escapePointer(k))...)
		}
	}
	return out
}

func checkSchema(v interface{}, outSchema map[string]interface{}) []Issue {
	sch, err := compile(outSchema)
	if err != nil {
		return []Issue{errorIssue(CodeSchemaCompile, "", err.Error())}
	}
	err = sch.VisitJSON(v, openapi3.MultiErrors())
	if err == nil {
		return nil
	}
	var out []Issue
	for _, e := range flatten(err) {
		out = append(out, schemaIssue(e))
	}
	return out
}

// flatten unwraps nested openapi3.MultiError values.
func flatten(err error) []error {
	var multi openapi3.MultiError
	if !errors.As(err, &multi) {
		return []error{err}
	}
	var out []error
	for _, e := range multi {
		out = append(out, flatten(e)...)
	}
	return out
}

func schemaIssue(err error) Issue {
	var se *openapi3.SchemaError
	if errors.As(err, &se) {
		msg := se.Reason
		if msg == "" {
			msg = se.Error()
		}
		return errorIssue(CodeSchemaViolation, pointer(se.JSONPointer()), msg)
	}
	return errorIssue(CodeSchemaViolation, "", err.Error())
}

// compile converts a JSON-Schema-style map into an openapi3 schema and checks
// that it is well formed.
func compile(outSchema map[string]interface{}) (*openapi3.Schema, error) {
	m := make(map[string]interface{}, len(outSchema))
	for k, v := range outSchema {
		m[k] = v
	}
	// Top-level identifiers have no openapi3 counterpart.
	delete(m, "$schema")
	delete(m, "$id")
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("output schema: encode: %w", err)
	}
	var sch openapi3.Schema
	if err := json.Unmarshal(b, &sch); err != nil {
		return nil, fmt.Errorf("output schema: decode: %w", err)
	}
	if err := sch.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("output schema: %w", err)
	}
	return &sch, nil
}

// CompileSchema reports whether outSchema compiles. Asset tooling uses it to
// flag broken schemas before any model call.
func CompileSchema(outSchema map[string]interface{}) error {
	_, err := compile(outSchema)
	return err
}

func pointer(parts []string) string {
	if len(parts) == 0 {
		return ""
	}
	var buf bytes.Buffer
	for _, p := range parts {
		buf.WriteByte('/')
		buf.WriteString(escapePointer(p))
	}
	return buf.String()
}

func rootPath(p string) string {
	if p == "" {
		return "/"
	}
	return p
}

func escapePointer(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "~", "~0"), "/", "~1")
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
