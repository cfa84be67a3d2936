package asset

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/dshills/promptqa/internal/schema"
	"github.com/dshills/promptqa/internal/tmpl"
)

// Issue codes.
const (
	CodeMissingField       = "SHAPE_MISSING_FIELD"
	CodeInvalidType        = "SHAPE_INVALID_TYPE"
	CodeUndeclaredVariable = "UNDECLARED_VARIABLE"
	CodeUnusedInput        = "UNUSED_INPUT"
	CodeInvalidBlockKey    = "INVALID_BLOCK_KEY"
	CodeDuplicateBlockKey  = "DUPLICATE_BLOCK_KEY"
	CodeInvalidVersion     = "INVALID_VERSION"
	CodeNoRequiredBlock    = "NO_REQUIRED_BLOCK"
	CodeDuplicateAdapter   = "DUPLICATE_ADAPTER"
	CodeDuplicateAsset     = "DUPLICATE_ASSET"
)

// Issue is one structural validation error.
type Issue struct {
	Code    string `json:"code"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Path == "" {
		return i.Code + ": " + i.Message
	}
	return fmt.Sprintf("%s at %s: %s", i.Code, i.Path, i.Message)
}

// Result is the outcome of Validate.
type Result struct {
	Valid  bool    `json:"valid"`
	Issues []Issue `json:"issues"`
}

var blockKeyRe = regexp.MustCompile(`^[A-Z_]+$`)

// ValidBlockKey reports whether key is uppercase letters and underscores.
func ValidBlockKey(key string) bool {
	return blockKeyRe.MatchString(key)
}

// versionProblem returns why v is not a plain MAJOR.MINOR.PATCH version, or
// "" when it is one.
func versionProblem(v string) string {
	sv, err := semver.StrictNewVersion(v)
	switch {
	case err != nil:
		return err.Error()
	case sv.Prerelease() != "":
		return "pre-release suffix not allowed"
	case sv.Metadata() != "":
		return "build metadata not allowed"
	}
	return ""
}

// Validate runs the authoring-time checks. Shape errors are returned alone;
// every later check accumulates.
func Validate(a *Asset) Result {
	if a == nil {
		return Result{Issues: []Issue{{Code: CodeMissingField, Message: "asset is nil"}}}
	}
	if issues := structIssues(a); len(issues) > 0 {
		return Result{Issues: issues}
	}

	var issues []Issue
	issues = append(issues, variableIssues(a)...)
	issues = append(issues, blockKeyIssues(a)...)
	if msg := versionProblem(a.Version); msg != "" {
		issues = append(issues, Issue{
			Code:    CodeInvalidVersion,
			Path:    "version",
			Message: fmt.Sprintf("version %q is not MAJOR.MINOR.PATCH: %s", a.Version, msg),
		})
	}
	if len(a.RequiredBlocks()) == 0 {
		issues = append(issues, Issue{
			Code:    CodeNoRequiredBlock,
			Path:    "output_blocks",
			Message: "at least one output block must be required",
		})
	}
	issues = append(issues, adapterIssues(a)...)

	if issues == nil {
		issues = []Issue{}
	}
	return Result{Valid: len(issues) == 0, Issues: issues}
}

// structIssues re-checks the shape on a decoded or hand-built asset.
func structIssues(a *Asset) []Issue {
	var issues []Issue
	missing := func(path string) {
		issues = append(issues, Issue{Code: CodeMissingField, Path: path, Message: path + " is required"})
	}
	if strings.TrimSpace(a.ID) == "" {
		missing("id")
	}
	if strings.TrimSpace(a.Version) == "" {
		missing("version")
	}
	if strings.TrimSpace(a.Template) == "" {
		missing("template")
	}
	if len(a.OutputBlocks) == 0 {
		missing("output_blocks")
	}
	for i, b := range a.OutputBlocks {
		if b.Key == "" {
			missing(fmt.Sprintf("output_blocks[%d].key", i))
		}
	}
	for _, name := range a.InputNames() {
		issues = append(issues, propertyIssues("input_schema."+name, a.InputSchema[name])...)
	}
	if a.OutputFormat != "" && !validFormat(a.OutputFormat) {
		issues = append(issues, Issue{
			Code:    CodeInvalidType,
			Path:    "output_format",
			Message: fmt.Sprintf("unknown output format %q", a.OutputFormat),
		})
	}
	for i, c := range a.Checks {
		if c.ID == "" {
			missing(fmt.Sprintf("qa_checks[%d].id", i))
		}
		if c.Severity != "" && c.Severity != schema.IssueError && c.Severity != schema.IssueWarning {
			issues = append(issues, Issue{
				Code:    CodeInvalidType,
				Path:    fmt.Sprintf("qa_checks[%d].severity", i),
				Message: fmt.Sprintf("severity must be error or warning, got %q", c.Severity),
			})
		}
	}
	for i, ad := range a.Adapters {
		if ad.Provider == "" {
			missing(fmt.Sprintf("adapters[%d].provider", i))
		}
		if ad.Model == "" {
			missing(fmt.Sprintf("adapters[%d].model", i))
		}
	}
	return issues
}

func propertyIssues(path string, p Property) []Issue {
	if !validType(p.Type) {
		return []Issue{{
			Code:    CodeInvalidType,
			Path:    path + ".type",
			Message: fmt.Sprintf("unknown input type %q", p.Type),
		}}
	}
	var issues []Issue
	if p.Pattern != "" {
		if _, err := regexp.Compile(p.Pattern); err != nil {
			issues = append(issues, Issue{
				Code:    CodeInvalidType,
				Path:    path + ".pattern",
				Message: fmt.Sprintf("pattern does not compile: %v", err),
			})
		}
	}
	keys := make([]string, 0, len(p.Properties))
	for k := range p.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		issues = append(issues, propertyIssues(path+".properties."+k, p.Properties[k])...)
	}
	if p.Items != nil {
		issues = append(issues, propertyIssues(path+".items", *p.Items)...)
	}
	return issues
}

func validType(t string) bool {
	switch t {
	case TypeString, TypeNumber, TypeInteger, TypeBoolean, TypeArray, TypeObject:
		return true
	}
	return false
}

func validFormat(f schema.OutputFormat) bool {
	switch f {
	case schema.FormatText, schema.FormatMarkdown, schema.FormatBlocks, schema.FormatJSON, schema.FormatStructured:
		return true
	}
	return false
}

func variableIssues(a *Asset) []Issue {
	vars := tmpl.Vars(a.System + "\n" + a.Template)
	used := make(map[string]bool, len(vars))
	var issues []Issue
	for _, v := range vars {
		used[v] = true
		if _, ok := a.InputSchema[v]; !ok {
			issues = append(issues, Issue{
				Code:    CodeUndeclaredVariable,
				Path:    "template",
				Message: fmt.Sprintf("template variable %q is not declared in input_schema", v),
			})
		}
	}
	for _, name := range a.InputNames() {
		if !used[name] {
			issues = append(issues, Issue{
				Code:    CodeUnusedInput,
				Path:    "input_schema." + name,
				Message: fmt.Sprintf("input %q is declared but never referenced in the template", name),
			})
		}
	}
	return issues
}

func blockKeyIssues(a *Asset) []Issue {
	var issues []Issue
	seen := make(map[string]bool)
	for i, b := range a.OutputBlocks {
		path := fmt.Sprintf("output_blocks[%d].key", i)
		if !ValidBlockKey(b.Key) {
			issues = append(issues, Issue{
				Code:    CodeInvalidBlockKey,
				Path:    path,
				Message: fmt.Sprintf("block key %q must be uppercase letters and underscores", b.Key),
			})
		}
		if seen[b.Key] {
			issues = append(issues, Issue{
				Code:    CodeDuplicateBlockKey,
				Path:    path,
				Message: fmt.Sprintf("block key %q is declared more than once", b.Key),
			})
		}
		seen[b.Key] = true
	}
	return issues
}

func adapterIssues(a *Asset) []Issue {
	var issues []Issue
	seen := make(map[string]bool)
	for i, ad := range a.Adapters {
		k := strings.ToLower(ad.Provider) + "/" + strings.ToLower(ad.Model)
		if seen[k] {
			issues = append(issues, Issue{
				Code:    CodeDuplicateAdapter,
				Path:    fmt.Sprintf("adapters[%d]", i),
				Message: fmt.Sprintf("adapter %s/%s is declared more than once", ad.Provider, ad.Model),
			})
		}
		seen[k] = true
	}
	return issues
}

// shapeIssues checks field presence and types on the raw decoded document.
func shapeIssues(raw map[string]interface{}) []Issue {
	var issues []Issue
	add := func(code, path, msg string) {
		issues = append(issues, Issue{Code: code, Path: path, Message: msg})
	}
	requireString := func(key string) {
		v, ok := raw[key]
		if !ok || v == nil {
			add(CodeMissingField, key, key+" is required")
			return
		}
		if _, ok := v.(string); !ok {
			add(CodeInvalidType, key, fmt.Sprintf("%s must be a string, got %s", key, typeName(v)))
		}
	}
	optional := func(key string, check func(interface{}) bool, want string) {
		v, ok := raw[key]
		if !ok || v == nil {
			return
		}
		if !check(v) {
			add(CodeInvalidType, key, fmt.Sprintf("%s must be %s, got %s", key, want, typeName(v)))
		}
	}

	requireString("id")
	requireString("version")
	requireString("template")
	for _, k := range []string{"title", "description", "category", "system", "output_format"} {
		optional(k, isString, "a string")
	}
	optional("tags", isStringList, "a list of strings")
	optional("input_schema", isMap, "a mapping")
	optional("output_schema", isMap, "a mapping")
	optional("qa_checks", isList, "a list")
	optional("adapters", isList, "a list")

	blocks, ok := raw["output_blocks"]
	switch {
	case !ok || blocks == nil:
		add(CodeMissingField, "output_blocks", "output_blocks is required")
	case !isList(blocks):
		add(CodeInvalidType, "output_blocks", fmt.Sprintf("output_blocks must be a list, got %s", typeName(blocks)))
	default:
		for i, item := range blocks.([]interface{}) {
			path := fmt.Sprintf("output_blocks[%d]", i)
			m, ok := item.(map[string]interface{})
			if !ok {
				add(CodeInvalidType, path, fmt.Sprintf("%s must be a mapping, got %s", path, typeName(item)))
				continue
			}
			if k, ok := m["key"]; !ok || !isString(k) {
				add(CodeMissingField, path+".key", "block key must be a string")
			}
			if r, ok := m["required"]; ok {
				if _, isBool := r.(bool); !isBool {
					add(CodeInvalidType, path+".required", fmt.Sprintf("required must be a boolean, got %s", typeName(r)))
				}
			}
		}
	}

	if in, ok := raw["input_schema"].(map[string]interface{}); ok {
		keys := make([]string, 0, len(in))
		for k := range in {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if !isMap(in[k]) {
				add(CodeInvalidType, "input_schema."+k, fmt.Sprintf("input %q must be a mapping, got %s", k, typeName(in[k])))
			}
		}
	}
	return issues
}

func isString(v interface{}) bool {
	_, ok := v.(string)
	return ok
}

func isMap(v interface{}) bool {
	_, ok := v.(map[string]interface{})
	return ok
}

func isList(v interface{}) bool {
	_, ok := v.([]interface{})
	return ok
}

func isStringList(v interface{}) bool {
	l, ok := v.([]interface{})
	if !ok {
		return false
	}
	for _, item := range l {
		if !isString(item) {
			return false
		}
	}
	return true
}

func typeName(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case int, int64, float64, uint64:
		return "number"
	case []interface{}:
		return "list"
	case map[string]interface{}:
		return "mapping"
	default:
		return fmt.Sprintf("%T", v)
	}
}
