// Package assetqa runs an asset's declared QA checks against a candidate
// output and patches outputs that are missing required blocks.
package assetqa

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/dshills/promptqa/internal/asset"
	"github.com/dshills/promptqa/internal/blocktext"
	"github.com/dshills/promptqa/internal/schema"
)

// Check ids.
const (
	CheckRequiredBlocks    = "required_blocks_present"
	CheckNoExtraKeys       = "no_extra_keys"
	CheckNoDuplicateBlocks = "no_duplicate_blocks"
	CheckBlockOrder        = "block_order"
	CheckMaxWords          = "max_words"
	CheckContains          = "contains"
	CheckNotContains       = "not_contains"
	CheckRegexMatch        = "regex_match"
	CheckMentionsInput     = "mentions_input"
	CheckJSONValid         = "json_valid"

	CodeUnknownCheck = "UNKNOWN_CHECK"
)

// CheckResult is the outcome of one check.
type CheckResult struct {
	CheckID   string            `json:"check_id"`
	Passed    bool              `json:"passed"`
	Code      string            `json:"code,omitempty"`
	Message   string            `json:"message,omitempty"`
	Severity  schema.IssueLevel `json:"severity"`
	Patchable bool              `json:"patchable"`
	// Missing lists required block keys absent or empty in the output.
	Missing []string `json:"missing,omitempty"`
}

// RunResult aggregates every check run against one output.
type RunResult struct {
	Pass      bool          `json:"pass"`
	Failures  []CheckResult `json:"failures"`
	Warnings  []CheckResult `json:"warnings"`
	Patchable bool          `json:"patchable"`
	Results   []CheckResult `json:"results"`
}

// Input is what every check sees.
type Input struct {
	Asset  *asset.Asset
	Inputs map[string]interface{}
	Output string
	Parsed blocktext.Result
	Params map[string]interface{}
}

// CheckFunc evaluates one check. It fills Passed, Message, Patchable and
// Missing; the runner sets CheckID and Severity.
type CheckFunc func(in Input) CheckResult

var registry = map[string]CheckFunc{
	CheckRequiredBlocks:    requiredBlocks,
	CheckNoExtraKeys:       noExtraKeys,
	CheckNoDuplicateBlocks: noDuplicateBlocks,
	CheckBlockOrder:        blockOrder,
	CheckMaxWords:          maxWords,
	CheckContains:          containsCheck(true),
	CheckNotContains:       containsCheck(false),
	CheckRegexMatch:        regexMatch,
	CheckMentionsInput:     mentionsInput,
	CheckJSONValid:         jsonValid,
}

// Known reports whether id names a registered check.
func Known(id string) bool {
	_, ok := registry[id]
	return ok
}

// RunCheck evaluates the single registered check id. ok is false when id is
// not registered.
func RunCheck(id string, in Input) (r CheckResult, ok bool) {
	fn, ok := registry[id]
	if !ok {
		return CheckResult{}, false
	}
	r = fn(in)
	r.CheckID = id
	return r, true
}

// Run evaluates the baseline required-blocks check plus every declared
// check. Only failed error-severity checks count as failures.
func Run(a *asset.Asset, inputs map[string]interface{}, output string) RunResult {
	parsed := blocktext.Parse(output)
	decls := a.Checks
	baseline := true
	for _, c := range decls {
		if c.ID == CheckRequiredBlocks {
			baseline = false
		}
	}
	if baseline {
		decls = append([]asset.Check{{ID: CheckRequiredBlocks}}, decls...)
	}

	res := RunResult{Failures: []CheckResult{}, Warnings: []CheckResult{}, Results: []CheckResult{}}
	for _, c := range decls {
		sev := c.Severity
		if sev == "" {
			sev = schema.IssueError
		}
		var r CheckResult
		if fn, ok := registry[c.ID]; ok {
			r = fn(Input{Asset: a, Inputs: inputs, Output: output, Parsed: parsed, Params: c.Params})
		} else {
			r = CheckResult{Code: CodeUnknownCheck, Message: fmt.Sprintf("unknown check %q", c.ID)}
			sev = schema.IssueError
		}
		r.CheckID = c.ID
		r.Severity = sev
		if r.Passed {
			r.Patchable = false
		}
		res.Results = append(res.Results, r)
		if r.Passed {
			continue
		}
		if sev == schema.IssueError {
			res.Failures = append(res.Failures, r)
		} else {
			res.Warnings = append(res.Warnings, r)
		}
	}

	res.Pass = len(res.Failures) == 0
	res.Patchable = len(res.Failures) > 0
	for _, f := range res.Failures {
		if !f.Patchable {
			res.Patchable = false
		}
	}
	return res
}

// MissingRequired returns the required keys absent or empty in parsed, in
// declared order.
func MissingRequired(a *asset.Asset, parsed blocktext.Result) []string {
	var missing []string
	for _, b := range a.RequiredBlocks() {
		v, ok := parsed.Blocks.Get(b.Key)
		if !ok || strings.TrimSpace(v) == "" {
			missing = append(missing, b.Key)
		}
	}
	return missing
}

func requiredBlocks(in Input) CheckResult {
	missing := MissingRequired(in.Asset, in.Parsed)
	if len(missing) == 0 {
		return CheckResult{Passed: true}
	}
	return CheckResult{
		Message:   "missing required blocks: " + strings.Join(missing, ", "),
		Patchable: true,
		Missing:   missing,
	}
}

func noExtraKeys(in Input) CheckResult {
	declared := make(map[string]bool)
	for _, k := range in.Asset.BlockKeys() {
		declared[k] = true
	}
	var extra []string
	for _, k := range in.Parsed.Blocks.Keys() {
		if !declared[k] {
			extra = append(extra, k)
		}
	}
	extra = append(extra, in.Parsed.ExtraKeys...)
	if len(extra) == 0 {
		return CheckResult{Passed: true}
	}
	return CheckResult{Message: "undeclared keys: " + strings.Join(extra, ", ")}
}

func noDuplicateBlocks(in Input) CheckResult {
	if len(in.Parsed.Duplicates) == 0 {
		return CheckResult{Passed: true}
	}
	return CheckResult{Message: "duplicate blocks: " + strings.Join(in.Parsed.Duplicates, ", ")}
}

func blockOrder(in Input) CheckResult {
	pos := make(map[string]int)
	for i, k := range in.Parsed.Blocks.Keys() {
		pos[k] = i
	}
	last, lastKey := -1, ""
	for _, k := range in.Asset.BlockKeys() {
		p, ok := pos[k]
		if !ok {
			continue
		}
		if p < last {
			return CheckResult{Message: fmt.Sprintf("block %s appears before %s", k, lastKey)}
		}
		last, lastKey = p, k
	}
	return CheckResult{Passed: true}
}

func maxWords(in Input) CheckResult {
	limit, ok := number(in.Params["max"])
	if !ok {
		return CheckResult{Message: "max_words requires a numeric max parameter"}
	}
	n := len(strings.Fields(in.Output))
	if float64(n) <= limit {
		return CheckResult{Passed: true}
	}
	return CheckResult{Message: fmt.Sprintf("output has %d words, limit is %v", n, limit)}
}

func containsCheck(want bool) CheckFunc {
	return func(in Input) CheckResult {
		v, ok := in.Params["value"].(string)
		if !ok || v == "" {
			return CheckResult{Message: "a string value parameter is required"}
		}
		has := strings.Contains(strings.ToLower(in.Output), strings.ToLower(v))
		if has == want {
			return CheckResult{Passed: true}
		}
		if want {
			return CheckResult{Message: fmt.Sprintf("output does not contain %q", v)}
		}
		return CheckResult{Message: fmt.Sprintf("output contains forbidden text %q", v)}
	}
}

func regexMatch(in Input) CheckResult {
	p, ok := in.Params["pattern"].(string)
	if !ok || p == "" {
		return CheckResult{Message: "a pattern parameter is required"}
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return CheckResult{Message: fmt.Sprintf("pattern does not compile: %v", err)}
	}
	if re.MatchString(in.Output) {
		return CheckResult{Passed: true}
	}
	return CheckResult{Message: fmt.Sprintf("output does not match %s", p)}
}

func mentionsInput(in Input) CheckResult {
	name, ok := in.Params["input"].(string)
	if !ok || name == "" {
		return CheckResult{Message: "an input parameter is required"}
	}
	v, ok := in.Inputs[name]
	if !ok {
		return CheckResult{Message: fmt.Sprintf("input %q was not supplied", name)}
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if s != "" && strings.Contains(strings.ToLower(in.Output), strings.ToLower(s)) {
		return CheckResult{Passed: true}
	}
	return CheckResult{Message: fmt.Sprintf("output does not mention input %s (%q)", name, s)}
}

func jsonValid(in Input) CheckResult {
	if json.Valid([]byte(strings.TrimSpace(in.Output))) {
		return CheckResult{Passed: true}
	}
	return CheckResult{Message: "output is not valid JSON"}
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
