package assetqa

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/dshills/promptqa/internal/asset"
	"github.com/dshills/promptqa/internal/blocktext"
)

// PatchResult is the outcome of Patch. After is always populated, even when
// the patched output still fails.
type PatchResult struct {
	Output  string    `json:"output"`
	Added   []string  `json:"added"`
	Applied bool      `json:"applied"`
	Before  RunResult `json:"before"`
	After   RunResult `json:"after"`
}

var (
	titleRe      = regexp.MustCompile(`(?i)\b(title|headline|heading|name|subject)\b`)
	summaryRe    = regexp.MustCompile(`(?i)\b(summary|summarize|overview|abstract|tl;?dr|synopsis)\b`)
	conclusionRe = regexp.MustCompile(`(?i)\b(conclusion|conclude|closing|wrap[- ]?up|takeaways?|next steps)\b`)
	metadataRe   = regexp.MustCompile(`(?i)\b(metadata|meta|tags|keywords|labels)\b`)
	sentenceRe   = regexp.MustCompile(`[^.!?]+[.!?]?`)
)

// Patch fills every missing required block of output and re-runs the checks.
// The output is kept byte for byte; generated blocks are appended after it in
// declared order.
func Patch(a *asset.Asset, inputs map[string]interface{}, output string) PatchResult {
	before := Run(a, inputs, output)
	parsed := blocktext.Parse(output)
	missing := MissingRequired(a, parsed)
	res := PatchResult{Output: output, Added: []string{}, Before: before, After: before}
	if len(missing) == 0 {
		return res
	}

	source := existingText(parsed)
	specs := make(map[string]asset.BlockSpec)
	for _, b := range a.OutputBlocks {
		specs[b.Key] = b
	}
	added := blocktext.New()
	for _, key := range missing {
		added.Set(key, Generate(specs[key], inputs, source))
		res.Added = append(res.Added, key)
	}

	text := output + separator(output) + blocktext.Render(added, nil)
	res.Output = text
	res.Applied = true
	res.After = Run(a, inputs, text)
	return res
}

func separator(text string) string {
	switch {
	case text == "", strings.HasSuffix(text, "\n\n"):
		return ""
	case strings.HasSuffix(text, "\n"):
		return "\n"
	default:
		return "\n\n"
	}
}

// Generate produces content for one block from its key and description.
func Generate(spec asset.BlockSpec, inputs map[string]interface{}, source string) string {
	hint := spec.Key + " " + spec.Description
	switch {
	case titleRe.MatchString(hint):
		return generateTitle(inputs, source)
	case summaryRe.MatchString(hint):
		if s := firstSentences(source, 2); s != "" {
			return s
		}
		return "Summary: " + describeInputs(inputs)
	case conclusionRe.MatchString(hint):
		if s := firstSentences(source, 1); s != "" {
			return "In short, " + lowerFirst(s)
		}
		return "In short, this covers " + describeInputs(inputs) + "."
	case metadataRe.MatchString(hint):
		return metadataLines(inputs)
	default:
		desc := strings.TrimSpace(spec.Description)
		if desc == "" {
			desc = strings.ToLower(strings.ReplaceAll(spec.Key, "_", " "))
		}
		return fmt.Sprintf("[%s to be completed]", desc)
	}
}

func generateTitle(inputs map[string]interface{}, source string) string {
	for _, k := range []string{"title", "topic", "subject", "name"} {
		if v, ok := inputs[k].(string); ok && strings.TrimSpace(v) != "" {
			return titleCase(v)
		}
	}
	for _, line := range strings.Split(source, "\n") {
		if words := strings.Fields(line); len(words) > 0 {
			if len(words) > 8 {
				words = words[:8]
			}
			return titleCase(strings.TrimRight(strings.Join(words, " "), ".,;:!?"))
		}
	}
	return "Untitled"
}

func existingText(p blocktext.Result) string {
	var parts []string
	for _, k := range p.Blocks.Keys() {
		if v, _ := p.Blocks.Get(k); strings.TrimSpace(v) != "" {
			parts = append(parts, strings.TrimSpace(v))
		}
	}
	return strings.Join(parts, "\n")
}

func firstSentences(text string, n int) string {
	flat := strings.Join(strings.Fields(text), " ")
	var out []string
	for _, s := range sentenceRe.FindAllString(flat, -1) {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == n {
			break
		}
	}
	return strings.Join(out, " ")
}

func describeInputs(inputs map[string]interface{}) string {
	keys := sortedKeys(inputs)
	if len(keys) == 0 {
		return "the requested content"
	}
	vals := make([]string, 0, len(keys))
	for _, k := range keys {
		vals = append(vals, fmt.Sprint(inputs[k]))
	}
	return strings.Join(vals, ", ")
}

func metadataLines(inputs map[string]interface{}) string {
	var lines []string
	for _, k := range sortedKeys(inputs) {
		// An empty value would leave a bare "key:" line behind.
		if v := strings.TrimSpace(fmt.Sprint(inputs[k])); v != "" {
			lines = append(lines, k+": "+v)
		}
	}
	if len(lines) == 0 {
		return "generated: true"
	}
	return strings.Join(lines, "\n")
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

func lowerFirst(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	r[0] = []rune(strings.ToLower(string(r[0])))[0]
	return string(r)
}
