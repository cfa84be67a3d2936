package outputqa

import (
	"fmt"
	"strings"
)

// paramRange is an inclusive numeric bound for one provider parameter.
type paramRange struct {
	min, max float64
}

// providerParams are the documented parameter bounds for the image providers
// a visual prompt pack may target. Parameters not listed are not checked.
var providerParams = map[string]map[string]paramRange{
	"midjourney": {
		"stylize": {0, 1000},
		"chaos":   {0, 100},
		"weird":   {0, 3000},
		"quality": {0.25, 2},
		"seed":    {0, 4294967295},
	},
	"stable_diffusion": {
		"cfg_scale": {1, 30},
		"steps":     {1, 150},
		"width":     {64, 2048},
		"height":    {64, 2048},
		"seed":      {0, 4294967295},
	},
	"dalle": {
		"n": {1, 10},
	},
	"flux": {
		"guidance": {1, 10},
		"steps":    {1, 50},
		"width":    {256, 1440},
		"height":   {256, 1440},
	},
}

// NormalizeProvider maps provider spellings to the keys of providerParams.
func NormalizeProvider(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	p = strings.NewReplacer("-", "_", " ", "_", ".", "").Replace(p)
	switch p {
	case "mj":
		return "midjourney"
	case "sd", "sdxl", "stablediffusion":
		return "stable_diffusion"
	case "dall_e", "dalle3", "dall_e_3", "dalle_3":
		return "dalle"
	}
	return p
}

var (
	subjectKeys = []string{"subject", "prompt"}
	styleKeys   = []string{"style", "art_style"}
	// proseKeys are the fields whose text is sent to an image model verbatim.
	proseKeys = []string{"subject", "prompt", "style", "negative_prompt", "composition"}
)

// visualPack reports whether v has the visual prompt pack shape: an object
// with a "prompts" array whose entries are all objects.
func visualPack(v interface{}) ([]map[string]interface{}, bool) {
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, false
	}
	arr, ok := obj["prompts"].([]interface{})
	if !ok || len(arr) == 0 {
		return nil, false
	}
	out := make([]map[string]interface{}, 0, len(arr))
	for _, e := range arr {
		m, ok := e.(map[string]interface{})
		if !ok {
			return nil, false
		}
		out = append(out, m)
	}
	return out, true
}

func checkVisualPack(prompts []map[string]interface{}) []Issue {
	var out []Issue
	for i, p := range prompts {
		base := fmt.Sprintf("/prompts/%d", i)
		if !hasText(p, subjectKeys) {
			out = append(out, errorIssue(CodeVisualSubject, base, "prompt has no subject"))
		}
		if !hasText(p, styleKeys) {
			out = append(out, errorIssue(CodeVisualStyle, base, "prompt has no style"))
		}
		for _, k := range proseKeys {
			s, ok := p[k].(string)
			if !ok {
				continue
			}
			if kind := markdownKind(s); kind != "" {
				out = append(out, errorIssue(CodeVisualMarkdown, base+"/"+k,
					"image prompt text must not contain markdown "+kind))
			}
		}
		provider, _ := p["provider"].(string)
		params, _ := p["parameters"].(map[string]interface{})
		out = append(out, checkParams(NormalizeProvider(provider), params, base+"/parameters")...)
	}
	return out
}

func checkParams(provider string, params map[string]interface{}, base string) []Issue {
	bounds, ok := providerParams[provider]
	if !ok || len(params) == 0 {
		return nil
	}
	var out []Issue
	for _, name := range sortedKeys(params) {
		r, ok := bounds[name]
		if !ok {
			continue
		}
		f, ok := params[name].(float64)
		if !ok {
			out = append(out, errorIssue(CodeVisualParamRange, base+"/"+name,
				fmt.Sprintf("%s parameter %s must be a number", provider, name)))
			continue
		}
		if f < r.min || f > r.max {
			out = append(out, errorIssue(CodeVisualParamRange, base+"/"+name,
				fmt.Sprintf("%s parameter %s=%v is outside [%v, %v]", provider, name, f, r.min, r.max)))
		}
	}
	return out
}

func hasText(m map[string]interface{}, keys []string) bool {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return true
		}
	}
	return false
}
