package submission

import (
	"math"
	"regexp"
	"strings"

	"github.com/dshills/promptqa/internal/asset"
)

// SyntheticInputs builds a value for every declared property so an asset can
// be rendered without caller input.
func SyntheticInputs(props map[string]asset.Property) map[string]interface{} {
	out := make(map[string]interface{}, len(props))
	for name, p := range props {
		out[name] = SyntheticValue(name, p)
	}
	return out
}

// SyntheticValue returns the first enum value when one is declared and a
// type-based default otherwise.
func SyntheticValue(name string, p asset.Property) interface{} {
	if len(p.Enum) > 0 {
		return p.Enum[0]
	}
	switch p.Type {
	case asset.TypeString:
		return syntheticString(name, p)
	case asset.TypeNumber:
		return syntheticNumber(p)
	case asset.TypeInteger:
		f := syntheticNumber(p)
		if p.Minimum != nil {
			f = math.Ceil(f)
		}
		return int(f)
	case asset.TypeBoolean:
		return true
	case asset.TypeArray:
		if p.Items == nil {
			return []interface{}{}
		}
		return []interface{}{SyntheticValue(name, *p.Items)}
	case asset.TypeObject:
		return SyntheticInputs(p.Properties)
	}
	return "sample"
}

var formatSamples = map[string]string{
	"email":     "user@example.com",
	"uri":       "https://example.com",
	"url":       "https://example.com",
	"date":      "2024-01-01",
	"date-time": "2024-01-01T00:00:00Z",
	"uuid":      "00000000-0000-4000-8000-000000000000",
}

func syntheticString(name string, p asset.Property) string {
	if s, ok := formatSamples[p.Format]; ok {
		return s
	}
	s := "sample " + strings.ReplaceAll(name, "_", " ")
	if p.MinLength != nil {
		for len([]rune(s)) < *p.MinLength {
			s += "x"
		}
	}
	if p.MaxLength != nil && len([]rune(s)) > *p.MaxLength {
		s = string([]rune(s)[:*p.MaxLength])
	}
	if p.Pattern == "" {
		return s
	}
	re, err := regexp.Compile(p.Pattern)
	if err != nil || re.MatchString(s) {
		return s
	}
	for _, c := range patternCandidates(p) {
		if re.MatchString(c) && fitsLength(c, p) {
			return c
		}
	}
	return s
}

// patternCandidates are tried in order when the plain sample does not match
// a property's pattern.
func patternCandidates(p asset.Property) []string {
	var out []string
	if d, ok := p.Default.(string); ok {
		out = append(out, d)
	}
	out = append(out, "sample", "Sample", "SAMPLE", "1", "42", "a", "A", "abc", "ABC", "abc123", "sample-1", "sample_1")
	for _, f := range []string{"email", "uri", "date", "date-time", "uuid"} {
		out = append(out, formatSamples[f])
	}
	return out
}

func fitsLength(s string, p asset.Property) bool {
	n := len([]rune(s))
	return (p.MinLength == nil || n >= *p.MinLength) && (p.MaxLength == nil || n <= *p.MaxLength)
}

func syntheticNumber(p asset.Property) float64 {
	switch {
	case p.Minimum != nil:
		return *p.Minimum
	case p.Maximum != nil && *p.Maximum < 42:
		return *p.Maximum
	}
	return 42
}
