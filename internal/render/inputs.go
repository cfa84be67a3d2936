package render

import (
	"fmt"
	"math"
	"net/mail"
	"net/url"
	"reflect"
	"regexp"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dshills/promptqa/internal/asset"
)

// Input error codes.
const (
	CodeRequiredField  = "REQUIRED_FIELD"
	CodeInvalidType    = "INVALID_TYPE"
	CodeInvalidOption  = "INVALID_OPTION"
	CodeInvalidFormat  = "INVALID_FORMAT"
	CodeValueTooSmall  = "VALUE_TOO_SMALL"
	CodeValueTooLarge  = "VALUE_TOO_LARGE"
	CodeStringTooShort = "STRING_TOO_SHORT"
	CodeStringTooLong  = "STRING_TOO_LONG"
)

// InputError is one input-resolution failure.
type InputError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// InputValidation is the result of resolving every declared input.
type InputValidation struct {
	Valid  bool         `json:"valid"`
	Errors []InputError `json:"errors"`
}

// ResolveInputs applies defaults and validates supplied values against the
// declared properties. Undeclared supplied values are ignored. Properties are
// visited in name order so the error list is deterministic.
func ResolveInputs(props map[string]asset.Property, supplied map[string]interface{}) (map[string]interface{}, InputValidation) {
	resolved := make(map[string]interface{}, len(props))
	var errs []InputError
	for _, name := range sortedNames(props) {
		v, ok := resolveOne(name, name, props[name], supplied, &errs)
		if ok {
			resolved[name] = v
		}
	}
	if errs == nil {
		errs = []InputError{}
	}
	return resolved, InputValidation{Valid: len(errs) == 0, Errors: errs}
}

// resolveOne resolves supplied[key]; field is the dotted path used in errors.
func resolveOne(field, key string, p asset.Property, supplied map[string]interface{}, errs *[]InputError) (interface{}, bool) {
	v, present := supplied[key]
	if !present || v == nil {
		if p.Default != nil {
			return p.Default, true
		}
		if p.Required {
			*errs = append(*errs, InputError{Field: field, Code: CodeRequiredField, Message: field + " is required"})
		}
		return nil, false
	}
	if e := checkValue(field, p, v); len(e) > 0 {
		*errs = append(*errs, e...)
		return nil, false
	}
	if p.Type == asset.TypeObject && len(p.Properties) > 0 {
		m := v.(map[string]interface{})
		out := make(map[string]interface{}, len(m))
		before := len(*errs)
		for _, sub := range sortedNames(p.Properties) {
			subVal, ok := resolveOne(field+"."+sub, sub, p.Properties[sub], m, errs)
			if ok {
				out[sub] = subVal
			}
		}
		if len(*errs) > before {
			return nil, false
		}
		return out, true
	}
	return v, true
}

func checkValue(field string, p asset.Property, v interface{}) []InputError {
	bad := func(code, format string, args ...interface{}) []InputError {
		return []InputError{{Field: field, Code: code, Message: fmt.Sprintf(format, args...)}}
	}
	if !typeMatches(p.Type, v) {
		return bad(CodeInvalidType, "%s must be of type %s", field, p.Type)
	}
	if len(p.Enum) > 0 && !inEnum(p.Enum, v) {
		return bad(CodeInvalidOption, "%s must be one of %v", field, p.Enum)
	}
	switch p.Type {
	case asset.TypeString:
		s := v.(string)
		if p.Pattern != "" {
			re, err := regexp.Compile(p.Pattern)
			if err != nil || !re.MatchString(s) {
				return bad(CodeInvalidFormat, "%s does not match pattern %s", field, p.Pattern)
			}
		}
		if p.Format != "" && !formatMatches(p.Format, s) {
			return bad(CodeInvalidFormat, "%s is not a valid %s", field, p.Format)
		}
		n := utf8.RuneCountInString(s)
		if p.MinLength != nil && n < *p.MinLength {
			return bad(CodeStringTooShort, "%s must be at least %d characters", field, *p.MinLength)
		}
		if p.MaxLength != nil && n > *p.MaxLength {
			return bad(CodeStringTooLong, "%s must be at most %d characters", field, *p.MaxLength)
		}
	case asset.TypeNumber, asset.TypeInteger:
		f, _ := toFloat(v)
		if p.Minimum != nil && f < *p.Minimum {
			return bad(CodeValueTooSmall, "%s must be >= %v", field, *p.Minimum)
		}
		if p.Maximum != nil && f > *p.Maximum {
			return bad(CodeValueTooLarge, "%s must be <= %v", field, *p.Maximum)
		}
	}
	return nil
}

func typeMatches(t string, v interface{}) bool {
	switch t {
	case asset.TypeString:
		_, ok := v.(string)
		return ok
	case asset.TypeNumber:
		_, ok := toFloat(v)
		return ok
	case asset.TypeInteger:
		f, ok := toFloat(v)
		return ok && f == math.Trunc(f)
	case asset.TypeBoolean:
		_, ok := v.(bool)
		return ok
	case asset.TypeArray:
		_, ok := v.([]interface{})
		return ok
	case asset.TypeObject:
		_, ok := v.(map[string]interface{})
		return ok
	}
	return false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func inEnum(enum []interface{}, v interface{}) bool {
	vf, vNum := toFloat(v)
	for _, e := range enum {
		if ef, ok := toFloat(e); ok && vNum {
			if ef == vf {
				return true
			}
			continue
		}
		if reflect.DeepEqual(e, v) {
			return true
		}
	}
	return false
}

func formatMatches(format, s string) bool {
	switch format {
	case "email":
		a, err := mail.ParseAddress(s)
		return err == nil && a.Address == s
	case "uri", "url":
		u, err := url.ParseRequestURI(s)
		return err == nil && u.Scheme != "" && u.Host != ""
	case "date":
		_, err := time.Parse("2006-01-02", s)
		return err == nil
	case "date-time":
		_, err := time.Parse(time.RFC3339, s)
		return err == nil
	case "uuid":
		_, err := uuid.Parse(s)
		return err == nil
	}
	// Unknown formats are not enforced.
	return true
}

func sortedNames(props map[string]asset.Property) []string {
	names := make([]string, 0, len(props))
	for k := range props {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
