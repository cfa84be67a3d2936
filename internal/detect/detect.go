// Package detect finds structural sections and contradictory instructions in
// prompt text. Detection is surface pattern matching only: a section is present
// when one of its aliases appears as a line-anchored header, and a
// contradiction fires when both terms of a pair occur as whole words.
//
// All functions are pure and safe for concurrent use.
package detect

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dshills/promptqa/internal/rubric"
	"github.com/dshills/promptqa/internal/schema"
)

// table maps a section name to the header patterns compiled from its aliases.
type table map[string][]*regexp.Regexp

// tables holds one compiled table per rubric. It is built once at package
// init and never mutated afterwards.
var tables = buildTables()

func buildTables() map[string]table {
	out := make(map[string]table)
	for _, name := range rubric.Names() {
		r, _ := rubric.Load(name)
		t := make(table, len(r.Sections))
		for _, s := range r.Sections {
			for _, a := range s.Aliases {
				t[s.Name] = append(t[s.Name], HeaderPattern(a))
			}
		}
		out[name] = t
	}
	return out
}

// HeaderPattern compiles the header regex for one alias. The match is
// case-insensitive and anchored to the start of a line. It tolerates leading
// heading markers (#, >, list bullets), bold/bracket wrappers, and '_' or '-'
// between words, and requires a colon or end of line after the alias.
func HeaderPattern(alias string) *regexp.Regexp {
	words := strings.Fields(alias)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	body := strings.Join(words, `[ \t_-]+`)
	return regexp.MustCompile(`(?im)^[ \t]*(?:#{1,6}[ \t]*|>[ \t]*|[-*][ \t]+)?(?:\*\*|__|\[)?[ \t]*` +
		body + `[ \t]*(?:\*\*|__|\])?[ \t]*(?::|\r?$)`)
}

func tableFor(r rubric.Rubric) table {
	if t, ok := tables[r.Name]; ok {
		return t
	}
	// Rubrics built outside the registry (tests, callers) compile on demand.
	t := make(table, len(r.Sections))
	for _, s := range r.Sections {
		for _, a := range s.Aliases {
			t[s.Name] = append(t[s.Name], HeaderPattern(a))
		}
	}
	return t
}

// Sections returns the presence map for every section of r. Labeled sections
// in c count when their label normalizes to one of the section's aliases.
func Sections(r rubric.Rubric, c schema.PromptContent) map[string]bool {
	t := tableFor(r)
	present := make(map[string]bool, len(r.Sections))
	for _, s := range r.Sections {
		present[s.Name] = matchesAny(t[s.Name], c.Text) || labelMatches(s, c.Sections)
	}
	return present
}

// Missing returns the names of absent sections in rubric order.
func Missing(r rubric.Rubric, c schema.PromptContent) []string {
	present := Sections(r, c)
	var missing []string
	for _, s := range r.Sections {
		if !present[s.Name] {
			missing = append(missing, s.Name)
		}
	}
	return missing
}

func matchesAny(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

func labelMatches(s rubric.Section, labeled []schema.Section) bool {
	for _, l := range labeled {
		norm := NormalizeLabel(l.Label)
		for _, a := range s.Aliases {
			if norm == NormalizeLabel(a) {
				return true
			}
		}
	}
	return false
}

// NormalizeLabel uppercases a section label, strips heading and emphasis
// markers and a trailing colon, and folds '_' and '-' to single spaces.
func NormalizeLabel(label string) string {
	s := strings.TrimSpace(label)
	s = strings.TrimLeft(s, "#>*_[ \t")
	s = strings.TrimRight(s, ":*_] \t")
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}

// header is one detected section header occurrence.
type header struct {
	start, end int
	section    string
}

func headers(t table, text string) []header {
	var hs []header
	for name, patterns := range t {
		for _, p := range patterns {
			for _, loc := range p.FindAllStringIndex(text, -1) {
				hs = append(hs, header{start: loc[0], end: loc[1], section: name})
			}
		}
	}
	sort.Slice(hs, func(i, j int) bool {
		if hs[i].start != hs[j].start {
			return hs[i].start < hs[j].start
		}
		if hs[i].end != hs[j].end {
			return hs[i].end > hs[j].end
		}
		return hs[i].section < hs[j].section
	})
	return hs
}

// Body returns the trimmed content of the first occurrence of section,
// running from the end of its header to the start of the next detected
// header. A non-empty labeled section body takes precedence.
func Body(r rubric.Rubric, c schema.PromptContent, section string) string {
	for _, s := range r.Sections {
		if s.Name != section {
			continue
		}
		for _, l := range c.Sections {
			if labelMatches(s, []schema.Section{l}) && strings.TrimSpace(l.Body) != "" {
				return strings.TrimSpace(l.Body)
			}
		}
	}

	hs := headers(tableFor(r), c.Text)
	for i, h := range hs {
		if h.section != section {
			continue
		}
		end := len(c.Text)
		for _, next := range hs[i+1:] {
			if next.start >= h.end {
				end = next.start
				break
			}
		}
		return strings.TrimSpace(c.Text[h.end:end])
	}
	return ""
}

// Contradictions returns every pair of r whose terms both occur in text,
// compared case-insensitively, in table order.
func Contradictions(r rubric.Rubric, text string) []rubric.Pair {
	lower := strings.ToLower(text)
	var fired []rubric.Pair
	for _, p := range r.Contradictions {
		if containsTerm(lower, strings.ToLower(p.A)) && containsTerm(lower, strings.ToLower(p.B)) {
			fired = append(fired, p)
		}
	}
	return fired
}

// containsTerm reports whether term occurs in text with no letter or digit
// directly before or after it. Both arguments are already lowercased.
func containsTerm(text, term string) bool {
	if term == "" {
		return false
	}
	for from := 0; ; {
		i := strings.Index(text[from:], term)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(term)
		if !wordRuneBefore(text, start) && !wordRuneAfter(text, end) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		from = start + size
	}
}

func wordRuneBefore(text string, i int) bool {
	if i == 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func wordRuneAfter(text string, i int) bool {
	if i >= len(text) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Instability returns the instability phrases of r present in text.
func Instability(r rubric.Rubric, text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, phrase := range r.Instability {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			found = append(found, phrase)
		}
	}
	return found
}
