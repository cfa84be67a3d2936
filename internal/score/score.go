// Package score provides deterministic local logic for rubric scoring and
// the level gate. No model calls are made here.
package score

import (
	"github.com/dshills/promptqa/internal/detect"
	"github.com/dshills/promptqa/internal/rubric"
	"github.com/dshills/promptqa/internal/schema"
)

// Breakdown keys.
const (
	KeyStructure              = "structure"
	KeyConstraints            = "constraints"
	KeyContradictionPenalty   = "penalty:contradictions"
	KeyInstabilityPenalty     = "penalty:instability"
	checkKeyPrefix            = "check:"
	SectionCheckPrefix        = "section:"
	CheckConstraintsPresent   = "constraints_present"
	CheckConstraintsDirective = "constraints_directive"
)

// Result is the scorer output for one prompt.
type Result struct {
	Score          int
	Breakdown      map[string]int
	Checks         map[string]bool
	Present        map[string]bool
	Contradictions []rubric.Pair
	Instability    []string
}

// Score applies rubric r to c.
//
// The positive components (structure, explicitness checks, constraint
// clarity) sum to at most r.Total(). Contradiction and instability penalties
// are each capped, then subtracted; the result is clamped to [0, 100].
func Score(r rubric.Rubric, c schema.PromptContent) Result {
	res := Result{
		Breakdown: make(map[string]int),
		Checks:    make(map[string]bool),
		Present:   detect.Sections(r, c),
	}

	present := 0
	for _, s := range r.Sections {
		ok := res.Present[s.Name]
		res.Checks[SectionCheckPrefix+s.Name] = ok
		if ok {
			present++
		}
	}
	res.Breakdown[KeyStructure] = Proportion(r.StructureWeight, present, len(r.Sections))

	for _, chk := range r.Checks {
		ok := chk.Pattern.MatchString(c.Text)
		res.Checks[chk.Name] = ok
		pts := 0
		if ok {
			pts = chk.Weight
		}
		res.Breakdown[checkKeyPrefix+chk.Name] = pts
	}

	body := detect.Body(r, c, r.ConstraintSection)
	hasBody := body != ""
	hasDirective := hasBody && rubric.DirectivePattern.MatchString(body)
	res.Checks[CheckConstraintsPresent] = hasBody
	res.Checks[CheckConstraintsDirective] = hasDirective
	half := r.ConstraintWeight / 2
	constraintPts := 0
	if hasBody {
		constraintPts += half
	}
	if hasDirective {
		constraintPts += r.ConstraintWeight - half
	}
	res.Breakdown[KeyConstraints] = constraintPts

	res.Contradictions = detect.Contradictions(r, c.Text)
	res.Instability = detect.Instability(r, c.Text)
	contradictionPenalty := Penalty(len(res.Contradictions), rubric.ContradictionPenalty, rubric.ContradictionPenaltyCap)
	instabilityPenalty := Penalty(len(res.Instability), rubric.InstabilityPenalty, rubric.InstabilityPenaltyCap)
	res.Breakdown[KeyContradictionPenalty] = -contradictionPenalty
	if len(r.Instability) > 0 {
		res.Breakdown[KeyInstabilityPenalty] = -instabilityPenalty
	}

	total := res.Breakdown[KeyStructure] + constraintPts
	for _, chk := range r.Checks {
		total += res.Breakdown[checkKeyPrefix+chk.Name]
	}
	res.Score = Clamp(total - contradictionPenalty - instabilityPenalty)
	return res
}

// CheckKey returns the breakdown key of an explicitness check.
func CheckKey(name string) string {
	return checkKeyPrefix + name
}

// Proportion returns weight scaled by part/whole, rounded half up.
// A zero whole yields zero.
func Proportion(weight, part, whole int) int {
	if whole <= 0 {
		return 0
	}
	return (2*weight*part + whole) / (2 * whole)
}

// Penalty returns count*each, capped at limit.
func Penalty(count, each, limit int) int {
	p := count * each
	if p > limit {
		return limit
	}
	return p
}

// Clamp limits v to [0, 100].
func Clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// DetermineLevel applies the gate: verified requires a score of at least
// schema.VerifiedThreshold and no error-level issue.
func DetermineLevel(score int, issues []schema.QaIssue) schema.Level {
	if score < schema.VerifiedThreshold {
		return schema.LevelDraft
	}
	for _, is := range issues {
		if is.Level == schema.IssueError {
			return schema.LevelDraft
		}
	}
	return schema.LevelVerified
}

// CountLevels aggregates issue counts by level.
func CountLevels(issues []schema.QaIssue) (errs, warns int) {
	for _, is := range issues {
		switch is.Level {
		case schema.IssueError:
			errs++
		case schema.IssueWarning:
			warns++
		}
	}
	return
}
