package asset

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Duplicates reports every asset whose id@version was already seen.
func Duplicates(assets []Asset) []Issue {
	var issues []Issue
	seen := make(map[string]int)
	for i, a := range assets {
		ref := a.Ref()
		if first, ok := seen[ref]; ok {
			issues = append(issues, Issue{
				Code:    CodeDuplicateAsset,
				Path:    fmt.Sprintf("assets[%d]", i),
				Message: fmt.Sprintf("%s duplicates assets[%d]", ref, first),
			})
			continue
		}
		seen[ref] = i
	}
	return issues
}

// Versions returns the assets with the given id ordered from oldest to
// newest. Assets with unparseable versions are skipped.
func Versions(assets []Asset, id string) []Asset {
	type entry struct {
		a Asset
		v *semver.Version
	}
	var es []entry
	for _, a := range assets {
		if a.ID != id {
			continue
		}
		v, err := semver.StrictNewVersion(a.Version)
		if err != nil {
			continue
		}
		es = append(es, entry{a, v})
	}
	sort.SliceStable(es, func(i, j int) bool { return es[i].v.LessThan(es[j].v) })
	out := make([]Asset, len(es))
	for i, e := range es {
		out[i] = e.a
	}
	return out
}

// Latest returns the highest semantic version of id.
func Latest(assets []Asset, id string) (Asset, bool) {
	vs := Versions(assets, id)
	if len(vs) == 0 {
		return Asset{}, false
	}
	return vs[len(vs)-1], true
}

// Find returns the asset matching ref. A bare id resolves to its latest
// version; "id@version" must match exactly.
func Find(assets []Asset, ref string) (Asset, bool) {
	if !strings.Contains(ref, "@") {
		return Latest(assets, ref)
	}
	for _, a := range assets {
		if a.Ref() == ref {
			return a, true
		}
	}
	return Asset{}, false
}
