package export

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dshills/promptqa/internal/router"
	"github.com/dshills/promptqa/internal/schema"
	"github.com/dshills/promptqa/internal/submission"
)

// Markdown produces a GitHub-flavoured QA report for pipeline results. Every
// issue code present in the results appears in the output.
func Markdown(results []router.PipelineResult) string {
	var sb strings.Builder
	sb.WriteString("## PromptQA Report\n\n")
	if len(results) == 0 {
		sb.WriteString("No prompts evaluated.\n")
		return sb.String()
	}

	sb.WriteString("| Prompt | Route | Level | Score | Patched Score |\n")
	sb.WriteString("|---|---|---|---|---|\n")
	for _, r := range results {
		patched := "-"
		if r.Patch.Changed() {
			patched = fmt.Sprintf("%d", r.After.Score)
		}
		fmt.Fprintf(&sb, "| %s | %s | %s | %d | %s |\n",
			mdEscape(promptName(r.ID)), r.Route, r.Before.Level, r.Before.Score, patched)
	}
	sb.WriteString("\n")

	for _, r := range results {
		fmt.Fprintf(&sb, "### %s\n\n", mdEscape(promptName(r.ID)))
		fmt.Fprintf(&sb, "**Level:** %s  \n", r.Before.Level)
		fmt.Fprintf(&sb, "**Score:** %d/100\n\n", r.Before.Score)
		writeBreakdown(&sb, r.Before.Breakdown)
		writeIssues(&sb, r.Before.Issues)
		if r.Patch.Changed() {
			fmt.Fprintf(&sb, "<details>\n<summary><strong>Patch</strong> %d -> %d</summary>\n\n", r.Before.Score, r.After.Score)
			for _, c := range r.Patch.Changes {
				fmt.Fprintf(&sb, "- %s\n", mdEscape(c))
			}
			sb.WriteString("\n```text\n")
			sb.WriteString(strings.TrimRight(r.Patch.Patched, "\n"))
			sb.WriteString("\n```\n\n</details>\n\n")
		}
	}
	return sb.String()
}

// SubmissionMarkdown summarizes a recorded submission with its score
// breakdown, compliance findings and guidance.
func SubmissionMarkdown(s submission.Submission) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Submission %s\n\n", s.ID)
	fmt.Fprintf(&sb, "**Asset:** %s@%s  \n", mdEscape(s.AssetID), mdEscape(s.Version))
	fmt.Fprintf(&sb, "**Submitter:** %s  \n", mdEscape(s.SubmitterID))
	fmt.Fprintf(&sb, "**Status:** %s  \n", s.Status)
	fmt.Fprintf(&sb, "**Score:** %d/100 (QA %d, -%d errors, -%d warnings)\n\n",
		s.Score, s.Breakdown.BaseScore, s.Breakdown.ErrorPenalty, s.Breakdown.WarningPenalty)

	if len(s.Report.Compliance) > 0 {
		sb.WriteString("#### Compliance\n\n")
		sb.WriteString("| Level | Code | Path | Message |\n")
		sb.WriteString("|---|---|---|---|\n")
		for _, f := range s.Report.Compliance {
			fmt.Fprintf(&sb, "| %s | %s | %s | %s |\n", f.Level, f.Code, mdEscape(f.Path), mdEscape(f.Message))
		}
		sb.WriteString("\n")
	}
	writeIssues(&sb, s.Report.QA.Issues)
	fmt.Fprintf(&sb, "**Guidance:**\n\n%s\n", s.Report.Guidance)
	return sb.String()
}

func writeBreakdown(sb *strings.Builder, breakdown map[string]int) {
	if len(breakdown) == 0 {
		return
	}
	keys := make([]string, 0, len(breakdown))
	for k := range breakdown {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	sb.WriteString("| Component | Points |\n")
	sb.WriteString("|---|---|\n")
	for _, k := range keys {
		fmt.Fprintf(sb, "| %s | %d |\n", k, breakdown[k])
	}
	sb.WriteString("\n")
}

func writeIssues(sb *strings.Builder, issues []schema.QaIssue) {
	if len(issues) == 0 {
		return
	}
	sb.WriteString("#### Issues\n\n")
	sb.WriteString("| Level | Code | Message |\n")
	sb.WriteString("|---|---|---|\n")
	for _, is := range issues {
		fmt.Fprintf(sb, "| %s | %s | %s |\n", is.Level, is.Code, mdEscape(is.Message))
	}
	sb.WriteString("\n")
}

func promptName(id string) string {
	if id == "" {
		return "(unnamed)"
	}
	return id
}

// mdEscape replaces characters that would break Markdown table cells.
func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")
	return s
}
