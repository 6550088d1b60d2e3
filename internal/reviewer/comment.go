package reviewer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/binhmuc/autobot-review/internal/model"
)

var severityEmoji = map[model.Severity]string{
	model.SeverityCritical: "🔴",
	model.SeverityHigh:     "🟠",
	model.SeverityMedium:   "🟡",
	model.SeverityLow:      "⚪️",
}

// buildInlineComment renders the discussion body for a single issue.
func buildInlineComment(issue *model.Issue) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s **%s** (%s): %s",
		severityEmoji[issue.Severity], strings.ToUpper(string(issue.Severity)), issue.Type, issue.Message)
	if issue.Suggestion != "" {
		sb.WriteString("\n\n💡 **Suggestion**\n\n")
		sb.WriteString(issue.Suggestion)
	}
	return sb.String()
}

// buildSummaryComment renders the single review note posted after all
// inline discussions have been attempted.
func buildSummaryComment(aiSummary string, issues []*model.Issue, score, reviewedFiles, skippedFiles int) string {
	var sb strings.Builder
	sb.WriteString("## 🤖 Review Summary\n\n")

	if aiSummary != "" {
		sb.WriteString(aiSummary)
		sb.WriteString("\n\n")
	}

	fmt.Fprintf(&sb, "**Quality score: %d/100**\n\n", score)

	if len(issues) == 0 {
		sb.WriteString("✅ No issues found.\n")
	} else {
		fmt.Fprintf(&sb, "Found **%d** issue(s): %s.\n", len(issues), severityBreakdown(issues))
		fmt.Fprintf(&sb, "By type: %s.\n\n", typeBreakdown(issues))
		writeFileBreakdown(&sb, issues)
	}

	if skippedFiles > 0 {
		fmt.Fprintf(&sb, "\n⚠️ **Large MR**: only the first %d of %d changed files were reviewed, %d skipped.\n",
			reviewedFiles, reviewedFiles+skippedFiles, skippedFiles)
	}

	return sb.String()
}

func severityBreakdown(issues []*model.Issue) string {
	counts := make(map[model.Severity]int, 4)
	for _, issue := range issues {
		counts[issue.Severity]++
	}

	parts := make([]string, 0, len(counts))
	for _, s := range []model.Severity{model.SeverityCritical, model.SeverityHigh, model.SeverityMedium, model.SeverityLow} {
		if counts[s] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[s], s))
		}
	}
	return strings.Join(parts, ", ")
}

func typeBreakdown(issues []*model.Issue) string {
	counts := make(map[model.IssueType]int, 4)
	for _, issue := range issues {
		counts[issue.Type]++
	}

	parts := make([]string, 0, len(counts))
	for _, t := range []model.IssueType{model.IssueTypeSecurity, model.IssueTypePerformance, model.IssueTypeLogic, model.IssueTypeStyle} {
		if counts[t] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[t], t))
		}
	}
	return strings.Join(parts, ", ")
}

// writeFileBreakdown lists issues grouped by file, files ordered by their
// worst severity, issues within a file by severity then line.
func writeFileBreakdown(sb *strings.Builder, issues []*model.Issue) {
	byFile := make(map[string][]*model.Issue)
	for _, issue := range issues {
		byFile[issue.File] = append(byFile[issue.File], issue)
	}

	files := make([]string, 0, len(byFile))
	for file := range byFile {
		files = append(files, file)
	}
	sort.Slice(files, func(i, j int) bool {
		ri, rj := bestRank(byFile[files[i]]), bestRank(byFile[files[j]])
		if ri != rj {
			return ri < rj
		}
		return files[i] < files[j]
	})

	for _, file := range files {
		fileIssues := byFile[file]
		sort.Slice(fileIssues, func(i, j int) bool {
			if severityRank[fileIssues[i].Severity] != severityRank[fileIssues[j].Severity] {
				return severityRank[fileIssues[i].Severity] < severityRank[fileIssues[j].Severity]
			}
			return fileIssues[i].Line < fileIssues[j].Line
		})

		fmt.Fprintf(sb, "### 📁 `%s`\n", file)
		for _, issue := range fileIssues {
			fmt.Fprintf(sb, "- %s **%s** (%s) line %d: %s\n",
				severityEmoji[issue.Severity], issue.Severity, issue.Type, issue.Line, issue.Message)
		}
		sb.WriteString("\n")
	}
}

func bestRank(issues []*model.Issue) int {
	best := len(severityRank)
	for _, issue := range issues {
		if r := severityRank[issue.Severity]; r < best {
			best = r
		}
	}
	return best
}
