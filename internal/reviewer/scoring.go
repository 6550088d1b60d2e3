package reviewer

import "github.com/binhmuc/autobot-review/internal/model"

const maxQualityScore = 100

// severityImpact is the score cost of one retained issue.
var severityImpact = map[model.Severity]int{
	model.SeverityCritical: 15,
	model.SeverityHigh:     10,
	model.SeverityMedium:   5,
	model.SeverityLow:      2,
}

// severityRank orders severities from worst to mildest.
var severityRank = map[model.Severity]int{
	model.SeverityCritical: 0,
	model.SeverityHigh:     1,
	model.SeverityMedium:   2,
	model.SeverityLow:      3,
}

// qualityScore is 100 minus the severity-weighted impact of all retained
// issues, clamped to [0,100].
func qualityScore(issues []*model.Issue) int {
	score := maxQualityScore
	for _, issue := range issues {
		score -= severityImpact[issue.Severity]
	}
	if score < 0 {
		score = 0
	}
	return score
}

// shouldPostInline reports whether issues of this severity get their own
// inline discussion. Low severity surfaces in the summary only.
func shouldPostInline(s model.Severity) bool {
	switch s {
	case model.SeverityCritical, model.SeverityHigh, model.SeverityMedium:
		return true
	}
	return false
}
