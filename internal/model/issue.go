package model

// Severity grades how bad an issue is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// KnownSeverity reports whether s is one of the four grades.
func KnownSeverity(s Severity) bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// IssueType categorizes an issue.
type IssueType string

const (
	IssueTypeSecurity    IssueType = "security"
	IssueTypePerformance IssueType = "performance"
	IssueTypeLogic       IssueType = "logic"
	IssueTypeStyle       IssueType = "style"
)

// KnownIssueType reports whether t is one of the four categories.
func KnownIssueType(t IssueType) bool {
	switch t {
	case IssueTypeSecurity, IssueTypePerformance, IssueTypeLogic, IssueTypeStyle:
		return true
	}
	return false
}

// Issue is a single model-reported finding on a new-file line.
type Issue struct {
	File       string    `json:"file,omitempty"`
	Line       int       `json:"line"`
	Severity   Severity  `json:"severity"`
	Type       IssueType `json:"type"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion"`
}

// AIReview is the parsed body of one model response.
type AIReview struct {
	Summary string   `json:"summary"`
	Issues  []*Issue `json:"issues"`
}

// Confidence grades how sure the verifier is about its verdict.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// VerificationResult is the verifier's verdict for one issue.
type VerificationResult struct {
	IsValid    bool
	Confidence Confidence
	Reason     string
}
