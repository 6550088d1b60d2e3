package reviewer

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/binhmuc/autobot-review/internal/model"
	"github.com/maxbolgarin/logze/v2"
)

var (
	importKeywords     = []string{"import", "not imported", "missing import", "cannot find"}
	definitionKeywords = []string{"not defined", "undefined", "not declared", "cannot find name"}

	quotedIdentifierRegexes = []*regexp.Regexp{
		regexp.MustCompile(`'([^']+)'`),
		regexp.MustCompile(`"([^"]+)"`),
		regexp.MustCompile("`([^`]+)`"),
	}
	capitalizedTokenRegex = regexp.MustCompile(`\b[A-Z][a-zA-Z0-9_]*\b`)
	lowerCamelTokenRegex  = regexp.MustCompile(`\b[a-z][a-z0-9_]*[A-Z][a-zA-Z0-9_]*\b`)
)

// issueVerifier re-checks reported issues against the actual file before
// they reach the merge request. LLMs routinely hallucinate missing imports
// and undefined identifiers, so those two classes get a source-level check.
type issueVerifier struct {
	fetcher *contextFetcher
	log     logze.Logger
}

func newIssueVerifier(fetcher *contextFetcher, log logze.Logger) *issueVerifier {
	return &issueVerifier{
		fetcher: fetcher,
		log:     log,
	}
}

// Verify decides whether the issue should be kept. ref is the commit the
// reviewed file lives at.
func (v *issueVerifier) Verify(ctx context.Context, issue *model.Issue, chunk *model.DiffChunk, projectID int, ref string) model.VerificationResult {
	message := strings.ToLower(issue.Message)

	switch {
	case containsAny(message, importKeywords):
		return v.verifyImportIssue(ctx, issue, chunk, projectID, ref)

	case containsAny(message, definitionKeywords):
		return v.verifyDefinitionIssue(ctx, issue, chunk, projectID, ref)

	case issue.Type == model.IssueTypeSecurity || issue.Type == model.IssueTypePerformance:
		return model.VerificationResult{IsValid: true, Confidence: model.ConfidenceHigh, Reason: "security and performance issues are not filtered"}

	default:
		return model.VerificationResult{IsValid: true, Confidence: model.ConfidenceMedium, Reason: "issue class is not verified"}
	}
}

func (v *issueVerifier) verifyImportIssue(ctx context.Context, issue *model.Issue, chunk *model.DiffChunk, projectID int, ref string) model.VerificationResult {
	name := extractIdentifier(issue.Message, true)
	if name == "" {
		return model.VerificationResult{IsValid: true, Confidence: model.ConfidenceLow, Reason: "could not extract import name"}
	}

	if strings.Contains(strings.ToLower(issue.Message), "duplicate") {
		return v.verifyDuplicateImport(name, chunk.FileContext)
	}

	if chunk.FileContext != nil {
		for _, line := range chunk.FileContext.Imports {
			if importLineMatches(line, name) {
				v.log.Debug("import issue rejected", "file", chunk.Filename, "name", name)
				return model.VerificationResult{IsValid: false, Confidence: model.ConfidenceHigh, Reason: fmt.Sprintf("%q is already imported", name)}
			}
		}
	}

	content, err := v.fetcher.forge.GetFileContent(ctx, projectID, chunk.Filename, ref)
	if err != nil {
		v.log.Warn("file fetch failed during verification", "file", chunk.Filename, "error", err)
		return model.VerificationResult{IsValid: true, Confidence: model.ConfidenceLow, Reason: "could not fetch file to verify"}
	}
	if strings.Contains(content, name) {
		return model.VerificationResult{IsValid: false, Confidence: model.ConfidenceHigh, Reason: fmt.Sprintf("%q is present in the file", name)}
	}

	return model.VerificationResult{IsValid: true, Confidence: model.ConfidenceHigh, Reason: fmt.Sprintf("%q is not imported", name)}
}

// verifyDuplicateImport treats a "duplicate import" report as valid only
// when the name shows up on two or more import lines. Only the chunk
// context is consulted, there is no second source.
func (v *issueVerifier) verifyDuplicateImport(name string, fileCtx *model.FileContext) model.VerificationResult {
	if fileCtx == nil {
		return model.VerificationResult{IsValid: true, Confidence: model.ConfidenceLow, Reason: "no context to check duplicates against"}
	}

	count := 0
	for _, line := range fileCtx.Imports {
		if strings.Contains(line, name) {
			count++
		}
	}
	if count <= 1 {
		return model.VerificationResult{IsValid: false, Confidence: model.ConfidenceHigh, Reason: fmt.Sprintf("%q is imported %d time(s)", name, count)}
	}
	return model.VerificationResult{IsValid: true, Confidence: model.ConfidenceHigh, Reason: fmt.Sprintf("%q is imported %d times", name, count)}
}

func (v *issueVerifier) verifyDefinitionIssue(ctx context.Context, issue *model.Issue, chunk *model.DiffChunk, projectID int, ref string) model.VerificationResult {
	name := extractIdentifier(issue.Message, false)
	if name == "" {
		return model.VerificationResult{IsValid: true, Confidence: model.ConfidenceLow, Reason: "could not extract identifier"}
	}

	if chunk.FileContext != nil && definitionInLines(chunk.FileContext.Lines, name) {
		v.log.Debug("definition issue rejected", "file", chunk.Filename, "name", name)
		return model.VerificationResult{IsValid: false, Confidence: model.ConfidenceHigh, Reason: fmt.Sprintf("%q is defined in the surrounding code", name)}
	}

	extended, err := v.fetcher.FetchFileContext(ctx, projectID, chunk.Filename, ref, issue.Line, verifierContextLines)
	if err != nil {
		v.log.Warn("context fetch failed during verification", "file", chunk.Filename, "error", err)
		return model.VerificationResult{IsValid: true, Confidence: model.ConfidenceLow, Reason: "could not fetch file to verify"}
	}

	if definitionInLines(extended.Lines, name) {
		return model.VerificationResult{IsValid: false, Confidence: model.ConfidenceHigh, Reason: fmt.Sprintf("%q is defined in the file", name)}
	}
	for _, line := range extended.Imports {
		if strings.Contains(line, name) {
			return model.VerificationResult{IsValid: false, Confidence: model.ConfidenceHigh, Reason: fmt.Sprintf("%q is imported", name)}
		}
	}

	return model.VerificationResult{IsValid: true, Confidence: model.ConfidenceHigh, Reason: fmt.Sprintf("%q is not defined", name)}
}

// extractIdentifier pulls the subject of an issue message: quoted forms
// first, then the first capitalized token (import names) or the first
// lowerCamel token (identifiers).
func extractIdentifier(message string, preferCapitalized bool) string {
	for _, re := range quotedIdentifierRegexes {
		if m := re.FindStringSubmatch(message); len(m) == 2 {
			return strings.TrimSpace(m[1])
		}
	}
	if preferCapitalized {
		return capitalizedTokenRegex.FindString(message)
	}
	return lowerCamelTokenRegex.FindString(message)
}

// importLineMatches reports whether the import line mentions name, either
// as a raw substring or as a member of a destructured list, where a member
// like "b as c" counts by its pre-as token.
func importLineMatches(line, name string) bool {
	if strings.Contains(line, name) {
		return true
	}

	open := strings.IndexByte(line, '{')
	if open == -1 {
		return false
	}
	closing := strings.IndexByte(line[open:], '}')
	if closing == -1 {
		return false
	}

	for _, member := range strings.Split(line[open+1:open+closing], ",") {
		member = strings.TrimSpace(member)
		if token, _, ok := strings.Cut(member, " as "); ok {
			member = strings.TrimSpace(token)
		}
		if member == name {
			return true
		}
	}
	return false
}

// definitionInLines reports whether any line defines name as a variable,
// function, arrow assignment or type.
func definitionInLines(lines []string, name string) bool {
	quoted := regexp.QuoteMeta(name)
	patterns := []*regexp.Regexp{
		regexp.MustCompile(`(const|let|var)\s+` + quoted + `\b`),
		regexp.MustCompile(`function\s+` + quoted + `\b`),
		regexp.MustCompile(quoted + `\s*=\s*\(`),
		regexp.MustCompile(`(class|interface|type|enum)\s+` + quoted + `\b`),
	}

	for _, line := range lines {
		for _, re := range patterns {
			if re.MatchString(line) {
				return true
			}
		}
	}
	return false
}

func containsAny(s string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}
