package prompts

import (
	"fmt"
	"strings"

	"github.com/binhmuc/autobot-review/internal/model"
)

// *** Review Prompts ***

var reviewSystemPrompt = `
You are an expert code reviewer analyzing a merge request diff.

REVIEW RULES:
- Review ONLY the lines marked with + or - in the diff. Unmarked lines are context and must not be reported.
- The "Available Imports" section lists the imports of the file. Trust it: never report a missing import that is already listed there.
- The "Code Context" section shows the surrounding file content. Check it before reporting an undefined or undeclared identifier.
- Priorities: security > logic > performance > best practice > style.
- Report real problems. Skip stylistic preferences and issues you are not confident about.
- "line" is the NEW file line number the issue applies to, taken from the diff.

RESPONSE FORMAT:
Respond with exactly one JSON object and nothing else, no prose before or after:
{
  "summary": "one or two sentences describing the overall change",
  "issues": [
    {
      "line": 42,
      "severity": "critical" | "high" | "medium" | "low",
      "type": "security" | "performance" | "logic" | "style",
      "message": "what is wrong",
      "suggestion": "how to fix it"
    }
  ]
}

Return {"summary": "...", "issues": []} when there is nothing to report.
`

var batchReviewSystemPrompt = reviewSystemPrompt + `
BATCH RULES:
- The request contains several files under "## File i/N" headers.
- Every issue MUST carry a "file" field holding the exact file path from its section header.
- Return ONE JSON document with a single summary covering all files.
`

var batchReviewInstructions = `
INSTRUCTIONS:
- Include the "file" field in every issue, using the exact path shown in the section header.
- Return one JSON document with a single summary covering all files.
`

// Builder assembles review prompts from diff chunks.
type Builder struct{}

func NewBuilder() *Builder {
	return &Builder{}
}

// BuildSingleReviewPrompt creates a prompt reviewing one chunk.
func (b *Builder) BuildSingleReviewPrompt(chunk *model.DiffChunk) model.Prompt {
	var sb strings.Builder
	sb.WriteString("Review the following change.\n\n")
	fmt.Fprintf(&sb, "File: %s\n", chunk.Filename)
	b.writeChunkBody(&sb, chunk)

	return model.Prompt{
		SystemPrompt: reviewSystemPrompt,
		UserPrompt:   sb.String(),
	}
}

// BuildBatchReviewPrompt creates a prompt reviewing several chunks in one
// call; the response must attribute every issue to a file.
func (b *Builder) BuildBatchReviewPrompt(chunks []*model.DiffChunk) model.Prompt {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Review the changes in %d files in one pass.\n\n", len(chunks))

	for i, chunk := range chunks {
		fmt.Fprintf(&sb, "## File %d/%d: %s\n", i+1, len(chunks), chunk.Filename)
		b.writeChunkBody(&sb, chunk)
		sb.WriteString("\n")
	}
	sb.WriteString(batchReviewInstructions)

	return model.Prompt{
		SystemPrompt: batchReviewSystemPrompt,
		UserPrompt:   sb.String(),
	}
}

func (b *Builder) writeChunkBody(sb *strings.Builder, chunk *model.DiffChunk) {
	fmt.Fprintf(sb, "Language: %s\n", chunk.Language)
	fmt.Fprintf(sb, "Additions: %d, Deletions: %d\n\n", chunk.Additions, chunk.Deletions)

	sb.WriteString("### Available Imports\n")
	if chunk.FileContext != nil && len(chunk.FileContext.Imports) > 0 {
		for _, imp := range chunk.FileContext.Imports {
			fmt.Fprintf(sb, "- %s\n", strings.TrimSpace(imp))
		}
	} else {
		sb.WriteString("No imports found in this file.\n")
	}
	sb.WriteString("\n")

	if fc := chunk.FileContext; fc != nil && len(fc.Lines) > 0 {
		fmt.Fprintf(sb, "### Code Context (lines %d-%d of %d, → marks the first changed line)\n", fc.StartLine, fc.EndLine, fc.TotalLines)
		sb.WriteString("```\n")
		for i, line := range fc.Lines {
			lineNo := fc.StartLine + i
			marker := "  "
			if lineNo == fc.TargetLine {
				marker = "→ "
			}
			fmt.Fprintf(sb, "%s%4d: %s\n", marker, lineNo, line)
		}
		sb.WriteString("```\n\n")
	}

	sb.WriteString("### Diff\n")
	sb.WriteString("```diff\n")
	sb.WriteString(chunk.Hunks)
	sb.WriteString("\n```\n")
}
