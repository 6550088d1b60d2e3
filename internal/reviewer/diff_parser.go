package reviewer

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/binhmuc/autobot-review/internal/model"
	"github.com/maxbolgarin/logze/v2"
)

const (
	// defaultContextLines is used when the caller does not override the window.
	defaultContextLines = 20

	// maxChunkLines caps the rendered chunk text, tail truncated.
	maxChunkLines = 100
)

// diffLine is a single line of a hunk with resolved file positions.
type diffLine struct {
	Raw     string
	Kind    byte // '+', '-' or ' '
	OldLine int
	NewLine int
}

// hunk is one @@ section of a file diff.
type hunk struct {
	OldStart int
	NewStart int
	Lines    []diffLine
}

// diffProcessor turns unified-diff text into reviewable chunks:
// changed lines plus a window of unchanged context around each addition.
type diffProcessor struct {
	hunkRegex    *regexp.Regexp
	contextLines int
	log          logze.Logger
}

func newDiffProcessor(contextLines int, log logze.Logger) *diffProcessor {
	if contextLines <= 0 {
		contextLines = defaultContextLines
	}
	return &diffProcessor{
		hunkRegex:    regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`),
		contextLines: contextLines,
		log:          log,
	}
}

// ProcessFiles builds chunks for every reviewable file diff.
// Binary and deleted files are skipped.
func (p *diffProcessor) ProcessFiles(files []*model.FileDiff) []*model.DiffChunk {
	chunks := make([]*model.DiffChunk, 0, len(files))
	for _, file := range files {
		if file.IsBinary || file.IsDeleted {
			continue
		}
		chunks = append(chunks, p.processFile(file)...)
	}
	return chunks
}

func (p *diffProcessor) processFile(file *model.FileDiff) []*model.DiffChunk {
	filename := file.Path()
	language := detectLanguage(filename)

	var chunks []*model.DiffChunk
	for _, h := range p.splitHunks(file.Diff) {
		chunk := p.buildChunk(h, filename, file.OldPath, language)
		if chunk == nil {
			continue
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

// splitHunks parses raw diff text into hunks with per-line file positions.
func (p *diffProcessor) splitHunks(diff string) []*hunk {
	var (
		hunks   []*hunk
		current *hunk
		oldLine int
		newLine int
	)

	for _, line := range strings.Split(diff, "\n") {
		if len(line) == 0 {
			continue
		}

		// Skip file headers.
		if strings.HasPrefix(line, "diff --git") ||
			strings.HasPrefix(line, "index ") ||
			strings.HasPrefix(line, "--- ") ||
			strings.HasPrefix(line, "+++ ") {
			continue
		}

		if strings.HasPrefix(line, "@@") {
			matches := p.hunkRegex.FindStringSubmatch(line)
			if len(matches) < 4 {
				continue
			}
			oldLine, _ = strconv.Atoi(matches[1])
			newLine, _ = strconv.Atoi(matches[3])
			current = &hunk{OldStart: oldLine, NewStart: newLine}
			hunks = append(hunks, current)
			continue
		}

		if current == nil {
			continue
		}

		switch line[0] {
		case '+':
			current.Lines = append(current.Lines, diffLine{Raw: line, Kind: '+', NewLine: newLine})
			newLine++

		case '-':
			current.Lines = append(current.Lines, diffLine{Raw: line, Kind: '-', OldLine: oldLine})
			oldLine++

		default:
			// Context line, with or without the leading space.
			current.Lines = append(current.Lines, diffLine{Raw: line, Kind: ' ', OldLine: oldLine, NewLine: newLine})
			oldLine++
			newLine++
		}
	}

	return hunks
}

// buildChunk selects the changed lines of a hunk plus up to contextLines
// unchanged lines around each addition, then renders the selection back
// into diff text. Returns nil if the hunk carries no changes.
func (p *diffProcessor) buildChunk(h *hunk, filename, oldPath, language string) *model.DiffChunk {
	selected := make(map[int]bool, len(h.Lines))

	for i, line := range h.Lines {
		switch line.Kind {
		case '-':
			selected[i] = true

		case '+':
			selected[i] = true

			// The nearest contextLines unchanged lines before the addition.
			// Changed lines in between are emitted anyway and do not spend
			// the budget.
			remaining := p.contextLines
			for j := i - 1; j >= 0 && remaining > 0; j-- {
				if h.Lines[j].Kind != ' ' {
					continue
				}
				selected[j] = true
				remaining--
			}

			// Up to contextLines unchanged lines after it, halting at the
			// next change.
			remaining = p.contextLines
			for j := i + 1; j < len(h.Lines) && remaining > 0; j++ {
				if h.Lines[j].Kind != ' ' {
					break
				}
				selected[j] = true
				remaining--
			}
		}
	}

	if len(selected) == 0 {
		return nil
	}

	indexes := make([]int, 0, len(selected))
	for i := range selected {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	type renderedLine struct {
		text    string
		kind    byte
		newLine int
	}

	// Each contiguous run of selected lines gets its own recomputed header
	// so the rendered text stays a parseable diff.
	rendered := make([]renderedLine, 0, len(indexes)+4)
	for start := 0; start < len(indexes); {
		end := start
		for end+1 < len(indexes) && indexes[end+1] == indexes[end]+1 {
			end++
		}
		run := h.Lines[indexes[start] : indexes[end]+1]
		rendered = append(rendered, renderedLine{text: hunkHeader(run), kind: '@'})
		for _, line := range run {
			rendered = append(rendered, renderedLine{text: line.Raw, kind: line.Kind, newLine: line.NewLine})
		}
		start = end + 1
	}

	truncated := false
	if len(rendered) > maxChunkLines {
		rendered = rendered[:maxChunkLines]
		truncated = true
	}

	var (
		text         strings.Builder
		changedLines []int
		additions    int
		deletions    int
	)
	for i, line := range rendered {
		if i > 0 {
			text.WriteByte('\n')
		}
		text.WriteString(line.text)
		switch line.kind {
		case '+':
			additions++
			changedLines = append(changedLines, line.newLine)
		case '-':
			deletions++
		}
	}

	if additions+deletions == 0 {
		return nil
	}

	if truncated {
		p.log.Warn("chunk truncated", "file", filename, "max_lines", maxChunkLines)
	}

	return &model.DiffChunk{
		Filename:     filename,
		OldPath:      oldPath,
		Language:     language,
		Hunks:        text.String(),
		Additions:    additions,
		Deletions:    deletions,
		ChangedLines: changedLines,
	}
}

// hunkHeader recomputes the @@ header for a contiguous run of diff lines.
func hunkHeader(run []diffLine) string {
	var oldStart, oldCount, newStart, newCount int
	for _, line := range run {
		if line.Kind != '+' {
			if oldStart == 0 {
				oldStart = line.OldLine
			}
			oldCount++
		}
		if line.Kind != '-' {
			if newStart == 0 {
				newStart = line.NewLine
			}
			newCount++
		}
	}
	return fmt.Sprintf("@@ -%d,%d +%d,%d @@", oldStart, oldCount, newStart, newCount)
}

// detectLanguage maps a file extension to the language name used in prompts
// and import extraction.
func detectLanguage(filename string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	switch ext {
	case "ts", "tsx":
		return "typescript"
	case "js", "jsx", "mjs":
		return "javascript"
	case "py":
		return "python"
	case "java":
		return "java"
	case "go":
		return "go"
	case "rs":
		return "rust"
	case "cpp", "cc", "cxx":
		return "cpp"
	case "c", "h":
		return "c"
	case "cs":
		return "csharp"
	case "rb":
		return "ruby"
	case "php":
		return "php"
	case "swift":
		return "swift"
	case "kt", "kts":
		return "kotlin"
	case "sql":
		return "sql"
	case "sh", "bash":
		return "shell"
	case "yaml", "yml":
		return "yaml"
	case "json":
		return "json"
	case "md":
		return "markdown"
	default:
		return "unknown"
	}
}
