package reviewer

import (
	"regexp"
	"strings"
)

const (
	// importScanLines bounds the scan to the head of the file.
	importScanLines = 50

	// importStopStreak stops the scan after this many consecutive lines
	// that are neither blank, comment nor import-like.
	importStopStreak = 3
)

// importPatterns maps a detected language to its import-like line patterns.
// The typescript family doubles as the default for unknown languages.
var importPatterns = map[string][]*regexp.Regexp{
	"typescript": {
		regexp.MustCompile(`^import\b`),
		regexp.MustCompile(`^export\s*\{`),
		regexp.MustCompile(`from\s+['"]`),
		regexp.MustCompile(`^const\s+.+=\s*require\(`),
		regexp.MustCompile(`^type\s*\{`),
	},
	"javascript": {
		regexp.MustCompile(`^import\b`),
		regexp.MustCompile(`^export\s*\{`),
		regexp.MustCompile(`from\s+['"]`),
		regexp.MustCompile(`^const\s+.+=\s*require\(`),
	},
	"python": {
		regexp.MustCompile(`^import\s+\w`),
		regexp.MustCompile(`^from\s+\S+\s+import\b`),
	},
	"java": {
		regexp.MustCompile(`^import\s`),
		regexp.MustCompile(`^package\s`),
	},
	"go": {
		regexp.MustCompile(`^import\s+"`),
		regexp.MustCompile(`^import\s+\(`),
	},
	"rust": {
		regexp.MustCompile(`^use\s`),
	},
	"php": {
		regexp.MustCompile(`^use\s`),
		regexp.MustCompile(`^(require|include)(_once)?\b`),
	},
}

// extractImports collects import-like lines from the head of a file,
// preserving original indentation. Matching runs against the trimmed line.
func extractImports(content, language string) []string {
	patterns, ok := importPatterns[language]
	if !ok {
		patterns = importPatterns["typescript"]
	}

	lines := strings.Split(content, "\n")
	if len(lines) > importScanLines {
		lines = lines[:importScanLines]
	}

	var (
		imports []string
		misses  int
	)
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || isCommentLine(trimmed) {
			continue
		}

		if matchesAny(trimmed, patterns) {
			imports = append(imports, line)
			misses = 0
			continue
		}

		misses++
		if misses >= importStopStreak {
			break
		}
	}

	return imports
}

func isCommentLine(trimmed string) bool {
	return strings.HasPrefix(trimmed, "//") ||
		strings.HasPrefix(trimmed, "/*") ||
		strings.HasPrefix(trimmed, "*") ||
		strings.HasPrefix(trimmed, "#")
}

func matchesAny(line string, patterns []*regexp.Regexp) bool {
	for _, re := range patterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}
