package reviewer

import (
	"fmt"
	"strings"
	"testing"
)

func numberedFile(n int) string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %d", i+1)
	}
	return strings.Join(lines, "\n")
}

func TestBuildFileContextWindow(t *testing.T) {
	fc := buildFileContext(numberedFile(200), "typescript", 100, 10)

	if fc.StartLine != 90 || fc.TargetLine != 100 || fc.EndLine != 110 {
		t.Fatalf("got window %d..%d..%d, want 90..100..110", fc.StartLine, fc.TargetLine, fc.EndLine)
	}
	if len(fc.Lines) != fc.EndLine-fc.StartLine+1 {
		t.Errorf("got %d lines, want %d", len(fc.Lines), fc.EndLine-fc.StartLine+1)
	}
	if fc.Lines[0] != "line 90" {
		t.Errorf("got first line %q, want %q", fc.Lines[0], "line 90")
	}
	if fc.Lines[len(fc.Lines)-1] != "line 110" {
		t.Errorf("got last line %q, want %q", fc.Lines[len(fc.Lines)-1], "line 110")
	}
	if fc.TotalLines != 200 {
		t.Errorf("got %d total lines, want 200", fc.TotalLines)
	}
}

func TestBuildFileContextClampsToFileBounds(t *testing.T) {
	fc := buildFileContext(numberedFile(200), "typescript", 3, 10)
	if fc.StartLine != 1 || fc.EndLine != 13 {
		t.Errorf("got window %d..%d, want 1..13", fc.StartLine, fc.EndLine)
	}
	if len(fc.Lines) != fc.EndLine-fc.StartLine+1 {
		t.Errorf("got %d lines, want %d", len(fc.Lines), fc.EndLine-fc.StartLine+1)
	}

	fc = buildFileContext(numberedFile(200), "typescript", 198, 10)
	if fc.StartLine != 188 || fc.EndLine != 200 {
		t.Errorf("got window %d..%d, want 188..200", fc.StartLine, fc.EndLine)
	}
}

func TestBuildFileContextClampsTarget(t *testing.T) {
	fc := buildFileContext(numberedFile(20), "typescript", 500, 5)
	if fc.TargetLine != 20 || fc.StartLine != 15 || fc.EndLine != 20 {
		t.Errorf("got window %d..%d..%d, want 15..20..20", fc.StartLine, fc.TargetLine, fc.EndLine)
	}

	fc = buildFileContext(numberedFile(20), "typescript", 0, 5)
	if fc.TargetLine != 1 || fc.StartLine != 1 || fc.EndLine != 6 {
		t.Errorf("got window %d..%d..%d, want 1..1..6", fc.StartLine, fc.TargetLine, fc.EndLine)
	}
}

func TestBuildFileContextImportsFromFullFile(t *testing.T) {
	content := "import { Repo } from './repo';\nimport { Api } from './api';\n" + numberedFile(100)

	fc := buildFileContext(content, "typescript", 80, 10)
	if len(fc.Imports) != 2 {
		t.Fatalf("got %d imports, want 2", len(fc.Imports))
	}
	if fc.Imports[0] != "import { Repo } from './repo';" {
		t.Errorf("got import %q", fc.Imports[0])
	}
	if fc.StartLine != 70 || fc.EndLine != 90 {
		t.Errorf("got window %d..%d, want 70..90", fc.StartLine, fc.EndLine)
	}
}

func TestBuildFileContextEmptyContent(t *testing.T) {
	fc := buildFileContext("", "typescript", 1, 10)
	if fc.TotalLines != 1 || fc.StartLine != 1 || fc.EndLine != 1 {
		t.Errorf("got window %d..%d of %d", fc.StartLine, fc.EndLine, fc.TotalLines)
	}
	if len(fc.Lines) != 1 {
		t.Errorf("got %d lines, want 1", len(fc.Lines))
	}
}
