package reviewer

import (
	"context"
	"strings"

	"github.com/binhmuc/autobot-review/internal/model"
	"github.com/binhmuc/autobot-review/internal/model/interfaces"
	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/logze/v2"
)

// verifierContextLines is the extended window used when re-checking
// a reported issue against the surrounding file.
const verifierContextLines = 50

// contextFetcher pulls file content from the forge and builds the
// per-chunk review context.
type contextFetcher struct {
	forge interfaces.ForgeClient
	log   logze.Logger
}

func newContextFetcher(forge interfaces.ForgeClient, log logze.Logger) *contextFetcher {
	return &contextFetcher{
		forge: forge,
		log:   log,
	}
}

// FetchFileContext returns the window of contextLines around targetLine of
// the file at ref, with imports extracted from the full content.
func (f *contextFetcher) FetchFileContext(ctx context.Context, projectID int, path, ref string, targetLine, contextLines int) (*model.FileContext, error) {
	content, err := f.forge.GetFileContent(ctx, projectID, path, ref)
	if err != nil {
		return nil, errm.Wrap(err, "get file content")
	}
	return buildFileContext(content, detectLanguage(path), targetLine, contextLines), nil
}

// buildFileContext slices a 1-based inclusive window around targetLine,
// clamped to the file bounds.
func buildFileContext(content, language string, targetLine, contextLines int) *model.FileContext {
	lines := strings.Split(content, "\n")
	total := len(lines)

	if targetLine < 1 {
		targetLine = 1
	}
	if targetLine > total {
		targetLine = total
	}

	start := targetLine - contextLines
	if start < 1 {
		start = 1
	}
	end := targetLine + contextLines
	if end > total {
		end = total
	}

	return &model.FileContext{
		Lines:      lines[start-1 : end],
		StartLine:  start,
		TargetLine: targetLine,
		EndLine:    end,
		TotalLines: total,
		Imports:    extractImports(content, language),
	}
}
