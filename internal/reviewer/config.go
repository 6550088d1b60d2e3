package reviewer

import (
	"github.com/maxbolgarin/lang"
)

const (
	// defaultFetchContextLines is the window passed to the context
	// fetcher for each chunk, half the parser's rendering context.
	defaultFetchContextLines = 10

	defaultMaxFilesPerMR = 50
	defaultPoolSize      = 10
	defaultMaxFileSize   = 100000

	// maxBatchChangedLines is the cutoff below which a multi-chunk
	// merge request is reviewed in a single model call.
	maxBatchChangedLines = 500
)

// Config represents review orchestration configuration.
type Config struct {
	FileFilter    FileFilter `yaml:"file_filter"`
	MaxFilesPerMR int        `yaml:"max_files_per_mr" env:"REVIEW_MAX_FILES_PER_MR"`
	ContextLines  int        `yaml:"context_lines" env:"REVIEW_CONTEXT_LINES"`
	PoolSize      int        `yaml:"pool_size" env:"REVIEW_POOL_SIZE"`

	Verbose bool `yaml:"verbose" env:"REVIEW_VERBOSE"`
}

// FileFilter represents criteria for filtering files to review.
type FileFilter struct {
	MaxFileSize   int      `yaml:"max_file_size" env:"REVIEW_FILE_FILTER_MAX_FILE_SIZE"`
	ExcludedPaths []string `yaml:"excluded_paths" env:"REVIEW_FILE_FILTER_EXCLUDED_PATHS"`
}

func (c *Config) PrepareAndValidate() error {
	c.MaxFilesPerMR = lang.Check(c.MaxFilesPerMR, defaultMaxFilesPerMR)
	c.ContextLines = lang.Check(c.ContextLines, defaultFetchContextLines)
	c.PoolSize = lang.Check(c.PoolSize, defaultPoolSize)
	c.FileFilter.MaxFileSize = lang.Check(c.FileFilter.MaxFileSize, defaultMaxFileSize)

	return nil
}
