package model

import (
	"time"
)

// User represents a forge user.
type User struct {
	ID       int
	Username string
	Name     string
	Email    string
}

// ForgeConfig is the backend-facing slice of the forge configuration.
type ForgeConfig struct {
	BaseURL string
	Token   string
}

// DiffRefs holds the commit ids a merge request is diffed against.
type DiffRefs struct {
	BaseSHA  string
	HeadSHA  string
	StartSHA string
}

// MergeRequest represents a merge/pull request across forges.
type MergeRequest struct {
	ID           int64
	IID          int
	Title        string
	Description  string
	SourceBranch string
	TargetBranch string
	Author       User
	URL          string
	State        string
	DiffRefs     *DiffRefs
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FileDiff represents changes in a single file.
type FileDiff struct {
	OldPath   string
	NewPath   string
	Diff      string
	IsNew     bool
	IsDeleted bool
	IsRenamed bool
	IsBinary  bool
}

// Path returns the path to review, preferring the new one.
func (d *FileDiff) Path() string {
	if d.NewPath != "" {
		return d.NewPath
	}
	return d.OldPath
}

// DiffChunk is one reviewable slice of a file's diff: contiguous changes
// plus surrounding unchanged context.
type DiffChunk struct {
	Filename     string
	OldPath      string
	Language     string
	Hunks        string
	Additions    int
	Deletions    int
	ChangedLines []int
	FileContext  *FileContext
}

// ChangedTotal is the number of changed lines the chunk carries.
func (c *DiffChunk) ChangedTotal() int {
	return c.Additions + c.Deletions
}

// FileContext is file text drawn around a target line, with the imports
// scanned from the file prefix. Lines are 1-based and inclusive.
type FileContext struct {
	Lines      []string
	StartLine  int
	TargetLine int
	EndLine    int
	TotalLines int
	Imports    []string
}

// InlineComment is a positioned forge discussion on a new-file line.
type InlineComment struct {
	Body     string
	OldPath  string
	NewPath  string
	NewLine  int
	BaseSHA  string
	HeadSHA  string
	StartSHA string
}
