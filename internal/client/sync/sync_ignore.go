package sync

import (
	gitignore "github.com/sabhiram/go-gitignore"
)

var defaultIgnoreLines = []string{
	// hidden files and dirs
	".*",
	".*/",

	// temp/log noise
	"*.tmp",
	"*.log",
	"*.swp",
	"*.swo",
	"*~",
	"logs/",

	// dependency and VCS dirs
	"node_modules/",
	".git/",
	"__pycache__/",
	"venv/",
	".venv/",
	"dist/",

	// OS-specific
	".DS_Store",
	"Thumbs.db",
	"Icon",
}

// IgnoreList filters paths the sync engine must never track.
type IgnoreList struct {
	ignore *gitignore.GitIgnore
}

func NewIgnoreList() *IgnoreList {
	return &IgnoreList{
		ignore: gitignore.CompileIgnoreLines(defaultIgnoreLines...),
	}
}

// ShouldIgnore matches a workspace-relative path against the ignore rules.
func (s *IgnoreList) ShouldIgnore(relPath string) bool {
	return s.ignore.MatchesPath(relPath)
}
