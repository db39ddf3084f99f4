package policy

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// PathMatcher matches slash-separated workspace paths against
// gitignore-style patterns.
type PathMatcher struct {
	patterns []string
	matcher  gitignore.Matcher
}

// NewPathMatcher compiles gitignore-style patterns. Blank lines and
// comments are skipped.
func NewPathMatcher(patterns []string) (*PathMatcher, error) {
	kept := make([]string, 0, len(patterns))
	parsed := make([]gitignore.Pattern, 0, len(patterns))
	for _, p := range patterns {
		line := strings.TrimRight(p, " \t")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, err := path.Match(strings.TrimPrefix(line, "!"), ""); err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, p, err)
		}
		kept = append(kept, line)
		parsed = append(parsed, gitignore.ParsePattern(line, nil))
	}
	return &PathMatcher{
		patterns: kept,
		matcher:  gitignore.NewMatcher(parsed),
	}, nil
}

// Patterns returns the compiled patterns.
func (m *PathMatcher) Patterns() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.patterns...)
}

// Match reports whether the path is matched by the patterns.
func (m *PathMatcher) Match(p string) bool {
	if m == nil || len(m.patterns) == 0 {
		return false
	}
	clean := path.Clean(filepath.ToSlash(p))
	return m.matcher.Match(strings.Split(clean, "/"), false)
}
