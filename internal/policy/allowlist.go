package policy

import (
	"fmt"
	"os"
	"regexp"

	"github.com/BurntSushi/toml"
)

// Allowlist holds path and content regex patterns the secrets policy ignores.
type Allowlist struct {
	Paths   []string // File path regex patterns to skip
	Regexes []string // Content regex patterns to ignore
}

// LoadAllowlist reads a gitleaks-style allowlist:
//
//	[allowlist]
//	paths = ['''testdata/''']
//	regexes = ['''EXAMPLE_KEY''']
//
// A missing file yields an empty allowlist.
func LoadAllowlist(path string) (*Allowlist, error) {
	empty := &Allowlist{Paths: []string{}, Regexes: []string{}}
	if path == "" {
		return empty, nil
	}

	var doc struct {
		Allowlist struct {
			Paths   []string
			Regexes []string
		}
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return empty, nil
		}
		return nil, err
	}

	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTOML, path, err)
	}

	for _, pattern := range doc.Allowlist.Paths {
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("%w: invalid path pattern '%s' in %s: %v", ErrInvalidRegex, pattern, path, err)
		}
	}
	for _, pattern := range doc.Allowlist.Regexes {
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("%w: invalid content pattern '%s' in %s: %v", ErrInvalidRegex, pattern, path, err)
		}
	}

	return &Allowlist{
		Paths:   append([]string{}, doc.Allowlist.Paths...),
		Regexes: append([]string{}, doc.Allowlist.Regexes...),
	}, nil
}

// skipsPath reports whether a path matches any allowlisted path pattern.
func (a *Allowlist) skipsPath(p string) bool {
	if a == nil {
		return false
	}
	for _, pattern := range a.Paths {
		re, err := regexp.Compile(pattern)
		if err == nil && re.MatchString(p) {
			return true
		}
	}
	return false
}
