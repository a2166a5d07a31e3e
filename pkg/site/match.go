package site

import (
	"errors"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Errors returned when compiling file patterns.
var (
	// ErrInvalidPattern is returned when a pattern cannot be compiled.
	ErrInvalidPattern = errors.New("invalid glob pattern")
)

// PatternError wraps a rejected pattern.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// Matcher selects bundle files by relative slash path.
//
// A path is selected when it matches at least one include, no exclude, and is
// not hidden unless IncludeHidden is set. With no includes every path matches.
type Matcher struct {
	includes      []string
	excludes      []string
	includeHidden bool
}

// NewMatcher compiles include and exclude patterns.
//
// Backslashes are read as separators unless they escape a glob
// metacharacter, so "assets\**\*.js" works from a Windows shell while
// "literal\*.js" still matches a file named "literal*.js". Next to a "**"
// globstar a backslash is always a separator.
func NewMatcher(includes, excludes []string, includeHidden bool) (*Matcher, error) {
	m := &Matcher{includeHidden: includeHidden}

	for _, raw := range includes {
		p, err := compile(raw)
		if err != nil {
			return nil, err
		}
		m.includes = append(m.includes, p)
	}
	for _, raw := range excludes {
		p, err := compile(raw)
		if err != nil {
			return nil, err
		}
		m.excludes = append(m.excludes, p)
	}
	return m, nil
}

func compile(raw string) (string, error) {
	p := normalizePattern(raw)
	if !doublestar.ValidatePattern(p) {
		return "", &PatternError{Pattern: raw, Err: ErrInvalidPattern}
	}
	return p, nil
}

// Match reports whether rel is selected.
func (m *Matcher) Match(rel string) bool {
	if !m.includeHidden && isHidden(rel) {
		return false
	}

	if len(m.includes) > 0 {
		matched := false
		for _, p := range m.includes {
			if ok, _ := doublestar.Match(p, rel); ok {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	for _, p := range m.excludes {
		if ok, _ := doublestar.Match(p, rel); ok {
			return false
		}
	}
	return true
}

const globEscapable = `*?[]{}\`

func normalizePattern(pattern string) string {
	var b strings.Builder
	b.Grow(len(pattern))

	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		rest := pattern[i+1:]
		switch {
		case strings.HasPrefix(rest, "**"), strings.HasSuffix(b.String(), "**"):
			b.WriteByte('/')
		case rest != "" && strings.IndexByte(globEscapable, rest[0]) >= 0:
			b.WriteByte('\\')
			b.WriteByte(rest[0])
			i++
		default:
			b.WriteByte('/')
		}
	}
	return b.String()
}

// isHidden reports whether any segment of rel starts with a dot.
func isHidden(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") && seg != "." && seg != ".." {
			return true
		}
	}
	return false
}
