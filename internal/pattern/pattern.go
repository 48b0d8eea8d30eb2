// Package pattern compiles and caches the resource patterns roles and
// policies use to scope permissions to resource identifiers.
package pattern

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Pattern language: '*' matches within a path segment, '**' matches across
// segments, '?' matches a single character, everything else is literal.
// Patterns are anchored to the full resource identifier.

// Matcher caches compiled patterns so repeated permission checks do not pay
// for regexp compilation. Safe for concurrent use.
type Matcher struct {
	mu       sync.RWMutex
	compiled map[string]*entry
}

type entry struct {
	re  *regexp.Regexp
	err error
}

// NewMatcher returns an empty Matcher.
func NewMatcher() *Matcher {
	return &Matcher{compiled: make(map[string]*entry)}
}

// Match reports whether resource matches pattern. Invalid patterns return an
// error; the failure is cached like a successful compilation.
func (m *Matcher) Match(pattern, resource string) (bool, error) {
	e := m.lookup(pattern)
	if e == nil {
		e = m.compile(pattern)
	}
	if e.err != nil {
		return false, e.err
	}
	return e.re.MatchString(resource), nil
}

// MatchAny reports whether resource matches at least one of patterns.
// Compilation errors are skipped so one bad pattern cannot disable a role.
func (m *Matcher) MatchAny(patterns []string, resource string) bool {
	for _, p := range patterns {
		ok, err := m.Match(p, resource)
		if err != nil {
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

// Size returns the number of cached patterns.
func (m *Matcher) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.compiled)
}

func (m *Matcher) lookup(pattern string) *entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.compiled[pattern]
}

func (m *Matcher) compile(pattern string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.compiled[pattern]; ok {
		return e
	}
	e := &entry{}
	re, err := regexp.Compile(translate(pattern))
	if err != nil {
		e.err = fmt.Errorf("pattern %q: %w", pattern, err)
	} else {
		e.re = re
	}
	m.compiled[pattern] = e
	return e
}

// translate converts a resource pattern into an anchored regexp.
func translate(pattern string) string {
	var b strings.Builder
	b.WriteString(`\A`)
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch c {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				b.WriteString(`.*`)
				i++
			} else {
				b.WriteString(`[^/]*`)
			}
		case '?':
			b.WriteString(`.`)
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString(`\z`)
	return b.String()
}
