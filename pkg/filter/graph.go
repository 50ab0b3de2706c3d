// Package filter selects which graphs take part in capture and replay.
package filter

import (
	"fmt"

	"github.com/gobwas/glob"
)

// GraphMatcher matches graph names against include and exclude glob patterns.
type GraphMatcher struct {
	include []glob.Glob
	exclude []glob.Glob
}

// NewGraphMatcher compiles the include and exclude patterns
func NewGraphMatcher(include, exclude []string) (*GraphMatcher, error) {
	gm := &GraphMatcher{}

	for _, pattern := range include {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid include pattern '%s': %w", pattern, err)
		}
		gm.include = append(gm.include, g)
	}

	for _, pattern := range exclude {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern '%s': %w", pattern, err)
		}
		gm.exclude = append(gm.exclude, g)
	}

	return gm, nil
}

// AllowAll returns a matcher that accepts every graph.
func AllowAll() *GraphMatcher {
	return &GraphMatcher{}
}

// Allows reports whether the graph passes the filter. Exclude patterns take
// precedence; with no include patterns every non-excluded graph is allowed.
// A nil matcher allows everything.
func (gm *GraphMatcher) Allows(graph string) bool {
	if gm == nil {
		return true
	}

	for _, pattern := range gm.exclude {
		if pattern.Match(graph) {
			return false
		}
	}

	if len(gm.include) == 0 {
		return true
	}

	for _, pattern := range gm.include {
		if pattern.Match(graph) {
			return true
		}
	}

	return false
}
