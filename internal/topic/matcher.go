// Package topic implements the segmented, dot-delimited pattern matcher used
// by the registry's literal and wildcard indices.
//
// A topic is a sequence of segments separated by '.'. A pattern shares this
// structure and may use two wildcard tokens: '*' matches exactly one
// segment, and '**' matches one or more trailing segments. '**' is only
// legal as a pattern's last segment; Compile rejects any other placement
// rather than silently treating it as a literal (see SPEC_FULL.md's Open
// Question Decisions).
package topic

import (
	"fmt"
	"strings"
)

const (
	// Single matches exactly one topic segment.
	Single = "*"
	// Multi matches one or more trailing topic segments. Only legal as the
	// final segment of a pattern.
	Multi = "**"
)

// Pattern is a compiled subscription pattern, ready for repeated matching.
type Pattern struct {
	raw      string
	segments []string
	literal  bool
}

// Compile validates and compiles a pattern string.
//
// A pattern is invalid if it is empty, contains an empty segment (e.g.
// leading/trailing/doubled '.'), or uses Multi anywhere but the last
// segment.
func Compile(pattern string) (Pattern, error) {
	if pattern == "" {
		return Pattern{}, fmt.Errorf("pattern must not be empty")
	}

	segments := strings.Split(pattern, ".")
	literal := true

	for i, seg := range segments {
		if seg == "" {
			return Pattern{}, fmt.Errorf("pattern %q has an empty segment", pattern)
		}
		switch seg {
		case Multi:
			if i != len(segments)-1 {
				return Pattern{}, fmt.Errorf("pattern %q: %q is only valid as the final segment", pattern, Multi)
			}
			literal = false
		case Single:
			literal = false
		}
	}

	return Pattern{raw: pattern, segments: segments, literal: literal}, nil
}

// String returns the original pattern text.
func (p Pattern) String() string { return p.raw }

// IsLiteral reports whether the pattern contains no wildcard segment.
func (p Pattern) IsLiteral() bool { return p.literal }

// Match reports whether topic satisfies the pattern.
//
// Segment-by-segment comparison: '*' always matches a single segment;
// '**' (only as the last pattern segment) matches one or more remaining
// topic segments; any other segment must compare equal, case-sensitively.
// Pattern and topic must have the same number of segments unless '**' is
// used.
func (p Pattern) Match(topicStr string) bool {
	topSegs := strings.Split(topicStr, ".")
	pi, ti := 0, 0

	for pi < len(p.segments) {
		seg := p.segments[pi]

		if seg == Multi {
			// Multi is always last (enforced at Compile time); it requires
			// at least one remaining topic segment ("one or more").
			return ti < len(topSegs)
		}

		if ti >= len(topSegs) {
			return false
		}

		if seg != Single && seg != topSegs[ti] {
			return false
		}

		pi++
		ti++
	}

	return ti == len(topSegs)
}

// Segments returns the pattern's segments. The returned slice must not be
// mutated by the caller.
func (p Pattern) Segments() []string { return p.segments }
