// Package transform parses the token-delta stream produced by a transform backend
// into its three sections: analysis prose, transformed code, and verification steps.
//
// Deltas are classified by header markers, code is extracted from a fenced
// python block inside the code section, and the remaining prose is accumulated
// verbatim. Parsers are single-use and scoped to one request.
package transform

import "strings"

// Header markers recognized by the classifier. Matching is exact and case-sensitive.
const (
	MarkerAnalysis     = "# Analysis"
	MarkerCode         = "# Transformed Code"
	MarkerVerification = "# Verification Steps"

	FenceOpen  = "```python"
	FenceClose = "```"
)

// Section is the classifier state.
type Section int

const (
	// SectionNone is the state before the first header. Deltas here are dropped.
	SectionNone Section = iota
	SectionAnalysis
	SectionCode
	SectionVerification
)

// String returns the section name used in logs and results.
func (s Section) String() string {
	switch s {
	case SectionAnalysis:
		return "analysis"
	case SectionCode:
		return "code"
	case SectionVerification:
		return "verification"
	default:
		return "none"
	}
}

// Classify returns the section active after delta and whether delta was a header.
// A header delta switches state and must not be appended to any accumulator.
// Re-entering a section is allowed and resets nothing.
func Classify(current Section, delta string) (next Section, header bool) {
	switch {
	case strings.Contains(delta, MarkerAnalysis):
		return SectionAnalysis, true
	case strings.Contains(delta, MarkerCode):
		return SectionCode, true
	case strings.Contains(delta, MarkerVerification):
		return SectionVerification, true
	}
	return current, false
}

// headerMarkers is the classifier's marker set in match-priority order.
var headerMarkers = []string{MarkerAnalysis, MarkerCode, MarkerVerification}
