package transform

import "strings"

// Result holds the three section accumulators.
type Result struct {
	Analysis     string `json:"analysis"`
	Code         string `json:"code"`
	Verification string `json:"verification"`

	// CodeFinalized is true once a fence has closed (or been flushed by policy).
	CodeFinalized bool `json:"code_finalized"`

	// Abandoned is set when consumption stopped on cancellation.
	Abandoned bool `json:"abandoned,omitempty"`
}

// Parser routes deltas into section accumulators.
// One Parser serves one request; it is not safe for concurrent use.
type Parser struct {
	section      Section
	fence        FenceTracker
	analysis     strings.Builder
	verification strings.Builder
	code         string
	finalized    bool
	transitions  int
	closed       int
}

// NewParser returns a parser in SectionNone.
func NewParser() *Parser {
	return &Parser{}
}

// Feed processes one delta.
//
// A header delta switches section and is consumed. In the code section the
// delta goes to the fence tracker and a closed fence replaces the code. In
// the prose sections the delta is appended verbatim. Before the first header
// deltas are dropped.
func (p *Parser) Feed(delta string) {
	next, header := Classify(p.section, delta)
	if header {
		p.section = next
		p.transitions++
		return
	}

	switch p.section {
	case SectionCode:
		if code, ok := p.fence.Observe(delta, p.section); ok {
			p.code = code
			p.finalized = true
			p.closed++
		}
	case SectionAnalysis:
		p.analysis.WriteString(delta)
	case SectionVerification:
		p.verification.WriteString(delta)
	}
}

// Section returns the active section.
func (p *Parser) Section() Section {
	return p.section
}

// InsideFence reports whether a code fence is open.
func (p *Parser) InsideFence() bool {
	return p.fence.Inside()
}

// Transitions returns how many header deltas have been consumed.
func (p *Parser) Transitions() int {
	return p.transitions
}

// FencesClosed returns how many fences have been closed by a marker.
func (p *Parser) FencesClosed() int {
	return p.closed
}

// Snapshot returns the accumulators as they stand. Code holds only finalized
// fence content; text inside an open fence is not visible.
func (p *Parser) Snapshot() Result {
	return Result{
		Analysis:      p.analysis.String(),
		Code:          p.code,
		Verification:  p.verification.String(),
		CodeFinalized: p.finalized,
	}
}

// Finish ends the stream. An open fence is resolved by policy
// (nil means DiscardUnclosedFence). Finish returns the final result.
func (p *Parser) Finish(policy FencePolicy) Result {
	if code, ok := p.fence.Finish(policy); ok {
		p.code = code
		p.finalized = true
	}
	return p.Snapshot()
}
