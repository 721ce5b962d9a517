package transform

import "strings"

// scanMarkers are the markers the scanner splits out. FenceOpen is handled
// as an extension of FenceClose.
var scanMarkers = []string{MarkerAnalysis, MarkerCode, MarkerVerification, FenceClose}

// maxMarkerLen is the length of the longest marker.
var maxMarkerLen = func() int {
	n := len(FenceOpen)
	for _, m := range headerMarkers {
		n = max(n, len(m))
	}
	return n
}()

// Scanner wraps a Parser so that markers split across delta boundaries are
// still recognized. It keeps an unconfirmed tail of at most one marker length
// and feeds the parser text and markers as separate deltas, so leading text
// in a marker-bearing delta lands in the section that was active before it.
//
// Text around a marker is passed on unchanged; no whitespace is stripped.
// For streams that deliver every marker as its own delta the result is
// identical to feeding the Parser directly.
type Scanner struct {
	parser  *Parser
	pending string
}

// NewScanner returns a scanner feeding p. A nil p gets a fresh Parser.
func NewScanner(p *Parser) *Scanner {
	if p == nil {
		p = NewParser()
	}
	return &Scanner{parser: p}
}

// Parser returns the wrapped parser.
func (s *Scanner) Parser() *Parser {
	return s.parser
}

// Feed appends delta to the pending text and forwards everything that can be
// classified without seeing more input.
func (s *Scanner) Feed(delta string) {
	if s.pending != "" {
		if idx, _ := earliestMarker(delta); idx == 0 {
			// A delta that opens with a whole marker settles the held tail.
			s.drain(true)
		}
	}
	s.pending += delta
	s.drain(false)
}

// Flush forwards any held tail. Call it once at end of stream, before Finish.
func (s *Scanner) Flush() {
	s.drain(true)
}

// Pending returns the text held back waiting for more input.
func (s *Scanner) Pending() string {
	return s.pending
}

func (s *Scanner) drain(final bool) {
	for {
		idx, marker := earliestMarker(s.pending)
		if idx < 0 {
			break
		}

		if marker == FenceClose {
			rest := s.pending[idx:]
			switch {
			case strings.HasPrefix(rest, FenceOpen):
				marker = FenceOpen
			case !final && len(rest) < len(FenceOpen) && strings.HasPrefix(FenceOpen, rest):
				// Could still become an open marker.
				s.emit(s.pending[:idx])
				s.pending = rest
				return
			}
		}

		s.emit(s.pending[:idx])
		s.parser.Feed(marker)
		s.pending = s.pending[idx+len(marker):]
	}

	hold := 0
	if !final {
		hold = partialMarkerSuffix(s.pending)
	}
	s.emit(s.pending[:len(s.pending)-hold])
	s.pending = s.pending[len(s.pending)-hold:]
}

func (s *Scanner) emit(text string) {
	if text != "" {
		s.parser.Feed(text)
	}
}

// earliestMarker finds the first complete marker in text.
func earliestMarker(text string) (int, string) {
	best, found := -1, ""
	for _, m := range scanMarkers {
		if i := strings.Index(text, m); i >= 0 && (best < 0 || i < best) {
			best, found = i, m
		}
	}
	return best, found
}

// partialMarkerSuffix returns the length of the longest suffix of text that
// is a proper prefix of some marker.
func partialMarkerSuffix(text string) int {
	for k := min(len(text), maxMarkerLen-1); k > 0; k-- {
		suffix := text[len(text)-k:]
		if strings.HasPrefix(FenceOpen, suffix) {
			return k
		}
		for _, m := range headerMarkers {
			if strings.HasPrefix(m, suffix) {
				return k
			}
		}
	}
	return 0
}
