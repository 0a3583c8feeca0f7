package artifacts

import (
	"errors"
	"fmt"
)

// ErrInvalidHeader is wrapped by every parse failure. Match it with
// errors.Is; the concrete *ParseError carries position details.
var ErrInvalidHeader = errors.New("invalid hawk header")

// parser is a byte scanner over a Hawk parameter string.
//
// The input is consumed exhaustively: every byte must belong to a
// well-formed key="value" pair or the separators between them.
type parser struct {
	data   string
	offset int
	limits Limits
}

func newParser(data string, limits Limits) *parser {
	return &parser{data: data, limits: limits}
}

// peek returns the current byte, or 0 at end of input.
func (p *parser) peek() byte {
	if p.offset >= len(p.data) {
		return 0
	}
	return p.data[p.offset]
}

// consume advances past expected if it is the current byte.
func (p *parser) consume(expected byte) bool {
	if p.peek() == expected {
		p.offset++
		return true
	}
	return false
}

// skipOWS skips SP and HTAB.
func (p *parser) skipOWS() {
	for p.offset < len(p.data) {
		c := p.data[p.offset]
		if c != ' ' && c != '\t' {
			return
		}
		p.offset++
	}
}

func (p *parser) isEOF() bool {
	return p.offset >= len(p.data)
}

// getContext returns up to 40 bytes of input around the offset for error
// reporting.
func (p *parser) getContext() string {
	start := p.offset - 20
	if start < 0 {
		start = 0
	}
	end := p.offset + 20
	if end > len(p.data) {
		end = len(p.data)
	}

	context := p.data[start:end]
	if start > 0 {
		context = "..." + context
	}
	if end < len(p.data) {
		context = context + "..."
	}
	return context
}

// ParseError describes where a Hawk header failed to parse.
type ParseError struct {
	Offset  int    // byte position where parsing stopped
	Message string // human-readable description
	Context string // surrounding input for debugging
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at offset %d: %s (near: %q)", e.Offset, e.Message, e.Context)
}

// Unwrap lets errors.Is(err, ErrInvalidHeader) match.
func (e *ParseError) Unwrap() error {
	return ErrInvalidHeader
}

func (p *parser) newParseError(message string) *ParseError {
	return &ParseError{
		Offset:  p.offset,
		Message: message,
		Context: p.getContext(),
	}
}

func (p *parser) checkInputLength() error {
	if p.limits.MaxHeaderLength > 0 && len(p.data) > p.limits.MaxHeaderLength {
		return p.newParseError(fmt.Sprintf("input length %d exceeds limit %d",
			len(p.data), p.limits.MaxHeaderLength))
	}
	return nil
}
