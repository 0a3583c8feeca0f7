package artifacts

import (
	"fmt"
	"strings"
)

// Parameter keys.
const (
	KeyID    = "id"
	KeyTS    = "ts"
	KeyNonce = "nonce"
	KeyExt   = "ext"
	KeyMAC   = "mac"
	KeyHash  = "hash"
	KeyTSM   = "tsm"
)

var knownKeys = map[string]struct{}{
	KeyID:    {},
	KeyTS:    {},
	KeyNonce: {},
	KeyExt:   {},
	KeyMAC:   {},
	KeyHash:  {},
	KeyTSM:   {},
}

// params is the result of parsing a parameter string. Keys are unique.
type params map[string]string

// has reports whether key was present with a non-empty value. Empty values
// are accepted by the grammar and treated as absent.
func (ps params) has(key string) bool {
	return ps[key] != ""
}

// IsValueChar reports whether c may appear inside a quoted value: printable
// ASCII other than '"' and '\'.
func IsValueChar(c byte) bool {
	return c >= 0x20 && c <= 0x7E && c != '"' && c != '\\'
}

// ValidValue reports whether s can be carried in a quoted header value.
func ValidValue(s string) bool {
	for i := 0; i < len(s); i++ {
		if !IsValueChar(s[i]) {
			return false
		}
	}
	return true
}

// parseScheme consumes the case-insensitive "Hawk" token. It returns true
// when parameters follow, false when the input is the bare token.
func (p *parser) parseScheme(scheme string) (bool, error) {
	if len(p.data) < len(scheme) || !strings.EqualFold(p.data[:len(scheme)], scheme) {
		return false, p.newParseError(fmt.Sprintf("expected %q scheme", scheme))
	}
	p.offset = len(scheme)

	if p.isEOF() {
		return false, nil
	}
	if c := p.peek(); c != ' ' && c != '\t' {
		return false, p.newParseError("expected whitespace after scheme")
	}
	p.skipOWS()
	if p.isEOF() {
		return false, nil
	}
	return true, nil
}

// parseParams parses
//
//	params = param *(OWS "," OWS param)
//	param  = key "=" DQUOTE *valuechar DQUOTE
//
// to the end of input. Unknown keys, repeated keys, bad characters, empty
// members and trailing separators are all errors.
func (p *parser) parseParams() (params, error) {
	result := make(params, len(knownKeys))

	for {
		key, err := p.parseKey()
		if err != nil {
			return nil, err
		}
		if _, ok := knownKeys[key]; !ok {
			p.offset -= len(key)
			return nil, p.newParseError(fmt.Sprintf("unknown parameter %q", key))
		}
		if _, dup := result[key]; dup {
			p.offset -= len(key)
			return nil, p.newParseError(fmt.Sprintf("duplicate parameter %q", key))
		}

		if !p.consume('=') {
			return nil, p.newParseError("expected '=' after parameter name")
		}

		value, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		result[key] = value

		p.skipOWS()
		if p.isEOF() {
			return result, nil
		}
		if !p.consume(',') {
			return nil, p.newParseError("expected ',' between parameters")
		}
		p.skipOWS()
		if p.isEOF() {
			return nil, p.newParseError("trailing ',' after last parameter")
		}
	}
}

// parseKey consumes a run of lower-case letters.
func (p *parser) parseKey() (string, error) {
	start := p.offset
	for !p.isEOF() {
		c := p.data[p.offset]
		if c < 'a' || c > 'z' {
			break
		}
		p.offset++
	}
	if p.offset == start {
		return "", p.newParseError("expected parameter name")
	}
	return p.data[start:p.offset], nil
}

// parseValue consumes a quoted value. No escapes are recognised.
func (p *parser) parseValue() (string, error) {
	if !p.consume('"') {
		return "", p.newParseError("expected '\"' at start of value")
	}

	start := p.offset
	for {
		if p.isEOF() {
			return "", p.newParseError("unexpected EOF in value (missing closing quote)")
		}

		c := p.data[p.offset]
		if c == '"' {
			value := p.data[start:p.offset]
			p.offset++
			return value, nil
		}
		if !IsValueChar(c) {
			return "", p.newParseError("invalid character in value")
		}
		p.offset++

		if p.limits.MaxValueLength > 0 && p.offset-start > p.limits.MaxValueLength {
			return "", p.newParseError(fmt.Sprintf("value length exceeds limit %d", p.limits.MaxValueLength))
		}
	}
}
