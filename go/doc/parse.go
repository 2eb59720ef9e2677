package doc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ParseError reports a malformed document at a byte offset within the
// buffer given to Parser.Each. Parsing resumes at the next newline.
type ParseError struct {
	Offset int
	Detail string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at offset %d: %s", e.Offset, e.Detail)
}

// NullByteInString is returned when a parsed JSON string contains a literal
// NUL byte. Flow forbids this so that every Doc string may be round-tripped
// through downstream systems (C strings, Postgres text columns, ...) that
// reject embedded nulls.
type NullByteInString struct {
	Location string
}

func (e *NullByteInString) Error() string {
	return fmt.Sprintf("string at %s contains a null byte", e.Location)
}

// Parsed is one successfully parsed document and the byte offset of the
// first byte following it (the start of the next line).
type Parsed struct {
	Doc        *Doc
	NextOffset int
}

// Parser parses a byte buffer of newline-delimited JSON documents into
// Docs allocated from a caller-supplied Arena. A malformed line is
// reported as a *ParseError (or *NullByteInString) without aborting the
// whole buffer: parsing resumes at the next newline.
type Parser struct{}

// Each parses every newline-delimited document in buf, invoking fn for
// each successfully parsed Doc and accumulating any per-line errors it
// encounters, which are returned together (not as the first error) once
// the whole buffer has been scanned.
func (Parser) Each(buf []byte, arena *Arena, fn func(Parsed)) []error {
	var errs []error
	var offset int

	for offset < len(buf) {
		var nl = bytes.IndexByte(buf[offset:], '\n')
		var lineEnd int
		if nl < 0 {
			lineEnd = len(buf)
		} else {
			lineEnd = offset + nl
		}

		var line = buf[offset:lineEnd]
		var nextOffset = lineEnd + 1
		var trimmed = bytes.TrimSpace(line)

		if len(trimmed) != 0 {
			if d, err := parseOneValue(trimmed, arena); err != nil {
				if pe, ok := err.(*ParseError); ok {
					pe.Offset += offset
				}
				errs = append(errs, err)
			} else {
				fn(Parsed{Doc: d, NextOffset: nextOffset})
			}
		}

		offset = nextOffset
		if nl < 0 {
			break
		}
	}
	return errs
}

// FromJSON parses a single JSON value (not newline-delimited) into a Doc.
// This is the direct equivalent of HeapNode::from_serde for a single
// document, used by callers (e.g. Combiner.Add) that already have one
// document's bytes isolated.
func FromJSON(raw []byte, arena *Arena) (*Doc, error) {
	return parseOneValue(bytes.TrimSpace(raw), arena)
}

func parseOneValue(raw []byte, arena *Arena) (*Doc, error) {
	var v, rest, err = scanValue(raw, arena, "")
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(rest)) != 0 {
		return nil, &ParseError{Detail: "trailing data after JSON value"}
	}
	return v, nil
}

// scanValue is a small recursive-descent JSON parser. We hand-roll it,
// rather than decoding through encoding/json's generic interface{} path,
// so that we can reject embedded NUL bytes in strings at the point of
// parsing (with a precise JSON-pointer location) and build Doc's sorted
// Object representation directly, without an intermediate map allocation.
func scanValue(s []byte, arena *Arena, loc string) (*Doc, []byte, error) {
	s = skipSpace(s)
	if len(s) == 0 {
		return nil, nil, &ParseError{Detail: "unexpected end of input"}
	}

	switch c := s[0]; {
	case c == '{':
		return scanObject(s, arena, loc)
	case c == '[':
		return scanArray(s, arena, loc)
	case c == '"':
		str, rest, err := scanString(s, loc)
		if err != nil {
			return nil, nil, err
		}
		return NewString(arena, str), rest, nil
	case c == 't':
		if !bytes.HasPrefix(s, []byte("true")) {
			return nil, nil, &ParseError{Detail: "invalid literal"}
		}
		return NewBool(arena, true), s[4:], nil
	case c == 'f':
		if !bytes.HasPrefix(s, []byte("false")) {
			return nil, nil, &ParseError{Detail: "invalid literal"}
		}
		return NewBool(arena, false), s[5:], nil
	case c == 'n':
		if !bytes.HasPrefix(s, []byte("null")) {
			return nil, nil, &ParseError{Detail: "invalid literal"}
		}
		return NewNull(arena), s[4:], nil
	case c == '-' || (c >= '0' && c <= '9'):
		return scanNumber(s, arena)
	default:
		return nil, nil, &ParseError{Detail: fmt.Sprintf("unexpected character %q", c)}
	}
}

func skipSpace(s []byte) []byte {
	var i int
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\r' || s[i] == '\n') {
		i++
	}
	return s[i:]
}

func scanObject(s []byte, arena *Arena, loc string) (*Doc, []byte, error) {
	s = s[1:] // consume '{'
	var fields []Field

	s = skipSpace(s)
	if len(s) > 0 && s[0] == '}' {
		return NewObject(arena, fields), s[1:], nil
	}

	for {
		s = skipSpace(s)
		if len(s) == 0 || s[0] != '"' {
			return nil, nil, &ParseError{Detail: "expected object key"}
		}
		name, rest, err := scanString(s, loc)
		if err != nil {
			return nil, nil, err
		}
		s = skipSpace(rest)
		if len(s) == 0 || s[0] != ':' {
			return nil, nil, &ParseError{Detail: "expected ':' after object key"}
		}
		s = s[1:]

		val, rest2, err := scanValue(s, arena, loc+"/"+EscapePointerToken(name))
		if err != nil {
			return nil, nil, err
		}
		fields = append(fields, Field{Name: name, Value: val})
		s = skipSpace(rest2)

		if len(s) == 0 {
			return nil, nil, &ParseError{Detail: "unterminated object"}
		}
		if s[0] == ',' {
			s = s[1:]
			continue
		}
		if s[0] == '}' {
			return NewObject(arena, fields), s[1:], nil
		}
		return nil, nil, &ParseError{Detail: "expected ',' or '}' in object"}
	}
}

func scanArray(s []byte, arena *Arena, loc string) (*Doc, []byte, error) {
	s = s[1:] // consume '['
	var elems []*Doc

	s = skipSpace(s)
	if len(s) > 0 && s[0] == ']' {
		return NewArray(arena, elems), s[1:], nil
	}

	var idx int
	for {
		val, rest, err := scanValue(s, arena, fmt.Sprintf("%s/%d", loc, idx))
		if err != nil {
			return nil, nil, err
		}
		elems = append(elems, val)
		idx++
		s = skipSpace(rest)

		if len(s) == 0 {
			return nil, nil, &ParseError{Detail: "unterminated array"}
		}
		if s[0] == ',' {
			s = s[1:]
			continue
		}
		if s[0] == ']' {
			return NewArray(arena, elems), s[1:], nil
		}
		return nil, nil, &ParseError{Detail: "expected ',' or ']' in array"}
	}
}

// scanString parses a JSON string literal (including surrounding quotes)
// and rejects any embedded NUL byte with a *NullByteInString identifying
// loc. It returns the decoded string and the remainder of the input.
func scanString(s []byte, loc string) (string, []byte, error) {
	if len(s) == 0 || s[0] != '"' {
		return "", nil, &ParseError{Detail: "expected string"}
	}
	var i = 1
	var sawEscape bool

	for i < len(s) {
		switch s[i] {
		case '"':
			var raw = s[1:i]
			var decoded string
			if sawEscape {
				var err error
				decoded, err = unescapeJSONString(raw)
				if err != nil {
					return "", nil, &ParseError{Detail: err.Error()}
				}
			} else {
				decoded = string(raw)
			}
			if strings.IndexByte(decoded, 0) >= 0 {
				return "", nil, &NullByteInString{Location: loc}
			}
			return decoded, s[i+1:], nil
		case '\\':
			sawEscape = true
			i += 2
		default:
			i++
		}
	}
	return "", nil, &ParseError{Detail: "unterminated string"}
}

// unescapeJSONString decodes JSON escape sequences within a string's raw
// interior bytes. We lean on encoding/json's own decoder for escape
// handling (rather than reimplementing \uXXXX/surrogate-pair logic) by
// wrapping the raw bytes back in quotes and decoding as a Go string.
func unescapeJSONString(raw []byte) (string, error) {
	var quoted = make([]byte, 0, len(raw)+2)
	quoted = append(quoted, '"')
	quoted = append(quoted, raw...)
	quoted = append(quoted, '"')

	var out string
	if err := json.Unmarshal(quoted, &out); err != nil {
		return "", fmt.Errorf("invalid string escape: %w", err)
	}
	return out, nil
}

func scanNumber(s []byte, arena *Arena) (*Doc, []byte, error) {
	var i int
	var isFloat bool

	if i < len(s) && s[i] == '-' {
		i++
	}
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i < len(s) && s[i] == '.' {
		isFloat = true
		i++
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		isFloat = true
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
	}
	if i == 0 {
		return nil, nil, &ParseError{Detail: "invalid number"}
	}

	var lit = string(s[:i])
	var rest = s[i:]

	if !isFloat {
		if lit[0] != '-' {
			if v, err := strconv.ParseUint(lit, 10, 64); err == nil {
				return NewPosInt(arena, v), rest, nil
			}
		} else {
			if v, err := strconv.ParseInt(lit, 10, 64); err == nil {
				return NewNegInt(arena, v), rest, nil
			}
		}
		// Falls through to float on overflow of the integral range.
	}

	v, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return nil, nil, &ParseError{Detail: "invalid number: " + err.Error()}
	}
	return NewFloat(arena, v), rest, nil
}

// EscapePointerToken escapes a property name per RFC 6901 for use as a
// JSON-pointer path segment ('~' -> '~0', '/' -> '~1').
func EscapePointerToken(s string) string {
	if strings.IndexByte(s, '~') < 0 && strings.IndexByte(s, '/') < 0 {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '~':
			b.WriteString("~0")
		case '/':
			b.WriteString("~1")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
