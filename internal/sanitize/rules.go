package sanitize

import (
	"regexp"
	"strings"
)

// Rule is a named textual repair. Applying a rule twice gives the same text as applying it once.
type Rule struct {
	Name  string
	Apply func(string) string
}

var rules = []Rule{
	{Name: "trailing-commas", Apply: removeTrailingCommas},
	{Name: "control-characters", Apply: escapeControlCharacters},
	{Name: "missing-commas", Apply: insertMissingCommas},
}

// Rules returns the repairs in the order Sanitize applies them.
func Rules() []Rule {
	return append([]Rule(nil), rules...)
}

// stringTracker follows whether a byte stream is inside a JSON string literal. Only ASCII bytes change the state,
// so multi-byte UTF-8 sequences pass through unharmed.
type stringTracker struct {
	inString bool
	escaped  bool
}

// inside consumes c and reports whether it belongs to a string literal, quotes included.
func (t *stringTracker) inside(c byte) bool {
	if t.inString {
		switch {
		case t.escaped:
			t.escaped = false
		case c == '\\':
			t.escaped = true
		case c == '"':
			t.inString = false
		}
		return true
	}
	if c == '"' {
		t.inString = true
		return true
	}
	return false
}

// removeTrailingCommas drops the commas outside string literals that are followed only by whitespace and more
// commas before a closing brace or bracket.
func removeTrailingCommas(s string) string {
	var (
		b       strings.Builder
		tracker stringTracker
	)
	b.Grow(len(s))
	for i := range len(s) {
		c := s[i]
		if !tracker.inside(c) && c == ',' && closesAfterCommas(s[i+1:]) {
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func closesAfterCommas(rest string) bool {
	for i := range len(rest) {
		switch rest[i] {
		case ' ', '\t', '\n', '\r', ',':
		case '}', ']':
			return true
		default:
			return false
		}
	}
	return false
}

// escapeControlCharacters escapes literal newlines, carriage returns and tabs inside string literals and deletes
// every other control character. Whitespace between tokens is left alone because it is valid JSON.
func escapeControlCharacters(s string) string {
	var (
		b       strings.Builder
		tracker stringTracker
	)
	b.Grow(len(s))
	for i := range len(s) {
		c := s[i]
		inString := tracker.inside(c)
		if c >= 0x20 && c != 0x7f {
			b.WriteByte(c)
			continue
		}
		switch c {
		case '\n':
			if inString {
				b.WriteString(`\n`)
			} else {
				b.WriteByte(c)
			}
		case '\r':
			if inString {
				b.WriteString(`\r`)
			} else {
				b.WriteByte(c)
			}
		case '\t':
			if inString {
				b.WriteString(`\t`)
			} else {
				b.WriteByte(c)
			}
		}
	}
	return b.String()
}

var adjacentStringsPattern = regexp.MustCompile(`"(\s+)"`)

// insertMissingCommas puts a comma between two quoted strings separated only by whitespace.
//
// This is a heuristic. Inside prose that quotes phrases side by side, or in a value made of whitespace only, it
// inserts a comma where none belongs.
func insertMissingCommas(s string) string {
	return adjacentStringsPattern.ReplaceAllString(s, `",$1"`)
}
