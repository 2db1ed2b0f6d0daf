// Package template implements the text substitution language used by every
// step: {{name|pipe(..)|..}} variable tokens and {% mock 'func',args %} mock
// generator tokens.
package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Mode controls how often a token is resolved.
type Mode int

const (
	// JustOnce resolves each distinct token once and substitutes the same
	// literal everywhere it appears.
	JustOnce Mode = iota
	// ChangeEveryTime resolves every occurrence independently. Selected
	// automatically when any token references a mock generator.
	ChangeEveryTime
)

// Lookup resolves a variable name to its value.
type Lookup func(name string) (any, bool)

// MapLookup adapts a plain map to a Lookup.
func MapLookup(m map[string]any) Lookup {
	return func(name string) (any, bool) {
		v, ok := m[name]
		return v, ok
	}
}

var tokenRe = regexp.MustCompile(`\{\{.*?\}\}|\{%.*?%\}`)

// AutoMode picks ChangeEveryTime when the text contains a mock token.
func AutoMode(text string) Mode {
	if strings.Contains(text, "{%") {
		return ChangeEveryTime
	}
	return JustOnce
}

// Exchange resolves all tokens of a text against a variable lookup.
type Exchange struct {
	text   string
	lookup Lookup
	mode   Mode
}

func NewExchange(text string, lookup Lookup, mode Mode) *Exchange {
	if lookup == nil {
		lookup = func(string) (any, bool) { return nil, false }
	}
	return &Exchange{text: text, lookup: lookup, mode: mode}
}

// Replace returns the text with every token substituted. Text without tokens
// is returned unchanged.
func (e *Exchange) Replace() string {
	if !strings.Contains(e.text, "{{") && !strings.Contains(e.text, "{%") {
		return e.text
	}
	if e.mode == JustOnce {
		cache := map[string]string{}
		return tokenRe.ReplaceAllStringFunc(e.text, func(tok string) string {
			if v, ok := cache[tok]; ok {
				return v
			}
			v := e.resolveToken(tok)
			cache[tok] = v
			return v
		})
	}
	return tokenRe.ReplaceAllStringFunc(e.text, e.resolveToken)
}

// ReplaceValue resolves a text that is exactly one token to its typed value;
// any other text falls back to Replace.
func (e *Exchange) ReplaceValue() any {
	trimmed := strings.TrimSpace(e.text)
	if tokenRe.FindString(trimmed) == trimmed && trimmed != "" {
		v, ok := e.resolveTokenValue(trimmed)
		if ok {
			return v
		}
		return nullLiteral
	}
	return e.Replace()
}

const nullLiteral = "null"

func (e *Exchange) resolveToken(tok string) string {
	v, ok := e.resolveTokenValue(tok)
	if !ok {
		return nullLiteral
	}
	return formatValue(v)
}

func (e *Exchange) resolveTokenValue(tok string) (any, bool) {
	var body string
	switch {
	case strings.HasPrefix(tok, "{{") && strings.HasSuffix(tok, "}}"):
		body = strings.TrimSpace(tok[2 : len(tok)-2])
	case strings.HasPrefix(tok, "{%") && strings.HasSuffix(tok, "%}"):
		body = strings.TrimSpace(tok[2 : len(tok)-2])
	default:
		return nil, false
	}
	segments := splitOutsideQuotes(body, '|')
	if len(segments) == 0 {
		return nil, false
	}
	head := strings.TrimSpace(segments[0])

	var value any
	switch {
	case strings.HasPrefix(head, "mock"):
		rest := strings.TrimSpace(strings.TrimPrefix(head, "mock"))
		parts := splitOutsideQuotes(rest, ',')
		if len(parts) == 0 {
			return nil, false
		}
		name := unquote(strings.TrimSpace(parts[0]))
		args := make([]string, 0, len(parts)-1)
		for _, p := range parts[1:] {
			args = append(args, unquote(strings.TrimSpace(p)))
		}
		mocked, ok := callMock(name, args)
		if !ok {
			return nil, false
		}
		value = mocked
	case isQuoted(head):
		value = unquote(head)
	default:
		v, ok := e.lookup(head)
		if !ok {
			return nil, false
		}
		value = v
	}

	for _, seg := range segments[1:] {
		name, args, err := parsePipe(strings.TrimSpace(seg))
		if err != nil {
			return nil, false
		}
		out, ok := callPipe(name, formatValue(value), args)
		if !ok {
			return nil, false
		}
		value = out
	}
	return value, true
}

var pipeRe = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*(?:\((.*)\))?$`)

func parsePipe(seg string) (string, []string, error) {
	m := pipeRe.FindStringSubmatch(seg)
	if m == nil {
		return "", nil, fmt.Errorf("malformed pipe %q", seg)
	}
	name := m[1]
	if m[2] == "" {
		return name, nil, nil
	}
	raw := splitOutsideQuotes(m[2], ',')
	args := make([]string, 0, len(raw))
	for _, a := range raw {
		args = append(args, unquote(strings.TrimSpace(a)))
	}
	return name, args, nil
}

// splitOutsideQuotes splits on sep, ignoring separators inside single-quoted
// regions.
func splitOutsideQuotes(s string, sep byte) []string {
	var parts []string
	var cur strings.Builder
	inQuote := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			cur.WriteByte(c)
		case c == sep && !inQuote:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	parts = append(parts, cur.String())
	return parts
}

func isQuoted(s string) bool {
	return len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\''
}

func unquote(s string) string {
	if isQuoted(s) {
		return s[1 : len(s)-1]
	}
	return s
}

// formatValue renders a resolved value the way it appears in substituted
// text: integral floats without a decimal point, structures as JSON.
func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return nullLiteral
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return formatValue(float64(t))
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// Render is the package-level convenience: resolve text against a lookup with
// the automatically selected mode.
func Render(text string, lookup Lookup) string {
	return NewExchange(text, lookup, AutoMode(text)).Replace()
}
