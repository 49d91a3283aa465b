// Package literal interprets loosely-typed string representations of lists
// and dictionaries as structured values. Input uses Python-style literal
// syntax (single- or double-quoted strings, numbers, True/False/None, nested
// lists/dicts). Malformed input degrades to the raw string so callers can
// render the text verbatim instead of failing compilation.
//
// The grammar is deliberately restricted to literals. A general expression
// evaluator must never be used here.
package literal

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ParseList interprets raw as a list literal. Empty input and the literal
// text "None" yield an empty list. Input that is not bracketed, does not
// parse, or parses to something other than a list is returned unchanged
// (whitespace-trimmed).
func ParseList(raw string) any {
	s := strings.TrimSpace(raw)
	if s == "" || s == "None" {
		return []any{}
	}
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return s
	}
	v, err := parse(s)
	if err != nil {
		return s
	}
	list, ok := v.([]any)
	if !ok {
		return s
	}
	return list
}

// ParseDict interprets raw as a dictionary literal. Empty input and the
// literal text "None" yield an empty dictionary. Input that is not braced,
// does not parse, or parses to something other than a dictionary is
// returned unchanged (whitespace-trimmed).
func ParseDict(raw string) any {
	s := strings.TrimSpace(raw)
	if s == "" || s == "None" {
		return map[string]any{}
	}
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		return s
	}
	v, err := parse(s)
	if err != nil {
		return s
	}
	dict, ok := v.(map[string]any)
	if !ok {
		return s
	}
	return dict
}

type parser struct {
	src []rune
	pos int
}

// parse evaluates a single literal expression and requires that the whole
// input is consumed.
func parse(s string) (any, error) {
	p := &parser{src: []rune(s)}
	v, err := p.value()
	if err != nil {
		return nil, err
	}
	p.ws()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("trailing input at offset %d", p.pos)
	}
	return v, nil
}

func (p *parser) ws() {
	for p.pos < len(p.src) && unicode.IsSpace(p.src[p.pos]) {
		p.pos++
	}
}

func (p *parser) peek() (rune, bool) {
	if p.pos >= len(p.src) {
		return 0, false
	}
	return p.src[p.pos], true
}

func (p *parser) expect(r rune) error {
	c, ok := p.peek()
	if !ok || c != r {
		return fmt.Errorf("expected %q at offset %d", r, p.pos)
	}
	p.pos++
	return nil
}

func (p *parser) value() (any, error) {
	p.ws()
	c, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("unexpected end of input")
	}
	switch {
	case c == '[':
		return p.list()
	case c == '{':
		return p.dict()
	case c == '\'' || c == '"':
		return p.str()
	case c == '-' || c == '+' || unicode.IsDigit(c):
		return p.number()
	default:
		return p.keyword()
	}
}

func (p *parser) list() (any, error) {
	if err := p.expect('['); err != nil {
		return nil, err
	}
	items := []any{}
	p.ws()
	if c, ok := p.peek(); ok && c == ']' {
		p.pos++
		return items, nil
	}
	for {
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		items = append(items, v)
		p.ws()
		c, ok := p.peek()
		if !ok {
			return nil, fmt.Errorf("unterminated list")
		}
		if c == ',' {
			p.pos++
			p.ws()
			// Trailing comma before the closing bracket.
			if c, ok := p.peek(); ok && c == ']' {
				p.pos++
				return items, nil
			}
			continue
		}
		if c == ']' {
			p.pos++
			return items, nil
		}
		return nil, fmt.Errorf("expected ',' or ']' at offset %d", p.pos)
	}
}

func (p *parser) dict() (any, error) {
	if err := p.expect('{'); err != nil {
		return nil, err
	}
	items := map[string]any{}
	p.ws()
	if c, ok := p.peek(); ok && c == '}' {
		p.pos++
		return items, nil
	}
	for {
		p.ws()
		c, ok := p.peek()
		if !ok || (c != '\'' && c != '"') {
			return nil, fmt.Errorf("expected string key at offset %d", p.pos)
		}
		key, err := p.str()
		if err != nil {
			return nil, err
		}
		p.ws()
		if err := p.expect(':'); err != nil {
			return nil, err
		}
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		items[key] = v
		p.ws()
		c, ok = p.peek()
		if !ok {
			return nil, fmt.Errorf("unterminated dict")
		}
		if c == ',' {
			p.pos++
			p.ws()
			if c, ok := p.peek(); ok && c == '}' {
				p.pos++
				return items, nil
			}
			continue
		}
		if c == '}' {
			p.pos++
			return items, nil
		}
		return nil, fmt.Errorf("expected ',' or '}' at offset %d", p.pos)
	}
}

func (p *parser) str() (string, error) {
	quote := p.src[p.pos]
	p.pos++
	var b strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == quote {
			p.pos++
			return b.String(), nil
		}
		if c == '\\' && p.pos+1 < len(p.src) {
			p.pos++
			switch esc := p.src[p.pos]; esc {
			case 'n':
				b.WriteRune('\n')
			case 't':
				b.WriteRune('\t')
			case 'r':
				b.WriteRune('\r')
			default:
				b.WriteRune(esc)
			}
			p.pos++
			continue
		}
		b.WriteRune(c)
		p.pos++
	}
	return "", fmt.Errorf("unterminated string")
}

func (p *parser) number() (any, error) {
	start := p.pos
	if c, _ := p.peek(); c == '-' || c == '+' {
		p.pos++
	}
	isFloat := false
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if unicode.IsDigit(c) {
			p.pos++
			continue
		}
		if c == '.' || c == 'e' || c == 'E' {
			isFloat = true
			p.pos++
			continue
		}
		if (c == '-' || c == '+') && isFloat {
			// Exponent sign.
			prev := p.src[p.pos-1]
			if prev == 'e' || prev == 'E' {
				p.pos++
				continue
			}
		}
		break
	}
	text := string(p.src[start:p.pos])
	if isFloat {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", text)
		}
		return f, nil
	}
	i, err := strconv.Atoi(text)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", text)
	}
	return i, nil
}

func (p *parser) keyword() (any, error) {
	rest := string(p.src[p.pos:])
	switch {
	case strings.HasPrefix(rest, "True"):
		p.pos += 4
		return true, nil
	case strings.HasPrefix(rest, "False"):
		p.pos += 5
		return false, nil
	case strings.HasPrefix(rest, "None"):
		p.pos += 4
		return nil, nil
	}
	return nil, fmt.Errorf("unexpected token at offset %d", p.pos)
}
