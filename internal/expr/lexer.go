package expr

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokPunct
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) String() string {
	if t.kind == tokEOF {
		return "end of expression"
	}
	return fmt.Sprintf("%q", t.text)
}

// punctuators ordered longest first so "===" wins over "==".
var punctuators = []string{
	"===", "!==",
	"==", "!=", "<=", ">=", "&&", "||",
	"<", ">", "!", "(", ")", "[", "]", ".", "-",
}

func isIdentStart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r)
}

func lex(src string) ([]token, error) {
	var tokens []token
	runes := []rune(src)
	i := 0

	for i < len(runes) {
		r := runes[i]

		switch {
		case unicode.IsSpace(r):
			i++

		case isIdentStart(r):
			start := i
			for i < len(runes) && isIdentPart(runes[i]) {
				i++
			}
			tokens = append(tokens, token{kind: tokIdent, text: string(runes[start:i]), pos: start})

		case unicode.IsDigit(r):
			start := i
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				// "items.0" style access is not numeric; stop before a dot
				// that is not followed by a digit.
				if runes[i] == '.' && (i+1 >= len(runes) || !unicode.IsDigit(runes[i+1])) {
					break
				}
				i++
			}
			tokens = append(tokens, token{kind: tokNumber, text: string(runes[start:i]), pos: start})

		case r == '"' || r == '\'':
			quote := r
			start := i
			i++
			var sb strings.Builder
			closed := false
			for i < len(runes) {
				c := runes[i]
				if c == '\\' && i+1 < len(runes) {
					sb.WriteRune(unescape(runes[i+1]))
					i += 2
					continue
				}
				if c == quote {
					closed = true
					i++
					break
				}
				sb.WriteRune(c)
				i++
			}
			if !closed {
				return nil, fmt.Errorf("unterminated string at offset %d", start)
			}
			tokens = append(tokens, token{kind: tokString, text: sb.String(), pos: start})

		default:
			matched := false
			rest := string(runes[i:])
			for _, p := range punctuators {
				if strings.HasPrefix(rest, p) {
					tokens = append(tokens, token{kind: tokPunct, text: p, pos: i})
					i += len([]rune(p))
					matched = true
					break
				}
			}
			if !matched {
				return nil, fmt.Errorf("unexpected character %q at offset %d", r, i)
			}
		}
	}

	tokens = append(tokens, token{kind: tokEOF, pos: len(runes)})
	return tokens, nil
}

func unescape(r rune) rune {
	switch r {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	default:
		return r
	}
}
