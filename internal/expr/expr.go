// Package expr implements the small expression language used inside
// template bindings: identifiers, dotted and indexed access, zero-argument
// method calls, literals, negation, comparisons and the short-circuit
// boolean operators.
//
// Expressions are parsed once into an AST and evaluated against a Scope.
// Nothing is ever compiled to or evaluated as Go or JavaScript source.
package expr

import (
	"strings"

	kerrors "github.com/conneroisu/kiln/internal/errors"
)

// Expr is a parsed expression.
type Expr struct {
	source string
	root   node
	idents []string
}

// Parse parses src. Parse errors are ExpressionResolutionErrors.
func Parse(src string) (*Expr, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, kerrors.NewExpressionError(src, "empty expression")
	}

	tokens, err := lex(src)
	if err != nil {
		return nil, kerrors.NewExpressionError(src, "malformed expression").WithCause(err)
	}

	p := &parser{tokens: tokens, seen: make(map[string]bool)}
	root, err := p.parseExpr()
	if err != nil {
		return nil, kerrors.NewExpressionError(src, "malformed expression").WithCause(err)
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, kerrors.NewExpressionError(src, "unexpected trailing input "+t.String())
	}

	return &Expr{source: src, root: root, idents: p.idents}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level expressions.
func MustParse(src string) *Expr {
	e, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return e
}

// Source returns the trimmed source text.
func (e *Expr) Source() string { return e.source }

// Identifiers returns the free root identifiers in order of first use.
// For "user.name && !hidden" that is [user hidden].
func (e *Expr) Identifiers() []string {
	out := make([]string, len(e.idents))
	copy(out, e.idents)
	return out
}

// Eval evaluates the expression. Resolution failures are returned as
// ExpressionResolutionErrors; callers decide how to degrade.
func (e *Expr) Eval(s Scope) (any, error) {
	if s == nil {
		s = Vars(nil)
	}
	v, err := e.root.eval(s)
	if err != nil {
		return nil, kerrors.NewExpressionError(e.source, "cannot resolve expression").WithCause(err)
	}
	return v, nil
}

// EvalString evaluates and stringifies, failing closed to "".
func (e *Expr) EvalString(s Scope) string {
	v, err := e.Eval(s)
	if err != nil {
		return ""
	}
	return ToString(v)
}

// EvalBool evaluates and tests truthiness, failing closed to false.
func (e *Expr) EvalBool(s Scope) bool {
	v, err := e.Eval(s)
	if err != nil {
		return false
	}
	return Truthy(v)
}

// Identifiers extracts the root identifiers of src. When src does not parse
// it falls back to every identifier-shaped word not preceded by a dot, so
// that property scanning still sees names used in broken bindings.
func Identifiers(src string) []string {
	if e, err := Parse(src); err == nil {
		return e.Identifiers()
	}

	tokens, err := lex(src)
	if err != nil {
		return scanWords(src)
	}
	var out []string
	seen := make(map[string]bool)
	for i, t := range tokens {
		if t.kind != tokIdent || isKeyword(t.text) || seen[t.text] {
			continue
		}
		if i > 0 && tokens[i-1].kind == tokPunct && tokens[i-1].text == "." {
			continue
		}
		seen[t.text] = true
		out = append(out, t.text)
	}
	return out
}

func scanWords(src string) []string {
	var out []string
	seen := make(map[string]bool)
	runes := []rune(src)
	for i := 0; i < len(runes); {
		if !isIdentStart(runes[i]) {
			i++
			continue
		}
		start := i
		for i < len(runes) && isIdentPart(runes[i]) {
			i++
		}
		word := string(runes[start:i])
		if start > 0 && runes[start-1] == '.' {
			continue
		}
		if !isKeyword(word) && !seen[word] {
			seen[word] = true
			out = append(out, word)
		}
	}
	return out
}

func isKeyword(s string) bool {
	switch s {
	case "true", "false", "null", "undefined", "nil":
		return true
	}
	return false
}
