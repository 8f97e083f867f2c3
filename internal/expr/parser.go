package expr

import (
	"fmt"
	"strconv"
)

type node interface {
	eval(s Scope) (any, error)
}

type literal struct{ value any }

type ident struct{ name string }

type member struct {
	object node
	name   string
	call   bool
}

type index struct {
	object node
	key    node
}

type unary struct {
	op      string
	operand node
}

type binary struct {
	op          string
	left, right node
}

type parser struct {
	tokens []token
	pos    int
	idents []string
	seen   map[string]bool
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) accept(punct ...string) (string, bool) {
	t := p.peek()
	if t.kind != tokPunct {
		return "", false
	}
	for _, want := range punct {
		if t.text == want {
			p.pos++
			return want, true
		}
	}
	return "", false
}

func (p *parser) expect(punct string) error {
	if _, ok := p.accept(punct); !ok {
		return fmt.Errorf("expected %q, found %s", punct, p.peek())
	}
	return nil
}

func (p *parser) parseExpr() (node, error) { return p.parseOr() }

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.accept("||"); !ok {
			return left, nil
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &binary{op: "||", left: left, right: right}
	}
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.accept("&&"); !ok {
			return left, nil
		}
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		left = &binary{op: "&&", left: left, right: right}
	}
}

func (p *parser) parseEquality() (node, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.accept("===", "!==", "==", "!=")
		if !ok {
			return left, nil
		}
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &binary{op: op, left: left, right: right}
	}
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.accept("<=", ">=", "<", ">")
		if !ok {
			return left, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &binary{op: op, left: left, right: right}
	}
}

func (p *parser) parseUnary() (node, error) {
	if op, ok := p.accept("!", "-"); ok {
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unary{op: op, operand: operand}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (node, error) {
	n, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.accept("."); ok {
			t := p.next()
			if t.kind != tokIdent {
				return nil, fmt.Errorf("expected property name after '.', found %s", t)
			}
			m := &member{object: n, name: t.text}
			if _, ok := p.accept("("); ok {
				if err := p.expect(")"); err != nil {
					return nil, fmt.Errorf("method %s: only calls without arguments are supported", t.text)
				}
				m.call = true
			}
			n = m
			continue
		}
		if _, ok := p.accept("["); ok {
			key, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expect("]"); err != nil {
				return nil, err
			}
			n = &index{object: n, key: key}
			continue
		}
		return n, nil
	}
}

func (p *parser) parsePrimary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", t.text)
		}
		if i, err := strconv.Atoi(t.text); err == nil {
			return &literal{value: i}, nil
		}
		return &literal{value: f}, nil
	case tokString:
		return &literal{value: t.text}, nil
	case tokIdent:
		switch t.text {
		case "true":
			return &literal{value: true}, nil
		case "false":
			return &literal{value: false}, nil
		case "null", "undefined", "nil":
			return &literal{value: nil}, nil
		}
		if !p.seen[t.text] {
			p.seen[t.text] = true
			p.idents = append(p.idents, t.text)
		}
		return &ident{name: t.text}, nil
	case tokPunct:
		if t.text == "(" {
			inner, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			return inner, nil
		}
	}
	return nil, fmt.Errorf("unexpected %s", t)
}
