package template

import (
	"github.com/conneroisu/kiln/internal/expr"
)

// node is one piece of a parsed template.
type node interface {
	render(r *renderer, scope expr.Scope)
}

// segment is either literal template text or an interpolation.
type segment struct {
	literal string
	source  string     // raw expression text for {{ }} segments
	expr    *expr.Expr // nil when source failed to parse
	interp  bool
}

type textNode struct {
	segments []segment
	raw      bool // inside script/style: interpolations are not escaped
}

// commentNode and other literal markup are copied through unchanged.
type literalNode struct {
	text string
}

type attribute struct {
	name     string
	value    []segment
	hasValue bool
	quote    byte
}

type loopDirective struct {
	item       string
	source     string
	collection *expr.Expr
}

type conditionDirective struct {
	source string
	expr   *expr.Expr
}

type elementNode struct {
	tag         string
	attrs       []attribute
	condition   *conditionDirective
	loop        *loopDirective
	children    []node
	selfClosing bool
	void        bool
	raw         bool
}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

var rawTextElements = map[string]bool{
	"script": true, "style": true, "textarea": true, "title": true,
}
