package template

import (
	"html"
	"reflect"
	"strings"

	kerrors "github.com/conneroisu/kiln/internal/errors"
	"github.com/conneroisu/kiln/internal/expr"
)

// renderer accumulates markup for one render call.
type renderer struct {
	sb     strings.Builder
	report func(error)
}

func (r *renderer) fail(err error) {
	if r.report != nil && err != nil {
		r.report(err)
	}
}

func (r *renderer) value(e *expr.Expr, source string, scope expr.Scope) (any, bool) {
	if e == nil {
		r.fail(kerrors.NewExpressionError(source, "malformed expression"))
		return nil, false
	}
	v, err := e.Eval(scope)
	if err != nil {
		r.fail(err)
		return nil, false
	}
	return v, true
}

func (r *renderer) segments(segs []segment, scope expr.Scope, escape bool) {
	for _, seg := range segs {
		if !seg.interp {
			r.sb.WriteString(seg.literal)
			continue
		}
		v, ok := r.value(seg.expr, seg.source, scope)
		if !ok {
			continue
		}
		s := expr.ToString(v)
		if escape {
			s = html.EscapeString(s)
		}
		r.sb.WriteString(s)
	}
}

func (n *literalNode) render(r *renderer, _ expr.Scope) {
	r.sb.WriteString(n.text)
}

func (n *textNode) render(r *renderer, scope expr.Scope) {
	r.segments(n.segments, scope, !n.raw)
}

// render applies the element's directives. The condition is evaluated
// before the loop, in the enclosing scope.
func (n *elementNode) render(r *renderer, scope expr.Scope) {
	if n.condition != nil {
		v, ok := r.value(n.condition.expr, n.condition.source, scope)
		if !ok || !expr.Truthy(v) {
			return
		}
	}

	if n.loop == nil {
		n.emit(r, scope)
		return
	}

	if n.loop.item == "" {
		r.fail(kerrors.NewExpressionError(n.loop.source, "loop must have the form \"item of collection\""))
		return
	}
	coll, ok := r.value(n.loop.collection, n.loop.source, scope)
	if !ok {
		return
	}
	items, ok := iterate(coll)
	if !ok {
		if coll != nil {
			r.fail(kerrors.NewExpressionError(n.loop.source, "collection is not iterable"))
		}
		return
	}
	for i, item := range items {
		n.emit(r, expr.With(scope, expr.Vars{n.loop.item: item, "$index": i}))
	}
}

func (n *elementNode) emit(r *renderer, scope expr.Scope) {
	r.sb.WriteByte('<')
	r.sb.WriteString(n.tag)
	for _, a := range n.attrs {
		r.sb.WriteByte(' ')
		r.sb.WriteString(a.name)
		if !a.hasValue {
			continue
		}
		q := a.quote
		if q == 0 {
			q = '"'
		}
		r.sb.WriteByte('=')
		r.sb.WriteByte(q)
		r.segments(a.value, scope, true)
		r.sb.WriteByte(q)
	}
	r.sb.WriteByte('>')
	if n.void {
		return
	}
	for _, c := range n.children {
		c.render(r, scope)
	}
	r.sb.WriteString("</")
	r.sb.WriteString(n.tag)
	r.sb.WriteByte('>')
}

// iterate returns the elements of slices, arrays and strings. Anything else
// is not iterable.
func iterate(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, true
	case reflect.String:
		runes := []rune(rv.String())
		out := make([]any, len(runes))
		for i, c := range runes {
			out[i] = string(c)
		}
		return out, true
	}
	return nil, false
}
