// Package template compiles component templates into render functions.
//
// A template is HTML with four extensions: {{ expr }} interpolation,
// *if="expr" conditional elements, *for="item of collection" repeated
// elements and (event)="handler" bindings. Event bindings are removed from
// the emitted markup and returned separately so the host can attach
// listeners.
package template

import (
	"reflect"
	"sync"

	kerrors "github.com/conneroisu/kiln/internal/errors"
	"github.com/conneroisu/kiln/internal/expr"
	"github.com/conneroisu/kiln/internal/sanitize"
)

// Binding associates a DOM event with a component method name.
type Binding struct {
	EventName   string `json:"event" yaml:"event" msgpack:"event"`
	HandlerName string `json:"handler" yaml:"handler" msgpack:"handler"`
}

// RenderFunc renders a template against a model and an optional scope.
type RenderFunc func(model, scope any) (string, []Binding)

// Template is a compiled template. It is immutable and safe for concurrent
// use.
type Template struct {
	source     string
	root       *elementNode
	bindings   []Binding
	properties []string
	problems   []error
}

// Source returns the template source the Template was compiled from.
func (t *Template) Source() string { return t.source }

// Bindings returns the event bindings found in the template in document
// order.
func (t *Template) Bindings() []Binding {
	out := make([]Binding, len(t.bindings))
	copy(out, t.bindings)
	return out
}

// Properties returns the root identifiers the template reads, excluding
// loop variables.
func (t *Template) Properties() []string {
	out := make([]string, len(t.properties))
	copy(out, t.properties)
	return out
}

// Problems returns the expressions that failed to parse. They render as
// empty strings.
func (t *Template) Problems() []error {
	out := make([]error, len(t.problems))
	copy(out, t.problems)
	return out
}

// Render renders the template. Expression failures render as empty
// strings.
func (t *Template) Render(model, scope any) (string, []Binding) {
	return t.RenderReport(model, scope, nil)
}

// RenderReport is Render with a callback receiving each expression failure.
func (t *Template) RenderReport(model, scope any, report func(error)) (string, []Binding) {
	r := &renderer{report: report}
	s := t.scope(model, scope)
	for _, c := range t.root.children {
		c.render(r, s)
	}
	return r.sb.String(), t.Bindings()
}

// Func returns Render as a RenderFunc.
func (t *Template) Func() RenderFunc { return t.Render }

// scope resolves identifiers against the sanitized model first, then the
// caller scope.
func (t *Template) scope(model, scope any) expr.Scope {
	vars := expr.Vars{}
	if safe, ok := sanitize.MakeSafeObject(model).(map[string]any); ok {
		vars = safe
	}

	switch s := scope.(type) {
	case nil:
		return vars
	case expr.Scope:
		return expr.Chain{vars, s}
	default:
		return expr.Chain{vars, expr.Object{Value: s}}
	}
}

// Compiler compiles template sources and memoizes the result by exact
// source text. Entries are never evicted; Clear exists for tests.
type Compiler struct {
	mu    sync.RWMutex
	cache map[string]*Template
}

// NewCompiler returns an empty Compiler.
func NewCompiler() *Compiler {
	return &Compiler{cache: make(map[string]*Template)}
}

var defaultCompiler = NewCompiler()

// Default returns the process-wide Compiler.
func Default() *Compiler { return defaultCompiler }

// Compile compiles source with the process-wide Compiler.
func Compile(source any) (*Template, error) { return defaultCompiler.Compile(source) }

// Compile returns the compiled template for source. Any source that is not
// a string fails with an InvalidTemplateError. Compiling the same source
// twice returns the same *Template.
func (c *Compiler) Compile(source any) (*Template, error) {
	text, ok := asString(source)
	if !ok {
		return nil, kerrors.NewInvalidTemplateError("template source must be a string").
			WithContext("type", reflect.TypeOf(source))
	}

	c.mu.RLock()
	t, ok := c.cache[text]
	c.mu.RUnlock()
	if ok {
		return t, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.cache[text]; ok {
		return t, nil
	}
	t = build(text)
	c.cache[text] = t
	return t, nil
}

// Properties returns the template-referenced property names of source, or
// nil when source is not a valid template.
func (c *Compiler) Properties(source any) []string {
	t, err := c.Compile(source)
	if err != nil {
		return nil
	}
	return t.Properties()
}

// Len reports the number of compiled templates.
func (c *Compiler) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// Clear drops every compiled template.
func (c *Compiler) Clear() {
	c.mu.Lock()
	c.cache = make(map[string]*Template)
	c.mu.Unlock()
}

func asString(source any) (string, bool) {
	if source == nil {
		return "", false
	}
	v := reflect.ValueOf(source)
	if v.Kind() != reflect.String {
		return "", false
	}
	return v.String(), true
}

func build(source string) *Template {
	p := parse(source)
	t := &Template{
		source:   source,
		root:     p.root,
		bindings: p.bindings,
		problems: p.errs,
	}
	t.properties = properties(p.root)
	return t
}

// properties walks the tree collecting root identifiers in order of first
// use. Names bound by any loop are treated as locals.
func properties(root *elementNode) []string {
	locals := map[string]bool{"$index": true}
	var walkLocals func(n node)
	walkLocals = func(n node) {
		el, ok := n.(*elementNode)
		if !ok {
			return
		}
		if el.loop != nil && el.loop.item != "" {
			locals[el.loop.item] = true
		}
		for _, c := range el.children {
			walkLocals(c)
		}
	}
	walkLocals(root)

	var out []string
	seen := make(map[string]bool)
	add := func(e *expr.Expr, source string) {
		var names []string
		if e != nil {
			names = e.Identifiers()
		} else {
			names = expr.Identifiers(source)
		}
		for _, name := range names {
			if locals[name] || seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, name)
		}
	}
	addSegments := func(segs []segment) {
		for _, s := range segs {
			if s.interp {
				add(s.expr, s.source)
			}
		}
	}

	var walk func(n node)
	walk = func(n node) {
		switch n := n.(type) {
		case *textNode:
			addSegments(n.segments)
		case *elementNode:
			if n.condition != nil {
				add(n.condition.expr, n.condition.source)
			}
			if n.loop != nil && n.loop.collection != nil {
				add(n.loop.collection, n.loop.collection.Source())
			}
			for _, a := range n.attrs {
				addSegments(a.value)
			}
			for _, c := range n.children {
				walk(c)
			}
		}
	}
	walk(root)
	return out
}
