package component

import (
	"fmt"
	"reflect"
	"unicode"
	"unicode/utf8"

	"github.com/conneroisu/kiln/internal/dom"
	kerrors "github.com/conneroisu/kiln/internal/errors"
)

// Constructor is called once when an instance is created.
type Constructor interface {
	Construct(*Instance)
}

// Initializer is called on the first frame after each mount.
type Initializer interface {
	OnInit(*Instance)
}

// Destroyer is called when an instance is unmounted.
type Destroyer interface {
	OnDestroy(*Instance)
}

// RenderCompleter is called after every render.
type RenderCompleter interface {
	OnRenderComplete(*Instance)
}

var (
	eventType    = reflect.TypeOf((*dom.Event)(nil))
	instanceType = reflect.TypeOf((*Instance)(nil))
)

// invoke resolves handler at fire time and calls it with the event.
func (i *Instance) invoke(name string, e *dom.Event) {
	fn, ok := i.resolve(name)
	if !ok {
		i.report(kerrors.NewHandlerNotFoundError(name, e.Type))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			i.report(kerrors.NewInternalError(fmt.Sprintf("handler %q panicked: %v", name, r), nil).
				WithContext("handler", name))
		}
	}()
	fn(e)
}

// resolve looks name up first among function-valued properties, then among
// the controller's methods by exact and capitalized name.
func (i *Instance) resolve(name string) (func(*dom.Event), bool) {
	if f, ok := i.fields[name]; ok && f.has() {
		if fn, ok := i.adapt(reflect.ValueOf(f.Get())); ok {
			return fn, true
		}
	}

	if i.controller == nil {
		return nil, false
	}
	v := reflect.ValueOf(i.controller)
	for _, candidate := range []string{name, capitalize(name)} {
		m := v.MethodByName(candidate)
		if !m.IsValid() {
			continue
		}
		if fn, ok := i.adapt(m); ok {
			return fn, true
		}
	}
	return nil, false
}

// adapt turns a func value taking any combination of *Instance and
// *dom.Event into an event callback. Results are ignored.
func (i *Instance) adapt(fn reflect.Value) (func(*dom.Event), bool) {
	if !fn.IsValid() || fn.Kind() != reflect.Func || fn.IsNil() {
		return nil, false
	}
	t := fn.Type()
	if t.IsVariadic() {
		return nil, false
	}
	for p := 0; p < t.NumIn(); p++ {
		if in := t.In(p); in != eventType && in != instanceType {
			return nil, false
		}
	}

	return func(e *dom.Event) {
		args := make([]reflect.Value, t.NumIn())
		for p := range args {
			if t.In(p) == eventType {
				args[p] = reflect.ValueOf(e)
			} else {
				args[p] = reflect.ValueOf(i)
			}
		}
		fn.Call(args)
	}, true
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
