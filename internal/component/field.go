package component

import (
	"reflect"
)

// Field is one property of an instance. Once wired, writes through the
// instance rebuild the model and request a render.
type Field struct {
	name     string
	value    any
	assigned bool
	reactive bool

	get func() any
	set func(any)
}

// Name returns the property name.
func (f *Field) Name() string { return f.name }

// Reactive reports whether writes to the field schedule renders.
func (f *Field) Reactive() bool { return f.reactive }

// Get returns the current value, through the custom getter when one is
// defined.
func (f *Field) Get() any {
	if f.get != nil {
		return f.get()
	}
	return f.value
}

func (f *Field) has() bool { return f.assigned || f.get != nil }

func (f *Field) custom() bool { return f.get != nil || f.set != nil }

func (f *Field) store(v any) {
	if f.set != nil {
		f.set(v)
	} else {
		f.value = v
	}
	f.assigned = true
}

func (f *Field) isFunc() bool {
	return isFunc(f.Get())
}

func isFunc(v any) bool {
	return v != nil && reflect.TypeOf(v).Kind() == reflect.Func
}

// same reports whether a write of b over a can be skipped. Comparable
// values use ==, everything else reflect.DeepEqual.
func same(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Comparable() {
		return safeEqual(a, b)
	}
	return reflect.DeepEqual(a, b)
}

// safeEqual compares with == and treats a runtime panic, from interface
// fields holding incomparable values, as inequality.
func safeEqual(a, b any) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return a == b
}
