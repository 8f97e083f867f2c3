// Package sanitize turns arbitrary component state into plain data that is
// safe to hand to a compiled render function: no functions, no channels and
// no reference cycles.
package sanitize

import (
	"fmt"
	"reflect"
)

// identity is what makes two references "the same object" for cycle
// detection: the address of the referenced data plus its type, and for
// slices the length, since two slices may share a backing array.
type identity struct {
	ptr uintptr
	typ reflect.Type
	len int
}

// MakeSafeObject deep-copies v into maps, slices and primitives.
//
// Maps and structs become map[string]any with function-valued members
// omitted; slices and arrays become []any with function elements replaced by
// nil so indices are preserved; pointers and interfaces are followed.
// A reference (map, slice, pointer) already visited during this call
// resolves to nil instead of being copied again, which breaks cycles.
// Shared references are collapsed the same way.
func MakeSafeObject(v any) any {
	visited := make(map[identity]struct{})
	out, _ := safe(reflect.ValueOf(v), visited)
	return out
}

// safe returns the sanitized value and false when the value must be omitted
// from its parent object.
func safe(v reflect.Value, visited map[identity]struct{}) (any, bool) {
	if !v.IsValid() {
		return nil, true
	}

	switch v.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return nil, false

	case reflect.Interface:
		if v.IsNil() {
			return nil, true
		}
		return safe(v.Elem(), visited)

	case reflect.Pointer:
		if v.IsNil() {
			return nil, true
		}
		if seen(v, visited) {
			return nil, true
		}
		return safe(v.Elem(), visited)

	case reflect.Map:
		if v.IsNil() {
			return nil, true
		}
		if seen(v, visited) {
			return nil, true
		}
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			val, keep := safe(iter.Value(), visited)
			if !keep {
				continue
			}
			out[keyString(iter.Key())] = val
		}
		return out, true

	case reflect.Slice:
		if v.IsNil() {
			return nil, true
		}
		if seen(v, visited) {
			return nil, true
		}
		return safeList(v, visited), true

	case reflect.Array:
		return safeList(v, visited), true

	case reflect.Struct:
		t := v.Type()
		out := make(map[string]any, t.NumField())
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if !field.IsExported() {
				continue
			}
			val, keep := safe(v.Field(i), visited)
			if !keep {
				continue
			}
			out[field.Name] = val
		}
		return out, true

	default:
		return v.Interface(), true
	}
}

func safeList(v reflect.Value, visited map[identity]struct{}) []any {
	out := make([]any, v.Len())
	for i := 0; i < v.Len(); i++ {
		val, _ := safe(v.Index(i), visited)
		out[i] = val
	}
	return out
}

// seen records v's identity and reports whether it had been recorded before.
func seen(v reflect.Value, visited map[identity]struct{}) bool {
	id := identity{ptr: v.Pointer(), typ: v.Type()}
	if v.Kind() == reflect.Slice {
		id.len = v.Len()
	}
	if id.ptr == 0 {
		return false
	}
	if _, ok := visited[id]; ok {
		return true
	}
	visited[id] = struct{}{}
	return false
}

func keyString(k reflect.Value) string {
	if k.Kind() == reflect.String {
		return k.String()
	}
	if k.Kind() == reflect.Interface && !k.IsNil() && k.Elem().Kind() == reflect.String {
		return k.Elem().String()
	}
	return fmt.Sprint(k.Interface())
}
