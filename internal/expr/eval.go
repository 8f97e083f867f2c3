package expr

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

func (n *literal) eval(Scope) (any, error) { return n.value, nil }

func (n *ident) eval(s Scope) (any, error) {
	if v, ok := s.Lookup(n.name); ok {
		return v, nil
	}
	return nil, fmt.Errorf("%s is not defined", n.name)
}

func (n *member) eval(s Scope) (any, error) {
	obj, err := n.object.eval(s)
	if err != nil {
		return nil, err
	}
	return Member(obj, n.name, n.call)
}

func (n *index) eval(s Scope) (any, error) {
	obj, err := n.object.eval(s)
	if err != nil {
		return nil, err
	}
	key, err := n.key.eval(s)
	if err != nil {
		return nil, err
	}

	v := indirect(reflect.ValueOf(obj))
	switch v.Kind() {
	case reflect.Slice, reflect.Array, reflect.String:
		i, ok := toFloat(key)
		if !ok || i != math.Trunc(i) || i < 0 {
			return nil, fmt.Errorf("index %v out of range", key)
		}
		if v.Kind() == reflect.String {
			runes := []rune(v.String())
			if int(i) >= len(runes) {
				return nil, fmt.Errorf("index %v out of range", key)
			}
			return string(runes[int(i)]), nil
		}
		if int(i) >= v.Len() {
			return nil, fmt.Errorf("index %v out of range", key)
		}
		return v.Index(int(i)).Interface(), nil
	}
	return Member(obj, ToString(key), false)
}

func (n *unary) eval(s Scope) (any, error) {
	v, err := n.operand.eval(s)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case "!":
		return !Truthy(v), nil
	case "-":
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("cannot negate %T", v)
		}
		return normalizeNumber(-f), nil
	}
	return nil, fmt.Errorf("unknown operator %s", n.op)
}

func (n *binary) eval(s Scope) (any, error) {
	left, err := n.left.eval(s)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "&&":
		if !Truthy(left) {
			return left, nil
		}
		return n.right.eval(s)
	case "||":
		if Truthy(left) {
			return left, nil
		}
		return n.right.eval(s)
	}

	right, err := n.right.eval(s)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "==":
		return LooseEqual(left, right), nil
	case "!=":
		return !LooseEqual(left, right), nil
	case "===":
		return StrictEqual(left, right), nil
	case "!==":
		return !StrictEqual(left, right), nil
	case "<", "<=", ">", ">=":
		return compare(n.op, left, right)
	}
	return nil, fmt.Errorf("unknown operator %s", n.op)
}

func compare(op string, left, right any) (bool, error) {
	if ls, ok := left.(string); ok {
		if rs, ok := right.(string); ok {
			c := strings.Compare(ls, rs)
			return cmpResult(op, c), nil
		}
	}
	lf, lok := toFloat(left)
	rf, rok := toFloat(right)
	if !lok || !rok {
		return false, fmt.Errorf("cannot compare %T with %T", left, right)
	}
	switch {
	case lf < rf:
		return cmpResult(op, -1), nil
	case lf > rf:
		return cmpResult(op, 1), nil
	}
	return cmpResult(op, 0), nil
}

func cmpResult(op string, c int) bool {
	switch op {
	case "<":
		return c < 0
	case "<=":
		return c <= 0
	case ">":
		return c > 0
	default:
		return c >= 0
	}
}

// Member resolves name on obj: a map key, an exported struct field, a
// zero-argument method, or one of the built-in properties length,
// toUpperCase, toLowerCase, trim and toString. A lowercase name also matches
// the capitalised Go field or method, so "user.name" finds User.Name.
func Member(obj any, name string, call bool) (any, error) {
	if obj == nil {
		return nil, fmt.Errorf("cannot read %q of nil", name)
	}

	rv := reflect.ValueOf(obj)

	if v := indirect(rv); v.Kind() == reflect.Map && v.Type().Key().Kind() == reflect.String {
		for _, candidate := range candidates(name) {
			val := v.MapIndex(reflect.ValueOf(candidate).Convert(v.Type().Key()))
			if !val.IsValid() {
				continue
			}
			if call {
				return callValue(val.Interface(), name)
			}
			return val.Interface(), nil
		}
	}

	if v, ok := builtin(obj, name, call); ok {
		return v, nil
	}

	if m, ok := method(rv, name); ok {
		if !call && !isAccessor(m) {
			return nil, fmt.Errorf("%s is a method", name)
		}
		return invoke(m, name)
	}

	if v := indirect(rv); v.Kind() == reflect.Struct {
		for _, candidate := range candidates(name) {
			sf, ok := v.Type().FieldByName(candidate)
			if !ok || !sf.IsExported() {
				continue
			}
			f, err := v.FieldByIndexErr(sf.Index)
			if err != nil {
				continue
			}
			out := f.Interface()
			if call {
				return callValue(out, name)
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("%s is not defined on %T", name, obj)
}

func builtin(obj any, name string, call bool) (any, bool) {
	v := indirect(reflect.ValueOf(obj))
	switch name {
	case "length":
		if call {
			return nil, false
		}
		switch v.Kind() {
		case reflect.String:
			return utf8.RuneCountInString(v.String()), true
		case reflect.Slice, reflect.Array, reflect.Map:
			return v.Len(), true
		}
	case "toUpperCase", "toLowerCase", "trim":
		if !call || v.Kind() != reflect.String {
			return nil, false
		}
		s := v.String()
		switch name {
		case "toUpperCase":
			return strings.ToUpper(s), true
		case "toLowerCase":
			return strings.ToLower(s), true
		default:
			return strings.TrimSpace(s), true
		}
	case "toString":
		if call {
			return ToString(obj), true
		}
	}
	return nil, false
}

func method(rv reflect.Value, name string) (reflect.Value, bool) {
	for _, candidate := range candidates(name) {
		if m := rv.MethodByName(candidate); m.IsValid() {
			return m, true
		}
		if rv.Kind() != reflect.Pointer && rv.CanAddr() {
			if m := rv.Addr().MethodByName(candidate); m.IsValid() {
				return m, true
			}
		}
	}
	return reflect.Value{}, false
}

// isAccessor reports whether a method can be read as a property: it takes
// no arguments and returns a single value.
func isAccessor(m reflect.Value) bool {
	t := m.Type()
	return t.NumIn() == 0 && t.NumOut() == 1
}

func invoke(m reflect.Value, name string) (any, error) {
	t := m.Type()
	if t.NumIn() != 0 {
		return nil, fmt.Errorf("method %s requires arguments", name)
	}
	out := m.Call(nil)
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return out[0].Interface(), nil
	case 2:
		if err, ok := out[1].Interface().(error); ok && err != nil {
			return nil, err
		}
		return out[0].Interface(), nil
	}
	return nil, fmt.Errorf("method %s returns too many values", name)
}

func callValue(v any, name string) (any, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Func {
		return nil, fmt.Errorf("%s is not a function", name)
	}
	return invoke(rv, name)
}

func candidates(name string) []string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError || unicode.IsUpper(r) {
		return []string{name}
	}
	return []string{name, string(unicode.ToUpper(r)) + name[size:]}
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// Truthy reports the truthiness of v: nil, false, zero numbers, NaN and
// the empty string are false; everything else, including empty slices and
// maps, is true.
func Truthy(v any) bool {
	if v == nil {
		return false
	}
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x != ""
	}
	if f, ok := toFloat(v); ok {
		return f != 0 && !math.IsNaN(f)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return !rv.IsNil()
	}
	return true
}

// ToString converts v to the text an interpolation emits. nil becomes the
// empty string and slices are joined with commas.
func ToString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case fmt.Stringer:
		return x.String()
	case error:
		return x.Error()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = ToString(rv.Index(i).Interface())
		}
		return strings.Join(parts, ",")
	case reflect.Pointer:
		if rv.IsNil() {
			return ""
		}
		return ToString(rv.Elem().Interface())
	}
	return fmt.Sprint(v)
}

// LooseEqual compares numbers numerically, lets a numeric string equal its
// number, and otherwise falls back to deep equality.
func LooseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	switch {
	case aok && bok:
		return af == bf
	case aok:
		if s, ok := b.(string); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			return err == nil && f == af
		}
	case bok:
		if s, ok := a.(string); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			return err == nil && f == bf
		}
	}
	return reflect.DeepEqual(a, b)
}

// StrictEqual is LooseEqual without string-to-number coercion.
func StrictEqual(a, b any) bool {
	_, aNum := toFloat(a)
	_, bNum := toFloat(b)
	if aNum != bNum {
		return false
	}
	if _, ok := a.(string); ok {
		if _, ok := b.(string); !ok {
			return false
		}
	}
	return LooseEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

func normalizeNumber(f float64) any {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int(f)
	}
	return f
}
