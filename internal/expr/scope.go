package expr

// Scope resolves root identifiers.
type Scope interface {
	Lookup(name string) (any, bool)
}

// Vars is a Scope backed by a plain map.
type Vars map[string]any

// Lookup implements Scope.
func (v Vars) Lookup(name string) (any, bool) {
	val, ok := v[name]
	return val, ok
}

// Chain consults each scope in order; the first hit wins.
type Chain []Scope

// Lookup implements Scope.
func (c Chain) Lookup(name string) (any, bool) {
	for _, s := range c {
		if s == nil {
			continue
		}
		if v, ok := s.Lookup(name); ok {
			return v, true
		}
	}
	return nil, false
}

// Object exposes the fields, map keys and methods of an arbitrary Go value
// as a Scope.
type Object struct {
	Value any
}

// Lookup implements Scope.
func (o Object) Lookup(name string) (any, bool) {
	if o.Value == nil {
		return nil, false
	}
	if v, err := Member(o.Value, name, false); err == nil {
		return v, true
	}
	return nil, false
}

// With returns a scope where vars shadow parent.
func With(parent Scope, vars Vars) Scope {
	if parent == nil {
		return vars
	}
	return Chain{vars, parent}
}
