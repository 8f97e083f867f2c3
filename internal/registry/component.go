// Package registry keeps component definitions keyed by selector, the way
// custom elements are defined on a page.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/conneroisu/kiln/internal/component"
	"github.com/conneroisu/kiln/internal/dom"
	kerrors "github.com/conneroisu/kiln/internal/errors"
)

// Factory returns a new controller for one instance. It may be nil, in
// which case instances have no controller.
type Factory func() any

// Definition is a registered component type.
type Definition struct {
	Config  component.Config
	Factory Factory
	// Source is the manifest the definition was loaded from, if any.
	Source  string
	// Files are the template and style files the definition was read from.
	Files   []string
	LastMod time.Time
}

// ComponentEvent represents a change in the registry.
type ComponentEvent struct {
	Type       EventType
	Definition *Definition
	Timestamp  time.Time
}

// EventType represents the type of registry event.
type EventType int

const (
	EventTypeAdded EventType = iota
	EventTypeUpdated
	EventTypeRemoved
)

func (t EventType) String() string {
	switch t {
	case EventTypeAdded:
		return "added"
	case EventTypeUpdated:
		return "updated"
	case EventTypeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Registry manages component definitions.
type Registry struct {
	definitions map[string]*Definition
	mutex       sync.RWMutex
	watchers    []chan ComponentEvent
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		definitions: make(map[string]*Definition),
		watchers:    make([]chan ComponentEvent, 0),
	}
}

// Define registers def unless its selector is already defined. It reports
// whether def was added.
func (r *Registry) Define(def *Definition) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.definitions[def.Config.Selector]; exists {
		return false
	}
	r.definitions[def.Config.Selector] = def
	r.notify(EventTypeAdded, def)
	return true
}

// Replace adds or overwrites the definition for def's selector.
func (r *Registry) Replace(def *Definition) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	eventType := EventTypeAdded
	if _, exists := r.definitions[def.Config.Selector]; exists {
		eventType = EventTypeUpdated
	}
	r.definitions[def.Config.Selector] = def
	r.notify(eventType, def)
}

// Get retrieves a definition by selector.
func (r *Registry) Get(selector string) (*Definition, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	def, exists := r.definitions[selector]
	return def, exists
}

// Selectors returns every defined selector in sorted order.
func (r *Registry) Selectors() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]string, 0, len(r.definitions))
	for selector := range r.definitions {
		out = append(out, selector)
	}
	sort.Strings(out)
	return out
}

// All returns a copy of every definition keyed by selector.
func (r *Registry) All() map[string]*Definition {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make(map[string]*Definition, len(r.definitions))
	for selector, def := range r.definitions {
		result[selector] = def
	}
	return result
}

// Remove removes a definition.
func (r *Registry) Remove(selector string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	def, exists := r.definitions[selector]
	if !exists {
		return
	}
	delete(r.definitions, selector)
	r.notify(EventTypeRemoved, def)
}

// Instantiate creates an unmounted instance of selector on rt.
func (r *Registry) Instantiate(rt *component.Runtime, selector string) (*component.Instance, error) {
	return r.Upgrade(rt, selector, nil)
}

// Upgrade creates an unmounted instance of selector using host as its host
// element. A nil host creates a fresh element.
func (r *Registry) Upgrade(rt *component.Runtime, selector string, host *dom.Node) (*component.Instance, error) {
	def, ok := r.Get(selector)
	if !ok {
		return nil, kerrors.ErrComponentNotFound(selector)
	}
	var controller any
	if def.Factory != nil {
		controller = def.Factory()
	}
	return component.NewWithHost(rt, def.Config, controller, host), nil
}

func (r *Registry) notify(eventType EventType, def *Definition) {
	event := ComponentEvent{
		Type:       eventType,
		Definition: def,
		Timestamp:  time.Now(),
	}

	for _, watcher := range r.watchers {
		select {
		case watcher <- event:
		default:
			// Skip if channel is full
		}
	}
}

// Watch returns a channel that receives registry events.
func (r *Registry) Watch() <-chan ComponentEvent {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	ch := make(chan ComponentEvent, 100)
	r.watchers = append(r.watchers, ch)
	return ch
}

// UnWatch removes a watcher channel and closes it.
func (r *Registry) UnWatch(ch <-chan ComponentEvent) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for i, watcher := range r.watchers {
		if watcher == ch {
			close(watcher)
			r.watchers = append(r.watchers[:i], r.watchers[i+1:]...)
			break
		}
	}
}

// Count returns the number of definitions.
func (r *Registry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.definitions)
}
