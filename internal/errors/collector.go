package errors

import (
	"errors"
	"sync"
	"time"
)

// Diagnostic is one recovered error recorded by a Collector.
type Diagnostic struct {
	Type      ErrorType
	Code      string
	Component string
	Message   string
	Timestamp time.Time
}

// Collector keeps the most recent diagnostics, oldest first.
type Collector struct {
	diagnostics []Diagnostic
	limit       int
	mutex       sync.RWMutex
}

// NewCollector creates a collector holding at most limit diagnostics.
// A non-positive limit keeps 100.
func NewCollector(limit int) *Collector {
	if limit <= 0 {
		limit = 100
	}
	return &Collector{
		diagnostics: make([]Diagnostic, 0),
		limit:       limit,
	}
}

// Add records err, dropping the oldest diagnostic when full.
func (c *Collector) Add(err error) {
	if err == nil {
		return
	}

	d := Diagnostic{
		Type:      TypeOf(err),
		Message:   err.Error(),
		Timestamp: time.Now(),
	}
	var ke *KilnError
	if errors.As(err, &ke) {
		d.Code = ke.Code
		d.Component = ke.Component
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if len(c.diagnostics) >= c.limit {
		c.diagnostics = c.diagnostics[1:]
	}
	c.diagnostics = append(c.diagnostics, d)
}

// Diagnostics returns a copy of the recorded diagnostics.
func (c *Collector) Diagnostics() []Diagnostic {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	result := make([]Diagnostic, len(c.diagnostics))
	copy(result, c.diagnostics)
	return result
}

// ByType returns the diagnostics of one error type.
func (c *Collector) ByType(t ErrorType) []Diagnostic {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	var out []Diagnostic
	for _, d := range c.diagnostics {
		if d.Type == t {
			out = append(out, d)
		}
	}
	return out
}

// ByComponent returns the diagnostics recorded for one component selector.
func (c *Collector) ByComponent(component string) []Diagnostic {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	var out []Diagnostic
	for _, d := range c.diagnostics {
		if d.Component == component {
			out = append(out, d)
		}
	}
	return out
}

// HasErrors returns true if anything was recorded.
func (c *Collector) HasErrors() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.diagnostics) > 0
}

// Clear clears all diagnostics.
func (c *Collector) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.diagnostics = c.diagnostics[:0]
}
