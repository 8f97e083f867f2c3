// Package document hosts component instances in one in-memory tree and
// upgrades component tags that appear in rendered output, the way a
// browser upgrades custom elements.
package document

import (
	"context"
	"sort"

	"github.com/conneroisu/kiln/internal/component"
	"github.com/conneroisu/kiln/internal/dom"
	kerrors "github.com/conneroisu/kiln/internal/errors"
	"github.com/conneroisu/kiln/internal/logging"
	"github.com/conneroisu/kiln/internal/registry"
)

// RenderFunc observes renders of any instance in the document.
type RenderFunc func(inst *component.Instance, result component.RenderResult)

// Document owns a body element, every instance mounted in it and the
// attribute snapshots used to deliver attribute changes to nested
// components. Like instances, it must be used from the loop goroutine.
type Document struct {
	rt       *component.Runtime
	registry *registry.Registry
	logger   logging.Logger

	body      *dom.Node
	instances map[*dom.Node]*component.Instance
	order     []*component.Instance
	attrs     map[*component.Instance]map[string]string
	observers []RenderFunc
}

// New creates an empty document.
func New(rt *component.Runtime, reg *registry.Registry) *Document {
	return &Document{
		rt:        rt,
		registry:  reg,
		logger:    rt.Logger.WithComponent("document"),
		body:      dom.NewElement("body"),
		instances: make(map[*dom.Node]*component.Instance),
		attrs:     make(map[*component.Instance]map[string]string),
	}
}

// Body returns the root element.
func (d *Document) Body() *dom.Node { return d.body }

// Runtime returns the runtime instances render on.
func (d *Document) Runtime() *component.Runtime { return d.rt }

// OnRender registers fn for every render in the document.
func (d *Document) OnRender(fn RenderFunc) {
	d.observers = append(d.observers, fn)
}

// Create instantiates selector, applies attrs to its host and mounts it as
// a child of the body.
func (d *Document) Create(selector string, attrs map[string]string) (*component.Instance, error) {
	inst, err := d.registry.Instantiate(d.rt, selector)
	if err != nil {
		return nil, err
	}
	for _, name := range sortedNames(attrs) {
		inst.SetAttribute(name, attrs[name])
	}
	if err := d.mount(inst, d.body); err != nil {
		return nil, err
	}
	return inst, nil
}

// Remove unmounts inst and every component nested in it, releasing their
// state.
func (d *Document) Remove(inst *component.Instance) {
	d.release(inst)
}

// Lookup returns the instance whose host is host.
func (d *Document) Lookup(host *dom.Node) (*component.Instance, bool) {
	inst, ok := d.instances[host]
	return inst, ok
}

// Instances returns the live instances in creation order.
func (d *Document) Instances() []*component.Instance {
	out := make([]*component.Instance, len(d.order))
	copy(out, d.order)
	return out
}

// Reload applies a new definition to every live instance of its selector.
func (d *Document) Reload(def *registry.Definition) {
	for _, inst := range d.Instances() {
		if inst.Selector() != def.Config.Selector {
			continue
		}
		if err := inst.Reload(def.Config); err != nil {
			d.logger.Warn(context.Background(), err, "Failed to reload component",
				"selector", def.Config.Selector)
		}
	}
}

func (d *Document) mount(inst *component.Instance, parent *dom.Node) error {
	d.instances[inst.Host()] = inst
	d.order = append(d.order, inst)
	d.attrs[inst] = snapshot(inst.Host())
	inst.OnRender(func(result component.RenderResult) {
		d.sync(inst)
		for _, fn := range d.observers {
			fn(inst, result)
		}
	})

	if err := inst.Mount(parent); err != nil {
		d.forget(inst)
		return err
	}
	return nil
}

// sync runs after inst renders. It releases nested instances whose hosts
// were removed, forwards attribute changes to the ones that remain and
// upgrades newly rendered component tags.
func (d *Document) sync(inst *component.Instance) {
	for _, other := range d.Instances() {
		if other != inst && other.Connected() && !d.attached(other) {
			d.release(other)
		}
	}

	shadow := inst.Shadow()
	if shadow == nil {
		return
	}

	shadow.Walk(func(n *dom.Node) bool {
		if n.Type != dom.ElementNode || n == shadow {
			return true
		}
		if child, ok := d.instances[n]; ok {
			d.forwardAttributes(child)
			return true
		}
		if _, ok := d.registry.Get(n.Tag); ok {
			d.upgrade(n)
		}
		return true
	})
}

func (d *Document) upgrade(host *dom.Node) {
	if d.nestedIn(host, host.Tag) {
		err := kerrors.NewInvalidTemplateError("component is nested inside itself").
			WithComponent(host.Tag)
		d.rt.Errors.Handle(context.Background(), err)
		return
	}

	child, err := d.registry.Upgrade(d.rt, host.Tag, host)
	if err != nil {
		d.rt.Errors.Handle(context.Background(), err)
		return
	}
	for _, a := range host.Attributes() {
		child.AttributeChanged(a.Key, "", a.Value)
	}
	if err := d.mount(child, nil); err != nil {
		d.logger.Warn(context.Background(), err, "Failed to upgrade component", "selector", host.Tag)
	}
}

func (d *Document) forwardAttributes(child *component.Instance) {
	prev := d.attrs[child]
	next := snapshot(child.Host())
	for name, value := range next {
		if old, ok := prev[name]; !ok || old != value {
			child.AttributeChanged(name, old, value)
		}
	}
	d.attrs[child] = next
}

// nestedIn reports whether an ancestor host of n, across shadow
// boundaries, has the given tag.
func (d *Document) nestedIn(n *dom.Node, tag string) bool {
	for cur := parentAcrossShadow(n); cur != nil; cur = parentAcrossShadow(cur) {
		if cur.Type == dom.ElementNode && cur.Tag == tag {
			return true
		}
	}
	return false
}

func (d *Document) attached(inst *component.Instance) bool {
	return inst.Host().Root() == d.body
}

// nested returns the instances whose hosts live inside inst's shadow tree,
// at any depth.
func (d *Document) nested(inst *component.Instance) []*component.Instance {
	var out []*component.Instance
	for _, other := range d.order {
		if other == inst {
			continue
		}
		for cur := parentAcrossShadow(other.Host()); cur != nil; cur = parentAcrossShadow(cur) {
			if cur == inst.Host() {
				out = append(out, other)
				break
			}
		}
	}
	return out
}

func (d *Document) release(inst *component.Instance) {
	if _, ok := d.instances[inst.Host()]; !ok {
		return
	}
	for _, child := range d.nested(inst) {
		d.release(child)
	}
	inst.Destroy()
	d.forget(inst)
}

func (d *Document) forget(inst *component.Instance) {
	delete(d.instances, inst.Host())
	delete(d.attrs, inst)
	for i, other := range d.order {
		if other == inst {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

func parentAcrossShadow(n *dom.Node) *dom.Node {
	if p := n.Parent(); p != nil {
		return p
	}
	return n.Host()
}

func sortedNames(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func snapshot(n *dom.Node) map[string]string {
	out := make(map[string]string)
	for _, a := range n.Attributes() {
		out[a.Key] = a.Value
	}
	return out
}
