// Package component implements component instances: reactive properties,
// the model snapshot, render scheduling, event binding and the mount
// lifecycle on an in-memory DOM host.
package component

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/conneroisu/kiln/internal/dom"
	kerrors "github.com/conneroisu/kiln/internal/errors"
	"github.com/conneroisu/kiln/internal/logging"
	"github.com/conneroisu/kiln/internal/scheduler"
	"github.com/conneroisu/kiln/internal/template"
)

// RenderResult describes one completed render.
type RenderResult struct {
	Markup   string
	Bindings []template.Binding
	// HTML is the shadow root content after the patch was applied.
	HTML    string
	Initial bool
	Err     error
}

// Instance is one component on the host. All methods must be called from
// the runtime's loop goroutine, or before the loop starts.
type Instance struct {
	config     Config
	rt         *Runtime
	controller any
	logger     logging.Logger

	host   *dom.Node
	shadow *dom.Node
	tmpl   *template.Template
	sched  *scheduler.RenderScheduler

	fields map[string]*Field
	order  []string
	model  map[string]any

	connected bool
	visible   bool
	wired     bool
	listening bool
	destroyed bool
	removers  []func()

	renderObservers []func(RenderResult)
	emitObservers   []func(name string, detail any)
}

// New creates an unmounted instance of cfg. controller supplies event
// handlers as methods and may implement the lifecycle interfaces; it may be
// nil. Initial state from cfg.State is applied before Construct runs.
func New(rt *Runtime, cfg Config, controller any) *Instance {
	return NewWithHost(rt, cfg, controller, nil)
}

// NewWithHost is New using an existing element as the host, as when a
// component tag already present in a tree is upgraded. A nil host creates
// a fresh element.
func NewWithHost(rt *Runtime, cfg Config, controller any, host *dom.Node) *Instance {
	if host == nil {
		host = dom.NewElement(cfg.Selector)
	}
	if cfg.StyleMode == "" {
		cfg.StyleMode = StyleGlobal
	}
	i := &Instance{
		config:     cfg,
		rt:         rt,
		controller: controller,
		logger:     rt.Logger.WithComponent(cfg.Selector),
		host:       host,
		fields:     make(map[string]*Field),
		model:      map[string]any{},
	}
	i.sched = scheduler.NewRenderScheduler(rt.Loop, i.render, i.Visible)

	keys := make([]string, 0, len(cfg.State))
	for k := range cfg.State {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		i.Set(k, cfg.State[k])
	}

	if c, ok := controller.(Constructor); ok {
		c.Construct(i)
	}
	return i
}

// Selector returns the element name of the component.
func (i *Instance) Selector() string { return i.config.Selector }

// Config returns the component configuration.
func (i *Instance) Config() Config { return i.config }

// Controller returns the value handlers are resolved against.
func (i *Instance) Controller() any { return i.controller }

// Host returns the host element.
func (i *Instance) Host() *dom.Node { return i.host }

// Shadow returns the rendering root, or nil before the first mount.
func (i *Instance) Shadow() *dom.Node { return i.shadow }

// Template returns the compiled template, or nil before the first mount.
func (i *Instance) Template() *template.Template { return i.tmpl }

// Scheduler exposes the render state machine.
func (i *Instance) Scheduler() *scheduler.RenderScheduler { return i.sched }

// Connected reports whether the instance is mounted.
func (i *Instance) Connected() bool { return i.connected }

// Visible reports whether renders may run: the instance is mounted and
// not hidden.
func (i *Instance) Visible() bool { return i.connected && i.visible }

// Style returns the stylesheet to adopt: the component style, followed by
// the global styles unless the component is scoped.
func (i *Instance) Style() string {
	if i.config.StyleMode == StyleScoped {
		return i.config.Style
	}
	return i.config.Style + "\n" + i.rt.GlobalStyles
}

// Mount attaches the host under parent (nil leaves it where it is),
// compiles and wires the template on first use and renders immediately.
// Remounting reuses the compiled template and existing property state.
func (i *Instance) Mount(parent *dom.Node) error {
	if i.destroyed {
		return kerrors.NewInternalError("cannot mount a destroyed component", nil).WithComponent(i.config.Selector)
	}
	if parent != nil && i.host.Parent() != parent {
		parent.AppendChild(i.host)
	}

	i.connected = true
	i.visible = true
	i.shadow = i.host.AttachShadow()

	if strings.TrimSpace(i.config.Template) == "" {
		i.logger.Warn(context.Background(), nil, "Template is not defined for the component")
		return nil
	}

	if i.tmpl == nil {
		t, err := i.rt.Compiler.Compile(i.config.Template)
		if err != nil {
			i.report(err)
			return err
		}
		i.tmpl = t
	}

	i.wire()
	i.Render()

	i.rt.Loop.RequestAnimationFrame(func() {
		i.rt.Loop.Post(func() {
			if h, ok := i.controller.(Initializer); ok && i.connected {
				h.OnInit(i)
			}
		})
	})
	return nil
}

// Unmount detaches the host and cancels pending render work. State is kept
// for a later Mount.
func (i *Instance) Unmount() {
	if !i.connected {
		return
	}
	i.connected = false
	i.sched.Cancel()
	if parent := i.host.Parent(); parent != nil {
		parent.RemoveChild(i.host)
	}
	if h, ok := i.controller.(Destroyer); ok {
		h.OnDestroy(i)
	}
}

// Destroy unmounts the instance and releases its listeners and state. The
// instance cannot be mounted again.
func (i *Instance) Destroy() {
	i.Unmount()
	i.detach()
	i.fields = make(map[string]*Field)
	i.order = nil
	i.model = map[string]any{}
	i.renderObservers = nil
	i.emitObservers = nil
	i.destroyed = true
}

// SetVisible records the visibility signal. Becoming visible re-arms a
// render that was skipped while hidden.
func (i *Instance) SetVisible(visible bool) {
	i.visible = visible
	if visible {
		i.sched.Resume()
	}
}

// Reload swaps in a new configuration, keeping property state. Listeners
// are rebound to the new template and a mounted instance re-renders.
func (i *Instance) Reload(cfg Config) error {
	if cfg.StyleMode == "" {
		cfg.StyleMode = StyleGlobal
	}
	cfg.Selector = i.config.Selector

	var t *template.Template
	if strings.TrimSpace(cfg.Template) != "" {
		var err error
		if t, err = i.rt.Compiler.Compile(cfg.Template); err != nil {
			i.report(err)
			return err
		}
	}

	i.config = cfg
	i.tmpl = t
	i.detach()
	for _, f := range i.fields {
		f.reactive = false
	}
	i.wired = false

	if i.tmpl != nil && i.connected {
		i.wire()
		i.Render()
	}
	return nil
}

// wire marks every template-referenced property and every declared input
// reactive. It runs once per template.
func (i *Instance) wire() {
	if i.wired {
		return
	}
	names := append(i.tmpl.Properties(), i.config.Inputs...)
	for _, name := range names {
		if strings.HasPrefix(name, "__") {
			continue
		}
		f := i.field(name)
		if f.isFunc() {
			continue
		}
		f.reactive = true
	}
	i.wired = true
	i.rebuildModel()
}

func (i *Instance) field(name string) *Field {
	f, ok := i.fields[name]
	if !ok {
		f = &Field{name: name}
		i.fields[name] = f
		i.order = append(i.order, name)
	}
	return f
}

// Field returns the named property, or nil.
func (i *Instance) Field(name string) *Field { return i.fields[name] }

// DefineAccessor installs a custom getter and setter for name. Either may
// be nil. Reactive writes delegate to them and always re-render.
func (i *Instance) DefineAccessor(name string, get func() any, set func(any)) {
	f := i.field(name)
	f.get = get
	f.set = set
}

// Get returns a property value.
func (i *Instance) Get(name string) (any, bool) {
	f, ok := i.fields[name]
	if !ok || !f.has() {
		return nil, false
	}
	return f.Get(), true
}

// Set writes a property. Writes to reactive properties that change the
// value rebuild the model and request a render; writes through a custom
// setter always do.
func (i *Instance) Set(name string, value any) {
	f := i.field(name)
	if !f.reactive {
		f.store(value)
		return
	}
	if !f.custom() && f.assigned && same(f.value, value) {
		return
	}
	f.store(value)
	i.rebuildModel()
	i.sched.Request()
}

// Model returns a copy of the current model snapshot.
func (i *Instance) Model() map[string]any {
	out := make(map[string]any, len(i.model))
	for k, v := range i.model {
		out[k] = v
	}
	return out
}

func (i *Instance) rebuildModel() {
	model := make(map[string]any, len(i.order))
	for _, name := range i.order {
		if strings.HasPrefix(name, "__") {
			continue
		}
		f := i.fields[name]
		if !f.has() {
			continue
		}
		v := f.Get()
		if isFunc(v) {
			continue
		}
		model[name] = v
	}
	i.model = model
}

// AttributeChanged handles a change of an observed attribute by setting
// the matching input property.
func (i *Instance) AttributeChanged(name, oldValue, newValue string) {
	prop := ToCamelCase(name)
	if !i.config.hasInput(prop) {
		return
	}
	i.logger.Debug(context.Background(), "Attribute changed",
		"attribute", name, "old", oldValue, "new", newValue)
	i.Set(prop, newValue)
}

// SetAttribute sets an attribute on the host and reflects it into the
// matching input property.
func (i *Instance) SetAttribute(name, value string) {
	old, _ := i.host.GetAttribute(name)
	i.host.SetAttribute(name, value)
	i.AttributeChanged(name, old, value)
}

// Emit dispatches a bubbling event from the host element.
func (i *Instance) Emit(name string, detail any) {
	i.host.DispatchEvent(dom.NewEvent(name, detail))
	for _, fn := range i.emitObservers {
		fn(name, detail)
	}
}

// OnRender registers fn to run after every render.
func (i *Instance) OnRender(fn func(RenderResult)) {
	i.renderObservers = append(i.renderObservers, fn)
}

// OnEmit registers fn to run for every emitted event.
func (i *Instance) OnEmit(fn func(name string, detail any)) {
	i.emitObservers = append(i.emitObservers, fn)
}

// Render renders synchronously and drops any scheduled render. Property
// writes made while it runs, such as from OnRenderComplete, do not
// schedule another.
func (i *Instance) Render() { i.sched.Now() }

func (i *Instance) render() {
	ctx := context.Background()
	if i.shadow == nil {
		i.report(kerrors.NewReplayError("shadow root is not attached", nil))
		return
	}
	if i.tmpl == nil {
		return
	}

	perf := logging.StartOperation(i.logger, "render")
	defer perf.End(ctx)

	markup, bindings := i.tmpl.RenderReport(i.model, i.controller, i.report)

	initial := !i.listening
	if initial {
		i.attach(bindings)
	}

	result := RenderResult{Markup: markup, Bindings: bindings, Initial: initial}
	fn, err := i.rt.Patches.GetOrBuild(markup)
	if err == nil {
		err = i.replay(fn)
	}
	if err != nil {
		i.report(err)
		result.Err = err
	}
	result.HTML = i.shadow.InnerHTML()

	if h, ok := i.controller.(RenderCompleter); ok {
		h.OnRenderComplete(i)
	}
	for _, obs := range i.renderObservers {
		obs(result)
	}
}

func (i *Instance) replay(fn func(*dom.Node, func()) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = kerrors.NewReplayError(fmt.Sprintf("replay panicked: %v", r), nil)
		}
	}()
	return fn(i.shadow, nil)
}

func (i *Instance) attach(bindings []template.Binding) {
	for _, b := range bindings {
		handler, event := b.HandlerName, b.EventName
		remove := i.host.AddEventListener(event, func(e *dom.Event) {
			i.invoke(handler, e)
		})
		i.removers = append(i.removers, remove)
	}
	i.listening = true
}

func (i *Instance) detach() {
	for _, remove := range i.removers {
		remove()
	}
	i.removers = nil
	i.listening = false
}

// report sends a recovered error to the runtime's error handler, tagged
// with the selector.
func (i *Instance) report(err error) {
	if err == nil {
		return
	}
	var ke *kerrors.KilnError
	if errors.As(err, &ke) && ke.Component == "" {
		ke.Component = i.config.Selector
	}
	i.rt.Errors.Handle(context.Background(), err)
}
