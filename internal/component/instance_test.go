package component

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/kiln/internal/dom"
	kerrors "github.com/conneroisu/kiln/internal/errors"
	"github.com/conneroisu/kiln/internal/scheduler"
	"github.com/conneroisu/kiln/internal/template"
)

const counterTemplate = `<div><span id="value">{{count}}</span><button (click)="increment">+</button><p *if="count > 2">big</p></div>`

type counter struct {
	inits     int
	destroys  int
	completes int
}

func (c *counter) Increment(i *Instance) {
	v, _ := i.Get("count")
	i.Set("count", v.(int)+1)
}

func (c *counter) OnInit(*Instance)           { c.inits++ }
func (c *counter) OnDestroy(*Instance)        { c.destroys++ }
func (c *counter) OnRenderComplete(*Instance) { c.completes++ }

func newRuntime(t *testing.T) *Runtime {
	t.Helper()
	opts := DefaultOptions()
	opts.Compiler = template.NewCompiler()
	rt, err := NewRuntime(opts)
	require.NoError(t, err)
	return rt
}

func counterConfig() Config {
	return Config{
		Selector: "x-counter",
		Template: counterTemplate,
		State:    map[string]any{"count": 0},
	}
}

func mountCounter(t *testing.T, rt *Runtime) (*Instance, *counter, *dom.Node) {
	t.Helper()
	ctrl := &counter{}
	inst := New(rt, counterConfig(), ctrl)
	page := dom.NewElement("body")
	require.NoError(t, inst.Mount(page))
	return inst, ctrl, page
}

func TestNewRuntimeRejectsBadCapacity(t *testing.T) {
	opts := DefaultOptions()
	opts.PatchCacheCapacity = 0
	_, err := NewRuntime(opts)
	assert.ErrorIs(t, err, kerrors.ErrInvalidConfig)
}

func TestMountRendersImmediately(t *testing.T) {
	rt := newRuntime(t)
	inst, ctrl, page := mountCounter(t, rt)

	assert.Same(t, page, inst.Host().Parent())
	assert.Equal(t, `<div><span id="value">0</span><button>+</button></div>`, inst.Shadow().InnerHTML())
	assert.Equal(t, 1, ctrl.completes)
	assert.Equal(t, 0, ctrl.inits)

	rt.Flush()
	assert.Equal(t, 1, ctrl.inits)
}

func TestReactiveWritesCoalesce(t *testing.T) {
	rt := newRuntime(t)
	inst, ctrl, _ := mountCounter(t, rt)
	rt.Flush()

	inst.Set("count", 1)
	inst.Set("count", 2)
	inst.Set("count", 3)
	assert.Equal(t, scheduler.Scheduled, inst.Scheduler().State())
	assert.Equal(t, 3, inst.Model()["count"])

	rt.Flush()
	assert.Equal(t, 1, inst.Scheduler().Renders())
	assert.Equal(t, 2, ctrl.completes)
	assert.Equal(t, `<div><span id="value">3</span><button>+</button><p>big</p></div>`, inst.Shadow().InnerHTML())
}

// stamper writes a tracked property from every render completion.
type stamper struct{ completes int }

func (s *stamper) OnRenderComplete(i *Instance) {
	s.completes++
	i.Set("stamp", s.completes)
}

func TestDistinctWritesRenderOnce(t *testing.T) {
	rt := newRuntime(t)
	inst := New(rt, Config{
		Selector: "x-pair",
		Template: `<p>{{first}}-{{second}}</p>`,
		State:    map[string]any{"first": "a", "second": "b"},
	}, nil)
	require.NoError(t, inst.Mount(dom.NewElement("body")))
	rt.Flush()

	inst.Set("first", "x")
	inst.Set("second", "y")
	assert.Equal(t, `<p>a-b</p>`, inst.Shadow().InnerHTML())

	rt.Flush()
	assert.Equal(t, 1, inst.Scheduler().Renders())
	assert.Equal(t, `<p>x-y</p>`, inst.Shadow().InnerHTML())
}

func TestWritesDuringRenderDoNotSchedule(t *testing.T) {
	rt := newRuntime(t)
	ctrl := &stamper{}
	inst := New(rt, Config{Selector: "x-stamp", Template: `<p>{{stamp}}</p>`}, ctrl)
	require.NoError(t, inst.Mount(dom.NewElement("body")))

	assert.Equal(t, scheduler.Idle, inst.Scheduler().State())
	rt.Flush()
	assert.Equal(t, 0, inst.Scheduler().Renders())
	assert.Equal(t, 1, ctrl.completes)

	inst.Set("stamp", 10)
	rt.Flush()
	assert.Equal(t, 1, inst.Scheduler().Renders())
	assert.Equal(t, 2, ctrl.completes)
	assert.Equal(t, `<p>10</p>`, inst.Shadow().InnerHTML())
}

func TestRenderReplacesScheduledRender(t *testing.T) {
	rt := newRuntime(t)
	inst, ctrl, _ := mountCounter(t, rt)
	rt.Flush()

	inst.Set("count", 5)
	assert.Equal(t, scheduler.Scheduled, inst.Scheduler().State())
	inst.Render()
	assert.Equal(t, scheduler.Idle, inst.Scheduler().State())
	assert.Contains(t, inst.Shadow().InnerHTML(), `<span id="value">5</span>`)

	rt.Flush()
	assert.Equal(t, 0, inst.Scheduler().Renders())
	assert.Equal(t, 2, ctrl.completes)
}

func TestEqualWritesDoNotSchedule(t *testing.T) {
	rt := newRuntime(t)
	inst, _, _ := mountCounter(t, rt)
	rt.Flush()

	inst.Set("count", 0)
	assert.Equal(t, scheduler.Idle, inst.Scheduler().State())

	inst.Set("count", []int{1})
	rt.Flush()
	inst.Set("count", []int{1})
	assert.Equal(t, scheduler.Idle, inst.Scheduler().State())
}

func TestUntrackedWritesDoNotRender(t *testing.T) {
	rt := newRuntime(t)
	inst, _, _ := mountCounter(t, rt)
	rt.Flush()

	inst.Set("unused", "x")
	assert.Equal(t, scheduler.Idle, inst.Scheduler().State())
	assert.NotContains(t, inst.Model(), "unused")

	inst.Set("count", 1)
	assert.Equal(t, "x", inst.Model()["unused"])
}

func TestModelExcludesFunctionsAndInternalNames(t *testing.T) {
	rt := newRuntime(t)
	inst, _, _ := mountCounter(t, rt)

	inst.Set("__secret", 1)
	inst.Set("callback", func() {})
	inst.Set("count", 5)

	model := inst.Model()
	assert.NotContains(t, model, "__secret")
	assert.NotContains(t, model, "callback")
	assert.Equal(t, 5, model["count"])
}

func TestEventBindingInvokesHandler(t *testing.T) {
	rt := newRuntime(t)
	inst, _, _ := mountCounter(t, rt)

	button := inst.Shadow().FindByTag("button")[0]
	button.DispatchEvent(dom.NewEvent("click", nil))
	button.DispatchEvent(dom.NewEvent("click", nil))
	rt.Flush()

	v, _ := inst.Get("count")
	assert.Equal(t, 2, v)
	assert.Equal(t, "2", inst.Shadow().FindByKey("value").TextContent())
}

func TestHandlerResolvedAtFireTime(t *testing.T) {
	rt := newRuntime(t)
	inst := New(rt, Config{Selector: "x-late", Template: `<button (click)="go">go</button>`}, nil)
	require.NoError(t, inst.Mount(nil))

	button := inst.Shadow().FindByTag("button")[0]
	button.DispatchEvent(dom.NewEvent("click", nil))
	require.Len(t, rt.Diagnostics.ByType(kerrors.ErrorTypeHandler), 1)
	assert.Equal(t, "x-late", rt.Diagnostics.ByType(kerrors.ErrorTypeHandler)[0].Component)

	var got *dom.Event
	inst.Set("go", func(e *dom.Event) { got = e })
	button.DispatchEvent(dom.NewEvent("click", "payload"))

	require.NotNil(t, got)
	assert.Equal(t, "payload", got.Detail)
	assert.Len(t, rt.Diagnostics.ByType(kerrors.ErrorTypeHandler), 1)
	assert.True(t, inst.Connected())
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	rt := newRuntime(t)
	inst := New(rt, Config{Selector: "x-panic", Template: `<i (click)="boom">x</i>`}, nil)
	require.NoError(t, inst.Mount(nil))

	inst.Set("boom", func() { panic("nope") })
	assert.NotPanics(t, func() {
		inst.Host().DispatchEvent(dom.NewEvent("click", nil))
	})
	assert.Len(t, rt.Diagnostics.ByType(kerrors.ErrorTypeInternal), 1)
}

func TestRemountDoesNotRewire(t *testing.T) {
	rt := newRuntime(t)
	inst, ctrl, page := mountCounter(t, rt)
	inst.Set("count", 4)

	inst.Unmount()
	assert.Nil(t, inst.Host().Parent())
	assert.Equal(t, 1, ctrl.destroys)
	rt.Flush()
	assert.Equal(t, 0, inst.Scheduler().Renders(), "unmount cancels pending work")

	require.NoError(t, inst.Mount(page))
	assert.Equal(t, 1, inst.Host().ListenerCount("click"))
	assert.True(t, inst.Field("count").Reactive())
	assert.Contains(t, inst.Shadow().InnerHTML(), ">4<")

	inst.Host().DispatchEvent(dom.NewEvent("click", nil))
	v, _ := inst.Get("count")
	assert.Equal(t, 5, v)
}

func TestVisibilityGatesRenders(t *testing.T) {
	rt := newRuntime(t)
	inst, _, _ := mountCounter(t, rt)
	rt.Flush()

	inst.SetVisible(false)
	inst.Set("count", 7)
	rt.Flush()

	assert.Contains(t, inst.Shadow().InnerHTML(), ">0<")
	assert.True(t, inst.Scheduler().Pending())

	inst.SetVisible(true)
	rt.Flush()
	assert.Contains(t, inst.Shadow().InnerHTML(), ">7<")
	assert.False(t, inst.Scheduler().Pending())
}

func TestCustomAccessor(t *testing.T) {
	rt := newRuntime(t)
	stored := 10
	sets := 0
	inst := New(rt, Config{Selector: "x-acc", Template: `<b>{{count}}</b>`}, nil)
	inst.DefineAccessor("count", func() any { return stored }, func(v any) {
		sets++
		stored = v.(int) * 2
	})
	require.NoError(t, inst.Mount(nil))
	assert.Equal(t, "<b>10</b>", inst.Shadow().InnerHTML())

	inst.Set("count", 10)
	assert.Equal(t, scheduler.Scheduled, inst.Scheduler().State(), "custom setters always re-render")
	rt.Flush()

	assert.Equal(t, 1, sets)
	assert.Equal(t, "<b>20</b>", inst.Shadow().InnerHTML())
	v, ok := inst.Get("count")
	assert.True(t, ok)
	assert.Equal(t, 20, v)
}

func TestInputsReflectAttributes(t *testing.T) {
	rt := newRuntime(t)
	cfg := Config{
		Selector: "x-greet",
		Template: `<p>Hello {{userName}}</p>`,
		Inputs:   []string{"userName", "theme"},
	}
	assert.Equal(t, []string{"user-name", "theme"}, cfg.ObservedAttributes())

	inst := New(rt, cfg, nil)
	require.NoError(t, inst.Mount(nil))

	inst.SetAttribute("user-name", "Ada")
	inst.SetAttribute("other", "ignored")
	rt.Flush()

	assert.Equal(t, "<p>Hello Ada</p>", inst.Shadow().InnerHTML())
	_, ok := inst.Get("other")
	assert.False(t, ok)
	v, _ := inst.Host().GetAttribute("other")
	assert.Equal(t, "ignored", v)

	inst.SetAttribute("theme", "dark")
	assert.Equal(t, scheduler.Scheduled, inst.Scheduler().State(), "inputs are reactive even when unused")
}

func TestReplayErrorsAreRecovered(t *testing.T) {
	rt := newRuntime(t)
	rt.Patches.Set("<b>1</b>", func(*dom.Node, func()) error {
		return kerrors.NewReplayError("boom", nil)
	})

	var results []RenderResult
	inst := New(rt, Config{Selector: "x-fail", Template: `<b>{{n}}</b>`, State: map[string]any{"n": 0}}, nil)
	inst.OnRender(func(r RenderResult) { results = append(results, r) })
	require.NoError(t, inst.Mount(nil))

	inst.Set("n", 1)
	rt.Flush()
	assert.True(t, inst.Connected())
	require.Len(t, rt.Diagnostics.ByType(kerrors.ErrorTypeReplay), 1)
	assert.Equal(t, "<b>0</b>", inst.Shadow().InnerHTML())

	inst.Set("n", 2)
	rt.Flush()
	assert.Equal(t, "<b>2</b>", inst.Shadow().InnerHTML())

	require.Len(t, results, 3)
	assert.True(t, results[0].Initial)
	assert.Error(t, results[1].Err)
	assert.Equal(t, "<b>2</b>", results[2].HTML)
}

func TestExpressionErrorsAreReported(t *testing.T) {
	rt := newRuntime(t)
	inst := New(rt, Config{Selector: "x-expr", Template: `<p>{{ missing.value }}!</p>`}, nil)
	require.NoError(t, inst.Mount(nil))

	assert.Equal(t, "<p>!</p>", inst.Shadow().InnerHTML())
	diags := rt.Diagnostics.ByType(kerrors.ErrorTypeExpression)
	require.Len(t, diags, 1)
	assert.Equal(t, "x-expr", diags[0].Component)
}

type greeter struct{ Prefix string }

func (g greeter) Title() string { return g.Prefix + "!" }

func TestControllerIsTemplateScope(t *testing.T) {
	rt := newRuntime(t)
	inst := New(rt, Config{Selector: "x-scope", Template: `<h1>{{Title}} {{name}}</h1>`, State: map[string]any{"name": "kiln"}}, greeter{Prefix: "hi"})
	require.NoError(t, inst.Mount(nil))

	assert.Equal(t, "<h1>hi! kiln</h1>", inst.Shadow().InnerHTML())
}

func TestEmitBubblesFromHost(t *testing.T) {
	rt := newRuntime(t)
	inst, _, page := mountCounter(t, rt)

	var seen []any
	page.AddEventListener("changed", func(e *dom.Event) { seen = append(seen, e.Detail) })
	var emitted []string
	inst.OnEmit(func(name string, detail any) { emitted = append(emitted, name) })

	inst.Emit("changed", 42)

	assert.Equal(t, []any{42}, seen)
	assert.Equal(t, []string{"changed"}, emitted)
}

func TestStyle(t *testing.T) {
	opts := DefaultOptions()
	opts.GlobalStyles = "body{}"
	rt, err := NewRuntime(opts)
	require.NoError(t, err)

	global := New(rt, Config{Selector: "x-a", Style: "p{}"}, nil)
	scoped := New(rt, Config{Selector: "x-b", Style: "p{}", StyleMode: StyleScoped}, nil)

	assert.Equal(t, "p{}\nbody{}", global.Style())
	assert.Equal(t, "p{}", scoped.Style())
}

func TestReload(t *testing.T) {
	rt := newRuntime(t)
	inst, _, _ := mountCounter(t, rt)

	cfg := counterConfig()
	cfg.Template = `<em (dblclick)="increment">{{count}}</em>`
	require.NoError(t, inst.Reload(cfg))

	assert.Equal(t, "<em>0</em>", inst.Shadow().InnerHTML())
	assert.Equal(t, 0, inst.Host().ListenerCount("click"))
	assert.Equal(t, 1, inst.Host().ListenerCount("dblclick"))

	inst.Host().DispatchEvent(dom.NewEvent("dblclick", nil))
	rt.Flush()
	assert.Equal(t, "<em>1</em>", inst.Shadow().InnerHTML())
}

func TestDestroy(t *testing.T) {
	rt := newRuntime(t)
	inst, ctrl, page := mountCounter(t, rt)

	inst.Destroy()
	assert.Equal(t, 1, ctrl.destroys)
	assert.Equal(t, 0, inst.Host().ListenerCount("click"))
	assert.Empty(t, inst.Model())
	assert.Error(t, inst.Mount(page))
}

func TestMountWithoutTemplate(t *testing.T) {
	rt := newRuntime(t)
	inst := New(rt, Config{Selector: "x-empty"}, nil)

	require.NoError(t, inst.Mount(nil))
	assert.NotNil(t, inst.Shadow())
	assert.Equal(t, "", inst.Shadow().InnerHTML())
}

func TestCaseConversion(t *testing.T) {
	testCases := []struct {
		camel string
		kebab string
	}{
		{"userName", "user-name"},
		{"theme", "theme"},
		{"maxItemCount", "max-item-count"},
	}
	for _, tc := range testCases {
		t.Run(tc.camel, func(t *testing.T) {
			assert.Equal(t, tc.kebab, ToKebabCase(tc.camel))
			assert.Equal(t, tc.camel, ToCamelCase(tc.kebab))
		})
	}

	assert.Equal(t, "urlvalue", ToKebabCase("URLValue"))
	assert.Equal(t, "a-1", ToCamelCase("a-1"))
}
