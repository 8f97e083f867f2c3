package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/kiln/internal/component"
	kerrors "github.com/conneroisu/kiln/internal/errors"
	"github.com/conneroisu/kiln/internal/registry"
	"github.com/conneroisu/kiln/internal/template"
)

func setup(t *testing.T) (*Document, *registry.Registry) {
	t.Helper()
	opts := component.DefaultOptions()
	opts.Compiler = template.NewCompiler()
	rt, err := component.NewRuntime(opts)
	require.NoError(t, err)

	reg := registry.New()
	reg.Define(&registry.Definition{Config: component.Config{
		Selector: "x-list",
		Template: `<ul><x-item *for="n of items" label="{{n}}"></x-item></ul>`,
		State:    map[string]any{"items": []string{"a", "b"}},
	}})
	reg.Define(&registry.Definition{Config: component.Config{
		Selector: "x-item",
		Template: `<li>{{label}}</li>`,
		Inputs:   []string{"label"},
	}})
	return New(rt, reg), reg
}

func items(d *Document, selector string) []*component.Instance {
	var out []*component.Instance
	for _, inst := range d.Instances() {
		if inst.Selector() == selector {
			out = append(out, inst)
		}
	}
	return out
}

func TestCreateUpgradesNestedComponents(t *testing.T) {
	d, _ := setup(t)

	renders := 0
	d.OnRender(func(*component.Instance, component.RenderResult) { renders++ })

	list, err := d.Create("x-list", map[string]string{"class": "main"})
	require.NoError(t, err)

	assert.Same(t, d.Body(), list.Host().Parent())
	children := items(d, "x-item")
	require.Len(t, children, 2)
	assert.Equal(t, "<li>a</li>", children[0].Shadow().InnerHTML())
	assert.Equal(t, "<li>b</li>", children[1].Shadow().InnerHTML())
	assert.Equal(t, 3, renders)

	found, ok := d.Lookup(children[0].Host())
	assert.True(t, ok)
	assert.Same(t, children[0], found)
}

func TestRemovedHostsAreReleased(t *testing.T) {
	d, _ := setup(t)
	list, err := d.Create("x-list", nil)
	require.NoError(t, err)

	second := items(d, "x-item")[1]
	list.Set("items", []string{"a"})
	d.Runtime().Flush()

	assert.Len(t, items(d, "x-item"), 1)
	assert.False(t, second.Connected())
}

func TestAttributeChangesReachNestedComponents(t *testing.T) {
	d, _ := setup(t)
	list, err := d.Create("x-list", nil)
	require.NoError(t, err)

	first := items(d, "x-item")[0]
	list.Set("items", []string{"z", "b"})
	d.Runtime().Flush()

	require.Len(t, items(d, "x-item"), 2)
	assert.Same(t, first, items(d, "x-item")[0])
	assert.Equal(t, "<li>z</li>", first.Shadow().InnerHTML())
}

func TestRemoveReleasesNested(t *testing.T) {
	d, _ := setup(t)
	list, err := d.Create("x-list", nil)
	require.NoError(t, err)

	d.Remove(list)
	assert.Empty(t, d.Instances())
	assert.Equal(t, 0, d.Body().Len())
}

func TestSelfNestingIsRejected(t *testing.T) {
	d, reg := setup(t)
	reg.Define(&registry.Definition{Config: component.Config{
		Selector: "x-loop",
		Template: `<p><x-loop></x-loop></p>`,
	}})

	_, err := d.Create("x-loop", nil)
	require.NoError(t, err)

	assert.Len(t, d.Instances(), 1)
	assert.Len(t, d.Runtime().Diagnostics.ByType(kerrors.ErrorTypeTemplate), 1)
}

func TestCreateUnknownSelector(t *testing.T) {
	d, _ := setup(t)
	_, err := d.Create("x-nope", nil)
	assert.ErrorIs(t, err, kerrors.ErrComponentNotFound("x-nope"))
}

func TestReload(t *testing.T) {
	d, reg := setup(t)
	_, err := d.Create("x-list", nil)
	require.NoError(t, err)

	updated := &registry.Definition{Config: component.Config{
		Selector: "x-item",
		Template: `<b>{{label}}</b>`,
		Inputs:   []string{"label"},
	}}
	reg.Replace(updated)
	d.Reload(updated)

	for _, inst := range items(d, "x-item") {
		assert.Contains(t, inst.Shadow().InnerHTML(), "<b>")
	}
}
