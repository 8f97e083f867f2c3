package template

import (
	"errors"
	"testing"

	kerrors "github.com/conneroisu/kiln/internal/errors"
	"github.com/conneroisu/kiln/internal/sanitize"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type profile struct {
	Name   string
	Hidden bool
	OnSave func()
}

type counterScope struct{ Step int }

func (c counterScope) Label() string { return "step" }

func TestCompileRejectsNonStringSource(t *testing.T) {
	c := NewCompiler()

	for _, source := range []any{nil, 42, []byte("<p></p>"), func() string { return "" }} {
		_, err := c.Compile(source)
		require.Error(t, err)
		assert.True(t, errors.Is(err, kerrors.ErrInvalidTemplate), "source %T", source)
	}
	assert.Equal(t, 0, c.Len())
}

func TestCompileIsMemoized(t *testing.T) {
	c := NewCompiler()

	first, err := c.Compile("<p>{{name}}</p>")
	require.NoError(t, err)
	second, err := c.Compile("<p>{{name}}</p>")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, c.Len())

	type named string
	third, err := c.Compile(named("<p>{{name}}</p>"))
	require.NoError(t, err)
	assert.Same(t, first, third)

	c.Clear()
	assert.Equal(t, 0, c.Len())
	fourth, err := c.Compile("<p>{{name}}</p>")
	require.NoError(t, err)
	assert.NotSame(t, first, fourth)
}

func TestRender(t *testing.T) {
	testCases := []struct {
		name     string
		source   string
		model    any
		expected string
	}{
		{
			name:     "interpolation",
			source:   "<p>Hello {{ name }}!</p>",
			model:    map[string]any{"name": "Ada"},
			expected: "<p>Hello Ada!</p>",
		},
		{
			name:     "interpolation is escaped",
			source:   "<p>{{name}}</p>",
			model:    map[string]any{"name": "<b>&"},
			expected: "<p>&lt;b&gt;&amp;</p>",
		},
		{
			name:     "dotted access",
			source:   "<span>{{user.Name}} {{user.Name.length}}</span>",
			model:    map[string]any{"user": profile{Name: "Grace"}},
			expected: "<span>Grace 5</span>",
		},
		{
			name:     "lowercase access on sanitized struct",
			source:   "<span>{{ user.name }}</span>",
			model:    sanitize.MakeSafeObject(map[string]any{"user": profile{Name: "Grace"}}),
			expected: "<span>Grace</span>",
		},
		{
			name:     "attribute interpolation",
			source:   `<a href="/users/{{id}}" class='item'>x</a>`,
			model:    map[string]any{"id": 7},
			expected: `<a href="/users/7" class='item'>x</a>`,
		},
		{
			name:     "conditional true",
			source:   `<div><span *if="show">yes</span></div>`,
			model:    map[string]any{"show": true},
			expected: "<div><span>yes</span></div>",
		},
		{
			name:     "conditional false",
			source:   `<div><span *if="show">yes</span></div>`,
			model:    map[string]any{"show": false},
			expected: "<div></div>",
		},
		{
			name:     "conditional expression",
			source:   `<b *if="count > 1 && !done">many</b>`,
			model:    map[string]any{"count": 2, "done": false},
			expected: "<b>many</b>",
		},
		{
			name:     "loop",
			source:   `<ul><li *for="item of items">{{item}}</li></ul>`,
			model:    map[string]any{"items": []string{"a", "b", "c"}},
			expected: "<ul><li>a</li><li>b</li><li>c</li></ul>",
		},
		{
			name:     "loop with let and index",
			source:   `<ol><li *for="let row of rows" data-i="{{$index}}">{{row.name}}</li></ol>`,
			model:    map[string]any{"rows": []map[string]any{{"name": "x"}, {"name": "y"}}},
			expected: `<ol><li data-i="0">x</li><li data-i="1">y</li></ol>`,
		},
		{
			name:     "loop over non-iterable renders empty",
			source:   `<ul><li *for="item of items">{{item}}</li></ul>`,
			model:    map[string]any{"items": 5},
			expected: "<ul></ul>",
		},
		{
			name:     "nested loop sees outer item",
			source:   `<div *for="g of groups"><i *for="m of g.members">{{g.name}}:{{m}}</i></div>`,
			model:    map[string]any{"groups": []any{map[string]any{"name": "a", "members": []any{1, 2}}}},
			expected: "<div><i>a:1</i><i>a:2</i></div>",
		},
		{
			name:     "void and self-closing elements",
			source:   `<input value="{{v}}"><br/><x-item />`,
			model:    map[string]any{"v": "q"},
			expected: `<input value="q"><br><x-item></x-item>`,
		},
		{
			name:     "event bindings are stripped",
			source:   `<button (click)="increment" type="button">+</button>`,
			model:    nil,
			expected: `<button type="button">+</button>`,
		},
		{
			name:     "struct model",
			source:   `<p *if="!Hidden">{{Name}}</p>`,
			model:    profile{Name: "Linus", OnSave: func() {}},
			expected: "<p>Linus</p>",
		},
		{
			name:     "comments pass through",
			source:   "<!-- {{name}} --><p></p>",
			model:    map[string]any{"name": "x"},
			expected: "<!-- {{name}} --><p></p>",
		},
		{
			name:     "script content is not escaped",
			source:   "<script>var a = '{{v}}';</script>",
			model:    map[string]any{"v": "<x>"},
			expected: "<script>var a = '<x>';</script>",
		},
		{
			name:     "stray end tag is dropped",
			source:   "<p>a</span>b</p>",
			model:    nil,
			expected: "<p>ab</p>",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tmpl, err := NewCompiler().Compile(tc.source)
			require.NoError(t, err)

			markup, _ := tmpl.Render(tc.model, nil)
			assert.Equal(t, tc.expected, markup)
		})
	}
}

func TestRenderIsIdempotent(t *testing.T) {
	tmpl, err := NewCompiler().Compile(`<ul><li *for="i of items" (click)="pick">{{i}}</li></ul>`)
	require.NoError(t, err)

	var render RenderFunc = tmpl.Func()
	model := map[string]any{"items": []int{1, 2, 3}}
	first, firstBindings := tmpl.Render(model, nil)
	second, secondBindings := render(model, nil)

	assert.Equal(t, first, second)
	assert.Empty(t, cmp.Diff(firstBindings, secondBindings))
}

func TestBindings(t *testing.T) {
	source := `<div (click)="select">
		<button (click)="increment">+</button>
		<button (click)="increment">again</button>
		<p *if="false" (mouseover)="hover($event)">hidden</p>
	</div>`

	tmpl, err := NewCompiler().Compile(source)
	require.NoError(t, err)

	markup, bindings := tmpl.Render(nil, nil)
	assert.NotContains(t, markup, "(click)")
	assert.NotContains(t, markup, "hidden")

	expected := []Binding{
		{EventName: "click", HandlerName: "select"},
		{EventName: "click", HandlerName: "increment"},
		{EventName: "mouseover", HandlerName: "hover"},
	}
	if diff := cmp.Diff(expected, bindings); diff != "" {
		t.Errorf("bindings mismatch (-want +got):\n%s", diff)
	}

	bindings[0].HandlerName = "mutated"
	assert.Equal(t, "select", tmpl.Bindings()[0].HandlerName)
}

func TestMalformedExpressionsFailClosed(t *testing.T) {
	tmpl, err := NewCompiler().Compile(`<p>a{{ x && }}b{{missing.value}}c</p><i *if="(">no</i><s *for="nonsense">z</s>`)
	require.NoError(t, err)
	assert.NotEmpty(t, tmpl.Problems())

	var reported []error
	markup, _ := tmpl.RenderReport(map[string]any{}, nil, func(err error) {
		reported = append(reported, err)
	})

	assert.Equal(t, "<p>abc</p>", markup)
	require.Len(t, reported, 4)
	for _, err := range reported {
		assert.True(t, errors.Is(err, kerrors.ErrExpressionResolution), err.Error())
	}
}

func TestUnterminatedMarkupIsKept(t *testing.T) {
	tmpl, err := NewCompiler().Compile("<p>{{ open <b")
	require.NoError(t, err)

	markup, _ := tmpl.Render(nil, nil)
	assert.Equal(t, "<p>{{ open <b</p>", markup)
}

func TestScopeFallback(t *testing.T) {
	tmpl, err := NewCompiler().Compile("<p>{{Label}} {{Step}} {{name}}</p>")
	require.NoError(t, err)

	markup, _ := tmpl.Render(map[string]any{"name": "model"}, counterScope{Step: 3})
	assert.Equal(t, "<p>step 3 model</p>", markup)

	markup, _ = tmpl.Render(map[string]any{"Step": 9}, counterScope{Step: 3})
	assert.Equal(t, "<p>step 9 </p>", markup)
}

func TestProperties(t *testing.T) {
	c := NewCompiler()
	source := `<section *if="visible">
		<h1 title="{{title}}">{{ user.name }}</h1>
		<li *for="entry of entries">{{entry.label}} {{suffix}} {{$index}}</li>
		<button (click)="save">{{ broken && }}</button>
	</section>`

	expected := []string{"visible", "title", "user", "entries", "suffix", "broken"}
	if diff := cmp.Diff(expected, c.Properties(source)); diff != "" {
		t.Errorf("properties mismatch (-want +got):\n%s", diff)
	}

	assert.Nil(t, c.Properties(12))
}

func TestDefaultCompiler(t *testing.T) {
	Default().Clear()
	t.Cleanup(Default().Clear)

	a, err := Compile("<p></p>")
	require.NoError(t, err)
	b, err := Default().Compile("<p></p>")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, 1, Default().Len())
}
