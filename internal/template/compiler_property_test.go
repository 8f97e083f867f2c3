package template

import (
	"html"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestTemplateProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(4321)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("plain markup renders unchanged", prop.ForAll(
		func(text string) bool {
			source := "<div class=\"x\"><p>" + text + "</p></div>"
			tmpl, err := NewCompiler().Compile(source)
			if err != nil {
				return false
			}
			markup, bindings := tmpl.Render(nil, nil)
			return markup == source && len(bindings) == 0
		},
		gen.AlphaString(),
	))

	properties.Property("interpolated values are escaped", prop.ForAll(
		func(value string) bool {
			tmpl, err := NewCompiler().Compile("<p>{{v}}</p>")
			if err != nil {
				return false
			}
			markup, _ := tmpl.Render(map[string]any{"v": value}, nil)
			return markup == "<p>"+html.EscapeString(value)+"</p>"
		},
		gen.AnyString(),
	))

	properties.Property("loops render one element per item", prop.ForAll(
		func(items []string) bool {
			tmpl, err := NewCompiler().Compile(`<i *for="s of items">.</i>`)
			if err != nil {
				return false
			}
			markup, _ := tmpl.Render(map[string]any{"items": items}, nil)
			return strings.Count(markup, "<i>") == len(items)
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
