package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/kiln/internal/markup"
	"github.com/conneroisu/kiln/internal/template"
	"github.com/conneroisu/kiln/internal/version"
)

// execute runs the root command with args after restoring every flag to
// its default.
func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), errOut.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func writeManifest(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "item.html", `<li>{{label}}</li>`)
	return writeFile(t, dir, "kiln.yml", `
components:
  - selector: x-greet
    template: "<p>hi {{name}}</p>"
    inputs: [name]
  - selector: x-list
    template: '<ul><x-item *for="n of items" label="{{n}}"></x-item></ul>'
    state:
      items: [a, b]
  - selector: x-item
    templateFile: item.html
    inputs: [label]
`)
}

func TestCompileCommand(t *testing.T) {
	path := writeFile(t, t.TempDir(), "counter.html",
		`<button (click)="inc">{{count}} {{label}}</button>`)

	out, _, err := execute(t, "", "compile", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Bindings (1):")
	assert.Contains(t, out, "(click) -> inc")
	assert.Contains(t, out, "  count\n")
	assert.Contains(t, out, "  label\n")

	out, _, err = execute(t, "", "compile", path, "-o", "json")
	require.NoError(t, err)
	var report compileReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, []template.Binding{{EventName: "click", HandlerName: "inc"}}, report.Bindings)
	assert.ElementsMatch(t, []string{"count", "label"}, report.Properties)
}

func TestCompileCommandReadsStdin(t *testing.T) {
	out, _, err := execute(t, `<p>{{title}}</p>`, "compile", "-", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "properties:")
	assert.Contains(t, out, "- title")
}

func TestCompileCommandRejectsOutputFormat(t *testing.T) {
	_, _, err := execute(t, "<p></p>", "compile", "-", "-o", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid output format")
}

func TestInstructionsCommand(t *testing.T) {
	out, _, err := execute(t, `<ul><li>a</li></ul>`, "instructions", "-")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "open ul key="))
	assert.True(t, strings.HasPrefix(lines[1], "  open li key="))
	assert.Equal(t, `    text "a"`, lines[2])
	assert.Equal(t, "  close li", lines[3])
	assert.Equal(t, "close ul", lines[4])

	out, _, err = execute(t, `<p>x</p>`, "instructions", "-", "-o", "json")
	require.NoError(t, err)
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Len(t, decoded, 3)
	assert.Equal(t, markup.OpOpen.String(), decoded[0]["op"])
	assert.Equal(t, "x", decoded[1]["text"])
}

func TestRenderCommand(t *testing.T) {
	manifest := writeManifest(t)

	out, _, err := execute(t, "", "render", manifest, "x-greet", "--attr", "name=ada")
	require.NoError(t, err)
	assert.Equal(t, "<p>hi ada</p>\n", out)

	out, _, err = execute(t, "", "render", manifest, "x-greet", "--props", `{"name": "bob"}`)
	require.NoError(t, err)
	assert.Equal(t, "<p>hi bob</p>\n", out)
}

func TestRenderCommandComposesNestedComponents(t *testing.T) {
	manifest := writeManifest(t)

	out, _, err := execute(t, "", "render", manifest, "x-list")
	require.NoError(t, err)
	assert.Contains(t, out, `<template shadowrootmode="open">`)
	assert.Contains(t, out, "<li>a</li>")
	assert.Contains(t, out, "<li>b</li>")

	out, _, err = execute(t, "", "render", manifest, "x-list", "--composed=false", "-o", "json")
	require.NoError(t, err)
	var report renderReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "x-list", report.Selector)
	assert.NotContains(t, report.HTML, "shadowrootmode")
	assert.Equal(t, 2, strings.Count(report.HTML, "<x-item"))
}

func TestRenderCommandErrors(t *testing.T) {
	manifest := writeManifest(t)

	_, _, err := execute(t, "", "render", manifest, "x-missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "x-missing")

	_, _, err = execute(t, "", "render", manifest, "x-greet", "--attr", "novalue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected name=value")

	_, _, err = execute(t, "", "render", manifest, "x-greet", "--props", "{")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSON")

	_, _, err = execute(t, "", "render", filepath.Join(t.TempDir(), "none.yml"), "x-greet")
	require.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "kiln "))

	out, _, err = execute(t, "", "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, version.Get().Version+"\n", out)

	out, _, err = execute(t, "", "version", "-o", "json")
	require.NoError(t, err)
	var info version.Info
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.NotEmpty(t, info.GoVersion)

	_, _, err = execute(t, "", "version", "--short", "--detailed")
	require.Error(t, err)
}

func TestParseProps(t *testing.T) {
	dir := t.TempDir()
	yamlFile := writeFile(t, dir, "props.yml", "items: [a, b]\ntitle: hi\n")
	jsonFile := writeFile(t, dir, "props.json", `{"count": 3}`)

	tests := []struct {
		name    string
		props   string
		want    map[string]interface{}
		wantErr bool
	}{
		{name: "empty", props: "", want: map[string]interface{}{}},
		{name: "inline", props: `{"title": "x"}`, want: map[string]interface{}{"title": "x"}},
		{name: "yaml file", props: "@" + yamlFile, want: map[string]interface{}{
			"items": []interface{}{"a", "b"}, "title": "hi"}},
		{name: "json file", props: "@" + jsonFile, want: map[string]interface{}{"count": float64(3)}},
		{name: "missing file", props: "@" + filepath.Join(dir, "none.json"), wantErr: true},
		{name: "invalid", props: "[1]", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := &StandardFlags{Props: tt.props}
			got, err := flags.ParseProps()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAttrs(t *testing.T) {
	flags := &StandardFlags{Attrs: []string{"Label=a=b", "empty="}}
	attrs, err := flags.ParseAttrs()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"label": "a=b", "empty": ""}, attrs)

	flags.Attrs = []string{"=x"}
	_, err = flags.ParseAttrs()
	assert.Error(t, err)
}

func TestValidatePort(t *testing.T) {
	assert.NoError(t, ValidatePort("0"))
	assert.NoError(t, ValidatePort("8080"))
	assert.Error(t, ValidatePort("65536"))
	assert.Error(t, ValidatePort("-1"))
	assert.Error(t, ValidatePort("http"))
}

func TestGraphCommand(t *testing.T) {
	manifest := writeManifest(t)

	out, _, err := execute(t, "", "graph", manifest)
	require.NoError(t, err)
	assert.Contains(t, out, "x-list -> x-item\n")
	assert.Contains(t, out, "x-item -> (none)\n")
	assert.NotContains(t, out, "cycle:")

	out, _, err = execute(t, "", "graph", manifest, "x-item", "-o", "json")
	require.NoError(t, err)
	var report graphReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, []string{"x-list"}, report.UsedBy)
	assert.Empty(t, report.Uses)

	_, _, err = execute(t, "", "graph", manifest, "x-nope")
	require.Error(t, err)
}

func TestGraphCommandReportsCycles(t *testing.T) {
	manifest := writeFile(t, t.TempDir(), "kiln.yml", `
- {selector: x-a, template: "<x-b></x-b>"}
- {selector: x-b, template: "<x-a></x-a>"}
`)

	out, _, err := execute(t, "", "graph", manifest)
	require.NoError(t, err)
	assert.Contains(t, out, "cycle: x-a -> x-b -> x-a\n")
}
