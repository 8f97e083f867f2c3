package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/conneroisu/kiln/internal/component"
	"github.com/conneroisu/kiln/internal/document"
	"github.com/conneroisu/kiln/internal/dom"
	kerrors "github.com/conneroisu/kiln/internal/errors"
	"github.com/conneroisu/kiln/internal/template"
)

var renderCmd = &cobra.Command{
	Use:   "render <manifest> <selector>",
	Short: "Render a component from a manifest",
	Long: `Create a component declared in a manifest, apply host attributes and
properties, run the event loop until it settles and print the shadow tree.
Nested components are upgraded and rendered too.

Examples:
  kiln render kiln.yml x-counter
  kiln render kiln.yml x-greeting --attr name=ada
  kiln render kiln.yml x-list --props '{"items": ["a", "b"]}' -o json
  kiln render kiln.yml x-list --props @items.yml --composed=false`,
	Args: cobra.ExactArgs(2),
	RunE: runRender,
}

var renderFlags *StandardFlags

func init() {
	rootCmd.AddCommand(renderCmd)
	renderFlags = AddStandardFlags(renderCmd, "component", "output")
}

type renderReport struct {
	Selector    string             `json:"selector" yaml:"selector"`
	HTML        string             `json:"html" yaml:"html"`
	Bindings    []template.Binding `json:"bindings" yaml:"bindings"`
	Diagnostics []string           `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
}

func runRender(cmd *cobra.Command, args []string) error {
	props, err := renderFlags.ParseProps()
	if err != nil {
		return err
	}
	attrs, err := renderFlags.ParseAttrs()
	if err != nil {
		return err
	}

	ws, err := openWorkspace(args[0])
	if err != nil {
		return err
	}

	doc := document.New(ws.runtime, ws.registry)
	inst, err := doc.Create(args[1], attrs)
	if err != nil {
		return err
	}
	for _, name := range sortedKeys(props) {
		inst.Set(name, props[name])
	}
	ws.runtime.Flush()

	report := renderReport{
		Selector: inst.Selector(),
		HTML:     shadowHTML(doc, inst, renderFlags.Composed),
		Bindings: inst.Template().Bindings(),
	}
	for _, d := range ws.runtime.Diagnostics.Diagnostics() {
		report.Diagnostics = append(report.Diagnostics, formatDiagnostic(d))
	}

	if renderFlags.Diagnostics {
		for _, d := range report.Diagnostics {
			fmt.Fprintln(cmd.ErrOrStderr(), d)
		}
	}

	return renderFlags.Write(cmd.OutOrStdout(), report, func(w io.Writer) error {
		_, err := fmt.Fprintln(w, report.HTML)
		return err
	})
}

// shadowHTML serializes the shadow tree of inst, composing nested shadow
// trees and styles when composed is set.
func shadowHTML(doc *document.Document, inst *component.Instance, composed bool) string {
	if !composed {
		return inst.Shadow().InnerHTML()
	}
	return inst.Shadow().ComposedHTML(func(host *dom.Node) string {
		if nested, ok := doc.Lookup(host); ok {
			return nested.Style()
		}
		return ""
	})
}

func formatDiagnostic(d kerrors.Diagnostic) string {
	if d.Component != "" {
		return fmt.Sprintf("[%s] %s: %s", d.Type, d.Component, d.Message)
	}
	return fmt.Sprintf("[%s] %s", d.Type, d.Message)
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
