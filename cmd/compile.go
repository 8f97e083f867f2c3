package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/conneroisu/kiln/internal/template"
)

var compileCmd = &cobra.Command{
	Use:   "compile <file|->",
	Short: "Compile a template and report its bindings and properties",
	Long: `Compile a component template and print the event bindings it declares
and the properties its expressions read. Problems found while parsing,
such as malformed *for expressions, are listed too.

Examples:
  kiln compile counter.html
  kiln compile counter.html -o json
  cat counter.html | kiln compile -`,
	Args: cobra.ExactArgs(1),
	RunE: runCompile,
}

var compileFlags *StandardFlags

func init() {
	rootCmd.AddCommand(compileCmd)
	compileFlags = AddStandardFlags(compileCmd, "output")
}

type compileReport struct {
	Bindings   []template.Binding `json:"bindings" yaml:"bindings"`
	Properties []string           `json:"properties" yaml:"properties"`
	Problems   []string           `json:"problems,omitempty" yaml:"problems,omitempty"`
}

func runCompile(cmd *cobra.Command, args []string) error {
	source, err := readSource(cmd, args[0])
	if err != nil {
		return err
	}

	tmpl, err := template.Compile(source)
	if err != nil {
		return err
	}

	report := compileReport{
		Bindings:   tmpl.Bindings(),
		Properties: tmpl.Properties(),
	}
	for _, p := range tmpl.Problems() {
		report.Problems = append(report.Problems, p.Error())
	}

	return compileFlags.Write(cmd.OutOrStdout(), report, func(w io.Writer) error {
		fmt.Fprintf(w, "Bindings (%d):\n", len(report.Bindings))
		for _, b := range report.Bindings {
			fmt.Fprintf(w, "  (%s) -> %s\n", b.EventName, b.HandlerName)
		}
		fmt.Fprintf(w, "Properties (%d):\n", len(report.Properties))
		for _, p := range report.Properties {
			fmt.Fprintf(w, "  %s\n", p)
		}
		if len(report.Problems) > 0 {
			fmt.Fprintf(w, "Problems (%d):\n", len(report.Problems))
			for _, p := range report.Problems {
				fmt.Fprintf(w, "  %s\n", p)
			}
		}
		return nil
	})
}
