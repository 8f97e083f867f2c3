package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph <manifest> [selector]",
	Short: "Show which components nest which",
	Long: `Print the component dependency graph of a manifest: for every component,
the registered components its template uses as tags. Cycles, which would
nest forever when rendered, are listed after the graph.

With a selector, only that component's dependencies and dependents are
shown.

Examples:
  kiln graph kiln.yml
  kiln graph kiln.yml x-list -o json`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runGraph,
}

var graphFlags *StandardFlags

func init() {
	rootCmd.AddCommand(graphCmd)
	graphFlags = AddStandardFlags(graphCmd, "output")
}

type graphReport struct {
	Graph      map[string][]string `json:"graph,omitempty" yaml:"graph,omitempty"`
	Selector   string              `json:"selector,omitempty" yaml:"selector,omitempty"`
	Uses       []string            `json:"uses,omitempty" yaml:"uses,omitempty"`
	UsedBy     []string            `json:"used_by,omitempty" yaml:"used_by,omitempty"`
	Cycles     [][]string          `json:"cycles,omitempty" yaml:"cycles,omitempty"`
	Components []string            `json:"-" yaml:"-"`
}

func runGraph(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace(args[0])
	if err != nil {
		return err
	}
	reg := ws.registry

	report := graphReport{Cycles: reg.DetectCircularDependencies()}
	if len(args) == 2 {
		if _, ok := reg.Get(args[1]); !ok {
			return fmt.Errorf("component not found: %s", args[1])
		}
		report.Selector = args[1]
		report.Uses = reg.Dependencies(args[1])
		report.UsedBy = reg.GetDependents(args[1])
	} else {
		report.Graph = reg.GetDependencyGraph()
		report.Components = reg.Selectors()
	}

	return graphFlags.Write(cmd.OutOrStdout(), report, func(w io.Writer) error {
		if report.Selector != "" {
			fmt.Fprintf(w, "%s\n", report.Selector)
			fmt.Fprintf(w, "  uses: %s\n", joinOrNone(report.Uses))
			fmt.Fprintf(w, "  used by: %s\n", joinOrNone(report.UsedBy))
		} else {
			for _, s := range report.Components {
				fmt.Fprintf(w, "%s -> %s\n", s, joinOrNone(report.Graph[s]))
			}
		}
		for _, cycle := range report.Cycles {
			fmt.Fprintf(w, "cycle: %s\n", strings.Join(cycle, " -> "))
		}
		return nil
	})
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}
