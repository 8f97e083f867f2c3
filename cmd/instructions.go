package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conneroisu/kiln/internal/markup"
)

var instructionsCmd = &cobra.Command{
	Use:   "instructions <file|->",
	Short: "Dump the patch instruction stream for rendered markup",
	Long: `Parse rendered markup and print the open/close/text instruction stream
the patch replayer applies, with the reconciliation key of every element.

Examples:
  kiln instructions rendered.html
  echo '<ul><li>a</li></ul>' | kiln instructions - -o yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runInstructions,
}

var instructionsFlags *StandardFlags

func init() {
	rootCmd.AddCommand(instructionsCmd)
	instructionsFlags = AddStandardFlags(instructionsCmd, "output")
}

func runInstructions(cmd *cobra.Command, args []string) error {
	source, err := readSource(cmd, args[0])
	if err != nil {
		return err
	}

	instructions, err := markup.BuildInstructions(source)
	if err != nil {
		return err
	}

	return instructionsFlags.Write(cmd.OutOrStdout(), instructions, func(w io.Writer) error {
		depth := 0
		for _, in := range instructions {
			if in.Op == markup.OpClose {
				depth--
			}
			indent := strings.Repeat("  ", depth)
			switch in.Op {
			case markup.OpOpen:
				fmt.Fprintf(w, "%sopen %s key=%s", indent, in.Tag, in.Key)
				for _, a := range in.Attrs {
					fmt.Fprintf(w, " %s=%q", a.Key, a.Value)
				}
				fmt.Fprintln(w)
				depth++
			case markup.OpClose:
				fmt.Fprintf(w, "%sclose %s\n", indent, in.Tag)
			case markup.OpText:
				fmt.Fprintf(w, "%stext %q\n", indent, in.Text)
			}
		}
		return nil
	})
}
