package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/conneroisu/kiln/internal/version"
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display version information for kiln including:

- Semantic version number
- Git commit hash
- Build timestamp
- Go version used for compilation
- Target platform (OS/architecture)

Examples:
  kiln version              # Show version and commit
  kiln version --short      # Show the version number only
  kiln version --detailed   # Show detailed version info
  kiln version -o json      # Output as JSON`,
	Args: cobra.NoArgs,
	RunE: runVersionCommand,
}

var (
	versionFlags    *StandardFlags
	versionShort    bool
	versionDetailed bool
)

func init() {
	rootCmd.AddCommand(versionCmd)

	versionFlags = AddStandardFlags(versionCmd, "output")
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show short version only")
	versionCmd.Flags().BoolVar(&versionDetailed, "detailed", false, "Show detailed version information")
	versionCmd.MarkFlagsMutuallyExclusive("short", "detailed")
}

func runVersionCommand(cmd *cobra.Command, args []string) error {
	info := version.Get()

	return versionFlags.Write(cmd.OutOrStdout(), info, func(w io.Writer) error {
		switch {
		case versionShort:
			fmt.Fprintln(w, info.Version)
		case versionDetailed:
			fmt.Fprintln(w, info.Detailed())
		default:
			fmt.Fprintln(w, info.Short())
		}
		return nil
	})
}
