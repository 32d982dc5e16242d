package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// newRootCommand creates the exportdemo command tree.
func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "exportdemo",
		Short: "Export document fields from a workspace",
		Long: `exportdemo pages through an export run on a document platform and prints
the selected field values of every document. Long-text values that exceed the
inline limit are streamed from the server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(RunCommand())
	rootCmd.AddCommand(ProfileCommand())
	return rootCmd
}

// execute runs the CLI and returns its exit code. A failure is reported
// as a single line on stderr.
func execute(args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCommand()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}
