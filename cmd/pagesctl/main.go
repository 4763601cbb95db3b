// Command pagesctl is the operator tool for pages-builder: it seeds operator
// accounts and replays the prompt and parser stages offline.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pagesctl",
		Short:         "Operator tool for pages-builder",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newSeedUserCmd())
	root.AddCommand(newParseCmd())
	root.AddCommand(newPromptCmd())
	root.AddCommand(newMigrateCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
