package main

import (
	"encoding/json"
	"fmt"
	"path"

	"github.com/spf13/cobra"

	"github.com/bizmatters/agent-builder/pages-builder/internal/fileset"
	"github.com/bizmatters/agent-builder/pages-builder/internal/models"
	"github.com/bizmatters/agent-builder/pages-builder/internal/parser"
	"github.com/bizmatters/agent-builder/pages-builder/internal/prompt"
)

func newPromptCmd() *cobra.Command {
	var (
		contract    string
		previousDir string
	)

	cmd := &cobra.Command{
		Use:   "prompt [request-file]",
		Short: "Print the prompt a task request would produce",
		Long: "Prompt reads a /task request body (from the file argument or stdin) " +
			"and prints the system and user messages sent to the generation backend. " +
			"For round 2, --previous points at the prior version of the site.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := parser.ParseContract(contract)
			if err != nil {
				return err
			}

			raw, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			var req models.TaskRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				return fmt.Errorf("failed to decode request: %w", err)
			}

			previous := fileset.FileSet{}
			if previousDir != "" {
				previous, err = fileset.ReadDir(previousDir)
				if err != nil {
					return fmt.Errorf("failed to read previous site: %w", err)
				}
			}

			names := make([]string, 0, len(req.Attachments))
			for _, a := range req.Attachments {
				names = append(names, path.Base(a.Name))
			}

			p := prompt.Build(c, prompt.Request{
				Task:          req.Task,
				Brief:         req.Brief,
				Checks:        req.Checks,
				Round:         req.Round,
				PreviousFiles: previous,
				Attachments:   names,
			})

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "=== SYSTEM ===\n%s\n\n=== USER ===\n%s", p.System, p.User)
			return nil
		},
	}

	cmd.Flags().StringVar(&contract, "contract", string(parser.ContractBlocks), "Output contract: blocks or two-part")
	cmd.Flags().StringVar(&previousDir, "previous", "", "Directory holding the previous round's site")
	return cmd
}
