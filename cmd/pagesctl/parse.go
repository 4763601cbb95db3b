package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/bizmatters/agent-builder/pages-builder/internal/fileset"
	"github.com/bizmatters/agent-builder/pages-builder/internal/parser"
)

func newParseCmd() *cobra.Command {
	var (
		contract string
		outDir   string
		data     parser.ReadmeData
	)

	cmd := &cobra.Command{
		Use:   "parse [response-file]",
		Short: "Parse a saved backend response into site files",
		Long: "Parse runs the output-contract parser over a raw backend response " +
			"(read from the file argument or stdin) and lists the resulting files. " +
			"With --out the files are written to that directory.",
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

			result := parser.Parse(c, string(raw), data)

			out := cmd.OutOrStdout()
			for _, p := range result.Files.Paths() {
				fmt.Fprintf(out, "%s\t%d bytes\n", p, len(result.Files[p]))
			}
			if result.Fallback {
				fmt.Fprintln(out, "fallback: response did not follow the contract")
			}
			for _, p := range result.Flagged {
				fmt.Fprintf(out, "flagged: %s contains a nested fence\n", p)
			}
			for _, p := range result.Duplicates {
				fmt.Fprintf(out, "duplicate: %s appeared in more than one block, kept the last\n", p)
			}

			if outDir != "" {
				if err := fileset.WriteDir(outDir, result.Files); err != nil {
					return fmt.Errorf("failed to write files: %w", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&contract, "contract", string(parser.ContractBlocks), "Output contract: blocks or two-part")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Directory to write the parsed files to")
	cmd.Flags().StringVar(&data.Task, "task", "", "Task name for a synthesized README (two-part)")
	cmd.Flags().StringVar(&data.Brief, "brief", "", "Brief for a synthesized README (two-part)")
	cmd.Flags().IntVar(&data.Round, "round", 1, "Round for a synthesized README (two-part)")
	cmd.Flags().StringArrayVar(&data.Checks, "check", nil, "Evaluation check listed in a synthesized README (two-part, repeatable)")
	return cmd
}

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return raw, nil
	}
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	return raw, nil
}
