package main

import (
	"encoding/json"
	"fmt"
	"os"

	"venture-plan-server/pkg/plandoc"

	"github.com/spf13/cobra"
)

var compareJSON bool

var compareCmd = &cobra.Command{
	Use:   "compare <before.json> <after.json>",
	Short: "Show the structural diff between two plan documents",
	Long: `Compare two plan documents and print one line per changed field.

Example:
  plandiff compare plan-v1.json plan-v2.json
  plandiff compare plan-v1.json plan-v2.json --json`,
	Args: cobra.ExactArgs(2),
	RunE: runCompare,
}

func init() {
	rootCmd.AddCommand(compareCmd)

	compareCmd.Flags().BoolVar(&compareJSON, "json", false, "Output diffs as JSON")
}

func runCompare(cmd *cobra.Command, args []string) error {
	before, err := readDocument(args[0])
	if err != nil {
		return err
	}
	after, err := readDocument(args[1])
	if err != nil {
		return err
	}

	diffs := plandoc.Compare(before, after)
	out := cmd.OutOrStdout()

	if compareJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if diffs == nil {
			diffs = []plandoc.Diff{}
		}
		return enc.Encode(diffs)
	}

	if len(diffs) == 0 {
		fmt.Fprintln(out, "No differences")
		return nil
	}

	for _, d := range diffs {
		line := plandoc.FormatDiff(d)
		if d.Path != "" {
			line += " (" + d.Path + ")"
		}
		switch {
		case d.IsAddition():
			line += ": " + string(plandoc.Encode(d.NewValue))
		case d.IsRemoval():
			line += ": " + string(plandoc.Encode(d.OldValue))
		default:
			line += ": " + string(plandoc.Encode(d.OldValue)) + " -> " + string(plandoc.Encode(d.NewValue))
		}
		fmt.Fprintln(out, line)
	}

	return nil
}

func readDocument(path string) (plandoc.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	doc, err := plandoc.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}
