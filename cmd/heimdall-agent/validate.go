package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "validate FILE...",
		Short: "Check flag documents against the schema",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			failed := 0

			for _, path := range args {
				doc, err := loadDocument(path, format)
				if err != nil {
					failed++
					fmt.Fprintf(out, "FAIL %v\n", err)
					continue
				}
				fmt.Fprintf(out, "ok   %s (%d features)\n", path, doc.FlagSet.Len())
			}

			if failed > 0 {
				return errors.New(pluralize(failed, "document", "documents") + " failed validation")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "document format (json|yaml); inferred from the extension when empty")
	return cmd
}

func pluralize(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}
