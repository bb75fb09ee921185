package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nlimpid/hbrest/scanner"
)

func (a *app) filterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Work with filter trees",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate [file|-]",
		Short: "Check a filter tree and print it as sent to the gateway",
		Long: `Validate a JSON filter tree and print its encoded form, with values
base64 encoded except for RegexStringComparator and PageFilter.
Reads stdin when the file is "-" or omitted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if len(args) == 0 || args[0] == "-" {
				data, err = io.ReadAll(a.in)
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}

			f, err := scanner.ParseFilter(data)
			if err != nil {
				return err
			}
			encoded, err := scanner.EncodeFilterString(f)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, encoded)
			return nil
		},
	})
	return cmd
}
