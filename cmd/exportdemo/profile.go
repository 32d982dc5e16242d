package main

import (
	"fmt"

	"github.com/spf13/cobra"

	client "github.com/relativitydev/exportclient"
)

// ProfileCommand creates the profile command, which writes a starter export
// profile that can be passed to run --config.
func ProfileCommand() *cobra.Command {
	var fields []string
	var blockSize int

	cmd := &cobra.Command{
		Use:   "profile <file>",
		Short: "Write a starter export profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			profile := client.DefaultExportProfile()
			profile.Connection.Endpoint = "https://relativity.example.com"
			profile.Connection.WorkspaceID = 1
			profile.Processing.BlockSize = blockSize
			for _, name := range fields {
				profile.Query.Fields = append(profile.Query.Fields, client.FieldRef{Name: name})
			}

			if err := client.NewProfileLoader(nil).SaveToFile(args[0], profile); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&fields, "field", []string{"Control Number", "Extracted Text"}, "field to include")
	cmd.Flags().IntVar(&blockSize, "block-size", 10, "rows per block")
	return cmd
}
