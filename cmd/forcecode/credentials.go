package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"forcecode/internal/config"
	"forcecode/internal/credentials"
)

func newCredentialsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "credentials",
		Short: "Enter org credentials and write force.json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			current, err := config.LoadProject(cmd.Context(), opts.projectFile)
			if err != nil {
				return err
			}

			project, err := credentials.New(cmd.InOrStdin(), cmd.OutOrStdout()).Run(current)
			if err != nil {
				return err
			}
			if err := config.SaveProject(opts.projectFile, project); err != nil {
				return fmt.Errorf("write %s: %w", opts.projectFile, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", opts.projectFile)
			return nil
		},
	}
}
