package main

import (
	"github.com/spf13/cobra"

	"octapulse/internal/config"
)

func newInitCmd() *cobra.Command {
	var (
		path  string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a sample bench.yaml",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.WriteSample(path, force); err != nil {
				return fail(ExitError, err)
			}
			statusOK(cmd.OutOrStdout(), "Wrote %s", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "bench.yaml", "where to write the config")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
