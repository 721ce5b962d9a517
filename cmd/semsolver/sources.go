package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/c360studio/semsolver/source"
)

func sourcesCmd(a *app) *cobra.Command {
	var pattern string
	cmd := &cobra.Command{
		Use:   "sources [dir]",
		Short: "List candidate solver sources",
		Long: `List files matching the source pattern (default **/*.py), skipping
version-control, virtualenv and cache directories.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := a.cfg.Source.Root
			if len(args) == 1 {
				dir = args[0]
			}
			if dir == "" {
				dir = "."
			}
			if pattern == "" {
				pattern = a.cfg.Source.Pattern
			}

			files, err := source.Glob(dir, pattern)
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Fprintln(cmd.OutOrStdout(), f)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&pattern, "pattern", "", "Glob pattern (default from config)")
	return cmd
}
