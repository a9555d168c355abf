package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ebookgov/property-voice-agent/internal/bootstrap"
)

func newSeedCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert property records and invalidate their cached lookups",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file is required")
			}
			properties, err := loadPropertiesFile(file)
			if err != nil {
				return err
			}

			cfg, logger := loadRuntime()
			seeder, closeFn, err := bootstrap.NewSeeder(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := seeder.Seed(cmd.Context(), properties); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d properties.\n", len(properties))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "properties YAML file")
	return cmd
}
