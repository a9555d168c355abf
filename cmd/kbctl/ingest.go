package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ebookgov/property-voice-agent/internal/bootstrap"
	"github.com/ebookgov/property-voice-agent/internal/core/domain"
)

func newIngestCmd() *cobra.Command {
	var files []string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Chunk, embed and index knowledge documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(files) == 0 {
				return fmt.Errorf("at least one --file is required")
			}
			var docs []domain.KnowledgeDocument
			for _, path := range files {
				loaded, err := loadKnowledgeFile(path)
				if err != nil {
					return err
				}
				docs = append(docs, loaded...)
			}

			cfg, logger := loadRuntime()
			ingestor, err := bootstrap.NewIngestor(cfg, logger)
			if err != nil {
				return err
			}
			indexed, err := ingestor.Ingest(cmd.Context(), docs)
			if err != nil {
				return fmt.Errorf("ingest after %d chunks: %w", indexed, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d chunks from %d documents into %s.\n", indexed, len(docs), cfg.QdrantCollection)
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&files, "file", "f", nil, "knowledge file (.yaml, .yml or .md), repeatable")
	return cmd
}
