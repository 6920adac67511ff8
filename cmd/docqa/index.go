package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"docqa/internal/domain"
)

var indexCmd = &cobra.Command{
	Use:   "index [file...]",
	Short: "Build the index for one or more documents",
	Long: `Extracts text from each file (PDF, plain text or Markdown), splits it into
overlapping chunks, embeds every chunk and persists the index under the file's
base name. Indexing a file again replaces its previous index.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg, log, false)
	if err != nil {
		return err
	}
	defer a.close()

	var failed int
	for _, path := range args {
		doc, err := a.pipeline.IndexDocument(cmd.Context(), path)
		switch {
		case errors.Is(err, domain.ErrEmptyInput):
			cmd.PrintErrf("Warning: no text could be extracted from %s, skipped.\n", path)
			continue
		case err != nil:
			cmd.PrintErrf("Error: indexing %s: %v\n", path, err)
			failed++
			continue
		}
		cmd.Printf("Indexed %s: %d chunks.\n", doc.Document.ID, doc.Index.Len())
		if doc.Summary != "" {
			cmd.Printf("Summary: %s\n", doc.Summary)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed to index", failed, len(args))
	}
	return nil
}
