package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"docqa/internal/domain"
	"docqa/internal/extract"
	"docqa/internal/watcher"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Index documents as they are added to a directory",
	Long: `Watches a directory (default: the configured upload directory) and
rebuilds the index of any PDF, text or Markdown file that is created or
changed. Removing a file deletes its index.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 500*time.Millisecond, "quiet period before a changed file is indexed")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	dir := cfg.UploadDir
	if len(args) == 1 {
		dir = args[0]
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	a, err := newApp(cfg, log, false)
	if err != nil {
		return err
	}
	defer a.close()
	// files already live in the watched directory
	a.pipeline.Stage = nil

	w, err := watcher.New(extract.SupportedExtensions(), watchDebounce, log)
	if err != nil {
		return err
	}
	defer w.Stop()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	events, err := w.Watch(ctx, dir)
	if err != nil {
		return err
	}
	cmd.Printf("Watching %s (Ctrl+C to stop)\n", dir)
	for ev := range events {
		handleWatchEvent(ctx, cmd, a, ev)
	}
	return nil
}

func handleWatchEvent(ctx context.Context, cmd *cobra.Command, a *app, ev watcher.Event) {
	docID := extract.DocumentID(ev.Path)
	switch ev.Operation {
	case watcher.Removed:
		if err := a.store.Delete(ctx, docID); err != nil {
			log.Warn("delete index failed", "document", docID, "error", err)
			return
		}
		cmd.Printf("Removed index %s.\n", docID)
	default:
		doc, err := a.pipeline.IndexDocument(ctx, ev.Path)
		switch {
		case errors.Is(err, domain.ErrEmptyInput):
			cmd.PrintErrf("Warning: no text could be extracted from %s, skipped.\n", ev.Path)
		case err != nil:
			cmd.PrintErrf("Error: indexing %s: %v\n", ev.Path, err)
		default:
			cmd.Printf("Indexed %s: %d chunks.\n", doc.Document.ID, doc.Index.Len())
		}
	}
}
