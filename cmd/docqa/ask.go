package main

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"docqa/internal/chatlog"
	"docqa/internal/domain"
)

var (
	askK       int
	askSources bool
)

var askCmd = &cobra.Command{
	Use:   "ask [document-id] [question]",
	Short: "Answer one question about an indexed document",
	Long: `Retrieves the passages most similar to the question from the document's
index and asks the configured model to answer from them. The turn is appended
to the chat log.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().IntVarP(&askK, "k", "k", 0, "number of passages to retrieve (default from config)")
	askCmd.Flags().BoolVar(&askSources, "sources", false, "print the retrieved passages")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	docID := args[0]
	question := strings.Join(args[1:], " ")

	a, err := newApp(cfg, log, true)
	if err != nil {
		return err
	}
	defer a.close()
	if askK != 0 {
		a.pipeline.K = askK
	}

	idx, err := a.pipeline.Open(cmd.Context(), docID)
	if err != nil {
		if errors.Is(err, domain.ErrIndexNotFound) {
			cmd.PrintErrf("No index for %q. Run `docqa index` first.\n", docID)
		}
		return err
	}

	_, answer, err := a.pipeline.Ask(cmd.Context(), chatlog.NewSession(docID, time.Now()), idx, question)
	if err != nil && !errors.Is(err, domain.ErrLogPersist) {
		return err
	}
	cmd.Println(answer.Text)
	if askSources {
		cmd.Println()
		cmd.Println("Sources:")
		for i, r := range answer.Sources {
			cmd.Printf("  [%d] chunk %d (score %.3f): %s\n", i+1, r.Chunk.Ordinal, r.Score, snippet(r.Chunk.Text, 120))
		}
	}
	if err != nil {
		cmd.PrintErrf("Warning: %v\n", err)
	}
	return nil
}

// snippet collapses whitespace and cuts text to at most n runes.
func snippet(text string, n int) string {
	s := strings.Join(strings.Fields(text), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
