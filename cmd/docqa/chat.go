package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"docqa/internal/chatlog"
	"docqa/internal/domain"
	"docqa/internal/extract"
	"docqa/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat [file or document-id]",
	Short: "Chat with a document in the terminal",
	Long: `Opens an interactive chat. Given a file, it is indexed first; given a
document id, the existing index is loaded. Every answered question is
appended to the chat log.`,
	Args: cobra.ExactArgs(1),
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg, log, true)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	target := args[0]
	var (
		idx     *domain.Index
		summary string
	)
	if _, statErr := os.Stat(target); statErr == nil {
		doc, err := a.pipeline.IndexDocument(ctx, target)
		if errors.Is(err, domain.ErrEmptyInput) {
			cmd.PrintErrf("Warning: no text could be extracted from %s.\n", target)
			return nil
		}
		if err != nil {
			return err
		}
		idx, summary = doc.Index, doc.Summary
		cmd.Printf("Indexed %s: %d chunks.\n", doc.Document.ID, idx.Len())
	} else {
		idx, err = a.pipeline.Open(ctx, extract.DocumentID(target))
		if err != nil {
			return err
		}
		summary = fmt.Sprintf("Index built %s.", idx.BuiltAt.Local().Format(time.DateTime))
	}

	session := chatlog.NewSession(idx.DocumentID, time.Now())
	log.Info("chat started", "document", idx.DocumentID, "session", session.ID)
	m := tui.New(ctx, a.pipeline, idx, session, summary)
	final, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil {
		return err
	}
	if fm, ok := final.(tui.Model); ok {
		log.Info("chat ended", "document", idx.DocumentID, "turns", fm.Session().Len())
	}
	return nil
}
