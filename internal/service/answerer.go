// Package service wires extraction, chunking, indexing, answering and chat
// logging into the operations the CLI and TUI call.
package service

import (
	"context"
	"fmt"
	"strings"

	"docqa/internal/domain"
	"docqa/internal/index"
	"docqa/internal/logger"
)

const promptTemplate = `Use the following pieces of context to answer the question at the end. If you don't know the answer, just say that you don't know, don't try to make up an answer.

%s

Question: %s
Helpful Answer:`

// BuildPrompt joins the chunk texts, in the order given, with blank lines and
// places them ahead of the question.
func BuildPrompt(chunks []domain.Chunk, question string) string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return fmt.Sprintf(promptTemplate, strings.Join(texts, "\n\n"), question)
}

// Answer is a generated reply together with the passages it was grounded on.
type Answer struct {
	Text    string
	Sources []domain.SearchResult
}

// Answerer retrieves the top chunks for a question and asks the generator.
type Answerer struct {
	index     *index.Service
	generator domain.Generator
	log       *logger.Logger
}

func NewAnswerer(idx *index.Service, generator domain.Generator, log *logger.Logger) *Answerer {
	if log == nil {
		log = logger.Nop()
	}
	return &Answerer{index: idx, generator: generator, log: log}
}

// Answer fails with domain.ErrGenerationService when the generator fails;
// retrieval errors keep their own kind.
func (a *Answerer) Answer(ctx context.Context, idx *domain.Index, question string, k int) (Answer, error) {
	results, err := a.index.Query(ctx, idx, question, k)
	if err != nil {
		return Answer{}, err
	}
	prompt := BuildPrompt(domain.Chunks(results), question)
	text, err := a.generator.Generate(ctx, prompt)
	if err != nil {
		a.log.Warn("generation failed", "document", idx.DocumentID, "generator", a.generator.Name(), "error", err)
		return Answer{}, fmt.Errorf("%w: %v", domain.ErrGenerationService, err)
	}
	a.log.Debug("answered", "document", idx.DocumentID, "sources", len(results))
	return Answer{Text: strings.TrimSpace(text), Sources: results}, nil
}
