// Package fakes provides deterministic Embedder and Generator doubles for tests.
package fakes

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrFake is returned by doubles configured to fail.
var ErrFake = errors.New("fake capability failure")

// Embedder maps text to a vector of keyword counts, one dimension per keyword.
type Embedder struct {
	Keywords []string
	// FailOn makes Embed fail for any text containing this substring.
	FailOn string

	mu    sync.Mutex
	calls []string
}

func NewEmbedder(keywords ...string) *Embedder {
	return &Embedder{Keywords: keywords}
}

func (e *Embedder) Name() string { return "fake" }

func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	e.mu.Lock()
	e.calls = append(e.calls, text)
	e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.FailOn != "" && strings.Contains(text, e.FailOn) {
		return nil, ErrFake
	}
	lower := strings.ToLower(text)
	vec := make([]float64, len(e.Keywords))
	for i, kw := range e.Keywords {
		vec[i] = float64(strings.Count(lower, strings.ToLower(kw)))
	}
	return vec, nil
}

// Calls returns the texts passed to Embed, in call order.
func (e *Embedder) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

// Generator echoes a fixed answer or fails, recording every prompt.
type Generator struct {
	Answer string
	Err    error

	mu      sync.Mutex
	prompts []string
}

func (g *Generator) Name() string { return "fake" }

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	if g.Err != nil {
		return "", g.Err
	}
	return g.Answer, nil
}

// Prompts returns every prompt received, in call order.
func (g *Generator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}
