package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"docqa/internal/chatlog"
	"docqa/internal/domain"
	"docqa/internal/logger"
)

// Extractor turns a file on disk into a document.
type Extractor interface {
	Extract(ctx context.Context, path string) (domain.Document, error)
}

// Indexer is the part of index.Service the pipeline needs.
type Indexer interface {
	Build(ctx context.Context, docID string, chunks []domain.Chunk) (*domain.Index, error)
	Load(ctx context.Context, docID string) (*domain.Index, error)
}

// ChatLog persists whole sessions.
type ChatLog interface {
	Write(s chatlog.Session) (string, error)
}

// Stager copies an uploaded file to its working location.
type Stager func(path string) (string, error)

// IndexedDocument is the result of indexing one file.
type IndexedDocument struct {
	Document domain.Document
	Index    *domain.Index
	Summary  string
}

// Pipeline runs one user-initiated operation at a time for a document.
type Pipeline struct {
	Extractor        Extractor
	Chunker          domain.Chunker
	Indexer          Indexer
	Answerer         *Answerer
	Summarizer       domain.Summarizer
	ChatLog          ChatLog
	Stage            Stager
	K                int
	SummarySentences int
	Logger           *logger.Logger
	Now              func() time.Time
}

func (p *Pipeline) log() *logger.Logger {
	if p.Logger == nil {
		return logger.Nop()
	}
	return p.Logger
}

func (p *Pipeline) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

// IndexDocument extracts, splits and indexes the file at path, replacing any
// earlier index for the same document id. Blank extracted text aborts with
// domain.ErrEmptyInput before anything is embedded.
func (p *Pipeline) IndexDocument(ctx context.Context, path string) (IndexedDocument, error) {
	if p.Stage != nil {
		staged, err := p.Stage(path)
		if err != nil {
			return IndexedDocument{}, fmt.Errorf("staging %s: %w", path, err)
		}
		path = staged
	}
	doc, err := p.Extractor.Extract(ctx, path)
	if err != nil {
		return IndexedDocument{}, err
	}
	if strings.TrimSpace(doc.Content) == "" {
		p.log().Warn("no text extracted", "document", doc.ID, "path", path)
		return IndexedDocument{Document: doc}, fmt.Errorf("%w: %s", domain.ErrEmptyInput, path)
	}
	chunks, err := p.Chunker.Chunk(doc)
	if err != nil {
		return IndexedDocument{Document: doc}, err
	}
	idx, err := p.Indexer.Build(ctx, doc.ID, chunks)
	if err != nil {
		return IndexedDocument{Document: doc}, err
	}
	out := IndexedDocument{Document: doc, Index: idx}
	if p.Summarizer != nil {
		summary, err := p.Summarizer.Summarize(doc.Content, p.SummarySentences)
		if err != nil {
			// the index is already persisted, a missing summary is cosmetic
			p.log().Warn("summary failed", "document", doc.ID, "error", err)
		}
		out.Summary = summary
	}
	p.log().Info("document indexed", "document", doc.ID, "chunks", idx.Len())
	return out, nil
}

// Open loads the index built earlier for docID.
func (p *Pipeline) Open(ctx context.Context, docID string) (*domain.Index, error) {
	return p.Indexer.Load(ctx, docID)
}

// Ask answers question and records the turn. A failed answer leaves the
// session untouched and writes nothing. A failed log write still returns the
// extended session, together with an error wrapping domain.ErrLogPersist.
func (p *Pipeline) Ask(ctx context.Context, session chatlog.Session, idx *domain.Index, question string) (chatlog.Session, Answer, error) {
	if strings.TrimSpace(question) == "" {
		return session, Answer{}, fmt.Errorf("%w: empty question", domain.ErrEmptyInput)
	}
	if idx == nil {
		return session, Answer{}, fmt.Errorf("%w: no document loaded", domain.ErrIndexNotFound)
	}
	answer, err := p.Answerer.Answer(ctx, idx, question, p.K)
	if err != nil {
		return session, Answer{}, err
	}
	next := chatlog.Append(session, chatlog.Turn{Question: question, Answer: answer.Text, CreatedAt: p.now()})
	if p.ChatLog == nil {
		return next, answer, nil
	}
	path, err := p.ChatLog.Write(next)
	if err != nil {
		p.log().Error("chat log write failed", "document", next.DocumentID, "error", err)
		return next, answer, errors.Join(domain.ErrLogPersist, err)
	}
	p.log().Debug("chat log written", "path", path, "turns", next.Len())
	return next, answer, nil
}
