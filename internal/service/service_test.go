package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/chatlog"
	"docqa/internal/chunker"
	"docqa/internal/domain"
	"docqa/internal/extract"
	"docqa/internal/fakes"
	"docqa/internal/index"
	"docqa/internal/summarizer"
	"docqa/internal/vectorstore/memory"
)

const reportText = "Revenue rose sharply this year. Costs were flat. Product X launched in spring. " +
	"Revenue from product X doubled. Staff numbers grew. The outlook for product X is strong."

var fixedNow = time.Date(2026, 10, 17, 14, 5, 9, 0, time.UTC)

type harness struct {
	pipeline *Pipeline
	embedder *fakes.Embedder
	gen      *fakes.Generator
	store    *memory.Storage
	logDir   string
	docPath  string
}

func newHarness(t *testing.T, content string) *harness {
	t.Helper()
	dir := t.TempDir()
	docPath := filepath.Join(dir, "report.txt")
	require.NoError(t, os.WriteFile(docPath, []byte(content), 0o644))

	emb := fakes.NewEmbedder("revenue", "product", "staff")
	gen := &fakes.Generator{Answer: " Revenue doubled. \n"}
	store := memory.NewStorage()
	idxSvc := index.NewService(emb, store, index.WithClock(func() time.Time { return fixedNow }))
	ch, err := chunker.NewCharacterChunker(40, 10)
	require.NoError(t, err)
	logDir := filepath.Join(dir, "chat_logs")

	return &harness{
		pipeline: &Pipeline{
			Extractor:        extract.New(nil, ""),
			Chunker:          ch,
			Indexer:          idxSvc,
			Answerer:         NewAnswerer(idxSvc, gen, nil),
			Summarizer:       summarizer.NewFrequencySummarizer(),
			ChatLog:          chatlog.NewWriter(logDir, chatlog.PerTurn, func() time.Time { return fixedNow }),
			K:                2,
			SummarySentences: 2,
			Now:              func() time.Time { return fixedNow },
		},
		embedder: emb,
		gen:      gen,
		store:    store,
		logDir:   logDir,
		docPath:  docPath,
	}
}

func TestBuildPrompt(t *testing.T) {
	chunks := []domain.Chunk{{Text: "first passage"}, {Text: "second passage"}}
	want := "Use the following pieces of context to answer the question at the end. " +
		"If you don't know the answer, just say that you don't know, don't try to make up an answer.\n\n" +
		"first passage\n\nsecond passage\n\n" +
		"Question: What happened?\n" +
		"Helpful Answer:"
	assert.Equal(t, want, BuildPrompt(chunks, "What happened?"))
}

func TestIndexDocument(t *testing.T) {
	h := newHarness(t, reportText)

	got, err := h.pipeline.IndexDocument(context.Background(), h.docPath)
	require.NoError(t, err)

	assert.Equal(t, "report", got.Document.ID)
	require.NotNil(t, got.Index)
	assert.Greater(t, got.Index.Len(), 1)
	assert.NotEmpty(t, got.Summary)
	assert.Len(t, h.embedder.Calls(), got.Index.Len())

	opened, err := h.pipeline.Open(context.Background(), "report")
	require.NoError(t, err)
	assert.Equal(t, got.Index.Chunks, opened.Chunks)
}

func TestIndexDocument_StagesUpload(t *testing.T) {
	h := newHarness(t, reportText)
	uploads := filepath.Join(t.TempDir(), "uploaded_docs")
	h.pipeline.Stage = func(path string) (string, error) { return extract.Stage(path, uploads) }

	got, err := h.pipeline.IndexDocument(context.Background(), h.docPath)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(uploads, "report.txt"), got.Document.Path)
	assert.FileExists(t, filepath.Join(uploads, "report.txt"))
}

func TestIndexDocument_BlankTextAborts(t *testing.T) {
	h := newHarness(t, "  \n\t \n")

	_, err := h.pipeline.IndexDocument(context.Background(), h.docPath)
	require.ErrorIs(t, err, domain.ErrEmptyInput)
	assert.Empty(t, h.embedder.Calls())

	_, err = h.pipeline.Open(context.Background(), "report")
	assert.ErrorIs(t, err, domain.ErrIndexNotFound)
}

func TestIndexDocument_EmbeddingFailureLeavesNoIndex(t *testing.T) {
	h := newHarness(t, reportText)
	h.embedder.FailOn = "Staff"

	_, err := h.pipeline.IndexDocument(context.Background(), h.docPath)
	require.ErrorIs(t, err, domain.ErrEmbeddingService)

	_, err = h.pipeline.Open(context.Background(), "report")
	assert.ErrorIs(t, err, domain.ErrIndexNotFound)
}

func TestOpen_Unknown(t *testing.T) {
	h := newHarness(t, reportText)
	_, err := h.pipeline.Open(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrIndexNotFound)
}

func TestAsk_AppendsAndWritesLog(t *testing.T) {
	h := newHarness(t, reportText)
	doc, err := h.pipeline.IndexDocument(context.Background(), h.docPath)
	require.NoError(t, err)

	session := chatlog.NewSession("report", fixedNow)
	next, answer, err := h.pipeline.Ask(context.Background(), session, doc.Index, "How did revenue change?")
	require.NoError(t, err)

	assert.Equal(t, "Revenue doubled.", answer.Text)
	assert.Len(t, answer.Sources, 2)
	assert.Equal(t, 0, session.Len(), "the caller's session value stays empty")
	require.Equal(t, 1, next.Len())
	assert.Equal(t, "How did revenue change?", next.Turns()[0].Question)
	assert.Equal(t, "Revenue doubled.", next.Turns()[0].Answer)
	assert.Equal(t, fixedNow, next.Turns()[0].CreatedAt)

	prompts := h.gen.Prompts()
	require.Len(t, prompts, 1)
	assert.True(t, strings.HasSuffix(prompts[0], "Question: How did revenue change?\nHelpful Answer:"))
	for _, src := range answer.Sources {
		assert.Contains(t, prompts[0], src.Chunk.Text)
	}

	data, err := os.ReadFile(filepath.Join(h.logDir, "chat_report_20261017_140509.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"question": "How did revenue change?"`)
}

func TestAsk_GenerationFailureAppendsNothing(t *testing.T) {
	h := newHarness(t, reportText)
	doc, err := h.pipeline.IndexDocument(context.Background(), h.docPath)
	require.NoError(t, err)
	h.gen.Err = fakes.ErrFake

	session := chatlog.NewSession("report", fixedNow)
	next, answer, err := h.pipeline.Ask(context.Background(), session, doc.Index, "How did revenue change?")

	require.ErrorIs(t, err, domain.ErrGenerationService)
	assert.Empty(t, answer.Text)
	assert.Equal(t, 0, next.Len())
	assert.NoDirExists(t, h.logDir)
}

type failingLog struct{}

func (failingLog) Write(chatlog.Session) (string, error) {
	return "", errors.New("disk full")
}

func TestAsk_LogWriteFailureKeepsTurn(t *testing.T) {
	h := newHarness(t, reportText)
	doc, err := h.pipeline.IndexDocument(context.Background(), h.docPath)
	require.NoError(t, err)
	h.pipeline.ChatLog = failingLog{}

	next, answer, err := h.pipeline.Ask(context.Background(), chatlog.NewSession("report", fixedNow), doc.Index, "Staff?")
	require.ErrorIs(t, err, domain.ErrLogPersist)
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, "Revenue doubled.", answer.Text)
	assert.Equal(t, 1, next.Len())
}

func TestAsk_RejectsBlankQuestionAndMissingIndex(t *testing.T) {
	h := newHarness(t, reportText)
	session := chatlog.NewSession("report", fixedNow)

	_, _, err := h.pipeline.Ask(context.Background(), session, &domain.Index{DocumentID: "report"}, "   ")
	assert.ErrorIs(t, err, domain.ErrEmptyInput)

	_, _, err = h.pipeline.Ask(context.Background(), session, nil, "anything")
	assert.ErrorIs(t, err, domain.ErrIndexNotFound)
	assert.Empty(t, h.gen.Prompts())
}

func TestAnswer_InvalidKSkipsGenerator(t *testing.T) {
	h := newHarness(t, reportText)
	doc, err := h.pipeline.IndexDocument(context.Background(), h.docPath)
	require.NoError(t, err)

	_, err = h.pipeline.Answerer.Answer(context.Background(), doc.Index, "revenue", 0)
	require.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Empty(t, h.gen.Prompts())
}

func TestAnswer_RanksMostRelevantChunkFirst(t *testing.T) {
	h := newHarness(t, reportText)
	doc, err := h.pipeline.IndexDocument(context.Background(), h.docPath)
	require.NoError(t, err)

	got, err := h.pipeline.Answerer.Answer(context.Background(), doc.Index, "staff", 1)
	require.NoError(t, err)
	require.Len(t, got.Sources, 1)
	assert.Contains(t, strings.ToLower(got.Sources[0].Chunk.Text), "staff")
}
