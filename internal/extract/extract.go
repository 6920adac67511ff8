// Package extract turns uploaded files into plain-text documents.
package extract

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	pdf "github.com/ledongthuc/pdf"

	"docqa/internal/domain"
)

// CommandRunner runs an external program and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// Extractor reads text files directly and PDFs with a pure-Go reader. When
// a pdftotext binary is configured, PDFs go through it instead.
type Extractor struct {
	runner    CommandRunner
	pdftotext string
}

// New creates an extractor. Empty pdftotext selects the built-in PDF reader;
// a nil runner with a pdftotext binary uses os/exec.
func New(runner CommandRunner, pdftotext string) *Extractor {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Extractor{runner: runner, pdftotext: pdftotext}
}

// SupportedExtensions returns file extensions this extractor handles.
func SupportedExtensions() []string {
	return []string{".pdf", ".txt", ".md"}
}

// Supported reports whether path has a handled extension.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range SupportedExtensions() {
		if ext == e {
			return true
		}
	}
	return false
}

// DocumentID derives the document id from a file's base name without extension.
func DocumentID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Extract reads path and returns its text. Blank text is not an error here;
// the pipeline decides what to do with it.
func (e *Extractor) Extract(ctx context.Context, path string) (domain.Document, error) {
	doc := domain.Document{ID: DocumentID(path), Path: path}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return doc, fmt.Errorf("reading %s: %w", path, err)
		}
		doc.Content = string(data)
	case ".pdf":
		if e.pdftotext != "" {
			out, err := e.runner.Run(ctx, e.pdftotext, "-enc", "UTF-8", path, "-")
			if err != nil {
				return doc, fmt.Errorf("extracting %s: %w", path, err)
			}
			doc.Content = joinPages(string(out))
			break
		}
		text, err := readPDF(path)
		if err != nil {
			return doc, fmt.Errorf("extracting %s: %w", path, err)
		}
		doc.Content = text
	default:
		return doc, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
	return doc, nil
}

// readPDF extracts the plain text of every page and joins pages with "\n".
// Pages without a text layer contribute an empty string.
func readPDF(path string) (text string, err error) {
	// the reader panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("pdf reader: %w", err)
	}
	defer f.Close()

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		fonts := make(map[string]*pdf.Font)
		for _, name := range p.Fonts() {
			font := p.Font(name)
			fonts[name] = &font
		}
		plain, err := p.GetPlainText(fonts)
		if err != nil {
			return "", fmt.Errorf("pdf page %d: %w", i, err)
		}
		pages = append(pages, plain)
	}
	return strings.Join(pages, "\n"), nil
}

// joinPages converts pdftotext's form-feed page breaks into newlines.
func joinPages(raw string) string {
	pages := strings.Split(raw, "\f")
	if len(pages) > 1 && strings.TrimSpace(pages[len(pages)-1]) == "" {
		pages = pages[:len(pages)-1]
	}
	return strings.Join(pages, "\n")
}

// Stage copies src into dir, keeping its base name, and returns the new path.
// A src already inside dir is returned unchanged.
func Stage(src, dir string) (string, error) {
	if dir == "" {
		return src, nil
	}
	dest := filepath.Join(dir, filepath.Base(src))
	absSrc, err := filepath.Abs(src)
	if err != nil {
		return "", err
	}
	absDest, err := filepath.Abs(dest)
	if err != nil {
		return "", err
	}
	if absSrc == absDest {
		return src, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating upload directory: %w", err)
	}
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return dest, nil
}
