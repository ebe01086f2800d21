package knowledge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
)

// Extractor reads text out of documents that have no text layer, such as scanned PDFs.
type Extractor interface {
	ExtractDocument(ctx context.Context, data []byte, mimeType string) (string, error)
}

// Loader reads a book and splits it into overlapping chunks.
type Loader struct {
	splitter  textsplitter.TextSplitter
	extractor Extractor
}

// NewLoader creates a loader. extractor may be nil.
func NewLoader(chunkSize, chunkOverlap int, extractor Extractor) *Loader {
	return &Loader{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
		extractor: extractor,
	}
}

// Load returns the chunks of book. PDF chunks carry their page number in the "page" metadata key.
func (l *Loader) Load(ctx context.Context, book Book) ([]schema.Document, error) {
	f, err := os.Open(book.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", book.Title, err)
	}
	defer f.Close()

	var docs []schema.Document
	switch strings.ToLower(filepath.Ext(book.Path)) {
	case ".pdf":
		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", book.Title, err)
		}
		docs, err = documentloaders.NewPDF(f, info.Size()).Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("read pdf %s: %w", book.Title, err)
		}
		if blank(docs) {
			docs, err = l.extract(ctx, book)
			if err != nil {
				return nil, err
			}
		}
	default:
		docs, err = documentloaders.NewText(f).Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", book.Title, err)
		}
	}

	chunks, err := textsplitter.SplitDocuments(l.splitter, docs)
	if err != nil {
		return nil, fmt.Errorf("split %s: %w", book.Title, err)
	}
	out := chunks[:0]
	for _, c := range chunks {
		if strings.TrimSpace(c.PageContent) == "" {
			continue
		}
		if c.Metadata == nil {
			c.Metadata = map[string]any{}
		}
		c.Metadata["book"] = book.Title
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s has no readable text", book.Title)
	}
	return out, nil
}

func (l *Loader) extract(ctx context.Context, book Book) ([]schema.Document, error) {
	if l.extractor == nil {
		return nil, fmt.Errorf("%s has no text layer", book.Title)
	}
	log.Info().Str("book", book.Title).Msg("PDF has no text layer, extracting with Gemini")
	data, err := os.ReadFile(book.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", book.Title, err)
	}
	text, err := l.extractor.ExtractDocument(ctx, data, "application/pdf")
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", book.Title, err)
	}
	return []schema.Document{{PageContent: text, Metadata: map[string]any{}}}, nil
}

func blank(docs []schema.Document) bool {
	for _, d := range docs {
		if strings.TrimSpace(d.PageContent) != "" {
			return false
		}
	}
	return true
}
