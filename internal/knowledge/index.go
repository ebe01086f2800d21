package knowledge

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"golang.org/x/sync/singleflight"
)

// Passage is a retrieved excerpt of a book.
type Passage struct {
	Book  string  `json:"book"`
	Page  int     `json:"page,omitempty"`
	Text  string  `json:"text"`
	Score float32 `json:"score"`
}

// Citation names the passage's source, e.g. "Class 12 Physics Part 2, p. 12".
func (p Passage) Citation() string {
	if p.Page > 0 {
		return fmt.Sprintf("%s, p. %d", p.Book, p.Page)
	}
	return p.Book
}

// EmbeddingCache stores chunk vectors by content hash.
type EmbeddingCache interface {
	GetEmbeddings(ctx context.Context, model string, hashes []string) (map[string][]float32, error)
	PutEmbeddings(ctx context.Context, model string, vectors map[string][]float32) error
}

// bookBuildTimeout bounds one shared book build, which outlives the caller that started it.
const bookBuildTimeout = 10 * time.Minute

type chunk struct {
	passage Passage
	vector  []float32
}

// Index embeds books on first use and answers similarity queries across them.
type Index struct {
	catalog  *Catalog
	loader   *Loader
	embedder embeddings.Embedder
	cache    EmbeddingCache
	model    string
	topK     int

	mu     sync.RWMutex
	books  map[string][]chunk
	builds singleflight.Group
}

// NewIndex creates an index. cache may be nil.
func NewIndex(catalog *Catalog, loader *Loader, embedder embeddings.Embedder, cache EmbeddingCache, model string, topK int) *Index {
	return &Index{
		catalog:  catalog,
		loader:   loader,
		embedder: embedder,
		cache:    cache,
		model:    model,
		topK:     topK,
		books:    make(map[string][]chunk),
	}
}

// Retrieve returns the topK chunks of the named books most similar to query.
func (ix *Index) Retrieve(ctx context.Context, titles []string, query string) ([]Passage, error) {
	books, err := ix.catalog.Resolve(titles)
	if err != nil {
		return nil, err
	}

	var candidates []chunk
	for _, b := range books {
		chunks, err := ix.chunks(ctx, b)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, chunks...)
	}

	qv, err := ix.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	passages := make([]Passage, len(candidates))
	for i, c := range candidates {
		passages[i] = c.passage
		passages[i].Score = cosine(qv, c.vector)
	}
	slices.SortStableFunc(passages, func(a, b Passage) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if len(passages) > ix.topK {
		passages = passages[:ix.topK]
	}
	return passages, nil
}

// Warm builds the index for every catalog book.
func (ix *Index) Warm(ctx context.Context) error {
	for _, title := range ix.catalog.Titles() {
		b, _ := ix.catalog.Lookup(title)
		if _, err := ix.chunks(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

func (ix *Index) chunks(ctx context.Context, book Book) ([]chunk, error) {
	ix.mu.RLock()
	c, ok := ix.books[book.Title]
	ix.mu.RUnlock()
	if ok {
		return c, nil
	}

	// The build is shared, so one caller's cancellation must not fail the others waiting on it.
	buildCtx := context.WithoutCancel(ctx)
	ch := ix.builds.DoChan(book.Title, func() (any, error) {
		bctx, cancel := context.WithTimeout(buildCtx, bookBuildTimeout)
		defer cancel()
		chunks, err := ix.build(bctx, book)
		if err != nil {
			return nil, err
		}
		ix.mu.Lock()
		ix.books[book.Title] = chunks
		ix.mu.Unlock()
		return chunks, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]chunk), nil
	}
}

func (ix *Index) build(ctx context.Context, book Book) ([]chunk, error) {
	docs, err := ix.loader.Load(ctx, book)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(docs))
	hashes := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.PageContent
		hashes[i] = chunkHash(d.PageContent)
	}

	vectors, err := ix.embed(ctx, texts, hashes)
	if err != nil {
		return nil, fmt.Errorf("embed %s: %w", book.Title, err)
	}

	chunks := make([]chunk, len(docs))
	for i, d := range docs {
		page, _ := d.Metadata["page"].(int)
		chunks[i] = chunk{
			passage: Passage{Book: book.Title, Page: page, Text: d.PageContent},
			vector:  vectors[i],
		}
	}

	log.Info().Str("book", book.Title).Int("chunks", len(chunks)).Msg("Book indexed")
	return chunks, nil
}

// embed returns one vector per text, consulting the cache first.
func (ix *Index) embed(ctx context.Context, texts, hashes []string) ([][]float32, error) {
	cached := map[string][]float32{}
	if ix.cache != nil {
		got, err := ix.cache.GetEmbeddings(ctx, ix.model, hashes)
		if err != nil {
			log.Warn().Err(err).Msg("Embedding cache lookup failed")
		} else {
			cached = got
		}
	}

	var (
		missing   []string
		missingAt []int
	)
	out := make([][]float32, len(texts))
	for i, h := range hashes {
		if v, ok := cached[h]; ok {
			out[i] = v
			continue
		}
		missing = append(missing, texts[i])
		missingAt = append(missingAt, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vectors, err := ix.embedder.EmbedDocuments(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missing) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(missing))
	}
	fresh := make(map[string][]float32, len(vectors))
	for j, v := range vectors {
		out[missingAt[j]] = v
		fresh[hashes[missingAt[j]]] = v
	}
	if ix.cache != nil {
		if err := ix.cache.PutEmbeddings(ctx, ix.model, fresh); err != nil {
			log.Warn().Err(err).Msg("Embedding cache store failed")
		}
	}
	return out, nil
}

func chunkHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
