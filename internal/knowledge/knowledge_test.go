package knowledge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// keywordEmbedder embeds text as counts of a fixed vocabulary.
type keywordEmbedder struct {
	mu       sync.Mutex
	embedded int
}

var vocabulary = []string{"volcano", "magma", "light", "lens", "acid", "base"}

func vectorFor(text string) []float32 {
	text = strings.ToLower(text)
	v := make([]float32, len(vocabulary))
	for i, w := range vocabulary {
		v[i] = float32(strings.Count(text, w))
	}
	return v
}

func (e *keywordEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.embedded += len(texts)
	e.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = vectorFor(t)
	}
	return out, nil
}

func (e *keywordEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return vectorFor(text), nil
}

type memoryCache struct {
	mu      sync.Mutex
	vectors map[string][]float32
}

func (c *memoryCache) GetEmbeddings(ctx context.Context, model string, hashes []string) (map[string][]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := map[string][]float32{}
	for _, h := range hashes {
		if v, ok := c.vectors[model+"/"+h]; ok {
			out[h] = v
		}
	}
	return out, nil
}

func (c *memoryCache) PutEmbeddings(ctx context.Context, model string, vectors map[string][]float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vectors == nil {
		c.vectors = map[string][]float32{}
	}
	for h, v := range vectors {
		c.vectors[model+"/"+h] = v
	}
	return nil
}

func writeBooks(t *testing.T) (string, *Catalog) {
	t.Helper()
	dir := t.TempDir()
	physics := strings.Repeat("A convex lens bends light toward a focus point. ", 10) +
		"\n\n" + strings.Repeat("Total internal reflection traps light inside fibres. ", 10)
	chemistry := strings.Repeat("An acid donates protons while a base accepts them. ", 10)
	geology := strings.Repeat("A volcano erupts when magma pressure exceeds the rock strength. ", 10)
	for name, body := range map[string]string{"physics.txt": physics, "chem.txt": chemistry, "geo.md": geology} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	cat, err := NewCatalog([]Book{
		{Title: "Physics", Path: "physics.txt"},
		{Title: "Chemistry", Path: "chem.txt"},
		{Title: "Geology", Path: "geo.md"},
	}, dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, cat
}

func TestRetrieveRanksRelevantChunks(t *testing.T) {
	_, cat := writeBooks(t)
	ix := NewIndex(cat, NewLoader(200, 20, nil), &keywordEmbedder{}, nil, "test-model", 3)

	passages, err := ix.Retrieve(context.Background(), []string{"Physics", "Geology"}, "Why does a volcano erupt? What is magma?")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(passages) != 3 {
		t.Fatalf("got %d passages, want 3", len(passages))
	}
	for _, p := range passages {
		if p.Book != "Geology" {
			t.Errorf("passage from %q ranked in top 3: %q", p.Book, p.Text)
		}
	}
	if passages[0].Score < passages[2].Score {
		t.Error("passages not sorted by score")
	}
}

func TestRetrieveOnlySelectedBooks(t *testing.T) {
	_, cat := writeBooks(t)
	ix := NewIndex(cat, NewLoader(200, 20, nil), &keywordEmbedder{}, nil, "m", 50)
	passages, err := ix.Retrieve(context.Background(), []string{"Chemistry"}, "volcano magma")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	for _, p := range passages {
		if p.Book != "Chemistry" {
			t.Errorf("passage from unselected book %q", p.Book)
		}
	}
}

func TestRetrieveUnknownBook(t *testing.T) {
	_, cat := writeBooks(t)
	ix := NewIndex(cat, NewLoader(200, 20, nil), &keywordEmbedder{}, nil, "m", 3)
	_, err := ix.Retrieve(context.Background(), []string{"Biology"}, "cells")
	if !errors.Is(err, ErrUnknownBook) {
		t.Errorf("error = %v, want ErrUnknownBook", err)
	}
}

func TestEmbeddingCacheAvoidsRecompute(t *testing.T) {
	_, cat := writeBooks(t)
	cache := &memoryCache{}

	first := &keywordEmbedder{}
	if _, err := NewIndex(cat, NewLoader(200, 20, nil), first, cache, "m", 3).Retrieve(context.Background(), []string{"Physics"}, "lens"); err != nil {
		t.Fatal(err)
	}
	if first.embedded == 0 {
		t.Fatal("expected chunks to be embedded")
	}

	second := &keywordEmbedder{}
	if _, err := NewIndex(cat, NewLoader(200, 20, nil), second, cache, "m", 3).Retrieve(context.Background(), []string{"Physics"}, "lens"); err != nil {
		t.Fatal(err)
	}
	if second.embedded != 0 {
		t.Errorf("embedded %d chunks despite warm cache", second.embedded)
	}
}

func TestIndexBuildsBookOnce(t *testing.T) {
	_, cat := writeBooks(t)
	emb := &keywordEmbedder{}
	ix := NewIndex(cat, NewLoader(200, 20, nil), emb, nil, "m", 3)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ix.Retrieve(context.Background(), []string{"Geology"}, "magma"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	once := emb.embedded

	if _, err := ix.Retrieve(context.Background(), []string{"Geology"}, "magma"); err != nil {
		t.Fatal(err)
	}
	if emb.embedded != once {
		t.Errorf("book re-embedded: %d -> %d", once, emb.embedded)
	}
}

type gatedEmbedder struct {
	keywordEmbedder
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (e *gatedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	e.once.Do(func() { close(e.started) })
	select {
	case <-e.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return e.keywordEmbedder.EmbedDocuments(ctx, texts)
}

func TestIndexCancelledCallerDoesNotFailSharedBuild(t *testing.T) {
	_, cat := writeBooks(t)
	emb := &gatedEmbedder{started: make(chan struct{}), release: make(chan struct{})}
	ix := NewIndex(cat, NewLoader(200, 20, nil), emb, nil, "m", 3)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := ix.Retrieve(ctxA, []string{"Geology"}, "magma")
		errA <- err
	}()
	<-emb.started

	type result struct {
		passages []Passage
		err      error
	}
	resB := make(chan result, 1)
	go func() {
		p, err := ix.Retrieve(context.Background(), []string{"Geology"}, "magma")
		resB <- result{p, err}
	}()

	cancelA()
	if err := <-errA; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller got %v, want context.Canceled", err)
	}

	close(emb.release)
	b := <-resB
	if b.err != nil {
		t.Fatalf("second caller failed: %v", b.err)
	}
	if len(b.passages) == 0 || b.passages[0].Book != "Geology" {
		t.Errorf("second caller got %+v, want Geology passages", b.passages)
	}
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.toml")
	body := `
[[book]]
title = "Biology"
path = "bio.pdf"

[[book]]
title = "Maths"
path = "/abs/maths.pdf"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cat, err := LoadCatalog(path, "/books")
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	if got := strings.Join(cat.Titles(), ","); got != "Biology,Maths" {
		t.Errorf("Titles() = %s", got)
	}
	b, _ := cat.Lookup("Biology")
	if b.Path != filepath.Join("/books", "bio.pdf") {
		t.Errorf("relative path = %s", b.Path)
	}
	m, _ := cat.Lookup("Maths")
	if m.Path != "/abs/maths.pdf" {
		t.Errorf("absolute path = %s", m.Path)
	}
}

func TestLoadCatalogRejectsBadFiles(t *testing.T) {
	tests := map[string]string{
		"unknown field": "[[book]]\ntitle = \"A\"\npath = \"a\"\ncolour = \"red\"\n",
		"duplicate":     "[[book]]\ntitle = \"A\"\npath = \"a\"\n[[book]]\ntitle = \"A\"\npath = \"b\"\n",
		"empty":         "",
		"missing path":  "[[book]]\ntitle = \"A\"\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "c.toml")
			if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadCatalog(path, "/"); err == nil {
				t.Error("LoadCatalog() expected error")
			}
		})
	}
}

func TestDefaultCatalog(t *testing.T) {
	cat := DefaultCatalog("/books")
	want := []string{"Class 12 Physics Part 2", "Class 12 Chemistry Part 1", "class 12 chemistry Part 2"}
	if got := cat.Titles(); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("Titles() = %q", got)
	}
}

func TestPassageCitation(t *testing.T) {
	if got := (Passage{Book: "B", Page: 3}).Citation(); got != "B, p. 3" {
		t.Errorf("Citation() = %q", got)
	}
	if got := (Passage{Book: "B"}).Citation(); got != "B" {
		t.Errorf("Citation() = %q", got)
	}
}
