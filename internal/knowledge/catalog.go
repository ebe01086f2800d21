// Package knowledge maps selectable books to documents and retrieves passages from them.
package knowledge

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ErrUnknownBook is returned for a title that is not in the catalog.
var ErrUnknownBook = errors.New("unknown book")

// Book is a selectable title and the document backing it.
type Book struct {
	Title string `toml:"title"`
	Path  string `toml:"path"`
}

// Catalog is the ordered list of selectable books.
type Catalog struct {
	books []Book
}

type catalogFile struct {
	Books []Book `toml:"book"`
}

// defaultBooks are the titles offered when no catalog file is configured.
var defaultBooks = []Book{
	{Title: "Class 12 Physics Part 2", Path: "NCERT Class 12 Physics Part 2 ( PDFDrive ).pdf"},
	{Title: "Class 12 Chemistry Part 1", Path: "NCERT-Class-12-Chemistry-Part-1.pdf"},
	{Title: "class 12 chemistry Part 2", Path: "NCERT-Class-12-Chemistry-Part-2.pdf"},
}

// NewCatalog builds a catalog, resolving relative paths against dir.
func NewCatalog(books []Book, dir string) (*Catalog, error) {
	c := &Catalog{}
	seen := make(map[string]bool, len(books))
	for _, b := range books {
		b.Title = strings.TrimSpace(b.Title)
		if b.Title == "" || b.Path == "" {
			return nil, fmt.Errorf("catalog entry needs title and path: %+v", b)
		}
		if seen[b.Title] {
			return nil, fmt.Errorf("duplicate catalog title %q", b.Title)
		}
		seen[b.Title] = true
		if !filepath.IsAbs(b.Path) {
			b.Path = filepath.Join(dir, b.Path)
		}
		c.books = append(c.books, b)
	}
	return c, nil
}

// DefaultCatalog returns the built-in books located under dir.
func DefaultCatalog(dir string) *Catalog {
	c, _ := NewCatalog(defaultBooks, dir)
	return c
}

// LoadCatalog reads [[book]] entries from a TOML file.
func LoadCatalog(path, dir string) (*Catalog, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer file.Close()

	var cf catalogFile
	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cf); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(cf.Books) == 0 {
		return nil, errors.New("catalog has no books")
	}
	return NewCatalog(cf.Books, dir)
}

// Titles returns the book titles in catalog order.
func (c *Catalog) Titles() []string {
	titles := make([]string, len(c.books))
	for i, b := range c.books {
		titles[i] = b.Title
	}
	return titles
}

// Lookup finds a book by exact title.
func (c *Catalog) Lookup(title string) (Book, bool) {
	for _, b := range c.books {
		if b.Title == title {
			return b, true
		}
	}
	return Book{}, false
}

// Resolve maps titles to books, failing on the first unknown title.
func (c *Catalog) Resolve(titles []string) ([]Book, error) {
	books := make([]Book, 0, len(titles))
	for _, t := range titles {
		b, ok := c.Lookup(t)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownBook, t)
		}
		books = append(books, b)
	}
	return books, nil
}
