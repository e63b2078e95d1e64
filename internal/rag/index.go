package rag

import (
	"fmt"
	"sync"

	"github.com/blevesearch/bleve"
)

// Passage is one indexed paragraph of a document.
type Passage struct {
	ID         string `json:"id"`
	DocumentID int64  `json:"document_id"`
	Chapter    int    `json:"chapter"`
	Paragraph  int    `json:"paragraph"`
	Text       string `json:"text"`
}

// Hit is a scored search result.
type Hit struct {
	Passage Passage
	Score   float64
}

// Index is an in-memory BM25 passage index with passage metadata kept
// alongside for hit resolution.
type Index struct {
	mu   sync.RWMutex
	idx  bleve.Index
	meta map[string]Passage
}

// NewIndex creates an empty in-memory index.
func NewIndex() (*Index, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("bleve index: %w", err)
	}
	return &Index{idx: idx, meta: make(map[string]Passage)}, nil
}

// Add indexes one passage. An empty ID is derived from the passage's
// document coordinates.
func (i *Index) Add(p Passage) error {
	if p.ID == "" {
		p.ID = fmt.Sprintf("%d:%d:%d", p.DocumentID, p.Chapter, p.Paragraph)
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.meta[p.ID] = p
	return i.idx.Index(p.ID, p)
}

// Count reports the number of indexed passages.
func (i *Index) Count() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.meta)
}

// Search returns the top k passages for a query, optionally restricted
// to one document. documentID zero searches everything.
func (i *Index) Search(q string, documentID int64, k int) ([]Hit, error) {
	if k <= 0 {
		k = 5
	}
	query := bleve.NewQueryStringQuery(q)
	// Over-fetch so document filtering still fills k results.
	req := bleve.NewSearchRequestOptions(query, k*3, 0, false)

	i.mu.RLock()
	res, err := i.idx.Search(req)
	if err != nil {
		i.mu.RUnlock()
		return nil, fmt.Errorf("search: %w", err)
	}

	var out []Hit
	for _, hit := range res.Hits {
		p, ok := i.meta[hit.ID]
		if !ok {
			continue
		}
		if documentID != 0 && p.DocumentID != documentID {
			continue
		}
		out = append(out, Hit{Passage: p, Score: hit.Score})
		if len(out) >= k {
			break
		}
	}
	i.mu.RUnlock()
	return out, nil
}
