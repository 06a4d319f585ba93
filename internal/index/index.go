// Package index is a TF-IDF semantic index over stored event contents. It
// answers the scanner's harmonic alignment lookups.
package index

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/lazypower/horizon/internal/horizon"
)

// Document is one indexed text.
type Document struct {
	ID      string
	Content string
}

// Corpus supplies the documents the index is built from, newest first.
type Corpus interface {
	Documents(ctx context.Context, limit int) ([]Document, error)
}

// Options tune the index. Zero values take the defaults.
type Options struct {
	MaxDocs  int           // documents loaded per rebuild (default 2000)
	MaxTerms int           // vocabulary size (default 512)
	Limit    int           // entries returned per lookup (default 5)
	MinScore float64       // cosine similarity floor (default 0.2)
	Refresh  time.Duration // rebuild when older than this (default 5m)
}

func (o Options) withDefaults() Options {
	if o.MaxDocs <= 0 {
		o.MaxDocs = 2000
	}
	if o.MaxTerms <= 0 {
		o.MaxTerms = 512
	}
	if o.Limit <= 0 {
		o.Limit = 5
	}
	if o.MinScore <= 0 {
		o.MinScore = 0.2
	}
	if o.Refresh <= 0 {
		o.Refresh = 5 * time.Minute
	}
	return o
}

// Index is safe for concurrent use.
type Index struct {
	corpus Corpus
	opts   Options

	mu      sync.Mutex
	now     func() time.Time
	builtAt time.Time
	space   vectorSpace
	docs    []Document
	vecs    [][]float64
	cache   map[string][]horizon.IndexEntry // pattern id -> result
}

// New creates an Index. Nothing is loaded until the first lookup or Rebuild.
func New(corpus Corpus, opts Options) *Index {
	return &Index{
		corpus: corpus,
		opts:   opts.withDefaults(),
		now:    time.Now,
		cache:  make(map[string][]horizon.IndexEntry),
	}
}

// SetClock replaces the wall clock, mainly for tests.
func (ix *Index) SetClock(now func() time.Time) {
	ix.mu.Lock()
	ix.now = now
	ix.mu.Unlock()
}

// Rebuild reloads the corpus and recomputes every vector. Cached lookups
// are dropped.
func (ix *Index) Rebuild(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.rebuildLocked(ctx)
}

func (ix *Index) rebuildLocked(ctx context.Context) error {
	docs, err := ix.corpus.Documents(ctx, ix.opts.MaxDocs)
	if err != nil {
		return fmt.Errorf("load corpus: %w", err)
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	space := newVectorSpace(texts, ix.opts.MaxTerms)
	vecs := make([][]float64, len(docs))
	for i, d := range docs {
		vecs[i] = space.embed(d.Content)
	}

	ix.space = space
	ix.docs = docs
	ix.vecs = vecs
	ix.cache = make(map[string][]horizon.IndexEntry)
	ix.builtAt = ix.now()
	log.Printf("index: rebuilt over %d documents, %d terms", len(docs), len(space.vocab))
	return nil
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.docs)
}

// Related returns the documents most similar to query, best first. Results
// are cached per pattern id until the next rebuild. A stale index is rebuilt
// first.
func (ix *Index) Related(ctx context.Context, patternID, query string) ([]horizon.IndexEntry, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.builtAt.IsZero() || ix.now().Sub(ix.builtAt) >= ix.opts.Refresh {
		if err := ix.rebuildLocked(ctx); err != nil {
			return nil, err
		}
	}
	if cached, ok := ix.cache[patternID]; ok {
		return append([]horizon.IndexEntry(nil), cached...), nil
	}

	qv := ix.space.embed(query)
	var out []horizon.IndexEntry
	for i, v := range ix.vecs {
		sim := CosineSimilarity(qv, v)
		if sim < ix.opts.MinScore {
			continue
		}
		out = append(out, horizon.IndexEntry{ID: ix.docs[i].ID, Content: ix.docs[i].Content, Score: sim})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > ix.opts.Limit {
		out = out[:ix.opts.Limit]
	}

	ix.cache[patternID] = out
	return append([]horizon.IndexEntry(nil), out...), nil
}
