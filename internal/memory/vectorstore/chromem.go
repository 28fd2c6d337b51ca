// Package vectorstore wraps github.com/philippgille/chromem-go as the
// concrete default implementation of the spec's external "keyed vector
// store with approximate-nearest-neighbor queries" contract. Grounded on
// _examples/kadirpekel-hector/pkg/vector/chromem.go's collection-caching
// and pre-computed-embedding usage (vectors are embedded upstream by the
// configured Embedder, not by chromem itself).
package vectorstore

import (
	"context"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// Store is a single named collection of (key, vector) pairs with cosine
// similarity search, backed by an in-process chromem-go database.
type Store struct {
	db         *chromem.DB
	mu         sync.Mutex
	collection *chromem.Collection
}

func identityEmbed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("vectorstore: embeddings must be pre-computed, got raw text %q", text)
}

// New constructs an in-memory store. persistPath, when non-empty,
// persists to disk; an empty path keeps vectors in memory only.
func New(collectionName, persistPath string) (*Store, error) {
	var db *chromem.DB
	var err error
	if persistPath != "" {
		db, err = chromem.NewPersistentDB(persistPath, false)
		if err != nil {
			return nil, fmt.Errorf("vectorstore: open persistent db: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	col, err := db.GetOrCreateCollection(collectionName, nil, identityEmbed)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: create collection: %w", err)
	}
	return &Store{db: db, collection: col}, nil
}

// Upsert inserts or replaces the vector for key.
func (s *Store) Upsert(ctx context.Context, key string, vector []float32, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := chromem.Document{ID: key, Content: content, Embedding: vector}
	return s.collection.AddDocument(ctx, doc)
}

// Delete removes key from the store, if present.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collection.Delete(ctx, nil, nil, key)
}

// Match is one ANN search hit.
type Match struct {
	Key        string
	Similarity float64
	Content    string
}

// Query returns the topK nearest neighbors to queryVector by cosine
// similarity (chromem reports 1 - cosine-distance already as
// similarity).
func (s *Store) Query(ctx context.Context, queryVector []float32, topK int) ([]Match, error) {
	s.mu.Lock()
	count := s.collection.Count()
	s.mu.Unlock()
	if count == 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}

	results, err := s.collection.QueryEmbedding(ctx, queryVector, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: query: %w", err)
	}

	out := make([]Match, 0, len(results))
	for _, r := range results {
		out = append(out, Match{Key: r.ID, Similarity: float64(r.Similarity), Content: r.Content})
	}
	return out, nil
}
