package retrieval

import (
	"context"
	"fmt"
	"sync"

	"github.com/philippgille/chromem-go"
)

// ChromemIndex is an embedded Index backed by a chromem-go collection.
type ChromemIndex struct {
	db       *chromem.DB
	name     string
	embedder *Embedder

	mu  sync.RWMutex
	col *chromem.Collection
}

// OpenChromemIndex opens (or creates) a persistent chromem database at path.
func OpenChromemIndex(path, collection string, embedder *Embedder) (*ChromemIndex, error) {
	db, err := chromem.NewPersistentDB(path, true)
	if err != nil {
		return nil, fmt.Errorf("opening chromem db at %s: %w", path, err)
	}
	return NewChromemIndex(db, collection, embedder)
}

// NewChromemIndex wraps an existing chromem DB; pass chromem.NewDB() for an
// in-memory index.
func NewChromemIndex(db *chromem.DB, collection string, embedder *Embedder) (*ChromemIndex, error) {
	idx := &ChromemIndex{db: db, name: collection, embedder: embedder}
	col, err := db.GetOrCreateCollection(collection, nil, idx.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", collection, err)
	}
	idx.col = col
	return idx, nil
}

func (c *ChromemIndex) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return c.embedder.Embed(ctx, text)
	}
}

func (c *ChromemIndex) collection() *chromem.Collection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.col
}

func (c *ChromemIndex) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := validateRecords(records); err != nil {
		return err
	}

	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Text
	}
	vecs, err := c.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}

	col := c.collection()
	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		// Documents are keyed by ID, so adding an existing ID replaces it.
		docs[i] = chromem.Document{
			ID:        r.ID,
			Content:   r.Text,
			Metadata:  r.Metadata,
			Embedding: vecs[i],
		}
	}

	// Concurrency of 1 since embeddings are precomputed.
	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("adding documents: %w", err)
	}
	return nil
}

func (c *ChromemIndex) Query(ctx context.Context, text string, topK int, filter Filter) ([]Match, error) {
	col := c.collection()

	// chromem requires nResults <= document count.
	n := col.Count()
	if n == 0 || topK <= 0 {
		return []Match{}, nil
	}
	if topK > n {
		topK = n
	}

	results, err := col.Query(ctx, text, topK, filter, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", c.name, err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, Match{
			ID:       r.ID,
			Score:    clampScore(r.Similarity),
			Metadata: r.Metadata,
		})
	}
	return matches, nil
}

func (c *ChromemIndex) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.db.DeleteCollection(c.name); err != nil {
		return fmt.Errorf("deleting collection %s: %w", c.name, err)
	}
	col, err := c.db.GetOrCreateCollection(c.name, nil, c.embeddingFunc())
	if err != nil {
		return fmt.Errorf("recreating collection %s: %w", c.name, err)
	}
	c.col = col
	return nil
}

func (c *ChromemIndex) Count(ctx context.Context) (int, error) {
	return c.collection().Count(), nil
}
