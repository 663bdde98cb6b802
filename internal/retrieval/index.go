package retrieval

import "context"

// Record is one entry written to the semantic index. Text is what gets
// embedded; Metadata carries the typed schema encoded as strings.
type Record struct {
	ID       string
	Text     string
	Metadata map[string]string
}

// Match is a ranked index hit. Score is a similarity in [0,1].
type Match struct {
	ID       string
	Score    float64
	Metadata map[string]string
}

// Type returns the record type stored in the match metadata.
func (m Match) Type() string { return m.Metadata[KeyType] }

// Title returns the human-readable title stored in the match metadata.
func (m Match) Title() string { return m.Metadata[KeyTitle] }

// Content returns the raw content stored in the match metadata.
func (m Match) Content() string { return m.Metadata[KeyContent] }

// Filter restricts a query to records whose metadata equals every entry.
type Filter map[string]string

// Index is the semantic index service. Implementations are safe for
// concurrent use.
type Index interface {
	// Upsert writes records, replacing any existing record with the same ID.
	Upsert(ctx context.Context, records []Record) error

	// Query returns up to topK records ranked by similarity to text.
	Query(ctx context.Context, text string, topK int, filter Filter) ([]Match, error)

	// Reset removes every record.
	Reset(ctx context.Context) error

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)
}

func clampScore(s float32) float64 {
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	}
	return float64(s)
}
