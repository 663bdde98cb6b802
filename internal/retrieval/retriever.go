package retrieval

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
)

// ErrRetrieval wraps any failure of the semantic index.
var ErrRetrieval = errors.New("retrieval failed")

const (
	MinTopK = 1
	MaxTopK = 10
)

// Retriever queries an Index and validates what comes back.
type Retriever struct {
	index Index
}

// NewRetriever creates a Retriever over idx.
func NewRetriever(idx Index) *Retriever {
	return &Retriever{index: idx}
}

// Retrieve returns up to topK matches for query, best first. topK is
// clamped into [1,10]. No results is an empty slice and a nil error.
// Reinforcement matches have their score multiplied by their weight,
// capped at 1.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]Match, error) {
	return r.retrieve(ctx, query, topK, nil)
}

// RetrieveByType is Retrieve restricted to records of one type.
func (r *Retriever) RetrieveByType(ctx context.Context, query string, topK int, recordType string) ([]Match, error) {
	return r.retrieve(ctx, query, topK, Filter{KeyType: recordType})
}

func (r *Retriever) retrieve(ctx context.Context, query string, topK int, filter Filter) ([]Match, error) {
	topK = clampTopK(topK)

	raw, err := r.index.Query(ctx, query, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}

	matches := make([]Match, 0, len(raw))
	weighted := false
	for _, m := range raw {
		meta, err := DecodeMetadata(m.Metadata)
		if err != nil {
			slog.Warn("dropping index match with invalid metadata", "id", m.ID, "error", err)
			continue
		}
		if rm, ok := meta.(ReinforcementMetadata); ok && rm.Weight > 0 && rm.Weight != 1 {
			m.Score = min(m.Score*rm.Weight, 1)
			weighted = true
		}
		matches = append(matches, m)
	}
	if weighted {
		slices.SortStableFunc(matches, func(a, b Match) int { return cmp.Compare(b.Score, a.Score) })
	}

	if len(matches) > 0 {
		slog.Debug("retrieved matches", "count", len(matches), "top_id", matches[0].ID, "top_score", matches[0].Score)
	} else {
		slog.Debug("retrieval returned no matches", "query", query)
	}
	return matches, nil
}

func clampTopK(k int) int {
	if k < MinTopK {
		return MinTopK
	}
	if k > MaxTopK {
		return MaxTopK
	}
	return k
}
