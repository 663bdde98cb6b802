package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kalambet/twind/internal/retrieval"
	"github.com/kalambet/twind/internal/storage"
)

// ReinforcementLister lists every stored reinforcement.
type ReinforcementLister interface {
	ListReinforcements(ctx context.Context) ([]storage.Reinforcement, error)
}

// Reloader rebuilds the profile index from a fresh corpus.
type Reloader struct {
	index  retrieval.Index
	store  ReinforcementLister
	logger *slog.Logger
}

func NewReloader(index retrieval.Index, store ReinforcementLister) *Reloader {
	return &Reloader{index: index, store: store, logger: slog.Default()}
}

// ReloadResult summarises a reload.
type ReloadResult struct {
	Chunks         int `json:"chunks"`
	Reinforcements int `json:"reinforcements"`
}

// Reload clears the index, upserts chunks, then restores reinforcements so
// learned answers survive a corpus refresh.
func (r *Reloader) Reload(ctx context.Context, chunks []retrieval.Record) (ReloadResult, error) {
	reinforcements, err := r.store.ListReinforcements(ctx)
	if err != nil {
		return ReloadResult{}, fmt.Errorf("listing reinforcements: %w", err)
	}

	if err := r.index.Reset(ctx); err != nil {
		return ReloadResult{}, fmt.Errorf("resetting index: %w", err)
	}

	if len(chunks) > 0 {
		if err := r.index.Upsert(ctx, chunks); err != nil {
			return ReloadResult{}, fmt.Errorf("upserting chunks: %w", err)
		}
	}

	if len(reinforcements) > 0 {
		recs := make([]retrieval.Record, len(reinforcements))
		for i, rf := range reinforcements {
			recs[i] = ReinforcementRecord(rf)
		}
		if err := r.index.Upsert(ctx, recs); err != nil {
			return ReloadResult{}, fmt.Errorf("restoring reinforcements: %w", err)
		}
	}

	r.logger.Info("profile index reloaded", "chunks", len(chunks), "reinforcements", len(reinforcements))
	return ReloadResult{Chunks: len(chunks), Reinforcements: len(reinforcements)}, nil
}
