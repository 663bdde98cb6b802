package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/twind/internal/retrieval"
	"github.com/kalambet/twind/internal/storage"
)

// JobStore abstracts the job queue and the rows jobs refer to.
type JobStore interface {
	ClaimNextJob(ctx context.Context, types []string) (*storage.Job, error)
	CompleteJob(ctx context.Context, id string) error
	FailJob(ctx context.Context, id string, errMsg string) error
	GetConversation(ctx context.Context, id string) (storage.Conversation, error)
	GetReinforcementByOriginal(ctx context.Context, conversationID string) (storage.Reinforcement, error)
}

// Worker mirrors stored conversations and reinforcements into the semantic
// indexes by draining the SQLite job queue.
type Worker struct {
	store         JobStore
	profile       retrieval.Index
	conversations retrieval.Index
	poll          time.Duration
	logger        *slog.Logger
}

// NewWorker creates a Worker. Reinforcements are written to profile,
// conversation mirrors to conversations.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, profile, conversations retrieval.Index, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:         store,
		profile:       profile,
		conversations: conversations,
		poll:          pollInterval,
		logger:        slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(ctx, []string{storage.JobIndexConversation, storage.JobReinforce})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "type", job.Type, "error", err)
		if failErr := w.store.FailJob(ctx, job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(ctx, job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

// Drain processes jobs until the queue has nothing runnable.
func (w *Worker) Drain(ctx context.Context) error {
	for {
		done, err := w.RunOnce(ctx)
		if err != nil {
			return err
		}
		if !done {
			return nil
		}
	}
}

type jobPayload struct {
	ConversationID string `json:"conversation_id"`
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload jobPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	switch job.Type {
	case storage.JobIndexConversation:
		c, err := w.store.GetConversation(ctx, payload.ConversationID)
		if err != nil {
			return fmt.Errorf("loading conversation %s: %w", payload.ConversationID, err)
		}
		if err := w.conversations.Upsert(ctx, []retrieval.Record{ConversationRecord(c)}); err != nil {
			return fmt.Errorf("indexing conversation: %w", err)
		}

	case storage.JobReinforce:
		r, err := w.store.GetReinforcementByOriginal(ctx, payload.ConversationID)
		if err != nil {
			return fmt.Errorf("loading reinforcement for %s: %w", payload.ConversationID, err)
		}
		if err := w.profile.Upsert(ctx, []retrieval.Record{ReinforcementRecord(r)}); err != nil {
			return fmt.Errorf("indexing reinforcement: %w", err)
		}

	default:
		return fmt.Errorf("unknown job type %q", job.Type)
	}

	w.logger.Debug("job processed", "job_id", job.ID, "type", job.Type, "conversation_id", payload.ConversationID)
	return nil
}

// ConversationRecord is the index mirror of a stored conversation. The
// question is embedded so lookups match on what was asked.
func ConversationRecord(c storage.Conversation) retrieval.Record {
	return retrieval.NewRecord("conversation-"+c.ID, c.Question, retrieval.ConversationMetadata{
		ConversationID: c.ID,
		Question:       c.Question,
		Answer:         c.Answer,
		Category:       c.Category,
		CreatedAt:      c.CreatedAt,
	})
}

// ReinforcementRecord is the index record for a reinforcement.
func ReinforcementRecord(r storage.Reinforcement) retrieval.Record {
	meta := retrieval.ReinforcementMetadata{
		OriginalID: r.OriginalID,
		Question:   r.Question,
		Answer:     r.Answer,
		Category:   r.Category,
		Weight:     r.Weight,
	}
	rec := retrieval.NewRecord(r.ID, "", meta)
	rec.Text = rec.Metadata[retrieval.KeyContent]
	return rec
}
