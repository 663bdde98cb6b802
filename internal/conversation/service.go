package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/twind/internal/retrieval"
	"github.com/kalambet/twind/internal/storage"
)

// Store is the persistence the service needs.
type Store interface {
	SaveConversationWithJob(ctx context.Context, c storage.Conversation, job storage.Job) error
	GetConversation(ctx context.Context, id string) (storage.Conversation, error)
	SetFeedback(ctx context.Context, id, feedback string) error
	ConversationStats(ctx context.Context) (storage.ConversationStats, error)
	ConversationQuestions(ctx context.Context, fn func(question string)) error

	CreateImprovementTask(ctx context.Context, t storage.ImprovementTask) (bool, error)
	ListImprovementTasks(ctx context.Context, status string) ([]storage.ImprovementTask, error)
	GetImprovementTask(ctx context.Context, id string) (storage.ImprovementTask, error)
	ResolveImprovementTask(ctx context.Context, id string, at time.Time) error

	SaveReinforcementWithJob(ctx context.Context, r storage.Reinforcement, job storage.Job) (bool, error)
}

// Searcher finds records of a given type by similarity.
type Searcher interface {
	RetrieveByType(ctx context.Context, query string, topK int, recordType string) ([]retrieval.Match, error)
}

// Service records exchanges and turns feedback into reinforcement records or
// improvement tasks.
type Service struct {
	store      Store
	search     Searcher
	classifier TopicClassifier
	now        func() time.Time
	logger     *slog.Logger
}

// NewService creates a Service. search is scoped to the conversation mirror
// index. A nil classifier selects the default KeywordClassifier.
func NewService(store Store, search Searcher, classifier TopicClassifier) *Service {
	if classifier == nil {
		classifier = NewKeywordClassifier(nil)
	}
	return &Service{
		store:      store,
		search:     search,
		classifier: classifier,
		now:        time.Now,
		logger:     slog.Default(),
	}
}

// ReinforcementID is the index record id of the reinforcement derived from
// a conversation.
func ReinforcementID(conversationID string) string {
	return "reinforcement-" + conversationID
}

func persistErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// Record stores an exchange and queues it for indexing.
func (s *Service) Record(ctx context.Context, ex Exchange) (Conversation, error) {
	sources := ex.Sources
	if sources == nil {
		sources = []Source{}
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return Conversation{}, fmt.Errorf("encoding sources: %w", err)
	}

	id := ex.ID
	if id == "" {
		id = uuid.New().String()
	}
	row := storage.Conversation{
		ID:          id,
		CreatedAt:   s.now().UTC(),
		Question:    ex.Question,
		Answer:      ex.Answer,
		SourcesJSON: string(sourcesJSON),
		Confidence:  ex.Confidence,
		Category:    ex.Category,
		Path:        ex.Path,
	}
	job, err := newJob(storage.JobIndexConversation, row.ID)
	if err != nil {
		return Conversation{}, err
	}
	if err := s.store.SaveConversationWithJob(ctx, row, job); err != nil {
		return Conversation{}, persistErr("saving conversation", err)
	}

	s.logger.Debug("conversation recorded", "conversation_id", row.ID, "path", ex.Path)
	return fromRow(row, sources), nil
}

type jobPayload struct {
	ConversationID string `json:"conversation_id"`
}

func newJob(jobType, conversationID string) (storage.Job, error) {
	payload, err := json.Marshal(jobPayload{ConversationID: conversationID})
	if err != nil {
		return storage.Job{}, fmt.Errorf("encoding job payload: %w", err)
	}
	return storage.Job{ID: uuid.New().String(), Type: jobType, PayloadJSON: string(payload)}, nil
}

// Get returns a stored conversation.
func (s *Service) Get(ctx context.Context, id string) (Conversation, error) {
	row, err := s.store.GetConversation(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return Conversation{}, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Conversation{}, persistErr("loading conversation", err)
	}
	var sources []Source
	if err := json.Unmarshal([]byte(row.SourcesJSON), &sources); err != nil {
		s.logger.Warn("stored sources unreadable", "conversation_id", id, "error", err)
	}
	return fromRow(row, sources), nil
}

func fromRow(row storage.Conversation, sources []Source) Conversation {
	if sources == nil {
		sources = []Source{}
	}
	return Conversation{
		ID:        row.ID,
		Question:  row.Question,
		Answer:    row.Answer,
		Feedback:  Feedback(row.Feedback),
		CreatedAt: row.CreatedAt,
		Metadata: Metadata{
			Sources:    sources,
			Confidence: row.Confidence,
			Category:   row.Category,
			Path:       row.Path,
		},
	}
}

// SubmitFeedback stores fb on the conversation and applies its side effect.
// Positive feedback writes one reinforcement per conversation. Negative
// feedback opens one pending improvement task per conversation.
func (s *Service) SubmitFeedback(ctx context.Context, id string, fb Feedback) (FeedbackResult, error) {
	if fb != Positive && fb != Negative {
		return FeedbackResult{}, fmt.Errorf("%w: got %q", ErrInvalidFeedback, fb)
	}

	c, err := s.Get(ctx, id)
	if err != nil {
		return FeedbackResult{}, err
	}
	if err := s.store.SetFeedback(ctx, id, string(fb)); err != nil {
		return FeedbackResult{}, persistErr("updating feedback", err)
	}

	res := FeedbackResult{ConversationID: id, Feedback: fb}
	switch fb {
	case Positive:
		res.RecordID = ReinforcementID(id)
		job, err := newJob(storage.JobReinforce, id)
		if err != nil {
			return FeedbackResult{}, err
		}
		created, err := s.store.SaveReinforcementWithJob(ctx, storage.Reinforcement{
			ID:         res.RecordID,
			OriginalID: id,
			Question:   c.Question,
			Answer:     c.Answer,
			Category:   c.Metadata.Category,
			Weight:     ReinforcementWeight,
			CreatedAt:  s.now().UTC(),
		}, job)
		if err != nil {
			return FeedbackResult{}, persistErr("saving reinforcement", err)
		}
		res.Created = created

	case Negative:
		taskID := uuid.New().String()
		created, err := s.store.CreateImprovementTask(ctx, storage.ImprovementTask{
			ID:                     taskID,
			OriginalConversationID: id,
			Question:               c.Question,
			Answer:                 c.Answer,
			CreatedAt:              s.now().UTC(),
		})
		if err != nil {
			return FeedbackResult{}, persistErr("creating improvement task", err)
		}
		if created {
			res.RecordID = taskID
		}
		res.Created = created
	}

	s.logger.Info("feedback recorded", "conversation_id", id, "feedback", fb, "created", res.Created)
	return res, nil
}

// FindSimilarConversations returns up to limit past exchanges similar to question.
func (s *Service) FindSimilarConversations(ctx context.Context, question string, limit int) ([]SimilarConversation, error) {
	matches, err := s.search.RetrieveByType(ctx, question, limit, retrieval.TypeConversation)
	if err != nil {
		return nil, err
	}
	out := make([]SimilarConversation, 0, len(matches))
	for _, m := range matches {
		meta, err := retrieval.DecodeMetadata(m.Metadata)
		if err != nil {
			continue
		}
		cm, ok := meta.(retrieval.ConversationMetadata)
		if !ok {
			continue
		}
		out = append(out, SimilarConversation{
			ConversationID: cm.ConversationID,
			Question:       cm.Question,
			Answer:         cm.Answer,
			Score:          m.Score,
			CreatedAt:      cm.CreatedAt,
		})
	}
	return out, nil
}

// SimilarTo returns past exchanges similar to conversation id, excluding itself.
func (s *Service) SimilarTo(ctx context.Context, id string, limit int) ([]SimilarConversation, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	found, err := s.FindSimilarConversations(ctx, c.Question, limit+1)
	if err != nil {
		return nil, err
	}
	out := found[:0]
	for _, sc := range found {
		if sc.ConversationID != id {
			out = append(out, sc)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// LearningMetrics aggregates feedback counts, mean confidence and topic
// frequencies over all stored conversations.
func (s *Service) LearningMetrics(ctx context.Context) (Metrics, error) {
	st, err := s.store.ConversationStats(ctx)
	if err != nil {
		return Metrics{}, persistErr("loading stats", err)
	}

	topics := make(map[string]int)
	err = s.store.ConversationQuestions(ctx, func(q string) {
		for _, t := range s.classifier.Classify(q) {
			topics[t]++
		}
	})
	if err != nil {
		return Metrics{}, persistErr("loading questions", err)
	}

	pending, err := s.store.ListImprovementTasks(ctx, storage.TaskPending)
	if err != nil {
		return Metrics{}, persistErr("listing improvement tasks", err)
	}

	return Metrics{
		TotalConversations:  st.Total,
		PositiveFeedback:    st.Positive,
		NegativeFeedback:    st.Negative,
		AverageConfidence:   st.MeanConfidence,
		PendingImprovements: len(pending),
		Topics:              topics,
	}, nil
}

// ListImprovementTasks returns tasks with the given status, or all when
// status is empty.
func (s *Service) ListImprovementTasks(ctx context.Context, status string) ([]ImprovementTask, error) {
	rows, err := s.store.ListImprovementTasks(ctx, status)
	if err != nil {
		return nil, persistErr("listing improvement tasks", err)
	}
	out := make([]ImprovementTask, len(rows))
	for i, r := range rows {
		out[i] = taskFromRow(r)
	}
	return out, nil
}

// ResolveImprovementTask marks a task resolved and returns it.
func (s *Service) ResolveImprovementTask(ctx context.Context, id string) (ImprovementTask, error) {
	err := s.store.ResolveImprovementTask(ctx, id, s.now().UTC())
	if errors.Is(err, storage.ErrNotFound) {
		return ImprovementTask{}, fmt.Errorf("improvement task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return ImprovementTask{}, persistErr("resolving improvement task", err)
	}
	row, err := s.store.GetImprovementTask(ctx, id)
	if err != nil {
		return ImprovementTask{}, persistErr("loading improvement task", err)
	}
	return taskFromRow(row), nil
}

func taskFromRow(r storage.ImprovementTask) ImprovementTask {
	return ImprovementTask{
		ID:                     r.ID,
		OriginalConversationID: r.OriginalConversationID,
		Question:               r.Question,
		Answer:                 r.Answer,
		Status:                 r.Status,
		CreatedAt:              r.CreatedAt,
		ResolvedAt:             r.ResolvedAt,
	}
}
