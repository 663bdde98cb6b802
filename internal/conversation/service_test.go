package conversation

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/kalambet/twind/internal/retrieval"
	"github.com/kalambet/twind/internal/storage"
)

type mockSearcher struct {
	fn func(ctx context.Context, query string, topK int, recordType string) ([]retrieval.Match, error)
}

func (m *mockSearcher) RetrieveByType(ctx context.Context, query string, topK int, recordType string) ([]retrieval.Match, error) {
	if m.fn == nil {
		return nil, nil
	}
	return m.fn(ctx, query, topK, recordType)
}

func newTestService(t *testing.T, search Searcher) (*Service, *storage.Store) {
	t.Helper()
	st, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if search == nil {
		search = &mockSearcher{}
	}
	svc := NewService(st, search, nil)
	svc.now = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }
	return svc, st
}

func countJobs(t *testing.T, st *storage.Store, jobType string) int {
	t.Helper()
	n := 0
	for {
		j, err := st.ClaimNextJob(context.Background(), []string{jobType})
		if err != nil {
			t.Fatalf("ClaimNextJob: %v", err)
		}
		if j == nil {
			return n
		}
		n++
	}
}

func record(t *testing.T, svc *Service, q, a string) Conversation {
	t.Helper()
	c, err := svc.Record(context.Background(), Exchange{
		Question:   q,
		Answer:     a,
		Sources:    []Source{{Title: "Backend", Content: "Go", Score: 0.8}},
		Confidence: 0.8,
		Category:   "technical_skills",
		Path:       "enhanced",
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	return c
}

func TestRecordAndGet(t *testing.T) {
	svc, st := newTestService(t, nil)
	ctx := context.Background()

	c := record(t, svc, "What languages do you use?", "Mostly Go.")
	if c.ID == "" {
		t.Fatal("Record returned empty ID")
	}

	got, err := svc.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Question != c.Question || got.Answer != c.Answer || !got.CreatedAt.Equal(c.CreatedAt) {
		t.Errorf("round trip mismatch: %+v vs %+v", got, c)
	}
	if !reflect.DeepEqual(got.Metadata, c.Metadata) {
		t.Errorf("metadata = %+v, want %+v", got.Metadata, c.Metadata)
	}
	if n := countJobs(t, st, storage.JobIndexConversation); n != 1 {
		t.Errorf("index jobs = %d, want 1", n)
	}
}

func TestGet_NotFound(t *testing.T) {
	svc, _ := newTestService(t, nil)
	if _, err := svc.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSubmitFeedback_DoublePositiveCreatesOneReinforcement(t *testing.T) {
	svc, st := newTestService(t, nil)
	ctx := context.Background()
	c := record(t, svc, "What is your main stack?", "Go and React.")

	first, err := svc.SubmitFeedback(ctx, c.ID, Positive)
	if err != nil {
		t.Fatalf("first SubmitFeedback: %v", err)
	}
	second, err := svc.SubmitFeedback(ctx, c.ID, Positive)
	if err != nil {
		t.Fatalf("second SubmitFeedback: %v", err)
	}
	if !first.Created || second.Created {
		t.Errorf("Created = %v then %v, want true then false", first.Created, second.Created)
	}
	if first.RecordID != ReinforcementID(c.ID) {
		t.Errorf("RecordID = %q", first.RecordID)
	}

	all, err := st.ListReinforcements(ctx)
	if err != nil {
		t.Fatalf("ListReinforcements: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("reinforcements = %d, want 1", len(all))
	}
	if all[0].OriginalID != c.ID || all[0].Weight != ReinforcementWeight || all[0].Answer != c.Answer {
		t.Errorf("reinforcement = %+v", all[0])
	}
	if n := countJobs(t, st, storage.JobReinforce); n != 1 {
		t.Errorf("reinforce jobs = %d, want 1", n)
	}

	got, _ := svc.Get(ctx, c.ID)
	if got.Feedback != Positive {
		t.Errorf("stored feedback = %q", got.Feedback)
	}
}

func TestSubmitFeedback_NegativeCreatesOnePendingTask(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	c := record(t, svc, "Where did you study?", "I'd rather not guess.")

	res, err := svc.SubmitFeedback(ctx, c.ID, Negative)
	if err != nil {
		t.Fatalf("SubmitFeedback: %v", err)
	}
	if !res.Created || res.RecordID == "" {
		t.Errorf("result = %+v", res)
	}
	if _, err := svc.SubmitFeedback(ctx, c.ID, Negative); err != nil {
		t.Fatalf("repeat SubmitFeedback: %v", err)
	}

	tasks, err := svc.ListImprovementTasks(ctx, storage.TaskPending)
	if err != nil {
		t.Fatalf("ListImprovementTasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("tasks = %d, want 1", len(tasks))
	}
	if tasks[0].Status != storage.TaskPending || tasks[0].OriginalConversationID != c.ID {
		t.Errorf("task = %+v", tasks[0])
	}

	resolved, err := svc.ResolveImprovementTask(ctx, tasks[0].ID)
	if err != nil {
		t.Fatalf("ResolveImprovementTask: %v", err)
	}
	if resolved.Status != storage.TaskResolved {
		t.Errorf("status = %q, want resolved", resolved.Status)
	}
	if _, err := svc.ResolveImprovementTask(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("resolve missing = %v, want ErrNotFound", err)
	}
}

func TestSubmitFeedback_Invalid(t *testing.T) {
	svc, _ := newTestService(t, nil)
	c := record(t, svc, "q", "a")
	for _, fb := range []Feedback{"", "meh", "POSITIVE"} {
		if _, err := svc.SubmitFeedback(context.Background(), c.ID, fb); !errors.Is(err, ErrInvalidFeedback) {
			t.Errorf("feedback %q: err = %v, want ErrInvalidFeedback", fb, err)
		}
	}
	if _, err := svc.SubmitFeedback(context.Background(), "missing", Positive); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing conversation: err = %v, want ErrNotFound", err)
	}
}

func conversationMatch(id, q string, score float64) retrieval.Match {
	meta := retrieval.ConversationMetadata{
		ConversationID: id,
		Question:       q,
		Answer:         "answer to " + q,
		CreatedAt:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	return retrieval.Match{ID: "conversation-" + id, Score: score, Metadata: meta.Encode()}
}

func TestFindSimilarConversations(t *testing.T) {
	var gotType string
	var gotK int
	search := &mockSearcher{fn: func(_ context.Context, _ string, topK int, recordType string) ([]retrieval.Match, error) {
		gotType, gotK = recordType, topK
		return []retrieval.Match{
			conversationMatch("a", "What do you build?", 0.9),
			{ID: "junk", Score: 0.8, Metadata: map[string]string{"type": "conversation"}},
			conversationMatch("b", "What have you built?", 0.7),
		}, nil
	}}
	svc, _ := newTestService(t, search)

	got, err := svc.FindSimilarConversations(context.Background(), "projects?", 3)
	if err != nil {
		t.Fatalf("FindSimilarConversations: %v", err)
	}
	if gotType != retrieval.TypeConversation || gotK != 3 {
		t.Errorf("query type=%q k=%d", gotType, gotK)
	}
	if len(got) != 2 || got[0].ConversationID != "a" || got[1].Score != 0.7 {
		t.Errorf("similar = %+v", got)
	}
}

func TestSimilarTo_ExcludesSelf(t *testing.T) {
	svc, _ := newTestService(t, nil)
	c := record(t, svc, "What do you build?", "Apps.")
	svc.search = &mockSearcher{fn: func(context.Context, string, int, string) ([]retrieval.Match, error) {
		return []retrieval.Match{
			conversationMatch(c.ID, c.Question, 1),
			conversationMatch("other", "What have you built?", 0.8),
		}, nil
	}}

	got, err := svc.SimilarTo(context.Background(), c.ID, 5)
	if err != nil {
		t.Fatalf("SimilarTo: %v", err)
	}
	if len(got) != 1 || got[0].ConversationID != "other" {
		t.Errorf("similar = %+v", got)
	}
}

func TestLearningMetrics(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	a := record(t, svc, "What programming languages do you know?", "Go.")
	b := record(t, svc, "Tell me about a project you built", "A finance app.")
	record(t, svc, "Hello there", "Hi!")
	svc.SubmitFeedback(ctx, a.ID, Positive)
	svc.SubmitFeedback(ctx, b.ID, Negative)

	m, err := svc.LearningMetrics(ctx)
	if err != nil {
		t.Fatalf("LearningMetrics: %v", err)
	}
	if m.TotalConversations != 3 || m.PositiveFeedback != 1 || m.NegativeFeedback != 1 {
		t.Errorf("counts = %+v", m)
	}
	if m.PendingImprovements != 1 {
		t.Errorf("PendingImprovements = %d, want 1", m.PendingImprovements)
	}
	if m.AverageConfidence < 0.79 || m.AverageConfidence > 0.81 {
		t.Errorf("AverageConfidence = %v, want 0.8", m.AverageConfidence)
	}
	want := map[string]int{"technical_skills": 1, "projects": 1, TopicGeneral: 1}
	if !reflect.DeepEqual(m.Topics, want) {
		t.Errorf("Topics = %v, want %v", m.Topics, want)
	}
}

type failingStore struct {
	Store
	err error
}

func (f failingStore) SaveConversationWithJob(context.Context, storage.Conversation, storage.Job) error {
	return f.err
}

// flakyReinforcementStore fails the first reinforcement write.
type flakyReinforcementStore struct {
	Store
	failed bool
}

func (f *flakyReinforcementStore) SaveReinforcementWithJob(ctx context.Context, r storage.Reinforcement, job storage.Job) (bool, error) {
	if !f.failed {
		f.failed = true
		return false, errors.New("disk full")
	}
	return f.Store.SaveReinforcementWithJob(ctx, r, job)
}

func TestSubmitFeedback_RetryAfterFailureQueuesReinforcement(t *testing.T) {
	base, st := newTestService(t, nil)
	c := record(t, base, "What do you build?", "Data pipelines in Go.")
	countJobs(t, st, storage.JobIndexConversation)

	svc := NewService(&flakyReinforcementStore{Store: st}, &mockSearcher{}, nil)
	ctx := context.Background()
	if _, err := svc.SubmitFeedback(ctx, c.ID, Positive); !errors.Is(err, ErrPersistence) {
		t.Fatalf("first SubmitFeedback err = %v, want ErrPersistence", err)
	}
	res, err := svc.SubmitFeedback(ctx, c.ID, Positive)
	if err != nil {
		t.Fatalf("retry SubmitFeedback: %v", err)
	}
	if !res.Created {
		t.Error("retry should create the reinforcement")
	}
	if n := countJobs(t, st, storage.JobReinforce); n != 1 {
		t.Errorf("reinforce jobs = %d, want 1", n)
	}
}

func TestRecord_PersistenceError(t *testing.T) {
	_, st := newTestService(t, nil)
	svc := NewService(failingStore{Store: st, err: errors.New("disk full")}, &mockSearcher{}, nil)

	_, err := svc.Record(context.Background(), Exchange{Question: "q", Answer: "a"})
	if !errors.Is(err, ErrPersistence) {
		t.Errorf("err = %v, want ErrPersistence", err)
	}
}

func TestKeywordClassifier(t *testing.T) {
	c := NewKeywordClassifier(nil)
	tests := []struct {
		q    string
		want []string
	}{
		{"What frameworks do you use?", []string{"technical_skills"}},
		{"Which companies have you worked at?", []string{"experience"}},
		{"What degree do you have?", []string{"education"}},
		{"What's your name?", []string{"personal"}},
		{"What projects did you build with React frameworks?", []string{"projects", "technical_skills"}},
		{"Hmm", []string{TopicGeneral}},
	}
	for _, tt := range tests {
		if got := c.Classify(tt.q); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Classify(%q) = %v, want %v", tt.q, got, tt.want)
		}
	}
}
