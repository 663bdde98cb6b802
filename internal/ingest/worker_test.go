package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/twind/internal/retrieval"
	"github.com/kalambet/twind/internal/storage"
)

type mockIndex struct {
	mu       sync.Mutex
	records  map[string]retrieval.Record
	resets   int
	upsertFn func(records []retrieval.Record) error
}

func newMockIndex() *mockIndex {
	return &mockIndex{records: make(map[string]retrieval.Record)}
}

func (m *mockIndex) Upsert(_ context.Context, records []retrieval.Record) error {
	if m.upsertFn != nil {
		if err := m.upsertFn(records); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.records[r.ID] = r
	}
	return nil
}

func (m *mockIndex) Query(context.Context, string, int, retrieval.Filter) ([]retrieval.Match, error) {
	return nil, nil
}

func (m *mockIndex) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]retrieval.Record)
	m.resets++
	return nil
}

func (m *mockIndex) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records), nil
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedConversation(t *testing.T, store *storage.Store, id string) {
	t.Helper()
	c := storage.Conversation{
		ID:         id,
		CreatedAt:  time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC),
		Question:   "What is your main stack?",
		Answer:     "Go and React.",
		Confidence: 0.9,
		Category:   "technical_skills",
	}
	if err := store.SaveConversation(context.Background(), c); err != nil {
		t.Fatalf("SaveConversation: %v", err)
	}
}

func enqueue(t *testing.T, store *storage.Store, jobID, jobType, convID string) {
	t.Helper()
	payload, _ := json.Marshal(map[string]string{"conversation_id": convID})
	job := storage.Job{ID: jobID, Type: jobType, PayloadJSON: string(payload)}
	if err := store.EnqueueJob(context.Background(), job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
}

// resetRunAfter makes a job claimable again after FailJob backoff.
func resetRunAfter(t *testing.T, store *storage.Store, jobID string) {
	t.Helper()
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := store.DB().Exec(`UPDATE jobs SET run_after = ? WHERE id = ?`, now, jobID); err != nil {
		t.Fatalf("resetRunAfter: %v", err)
	}
}

func jobStatus(t *testing.T, store *storage.Store, jobID string) (string, int) {
	t.Helper()
	var status string
	var attempts int
	if err := store.DB().QueryRow(`SELECT status, attempts FROM jobs WHERE id = ?`, jobID).Scan(&status, &attempts); err != nil {
		t.Fatalf("query job %s: %v", jobID, err)
	}
	return status, attempts
}

func TestWorker_IndexesConversation(t *testing.T) {
	store := openTestStore(t)
	seedConversation(t, store, "c1")
	enqueue(t, store, "j1", storage.JobIndexConversation, "c1")

	profile, convs := newMockIndex(), newMockIndex()
	w := NewWorker(store, profile, convs, 0)

	didWork, err := w.RunOnce(context.Background())
	if err != nil || !didWork {
		t.Fatalf("RunOnce = %v, %v", didWork, err)
	}

	rec, ok := convs.records["conversation-c1"]
	if !ok {
		t.Fatalf("conversation not mirrored: %v", convs.records)
	}
	if rec.Text != "What is your main stack?" {
		t.Errorf("Text = %q", rec.Text)
	}
	meta, err := retrieval.DecodeMetadata(rec.Metadata)
	if err != nil {
		t.Fatalf("DecodeMetadata: %v", err)
	}
	cm := meta.(retrieval.ConversationMetadata)
	if cm.ConversationID != "c1" || cm.Answer != "Go and React." {
		t.Errorf("metadata = %+v", cm)
	}
	if len(profile.records) != 0 {
		t.Error("conversation leaked into the profile index")
	}
	if status, _ := jobStatus(t, store, "j1"); status != "completed" {
		t.Errorf("status = %q, want completed", status)
	}
}

func TestWorker_Reinforces(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	seedConversation(t, store, "c2")
	store.SaveReinforcement(ctx, storage.Reinforcement{
		ID: "reinforcement-c2", OriginalID: "c2", Question: "Q?", Answer: "A.", Weight: 1.5, CreatedAt: time.Now(),
	})
	enqueue(t, store, "j2", storage.JobReinforce, "c2")

	profile, convs := newMockIndex(), newMockIndex()
	if err := NewWorker(store, profile, convs, 0).Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	rec, ok := profile.records["reinforcement-c2"]
	if !ok {
		t.Fatalf("reinforcement not indexed: %v", profile.records)
	}
	if rec.Metadata[retrieval.KeyType] != retrieval.TypeReinforcement {
		t.Errorf("type = %q", rec.Metadata[retrieval.KeyType])
	}
	if rec.Text != "Q: Q?\nA: A." {
		t.Errorf("Text = %q", rec.Text)
	}
}

func TestWorker_RetryOnFailure(t *testing.T) {
	store := openTestStore(t)
	seedConversation(t, store, "c3")
	enqueue(t, store, "j3", storage.JobIndexConversation, "c3")

	calls := 0
	convs := newMockIndex()
	convs.upsertFn = func([]retrieval.Record) error {
		calls++
		if calls <= 2 {
			return errors.New("index unavailable")
		}
		return nil
	}
	w := NewWorker(store, newMockIndex(), convs, 0)
	ctx := context.Background()

	for attempt := 1; attempt <= 2; attempt++ {
		if didWork, err := w.RunOnce(ctx); err != nil || !didWork {
			t.Fatalf("RunOnce %d = %v, %v", attempt, didWork, err)
		}
		status, attempts := jobStatus(t, store, "j3")
		if status != "pending" || attempts != attempt {
			t.Errorf("after fail %d: status=%q attempts=%d", attempt, status, attempts)
		}
		resetRunAfter(t, store, "j3")
	}

	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce 3: %v", err)
	}
	if status, _ := jobStatus(t, store, "j3"); status != "completed" {
		t.Errorf("status = %q, want completed", status)
	}
}

func TestWorker_MissingConversationFails(t *testing.T) {
	store := openTestStore(t)
	store.EnqueueJob(context.Background(), storage.Job{
		ID: "j4", Type: storage.JobIndexConversation, PayloadJSON: `{"conversation_id":"ghost"}`, MaxAttempts: 1,
	})

	w := NewWorker(store, newMockIndex(), newMockIndex(), 0)
	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if status, _ := jobStatus(t, store, "j4"); status != "failed" {
		t.Errorf("status = %q, want failed", status)
	}
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	store := openTestStore(t)
	w := NewWorker(store, newMockIndex(), newMockIndex(), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestReloader_RestoresReinforcements(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	seedConversation(t, store, "c5")
	store.SaveReinforcement(ctx, storage.Reinforcement{
		ID: "reinforcement-c5", OriginalID: "c5", Question: "Q", Answer: "A", Weight: 1.5, CreatedAt: time.Now(),
	})

	idx := newMockIndex()
	idx.records["stale"] = retrieval.Record{ID: "stale"}

	chunks := []retrieval.Record{
		retrieval.NewRecord("skills-backend", "Backend: Go", retrieval.ChunkMetadata{Title: "Backend", Type: "skills", Content: "Go"}),
	}
	res, err := NewReloader(idx, store).Reload(ctx, chunks)
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if res.Chunks != 1 || res.Reinforcements != 1 {
		t.Errorf("result = %+v", res)
	}
	if idx.resets != 1 {
		t.Errorf("resets = %d, want 1", idx.resets)
	}
	if _, ok := idx.records["stale"]; ok {
		t.Error("stale record survived reload")
	}
	for _, id := range []string{"skills-backend", "reinforcement-c5"} {
		if _, ok := idx.records[id]; !ok {
			t.Errorf("record %q missing after reload", id)
		}
	}
}
