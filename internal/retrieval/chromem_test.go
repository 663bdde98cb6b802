package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/philippgille/chromem-go"
)

func chunkRecord(id, title, typ, content string) Record {
	return NewRecord(id, title+": "+content, ChunkMetadata{
		Title:    title,
		Type:     typ,
		Content:  content,
		Category: typ,
	})
}

func testRecords() []Record {
	return []Record{
		chunkRecord("skills-backend", "Backend Skills", "skills", "Go Node.js PostgreSQL REST gRPC"),
		chunkRecord("experience-0", "Engineer at Acme", "experience", "Migrated services to Kubernetes and cut deploy time"),
		chunkRecord("project-0", "Budget Tracker", "project", "Personal finance app built with React and Firebase"),
	}
}

func newMemChromem(t *testing.T) *ChromemIndex {
	t.Helper()
	e, _ := newTestEmbedder()
	idx, err := NewChromemIndex(chromem.NewDB(), "twin", e)
	if err != nil {
		t.Fatalf("NewChromemIndex: %v", err)
	}
	return idx
}

func TestChromemIndex_UpsertAndQuery(t *testing.T) {
	idx := newMemChromem(t)
	ctx := context.Background()

	if err := idx.Upsert(ctx, testRecords()); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	n, _ := idx.Count(ctx)
	if n != 3 {
		t.Fatalf("Count = %d, want 3", n)
	}

	matches, err := idx.Query(ctx, "Kubernetes deploy", 10, nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("got %d matches, want topK capped at collection size 3", len(matches))
	}
	if matches[0].ID != "experience-0" {
		t.Errorf("top match = %s, want experience-0", matches[0].ID)
	}
	for _, m := range matches {
		if m.Score < 0 || m.Score > 1 {
			t.Errorf("score %v out of [0,1]", m.Score)
		}
	}
	if matches[0].Content() == "" || matches[0].Type() != "experience" {
		t.Errorf("metadata not returned: %+v", matches[0].Metadata)
	}
}

func TestChromemIndex_UpsertReplacesByID(t *testing.T) {
	idx := newMemChromem(t)
	ctx := context.Background()

	idx.Upsert(ctx, testRecords())
	updated := chunkRecord("project-0", "Budget Tracker", "project", "Rewritten in Svelte")
	if err := idx.Upsert(ctx, []Record{updated}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if n, _ := idx.Count(ctx); n != 3 {
		t.Errorf("Count = %d, want 3 after replacing", n)
	}

	matches, _ := idx.Query(ctx, "Svelte", 1, Filter{KeyType: "project"})
	if len(matches) != 1 || matches[0].Content() != "Rewritten in Svelte" {
		t.Errorf("matches = %+v", matches)
	}
}

func TestChromemIndex_Filter(t *testing.T) {
	idx := newMemChromem(t)
	ctx := context.Background()
	idx.Upsert(ctx, testRecords())

	matches, err := idx.Query(ctx, "Kubernetes", 3, Filter{KeyType: "skills"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "skills-backend" {
		t.Errorf("matches = %+v, want only the skills record", matches)
	}
}

func TestChromemIndex_RejectsInvalidMetadata(t *testing.T) {
	idx := newMemChromem(t)
	err := idx.Upsert(context.Background(), []Record{{ID: "x", Text: "x", Metadata: map[string]string{KeyType: "hobby"}}})
	if !errors.Is(err, ErrInvalidMetadata) {
		t.Errorf("err = %v, want ErrInvalidMetadata", err)
	}
}

func TestChromemIndex_ResetAndEmptyQuery(t *testing.T) {
	idx := newMemChromem(t)
	ctx := context.Background()
	idx.Upsert(ctx, testRecords())

	if err := idx.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if n, _ := idx.Count(ctx); n != 0 {
		t.Errorf("Count after reset = %d", n)
	}
	matches, err := idx.Query(ctx, "anything", 3, nil)
	if err != nil {
		t.Fatalf("Query on empty index: %v", err)
	}
	if matches == nil || len(matches) != 0 {
		t.Errorf("matches = %#v, want empty non-nil slice", matches)
	}
}

func TestOpenChromemIndex_Persists(t *testing.T) {
	dir := t.TempDir()
	e, _ := newTestEmbedder()
	ctx := context.Background()

	idx, err := OpenChromemIndex(dir, "twin", e)
	if err != nil {
		t.Fatalf("OpenChromemIndex: %v", err)
	}
	if err := idx.Upsert(ctx, testRecords()); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	reopened, err := OpenChromemIndex(dir, "twin", e)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if n, _ := reopened.Count(ctx); n != 3 {
		t.Errorf("Count after reopen = %d, want 3", n)
	}
}
