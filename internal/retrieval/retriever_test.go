package retrieval

import (
	"context"
	"errors"
	"testing"
)

// mockIndex implements Index for testing.
type mockIndex struct {
	queryFn func(ctx context.Context, text string, topK int, filter Filter) ([]Match, error)
}

func (m *mockIndex) Upsert(context.Context, []Record) error { return nil }
func (m *mockIndex) Query(ctx context.Context, text string, topK int, filter Filter) ([]Match, error) {
	return m.queryFn(ctx, text, topK, filter)
}
func (m *mockIndex) Reset(context.Context) error        { return nil }
func (m *mockIndex) Count(context.Context) (int, error) { return 0, nil }

func skillsMatch(id string, score float64) Match {
	return Match{ID: id, Score: score, Metadata: ChunkMetadata{Title: id, Type: "skills", Content: "Go"}.Encode()}
}

func TestRetrieve_ClampsTopK(t *testing.T) {
	tests := []struct{ in, want int }{{0, 1}, {-5, 1}, {3, 3}, {10, 10}, {50, 10}}
	for _, tt := range tests {
		var got int
		r := NewRetriever(&mockIndex{queryFn: func(_ context.Context, _ string, k int, _ Filter) ([]Match, error) {
			got = k
			return nil, nil
		}})
		if _, err := r.Retrieve(context.Background(), "q", tt.in); err != nil {
			t.Fatalf("Retrieve: %v", err)
		}
		if got != tt.want {
			t.Errorf("topK %d clamped to %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestRetrieve_EmptyIsNotError(t *testing.T) {
	r := NewRetriever(&mockIndex{queryFn: func(context.Context, string, int, Filter) ([]Match, error) {
		return nil, nil
	}})
	matches, err := r.Retrieve(context.Background(), "What is your shoe size?", 3)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if matches == nil || len(matches) != 0 {
		t.Errorf("matches = %#v, want empty slice", matches)
	}
}

func TestRetrieve_WrapsIndexError(t *testing.T) {
	cause := errors.New("upstream 503")
	r := NewRetriever(&mockIndex{queryFn: func(context.Context, string, int, Filter) ([]Match, error) {
		return nil, cause
	}})
	_, err := r.Retrieve(context.Background(), "q", 3)
	if !errors.Is(err, ErrRetrieval) {
		t.Errorf("err = %v, want ErrRetrieval", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("err = %v, want cause preserved", err)
	}
}

func TestRetrieve_DropsInvalidMetadata(t *testing.T) {
	r := NewRetriever(&mockIndex{queryFn: func(context.Context, string, int, Filter) ([]Match, error) {
		return []Match{
			skillsMatch("good", 0.9),
			{ID: "legacy", Score: 0.8, Metadata: map[string]string{KeyContent: "no type"}},
		}, nil
	}})
	matches, err := r.Retrieve(context.Background(), "q", 3)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "good" {
		t.Errorf("matches = %+v", matches)
	}
}

func TestRetrieve_AppliesReinforcementWeight(t *testing.T) {
	reinforced := func(score, weight float64) Match {
		return Match{ID: "reinforcement-c1", Score: score, Metadata: ReinforcementMetadata{
			OriginalID: "c1", Question: "What do you use?", Answer: "Go.", Weight: weight,
		}.Encode()}
	}
	r := NewRetriever(&mockIndex{queryFn: func(context.Context, string, int, Filter) ([]Match, error) {
		return []Match{skillsMatch("skills", 0.7), reinforced(0.6, 1.5)}, nil
	}})
	matches, err := r.Retrieve(context.Background(), "q", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(matches) != 2 || matches[0].ID != "reinforcement-c1" || matches[1].ID != "skills" {
		t.Fatalf("order = %+v", matches)
	}
	if got := matches[0].Score; got < 0.899 || got > 0.901 {
		t.Errorf("weighted score = %v, want 0.9", got)
	}

	r = NewRetriever(&mockIndex{queryFn: func(context.Context, string, int, Filter) ([]Match, error) {
		return []Match{reinforced(0.8, 1.5)}, nil
	}})
	matches, _ = r.Retrieve(context.Background(), "q", 5)
	if matches[0].Score != 1 {
		t.Errorf("score = %v, want capped at 1", matches[0].Score)
	}
}

func TestRetrieveByType_SetsFilter(t *testing.T) {
	var got Filter
	r := NewRetriever(&mockIndex{queryFn: func(_ context.Context, _ string, _ int, f Filter) ([]Match, error) {
		got = f
		return nil, nil
	}})
	r.RetrieveByType(context.Background(), "q", 5, TypeConversation)
	if got[KeyType] != TypeConversation {
		t.Errorf("filter = %v, want type=conversation", got)
	}
}

func TestRetrieve_WithChromemEndToEnd(t *testing.T) {
	idx := newMemChromem(t)
	ctx := context.Background()
	if err := idx.Upsert(ctx, testRecords()); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	matches, err := NewRetriever(idx).Retrieve(ctx, "React finance app", 2)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(matches) != 2 || matches[0].ID != "project-0" {
		t.Errorf("matches = %+v, want project-0 first", matches)
	}
}
