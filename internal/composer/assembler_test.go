package composer

import (
	"strings"
	"testing"

	"github.com/kalambet/twind/internal/retrieval"
)

func match(id string, score float64, content string) retrieval.Match {
	return retrieval.Match{
		ID:       id,
		Score:    score,
		Metadata: map[string]string{retrieval.KeyType: "skills", retrieval.KeyTitle: id, retrieval.KeyContent: content},
	}
}

func TestAssemble_OrdersByScoreAndJoins(t *testing.T) {
	a := NewAssembler(0, 0)
	ctx := a.Assemble([]retrieval.Match{
		match("low", 0.6, "low content"),
		match("high", 0.9, "high content"),
	})

	if ctx.Empty {
		t.Fatal("expected non-empty context")
	}
	want := "high content" + separator + "low content"
	if ctx.Text != want {
		t.Errorf("Text = %q, want %q", ctx.Text, want)
	}
	if len(ctx.Used) != 2 || ctx.Used[0].ID != "high" {
		t.Errorf("Used = %+v", ctx.Used)
	}
}

func TestAssemble_DropsBelowFloor(t *testing.T) {
	a := NewAssembler(0.5, 0)
	ctx := a.Assemble([]retrieval.Match{
		match("keep", 0.5, "kept"),
		match("drop", 0.49, "dropped"),
	})
	if strings.Contains(ctx.Text, "dropped") {
		t.Errorf("below-floor content included: %q", ctx.Text)
	}
	if len(ctx.Used) != 1 {
		t.Errorf("Used = %d, want 1", len(ctx.Used))
	}
}

func TestAssemble_EmptyWhenNothingRelevant(t *testing.T) {
	a := NewAssembler(0, 0)
	for name, in := range map[string][]retrieval.Match{
		"nil":         nil,
		"below floor": {match("a", 0.2, "text")},
		"no content":  {match("b", 0.9, "   ")},
	} {
		t.Run(name, func(t *testing.T) {
			ctx := a.Assemble(in)
			if !ctx.Empty || ctx.Text != EmptyContextText {
				t.Errorf("got %+v, want empty sentinel", ctx)
			}
		})
	}
}

func TestAssemble_TokenBudget(t *testing.T) {
	a := NewAssembler(0, 20)
	big := strings.Repeat("x", 200)
	ctx := a.Assemble([]retrieval.Match{
		match("top", 0.95, strings.Repeat("a", 40)),
		match("big", 0.9, big),
		match("small", 0.7, strings.Repeat("b", 20)),
	})

	if strings.Contains(ctx.Text, big) {
		t.Error("over-budget entry included")
	}
	if got := EstimateTokens(ctx.Text); got > 20 {
		t.Errorf("context tokens = %d, want <= 20", got)
	}
	if len(ctx.Used) != 2 || ctx.Used[1].ID != "small" {
		t.Errorf("Used = %+v, want top and small", ctx.Used)
	}
}

func TestAssemble_UsesRawContent(t *testing.T) {
	a := NewAssembler(0, 0)
	ctx := a.Assemble([]retrieval.Match{match("skills-backend", 0.8, "Go, PostgreSQL")})
	if ctx.Text != "Go, PostgreSQL" {
		t.Errorf("Text = %q, want raw content only", ctx.Text)
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.in); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
