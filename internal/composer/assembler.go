package composer

import (
	"sort"
	"strings"

	"github.com/kalambet/twind/internal/retrieval"
)

const (
	DefaultRelevanceFloor   = 0.5
	DefaultMaxContextTokens = 2000

	// EmptyContextText is the sentinel passed to the generator when no
	// retrieved content is relevant enough to use.
	EmptyContextText = "NO_RELEVANT_CONTEXT"

	separator = "\n\n---\n\n"
)

// Context is the assembled context block plus the matches it was built from.
type Context struct {
	Text  string
	Used  []retrieval.Match
	Empty bool
}

// EmptyContext is returned when nothing survives filtering.
var EmptyContext = Context{Text: EmptyContextText, Empty: true}

// Assembler turns ranked matches into a bounded context block.
type Assembler struct {
	Floor            float64
	MaxContextTokens int
}

// NewAssembler creates an Assembler. Non-positive arguments select the
// defaults (floor 0.5, 2000 tokens).
func NewAssembler(floor float64, maxContextTokens int) *Assembler {
	if floor <= 0 {
		floor = DefaultRelevanceFloor
	}
	if maxContextTokens <= 0 {
		maxContextTokens = DefaultMaxContextTokens
	}
	return &Assembler{Floor: floor, MaxContextTokens: maxContextTokens}
}

// Assemble keeps matches scoring at least the floor, best first, and joins
// their raw content until the token budget is spent. Entries that do not fit
// are skipped.
func (a *Assembler) Assemble(matches []retrieval.Match) Context {
	kept := make([]retrieval.Match, 0, len(matches))
	for _, m := range matches {
		if m.Score < a.Floor || strings.TrimSpace(m.Content()) == "" {
			continue
		}
		kept = append(kept, m)
	}
	if len(kept) == 0 {
		return EmptyContext
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Score > kept[j].Score
	})

	remaining := a.MaxContextTokens
	sepTokens := EstimateTokens(separator)

	var parts []string
	var used []retrieval.Match
	for _, m := range kept {
		content := strings.TrimSpace(m.Content())
		cost := EstimateTokens(content)
		if len(parts) > 0 {
			cost += sepTokens
		}
		if cost > remaining {
			continue
		}
		parts = append(parts, content)
		used = append(used, m)
		remaining -= cost
	}
	if len(parts) == 0 {
		return EmptyContext
	}

	return Context{Text: strings.Join(parts, separator), Used: used}
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
