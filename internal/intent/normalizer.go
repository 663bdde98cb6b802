package intent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kalambet/twind/internal/engine"
)

const (
	normalizeTimeout   = 3 * time.Second
	normalizeMaxTokens = 100
	normalizeTemp      = 0.3

	// DefaultCacheSize bounds the rewrite cache.
	DefaultCacheSize = 512
)

// Query sources.
const (
	SourceShortcut = "shortcut"
	SourceModel    = "model"
	SourceOriginal = "original"
)

// Completer is the subset of engine.Engine the normalizer needs.
type Completer interface {
	Complete(ctx context.Context, req engine.Request) (string, error)
}

// Normalized is a retrieval-ready query and where it came from.
type Normalized struct {
	Query  string
	Source string
}

// Normalizer rewrites visitor questions into queries that match the
// vocabulary of profile chunks.
type Normalizer struct {
	llm       Completer
	model     string
	shortcuts []Shortcut
	cache     *lru.Cache[string, string]
}

// NewNormalizer creates a Normalizer using DefaultShortcuts. model may be
// empty to use the engine's default.
func NewNormalizer(llm Completer, model string) *Normalizer {
	return NewNormalizerWithShortcuts(llm, model, DefaultShortcuts, DefaultCacheSize)
}

// NewNormalizerWithShortcuts creates a Normalizer with a custom shortcut
// table and cache size.
func NewNormalizerWithShortcuts(llm Completer, model string, shortcuts []Shortcut, cacheSize int) *Normalizer {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	// lru.New only fails on a non-positive size.
	cache, _ := lru.New[string, string](cacheSize)
	return &Normalizer{llm: llm, model: model, shortcuts: shortcuts, cache: cache}
}

// Normalize never fails: on any provider problem it falls back to the
// original question.
func (n *Normalizer) Normalize(ctx context.Context, question string) Normalized {
	question = strings.TrimSpace(question)
	if question == "" {
		return Normalized{Query: question, Source: SourceOriginal}
	}

	if q, ok := matchShortcut(n.shortcuts, question); ok {
		return Normalized{Query: q, Source: SourceShortcut}
	}

	key := cacheKey(question)
	if q, ok := n.cache.Get(key); ok {
		return Normalized{Query: q, Source: SourceModel}
	}

	if n.llm == nil {
		return Normalized{Query: question, Source: SourceOriginal}
	}

	ctx, cancel := context.WithTimeout(ctx, normalizeTimeout)
	defer cancel()

	raw, err := n.llm.Complete(ctx, engine.Request{
		Model:       n.model,
		Messages:    BuildPrompt(question),
		Temperature: normalizeTemp,
		MaxTokens:   normalizeMaxTokens,
	})
	if err != nil {
		slog.Warn("query normalization failed, using original question", "error", err)
		return Normalized{Query: question, Source: SourceOriginal}
	}

	rewritten := cleanRewrite(raw)
	if rewritten == "" {
		slog.Debug("empty query rewrite, using original question")
		return Normalized{Query: question, Source: SourceOriginal}
	}

	n.cache.Add(key, rewritten)
	return Normalized{Query: rewritten, Source: SourceModel}
}

// cleanRewrite strips the quoting and labels small models like to add.
func cleanRewrite(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	for _, prefix := range []string{"search query:", "query:", "rewritten query:"} {
		if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
			s = s[len(prefix):]
		}
	}
	return strings.Trim(strings.TrimSpace(s), `"'`+"`")
}

func cacheKey(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}
