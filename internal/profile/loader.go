package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/kalambet/twind/internal/retrieval"
)

// ErrNoProfile is returned when no profile document is configured.
var ErrNoProfile = errors.New("no profile configured")

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Loader reads the profile document and optional résumé PDF, caching the
// parsed result for a TTL.
type Loader struct {
	path      string
	resumePDF string
	clock     Clock
	ttl       time.Duration

	mu       sync.RWMutex
	cached   *Twin
	cachedAt time.Time
}

// NewLoader creates a Loader with a 60-second cache TTL.
func NewLoader(path, resumePDF string) *Loader {
	return NewLoaderWithClock(path, resumePDF, realClock{}, 60*time.Second)
}

// NewLoaderWithClock creates a Loader with a custom clock (for testing).
func NewLoaderWithClock(path, resumePDF string, clock Clock, ttl time.Duration) *Loader {
	return &Loader{path: path, resumePDF: resumePDF, clock: clock, ttl: ttl}
}

// Twin returns the parsed profile document, from cache when fresh.
func (l *Loader) Twin() (Twin, error) {
	l.mu.RLock()
	if l.cached != nil && l.clock.Now().Before(l.cachedAt.Add(l.ttl)) {
		t := *l.cached
		l.mu.RUnlock()
		return t, nil
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cached != nil && l.clock.Now().Before(l.cachedAt.Add(l.ttl)) {
		return *l.cached, nil
	}

	t, err := l.read()
	if err != nil {
		return Twin{}, err
	}
	l.cached = &t
	l.cachedAt = l.clock.Now()
	return t, nil
}

func (l *Loader) read() (Twin, error) {
	if l.path == "" {
		return Twin{}, ErrNoProfile
	}
	data, err := os.ReadFile(l.path)
	if err != nil {
		return Twin{}, fmt.Errorf("reading profile %s: %w", l.path, err)
	}
	var t Twin
	if err := json.Unmarshal(data, &t); err != nil {
		return Twin{}, fmt.Errorf("parsing profile %s: %w", l.path, err)
	}
	return t, nil
}

// Invalidate drops the cached document so the next read hits disk.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	l.cached = nil
	l.mu.Unlock()
}

// Records re-reads the corpus from disk and returns it as index records.
// A configured résumé that cannot be read is logged and skipped.
func (l *Loader) Records() ([]retrieval.Record, error) {
	l.Invalidate()

	var chunks []Chunk
	t, err := l.Twin()
	switch {
	case errors.Is(err, ErrNoProfile) && l.resumePDF != "":
	case err != nil:
		return nil, err
	default:
		chunks = BuildChunks(t)
	}

	if l.resumePDF != "" {
		text, err := ReadResumePDF(l.resumePDF)
		if err != nil {
			slog.Warn("résumé skipped", "path", l.resumePDF, "error", err)
		} else {
			chunks = append(chunks, ResumeChunks(text)...)
		}
	}

	recs := make([]retrieval.Record, len(chunks))
	for i, c := range chunks {
		recs[i] = c.Record()
	}
	return recs, nil
}

// Identity is the subject's name, title and location.
type Identity struct {
	Name     string
	Title    string
	Location string
}

// Identity returns the subject identity from the profile, overridden by any
// non-empty fields of fallback.
func (l *Loader) Identity(fallback Identity) Identity {
	id := Identity{}
	if t, err := l.Twin(); err == nil {
		id = Identity{Name: t.Personal.Name, Title: t.Personal.Title, Location: t.Personal.Location}
	}
	if fallback.Name != "" {
		id.Name = fallback.Name
	}
	if fallback.Title != "" {
		id.Title = fallback.Title
	}
	if fallback.Location != "" {
		id.Location = fallback.Location
	}
	return id
}
