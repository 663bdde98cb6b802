package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/philippgille/chromem-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/kalambet/twind/internal/answer"
	"github.com/kalambet/twind/internal/composer"
	"github.com/kalambet/twind/internal/config"
	"github.com/kalambet/twind/internal/conversation"
	"github.com/kalambet/twind/internal/engine"
	"github.com/kalambet/twind/internal/ingest"
	"github.com/kalambet/twind/internal/intent"
	"github.com/kalambet/twind/internal/knowledge"
	"github.com/kalambet/twind/internal/metrics"
	"github.com/kalambet/twind/internal/ollama"
	"github.com/kalambet/twind/internal/pipeline"
	"github.com/kalambet/twind/internal/profile"
	"github.com/kalambet/twind/internal/retrieval"
	"github.com/kalambet/twind/internal/storage"
)

const conversationCollectionSuffix = "_conversations"

// app is the fully wired twin. Close releases everything it opened.
type app struct {
	cfg           config.Config
	store         *storage.Store
	profileIndex  retrieval.Index
	corpus        *profile.Loader
	reloader      *ingest.Reloader
	worker        *ingest.Worker
	conversations *conversation.Service
	pipeline      *pipeline.Pipeline
	registry      *prometheus.Registry
	metrics       *metrics.Metrics
	identity      profile.Identity
	closers       []func() error
}

func setupLogging(level string) {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// buildApp wires storage, indexes, inference and the pipeline from cfg.
// Progress from model preparation is written to w.
func buildApp(ctx context.Context, cfg config.Config, w io.Writer) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	ollamaClient := ollama.New(cfg.Ollama.BaseURL)
	if err := engine.EnsureReady(ctx, ollamaClient, cfg.LLM.Provider, cfg.Ollama.ChatModel, cfg.Ollama.EmbedModel, w); err != nil {
		return nil, err
	}

	eng, err := engine.Detect(engine.DetectConfig{
		Provider:     cfg.LLM.Provider,
		CloudBaseURL: cfg.LLM.BaseURL,
		CloudAPIKey:  cfg.LLM.APIKey,
		CloudModel:   cfg.LLM.Model,
		Ollama:       ollamaClient,
		OllamaModel:  cfg.Ollama.ChatModel,
	})
	if err != nil {
		return nil, fmt.Errorf("selecting inference provider: %w", err)
	}

	a.store, err = storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	a.closers = append(a.closers, a.store.Close)

	embedder := retrieval.NewEmbedder(ollamaClient, cfg.Ollama.EmbedModel)
	var convIndex retrieval.Index
	a.profileIndex, convIndex, err = a.openIndexes(cfg, embedder)
	if err != nil {
		return nil, err
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	a.corpus = profile.NewLoader(cfg.Profile.Path, cfg.Profile.ResumePDF)
	a.identity = a.corpus.Identity(profile.Identity{Name: cfg.Profile.Name, Location: cfg.Profile.Location})

	loc, err := time.LoadLocation(cfg.Pipeline.Timezone)
	if err != nil {
		slog.Warn("unknown timezone, using local time", "timezone", cfg.Pipeline.Timezone, "error", err)
		loc = time.Local
	}
	var facts []knowledge.Fact
	if a.identity.Location != "" {
		facts = append(facts, knowledge.LocationFact(a.identity.Location))
	}

	model := cfg.LLM.Model
	if cfg.LLM.Provider == engine.ProviderOllama {
		model = cfg.Ollama.ChatModel
	}

	profileRetriever := retrieval.NewRetriever(a.profileIndex)
	a.conversations = conversation.NewService(a.store, retrieval.NewRetriever(convIndex), nil)
	a.reloader = ingest.NewReloader(a.profileIndex, a.store)
	a.worker = ingest.NewWorker(a.store, a.profileIndex, convIndex, 500*time.Millisecond)

	a.pipeline = pipeline.New(pipeline.Deps{
		Resolver:   knowledge.New(knowledge.Options{Location: loc, Facts: facts}),
		Normalizer: intent.NewNormalizer(eng, model),
		Retriever:  profileRetriever,
		Assembler:  composer.NewAssembler(cfg.Pipeline.RelevanceFloor, cfg.Pipeline.MaxContextTokens),
		Generator: answer.NewGenerator(eng, composer.Persona{
			Name:     a.identity.Name,
			Title:    a.identity.Title,
			Location: a.identity.Location,
		}, cfg.LLM.AnalysisModel),
		Recorder: a.conversations,
		Metrics:  a.metrics,
		TopK:     cfg.Pipeline.TopK,
	})

	if err := a.seedIndex(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) openIndexes(cfg config.Config, embedder *retrieval.Embedder) (retrieval.Index, retrieval.Index, error) {
	convName := cfg.Index.Collection + conversationCollectionSuffix

	switch cfg.Index.Backend {
	case "qdrant":
		qc := retrieval.QdrantConfig{
			Host:       cfg.Index.QdrantHost,
			Port:       cfg.Index.QdrantPort,
			APIKey:     cfg.Index.QdrantAPIKey,
			UseTLS:     cfg.Index.QdrantTLS,
			Collection: cfg.Index.Collection,
		}
		profileIdx, err := retrieval.NewQdrantIndex(qc, embedder)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, profileIdx.Close)

		qc.Collection = convName
		convIdx, err := retrieval.NewQdrantIndex(qc, embedder)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, convIdx.Close)
		return profileIdx, convIdx, nil

	case "chromem", "":
		path := filepath.Join(cfg.Storage.DataDir, "index")
		db, err := chromem.NewPersistentDB(path, true)
		if err != nil {
			return nil, nil, fmt.Errorf("opening chromem db at %s: %w", path, err)
		}
		profileIdx, err := retrieval.NewChromemIndex(db, cfg.Index.Collection, embedder)
		if err != nil {
			return nil, nil, err
		}
		convIdx, err := retrieval.NewChromemIndex(db, convName, embedder)
		if err != nil {
			return nil, nil, err
		}
		return profileIdx, convIdx, nil
	}
	return nil, nil, fmt.Errorf("unknown index backend %q", cfg.Index.Backend)
}

// seedIndex loads the profile corpus into an empty index so a fresh install
// can answer without a manual reload.
func (a *app) seedIndex(ctx context.Context) error {
	n, err := a.profileIndex.Count(ctx)
	if err != nil {
		return fmt.Errorf("counting indexed records: %w", err)
	}
	if n > 0 {
		a.metrics.IndexedChunks.Set(float64(n))
		return nil
	}

	records, err := a.corpus.Records()
	if errors.Is(err, profile.ErrNoProfile) {
		slog.Warn("no profile found, index left empty", "path", a.cfg.Profile.Path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading profile: %w", err)
	}
	res, err := a.reloader.Reload(ctx, records)
	a.metrics.Reloaded(res.Chunks+res.Reinforcements, err)
	if err != nil {
		return fmt.Errorf("seeding index: %w", err)
	}
	slog.Info("index seeded", "chunks", res.Chunks, "reinforcements", res.Reinforcements)
	return nil
}

// Close waits for pending conversation writes, then releases resources in
// reverse order of acquisition.
func (a *app) Close() error {
	if a.pipeline != nil {
		a.pipeline.Wait()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
