package api

import (
	"context"
	"fmt"

	"github.com/kalambet/twind/internal/conversation"
	"github.com/kalambet/twind/internal/ingest"
	"github.com/kalambet/twind/internal/pipeline"
	"github.com/kalambet/twind/internal/retrieval"
)

type mockAnswerer struct {
	askFn    func(q string) pipeline.Result
	streamFn func(ctx context.Context, q string, emit pipeline.EmitFunc) pipeline.Result
	jobFitFn func(jd string) (pipeline.JobFit, error)
	lookupFn func(section pipeline.Section, focus string) ([]conversation.Source, error)
}

func (m *mockAnswerer) Ask(_ context.Context, q string) pipeline.Result {
	return m.askFn(q)
}

func (m *mockAnswerer) AskStream(ctx context.Context, q string, emit pipeline.EmitFunc) pipeline.Result {
	return m.streamFn(ctx, q, emit)
}

func (m *mockAnswerer) AnalyzeJobFit(_ context.Context, jd string) (pipeline.JobFit, error) {
	return m.jobFitFn(jd)
}

func (m *mockAnswerer) Lookup(_ context.Context, section pipeline.Section, focus string) ([]conversation.Source, error) {
	return m.lookupFn(section, focus)
}

type mockConversations struct {
	getFn      func(id string) (conversation.Conversation, error)
	feedbackFn func(id string, fb conversation.Feedback) (conversation.FeedbackResult, error)
	similarFn  func(id string, limit int) ([]conversation.SimilarConversation, error)
	metricsFn  func() (conversation.Metrics, error)
	listFn     func(status string) ([]conversation.ImprovementTask, error)
	resolveFn  func(id string) (conversation.ImprovementTask, error)
}

func (m *mockConversations) Get(_ context.Context, id string) (conversation.Conversation, error) {
	return m.getFn(id)
}

func (m *mockConversations) SubmitFeedback(_ context.Context, id string, fb conversation.Feedback) (conversation.FeedbackResult, error) {
	return m.feedbackFn(id, fb)
}

func (m *mockConversations) SimilarTo(_ context.Context, id string, limit int) ([]conversation.SimilarConversation, error) {
	return m.similarFn(id, limit)
}

func (m *mockConversations) LearningMetrics(context.Context) (conversation.Metrics, error) {
	return m.metricsFn()
}

func (m *mockConversations) ListImprovementTasks(_ context.Context, status string) ([]conversation.ImprovementTask, error) {
	return m.listFn(status)
}

func (m *mockConversations) ResolveImprovementTask(_ context.Context, id string) (conversation.ImprovementTask, error) {
	return m.resolveFn(id)
}

type mockCorpus struct {
	invalidated int
	records     []retrieval.Record
	err         error
}

func (m *mockCorpus) Invalidate() { m.invalidated++ }

func (m *mockCorpus) Records() ([]retrieval.Record, error) { return m.records, m.err }

type mockReloader struct {
	got []retrieval.Record
	err error
}

func (m *mockReloader) Reload(_ context.Context, chunks []retrieval.Record) (ingest.ReloadResult, error) {
	m.got = chunks
	if m.err != nil {
		return ingest.ReloadResult{}, m.err
	}
	return ingest.ReloadResult{Chunks: len(chunks), Reinforcements: 1}, nil
}

func notFound(id string) error {
	return fmt.Errorf("conversation %s: %w", id, conversation.ErrNotFound)
}
