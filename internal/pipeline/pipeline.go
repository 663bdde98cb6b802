package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/twind/internal/answer"
	"github.com/kalambet/twind/internal/composer"
	"github.com/kalambet/twind/internal/conversation"
	"github.com/kalambet/twind/internal/intent"
	"github.com/kalambet/twind/internal/knowledge"
	"github.com/kalambet/twind/internal/metrics"
	"github.com/kalambet/twind/internal/retrieval"
)

const (
	DefaultTopK = 3

	// persistTimeout bounds a detached persistence write.
	persistTimeout = 10 * time.Second
)

// Path names the route that produced an answer.
type Path string

const (
	PathKnowledge         Path = "knowledge"
	PathEnhanced          Path = "enhanced"
	PathBasic             Path = "basic"
	PathKnowledgeFallback Path = "knowledge_fallback"
	PathNoInformation     Path = "no_information"
	PathApology           Path = "apology"
)

// Stage names used in StageFailure.
const (
	StageRetrieveEnhanced = "retrieve_enhanced"
	StageRetrieveBasic    = "retrieve_basic"
	StageGenerateEnhanced = "generate_enhanced"
	StageGenerateBasic    = "generate_basic"
	StageStream           = "stream"
)

// StageFailure records one fallback transition.
type StageFailure struct {
	Stage string `json:"stage"`
	Err   error  `json:"-"`
}

func (f StageFailure) Message() string {
	if f.Err == nil {
		return ""
	}
	return f.Err.Error()
}

// Result is the outcome of one question.
type Result struct {
	ConversationID string
	Answer         string
	Sources        []conversation.Source
	Confidence     float64
	Category       string
	Path           Path
	Attempts       []StageFailure
	ProcessingTime time.Duration

	// Success is false when retrieval failed on every path (Err wraps
	// retrieval.ErrRetrieval) or a stream broke after tokens were sent.
	Success bool
	Err     error
}

type Resolver interface {
	Resolve(question string) (knowledge.Answer, bool)
}

type Normalizer interface {
	Normalize(ctx context.Context, question string) intent.Normalized
}

type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]retrieval.Match, error)
	RetrieveByType(ctx context.Context, query string, topK int, recordType string) ([]retrieval.Match, error)
}

type Generator interface {
	Generate(ctx context.Context, question string, c composer.Context) (string, error)
	Stream(ctx context.Context, question string, c composer.Context, sink answer.Sink) error
	AnalyzeJobFit(ctx context.Context, jobDescription string, c composer.Context) (string, error)
}

type Recorder interface {
	Record(ctx context.Context, ex conversation.Exchange) (conversation.Conversation, error)
}

var (
	_ Retriever = (*retrieval.Retriever)(nil)
	_ Generator = (*answer.Generator)(nil)
	_ Recorder  = (*conversation.Service)(nil)
)

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Resolver   Resolver
	Normalizer Normalizer
	Retriever  Retriever
	Assembler  *composer.Assembler
	Generator  Generator
	Recorder   Recorder
	Classifier conversation.TopicClassifier
	Metrics    *metrics.Metrics
	TopK       int
}

// Pipeline answers questions: knowledge short-circuit, then normalization,
// retrieval, context assembly and generation, with explicit fallbacks.
type Pipeline struct {
	deps   Deps
	logger *slog.Logger
	wg     sync.WaitGroup
}

// New creates a Pipeline. TopK defaults to 3, Assembler to the default
// floor and budget, Classifier to the keyword classifier.
func New(deps Deps) *Pipeline {
	if deps.TopK <= 0 {
		deps.TopK = DefaultTopK
	}
	if deps.Assembler == nil {
		deps.Assembler = composer.NewAssembler(0, 0)
	}
	if deps.Classifier == nil {
		deps.Classifier = conversation.NewKeywordClassifier(nil)
	}
	return &Pipeline{deps: deps, logger: slog.Default()}
}

// Wait blocks until pending persistence writes finish.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

type run struct {
	question string
	start    time.Time
	res      Result
	fallback *knowledge.Answer
}

func (p *Pipeline) begin(question string) *run {
	return &run{
		question: strings.TrimSpace(question),
		start:    time.Now(),
		res: Result{
			ConversationID: uuid.New().String(),
			Success:        true,
			Sources:        []conversation.Source{},
		},
	}
}

func (r *run) fail(p *Pipeline, stage string, err error) {
	r.res.Attempts = append(r.res.Attempts, StageFailure{Stage: stage, Err: err})
	p.deps.Metrics.StageFailed(stage)
	p.logger.Warn("pipeline stage failed, falling back", "stage", stage, "error", err)
}

// knowledgeAnswer applies the short-circuit. Lower-confidence hits are kept
// as a last-resort fallback.
func (p *Pipeline) knowledgeAnswer(r *run) bool {
	if p.deps.Resolver == nil {
		return false
	}
	ans, ok := p.deps.Resolver.Resolve(r.question)
	if !ok {
		return false
	}
	if ans.Confidence >= knowledge.ShortCircuitThreshold {
		r.res.Answer = ans.Text
		r.res.Confidence = ans.Confidence
		r.res.Category = ans.Source
		r.res.Path = PathKnowledge
		return true
	}
	r.fallback = &ans
	return false
}

// retrieve runs the enhanced retrieval and falls back to the raw question.
// It returns the query that produced the matches.
func (p *Pipeline) retrieve(ctx context.Context, r *run) (string, []retrieval.Match, bool) {
	query := r.question
	if p.deps.Normalizer != nil {
		query = p.deps.Normalizer.Normalize(ctx, r.question).Query
	}

	matches, err := p.deps.Retriever.Retrieve(ctx, query, p.deps.TopK)
	if err == nil {
		r.res.Path = PathEnhanced
		return query, matches, true
	}
	r.fail(p, StageRetrieveEnhanced, err)

	matches, err = p.deps.Retriever.Retrieve(ctx, r.question, p.deps.TopK)
	if err == nil {
		r.res.Path = PathBasic
		return r.question, matches, true
	}
	r.fail(p, StageRetrieveBasic, err)
	r.res.Success = false
	r.res.Path = PathBasic
	r.res.Err = err
	return "", nil, false
}

// emptyAnswer fills the result when nothing relevant was retrieved.
func (r *run) emptyAnswer() {
	if r.fallback != nil {
		r.res.Answer = r.fallback.Text
		r.res.Confidence = r.fallback.Confidence
		r.res.Category = r.fallback.Source
		r.res.Path = PathKnowledgeFallback
		return
	}
	r.res.Answer = answer.NoInformationAnswer
	r.res.Confidence = 0
	r.res.Path = PathNoInformation
}

func (p *Pipeline) useContext(r *run, c composer.Context) {
	sources := make([]conversation.Source, len(c.Used))
	for i, m := range c.Used {
		sources[i] = conversation.Source{Title: m.Title(), Content: m.Content(), Score: m.Score}
	}
	r.res.Sources = sources
	if len(c.Used) > 0 {
		r.res.Confidence = c.Used[0].Score
		if cat := c.Used[0].Metadata[retrieval.KeyCategory]; cat != "" {
			r.res.Category = cat
		}
	}
}

// Ask answers question in batch mode. It never returns a generation error:
// failures degrade to the basic path and then to ApologyAnswer.
func (p *Pipeline) Ask(ctx context.Context, question string) Result {
	r := p.begin(question)
	defer p.finish(ctx, r)

	if p.knowledgeAnswer(r) {
		return r.res
	}

	query, matches, ok := p.retrieve(ctx, r)
	if !ok {
		return r.res
	}

	c := p.deps.Assembler.Assemble(matches)
	if c.Empty {
		r.emptyAnswer()
		return r.res
	}
	p.useContext(r, c)

	text, err := p.deps.Generator.Generate(ctx, r.question, c)
	if err == nil {
		r.res.Answer = text
		return r.res
	}

	stage := StageGenerateEnhanced
	if r.res.Path == PathBasic {
		stage = StageGenerateBasic
	}
	r.fail(p, stage, err)

	if r.res.Path == PathEnhanced {
		text, ok := p.basicAnswer(ctx, r, query, c)
		if ok {
			r.res.Answer = text
			return r.res
		}
	}

	r.apologize()
	return r.res
}

// basicAnswer retries generation with the original question. Retrieval is
// redone only when the enhanced query differed from the question.
func (p *Pipeline) basicAnswer(ctx context.Context, r *run, query string, c composer.Context) (string, bool) {
	r.res.Path = PathBasic
	if query != r.question {
		matches, err := p.deps.Retriever.Retrieve(ctx, r.question, p.deps.TopK)
		if err != nil {
			r.fail(p, StageRetrieveBasic, err)
		} else if basic := p.deps.Assembler.Assemble(matches); !basic.Empty {
			c = basic
			p.useContext(r, c)
		}
	}

	text, err := p.deps.Generator.Generate(ctx, r.question, c)
	if err != nil {
		r.fail(p, StageGenerateBasic, err)
		return "", false
	}
	return text, true
}

// primaryTopic is the classifier's first topic, or TopicGeneral when it
// returns none.
func primaryTopic(c conversation.TopicClassifier, question string) string {
	if topics := c.Classify(question); len(topics) > 0 && topics[0] != "" {
		return topics[0]
	}
	return conversation.TopicGeneral
}

func (r *run) apologize() {
	r.res.Answer = answer.ApologyAnswer
	r.res.Confidence = 0
	r.res.Path = PathApology
}

// finish stamps timing, records metrics and persists the exchange in the
// background. Failed retrievals are not persisted.
func (p *Pipeline) finish(ctx context.Context, r *run) {
	r.res.ProcessingTime = time.Since(r.start)
	if r.res.Category == "" {
		r.res.Category = primaryTopic(p.deps.Classifier, r.question)
	}
	p.deps.Metrics.ObserveAnswer(string(r.res.Path), r.res.ProcessingTime)

	if !r.res.Success || p.deps.Recorder == nil {
		return
	}
	p.persist(ctx, conversation.Exchange{
		ID:         r.res.ConversationID,
		Question:   r.question,
		Answer:     r.res.Answer,
		Sources:    r.res.Sources,
		Confidence: r.res.Confidence,
		Category:   r.res.Category,
		Path:       string(r.res.Path),
	})
}

func (p *Pipeline) persist(ctx context.Context, ex conversation.Exchange) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		defer cancel()
		if _, err := p.deps.Recorder.Record(ctx, ex); err != nil {
			p.logger.Warn("persisting conversation failed", "conversation_id", ex.ID, "error", err)
		}
	}()
}

// IsRetrievalError reports whether err came from the semantic index.
func IsRetrievalError(err error) bool {
	return errors.Is(err, retrieval.ErrRetrieval)
}
