package answer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/kalambet/twind/internal/composer"
	"github.com/kalambet/twind/internal/engine"
)

const (
	// NoInformationAnswer is returned when no relevant context exists.
	NoInformationAnswer = "I don't have that information in my background, so I'd rather not guess. Feel free to ask me about my skills, experience or projects."

	// ApologyAnswer is returned when every generation attempt failed.
	ApologyAnswer = "Sorry, I'm having trouble answering right now. Please try again in a moment."

	answerTemperature = 0.3
	answerMaxTokens   = 500

	jobFitTemperature = 0.5
	jobFitMaxTokens   = 1000
)

// Sink receives streamed output. Token returning an error stops the stream.
type Sink interface {
	Token(text string) error
	Done()
	Error(err error)
}

// Generator produces first-person answers from assembled context.
type Generator struct {
	engine        engine.Engine
	persona       composer.Persona
	analysisModel string
	logger        *slog.Logger
}

// NewGenerator creates a Generator. analysisModel is used for job-fit
// analysis; empty selects the engine default.
func NewGenerator(eng engine.Engine, persona composer.Persona, analysisModel string) *Generator {
	return &Generator{
		engine:        eng,
		persona:       persona,
		analysisModel: analysisModel,
		logger:        slog.Default(),
	}
}

func (g *Generator) request(question, context string) engine.Request {
	return engine.Request{
		Messages: []engine.Message{
			{Role: "system", Content: composer.BuildPersonaPrompt(g.persona)},
			{Role: "user", Content: composer.BuildUserPrompt(question, context)},
		},
		Temperature: answerTemperature,
		MaxTokens:   answerMaxTokens,
	}
}

// Generate returns the full answer for question. An empty context yields
// NoInformationAnswer without a provider call.
func (g *Generator) Generate(ctx context.Context, question string, c composer.Context) (string, error) {
	if c.Empty {
		return NoInformationAnswer, nil
	}
	out, err := g.engine.Complete(ctx, g.request(question, c.Text))
	if err != nil {
		return "", classify(err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", &GenerationError{Kind: KindProvider, Err: errors.New("empty completion")}
	}
	return out, nil
}

// Stream forwards answer tokens to sink as they arrive. Done is called when
// the provider finishes. Provider errors are reported to sink.Error and
// returned. A cancelled ctx stops reading and returns ctx.Err() without
// notifying the sink.
func (g *Generator) Stream(ctx context.Context, question string, c composer.Context, sink Sink) error {
	if c.Empty {
		if err := sink.Token(NoInformationAnswer); err != nil {
			return err
		}
		sink.Done()
		return nil
	}

	stream, err := g.engine.Stream(ctx, g.request(question, c.Text))
	if err != nil {
		err = classify(err)
		sink.Error(err)
		return err
	}
	defer stream.Close()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		tok, err := stream.Next()
		if errors.Is(err, io.EOF) {
			sink.Done()
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			err = classify(err)
			sink.Error(err)
			return err
		}
		if err := sink.Token(tok); err != nil {
			return fmt.Errorf("writing token: %w", err)
		}
	}
}

// AnalyzeJobFit returns a structured fit analysis of jobDescription against
// the assembled context.
func (g *Generator) AnalyzeJobFit(ctx context.Context, jobDescription string, c composer.Context) (string, error) {
	if c.Empty {
		return NoInformationAnswer, nil
	}
	req := engine.Request{
		Model: g.analysisModel,
		Messages: []engine.Message{
			{Role: "system", Content: composer.BuildPersonaPrompt(g.persona)},
			{Role: "user", Content: composer.BuildJobFitPrompt(jobDescription, c.Text)},
		},
		Temperature: jobFitTemperature,
		MaxTokens:   jobFitMaxTokens,
	}
	out, err := g.engine.Complete(ctx, req)
	if err != nil {
		err = classify(err)
		g.logger.Warn("job fit analysis failed", "kind", KindOf(err), "error", err)
		return "", err
	}
	return strings.TrimSpace(out), nil
}
