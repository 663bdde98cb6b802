package pipeline

import (
	"context"
	"strings"
)

// Event types emitted by AskStream.
const (
	EventStatus = "status"
	EventToken  = "token"
	EventDone   = "done"
	EventError  = "error"
)

// Event is one streaming message.
type Event struct {
	Type           string  `json:"type"`
	Stage          string  `json:"stage,omitempty"`
	Message        string  `json:"message,omitempty"`
	Content        string  `json:"content,omitempty"`
	ConversationID string  `json:"conversationId,omitempty"`
	Path           Path    `json:"path,omitempty"`
	Confidence     float64 `json:"confidence,omitempty"`
}

// EmitFunc delivers an event to the client. A non-nil error means the
// client is gone.
type EmitFunc func(Event) error

func status(stage, msg string) Event {
	return Event{Type: EventStatus, Stage: stage, Message: msg}
}

// tokenSink adapts EmitFunc to answer.Sink and collects the streamed text.
// Terminal events are left to AskStream.
type tokenSink struct {
	emit   EmitFunc
	sb     strings.Builder
	n      int
	broken bool
}

func (s *tokenSink) Token(text string) error {
	if err := s.emit(Event{Type: EventToken, Content: text}); err != nil {
		s.broken = true
		return err
	}
	s.sb.WriteString(text)
	s.n++
	return nil
}

func (s *tokenSink) Done()       {}
func (s *tokenSink) Error(error) {}

// AskStream answers question, emitting status events at stage boundaries,
// token events, then exactly one done or error event. When ctx is cancelled
// mid-stream no terminal event is sent and nothing is persisted.
func (p *Pipeline) AskStream(ctx context.Context, question string, emit EmitFunc) Result {
	r := p.begin(question)
	persist := true
	defer func() {
		if persist {
			p.finish(ctx, r)
		}
	}()

	whole := func(text string) Result {
		if err := emit(Event{Type: EventToken, Content: text}); err != nil {
			persist = false
			return r.res
		}
		p.done(r, emit)
		return r.res
	}

	emit(status("knowledge", "Checking quick answers"))
	if p.knowledgeAnswer(r) {
		return whole(r.res.Answer)
	}

	emit(status("retrieval", "Searching my background"))
	query, matches, ok := p.retrieve(ctx, r)
	if !ok {
		emit(Event{Type: EventError, Message: r.res.Err.Error()})
		return r.res
	}

	c := p.deps.Assembler.Assemble(matches)
	if c.Empty {
		r.emptyAnswer()
		return whole(r.res.Answer)
	}
	p.useContext(r, c)

	emit(status("generation", "Writing an answer"))
	sink := &tokenSink{emit: emit}
	err := p.deps.Generator.Stream(ctx, r.question, c, sink)
	switch {
	case err == nil:
		r.res.Answer = sink.sb.String()
		p.done(r, emit)
		return r.res

	case ctx.Err() != nil || sink.broken:
		persist = false
		p.logger.Debug("stream cancelled by client", "conversation_id", r.res.ConversationID)
		return r.res

	case sink.n > 0:
		// Tokens already reached the client; a fallback would repeat them.
		r.fail(p, StageStream, err)
		r.res.Answer = sink.sb.String()
		r.res.Success = false
		r.res.Err = err
		persist = false
		emit(Event{Type: EventError, Message: "answer stream interrupted"})
		return r.res
	}

	r.fail(p, StageStream, err)
	emit(status("fallback", "Retrying"))
	if text, ok := p.basicAnswer(ctx, r, query, c); ok {
		r.res.Answer = text
		return whole(text)
	}
	r.apologize()
	return whole(r.res.Answer)
}

func (p *Pipeline) done(r *run, emit EmitFunc) {
	emit(Event{
		Type:           EventDone,
		ConversationID: r.res.ConversationID,
		Path:           r.res.Path,
		Confidence:     r.res.Confidence,
	})
}
