package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kalambet/twind/internal/pipeline"
)

func handleAskStream(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req askRequest
		q, ok := decodeQuestion(w, r, &req, func(a *askRequest) string { return a.Question }, MaxQuestionChars)
		if !ok {
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		emit := func(e pipeline.Event) error {
			if err := r.Context().Err(); err != nil {
				return err
			}
			payload, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("encoding event: %w", err)
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return err
			}
			flusher.Flush()
			return nil
		}

		res := deps.Answerer.AskStream(r.Context(), q, emit)
		slog.Debug("stream finished",
			"conversation_id", res.ConversationID,
			"path", res.Path,
			"success", res.Success,
			"duration_ms", res.ProcessingTime.Milliseconds(),
		)
	}
}
