package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(url string) *Client {
	c := NewClient("test-key", url)
	c.backoff = time.Millisecond
	return c
}

func userMessage(text string) []Message {
	return []Message{{Role: "user", Content: text}}
}

func TestComplete(t *testing.T) {
	var got ChatRequest
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&got)
		fmt.Fprint(w, `{"id":"c-1","choices":[{"message":{"role":"assistant","content":"Hi there!"}}]}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	out, err := c.Complete(context.Background(), ChatRequest{
		Model:       "llama-3.1-8b-instant",
		Messages:    userMessage("hi"),
		Temperature: Float(0.3),
		MaxTokens:   500,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "Hi there!" {
		t.Errorf("out = %q", out)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if got.Temperature == nil || *got.Temperature != 0.3 || got.MaxTokens != 500 || got.Stream {
		t.Errorf("request = %+v", got)
	}
}

func TestComplete_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"c-1","choices":[]}`)
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL).Complete(context.Background(), ChatRequest{Model: "m"}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestStream(t *testing.T) {
	sse := ": keep-alive\n\n" +
		"data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\" world\"}}]}\n\n" +
		"data: [DONE]\n\n"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Error("stream = false, want true")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sse)
	}))
	defer srv.Close()

	s, err := newTestClient(srv.URL).Stream(context.Background(), ChatRequest{Model: "m", Messages: userMessage("hi")})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer s.Close()

	var toks []string
	for {
		tok, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		toks = append(toks, tok)
	}
	if len(toks) != 2 || toks[0] != "Hello" || toks[1] != " world" {
		t.Errorf("tokens = %q", toks)
	}
	// Next stays at EOF.
	if _, err := s.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("second EOF = %v", err)
	}
}

func TestStream_MissingDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"cut\"}}]}\n\n")
	}))
	defer srv.Close()

	s, err := newTestClient(srv.URL).Stream(context.Background(), ChatRequest{Model: "m"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer s.Close()

	s.Next()
	if _, err := s.Next(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("err = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		code      int
		auth      bool
		rateLimit bool
	}{
		{http.StatusUnauthorized, true, false},
		{http.StatusForbidden, true, false},
		{http.StatusTooManyRequests, false, true},
		{http.StatusBadGateway, false, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL).Complete(context.Background(), ChatRequest{Model: "m"})
			if err == nil {
				t.Fatal("expected error")
			}
			if IsAuth(err) != tt.auth {
				t.Errorf("IsAuth = %v, want %v", IsAuth(err), tt.auth)
			}
			if IsRateLimit(err) != tt.rateLimit {
				t.Errorf("IsRateLimit = %v, want %v", IsRateLimit(err), tt.rateLimit)
			}
		})
	}
}

func TestRateLimit_Retry(t *testing.T) {
	var attempt atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempt.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"id":"c-1","choices":[{"message":{"content":"ok"}}]}`)
	}))
	defer srv.Close()

	out, err := newTestClient(srv.URL).Complete(context.Background(), ChatRequest{Model: "m"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "ok" {
		t.Errorf("out = %q", out)
	}
	if got := attempt.Load(); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

func TestRateLimit_Exhausted(t *testing.T) {
	var attempt atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempt.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Complete(context.Background(), ChatRequest{Model: "m"})
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("error = %q, want it to contain %q", err.Error(), "rate limited")
	}
	if !IsRateLimit(err) {
		t.Error("wrapped error lost its rate-limit classification")
	}
	if got := attempt.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestWithPacing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL).WithPacing(0.001, 1)
	if _, err := c.Complete(context.Background(), ChatRequest{Model: "m"}); err != nil {
		t.Fatalf("first request: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Complete(ctx, ChatRequest{Model: "m"}); err == nil {
		t.Fatal("expected pacing to block past the deadline")
	}
}

func TestStream_ContextCancellation(t *testing.T) {
	handlerStarted := make(chan struct{})
	handlerDone := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(handlerStarted)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-handlerDone
	}))
	defer srv.Close()
	defer close(handlerDone)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		s, err := newTestClient(srv.URL).Stream(ctx, ChatRequest{Model: "m"})
		if err != nil {
			done <- err
			return
		}
		_, err = s.Next()
		s.Close()
		done <- err
	}()

	<-handlerStarted
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected error after context cancellation")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Stream did not return promptly after context cancellation")
	}
}
