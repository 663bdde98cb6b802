package answer

import (
	"context"
	"errors"
	"fmt"

	"github.com/kalambet/twind/internal/engine"
)

// ErrorKind classifies a generation failure.
type ErrorKind string

const (
	KindAuth      ErrorKind = "auth"
	KindRateLimit ErrorKind = "rate_limit"
	KindTimeout   ErrorKind = "timeout"
	KindProvider  ErrorKind = "provider"
)

// GenerationError wraps a provider failure with its kind.
type GenerationError struct {
	Kind ErrorKind
	Err  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed (%s): %v", e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func classify(err error) error {
	if err == nil {
		return nil
	}
	var ge *GenerationError
	if errors.As(err, &ge) {
		return err
	}
	kind := KindProvider
	switch {
	case errors.Is(err, engine.ErrAuth):
		kind = KindAuth
	case errors.Is(err, engine.ErrRateLimited):
		kind = KindRateLimit
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	}
	return &GenerationError{Kind: kind, Err: err}
}

// KindOf returns the kind of a generation error, or "" if err is not one.
func KindOf(err error) ErrorKind {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}
