// Package explainer turns transactions into plain-language explanations
// using a generative model, and offers simplification, text-to-speech and
// free-form chat over the same model.
package explainer

import (
	"context"
	"errors"
	"fmt"

	"github.com/mbd888/txsentinel/internal/txn"
)

// Operation names, also used as circuit breaker keys and metric labels.
const (
	OpExplain  = "explain"
	OpSimplify = "simplify"
	OpSpeak    = "speak"
	OpChat     = "chat"
)

// Fixed texts shown in place of model output.
const (
	PlaceholderExplanation = "Failed to analyze transaction with AI."
	PlaceholderSuggestion  = "Please verify manually on Etherscan."
	MissingExplanation     = "No explanation available."
	MissingSuggestion      = "No suggestion available."
	PlaceholderSimplified  = "Could not simplify at this time."
	FallbackReply          = "Sorry, I encountered an error. Please try again."
)

// Explanation is the model's reading of one transaction.
type Explanation struct {
	Explanation string `json:"explanation"`
	Suggestion  string `json:"suggestion"`
}

// Placeholder returns the explanation attached to a record whose
// analysis failed.
func Placeholder() Explanation {
	return Explanation{Explanation: PlaceholderExplanation, Suggestion: PlaceholderSuggestion}
}

// Explainer is the AI collaborator. Speak may return nil audio with a nil
// error when the model produced no sound.
type Explainer interface {
	Explain(ctx context.Context, tx txn.RawTransaction) (Explanation, error)
	Simplify(ctx context.Context, text string) (string, error)
	Speak(ctx context.Context, text string) ([]byte, error)
	Chat(ctx context.Context, question, contextText string) (string, error)
}

var (
	// ErrCollaborator is matched by every *CallError.
	ErrCollaborator = errors.New("explainer: collaborator failure")

	// ErrNotConfigured is the cause reported when no API key is set.
	ErrNotConfigured = errors.New("GEMINI_API_KEY is not set")

	errEmptyResponse = errors.New("empty model response")
)

// CallError wraps a failed model call with the operation name.
type CallError struct {
	Op  string
	Err error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("explainer: %s failed: %v", e.Op, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

func (e *CallError) Is(target error) bool { return target == ErrCollaborator }

// Disabled is the Explainer used when no model is configured. Every call
// fails with ErrNotConfigured so callers fall back to placeholders.
type Disabled struct{}

var _ Explainer = Disabled{}

func (Disabled) Explain(context.Context, txn.RawTransaction) (Explanation, error) {
	return Explanation{}, &CallError{Op: OpExplain, Err: ErrNotConfigured}
}

func (Disabled) Simplify(context.Context, string) (string, error) {
	return "", &CallError{Op: OpSimplify, Err: ErrNotConfigured}
}

func (Disabled) Speak(context.Context, string) ([]byte, error) {
	return nil, &CallError{Op: OpSpeak, Err: ErrNotConfigured}
}

func (Disabled) Chat(context.Context, string, string) (string, error) {
	return "", &CallError{Op: OpChat, Err: ErrNotConfigured}
}
