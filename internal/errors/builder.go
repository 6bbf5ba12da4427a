package errors

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// ErrorBuilder assembles an error with a hint and structured details before
// marking it with a sentinel. It intentionally does not implement the error
// interface: Mark finishes the chain and returns the built error.
type ErrorBuilder struct {
	err error
}

// NewError starts a builder chain from a message
func NewError(msg string) *ErrorBuilder {
	return &ErrorBuilder{err: errors.New(msg)}
}

// WithError starts a builder chain wrapping an existing error
func WithError(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// WithHint attaches the caller-facing message surfaced in API responses
func (b *ErrorBuilder) WithHint(hint string) *ErrorBuilder {
	b.err = errors.WithHint(b.err, hint)
	return b
}

// WithReportableDetails attaches structured details safe to surface to the
// caller. Details that fail to marshal are dropped rather than failing the
// chain.
func (b *ErrorBuilder) WithReportableDetails(details map[string]any) *ErrorBuilder {
	marshaled, err := json.Marshal(details)
	if err != nil {
		return b
	}
	b.err = errors.WithSafeDetails(b.err, "__json__:%s", errors.Safe(string(marshaled)))
	return b
}

// Mark tags the error with a sentinel for errors.Is checks and returns it.
// Must be the last call in the chain.
func (b *ErrorBuilder) Mark(reference error) error {
	b.err = errors.Mark(b.err, reference)
	return b.err
}
