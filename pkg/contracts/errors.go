package contracts

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures.
type ErrorKind string

const (
	KindSchemaMismatch           ErrorKind = "schema_mismatch"
	KindValidationExhausted      ErrorKind = "validation_exhausted"
	KindGeneratorUnavailable     ErrorKind = "generator_unavailable"
	KindMalformedGeneratorOutput ErrorKind = "malformed_generator_output"
	KindGuardrailBlocked         ErrorKind = "guardrail_blocked"
	KindInvalidRequest           ErrorKind = "invalid_request"
	KindOutputWriteFailed        ErrorKind = "output_write_failed"
)

// GenerationError is the typed error surfaced by the pipeline.
// errors.Is matches any GenerationError of the same Kind.
type GenerationError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func (e *GenerationError) Is(target error) bool {
	t, ok := target.(*GenerationError)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrSchemaMismatch           = &GenerationError{Kind: KindSchemaMismatch}
	ErrValidationExhausted      = &GenerationError{Kind: KindValidationExhausted}
	ErrGeneratorUnavailable     = &GenerationError{Kind: KindGeneratorUnavailable}
	ErrMalformedGeneratorOutput = &GenerationError{Kind: KindMalformedGeneratorOutput}
	ErrGuardrailBlocked         = &GenerationError{Kind: KindGuardrailBlocked}
	ErrInvalidRequest           = &GenerationError{Kind: KindInvalidRequest}
	ErrOutputWriteFailed        = &GenerationError{Kind: KindOutputWriteFailed}
)

// NewError builds a GenerationError of the given kind.
func NewError(kind ErrorKind, msg string, err error) *GenerationError {
	return &GenerationError{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind of the first GenerationError in err's chain, or "".
func KindOf(err error) ErrorKind {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}
