package triage

import (
	"errors"
	"fmt"
)

// Sentinel errors matched with errors.Is.
var (
	ErrParse        = errors.New("no valid JSON object in model response")
	ErrValidation   = errors.New("invalid triage decision")
	ErrGateway      = errors.New("model gateway failure")
	ErrTriageFailed = errors.New("triage failed after retries")
)

// ParseError reports model output without a decodable JSON object.
type ParseError struct {
	Msg string
	Err error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse: %s: %v", e.Msg, e.Err)
	}
	return "parse: " + e.Msg
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// ValidationError reports a field missing from, or outside the closed set
// allowed for, the decoded object.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("validation: %s=%v: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// GatewayError wraps a transport or backend failure from the model gateway.
type GatewayError struct {
	Model string
	Err   error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway (model %s): %v", e.Model, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

func (e *GatewayError) Is(target error) bool { return target == ErrGateway }

// FailedError is returned once every attempt for an email has failed.
// Last is the cause of the final attempt.
type FailedError struct {
	Attempts int
	Last     error
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("triage failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *FailedError) Unwrap() error { return e.Last }

func (e *FailedError) Is(target error) bool { return target == ErrTriageFailed }

// retryable reports whether a fresh attempt with a smaller body may help.
func retryable(err error) bool {
	return errors.Is(err, ErrParse) || errors.Is(err, ErrValidation)
}
