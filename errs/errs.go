// Package errs defines the error taxonomy shared by all backend services.
// Every failure surfaced to a caller carries one of four kinds so the
// failing subsystem is always identifiable without inspecting internals.
package errs

import (
	"errors"
	"fmt"
)

type Kind string

const (
	// KindConfiguration covers invalid input caught before any external
	// call: bad mode sets, unknown provider/model pairings, invalid
	// resume fields, operations attempted from the wrong session status.
	KindConfiguration Kind = "configuration"

	// KindAIProvider covers any failure of a language-model call:
	// credentials, quota, transport, or output that stays unusable after
	// the parser fallbacks. Content-generating calls are never retried.
	KindAIProvider Kind = "ai_provider"

	// KindDataStore covers persistence failures that survive the store's
	// internal retry budget.
	KindDataStore Kind = "data_store"

	// KindCommunication covers media capture/storage failures not
	// attributable to the database, such as an unwritable media path.
	KindCommunication Kind = "communication"
)

// Error is the single error shape used across the backend: a kind, a
// human-readable message naming what failed, and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause. A nil cause is
// allowed and behaves like New.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func Wrapf(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf reports the kind of err, unwrapping as needed. It returns the
// empty kind for nil and for errors that never passed through this
// package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsConfiguration(err error) bool { return KindOf(err) == KindConfiguration }
func IsAIProvider(err error) bool    { return KindOf(err) == KindAIProvider }
func IsDataStore(err error) bool     { return KindOf(err) == KindDataStore }
func IsCommunication(err error) bool { return KindOf(err) == KindCommunication }
