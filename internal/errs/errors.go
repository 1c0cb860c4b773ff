// Package errs provides the unified error type used across all of datasage.
//
// Every stage of the question pipeline (profiling, translation, validation,
// execution) wraps its failures into *errs.Error before returning them to
// callers. Callers and the HTTP layer use Kind, never message text, to
// decide behaviour, so presentation never pattern-matches error strings.
//
// Usage:
//
//	// In the execution adapter, wrap native errors:
//	return errs.Wrap(errs.ErrKindBinder, "query references unknown column", sqlErr)
//
//	// In a handler, check error kind:
//	if errs.IsNoDataset(err) {
//	    http.Error(w, "upload a dataset first", http.StatusConflict)
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises a pipeline failure without exposing stage-specific
// detail. Each kind is a stable, machine-checkable tag; the set mirrors the
// stages a question passes through.
type ErrKind int

const (
	ErrKindUnknown                ErrKind = iota
	ErrKindNoDataset                      // no dataset has been uploaded yet
	ErrKindEmptyQuestion                  // question text was blank
	ErrKindTranslationUnavailable         // model-assisted path failed or timed out
	ErrKindUnsafeQuery                    // safety validator rejected the query text
	ErrKindBinder                         // unknown column or function reference
	ErrKindCatalog                        // unknown relation reference
	ErrKindRuntime                        // engine runtime failure (type/arith mismatch)
	ErrKindInvalidInput                   // bad arguments from the caller
	ErrKindTimeout                        // context deadline / cancellation
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNoDataset:
		return "no_dataset"
	case ErrKindEmptyQuestion:
		return "empty_question"
	case ErrKindTranslationUnavailable:
		return "translation_unavailable"
	case ErrKindUnsafeQuery:
		return "unsafe_query"
	case ErrKindBinder:
		return "binder_error"
	case ErrKindCatalog:
		return "catalog_error"
	case ErrKindRuntime:
		return "runtime_error"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all datasage subsystems.
// Pipeline stages produce it; callers inspect it via the Is* predicates below.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error // original low-level error, preserved for logging only
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// --- Predicates ---

// IsNoDataset reports whether err means no dataset is registered yet.
func IsNoDataset(err error) bool {
	return KindOf(err) == ErrKindNoDataset
}

// IsEmptyQuestion reports whether err was caused by a blank question.
func IsEmptyQuestion(err error) bool {
	return KindOf(err) == ErrKindEmptyQuestion
}

// IsTranslationUnavailable reports whether the model-assisted translation
// path failed, timed out, or produced output that did not validate.
func IsTranslationUnavailable(err error) bool {
	return KindOf(err) == ErrKindTranslationUnavailable
}

// IsUnsafeQuery reports whether the safety validator rejected the query text.
func IsUnsafeQuery(err error) bool {
	return KindOf(err) == ErrKindUnsafeQuery
}

// IsBinder reports whether the engine rejected an unknown column or function.
func IsBinder(err error) bool {
	return KindOf(err) == ErrKindBinder
}

// IsCatalog reports whether the engine rejected an unknown relation.
func IsCatalog(err error) bool {
	return KindOf(err) == ErrKindCatalog
}

// IsRuntime reports whether the engine failed while evaluating the query.
func IsRuntime(err error) bool {
	return KindOf(err) == ErrKindRuntime
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return KindOf(err) == ErrKindInvalidInput
}

// IsTimeout reports whether err was caused by a deadline or cancellation.
func IsTimeout(err error) bool {
	return KindOf(err) == ErrKindTimeout
}

// KindOf extracts the ErrKind from any error in the chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
