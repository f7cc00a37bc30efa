// Package errs re-exports github.com/cockroachdb/errors and defines the error
// taxonomy shared by the validation pipeline.
//
// Stages wrap one of the sentinels below so callers can classify a failure
// with errors.Is while keeping the original message and stack:
//
//	return errs.Wrapf(errs.ErrNotFound, "table %q", tableID)
package errs

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New           = crdb.New
	Newf          = crdb.Newf
	Wrap          = crdb.Wrap
	Wrapf         = crdb.Wrapf
	WithStack     = crdb.WithStack
	WithMessage   = crdb.WithMessage
	WithMessagef  = crdb.WithMessagef
	Mark          = crdb.Mark
	CombineErrors = crdb.CombineErrors
)

// User-facing messages and details
var (
	WithHint       = crdb.WithHint
	WithHintf      = crdb.WithHintf
	WithDetail     = crdb.WithDetail
	WithDetailf    = crdb.WithDetailf
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

// Taxonomy sentinels. Only ErrNotFound, ErrUnsupportedFormat and ErrExtraction
// abort their scope; the rest degrade a report without aborting it.
var (
	// ErrNotFound: source file or reference table absent.
	ErrNotFound = New("not found")

	// ErrUnsupportedFormat: the source file extension is not a tabular format.
	ErrUnsupportedFormat = New("unsupported format")

	// ErrExtraction: the dataset is empty or cannot be parsed.
	ErrExtraction = New("extraction failed")

	// ErrComparisonDegraded: naming reconciliation was unavailable.
	ErrComparisonDegraded = New("comparison degraded")

	// ErrValidationCheck: a single type or quality check failed internally.
	ErrValidationCheck = New("validation check failed")

	// ErrEnrichmentUnavailable: the enrichment call failed or returned garbage.
	ErrEnrichmentUnavailable = New("enrichment unavailable")

	// ErrPersistence: snapshot save or load failed.
	ErrPersistence = New("persistence failure")

	// ErrAmbiguousTable: no target table was given and none could be inferred.
	ErrAmbiguousTable = New("ambiguous table selection")

	// ErrRateLimited: a remote call was throttled and may be retried.
	ErrRateLimited = New("rate limited")

	// ErrInvalidRequest: the caller supplied malformed input.
	ErrInvalidRequest = New("invalid request")

	// ErrCancelled: the run was cancelled between stages.
	ErrCancelled = New("cancelled")
)

var kinds = []struct {
	sentinel error
	name     string
}{
	{ErrNotFound, "NotFound"},
	{ErrUnsupportedFormat, "UnsupportedFormat"},
	{ErrExtraction, "ExtractionError"},
	{ErrComparisonDegraded, "ComparisonDegraded"},
	{ErrValidationCheck, "ValidationCheckFailure"},
	{ErrEnrichmentUnavailable, "EnrichmentUnavailable"},
	{ErrPersistence, "PersistenceFailure"},
	{ErrAmbiguousTable, "AmbiguousTableSelection"},
	{ErrRateLimited, "RateLimited"},
	{ErrInvalidRequest, "InvalidRequest"},
	{ErrCancelled, "Cancelled"},
}

// Kind returns the taxonomy name of err, or "Internal" when err does not wrap
// any known sentinel. A nil error has no kind.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if Is(err, k.sentinel) {
			return k.name
		}
	}
	return "Internal"
}

// IsFatal reports whether err aborts its scope (file or sheet).
func IsFatal(err error) bool {
	return IsAny(err, ErrNotFound, ErrUnsupportedFormat, ErrExtraction)
}

// NewNotFoundError creates a not-found error with a formatted message.
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewInvalidRequestError creates an invalid-request error with a formatted message.
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Wrap(ErrInvalidRequest, Newf(format, args...).Error())
}
