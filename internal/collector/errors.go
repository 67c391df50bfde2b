package collector

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// Fatal error kinds. Any of these aborts a run before records are reconciled.
var (
	ErrNoExtractAvailable = eris.New("no extract available")
	ErrCorruptExtract     = eris.New("corrupt extract")
	ErrParseFailure       = eris.New("parse failure")
)

// kindError tags a cause with one of the fatal kinds so that eris.Is(err, kind)
// holds while the message still reads "<kind>: <cause>".
type kindError struct {
	kind  error
	cause error
}

func newKindError(kind, cause error) error {
	return &kindError{kind: kind, cause: cause}
}

func (e *kindError) Error() string {
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *kindError) Is(target error) bool {
	return target == e.kind
}

func (e *kindError) Unwrap() error {
	return e.cause
}

// RecordError reports a failure to reconcile one record. The run continues.
type RecordError struct {
	OpportunityID string
	Err           error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %s: %v", e.OpportunityID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// BatchError reports a failure that escaped per-record handling inside a batch.
// Batch is 1-based.
type BatchError struct {
	Batch int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d: %v", e.Batch, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}
