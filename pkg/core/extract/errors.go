package extract

import (
	"errors"
	"fmt"
)

// ErrDocumentUnreadable is reported when the service says it cannot read the document.
var ErrDocumentUnreadable = errors.New("document unreadable")

// SchemaError means the service output could not be recovered into a record.
type SchemaError struct {
	Stage   string
	Snippet string
	Cause   error
}

func (e *SchemaError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: unrecoverable output: %v (output: %q)", e.Stage, e.Cause, e.Snippet)
	}
	return fmt.Sprintf("%s: unrecoverable output (output: %q)", e.Stage, e.Snippet)
}

func (e *SchemaError) Unwrap() error { return e.Cause }

// Kind classifies an ExtractionError.
type Kind int

const (
	// KindTransient means every attempt hit a retryable fault and the ceiling was reached.
	KindTransient Kind = iota
	// KindPermanent means the failure was not retryable.
	KindPermanent
)

func (k Kind) String() string {
	if k == KindTransient {
		return "transient"
	}
	return "permanent"
}

// ExtractionError is a failed service call during extraction.
type ExtractionError struct {
	Kind     Kind
	Attempts int
	Cause    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed (%s, %d attempt(s)): %v", e.Kind, e.Attempts, e.Cause)
}

func (e *ExtractionError) Unwrap() error { return e.Cause }
