package model

import (
	"fmt"
)

// Stable error kinds surfaced to API clients. Internal detail never crosses
// the handler boundary; clients get a kind plus a human-readable message.
const (
	KindMissingPrimaryDocument = "missing_primary_document"
	KindUnsupportedType        = "unsupported_type"
	KindTooLarge               = "too_large"
	KindTooManyPhotos          = "too_many_photos"
	KindEmptyMetadataField     = "empty_metadata_field"
	KindUnreadableDocument     = "unreadable_document"
	KindInferenceExhausted     = "inference_exhausted"
	KindInferenceRejected      = "inference_rejected"
	KindUnparseableExtraction  = "unparseable_extraction"
	KindPipelineTimeout        = "pipeline_timeout"
)

// IntakeError reports invalid caller input. Never retried; always fixable by
// the caller.
type IntakeError struct {
	Kind    string
	Message string
}

func (e *IntakeError) Error() string {
	return fmt.Sprintf("intake: %s", e.Message)
}

// NormalizationError reports an unreadable or corrupt document. Fatal for the
// run: no partial inference is attempted.
type NormalizationError struct {
	Source string // filename of the offending document
	Err    error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize %s: %v", e.Source, e.Err)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

func (e *NormalizationError) ErrorKind() string { return KindUnreadableDocument }

// InferenceError reports a failed provider call. Exhausted is true when the
// retry ceiling was hit on a transient failure; false means the provider
// rejected the request outright (auth, malformed payload, policy).
type InferenceError struct {
	Exhausted bool
	Attempts  int
	Err       error
}

func (e *InferenceError) Error() string {
	if e.Exhausted {
		return fmt.Sprintf("inference: retries exhausted after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("inference: request rejected: %v", e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

func (e *InferenceError) ErrorKind() string {
	if e.Exhausted {
		return KindInferenceExhausted
	}
	return KindInferenceRejected
}

// ExtractionError reports a provider response that could not be interpreted
// as any reasonable structure. Partial responses do not produce this error;
// they degrade into MissingInformation instead.
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction: unparseable response: %v", e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func (e *ExtractionError) ErrorKind() string { return KindUnparseableExtraction }

// PipelineError reports a run-level failure, currently only the end-to-end
// timeout.
type PipelineError struct {
	Kind string
	Err  error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline: %s: %v", e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

func (e *PipelineError) ErrorKind() string { return e.Kind }

// Kinder is implemented by errors that carry a stable client-facing kind.
type Kinder interface {
	ErrorKind() string
}

// ErrorKind returns the stable kind for err, or "internal" when the error
// does not carry one.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	type unwrapper interface{ Unwrap() error }
	for e := err; e != nil; {
		if ie, ok := e.(*IntakeError); ok {
			return ie.Kind
		}
		if k, ok := e.(Kinder); ok {
			return k.ErrorKind()
		}
		u, ok := e.(unwrapper)
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return "internal"
}
