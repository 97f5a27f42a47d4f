package dataprocessing

import "fmt"

// IngestionErrorKind classifies why an upload could not become a TripTable.
type IngestionErrorKind int

const (
	SizeExceeded IngestionErrorKind = iota + 1
	EmptyResult
	DecodeError
)

func (k IngestionErrorKind) String() string {
	switch k {
	case SizeExceeded:
		return "SizeExceeded"
	case EmptyResult:
		return "EmptyResult"
	case DecodeError:
		return "DecodeError"
	default:
		return fmt.Sprintf("IngestionErrorKind(%d)", int(k))
	}
}

// IngestionError aborts a load. No table is returned alongside it.
type IngestionError struct {
	Kind    IngestionErrorKind
	Message string
	Err     error
}

func (e *IngestionError) Error() string {
	msg := e.Kind.String()
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *IngestionError) Unwrap() error { return e.Err }

// Is matches any IngestionError of the same kind, so the sentinels below
// work with errors.Is.
func (e *IngestionError) Is(target error) bool {
	t, ok := target.(*IngestionError)
	return ok && t.Kind == e.Kind
}

// AnalysisErrorKind classifies a failed analysis. Analysis errors never
// invalidate the table they were computed on.
type AnalysisErrorKind int

const (
	ColumnNotFound AnalysisErrorKind = iota + 1
	InvalidAggregationRequest
)

func (k AnalysisErrorKind) String() string {
	switch k {
	case ColumnNotFound:
		return "ColumnNotFound"
	case InvalidAggregationRequest:
		return "InvalidAggregationRequest"
	default:
		return fmt.Sprintf("AnalysisErrorKind(%d)", int(k))
	}
}

// AnalysisError reports a problem local to one analysis request.
type AnalysisError struct {
	Kind    AnalysisErrorKind
	Column  string
	Message string
}

func (e *AnalysisError) Error() string {
	if e.Kind == ColumnNotFound {
		return fmt.Sprintf("%s: column %q not found", e.Kind, e.Column)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AnalysisError) Is(target error) bool {
	t, ok := target.(*AnalysisError)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrSizeExceeded   = &IngestionError{Kind: SizeExceeded}
	ErrEmptyResult    = &IngestionError{Kind: EmptyResult}
	ErrDecode         = &IngestionError{Kind: DecodeError}
	ErrColumnNotFound = &AnalysisError{Kind: ColumnNotFound}
	ErrInvalidRequest = &AnalysisError{Kind: InvalidAggregationRequest}
)

func columnNotFound(column string) error {
	return &AnalysisError{Kind: ColumnNotFound, Column: column}
}

func invalidRequest(format string, args ...any) error {
	return &AnalysisError{Kind: InvalidAggregationRequest, Message: fmt.Sprintf(format, args...)}
}
