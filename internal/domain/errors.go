package domain

import "fmt"

// FetchErrorKind classifies terminal fetch failures.
type FetchErrorKind string

const (
	// FetchHTTPError - a non-retryable HTTP status (4xx other than 429).
	FetchHTTPError FetchErrorKind = "http_error"
	// FetchRetriesExhausted - all retry attempts failed.
	FetchRetriesExhausted FetchErrorKind = "retries_exhausted"
	// FetchTimeout - the final attempt exceeded the per-request timeout.
	FetchTimeout FetchErrorKind = "timeout"
)

// FetchError is a terminal fetch failure for one URL.
type FetchError struct {
	Kind       FetchErrorKind
	URL        string
	StatusCode int // last observed status, 0 if none
	Attempts   int
	Log        []Attempt
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s: %s (status %d, %d attempts)", e.URL, e.Kind, e.StatusCode, e.Attempts)
	}
	return fmt.Sprintf("fetch %s: %s (%d attempts): %v", e.URL, e.Kind, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ExtractionError reports an invalid rule set, detected at compile time.
type ExtractionError struct {
	Field    string
	Selector string
	Err      error
}

func (e *ExtractionError) Error() string {
	if e.Selector != "" {
		return fmt.Sprintf("rule %q: malformed selector %q: %v", e.Field, e.Selector, e.Err)
	}
	return fmt.Sprintf("rule %q: %v", e.Field, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ExportError reports a failed export write. The destination is left
// untouched or removed, never half-written.
type ExportError struct {
	Path string
	Err  error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export %s: %v", e.Path, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }
