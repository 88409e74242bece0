package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the four failure classes. Every failure in a run
// unwraps to exactly one of these; all of them abort the run.
var (
	ErrMissingConfig = errors.New("missing configuration")
	ErrRequestFailed = errors.New("request failed")
	ErrInvalidSchema = errors.New("invalid schema")
	ErrStoreFailed   = errors.New("store operation failed")
)

// ConfigError reports a required setting that was absent or unusable.
type ConfigError struct {
	Name    string
	Wrapped error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Wrapped, e.Name)
}

func (e *ConfigError) Unwrap() error { return e.Wrapped }

// NewConfigError creates a ConfigError for the named setting.
func NewConfigError(name string) *ConfigError {
	return &ConfigError{Name: name, Wrapped: ErrMissingConfig}
}

// FetchError reports a failed page request. Status is zero when no
// response was received (transport failure, bad URL).
type FetchError struct {
	URL     string
	Status  int
	Wrapped error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch: unexpected status %d from %s", e.Status, e.URL)
	}
	return fmt.Sprintf("fetch: %s: %v", e.URL, e.Wrapped)
}

func (e *FetchError) Unwrap() error { return e.Wrapped }

// NewFetchError creates a FetchError. Pass status 0 with a cause for
// transport failures, or a non-zero status with a nil cause.
func NewFetchError(url string, status int, cause error) *FetchError {
	wrapped := error(ErrRequestFailed)
	if cause != nil {
		wrapped = fmt.Errorf("%w: %w", ErrRequestFailed, cause)
	}
	return &FetchError{URL: url, Status: status, Wrapped: wrapped}
}

// SchemaError reports a payload that does not conform to the record
// schema. Path names the offending field, e.g. "hydra:member[3].id".
type SchemaError struct {
	Path    string
	Reason  string
	Wrapped error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema: %s: %s", e.Path, e.Reason)
}

func (e *SchemaError) Unwrap() error { return e.Wrapped }

// NewSchemaError creates a SchemaError at the given field path.
func NewSchemaError(path, reason string) *SchemaError {
	return &SchemaError{Path: path, Reason: reason, Wrapped: ErrInvalidSchema}
}

// StoreError reports a failed store write or read, tagged with the
// gateway operation that failed.
type StoreError struct {
	Op      string
	Wrapped error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Wrapped)
}

func (e *StoreError) Unwrap() error { return e.Wrapped }

// NewStoreError wraps a driver error with the failing operation name.
func NewStoreError(op string, cause error) *StoreError {
	return &StoreError{Op: op, Wrapped: fmt.Errorf("%w: %w", ErrStoreFailed, cause)}
}
