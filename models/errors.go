package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why fetching a product page failed
type ErrorKind string

const (
	KindInvalidURL ErrorKind = "invalid_url"
	KindNoData     ErrorKind = "no_data"
	KindParsing    ErrorKind = "parsing_error"
	KindTimeout    ErrorKind = "timeout"
	KindUnknown    ErrorKind = "unknown"
)

// Sentinels usable with errors.Is against any *FetchError of the same kind.
var (
	ErrInvalidURL = &FetchError{Kind: KindInvalidURL}
	ErrNoData     = &FetchError{Kind: KindNoData}
	ErrParsing    = &FetchError{Kind: KindParsing}
	ErrTimeout    = &FetchError{Kind: KindTimeout}
)

var (
	// ErrDuplicateProduct is returned when a URL is already tracked
	ErrDuplicateProduct = errors.New("product is already being tracked")
	// ErrItemNotFound is returned when an item id is unknown
	ErrItemNotFound = errors.New("monitored item not found")
	// ErrTaskNotFound is returned when a refresh task id is unknown
	ErrTaskNotFound = errors.New("refresh task not found")
)

// FetchError is the error returned by a failed product fetch
type FetchError struct {
	Kind ErrorKind
	URL  string
	Err  error
}

// NewFetchError builds a FetchError of the given kind
func NewFetchError(kind ErrorKind, url string, err error) *FetchError {
	return &FetchError{Kind: kind, URL: url, Err: err}
}

func (e *FetchError) Error() string {
	switch {
	case e.URL != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.URL, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.URL != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.URL)
	}
	return string(e.Kind)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a FetchError of the same kind
func (e *FetchError) Is(target error) bool {
	t, ok := target.(*FetchError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the ErrorKind carried by err, or KindUnknown
func KindOf(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}
