package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrConstruction signals an invalid query expression at build time.
	ErrConstruction = errors.New("invalid query expression")
	// ErrParse signals a response body that matches neither response schema.
	ErrParse = errors.New("malformed response")
	// ErrService signals that the search service rejected the request.
	ErrService = errors.New("service error")
	// ErrMalformedRecord signals a result slot that does not hold exactly one record.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrTransport signals a failure to obtain a response body.
	ErrTransport = errors.New("transport error")
	// ErrInvalidRequest signals request parameters rejected before sending.
	ErrInvalidRequest = errors.New("invalid request")
)

// TransportError wraps ErrTransport with the request URL and the cause.
type TransportError struct {
	URL string
	// StatusCode is the HTTP status, zero when no response was received.
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: GET %s: status %d: %v", ErrTransport.Error(), e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: GET %s: %v", ErrTransport.Error(), e.URL, e.Err)
}

func (e *TransportError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransport}
	}
	return []error{ErrTransport, e.Err}
}

// Timeout reports whether the failure was a deadline.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(e.Err, &te) && te.Timeout()
}

// InvalidRequestError wraps ErrInvalidRequest with the offending parameter.
type InvalidRequestError struct {
	Param  string
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidRequest.Error(), e.Param, e.Reason)
}

func (e *InvalidRequestError) Unwrap() error { return ErrInvalidRequest }
