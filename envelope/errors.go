package envelope

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/crd/internal/domain"
)

// APIError is one entry of a service error list.
type APIError struct {
	// Code is the service error code, e.g. "0101".
	Code string `json:"code"`
	// Field names the offending request parameter or query index. May be empty.
	Field string `json:"field"`
	// Message is the human readable description.
	Message string `json:"message"`
}

func (e APIError) Error() string { return e.Message }

// ServiceError is returned when the service rejects a request.
type ServiceError struct {
	StatusCode uint32     `json:"status_code"`
	Errors     []APIError `json:"errors"`
}

func (e *ServiceError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, ae := range e.Errors {
		msgs[i] = ae.Error()
	}
	return fmt.Sprintf("%s: %s", domain.ErrService.Error(), strings.Join(msgs, ", "))
}

func (e *ServiceError) Unwrap() error { return domain.ErrService }

// Codes returns the error codes in service order.
func (e *ServiceError) Codes() []string {
	codes := make([]string, len(e.Errors))
	for i, ae := range e.Errors {
		codes[i] = ae.Code
	}
	return codes
}

// ParseError is returned when a response body matches neither schema.
// It always describes the failure against the success schema.
type ParseError struct {
	// Path locates the offending element, empty for document-level failures.
	Path   string
	Reason string
	// Err is the underlying cause, if any.
	Err error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", domain.ErrParse.Error(), e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", domain.ErrParse.Error(), e.Path, e.Reason)
}

// Unwrap exposes both the sentinel and the cause to errors.Is/As.
func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{domain.ErrParse}
	}
	return []error{domain.ErrParse, e.Err}
}
