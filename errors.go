package crd

import (
	"github.com/kailas-cloud/crd/envelope"
	"github.com/kailas-cloud/crd/internal/domain"
	"github.com/kailas-cloud/crd/record"
)

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrConstruction    = domain.ErrConstruction
	ErrParse           = domain.ErrParse
	ErrService         = domain.ErrService
	ErrMalformedRecord = domain.ErrMalformedRecord
	ErrTransport       = domain.ErrTransport
	ErrInvalidRequest  = domain.ErrInvalidRequest
)

// Typed errors. Use errors.As() to inspect.
type (
	ServiceError        = envelope.ServiceError
	APIError            = envelope.APIError
	ParseError          = envelope.ParseError
	MalformedError      = record.MalformedError
	TransportError      = domain.TransportError
	InvalidRequestError = domain.InvalidRequestError
)
