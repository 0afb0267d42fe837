// Package envelope classifies raw CRD search responses.
//
// The service reports success and failure only through the shape of the XML
// body. Resolve first decodes a body against the result-set schema; if that
// fails it tries the error-list schema, and if that fails too it reports the
// original result-set failure. Exactly one of the three outcomes is produced.
package envelope

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kailas-cloud/crd/record"
)

// OutcomeKind discriminates the result of Resolve.
type OutcomeKind int

const (
	// Success means the body is a result page.
	Success OutcomeKind = iota + 1
	// ServiceFailure means the body is a service error list.
	ServiceFailure
	// ParseFailure means the body matches neither schema.
	ParseFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case ServiceFailure:
		return "service_error"
	case ParseFailure:
		return "parse_error"
	default:
		return "unknown"
	}
}

// Outcome is the classification of one response body.
type Outcome struct {
	kind     OutcomeKind
	page     *Page
	svcErr   *ServiceError
	parseErr *ParseError
}

// Kind reports which outcome this is.
func (o Outcome) Kind() OutcomeKind { return o.kind }

// Page returns the result page, or nil unless Kind is Success.
func (o Outcome) Page() *Page { return o.page }

// ServiceError returns the service error, or nil unless Kind is ServiceFailure.
func (o Outcome) ServiceError() *ServiceError { return o.svcErr }

// ParseError returns the parse error, or nil unless Kind is ParseFailure.
func (o Outcome) ParseError() *ParseError { return o.parseErr }

// Err returns the failure as an error, nil on success.
func (o Outcome) Err() error {
	switch o.kind {
	case Success:
		return nil
	case ServiceFailure:
		return o.svcErr
	case ParseFailure:
		return o.parseErr
	default:
		return &ParseError{Reason: "response was not resolved"}
	}
}

// Result returns the page or the failure.
func (o Outcome) Result() (*Page, error) {
	if err := o.Err(); err != nil {
		return nil, err
	}
	return o.page, nil
}

// Option configures Resolve.
type Option func(*options)

type options struct {
	policy record.Policy
}

// WithPolicy sets how result slots holding several records are resolved.
// Default: record.Strict.
func WithPolicy(p record.Policy) Option {
	return func(o *options) { o.policy = p }
}

// Resolve classifies body. It never panics.
func Resolve(body string, opts ...Option) (out Outcome) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	defer func() {
		if r := recover(); r != nil {
			out = Outcome{kind: ParseFailure, parseErr: &ParseError{Reason: fmt.Sprintf("decoder panic: %v", r)}}
		}
	}()

	page, perr := decodePage(body, o.policy)
	if perr == nil {
		return Outcome{kind: Success, page: page}
	}
	if svcErr, err := DecodeErrors(body); err == nil {
		return Outcome{kind: ServiceFailure, svcErr: svcErr}
	}
	return Outcome{kind: ParseFailure, parseErr: perr}
}

// ResolveBytes is Resolve for a byte slice.
func ResolveBytes(body []byte, opts ...Option) Outcome {
	return Resolve(string(body), opts...)
}

type xmlPage struct {
	HitNum     *string          `xml:"hit_num"`
	Position   *string          `xml:"results_get_position"`
	Count      *string          `xml:"results_num"`
	StatusCode *string          `xml:"results_cd"`
	Results    []record.XMLSlot `xml:"result"`
}

// DecodePage decodes body against the result-set schema only.
// Failures are *ParseError.
func DecodePage(body string, p record.Policy) (*Page, error) {
	page, perr := decodePage(body, p)
	if perr != nil {
		return nil, perr
	}
	return page, nil
}

func decodePage(body string, p record.Policy) (*Page, *ParseError) {
	var raw xmlPage
	if err := unmarshal(body, &raw); err != nil {
		return nil, syntaxError(err)
	}

	hitNum, perr := requiredUint("hit_num", raw.HitNum)
	if perr != nil {
		return nil, perr
	}
	position, perr := requiredUint("results_get_position", raw.Position)
	if perr != nil {
		return nil, perr
	}
	count, perr := requiredUint("results_num", raw.Count)
	if perr != nil {
		return nil, perr
	}
	status, perr := requiredUint("results_cd", raw.StatusCode)
	if perr != nil {
		return nil, perr
	}

	items := make([]record.Item, 0, len(raw.Results))
	for i := range raw.Results {
		item, err := raw.Results[i].Item(fmt.Sprintf("result[%d]", i), p)
		if err != nil {
			return nil, fieldError(err)
		}
		items = append(items, item)
	}

	return &Page{
		HitNum:     hitNum,
		Position:   position,
		Count:      count,
		StatusCode: status,
		Items:      items,
	}, nil
}

type xmlErrorSet struct {
	StatusCode *string `xml:"results_cd"`
	List       *struct {
		Items []xmlAPIError `xml:"err_item"`
	} `xml:"err_list"`
}

type xmlAPIError struct {
	Code    *string `xml:"err_code"`
	Field   *string `xml:"err_fld"`
	Message *string `xml:"err_msg"`
}

// DecodeErrors decodes body against the error-list schema only.
// The status code must be non-zero and the list must hold at least one entry.
func DecodeErrors(body string) (*ServiceError, error) {
	var raw xmlErrorSet
	if err := unmarshal(body, &raw); err != nil {
		return nil, syntaxError(err)
	}

	status, perr := requiredUint("results_cd", raw.StatusCode)
	if perr != nil {
		return nil, perr
	}
	if status == 0 {
		return nil, &ParseError{Path: "results_cd", Reason: "zero status code in error list"}
	}
	if raw.List == nil {
		return nil, &ParseError{Path: "err_list", Reason: "missing field"}
	}
	if len(raw.List.Items) == 0 {
		return nil, &ParseError{Path: "err_list.err_item", Reason: "missing field"}
	}

	out := &ServiceError{StatusCode: status, Errors: make([]APIError, len(raw.List.Items))}
	for i, it := range raw.List.Items {
		path := fmt.Sprintf("err_list.err_item[%d]", i)
		switch {
		case it.Code == nil:
			return nil, &ParseError{Path: path + ".err_code", Reason: "missing field"}
		case it.Field == nil:
			return nil, &ParseError{Path: path + ".err_fld", Reason: "missing field"}
		case it.Message == nil:
			return nil, &ParseError{Path: path + ".err_msg", Reason: "missing field"}
		}
		out.Errors[i] = APIError{Code: *it.Code, Field: *it.Field, Message: *it.Message}
	}
	return out, nil
}

// unmarshal decodes the first element of body. body is already decoded text,
// so a declared encoding is not applied again.
func unmarshal(body string, v any) error {
	dec := xml.NewDecoder(strings.NewReader(body))
	dec.CharsetReader = func(_ string, r io.Reader) (io.Reader, error) { return r, nil }
	return dec.Decode(v)
}

func syntaxError(err error) *ParseError {
	if errors.Is(err, io.EOF) {
		return &ParseError{Reason: "no root element", Err: err}
	}
	return &ParseError{Reason: err.Error(), Err: err}
}

func fieldError(err error) *ParseError {
	var fe *record.FieldError
	if errors.As(err, &fe) {
		return &ParseError{Path: fe.Path, Reason: fe.Reason, Err: fe.Err}
	}
	return &ParseError{Reason: err.Error(), Err: err}
}

func requiredUint(name string, v *string) (uint32, *ParseError) {
	if v == nil {
		return 0, &ParseError{Path: name, Reason: "missing field"}
	}
	n, err := strconv.ParseUint(strings.TrimSpace(*v), 10, 32)
	if err != nil {
		return 0, &ParseError{Path: name, Reason: fmt.Sprintf("invalid unsigned integer %q", *v), Err: err}
	}
	return uint32(n), nil
}
