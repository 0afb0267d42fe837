package crd

import (
	"net/url"
	"strconv"
	"time"

	"github.com/kailas-cloud/crd/cql"
	"github.com/kailas-cloud/crd/internal/domain"
	"github.com/kailas-cloud/crd/record"
)

// DefaultEndpoint is the CRD search API.
const DefaultEndpoint = "https://crd.ndl.go.jp/api/refsearch"

// MaxLimit is the largest page size the service accepts.
const MaxLimit = 200

// SearchType selects the record kinds a request searches.
type SearchType string

// Search types.
const (
	TypeAll        SearchType = "all"
	TypeReference  SearchType = "reference"
	TypeManual     SearchType = "manual"
	TypeCollection SearchType = "collection"
	TypeProfile    SearchType = "profile"
)

// TypeOf returns the search type that targets records of kind k.
func TypeOf(k record.Kind) SearchType { return SearchType(k) }

// LibGroup narrows a search to a class of libraries.
type LibGroup string

// Library groups.
const (
	LibGroupAll      LibGroup = "all"
	LibGroupNDL      LibGroup = "ndl"
	LibGroupPublic   LibGroup = "public"
	LibGroupAcademic LibGroup = "academic"
	LibGroupSpecial  LibGroup = "special"
	LibGroupSchool   LibGroup = "school"
	LibGroupArchives LibGroup = "archives"
)

// SortOrder is the direction of the sort key.
type SortOrder string

// Sort orders.
const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// Sort keys. Not every key applies to every search type.
const (
	SortFit         = "fit"
	SortRegID       = "reg-id"
	SortCrtDate     = "crt-date"
	SortRegDate     = "reg-date"
	SortLstDate     = "lst-date"
	SortAccessNum   = "access-num"
	SortApplauseNum = "applause-num"
	SortProKey      = "pro-key"
)

const dateLayout = "20060102"

// Request holds the parameters of one search. Zero fields are omitted and
// take the service defaults.
type Request struct {
	Type SearchType
	// Query is a CQL string, usually produced by cql.Serialize.
	Query string

	CrtDateFrom *time.Time
	CrtDateTo   *time.Time
	RegDateFrom *time.Time
	RegDateTo   *time.Time
	LstDateFrom *time.Time
	LstDateTo   *time.Time

	// LibID matches the providing library code exactly.
	LibID    string
	LibGroup LibGroup

	// Position is the 1-based index of the first record to return.
	Position int
	// Limit is the page size, at most MaxLimit.
	Limit     int
	Sort      string
	SortOrder SortOrder
}

// NewRequest returns a request for expr.
func NewRequest(expr cql.Expression) *Request {
	return &Request{Query: cql.Serialize(expr)}
}

// SimpleRequest returns a request matching term anywhere in a record.
func SimpleRequest(term string) *Request {
	return &Request{Query: cql.IndexAnywhere + " = " + cql.Phrase(term)}
}

// Validate rejects parameters the service would refuse.
func (r *Request) Validate() error {
	if r.Query == "" && !r.hasDateBound() {
		return &domain.InvalidRequestError{Param: "query", Reason: "query or a date bound is required"}
	}
	switch r.Type {
	case "", TypeAll, TypeReference, TypeManual, TypeCollection, TypeProfile:
	default:
		return &domain.InvalidRequestError{Param: "type", Reason: "unknown search type " + strconv.Quote(string(r.Type))}
	}
	switch r.LibGroup {
	case "", LibGroupAll, LibGroupNDL, LibGroupPublic, LibGroupAcademic, LibGroupSpecial, LibGroupSchool, LibGroupArchives:
	default:
		return &domain.InvalidRequestError{Param: "lib-group", Reason: "unknown library group " + strconv.Quote(string(r.LibGroup))}
	}
	switch r.SortOrder {
	case "", Asc, Desc:
	default:
		return &domain.InvalidRequestError{Param: "sort_order", Reason: "must be asc or desc"}
	}
	if r.Position < 0 {
		return &domain.InvalidRequestError{Param: "results_get_position", Reason: "must not be negative"}
	}
	if r.Limit < 0 || r.Limit > MaxLimit {
		return &domain.InvalidRequestError{Param: "results_num", Reason: "must be between 0 and " + strconv.Itoa(MaxLimit)}
	}
	return nil
}

func (r *Request) hasDateBound() bool {
	return r.CrtDateFrom != nil || r.CrtDateTo != nil ||
		r.RegDateFrom != nil || r.RegDateTo != nil ||
		r.LstDateFrom != nil || r.LstDateTo != nil
}

// Values encodes the request as query parameters.
func (r *Request) Values() url.Values {
	v := url.Values{}
	set := func(key, val string) {
		if val != "" {
			v.Set(key, val)
		}
	}
	setDate := func(key string, t *time.Time) {
		if t != nil {
			v.Set(key, t.Format(dateLayout))
		}
	}
	setInt := func(key string, n int) {
		if n > 0 {
			v.Set(key, strconv.Itoa(n))
		}
	}

	set("type", string(r.Type))
	set("query", r.Query)
	setDate("crt-date_from", r.CrtDateFrom)
	setDate("crt-date_to", r.CrtDateTo)
	setDate("reg-date_from", r.RegDateFrom)
	setDate("reg-date_to", r.RegDateTo)
	setDate("lst-date_from", r.LstDateFrom)
	setDate("lst-date_to", r.LstDateTo)
	set("lib-id", r.LibID)
	set("lib-group", string(r.LibGroup))
	setInt("results_get_position", r.Position)
	setInt("results_num", r.Limit)
	set("sort", r.Sort)
	set("sort_order", string(r.SortOrder))
	return v
}

// URL returns the request URL against endpoint, or DefaultEndpoint when empty.
func (r *Request) URL(endpoint string) string {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	qs := r.Values().Encode()
	if qs == "" {
		return endpoint
	}
	return endpoint + "?" + qs
}

// page returns a copy of r positioned at the n-th page (0-based) of size limit.
func (r *Request) page(n, limit int) *Request {
	cp := *r
	start := r.Position
	if start == 0 {
		start = 1
	}
	cp.Position = start + n*limit
	cp.Limit = limit
	return &cp
}
