package crd

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/kailas-cloud/crd/cql"
	"github.com/kailas-cloud/crd/envelope"
	"github.com/kailas-cloud/crd/record"
)

// Finder is a fluent builder for searches over one record kind.
type Finder[T record.Item] struct {
	client *Client
	expr   cql.Expression
	req    Request
}

// Find starts a search for records of type T, e.g. Find[*record.Manual](c).
// Find[record.Item] searches every kind.
func Find[T record.Item](c *Client) *Finder[T] {
	var zero T
	return &Finder[T]{client: c, req: Request{Type: searchTypeOf(zero)}}
}

func searchTypeOf(v any) SearchType {
	switch v.(type) {
	case *record.Reference:
		return TypeReference
	case *record.Manual:
		return TypeManual
	case *record.Collection:
		return TypeCollection
	case *record.Profile:
		return TypeProfile
	default:
		return TypeAll
	}
}

// Where adds a condition. Repeated calls are combined with and.
func (f *Finder[T]) Where(expr cql.Expression) *Finder[T] {
	if f.expr == nil {
		f.expr = expr
	} else {
		f.expr = cql.And(f.expr, expr)
	}
	return f
}

// CreatedBetween bounds the record creation date. Zero times are ignored.
func (f *Finder[T]) CreatedBetween(from, to time.Time) *Finder[T] {
	f.req.CrtDateFrom, f.req.CrtDateTo = optTime(from), optTime(to)
	return f
}

// CreatedSince bounds the record creation date from below.
func (f *Finder[T]) CreatedSince(t time.Time) *Finder[T] {
	f.req.CrtDateFrom = optTime(t)
	return f
}

// UpdatedSince bounds the last update date from below.
func (f *Finder[T]) UpdatedSince(t time.Time) *Finder[T] {
	f.req.LstDateFrom = optTime(t)
	return f
}

// Library restricts results to one providing library code.
func (f *Finder[T]) Library(id string) *Finder[T] {
	f.req.LibID = id
	return f
}

// Group restricts results to a library group.
func (f *Finder[T]) Group(g LibGroup) *Finder[T] {
	f.req.LibGroup = g
	return f
}

// SortBy sets the sort key and direction.
func (f *Finder[T]) SortBy(key string, order SortOrder) *Finder[T] {
	f.req.Sort, f.req.SortOrder = key, order
	return f
}

// Offset sets the 1-based position of the first result.
func (f *Finder[T]) Offset(pos int) *Finder[T] {
	f.req.Position = pos
	return f
}

// Limit sets the maximum number of results.
func (f *Finder[T]) Limit(n int) *Finder[T] {
	f.req.Limit = n
	return f
}

// Request returns the request the builder would send.
func (f *Finder[T]) Request() *Request {
	req := f.req
	if f.expr != nil {
		req.Query = cql.Serialize(f.expr)
	}
	return &req
}

// Page executes the search and returns the whole page.
func (f *Finder[T]) Page(ctx context.Context) (*envelope.Page, error) {
	page, err := f.client.Search(ctx, f.Request())
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", f.req.Type, err)
	}
	return page, nil
}

// Do executes the search and returns the records of type T.
func (f *Finder[T]) Do(ctx context.Context) ([]T, error) {
	page, err := f.Page(ctx)
	if err != nil {
		return nil, err
	}
	return slices.Collect(envelope.Filter[T](page)), nil
}

func optTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
