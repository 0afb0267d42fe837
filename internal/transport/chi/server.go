// Package chi exposes the CRD client as a JSON HTTP gateway.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/crd"
	"github.com/kailas-cloud/crd/cql"
	"github.com/kailas-cloud/crd/envelope"
	"github.com/kailas-cloud/crd/internal/domain"
	logpkg "github.com/kailas-cloud/crd/internal/logger"
	"github.com/kailas-cloud/crd/internal/metrics"
	"github.com/kailas-cloud/crd/internal/version"
	"github.com/kailas-cloud/crd/record"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest       = "bad_request"
	CodeUnauthorized     = "unauthorized"
	CodeServiceError     = "service_error"
	CodeUpstreamParse    = "upstream_parse_error"
	CodeUpstreamTimeout  = "upstream_timeout"
	CodeUpstreamFailure  = "upstream_unavailable"
	CodeInternalError    = "internal_error"
	CodeMalformedRequest = "invalid_query"
)

// Searcher is the part of *crd.Client the gateway uses.
type Searcher interface {
	Resolve(ctx context.Context, req *crd.Request) (envelope.Outcome, error)
	SearchPages(ctx context.Context, req *crd.Request, pages int) ([]*envelope.Page, error)
}

// Options holds request defaults and limits.
type Options struct {
	DefaultLimit int
	MaxPages     int
}

// errorHandler tries to handle an error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server serves the gateway routes.
type Server struct {
	searcher      Searcher
	opts          Options
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates the gateway server.
func NewServer(searcher Searcher, opts Options, logger *zap.Logger) *Server {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 20
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{searcher: searcher, opts: opts, logger: logger}
	s.errorHandlers = []errorHandler{
		serviceErrorHandler,
		sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, CodeBadRequest, true),
		sentinelHandler(domain.ErrConstruction, http.StatusBadRequest, CodeMalformedRequest, true),
		sentinelHandler(domain.ErrParse, http.StatusBadGateway, CodeUpstreamParse, false),
		transportErrorHandler,
	}
	return s
}

// Routes registers the gateway routes on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/search", s.Search)
	r.Get("/search/{type}", s.Search)
	r.Get("/health", s.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Errors  []envelope.APIError `json:"errors,omitempty"`
}

// SearchResponse is the JSON body of a successful search.
type SearchResponse struct {
	HitNum   uint32         `json:"hit_num"`
	Position uint32         `json:"results_get_position"`
	Count    int            `json:"results_num"`
	Pages    int            `json:"pages"`
	Counts   map[string]int `json:"counts"`
	Items    []Item         `json:"items"`
}

// Item wraps one record with its kind.
type Item struct {
	Kind   string `json:"kind"`
	Record any    `json:"record"`
}

// Search handles GET /search and GET /search/{type}.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, pages, err := s.requestFromQuery(r)
	if err != nil {
		s.handleError(ctx, w, err)
		return
	}

	log := logpkg.FromContextOr(ctx, s.logger).With(zap.String("query", req.Query), zap.String("type", string(req.Type)))
	ctx = logpkg.ContextWithLogger(ctx, log)

	var result []*envelope.Page
	if pages == 1 {
		out, err := s.searcher.Resolve(ctx, req)
		if err != nil {
			s.handleError(ctx, w, err)
			return
		}
		metrics.ResolvedOutcomesTotal.WithLabelValues(out.Kind().String()).Inc()
		page, err := out.Result()
		if err != nil {
			s.handleError(ctx, w, err)
			return
		}
		result = []*envelope.Page{page}
	} else {
		result, err = s.searcher.SearchPages(ctx, req, pages)
		if err != nil {
			if kind, ok := outcomeOf(err); ok {
				metrics.ResolvedOutcomesTotal.WithLabelValues(kind.String()).Inc()
			}
			s.handleError(ctx, w, err)
			return
		}
		metrics.ResolvedOutcomesTotal.WithLabelValues(envelope.Success.String()).Add(float64(len(result)))
	}

	writeJSON(w, http.StatusOK, toSearchResponse(result))
}

// outcomeOf classifies a multi-page failure. Transport and validation
// failures never produced a body and are not counted.
func outcomeOf(err error) (envelope.OutcomeKind, bool) {
	var svcErr *envelope.ServiceError
	var parseErr *envelope.ParseError
	switch {
	case errors.As(err, &svcErr):
		return envelope.ServiceFailure, true
	case errors.As(err, &parseErr):
		return envelope.ParseFailure, true
	}
	return 0, false
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
		"commit":  version.Commit,
	})
}

func (s *Server) requestFromQuery(r *http.Request) (*crd.Request, int, error) {
	q := r.URL.Query()
	req := &crd.Request{
		Type:      crd.SearchType(firstNonEmpty(chi.URLParam(r, "type"), q.Get("type"))),
		LibID:     q.Get("lib_id"),
		LibGroup:  crd.LibGroup(q.Get("lib_group")),
		Sort:      q.Get("sort"),
		SortOrder: crd.SortOrder(q.Get("order")),
	}

	expr, err := expressionFromQuery(q.Get("q"), q["where"], q.Get("op"))
	if err != nil {
		return nil, 0, err
	}
	switch {
	case q.Get("query") != "":
		req.Query = q.Get("query")
	case expr != nil:
		req.Query = cql.Serialize(expr)
	}

	dates := []struct {
		param string
		dst   **time.Time
	}{
		{"created_from", &req.CrtDateFrom},
		{"created_to", &req.CrtDateTo},
		{"registered_from", &req.RegDateFrom},
		{"registered_to", &req.RegDateTo},
		{"updated_from", &req.LstDateFrom},
		{"updated_to", &req.LstDateTo},
	}
	for _, d := range dates {
		if v := q.Get(d.param); v != "" {
			t, err := parseDate(v)
			if err != nil {
				return nil, 0, &domain.InvalidRequestError{Param: d.param, Reason: err.Error()}
			}
			*d.dst = &t
		}
	}

	if req.Position, err = intParam(q.Get("position"), 0); err != nil {
		return nil, 0, &domain.InvalidRequestError{Param: "position", Reason: err.Error()}
	}
	if req.Limit, err = intParam(q.Get("limit"), s.opts.DefaultLimit); err != nil {
		return nil, 0, &domain.InvalidRequestError{Param: "limit", Reason: err.Error()}
	}
	pages, err := intParam(q.Get("pages"), 1)
	if err != nil || pages < 1 || pages > s.opts.MaxPages {
		return nil, 0, &domain.InvalidRequestError{
			Param:  "pages",
			Reason: "must be between 1 and " + strconv.Itoa(s.opts.MaxPages),
		}
	}
	return req, pages, nil
}

// expressionFromQuery builds a tree from the simple term q and the where
// clauses, joined with op (default and).
func expressionFromQuery(q string, where []string, op string) (cql.Expression, error) {
	b := cql.BooleanAnd
	if op != "" {
		var ok bool
		if b, ok = cql.ParseBoolean(op); !ok {
			return nil, &domain.InvalidRequestError{Param: "op", Reason: "must be and, or or not"}
		}
	}

	var exprs []cql.Expression
	if q != "" {
		e, err := cql.Leaf(cql.IndexAnywhere, cql.RelationEqual, cql.Phrase(q))
		if err != nil {
			return nil, err //nolint:wrapcheck // ConstructionError is mapped by the handler chain
		}
		exprs = append(exprs, e)
	}
	for _, w := range where {
		e, err := cql.ParseClause(w)
		if err != nil {
			return nil, err //nolint:wrapcheck // ConstructionError is mapped by the handler chain
		}
		exprs = append(exprs, e)
	}
	return cql.Fold(b, exprs...), nil
}

func toSearchResponse(pages []*envelope.Page) SearchResponse {
	resp := SearchResponse{Pages: len(pages), Counts: map[string]int{}, Items: []Item{}}
	for i, p := range pages {
		if i == 0 {
			resp.HitNum = p.HitNum
			resp.Position = p.Position
		}
		for it := range p.All() {
			resp.Items = append(resp.Items, Item{Kind: it.Kind().String(), Record: it})
			resp.Counts[it.Kind().String()]++
		}
	}
	resp.Count = len(resp.Items)
	return resp
}

func parseDate(v string) (time.Time, error) {
	for _, layout := range []string{"20060102", time.DateOnly} {
		if t, err := time.ParseInLocation(layout, v, record.JST); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("date must be YYYYMMDD or YYYY-MM-DD")
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, errors.New("must be an integer")
	}
	return n, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
// With detail set the full error text is returned to the client, otherwise
// only the sentinel message.
func sentinelHandler(sentinel error, status int, code string, detail bool) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		msg := sentinel.Error()
		if detail {
			msg = err.Error()
		}
		writeError(w, status, code, msg)
		return true
	}
}

// serviceErrorHandler passes the service error list through.
func serviceErrorHandler(w http.ResponseWriter, err error) bool {
	var svcErr *envelope.ServiceError
	if !errors.As(err, &svcErr) {
		return false
	}
	writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
		Code:    CodeServiceError,
		Message: svcErr.Error(),
		Errors:  svcErr.Errors,
	})
	return true
}

// transportErrorHandler distinguishes upstream timeouts from other failures.
func transportErrorHandler(w http.ResponseWriter, err error) bool {
	var te *domain.TransportError
	if !errors.As(err, &te) {
		return false
	}
	if te.Timeout() {
		writeError(w, http.StatusGatewayTimeout, CodeUpstreamTimeout, "upstream timed out")
		return true
	}
	writeError(w, http.StatusBadGateway, CodeUpstreamFailure, domain.ErrTransport.Error())
	return true
}

func (s *Server) handleError(ctx context.Context, w http.ResponseWriter, err error) {
	log := logpkg.FromContextOr(ctx, s.logger)
	log.Warn("search failed", zap.Error(err))
	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
