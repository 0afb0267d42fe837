package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kailas-cloud/crd"
	"github.com/kailas-cloud/crd/envelope"
	"github.com/kailas-cloud/crd/internal/domain"
	"github.com/kailas-cloud/crd/internal/metrics"
	"github.com/kailas-cloud/crd/record"
)

const pageBody = `<result_set><hit_num>42</hit_num><results_get_position>1</results_get_position>
	<results_num>1</results_num><results_cd>0</results_cd><result><manual>
	<theme>音楽の調べ方</theme><reg-id>M-1</reg-id><guide>件名で探す</guide>
	<system><reg-date>20150101000000</reg-date><lst-date>20150102000000</lst-date>
	<sys-id>2000012345</sys-id><lib-id>1110001</lib-id><lib-name>国立国会図書館</lib-name><file-num>0</file-num></system>
	<url>https://crd.ndl.go.jp/reference/detail?page=man_view&amp;id=2000012345</url></manual></result></result_set>`

const errorBody = `<result_set><results_cd>1</results_cd><err_list><err_item>
	<err_code>0503</err_code><err_fld>ndc</err_fld><err_msg>【ndc】に使用できない値が指定されています。</err_msg>
	</err_item></err_list></result_set>`

// fakeSearcher resolves canned bodies and records the last request.
type fakeSearcher struct {
	body  string
	err   error
	last  *crd.Request
	pages int
}

func (f *fakeSearcher) Resolve(_ context.Context, req *crd.Request) (envelope.Outcome, error) {
	f.last = req
	if f.err != nil {
		return envelope.Outcome{}, f.err
	}
	if err := req.Validate(); err != nil {
		return envelope.Outcome{}, err
	}
	return envelope.Resolve(f.body), nil
}

func (f *fakeSearcher) SearchPages(_ context.Context, req *crd.Request, pages int) ([]*envelope.Page, error) {
	f.last, f.pages = req, pages
	if f.err != nil {
		return nil, f.err
	}
	out := make([]*envelope.Page, pages)
	for i := range out {
		p, err := envelope.Resolve(f.body).Result()
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

func newTestRouter(s *fakeSearcher) http.Handler {
	r := chi.NewRouter()
	NewServer(s, Options{DefaultLimit: 10, MaxPages: 3}, nil).Routes(r)
	return r
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, http.NoBody))
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return resp
}

func TestSearch_Success(t *testing.T) {
	s := &fakeSearcher{body: pageBody}
	rr := get(t, newTestRouter(s), "/search/manual?q=音楽&created_from=2010-04-01&updated_to=20240101&lib_group=ndl")

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body)
	}
	var resp struct {
		HitNum int            `json:"hit_num"`
		Count  int            `json:"results_num"`
		Pages  int            `json:"pages"`
		Counts map[string]int `json:"counts"`
		Items  []struct {
			Kind   string        `json:"kind"`
			Record record.Manual `json:"record"`
		} `json:"items"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.HitNum != 42 || resp.Count != 1 || resp.Pages != 1 {
		t.Errorf("header = %+v", resp)
	}
	if len(resp.Items) != 1 || resp.Items[0].Kind != "manual" || resp.Items[0].Record.Theme != "音楽の調べ方" {
		t.Errorf("items = %+v", resp.Items)
	}
	if resp.Counts["manual"] != 1 {
		t.Errorf("counts = %v", resp.Counts)
	}

	req := s.last
	if req.Type != crd.TypeManual {
		t.Errorf("Type = %q", req.Type)
	}
	if req.Query != `anywhere = "音楽"` {
		t.Errorf("Query = %q", req.Query)
	}
	if req.Limit != 10 {
		t.Errorf("Limit = %d, want default 10", req.Limit)
	}
	if req.CrtDateFrom == nil || req.CrtDateFrom.Format("20060102") != "20100401" {
		t.Errorf("CrtDateFrom = %v", req.CrtDateFrom)
	}
	if req.LstDateTo == nil || req.LstDateTo.Format("20060102") != "20240101" {
		t.Errorf("LstDateTo = %v", req.LstDateTo)
	}
	if req.LibGroup != crd.LibGroupNDL {
		t.Errorf("LibGroup = %q", req.LibGroup)
	}
}

func TestSearch_WhereClauses(t *testing.T) {
	tests := []struct {
		target string
		want   string
	}{
		{"/search?where=question+any+本+音楽&where=solution+%3D+0", "question any 本 音楽 and solution = 0"},
		{"/search?where=question+any+本&where=answer+any+村上春樹&op=or", "question any 本 or answer any 村上春樹"},
		{"/search?q=rust&where=ptn-type+%3D+学生&op=not", `anywhere = "rust" not ptn-type = 学生`},
		{"/search?query=question+any+raw&where=ignored+any+x", "question any raw"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			s := &fakeSearcher{body: pageBody}
			if rr := get(t, newTestRouter(s), tt.target); rr.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rr.Code, rr.Body)
			}
			if s.last.Query != tt.want {
				t.Errorf("Query = %q, want %q", s.last.Query, tt.want)
			}
		})
	}
}

func TestSearch_MultiplePages(t *testing.T) {
	s := &fakeSearcher{body: pageBody}
	rr := get(t, newTestRouter(s), "/search?q=x&pages=3&limit=1")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body)
	}
	if s.pages != 3 {
		t.Errorf("pages = %d, want 3", s.pages)
	}
	var resp SearchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Pages != 3 || resp.Count != 3 || len(resp.Items) != 3 {
		t.Errorf("resp = pages %d count %d items %d", resp.Pages, resp.Count, len(resp.Items))
	}
}

func TestSearch_ServiceError(t *testing.T) {
	rr := get(t, newTestRouter(&fakeSearcher{body: errorBody}), "/search?q=x")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rr.Code)
	}
	resp := decodeError(t, rr)
	if resp.Code != CodeServiceError {
		t.Errorf("code = %q", resp.Code)
	}
	want := []envelope.APIError{{Code: "0503", Field: "ndc", Message: "【ndc】に使用できない値が指定されています。"}}
	if diff := cmp.Diff(want, resp.Errors); diff != "" {
		t.Errorf("errors mismatch (-want +got):\n%s", diff)
	}
}

func TestSearch_ErrorMapping(t *testing.T) {
	timeout := &domain.TransportError{URL: "u", Err: context.DeadlineExceeded}
	refused := &domain.TransportError{URL: "u", Err: errors.New("connection refused")}

	tests := []struct {
		name     string
		searcher *fakeSearcher
		target   string
		status   int
		code     string
	}{
		{"parse failure", &fakeSearcher{body: "<html/>"}, "/search?q=x", http.StatusBadGateway, CodeUpstreamParse},
		{"timeout", &fakeSearcher{err: timeout}, "/search?q=x", http.StatusGatewayTimeout, CodeUpstreamTimeout},
		{"refused", &fakeSearcher{err: refused}, "/search?q=x", http.StatusBadGateway, CodeUpstreamFailure},
		{"no condition", &fakeSearcher{body: pageBody}, "/search", http.StatusBadRequest, CodeBadRequest},
		{"bad date", &fakeSearcher{body: pageBody}, "/search?q=x&created_from=yesterday", http.StatusBadRequest, CodeBadRequest},
		{"bad limit", &fakeSearcher{body: pageBody}, "/search?q=x&limit=ten", http.StatusBadRequest, CodeBadRequest},
		{"too many pages", &fakeSearcher{body: pageBody}, "/search?q=x&pages=4", http.StatusBadRequest, CodeBadRequest},
		{"bad op", &fakeSearcher{body: pageBody}, "/search?q=x&op=xor", http.StatusBadRequest, CodeBadRequest},
		{"bad clause", &fakeSearcher{body: pageBody}, "/search?where=question+like+x", http.StatusBadRequest, CodeMalformedRequest},
		{"unexpected", &fakeSearcher{err: errors.New("boom")}, "/search?q=x", http.StatusInternalServerError, CodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := get(t, newTestRouter(tt.searcher), tt.target)
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, tt.status, rr.Body)
			}
			if resp := decodeError(t, rr); resp.Code != tt.code {
				t.Errorf("code = %q, want %q", resp.Code, tt.code)
			}
		})
	}
}

func TestHealthCheck(t *testing.T) {
	rr := get(t, newTestRouter(&fakeSearcher{}), "/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["version"] == "" {
		t.Errorf("body = %v", body)
	}
}

func TestMetricsRoute(t *testing.T) {
	rr := get(t, newTestRouter(&fakeSearcher{}), "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr.Body.Len() == 0 {
		t.Error("expected metrics output")
	}
}

func TestSearch_MultiplePagesCountsOutcomes(t *testing.T) {
	success := metrics.ResolvedOutcomesTotal.WithLabelValues("success")
	service := metrics.ResolvedOutcomesTotal.WithLabelValues("service_error")
	parse := metrics.ResolvedOutcomesTotal.WithLabelValues("parse_error")

	before := testutil.ToFloat64(success)
	get(t, newTestRouter(&fakeSearcher{body: pageBody}), "/search?q=x&pages=3")
	if got := testutil.ToFloat64(success) - before; got != 3 {
		t.Errorf("success delta = %v, want 3", got)
	}

	before = testutil.ToFloat64(service)
	rr := get(t, newTestRouter(&fakeSearcher{body: errorBody}), "/search?q=x&pages=2")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rr.Code)
	}
	if got := testutil.ToFloat64(service) - before; got != 1 {
		t.Errorf("service_error delta = %v, want 1", got)
	}

	before = testutil.ToFloat64(parse)
	get(t, newTestRouter(&fakeSearcher{body: "<html/>"}), "/search?q=x&pages=2")
	if got := testutil.ToFloat64(parse) - before; got != 1 {
		t.Errorf("parse_error delta = %v, want 1", got)
	}
}
