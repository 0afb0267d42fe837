package crd

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kailas-cloud/crd/cql"
	"github.com/kailas-cloud/crd/envelope"
	"github.com/kailas-cloud/crd/record"
)

func readFixture(t *testing.T, name string) string {
	t.Helper()
	b, err := os.ReadFile("testdata/" + name)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return string(b)
}

// fakeTransport serves canned bodies and records requested URLs.
type fakeTransport struct {
	mu   sync.Mutex
	urls []string
	fn   func(url string) (string, error)
}

func (f *fakeTransport) Fetch(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	f.urls = append(f.urls, url)
	f.mu.Unlock()
	return f.fn(url)
}

func staticTransport(body string) *fakeTransport {
	return &fakeTransport{fn: func(string) (string, error) { return body, nil }}
}

func TestNew_Defaults(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Endpoint() != DefaultEndpoint {
		t.Errorf("Endpoint = %q, want %q", c.Endpoint(), DefaultEndpoint)
	}
	if c.concurrency != defaultConcurrency {
		t.Errorf("concurrency = %d, want %d", c.concurrency, defaultConcurrency)
	}
}

func TestNew_InvalidOptions(t *testing.T) {
	if _, err := New(WithEndpoint("")); err == nil {
		t.Error("expected error for empty endpoint")
	}
	if _, err := New(WithConcurrency(0)); err == nil {
		t.Error("expected error for zero concurrency")
	}
}

func TestClient_Search_OverHTTP(t *testing.T) {
	fixture := readFixture(t, "references.xml")
	var gotQuery, gotType, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("query")
		gotType = r.URL.Query().Get("type")
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/xml; charset=UTF-8")
		_, _ = w.Write([]byte(fixture))
	}))
	defer srv.Close()

	c, err := New(WithEndpoint(srv.URL), WithUserAgent("crd-test"), WithTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	expr := cql.MustAny(cql.IndexQuestion, "本", "音楽").And(cql.MustEqual(cql.IndexSolution, "0"))
	req := NewRequest(expr)
	req.Type = TypeReference

	page, err := c.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if gotQuery != "question any 本 音楽 and solution = 0" {
		t.Errorf("query = %q", gotQuery)
	}
	if gotType != "reference" {
		t.Errorf("type = %q", gotType)
	}
	if gotUA != "crd-test" {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if page.HitNum != 2 || page.Len() != 2 {
		t.Fatalf("page = %d hits, %d items, want 2, 2", page.HitNum, page.Len())
	}
	refs := slices.Collect(page.References())
	if len(refs) != 1 || refs[0].RegID != "埼熊-2011-001" {
		t.Errorf("references = %+v", refs)
	}
	if refs[0].Solution == nil || !*refs[0].Solution {
		t.Errorf("Solution = %v, want true", refs[0].Solution)
	}
}

func TestClient_Search_ServiceError(t *testing.T) {
	c, _ := New(WithTransport(staticTransport(readFixture(t, "error.xml"))))

	_, err := c.Search(context.Background(), SimpleRequest("x"))
	if !errors.Is(err, ErrService) {
		t.Fatalf("err = %v, want ErrService", err)
	}
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("err = %T, want *ServiceError", err)
	}
	if svcErr.Errors[0].Code != "0101" {
		t.Errorf("code = %q", svcErr.Errors[0].Code)
	}
}

func TestClient_Search_ParseError(t *testing.T) {
	c, _ := New(WithTransport(staticTransport("<html>maintenance</html>")))

	_, err := c.Search(context.Background(), SimpleRequest("x"))
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *ParseError", err)
	}
	if errors.Is(err, ErrService) {
		t.Error("parse failure must not match ErrService")
	}
}

func TestClient_Search_TransportErrorWrapped(t *testing.T) {
	cause := errors.New("boom")
	tr := &fakeTransport{fn: func(string) (string, error) { return "", cause }}
	c, _ := New(WithTransport(tr))

	_, err := c.Search(context.Background(), SimpleRequest("x"))
	if !errors.Is(err, ErrTransport) || !errors.Is(err, cause) {
		t.Fatalf("err = %v, want ErrTransport wrapping cause", err)
	}
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %T, want *TransportError", err)
	}
	if !strings.HasPrefix(te.URL, DefaultEndpoint+"?") {
		t.Errorf("URL = %q", te.URL)
	}
}

func TestClient_Search_InvalidRequest(t *testing.T) {
	tr := staticTransport("")
	c, _ := New(WithTransport(tr))

	tests := []struct {
		name string
		req  *Request
	}{
		{"nil", nil},
		{"empty", &Request{}},
		{"limit", &Request{Query: "anywhere = x", Limit: 201}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Search(context.Background(), tt.req)
			if !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("err = %v, want ErrInvalidRequest", err)
			}
		})
	}
	if len(tr.urls) != 0 {
		t.Errorf("transport called %d times for invalid requests", len(tr.urls))
	}
}

func TestClient_Resolve(t *testing.T) {
	tests := []struct {
		body string
		want envelope.OutcomeKind
	}{
		{readFixture(t, "references.xml"), envelope.Success},
		{readFixture(t, "error.xml"), envelope.ServiceFailure},
		{"", envelope.ParseFailure},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			c, _ := New(WithTransport(staticTransport(tt.body)))
			out, err := c.Resolve(context.Background(), SimpleRequest("x"))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out.Kind() != tt.want {
				t.Errorf("Kind = %s, want %s", out.Kind(), tt.want)
			}
		})
	}
}

func TestClient_RecordPolicy(t *testing.T) {
	body := `<result_set><hit_num>1</hit_num><results_get_position>1</results_get_position>
		<results_num>1</results_num><results_cd>0</results_cd><result>
		<manual><theme>t</theme><reg-id>r</reg-id><guide>g</guide>
			<system><reg-date>20150101000000</reg-date><lst-date>20150101000000</lst-date>
			<sys-id>1</sys-id><lib-id>2</lib-id><lib-name>n</lib-name><file-num>0</file-num></system>
			<url>u</url></manual>
		<collection><col-name>c</col-name><pro-key>p</pro-key><reg-id>r</reg-id><outline>o</outline>
			<system><reg-date>20150101000000</reg-date><lst-date>20150101000000</lst-date>
			<sys-id>1</sys-id><lib-id>2</lib-id><lib-name>n</lib-name><file-num>0</file-num></system>
			<url>u</url></collection>
		</result></result_set>`

	strict, _ := New(WithTransport(staticTransport(body)))
	if _, err := strict.Search(context.Background(), SimpleRequest("x")); !errors.Is(err, ErrMalformedRecord) {
		t.Errorf("strict err = %v, want ErrMalformedRecord", err)
	}

	lenient, _ := New(WithTransport(staticTransport(body)), WithRecordPolicy(record.Lenient))
	page, err := lenient.Search(context.Background(), SimpleRequest("x"))
	if err != nil {
		t.Fatalf("lenient: %v", err)
	}
	if page.Items[0].Kind() != record.KindManual {
		t.Errorf("Kind = %s, want manual", page.Items[0].Kind())
	}
}

func TestClient_SearchPages(t *testing.T) {
	fixture := readFixture(t, "references.xml")
	var inFlight, peak atomic.Int32
	tr := &fakeTransport{fn: func(string) (string, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return fixture, nil
	}}
	c, _ := New(WithTransport(tr), WithConcurrency(2))

	req := SimpleRequest("本")
	req.Limit = 50
	pages, err := c.SearchPages(context.Background(), req, 5)
	if err != nil {
		t.Fatalf("SearchPages: %v", err)
	}
	if len(pages) != 5 {
		t.Fatalf("pages = %d, want 5", len(pages))
	}
	for i, p := range pages {
		if p == nil {
			t.Fatalf("page %d is nil", i)
		}
	}
	if peak.Load() > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak.Load())
	}

	var positions []string
	for _, u := range tr.urls {
		i := strings.Index(u, "results_get_position=")
		positions = append(positions, strings.SplitN(u[i+len("results_get_position="):], "&", 2)[0])
	}
	slices.Sort(positions)
	want := []string{"1", "101", "151", "201", "51"}
	if !slices.Equal(positions, want) {
		t.Errorf("positions = %v, want %v", positions, want)
	}
}

func TestClient_SearchPages_FirstErrorWins(t *testing.T) {
	fixture := readFixture(t, "references.xml")
	errorBody := readFixture(t, "error.xml")
	tr := &fakeTransport{fn: func(u string) (string, error) {
		if strings.Contains(u, "results_get_position=3") {
			return errorBody, nil
		}
		return fixture, nil
	}}
	c, _ := New(WithTransport(tr))

	req := SimpleRequest("x")
	req.Limit = 1
	_, err := c.SearchPages(context.Background(), req, 4)
	if !errors.Is(err, ErrService) {
		t.Fatalf("err = %v, want ErrService", err)
	}
	if !strings.Contains(err.Error(), "page 3") {
		t.Errorf("err = %q, want page number", err)
	}

	if _, err := c.SearchPages(context.Background(), req, 0); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("pages=0 err = %v, want ErrInvalidRequest", err)
	}
}

func TestClient_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(WithTransport(staticTransport(readFixture(t, "error.xml"))), WithPrometheus(reg))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, _ = c.Search(context.Background(), SimpleRequest("x"))
	_, _ = c.Search(context.Background(), &Request{})

	ops := c.obs.metrics.operations
	if got := testutil.ToFloat64(ops.WithLabelValues("search", "service_error")); got != 1 {
		t.Errorf("search/service_error = %v, want 1", got)
	}
	if got := testutil.ToFloat64(ops.WithLabelValues("search", "invalid_request")); got != 1 {
		t.Errorf("search/invalid_request = %v, want 1", got)
	}

	// A second client on the same registry reuses the collectors.
	c2, err := New(WithTransport(staticTransport(readFixture(t, "references.xml"))), WithPrometheus(reg))
	if err != nil {
		t.Fatalf("second New: %v", err)
	}
	_, _ = c2.Search(context.Background(), SimpleRequest("x"))
	if got := testutil.ToFloat64(ops.WithLabelValues("search", "success")); got != 1 {
		t.Errorf("shared search/success = %v, want 1", got)
	}
}

func TestClient_UpstreamMetricsFollowRegisterer(t *testing.T) {
	body := readFixture(t, "references.xml")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	c, err := New(WithEndpoint(srv.URL), WithPrometheus(reg))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Search(context.Background(), SimpleRequest("x")); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if n, err := testutil.GatherAndCount(reg, "crd_upstream_requests_total"); err != nil || n != 1 {
		t.Errorf("crd_upstream_requests_total series = %d, %v; want 1", n, err)
	}

	plain, err := New(WithEndpoint(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if plain.obs.upstream != nil {
		t.Error("client without WithPrometheus carries upstream metrics")
	}
	if _, err := plain.Search(context.Background(), SimpleRequest("x")); err != nil {
		t.Fatalf("Search without metrics: %v", err)
	}
}
