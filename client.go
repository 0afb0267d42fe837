package crd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/crd/envelope"
	"github.com/kailas-cloud/crd/internal/domain"
	"github.com/kailas-cloud/crd/internal/transport/crdhttp"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultConcurrency = 4
)

// Transport obtains the decoded response body for a request URL.
// Implementations must be safe for concurrent use.
type Transport interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Client is the CRD SDK entry point. It is safe for concurrent use.
type Client struct {
	endpoint    string
	transport   Transport
	resolveOpts []envelope.Option
	concurrency int
	obs         *observer
}

// New creates a Client.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		endpoint:    DefaultEndpoint,
		timeout:     defaultTimeout,
		concurrency: defaultConcurrency,
	}
	for _, o := range opts {
		o.apply(cfg)
	}

	if cfg.endpoint == "" {
		return nil, errors.New("crd: endpoint must not be empty")
	}
	if cfg.concurrency < 1 {
		return nil, fmt.Errorf("crd: concurrency must be positive, got %d", cfg.concurrency)
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	tr := cfg.transport
	if tr == nil {
		tr = crdhttp.New(crdhttp.Config{
			HTTPClient: cfg.httpClient,
			UserAgent:  cfg.userAgent,
			Timeout:    cfg.timeout,
			Logger:     obs.logger,
			Metrics:    obs.upstream,
		})
	}

	return &Client{
		endpoint:    cfg.endpoint,
		transport:   tr,
		resolveOpts: []envelope.Option{envelope.WithPolicy(cfg.policy)},
		concurrency: cfg.concurrency,
		obs:         obs,
	}, nil
}

// Endpoint returns the search API URL the client sends requests to.
func (c *Client) Endpoint() string { return c.endpoint }

// Resolve sends req and classifies the response. The returned error is
// non-nil only when no body was obtained (invalid request or transport
// failure); service and parse failures are reported through the Outcome.
func (c *Client) Resolve(ctx context.Context, req *Request) (envelope.Outcome, error) {
	start := time.Now()
	out, err := c.resolve(ctx, req)
	if err != nil {
		c.obs.observe("resolve", outcomeLabel(err), start, err)
		return envelope.Outcome{}, err
	}
	c.obs.observe("resolve", out.Kind().String(), start, out.Err())
	return out, nil
}

// Search sends req and returns the result page. Failures are
// *ServiceError, *ParseError, *TransportError or *InvalidRequestError.
func (c *Client) Search(ctx context.Context, req *Request) (*envelope.Page, error) {
	start := time.Now()
	page, err := c.search(ctx, req)
	c.obs.observe("search", outcomeLabel(err), start, err)
	return page, err
}

// SearchPages fetches pages consecutive pages of req concurrently, starting
// at req.Position. Pages are returned in order; the first failure cancels
// the remaining requests and is returned.
func (c *Client) SearchPages(ctx context.Context, req *Request, pages int) ([]*envelope.Page, error) {
	start := time.Now()
	out, err := c.searchPages(ctx, req, pages)
	c.obs.observe("search_pages", outcomeLabel(err), start, err)
	return out, err
}

func (c *Client) searchPages(ctx context.Context, req *Request, pages int) ([]*envelope.Page, error) {
	if pages < 1 {
		return nil, &domain.InvalidRequestError{Param: "pages", Reason: "must be positive"}
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit == 0 {
		limit = MaxLimit
	}

	out := make([]*envelope.Page, pages)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i := range pages {
		g.Go(func() error {
			page, err := c.search(gctx, req.page(i, limit))
			if err != nil {
				return fmt.Errorf("page %d: %w", i+1, err)
			}
			out[i] = page
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err //nolint:wrapcheck // already wrapped with the page number
	}
	return out, nil
}

func (c *Client) search(ctx context.Context, req *Request) (*envelope.Page, error) {
	out, err := c.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	return out.Result()
}

func (c *Client) resolve(ctx context.Context, req *Request) (envelope.Outcome, error) {
	if req == nil {
		return envelope.Outcome{}, &domain.InvalidRequestError{Param: "request", Reason: "must not be nil"}
	}
	if err := req.Validate(); err != nil {
		return envelope.Outcome{}, err
	}

	u := req.URL(c.endpoint)
	body, err := c.transport.Fetch(ctx, u)
	if err != nil {
		var te *domain.TransportError
		if !errors.As(err, &te) {
			err = &domain.TransportError{URL: u, Err: err}
		}
		return envelope.Outcome{}, err
	}
	return envelope.Resolve(body, c.resolveOpts...), nil
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return envelope.Success.String()
	case errors.Is(err, domain.ErrService):
		return envelope.ServiceFailure.String()
	case errors.Is(err, domain.ErrParse):
		return envelope.ParseFailure.String()
	case errors.Is(err, domain.ErrTransport):
		return "transport_error"
	case errors.Is(err, domain.ErrInvalidRequest):
		return "invalid_request"
	default:
		return "error"
	}
}
