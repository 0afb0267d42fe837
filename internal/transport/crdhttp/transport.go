// Package crdhttp fetches CRD search responses over HTTP and decodes them to text.
package crdhttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"regexp"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"github.com/kailas-cloud/crd/internal/domain"
	"github.com/kailas-cloud/crd/internal/metrics"
)

// DefaultUserAgent is sent when Config.UserAgent is empty.
const DefaultUserAgent = "crd-go"

// maxBodySize caps a response body; a full 200-item page is well under this.
const maxBodySize = 32 << 20

// Transport performs GET requests against the search endpoint.
type Transport struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
	logger    *zap.Logger
	metrics   *metrics.Upstream
}

// Config holds the transport settings.
type Config struct {
	HTTPClient *http.Client
	UserAgent  string
	// Timeout bounds one request including the body read. Zero means no limit
	// beyond the caller's context.
	Timeout time.Duration
	Logger  *zap.Logger
	// Metrics receives request metrics. Nil records nothing.
	Metrics *metrics.Upstream
}

// New creates a transport. Nil fields get defaults.
func New(cfg Config) *Transport {
	t := &Transport{
		client:    cfg.HTTPClient,
		userAgent: cfg.UserAgent,
		timeout:   cfg.Timeout,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}
	if t.client == nil {
		t.client = http.DefaultClient
	}
	if t.userAgent == "" {
		t.userAgent = DefaultUserAgent
	}
	if t.logger == nil {
		t.logger = zap.NewNop()
	}
	return t
}

// Fetch returns the decoded body of rawURL. The HTTP status is not
// inspected: the service reports failures in the body. Failures to obtain
// the body are *domain.TransportError.
func (t *Transport) Fetch(ctx context.Context, rawURL string) (string, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return "", &domain.TransportError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", t.userAgent)
	req.Header.Set("Accept", "application/xml, text/xml;q=0.9, */*;q=0.1")

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		t.fail(classify(err), start)
		return "", &domain.TransportError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		t.fail("read", start)
		return "", &domain.TransportError{URL: rawURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	body, err := DecodeBody(raw, resp.Header.Get("Content-Type"))
	if err != nil {
		t.fail("charset", start)
		return "", &domain.TransportError{URL: rawURL, StatusCode: resp.StatusCode, Err: err}
	}

	dur := time.Since(start)
	t.metrics.ObserveOK(dur, len(raw))

	t.logger.Debug("crd request completed",
		zap.String("url", rawURL),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(raw)),
		zap.Duration("duration", dur),
	)
	return body, nil
}

func (t *Transport) fail(errType string, start time.Time) {
	t.metrics.ObserveError(errType, time.Since(start))
}

func classify(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "network"
}

var utf8BOM = []byte("\xef\xbb\xbf")

var xmlDeclEncoding = regexp.MustCompile(`^\s*<\?xml[^>]*\bencoding\s*=\s*["']([A-Za-z0-9._:-]+)["']`)

// DecodeBody converts raw to UTF-8 text. The charset is taken from the
// Content-Type header, then from the XML declaration; without either the
// body is assumed to be UTF-8.
func DecodeBody(raw []byte, contentType string) (string, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	label := ""
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		label = params["charset"]
	}
	if label == "" {
		head := raw
		if len(head) > 256 {
			head = head[:256]
		}
		if m := xmlDeclEncoding.FindSubmatch(head); m != nil {
			label = string(m[1])
		}
	}
	if label == "" {
		return string(raw), nil
	}

	enc, name := charset.Lookup(label)
	if enc == nil {
		return "", fmt.Errorf("unsupported charset %q", label)
	}
	if name == "utf-8" {
		return string(raw), nil
	}
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("decode %s body: %w", name, err)
	}
	return string(out), nil
}
