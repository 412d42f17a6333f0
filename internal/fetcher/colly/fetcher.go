// Package collyfetcher downloads images to local files using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/toprgb/internal/metrics"
	"github.com/JakeFAU/toprgb/internal/toprgb"
)

const (
	defaultTimeout      = 15 * time.Second
	defaultMaxBodyBytes = 64 << 20
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// MaxBodyBytes truncates larger bodies. Zero uses 64 MiB.
	MaxBodyBytes int
}

// Fetcher implements toprgb.Fetcher using the Colly collector. Redirects are
// never followed by the transport; a Location header is honored for exactly
// one extra hop.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// visit is the outcome of a single request.
type visit struct {
	url        string
	statusCode int
	headers    http.Header
	bytes      int64
	saveErr    error
	fetchErr   error
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(cfg.MaxBodyBytes),
	)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	// 3xx and 4xx/5xx responses must reach OnResponse so the caller can
	// inspect Location and status.
	c.ParseHTTPErrorResponse = true
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)
	c.SetRedirectHandler(func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	})

	return &Fetcher{cfg: cfg, baseCollector: c}
}

// Fetch downloads request.URL into request.Dest. Responses with status 400 or
// above are reported as toprgb.ErrHTTPStatus after the body is discarded.
func (f *Fetcher) Fetch(ctx context.Context, request toprgb.FetchRequest) (toprgb.FetchResponse, error) {
	target, err := url.Parse(request.URL)
	if err != nil {
		return toprgb.FetchResponse{}, fmt.Errorf("parse url: %w", err)
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return toprgb.FetchResponse{}, fmt.Errorf("%w: %q", toprgb.ErrUnsupportedScheme, target.Scheme)
	}

	start := time.Now()
	result := toprgb.FetchResponse{URL: request.URL}

	v, err := f.visitOnce(ctx, request.URL, request.Dest)
	if err != nil {
		return result, err
	}
	if loc := v.headers.Get("Location"); loc != "" {
		next, err := target.Parse(loc)
		if err != nil {
			return result, fmt.Errorf("parse redirect location %q: %w", loc, err)
		}
		if v, err = f.visitOnce(ctx, next.String(), request.Dest); err != nil {
			return result, err
		}
		result.Redirected = true
	}

	result.FinalURL = v.url
	result.StatusCode = v.statusCode
	result.Headers = v.headers
	result.Bytes = v.bytes
	result.Duration = time.Since(start)
	if v.statusCode >= http.StatusBadRequest {
		return result, fmt.Errorf("%w: %d from %s", toprgb.ErrHTTPStatus, v.statusCode, v.url)
	}
	return result, nil
}

func (f *Fetcher) visitOnce(ctx context.Context, rawURL, dest string) (*visit, error) {
	collector := f.baseCollector.Clone()
	v := &visit{url: rawURL}
	configureCollectorHooks(collector, dest, v)

	start := time.Now()
	err := runCollector(ctx, collector, rawURL, v)
	metrics.ObserveFetch(v.statusCode, time.Since(start), v.bytes)
	if err != nil {
		return v, err
	}
	return v, nil
}

func configureCollectorHooks(hooks collectorHooks, dest string, v *visit) {
	hooks.OnResponse(func(r *colly.Response) {
		v.url = r.Request.URL.String()
		v.statusCode = r.StatusCode
		if r.Headers != nil {
			v.headers = r.Headers.Clone()
		} else {
			v.headers = http.Header{}
		}
		v.bytes = int64(len(r.Body))
		if r.StatusCode < http.StatusBadRequest {
			v.saveErr = r.Save(dest)
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		v.fetchErr = err
	})
}

func runCollector(ctx context.Context, collector *colly.Collector, rawURL string, v *visit) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		switch {
		case err != nil:
			return fmt.Errorf("colly visit failed: %w", err)
		case v.fetchErr != nil:
			return fmt.Errorf("colly response failed: %w", v.fetchErr)
		case v.saveErr != nil:
			return fmt.Errorf("write body: %w", v.saveErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
	}
}
