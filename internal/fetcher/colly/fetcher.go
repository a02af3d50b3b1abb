// Package collyfetcher fetches quotes.net catalog and movie pages with gocolly.
package collyfetcher

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/quotes-crawler/internal/crawler"
	"github.com/JakeFAU/quotes-crawler/internal/fetcher/extract"
	"github.com/JakeFAU/quotes-crawler/internal/metrics"
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	Headers       http.Header
}

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.URL, e.StatusCode)
}

// Fetcher implements crawler.PageFetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// response is what the hooks capture from one visit.
type response struct {
	url    string
	status int
	body   []byte
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	transport := newHTTPTransport()
	c.WithTransport(transport)
	return &Fetcher{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
	}
}

// Fetch downloads a movie page and extracts its label and quotes.
func (f *Fetcher) Fetch(ctx context.Context, url string) (crawler.Page, error) {
	start := time.Now()
	resp, err := f.visit(ctx, url)
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveFetch(url, statusLabel(resp.status, err), duration)
		return crawler.Page{URL: url, StatusCode: resp.status, Duration: duration}, err
	}
	metrics.ObserveFetch(url, statusLabel(resp.status, nil), duration)

	detail, err := extract.ParseDetail(bytes.NewReader(resp.body))
	if err != nil {
		return crawler.Page{URL: url, StatusCode: resp.status, Duration: duration, Body: resp.body}, err
	}
	return crawler.Page{
		URL:        resp.url,
		StatusCode: resp.status,
		Label:      detail.Label,
		Quotes:     detail.Quotes,
		Duration:   duration,
		Body:       resp.body,
	}, nil
}

func (f *Fetcher) visit(ctx context.Context, url string) (response, error) {
	var (
		result   response
		fetchErr error
	)
	collector := f.buildCollector(&result, &fetchErr)
	if err := f.runCollector(ctx, collector, url, &fetchErr); err != nil {
		if ctx.Err() != nil {
			// the visit may still be writing into result
			return response{}, err
		}
		return result, err
	}
	return result, nil
}

func (f *Fetcher) buildCollector(result *response, fetchErr *error) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	transport := f.transport
	if transport == nil {
		transport = newHTTPTransport()
	}
	collector.WithTransport(transport)

	f.configureCollectorHooks(collector, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *response, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, values := range f.cfg.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = response{
			url:    r.Request.URL.String(),
			status: r.StatusCode,
			body:   append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			result.status = r.StatusCode
			if r.Request != nil && r.Request.URL != nil {
				*fetchErr = &StatusError{URL: r.Request.URL.String(), StatusCode: r.StatusCode}
				return
			}
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func statusLabel(code int, err error) string {
	switch {
	case code != 0:
		return fmt.Sprintf("%d", code)
	case err != nil:
		return "error"
	default:
		return "unknown"
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
		IdleConnTimeout:       90 * time.Second,
	}
}
