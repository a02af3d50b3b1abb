// Package headless fetches movie pages through a headless Chrome, for the
// cases where the listing or quotes are rendered by JavaScript.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/quotes-crawler/internal/crawler"
	"github.com/JakeFAU/quotes-crawler/internal/fetcher/extract"
	"github.com/JakeFAU/quotes-crawler/internal/metrics"
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// Settle is how long to wait after the body is ready before reading the DOM.
	Settle  time.Duration
	Headers http.Header
}

// Fetcher implements crawler.PageFetcher using chromedp.
type Fetcher struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates a headless fetcher backed by chromedp. The browser is
// started lazily on the first Fetch.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.Settle < 0 {
		cfg.Settle = 0
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Fetch renders url and extracts the label and quotes from the final DOM.
func (f *Fetcher) Fetch(ctx context.Context, url string) (crawler.Page, error) {
	if err := f.acquire(ctx); err != nil {
		return crawler.Page{URL: url}, err
	}
	defer f.release()

	taskCtx, taskCancel := chromedp.NewContext(f.allocator)
	defer taskCancel()
	// Stop the browser tab when the caller gives up.
	stop := context.AfterFunc(ctx, taskCancel)
	defer stop()

	taskCtx, cancel := context.WithTimeout(taskCtx, f.cfg.NavigationTimeout)
	defer cancel()

	meta := &responseMeta{}
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	start := time.Now()
	html, finalURL, err := f.render(taskCtx, url)
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveFetch(url, "error", duration)
		return crawler.Page{URL: url, Duration: duration}, err
	}
	status, responseURL := meta.snapshotWithFallbacks(url, finalURL)
	metrics.ObserveFetch(url, fmt.Sprintf("%d", status), duration)

	page := crawler.Page{URL: responseURL, StatusCode: status, Duration: duration}
	if status < 200 || status > 299 {
		return page, fmt.Errorf("%s: unexpected status %d", url, status)
	}
	detail, err := extract.ParseDetail(strings.NewReader(html))
	if err != nil {
		return page, err
	}
	page.Label = detail.Label
	page.Quotes = detail.Quotes
	return page, nil
}

func (f *Fetcher) render(ctx context.Context, url string) (string, string, error) {
	var (
		html     string
		finalURL string
	)
	actions := []chromedp.Action{
		f.networkSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if f.cfg.Settle > 0 {
		actions = append(actions, chromedp.Sleep(f.cfg.Settle))
	}
	actions = append(actions,
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, finalURL, nil
}

func (f *Fetcher) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(f.cfg.Headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(f.cfg.Headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.limiter == nil {
		return
	}
	select {
	case <-f.limiter:
	default:
	}
}

// responseMeta remembers the main document response seen on the tab.
type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	m.status = int(event.Response.Status)
	m.url = event.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, string) {
	m.mu.RLock()
	status, url := m.status, m.url
	m.mu.RUnlock()
	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, url
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			headers[key] = values[0]
		} else {
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}
