package collyfetcher

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/JakeFAU/quotes-crawler/internal/crawler"
	"github.com/JakeFAU/quotes-crawler/internal/fetcher/extract"
)

// Catalog lists movie candidates from one or more listing pages. It
// implements crawler.CandidateSource.
type Catalog struct {
	fetcher *Fetcher
	pages   []string
	logger  *zap.Logger
}

// NewCatalog builds a Catalog over the given listing URLs, visited in order.
func NewCatalog(fetcher *Fetcher, pages []string, logger *zap.Logger) (*Catalog, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("at least one catalog url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{fetcher: fetcher, pages: append([]string(nil), pages...), logger: logger.Named("catalog")}, nil
}

// Candidates returns every movie link on the listing pages in document
// order, without duplicate URLs. Any failed listing page fails the call so
// that indices stay stable between runs.
func (c *Catalog) Candidates(ctx context.Context) ([]crawler.Candidate, error) {
	var all []crawler.Candidate
	for _, page := range c.pages {
		resp, err := c.fetcher.visit(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("catalog %s: %w", page, err)
		}
		base, err := url.Parse(resp.url)
		if err != nil || resp.url == "" {
			base, err = url.Parse(page)
			if err != nil {
				return nil, fmt.Errorf("catalog url %q: %w", page, err)
			}
		}
		cands, err := extract.ParseCatalog(bytes.NewReader(resp.body), base)
		if err != nil {
			return nil, fmt.Errorf("catalog %s: %w", page, err)
		}
		c.logger.Info("catalog page parsed", zap.String("url", page), zap.Int("links", len(cands)))
		all = append(all, cands...)
	}
	return crawler.DedupeCandidates(all), nil
}
