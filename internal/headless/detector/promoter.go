package detector

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/quotes-crawler/internal/crawler"
	"github.com/JakeFAU/quotes-crawler/internal/metrics"
)

// Promoter fetches with a cheap static probe first and re-fetches with the
// headless renderer only when the Heuristic says the probe saw a shell page.
type Promoter struct {
	probe     crawler.PageFetcher
	renderer  crawler.PageFetcher
	heuristic *Heuristic
	logger    *zap.Logger
}

var _ crawler.PageFetcher = (*Promoter)(nil)

// NewPromoter wires a probe and a renderer. A nil heuristic uses the defaults.
func NewPromoter(probe, renderer crawler.PageFetcher, h *Heuristic, logger *zap.Logger) (*Promoter, error) {
	if probe == nil || renderer == nil {
		return nil, fmt.Errorf("probe and renderer fetchers are required")
	}
	if h == nil {
		h = NewHeuristic(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Promoter{probe: probe, renderer: renderer, heuristic: h, logger: logger.Named("promoter")}, nil
}

// Fetch satisfies crawler.PageFetcher. Probe errors are returned as-is.
func (p *Promoter) Fetch(ctx context.Context, url string) (crawler.Page, error) {
	page, err := p.probe.Fetch(ctx, url)
	if err != nil || !p.heuristic.ShouldPromote(page) {
		return page, err
	}
	p.logger.Debug("promoting page to headless",
		zap.String("url", url),
		zap.Int("body_bytes", len(page.Body)),
	)
	metrics.IncHeadlessPromotion()
	return p.renderer.Fetch(ctx, url)
}
