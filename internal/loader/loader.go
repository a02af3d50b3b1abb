// Package loader moves raw crawl records into the relational store. Each unit
// (usually one record file) is loaded in a single transaction, and parents are
// resolved by natural key so repeated loads do not duplicate movies.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/quotes-crawler/internal/crawler"
	"github.com/JakeFAU/quotes-crawler/internal/metrics"
	"github.com/JakeFAU/quotes-crawler/internal/naturalkey"
	"github.com/JakeFAU/quotes-crawler/internal/records"
	"github.com/JakeFAU/quotes-crawler/internal/store"
)

// Report counts what one unit did to the store.
type Report struct {
	Unit               string `json:"unit"`
	Records            int    `json:"records"`
	EntitiesInserted   int    `json:"entities_inserted"`
	EntitiesMatched    int    `json:"entities_matched"`
	EntitiesBackfilled int    `json:"entities_backfilled"`
	QuotesInserted     int    `json:"quotes_inserted"`
	Skipped            int    `json:"skipped"`
	Truncated          bool   `json:"truncated,omitempty"`
}

func (r *Report) add(o Report) {
	r.Records += o.Records
	r.EntitiesInserted += o.EntitiesInserted
	r.EntitiesMatched += o.EntitiesMatched
	r.EntitiesBackfilled += o.EntitiesBackfilled
	r.QuotesInserted += o.QuotesInserted
	r.Skipped += o.Skipped
}

// FailedUnit names a unit that was rolled back or could not be read.
type FailedUnit struct {
	Unit  string `json:"unit"`
	Error string `json:"error"`
}

// Summary aggregates the reports of a directory load.
type Summary struct {
	Totals Report       `json:"totals"`
	Units  []Report     `json:"units"`
	Failed []FailedUnit `json:"failed,omitempty"`
}

// Pipeline loads records through a store.Repository.
type Pipeline struct {
	repo     store.Repository
	policy   store.ChildPolicy
	backfill bool
	logger   *zap.Logger
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithChildPolicy sets how quotes are inserted for known movies.
func WithChildPolicy(p store.ChildPolicy) Option {
	return func(pl *Pipeline) {
		if p != "" {
			pl.policy = p
		}
	}
}

// WithBackfill toggles filling stored NULL fields from incoming keys.
func WithBackfill(enabled bool) Option {
	return func(pl *Pipeline) {
		pl.backfill = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(pl *Pipeline) {
		if logger != nil {
			pl.logger = logger
		}
	}
}

// New builds a Pipeline. Defaults: append policy, backfill on.
func New(repo store.Repository, opts ...Option) (*Pipeline, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	pl := &Pipeline{
		repo:     repo,
		policy:   store.ChildAppend,
		backfill: true,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(pl)
	}
	pl.logger = pl.logger.Named("loader")
	return pl, nil
}

// Load writes recs as one transaction. Any error rolls back the whole unit.
func (p *Pipeline) Load(ctx context.Context, unit string, recs []crawler.RawRecord) (report Report, err error) {
	report = Report{Unit: unit, Records: len(recs)}
	logger := p.logger.With(zap.String("unit", unit))

	tx, err := p.repo.Begin(ctx)
	if err != nil {
		metrics.ObserveUnit("failed")
		return Report{Unit: unit}, fmt.Errorf("load %s: %w", unit, err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			logger.Warn("rollback failed", zap.Error(rbErr))
		}
		metrics.ObserveUnit("failed")
		report = Report{Unit: unit}
	}()

	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("load %s: %w", unit, err)
		}
		if err := p.loadRecord(ctx, tx, rec, &report); err != nil {
			return report, fmt.Errorf("load %s: %w", unit, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return report, fmt.Errorf("load %s: %w", unit, err)
	}
	committed = true
	metrics.ObserveUnit("committed")
	metrics.ObserveQuotes(report.QuotesInserted)
	logger.Info("unit loaded",
		zap.Int("records", report.Records),
		zap.Int("inserted", report.EntitiesInserted),
		zap.Int("matched", report.EntitiesMatched),
		zap.Int("backfilled", report.EntitiesBackfilled),
		zap.Int("quotes", report.QuotesInserted),
		zap.Int("skipped", report.Skipped),
	)
	return report, nil
}

func (p *Pipeline) loadRecord(ctx context.Context, tx store.Tx, rec crawler.RawRecord, report *Report) error {
	label := strings.TrimSpace(rec.Title)
	if label == "" {
		report.Skipped++
		metrics.ObserveEntity("skipped")
		p.logger.Debug("record without label skipped", zap.String("url", rec.URL))
		return nil
	}
	key := naturalkey.Resolve(label)

	movieID, err := p.resolveMovie(ctx, tx, key, rec.URL, report)
	if err != nil {
		return err
	}

	n, err := tx.InsertQuotes(ctx, movieID, rec.QuoteTexts(), p.policy)
	if err != nil {
		return fmt.Errorf("quotes for %q: %w", label, err)
	}
	report.QuotesInserted += n
	return nil
}

func (p *Pipeline) resolveMovie(ctx context.Context, tx store.Tx, key naturalkey.Key, url string, report *Report) (int64, error) {
	movie, err := tx.FindMovie(ctx, key)
	switch {
	case err == nil:
		report.EntitiesMatched++
		metrics.ObserveEntity("matched")
		if p.backfill && movie.NeedsBackfill(key) {
			if err := tx.BackfillMovie(ctx, movie.ID, key); err != nil {
				return 0, fmt.Errorf("backfill %s: %w", key, err)
			}
			report.EntitiesBackfilled++
			metrics.ObserveEntity("backfilled")
		}
		return movie.ID, nil
	case errors.Is(err, store.ErrNotFound):
		id, err := tx.InsertMovie(ctx, key, url)
		if err != nil {
			return 0, fmt.Errorf("insert %s: %w", key, err)
		}
		report.EntitiesInserted++
		metrics.ObserveEntity("inserted")
		return id, nil
	default:
		return 0, fmt.Errorf("find %s: %w", key, err)
	}
}

// LoadFile decodes one record file and loads it as a unit. A truncated file
// loads the records that precede the damage.
func (p *Pipeline) LoadFile(ctx context.Context, path string) (Report, error) {
	recs, err := records.ReadFile(path)
	truncated := false
	if err != nil {
		if !errors.Is(err, records.ErrTruncated) {
			metrics.ObserveUnit("unreadable")
			return Report{Unit: path}, err
		}
		truncated = true
		p.logger.Warn("record file truncated; loading complete records",
			zap.String("unit", path), zap.Int("records", len(recs)), zap.Error(err))
	}
	report, err := p.Load(ctx, path, recs)
	report.Truncated = truncated
	return report, err
}

// LoadDir loads every *.json and *.jsonl file below dir in lexical path order.
// Failed units are recorded and the run continues. Only a missing or
// unreadable directory, or cancellation, ends the run with an error.
func (p *Pipeline) LoadDir(ctx context.Context, dir string) (Summary, error) {
	files, err := unitFiles(dir)
	if err != nil {
		return Summary{}, err
	}
	var summary Summary
	summary.Totals.Unit = dir
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("load dir: %w", err)
		}
		report, err := p.LoadFile(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return summary, fmt.Errorf("load dir: %w", ctx.Err())
			}
			p.logger.Error("unit failed", zap.String("unit", path), zap.Error(err))
			summary.Failed = append(summary.Failed, FailedUnit{Unit: path, Error: err.Error()})
			continue
		}
		summary.Units = append(summary.Units, report)
		summary.Totals.add(report)
	}
	p.logger.Info("directory loaded",
		zap.String("dir", dir),
		zap.Int("units", len(summary.Units)),
		zap.Int("failed", len(summary.Failed)),
		zap.Int("quotes", summary.Totals.QuotesInserted),
	)
	return summary, nil
}

func unitFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".json", ".jsonl":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list units in %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}
