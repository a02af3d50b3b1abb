// Package worker runs one crawl batch: plan the window, then fetch, append and
// mark each candidate in order.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/quotes-crawler/internal/clock/system"
	"github.com/JakeFAU/quotes-crawler/internal/crawler"
	"github.com/JakeFAU/quotes-crawler/internal/id/uuid"
	"github.com/JakeFAU/quotes-crawler/internal/metrics"
	"github.com/JakeFAU/quotes-crawler/internal/planner"
)

// Progress is the processed set the worker reads and extends.
type Progress interface {
	Contains(url string) bool
	Mark(ctx context.Context, url string) error
	Len() int
}

// Archiver writes a whole batch as one object.
type Archiver interface {
	WriteBatch(ctx context.Context, runID string, recs []crawler.RawRecord) (string, error)
}

// Config controls Worker behavior.
type Config struct {
	// RecordTopic receives one message per appended record.
	RecordTopic string
	// BatchTopic receives one message per archived batch.
	BatchTopic string
}

// Worker executes crawl batches sequentially.
type Worker struct {
	fetcher   crawler.PageFetcher
	sink      crawler.RecordSink
	progress  Progress
	throttle  crawler.Throttle
	publisher crawler.Publisher
	archive   Archiver
	runs      crawler.RunStore
	clock     crawler.Clock
	ids       crawler.IDGenerator
	hasher    crawler.Hasher
	cfg       Config
	logger    *zap.Logger
}

// Option customizes a Worker.
type Option func(*Worker)

// WithThrottle delays each fetch.
func WithThrottle(t crawler.Throttle) Option {
	return func(w *Worker) { w.throttle = t }
}

// WithPublisher sends notifications to publisher using cfg topics.
func WithPublisher(p crawler.Publisher, cfg Config) Option {
	return func(w *Worker) {
		w.publisher = p
		w.cfg = cfg
	}
}

// WithArchive writes every finished batch through a.
func WithArchive(a Archiver) Option {
	return func(w *Worker) { w.archive = a }
}

// WithRunStore records run summaries.
func WithRunStore(s crawler.RunStore) Option {
	return func(w *Worker) { w.runs = s }
}

// WithClock overrides the clock.
func WithClock(c crawler.Clock) Option {
	return func(w *Worker) {
		if c != nil {
			w.clock = c
		}
	}
}

// WithIDGenerator overrides run id generation.
func WithIDGenerator(g crawler.IDGenerator) Option {
	return func(w *Worker) {
		if g != nil {
			w.ids = g
		}
	}
}

// WithHasher stamps a content digest on every RecordCrawled message.
func WithHasher(h crawler.Hasher) Option {
	return func(w *Worker) { w.hasher = h }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// New constructs a Worker.
func New(fetcher crawler.PageFetcher, sink crawler.RecordSink, progress Progress, opts ...Option) (*Worker, error) {
	switch {
	case fetcher == nil:
		return nil, fmt.Errorf("fetcher is required")
	case sink == nil:
		return nil, fmt.Errorf("record sink is required")
	case progress == nil:
		return nil, fmt.Errorf("progress tracker is required")
	}
	w := &Worker{
		fetcher:  fetcher,
		sink:     sink,
		progress: progress,
		clock:    system.New(),
		ids:      uuid.NewGenerator(""),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named("worker")
	return w, nil
}

// RunBatch crawls the window of cands not yet processed. Candidates are handled
// one at a time; a canceled ctx stops the loop before the next candidate and
// leaves the rest unmarked. Per-candidate failures are counted, not returned.
func (w *Worker) RunBatch(ctx context.Context, cands []crawler.Candidate, window planner.Window) (crawler.RunSummary, error) {
	runID, err := w.ids.NewID()
	if err != nil {
		return crawler.RunSummary{}, fmt.Errorf("run id: %w", err)
	}
	summary := crawler.RunSummary{
		RunID:      runID,
		Status:     crawler.RunStatusRunning,
		StartedAt:  w.clock.Now(),
		Start:      window.Start,
		Candidates: len(cands),
	}
	logger := w.logger.With(zap.String("run_id", runID))

	plan, err := planner.Plan(cands, window, w.progress)
	if err != nil {
		return w.finish(ctx, logger, summary, nil, err)
	}
	summary.End = plan.End
	summary.NextStart = plan.NextStart
	summary.Exhausted = plan.Exhausted
	summary.Scheduled = len(plan.Batch)
	summary.Skipped = len(plan.Skipped)
	metrics.ObserveCandidates("scheduled", summary.Scheduled)
	metrics.ObserveCandidates("skipped", summary.Skipped)
	logger.Info("batch planned",
		zap.Int("start", plan.Start),
		zap.Int("end", plan.End),
		zap.Int("scheduled", summary.Scheduled),
		zap.Int("skipped", summary.Skipped),
		zap.Int("candidates", len(cands)),
	)

	var crawled []crawler.RawRecord
	for _, cand := range plan.Batch {
		if err := ctx.Err(); err != nil {
			return w.finish(ctx, logger, summary, crawled, err)
		}
		rec, ok := w.process(ctx, logger, runID, cand)
		if !ok {
			summary.Failed++
			continue
		}
		summary.Fetched++
		summary.Quotes += len(rec.Quotes)
		crawled = append(crawled, rec)
	}
	return w.finish(ctx, logger, summary, crawled, nil)
}

// process handles one candidate. It reports whether the record reached the sink.
func (w *Worker) process(ctx context.Context, logger *zap.Logger, runID string, cand crawler.Candidate) (crawler.RawRecord, bool) {
	logger = logger.With(zap.String("url", cand.URL))
	if w.throttle != nil {
		if err := w.throttle.Wait(ctx, cand.URL); err != nil {
			logger.Warn("throttle wait aborted", zap.Error(err))
			metrics.ObserveCandidates("failed", 1)
			return crawler.RawRecord{}, false
		}
	}

	page, err := w.fetcher.Fetch(ctx, cand.URL)
	if err != nil {
		logger.Warn("fetch failed", zap.Int("status", page.StatusCode), zap.Error(err))
		metrics.ObserveCandidates("failed", 1)
		return crawler.RawRecord{}, false
	}

	rec := buildRecord(cand, page, w.clock.Now())
	if err := w.sink.Append(ctx, rec); err != nil {
		logger.Error("append record failed", zap.Error(err))
		metrics.ObserveCandidates("failed", 1)
		return crawler.RawRecord{}, false
	}
	if err := w.progress.Mark(ctx, cand.URL); err != nil {
		// The record is in the log; the candidate is fetched again next run.
		logger.Error("mark processed failed", zap.Error(err))
	}
	metrics.ObserveCandidates("fetched", 1)
	metrics.SetProcessedURLs(w.progress.Len())
	logger.Info("record crawled", zap.String("title", rec.Title), zap.Int("quotes", len(rec.Quotes)))

	w.publish(ctx, logger, w.cfg.RecordTopic, crawler.RecordCrawled{
		RunID:  runID,
		URL:    rec.URL,
		Title:  rec.Title,
		Quotes: len(rec.Quotes),
		Digest: w.digest(logger, rec),
	})
	return rec, true
}

func (w *Worker) digest(logger *zap.Logger, rec crawler.RawRecord) string {
	if w.hasher == nil {
		return ""
	}
	// the digest ignores fetch time
	rec.FetchedAt = nil
	data, err := json.Marshal(rec)
	if err != nil {
		logger.Warn("encode record for digest failed", zap.Error(err))
		return ""
	}
	sum, err := w.hasher.Hash(data)
	if err != nil {
		logger.Warn("hash record failed", zap.Error(err))
		return ""
	}
	return sum
}

func (w *Worker) finish(
	ctx context.Context,
	logger *zap.Logger,
	summary crawler.RunSummary,
	crawled []crawler.RawRecord,
	runErr error,
) (crawler.RunSummary, error) {
	// Archive and bookkeeping still happen after cancellation.
	bg := context.WithoutCancel(ctx)
	if w.archive != nil && len(crawled) > 0 {
		uri, err := w.archive.WriteBatch(bg, summary.RunID, crawled)
		if err != nil {
			logger.Error("archive batch failed", zap.Error(err))
			if runErr == nil {
				runErr = fmt.Errorf("archive batch: %w", err)
			}
		} else {
			summary.ArchiveURI = uri
			w.publish(bg, logger, w.cfg.BatchTopic, crawler.BatchArchived{
				RunID:   summary.RunID,
				URI:     uri,
				Records: len(crawled),
				Written: w.clock.Now(),
			})
		}
	}

	finished := w.clock.Now()
	summary.FinishedAt = &finished
	summary.Processed = w.progress.Len()
	switch {
	case runErr == nil:
		summary.Status = crawler.RunStatusSucceeded
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		summary.Status = crawler.RunStatusCanceled
		summary.ErrorText = runErr.Error()
	default:
		summary.Status = crawler.RunStatusFailed
		summary.ErrorText = runErr.Error()
	}
	if w.runs != nil {
		if err := w.runs.SaveRun(bg, summary); err != nil {
			logger.Warn("save run summary failed", zap.Error(err))
		}
	}

	fields := []zap.Field{
		zap.String("status", string(summary.Status)),
		zap.Int("fetched", summary.Fetched),
		zap.Int("failed", summary.Failed),
		zap.Int("quotes", summary.Quotes),
		zap.Int("processed_total", summary.Processed),
		zap.Duration("elapsed", finished.Sub(summary.StartedAt)),
	}
	if summary.Exhausted {
		logger.Info("batch finished; catalog window exhausted", fields...)
	} else {
		logger.Info("batch finished", append(fields, zap.Int("next_start_index", summary.NextStart))...)
	}
	if runErr != nil {
		return summary, fmt.Errorf("run %s: %w", summary.RunID, runErr)
	}
	return summary, nil
}

func (w *Worker) publish(ctx context.Context, logger *zap.Logger, topic string, payload any) {
	if w.publisher == nil || topic == "" {
		return
	}
	if _, err := w.publisher.Publish(ctx, topic, payload); err != nil {
		logger.Warn("publish notification failed", zap.String("topic", topic), zap.Error(err))
	}
}

func buildRecord(cand crawler.Candidate, page crawler.Page, now time.Time) crawler.RawRecord {
	title := page.Label
	if title == "" {
		title = cand.Label
	}
	rec := crawler.RawRecord{
		Title:     title,
		URL:       cand.URL,
		Quotes:    make([]crawler.Quote, 0, len(page.Quotes)),
		FetchedAt: &now,
	}
	for _, q := range page.Quotes {
		if q == "" {
			continue
		}
		rec.Quotes = append(rec.Quotes, crawler.Quote{Text: q, MovieTitle: title})
	}
	return rec
}
