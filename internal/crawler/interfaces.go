package crawler

import (
	"context"
	"errors"
	"io"
	"time"
)

// PageFetcher retrieves and parses a single detail page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// CandidateSource lists catalog candidates in document order.
type CandidateSource interface {
	Candidates(ctx context.Context) ([]Candidate, error)
}

// RecordSink appends crawled records to durable storage.
type RecordSink interface {
	Append(ctx context.Context, record RawRecord) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Throttle delays fetches to respect the target site.
type Throttle interface {
	Wait(ctx context.Context, url string) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher produces a content digest.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// ErrRunNotFound is returned by RunStore.GetRun for unknown run IDs.
var ErrRunNotFound = errors.New("run not found")

// RunStore keeps crawl run summaries for inspection.
type RunStore interface {
	SaveRun(ctx context.Context, run RunSummary) error
	GetRun(ctx context.Context, runID string) (RunSummary, error)
	ListRuns(ctx context.Context) ([]RunSummary, error)
}
