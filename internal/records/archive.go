package records

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/JakeFAU/quotes-crawler/internal/crawler"
)

const archiveContentType = "application/json"

// Archive writes each crawl batch as one JSON array object to a blob store,
// so every batch also exists as a standalone load unit.
type Archive struct {
	store  crawler.BlobStore
	prefix string
	clock  crawler.Clock
}

// NewArchive builds an Archive. prefix may be empty.
func NewArchive(store crawler.BlobStore, prefix string, clock crawler.Clock) (*Archive, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	return &Archive{store: store, prefix: strings.Trim(prefix, "/"), clock: clock}, nil
}

// ObjectPath returns where a batch for runID is stored.
func (a *Archive) ObjectPath(runID string) string {
	day := a.clock.Now().UTC().Format("20060102")
	name := fmt.Sprintf("%s_%s.json", a.clock.Now().UTC().Format("150405"), runID)
	if a.prefix == "" {
		return path.Join(day, name)
	}
	return path.Join(a.prefix, day, name)
}

// WriteBatch stores records and returns the object URI. An empty batch is
// not written and yields an empty URI.
func (a *Archive) WriteBatch(ctx context.Context, runID string, recs []crawler.RawRecord) (string, error) {
	if len(recs) == 0 {
		return "", nil
	}
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}
	payload, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode batch: %w", err)
	}
	uri, err := a.store.PutObject(ctx, a.ObjectPath(runID), archiveContentType, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("archive batch: %w", err)
	}
	return uri, nil
}
