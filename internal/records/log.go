// Package records persists crawled records as an append-only JSON Lines log
// and reads record files back for loading.
package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/JakeFAU/quotes-crawler/internal/crawler"
)

// Log appends records to a single JSON Lines file. Every append is synced
// before returning so a record is durable once Append succeeds.
type Log struct {
	mu   sync.Mutex
	path string
}

// NewLog prepares the log file's directory.
func NewLog(path string) (*Log, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("record log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create record log directory: %w", err)
	}
	return &Log{path: path}, nil
}

// Path returns the log file path.
func (l *Log) Path() string {
	return l.path
}

// Append writes one record as a single line.
func (l *Log) Append(ctx context.Context, record crawler.RawRecord) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open record log: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("write record: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync record log: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close record log: %w", err)
	}
	return nil
}

// ReadAll returns every record currently in the log. A missing file yields no
// records. A truncated final line is reported with ErrTruncated alongside the
// complete records.
func (l *Log) ReadAll(_ context.Context) ([]crawler.RawRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	recs, err := ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return recs, err
}
