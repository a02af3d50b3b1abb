// Package crawler defines core types shared across subsystems.
package crawler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Candidate is one catalog entry discovered on a listing page.
// URL is its identity.
type Candidate struct {
	URL   string `json:"url"`
	Label string `json:"label"`
}

// Quote is a single quote attached to a movie record.
type Quote struct {
	Text       string `json:"text"`
	MovieTitle string `json:"movie_title,omitempty"`
}

// UnmarshalJSON accepts either an object or a bare string.
func (q *Quote) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return fmt.Errorf("decode quote text: %w", err)
		}
		*q = Quote{Text: text}
		return nil
	}
	type plain Quote
	var p plain
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return fmt.Errorf("decode quote: %w", err)
	}
	*q = Quote(p)
	return nil
}

// RawRecord is the unit the crawler produces and the loader consumes.
type RawRecord struct {
	Title     string     `json:"title"`
	URL       string     `json:"url"`
	Quotes    []Quote    `json:"quotes"`
	FetchedAt *time.Time `json:"fetched_at,omitempty"`
}

// QuoteTexts returns the non-blank quote texts in order.
func (r RawRecord) QuoteTexts() []string {
	out := make([]string, 0, len(r.Quotes))
	for _, q := range r.Quotes {
		text := strings.TrimSpace(q.Text)
		if text == "" {
			continue
		}
		out = append(out, text)
	}
	return out
}

// Page is the parsed result of fetching a detail page.
type Page struct {
	URL        string
	StatusCode int
	Label      string
	Quotes     []string
	Duration   time.Duration
	// Body is the raw HTML the page was extracted from, when the fetcher keeps it.
	Body []byte
}

// BatchArchived is published once a batch file has been written to the archive.
type BatchArchived struct {
	RunID   string    `json:"run_id"`
	URI     string    `json:"uri"`
	Records int       `json:"records"`
	Written time.Time `json:"written_at"`
}

// RecordCrawled is published for every record appended to the log.
type RecordCrawled struct {
	RunID  string `json:"run_id"`
	URL    string `json:"url"`
	Title  string `json:"title"`
	Quotes int    `json:"quotes"`
	// Digest is a hex SHA-256 of the record's JSON without its fetch time.
	Digest string `json:"digest,omitempty"`
}

// DedupeCandidates drops repeated URLs, keeping the first occurrence.
func DedupeCandidates(in []Candidate) []Candidate {
	seen := make(map[string]struct{}, len(in))
	out := make([]Candidate, 0, len(in))
	for _, c := range in {
		if c.URL == "" {
			continue
		}
		if _, ok := seen[c.URL]; ok {
			continue
		}
		seen[c.URL] = struct{}{}
		out = append(out, c)
	}
	return out
}

// LabelFromURL derives a display label from a catalog link such as
// "/movies/Zodiac_(2007)_12345".
func LabelFromURL(raw string) string {
	path := raw
	if u, err := url.Parse(raw); err == nil {
		path = u.Path
	}
	idx := strings.Index(path, "/movies/")
	if idx < 0 {
		return ""
	}
	tail := strings.Trim(path[idx+len("/movies/"):], "/")
	if unescaped, err := url.PathUnescape(tail); err == nil {
		tail = unescaped
	}
	return strings.TrimSpace(strings.ReplaceAll(tail, "_", " "))
}

// RunStatus is the lifecycle state of a crawl run.
type RunStatus string

// Run status values.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusCanceled  RunStatus = "canceled"
	RunStatusFailed    RunStatus = "failed"
)

// RunSummary reports the outcome of one crawl batch. NextStart is the
// start index to pass to the following run.
type RunSummary struct {
	RunID      string     `json:"run_id"`
	Status     RunStatus  `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Start      int        `json:"start_index"`
	End        int        `json:"end_index"`
	NextStart  int        `json:"next_start_index"`
	Exhausted  bool       `json:"exhausted"`
	Candidates int        `json:"candidates"`
	Scheduled  int        `json:"scheduled"`
	Skipped    int        `json:"skipped"`
	Fetched    int        `json:"fetched"`
	Failed     int        `json:"failed"`
	Quotes     int        `json:"quotes"`
	Processed  int        `json:"processed_total"`
	ArchiveURI string     `json:"archive_uri,omitempty"`
	ErrorText  string     `json:"error_text,omitempty"`
}
