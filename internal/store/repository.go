package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JakeFAU/quotes-crawler/internal/naturalkey"
)

// ErrNotFound signals that no movie matches the requested key.
var ErrNotFound = errors.New("movie not found")

// Movie is a persisted parent row.
type Movie struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	Year       *int   `json:"year,omitempty"`
	ExternalID *int   `json:"external_id,omitempty"`
	URL        string `json:"url"`
}

// Key returns the movie's natural key.
func (m Movie) Key() naturalkey.Key {
	return naturalkey.Key{Title: m.Title, Year: m.Year, ExternalID: m.ExternalID}
}

// NeedsBackfill reports whether key carries a value for a field stored as NULL.
func (m Movie) NeedsBackfill(key naturalkey.Key) bool {
	return (m.Year == nil && key.Year != nil) || (m.ExternalID == nil && key.ExternalID != nil)
}

// ChildPolicy controls how quotes are inserted for a movie that already has some.
type ChildPolicy string

const (
	// ChildAppend inserts every quote on every load.
	ChildAppend ChildPolicy = "append"
	// ChildDedupe skips quotes already stored for the same movie.
	ChildDedupe ChildPolicy = "dedupe"
)

// ParseChildPolicy validates a policy name. Empty means append.
func ParseChildPolicy(raw string) (ChildPolicy, error) {
	switch ChildPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ChildAppend:
		return ChildAppend, nil
	case ChildDedupe:
		return ChildDedupe, nil
	default:
		return "", fmt.Errorf("unknown child policy %q", raw)
	}
}

// MigrateOptions controls schema creation.
type MigrateOptions struct {
	// Reset drops existing tables before creating them.
	Reset bool
}

// LetterCount is the number of movies whose title starts with Letter.
type LetterCount struct {
	Letter string `json:"letter"`
	Movies int64  `json:"movies"`
}

// Stats summarizes the catalog contents.
type Stats struct {
	Movies            int64         `json:"movies"`
	Quotes            int64         `json:"quotes"`
	ByLetter          []LetterCount `json:"by_letter"`
	AvgQuotesPerMovie float64       `json:"avg_quotes_per_movie"`
}

// Repository opens load transactions and manages the schema.
type Repository interface {
	Begin(ctx context.Context) (Tx, error)
	Migrate(ctx context.Context, opts MigrateOptions) error
	Stats(ctx context.Context) (Stats, error)
	Ping(ctx context.Context) error
	Close()
}

// Tx is one load unit. Matching in FindMovie is NULL tolerant on both sides:
// year and external id each match when either value is NULL or both are equal.
// Among several matches the most exact one wins, then the lowest id.
type Tx interface {
	FindMovie(ctx context.Context, key naturalkey.Key) (Movie, error)
	InsertMovie(ctx context.Context, key naturalkey.Key, url string) (int64, error)
	BackfillMovie(ctx context.Context, id int64, key naturalkey.Key) error
	InsertQuotes(ctx context.Context, movieID int64, texts []string, policy ChildPolicy) (int, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Matches applies the NULL tolerant rule in Go: titles are equal, and each
// optional field is either NULL on the stored row or equal to the incoming
// value. SQL implementations express the same predicate in their queries.
func Matches(stored Movie, key naturalkey.Key) bool {
	if stored.Title != key.Title {
		return false
	}
	return tolerant(stored.Year, key.Year) && tolerant(stored.ExternalID, key.ExternalID)
}

// Exactness scores how many optional fields are equal, used to order matches.
func Exactness(stored Movie, key naturalkey.Key) int {
	score := 0
	if sameOptional(stored.Year, key.Year) {
		score++
	}
	if sameOptional(stored.ExternalID, key.ExternalID) {
		score++
	}
	return score
}

// UniqueTexts drops repeated texts, keeping first occurrences in order.
func UniqueTexts(texts []string) []string {
	seen := make(map[string]struct{}, len(texts))
	out := make([]string, 0, len(texts))
	for _, t := range texts {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func tolerant(stored, incoming *int) bool {
	return stored == nil || (incoming != nil && *stored == *incoming)
}

func sameOptional(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
