package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/JakeFAU/quotes-crawler/internal/naturalkey"
	"github.com/JakeFAU/quotes-crawler/internal/store"
)

var errTxDone = errors.New("transaction already finished")

// QuoteRow is a stored child row.
type QuoteRow struct {
	ID      int64
	MovieID int64
	Text    string
}

type state struct {
	movies  []store.Movie
	quotes  []QuoteRow
	movieID int64
	quoteID int64
}

func (s state) clone() state {
	out := s
	out.movies = append([]store.Movie(nil), s.movies...)
	out.quotes = append([]QuoteRow(nil), s.quotes...)
	return out
}

// Repository implements store.Repository in process memory. It backs dry runs
// and tests; data is lost on exit.
type Repository struct {
	mu    sync.Mutex
	state state
}

// NewRepository returns an empty Repository.
func NewRepository() *Repository {
	return &Repository{}
}

// Begin snapshots the current state. Commit publishes the snapshot back.
func (r *Repository) Begin(_ context.Context) (store.Tx, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &tx{repo: r, work: r.state.clone()}, nil
}

// Migrate resets the data when asked; the in-memory schema always exists.
func (r *Repository) Migrate(_ context.Context, opts store.MigrateOptions) error {
	if opts.Reset {
		r.mu.Lock()
		r.state = state{}
		r.mu.Unlock()
	}
	return nil
}

// Stats summarizes the stored rows.
func (r *Repository) Stats(_ context.Context) (store.Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := store.Stats{
		Movies: int64(len(r.state.movies)),
		Quotes: int64(len(r.state.quotes)),
	}
	letters := map[string]int64{}
	for _, m := range r.state.movies {
		letters[firstLetter(m.Title)]++
	}
	for letter, n := range letters {
		stats.ByLetter = append(stats.ByLetter, store.LetterCount{Letter: letter, Movies: n})
	}
	sort.Slice(stats.ByLetter, func(i, j int) bool { return stats.ByLetter[i].Letter < stats.ByLetter[j].Letter })
	perMovie := map[int64]int{}
	for _, q := range r.state.quotes {
		perMovie[q.MovieID]++
	}
	if len(perMovie) > 0 {
		stats.AvgQuotesPerMovie = float64(len(r.state.quotes)) / float64(len(perMovie))
	}
	return stats, nil
}

// Ping always succeeds.
func (r *Repository) Ping(context.Context) error {
	return nil
}

// Close is a no-op.
func (r *Repository) Close() {}

// Movies returns a copy of the stored movies ordered by id.
func (r *Repository) Movies() []store.Movie {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]store.Movie(nil), r.state.movies...)
}

// Quotes returns a copy of the stored quotes ordered by id.
func (r *Repository) Quotes() []QuoteRow {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]QuoteRow(nil), r.state.quotes...)
}

type tx struct {
	repo *Repository
	work state
	done bool
}

func (t *tx) FindMovie(_ context.Context, key naturalkey.Key) (store.Movie, error) {
	if t.done {
		return store.Movie{}, errTxDone
	}
	best := -1
	for i, m := range t.work.movies {
		if !store.Matches(m, key) {
			continue
		}
		// movies are ordered by id, so only a strictly better score replaces.
		if best < 0 || store.Exactness(m, key) > store.Exactness(t.work.movies[best], key) {
			best = i
		}
	}
	if best < 0 {
		return store.Movie{}, store.ErrNotFound
	}
	return t.work.movies[best], nil
}

func (t *tx) InsertMovie(_ context.Context, key naturalkey.Key, url string) (int64, error) {
	if t.done {
		return 0, errTxDone
	}
	t.work.movieID++
	t.work.movies = append(t.work.movies, store.Movie{
		ID:         t.work.movieID,
		Title:      key.Title,
		Year:       copyInt(key.Year),
		ExternalID: copyInt(key.ExternalID),
		URL:        url,
	})
	return t.work.movieID, nil
}

func (t *tx) BackfillMovie(_ context.Context, id int64, key naturalkey.Key) error {
	if t.done {
		return errTxDone
	}
	for i := range t.work.movies {
		m := &t.work.movies[i]
		if m.ID != id {
			continue
		}
		if m.Year == nil {
			m.Year = copyInt(key.Year)
		}
		if m.ExternalID == nil {
			m.ExternalID = copyInt(key.ExternalID)
		}
		return nil
	}
	return store.ErrNotFound
}

func (t *tx) InsertQuotes(_ context.Context, movieID int64, texts []string, policy store.ChildPolicy) (int, error) {
	if t.done {
		return 0, errTxDone
	}
	if policy == store.ChildDedupe {
		existing := map[string]struct{}{}
		for _, q := range t.work.quotes {
			if q.MovieID == movieID {
				existing[q.Text] = struct{}{}
			}
		}
		filtered := texts[:0:0]
		for _, text := range store.UniqueTexts(texts) {
			if _, ok := existing[text]; !ok {
				filtered = append(filtered, text)
			}
		}
		texts = filtered
	}
	for _, text := range texts {
		t.work.quoteID++
		t.work.quotes = append(t.work.quotes, QuoteRow{ID: t.work.quoteID, MovieID: movieID, Text: text})
	}
	return len(texts), nil
}

func (t *tx) Commit(_ context.Context) error {
	if t.done {
		return errTxDone
	}
	t.done = true
	t.repo.mu.Lock()
	t.repo.state = t.work
	t.repo.mu.Unlock()
	return nil
}

func (t *tx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	return nil
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func firstLetter(title string) string {
	r, _ := utf8.DecodeRuneInString(strings.TrimSpace(title))
	if r == utf8.RuneError {
		return ""
	}
	return string(unicode.ToUpper(r))
}
