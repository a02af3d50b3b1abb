package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/quotes-crawler/internal/crawler"
	"github.com/JakeFAU/quotes-crawler/internal/naturalkey"
	"github.com/JakeFAU/quotes-crawler/internal/storage/memory"
	"github.com/JakeFAU/quotes-crawler/internal/store"
)

func rec(title string, quotes ...string) crawler.RawRecord {
	r := crawler.RawRecord{Title: title, URL: "https://www.quotes.net/movies/x"}
	for _, q := range quotes {
		r.Quotes = append(r.Quotes, crawler.Quote{Text: q})
	}
	return r
}

func newPipeline(t *testing.T, repo store.Repository, opts ...Option) *Pipeline {
	t.Helper()
	pl, err := New(repo, opts...)
	require.NoError(t, err)
	return pl
}

func TestNewRequiresRepository(t *testing.T) {
	t.Parallel()

	_, err := New(nil)
	require.Error(t, err)
}

func TestLoadIsIdempotentForMovies(t *testing.T) {
	t.Parallel()

	repo := memory.NewRepository()
	pl := newPipeline(t, repo)
	ctx := context.Background()
	batch := []crawler.RawRecord{
		rec("Up (2009) 49522", "Adventure is out there!", "  ", "Squirrel!"),
		rec("Zodiac (2007) 12345", "I need to know who he is."),
	}

	first, err := pl.Load(ctx, "batch-1", batch)
	require.NoError(t, err)
	require.Equal(t, 2, first.EntitiesInserted)
	require.Equal(t, 3, first.QuotesInserted)

	second, err := pl.Load(ctx, "batch-1", batch)
	require.NoError(t, err)
	require.Zero(t, second.EntitiesInserted)
	require.Equal(t, 2, second.EntitiesMatched)
	// append policy keeps adding children.
	require.Equal(t, 3, second.QuotesInserted)

	require.Len(t, repo.Movies(), 2)
	require.Len(t, repo.Quotes(), 6)
}

func TestLoadDedupePolicyInsertsNothingTwice(t *testing.T) {
	t.Parallel()

	repo := memory.NewRepository()
	pl := newPipeline(t, repo, WithChildPolicy(store.ChildDedupe))
	ctx := context.Background()
	batch := []crawler.RawRecord{rec("Up (2009) 49522", "a", "b", "a")}

	first, err := pl.Load(ctx, "u", batch)
	require.NoError(t, err)
	require.Equal(t, 2, first.QuotesInserted)

	second, err := pl.Load(ctx, "u", batch)
	require.NoError(t, err)
	require.Zero(t, second.QuotesInserted)
	require.Len(t, repo.Quotes(), 2)
}

func TestLoadSkipsEmptyLabels(t *testing.T) {
	t.Parallel()

	repo := memory.NewRepository()
	pl := newPipeline(t, repo)

	report, err := pl.Load(context.Background(), "u", []crawler.RawRecord{rec("   ", "orphan"), rec("Up", "q")})
	require.NoError(t, err)
	require.Equal(t, 1, report.Skipped)
	require.Equal(t, 1, report.EntitiesInserted)
	require.Len(t, repo.Quotes(), 1)
}

func TestLoadBackfillsNullFields(t *testing.T) {
	t.Parallel()

	repo := memory.NewRepository()
	pl := newPipeline(t, repo)
	ctx := context.Background()

	_, err := pl.Load(ctx, "a", []crawler.RawRecord{rec("Up")})
	require.NoError(t, err)

	report, err := pl.Load(ctx, "b", []crawler.RawRecord{rec("Up (2009) 49522")})
	require.NoError(t, err)
	require.Equal(t, 1, report.EntitiesMatched)
	require.Equal(t, 1, report.EntitiesBackfilled)

	movies := repo.Movies()
	require.Len(t, movies, 1)
	require.Equal(t, naturalkey.Resolve("Up (2009) 49522"), movies[0].Key())

	report, err = pl.Load(ctx, "c", []crawler.RawRecord{rec("Up (2009) 49522")})
	require.NoError(t, err)
	require.Equal(t, 1, report.EntitiesMatched)
	require.Zero(t, report.EntitiesBackfilled)
}

func TestLoadWithoutBackfillKeepsNulls(t *testing.T) {
	t.Parallel()

	repo := memory.NewRepository()
	pl := newPipeline(t, repo, WithBackfill(false))
	ctx := context.Background()

	_, err := pl.Load(ctx, "a", []crawler.RawRecord{rec("Up")})
	require.NoError(t, err)
	report, err := pl.Load(ctx, "b", []crawler.RawRecord{rec("Up (2009) 49522")})
	require.NoError(t, err)
	require.Equal(t, 1, report.EntitiesMatched)
	require.Nil(t, repo.Movies()[0].Year)
}

func TestLoadBareTitleDoesNotJoinConcreteMovie(t *testing.T) {
	t.Parallel()

	repo := memory.NewRepository()
	pl := newPipeline(t, repo)
	ctx := context.Background()

	_, err := pl.Load(ctx, "a", []crawler.RawRecord{rec("Up (2009) 49522", "Squirrel!")})
	require.NoError(t, err)

	// A conflicting year is a different movie.
	report, err := pl.Load(ctx, "b", []crawler.RawRecord{rec("Up (1984) 7", "Hello.")})
	require.NoError(t, err)
	require.Equal(t, 1, report.EntitiesInserted)
	require.Len(t, repo.Movies(), 2)

	report, err = pl.Load(ctx, "c", []crawler.RawRecord{rec("Up", "Balloons.")})
	require.NoError(t, err)
	require.Equal(t, 1, report.EntitiesInserted)
	require.Zero(t, report.EntitiesMatched)

	movies := repo.Movies()
	require.Len(t, movies, 3)
	require.Nil(t, movies[2].Year)
	require.Nil(t, movies[2].ExternalID)

	// An exact row still wins over the bare one.
	report, err = pl.Load(ctx, "d", []crawler.RawRecord{rec("Up (2009) 49522")})
	require.NoError(t, err)
	require.Equal(t, 1, report.EntitiesMatched)
	require.Len(t, repo.Movies(), 3)
}

func TestLoadRollsBackOnStoreError(t *testing.T) {
	t.Parallel()

	repo := &failingRepo{Repository: memory.NewRepository(), failOn: "Zodiac"}
	pl := newPipeline(t, repo)

	report, err := pl.Load(context.Background(), "u", []crawler.RawRecord{rec("Up", "q"), rec("Zodiac", "q")})
	require.Error(t, err)
	require.Equal(t, Report{Unit: "u"}, report)
	require.Empty(t, repo.Movies())
	require.Empty(t, repo.Quotes())
}

func TestLoadCanceledRollsBack(t *testing.T) {
	t.Parallel()

	repo := memory.NewRepository()
	pl := newPipeline(t, repo)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pl.Load(ctx, "u", []crawler.RawRecord{rec("Up")})
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, repo.Movies())
}

func TestLoadDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	nested := filepath.Join(dir, "20261019")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	write := func(path, body string) {
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	}
	write(filepath.Join(dir, "a.jsonl"), "{\"title\":\"Up (2009) 49522\",\"quotes\":[\"q1\",{\"text\":\"q2\"}]}\n")
	write(filepath.Join(nested, "b.json"), `[{"title":"Zodiac (2007) 12345","quotes":[{"text":"z"}]},{"title":"Zoolan`)
	write(filepath.Join(dir, "c.json"), `{"title":"Bad"} trailing garbage`)
	write(filepath.Join(dir, "notes.txt"), "ignored")

	repo := memory.NewRepository()
	pl := newPipeline(t, repo)

	summary, err := pl.LoadDir(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, summary.Units, 2)
	require.Len(t, summary.Failed, 1)
	require.Equal(t, filepath.Join(dir, "c.json"), summary.Failed[0].Unit)
	require.True(t, summary.Units[0].Truncated)
	require.Equal(t, 2, summary.Totals.EntitiesInserted)
	require.Equal(t, 3, summary.Totals.QuotesInserted)
	require.Len(t, repo.Movies(), 2)
}

func TestLoadDirMissing(t *testing.T) {
	t.Parallel()

	pl := newPipeline(t, memory.NewRepository())
	_, err := pl.LoadDir(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

type failingRepo struct {
	*memory.Repository
	failOn string
}

func (r *failingRepo) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := r.Repository.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &failingTx{Tx: tx, failOn: r.failOn}, nil
}

type failingTx struct {
	store.Tx
	failOn string
}

func (t *failingTx) InsertMovie(ctx context.Context, key naturalkey.Key, url string) (int64, error) {
	if key.Title == t.failOn {
		return 0, errors.New("constraint violation")
	}
	return t.Tx.InsertMovie(ctx, key, url)
}
