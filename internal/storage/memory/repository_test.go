package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/quotes-crawler/internal/naturalkey"
	"github.com/JakeFAU/quotes-crawler/internal/store"
)

func TestRollbackDiscardsWork(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewRepository()
	tx, err := repo.Begin(ctx)
	require.NoError(t, err)
	id, err := tx.InsertMovie(ctx, naturalkey.Resolve("Up (2009) 49522"), "u")
	require.NoError(t, err)
	_, err = tx.InsertQuotes(ctx, id, []string{"a"}, store.ChildAppend)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))

	require.Empty(t, repo.Movies())
	require.Empty(t, repo.Quotes())

	_, err = tx.InsertMovie(ctx, naturalkey.Resolve("Up"), "u")
	require.Error(t, err)
	require.NoError(t, tx.Rollback(ctx), "rollback after finish is a no-op")
}

func TestFindPrefersExactMatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewRepository()
	tx, err := repo.Begin(ctx)
	require.NoError(t, err)
	bareID, err := tx.InsertMovie(ctx, naturalkey.Key{Title: "Up"}, "u1")
	require.NoError(t, err)
	fullID, err := tx.InsertMovie(ctx, naturalkey.Resolve("Up (2009) 49522"), "u2")
	require.NoError(t, err)

	got, err := tx.FindMovie(ctx, naturalkey.Resolve("Up (2009) 49522"))
	require.NoError(t, err)
	require.Equal(t, fullID, got.ID)

	got, err = tx.FindMovie(ctx, naturalkey.Key{Title: "Up"})
	require.NoError(t, err)
	require.Equal(t, bareID, got.ID)

	_, err = tx.FindMovie(ctx, naturalkey.Key{Title: "Down"})
	require.True(t, errors.Is(err, store.ErrNotFound))
	require.NoError(t, tx.Commit(ctx))
	require.Error(t, tx.Commit(ctx))
}

func TestStatsAndReset(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewRepository()
	tx, err := repo.Begin(ctx)
	require.NoError(t, err)
	up, err := tx.InsertMovie(ctx, naturalkey.Key{Title: "Up"}, "u1")
	require.NoError(t, err)
	_, err = tx.InsertMovie(ctx, naturalkey.Key{Title: "zodiac"}, "u2")
	require.NoError(t, err)
	_, err = tx.InsertMovie(ctx, naturalkey.Key{Title: "Zoolander"}, "u3")
	require.NoError(t, err)
	_, err = tx.InsertQuotes(ctx, up, []string{"a", "b", "a"}, store.ChildDedupe)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), stats.Movies)
	require.Equal(t, int64(2), stats.Quotes)
	require.Equal(t, []store.LetterCount{{Letter: "U", Movies: 1}, {Letter: "Z", Movies: 2}}, stats.ByLetter)
	require.InDelta(t, 2.0, stats.AvgQuotesPerMovie, 0.001)

	require.NoError(t, repo.Migrate(ctx, store.MigrateOptions{}))
	require.Len(t, repo.Movies(), 3)
	require.NoError(t, repo.Migrate(ctx, store.MigrateOptions{Reset: true}))
	require.Empty(t, repo.Movies())
}
