package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/quotes-crawler/internal/naturalkey"
)

func ptr(v int) *int { return &v }

func TestMatchesToleratesStoredNullsOnly(t *testing.T) {
	t.Parallel()

	full := naturalkey.Key{Title: "Up", Year: ptr(2009), ExternalID: ptr(49522)}
	bare := naturalkey.Key{Title: "Up"}

	require.True(t, Matches(Movie{Title: "Up"}, full), "stored NULLs match concrete values")
	require.True(t, Matches(Movie{Title: "Up"}, bare))
	require.False(t, Matches(Movie{Title: "Up", Year: ptr(2009), ExternalID: ptr(49522)}, bare), "stored values need an equal incoming value")
	require.False(t, Matches(Movie{Title: "Up", Year: ptr(2009)}, naturalkey.Key{Title: "Up", ExternalID: ptr(49522)}))
	require.True(t, Matches(Movie{Title: "Up", Year: ptr(2009)}, full))
	require.False(t, Matches(Movie{Title: "Up", Year: ptr(2010)}, full))
	require.False(t, Matches(Movie{Title: "Up", ExternalID: ptr(1)}, full))
	require.False(t, Matches(Movie{Title: "up"}, full), "titles compare exactly")
}

func TestExactness(t *testing.T) {
	t.Parallel()

	key := naturalkey.Key{Title: "Up", Year: ptr(2009)}
	require.Equal(t, 2, Exactness(Movie{Title: "Up", Year: ptr(2009)}, key))
	require.Equal(t, 1, Exactness(Movie{Title: "Up"}, key))
	require.Equal(t, 0, Exactness(Movie{Title: "Up", ExternalID: ptr(3)}, key))
}

func TestNeedsBackfill(t *testing.T) {
	t.Parallel()

	require.True(t, Movie{Title: "Up"}.NeedsBackfill(naturalkey.Key{Title: "Up", Year: ptr(2009)}))
	require.False(t, Movie{Title: "Up"}.NeedsBackfill(naturalkey.Key{Title: "Up"}))
	require.False(t, Movie{Title: "Up", Year: ptr(2009), ExternalID: ptr(1)}.NeedsBackfill(naturalkey.Key{Title: "Up", Year: ptr(2009), ExternalID: ptr(1)}))
}

func TestParseChildPolicy(t *testing.T) {
	t.Parallel()

	p, err := ParseChildPolicy("")
	require.NoError(t, err)
	require.Equal(t, ChildAppend, p)
	p, err = ParseChildPolicy(" Dedupe ")
	require.NoError(t, err)
	require.Equal(t, ChildDedupe, p)
	_, err = ParseChildPolicy("merge")
	require.Error(t, err)
}

func TestUniqueTexts(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"a", "b"}, UniqueTexts([]string{"a", "b", "a"}))
}
