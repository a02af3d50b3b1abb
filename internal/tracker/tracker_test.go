package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSetDedupesAndKeepsOrder(t *testing.T) {
	t.Parallel()

	s := NewSet("b", "a", "b", "", "c")
	require.Equal(t, []string{"b", "a", "c"}, s.IDs())
	require.True(t, s.Contains("a"))
	require.False(t, s.Contains(""))

	next, added := s.With("d")
	require.True(t, added)
	require.Equal(t, 4, next.Len())
	require.Equal(t, 3, s.Len(), "With must not mutate the receiver")

	same, added := next.With("a")
	require.False(t, added)
	require.Equal(t, next.IDs(), same.IDs())
}

func TestSetJSONRoundTripShape(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(Set{})
	require.NoError(t, err)
	require.JSONEq(t, `[]`, string(data))

	var s Set
	require.NoError(t, json.Unmarshal([]byte(`["u1","u2","u1"]`), &s))
	require.Equal(t, []string{"u1", "u2"}, s.IDs())
}

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(filepath.Join(t.TempDir(), "nested", "state.json"))
	require.NoError(t, err)
	set, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Zero(t, set.Len())
}

func TestFileStoreCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"not":"an array"`), 0o600))
	store, err := NewFileStore(path)
	require.NoError(t, err)

	_, err = store.Load(context.Background())
	require.ErrorIs(t, err, ErrCorruptState)
}

func TestFileStoreSaveWritesJSONArray(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "deep", "state.json")
	store, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), NewSet("u1", "u2")))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var ids []string
	require.NoError(t, json.Unmarshal(raw, &ids))
	require.Equal(t, []string{"u1", "u2"}, ids)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
}

func TestNewFileStoreRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := NewFileStore("  ")
	require.Error(t, err)
}

func TestTrackerOpenDegradesOnCorruptState(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`garbage`), 0o600))
	store, err := NewFileStore(path)
	require.NoError(t, err)

	tr := Open(context.Background(), store, zap.NewNop())
	require.Zero(t, tr.Len())

	require.NoError(t, tr.Mark(context.Background(), "u1"))
	reloaded, err := store.Load(context.Background())
	require.NoError(t, err)
	require.True(t, reloaded.Contains("u1"))
}

func TestTrackerMarkPersistsAndIgnoresDuplicates(t *testing.T) {
	t.Parallel()

	store := &countingStore{}
	tr := Open(context.Background(), store, nil)

	require.NoError(t, tr.Mark(context.Background(), "u1"))
	require.NoError(t, tr.Mark(context.Background(), "u1"))
	require.NoError(t, tr.Mark(context.Background(), "u2"))

	require.Equal(t, 2, store.saves)
	require.Equal(t, []string{"u1", "u2"}, store.last.IDs())
	require.True(t, tr.Contains("u2"))
}

func TestTrackerMarkFailureLeavesSetUnchanged(t *testing.T) {
	t.Parallel()

	store := &countingStore{saveErr: errors.New("disk full")}
	tr := Open(context.Background(), store, nil)

	err := tr.Mark(context.Background(), "u1")
	require.Error(t, err)
	require.False(t, tr.Contains("u1"))
}

func TestTrackerSnapshotIsIndependent(t *testing.T) {
	t.Parallel()

	tr := Open(context.Background(), &countingStore{initial: NewSet("u1")}, nil)
	snap := tr.Snapshot()
	require.NoError(t, tr.Mark(context.Background(), "u2"))
	require.Equal(t, 1, snap.Len())
	require.Equal(t, 2, tr.Len())
}

func TestTrackerSurvivesRestart(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	first := Open(context.Background(), store, nil)
	require.NoError(t, first.Mark(context.Background(), "u1"))

	second := Open(context.Background(), store, nil)
	require.True(t, second.Contains("u1"))
}

type countingStore struct {
	initial Set
	last    Set
	saves   int
	saveErr error
}

func (s *countingStore) Load(context.Context) (Set, error) {
	return s.initial, nil
}

func (s *countingStore) Save(_ context.Context, set Set) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.last = set
	return nil
}
