package staging

import (
	"math/rand"
	"testing"

	"ghos/internal/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *badger.DB {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil // Disable logging for tests

	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestStore(t *testing.T) (*Store, *badger.DB) {
	db := setupTestDB(t)
	return NewStore(db, nil), db
}

func TestStageCreate(t *testing.T) {
	t.Run("stages a new file", func(t *testing.T) {
		s, _ := newTestStore(t)
		require.NoError(t, s.StageCreate("new.txt", "hello"))

		l, err := s.Ledger()
		require.NoError(t, err)
		assert.Equal(t, []Entry{{Path: "new.txt", Content: "hello"}}, l.Creates)
	})

	t.Run("overwrites existing create", func(t *testing.T) {
		s, _ := newTestStore(t)
		require.NoError(t, s.StageCreate("new.txt", "v1"))
		require.NoError(t, s.StageCreate("new.txt", "v2"))

		l, err := s.Ledger()
		require.NoError(t, err)
		assert.Equal(t, []Entry{{Path: "new.txt", Content: "v2"}}, l.Creates)
	})

	t.Run("replaces pending delete", func(t *testing.T) {
		s, _ := newTestStore(t)
		require.NoError(t, s.StageDelete("gone.txt", "sha-1"))
		require.NoError(t, s.StageCreate("gone.txt", "back"))

		l, err := s.Ledger()
		require.NoError(t, err)
		assert.Empty(t, l.Deletes)
		assert.Equal(t, []Entry{{Path: "gone.txt", Content: "back"}}, l.Creates)
	})

	t.Run("rejected when update pending", func(t *testing.T) {
		s, _ := newTestStore(t)
		require.NoError(t, s.StageUpdate("a.txt", "edit", "sha-a"))

		err := s.StageCreate("a.txt", "other")
		assert.ErrorIs(t, err, errors.ErrStagingConflict)

		l, err := s.Ledger()
		require.NoError(t, err)
		assert.Empty(t, l.Creates)
		assert.Equal(t, []Entry{{Path: "a.txt", Content: "edit", SHA: "sha-a"}}, l.Updates)
	})

	t.Run("rejects empty path", func(t *testing.T) {
		s, _ := newTestStore(t)
		assert.ErrorIs(t, s.StageCreate("/", "x"), errors.ErrValidation)
		assert.ErrorIs(t, s.StageCreate("a/../b", "x"), errors.ErrValidation)
	})
}

func TestStageUpdate(t *testing.T) {
	t.Run("stages an update", func(t *testing.T) {
		s, _ := newTestStore(t)
		require.NoError(t, s.StageUpdate("b.txt", "bye", "sha-b"))

		l, err := s.Ledger()
		require.NoError(t, err)
		assert.Equal(t, []Entry{{Path: "b.txt", Content: "bye", SHA: "sha-b"}}, l.Updates)
	})

	t.Run("collapses into pending create", func(t *testing.T) {
		s, _ := newTestStore(t)
		require.NoError(t, s.StageCreate("p.txt", "c1"))
		require.NoError(t, s.StageUpdate("p.txt", "c2", "sha-anything"))

		l, err := s.Ledger()
		require.NoError(t, err)
		assert.Empty(t, l.Updates)
		assert.Equal(t, []Entry{{Path: "p.txt", Content: "c2"}}, l.Creates)
	})

	t.Run("conflicts with delete at another base", func(t *testing.T) {
		s, _ := newTestStore(t)
		require.NoError(t, s.StageDelete("c.txt", "sha-old"))

		err := s.StageUpdate("c.txt", "x", "sha-new")
		assert.ErrorIs(t, err, errors.ErrStagingConflict)

		op, ok, err := s.Lookup("c.txt")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, Delete{Path: "c.txt", BaseSHA: "sha-old"}, op)
	})

	t.Run("replaces delete at the same base", func(t *testing.T) {
		s, _ := newTestStore(t)
		require.NoError(t, s.StageDelete("c.txt", "sha-c"))
		require.NoError(t, s.StageUpdate("c.txt", "kept", "sha-c"))

		l, err := s.Ledger()
		require.NoError(t, err)
		assert.Empty(t, l.Deletes)
		assert.Equal(t, []Entry{{Path: "c.txt", Content: "kept", SHA: "sha-c"}}, l.Updates)
	})

	t.Run("requires base sha", func(t *testing.T) {
		s, _ := newTestStore(t)
		assert.ErrorIs(t, s.StageUpdate("b.txt", "x", ""), errors.ErrValidation)
	})
}

func TestStageDelete(t *testing.T) {
	t.Run("stages a delete", func(t *testing.T) {
		s, _ := newTestStore(t)
		require.NoError(t, s.StageDelete("c.txt", "sha-c"))

		l, err := s.Ledger()
		require.NoError(t, err)
		assert.Equal(t, []Entry{{Path: "c.txt", SHA: "sha-c"}}, l.Deletes)
	})

	t.Run("cancels pending create regardless of sha", func(t *testing.T) {
		for _, sha := range []string{"", "sha-x"} {
			s, _ := newTestStore(t)
			require.NoError(t, s.StageCreate("p.txt", "c1"))
			require.NoError(t, s.StageDelete("p.txt", sha))

			_, ok, err := s.Lookup("p.txt")
			require.NoError(t, err)
			assert.False(t, ok)
			pending, err := s.HasPending()
			require.NoError(t, err)
			assert.False(t, pending)
		}
	})

	t.Run("replaces pending update", func(t *testing.T) {
		s, _ := newTestStore(t)
		require.NoError(t, s.StageUpdate("b.txt", "edit", "sha-b"))
		require.NoError(t, s.StageDelete("b.txt", "sha-b"))

		l, err := s.Ledger()
		require.NoError(t, err)
		assert.Empty(t, l.Updates)
		assert.Equal(t, []Entry{{Path: "b.txt", SHA: "sha-b"}}, l.Deletes)
	})
}

func TestUnstageAndClear(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.StageCreate("a.txt", "hi"))
	require.NoError(t, s.StageUpdate("b.txt", "bye", "sha-b"))
	require.NoError(t, s.StageDelete("c.txt", "sha-c"))

	require.NoError(t, s.Unstage("b.txt"))
	require.NoError(t, s.Unstage("b.txt"))
	require.NoError(t, s.Unstage("never-staged.txt"))

	n, err := s.Len()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.Clear())
	pending, err := s.HasPending()
	require.NoError(t, err)
	assert.False(t, pending)

	l, err := s.Ledger()
	require.NoError(t, err)
	assert.True(t, l.IsEmpty())
}

func TestLedgerPersistsAcrossReload(t *testing.T) {
	s, db := newTestStore(t)
	require.NoError(t, s.StageCreate("src/a.txt", "hi"))
	require.NoError(t, s.StageUpdate("/src/b.txt/", "bye", "sha-b"))
	require.NoError(t, s.StageDelete("c.txt", "sha-c"))

	reloaded := NewStore(db, nil)
	l, err := reloaded.Ledger()
	require.NoError(t, err)
	assert.Equal(t, Ledger{
		Creates: []Entry{{Path: "src/a.txt", Content: "hi"}},
		Updates: []Entry{{Path: "src/b.txt", Content: "bye", SHA: "sha-b"}},
		Deletes: []Entry{{Path: "c.txt", SHA: "sha-c"}},
	}, l)

	require.NoError(t, reloaded.Clear())
	again := NewStore(db, nil)
	pending, err := again.HasPending()
	require.NoError(t, err)
	assert.False(t, pending)
}

// Any sequence of mutations leaves each path in at most one partition.
func TestLedgerOnePartitionPerPath(t *testing.T) {
	s, _ := newTestStore(t)
	rng := rand.New(rand.NewSource(42))
	paths := []string{"a", "b", "dir/c", "dir/d"}
	shas := []string{"sha-1", "sha-2"}

	for i := 0; i < 500; i++ {
		p := paths[rng.Intn(len(paths))]
		sha := shas[rng.Intn(len(shas))]
		switch rng.Intn(4) {
		case 0:
			_ = s.StageCreate(p, "c")
		case 1:
			_ = s.StageUpdate(p, "u", sha)
		case 2:
			_ = s.StageDelete(p, sha)
		case 3:
			_ = s.Unstage(p)
		}

		l, err := s.Ledger()
		require.NoError(t, err)
		seen := map[string]int{}
		for _, part := range [][]Entry{l.Creates, l.Updates, l.Deletes} {
			for _, e := range part {
				seen[e.Path]++
			}
		}
		for path, count := range seen {
			require.Equal(t, 1, count, "path %s appears in %d partitions", path, count)
		}
	}
}
