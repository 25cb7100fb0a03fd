package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ghos/internal/commit"
	"ghos/internal/errors"
	"ghos/internal/gitstore"
	"ghos/internal/remote"
	"ghos/internal/staging"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	ws      *Workspace
	backend *gitstore.Backend
	store   *staging.Store
	db      *badger.DB
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "README.md", []byte("# demo\n"), 0o644))
	require.NoError(t, util.WriteFile(fs, "src/main.go", []byte("package main\n"), 0o644))
	backend := gitstore.NewMemory()
	_, err = backend.Import(context.Background(), "octo", "demo", "main", fs, "seed")
	require.NoError(t, err)
	_, err = backend.Import(context.Background(), "octo", "other", "main", fs, "seed")
	require.NoError(t, err)

	store := staging.NewStore(db, nil)
	return &fixture{
		ws:      New(backend, store, db, "octo", nil),
		backend: backend,
		store:   store,
		db:      db,
	}
}

func TestCdAndPwdPersist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pwd, err := f.ws.Pwd()
	require.NoError(t, err)
	assert.Equal(t, "/", pwd)

	got, err := f.ws.Cd(ctx, "demo/src")
	require.NoError(t, err)
	assert.Equal(t, "/demo/src", got)

	got, err = f.ws.Cd(ctx, "..")
	require.NoError(t, err)
	assert.Equal(t, "/demo", got)

	_, err = f.ws.Cd(ctx, "README.md")
	assert.ErrorIs(t, err, errors.ErrNotADirectory)
	_, err = f.ws.Cd(ctx, "/missing")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	// a fresh workspace over the same database keeps the directory
	reopened := New(f.backend, f.store, f.db, "octo", nil)
	pwd, err = reopened.Pwd()
	require.NoError(t, err)
	assert.Equal(t, "/demo", pwd)
}

func TestLsShowsRepositoriesAndStagedFiles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	items, err := f.ws.Ls(ctx, "/")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "demo", items[0].Name)

	require.NoError(t, f.ws.Touch(ctx, "/demo/NEW.md", "new"))
	require.NoError(t, f.ws.Edit(ctx, "/demo/README.md", "# changed\n"))

	items, err = f.ws.Ls(ctx, "/demo")
	require.NoError(t, err)
	byName := map[string]Item{}
	for _, it := range items {
		byName[it.Name] = it
	}
	assert.Equal(t, staging.KindCreate, byName["NEW.md"].Staged)
	assert.Equal(t, staging.KindUpdate, byName["README.md"].Staged)
	assert.Equal(t, remote.EntryDir, byName["src"].Type)
	assert.Zero(t, byName["src"].Staged)
}

func TestTouchEditRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.ws.Cd(ctx, "/demo")
	require.NoError(t, err)

	assert.ErrorIs(t, f.ws.Touch(ctx, "README.md", "x"), errors.ErrAlreadyExists)
	assert.ErrorIs(t, f.ws.Edit(ctx, "missing.md", "x"), errors.ErrNotFound)
	assert.ErrorIs(t, f.ws.Touch(ctx, "/", "x"), errors.ErrNotAFile)

	readme, err := f.backend.GetFile(ctx, "octo", "demo", "README.md")
	require.NoError(t, err)

	require.NoError(t, f.ws.Edit(ctx, "README.md", "v1"))
	require.NoError(t, f.ws.Edit(ctx, "README.md", "v2"))
	op, ok, err := f.store.Lookup("README.md")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, staging.Update{Path: "README.md", Content: "v2", BaseSHA: readme.SHA}, op)

	content, err := f.ws.Cat(ctx, "README.md")
	require.NoError(t, err)
	assert.Equal(t, "v2", content)

	require.NoError(t, f.ws.Remove(ctx, "README.md"))
	op, _, err = f.store.Lookup("README.md")
	require.NoError(t, err)
	assert.Equal(t, staging.Delete{Path: "README.md", BaseSHA: readme.SHA}, op)
	_, err = f.ws.Cat(ctx, "README.md")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	// touching then removing a new file leaves nothing staged
	require.NoError(t, f.ws.Touch(ctx, "tmp.txt", "t"))
	require.NoError(t, f.ws.Remove(ctx, "tmp.txt"))
	_, ok, err = f.store.Lookup("tmp.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLedgerBoundToOneRepository(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.ws.Touch(ctx, "/demo/a.txt", "a"))
	assert.ErrorIs(t, f.ws.Touch(ctx, "/other/a.txt", "a"), errors.ErrStagingConflict)

	require.NoError(t, f.ws.Reset())
	require.NoError(t, f.ws.Touch(ctx, "/other/a.txt", "a"))

	status, err := f.ws.Status()
	require.NoError(t, err)
	assert.Equal(t, "other", status.Repo)
	assert.Len(t, status.Ledger.Creates, 1)
}

func TestDiff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.ws.Edit(ctx, "/demo/README.md", "# demo\nmore\n"))
	d, err := f.ws.Diff(ctx, "/demo/README.md")
	require.NoError(t, err)
	assert.Equal(t, 1, d.Stats.Additions)
	assert.Equal(t, 0, d.Stats.Deletions)

	require.NoError(t, f.ws.Remove(ctx, "/demo/src/main.go"))
	d, err = f.ws.Diff(ctx, "/demo/src/main.go")
	require.NoError(t, err)
	assert.Equal(t, 1, d.Stats.Deletions)

	_, err = f.ws.Diff(ctx, "/demo/untouched.md")
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestCommitUsesDefaultBranchAndUnbinds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.ws.Touch(ctx, "/demo/docs/new.md", "hello\n"))
	require.NoError(t, f.ws.Edit(ctx, "/demo/README.md", "# demo 2\n"))

	engine := commit.NewEngine(f.backend, f.store, nil, commit.Options{})
	result, err := f.ws.Commit(ctx, engine, "update docs", "")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Updated)

	status, err := f.ws.Status()
	require.NoError(t, err)
	assert.Empty(t, status.Repo)
	assert.True(t, status.Ledger.IsEmpty())

	content, err := f.ws.Cat(ctx, "/demo/docs/new.md")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", content)

	_, err = f.ws.Commit(ctx, engine, "again", "")
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestTree(t *testing.T) {
	f := newFixture(t)
	var paths []string
	err := f.ws.Tree(context.Background(), "/demo", 0, func(e remote.Entry, depth int) error {
		paths = append(paths, e.Path)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"README.md", "src", "src/main.go"}, paths)

	err = f.ws.Tree(context.Background(), "/", 0, func(remote.Entry, int) error { return nil })
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestWatcherRestagesOnWrite(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	local := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(local, []byte("first\n"), 0o644))

	w, err := NewWatcher(f.ws, local, "/demo/notes.md")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case <-w.Staged:
	case <-time.After(5 * time.Second):
		t.Fatal("initial stage not observed")
	}
	op, ok, err := f.store.Lookup("notes.md")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, staging.Create{Path: "notes.md", Content: "first\n"}, op)

	require.NoError(t, os.WriteFile(local, []byte("second\n"), 0o644))
	assert.Eventually(t, func() bool {
		op, _, err := f.store.Lookup("notes.md")
		return err == nil && op == staging.Operation(staging.Create{Path: "notes.md", Content: "second\n"})
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
