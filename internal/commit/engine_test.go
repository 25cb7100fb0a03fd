package commit

import (
	"context"
	stderrors "errors"
	"testing"

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

func setupTestDB(t *testing.T) *badger.DB {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// fixture is octo/demo with a.txt and c.txt on main.
type fixture struct {
	backend *gitstore.Backend
	store   *staging.Store
	ctx     context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "a.txt", []byte("old a\n"), 0o644))
	require.NoError(t, util.WriteFile(fs, "c.txt", []byte("old c\n"), 0o644))

	backend := gitstore.NewMemory()
	_, err := backend.Import(context.Background(), "octo", "demo", "main", fs, "seed")
	require.NoError(t, err)

	return &fixture{
		backend: backend,
		store:   staging.NewStore(setupTestDB(t), nil),
		ctx:     context.Background(),
	}
}

func (f *fixture) sha(t *testing.T, path string) string {
	t.Helper()
	file, err := f.backend.GetFile(f.ctx, "octo", "demo", path)
	require.NoError(t, err)
	return file.SHA
}

// stage creates b.txt, updates a.txt and deletes c.txt.
func (f *fixture) stage(t *testing.T) staging.Ledger {
	t.Helper()
	require.NoError(t, f.store.StageCreate("b.txt", "new b\n"))
	require.NoError(t, f.store.StageUpdate("a.txt", "new a\n", f.sha(t, "a.txt")))
	require.NoError(t, f.store.StageDelete("c.txt", f.sha(t, "c.txt")))
	ledger, err := f.store.Ledger()
	require.NoError(t, err)
	return ledger
}

func TestCommitCreateUpdateDelete(t *testing.T) {
	f := newFixture(t)
	ledger := f.stage(t)
	before, err := f.backend.GetBranchHeadSHA(f.ctx, "octo", "demo", "main")
	require.NoError(t, err)

	engine := NewEngine(f.backend, f.store, nil, Options{})
	result, err := engine.Commit(f.ctx, "octo", "demo", "main", ledger, "batch")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Deleted)

	head, err := f.backend.GetBranchHeadSHA(f.ctx, "octo", "demo", "main")
	require.NoError(t, err)
	assert.Equal(t, result.CommitSHA, head)
	assert.NotEqual(t, before, head)

	pending, err := f.store.HasPending()
	require.NoError(t, err)
	assert.False(t, pending)

	a, err := f.backend.GetFile(f.ctx, "octo", "demo", "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "new a\n", a.Content)
	b, err := f.backend.GetFile(f.ctx, "octo", "demo", "b.txt")
	require.NoError(t, err)
	assert.Equal(t, "new b\n", b.Content)
	_, err = f.backend.GetFile(f.ctx, "octo", "demo", "c.txt")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestCommitValidation(t *testing.T) {
	f := newFixture(t)
	engine := NewEngine(f.backend, f.store, nil, Options{})

	_, err := engine.Commit(f.ctx, "octo", "demo", "main", staging.Ledger{}, "msg")
	assert.ErrorIs(t, err, errors.ErrValidation)

	ledger := f.stage(t)
	_, err = engine.Commit(f.ctx, "octo", "demo", "main", ledger, "")
	assert.ErrorIs(t, err, errors.ErrValidation)
}

// racingBackend moves the branch underneath the engine right before the
// ref update, the first n times.
type racingBackend struct {
	*gitstore.Backend
	races       int
	invalidated int
}

func (r *racingBackend) UpdateRef(ctx context.Context, owner, repo, branch, sha string) error {
	if r.races > 0 {
		r.races--
		fs := memfs.New()
		if err := util.WriteFile(fs, "other.txt", []byte("someone else\n"), 0o644); err != nil {
			return err
		}
		if _, err := r.Backend.Import(ctx, owner, repo, branch, fs, "concurrent"); err != nil {
			return err
		}
	}
	return r.Backend.UpdateRef(ctx, owner, repo, branch, sha)
}

func (r *racingBackend) Invalidate(owner, repo string) {
	r.invalidated++
}

func TestStaleRefKeepsLedger(t *testing.T) {
	f := newFixture(t)
	ledger := f.stage(t)
	backend := &racingBackend{Backend: f.backend, races: 1}

	engine := NewEngine(backend, f.store, nil, Options{})
	result, err := engine.Commit(f.ctx, "octo", "demo", "main", ledger, "batch")
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, errors.ErrStaleVersion)

	var stageErr *StageError
	require.True(t, stderrors.As(err, &stageErr))
	assert.Equal(t, StageAdvanceRef, stageErr.Stage)

	after, err := f.store.Ledger()
	require.NoError(t, err)
	assert.Equal(t, ledger, after)
	assert.Zero(t, backend.invalidated)
}

func TestRetryOnConflict(t *testing.T) {
	f := newFixture(t)
	ledger := f.stage(t)
	backend := &racingBackend{Backend: f.backend, races: 1}

	engine := NewEngine(backend, f.store, nil, Options{RetryOnConflict: true})
	result, err := engine.Commit(f.ctx, "octo", "demo", "main", ledger, "batch")
	require.NoError(t, err)
	assert.Equal(t, 1, backend.invalidated)

	// the concurrent file survives because the retry rebased on it
	other, err := f.backend.GetFile(f.ctx, "octo", "demo", "other.txt")
	require.NoError(t, err)
	assert.Equal(t, "someone else\n", other.Content)

	head, err := f.backend.GetBranchHeadSHA(f.ctx, "octo", "demo", "main")
	require.NoError(t, err)
	assert.Equal(t, result.CommitSHA, head)
}

func TestRetryGivesUpAfterOnce(t *testing.T) {
	f := newFixture(t)
	ledger := f.stage(t)
	backend := &racingBackend{Backend: f.backend, races: 2}

	engine := NewEngine(backend, f.store, nil, Options{RetryOnConflict: true})
	_, err := engine.Commit(f.ctx, "octo", "demo", "main", ledger, "batch")
	assert.ErrorIs(t, err, errors.ErrStaleVersion)

	pending, err := f.store.HasPending()
	require.NoError(t, err)
	assert.True(t, pending)
}

func TestVerifyBaseDetectsChangedFile(t *testing.T) {
	f := newFixture(t)
	ledger := f.stage(t)

	// a.txt changes remotely after it was staged
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "a.txt", []byte("changed remotely\n"), 0o644))
	_, err := f.backend.Import(f.ctx, "octo", "demo", "main", fs, "remote edit")
	require.NoError(t, err)

	engine := NewEngine(f.backend, f.store, nil, Options{VerifyBase: true})
	_, err = engine.Commit(f.ctx, "octo", "demo", "main", ledger, "batch")
	assert.ErrorIs(t, err, errors.ErrStaleVersion)
	assert.Contains(t, err.Error(), "a.txt")

	// without verification the staged content wins
	engine = NewEngine(f.backend, f.store, nil, Options{})
	_, err = engine.Commit(f.ctx, "octo", "demo", "main", ledger, "batch")
	require.NoError(t, err)
}

func TestMissingBranch(t *testing.T) {
	f := newFixture(t)
	ledger := f.stage(t)

	engine := NewEngine(f.backend, f.store, nil, Options{})
	_, err := engine.Commit(f.ctx, "octo", "demo", "nope", ledger, "batch")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	var stageErr *StageError
	require.True(t, stderrors.As(err, &stageErr))
	assert.Equal(t, StageResolveBase, stageErr.Stage)
}

func TestBuildEntries(t *testing.T) {
	entries := BuildEntries(staging.Ledger{
		Creates: []staging.Entry{{Path: "b.txt", Content: "b"}},
		Updates: []staging.Entry{{Path: "a.txt", Content: "a", SHA: "s1"}},
		Deletes: []staging.Entry{{Path: "dir/c.txt", SHA: "s2"}},
	})
	assert.Equal(t, []remote.TreeEntry{
		remote.BlobEntry("b.txt", "b"),
		remote.BlobEntry("a.txt", "a"),
		remote.DeleteEntry("dir/c.txt"),
	}, entries)
}
