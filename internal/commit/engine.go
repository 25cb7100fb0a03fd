// Package commit turns a staged ledger into exactly one commit on a branch.
//
// A commit runs five sequential stages against the backend: resolve the
// branch head and its tree, build tree entries from the ledger, create the
// merged tree, create the commit object, and advance the branch ref without
// forcing. The ledger is cleared only after the ref has moved.
package commit

import (
	"context"
	stderrors "errors"
	"fmt"

	"ghos/internal/errors"
	"ghos/internal/logging"
	"ghos/internal/remote"
	"ghos/internal/staging"

	"go.uber.org/zap"
)

type Stage string

func (s Stage) String() string { return string(s) }

const (
	StageResolveBase  Stage = "resolve-base"
	StageBuildTree    Stage = "build-tree"
	StageCreateTree   Stage = "create-tree"
	StageCreateCommit Stage = "create-commit"
	StageAdvanceRef   Stage = "advance-ref"
	// StageClear failures happen after the branch moved; Result is still
	// returned alongside the error.
	StageClear Stage = "clear-ledger"
)

// StageError names the stage a commit failed in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("commit failed at %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

type Result struct {
	CommitSHA string `json:"commit_sha"`
	Created   int    `json:"created"`
	Updated   int    `json:"updated"`
	Deleted   int    `json:"deleted"`
}

type Options struct {
	// RetryOnConflict rebuilds the commit once on the new head when the
	// ref update is rejected as stale.
	RetryOnConflict bool
	// VerifyBase re-reads every updated or deleted path before the first
	// stage and rejects the commit if its SHA changed since staging.
	VerifyBase bool
}

// Backend is the slice of remote.Backend the engine drives.
type Backend interface {
	remote.Reader
	remote.Writer
}

// Ledger is what the engine needs from the staging store.
type Ledger interface {
	Clear() error
}

type Engine struct {
	backend Backend
	ledger  Ledger
	opts    Options
	logger  *logging.Logger
}

func NewEngine(backend Backend, ledger Ledger, logger *logging.Logger, opts Options) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{backend: backend, ledger: ledger, opts: opts, logger: logger}
}

// Commit writes the ledger snapshot as one commit on branch.
func (e *Engine) Commit(ctx context.Context, owner, repo, branch string, ledger staging.Ledger, message string) (*Result, error) {
	if message == "" {
		return nil, errors.ValidationError("commit message is required", nil)
	}
	if ledger.IsEmpty() {
		return nil, errors.ValidationError("nothing to commit", nil)
	}
	if branch == "" {
		return nil, errors.ValidationError("branch is required", nil)
	}

	ctx = logging.WithOperationID(ctx)
	log := e.logger.WithOperation(ctx).With(
		zap.String("owner", owner),
		zap.String("repo", repo),
		zap.String("branch", branch))

	if e.opts.VerifyBase {
		if inv, ok := e.backend.(remote.Invalidator); ok {
			inv.Invalidate(owner, repo)
		}
		if err := e.verifyBase(ctx, owner, repo, ledger); err != nil {
			return nil, &StageError{Stage: StageResolveBase, Err: err}
		}
	}

	sha, err := e.attempt(ctx, log, owner, repo, branch, ledger, message)
	if err != nil && e.opts.RetryOnConflict && stderrors.Is(err, errors.ErrStaleVersion) {
		log.Info("branch moved, retrying on new head")
		sha, err = e.attempt(ctx, log, owner, repo, branch, ledger, message)
	}
	if err != nil {
		log.Warn("commit failed", zap.Error(err))
		return nil, err
	}

	if inv, ok := e.backend.(remote.Invalidator); ok {
		inv.Invalidate(owner, repo)
	}

	result := &Result{
		CommitSHA: sha,
		Created:   len(ledger.Creates),
		Updated:   len(ledger.Updates),
		Deleted:   len(ledger.Deletes),
	}

	if err := e.ledger.Clear(); err != nil {
		log.Error("commit landed but staging could not be cleared", zap.String("sha", sha), zap.Error(err))
		return result, &StageError{Stage: StageClear, Err: err}
	}

	log.Info("commit created",
		zap.String("sha", sha),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("deleted", result.Deleted))
	return result, nil
}

// attempt runs the five stages once and returns the new commit SHA.
func (e *Engine) attempt(ctx context.Context, log *zap.Logger, owner, repo, branch string, ledger staging.Ledger, message string) (string, error) {
	parent, err := e.backend.GetBranchHeadSHA(ctx, owner, repo, branch)
	if err != nil {
		return "", &StageError{Stage: StageResolveBase, Err: err}
	}
	baseTree, err := e.backend.GetTreeSHAForCommit(ctx, owner, repo, parent)
	if err != nil {
		return "", &StageError{Stage: StageResolveBase, Err: err}
	}
	log.Debug("stage done", zap.Stringer("stage", StageResolveBase), zap.String("parent", parent), zap.String("base_tree", baseTree))

	entries := BuildEntries(ledger)
	log.Debug("stage done", zap.Stringer("stage", StageBuildTree), zap.Int("entries", len(entries)))

	tree, err := e.backend.CreateTree(ctx, owner, repo, baseTree, entries)
	if err != nil {
		return "", &StageError{Stage: StageCreateTree, Err: err}
	}
	log.Debug("stage done", zap.Stringer("stage", StageCreateTree), zap.String("tree", tree))

	sha, err := e.backend.CreateCommit(ctx, owner, repo, remote.CommitRequest{
		Message: message,
		Tree:    tree,
		Parents: []string{parent},
	})
	if err != nil {
		return "", &StageError{Stage: StageCreateCommit, Err: err}
	}
	log.Debug("stage done", zap.Stringer("stage", StageCreateCommit), zap.String("sha", sha))

	if err := e.backend.UpdateRef(ctx, owner, repo, branch, sha); err != nil {
		return "", &StageError{Stage: StageAdvanceRef, Err: err}
	}
	return sha, nil
}

// BuildEntries maps a ledger to tree entries: one blob per create or
// update, one deletion per delete. Directories are never listed.
func BuildEntries(ledger staging.Ledger) []remote.TreeEntry {
	entries := make([]remote.TreeEntry, 0, ledger.Len())
	for _, c := range ledger.Creates {
		entries = append(entries, remote.BlobEntry(c.Path, c.Content))
	}
	for _, u := range ledger.Updates {
		entries = append(entries, remote.BlobEntry(u.Path, u.Content))
	}
	for _, d := range ledger.Deletes {
		entries = append(entries, remote.DeleteEntry(d.Path))
	}
	return entries
}

func (e *Engine) verifyBase(ctx context.Context, owner, repo string, ledger staging.Ledger) error {
	check := func(entry staging.Entry) error {
		f, err := e.backend.GetFile(ctx, owner, repo, entry.Path)
		if err != nil {
			if stderrors.Is(err, errors.ErrNotFound) {
				return errors.StaleVersion(fmt.Sprintf("%s was removed since it was staged", entry.Path), entry.Path)
			}
			return err
		}
		if f.SHA != entry.SHA {
			return errors.StaleVersion(fmt.Sprintf("%s changed since it was staged", entry.Path), entry.Path)
		}
		return nil
	}

	for _, u := range ledger.Updates {
		if err := check(u); err != nil {
			return err
		}
	}
	for _, d := range ledger.Deletes {
		if err := check(d); err != nil {
			return err
		}
	}
	return nil
}
