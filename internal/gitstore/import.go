package gitstore

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ghos/internal/errors"
	"ghos/internal/remote"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"
)

// Import commits every regular file of fs onto branch of owner/repo,
// creating the repository when it does not exist yet. Files not present in
// fs are kept from the previous head. It returns the new commit SHA.
func (b *Backend) Import(ctx context.Context, owner, repo, branch string, fs billy.Filesystem, message string) (string, error) {
	if branch == "" {
		branch = DefaultBranch
	}
	if err := remote.ValidateBranchName(branch); err != nil {
		return "", err
	}
	if message == "" {
		message = "Import files"
	}

	var entries []remote.TreeEntry
	err := util.Walk(fs, "/", func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		data, err := util.ReadFile(fs, p)
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(filepath.ToSlash(p), "/")
		entries = append(entries, remote.BlobEntry(rel, string(data)))
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walking import source: %w", err)
	}
	if len(entries) == 0 {
		return "", errors.ValidationError("nothing to import", nil)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	st, err := b.storer(owner, repo)
	if stderrors.Is(err, errors.ErrNotFound) {
		if err := b.createRepository(owner, repo, branch); err != nil {
			return "", err
		}
		st, err = b.storer(owner, repo)
	}
	if err != nil {
		return "", err
	}

	var (
		parents  []string
		baseTree string
	)
	head, err := branchHead(st, branch)
	switch {
	case err == nil:
		parents = []string{head.String()}
		commit, err := object.GetCommit(st, head)
		if err != nil {
			return "", fmt.Errorf("reading head: %w", err)
		}
		baseTree = commit.TreeHash.String()
	case !stderrors.Is(err, errors.ErrNotFound):
		return "", err
	}

	treeHash, err := mergeTree(st, baseTree, entries)
	if err != nil {
		return "", err
	}
	commitHash, err := b.writeCommit(st, remote.CommitRequest{Message: message, Tree: treeHash.String(), Parents: parents})
	if err != nil {
		return "", err
	}
	if err := b.advance(st, branch, commitHash); err != nil {
		return "", err
	}

	b.logger.Info("files imported",
		zap.String("owner", owner),
		zap.String("repo", repo),
		zap.String("branch", branch),
		zap.Int("files", len(entries)),
		zap.String("commit", commitHash.String()))
	return commitHash.String(), nil
}
