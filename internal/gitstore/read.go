package gitstore

import (
	"context"
	"fmt"
	"path"
	"strings"

	"ghos/internal/errors"
	"ghos/internal/remote"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
)

func (b *Backend) GetFile(ctx context.Context, owner, repo, p string) (*remote.File, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, err := b.storer(owner, repo)
	if err != nil {
		return nil, err
	}
	tree, err := headTree(st)
	if err != nil {
		return nil, err
	}

	p = strings.Trim(p, "/")
	if tree == nil || p == "" {
		if p == "" {
			return nil, errors.NotAFile("/")
		}
		return nil, errors.NotFound(fmt.Sprintf("file %s not found", p))
	}

	entry, err := tree.FindEntry(p)
	if err != nil {
		return nil, errors.NotFound(fmt.Sprintf("file %s not found", p))
	}
	if entry.Mode == filemode.Dir {
		return nil, errors.NotAFile(p)
	}

	file, err := tree.TreeEntryFile(entry)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", p, err)
	}
	content, err := file.Contents()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", p, err)
	}

	return &remote.File{
		Path:    p,
		Name:    path.Base(p),
		Content: content,
		SHA:     entry.Hash.String(),
		Size:    file.Size,
	}, nil
}

func (b *Backend) ListDirectory(ctx context.Context, owner, repo, p string) ([]remote.Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, err := b.storer(owner, repo)
	if err != nil {
		return nil, err
	}
	tree, err := headTree(st)
	if err != nil {
		return nil, err
	}

	p = strings.Trim(p, "/")
	if tree == nil {
		if p == "" {
			return []remote.Entry{}, nil
		}
		return nil, errors.NotFound(fmt.Sprintf("directory %s not found", p))
	}

	dir := tree
	if p != "" {
		entry, err := tree.FindEntry(p)
		if err != nil {
			return nil, errors.NotFound(fmt.Sprintf("directory %s not found", p))
		}
		if entry.Mode != filemode.Dir {
			return nil, errors.NotADirectory(p)
		}
		if dir, err = object.GetTree(st, entry.Hash); err != nil {
			return nil, fmt.Errorf("reading tree %s: %w", p, err)
		}
	}

	entries := make([]remote.Entry, 0, len(dir.Entries))
	for _, e := range dir.Entries {
		entry := remote.Entry{
			Name: e.Name,
			Path: path.Join(p, e.Name),
			Type: remote.EntryFile,
			SHA:  e.Hash.String(),
		}
		if e.Mode == filemode.Dir {
			entry.Type = remote.EntryDir
		} else if size, err := st.EncodedObjectSize(e.Hash); err == nil {
			entry.Size = size
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (b *Backend) ListRepositories(ctx context.Context, owner string) ([]remote.Repository, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	names, err := b.repositoryNames(owner)
	if err != nil {
		return nil, err
	}
	repos := make([]remote.Repository, 0, len(names))
	for _, name := range names {
		r, err := b.repository(owner, name)
		if err != nil {
			return nil, err
		}
		repos = append(repos, *r)
	}
	return repos, nil
}

func (b *Backend) GetRepository(ctx context.Context, owner, repo string) (*remote.Repository, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.repository(owner, repo)
}

func (b *Backend) repository(owner, repo string) (*remote.Repository, error) {
	st, err := b.storer(owner, repo)
	if err != nil {
		return nil, err
	}
	branch, err := defaultBranch(st)
	if err != nil {
		return nil, err
	}
	return &remote.Repository{Name: repo, DefaultBranch: branch}, nil
}

func (b *Backend) GetBranchHeadSHA(ctx context.Context, owner, repo, branch string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, err := b.storer(owner, repo)
	if err != nil {
		return "", err
	}
	hash, err := branchHead(st, branch)
	if err != nil {
		return "", err
	}
	return hash.String(), nil
}

func (b *Backend) GetTreeSHAForCommit(ctx context.Context, owner, repo, commitSHA string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, err := b.storer(owner, repo)
	if err != nil {
		return "", err
	}
	commit, err := object.GetCommit(st, plumbing.NewHash(commitSHA))
	if err != nil {
		return "", errors.NotFound(fmt.Sprintf("commit %s not found", commitSHA))
	}
	return commit.TreeHash.String(), nil
}
