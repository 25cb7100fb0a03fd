// Package gitstore implements the repository backend over local git object
// storage. Repositories live in memory or as bare repositories under a root
// directory laid out as <root>/<owner>/<repo>.git.
package gitstore

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"ghos/internal/errors"
	"ghos/internal/logging"

	"github.com/go-git/go-billy/v5/osfs"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/go-git/go-git/v5/storage/memory"
	"go.uber.org/zap"
)

const DefaultBranch = "main"

type Backend struct {
	mu     sync.Mutex
	root   string // empty for in-memory repositories
	repos  map[string]storage.Storer
	author object.Signature
	now    func() time.Time
	logger *logging.Logger
}

type Option func(*Backend)

func WithAuthor(name, email string) Option {
	return func(b *Backend) {
		b.author = object.Signature{Name: name, Email: email}
	}
}

// WithClock overrides the commit timestamp source.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

func WithLogger(logger *logging.Logger) Option {
	return func(b *Backend) { b.logger = logger }
}

func newBackend(root string, opts []Option) *Backend {
	b := &Backend{
		root:   root,
		repos:  make(map[string]storage.Storer),
		author: object.Signature{Name: "ghos", Email: "ghos@localhost"},
		now:    time.Now,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewMemory returns a backend whose repositories vanish with the process.
func NewMemory(opts ...Option) *Backend {
	return newBackend("", opts)
}

// Open returns a backend over bare repositories below root.
func Open(root string, opts ...Option) (*Backend, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating repository root: %w", err)
	}
	return newBackend(root, opts), nil
}

// Invalidate is a no-op; reads always go to the object store.
func (b *Backend) Invalidate(owner, repo string) {}

func repoKey(owner, repo string) string {
	return owner + "/" + repo
}

func (b *Backend) repoDir(owner, repo string) string {
	return filepath.Join(b.root, owner, repo+".git")
}

// storer returns the object storage for owner/repo. Callers hold b.mu.
func (b *Backend) storer(owner, repo string) (storage.Storer, error) {
	key := repoKey(owner, repo)
	if st, ok := b.repos[key]; ok {
		return st, nil
	}
	if b.root == "" {
		return nil, errors.NotFound(fmt.Sprintf("repository %s not found", key))
	}

	dir := b.repoDir(owner, repo)
	if _, err := os.Stat(filepath.Join(dir, "HEAD")); err != nil {
		return nil, errors.NotFound(fmt.Sprintf("repository %s not found", key))
	}
	st := filesystem.NewStorage(osfs.New(dir), cache.NewObjectLRUDefault())
	b.repos[key] = st
	return st, nil
}

// CreateRepository initializes an empty bare repository whose HEAD points
// at branch.
func (b *Backend) CreateRepository(owner, repo, branch string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.createRepository(owner, repo, branch)
}

func (b *Backend) createRepository(owner, repo, branch string) error {
	if owner == "" || repo == "" || strings.ContainsAny(owner+repo, `/\`) {
		return errors.ValidationError("invalid repository name", repoKey(owner, repo))
	}
	if _, err := b.storer(owner, repo); err == nil {
		return errors.AlreadyExists(fmt.Sprintf("repository %s already exists", repoKey(owner, repo)))
	}
	if branch == "" {
		branch = DefaultBranch
	}

	var st storage.Storer
	if b.root == "" {
		st = memory.NewStorage()
	} else {
		dir := b.repoDir(owner, repo)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating repository directory: %w", err)
		}
		st = filesystem.NewStorage(osfs.New(dir), cache.NewObjectLRUDefault())
	}

	_, err := gogit.InitWithOptions(st, nil, gogit.InitOptions{
		DefaultBranch: plumbing.NewBranchReferenceName(branch),
	})
	if err != nil {
		return fmt.Errorf("initializing repository: %w", err)
	}

	b.repos[repoKey(owner, repo)] = st
	b.logger.Info("repository created",
		zap.String("owner", owner),
		zap.String("repo", repo),
		zap.String("branch", branch))
	return nil
}

// defaultBranch returns the branch HEAD points at.
func defaultBranch(st storage.Storer) (string, error) {
	head, err := st.Reference(plumbing.HEAD)
	if err != nil {
		return "", fmt.Errorf("reading HEAD: %w", err)
	}
	if head.Type() != plumbing.SymbolicReference {
		return "", errors.Internal("HEAD is detached", nil)
	}
	return head.Target().Short(), nil
}

// branchHead resolves refs/heads/branch. A missing branch is NotFound.
func branchHead(st storage.Storer, branch string) (plumbing.Hash, error) {
	ref, err := st.Reference(plumbing.NewBranchReferenceName(branch))
	if stderrors.Is(err, plumbing.ErrReferenceNotFound) {
		return plumbing.ZeroHash, errors.NotFound(fmt.Sprintf("branch %s not found", branch))
	}
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("reading branch %s: %w", branch, err)
	}
	return ref.Hash(), nil
}

// headTree returns the tree of the default branch, or nil for a
// repository without commits.
func headTree(st storage.Storer) (*object.Tree, error) {
	branch, err := defaultBranch(st)
	if err != nil {
		return nil, err
	}
	hash, err := branchHead(st, branch)
	if stderrors.Is(err, errors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	commit, err := object.GetCommit(st, hash)
	if err != nil {
		return nil, fmt.Errorf("reading commit %s: %w", hash, err)
	}
	return commit.Tree()
}

// repositoryNames lists repositories of owner in name order.
func (b *Backend) repositoryNames(owner string) ([]string, error) {
	seen := make(map[string]bool)
	for key := range b.repos {
		if o, r, ok := strings.Cut(key, "/"); ok && o == owner {
			seen[r] = true
		}
	}

	if b.root != "" {
		infos, err := osfs.New(b.root).ReadDir(owner)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("listing repositories: %w", err)
		}
		for _, info := range infos {
			if info.IsDir() && strings.HasSuffix(info.Name(), ".git") {
				seen[strings.TrimSuffix(info.Name(), ".git")] = true
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
