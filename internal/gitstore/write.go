package gitstore

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"ghos/internal/errors"
	"ghos/internal/remote"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/storage"
	"go.uber.org/zap"
)

// leaf is a non-tree entry of a flattened tree.
type leaf struct {
	mode filemode.FileMode
	hash plumbing.Hash
}

func (b *Backend) CreateTree(ctx context.Context, owner, repo, baseTreeSHA string, entries []remote.TreeEntry) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, err := b.storer(owner, repo)
	if err != nil {
		return "", err
	}
	hash, err := mergeTree(st, baseTreeSHA, entries)
	if err != nil {
		return "", err
	}
	return hash.String(), nil
}

// mergeTree applies entries on top of the base tree the way the hosted
// API does: unlisted paths are kept, deletions of absent paths are ignored
// and directories left empty disappear.
func mergeTree(st storage.Storer, baseTreeSHA string, entries []remote.TreeEntry) (plumbing.Hash, error) {
	files := make(map[string]leaf)
	if baseTreeSHA != "" {
		base, err := object.GetTree(st, plumbing.NewHash(baseTreeSHA))
		if err != nil {
			return plumbing.ZeroHash, errors.NotFound(fmt.Sprintf("tree %s not found", baseTreeSHA))
		}
		if err := flatten(base, files); err != nil {
			return plumbing.ZeroHash, err
		}
	}

	for _, e := range entries {
		p := strings.Trim(e.Path, "/")
		if p == "" {
			return plumbing.ZeroHash, errors.ValidationError("tree entry without path", e)
		}
		if e.Delete {
			delete(files, p)
			continue
		}
		mode, err := filemode.New(e.Mode)
		if err != nil {
			return plumbing.ZeroHash, errors.ValidationError("invalid file mode "+e.Mode, e.Path)
		}
		hash, err := writeBlob(st, e.Content)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		files[p] = leaf{mode: mode, hash: hash}
	}

	return writeTree(st, files)
}

func flatten(tree *object.Tree, files map[string]leaf) error {
	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()
	for {
		name, entry, err := walker.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("walking tree: %w", err)
		}
		if entry.Mode == filemode.Dir {
			continue
		}
		files[name] = leaf{mode: entry.Mode, hash: entry.Hash}
	}
}

func writeBlob(st storer.EncodedObjectStorer, content string) (plumbing.Hash, error) {
	obj := st.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if _, err := io.WriteString(w, content); err != nil {
		w.Close()
		return plumbing.ZeroHash, err
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, err
	}
	return st.SetEncodedObject(obj)
}

// writeTree encodes files, keyed by slash path, as nested tree objects and
// returns the root hash.
func writeTree(st storer.EncodedObjectStorer, files map[string]leaf) (plumbing.Hash, error) {
	var entries []object.TreeEntry
	subdirs := make(map[string]map[string]leaf)
	for p, l := range files {
		name, rest, nested := strings.Cut(p, "/")
		if !nested {
			entries = append(entries, object.TreeEntry{Name: name, Mode: l.mode, Hash: l.hash})
			continue
		}
		if subdirs[name] == nil {
			subdirs[name] = make(map[string]leaf)
		}
		subdirs[name][rest] = l
	}

	for name, sub := range subdirs {
		if _, clash := files[name]; clash {
			return plumbing.ZeroHash, errors.ValidationError(fmt.Sprintf("%s is both a file and a directory", name), name)
		}
		hash, err := writeTree(st, sub)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		entries = append(entries, object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: hash})
	}

	// git orders directories as if their name ended in '/'
	sortKey := func(e object.TreeEntry) string {
		if e.Mode == filemode.Dir {
			return e.Name + "/"
		}
		return e.Name
	}
	sort.Slice(entries, func(i, j int) bool {
		return sortKey(entries[i]) < sortKey(entries[j])
	})

	tree := &object.Tree{Entries: entries}
	obj := st.NewEncodedObject()
	if err := tree.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("encoding tree: %w", err)
	}
	return st.SetEncodedObject(obj)
}

func (b *Backend) CreateCommit(ctx context.Context, owner, repo string, req remote.CommitRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, err := b.storer(owner, repo)
	if err != nil {
		return "", err
	}
	hash, err := b.writeCommit(st, req)
	if err != nil {
		return "", err
	}
	return hash.String(), nil
}

func (b *Backend) writeCommit(st storage.Storer, req remote.CommitRequest) (plumbing.Hash, error) {
	treeHash := plumbing.NewHash(req.Tree)
	if _, err := object.GetTree(st, treeHash); err != nil {
		return plumbing.ZeroHash, errors.ValidationError("tree "+req.Tree+" does not exist", req.Tree)
	}

	parents := make([]plumbing.Hash, 0, len(req.Parents))
	for _, p := range req.Parents {
		hash := plumbing.NewHash(p)
		if _, err := object.GetCommit(st, hash); err != nil {
			return plumbing.ZeroHash, errors.ValidationError("parent "+p+" does not exist", p)
		}
		parents = append(parents, hash)
	}

	sig := b.author
	sig.When = b.now()
	commit := &object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      req.Message,
		TreeHash:     treeHash,
		ParentHashes: parents,
	}
	obj := st.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("encoding commit: %w", err)
	}
	return st.SetEncodedObject(obj)
}

// UpdateRef moves the branch only when sha descends from its current head
// and the ref is unchanged at write time.
func (b *Backend) UpdateRef(ctx context.Context, owner, repo, branch, sha string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, err := b.storer(owner, repo)
	if err != nil {
		return err
	}
	return b.advance(st, branch, plumbing.NewHash(sha))
}

func (b *Backend) advance(st storage.Storer, branch string, target plumbing.Hash) error {
	name := plumbing.NewBranchReferenceName(branch)
	old, err := st.Reference(name)
	if err != nil && !stderrors.Is(err, plumbing.ErrReferenceNotFound) {
		return fmt.Errorf("reading branch %s: %w", branch, err)
	}

	next, err := object.GetCommit(st, target)
	if err != nil {
		return errors.ValidationError("commit "+target.String()+" does not exist", target.String())
	}

	if old != nil {
		prev, err := object.GetCommit(st, old.Hash())
		if err != nil {
			return fmt.Errorf("reading head of %s: %w", branch, err)
		}
		ok, err := prev.IsAncestor(next)
		if err != nil {
			return fmt.Errorf("checking ancestry: %w", err)
		}
		if !ok && prev.Hash != next.Hash {
			return errors.StaleVersion(fmt.Sprintf("branch %s moved since the commit was prepared", branch), "Update is not a fast forward")
		}
	}

	err = st.CheckAndSetReference(plumbing.NewHashReference(name, target), old)
	if stderrors.Is(err, storage.ErrReferenceHasChanged) {
		return errors.StaleVersion(fmt.Sprintf("branch %s moved since the commit was prepared", branch), err.Error())
	}
	if err != nil {
		return fmt.Errorf("updating branch %s: %w", branch, err)
	}

	b.logger.Debug("branch advanced", zap.String("branch", branch), zap.String("sha", target.String()))
	return nil
}

func (b *Backend) ListBranches(ctx context.Context, owner, repo string) ([]remote.Branch, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, err := b.storer(owner, repo)
	if err != nil {
		return nil, err
	}
	def, err := defaultBranch(st)
	if err != nil {
		return nil, err
	}

	refs, err := st.IterReferences()
	if err != nil {
		return nil, fmt.Errorf("listing references: %w", err)
	}
	var branches []remote.Branch
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		if !ref.Name().IsBranch() || ref.Type() != plumbing.HashReference {
			return nil
		}
		name := ref.Name().Short()
		branches = append(branches, remote.Branch{Name: name, SHA: ref.Hash().String(), Protected: name == def})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(branches, func(i, j int) bool { return branches[i].Name < branches[j].Name })
	return branches, nil
}

func (b *Backend) CreateBranch(ctx context.Context, owner, repo, branch, fromSHA string) error {
	if err := remote.ValidateBranchName(branch); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	st, err := b.storer(owner, repo)
	if err != nil {
		return err
	}
	if _, err := branchHead(st, branch); err == nil {
		return errors.AlreadyExists(fmt.Sprintf("branch %s already exists", branch))
	}
	from := plumbing.NewHash(fromSHA)
	if _, err := object.GetCommit(st, from); err != nil {
		return errors.ValidationError("commit "+fromSHA+" does not exist", fromSHA)
	}
	return st.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName(branch), from))
}

// DeleteBranch refuses to remove the default branch.
func (b *Backend) DeleteBranch(ctx context.Context, owner, repo, branch string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, err := b.storer(owner, repo)
	if err != nil {
		return err
	}
	if _, err := branchHead(st, branch); err != nil {
		return err
	}
	if def, err := defaultBranch(st); err == nil && def == branch {
		return errors.Forbidden("permission denied or branch is protected")
	}
	return st.RemoveReference(plumbing.NewBranchReferenceName(branch))
}
