// Package workspace is the command layer between the CLI and the core: it
// tracks the current directory, captures remote SHAs before staging and
// keeps the ledger bound to a single repository.
package workspace

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"sync"

	"ghos/internal/commit"
	"ghos/internal/diff"
	"ghos/internal/errors"
	"ghos/internal/logging"
	"ghos/internal/remote"
	"ghos/internal/staging"
	"ghos/internal/storage"
	"ghos/internal/vpath"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

const stateID = "state"

// State is persisted between invocations.
type State struct {
	Cwd string `json:"cwd"`
	// Owner and Repo name the repository the staged changes belong to.
	Owner string `json:"owner,omitempty"`
	Repo  string `json:"repo,omitempty"`
}

func (s *State) GetID() string { return stateID }

type Workspace struct {
	mu      sync.Mutex
	backend remote.Backend
	staging *staging.Store
	state   *storage.BadgerStore
	user    string
	logger  *logging.Logger
}

func New(backend remote.Backend, store *staging.Store, db *badger.DB, user string, logger *logging.Logger) *Workspace {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Workspace{
		backend: backend,
		staging: store,
		state:   storage.NewBadgerStore(db, "workspace"),
		user:    user,
		logger:  logger,
	}
}

func (w *Workspace) load() (*State, error) {
	st := &State{}
	err := w.state.Get(stateID, st)
	if stderrors.Is(err, storage.ErrNotFound) {
		return &State{Cwd: vpath.Root}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading workspace state: %w", err)
	}
	if st.Cwd == "" {
		st.Cwd = vpath.Root
	}
	return st, nil
}

func (w *Workspace) save(st *State) error {
	if err := w.state.Put(st); err != nil {
		return fmt.Errorf("saving workspace state: %w", err)
	}
	return nil
}

// Pwd returns the current virtual directory.
func (w *Workspace) Pwd() (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	st, err := w.load()
	if err != nil {
		return "", err
	}
	return st.Cwd, nil
}

// Resolve maps input against the current directory.
func (w *Workspace) Resolve(input string) (vpath.RepoAddress, error) {
	cwd, err := w.Pwd()
	if err != nil {
		return vpath.RepoAddress{}, err
	}
	return vpath.Parse(w.user, vpath.Resolve(cwd, input)), nil
}

// fileAddress resolves input and requires it to name a path inside a
// repository.
func (w *Workspace) fileAddress(input string) (vpath.RepoAddress, error) {
	addr, err := w.Resolve(input)
	if err != nil {
		return addr, err
	}
	if addr.IsRoot() || addr.IsRepoRoot() {
		return addr, errors.NotAFile(addr.String())
	}
	return addr, nil
}

// Cd changes the current directory after checking the target exists.
func (w *Workspace) Cd(ctx context.Context, input string) (string, error) {
	addr, err := w.Resolve(input)
	if err != nil {
		return "", err
	}

	switch {
	case addr.IsRoot():
	case addr.IsRepoRoot():
		if _, err := w.backend.GetRepository(ctx, addr.Owner, addr.Repo); err != nil {
			return "", err
		}
	default:
		if _, err := w.backend.ListDirectory(ctx, addr.Owner, addr.Repo, addr.Path); err != nil {
			return "", err
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	st, err := w.load()
	if err != nil {
		return "", err
	}
	st.Cwd = addr.String()
	if err := w.save(st); err != nil {
		return "", err
	}
	return st.Cwd, nil
}

// Item is one row of a listing with its staged status, if any.
type Item struct {
	Name   string
	Type   remote.EntryType
	Size   int64
	Staged staging.Kind // zero when nothing is staged
}

// Ls lists the repositories at the root or a directory inside one. Staged
// creates show up in the listing of their directory.
func (w *Workspace) Ls(ctx context.Context, input string) ([]Item, error) {
	addr, err := w.Resolve(input)
	if err != nil {
		return nil, err
	}

	if addr.IsRoot() {
		repos, err := w.backend.ListRepositories(ctx, addr.Owner)
		if err != nil {
			return nil, err
		}
		items := make([]Item, 0, len(repos))
		for _, r := range repos {
			items = append(items, Item{Name: r.Name, Type: remote.EntryDir})
		}
		return items, nil
	}

	entries, err := w.backend.ListDirectory(ctx, addr.Owner, addr.Repo, addr.Path)
	if err != nil {
		return nil, err
	}

	staged, err := w.stagedIn(addr)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		item := Item{Name: e.Name, Type: e.Type, Size: e.Size}
		if e.Type == remote.EntryFile {
			item.Staged = staged[e.Name]
		}
		seen[e.Name] = true
		items = append(items, item)
	}
	for name, kind := range staged {
		if !seen[name] && kind == staging.KindCreate {
			items = append(items, Item{Name: name, Type: remote.EntryFile, Staged: kind})
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

// stagedIn returns the staged kinds of files directly inside dir, keyed by
// name. Only the repository the ledger is bound to has any.
func (w *Workspace) stagedIn(dir vpath.RepoAddress) (map[string]staging.Kind, error) {
	w.mu.Lock()
	st, err := w.load()
	w.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make(map[string]staging.Kind)
	if st.Owner != dir.Owner || st.Repo != dir.Repo {
		return out, nil
	}

	ledger, err := w.staging.Ledger()
	if err != nil {
		return nil, err
	}
	prefix := dir.Path
	if prefix != "" {
		prefix += "/"
	}
	add := func(entries []staging.Entry, kind staging.Kind) {
		for _, e := range entries {
			if len(e.Path) <= len(prefix) || e.Path[:len(prefix)] != prefix {
				continue
			}
			name := e.Path[len(prefix):]
			if vpath.Base(name) == name {
				out[name] = kind
			}
		}
	}
	add(ledger.Creates, staging.KindCreate)
	add(ledger.Updates, staging.KindUpdate)
	add(ledger.Deletes, staging.KindDelete)
	return out, nil
}

// lookup returns the staged operation for addr when the ledger belongs to
// its repository.
func (w *Workspace) lookup(addr vpath.RepoAddress) (staging.Operation, bool, error) {
	w.mu.Lock()
	st, err := w.load()
	w.mu.Unlock()
	if err != nil {
		return nil, false, err
	}
	if st.Owner != addr.Owner || st.Repo != addr.Repo {
		return nil, false, nil
	}
	return w.staging.Lookup(addr.Path)
}

// Cat returns the content a commit would publish: staged content when
// present, otherwise the remote file.
func (w *Workspace) Cat(ctx context.Context, input string) (string, error) {
	addr, err := w.fileAddress(input)
	if err != nil {
		return "", err
	}

	op, ok, err := w.lookup(addr)
	if err != nil {
		return "", err
	}
	if ok {
		switch o := op.(type) {
		case staging.Create:
			return o.Content, nil
		case staging.Update:
			return o.Content, nil
		case staging.Delete:
			return "", errors.NotFound(fmt.Sprintf("%s is staged for deletion", addr.String()))
		}
	}

	f, err := w.backend.GetFile(ctx, addr.Owner, addr.Repo, addr.Path)
	if err != nil {
		return "", err
	}
	return f.Content, nil
}

// bind ties the ledger to addr's repository. Staging into a second
// repository while changes are pending is a conflict.
func (w *Workspace) bind(addr vpath.RepoAddress) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	st, err := w.load()
	if err != nil {
		return err
	}
	if st.Owner == addr.Owner && st.Repo == addr.Repo {
		return nil
	}
	pending, err := w.staging.HasPending()
	if err != nil {
		return err
	}
	if pending && st.Repo != "" {
		return errors.StagingConflict(addr.String(),
			fmt.Sprintf("changes are staged for %s/%s; commit or reset them first", st.Owner, st.Repo))
	}
	st.Owner, st.Repo = addr.Owner, addr.Repo
	return w.save(st)
}

// Touch stages a new file. It fails when the file already exists remotely.
func (w *Workspace) Touch(ctx context.Context, input, content string) error {
	addr, err := w.fileAddress(input)
	if err != nil {
		return err
	}
	if err := w.bind(addr); err != nil {
		return err
	}

	op, ok, err := w.staging.Lookup(addr.Path)
	if err != nil {
		return err
	}
	if !ok || op.Kind() != staging.KindCreate {
		_, err := w.backend.GetFile(ctx, addr.Owner, addr.Repo, addr.Path)
		switch {
		case err == nil:
			return errors.AlreadyExists(fmt.Sprintf("%s already exists; use edit", addr.String()))
		case !stderrors.Is(err, errors.ErrNotFound):
			return err
		}
	}

	if err := w.staging.StageCreate(addr.Path, content); err != nil {
		return err
	}
	w.logger.Debug("create staged", zap.String("path", addr.String()))
	return nil
}

// Edit stages new content for a file. The remote SHA is captured the
// first time the file is staged.
func (w *Workspace) Edit(ctx context.Context, input, content string) error {
	addr, err := w.fileAddress(input)
	if err != nil {
		return err
	}
	if err := w.bind(addr); err != nil {
		return err
	}

	op, ok, err := w.staging.Lookup(addr.Path)
	if err != nil {
		return err
	}

	var base string
	switch o := op.(type) {
	case staging.Update:
		base = o.BaseSHA
	case staging.Delete:
		base = o.BaseSHA
	}
	if !ok {
		f, err := w.backend.GetFile(ctx, addr.Owner, addr.Repo, addr.Path)
		if err != nil {
			return err
		}
		base = f.SHA
	}

	if err := w.staging.StageUpdate(addr.Path, content, base); err != nil {
		return err
	}
	w.logger.Debug("update staged", zap.String("path", addr.String()), zap.String("base", base))
	return nil
}

// Put stages content as a create or an update, whichever applies.
func (w *Workspace) Put(ctx context.Context, input, content string) error {
	addr, err := w.fileAddress(input)
	if err != nil {
		return err
	}

	op, ok, err := w.lookup(addr)
	if err != nil {
		return err
	}
	if ok {
		if op.Kind() == staging.KindCreate {
			return w.Touch(ctx, input, content)
		}
		return w.Edit(ctx, input, content)
	}

	_, err = w.backend.GetFile(ctx, addr.Owner, addr.Repo, addr.Path)
	switch {
	case err == nil:
		return w.Edit(ctx, input, content)
	case stderrors.Is(err, errors.ErrNotFound):
		return w.Touch(ctx, input, content)
	default:
		return err
	}
}

// Remove stages a deletion. A staged create is cancelled without asking
// the remote.
func (w *Workspace) Remove(ctx context.Context, input string) error {
	addr, err := w.fileAddress(input)
	if err != nil {
		return err
	}
	if err := w.bind(addr); err != nil {
		return err
	}

	op, ok, err := w.staging.Lookup(addr.Path)
	if err != nil {
		return err
	}

	var base string
	switch o := op.(type) {
	case staging.Create:
		// cancelled by the ledger rules
	case staging.Update:
		base = o.BaseSHA
	case staging.Delete:
		return nil
	}
	if !ok {
		f, err := w.backend.GetFile(ctx, addr.Owner, addr.Repo, addr.Path)
		if err != nil {
			return err
		}
		base = f.SHA
	}

	if err := w.staging.StageDelete(addr.Path, base); err != nil {
		return err
	}
	w.logger.Debug("delete staged", zap.String("path", addr.String()))
	return nil
}

func (w *Workspace) Unstage(input string) error {
	addr, err := w.fileAddress(input)
	if err != nil {
		return err
	}
	if _, ok, err := w.lookup(addr); err != nil || !ok {
		return err
	}
	return w.staging.Unstage(addr.Path)
}

// Status is the staged ledger and the repository it belongs to.
type Status struct {
	Owner  string
	Repo   string
	Ledger staging.Ledger
}

func (w *Workspace) Status() (*Status, error) {
	w.mu.Lock()
	st, err := w.load()
	w.mu.Unlock()
	if err != nil {
		return nil, err
	}
	ledger, err := w.staging.Ledger()
	if err != nil {
		return nil, err
	}
	return &Status{Owner: st.Owner, Repo: st.Repo, Ledger: ledger}, nil
}

// Diff compares the remote file with what is staged for it.
func (w *Workspace) Diff(ctx context.Context, input string) (*diff.DiffResult, error) {
	addr, err := w.fileAddress(input)
	if err != nil {
		return nil, err
	}
	op, ok, err := w.lookup(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.ValidationError(fmt.Sprintf("nothing staged for %s", addr.String()), addr.Path)
	}

	remoteContent := func() (string, error) {
		f, err := w.backend.GetFile(ctx, addr.Owner, addr.Repo, addr.Path)
		if err != nil {
			return "", err
		}
		return f.Content, nil
	}

	switch o := op.(type) {
	case staging.Create:
		return diff.Compare("", o.Content), nil
	case staging.Update:
		old, err := remoteContent()
		if err != nil {
			return nil, err
		}
		return diff.Compare(old, o.Content), nil
	default:
		old, err := remoteContent()
		if err != nil {
			return nil, err
		}
		return diff.Compare(old, ""), nil
	}
}

// Commit publishes the ledger to branch of the bound repository. An empty
// branch means the repository's default branch.
func (w *Workspace) Commit(ctx context.Context, engine *commit.Engine, message, branch string) (*commit.Result, error) {
	status, err := w.Status()
	if err != nil {
		return nil, err
	}
	if status.Ledger.IsEmpty() || status.Repo == "" {
		return nil, errors.ValidationError("nothing to commit", nil)
	}

	if branch == "" {
		repo, err := w.backend.GetRepository(ctx, status.Owner, status.Repo)
		if err != nil {
			return nil, err
		}
		branch = repo.DefaultBranch
	}

	result, err := engine.Commit(ctx, status.Owner, status.Repo, branch, status.Ledger, message)
	if err != nil {
		return result, err
	}
	return result, w.unbind()
}

// Reset drops every staged change.
func (w *Workspace) Reset() error {
	if err := w.staging.Clear(); err != nil {
		return err
	}
	return w.unbind()
}

func (w *Workspace) unbind() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	st, err := w.load()
	if err != nil {
		return err
	}
	st.Owner, st.Repo = "", ""
	return w.save(st)
}

// Tree walks the directory named by input depth first. fn receives each
// entry with its depth below the start; maxDepth <= 0 means unlimited.
func (w *Workspace) Tree(ctx context.Context, input string, maxDepth int, fn func(e remote.Entry, depth int) error) error {
	addr, err := w.Resolve(input)
	if err != nil {
		return err
	}
	if addr.IsRoot() {
		return errors.ValidationError("tree needs a repository path", addr.String())
	}
	return w.walk(ctx, addr, 0, maxDepth, fn)
}

func (w *Workspace) walk(ctx context.Context, dir vpath.RepoAddress, depth, maxDepth int, fn func(remote.Entry, int) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := w.backend.ListDirectory(ctx, dir.Owner, dir.Repo, dir.Path)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := fn(e, depth); err != nil {
			return err
		}
		if e.Type != remote.EntryDir || (maxDepth > 0 && depth+1 >= maxDepth) {
			continue
		}
		child := dir
		child.Path = e.Path
		if err := w.walk(ctx, child, depth+1, maxDepth, fn); err != nil {
			return err
		}
	}
	return nil
}
