package staging

import (
	stderrors "errors"
	"fmt"
	"sync"

	"ghos/internal/logging"
	"ghos/internal/storage"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

const ledgerID = "ledger"

// Store is the persisted staging ledger. Every mutation is a
// load-mutate-persist cycle under one mutex; a failed persist leaves the
// ledger as it was.
type Store struct {
	mu      sync.Mutex
	store   *storage.BadgerStore
	pending map[string]Operation
	loaded  bool
	logger  *logging.Logger
}

func NewStore(db *badger.DB, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Store{
		store:  storage.NewBadgerStore(db, "staging"),
		logger: logger,
	}
}

// ledgerRecord is the persisted shape: three path-keyed maps.
type ledgerRecord struct {
	Creates map[string]createRecord `json:"creates"`
	Updates map[string]updateRecord `json:"updates"`
	Deletes map[string]deleteRecord `json:"deletes"`
}

type createRecord struct {
	Content string `json:"content"`
}

type updateRecord struct {
	Content string `json:"content"`
	SHA     string `json:"sha"`
}

type deleteRecord struct {
	SHA string `json:"sha"`
}

func (r *ledgerRecord) GetID() string { return ledgerID }

func toRecord(pending map[string]Operation) *ledgerRecord {
	r := &ledgerRecord{
		Creates: make(map[string]createRecord),
		Updates: make(map[string]updateRecord),
		Deletes: make(map[string]deleteRecord),
	}
	for path, op := range pending {
		switch o := op.(type) {
		case Create:
			r.Creates[path] = createRecord{Content: o.Content}
		case Update:
			r.Updates[path] = updateRecord{Content: o.Content, SHA: o.BaseSHA}
		case Delete:
			r.Deletes[path] = deleteRecord{SHA: o.BaseSHA}
		}
	}
	return r
}

// fromRecord rebuilds the path map. A path found in more than one map can
// only come from a corrupted record; the later kind wins, matching the
// order mutations would have produced.
func fromRecord(r *ledgerRecord) map[string]Operation {
	pending := make(map[string]Operation)
	for path, c := range r.Creates {
		pending[path] = Create{Path: path, Content: c.Content}
	}
	for path, u := range r.Updates {
		pending[path] = Update{Path: path, Content: u.Content, BaseSHA: u.SHA}
	}
	for path, d := range r.Deletes {
		pending[path] = Delete{Path: path, BaseSHA: d.SHA}
	}
	return pending
}

// load must be called with s.mu held.
func (s *Store) load() error {
	if s.loaded {
		return nil
	}

	var r ledgerRecord
	err := s.store.Get(ledgerID, &r)
	switch {
	case stderrors.Is(err, storage.ErrNotFound):
		s.pending = make(map[string]Operation)
	case err != nil:
		return fmt.Errorf("loading staging ledger: %w", err)
	default:
		s.pending = fromRecord(&r)
	}
	s.loaded = true
	return nil
}

// mutate runs fn against a copy of the ledger and persists the copy.
func (s *Store) mutate(path string, fn func(pending map[string]Operation, path string) error) error {
	p, err := cleanPath(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return err
	}

	next := make(map[string]Operation, len(s.pending)+1)
	for k, v := range s.pending {
		next[k] = v
	}
	if err := fn(next, p); err != nil {
		return err
	}

	if err := s.persist(next); err != nil {
		return err
	}
	s.pending = next
	return nil
}

func (s *Store) persist(pending map[string]Operation) error {
	if len(pending) == 0 {
		if err := s.store.Delete(ledgerID); err != nil {
			return fmt.Errorf("saving staging ledger: %w", err)
		}
		return nil
	}
	if err := s.store.Put(toRecord(pending)); err != nil {
		return fmt.Errorf("saving staging ledger: %w", err)
	}
	return nil
}

// StageCreate stages a new file. It fails when an update is pending for
// path and replaces a pending delete.
func (s *Store) StageCreate(path, content string) error {
	err := s.mutate(path, func(pending map[string]Operation, p string) error {
		return applyCreate(pending, p, content)
	})
	if err == nil {
		s.logger.Debug("staged create", zap.String("path", path), zap.Int("bytes", len(content)))
	}
	return err
}

// StageUpdate stages new content for a file last seen at baseSHA. A pending
// create absorbs the update.
func (s *Store) StageUpdate(path, content, baseSHA string) error {
	err := s.mutate(path, func(pending map[string]Operation, p string) error {
		return applyUpdate(pending, p, content, baseSHA)
	})
	if err == nil {
		s.logger.Debug("staged update", zap.String("path", path), zap.String("base_sha", baseSHA))
	}
	return err
}

// StageDelete stages removal of a file last seen at baseSHA. A pending
// create is cancelled instead.
func (s *Store) StageDelete(path, baseSHA string) error {
	err := s.mutate(path, func(pending map[string]Operation, p string) error {
		return applyDelete(pending, p, baseSHA)
	})
	if err == nil {
		s.logger.Debug("staged delete", zap.String("path", path), zap.String("base_sha", baseSHA))
	}
	return err
}

// Unstage drops whatever is staged for path. It is a no-op when nothing is.
func (s *Store) Unstage(path string) error {
	return s.mutate(path, func(pending map[string]Operation, p string) error {
		delete(pending, p)
		return nil
	})
}

// Lookup returns the operation staged for path, if any.
func (s *Store) Lookup(path string) (Operation, bool, error) {
	p, err := cleanPath(path)
	if err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return nil, false, err
	}
	op, ok := s.pending[p]
	return op, ok, nil
}

// Ledger returns a snapshot of every staged operation.
func (s *Store) Ledger() (Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return Ledger{}, err
	}
	return newLedger(s.pending), nil
}

func (s *Store) Len() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return 0, err
	}
	return len(s.pending), nil
}

func (s *Store) HasPending() (bool, error) {
	n, err := s.Len()
	return n > 0, err
}

// Clear empties the ledger.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Delete(ledgerID); err != nil {
		return fmt.Errorf("clearing staging ledger: %w", err)
	}
	s.pending = make(map[string]Operation)
	s.loaded = true
	s.logger.Debug("staging ledger cleared")
	return nil
}
