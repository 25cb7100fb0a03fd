// Package session keeps the signed-in accounts. Exactly one account is
// active at a time once any account exists.
package session

import (
	stderrors "errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"ghos/internal/errors"
	"ghos/internal/logging"
	"ghos/internal/storage"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

type Account struct {
	Username    string    `json:"username"`
	AccessToken string    `json:"access_token"`
	CreatedAt   time.Time `json:"created_at"`
	Active      bool      `json:"active"`
}

func (a *Account) GetID() string { return a.Username }

type Manager struct {
	mu       sync.Mutex
	accounts *storage.BadgerStore
	logger   *logging.Logger
}

func NewManager(db *badger.DB, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		accounts: storage.NewBadgerStore(db, "account"),
		logger:   logger,
	}
}

// list returns accounts oldest first.
func (m *Manager) list() ([]*Account, error) {
	var accounts []*Account
	if _, err := m.accounts.List(&accounts); err != nil {
		return nil, err
	}
	sort.SliceStable(accounts, func(i, j int) bool {
		if accounts[i].CreatedAt.Equal(accounts[j].CreatedAt) {
			return accounts[i].Username < accounts[j].Username
		}
		return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
	})
	return accounts, nil
}

// activate marks username active and every other account inactive.
func (m *Manager) activate(accounts []*Account, username string) error {
	for _, a := range accounts {
		want := a.Username == username
		if a.Active == want {
			continue
		}
		a.Active = want
		if err := m.accounts.Put(a); err != nil {
			return fmt.Errorf("saving account %s: %w", a.Username, err)
		}
	}
	return nil
}

// Save stores the account and makes it active. Saving a known user
// replaces its token.
func (m *Manager) Save(username, token string) error {
	if username == "" || token == "" {
		return errors.ValidationError("username and token are required", nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	accounts, err := m.list()
	if err != nil {
		return err
	}

	account := &Account{Username: username, CreatedAt: time.Now()}
	found := false
	for _, a := range accounts {
		if a.Username == username {
			account = a
			found = true
		}
	}
	account.AccessToken = token
	account.Active = true
	if err := m.accounts.Put(account); err != nil {
		return fmt.Errorf("saving account %s: %w", username, err)
	}
	if !found {
		accounts = append(accounts, account)
	}

	m.logger.Info("account saved", zap.String("user", username))
	return m.activate(accounts, username)
}

// Active returns the signed-in account. Without one it fails with
// Unauthorized.
func (m *Manager) Active() (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	accounts, err := m.list()
	if err != nil {
		return nil, err
	}
	for _, a := range accounts {
		if a.Active {
			return a, nil
		}
	}
	return nil, errors.Unauthorized("not logged in")
}

func (m *Manager) List() ([]Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	accounts, err := m.list()
	if err != nil {
		return nil, err
	}
	out := make([]Account, len(accounts))
	for i, a := range accounts {
		out[i] = *a
	}
	return out, nil
}

func (m *Manager) Switch(username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var account Account
	if err := m.accounts.Get(username, &account); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.NotFound(fmt.Sprintf("no account for %s", username))
		}
		return err
	}

	accounts, err := m.list()
	if err != nil {
		return err
	}
	m.logger.Info("account switched", zap.String("user", username))
	return m.activate(accounts, username)
}

// Logout forgets the active account and promotes the oldest remaining
// one. It returns the promoted username, or "" when none is left.
func (m *Manager) Logout() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	accounts, err := m.list()
	if err != nil {
		return "", err
	}

	var remaining []*Account
	for _, a := range accounts {
		if a.Active {
			if err := m.accounts.Delete(a.Username); err != nil {
				return "", fmt.Errorf("removing account %s: %w", a.Username, err)
			}
			m.logger.Info("account logged out", zap.String("user", a.Username))
			continue
		}
		remaining = append(remaining, a)
	}
	if len(remaining) == 0 {
		return "", nil
	}

	next := remaining[0].Username
	return next, m.activate(remaining, next)
}

// Clear forgets every account.
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	accounts, err := m.list()
	if err != nil {
		return err
	}
	for _, a := range accounts {
		if err := m.accounts.Delete(a.Username); err != nil {
			return fmt.Errorf("removing account %s: %w", a.Username, err)
		}
	}
	return nil
}
