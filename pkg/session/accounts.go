package session

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrInvalidAccount = errors.New("account email and session token are required")

// SavedAccount is an identity remembered on this device. Email is the key.
type SavedAccount struct {
	Email        string    `json:"email"`
	SessionToken string    `json:"sessionToken"`
	Role         string    `json:"role"`
	RoleLevel    int       `json:"roleLevel"`
	CompanyID    *int64    `json:"companyId,omitempty"`
	CompanyName  string    `json:"companyName,omitempty"`
	LastUsed     time.Time `json:"lastUsed"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// AccountStore persists SavedAccounts as a JSON array under
// KeySavedAccounts. Reads fail soft and write failures are logged; the
// store then serves the last list it held in memory.
type AccountStore struct {
	mu      sync.Mutex
	storage Storage
	logger  *zap.Logger
	now     func() time.Time

	// fallback is the last list read or written, used when storage fails.
	fallback []SavedAccount
}

func NewAccountStore(storage Storage, logger *zap.Logger) *AccountStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountStore{storage: storage, logger: logger, now: time.Now}
}

// List returns the stored accounts. Absent or corrupt data yields an empty
// slice.
func (s *AccountStore) List() []SavedAccount {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// ByLastUsed returns the accounts most recently used first.
func (s *AccountStore) ByLastUsed() []SavedAccount {
	accounts := s.List()
	sort.SliceStable(accounts, func(i, j int) bool {
		return accounts[i].LastUsed.After(accounts[j].LastUsed)
	})
	return accounts
}

func (s *AccountStore) Get(email string) (SavedAccount, bool) {
	key := normalizeEmail(email)
	for _, a := range s.List() {
		if a.Email == key {
			return a, true
		}
	}
	return SavedAccount{}, false
}

// Save inserts the account or replaces the one with the same email.
func (s *AccountStore) Save(account SavedAccount) error {
	account.Email = normalizeEmail(account.Email)
	if account.Email == "" || account.SessionToken == "" {
		return ErrInvalidAccount
	}
	if account.LastUsed.IsZero() {
		account.LastUsed = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := s.loadLocked()
	replaced := false
	for i := range accounts {
		if accounts[i].Email == account.Email {
			accounts[i] = account
			replaced = true
			break
		}
	}
	if !replaced {
		accounts = append(accounts, account)
	}
	s.storeLocked(accounts)
	return nil
}

// Remove deletes the account with email. Missing accounts are ignored.
func (s *AccountStore) Remove(email string) {
	key := normalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := s.loadLocked()
	kept := accounts[:0]
	for _, a := range accounts {
		if a.Email != key {
			kept = append(kept, a)
		}
	}
	if len(kept) == len(accounts) {
		return
	}
	s.storeLocked(kept)
}

// UpdateLastUsed touches the timestamp of email and nothing else.
func (s *AccountStore) UpdateLastUsed(email string) {
	key := normalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := s.loadLocked()
	for i := range accounts {
		if accounts[i].Email == key {
			accounts[i].LastUsed = s.now()
			s.storeLocked(accounts)
			return
		}
	}
}

// FindByToken returns the account holding token.
func (s *AccountStore) FindByToken(token string) (SavedAccount, bool) {
	if token == "" {
		return SavedAccount{}, false
	}
	for _, a := range s.List() {
		if a.SessionToken == token {
			return a, true
		}
	}
	return SavedAccount{}, false
}

func (s *AccountStore) loadLocked() []SavedAccount {
	raw, ok, err := s.storage.Get(KeySavedAccounts)
	if err != nil {
		s.logger.Warn("failed to read saved accounts", zap.Error(err))
		return s.fallbackCopy()
	}
	if !ok || strings.TrimSpace(raw) == "" {
		s.fallback = nil
		return []SavedAccount{}
	}

	var accounts []SavedAccount
	if err := json.Unmarshal([]byte(raw), &accounts); err != nil {
		s.logger.Warn("ignoring corrupt saved accounts", zap.Error(err))
		s.fallback = nil
		return []SavedAccount{}
	}

	// Older writers could leave duplicates behind; the last one wins.
	seen := make(map[string]int, len(accounts))
	deduped := make([]SavedAccount, 0, len(accounts))
	for _, a := range accounts {
		a.Email = normalizeEmail(a.Email)
		if a.Email == "" {
			continue
		}
		if i, dup := seen[a.Email]; dup {
			deduped[i] = a
			continue
		}
		seen[a.Email] = len(deduped)
		deduped = append(deduped, a)
	}
	s.fallback = deduped
	return s.fallbackCopy()
}

func (s *AccountStore) storeLocked(accounts []SavedAccount) {
	s.fallback = append([]SavedAccount(nil), accounts...)

	raw, err := json.Marshal(accounts)
	if err != nil {
		s.logger.Error("failed to encode saved accounts", zap.Error(err))
		return
	}
	if err := s.storage.Set(KeySavedAccounts, string(raw)); err != nil {
		s.logger.Error("failed to persist saved accounts, keeping them in memory", zap.Error(err))
	}
}

func (s *AccountStore) fallbackCopy() []SavedAccount {
	out := make([]SavedAccount, len(s.fallback))
	copy(out, s.fallback)
	return out
}
