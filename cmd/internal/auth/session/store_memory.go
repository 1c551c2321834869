package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"eucl/cmd/security/token"
)

type memoryRefreshRow struct {
	identityID string
	createdAt  time.Time
	expiresAt  time.Time
}

// MemoryRefreshStore is a RefreshStore for single-process deployments and tests.
type MemoryRefreshStore struct {
	minter refreshMinter

	mu   sync.Mutex
	rows map[string]memoryRefreshRow
}

var _ RefreshStore = (*MemoryRefreshStore)(nil)

func NewMemoryRefreshStore(cfg Config, hasher token.Hasher) *MemoryRefreshStore {
	return &MemoryRefreshStore{
		minter: newRefreshMinter(cfg, hasher),
		rows:   make(map[string]memoryRefreshRow),
	}
}

func (s *MemoryRefreshStore) Create(ctx context.Context, identityID string, now time.Time) (RefreshCredential, error) {
	if err := ctx.Err(); err != nil {
		return RefreshCredential{}, err
	}
	if identityID == "" {
		return RefreshCredential{}, errors.New("session: refresh create: empty identity id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(identityID, now)
}

func (s *MemoryRefreshStore) Validate(ctx context.Context, tok string, now time.Time) (RefreshCredential, error) {
	if err := ctx.Err(); err != nil {
		return RefreshCredential{}, err
	}
	hash, ok := s.minter.digest(tok)
	if !ok {
		return RefreshCredential{}, ErrRefreshNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[hash]
	if !ok {
		return RefreshCredential{}, ErrRefreshNotFound
	}
	cred := RefreshCredential{Token: tok, IdentityID: row.identityID, CreatedAt: row.createdAt, ExpiresAt: row.expiresAt}
	if cred.Expired(now) {
		delete(s.rows, hash)
		return RefreshCredential{}, ErrRefreshExpired
	}
	return cred, nil
}

func (s *MemoryRefreshStore) Rotate(ctx context.Context, old RefreshCredential, now time.Time) (RefreshCredential, error) {
	if err := ctx.Err(); err != nil {
		return RefreshCredential{}, err
	}
	hash, ok := s.minter.digest(old.Token)
	if !ok {
		return RefreshCredential{}, ErrRefreshNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[hash]
	if !ok {
		return RefreshCredential{}, ErrRefreshNotFound
	}
	delete(s.rows, hash)
	if !now.Before(row.expiresAt) {
		return RefreshCredential{}, ErrRefreshExpired
	}
	return s.insertLocked(row.identityID, now)
}

func (s *MemoryRefreshStore) Delete(ctx context.Context, tok string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	hash, ok := s.minter.digest(tok)
	if !ok {
		return nil
	}
	s.mu.Lock()
	delete(s.rows, hash)
	s.mu.Unlock()
	return nil
}

func (s *MemoryRefreshStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for h, row := range s.rows {
		if !now.Before(row.expiresAt) {
			delete(s.rows, h)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored rows, expired or not.
func (s *MemoryRefreshStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func (s *MemoryRefreshStore) insertLocked(identityID string, now time.Time) (RefreshCredential, error) {
	// Never overwrite an existing row.
	for attempt := 0; attempt < 3; attempt++ {
		cred, hash, err := s.minter.mint(identityID, now)
		if err != nil {
			return RefreshCredential{}, err
		}
		if _, exists := s.rows[hash]; exists {
			continue
		}
		s.rows[hash] = memoryRefreshRow{identityID: identityID, createdAt: cred.CreatedAt, expiresAt: cred.ExpiresAt}
		return cred, nil
	}
	return RefreshCredential{}, errors.New("session: refresh token collision")
}
