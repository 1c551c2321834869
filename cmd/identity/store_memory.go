package identity

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"eucl/cmd/identity/ids"
)

// MemoryStore is an in-process Store used when no database is configured
// and in tests.
type MemoryStore struct {
	mu         sync.RWMutex
	byID       map[string]User
	byEmail    map[string]string
	byPhone    map[string]string
	byNational map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:       make(map[string]User),
		byEmail:    make(map[string]string),
		byPhone:    make(map[string]string),
		byNational: make(map[string]string),
	}
}

func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.MemoryStore.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	emailNorm := NormalizeEmail(in.Email)
	if emailNorm == "" {
		return User{}, invalid(op, "email is required")
	}
	if strings.TrimSpace(in.PasswordHash) == "" {
		return User{}, invalid(op, "password hash is required")
	}

	id, err := ids.NewUUID()
	if err != nil {
		return User{}, err
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	u := User{
		ID:           id,
		Name:         strings.TrimSpace(in.Name),
		Email:        strings.TrimSpace(in.Email),
		EmailNorm:    emailNorm,
		Phone:        NormalizePhone(in.Phone),
		NationalID:   NormalizeNationalID(in.NationalID),
		PasswordHash: in.PasswordHash,
		Roles:        in.Roles,
		CreatedAt:    now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[u.EmailNorm]; ok {
		return User{}, ConflictError{Op: op, Field: "email"}
	}
	if u.Phone != "" {
		if _, ok := s.byPhone[u.Phone]; ok {
			return User{}, ConflictError{Op: op, Field: "phone"}
		}
	}
	if u.NationalID != "" {
		if _, ok := s.byNational[u.NationalID]; ok {
			return User{}, ConflictError{Op: op, Field: "national_id"}
		}
	}

	s.byID[u.ID] = u
	s.byEmail[u.EmailNorm] = u.ID
	if u.Phone != "" {
		s.byPhone[u.Phone] = u.ID
	}
	if u.NationalID != "" {
		s.byNational[u.NationalID] = u.ID
	}
	return u, nil
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return User{}, NotFoundError{Op: "identity.MemoryStore.GetUserByID", Resource: "user"}
	}
	return u, nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, emailNorm string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[emailNorm]
	if !ok {
		return User{}, NotFoundError{Op: "identity.MemoryStore.GetUserByEmail", Resource: "user"}
	}
	return s.byID[id], nil
}

func (s *MemoryStore) ListUsers(ctx context.Context) ([]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]User, 0, len(s.byID))
	for _, u := range s.byID {
		out = append(out, u)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].EmailNorm < out[j].EmailNorm
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) SetRoles(ctx context.Context, id string, roles RoleSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return NotFoundError{Op: "identity.MemoryStore.SetRoles", Resource: "user"}
	}
	u.Roles = roles
	s.byID[id] = u
	return nil
}

func (s *MemoryStore) SetPasswordHash(ctx context.Context, id, hash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(hash) == "" {
		return invalid("identity.MemoryStore.SetPasswordHash", "password hash is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return NotFoundError{Op: "identity.MemoryStore.SetPasswordHash", Resource: "user"}
	}
	u.PasswordHash = hash
	s.byID[id] = u
	return nil
}
