package identity

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

// timingEqualizer is hashed once at startup so unknown-email logins cost
// the same as wrong-password logins.
const timingEqualizer = "eucl timing equalizer 7f3a9c"

// RegisterInput is a self-service registration request.
type RegisterInput struct {
	Name       string
	Email      string
	Phone      string
	NationalID string
	Password   string
}

// Service is the identity application layer over a Store.
type Service struct {
	store     Store
	hasher    PasswordHasher
	log       *slog.Logger
	now       func() time.Time
	dummyHash string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(store Store, hasher PasswordHasher, opts ...ServiceOption) (*Service, error) {
	if store == nil || hasher == nil {
		return nil, errors.New("identity: nil store or hasher")
	}
	s := &Service{
		store:  store,
		hasher: hasher,
		log:    slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	h, err := hasher.Hash(timingEqualizer)
	if err != nil {
		return nil, err
	}
	s.dummyHash = h
	return s, nil
}

// Register creates a customer account. Self-service registration always
// grants RoleCustomer only.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	return s.create(ctx, "identity.Register", in, NewRoleSet(RoleCustomer))
}

// Authenticate resolves email+password to a user.
//
// Unknown emails and wrong passwords both return ErrInvalidCredentials and
// both pay for one hash verification.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	const op = "identity.Authenticate"

	emailNorm := NormalizeEmail(email)
	if emailNorm == "" || password == "" {
		_, _ = s.hasher.Verify(s.dummyHash, password)
		return User{}, OpError{Op: op, Kind: ErrInvalidCredentials}
	}

	u, err := s.store.GetUserByEmail(ctx, emailNorm)
	if err != nil {
		if IsNotFound(err) {
			_, _ = s.hasher.Verify(s.dummyHash, password)
			return User{}, OpError{Op: op, Kind: ErrInvalidCredentials}
		}
		return User{}, err
	}

	ok, err := s.hasher.Verify(u.PasswordHash, password)
	if err != nil {
		s.log.Error("identity.password.verify_failed", "user_id", u.ID, "err", err)
		return User{}, OpError{Op: op, Kind: ErrInvalidCredentials}
	}
	if !ok {
		return User{}, OpError{Op: op, Kind: ErrInvalidCredentials}
	}
	s.maybeRehash(ctx, &u, password)
	return u, nil
}

// maybeRehash upgrades a verified password hash to the current parameters.
// Failures are logged and never fail the login.
func (s *Service) maybeRehash(ctx context.Context, u *User, password string) {
	rh, ok := s.hasher.(Rehasher)
	if !ok || !rh.NeedsRehash(u.PasswordHash) {
		return
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.log.Warn("identity.password.rehash_failed", "user_id", u.ID, "err", err)
		return
	}
	if err := s.store.SetPasswordHash(ctx, u.ID, hash); err != nil {
		s.log.Warn("identity.password.rehash_failed", "user_id", u.ID, "err", err)
		return
	}
	u.PasswordHash = hash
	s.log.Info("identity.password.rehashed", "user_id", u.ID)
}

func (s *Service) GetByID(ctx context.Context, id string) (User, error) {
	return s.store.GetUserByID(ctx, strings.TrimSpace(id))
}

func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.store.ListUsers(ctx)
}

// SetRoles replaces a user's roles. Already-minted access credentials keep
// their old roles until they expire.
func (s *Service) SetRoles(ctx context.Context, id string, roles RoleSet) error {
	if roles.IsEmpty() {
		return invalid("identity.SetRoles", "role set must not be empty")
	}
	return s.store.SetRoles(ctx, id, roles)
}

// EnsureAdmin makes sure an administrator with email exists, creating it
// with password when missing and granting RoleAdmin when the account exists
// without it. created reports whether a new account was made.
func (s *Service) EnsureAdmin(ctx context.Context, name, email, password string) (u User, created bool, err error) {
	const op = "identity.EnsureAdmin"

	emailNorm := NormalizeEmail(email)
	if emailNorm == "" {
		return User{}, false, invalid(op, "admin email is required")
	}

	u, err = s.store.GetUserByEmail(ctx, emailNorm)
	switch {
	case err == nil:
		if u.Roles.Has(RoleAdmin) {
			return u, false, nil
		}
		u.Roles = u.Roles.Add(RoleAdmin)
		if err := s.store.SetRoles(ctx, u.ID, u.Roles); err != nil {
			return User{}, false, err
		}
		s.log.Info("identity.admin.promoted", "user_id", u.ID)
		return u, false, nil
	case !IsNotFound(err):
		return User{}, false, err
	}

	if strings.TrimSpace(name) == "" {
		name = "Administrator"
	}
	u, err = s.create(ctx, op, RegisterInput{Name: name, Email: email, Password: password}, NewRoleSet(RoleAdmin))
	if err != nil {
		return User{}, false, err
	}
	s.log.Info("identity.admin.created", "user_id", u.ID)
	return u, true, nil
}

func (s *Service) create(ctx context.Context, op string, in RegisterInput, roles RoleSet) (User, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.TrimSpace(in.Email)
	switch {
	case name == "":
		return User{}, invalid(op, "name is required")
	case !looksLikeEmail(email):
		return User{}, invalid(op, "email is invalid")
	case in.Phone != "" && NormalizePhone(in.Phone) == "":
		return User{}, invalid(op, "phone is invalid")
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return User{}, invalid(op, err.Error())
	}

	u, err := s.store.CreateUser(ctx, CreateUserInput{
		Name:         name,
		Email:        email,
		Phone:        in.Phone,
		NationalID:   in.NationalID,
		PasswordHash: hash,
		Roles:        roles,
		Now:          s.now(),
	})
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func looksLikeEmail(s string) bool {
	at := strings.LastIndexByte(s, '@')
	return at > 0 && at < len(s)-1 && !strings.ContainsAny(s, " \t\r\n")
}
