package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"eucl/cmd/identity"
)

// Identities is the identity collaborator the session layer consults.
// *identity.Service implements it.
type Identities interface {
	// Authenticate returns an error satisfying identity.IsInvalidCredentials
	// for unknown emails and wrong passwords alike.
	Authenticate(ctx context.Context, email, password string) (identity.User, error)
	GetByID(ctx context.Context, id string) (identity.User, error)
}

// Issued is a credential pair handed to a client.
type Issued struct {
	IdentityID   string
	CredentialID string
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
}

// Service implements login, refresh, logout and request authentication.
// It holds no per-session state of its own.
type Service struct {
	signer      Signer
	refresh     RefreshStore
	revocations RevocationRegistry
	identities  Identities

	log     *slog.Logger
	metrics *Metrics
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(signer Signer, refresh RefreshStore, revocations RevocationRegistry, identities Identities, opts ...Option) *Service {
	s := &Service{
		signer:      signer,
		refresh:     refresh,
		revocations: revocations,
		identities:  identities,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Login exchanges email and password for a fresh credential pair.
// Every credential failure is reported as ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, now time.Time, email, password string) (Issued, error) {
	u, err := s.identities.Authenticate(ctx, email, password)
	if err != nil {
		if identity.IsInvalidCredentials(err) || identity.IsNotFound(err) {
			s.metrics.login("invalid_credentials")
			return Issued{}, ErrInvalidCredentials
		}
		s.metrics.login("error")
		return Issued{}, fmt.Errorf("session: login: %w", err)
	}

	access, err := s.signer.Mint(u, now)
	if err != nil {
		s.metrics.login("error")
		return Issued{}, fmt.Errorf("session: login: %w", err)
	}
	s.metrics.mintedOne()

	refresh, err := s.refresh.Create(ctx, u.ID, now)
	if err != nil {
		s.metrics.login("error")
		return Issued{}, fmt.Errorf("session: login: %w", err)
	}

	s.metrics.login("success")
	s.log.Info("session.login", "user_id", u.ID, "credential_id", access.ID)
	return issued(access, refresh), nil
}

// Refresh rotates a refresh credential and mints a new access credential
// carrying the identity's current roles. The previous access credential is
// left to expire on its own.
func (s *Service) Refresh(ctx context.Context, now time.Time, refreshToken string) (Issued, error) {
	cred, err := s.refresh.Validate(ctx, refreshToken, now)
	if err != nil {
		return Issued{}, s.refreshFailure(err)
	}

	u, err := s.identities.GetByID(ctx, cred.IdentityID)
	if err != nil {
		if identity.IsNotFound(err) {
			s.metrics.refresh("invalid")
			return Issued{}, fmt.Errorf("%w: identity no longer exists", ErrInvalidRefreshToken)
		}
		s.metrics.refresh("error")
		return Issued{}, fmt.Errorf("session: refresh: %w", err)
	}

	access, err := s.signer.Mint(u, now)
	if err != nil {
		s.metrics.refresh("error")
		return Issued{}, fmt.Errorf("session: refresh: %w", err)
	}

	next, err := s.refresh.Rotate(ctx, cred, now)
	if err != nil {
		return Issued{}, s.refreshFailure(err)
	}
	s.metrics.mintedOne()

	s.metrics.refresh("success")
	s.log.Info("session.refresh", "user_id", u.ID, "credential_id", access.ID)
	return issued(access, next), nil
}

func (s *Service) refreshFailure(err error) error {
	if errors.Is(err, ErrRefreshNotFound) || errors.Is(err, ErrRefreshExpired) {
		s.metrics.refresh("invalid")
		return fmt.Errorf("%w: %w", ErrInvalidRefreshToken, err)
	}
	s.metrics.refresh("error")
	return fmt.Errorf("session: refresh: %w", err)
}

// Logout revokes the presented access credential until its own expiry plus
// the signer's leeway and returns its claims. The refresh credential is not touched. A token that
// does not currently authenticate, including one already logged out,
// yields ErrInvalidToken.
func (s *Service) Logout(ctx context.Context, now time.Time, accessToken string) (AccessClaims, error) {
	if strings.TrimSpace(accessToken) == "" {
		s.metrics.logout("invalid")
		return AccessClaims{}, fmt.Errorf("%w: %w", ErrInvalidToken, ErrTokenMalformed)
	}

	claims, err := s.Authenticate(ctx, now, accessToken)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			s.metrics.logout("invalid")
		} else {
			s.metrics.logout("error")
		}
		return AccessClaims{}, err
	}

	// Verify honours the leeway, so the revocation must outlive it too.
	until := claims.ExpiresAt.Add(s.signer.Leeway())
	if err := s.revocations.Revoke(ctx, claims.CredentialID, until); err != nil {
		s.metrics.logout("error")
		return AccessClaims{}, fmt.Errorf("session: logout: %w", err)
	}

	s.metrics.logout("success")
	s.log.Info("session.logout", "user_id", claims.IdentityID, "credential_id", claims.CredentialID)
	return claims, nil
}

// Authenticate verifies an access token and checks the revocation registry.
//
// A blank token yields ErrUnauthenticated. Any other rejection yields
// ErrInvalidToken wrapping one of ErrTokenExpired, ErrTokenMalformed,
// ErrTokenSignatureInvalid or ErrTokenRevoked.
func (s *Service) Authenticate(ctx context.Context, now time.Time, accessToken string) (AccessClaims, error) {
	if strings.TrimSpace(accessToken) == "" {
		s.metrics.authFailure("missing")
		return AccessClaims{}, ErrUnauthenticated
	}

	claims, err := s.signer.Verify(accessToken, now)
	if err != nil {
		s.metrics.authFailure(verifyReason(err))
		return AccessClaims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	revoked, err := s.revocations.IsRevoked(ctx, claims.CredentialID, now)
	if err != nil {
		return AccessClaims{}, fmt.Errorf("session: authenticate: %w", err)
	}
	if revoked {
		s.metrics.authFailure("revoked")
		return AccessClaims{}, fmt.Errorf("%w: %w", ErrInvalidToken, ErrTokenRevoked)
	}
	return claims, nil
}

// Authorize returns ErrForbidden unless claims hold at least one of roles.
func Authorize(claims AccessClaims, roles ...identity.Role) error {
	for _, r := range roles {
		if claims.HasRole(r) {
			return nil
		}
	}
	return ErrForbidden
}

func verifyReason(err error) string {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrTokenSignatureInvalid):
		return "signature"
	default:
		return "malformed"
	}
}

func issued(access AccessCredential, refresh RefreshCredential) Issued {
	return Issued{
		IdentityID:   access.IdentityID,
		CredentialID: access.ID,
		AccessToken:  access.Token,
		AccessExp:    access.ExpiresAt,
		RefreshToken: refresh.Token,
		RefreshExp:   refresh.ExpiresAt,
	}
}
