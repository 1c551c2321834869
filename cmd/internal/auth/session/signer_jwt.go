package session

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"eucl/cmd/identity"
	"eucl/cmd/identity/ids"
)

const minHMACKeyBytes = 32

type accessTokenClaims struct {
	UserID string   `json:"uid"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// JWTSigner implements Signer with golang-jwt.
type JWTSigner struct {
	method    jwt.SigningMethod
	signKey   any
	verifyKey any

	issuer string
	ttl    time.Duration
	leeway time.Duration
}

var _ Signer = (*JWTSigner)(nil)

// NewJWTSigner parses the key material in cfg once. It returns
// ErrSigningKeyUnavailable when no key is configured.
func NewJWTSigner(cfg Config) (*JWTSigner, error) {
	raw := strings.TrimSpace(cfg.SigningKey)
	if raw == "" {
		return nil, ErrSigningKeyUnavailable
	}

	s := &JWTSigner{
		issuer: cfg.Issuer,
		ttl:    cfg.AccessTokenTTL,
		leeway: cfg.ClockSkew,
	}
	if s.ttl <= 0 {
		return nil, fmt.Errorf("%w: access token ttl must be positive", ErrConfig)
	}

	switch cfg.SigningAlgorithm {
	case AlgHS256, "":
		if len(raw) < minHMACKeyBytes {
			return nil, fmt.Errorf("%w: HS256 key must be at least %d bytes", ErrConfig, minHMACKeyBytes)
		}
		key := []byte(raw)
		s.method, s.signKey, s.verifyKey = jwt.SigningMethodHS256, key, key
	case AlgEdDSA:
		priv, err := parseEd25519Key(raw)
		if err != nil {
			return nil, err
		}
		s.method, s.signKey, s.verifyKey = jwt.SigningMethodEdDSA, priv, priv.Public()
	default:
		return nil, fmt.Errorf("%w: unsupported signing algorithm %q", ErrConfig, cfg.SigningAlgorithm)
	}
	return s, nil
}

func parseEd25519Key(raw string) (ed25519.PrivateKey, error) {
	b, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: EdDSA key must be hex", ErrConfig)
	}
	switch len(b) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(b), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(b), nil
	default:
		return nil, fmt.Errorf("%w: EdDSA key must be a 32-byte seed or 64-byte private key", ErrConfig)
	}
}

// Algorithm returns the JWT "alg" this signer produces.
func (s *JWTSigner) Algorithm() string { return s.method.Alg() }

// Leeway returns the configured clock skew.
func (s *JWTSigner) Leeway() time.Duration { return s.leeway }

// Mint signs an access credential for u valid from now for the configured TTL.
// The returned ExpiresAt is the embedded expiry (second precision).
func (s *JWTSigner) Mint(u identity.User, now time.Time) (AccessCredential, error) {
	if s == nil || s.signKey == nil {
		return AccessCredential{}, ErrSigningKeyUnavailable
	}
	if strings.TrimSpace(u.ID) == "" {
		return AccessCredential{}, errors.New("session: mint: empty identity id")
	}
	if u.Roles.IsEmpty() {
		return AccessCredential{}, fmt.Errorf("session: mint: identity %s has no roles", u.ID)
	}

	jti, err := ids.NewULID(now)
	if err != nil {
		return AccessCredential{}, fmt.Errorf("session: mint: credential id: %w", err)
	}

	iat := jwt.NewNumericDate(now)
	exp := jwt.NewNumericDate(now.Add(s.ttl))
	subject := u.EmailNorm
	if subject == "" {
		subject = identity.NormalizeEmail(u.Email)
	}

	claims := accessTokenClaims{
		UserID: u.ID,
		Roles:  u.Roles.Strings(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			ID:        jti,
			IssuedAt:  iat,
			ExpiresAt: exp,
		},
	}

	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.signKey)
	if err != nil {
		return AccessCredential{}, fmt.Errorf("%w: %w", ErrSigningKeyUnavailable, err)
	}

	return AccessCredential{
		Token:      signed,
		ID:         jti,
		IdentityID: u.ID,
		Subject:    subject,
		Roles:      u.Roles,
		IssuedAt:   iat.Time.UTC(),
		ExpiresAt:  exp.Time.UTC(),
	}, nil
}

// Verify checks structure, signature, issuer and expiry at now.
func (s *JWTSigner) Verify(raw string, now time.Time) (AccessClaims, error) {
	var claims accessTokenClaims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), &claims,
		func(*jwt.Token) (any, error) { return s.verifyKey, nil },
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(s.leeway),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return AccessClaims{}, classifyJWTError(err)
	}

	if claims.UserID == "" || claims.ID == "" {
		return AccessClaims{}, fmt.Errorf("%w: missing uid or jti", ErrTokenMalformed)
	}
	roles, err := identity.ParseRoleSet(claims.Roles)
	if err != nil {
		return AccessClaims{}, fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	}
	if roles.IsEmpty() {
		return AccessClaims{}, fmt.Errorf("%w: empty role set", ErrTokenMalformed)
	}

	out := AccessClaims{
		CredentialID: claims.ID,
		IdentityID:   claims.UserID,
		Subject:      claims.Subject,
		Issuer:       claims.Issuer,
		Roles:        roles,
		ExpiresAt:    claims.ExpiresAt.Time.UTC(),
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	return out, nil
}

// classifyJWTError maps golang-jwt failures onto the three verify kinds.
// Order matters: a token can carry several jwt sentinels at once.
// Claim failures other than expiry (wrong issuer, missing exp, nbf in the
// future) land in the default branch and count as malformed.
func classifyJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %w", ErrTokenSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", ErrTokenExpired, err)
	default:
		return fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	}
}
