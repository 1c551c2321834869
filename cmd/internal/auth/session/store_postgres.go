package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"eucl/cmd/security/token"
)

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresOption configures the Postgres-backed stores in this package.
type PostgresOption func(*pgTables) error

type pgTables struct {
	schema string
}

func (t pgTables) ident(name string) string {
	return pgx.Identifier{t.schema, name}.Sanitize()
}

// WithSchema sets the schema (default "eucl").
func WithSchema(schema string) PostgresOption {
	return func(t *pgTables) error {
		schema = strings.TrimSpace(schema)
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("session: invalid schema identifier %q", schema)
		}
		t.schema = schema
		return nil
	}
}

func newPGTables(opts []PostgresOption) (pgTables, error) {
	t := pgTables{schema: "eucl"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&t); err != nil {
			return pgTables{}, err
		}
	}
	return t, nil
}

// PostgresRefreshStore implements RefreshStore over eucl.refresh_tokens.
//
// Rotation deletes the old row with DELETE ... RETURNING inside the same
// transaction that inserts the successor. The row lock taken by DELETE
// serializes concurrent rotations; the loser re-evaluates after commit,
// finds no row and reports ErrRefreshNotFound.
type PostgresRefreshStore struct {
	pool   *pgxpool.Pool
	tables pgTables
	minter refreshMinter
}

var _ RefreshStore = (*PostgresRefreshStore)(nil)

func NewPostgresRefreshStore(pool *pgxpool.Pool, cfg Config, hasher token.Hasher, opts ...PostgresOption) (*PostgresRefreshStore, error) {
	if pool == nil {
		return nil, errors.New("session: nil pool")
	}
	t, err := newPGTables(opts)
	if err != nil {
		return nil, err
	}
	return &PostgresRefreshStore{pool: pool, tables: t, minter: newRefreshMinter(cfg, hasher)}, nil
}

func (s *PostgresRefreshStore) Create(ctx context.Context, identityID string, now time.Time) (RefreshCredential, error) {
	if identityID == "" {
		return RefreshCredential{}, errors.New("session: refresh create: empty identity id")
	}
	cred, hash, err := s.minter.mint(identityID, now)
	if err != nil {
		return RefreshCredential{}, err
	}
	if err := insertRefreshRow(ctx, s.pool, s.tables, hash, cred); err != nil {
		return RefreshCredential{}, err
	}
	return cred, nil
}

func (s *PostgresRefreshStore) Validate(ctx context.Context, tok string, now time.Time) (RefreshCredential, error) {
	hash, ok := s.minter.digest(tok)
	if !ok {
		return RefreshCredential{}, ErrRefreshNotFound
	}

	cred := RefreshCredential{Token: tok}
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, created_at, expires_at
		  FROM `+s.tables.ident("refresh_tokens")+`
		 WHERE token_hash = $1
	`, hash).Scan(&cred.IdentityID, &cred.CreatedAt, &cred.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return RefreshCredential{}, ErrRefreshNotFound
	}
	if err != nil {
		return RefreshCredential{}, err
	}

	if cred.Expired(now) {
		if _, err := s.pool.Exec(ctx, `DELETE FROM `+s.tables.ident("refresh_tokens")+` WHERE token_hash = $1`, hash); err != nil {
			return RefreshCredential{}, err
		}
		return RefreshCredential{}, ErrRefreshExpired
	}
	return cred, nil
}

func (s *PostgresRefreshStore) Rotate(ctx context.Context, old RefreshCredential, now time.Time) (RefreshCredential, error) {
	hash, ok := s.minter.digest(old.Token)
	if !ok {
		return RefreshCredential{}, ErrRefreshNotFound
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return RefreshCredential{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		identityID string
		expiresAt  time.Time
	)
	err = tx.QueryRow(ctx, `
		DELETE FROM `+s.tables.ident("refresh_tokens")+`
		 WHERE token_hash = $1
		RETURNING user_id, expires_at
	`, hash).Scan(&identityID, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return RefreshCredential{}, ErrRefreshNotFound
	}
	if err != nil {
		return RefreshCredential{}, err
	}

	if !now.Before(expiresAt) {
		// Keep the delete.
		if err := tx.Commit(ctx); err != nil {
			return RefreshCredential{}, err
		}
		return RefreshCredential{}, ErrRefreshExpired
	}

	next, nextHash, err := s.minter.mint(identityID, now)
	if err != nil {
		return RefreshCredential{}, err
	}
	if err := insertRefreshRow(ctx, tx, s.tables, nextHash, next); err != nil {
		return RefreshCredential{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return RefreshCredential{}, err
	}
	return next, nil
}

func (s *PostgresRefreshStore) Delete(ctx context.Context, tok string) error {
	hash, ok := s.minter.digest(tok)
	if !ok {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM `+s.tables.ident("refresh_tokens")+` WHERE token_hash = $1`, hash)
	return err
}

func (s *PostgresRefreshStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ct, err := s.pool.Exec(ctx, `DELETE FROM `+s.tables.ident("refresh_tokens")+` WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertRefreshRow(ctx context.Context, db pgExecer, t pgTables, hash string, cred RefreshCredential) error {
	_, err := db.Exec(ctx, `
		INSERT INTO `+t.ident("refresh_tokens")+` (token_hash, user_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`, hash, cred.IdentityID, cred.CreatedAt, cred.ExpiresAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" { // foreign_key_violation
			return fmt.Errorf("session: refresh create: unknown identity %q", cred.IdentityID)
		}
		return err
	}
	return nil
}
