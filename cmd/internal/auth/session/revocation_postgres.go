package session

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRevocationRegistry shares revocations across instances via
// eucl.revoked_credentials. Every read hits the database.
type PostgresRevocationRegistry struct {
	pool   *pgxpool.Pool
	tables pgTables
}

var _ RevocationRegistry = (*PostgresRevocationRegistry)(nil)

func NewPostgresRevocationRegistry(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresRevocationRegistry, error) {
	if pool == nil {
		return nil, errors.New("session: nil pool")
	}
	t, err := newPGTables(opts)
	if err != nil {
		return nil, err
	}
	return &PostgresRevocationRegistry{pool: pool, tables: t}, nil
}

func (r *PostgresRevocationRegistry) Revoke(ctx context.Context, id string, until time.Time) error {
	if id == "" {
		return errors.New("session: revoke: empty credential id")
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO `+r.tables.ident("revoked_credentials")+` AS rc (credential_id, revoked_until)
		VALUES ($1, $2)
		ON CONFLICT (credential_id)
		DO UPDATE SET revoked_until = GREATEST(rc.revoked_until, EXCLUDED.revoked_until)
	`, id, until)
	return err
}

func (r *PostgresRevocationRegistry) IsRevoked(ctx context.Context, id string, now time.Time) (bool, error) {
	var revoked bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM `+r.tables.ident("revoked_credentials")+`
			 WHERE credential_id = $1 AND revoked_until > $2
		)
	`, id, now).Scan(&revoked)
	return revoked, err
}

func (r *PostgresRevocationRegistry) Prune(ctx context.Context, now time.Time) (int, error) {
	ct, err := r.pool.Exec(ctx, `DELETE FROM `+r.tables.ident("revoked_credentials")+` WHERE revoked_until <= $1`, now)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}
