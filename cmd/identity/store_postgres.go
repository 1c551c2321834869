package identity

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

	"eucl/cmd/identity/ids"
)

// PostgresStore implements Store over PostgreSQL.
//
// The pgx pool is owned by the caller; the store never closes it.
// Schema identifiers are quoted with pgx.Identifier.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the schema (default "eucl").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "eucl",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

// CreateUser inserts the user and its roles in one transaction.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	emailNorm := NormalizeEmail(in.Email)
	if emailNorm == "" {
		return User{}, invalid(op, "email is required")
	}
	if strings.TrimSpace(in.PasswordHash) == "" {
		return User{}, invalid(op, "password hash is required")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := ids.NewUUID()
	if err != nil {
		return User{}, err
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

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return User{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO `+pgIdent(s.schema, "users")+` (
		     id, name, email, email_norm, phone, national_id, password_hash, created_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Name, u.Email, u.EmailNorm,
		pgNullIfEmpty(u.Phone), pgNullIfEmpty(u.NationalID),
		u.PasswordHash, u.CreatedAt,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, err
	}

	if err := insertRolesTx(ctx, tx, s.schema, u.ID, u.Roles); err != nil {
		return User{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"
	if !ids.IsUUID(id) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	row := s.pool.QueryRow(ctx, s.selectUsers()+` WHERE u.id = $1 GROUP BY u.id`, id)
	return scanUser(op, row)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, emailNorm string) (User, error) {
	const op = "identity.GetUserByEmail"
	row := s.pool.QueryRow(ctx, s.selectUsers()+` WHERE u.email_norm = $1 GROUP BY u.id`, emailNorm)
	return scanUser(op, row)
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	const op = "identity.ListUsers"
	rows, err := s.pool.Query(ctx, s.selectUsers()+` GROUP BY u.id ORDER BY u.created_at, u.email_norm`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(op, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetRoles(ctx context.Context, id string, roles RoleSet) error {
	const op = "identity.SetRoles"

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var locked string
	err = tx.QueryRow(ctx,
		`SELECT id FROM `+pgIdent(s.schema, "users")+` WHERE id = $1 FOR UPDATE`, id,
	).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return NotFoundError{Op: op, Resource: "user"}
		}
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM `+pgIdent(s.schema, "user_roles")+` WHERE user_id = $1`, id); err != nil {
		return err
	}
	if err := insertRolesTx(ctx, tx, s.schema, id, roles); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) SetPasswordHash(ctx context.Context, id, hash string) error {
	const op = "identity.SetPasswordHash"
	if strings.TrimSpace(hash) == "" {
		return invalid(op, "password hash is required")
	}
	if !ids.IsUUID(id) {
		return NotFoundError{Op: op, Resource: "user"}
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+pgIdent(s.schema, "users")+` SET password_hash = $2 WHERE id = $1`, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "user"}
	}
	return nil
}

func (s *PostgresStore) selectUsers() string {
	return `SELECT u.id, u.name, u.email, u.email_norm,
	               COALESCE(u.phone, ''), COALESCE(u.national_id, ''),
	               u.password_hash, u.created_at,
	               COALESCE(array_agg(r.role ORDER BY r.role) FILTER (WHERE r.role IS NOT NULL), '{}')::text[]
	          FROM ` + pgIdent(s.schema, "users") + ` u
	          LEFT JOIN ` + pgIdent(s.schema, "user_roles") + ` r ON r.user_id = u.id`
}

func insertRolesTx(ctx context.Context, tx pgx.Tx, schema, userID string, roles RoleSet) error {
	for _, name := range roles.Strings() {
		if _, err := tx.Exec(ctx,
			`INSERT INTO `+pgIdent(schema, "user_roles")+` (user_id, role) VALUES ($1, $2)`,
			userID, name,
		); err != nil {
			return err
		}
	}
	return nil
}

func scanUser(op string, row pgx.Row) (User, error) {
	var (
		u     User
		roles []string
	)
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.EmailNorm,
		&u.Phone, &u.NationalID,
		&u.PasswordHash, &u.CreatedAt,
		&roles,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, NotFoundError{Op: op, Resource: "user"}
		}
		return User{}, err
	}
	u.Roles, err = ParseRoleSet(roles)
	if err != nil {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "stored role set: " + err.Error()}
	}
	return u, nil
}

// ---- helpers ----

func pgNullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// pgIdent quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch c {
	case "uq_users_email_norm":
		return "email", true
	case "uq_users_phone":
		return "phone", true
	case "uq_users_national_id":
		return "national_id", true
	default:
		switch {
		case strings.Contains(c, "email"):
			return "email", true
		case strings.Contains(c, "phone"):
			return "phone", true
		case strings.Contains(c, "national"):
			return "national_id", true
		default:
			return "unknown", true
		}
	}
}
