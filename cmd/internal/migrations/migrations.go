// Package migrations embeds eucl's schema and applies it with goose.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed *.sql
var FS embed.FS

// Schema is the Postgres schema created by the migrations.
const Schema = "eucl"

// gooseUpContext is a seam for tests.
var gooseUpContext = func(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer func() { _ = db.Close() }()
	return goose.UpContext(ctx, db, ".")
}

// Up applies every pending migration using a database/sql handle borrowed
// from pool.
func Up(ctx context.Context, pool *pgxpool.Pool) error {
	goose.SetBaseFS(FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("migrations: dialect: %w", err)
	}
	if err := gooseUpContext(ctx, pool); err != nil {
		return fmt.Errorf("migrations: up: %w", err)
	}
	return nil
}

// UpSQL returns the "Up" half of every migration, in order, with the eucl
// schema renamed to schema. Integration tests use it to build isolated
// schemas without touching goose's version table.
func UpSQL(schema string) (string, error) {
	names, err := fs.Glob(FS, "*.sql")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, name := range names {
		raw, err := fs.ReadFile(FS, name)
		if err != nil {
			return "", err
		}
		up, _, _ := strings.Cut(string(raw), "-- +goose Down")
		up = strings.ReplaceAll(up, "SCHEMA IF NOT EXISTS "+Schema+";", "SCHEMA IF NOT EXISTS "+schema+";")
		up = strings.ReplaceAll(up, Schema+".", schema+".")
		b.WriteString(up)
		b.WriteString("\n")
	}
	return b.String(), nil
}
