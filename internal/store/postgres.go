// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"

	"github.com/holomush/extmgr/internal/extension"
)

// poolIface is the subset of pgxpool.Pool the repository uses; pgxmock
// satisfies it in tests.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// OpenPostgres connects a pool and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, oops.Code(CodeStoreFailed).With("operation", "connect").Wrap(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, oops.Code(CodeStoreFailed).With("operation", "ping").Wrap(err)
	}
	return pool, nil
}

// Postgres implements InstallStore on the installed_extensions table.
type Postgres struct {
	pool poolIface
}

// NewPostgres creates a PostgreSQL install store.
func NewPostgres(pool poolIface) *Postgres {
	return &Postgres{pool: pool}
}

// Get implements InstallStore.
func (p *Postgres) Get(ctx context.Context, id string) (*extension.Installable, error) {
	var meta []byte
	err := p.pool.QueryRow(ctx, `SELECT meta FROM installed_extensions WHERE id = $1`, id).Scan(&meta)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, wrapPG(err, "get install record").With("extension", id).Wrap(err)
	}
	return decode(id, meta)
}

// Upsert implements InstallStore.
func (p *Postgres) Upsert(ctx context.Context, ext *extension.Installable) error {
	meta, err := encode(ext)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO installed_extensions (id, version, hash, name, meta, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (id) DO UPDATE
		 SET version = $2, hash = $3, name = $4, meta = $5, updated_at = now()`,
		ext.ID, version(ext), ext.Hash(), ext.Name, meta)
	if err != nil {
		return wrapPG(err, "upsert install record").With("extension", ext.ID).Wrap(err)
	}
	return nil
}

// Delete implements InstallStore.
func (p *Postgres) Delete(ctx context.Context, id string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM installed_extensions WHERE id = $1`, id); err != nil {
		return wrapPG(err, "delete install record").With("extension", id).Wrap(err)
	}
	return nil
}

// List implements InstallStore.
func (p *Postgres) List(ctx context.Context) ([]*extension.Installable, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, meta FROM installed_extensions ORDER BY id`)
	if err != nil {
		return nil, wrapPG(err, "list install records").Wrap(err)
	}
	defer rows.Close()

	var out []*extension.Installable
	for rows.Next() {
		var id string
		var meta []byte
		if err := rows.Scan(&id, &meta); err != nil {
			return nil, oops.Code(CodeStoreFailed).With("operation", "scan install record").Wrap(err)
		}
		ext, err := decode(id, meta)
		if err != nil {
			return nil, err
		}
		out = append(out, ext)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code(CodeStoreFailed).With("operation", "iterate install records").Wrap(err)
	}
	return out, nil
}

// wrapPG classifies a PostgreSQL error. A missing table means the
// migrations have not been applied.
func wrapPG(err error, operation string) oops.OopsErrorBuilder {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable {
		return oops.Code(CodeStoreNotMigrated).With("operation", operation).Hint("run `extmgr migrate up`")
	}
	return oops.Code(CodeStoreFailed).With("operation", operation)
}
