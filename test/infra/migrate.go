package infra

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"timebank/db"
	"timebank/migrations"
)

// ApplyMigrations opens a pool on dsn and installs the journal schema. With
// isolate set, the run works in its own schema which the returned teardown
// drops, leaving a shared database as it was.
func ApplyMigrations(ctx context.Context, dsn string, isolate bool) (*pgxpool.Pool, func(context.Context) error, error) {
	teardown := func(context.Context) error { return nil }

	if isolate {
		schema := fmt.Sprintf("timebank_run_%d", time.Now().UnixNano())
		scoped, err := withSearchPath(dsn, schema)
		if err != nil {
			return nil, nil, err
		}
		base := dsn
		if err := onConn(ctx, base, "CREATE SCHEMA "+pgx.Identifier{schema}.Sanitize()); err != nil {
			return nil, nil, fmt.Errorf("infra: create schema %s: %w", schema, err)
		}
		teardown = func(ctx context.Context) error {
			return onConn(ctx, base, "DROP SCHEMA IF EXISTS "+pgx.Identifier{schema}.Sanitize()+" CASCADE")
		}
		dsn = scoped
	}

	pool, err := db.NewPool(ctx, db.Config{URL: dsn, MaxConns: 16, ConnectTimeout: 30 * time.Second})
	if err != nil {
		_ = teardown(ctx)
		return nil, nil, err
	}
	if _, err := migrations.Apply(ctx, pool); err != nil {
		pool.Close()
		_ = teardown(ctx)
		return nil, nil, err
	}
	return pool, teardown, nil
}

// withSearchPath pins search_path as a runtime parameter so every pooled
// connection lands in schema.
func withSearchPath(dsn, schema string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("infra: parse dsn: %w", err)
	}
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func onConn(ctx context.Context, dsn, sql string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, sql)
	return err
}
