package db

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WithTx runs fn inside a read-committed transaction. The transaction is
// committed when fn returns nil and rolled back otherwise; fn's error is
// returned unchanged so callers keep their typed domain errors.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return Storage("begin tx", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return Storage("commit tx", err)
	}
	return nil
}

// LockKeys takes transaction scoped advisory locks for every key, in the given
// order. Callers sort keys so that two transactions never wait on each other in
// opposite order.
func LockKeys(ctx context.Context, tx pgx.Tx, keys ...string) error {
	for _, k := range keys {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, AdvisoryKey(k)); err != nil {
			return Storage(fmt.Sprintf("advisory lock %s", k), err)
		}
	}
	return nil
}

// AdvisoryKey folds a string key into the int64 space used by pg_advisory locks.
func AdvisoryKey(k string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(k))
	return int64(h.Sum64())
}
