package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

// DBTxKey is the context key under which an open transaction is stored.
const DBTxKey contextKey = "db_tx"

// TxFromContext retrieves the current transaction from context, or nil if the
// caller is not running inside one.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// WithTx begins a transaction on the pool and returns a derived context that
// carries it. Repositories resolve their connection through TxFromContext, so
// every query issued with the returned context joins the transaction.
//
// Contract: callers that receive a context without a transaction manage their
// own boundary; callers inside WithTx must not commit or roll back except
// through the returned tx.
func WithTx(ctx context.Context, pool *pgxpool.Pool) (context.Context, pgx.Tx, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return ctx, nil, err
	}
	return context.WithValue(ctx, DBTxKey, tx), tx, nil
}

// WithNestedTx opens a savepoint on the transaction already in ctx, or a fresh
// transaction when there is none. It lets batch processors isolate each item:
// rolling back the returned tx undoes only that item's writes.
func WithNestedTx(ctx context.Context, pool *pgxpool.Pool) (context.Context, pgx.Tx, error) {
	if outer := TxFromContext(ctx); outer != nil {
		inner, err := outer.Begin(ctx)
		if err != nil {
			return ctx, nil, err
		}
		return context.WithValue(ctx, DBTxKey, inner), inner, nil
	}
	return WithTx(ctx, pool)
}
