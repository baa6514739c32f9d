package database

import (
	"context"
	"errors"
)

type txKey struct{}

type txInfo struct {
	tx    Transaction
	owned bool
}

// WithTx stores a transaction in the context.
func WithTx(ctx context.Context, tx Transaction, owned bool) context.Context {
	return context.WithValue(ctx, txKey{}, txInfo{tx: tx, owned: owned})
}

// TxFromContext returns the transaction carried by ctx, or nil.
func TxFromContext(ctx context.Context) Transaction {
	info, ok := ctx.Value(txKey{}).(txInfo)
	if !ok {
		return nil
	}
	return info.tx
}

// ExecutorFromContext returns the ambient transaction if present, otherwise conn.
func ExecutorFromContext(ctx context.Context, conn Connection) Executor {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return conn
}

// UnitOfWork implements application.UnitOfWork on top of a Connection.
// Nested Begin calls join the outer transaction and leave commit to its owner.
type UnitOfWork struct {
	conn Connection
}

// NewUnitOfWork creates a unit of work bound to conn.
func NewUnitOfWork(conn Connection) *UnitOfWork {
	return &UnitOfWork{conn: conn}
}

func (u *UnitOfWork) Begin(ctx context.Context) (context.Context, error) {
	if info, ok := ctx.Value(txKey{}).(txInfo); ok && info.tx != nil {
		return WithTx(ctx, info.tx, false), nil
	}

	tx, err := u.conn.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	return WithTx(ctx, tx, true), nil
}

func (u *UnitOfWork) Commit(ctx context.Context) error {
	info, err := ownedTx(ctx)
	if err != nil || !info.owned {
		return err
	}
	return info.tx.Commit(ctx)
}

func (u *UnitOfWork) Rollback(ctx context.Context) error {
	info, err := ownedTx(ctx)
	if err != nil || !info.owned {
		return err
	}
	return info.tx.Rollback(ctx)
}

func ownedTx(ctx context.Context) (txInfo, error) {
	info, ok := ctx.Value(txKey{}).(txInfo)
	if !ok || info.tx == nil {
		return txInfo{}, errors.New("no transaction in context")
	}
	return info, nil
}
