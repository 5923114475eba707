package memstore

import (
	"context"

	"engram/internal/domain/repositories"
)

// TransactionManager is a pass-through: the in-memory stores apply each
// operation immediately, so there is nothing to commit or roll back. It
// keeps service code identical across backends.
type TransactionManager struct{}

// NewTransactionManager creates the pass-through manager.
func NewTransactionManager() repositories.TransactionManager {
	return TransactionManager{}
}

// ExecTx runs fn directly with the caller's context.
func (TransactionManager) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	return fn(ctx)
}
