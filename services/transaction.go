package services

import (
	"context"

	"github.com/upb/acquisitions-api/repositories"
)

// WithTransaction runs fn inside a transaction when txMgr is set. The ctx
// handed to fn carries the transaction, so repository calls made with it
// join it. A nil txMgr runs fn directly for stores without transactions.
func WithTransaction(ctx context.Context, txMgr repositories.TransactionManager, fn func(ctx context.Context) error) error {
	if txMgr == nil {
		return fn(ctx)
	}
	return txMgr.InTransaction(ctx, func(txCtx context.Context, _ repositories.Transaction) error {
		return fn(txCtx)
	})
}

// WithTransactionResult is WithTransaction for functions that return a value.
func WithTransactionResult[T any](ctx context.Context, txMgr repositories.TransactionManager, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := WithTransaction(ctx, txMgr, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	return result, err
}
