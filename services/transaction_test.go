package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/upb/acquisitions-api/repositories"
)

type txCtxKey struct{}

// MockTransactionManager is a mock implementation of TransactionManager.
// InTransaction runs fn with a context marked as transactional and then
// returns the configured commit error.
type MockTransactionManager struct {
	mock.Mock
	ran bool
}

func (m *MockTransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	args := m.Called(ctx)
	if tx := args.Get(0); tx != nil {
		return tx.(repositories.Transaction), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	args := m.Called(ctx)
	m.ran = true
	if err := fn(context.WithValue(ctx, txCtxKey{}, true), nil); err != nil {
		return err
	}
	return args.Error(0)
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txCtxKey{}).(bool)
	return v
}

func TestWithTransaction_Success(t *testing.T) {
	ctx := context.Background()
	mockTxMgr := new(MockTransactionManager)
	mockTxMgr.On("InTransaction", ctx).Return(nil)

	var sawTx bool
	err := WithTransaction(ctx, mockTxMgr, func(ctx context.Context) error {
		sawTx = inTx(ctx)
		return nil
	})

	assert.NoError(t, err)
	assert.True(t, sawTx, "fn must receive the transactional context")
	mockTxMgr.AssertExpectations(t)
}

func TestWithTransaction_ErrorInFunction(t *testing.T) {
	ctx := context.Background()
	mockTxMgr := new(MockTransactionManager)
	mockTxMgr.On("InTransaction", ctx).Return(nil)
	expectedErr := errors.New("operation failed")

	err := WithTransaction(ctx, mockTxMgr, func(ctx context.Context) error {
		return expectedErr
	})

	assert.Equal(t, expectedErr, err)
	mockTxMgr.AssertExpectations(t)
}

func TestWithTransaction_CommitError(t *testing.T) {
	ctx := context.Background()
	mockTxMgr := new(MockTransactionManager)
	mockTxMgr.On("InTransaction", ctx).Return(errors.New("failed to commit transaction"))

	err := WithTransaction(ctx, mockTxMgr, func(ctx context.Context) error {
		return nil
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to commit transaction")
}

func TestWithTransaction_NilManager(t *testing.T) {
	ctx := context.Background()

	var called, sawTx bool
	err := WithTransaction(ctx, nil, func(ctx context.Context) error {
		called = true
		sawTx = inTx(ctx)
		return nil
	})

	assert.NoError(t, err)
	assert.True(t, called)
	assert.False(t, sawTx)
}

func TestWithTransactionResult_Success(t *testing.T) {
	ctx := context.Background()
	mockTxMgr := new(MockTransactionManager)
	mockTxMgr.On("InTransaction", ctx).Return(nil)

	result, err := WithTransactionResult(ctx, mockTxMgr, func(ctx context.Context) (string, error) {
		return "success", nil
	})

	assert.NoError(t, err)
	assert.Equal(t, "success", result)
	assert.True(t, mockTxMgr.ran)
}

func TestWithTransactionResult_ErrorInFunction(t *testing.T) {
	ctx := context.Background()
	mockTxMgr := new(MockTransactionManager)
	mockTxMgr.On("InTransaction", ctx).Return(nil)
	expectedErr := errors.New("operation failed")

	result, err := WithTransactionResult(ctx, mockTxMgr, func(ctx context.Context) (int, error) {
		return 0, expectedErr
	})

	assert.Equal(t, expectedErr, err)
	assert.Equal(t, 0, result)
}

func TestWithTransactionResult_NilManager(t *testing.T) {
	result, err := WithTransactionResult(context.Background(), nil, func(ctx context.Context) (int, error) {
		return 42, nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 42, result)
}
