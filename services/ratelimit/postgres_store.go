package ratelimit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// PostgresStore records admissions in rate_limit_events. A transaction
// scoped advisory lock on the key serializes count-and-insert per subject.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresStore creates a new PostgresStore instance
func NewPostgresStore(db *sql.DB, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger,
	}
}

// Allow implements Store
func (s *PostgresStore) Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, fmt.Errorf("failed to begin rate limit transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return Result{}, fmt.Errorf("failed to lock rate limit scope: %w", err)
	}

	query := `
		SELECT COUNT(*), MIN(timestamp)
		FROM rate_limit_events
		WHERE scope_key = $1
		  AND timestamp > $2
	`

	var count int
	var oldest sql.NullTime
	if err := tx.QueryRowContext(ctx, query, key, now.Add(-window)).Scan(&count, &oldest); err != nil {
		return Result{}, fmt.Errorf("failed to query rate limit: %w", err)
	}

	if count >= limit {
		return newResult(false, limit, count, oldest.Time, window, now), nil
	}

	if err := s.recordEvent(ctx, tx, key, now); err != nil {
		return Result{}, err
	}
	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("failed to commit rate limit event: %w", err)
	}

	if !oldest.Valid {
		oldest.Time = now
	}
	return newResult(true, limit, count+1, oldest.Time, window, now), nil
}

// recordEvent records a rate limit event
func (s *PostgresStore) recordEvent(ctx context.Context, tx *sql.Tx, scopeKey string, timestamp time.Time) error {
	query := `
		INSERT INTO rate_limit_events (scope_key, timestamp)
		VALUES ($1, $2)
	`

	if _, err := tx.ExecContext(ctx, query, scopeKey, timestamp); err != nil {
		return fmt.Errorf("failed to insert rate limit event: %w", err)
	}
	return nil
}

// CleanupOldRequests removes events older than the retention period
func (s *PostgresStore) CleanupOldRequests(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoffTime := time.Now().Add(-olderThan)

	query := `
		DELETE FROM rate_limit_events
		WHERE timestamp < $1
	`

	result, err := s.db.ExecContext(ctx, query, cutoffTime)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old requests: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	s.logger.Debug("cleaned up old rate limit events",
		zap.Int64("rows_deleted", rowsAffected),
		zap.Time("cutoff_time", cutoffTime))

	return rowsAffected, nil
}

// StartCleanupWorker periodically deletes events outside the retention period
func (s *PostgresStore) StartCleanupWorker(ctx context.Context, interval time.Duration, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("started rate limit cleanup worker",
		zap.Duration("interval", interval),
		zap.Duration("retention", retention))

	for {
		select {
		case <-ticker.C:
			if _, err := s.CleanupOldRequests(ctx, retention); err != nil {
				s.logger.Error("failed to cleanup old requests", zap.Error(err))
			}
		case <-ctx.Done():
			s.logger.Info("stopping rate limit cleanup worker")
			return
		}
	}
}
