package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

// CleanupService removes feedback and finalized interviews past retention.
type CleanupService struct {
	Pool          PgxPool
	RetentionDays int
	now           func() time.Time
}

func NewCleanupService(pool PgxPool, retentionDays int) *CleanupService {
	if retentionDays <= 0 {
		retentionDays = 365
	}
	return &CleanupService{Pool: pool, RetentionDays: retentionDays, now: time.Now}
}

// CleanupOldData deletes rows older than the retention window in one transaction.
// Feedback goes first so interview deletion never trips the foreign key.
func (s *CleanupService) CleanupOldData(ctx context.Context) error {
	ctx, span := startSpan(ctx, "repo.cleanup", "cleanup.CleanupOldData", "DELETE", "feedback,interviews")
	defer span.End()
	cutoff := s.now().UTC().AddDate(0, 0, -s.RetentionDays)

	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("op=cleanup.begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	fbTag, err := tx.Exec(ctx, `DELETE FROM feedback WHERE created_at < $1`, cutoff)
	if err != nil {
		return fmt.Errorf("op=cleanup.feedback: %w", err)
	}
	ivTag, err := tx.Exec(ctx, `DELETE FROM interviews i WHERE i.created_at < $1
AND NOT EXISTS (SELECT 1 FROM feedback f WHERE f.interview_id = i.id)`, cutoff)
	if err != nil {
		return fmt.Errorf("op=cleanup.interviews: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("op=cleanup.commit: %w", err)
	}

	slog.Info("data cleanup completed",
		slog.Int64("deleted_feedback", fbTag.RowsAffected()),
		slog.Int64("deleted_interviews", ivTag.RowsAffected()),
		slog.Time("cutoff", cutoff),
	)
	return nil
}

// RunPeriodic runs CleanupOldData once immediately, then every interval until ctx ends.
func (s *CleanupService) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := s.CleanupOldData(ctx); err != nil {
		slog.Error("initial cleanup failed", slog.Any("error", err))
	}
	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup service stopping")
			return
		case <-ticker.C:
			if err := s.CleanupOldData(ctx); err != nil {
				slog.Error("periodic cleanup failed", slog.Any("error", err))
			}
		}
	}
}
