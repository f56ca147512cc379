package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InsertDeliveryLog appends one delivery attempt row
func (r *Repository) InsertDeliveryLog(ctx context.Context, entry *DeliveryLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	query := `
		INSERT INTO notification_logs (
			id, subscription_id, title, body, icon,
			status, error_message, sent_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
		RETURNING created_at
	`

	err := r.db.Pool().QueryRow(
		ctx,
		query,
		entry.ID,
		entry.SubscriptionID,
		entry.Title,
		entry.Body,
		entry.Icon,
		entry.Status,
		entry.ErrorMessage,
		entry.SentAt,
	).Scan(&entry.CreatedAt)

	if err != nil {
		r.logger.Error("failed to insert delivery log",
			zap.Error(err),
			zap.String("subscription_id", entry.SubscriptionID.String()),
		)
		return fmt.Errorf("insert delivery log: %w", err)
	}

	return nil
}

// DeliveryStats counts sent and failed attempts created since the given time
func (r *Repository) DeliveryStats(ctx context.Context, since time.Time) (sent, failed int, err error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = $2),
			COUNT(*) FILTER (WHERE status = $3)
		FROM notification_logs
		WHERE created_at >= $1
	`

	err = r.db.Pool().QueryRow(ctx, query, since, StatusSent, StatusFailed).Scan(&sent, &failed)
	if err != nil {
		return 0, 0, fmt.Errorf("count delivery logs: %w", err)
	}

	return sent, failed, nil
}

// InsertCheckLog appends one evaluator run row
func (r *Repository) InsertCheckLog(ctx context.Context, entry *CheckLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.ExecutedAt.IsZero() {
		entry.ExecutedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO notification_check_logs (
			id, check_type, affected_count, notifications_sent,
			error_message, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		entry.ID,
		entry.CheckType,
		entry.AffectedCount,
		entry.NotificationsSent,
		entry.ErrorMessage,
		entry.ExecutedAt,
	)
	if err != nil {
		r.logger.Error("failed to insert check log",
			zap.Error(err),
			zap.String("check_type", entry.CheckType),
		)
		return fmt.Errorf("insert check log: %w", err)
	}

	r.logger.Info("check logged",
		zap.String("check_type", entry.CheckType),
		zap.Int("affected", entry.AffectedCount),
		zap.Int("sent", entry.NotificationsSent),
	)

	return nil
}

// RecentCheckLogs lists check runs executed since the given time, newest first
func (r *Repository) RecentCheckLogs(ctx context.Context, since time.Time, limit int) ([]*CheckLog, error) {
	query := `
		SELECT
			id, check_type, affected_count, notifications_sent,
			error_message, executed_at
		FROM notification_check_logs
		WHERE executed_at >= $1
		ORDER BY executed_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool().Query(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("query check logs: %w", err)
	}
	defer rows.Close()

	var logs []*CheckLog
	for rows.Next() {
		var entry CheckLog
		err := rows.Scan(
			&entry.ID,
			&entry.CheckType,
			&entry.AffectedCount,
			&entry.NotificationsSent,
			&entry.ErrorMessage,
			&entry.ExecutedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan check log: %w", err)
		}
		logs = append(logs, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return logs, nil
}
