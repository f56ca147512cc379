package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Repository handles database operations for subscriptions, logs and the
// business tables the evaluators read.
type Repository struct {
	db     *DB
	logger *zap.Logger
}

// NewRepository creates a new repository
func NewRepository(db *DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// UpsertSubscription inserts a subscription or refreshes the keys of an
// existing one with the same endpoint. Re-subscribing reactivates it.
func (r *Repository) UpsertSubscription(ctx context.Context, sub *Subscription) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}

	query := `
		INSERT INTO push_subscriptions (
			id, endpoint, p256dh, auth, platform, user_agent, is_active
		) VALUES (
			$1, $2, $3, $4, $5, $6, TRUE
		)
		ON CONFLICT (endpoint) DO UPDATE SET
			p256dh = EXCLUDED.p256dh,
			auth = EXCLUDED.auth,
			platform = EXCLUDED.platform,
			user_agent = EXCLUDED.user_agent,
			is_active = TRUE,
			updated_at = NOW()
		RETURNING id, is_active, created_at, updated_at
	`

	err := r.db.Pool().QueryRow(
		ctx,
		query,
		sub.ID,
		sub.Endpoint,
		sub.P256dh,
		sub.Auth,
		sub.Platform,
		sub.UserAgent,
	).Scan(&sub.ID, &sub.IsActive, &sub.CreatedAt, &sub.UpdatedAt)

	if err != nil {
		r.logger.Error("failed to upsert subscription",
			zap.Error(err),
			zap.String("platform", sub.Platform),
		)
		return fmt.Errorf("upsert subscription: %w", err)
	}

	r.logger.Info("subscription saved",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("platform", sub.Platform),
	)

	return nil
}

// DeactivateSubscriptionByEndpoint marks the endpoint inactive. Unknown
// endpoints are not an error.
func (r *Repository) DeactivateSubscriptionByEndpoint(ctx context.Context, endpoint string) error {
	query := `
		UPDATE push_subscriptions
		SET is_active = FALSE, updated_at = NOW()
		WHERE endpoint = $1
	`

	if _, err := r.db.Pool().Exec(ctx, query, endpoint); err != nil {
		return fmt.Errorf("deactivate subscription by endpoint: %w", err)
	}

	return nil
}

// DeactivateSubscription marks a subscription inactive after a permanent
// delivery failure.
func (r *Repository) DeactivateSubscription(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE push_subscriptions
		SET is_active = FALSE, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.Pool().Exec(ctx, query, id)
	if err != nil {
		r.logger.Error("failed to deactivate subscription",
			zap.Error(err),
			zap.String("subscription_id", id.String()),
		)
		return fmt.Errorf("deactivate subscription: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("subscription %s: %w", id, ErrNotFound)
	}

	return nil
}

// ListActiveSubscriptions returns every active subscription, newest first
func (r *Repository) ListActiveSubscriptions(ctx context.Context) ([]*Subscription, error) {
	query := `
		SELECT
			id, endpoint, p256dh, auth, platform, user_agent,
			is_active, created_at, updated_at
		FROM push_subscriptions
		WHERE is_active = TRUE
		ORDER BY created_at DESC
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query active subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*Subscription
	for rows.Next() {
		var sub Subscription
		err := rows.Scan(
			&sub.ID,
			&sub.Endpoint,
			&sub.P256dh,
			&sub.Auth,
			&sub.Platform,
			&sub.UserAgent,
			&sub.IsActive,
			&sub.CreatedAt,
			&sub.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, &sub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return subs, nil
}

// SubscriptionCounts returns the total and active subscription counts
func (r *Repository) SubscriptionCounts(ctx context.Context) (total, active int, err error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE is_active)
		FROM push_subscriptions
	`

	if err := r.db.Pool().QueryRow(ctx, query).Scan(&total, &active); err != nil {
		return 0, 0, fmt.Errorf("count subscriptions: %w", err)
	}

	return total, active, nil
}

// GetSetting returns the JSON value stored under key
func (r *Repository) GetSetting(ctx context.Context, key string) (*Setting, error) {
	query := `
		SELECT key, value, updated_at
		FROM app_settings
		WHERE key = $1
	`

	var s Setting
	err := r.db.Pool().QueryRow(ctx, query, key).Scan(&s.Key, &s.Value, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("setting %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query setting: %w", err)
	}

	return &s, nil
}

// UpsertSetting stores value under key
func (r *Repository) UpsertSetting(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO app_settings (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := r.db.Pool().Exec(ctx, query, key, value, time.Now().UTC()); err != nil {
		r.logger.Error("failed to save setting", zap.Error(err), zap.String("key", key))
		return fmt.Errorf("upsert setting: %w", err)
	}

	r.logger.Info("setting saved", zap.String("key", key))

	return nil
}
