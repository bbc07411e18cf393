package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/payment-engine/internal/domain"
	"github.com/kevin07696/payment-engine/internal/domain/ports"
)

const (
	getSubscriptionMetaSQL = `SELECT token_id, customer_id, environment
	FROM subscription_payment_meta WHERE subscription_id = $1`

	saveSubscriptionMetaSQL = `INSERT INTO subscription_payment_meta (subscription_id, token_id, customer_id, environment)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (subscription_id) DO UPDATE SET
		token_id = EXCLUDED.token_id,
		customer_id = EXCLUDED.customer_id,
		environment = EXCLUDED.environment,
		updated_at = NOW()`
)

// SubscriptionStore implements ports.SubscriptionStore on PostgreSQL.
type SubscriptionStore struct {
	db DB
}

var _ ports.SubscriptionStore = (*SubscriptionStore)(nil)

// NewSubscriptionStore creates a new subscription store
func NewSubscriptionStore(db DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

// GetPaymentMeta implements ports.SubscriptionStore
func (s *SubscriptionStore) GetPaymentMeta(ctx context.Context, subscriptionID string) (*domain.SubscriptionPaymentMeta, error) {
	meta := &domain.SubscriptionPaymentMeta{SubscriptionID: subscriptionID}
	err := s.db.QueryRow(ctx, getSubscriptionMetaSQL, subscriptionID).
		Scan(&meta.TokenID, &meta.CustomerID, &meta.Environment)
	if errors.Is(err, pgx.ErrNoRows) {
		return meta, nil
	}
	if err != nil {
		return nil, storageError("get subscription payment meta", err)
	}
	return meta, nil
}

// SavePaymentMeta implements ports.SubscriptionStore
func (s *SubscriptionStore) SavePaymentMeta(ctx context.Context, meta *domain.SubscriptionPaymentMeta) error {
	_, err := s.db.Exec(ctx, saveSubscriptionMetaSQL,
		meta.SubscriptionID, meta.TokenID, meta.CustomerID, meta.Environment)
	if err != nil {
		return storageError("save subscription payment meta", err)
	}
	return nil
}
