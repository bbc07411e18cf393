package ports

import (
	"context"
	"time"

	"github.com/kevin07696/payment-engine/internal/domain"
)

// TokenStore is durable per-record token storage, one set per
// (user, gateway, environment). It enforces no cross-row constraints;
// callers maintain the single-default invariant.
type TokenStore interface {
	domain.TokenWriter

	// ListTokens returns the scope's tokens in creation order.
	ListTokens(ctx context.Context, userID int64, gatewayID, environment string) ([]*domain.PaymentToken, error)

	// GetToken returns domain.ErrTokenNotFound when absent.
	GetToken(ctx context.Context, userID int64, gatewayID, environment, tokenID string) (*domain.PaymentToken, error)
}

// LegacyTokenRecord is one entry of the flat legacy token blob.
type LegacyTokenRecord map[string]string

// Migrated reports whether the record has already been copied to the token store.
func (r LegacyTokenRecord) Migrated() bool {
	v := r["migrated"]
	return v == "1" || v == "true" || v == "yes"
}

// LegacyTokenStore reads the pre-migration token format.
type LegacyTokenStore interface {
	LoadLegacyTokens(ctx context.Context, userID int64, gatewayID, environment string) (map[string]LegacyTokenRecord, error)
	SaveLegacyTokens(ctx context.Context, userID int64, gatewayID, environment string, records map[string]LegacyTokenRecord) error
	IsMigrationComplete(ctx context.Context, userID int64, gatewayID, environment string) (bool, error)
	MarkMigrationComplete(ctx context.Context, userID int64, gatewayID, environment string) error
}

// CustomerStore persists the gateway customer id of a registered user.
type CustomerStore interface {
	// GetCustomerID returns "" when none has been stored.
	GetCustomerID(ctx context.Context, userID int64, gatewayID, environment string) (string, error)
	// SetCustomerID stores customerID unless an id is already stored; the
	// first stored id wins and is never overwritten.
	SetCustomerID(ctx context.Context, userID int64, gatewayID, environment, customerID string) error
}

// TokenCache is the short-lived read cache in front of token resolution.
type TokenCache interface {
	// Get reports found=false on a miss or expired entry.
	Get(ctx context.Context, key string) (tokens []*domain.PaymentToken, found bool, err error)
	Set(ctx context.Context, key string, tokens []*domain.PaymentToken, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
