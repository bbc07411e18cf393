package ports

import (
	"context"

	"github.com/kevin07696/payment-engine/internal/domain"
)

// OrderRepository is the host application's order storage.
type OrderRepository interface {
	// GetOrder returns domain.ErrOrderNotFound when absent.
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)

	// UpdateStatus changes the status and records note as a single order note.
	UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, note string) error

	// AddNote appends an order note.
	AddNote(ctx context.Context, orderID, note string) error

	// UpdateMeta upserts order meta values.
	UpdateMeta(ctx context.Context, orderID string, meta map[string]string) error

	// PaymentComplete marks the order paid, reduces stock, and moves it to
	// processing (or completed for virtual orders).
	PaymentComplete(ctx context.Context, orderID, transactionID string) error

	// ReduceStock reduces stock without marking the order paid.
	ReduceStock(ctx context.Context, orderID string) error
}

// SubscriptionStore holds the payment method each subscription renews with.
type SubscriptionStore interface {
	// GetPaymentMeta returns a zero-value meta when none is stored.
	GetPaymentMeta(ctx context.Context, subscriptionID string) (*domain.SubscriptionPaymentMeta, error)
	SavePaymentMeta(ctx context.Context, meta *domain.SubscriptionPaymentMeta) error
}

// EventPublisher emits payment outcome events for downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event *domain.PaymentEvent) error
}

// SecretManager retrieves secrets such as gateway credentials.
type SecretManager interface {
	// GetSecret retrieves a secret by its path/name
	GetSecret(ctx context.Context, path string) (*Secret, error)
}

// Secret represents a retrieved secret with metadata
type Secret struct {
	Value    string
	Version  string
	Metadata map[string]string
}
