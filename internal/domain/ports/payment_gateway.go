package ports

import (
	"context"

	"github.com/kevin07696/payment-engine/internal/domain"
)

// Gateway is the identity every driver has. The operations a driver supports
// are declared by implementing the capability interfaces below; the engine
// type-asserts for them instead of calling stubs.
type Gateway interface {
	// ID is the gateway id orders and tokens are scoped by.
	ID() string
}

// ChargeCapable drivers can perform a card sale.
type ChargeCapable interface {
	CreditCardCharge(ctx context.Context, order *domain.Order) (domain.Response, error)
}

// AuthorizationCapable drivers can place an authorization hold on a card.
type AuthorizationCapable interface {
	CreditCardAuthorization(ctx context.Context, order *domain.Order) (domain.Response, error)
}

// CaptureCapable drivers can capture a prior authorization.
type CaptureCapable interface {
	CreditCardCapture(ctx context.Context, order *domain.Order) (domain.Response, error)
}

// CheckDebitCapable drivers can debit a bank account.
type CheckDebitCapable interface {
	CheckDebit(ctx context.Context, order *domain.Order) (domain.Response, error)
}

// TokenizationCapable drivers can vault the method on the order's payment context.
type TokenizationCapable interface {
	TokenizePaymentMethod(ctx context.Context, order *domain.Order) (domain.TokenResponse, error)
}

// TokenListingCapable drivers can list the tokens stored under a customer.
type TokenListingCapable interface {
	GetTokenizedPaymentMethods(ctx context.Context, customerID string) (domain.TokenListResponse, error)
}

// TokenRemovalCapable drivers can delete a vaulted token.
type TokenRemovalCapable interface {
	RemoveTokenizedPaymentMethod(ctx context.Context, tokenID, customerID string) (domain.Response, error)
}

// LocalTokenRemovalPolicy lets a driver allow local deletion after a
// non-approved remote removal, e.g. when the vault reports the token unknown.
type LocalTokenRemovalPolicy interface {
	ShouldRemoveLocalToken(resp domain.Response) bool
}

// TransactionDataRecorder lets a driver attach gateway-specific order meta
// after an approved or held transaction.
type TransactionDataRecorder interface {
	TransactionData(order *domain.Order, resp domain.Response) map[string]string
}

// CustomerIDGenerator drivers that need a specific customer id format.
type CustomerIDGenerator interface {
	GenerateCustomerID(userID int64, order *domain.Order) string
}
