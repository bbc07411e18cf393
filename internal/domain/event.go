package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentEventType names a payment outcome.
type PaymentEventType string

const (
	EventPaymentApproved PaymentEventType = "payment.approved"
	EventPaymentHeld     PaymentEventType = "payment.held"
	EventPaymentDeclined PaymentEventType = "payment.declined"
	EventPaymentFailed   PaymentEventType = "payment.failed"
	EventPaymentCaptured PaymentEventType = "payment.captured"
	EventPaymentPreOrder PaymentEventType = "payment.pre_ordered"
	EventTokenCreated    PaymentEventType = "token.created"
	EventRenewalFailed   PaymentEventType = "renewal.failed"
	EventCaptureDeclined PaymentEventType = "capture.declined"
)

// PaymentEvent is published after the engine settles an order outcome.
type PaymentEvent struct {
	ID            string           `json:"id"`
	Type          PaymentEventType `json:"type"`
	GatewayID     string           `json:"gateway_id"`
	Environment   string           `json:"environment"`
	OrderID       string           `json:"order_id"`
	UserID        int64            `json:"user_id"`
	Amount        decimal.Decimal  `json:"amount"`
	Currency      string           `json:"currency,omitempty"`
	TransactionID string           `json:"transaction_id,omitempty"`
	StatusCode    string           `json:"status_code,omitempty"`
	StatusMessage string           `json:"status_message,omitempty"`
	OccurredAt    time.Time        `json:"occurred_at"`
}
