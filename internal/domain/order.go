package domain

import (
	"github.com/shopspring/decimal"
)

// OrderStatus represents the host order lifecycle states this engine drives.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusOnHold     OrderStatus = "on-hold"
	OrderStatusFailed     OrderStatus = "failed"
	OrderStatusPreOrdered OrderStatus = "pre-ordered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// IsPaid reports whether status means payment has been taken.
func (s OrderStatus) IsPaid() bool {
	return s == OrderStatusProcessing || s == OrderStatusCompleted
}

// Order meta keys written by the engine. They are stored prefixed with the
// gateway id, see MetaKey.
const (
	MetaPaymentToken        = "payment_token"
	MetaAccountFour         = "account_four"
	MetaCardType            = "card_type"
	MetaCardExpiryDate      = "card_expiry_date"
	MetaAccountType         = "account_type"
	MetaEnvironment         = "environment"
	MetaCustomerID          = "customer_id"
	MetaChargeCaptured      = "charge_captured"
	MetaTransactionID       = "trans_id"
	MetaTransactionDate     = "trans_date"
	MetaAuthorizationAmount = "authorization_amount"
	MetaCaptureTransID      = "capture_trans_id"
	MetaPaymentType         = "payment_type"
	MetaPreOrderToken       = "pre_order_token"
)

// MetaKey namespaces an order meta key by gateway.
func MetaKey(gatewayID, key string) string {
	return "_" + gatewayID + "_" + key
}

// Order is the subset of a host order the payment engine reads and updates.
type Order struct {
	ID                string            `json:"id"`
	Number            string            `json:"number"`
	UserID            int64             `json:"user_id"`
	Status            OrderStatus       `json:"status"`
	Total             decimal.Decimal   `json:"total"`
	Currency          string            `json:"currency"`
	PaymentMethod     string            `json:"payment_method"`
	Billing           BillingAddress    `json:"billing"`
	Virtual           bool              `json:"virtual"`
	ChargeUponRelease bool              `json:"charge_upon_release"`
	SubscriptionIDs   []string          `json:"subscription_ids,omitempty"`
	ReturnURL         string            `json:"return_url,omitempty"`
	StockReduced      bool              `json:"stock_reduced"`
	Meta              map[string]string `json:"meta,omitempty"`

	// Payment is built per attempt and never persisted.
	Payment *OrderPaymentContext `json:"-"`
}

// IsGuest reports whether the order was placed without an account.
func (o *Order) IsGuest() bool {
	return o.UserID == 0
}

// GetMeta returns a gateway-scoped meta value.
func (o *Order) GetMeta(gatewayID, key string) string {
	if o.Meta == nil {
		return ""
	}
	return o.Meta[MetaKey(gatewayID, key)]
}

// SetMeta records a gateway-scoped meta value on the in-memory order.
func (o *Order) SetMeta(gatewayID, key, value string) {
	if o.Meta == nil {
		o.Meta = make(map[string]string)
	}
	o.Meta[MetaKey(gatewayID, key)] = value
}

// OrderPaymentContext carries everything one transaction attempt needs.
// Raw account fields live only here and are never written to storage.
type OrderPaymentContext struct {
	Type       PaymentType
	Total      decimal.Decimal
	CustomerID string
	Token      string

	AccountNumber string
	CSC           string
	ExpMonth      string
	ExpYear       string
	RoutingNumber string
	AccountType   string

	LastFour string
	CardType string

	// AuthorizationOnly is decided by the engine before the gateway call.
	AuthorizationOnly bool
}

// IsTokenized reports whether the attempt uses a saved token.
func (p *OrderPaymentContext) IsTokenized() bool {
	return p.Token != ""
}

// ExpiryDate returns "YY-MM", the format stored in order meta.
func (p *OrderPaymentContext) ExpiryDate() string {
	if p.ExpMonth == "" || p.ExpYear == "" {
		return ""
	}
	year := NormalizeExpiryYear(p.ExpYear)
	if len(year) == 4 {
		year = year[2:]
	}
	return year + "-" + NormalizeExpiryMonth(p.ExpMonth)
}

// ApplyToken copies token attributes into the context.
func (p *OrderPaymentContext) ApplyToken(t *PaymentToken) {
	p.Token = t.ID
	p.Type = t.Type
	if t.LastFour != "" {
		p.LastFour = t.LastFour
	}
	if t.CardType != "" {
		p.CardType = t.CardType
	}
	if t.AccountType != "" {
		p.AccountType = t.AccountType
	}
	if t.ExpMonth != "" {
		p.ExpMonth = t.ExpMonth
	}
	if t.ExpYear != "" {
		p.ExpYear = t.ExpYear
	}
}

// PaymentFields are the values submitted by the customer at checkout.
type PaymentFields struct {
	Type          PaymentType `json:"type"`
	TokenID       string      `json:"token_id,omitempty"`
	AccountNumber string      `json:"account_number,omitempty"`
	ExpMonth      string      `json:"exp_month,omitempty"`
	ExpYear       string      `json:"exp_year,omitempty"`
	CSC           string      `json:"csc,omitempty"`
	RoutingNumber string      `json:"routing_number,omitempty"`
	AccountType   string      `json:"account_type,omitempty"`
	SaveMethod    bool        `json:"save_method,omitempty"`
}

// PaymentResult is what checkout reports back to the customer.
type PaymentResult struct {
	Success     bool         `json:"success"`
	Redirect    string       `json:"redirect,omitempty"`
	Message     string       `json:"message,omitempty"`
	FieldErrors []FieldError `json:"field_errors,omitempty"`
}

// CaptureResult reports the outcome of a capture attempt.
type CaptureResult struct {
	Approved      bool   `json:"approved"`
	TransactionID string `json:"transaction_id,omitempty"`
	Message       string `json:"message"`
}

// SubscriptionPaymentMeta is the payment method a subscription renews with.
type SubscriptionPaymentMeta struct {
	SubscriptionID string `json:"subscription_id"`
	TokenID        string `json:"token_id"`
	CustomerID     string `json:"customer_id"`
	Environment    string `json:"environment"`
}
