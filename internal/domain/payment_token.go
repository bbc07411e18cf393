package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PaymentType is the kind of stored payment method.
type PaymentType string

const (
	PaymentTypeCreditCard PaymentType = "credit_card"
	PaymentTypeECheck     PaymentType = "echeck"
)

// Bank account types for echeck tokens.
const (
	AccountTypeChecking = "checking"
	AccountTypeSavings  = "savings"
)

// ParsePaymentType accepts the legacy "check" spelling.
func ParsePaymentType(s string) PaymentType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "echeck", "check", "ach":
		return PaymentTypeECheck
	default:
		return PaymentTypeCreditCard
	}
}

// PaymentToken is a gateway-issued reference to a stored card or bank account.
type PaymentToken struct {
	ID          string      `json:"id"`
	GatewayID   string      `json:"gateway_id"`
	UserID      int64       `json:"user_id"`
	Type        PaymentType `json:"type"`
	LastFour    string      `json:"last_four,omitempty"`
	CardType    string      `json:"card_type,omitempty"`
	AccountType string      `json:"account_type,omitempty"`
	ExpMonth    string      `json:"exp_month,omitempty"`
	ExpYear     string      `json:"exp_year,omitempty"`
	Environment string      `json:"environment"`
	Default     bool        `json:"default"`
	Nickname    string      `json:"nickname,omitempty"`
	BillingHash string      `json:"billing_hash,omitempty"`
	Migrated    bool        `json:"migrated,omitempty"`

	// ImageURL is resolved at render time and never stored.
	ImageURL string `json:"-"`
}

// TokenData is the raw attribute set a driver or legacy record supplies.
type TokenData struct {
	Type          PaymentType
	AccountNumber string
	LastFour      string
	CardType      string
	AccountType   string
	ExpMonth      string
	ExpYear       string
	Default       bool
	Nickname      string
	BillingHash   string
}

// NewPaymentToken builds a token from raw gateway data. The card brand is
// normalized, inferred from the account number when absent, and the account
// number itself is not kept.
func NewPaymentToken(id string, data TokenData) *PaymentToken {
	t := &PaymentToken{
		ID:          id,
		Type:        data.Type,
		LastFour:    data.LastFour,
		AccountType: strings.ToLower(data.AccountType),
		ExpMonth:    NormalizeExpiryMonth(data.ExpMonth),
		ExpYear:     NormalizeExpiryYear(data.ExpYear),
		Default:     data.Default,
		Nickname:    data.Nickname,
		BillingHash: data.BillingHash,
	}
	if t.Type == "" {
		t.Type = PaymentTypeCreditCard
	}

	number := DigitsOnly(data.AccountNumber)
	if t.LastFour == "" && len(number) >= 4 {
		t.LastFour = number[len(number)-4:]
	}

	if t.Type == PaymentTypeCreditCard {
		t.CardType = NormalizeCardType(data.CardType)
		if t.CardType == "" {
			t.CardType = CardTypeFromAccountNumber(number)
		}
	}

	return t
}

// IsCreditCard reports whether the token stores a card.
func (t *PaymentToken) IsCreditCard() bool {
	return t.Type == PaymentTypeCreditCard
}

// IsCheck reports whether the token stores a bank account.
func (t *PaymentToken) IsCheck() bool {
	return t.Type == PaymentTypeECheck
}

// ExpiryDate renders the expiry using layout tokens MM, YYYY and YY.
func (t *PaymentToken) ExpiryDate(layout string) string {
	if t.ExpMonth == "" || t.ExpYear == "" {
		return ""
	}
	year := t.ExpYear
	out := strings.ReplaceAll(layout, "MM", t.ExpMonth)
	out = strings.ReplaceAll(out, "YYYY", year)
	if len(year) == 4 {
		out = strings.ReplaceAll(out, "YY", year[2:])
	}
	return out
}

// IsExpired reports whether a card token's expiry month has passed.
func (t *PaymentToken) IsExpired(now time.Time) bool {
	if !t.IsCreditCard() {
		return false
	}
	m, errM := strconv.Atoi(t.ExpMonth)
	y, errY := strconv.Atoi(t.ExpYear)
	if errM != nil || errY != nil {
		return false
	}
	return y < now.Year() || (y == now.Year() && m < int(now.Month()))
}

// TypeLabel is the brand or account type as shown to customers.
func (t *PaymentToken) TypeLabel() string {
	if t.IsCheck() {
		if t.AccountType == AccountTypeSavings {
			return "Savings Account"
		}
		return "Checking Account"
	}
	return CardTypeLabel(t.CardType)
}

// DisplayName renders e.g. "Visa ending in 1111 (expires 01/27)".
func (t *PaymentToken) DisplayName() string {
	if t.Nickname != "" {
		return t.Nickname
	}
	name := t.TypeLabel()
	if t.LastFour != "" {
		name = fmt.Sprintf("%s ending in %s", name, t.LastFour)
	}
	if expiry := t.ExpiryDate("MM/YY"); expiry != "" && t.IsCreditCard() {
		name = fmt.Sprintf("%s (expires %s)", name, expiry)
	}
	return name
}

// IsBillingStale reports whether address differs from the one the token was created with.
func (t *PaymentToken) IsBillingStale(address BillingAddress) bool {
	if t.BillingHash == "" {
		return false
	}
	return t.BillingHash != address.Hash()
}

// InScope reports whether the token belongs to (user, gateway, environment).
func (t *PaymentToken) InScope(userID int64, gatewayID, environment string) bool {
	return t.UserID == userID && t.GatewayID == gatewayID && t.Environment == environment
}

// Clone returns a copy safe to mutate.
func (t *PaymentToken) Clone() *PaymentToken {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// TokenWriter is the durable side of a token.
type TokenWriter interface {
	SaveToken(ctx context.Context, token *PaymentToken) error
	DeleteToken(ctx context.Context, userID int64, gatewayID, environment, tokenID string) (bool, error)
}

// Save persists the token. Saving the same token twice leaves one record.
func (t *PaymentToken) Save(ctx context.Context, w TokenWriter) error {
	return w.SaveToken(ctx, t)
}

// Delete removes the token, returning false when it was already absent.
func (t *PaymentToken) Delete(ctx context.Context, w TokenWriter) (bool, error) {
	return w.DeleteToken(ctx, t.UserID, t.GatewayID, t.Environment, t.ID)
}

// BillingAddress is the billing block of an order.
type BillingAddress struct {
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	Company    string `json:"company,omitempty"`
	Address1   string `json:"address_1,omitempty"`
	Address2   string `json:"address_2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postcode,omitempty"`
	Country    string `json:"country,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// Hash fingerprints the address fields that matter to a gateway.
func (a BillingAddress) Hash() string {
	parts := []string{
		a.FirstName, a.LastName, a.Company, a.Address1, a.Address2,
		a.City, a.State, a.PostalCode, a.Country,
	}
	for i := range parts {
		parts[i] = strings.ToLower(strings.TrimSpace(parts[i]))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:16])
}
