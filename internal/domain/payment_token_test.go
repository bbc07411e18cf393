package domain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPaymentToken(t *testing.T) {
	testCases := []struct {
		name         string
		data         TokenData
		wantCardType string
		wantLastFour string
	}{
		{
			name:         "explicit brand is normalized",
			data:         TokenData{Type: PaymentTypeCreditCard, CardType: "MasterCard", LastFour: "4444"},
			wantCardType: CardTypeMastercard,
			wantLastFour: "4444",
		},
		{
			name:         "brand inferred from account number",
			data:         TokenData{Type: PaymentTypeCreditCard, AccountNumber: "4111111111111111"},
			wantCardType: CardTypeVisa,
			wantLastFour: "1111",
		},
		{
			name:         "explicit brand beats inference",
			data:         TokenData{CardType: "amex", AccountNumber: "4111111111111111"},
			wantCardType: CardTypeAmex,
			wantLastFour: "1111",
		},
		{
			name:         "echeck has no brand",
			data:         TokenData{Type: PaymentTypeECheck, AccountNumber: "000123456789", AccountType: "Savings"},
			wantCardType: "",
			wantLastFour: "6789",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			token := NewPaymentToken("tok_1", tc.data)

			assert.Equal(t, "tok_1", token.ID)
			assert.Equal(t, tc.wantCardType, token.CardType)
			assert.Equal(t, tc.wantLastFour, token.LastFour)
		})
	}
}

func TestNewPaymentToken_DoesNotRetainAccountNumber(t *testing.T) {
	token := NewPaymentToken("tok_1", TokenData{AccountNumber: "4111111111111111", ExpMonth: "1", ExpYear: "27"})

	assert.NotContains(t, token.DisplayName(), "4111111111111111")
	assert.Equal(t, "01", token.ExpMonth)
	assert.Equal(t, "2027", token.ExpYear)
	assert.Equal(t, "Visa ending in 1111 (expires 01/27)", token.DisplayName())
}

func TestPaymentToken_IsExpired(t *testing.T) {
	now := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)

	assert.False(t, (&PaymentToken{Type: PaymentTypeCreditCard, ExpMonth: "03", ExpYear: "2026"}).IsExpired(now))
	assert.True(t, (&PaymentToken{Type: PaymentTypeCreditCard, ExpMonth: "02", ExpYear: "2026"}).IsExpired(now))
	assert.False(t, (&PaymentToken{Type: PaymentTypeECheck}).IsExpired(now))
}

func TestPaymentToken_TypeLabel(t *testing.T) {
	assert.Equal(t, "Savings Account", (&PaymentToken{Type: PaymentTypeECheck, AccountType: AccountTypeSavings}).TypeLabel())
	assert.Equal(t, "Checking Account", (&PaymentToken{Type: PaymentTypeECheck}).TypeLabel())
	assert.Equal(t, "American Express", (&PaymentToken{Type: PaymentTypeCreditCard, CardType: CardTypeAmex}).TypeLabel())
}

func TestPaymentToken_IsBillingStale(t *testing.T) {
	address := BillingAddress{FirstName: "Ada", Address1: "1 Main St", PostalCode: "12345"}
	token := &PaymentToken{BillingHash: address.Hash()}

	assert.False(t, token.IsBillingStale(address))
	assert.False(t, token.IsBillingStale(BillingAddress{FirstName: " ada ", Address1: "1 MAIN ST", PostalCode: "12345"}))

	address.PostalCode = "54321"
	assert.True(t, token.IsBillingStale(address))
}

type recordingWriter struct {
	saved   map[string]*PaymentToken
	deletes int
}

func (w *recordingWriter) SaveToken(_ context.Context, token *PaymentToken) error {
	w.saved[token.ID] = token.Clone()
	return nil
}

func (w *recordingWriter) DeleteToken(_ context.Context, _ int64, _, _, tokenID string) (bool, error) {
	w.deletes++
	if _, ok := w.saved[tokenID]; !ok {
		return false, nil
	}
	delete(w.saved, tokenID)
	return true, nil
}

func TestPaymentToken_SaveDeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	w := &recordingWriter{saved: map[string]*PaymentToken{}}
	token := &PaymentToken{ID: "tok_1", UserID: 7, GatewayID: "epx", Environment: EnvironmentProduction}

	require.NoError(t, token.Save(ctx, w))
	require.NoError(t, token.Save(ctx, w))
	assert.Len(t, w.saved, 1)

	deleted, err := token.Delete(ctx, w)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = token.Delete(ctx, w)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestGenerateCustomerID(t *testing.T) {
	assert.Equal(t, "wc-42", GenerateCustomerID("", 42))
	assert.Equal(t, "shop-42", GenerateCustomerID("shop", 42))
	assert.Equal(t, "shop-guest-1001", GenerateGuestCustomerID("shop", "1001"))
}

func TestOrderPaymentContext_ExpiryDate(t *testing.T) {
	ctx := &OrderPaymentContext{ExpMonth: "1", ExpYear: "2027"}
	assert.Equal(t, "27-01", ctx.ExpiryDate())

	assert.Empty(t, (&OrderPaymentContext{}).ExpiryDate())
}

func TestDomainErrorSentinels(t *testing.T) {
	err := WrapError(ErrorCodeTokenNotFound, "token tok_9 not found", nil)
	assert.ErrorIs(t, err, ErrTokenNotFound)
	assert.True(t, IsTokenError(err))
	assert.False(t, IsCaptureRefusal(err))

	var verrs ValidationErrors
	assert.NoError(t, verrs.OrNil())
	verrs.Add("account_number", "Card number is invalid")
	assert.ErrorIs(t, verrs.OrNil(), ErrValidationFailed)
}
