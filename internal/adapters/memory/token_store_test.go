package memory

import (
	"context"
	"testing"

	"github.com/kevin07696/payment-engine/internal/domain"
	"github.com/kevin07696/payment-engine/internal/domain/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewTokenStore()

	token := &domain.PaymentToken{
		ID:          "tok_1",
		GatewayID:   "epx",
		UserID:      7,
		Type:        domain.PaymentTypeCreditCard,
		LastFour:    "1111",
		CardType:    domain.CardTypeVisa,
		ExpMonth:    "01",
		ExpYear:     "2030",
		Environment: domain.EnvironmentProduction,
		Default:     true,
		Nickname:    "Work card",
		BillingHash: "abc",
		ImageURL:    "https://cdn.example/visa.svg",
	}
	require.NoError(t, token.Save(ctx, store))

	got, err := store.GetToken(ctx, 7, "epx", domain.EnvironmentProduction, "tok_1")
	require.NoError(t, err)

	want := token.Clone()
	assert.Equal(t, want, got)
}

func TestTokenStore_ScopeIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewTokenStore()

	require.NoError(t, store.SaveToken(ctx, &domain.PaymentToken{ID: "a", UserID: 1, GatewayID: "epx", Environment: "production"}))
	require.NoError(t, store.SaveToken(ctx, &domain.PaymentToken{ID: "b", UserID: 1, GatewayID: "epx", Environment: "sandbox"}))
	require.NoError(t, store.SaveToken(ctx, &domain.PaymentToken{ID: "c", UserID: 2, GatewayID: "epx", Environment: "production"}))

	tokens, err := store.ListTokens(ctx, 1, "epx", "production")
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "a", tokens[0].ID)

	_, err = store.GetToken(ctx, 1, "epx", "production", "c")
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)
}

func TestTokenStore_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewTokenStore()
	require.NoError(t, store.SaveToken(ctx, &domain.PaymentToken{ID: "a", UserID: 1, GatewayID: "epx", Environment: "production"}))

	deleted, err := store.DeleteToken(ctx, 1, "epx", "production", "a")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = store.DeleteToken(ctx, 1, "epx", "production", "a")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestTokenStore_Legacy(t *testing.T) {
	ctx := context.Background()
	store := NewTokenStore()

	records := map[string]ports.LegacyTokenRecord{"old": {"type": "credit_card", "last_four": "4242"}}
	require.NoError(t, store.SaveLegacyTokens(ctx, 1, "epx", "production", records))

	records["old"]["migrated"] = "1"
	loaded, err := store.LoadLegacyTokens(ctx, 1, "epx", "production")
	require.NoError(t, err)
	assert.False(t, loaded["old"].Migrated())

	done, err := store.IsMigrationComplete(ctx, 1, "epx", "production")
	require.NoError(t, err)
	assert.False(t, done)
	require.NoError(t, store.MarkMigrationComplete(ctx, 1, "epx", "production"))
	done, _ = store.IsMigrationComplete(ctx, 1, "epx", "production")
	assert.True(t, done)
}

func TestTokenStore_CustomerIDFirstWriterWins(t *testing.T) {
	ctx := context.Background()
	store := NewTokenStore()

	require.NoError(t, store.SetCustomerID(ctx, 1, "epx", "production", "wc-first"))
	require.NoError(t, store.SetCustomerID(ctx, 1, "epx", "production", "wc-second"))

	id, err := store.GetCustomerID(ctx, 1, "epx", "production")
	require.NoError(t, err)
	assert.Equal(t, "wc-first", id)
}
