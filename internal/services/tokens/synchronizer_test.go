package tokens

import (
	"context"
	"errors"
	"testing"

	"github.com/kevin07696/payment-engine/internal/adapters/memory"
	"github.com/kevin07696/payment-engine/internal/domain"
	"github.com/kevin07696/payment-engine/internal/domain/ports"
	"github.com/kevin07696/payment-engine/test/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testGateway = "epx"
	testUser    = int64(42)
	testEnv     = domain.EnvironmentSandbox
)

type testDeps struct {
	gateway *mocks.MockGateway
	store   *memory.TokenStore
	cache   *memory.TokenCache
	orders  *memory.OrderRepository
	logger  *mocks.MockLogger
}

func newTestSettings() *domain.GatewaySettings {
	settings := domain.DefaultGatewaySettings()
	settings.ID = testGateway
	settings.Environment = testEnv
	return &settings
}

// setupSynchronizer returns a synchronizer over a full-capability mock gateway.
func setupSynchronizer(t *testing.T, opts ...Option) (*Synchronizer, *testDeps) {
	t.Helper()
	deps := &testDeps{
		gateway: mocks.NewMockGateway(testGateway),
		store:   memory.NewTokenStore(),
		cache:   memory.NewTokenCache(zap.NewNop(), 100),
		orders:  memory.NewOrderRepository(),
		logger:  mocks.NewMockLogger(),
	}
	s := NewSynchronizer(deps.gateway, newTestSettings(), deps.store, deps.store, deps.cache, deps.orders, deps.logger, opts...)
	return s, deps
}

// setupLocalSynchronizer uses a gateway without remote vault listing.
func setupLocalSynchronizer(t *testing.T, opts ...Option) (*Synchronizer, *testDeps) {
	t.Helper()
	s, deps := setupSynchronizer(t, opts...)
	s.gateway = mocks.ChargeOnly(deps.gateway)
	return s, deps
}

func cardToken(id string, isDefault bool) *domain.PaymentToken {
	return &domain.PaymentToken{
		ID:          id,
		GatewayID:   testGateway,
		UserID:      testUser,
		Type:        domain.PaymentTypeCreditCard,
		LastFour:    "1111",
		CardType:    domain.CardTypeVisa,
		ExpMonth:    "01",
		ExpYear:     "2030",
		Environment: testEnv,
		Default:     isDefault,
	}
}

func seed(t *testing.T, store *memory.TokenStore, tokens ...*domain.PaymentToken) {
	t.Helper()
	for _, tok := range tokens {
		require.NoError(t, store.SaveToken(context.Background(), tok))
	}
}

func defaults(tokens []*domain.PaymentToken) []string {
	var ids []string
	for _, t := range tokens {
		if t.Default {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

func storedTokens(t *testing.T, store *memory.TokenStore) []*domain.PaymentToken {
	t.Helper()
	tokens, err := store.ListTokens(context.Background(), testUser, testGateway, testEnv)
	require.NoError(t, err)
	return tokens
}

func TestGetTokens_GuestAndDisabled(t *testing.T) {
	ctx := context.Background()

	t.Run("guest gets empty list", func(t *testing.T) {
		s, deps := setupLocalSynchronizer(t)
		seed(t, deps.store, cardToken("a", true))

		assert.Empty(t, s.GetTokens(ctx, 0, testEnv))
	})

	t.Run("tokenization disabled", func(t *testing.T) {
		s, deps := setupLocalSynchronizer(t)
		s.settings.Tokenization = false
		seed(t, deps.store, cardToken("a", true))

		assert.Empty(t, s.GetTokens(ctx, testUser, testEnv))
	})
}

func TestGetTokens_CacheHitSkipsStore(t *testing.T) {
	ctx := context.Background()
	s, deps := setupLocalSynchronizer(t)
	seed(t, deps.store, cardToken("a", true))

	first := s.GetTokens(ctx, testUser, testEnv)
	require.Len(t, first, 1)

	// a write behind the synchronizer's back stays invisible until invalidation
	seed(t, deps.store, cardToken("b", false))
	assert.Len(t, s.GetTokens(ctx, testUser, testEnv), 1)

	s.ClearCache(ctx, testUser, testEnv)
	assert.Len(t, s.GetTokens(ctx, testUser, testEnv), 2)
}

func TestGetTokens_EmptyEnvironmentUsesSettings(t *testing.T) {
	s, deps := setupLocalSynchronizer(t)
	seed(t, deps.store, cardToken("a", true))

	tokens := s.GetTokens(context.Background(), testUser, "")
	require.Len(t, tokens, 1)
	assert.Equal(t, testEnv, tokens[0].Environment)
}

func TestGetTokens_RemoteSync(t *testing.T) {
	ctx := context.Background()

	t.Run("remote set replaces local and keeps local-only attributes", func(t *testing.T) {
		s, deps := setupSynchronizer(t)
		require.NoError(t, deps.store.SetCustomerID(ctx, testUser, testGateway, testEnv, "wc-42"))

		local := cardToken("a", true)
		local.Nickname = "work card"
		seed(t, deps.store, local, cardToken("gone", false))

		remote := mocks.Approved("")
		remote.Tokens = []*domain.PaymentToken{
			{ID: "a", Type: domain.PaymentTypeCreditCard, LastFour: "1111", ExpMonth: "02", ExpYear: "2031"},
			{ID: "c", Type: domain.PaymentTypeCreditCard, LastFour: "4242", CardType: domain.CardTypeVisa},
		}
		deps.gateway.SetListResponse(remote, nil)

		tokens := s.GetTokens(ctx, testUser, testEnv)

		require.Len(t, tokens, 2)
		assert.Equal(t, "a", tokens[0].ID)
		assert.Equal(t, "work card", tokens[0].Nickname)
		assert.Equal(t, "02", tokens[0].ExpMonth, "remote value wins")
		assert.Equal(t, domain.CardTypeVisa, tokens[0].CardType, "local fills empty remote field")
		assert.Equal(t, []string{"a"}, defaults(tokens))
		assert.Equal(t, "wc-42", deps.gateway.LastCustomerID)

		stored := storedTokens(t, deps.store)
		require.Len(t, stored, 2)
		assert.Equal(t, testUser, stored[1].UserID)
		assert.Equal(t, testGateway, stored[1].GatewayID)
	})

	t.Run("dropped default is replaced by the first remaining token", func(t *testing.T) {
		s, deps := setupSynchronizer(t)
		require.NoError(t, deps.store.SetCustomerID(ctx, testUser, testGateway, testEnv, "wc-42"))
		seed(t, deps.store, cardToken("a", true), cardToken("b", false))

		remote := mocks.Approved("")
		remote.Tokens = []*domain.PaymentToken{{ID: "b", Type: domain.PaymentTypeCreditCard, LastFour: "1111"}}
		deps.gateway.SetListResponse(remote, nil)

		tokens := s.GetTokens(ctx, testUser, testEnv)

		require.Len(t, tokens, 1)
		assert.Equal(t, []string{"b"}, defaults(tokens))
		assert.Equal(t, []string{"b"}, defaults(storedTokens(t, deps.store)))
	})

	t.Run("no default is invented when none existed", func(t *testing.T) {
		s, deps := setupSynchronizer(t)
		require.NoError(t, deps.store.SetCustomerID(ctx, testUser, testGateway, testEnv, "wc-42"))
		seed(t, deps.store, cardToken("a", false), cardToken("b", false))

		remote := mocks.Approved("")
		remote.Tokens = []*domain.PaymentToken{{ID: "b", Type: domain.PaymentTypeCreditCard}}
		deps.gateway.SetListResponse(remote, nil)

		tokens := s.GetTokens(ctx, testUser, testEnv)

		require.Len(t, tokens, 1)
		assert.Empty(t, defaults(tokens))
	})

	t.Run("remote failure degrades to local set", func(t *testing.T) {
		s, deps := setupSynchronizer(t)
		require.NoError(t, deps.store.SetCustomerID(ctx, testUser, testGateway, testEnv, "wc-42"))
		seed(t, deps.store, cardToken("a", true))
		deps.gateway.SetListResponse(nil, errors.New("connection reset"))

		tokens := s.GetTokens(ctx, testUser, testEnv)

		require.Len(t, tokens, 1)
		assert.Equal(t, "a", tokens[0].ID)
		assert.True(t, deps.logger.Logged("remote token listing failed, using stored tokens"))
	})

	t.Run("declined listing degrades to local set", func(t *testing.T) {
		s, deps := setupSynchronizer(t)
		require.NoError(t, deps.store.SetCustomerID(ctx, testUser, testGateway, testEnv, "wc-42"))
		seed(t, deps.store, cardToken("a", true))
		deps.gateway.SetListResponse(mocks.Declined("96", "System error"), nil)

		tokens := s.GetTokens(ctx, testUser, testEnv)

		require.Len(t, tokens, 1)
		assert.Len(t, storedTokens(t, deps.store), 1)
	})

	t.Run("no customer id skips remote call", func(t *testing.T) {
		s, deps := setupSynchronizer(t)
		seed(t, deps.store, cardToken("a", true))

		tokens := s.GetTokens(ctx, testUser, testEnv)

		assert.Len(t, tokens, 1)
		assert.Equal(t, 0, deps.gateway.ListCalls)
	})
}

func TestMergeTokens_Idempotent(t *testing.T) {
	local := []*domain.PaymentToken{cardToken("a", false), cardToken("b", true)}
	local[0].Nickname = "personal"
	remote := []*domain.PaymentToken{
		{ID: "a", Type: domain.PaymentTypeCreditCard, Default: true},
		{ID: "b", Type: domain.PaymentTypeCreditCard},
	}

	once := MergeTokens(local, remote)
	twice := MergeTokens(local, once)

	require.Len(t, once, 2)
	assert.Equal(t, once, twice)
	assert.Equal(t, []string{"a"}, defaults(once), "first default in remote order wins")
	assert.Equal(t, "personal", once[0].Nickname)
	assert.False(t, local[0].Default, "inputs are not modified")
}

func TestEnsureSingleDefault(t *testing.T) {
	tests := []struct {
		name        string
		tokens      []*domain.PaymentToken
		wantDefault []string
		wantChanged int
	}{
		{
			name:        "no defaults",
			tokens:      []*domain.PaymentToken{cardToken("a", false), cardToken("b", false)},
			wantDefault: nil,
			wantChanged: 0,
		},
		{
			name:        "one default",
			tokens:      []*domain.PaymentToken{cardToken("a", false), cardToken("b", true)},
			wantDefault: []string{"b"},
			wantChanged: 0,
		},
		{
			name:        "several defaults keep the first",
			tokens:      []*domain.PaymentToken{cardToken("a", true), cardToken("b", true), cardToken("c", true)},
			wantDefault: []string{"a"},
			wantChanged: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changed := EnsureSingleDefault(tt.tokens)
			assert.Len(t, changed, tt.wantChanged)
			assert.Equal(t, tt.wantDefault, defaults(tt.tokens))
		})
	}
}

func TestGetTokens_LegacyMigration(t *testing.T) {
	ctx := context.Background()

	t.Run("records are copied once and flagged", func(t *testing.T) {
		s, deps := setupLocalSynchronizer(t, WithLegacyStore(memory.NewTokenStore()))
		legacy := s.legacy.(*memory.TokenStore)
		require.NoError(t, legacy.SaveLegacyTokens(ctx, testUser, testGateway, testEnv, map[string]ports.LegacyTokenRecord{
			"L1": {"type": "credit_card", "last_four": "1111", "card_type": "visa", "exp_month": "1", "exp_year": "30", "default": "1"},
			"L2": {"type": "check", "last_four": "6789", "account_type": "checking"},
		}))

		tokens := s.GetTokens(ctx, testUser, testEnv)

		require.Len(t, tokens, 2)
		assert.Equal(t, []string{"L1"}, defaults(tokens))
		assert.True(t, tokens[0].Migrated)
		assert.Equal(t, "01", tokens[0].ExpMonth)
		assert.Equal(t, "2030", tokens[0].ExpYear)
		assert.Equal(t, domain.PaymentTypeECheck, tokens[1].Type)
		assert.Len(t, storedTokens(t, deps.store), 2)

		done, err := legacy.IsMigrationComplete(ctx, testUser, testGateway, testEnv)
		require.NoError(t, err)
		assert.True(t, done)

		records, err := legacy.LoadLegacyTokens(ctx, testUser, testGateway, testEnv)
		require.NoError(t, err)
		assert.True(t, records["L1"].Migrated())
		assert.True(t, records["L2"].Migrated())
	})

	t.Run("deleted migrated token is not resurrected", func(t *testing.T) {
		s, deps := setupLocalSynchronizer(t, WithLegacyStore(memory.NewTokenStore()))
		legacy := s.legacy.(*memory.TokenStore)
		require.NoError(t, legacy.SaveLegacyTokens(ctx, testUser, testGateway, testEnv, map[string]ports.LegacyTokenRecord{
			"L1": {"type": "credit_card", "last_four": "1111", "migrated": "1"},
		}))

		tokens := s.GetTokens(ctx, testUser, testEnv)

		assert.Empty(t, tokens)
		assert.Empty(t, storedTokens(t, deps.store))
	})

	t.Run("existing default stays the only default", func(t *testing.T) {
		s, deps := setupLocalSynchronizer(t, WithLegacyStore(memory.NewTokenStore()))
		seed(t, deps.store, cardToken("current", true))
		legacy := s.legacy.(*memory.TokenStore)
		require.NoError(t, legacy.SaveLegacyTokens(ctx, testUser, testGateway, testEnv, map[string]ports.LegacyTokenRecord{
			"L1": {"type": "credit_card", "last_four": "1111", "default": "true"},
		}))

		tokens := s.GetTokens(ctx, testUser, testEnv)

		require.Len(t, tokens, 2)
		assert.Equal(t, []string{"current"}, defaults(tokens))
		assert.Equal(t, []string{"current"}, defaults(storedTokens(t, deps.store)))
	})
}

func TestGetToken(t *testing.T) {
	ctx := context.Background()
	s, deps := setupLocalSynchronizer(t)
	seed(t, deps.store, cardToken("a", true))

	tok, err := s.GetToken(ctx, testUser, "a", testEnv)
	require.NoError(t, err)
	assert.Equal(t, "a", tok.ID)

	_, err = s.GetToken(ctx, testUser, "missing", testEnv)
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)

	_, err = s.GetToken(ctx, testUser, "", testEnv)
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)

	assert.True(t, s.UserHasToken(ctx, testUser, "a", testEnv))
	assert.False(t, s.UserHasToken(ctx, testUser+1, "a", testEnv))
	assert.Equal(t, "a", s.DefaultToken(ctx, testUser, testEnv).ID)
}

func TestCustomerID(t *testing.T) {
	ctx := context.Background()
	s, _ := setupLocalSynchronizer(t)

	id, err := s.CustomerID(ctx, testUser, testEnv)
	require.NoError(t, err)
	assert.Equal(t, "wc-42", id)

	s.settings.CustomerIDPrefix = "shop"
	again, err := s.CustomerID(ctx, testUser, testEnv)
	require.NoError(t, err)
	assert.Equal(t, "wc-42", again, "stored id is never regenerated")

	order := &domain.Order{ID: "1001"}
	assert.Equal(t, "shop-guest-1001", s.GuestCustomerID(order))

	order.SetMeta(testGateway, domain.MetaCustomerID, "recorded")
	assert.Equal(t, "recorded", s.GuestCustomerID(order))
}

// racingCustomers stores a competing id just before every write, as a
// concurrent request would.
type racingCustomers struct {
	ports.CustomerStore
	winner string
}

func (r *racingCustomers) SetCustomerID(ctx context.Context, userID int64, gatewayID, environment, customerID string) error {
	if err := r.CustomerStore.SetCustomerID(ctx, userID, gatewayID, environment, r.winner); err != nil {
		return err
	}
	return r.CustomerStore.SetCustomerID(ctx, userID, gatewayID, environment, customerID)
}

func TestCustomerID_ConcurrentWriterWins(t *testing.T) {
	ctx := context.Background()

	t.Run("generated id", func(t *testing.T) {
		s, deps := setupLocalSynchronizer(t)
		s.customers = &racingCustomers{CustomerStore: deps.store, winner: "wc-other"}

		id, err := s.CustomerID(ctx, testUser, testEnv)
		require.NoError(t, err)
		assert.Equal(t, "wc-other", id)

		stored, err := deps.store.GetCustomerID(ctx, testUser, testGateway, testEnv)
		require.NoError(t, err)
		assert.Equal(t, "wc-other", stored)
	})

	t.Run("gateway issued id", func(t *testing.T) {
		s, deps := setupLocalSynchronizer(t)
		s.customers = &racingCustomers{CustomerStore: deps.store, winner: "wc-other"}
		order := newCheckoutOrder(testUser)
		deps.orders.Put(order)

		resp := mocks.Approved("tok-txn")
		resp.Token = &domain.PaymentToken{ID: "new", Type: domain.PaymentTypeCreditCard}
		resp.Customer = "remote-cust"

		got, err := s.CreateToken(ctx, order, resp)
		require.NoError(t, err)
		assert.Equal(t, "wc-other", got.Payment.CustomerID)

		stored, err := deps.store.GetCustomerID(ctx, testUser, testGateway, testEnv)
		require.NoError(t, err)
		assert.Equal(t, "wc-other", stored)
	})
}

func newCheckoutOrder(userID int64) *domain.Order {
	return &domain.Order{
		ID:     "1001",
		UserID: userID,
		Status: domain.OrderStatusPending,
		Total:  decimal.RequireFromString("49.99"),
		Billing: domain.BillingAddress{
			FirstName: "Ada", LastName: "Lovelace", Address1: "1 Main St", PostalCode: "10001", Country: "US",
		},
		Payment: &domain.OrderPaymentContext{
			Type:          domain.PaymentTypeCreditCard,
			AccountNumber: "4111111111111111",
			ExpMonth:      "01",
			ExpYear:       "2030",
		},
	}
}

func TestCreateToken(t *testing.T) {
	ctx := context.Background()

	t.Run("registered user token becomes default", func(t *testing.T) {
		s, deps := setupLocalSynchronizer(t)
		seed(t, deps.store, cardToken("old", true))
		order := newCheckoutOrder(testUser)
		deps.orders.Put(order)

		resp := mocks.Approved("tok-txn")
		resp.Token = &domain.PaymentToken{ID: "new", Type: domain.PaymentTypeCreditCard}
		resp.Customer = "remote-cust"

		got, err := s.CreateToken(ctx, order, resp)
		require.NoError(t, err)

		assert.Equal(t, "new", got.Payment.Token)
		assert.Equal(t, "1111", got.Payment.LastFour)
		assert.Equal(t, domain.CardTypeVisa, got.Payment.CardType)
		assert.Equal(t, "remote-cust", got.Payment.CustomerID)

		stored := storedTokens(t, deps.store)
		require.Len(t, stored, 2)
		assert.Equal(t, []string{"new"}, defaults(stored))
		assert.Equal(t, order.Billing.Hash(), stored[1].BillingHash)

		customerID, err := deps.store.GetCustomerID(ctx, testUser, testGateway, testEnv)
		require.NoError(t, err)
		assert.Equal(t, "remote-cust", customerID)

		notes := deps.orders.Notes("1001")
		require.Len(t, notes, 1)
		assert.Contains(t, notes[0], "Visa ending in 1111 (expires 01/30)")
	})

	t.Run("guest token is not stored", func(t *testing.T) {
		s, deps := setupLocalSynchronizer(t)
		order := newCheckoutOrder(0)
		deps.orders.Put(order)

		resp := mocks.Approved("tok-txn")
		resp.Token = &domain.PaymentToken{ID: "guest-tok"}

		got, err := s.CreateToken(ctx, order, resp)
		require.NoError(t, err)
		assert.Equal(t, "guest-tok", got.Payment.Token)

		tokens, err := deps.store.ListTokens(ctx, 0, testGateway, testEnv)
		require.NoError(t, err)
		assert.Empty(t, tokens)
	})

	t.Run("declined tokenization", func(t *testing.T) {
		s, deps := setupSynchronizer(t)
		order := newCheckoutOrder(testUser)
		decline := mocks.Declined("05", "Do not honor")
		decline.TransID = "T9"
		deps.gateway.SetTokenizeResponse(decline, nil)

		_, err := s.CreateToken(ctx, order, nil)

		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrTokenizationFailed)
		assert.Contains(t, err.Error(), "05: Do not honor (Transaction ID T9)")
		assert.Empty(t, storedTokens(t, deps.store))
	})

	t.Run("gateway error", func(t *testing.T) {
		s, deps := setupSynchronizer(t)
		deps.gateway.SetTokenizeResponse(nil, errors.New("timeout"))

		_, err := s.CreateToken(ctx, newCheckoutOrder(testUser), nil)
		assert.ErrorIs(t, err, domain.ErrGatewayError)
	})

	t.Run("unsupported without tokenization capability", func(t *testing.T) {
		s, _ := setupLocalSynchronizer(t)

		_, err := s.CreateToken(ctx, newCheckoutOrder(testUser), nil)
		assert.ErrorIs(t, err, domain.ErrFeatureUnsupported)
	})

	t.Run("stored customer id is kept", func(t *testing.T) {
		s, deps := setupLocalSynchronizer(t)
		require.NoError(t, deps.store.SetCustomerID(ctx, testUser, testGateway, testEnv, "wc-42"))
		order := newCheckoutOrder(testUser)
		deps.orders.Put(order)

		resp := mocks.Approved("tok-txn")
		resp.Token = &domain.PaymentToken{ID: "new"}
		resp.Customer = "other"

		got, err := s.CreateToken(ctx, order, resp)
		require.NoError(t, err)
		assert.Equal(t, "wc-42", got.Payment.CustomerID)
	})
}

func TestDefaultInvariant(t *testing.T) {
	ctx := context.Background()

	t.Run("first token becomes default", func(t *testing.T) {
		s, deps := setupLocalSynchronizer(t)
		require.NoError(t, s.AddToken(ctx, testUser, cardToken("a", false)))
		assert.Equal(t, []string{"a"}, defaults(storedTokens(t, deps.store)))
	})

	t.Run("adding a default clears siblings", func(t *testing.T) {
		s, deps := setupLocalSynchronizer(t)
		seed(t, deps.store, cardToken("a", true), cardToken("b", false))

		require.NoError(t, s.AddToken(ctx, testUser, cardToken("c", true)))
		assert.Equal(t, []string{"c"}, defaults(storedTokens(t, deps.store)))
	})

	t.Run("set default", func(t *testing.T) {
		s, deps := setupLocalSynchronizer(t)
		seed(t, deps.store, cardToken("a", true), cardToken("b", false))

		require.NoError(t, s.SetDefaultToken(ctx, testUser, "b", testEnv))
		assert.Equal(t, []string{"b"}, defaults(storedTokens(t, deps.store)))

		err := s.SetDefaultToken(ctx, testUser, "missing", testEnv)
		assert.ErrorIs(t, err, domain.ErrTokenNotFound)
	})

	t.Run("update to default clears siblings", func(t *testing.T) {
		s, deps := setupLocalSynchronizer(t)
		seed(t, deps.store, cardToken("a", true), cardToken("b", false))

		b := cardToken("b", true)
		b.Nickname = "travel"
		require.NoError(t, s.UpdateToken(ctx, testUser, b))

		stored := storedTokens(t, deps.store)
		assert.Equal(t, []string{"b"}, defaults(stored))
		assert.Equal(t, "travel", stored[1].Nickname)

		err := s.UpdateToken(ctx, testUser, cardToken("missing", false))
		assert.ErrorIs(t, err, domain.ErrTokenNotFound)
	})

	t.Run("mutations invalidate the cache", func(t *testing.T) {
		s, deps := setupLocalSynchronizer(t)
		seed(t, deps.store, cardToken("a", true), cardToken("b", false))
		require.Len(t, s.GetTokens(ctx, testUser, testEnv), 2)

		require.NoError(t, s.SetDefaultToken(ctx, testUser, "b", testEnv))
		assert.Equal(t, []string{"b"}, defaults(s.GetTokens(ctx, testUser, testEnv)))
	})
}

func TestDefaultInvariant_OperationSequences(t *testing.T) {
	type op struct {
		kind      string // add, remove, set-default
		id        string
		asDefault bool
	}
	tests := []struct {
		name string
		ops  []op
	}{
		{
			name: "adds then removing every default",
			ops: []op{
				{kind: "add", id: "a"}, {kind: "add", id: "b"}, {kind: "add", id: "c"},
				{kind: "remove", id: "a"}, {kind: "remove", id: "b"}, {kind: "remove", id: "c"},
			},
		},
		{
			name: "default adds interleaved with set-default",
			ops: []op{
				{kind: "add", id: "a", asDefault: true}, {kind: "add", id: "b", asDefault: true},
				{kind: "set-default", id: "a"}, {kind: "add", id: "c"}, {kind: "set-default", id: "c"},
				{kind: "remove", id: "c"}, {kind: "add", id: "d", asDefault: true}, {kind: "remove", id: "a"},
			},
		},
		{
			name: "removing non-defaults and missing tokens",
			ops: []op{
				{kind: "add", id: "a"}, {kind: "add", id: "b"}, {kind: "remove", id: "b"},
				{kind: "remove", id: "missing"}, {kind: "add", id: "c", asDefault: true},
				{kind: "remove", id: "c"}, {kind: "add", id: "e"}, {kind: "set-default", id: "e"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s, deps := setupLocalSynchronizer(t)

			for i, o := range tt.ops {
				switch o.kind {
				case "add":
					require.NoError(t, s.AddToken(ctx, testUser, cardToken(o.id, o.asDefault)))
				case "remove":
					_, err := s.RemoveToken(ctx, testUser, o.id, testEnv)
					require.NoError(t, err)
				case "set-default":
					require.NoError(t, s.SetDefaultToken(ctx, testUser, o.id, testEnv))
				}

				stored := storedTokens(t, deps.store)
				got := defaults(stored)
				assert.LessOrEqual(t, len(got), 1, "step %d (%s %s): defaults %v", i, o.kind, o.id, got)
				if len(stored) > 0 {
					assert.Len(t, got, 1, "step %d (%s %s): remaining tokens need a default", i, o.kind, o.id)
				}
				if o.kind == "set-default" || (o.kind == "add" && o.asDefault) {
					assert.Equal(t, []string{o.id}, got, "step %d", i)
				}
			}
		})
	}
}

func TestRemoveToken(t *testing.T) {
	ctx := context.Background()

	t.Run("removing the default promotes the first remaining", func(t *testing.T) {
		s, deps := setupLocalSynchronizer(t)
		seed(t, deps.store, cardToken("a", true), cardToken("b", false), cardToken("c", false))

		deleted, err := s.RemoveToken(ctx, testUser, "a", testEnv)
		require.NoError(t, err)
		assert.True(t, deleted)

		stored := storedTokens(t, deps.store)
		require.Len(t, stored, 2)
		assert.Equal(t, []string{"b"}, defaults(stored))
	})

	t.Run("absent token", func(t *testing.T) {
		s, _ := setupLocalSynchronizer(t)

		deleted, err := s.RemoveToken(ctx, testUser, "missing", testEnv)
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("remote removal first", func(t *testing.T) {
		s, deps := setupSynchronizer(t)
		require.NoError(t, deps.store.SetCustomerID(ctx, testUser, testGateway, testEnv, "wc-42"))
		seed(t, deps.store, cardToken("a", true))

		deleted, err := s.RemoveToken(ctx, testUser, "a", testEnv)
		require.NoError(t, err)
		assert.True(t, deleted)
		assert.Equal(t, "a", deps.gateway.LastRemovedToken)
		assert.Equal(t, "wc-42", deps.gateway.LastCustomerID)
	})

	t.Run("remote error keeps local token", func(t *testing.T) {
		s, deps := setupSynchronizer(t)
		require.NoError(t, deps.store.SetCustomerID(ctx, testUser, testGateway, testEnv, "wc-42"))
		seed(t, deps.store, cardToken("a", true))
		deps.gateway.SetRemoveResponse(nil, errors.New("unreachable"))

		deleted, err := s.RemoveToken(ctx, testUser, "a", testEnv)
		assert.ErrorIs(t, err, domain.ErrGatewayError)
		assert.False(t, deleted)
		assert.Len(t, storedTokens(t, deps.store), 1)
	})

	t.Run("remote decline consults local removal policy", func(t *testing.T) {
		tests := []struct {
			name        string
			allowLocal  bool
			wantDeleted bool
		}{
			{name: "policy refuses", allowLocal: false, wantDeleted: false},
			{name: "policy allows", allowLocal: true, wantDeleted: true},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				s, deps := setupSynchronizer(t)
				require.NoError(t, deps.store.SetCustomerID(ctx, testUser, testGateway, testEnv, "wc-42"))
				seed(t, deps.store, cardToken("a", true))
				deps.gateway.SetRemoveResponse(mocks.Declined("NF", "Token not found"), nil)
				deps.gateway.RemoveLocalOnDecline = tt.allowLocal

				deleted, err := s.RemoveToken(ctx, testUser, "a", testEnv)
				require.NoError(t, err)
				assert.Equal(t, tt.wantDeleted, deleted)
				assert.Len(t, storedTokens(t, deps.store), map[bool]int{true: 0, false: 1}[tt.wantDeleted])
			})
		}
	})
}
