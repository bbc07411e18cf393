package tokens

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/kevin07696/payment-engine/internal/domain"
	"github.com/kevin07696/payment-engine/internal/domain/ports"
	"github.com/kevin07696/payment-engine/pkg/observability"
)

const cacheKeyPrefix = "tokens:"

// Synchronizer resolves a user's saved payment tokens from the read cache,
// the token store, the legacy store and the remote gateway vault, and keeps
// the single-default invariant on every mutation.
type Synchronizer struct {
	gateway   ports.Gateway
	settings  *domain.GatewaySettings
	store     ports.TokenStore
	legacy    ports.LegacyTokenStore
	customers ports.CustomerStore
	cache     ports.TokenCache
	orders    ports.OrderRepository
	logger    ports.Logger
}

// Option configures optional Synchronizer collaborators.
type Option func(*Synchronizer)

// WithLegacyStore enables lazy migration from the legacy token format.
func WithLegacyStore(legacy ports.LegacyTokenStore) Option {
	return func(s *Synchronizer) { s.legacy = legacy }
}

// NewSynchronizer creates a new token synchronizer
func NewSynchronizer(
	gateway ports.Gateway,
	settings *domain.GatewaySettings,
	store ports.TokenStore,
	customers ports.CustomerStore,
	cache ports.TokenCache,
	orders ports.OrderRepository,
	logger ports.Logger,
	opts ...Option,
) *Synchronizer {
	s := &Synchronizer{
		gateway:   gateway,
		settings:  settings,
		store:     store,
		customers: customers,
		cache:     cache,
		orders:    orders,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GatewayID returns the id tokens are scoped by.
func (s *Synchronizer) GatewayID() string {
	return s.gateway.ID()
}

// Environment returns the configured environment.
func (s *Synchronizer) Environment() string {
	return s.settings.Environment
}

// TokenizationEnabled reports whether saved methods are offered at all.
func (s *Synchronizer) TokenizationEnabled() bool {
	return s.settings.Tokenization
}

// GetTokens returns the user's tokens for environment. It never fails:
// store, legacy and remote errors are logged and the best available set is
// returned.
func (s *Synchronizer) GetTokens(ctx context.Context, userID int64, environment string) []*domain.PaymentToken {
	if userID == 0 || !s.settings.Tokenization {
		return []*domain.PaymentToken{}
	}
	environment = s.resolveEnvironment(environment)
	key := s.cacheKey(userID, environment)

	if cached, found, err := s.cache.Get(ctx, key); err != nil {
		observability.RecordTokenCacheLookup("error")
		s.logger.Warn("token cache read failed",
			ports.Int64("user_id", userID),
			ports.Err(err))
	} else if found {
		observability.RecordTokenCacheLookup("hit")
		return cached
	} else {
		observability.RecordTokenCacheLookup("miss")
	}

	tokens, err := s.store.ListTokens(ctx, userID, s.GatewayID(), environment)
	if err != nil {
		s.logger.Error("failed to load stored tokens",
			ports.Int64("user_id", userID),
			ports.String("environment", environment),
			ports.Err(err))
		tokens = []*domain.PaymentToken{}
	}

	tokens = s.migrateLegacyTokens(ctx, userID, environment, tokens)
	tokens = s.syncRemoteTokens(ctx, userID, environment, tokens)

	if err := s.cache.Set(ctx, key, tokens, s.cacheTTL()); err != nil {
		s.logger.Warn("token cache write failed",
			ports.Int64("user_id", userID),
			ports.Err(err))
	}

	return tokens
}

// GetToken returns one of the user's tokens, or domain.ErrTokenNotFound.
func (s *Synchronizer) GetToken(ctx context.Context, userID int64, tokenID, environment string) (*domain.PaymentToken, error) {
	if tokenID == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeTokenNotFound, "payment token id is empty")
	}
	for _, t := range s.GetTokens(ctx, userID, environment) {
		if t.ID == tokenID {
			return t, nil
		}
	}
	return nil, domain.NewDomainError(domain.ErrorCodeTokenNotFound,
		fmt.Sprintf("payment token %s not found for user %d", tokenID, userID))
}

// UserHasToken reports whether tokenID belongs to the user.
func (s *Synchronizer) UserHasToken(ctx context.Context, userID int64, tokenID, environment string) bool {
	_, err := s.GetToken(ctx, userID, tokenID, environment)
	return err == nil
}

// DefaultToken returns the user's default token, or nil.
func (s *Synchronizer) DefaultToken(ctx context.Context, userID int64, environment string) *domain.PaymentToken {
	for _, t := range s.GetTokens(ctx, userID, environment) {
		if t.Default {
			return t
		}
	}
	return nil
}

// ClearCache invalidates the cached token list for the user.
func (s *Synchronizer) ClearCache(ctx context.Context, userID int64, environment string) {
	environment = s.resolveEnvironment(environment)
	if err := s.cache.Delete(ctx, s.cacheKey(userID, environment)); err != nil {
		s.logger.Warn("token cache invalidation failed",
			ports.Int64("user_id", userID),
			ports.String("environment", environment),
			ports.Err(err))
	}
}

// syncRemoteTokens merges the gateway's token listing into local when the
// driver can list tokens and the user has a customer id.
func (s *Synchronizer) syncRemoteTokens(ctx context.Context, userID int64, environment string, local []*domain.PaymentToken) []*domain.PaymentToken {
	lister, ok := s.gateway.(ports.TokenListingCapable)
	if !ok {
		return local
	}

	customerID, err := s.customers.GetCustomerID(ctx, userID, s.GatewayID(), environment)
	if err != nil {
		s.logger.Warn("failed to load customer id for token sync",
			ports.Int64("user_id", userID),
			ports.Err(err))
		return local
	}
	if customerID == "" {
		return local
	}

	resp, err := lister.GetTokenizedPaymentMethods(ctx, customerID)
	if err != nil {
		observability.RecordRemoteTokenSync(s.GatewayID(), "failed")
		s.logger.Warn("remote token listing failed, using stored tokens",
			ports.Int64("user_id", userID),
			ports.String("customer_id", customerID),
			ports.Err(err))
		return local
	}
	if !resp.TransactionApproved() {
		observability.RecordRemoteTokenSync(s.GatewayID(), "declined")
		s.logger.Warn("remote token listing not approved, using stored tokens",
			ports.Int64("user_id", userID),
			ports.String("status_code", resp.StatusCode()),
			ports.String("status_message", resp.StatusMessage()))
		return local
	}

	remote := make([]*domain.PaymentToken, 0, len(resp.PaymentTokens()))
	for _, t := range resp.PaymentTokens() {
		if t == nil || t.ID == "" {
			continue
		}
		t = t.Clone()
		s.scope(t, userID, environment)
		remote = append(remote, t)
	}

	merged := MergeTokens(local, remote)
	promoteDefault(local, merged)

	for _, t := range merged {
		if err := s.store.SaveToken(ctx, t); err != nil {
			s.logger.Error("failed to persist merged token",
				ports.Int64("user_id", userID),
				ports.String("token_id", t.ID),
				ports.Err(err))
		}
	}

	for _, t := range local {
		if indexOf(merged, t.ID) >= 0 {
			continue
		}
		if _, err := s.store.DeleteToken(ctx, userID, s.GatewayID(), environment, t.ID); err != nil {
			s.logger.Error("failed to delete token removed at gateway",
				ports.Int64("user_id", userID),
				ports.String("token_id", t.ID),
				ports.Err(err))
		}
	}

	observability.RecordRemoteTokenSync(s.GatewayID(), "merged")
	return merged
}

func (s *Synchronizer) scope(t *domain.PaymentToken, userID int64, environment string) {
	t.UserID = userID
	t.GatewayID = s.GatewayID()
	t.Environment = environment
}

func (s *Synchronizer) resolveEnvironment(environment string) string {
	if environment == "" {
		return s.settings.Environment
	}
	return environment
}

func (s *Synchronizer) cacheTTL() time.Duration {
	if s.settings.TokenCacheTTL > 0 {
		return s.settings.TokenCacheTTL
	}
	return domain.DefaultTokenCacheTTL
}

// cacheKey hashes (gateway, user, environment).
func (s *Synchronizer) cacheKey(userID int64, environment string) string {
	sum := sha256.Sum256([]byte(s.GatewayID() + "|" + strconv.FormatInt(userID, 10) + "|" + environment))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

func indexOf(tokens []*domain.PaymentToken, id string) int {
	for i, t := range tokens {
		if t.ID == id {
			return i
		}
	}
	return -1
}
