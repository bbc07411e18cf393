package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/kevin07696/payment-engine/internal/domain"
	"github.com/kevin07696/payment-engine/internal/domain/ports"
)

type scopeKey struct {
	userID      int64
	gatewayID   string
	environment string
}

// TokenStore keeps tokens in process memory in insertion order.
type TokenStore struct {
	mu     sync.RWMutex
	tokens map[scopeKey][]*domain.PaymentToken

	legacy         map[scopeKey]map[string]ports.LegacyTokenRecord
	legacyMigrated map[scopeKey]bool
	customers      map[scopeKey]string
}

// NewTokenStore creates an empty store. It also serves as the legacy and
// customer id store.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		tokens:         make(map[scopeKey][]*domain.PaymentToken),
		legacy:         make(map[scopeKey]map[string]ports.LegacyTokenRecord),
		legacyMigrated: make(map[scopeKey]bool),
		customers:      make(map[scopeKey]string),
	}
}

// ListTokens implements ports.TokenStore
func (s *TokenStore) ListTokens(_ context.Context, userID int64, gatewayID, environment string) ([]*domain.PaymentToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneTokens(s.tokens[scopeKey{userID, gatewayID, environment}]), nil
}

// GetToken implements ports.TokenStore
func (s *TokenStore) GetToken(_ context.Context, userID int64, gatewayID, environment, tokenID string) (*domain.PaymentToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tokens[scopeKey{userID, gatewayID, environment}] {
		if t.ID == tokenID {
			return t.Clone(), nil
		}
	}
	return nil, domain.WrapError(domain.ErrorCodeTokenNotFound, fmt.Sprintf("token %s not found", tokenID), nil)
}

// SaveToken implements domain.TokenWriter
func (s *TokenStore) SaveToken(_ context.Context, token *domain.PaymentToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := scopeKey{token.UserID, token.GatewayID, token.Environment}
	for i, t := range s.tokens[key] {
		if t.ID == token.ID {
			s.tokens[key][i] = token.Clone()
			return nil
		}
	}
	s.tokens[key] = append(s.tokens[key], token.Clone())
	return nil
}

// DeleteToken implements domain.TokenWriter
func (s *TokenStore) DeleteToken(_ context.Context, userID int64, gatewayID, environment, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := scopeKey{userID, gatewayID, environment}
	tokens := s.tokens[key]
	for i, t := range tokens {
		if t.ID == tokenID {
			s.tokens[key] = append(tokens[:i:i], tokens[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// LoadLegacyTokens implements ports.LegacyTokenStore
func (s *TokenStore) LoadLegacyTokens(_ context.Context, userID int64, gatewayID, environment string) (map[string]ports.LegacyTokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneLegacy(s.legacy[scopeKey{userID, gatewayID, environment}]), nil
}

// SaveLegacyTokens implements ports.LegacyTokenStore
func (s *TokenStore) SaveLegacyTokens(_ context.Context, userID int64, gatewayID, environment string, records map[string]ports.LegacyTokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.legacy[scopeKey{userID, gatewayID, environment}] = cloneLegacy(records)
	return nil
}

// IsMigrationComplete implements ports.LegacyTokenStore
func (s *TokenStore) IsMigrationComplete(_ context.Context, userID int64, gatewayID, environment string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.legacyMigrated[scopeKey{userID, gatewayID, environment}], nil
}

// MarkMigrationComplete implements ports.LegacyTokenStore
func (s *TokenStore) MarkMigrationComplete(_ context.Context, userID int64, gatewayID, environment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.legacyMigrated[scopeKey{userID, gatewayID, environment}] = true
	return nil
}

// GetCustomerID implements ports.CustomerStore
func (s *TokenStore) GetCustomerID(_ context.Context, userID int64, gatewayID, environment string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.customers[scopeKey{userID, gatewayID, environment}], nil
}

// SetCustomerID implements ports.CustomerStore
func (s *TokenStore) SetCustomerID(_ context.Context, userID int64, gatewayID, environment, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := scopeKey{userID, gatewayID, environment}
	if _, ok := s.customers[key]; !ok {
		s.customers[key] = customerID
	}
	return nil
}

func cloneLegacy(records map[string]ports.LegacyTokenRecord) map[string]ports.LegacyTokenRecord {
	out := make(map[string]ports.LegacyTokenRecord, len(records))
	for id, rec := range records {
		c := make(ports.LegacyTokenRecord, len(rec))
		for k, v := range rec {
			c[k] = v
		}
		out[id] = c
	}
	return out
}
