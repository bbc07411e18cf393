package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/payment-engine/internal/domain"
	"github.com/kevin07696/payment-engine/internal/domain/ports"
)

const tokenColumns = `token_id, user_id, gateway_id, environment, type, last_four, card_type,
	account_type, exp_month, exp_year, is_default, nickname, billing_hash, migrated`

const (
	listTokensSQL = `SELECT ` + tokenColumns + ` FROM payment_tokens
	WHERE user_id = $1 AND gateway_id = $2 AND environment = $3
	ORDER BY created_at, token_id`

	getTokenSQL = `SELECT ` + tokenColumns + ` FROM payment_tokens
	WHERE user_id = $1 AND gateway_id = $2 AND environment = $3 AND token_id = $4`

	upsertTokenSQL = `INSERT INTO payment_tokens (` + tokenColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	ON CONFLICT (user_id, gateway_id, environment, token_id) DO UPDATE SET
		type = EXCLUDED.type,
		last_four = EXCLUDED.last_four,
		card_type = EXCLUDED.card_type,
		account_type = EXCLUDED.account_type,
		exp_month = EXCLUDED.exp_month,
		exp_year = EXCLUDED.exp_year,
		is_default = EXCLUDED.is_default,
		nickname = EXCLUDED.nickname,
		billing_hash = EXCLUDED.billing_hash,
		migrated = EXCLUDED.migrated,
		updated_at = NOW()`

	deleteTokenSQL = `DELETE FROM payment_tokens
	WHERE user_id = $1 AND gateway_id = $2 AND environment = $3 AND token_id = $4`

	loadLegacySQL = `SELECT records FROM legacy_payment_tokens
	WHERE user_id = $1 AND gateway_id = $2 AND environment = $3`

	saveLegacySQL = `INSERT INTO legacy_payment_tokens (user_id, gateway_id, environment, records)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (user_id, gateway_id, environment) DO UPDATE SET
		records = EXCLUDED.records,
		updated_at = NOW()`

	migrationCompleteSQL = `SELECT migration_complete FROM legacy_payment_tokens
	WHERE user_id = $1 AND gateway_id = $2 AND environment = $3`

	markMigrationCompleteSQL = `INSERT INTO legacy_payment_tokens (user_id, gateway_id, environment, migration_complete)
	VALUES ($1, $2, $3, TRUE)
	ON CONFLICT (user_id, gateway_id, environment) DO UPDATE SET
		migration_complete = TRUE,
		updated_at = NOW()`

	getCustomerIDSQL = `SELECT customer_id FROM gateway_customers
	WHERE user_id = $1 AND gateway_id = $2 AND environment = $3`

	setCustomerIDSQL = `INSERT INTO gateway_customers (user_id, gateway_id, environment, customer_id)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (user_id, gateway_id, environment) DO NOTHING`
)

// TokenStore implements ports.TokenStore, ports.LegacyTokenStore and
// ports.CustomerStore on PostgreSQL.
type TokenStore struct {
	db DB
}

// NewTokenStore creates a new token store
func NewTokenStore(db DB) *TokenStore {
	return &TokenStore{db: db}
}

var (
	_ ports.TokenStore       = (*TokenStore)(nil)
	_ ports.LegacyTokenStore = (*TokenStore)(nil)
	_ ports.CustomerStore    = (*TokenStore)(nil)
)

// ListTokens implements ports.TokenStore
func (s *TokenStore) ListTokens(ctx context.Context, userID int64, gatewayID, environment string) ([]*domain.PaymentToken, error) {
	rows, err := s.db.Query(ctx, listTokensSQL, userID, gatewayID, environment)
	if err != nil {
		return nil, storageError("list tokens", err)
	}
	defer rows.Close()

	var tokens []*domain.PaymentToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, storageError("scan token", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list tokens", err)
	}
	return tokens, nil
}

// GetToken implements ports.TokenStore
func (s *TokenStore) GetToken(ctx context.Context, userID int64, gatewayID, environment, tokenID string) (*domain.PaymentToken, error) {
	t, err := scanToken(s.db.QueryRow(ctx, getTokenSQL, userID, gatewayID, environment, tokenID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewDomainError(domain.ErrorCodeTokenNotFound, fmt.Sprintf("token %s not found", tokenID))
	}
	if err != nil {
		return nil, storageError("get token", err)
	}
	return t, nil
}

// SaveToken implements domain.TokenWriter
func (s *TokenStore) SaveToken(ctx context.Context, t *domain.PaymentToken) error {
	_, err := s.db.Exec(ctx, upsertTokenSQL,
		t.ID, t.UserID, t.GatewayID, t.Environment, string(t.Type), t.LastFour, t.CardType,
		t.AccountType, t.ExpMonth, t.ExpYear, t.Default, t.Nickname, t.BillingHash, t.Migrated)
	if err != nil {
		return storageError("save token", err)
	}
	return nil
}

// DeleteToken implements domain.TokenWriter
func (s *TokenStore) DeleteToken(ctx context.Context, userID int64, gatewayID, environment, tokenID string) (bool, error) {
	tag, err := s.db.Exec(ctx, deleteTokenSQL, userID, gatewayID, environment, tokenID)
	if err != nil {
		return false, storageError("delete token", err)
	}
	return tag.RowsAffected() > 0, nil
}

// LoadLegacyTokens implements ports.LegacyTokenStore
func (s *TokenStore) LoadLegacyTokens(ctx context.Context, userID int64, gatewayID, environment string) (map[string]ports.LegacyTokenRecord, error) {
	var raw []byte
	err := s.db.QueryRow(ctx, loadLegacySQL, userID, gatewayID, environment).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError("load legacy tokens", err)
	}

	records := make(map[string]ports.LegacyTokenRecord)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, storageError("decode legacy tokens", err)
		}
	}
	return records, nil
}

// SaveLegacyTokens implements ports.LegacyTokenStore
func (s *TokenStore) SaveLegacyTokens(ctx context.Context, userID int64, gatewayID, environment string, records map[string]ports.LegacyTokenRecord) error {
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal legacy tokens: %w", err)
	}
	if _, err := s.db.Exec(ctx, saveLegacySQL, userID, gatewayID, environment, raw); err != nil {
		return storageError("save legacy tokens", err)
	}
	return nil
}

// IsMigrationComplete implements ports.LegacyTokenStore
func (s *TokenStore) IsMigrationComplete(ctx context.Context, userID int64, gatewayID, environment string) (bool, error) {
	var done bool
	err := s.db.QueryRow(ctx, migrationCompleteSQL, userID, gatewayID, environment).Scan(&done)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storageError("read migration flag", err)
	}
	return done, nil
}

// MarkMigrationComplete implements ports.LegacyTokenStore
func (s *TokenStore) MarkMigrationComplete(ctx context.Context, userID int64, gatewayID, environment string) error {
	if _, err := s.db.Exec(ctx, markMigrationCompleteSQL, userID, gatewayID, environment); err != nil {
		return storageError("mark migration complete", err)
	}
	return nil
}

// GetCustomerID implements ports.CustomerStore
func (s *TokenStore) GetCustomerID(ctx context.Context, userID int64, gatewayID, environment string) (string, error) {
	var id string
	err := s.db.QueryRow(ctx, getCustomerIDSQL, userID, gatewayID, environment).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", storageError("get customer id", err)
	}
	return id, nil
}

// SetCustomerID implements ports.CustomerStore
func (s *TokenStore) SetCustomerID(ctx context.Context, userID int64, gatewayID, environment, customerID string) error {
	if _, err := s.db.Exec(ctx, setCustomerIDSQL, userID, gatewayID, environment, customerID); err != nil {
		return storageError("set customer id", err)
	}
	return nil
}

func scanToken(row pgx.Row) (*domain.PaymentToken, error) {
	var (
		t       domain.PaymentToken
		tokType string
	)
	err := row.Scan(&t.ID, &t.UserID, &t.GatewayID, &t.Environment, &tokType, &t.LastFour, &t.CardType,
		&t.AccountType, &t.ExpMonth, &t.ExpYear, &t.Default, &t.Nickname, &t.BillingHash, &t.Migrated)
	if err != nil {
		return nil, err
	}
	t.Type = domain.PaymentType(tokType)
	return &t, nil
}
