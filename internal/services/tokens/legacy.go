package tokens

import (
	"context"
	"sort"
	"strings"

	"github.com/kevin07696/payment-engine/internal/domain"
	"github.com/kevin07696/payment-engine/internal/domain/ports"
	"github.com/kevin07696/payment-engine/pkg/observability"
)

// migrateLegacyTokens copies records from the legacy blob into the token
// store once. Legacy tokens are returned even if copying them failed; the
// scope is flagged complete only when every record has been copied.
func (s *Synchronizer) migrateLegacyTokens(ctx context.Context, userID int64, environment string, current []*domain.PaymentToken) []*domain.PaymentToken {
	if s.legacy == nil {
		return current
	}
	gatewayID := s.GatewayID()

	done, err := s.legacy.IsMigrationComplete(ctx, userID, gatewayID, environment)
	if err != nil {
		s.logger.Warn("failed to read legacy migration flag",
			ports.Int64("user_id", userID),
			ports.Err(err))
		return current
	}
	if done {
		return current
	}

	records, err := s.legacy.LoadLegacyTokens(ctx, userID, gatewayID, environment)
	if err != nil {
		s.logger.Warn("failed to load legacy tokens",
			ports.Int64("user_id", userID),
			ports.Err(err))
		return current
	}

	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := current
	allMigrated := true
	migrated, failed := 0, 0
	for _, id := range ids {
		record := records[id]
		if record.Migrated() {
			// copied on an earlier pass; the store is authoritative now
			continue
		}
		if indexOf(result, id) >= 0 {
			record["migrated"] = "1"
			continue
		}

		token := tokenFromLegacy(id, record)
		s.scope(token, userID, environment)

		if err := s.store.SaveToken(ctx, token); err != nil {
			allMigrated = false
			failed++
			s.logger.Error("failed to migrate legacy token",
				ports.Int64("user_id", userID),
				ports.String("token_id", id),
				ports.Err(err))
		} else {
			record["migrated"] = "1"
			migrated++
		}
		result = append(result, token)
	}

	observability.RecordLegacyMigration(gatewayID, "migrated", migrated)
	observability.RecordLegacyMigration(gatewayID, "failed", failed)

	if len(records) > 0 {
		if err := s.legacy.SaveLegacyTokens(ctx, userID, gatewayID, environment, records); err != nil {
			allMigrated = false
			s.logger.Error("failed to persist legacy migration flags",
				ports.Int64("user_id", userID),
				ports.Err(err))
		}
	}

	for _, t := range EnsureSingleDefault(result) {
		if err := s.store.SaveToken(ctx, t); err != nil {
			s.logger.Warn("failed to clear duplicate default after migration",
				ports.String("token_id", t.ID),
				ports.Err(err))
		}
	}

	if allMigrated {
		if err := s.legacy.MarkMigrationComplete(ctx, userID, gatewayID, environment); err != nil {
			s.logger.Error("failed to flag legacy migration complete",
				ports.Int64("user_id", userID),
				ports.Err(err))
		} else if len(records) > 0 {
			s.logger.Info("legacy tokens migrated",
				ports.Int64("user_id", userID),
				ports.Int("count", len(records)))
		}
	}

	return result
}

func tokenFromLegacy(id string, record ports.LegacyTokenRecord) *domain.PaymentToken {
	token := domain.NewPaymentToken(id, domain.TokenData{
		Type:        domain.ParsePaymentType(record["type"]),
		LastFour:    record["last_four"],
		CardType:    record["card_type"],
		AccountType: record["account_type"],
		ExpMonth:    record["exp_month"],
		ExpYear:     record["exp_year"],
		Default:     truthy(record["default"]),
		Nickname:    record["nickname"],
		BillingHash: record["billing_hash"],
	})
	token.Migrated = true
	return token
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
