package payment

import (
	"context"
	"fmt"

	"github.com/kevin07696/payment-engine/internal/domain"
)

// ValidateFields checks submitted payment fields before any gateway call.
// Raw field problems are returned as *domain.ValidationErrors; a token the
// user does not own yields domain.ErrTokenNotFound.
func (e *Engine) ValidateFields(ctx context.Context, userID int64, fields *domain.PaymentFields) error {
	if fields == nil {
		v := &domain.ValidationErrors{}
		v.Add("payment", "Payment details are required")
		return v
	}

	if fields.TokenID != "" {
		if !e.tokens.UserHasToken(ctx, userID, fields.TokenID, e.settings.Environment) {
			return domain.WrapError(domain.ErrorCodeTokenNotFound,
				fmt.Sprintf("payment token %s does not belong to user %d", fields.TokenID, userID), nil)
		}
		return nil
	}

	v := &domain.ValidationErrors{}
	switch paymentType(fields) {
	case domain.PaymentTypeECheck:
		e.validateCheckFields(fields, v)
	default:
		e.validateCardFields(fields, v)
	}
	return v.OrNil()
}

func (e *Engine) validateCardFields(fields *domain.PaymentFields, v *domain.ValidationErrors) {
	if msg := domain.ValidateCardNumber(fields.AccountNumber); msg != "" {
		v.Add("account_number", msg)
	} else if brand := domain.CardTypeFromAccountNumber(fields.AccountNumber); !e.settings.AcceptsCardType(brand) {
		v.Add("account_number", fmt.Sprintf("%s cards are not accepted", domain.CardTypeLabel(brand)))
	}

	if msg := domain.ValidateExpiry(fields.ExpMonth, fields.ExpYear, e.now()); msg != "" {
		v.Add("expiry", msg)
	}

	if e.settings.EnableCSC {
		if msg := domain.ValidateCSC(fields.CSC); msg != "" {
			v.Add("csc", msg)
		}
	}
}

func (e *Engine) validateCheckFields(fields *domain.PaymentFields, v *domain.ValidationErrors) {
	if msg := domain.ValidateRoutingNumber(fields.RoutingNumber); msg != "" {
		v.Add("routing_number", msg)
	}
	if msg := domain.ValidateBankAccountNumber(fields.AccountNumber); msg != "" {
		v.Add("account_number", msg)
	}
	switch normalizeAccountType(fields.AccountType) {
	case domain.AccountTypeChecking, domain.AccountTypeSavings:
	default:
		v.Add("account_type", "Account type must be checking or savings")
	}
}

func paymentType(fields *domain.PaymentFields) domain.PaymentType {
	if fields.Type == "" {
		return domain.PaymentTypeCreditCard
	}
	return domain.ParsePaymentType(string(fields.Type))
}
