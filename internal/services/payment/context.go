package payment

import (
	"context"
	"strings"
	"time"

	"github.com/kevin07696/payment-engine/internal/domain"
	"github.com/kevin07696/payment-engine/internal/domain/ports"
)

// BuildPaymentContext attaches a fresh payment context to the order. A token
// id selects the tokenized flow and raw fields are ignored.
func (e *Engine) BuildPaymentContext(ctx context.Context, order *domain.Order, fields *domain.PaymentFields) error {
	p := &domain.OrderPaymentContext{Total: order.Total}

	if fields.TokenID != "" {
		token, err := e.tokens.GetToken(ctx, order.UserID, fields.TokenID, e.settings.Environment)
		if err != nil {
			return err
		}
		p.ApplyToken(token)
	} else {
		parseRawFields(p, fields)
	}

	customerID, err := e.customerID(ctx, order)
	if err != nil {
		return err
	}
	p.CustomerID = customerID
	p.AuthorizationOnly = p.Type == domain.PaymentTypeCreditCard && !e.settings.PerformCharge(order)

	order.Payment = p
	return nil
}

// PrepareTokenPayment attaches a payment context that charges token, for
// flows that re-enter the engine without checkout fields.
func (e *Engine) PrepareTokenPayment(order *domain.Order, token *domain.PaymentToken, customerID string) {
	p := &domain.OrderPaymentContext{Total: order.Total, CustomerID: customerID}
	p.ApplyToken(token)
	p.AuthorizationOnly = p.Type == domain.PaymentTypeCreditCard && !e.settings.PerformCharge(order)
	order.Payment = p
}

func parseRawFields(p *domain.OrderPaymentContext, fields *domain.PaymentFields) {
	p.Type = paymentType(fields)
	p.AccountNumber = domain.DigitsOnly(fields.AccountNumber)
	if n := len(p.AccountNumber); n >= 4 {
		p.LastFour = p.AccountNumber[n-4:]
	}

	if p.Type == domain.PaymentTypeECheck {
		p.RoutingNumber = domain.DigitsOnly(fields.RoutingNumber)
		p.AccountType = normalizeAccountType(fields.AccountType)
		return
	}

	p.ExpMonth = domain.NormalizeExpiryMonth(fields.ExpMonth)
	p.ExpYear = domain.NormalizeExpiryYear(fields.ExpYear)
	p.CSC = strings.TrimSpace(fields.CSC)
	p.CardType = domain.CardTypeFromAccountNumber(p.AccountNumber)
}

func (e *Engine) customerID(ctx context.Context, order *domain.Order) (string, error) {
	if order.IsGuest() {
		return e.tokens.GuestCustomerID(order), nil
	}
	return e.tokens.CustomerID(ctx, order.UserID, e.settings.Environment)
}

// recordTransactionData writes the attempt's outcome to order meta. resp is
// nil for zero-total orders.
func (e *Engine) recordTransactionData(ctx context.Context, order *domain.Order, resp domain.Response) error {
	p := order.Payment
	gw := e.GatewayID()
	meta := make(map[string]string, 16)
	set := func(key, value string) {
		if value != "" {
			meta[domain.MetaKey(gw, key)] = value
		}
	}

	set(domain.MetaPaymentToken, p.Token)
	set(domain.MetaAccountFour, p.LastFour)
	set(domain.MetaPaymentType, string(p.Type))
	set(domain.MetaEnvironment, e.settings.Environment)
	set(domain.MetaCustomerID, p.CustomerID)
	if p.Type == domain.PaymentTypeECheck {
		set(domain.MetaAccountType, p.AccountType)
	} else {
		set(domain.MetaCardType, p.CardType)
		set(domain.MetaCardExpiryDate, p.ExpiryDate())
	}

	if resp != nil {
		set(domain.MetaTransactionID, resp.TransactionID())
		set(domain.MetaTransactionDate, e.now().UTC().Format(time.RFC3339))
		if resp.TransactionApproved() {
			if e.isAuthorizationOnly(p) {
				set(domain.MetaChargeCaptured, "no")
				set(domain.MetaAuthorizationAmount, p.Total.StringFixed(2))
			} else {
				set(domain.MetaChargeCaptured, "yes")
			}
		}

		if recorder, ok := e.gateway.(ports.TransactionDataRecorder); ok {
			for k, v := range recorder.TransactionData(order, resp) {
				set(k, v)
			}
		}
	}

	if len(meta) == 0 {
		return nil
	}
	if err := e.orders.UpdateMeta(ctx, order.ID, meta); err != nil {
		return domain.WrapError(domain.ErrorCodeStorageError, "failed to record transaction data", err)
	}
	if order.Meta == nil {
		order.Meta = make(map[string]string, len(meta))
	}
	for k, v := range meta {
		order.Meta[k] = v
	}
	return nil
}
