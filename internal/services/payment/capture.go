package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/kevin07696/payment-engine/internal/domain"
	"github.com/kevin07696/payment-engine/internal/domain/ports"
	"github.com/kevin07696/payment-engine/pkg/observability"
	"github.com/shopspring/decimal"
)

// Capture settles a prior authorization. Only one capture per order runs at
// a time; a concurrent or re-entrant call returns domain.ErrCaptureInProgress
// without reaching the gateway. A declined capture fails the order and is
// reported in the result, not as an error.
func (e *Engine) Capture(ctx context.Context, orderID string) (*domain.CaptureResult, error) {
	if _, busy := e.capturing.LoadOrStore(orderID, struct{}{}); busy {
		return nil, domain.NewDomainError(domain.ErrorCodeCaptureInProgress,
			fmt.Sprintf("capture already in progress for order %s", orderID))
	}
	defer e.capturing.Delete(orderID)

	order, err := e.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	capturer, err := e.checkCapturable(order)
	if err != nil {
		return nil, err
	}

	order.Payment = e.captureContext(order)

	start := time.Now()
	resp, err := capturer.CreditCardCapture(ctx, order)
	if err != nil {
		observability.RecordTransaction(e.GatewayID(), string(order.Payment.Type), "capture", "error", time.Since(start))
		observability.RecordCapture(e.GatewayID(), "error")
		e.logger.Error("capture request failed",
			ports.String("order_id", orderID),
			ports.Err(err))
		return nil, domain.WrapError(domain.ErrorCodeGatewayError, "capture request failed", err)
	}
	if resp == nil {
		observability.RecordCapture(e.GatewayID(), "error")
		return nil, domain.NewDomainError(domain.ErrorCodeGatewayError, "capture returned no response")
	}
	observability.RecordTransaction(e.GatewayID(), string(order.Payment.Type), "capture", string(domain.OutcomeOf(resp)), time.Since(start))

	if !resp.TransactionApproved() {
		return e.captureDeclined(ctx, order, resp)
	}
	return e.captureApproved(ctx, order, resp)
}

func (e *Engine) checkCapturable(order *domain.Order) (ports.CaptureCapable, error) {
	gw := e.GatewayID()
	if order.PaymentMethod != gw {
		return nil, domain.NewDomainError(domain.ErrorCodeNotCapturable,
			fmt.Sprintf("order %s was not paid with %s", order.ID, gw))
	}

	capturer, ok := e.gateway.(ports.CaptureCapable)
	if !ok || !e.settings.EnableCapture {
		return nil, e.unsupported("capture")
	}

	switch order.GetMeta(gw, domain.MetaChargeCaptured) {
	case "yes":
		return nil, domain.NewDomainError(domain.ErrorCodeAlreadyCaptured,
			fmt.Sprintf("order %s is already captured", order.ID))
	case "no":
	default:
		return nil, domain.NewDomainError(domain.ErrorCodeNotCapturable,
			fmt.Sprintf("order %s has no open authorization", order.ID))
	}

	if order.GetMeta(gw, domain.MetaTransactionID) == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeNotCapturable,
			fmt.Sprintf("order %s has no authorization transaction id", order.ID))
	}

	if authorizedAt, err := time.Parse(time.RFC3339, order.GetMeta(gw, domain.MetaTransactionDate)); err == nil {
		ttl := e.settings.AuthorizationTTL
		if ttl <= 0 {
			ttl = domain.DefaultAuthorizationTTL
		}
		if e.now().Sub(authorizedAt) > ttl {
			return nil, domain.NewDomainError(domain.ErrorCodeAuthorizationExpired,
				fmt.Sprintf("authorization for order %s expired at %s", order.ID, authorizedAt.Add(ttl).Format(time.RFC3339)))
		}
	}

	return capturer, nil
}

// captureContext rebuilds a payment context from the authorization's meta.
func (e *Engine) captureContext(order *domain.Order) *domain.OrderPaymentContext {
	gw := e.GatewayID()
	total := order.Total
	if amount, err := decimal.NewFromString(order.GetMeta(gw, domain.MetaAuthorizationAmount)); err == nil {
		total = amount
	}
	return &domain.OrderPaymentContext{
		Type:       domain.PaymentTypeCreditCard,
		Total:      total,
		Token:      order.GetMeta(gw, domain.MetaPaymentToken),
		CustomerID: order.GetMeta(gw, domain.MetaCustomerID),
		LastFour:   order.GetMeta(gw, domain.MetaAccountFour),
		CardType:   order.GetMeta(gw, domain.MetaCardType),
	}
}

func (e *Engine) captureApproved(ctx context.Context, order *domain.Order, resp domain.Response) (*domain.CaptureResult, error) {
	gw := e.GatewayID()
	note := fmt.Sprintf("%s charge captured (Transaction ID %s)", e.settings.Title, resp.TransactionID())
	if err := e.orders.AddNote(ctx, order.ID, note); err != nil {
		e.logger.Warn("failed to add capture note",
			ports.String("order_id", order.ID),
			ports.Err(err))
	}

	meta := map[string]string{domain.MetaKey(gw, domain.MetaChargeCaptured): "yes"}
	if id := resp.TransactionID(); id != "" {
		meta[domain.MetaKey(gw, domain.MetaCaptureTransID)] = id
	}
	if err := e.orders.UpdateMeta(ctx, order.ID, meta); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeStorageError, "failed to record capture", err)
	}

	if err := e.orders.PaymentComplete(ctx, order.ID, resp.TransactionID()); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeStorageError, "failed to complete captured order", err)
	}

	observability.RecordCapture(gw, "approved")
	e.logger.Info("charge captured",
		ports.String("order_id", order.ID),
		ports.String("transaction_id", resp.TransactionID()))
	e.publish(ctx, domain.EventPaymentCaptured, order, resp)

	return &domain.CaptureResult{
		Approved:      true,
		TransactionID: resp.TransactionID(),
		Message:       note,
	}, nil
}

func (e *Engine) captureDeclined(ctx context.Context, order *domain.Order, resp domain.Response) (*domain.CaptureResult, error) {
	message := domain.DescribeFailure(resp)
	note := fmt.Sprintf("%s capture declined: %s", e.settings.Title, message)
	if err := e.orders.UpdateStatus(ctx, order.ID, domain.OrderStatusFailed, note); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeStorageError, "failed to fail order after declined capture", err)
	}

	observability.RecordCapture(e.GatewayID(), "declined")
	e.logger.Warn("capture declined",
		ports.String("order_id", order.ID),
		ports.String("status_code", resp.StatusCode()),
		ports.String("status_message", resp.StatusMessage()))
	e.publish(ctx, domain.EventCaptureDeclined, order, resp)

	return &domain.CaptureResult{Approved: false, TransactionID: resp.TransactionID(), Message: message}, nil
}

// HandleStatusTransition captures an authorization when an on-hold order is
// moved to processing or completed. Guard refusals are expected here and
// logged at debug level.
func (e *Engine) HandleStatusTransition(ctx context.Context, orderID string, from, to domain.OrderStatus) {
	if from != domain.OrderStatusOnHold || !to.IsPaid() {
		return
	}

	result, err := e.Capture(ctx, orderID)
	switch {
	case err == nil:
		e.logger.Info("capture on status change finished",
			ports.String("order_id", orderID),
			ports.Bool("approved", result.Approved))
	case domain.IsCaptureRefusal(err) || domain.IsDomainError(err, domain.ErrorCodeFeatureUnsupported):
		e.logger.Debug("capture on status change skipped",
			ports.String("order_id", orderID),
			ports.String("reason", string(domain.GetErrorCode(err))))
	default:
		e.logger.Error("capture on status change failed",
			ports.String("order_id", orderID),
			ports.Err(err))
	}
}
