package payment

import (
	"context"

	"github.com/google/uuid"
	"github.com/kevin07696/payment-engine/internal/domain"
	"github.com/kevin07696/payment-engine/internal/domain/ports"
	"github.com/kevin07696/payment-engine/pkg/observability"
)

// publish emits an outcome event. Publish failures are logged only.
func (e *Engine) publish(ctx context.Context, eventType domain.PaymentEventType, order *domain.Order, resp domain.Response) {
	if e.publisher == nil {
		return
	}

	event := &domain.PaymentEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		GatewayID:   e.GatewayID(),
		Environment: e.settings.Environment,
		OrderID:     order.ID,
		UserID:      order.UserID,
		Amount:      order.Total,
		Currency:    order.Currency,
		OccurredAt:  e.now().UTC(),
	}
	if order.Payment != nil {
		event.Amount = order.Payment.Total
	}
	if resp != nil {
		event.TransactionID = resp.TransactionID()
		event.StatusCode = resp.StatusCode()
		event.StatusMessage = resp.StatusMessage()
	}

	if err := e.publisher.Publish(ctx, event); err != nil {
		observability.RecordEventPublished(string(eventType), "error")
		e.logger.Warn("failed to publish payment event",
			ports.String("order_id", order.ID),
			ports.String("event_type", string(eventType)),
			ports.Err(err))
		return
	}
	observability.RecordEventPublished(string(eventType), "published")
}

// Publish emits an event on behalf of the recurring and pre-order services.
func (e *Engine) Publish(ctx context.Context, eventType domain.PaymentEventType, order *domain.Order) {
	e.publish(ctx, eventType, order, nil)
}
