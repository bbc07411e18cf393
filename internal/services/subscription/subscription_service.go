package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/kevin07696/payment-engine/internal/domain"
	"github.com/kevin07696/payment-engine/internal/domain/ports"
	"github.com/kevin07696/payment-engine/internal/services/payment"
	"github.com/kevin07696/payment-engine/pkg/observability"
	"github.com/shopspring/decimal"
)

// Renewal is one scheduled renewal charge.
type Renewal struct {
	SubscriptionID string          `json:"subscription_id"`
	OrderID        string          `json:"order_id"`
	Amount         decimal.Decimal `json:"amount"`
}

// RenewalError describes a renewal that did not succeed.
type RenewalError struct {
	SubscriptionID string `json:"subscription_id"`
	OrderID        string `json:"order_id"`
	Error          string `json:"error"`
	Declined       bool   `json:"declined"`
}

// BatchResult summarizes a run of ProcessDueRenewals.
type BatchResult struct {
	ProcessedCount int            `json:"processed_count"`
	SuccessCount   int            `json:"success_count"`
	FailedCount    int            `json:"failed_count"`
	Errors         []RenewalError `json:"errors"`
}

// Service runs initial subscription checkout and scheduled renewals through
// the transaction engine.
type Service struct {
	engine        *payment.Engine
	orders        ports.OrderRepository
	subscriptions ports.SubscriptionStore
	logger        ports.Logger
	now           func() time.Time
}

// NewService creates a new subscription service
func NewService(
	engine *payment.Engine,
	orders ports.OrderRepository,
	subscriptions ports.SubscriptionStore,
	logger ports.Logger,
) *Service {
	return &Service{
		engine:        engine,
		orders:        orders,
		subscriptions: subscriptions,
		logger:        logger,
		now:           time.Now,
	}
}

// ProcessPayment runs checkout for an order. Orders containing subscriptions
// always vault the payment method, and on success the token and customer id
// are copied to every subscription on the order.
func (s *Service) ProcessPayment(ctx context.Context, orderID string, fields *domain.PaymentFields) (*domain.PaymentResult, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if len(order.SubscriptionIDs) == 0 {
		return s.engine.ProcessPayment(ctx, orderID, fields)
	}

	result, err := s.engine.ProcessPayment(ctx, orderID, fields, payment.WithForcedTokenization())
	if err != nil || !result.Success {
		return result, err
	}

	if err := s.savePaymentMeta(ctx, orderID); err != nil {
		s.logger.Error("failed to save subscription payment method",
			ports.String("order_id", orderID),
			ports.Err(err))
	}
	return result, nil
}

func (s *Service) savePaymentMeta(ctx context.Context, orderID string) error {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}

	gw := s.engine.GatewayID()
	meta := domain.SubscriptionPaymentMeta{
		TokenID:     order.GetMeta(gw, domain.MetaPaymentToken),
		CustomerID:  order.GetMeta(gw, domain.MetaCustomerID),
		Environment: order.GetMeta(gw, domain.MetaEnvironment),
	}
	if meta.TokenID == "" {
		return domain.NewDomainError(domain.ErrorCodeTokenNotFound,
			fmt.Sprintf("order %s has no payment token to renew with", orderID))
	}

	for _, id := range order.SubscriptionIDs {
		m := meta
		m.SubscriptionID = id
		if err := s.subscriptions.SavePaymentMeta(ctx, &m); err != nil {
			return domain.WrapError(domain.ErrorCodeStorageError,
				fmt.Sprintf("failed to save payment meta for subscription %s", id), err)
		}
	}

	s.logger.Info("subscription payment method saved",
		ports.String("order_id", orderID),
		ports.Int("subscriptions", len(order.SubscriptionIDs)))
	return nil
}

// ProcessRenewal charges a renewal order for amount with the subscription's
// own token. A missing or expired token fails the order without a gateway
// call. A decline is returned as domain.OutcomeDeclined, not an error.
func (s *Service) ProcessRenewal(ctx context.Context, subscriptionID, orderID string, amount decimal.Decimal) (domain.ResponseOutcome, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return "", err
	}

	token, customerID, err := s.renewalToken(ctx, subscriptionID, order)
	if err != nil {
		s.failRenewal(ctx, subscriptionID, order, err)
		return "", err
	}

	s.engine.PrepareTokenPayment(order, token, customerID)
	outcome, err := s.engine.ProcessOrder(ctx, order, payment.WithPaymentTotal(amount))
	if err != nil {
		s.failRenewal(ctx, subscriptionID, order, err)
		return "", err
	}

	observability.RecordRenewal(s.engine.GatewayID(), string(outcome))
	if outcome == domain.OutcomeDeclined {
		s.engine.Publish(ctx, domain.EventRenewalFailed, order)
	}

	s.logger.Info("renewal processed",
		ports.String("subscription_id", subscriptionID),
		ports.String("order_id", orderID),
		ports.String("amount", amount.StringFixed(2)),
		ports.String("outcome", string(outcome)))
	return outcome, nil
}

// renewalToken resolves the token recorded for the subscription. The user's
// current default is never consulted.
func (s *Service) renewalToken(ctx context.Context, subscriptionID string, order *domain.Order) (*domain.PaymentToken, string, error) {
	meta, err := s.subscriptions.GetPaymentMeta(ctx, subscriptionID)
	if err != nil {
		return nil, "", domain.WrapError(domain.ErrorCodeStorageError,
			fmt.Sprintf("failed to load payment meta for subscription %s", subscriptionID), err)
	}
	if meta.TokenID == "" {
		return nil, "", domain.NewDomainError(domain.ErrorCodeTokenNotFound,
			fmt.Sprintf("subscription %s has no payment token", subscriptionID))
	}

	env := meta.Environment
	if env == "" {
		env = s.engine.Settings().Environment
	}

	token, err := s.engine.Tokens().GetToken(ctx, order.UserID, meta.TokenID, env)
	if err != nil {
		return nil, "", err
	}
	if token.IsExpired(s.now()) {
		return nil, "", domain.NewDomainError(domain.ErrorCodeTokenInvalid,
			fmt.Sprintf("payment token %s expired %s/%s", token.ID, token.ExpMonth, token.ExpYear))
	}

	customerID := meta.CustomerID
	if customerID == "" {
		customerID, err = s.engine.Tokens().CustomerID(ctx, order.UserID, env)
		if err != nil {
			return nil, "", err
		}
	}
	return token, customerID, nil
}

func (s *Service) failRenewal(ctx context.Context, subscriptionID string, order *domain.Order, cause error) {
	observability.RecordRenewal(s.engine.GatewayID(), "failed")
	s.logger.Warn("renewal failed",
		ports.String("subscription_id", subscriptionID),
		ports.String("order_id", order.ID),
		ports.Err(cause))
	s.engine.FailOrder(ctx, order, cause)
	s.engine.Publish(ctx, domain.EventRenewalFailed, order)
}

// ProcessDueRenewals runs each renewal in turn. Retry policy belongs to the
// scheduler; a failed renewal is reported, not retried.
func (s *Service) ProcessDueRenewals(ctx context.Context, renewals []Renewal) *BatchResult {
	result := &BatchResult{
		ProcessedCount: len(renewals),
		Errors:         make([]RenewalError, 0),
	}

	s.logger.Info("processing renewal batch",
		ports.Int("count", len(renewals)))

	for _, r := range renewals {
		outcome, err := s.ProcessRenewal(ctx, r.SubscriptionID, r.OrderID, r.Amount)
		switch {
		case err != nil:
			result.FailedCount++
			result.Errors = append(result.Errors, RenewalError{
				SubscriptionID: r.SubscriptionID,
				OrderID:        r.OrderID,
				Error:          err.Error(),
			})
		case outcome == domain.OutcomeDeclined:
			result.FailedCount++
			result.Errors = append(result.Errors, RenewalError{
				SubscriptionID: r.SubscriptionID,
				OrderID:        r.OrderID,
				Error:          "renewal declined",
				Declined:       true,
			})
		default:
			result.SuccessCount++
		}
	}

	s.logger.Info("renewal batch completed",
		ports.Int("processed", result.ProcessedCount),
		ports.Int("success", result.SuccessCount),
		ports.Int("failed", result.FailedCount))

	return result
}

// UpdatePaymentMethod switches a subscription to another token the user owns.
func (s *Service) UpdatePaymentMethod(ctx context.Context, subscriptionID string, userID int64, tokenID string) error {
	env := s.engine.Settings().Environment
	token, err := s.engine.Tokens().GetToken(ctx, userID, tokenID, env)
	if err != nil {
		return err
	}
	if token.IsExpired(s.now()) {
		return domain.NewDomainError(domain.ErrorCodeTokenInvalid,
			fmt.Sprintf("payment token %s is expired", tokenID))
	}

	meta, err := s.subscriptions.GetPaymentMeta(ctx, subscriptionID)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeStorageError,
			fmt.Sprintf("failed to load payment meta for subscription %s", subscriptionID), err)
	}

	meta.SubscriptionID = subscriptionID
	meta.TokenID = token.ID
	meta.Environment = env
	if meta.CustomerID == "" {
		meta.CustomerID, err = s.engine.Tokens().CustomerID(ctx, userID, env)
		if err != nil {
			return err
		}
	}

	if err := s.subscriptions.SavePaymentMeta(ctx, meta); err != nil {
		return domain.WrapError(domain.ErrorCodeStorageError,
			fmt.Sprintf("failed to save payment meta for subscription %s", subscriptionID), err)
	}

	s.logger.Info("subscription payment method updated",
		ports.String("subscription_id", subscriptionID),
		ports.String("token_id", token.ID))
	return nil
}
