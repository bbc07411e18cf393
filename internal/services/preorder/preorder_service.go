package preorder

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kevin07696/payment-engine/internal/domain"
	"github.com/kevin07696/payment-engine/internal/domain/ports"
	"github.com/kevin07696/payment-engine/internal/services/payment"
	"github.com/shopspring/decimal"
)

// Token sources for a release, in fallback order.
const (
	sourceStore    = "store"
	sourceSnapshot = "snapshot"
	sourceMeta     = "order_meta"
)

// Service handles orders charged when the product is released: checkout
// vaults the payment method without moving money, and release charges it.
type Service struct {
	engine *payment.Engine
	orders ports.OrderRepository
	logger ports.Logger
}

// NewService creates a new pre-order service
func NewService(engine *payment.Engine, orders ports.OrderRepository, logger ports.Logger) *Service {
	return &Service{
		engine: engine,
		orders: orders,
		logger: logger,
	}
}

// ProcessPayment runs checkout. Orders flagged charge-upon-release are
// tokenized and marked pre-ordered with a zero payment total; any other
// order is charged up front.
func (s *Service) ProcessPayment(ctx context.Context, orderID string, fields *domain.PaymentFields) (*domain.PaymentResult, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !order.ChargeUponRelease {
		return s.engine.ProcessPayment(ctx, orderID, fields)
	}

	return s.engine.ProcessPayment(ctx, orderID, fields,
		payment.WithForcedTokenization(),
		payment.WithPaymentTotal(decimal.Zero),
		payment.WithZeroTotalHandler(s.markPreOrdered))
}

// markPreOrdered keeps a copy of the token's attributes on the order so the
// release can proceed even if the token is deleted in the meantime.
func (s *Service) markPreOrdered(ctx context.Context, order *domain.Order) error {
	p := order.Payment
	if p == nil || p.Token == "" {
		return domain.NewDomainError(domain.ErrorCodeTokenNotFound,
			fmt.Sprintf("pre-order %s has no payment token", order.ID))
	}

	snapshot, err := json.Marshal(&domain.PaymentToken{
		ID:          p.Token,
		GatewayID:   s.engine.GatewayID(),
		UserID:      order.UserID,
		Type:        p.Type,
		LastFour:    p.LastFour,
		CardType:    p.CardType,
		AccountType: p.AccountType,
		ExpMonth:    p.ExpMonth,
		ExpYear:     p.ExpYear,
		Environment: s.engine.Settings().Environment,
	})
	if err != nil {
		return fmt.Errorf("marshal pre-order token: %w", err)
	}

	gw := s.engine.GatewayID()
	if err := s.orders.UpdateMeta(ctx, order.ID, map[string]string{
		domain.MetaKey(gw, domain.MetaPreOrderToken): string(snapshot),
	}); err != nil {
		return domain.WrapError(domain.ErrorCodeStorageError, "failed to save pre-order token", err)
	}

	note := fmt.Sprintf("%s pre-order placed, payment will be charged on release", s.engine.Settings().Title)
	if err := s.orders.UpdateStatus(ctx, order.ID, domain.OrderStatusPreOrdered, note); err != nil {
		return domain.WrapError(domain.ErrorCodeStorageError, "failed to mark order pre-ordered", err)
	}
	order.Status = domain.OrderStatusPreOrdered

	s.logger.Info("order pre-ordered",
		ports.String("order_id", order.ID),
		ports.String("token_id", p.Token))
	s.engine.Publish(ctx, domain.EventPaymentPreOrder, order)
	return nil
}

// ProcessRelease charges a pre-ordered order for its full total. A decline
// is returned as domain.OutcomeDeclined; a missing token fails the order
// without a gateway call.
func (s *Service) ProcessRelease(ctx context.Context, orderID string) (domain.ResponseOutcome, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	if order.Status != domain.OrderStatusPreOrdered {
		return "", domain.NewDomainError(domain.ErrorCodeValidationFailed,
			fmt.Sprintf("order %s is %s, not pre-ordered", orderID, order.Status))
	}

	token, customerID, err := s.releaseToken(ctx, order)
	if err != nil {
		s.engine.FailOrder(ctx, order, err)
		return "", err
	}

	s.engine.PrepareTokenPayment(order, token, customerID)
	outcome, err := s.engine.ProcessOrder(ctx, order)
	if err != nil {
		s.engine.FailOrder(ctx, order, err)
		return "", err
	}

	s.logger.Info("pre-order released",
		ports.String("order_id", orderID),
		ports.String("outcome", string(outcome)))
	return outcome, nil
}

func (s *Service) releaseToken(ctx context.Context, order *domain.Order) (*domain.PaymentToken, string, error) {
	gw := s.engine.GatewayID()
	tokenID := order.GetMeta(gw, domain.MetaPaymentToken)
	if tokenID == "" {
		return nil, "", domain.NewDomainError(domain.ErrorCodeTokenNotFound,
			fmt.Sprintf("pre-order %s has no payment token", order.ID))
	}

	env := order.GetMeta(gw, domain.MetaEnvironment)
	if env == "" {
		env = s.engine.Settings().Environment
	}

	customerID := order.GetMeta(gw, domain.MetaCustomerID)
	if customerID == "" && !order.IsGuest() {
		id, err := s.engine.Tokens().CustomerID(ctx, order.UserID, env)
		if err != nil {
			return nil, "", err
		}
		customerID = id
	}

	token, source := s.lookupToken(ctx, order, tokenID, env)
	s.logger.Debug("pre-order token resolved",
		ports.String("order_id", order.ID),
		ports.String("token_id", tokenID),
		ports.String("source", source))
	return token, customerID, nil
}

// lookupToken tries the live token, then the snapshot taken at checkout,
// then the per-field meta copies.
func (s *Service) lookupToken(ctx context.Context, order *domain.Order, tokenID, env string) (*domain.PaymentToken, string) {
	if !order.IsGuest() {
		if token, err := s.engine.Tokens().GetToken(ctx, order.UserID, tokenID, env); err == nil {
			return token, sourceStore
		}
	}

	gw := s.engine.GatewayID()
	if raw := order.GetMeta(gw, domain.MetaPreOrderToken); raw != "" {
		var snapshot domain.PaymentToken
		if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
			s.logger.Warn("unreadable pre-order token snapshot",
				ports.String("order_id", order.ID),
				ports.Err(err))
		} else if snapshot.ID == tokenID {
			return &snapshot, sourceSnapshot
		}
	}

	token := &domain.PaymentToken{
		ID:          tokenID,
		GatewayID:   gw,
		UserID:      order.UserID,
		Type:        domain.ParsePaymentType(order.GetMeta(gw, domain.MetaPaymentType)),
		LastFour:    order.GetMeta(gw, domain.MetaAccountFour),
		CardType:    order.GetMeta(gw, domain.MetaCardType),
		AccountType: order.GetMeta(gw, domain.MetaAccountType),
		Environment: env,
	}
	if year, month, ok := strings.Cut(order.GetMeta(gw, domain.MetaCardExpiryDate), "-"); ok {
		token.ExpYear = domain.NormalizeExpiryYear(year)
		token.ExpMonth = domain.NormalizeExpiryMonth(month)
	}
	return token, sourceMeta
}
