package tokens

import (
	"context"
	"fmt"
	"time"

	"github.com/kevin07696/payment-engine/internal/domain"
	"github.com/kevin07696/payment-engine/internal/domain/ports"
	"github.com/kevin07696/payment-engine/pkg/observability"
)

// CreateToken vaults the payment method on the order's payment context,
// attaches the resulting token to it and saves it. When resp is nil the
// driver's tokenize operation is called; otherwise resp is used as the
// tokenization result. Tokens are stored only for registered users.
func (s *Synchronizer) CreateToken(ctx context.Context, order *domain.Order, resp domain.TokenResponse) (*domain.Order, error) {
	token, err := s.IssueToken(ctx, order, resp)
	if err != nil {
		return nil, err
	}
	if err := s.SaveIssuedToken(ctx, order, token); err != nil {
		return nil, err
	}
	return order, nil
}

// IssueToken vaults the payment method and attaches the token to the order's
// payment context without storing it. Checkout saves the token with
// SaveIssuedToken once the charge is approved or held.
func (s *Synchronizer) IssueToken(ctx context.Context, order *domain.Order, resp domain.TokenResponse) (*domain.PaymentToken, error) {
	if order.Payment == nil {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationFailed, "order has no payment context")
	}

	if resp == nil {
		tokenizer, ok := s.gateway.(ports.TokenizationCapable)
		if !ok {
			return nil, domain.WrapError(domain.ErrorCodeFeatureUnsupported,
				fmt.Sprintf("gateway %s does not support tokenization", s.GatewayID()), nil)
		}

		start := time.Now()
		var err error
		resp, err = tokenizer.TokenizePaymentMethod(ctx, order)
		if err != nil {
			observability.RecordTransaction(s.GatewayID(), string(order.Payment.Type), "tokenize", "error", time.Since(start))
			return nil, domain.WrapError(domain.ErrorCodeGatewayError, "tokenization request failed", err)
		}
		observability.RecordTransaction(s.GatewayID(), string(order.Payment.Type), "tokenize", string(domain.OutcomeOf(resp)), time.Since(start))
	}

	if !resp.TransactionApproved() {
		return nil, domain.NewDomainError(domain.ErrorCodeTokenizationFailed, domain.DescribeFailure(resp))
	}

	issued := resp.PaymentToken()
	if issued == nil || issued.ID == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeTokenInvalid, "gateway approved tokenization without returning a token")
	}

	token := issued.Clone()
	s.scope(token, order.UserID, s.settings.Environment)
	s.fillFromPayment(token, order)

	order.Payment.ApplyToken(token)
	s.adoptCustomerID(ctx, order, resp)

	return token, nil
}

// SaveIssuedToken stores a token from IssueToken as the user's default and
// notes it on the order. Guest tokens stay on the order only.
func (s *Synchronizer) SaveIssuedToken(ctx context.Context, order *domain.Order, token *domain.PaymentToken) error {
	if !order.IsGuest() {
		token.Default = true
		if err := s.AddToken(ctx, order.UserID, token); err != nil {
			return err
		}
	}

	note := fmt.Sprintf("%s payment method saved: %s", s.settings.Title, token.DisplayName())
	if err := s.orders.AddNote(ctx, order.ID, note); err != nil {
		s.logger.Warn("failed to add token order note",
			ports.String("order_id", order.ID),
			ports.Err(err))
	}

	s.logger.Info("payment token created",
		ports.String("order_id", order.ID),
		ports.Int64("user_id", order.UserID),
		ports.String("token_id", token.ID))

	return nil
}

// AddToken stores a token for the user. A default token clears the default
// flag on its siblings first; the user's first token becomes default.
func (s *Synchronizer) AddToken(ctx context.Context, userID int64, token *domain.PaymentToken) error {
	environment := s.resolveEnvironment(token.Environment)
	s.scope(token, userID, environment)

	siblings, err := s.store.ListTokens(ctx, userID, s.GatewayID(), environment)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeStorageError, "failed to load tokens", err)
	}

	others := 0
	for _, t := range siblings {
		if t.ID != token.ID {
			others++
		}
	}
	if others == 0 {
		token.Default = true
	}
	if token.Default {
		s.clearDefaults(ctx, siblings, token.ID)
	}

	if err := token.Save(ctx, s.store); err != nil {
		return domain.WrapError(domain.ErrorCodeStorageError, "failed to save token", err)
	}

	s.ClearCache(ctx, userID, environment)
	return nil
}

// UpdateToken saves changes to an existing token.
func (s *Synchronizer) UpdateToken(ctx context.Context, userID int64, token *domain.PaymentToken) error {
	environment := s.resolveEnvironment(token.Environment)
	s.scope(token, userID, environment)

	siblings, err := s.store.ListTokens(ctx, userID, s.GatewayID(), environment)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeStorageError, "failed to load tokens", err)
	}
	if indexOf(siblings, token.ID) < 0 {
		return domain.NewDomainError(domain.ErrorCodeTokenNotFound,
			fmt.Sprintf("payment token %s not found for user %d", token.ID, userID))
	}

	if token.Default {
		s.clearDefaults(ctx, siblings, token.ID)
	}

	if err := token.Save(ctx, s.store); err != nil {
		return domain.WrapError(domain.ErrorCodeStorageError, "failed to save token", err)
	}

	s.ClearCache(ctx, userID, environment)
	return nil
}

// RemoveToken deletes a token, at the gateway first when the driver supports
// it. A gateway communication failure leaves the local token in place. It
// returns false when nothing was deleted locally.
func (s *Synchronizer) RemoveToken(ctx context.Context, userID int64, tokenID, environment string) (bool, error) {
	environment = s.resolveEnvironment(environment)

	tokens, err := s.store.ListTokens(ctx, userID, s.GatewayID(), environment)
	if err != nil {
		return false, domain.WrapError(domain.ErrorCodeStorageError, "failed to load tokens", err)
	}
	idx := indexOf(tokens, tokenID)
	if idx < 0 {
		s.ClearCache(ctx, userID, environment)
		return false, nil
	}
	token := tokens[idx]

	if remover, ok := s.gateway.(ports.TokenRemovalCapable); ok {
		customerID, err := s.customers.GetCustomerID(ctx, userID, s.GatewayID(), environment)
		if err != nil {
			return false, domain.WrapError(domain.ErrorCodeStorageError, "failed to load customer id", err)
		}

		if customerID != "" {
			resp, err := remover.RemoveTokenizedPaymentMethod(ctx, tokenID, customerID)
			if err != nil {
				s.logger.Error("remote token removal failed, keeping local token",
					ports.Int64("user_id", userID),
					ports.String("token_id", tokenID),
					ports.Err(err))
				return false, domain.WrapError(domain.ErrorCodeGatewayError, "remote token removal failed", err)
			}
			if !resp.TransactionApproved() && !s.allowsLocalRemoval(resp) {
				s.logger.Warn("gateway refused token removal",
					ports.Int64("user_id", userID),
					ports.String("token_id", tokenID),
					ports.String("status_code", resp.StatusCode()),
					ports.String("status_message", resp.StatusMessage()))
				return false, nil
			}
		}
	}

	deleted, err := token.Delete(ctx, s.store)
	if err != nil {
		return false, domain.WrapError(domain.ErrorCodeStorageError, "failed to delete token", err)
	}

	if token.Default {
		remaining := append(tokens[:idx:idx], tokens[idx+1:]...)
		if len(remaining) > 0 && !hasDefault(remaining) {
			promoted := remaining[0]
			promoted.Default = true
			if err := promoted.Save(ctx, s.store); err != nil {
				s.logger.Error("failed to promote default token",
					ports.Int64("user_id", userID),
					ports.String("token_id", promoted.ID),
					ports.Err(err))
			}
		}
	}

	s.ClearCache(ctx, userID, environment)
	return deleted, nil
}

// SetDefaultToken makes tokenID the user's only default token.
func (s *Synchronizer) SetDefaultToken(ctx context.Context, userID int64, tokenID, environment string) error {
	environment = s.resolveEnvironment(environment)

	tokens, err := s.store.ListTokens(ctx, userID, s.GatewayID(), environment)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeStorageError, "failed to load tokens", err)
	}
	idx := indexOf(tokens, tokenID)
	if idx < 0 {
		return domain.NewDomainError(domain.ErrorCodeTokenNotFound,
			fmt.Sprintf("payment token %s not found for user %d", tokenID, userID))
	}

	s.clearDefaults(ctx, tokens, tokenID)

	target := tokens[idx]
	target.Default = true
	if err := target.Save(ctx, s.store); err != nil {
		return domain.WrapError(domain.ErrorCodeStorageError, "failed to save default token", err)
	}

	s.ClearCache(ctx, userID, environment)
	return nil
}

// clearDefaults unsets default on every token but exceptID. A failed save is
// logged and does not stop the caller.
func (s *Synchronizer) clearDefaults(ctx context.Context, tokens []*domain.PaymentToken, exceptID string) {
	for _, t := range tokens {
		if t.ID == exceptID || !t.Default {
			continue
		}
		t.Default = false
		if err := t.Save(ctx, s.store); err != nil {
			s.logger.Warn("failed to unset default on sibling token",
				ports.Int64("user_id", t.UserID),
				ports.String("token_id", t.ID),
				ports.Err(err))
		}
	}
}

func (s *Synchronizer) allowsLocalRemoval(resp domain.Response) bool {
	policy, ok := s.gateway.(ports.LocalTokenRemovalPolicy)
	return ok && policy.ShouldRemoveLocalToken(resp)
}

// fillFromPayment completes display attributes the gateway did not return.
func (s *Synchronizer) fillFromPayment(token *domain.PaymentToken, order *domain.Order) {
	p := order.Payment
	if p.Type != "" {
		token.Type = p.Type
	}
	if token.LastFour == "" {
		token.LastFour = p.LastFour
	}
	if token.LastFour == "" {
		if n := domain.DigitsOnly(p.AccountNumber); len(n) >= 4 {
			token.LastFour = n[len(n)-4:]
		}
	}
	if token.IsCreditCard() {
		if token.CardType == "" {
			token.CardType = p.CardType
		}
		if token.CardType == "" {
			token.CardType = domain.CardTypeFromAccountNumber(p.AccountNumber)
		}
		if token.ExpMonth == "" {
			token.ExpMonth = domain.NormalizeExpiryMonth(p.ExpMonth)
		}
		if token.ExpYear == "" {
			token.ExpYear = domain.NormalizeExpiryYear(p.ExpYear)
		}
	} else if token.AccountType == "" {
		token.AccountType = p.AccountType
	}
	if token.BillingHash == "" {
		token.BillingHash = order.Billing.Hash()
	}
}

// adoptCustomerID records a customer id issued by the gateway during
// tokenization. A stored id is never replaced.
func (s *Synchronizer) adoptCustomerID(ctx context.Context, order *domain.Order, resp domain.Response) {
	cr, ok := resp.(domain.CustomerIDResponse)
	if !ok || cr.CustomerID() == "" {
		return
	}
	issued := cr.CustomerID()

	if order.IsGuest() {
		order.Payment.CustomerID = issued
		return
	}

	existing, err := s.customers.GetCustomerID(ctx, order.UserID, s.GatewayID(), s.settings.Environment)
	if err != nil {
		s.logger.Warn("failed to load customer id",
			ports.Int64("user_id", order.UserID),
			ports.Err(err))
		return
	}
	if existing != "" {
		if existing != issued {
			s.logger.Warn("gateway issued a different customer id, keeping stored id",
				ports.Int64("user_id", order.UserID),
				ports.String("stored", existing),
				ports.String("issued", issued))
		}
		order.Payment.CustomerID = existing
		return
	}

	if err := s.customers.SetCustomerID(ctx, order.UserID, s.GatewayID(), s.settings.Environment, issued); err != nil {
		s.logger.Error("failed to store customer id",
			ports.Int64("user_id", order.UserID),
			ports.Err(err))
		order.Payment.CustomerID = issued
		return
	}

	// Another request may have stored a different id between the read and the insert.
	if stored, err := s.customers.GetCustomerID(ctx, order.UserID, s.GatewayID(), s.settings.Environment); err == nil && stored != "" {
		issued = stored
	}
	order.Payment.CustomerID = issued
}

func hasDefault(tokens []*domain.PaymentToken) bool {
	for _, t := range tokens {
		if t.Default {
			return true
		}
	}
	return false
}
