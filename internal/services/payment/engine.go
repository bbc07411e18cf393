package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kevin07696/payment-engine/internal/domain"
	"github.com/kevin07696/payment-engine/internal/domain/ports"
	"github.com/kevin07696/payment-engine/internal/services/tokens"
	"github.com/kevin07696/payment-engine/pkg/observability"
	"github.com/shopspring/decimal"
)

// GenericFailureMessage is the only failure text a customer ever sees.
const GenericFailureMessage = "An error occurred, please try again or try an alternate form of payment."

const (
	invalidFieldsMessage = "Please check your payment details and try again."
	invalidTokenMessage  = "The selected payment method is not available. Please choose another."
)

// ZeroTotalHandler settles an order whose payment total is zero.
type ZeroTotalHandler func(ctx context.Context, order *domain.Order) error

type processConfig struct {
	forceTokenization bool
	paymentTotal      *decimal.Decimal
	zeroTotalHandler  ZeroTotalHandler
}

// ProcessOption adjusts a single payment attempt.
type ProcessOption func(*processConfig)

// WithForcedTokenization vaults the payment method even when the customer
// did not ask to save it.
func WithForcedTokenization() ProcessOption {
	return func(c *processConfig) { c.forceTokenization = true }
}

// WithPaymentTotal overrides the order total for this attempt.
func WithPaymentTotal(total decimal.Decimal) ProcessOption {
	return func(c *processConfig) { c.paymentTotal = &total }
}

// WithZeroTotalHandler replaces the default zero-total settlement, which
// marks the order paid.
func WithZeroTotalHandler(h ZeroTotalHandler) ProcessOption {
	return func(c *processConfig) { c.zeroTotalHandler = h }
}

func newProcessConfig(opts []ProcessOption) *processConfig {
	cfg := &processConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Engine drives a single payment attempt against one gateway driver and
// moves the order through its payment states.
type Engine struct {
	gateway   ports.Gateway
	settings  *domain.GatewaySettings
	orders    ports.OrderRepository
	tokens    *tokens.Synchronizer
	publisher ports.EventPublisher
	logger    ports.Logger
	now       func() time.Time

	// capturing holds order ids with a capture in flight.
	capturing sync.Map
}

// NewEngine creates a new transaction engine
func NewEngine(
	gateway ports.Gateway,
	settings *domain.GatewaySettings,
	orders ports.OrderRepository,
	tokens *tokens.Synchronizer,
	publisher ports.EventPublisher,
	logger ports.Logger,
) *Engine {
	return &Engine{
		gateway:   gateway,
		settings:  settings,
		orders:    orders,
		tokens:    tokens,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// GatewayID returns the driver's id.
func (e *Engine) GatewayID() string {
	return e.gateway.ID()
}

// Settings returns the gateway settings the engine runs with.
func (e *Engine) Settings() *domain.GatewaySettings {
	return e.settings
}

// Tokens returns the token synchronizer.
func (e *Engine) Tokens() *tokens.Synchronizer {
	return e.tokens
}

// ProcessPayment runs checkout for an order. Validation problems and
// declines are reported in the result. Any other failure marks the order
// failed and is reported with GenericFailureMessage; the detail is only
// logged. An error is returned only when the order cannot be loaded.
func (e *Engine) ProcessPayment(ctx context.Context, orderID string, fields *domain.PaymentFields, opts ...ProcessOption) (*domain.PaymentResult, error) {
	order, err := e.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := e.ValidateFields(ctx, order.UserID, fields); err != nil {
		return e.rejectFields(order, err), nil
	}

	outcome, err := e.attempt(ctx, order, fields, opts)
	if err != nil {
		e.failOrder(ctx, order, err)
		return &domain.PaymentResult{Success: false, Message: GenericFailureMessage}, nil
	}

	if outcome == domain.OutcomeDeclined {
		return &domain.PaymentResult{Success: false, Message: GenericFailureMessage}, nil
	}

	return &domain.PaymentResult{Success: true, Redirect: order.ReturnURL}, nil
}

func (e *Engine) attempt(ctx context.Context, order *domain.Order, fields *domain.PaymentFields, opts []ProcessOption) (domain.ResponseOutcome, error) {
	cfg := newProcessConfig(opts)

	if err := e.BuildPaymentContext(ctx, order, fields); err != nil {
		return "", err
	}

	var issued *domain.PaymentToken
	if e.shouldTokenize(order, fields, cfg) {
		token, err := e.tokens.IssueToken(ctx, order, nil)
		if err != nil {
			return "", err
		}
		issued = token
	}

	outcome, err := e.ProcessOrder(ctx, order, opts...)
	if err != nil || outcome == domain.OutcomeDeclined || issued == nil {
		return outcome, err
	}

	// The charge went through; a token that cannot be saved is logged only.
	if err := e.tokens.SaveIssuedToken(ctx, order, issued); err != nil {
		e.logger.Error("failed to save payment token after payment",
			ports.String("order_id", order.ID),
			ports.String("token_id", issued.ID),
			ports.Err(err))
	}
	return outcome, nil
}

// shouldTokenize: customer opt-in applies to registered users only; forced
// tokenization also vaults a one-shot token for guests.
func (e *Engine) shouldTokenize(order *domain.Order, fields *domain.PaymentFields, cfg *processConfig) bool {
	if order.Payment.IsTokenized() || !e.settings.Tokenization {
		return false
	}
	if cfg.forceTokenization {
		return true
	}
	return fields.SaveMethod && !order.IsGuest()
}

// ProcessOrder charges the order's payment context, which must already be
// built. A zero payment total settles without a gateway call. The returned
// outcome is declined for a gateway decline; errors are infrastructure or
// configuration failures and leave the order for the caller to fail.
func (e *Engine) ProcessOrder(ctx context.Context, order *domain.Order, opts ...ProcessOption) (domain.ResponseOutcome, error) {
	if order.Payment == nil {
		return "", domain.NewDomainError(domain.ErrorCodeValidationFailed, "order has no payment context")
	}
	cfg := newProcessConfig(opts)
	if cfg.paymentTotal != nil {
		order.Payment.Total = *cfg.paymentTotal
	}

	if order.Payment.Total.IsZero() {
		return e.settleZeroTotal(ctx, order, cfg)
	}

	resp, err := e.DoTransaction(ctx, order)
	if err != nil {
		return "", err
	}
	return e.interpret(ctx, order, resp)
}

func (e *Engine) settleZeroTotal(ctx context.Context, order *domain.Order, cfg *processConfig) (domain.ResponseOutcome, error) {
	if err := e.recordTransactionData(ctx, order, nil); err != nil {
		return "", err
	}

	handler := cfg.zeroTotalHandler
	if handler == nil {
		handler = e.completeZeroTotal
	}
	if err := handler(ctx, order); err != nil {
		return "", err
	}

	e.logger.Info("zero total order settled without gateway call",
		ports.String("order_id", order.ID))
	return domain.OutcomeApproved, nil
}

func (e *Engine) completeZeroTotal(ctx context.Context, order *domain.Order) error {
	if err := e.orders.PaymentComplete(ctx, order.ID, ""); err != nil {
		return domain.WrapError(domain.ErrorCodeStorageError, "failed to complete order", err)
	}
	e.publish(ctx, domain.EventPaymentApproved, order, nil)
	return nil
}

// DoTransaction sends the monetary request matching the payment type and
// configured intent.
func (e *Engine) DoTransaction(ctx context.Context, order *domain.Order) (domain.Response, error) {
	p := order.Payment
	operation, call, err := e.selectOperation(p)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := call(ctx, order)
	elapsed := time.Since(start)
	if err != nil {
		observability.RecordTransaction(e.GatewayID(), string(p.Type), operation, "error", elapsed)
		return nil, domain.WrapError(domain.ErrorCodeGatewayError, operation+" request failed", err)
	}
	if resp == nil {
		observability.RecordTransaction(e.GatewayID(), string(p.Type), operation, "error", elapsed)
		return nil, domain.NewDomainError(domain.ErrorCodeGatewayError, operation+" returned no response")
	}
	observability.RecordTransaction(e.GatewayID(), string(p.Type), operation, string(domain.OutcomeOf(resp)), elapsed)

	if e.settings.Debug {
		e.logger.Debug("gateway response",
			ports.String("order_id", order.ID),
			ports.String("operation", operation),
			ports.String("status_code", resp.StatusCode()),
			ports.String("status_message", resp.StatusMessage()),
			ports.String("transaction_id", resp.TransactionID()))
	}

	return resp, nil
}

type gatewayCall func(context.Context, *domain.Order) (domain.Response, error)

func (e *Engine) selectOperation(p *domain.OrderPaymentContext) (string, gatewayCall, error) {
	switch {
	case p.Type == domain.PaymentTypeECheck:
		if d, ok := e.gateway.(ports.CheckDebitCapable); ok {
			return "check_debit", d.CheckDebit, nil
		}
		return "", nil, e.unsupported("check debit")
	case p.AuthorizationOnly:
		if a, ok := e.gateway.(ports.AuthorizationCapable); ok {
			return "authorization", a.CreditCardAuthorization, nil
		}
		return "", nil, e.unsupported("credit card authorization")
	default:
		if c, ok := e.gateway.(ports.ChargeCapable); ok {
			return "charge", c.CreditCardCharge, nil
		}
		return "", nil, e.unsupported("credit card charge")
	}
}

func (e *Engine) unsupported(feature string) error {
	return domain.WrapError(domain.ErrorCodeFeatureUnsupported,
		fmt.Sprintf("gateway %s does not support %s", e.GatewayID(), feature), nil)
}

// interpret applies a gateway response to the order.
func (e *Engine) interpret(ctx context.Context, order *domain.Order, resp domain.Response) (domain.ResponseOutcome, error) {
	switch {
	case resp.TransactionHeld():
		return domain.OutcomeHeld, e.applyHeld(ctx, order, resp)
	case resp.TransactionApproved():
		return domain.OutcomeApproved, e.applyApproved(ctx, order, resp)
	default:
		return domain.OutcomeDeclined, e.applyDeclined(ctx, order, resp)
	}
}

func (e *Engine) applyHeld(ctx context.Context, order *domain.Order, resp domain.Response) error {
	if err := e.recordTransactionData(ctx, order, resp); err != nil {
		return err
	}

	note := fmt.Sprintf("%s transaction held for review: %s", e.settings.Title, resp.StatusMessage())
	if id := resp.TransactionID(); id != "" {
		note += fmt.Sprintf(" (Transaction ID %s)", id)
	}
	if err := e.orders.UpdateStatus(ctx, order.ID, domain.OrderStatusOnHold, note); err != nil {
		return domain.WrapError(domain.ErrorCodeStorageError, "failed to hold order", err)
	}
	order.Status = domain.OrderStatusOnHold

	e.logger.Info("payment held",
		ports.String("order_id", order.ID),
		ports.String("transaction_id", resp.TransactionID()),
		ports.String("reason", resp.StatusMessage()))
	e.publish(ctx, domain.EventPaymentHeld, order, resp)
	return nil
}

func (e *Engine) applyApproved(ctx context.Context, order *domain.Order, resp domain.Response) error {
	if err := e.recordTransactionData(ctx, order, resp); err != nil {
		return err
	}

	authOnly := e.isAuthorizationOnly(order.Payment)
	note := fmt.Sprintf("%s %s approved (Transaction ID %s)", e.settings.Title, transactionLabel(order.Payment, authOnly), resp.TransactionID())
	if err := e.orders.AddNote(ctx, order.ID, note); err != nil {
		e.logger.Warn("failed to add approval note",
			ports.String("order_id", order.ID),
			ports.Err(err))
	}

	if authOnly && order.Status != domain.OrderStatusOnHold {
		if err := e.orders.UpdateStatus(ctx, order.ID, domain.OrderStatusOnHold, "Authorization only transaction"); err != nil {
			return domain.WrapError(domain.ErrorCodeStorageError, "failed to hold authorized order", err)
		}
		order.Status = domain.OrderStatusOnHold
	}

	if order.Status == domain.OrderStatusOnHold {
		if err := e.orders.ReduceStock(ctx, order.ID); err != nil {
			return domain.WrapError(domain.ErrorCodeStorageError, "failed to reduce stock", err)
		}
		order.StockReduced = true
	} else {
		if err := e.orders.PaymentComplete(ctx, order.ID, resp.TransactionID()); err != nil {
			return domain.WrapError(domain.ErrorCodeStorageError, "failed to complete order", err)
		}
	}

	e.logger.Info("payment approved",
		ports.String("order_id", order.ID),
		ports.String("transaction_id", resp.TransactionID()),
		ports.Bool("authorization_only", authOnly))
	e.publish(ctx, domain.EventPaymentApproved, order, resp)
	return nil
}

func (e *Engine) applyDeclined(ctx context.Context, order *domain.Order, resp domain.Response) error {
	note := fmt.Sprintf("%s: %s", resp.StatusCode(), resp.StatusMessage())
	if err := e.orders.UpdateStatus(ctx, order.ID, domain.OrderStatusFailed, note); err != nil {
		return domain.WrapError(domain.ErrorCodeStorageError, "failed to fail declined order", err)
	}
	order.Status = domain.OrderStatusFailed

	e.logger.Warn("payment declined",
		ports.String("order_id", order.ID),
		ports.String("status_code", resp.StatusCode()),
		ports.String("status_message", resp.StatusMessage()))
	e.publish(ctx, domain.EventPaymentDeclined, order, resp)
	return nil
}

// failOrder records an unexpected failure on the order.
func (e *Engine) failOrder(ctx context.Context, order *domain.Order, cause error) {
	e.logger.Error("payment processing failed",
		ports.String("order_id", order.ID),
		ports.String("error_code", string(domain.GetErrorCode(cause))),
		ports.Err(cause))

	note := fmt.Sprintf("%s payment failed: %s", e.settings.Title, cause.Error())
	if err := e.orders.UpdateStatus(ctx, order.ID, domain.OrderStatusFailed, note); err != nil {
		e.logger.Error("failed to mark order failed",
			ports.String("order_id", order.ID),
			ports.Err(err))
	}
	order.Status = domain.OrderStatusFailed
	e.publish(ctx, domain.EventPaymentFailed, order, nil)
}

// FailOrder marks the order failed after a terminal error outside
// ProcessPayment, such as a renewal without a usable token.
func (e *Engine) FailOrder(ctx context.Context, order *domain.Order, cause error) {
	e.failOrder(ctx, order, cause)
}

func (e *Engine) rejectFields(order *domain.Order, err error) *domain.PaymentResult {
	result := &domain.PaymentResult{Success: false, Message: invalidFieldsMessage}

	var verr *domain.ValidationErrors
	switch {
	case errors.As(err, &verr):
		result.FieldErrors = verr.Fields
	case domain.IsTokenError(err):
		result.Message = invalidTokenMessage
	default:
		result.Message = GenericFailureMessage
	}

	e.logger.Info("payment fields rejected",
		ports.String("order_id", order.ID),
		ports.Err(err))
	return result
}

func (e *Engine) isAuthorizationOnly(p *domain.OrderPaymentContext) bool {
	return p.Type == domain.PaymentTypeCreditCard && p.AuthorizationOnly
}

func transactionLabel(p *domain.OrderPaymentContext, authOnly bool) string {
	switch {
	case p.Type == domain.PaymentTypeECheck:
		return "eCheck debit"
	case authOnly:
		return "authorization"
	default:
		return "charge"
	}
}

func normalizeAccountType(accountType string) string {
	accountType = strings.ToLower(strings.TrimSpace(accountType))
	if accountType == "" {
		return domain.AccountTypeChecking
	}
	return accountType
}
