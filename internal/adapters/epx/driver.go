package epx

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/payment-engine/internal/domain"
	"github.com/kevin07696/payment-engine/internal/domain/ports"
	httpclient "github.com/kevin07696/payment-engine/pkg/http"
	"github.com/kevin07696/payment-engine/pkg/observability"
	"github.com/kevin07696/payment-engine/pkg/resilience"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// EPX transaction types.
const (
	tranTypeSale            = "CCE1"
	tranTypeAuthOnly        = "CCE2"
	tranTypeCapture         = "CCE4"
	tranTypeBRICStorageCC   = "CCE8"
	tranTypeCheckingDebit   = "CKC2"
	tranTypeSavingsDebit    = "CKS2"
	tranTypeBRICStorageACH  = "CKC8"
	cardEntryKeyed          = "X"
	cardEntryStoredOnFile   = "Z"
	stdEntryClassWeb        = "WEB"
	industryTypeECommerce   = "E"
	bricStorageVerifyAmount = "0.00"
)

// Driver sends Server Post requests to EPX. It declares charge,
// authorization, capture, check debit and tokenization support. The BRIC
// vault cannot be listed or deleted from, so the remote token capabilities
// are absent and tokens live only in the local store.
type Driver struct {
	config     *Config
	creds      Credentials
	httpClient *http.Client
	logger     *zap.Logger
	breaker    *CircuitBreaker
	backoff    resilience.BackoffStrategy
	limiter    *rate.Limiter
	now        func() time.Time
}

var (
	_ ports.Gateway                 = (*Driver)(nil)
	_ ports.ChargeCapable           = (*Driver)(nil)
	_ ports.AuthorizationCapable    = (*Driver)(nil)
	_ ports.CaptureCapable          = (*Driver)(nil)
	_ ports.CheckDebitCapable       = (*Driver)(nil)
	_ ports.TokenizationCapable     = (*Driver)(nil)
	_ ports.TransactionDataRecorder = (*Driver)(nil)
)

// NewDriver creates a new EPX driver
func NewDriver(config *Config, creds Credentials, logger *zap.Logger) *Driver {
	clientConfig := httpclient.GatewayClientConfig()
	clientConfig.InsecureSkipVerify = config.InsecureSkipVerify

	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}
	burst := config.Burst
	if burst <= 0 {
		burst = 1
	}

	breakerConfig := DefaultCircuitBreakerConfig()
	breakerConfig.OnStateChange = func(s CircuitState) {
		observability.SetCircuitBreakerState(GatewayID, int(s))
		logger.Warn("EPX circuit breaker state changed", zap.String("state", s.String()))
	}

	return &Driver{
		config:     config,
		creds:      creds,
		httpClient: httpclient.NewHTTPClient(clientConfig, config.Timeout),
		logger:     logger,
		breaker:    NewCircuitBreaker(breakerConfig),
		backoff:    resilience.DefaultExponentialBackoff(),
		limiter:    rate.NewLimiter(limit, burst),
		now:        time.Now,
	}
}

// ID implements ports.Gateway
func (d *Driver) ID() string {
	return GatewayID
}

// CreditCardCharge implements ports.ChargeCapable
func (d *Driver) CreditCardCharge(ctx context.Context, order *domain.Order) (domain.Response, error) {
	return d.transact(ctx, tranTypeSale, order)
}

// CreditCardAuthorization implements ports.AuthorizationCapable
func (d *Driver) CreditCardAuthorization(ctx context.Context, order *domain.Order) (domain.Response, error) {
	return d.transact(ctx, tranTypeAuthOnly, order)
}

// CheckDebit implements ports.CheckDebitCapable
func (d *Driver) CheckDebit(ctx context.Context, order *domain.Order) (domain.Response, error) {
	tranType := tranTypeCheckingDebit
	if p := order.Payment; p != nil && strings.EqualFold(p.AccountType, domain.AccountTypeSavings) {
		tranType = tranTypeSavingsDebit
	}
	return d.transact(ctx, tranType, order)
}

// CreditCardCapture implements ports.CaptureCapable. The authorization's
// AUTH_GUID is read from the order's transaction id meta.
func (d *Driver) CreditCardCapture(ctx context.Context, order *domain.Order) (domain.Response, error) {
	authGUID := order.GetMeta(GatewayID, domain.MetaTransactionID)
	if authGUID == "" {
		return nil, fmt.Errorf("order %s has no authorization to capture", order.ID)
	}

	form := d.baseForm(tranTypeCapture, order.Payment.Total.StringFixed(2))
	form.Set("ORIG_AUTH_GUID", authGUID)

	resp, err := d.post(ctx, form)
	if err != nil {
		return nil, err
	}
	return resp.toGatewayResponse(nil), nil
}

// TokenizePaymentMethod implements ports.TokenizationCapable with a BRIC
// storage request, which verifies the account without moving money.
func (d *Driver) TokenizePaymentMethod(ctx context.Context, order *domain.Order) (domain.TokenResponse, error) {
	p := order.Payment
	if p == nil {
		return nil, fmt.Errorf("order %s has no payment context", order.ID)
	}

	tranType := tranTypeBRICStorageCC
	if p.Type == domain.PaymentTypeECheck {
		tranType = tranTypeBRICStorageACH
	}

	form := d.baseForm(tranType, bricStorageVerifyAmount)
	d.setAccount(form, order)

	resp, err := d.post(ctx, form)
	if err != nil {
		return nil, err
	}

	gr := resp.toGatewayResponse(nil)
	if gr.TransactionApproved() && resp.AuthGUID != "" {
		gr.Token = &domain.PaymentToken{
			ID:          resp.AuthGUID,
			GatewayID:   GatewayID,
			UserID:      order.UserID,
			Type:        p.Type,
			CardType:    cardTypeFromEPX(resp.AuthCardType),
			AccountType: p.AccountType,
			ExpMonth:    p.ExpMonth,
			ExpYear:     p.ExpYear,
		}
		if n := domain.DigitsOnly(p.AccountNumber); len(n) >= 4 {
			gr.Token.LastFour = n[len(n)-4:]
		}
	}
	return gr, nil
}

// TransactionData implements ports.TransactionDataRecorder
func (d *Driver) TransactionData(_ *domain.Order, resp domain.Response) map[string]string {
	gr, ok := resp.(*domain.GatewayResponse)
	if !ok {
		return nil
	}
	return map[string]string{
		"auth_code":    gr.Extra[fieldAuthCode],
		"avs_response": gr.Extra[fieldAuthAVS],
		"cvv_response": gr.Extra[fieldAuthCVV2],
	}
}

// transact runs a sale, auth-only or check debit for the order's payment context.
func (d *Driver) transact(ctx context.Context, tranType string, order *domain.Order) (domain.Response, error) {
	p := order.Payment
	if p == nil {
		return nil, fmt.Errorf("order %s has no payment context", order.ID)
	}

	form := d.baseForm(tranType, p.Total.StringFixed(2))
	d.setAccount(form, order)

	resp, err := d.post(ctx, form)
	if err != nil {
		return nil, err
	}
	return resp.toGatewayResponse(d.config.HoldAVSCodes), nil
}

func (d *Driver) baseForm(tranType, amount string) url.Values {
	now := d.now()
	form := url.Values{}
	form.Set("CUST_NBR", d.creds.CustNbr)
	form.Set("MERCH_NBR", d.creds.MerchNbr)
	form.Set("DBA_NBR", d.creds.DBANbr)
	form.Set("TERMINAL_NBR", d.creds.TerminalNbr)
	form.Set("TRAN_TYPE", tranType)
	form.Set("AMOUNT", amount)
	form.Set("TRAN_NBR", newTranNbr(uuid.New()))
	form.Set("BATCH_ID", now.Format("20060102"))
	form.Set("LOCAL_DATE", now.Format("010206"))
	form.Set("LOCAL_TIME", now.Format("150405"))
	return form
}

// setAccount adds either the stored BRIC or the raw account fields, plus billing.
func (d *Driver) setAccount(form url.Values, order *domain.Order) {
	p := order.Payment
	setIf := func(key, value string) {
		if value != "" {
			form.Set(key, value)
		}
	}

	if p.IsTokenized() {
		form.Set("ORIG_AUTH_GUID", p.Token)
		form.Set("CARD_ENT_METH", cardEntryStoredOnFile)
	} else {
		form.Set("ACCOUNT_NBR", domain.DigitsOnly(p.AccountNumber))
		if p.Type == domain.PaymentTypeECheck {
			form.Set("ROUTING_NBR", domain.DigitsOnly(p.RoutingNumber))
		} else {
			form.Set("CARD_ENT_METH", cardEntryKeyed)
			setIf("EXP_DATE", expDate(p.ExpMonth, p.ExpYear))
			setIf("CVV2", p.CSC)
		}
	}

	if p.Type == domain.PaymentTypeECheck {
		form.Set("STD_ENTRY_CLASS", stdEntryClassWeb)
		setIf("RECV_NAME", strings.TrimSpace(order.Billing.FirstName+" "+order.Billing.LastName))
	} else {
		form.Set("INDUSTRY_TYPE", industryTypeECommerce)
	}

	b := order.Billing
	setIf("FIRST_NAME", b.FirstName)
	setIf("LAST_NAME", b.LastName)
	setIf("ADDRESS", b.Address1)
	setIf("CITY", b.City)
	setIf("STATE", b.State)
	setIf("ZIP_CODE", b.PostalCode)
}

// post sends the form through the rate limiter and circuit breaker.
// Transport errors and 5xx responses are retried with exponential backoff.
func (d *Driver) post(ctx context.Context, form url.Values) (*serverPostResponse, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	tranType := form.Get("TRAN_TYPE")
	body := form.Encode()

	var response *serverPostResponse
	err := d.breaker.Call(func() error {
		var lastErr error
		for attempt := 0; attempt <= d.config.MaxRetries; attempt++ {
			if attempt > 0 {
				delay := d.backoff.NextDelay(attempt - 1)
				d.logger.Info("Retrying EPX request with exponential backoff",
					zap.String("tran_type", tranType),
					zap.Int("attempt", attempt),
					zap.Duration("backoff_delay", delay))
				select {
				case <-ctx.Done():
					return fmt.Errorf("retry cancelled: %w", ctx.Err())
				case <-time.After(delay):
				}
			}

			resp, retry, err := d.send(ctx, body)
			if err == nil {
				response = resp
				return nil
			}
			lastErr = err
			if !retry {
				return err
			}
			d.logger.Warn("Retryable EPX error",
				zap.String("tran_type", tranType),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}
		return fmt.Errorf("failed after %d retries: %w", d.config.MaxRetries, lastErr)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyRequests) {
			d.logger.Warn("Circuit breaker rejected EPX request",
				zap.String("circuit_state", d.breaker.State().String()))
		}
		return nil, err
	}

	d.logger.Info("EPX transaction processed",
		zap.String("tran_type", tranType),
		zap.String("auth_guid", response.AuthGUID),
		zap.String("auth_resp", response.AuthResp))
	return response, nil
}

// send performs one HTTP round trip. retry reports whether the failure is
// transient.
func (d *Driver) send(ctx context.Context, body string) (*serverPostResponse, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.config.BaseURL, strings.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	httpResp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response: %w", err)
	}

	d.logger.Debug("Received EPX response",
		zap.Int("status_code", httpResp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("body_length", len(raw)))

	if httpResp.StatusCode >= http.StatusInternalServerError {
		return nil, true, fmt.Errorf("EPX returned HTTP %d", httpResp.StatusCode)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("EPX returned HTTP %d", httpResp.StatusCode)
	}

	resp, err := parseResponse(raw)
	if err != nil {
		return nil, false, fmt.Errorf("failed to parse response: %w", err)
	}
	return resp, false, nil
}

// newTranNbr derives a numeric TRAN_NBR of at most 10 digits from id.
func newTranNbr(id uuid.UUID) string {
	h := fnv.New32a()
	h.Write(id[:])
	return strconv.FormatUint(uint64(h.Sum32()), 10)
}

var epxCardTypes = map[string]string{
	"V": domain.CardTypeVisa,
	"M": domain.CardTypeMastercard,
	"A": domain.CardTypeAmex,
	"D": domain.CardTypeDiscover,
	"J": domain.CardTypeJCB,
	"C": domain.CardTypeDinersClub,
}

// cardTypeFromEPX maps AUTH_CARD_TYPE's single letter codes, falling back
// to brand name normalization.
func cardTypeFromEPX(code string) string {
	if ct, ok := epxCardTypes[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return ct
	}
	return domain.NormalizeCardType(code)
}

// expDate renders EPX's YYMM expiry.
func expDate(month, year string) string {
	if month == "" || year == "" {
		return ""
	}
	y := domain.NormalizeExpiryYear(year)
	if len(y) == 4 {
		y = y[2:]
	}
	return y + domain.NormalizeExpiryMonth(month)
}
