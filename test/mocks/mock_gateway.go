package mocks

import (
	"context"
	"sync"

	"github.com/kevin07696/payment-engine/internal/domain"
)

// Approved builds an approved response.
func Approved(transID string) *domain.GatewayResponse {
	return &domain.GatewayResponse{Outcome: domain.OutcomeApproved, Code: "00", Message: "Approved", TransID: transID}
}

// Held builds a held response.
func Held(transID, reason string) *domain.GatewayResponse {
	return &domain.GatewayResponse{Outcome: domain.OutcomeHeld, Code: "00", Message: reason, TransID: transID}
}

// Declined builds a declined response.
func Declined(code, message string) *domain.GatewayResponse {
	return &domain.GatewayResponse{Outcome: domain.OutcomeDeclined, Code: code, Message: message}
}

// MockGateway implements every gateway capability. Unset responses default
// to an approved response. Wrap it with ChargeOnly to drop capabilities.
type MockGateway struct {
	mu sync.Mutex
	id string

	chargeResponse    domain.Response
	chargeError       error
	authorizeResponse domain.Response
	authorizeError    error
	captureResponse   domain.Response
	captureError      error
	debitResponse     domain.Response
	debitError        error
	tokenizeResponse  domain.TokenResponse
	tokenizeError     error
	listResponse      domain.TokenListResponse
	listError         error
	removeResponse    domain.Response
	removeError       error

	// RemoveLocalOnDecline is returned by ShouldRemoveLocalToken.
	RemoveLocalOnDecline bool
	// Extra is returned by TransactionData.
	Extra map[string]string
	// CaptureHook runs inside CreditCardCapture before it returns.
	CaptureHook func(ctx context.Context)

	// Call tracking
	ChargeCalls    int
	AuthorizeCalls int
	CaptureCalls   int
	DebitCalls     int
	TokenizeCalls  int
	ListCalls      int
	RemoveCalls    int

	// Last request received
	LastOrder        *domain.Order
	LastPayment      domain.OrderPaymentContext
	LastCustomerID   string
	LastRemovedToken string
}

// NewMockGateway creates a new mock gateway
func NewMockGateway(id string) *MockGateway {
	return &MockGateway{id: id}
}

// ID implements ports.Gateway
func (m *MockGateway) ID() string { return m.id }

// SetChargeResponse sets the response to return from CreditCardCharge
func (m *MockGateway) SetChargeResponse(resp domain.Response, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chargeResponse, m.chargeError = resp, err
}

// SetAuthorizeResponse sets the response to return from CreditCardAuthorization
func (m *MockGateway) SetAuthorizeResponse(resp domain.Response, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authorizeResponse, m.authorizeError = resp, err
}

// SetCaptureResponse sets the response to return from CreditCardCapture
func (m *MockGateway) SetCaptureResponse(resp domain.Response, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.captureResponse, m.captureError = resp, err
}

// SetDebitResponse sets the response to return from CheckDebit
func (m *MockGateway) SetDebitResponse(resp domain.Response, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debitResponse, m.debitError = resp, err
}

// SetTokenizeResponse sets the response to return from TokenizePaymentMethod
func (m *MockGateway) SetTokenizeResponse(resp domain.TokenResponse, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenizeResponse, m.tokenizeError = resp, err
}

// SetListResponse sets the response to return from GetTokenizedPaymentMethods
func (m *MockGateway) SetListResponse(resp domain.TokenListResponse, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listResponse, m.listError = resp, err
}

// SetRemoveResponse sets the response to return from RemoveTokenizedPaymentMethod
func (m *MockGateway) SetRemoveResponse(resp domain.Response, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeResponse, m.removeError = resp, err
}

// CreditCardCharge implements ports.ChargeCapable
func (m *MockGateway) CreditCardCharge(_ context.Context, order *domain.Order) (domain.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ChargeCalls++
	m.track(order)
	return orApproved(m.chargeResponse, "charge-1"), m.chargeError
}

// CreditCardAuthorization implements ports.AuthorizationCapable
func (m *MockGateway) CreditCardAuthorization(_ context.Context, order *domain.Order) (domain.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AuthorizeCalls++
	m.track(order)
	return orApproved(m.authorizeResponse, "auth-1"), m.authorizeError
}

// CreditCardCapture implements ports.CaptureCapable
func (m *MockGateway) CreditCardCapture(ctx context.Context, order *domain.Order) (domain.Response, error) {
	m.mu.Lock()
	m.CaptureCalls++
	m.LastOrder = order
	hook := m.CaptureHook
	resp, err := orApproved(m.captureResponse, "capture-1"), m.captureError
	m.mu.Unlock()

	if hook != nil {
		hook(ctx)
	}
	return resp, err
}

// CheckDebit implements ports.CheckDebitCapable
func (m *MockGateway) CheckDebit(_ context.Context, order *domain.Order) (domain.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DebitCalls++
	m.track(order)
	return orApproved(m.debitResponse, "debit-1"), m.debitError
}

// TokenizePaymentMethod implements ports.TokenizationCapable
func (m *MockGateway) TokenizePaymentMethod(_ context.Context, order *domain.Order) (domain.TokenResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TokenizeCalls++
	m.track(order)
	if m.tokenizeResponse == nil && m.tokenizeError == nil {
		resp := Approved("tok-txn")
		resp.Token = domain.NewPaymentToken("tok-1", domain.TokenData{Type: order.Payment.Type})
		return resp, nil
	}
	return m.tokenizeResponse, m.tokenizeError
}

// GetTokenizedPaymentMethods implements ports.TokenListingCapable
func (m *MockGateway) GetTokenizedPaymentMethods(_ context.Context, customerID string) (domain.TokenListResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListCalls++
	m.LastCustomerID = customerID
	if m.listResponse == nil && m.listError == nil {
		return Approved(""), nil
	}
	return m.listResponse, m.listError
}

// RemoveTokenizedPaymentMethod implements ports.TokenRemovalCapable
func (m *MockGateway) RemoveTokenizedPaymentMethod(_ context.Context, tokenID, customerID string) (domain.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RemoveCalls++
	m.LastRemovedToken = tokenID
	m.LastCustomerID = customerID
	return orApproved(m.removeResponse, ""), m.removeError
}

// ShouldRemoveLocalToken implements ports.LocalTokenRemovalPolicy
func (m *MockGateway) ShouldRemoveLocalToken(domain.Response) bool {
	return m.RemoveLocalOnDecline
}

// TransactionData implements ports.TransactionDataRecorder
func (m *MockGateway) TransactionData(*domain.Order, domain.Response) map[string]string {
	return m.Extra
}

func (m *MockGateway) track(order *domain.Order) {
	m.LastOrder = order
	if order != nil && order.Payment != nil {
		m.LastPayment = *order.Payment
	}
}

func orApproved(resp domain.Response, transID string) domain.Response {
	if resp == nil {
		return Approved(transID)
	}
	return resp
}

// ChargeOnlyGateway exposes only the charge capability of a MockGateway.
type ChargeOnlyGateway struct {
	inner *MockGateway
}

// ChargeOnly wraps m so that only ID and CreditCardCharge are visible.
func ChargeOnly(m *MockGateway) *ChargeOnlyGateway {
	return &ChargeOnlyGateway{inner: m}
}

// ID implements ports.Gateway
func (g *ChargeOnlyGateway) ID() string { return g.inner.ID() }

// CreditCardCharge implements ports.ChargeCapable
func (g *ChargeOnlyGateway) CreditCardCharge(ctx context.Context, order *domain.Order) (domain.Response, error) {
	return g.inner.CreditCardCharge(ctx, order)
}
