package checkout

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kevin07696/payment-engine/internal/domain"
)

type MockOrderReader struct {
	mock.Mock
}

func (m *MockOrderReader) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

type MockPaymentProcessor struct {
	mock.Mock
}

func (m *MockPaymentProcessor) ProcessPayment(ctx context.Context, orderID string, fields *domain.PaymentFields) (*domain.PaymentResult, error) {
	args := m.Called(ctx, orderID, fields)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentResult), args.Error(1)
}

type MockCapturer struct {
	mock.Mock
}

func (m *MockCapturer) Capture(ctx context.Context, orderID string) (*domain.CaptureResult, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CaptureResult), args.Error(1)
}

type MockPaymentMethodUpdater struct {
	mock.Mock
}

func (m *MockPaymentMethodUpdater) UpdatePaymentMethod(ctx context.Context, subscriptionID string, userID int64, tokenID string) error {
	return m.Called(ctx, subscriptionID, userID, tokenID).Error(0)
}

type handlerMocks struct {
	orders        *MockOrderReader
	checkout      *MockPaymentProcessor
	preorders     *MockPaymentProcessor
	capturer      *MockCapturer
	subscriptions *MockPaymentMethodUpdater
}

func setupHandler() (*Handler, *handlerMocks) {
	m := &handlerMocks{
		orders:        new(MockOrderReader),
		checkout:      new(MockPaymentProcessor),
		preorders:     new(MockPaymentProcessor),
		capturer:      new(MockCapturer),
		subscriptions: new(MockPaymentMethodUpdater),
	}
	h := NewHandler(m.orders, m.checkout, m.preorders, m.capturer, m.subscriptions, zap.NewNop())
	return h, m
}

func serve(h *Handler, method, path, body string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestProcessPayment_Routing(t *testing.T) {
	tests := []struct {
		name     string
		order    *domain.Order
		preorder bool
	}{
		{name: "regular order", order: &domain.Order{ID: "101"}},
		{name: "subscription order", order: &domain.Order{ID: "101", SubscriptionIDs: []string{"sub-1"}}},
		{name: "charge upon release", order: &domain.Order{ID: "101", ChargeUponRelease: true}, preorder: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, m := setupHandler()
			m.orders.On("GetOrder", mock.Anything, "101").Return(tt.order, nil)

			want, other := m.checkout, m.preorders
			if tt.preorder {
				want, other = m.preorders, m.checkout
			}
			want.On("ProcessPayment", mock.Anything, "101", mock.MatchedBy(func(f *domain.PaymentFields) bool {
				return f.TokenID == "tok-1"
			})).Return(&domain.PaymentResult{Success: true, Redirect: "/thanks"}, nil)

			rec := serve(h, http.MethodPost, "/api/v1/checkout",
				`{"order_id":"101","payment":{"type":"credit_card","token_id":"tok-1"}}`)

			require.Equal(t, http.StatusOK, rec.Code)
			var result domain.PaymentResult
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
			assert.True(t, result.Success)
			assert.Equal(t, "/thanks", result.Redirect)
			want.AssertExpectations(t)
			other.AssertNotCalled(t, "ProcessPayment", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestProcessPayment_FieldErrors(t *testing.T) {
	h, m := setupHandler()
	m.orders.On("GetOrder", mock.Anything, "101").Return(&domain.Order{ID: "101"}, nil)
	m.checkout.On("ProcessPayment", mock.Anything, "101", mock.Anything).Return(&domain.PaymentResult{
		FieldErrors: []domain.FieldError{{Field: "account_number", Message: "card number is invalid"}},
	}, nil)

	rec := serve(h, http.MethodPost, "/api/v1/checkout", `{"order_id":"101","payment":{"type":"credit_card"}}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "card number is invalid")
}

func TestProcessPayment_Errors(t *testing.T) {
	t.Run("order not found", func(t *testing.T) {
		h, m := setupHandler()
		m.orders.On("GetOrder", mock.Anything, "404").
			Return(nil, domain.NewDomainError(domain.ErrorCodeOrderNotFound, "order 404 not found"))

		rec := serve(h, http.MethodPost, "/api/v1/checkout", `{"order_id":"404","payment":{}}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "ORDER_NOT_FOUND")
	})

	t.Run("missing order id", func(t *testing.T) {
		h, _ := setupHandler()
		rec := serve(h, http.MethodPost, "/api/v1/checkout", `{"payment":{}}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		h, _ := setupHandler()
		rec := serve(h, http.MethodPost, "/api/v1/checkout", `{"order_id":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("wrong method", func(t *testing.T) {
		h, _ := setupHandler()
		rec := serve(h, http.MethodGet, "/api/v1/checkout", "")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestCapture(t *testing.T) {
	tests := []struct {
		name       string
		result     *domain.CaptureResult
		err        error
		wantStatus int
	}{
		{
			name:       "approved",
			result:     &domain.CaptureResult{Approved: true, TransactionID: "cap-1", Message: "captured"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "declined",
			result:     &domain.CaptureResult{Approved: false, Message: "declined"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "already captured",
			err:        domain.NewDomainError(domain.ErrorCodeAlreadyCaptured, "order already captured"),
			wantStatus: http.StatusConflict,
		},
		{
			name:       "gateway failure",
			err:        domain.NewDomainError(domain.ErrorCodeGatewayError, "capture request failed"),
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "storage failure is not leaked",
			err:        domain.NewDomainError(domain.ErrorCodeStorageError, "connection refused"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, m := setupHandler()
			if tt.err != nil {
				m.capturer.On("Capture", mock.Anything, "101").Return(nil, tt.err)
			} else {
				m.capturer.On("Capture", mock.Anything, "101").Return(tt.result, nil)
			}

			rec := serve(h, http.MethodPost, "/api/v1/orders/capture", `{"order_id":"101"}`)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.NotContains(t, rec.Body.String(), "connection refused")
		})
	}
}

func TestUpdatePaymentMethod(t *testing.T) {
	t.Run("updated", func(t *testing.T) {
		h, m := setupHandler()
		m.subscriptions.On("UpdatePaymentMethod", mock.Anything, "sub-1", int64(7), "tok-2").Return(nil)

		rec := serve(h, http.MethodPost, "/api/v1/subscriptions/payment-method",
			`{"subscription_id":"sub-1","user_id":7,"token_id":"tok-2"}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		m.subscriptions.AssertExpectations(t)
	})

	t.Run("token belongs to someone else", func(t *testing.T) {
		h, m := setupHandler()
		m.subscriptions.On("UpdatePaymentMethod", mock.Anything, "sub-1", int64(7), "tok-9").
			Return(domain.NewDomainError(domain.ErrorCodeTokenNotFound, "token tok-9 not found"))

		rec := serve(h, http.MethodPost, "/api/v1/subscriptions/payment-method",
			`{"subscription_id":"sub-1","user_id":7,"token_id":"tok-9"}`)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing fields", func(t *testing.T) {
		h, m := setupHandler()
		rec := serve(h, http.MethodPost, "/api/v1/subscriptions/payment-method", `{"subscription_id":"sub-1"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		m.subscriptions.AssertNotCalled(t, "UpdatePaymentMethod", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}
