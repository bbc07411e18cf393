package cron

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kevin07696/payment-engine/internal/domain"
	"github.com/kevin07696/payment-engine/internal/services/subscription"
)

const testSecret = "cron-secret"

type MockRenewalProcessor struct {
	mock.Mock
}

func (m *MockRenewalProcessor) ProcessDueRenewals(ctx context.Context, renewals []subscription.Renewal) *subscription.BatchResult {
	args := m.Called(ctx, renewals)
	return args.Get(0).(*subscription.BatchResult)
}

type MockReleaseProcessor struct {
	mock.Mock
}

func (m *MockReleaseProcessor) ProcessRelease(ctx context.Context, orderID string) (domain.ResponseOutcome, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).(domain.ResponseOutcome), args.Error(1)
}

func cronRequest(method, body string, headers map[string]string) *http.Request {
	req := httptest.NewRequest(method, "/cron/test", strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func TestCronAuth(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		headers map[string]string
		want    bool
	}{
		{name: "header", secret: testSecret, headers: map[string]string{"X-Cron-Secret": testSecret}, want: true},
		{name: "bearer", secret: testSecret, headers: map[string]string{"Authorization": "Bearer " + testSecret}, want: true},
		{name: "wrong header", secret: testSecret, headers: map[string]string{"X-Cron-Secret": "nope"}},
		{name: "wrong bearer", secret: testSecret, headers: map[string]string{"Authorization": "Bearer nope"}},
		{name: "missing", secret: testSecret},
		{name: "unconfigured secret rejects everything", secret: "", headers: map[string]string{"X-Cron-Secret": ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := cronAuth{secret: tt.secret, logger: zap.NewNop()}
			assert.Equal(t, tt.want, auth.authenticate(cronRequest(http.MethodPost, "", tt.headers)))
		})
	}
}

func TestRenewalHandler_ProcessRenewals(t *testing.T) {
	authHeaders := map[string]string{"X-Cron-Secret": testSecret}
	fixedNow := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	t.Run("runs the batch", func(t *testing.T) {
		processor := new(MockRenewalProcessor)
		h := NewRenewalHandler(processor, zap.NewNop(), testSecret)
		h.now = func() time.Time { return fixedNow }

		processor.On("ProcessDueRenewals", mock.Anything, mock.MatchedBy(func(r []subscription.Renewal) bool {
			return len(r) == 1 && r[0].SubscriptionID == "sub-1" && r[0].Amount.Equal(decimal.RequireFromString("19.99"))
		})).Return(&subscription.BatchResult{ProcessedCount: 1, SuccessCount: 1})

		rec := httptest.NewRecorder()
		h.ProcessRenewals(rec, cronRequest(http.MethodPost,
			`{"renewals":[{"subscription_id":"sub-1","order_id":"101","amount":"19.99"}]}`, authHeaders))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp ProcessRenewalsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, 1, resp.Result.SuccessCount)
		assert.Equal(t, "2026-03-14T09:00:00Z", resp.ProcessedAt)
		processor.AssertExpectations(t)
	})

	t.Run("partial failure", func(t *testing.T) {
		processor := new(MockRenewalProcessor)
		h := NewRenewalHandler(processor, zap.NewNop(), testSecret)
		processor.On("ProcessDueRenewals", mock.Anything, mock.Anything).Return(&subscription.BatchResult{
			ProcessedCount: 1,
			FailedCount:    1,
			Errors:         []subscription.RenewalError{{SubscriptionID: "sub-1", OrderID: "101", Declined: true}},
		})

		rec := httptest.NewRecorder()
		h.ProcessRenewals(rec, cronRequest(http.MethodPost,
			`{"renewals":[{"subscription_id":"sub-1","order_id":"101","amount":"5"}]}`, authHeaders))

		assert.Equal(t, http.StatusPartialContent, rec.Code)
	})

	rejects := []struct {
		name    string
		method  string
		body    string
		headers map[string]string
		status  int
	}{
		{name: "GET", method: http.MethodGet, headers: authHeaders, status: http.StatusMethodNotAllowed},
		{name: "unauthenticated", method: http.MethodPost, body: `{"renewals":[]}`, status: http.StatusUnauthorized},
		{name: "malformed body", method: http.MethodPost, body: `{`, headers: authHeaders, status: http.StatusBadRequest},
		{name: "missing ids", method: http.MethodPost, body: `{"renewals":[{"amount":"5"}]}`, headers: authHeaders, status: http.StatusBadRequest},
		{name: "zero amount", method: http.MethodPost, body: `{"renewals":[{"subscription_id":"s","order_id":"o","amount":"0"}]}`, headers: authHeaders, status: http.StatusBadRequest},
	}
	for _, tt := range rejects {
		t.Run(tt.name, func(t *testing.T) {
			processor := new(MockRenewalProcessor)
			h := NewRenewalHandler(processor, zap.NewNop(), testSecret)

			rec := httptest.NewRecorder()
			h.ProcessRenewals(rec, cronRequest(tt.method, tt.body, tt.headers))

			assert.Equal(t, tt.status, rec.Code)
			processor.AssertNotCalled(t, "ProcessDueRenewals", mock.Anything, mock.Anything)
		})
	}
}

func TestReleaseHandler_ProcessReleases(t *testing.T) {
	authHeaders := map[string]string{"Authorization": "Bearer " + testSecret}

	t.Run("mixed outcomes", func(t *testing.T) {
		processor := new(MockReleaseProcessor)
		h := NewReleaseHandler(processor, zap.NewNop(), testSecret)

		processor.On("ProcessRelease", mock.Anything, "201").Return(domain.OutcomeApproved, nil)
		processor.On("ProcessRelease", mock.Anything, "202").Return(domain.OutcomeDeclined, nil)
		processor.On("ProcessRelease", mock.Anything, "203").Return(domain.ResponseOutcome(""), errors.New("order 203 is not pre-ordered"))

		rec := httptest.NewRecorder()
		h.ProcessReleases(rec, cronRequest(http.MethodPost, `{"order_ids":["201","202","203"]}`, authHeaders))

		require.Equal(t, http.StatusPartialContent, rec.Code)
		var resp ReleaseResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		assert.Equal(t, 3, resp.Processed)
		assert.Equal(t, 1, resp.SuccessCount)
		assert.Equal(t, 2, resp.FailureCount)
		require.Len(t, resp.Orders, 3)
		assert.Equal(t, "approved", resp.Orders[0].Outcome)
		assert.Equal(t, "declined", resp.Orders[1].Outcome)
		assert.Contains(t, resp.Orders[2].Error, "not pre-ordered")
		processor.AssertExpectations(t)
	})

	t.Run("all released", func(t *testing.T) {
		processor := new(MockReleaseProcessor)
		h := NewReleaseHandler(processor, zap.NewNop(), testSecret)
		processor.On("ProcessRelease", mock.Anything, "201").Return(domain.OutcomeHeld, nil)

		rec := httptest.NewRecorder()
		h.ProcessReleases(rec, cronRequest(http.MethodPost, `{"order_ids":["201"]}`, authHeaders))

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("empty batch", func(t *testing.T) {
		processor := new(MockReleaseProcessor)
		h := NewReleaseHandler(processor, zap.NewNop(), testSecret)

		rec := httptest.NewRecorder()
		h.ProcessReleases(rec, cronRequest(http.MethodPost, `{"order_ids":[]}`, authHeaders))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		processor.AssertNotCalled(t, "ProcessRelease", mock.Anything, mock.Anything)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		processor := new(MockReleaseProcessor)
		h := NewReleaseHandler(processor, zap.NewNop(), testSecret)

		rec := httptest.NewRecorder()
		h.ProcessReleases(rec, cronRequest(http.MethodPost, `{"order_ids":["1"]}`, nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
