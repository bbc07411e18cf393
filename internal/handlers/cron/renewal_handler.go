package cron

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/payment-engine/internal/services/subscription"
)

// maxRenewalBatch caps the renewals accepted in one request.
const maxRenewalBatch = 1000

// RenewalProcessor runs a batch of scheduled subscription renewals.
type RenewalProcessor interface {
	ProcessDueRenewals(ctx context.Context, renewals []subscription.Renewal) *subscription.BatchResult
}

// RenewalHandler handles the scheduler's renewal endpoint
type RenewalHandler struct {
	renewals RenewalProcessor
	logger   *zap.Logger
	auth     cronAuth
	now      func() time.Time
}

// NewRenewalHandler creates a new renewal cron handler
func NewRenewalHandler(renewals RenewalProcessor, logger *zap.Logger, cronSecret string) *RenewalHandler {
	return &RenewalHandler{
		renewals: renewals,
		logger:   logger,
		auth:     cronAuth{secret: cronSecret, logger: logger},
		now:      time.Now,
	}
}

// ProcessRenewalsRequest lists the renewals the scheduler found due.
type ProcessRenewalsRequest struct {
	Renewals []subscription.Renewal `json:"renewals"`
}

// ProcessRenewalsResponse represents the response from renewal processing
type ProcessRenewalsResponse struct {
	Success     bool                      `json:"success"`
	Result      *subscription.BatchResult `json:"result"`
	ProcessedAt string                    `json:"processed_at"`
}

// ProcessRenewals handles the POST /cron/process-renewals endpoint
func (h *RenewalHandler) ProcessRenewals(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("Renewal cron job triggered",
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("user_agent", r.UserAgent()),
	)

	if !h.auth.guard(w, r) {
		return
	}

	var req ProcessRenewalsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.auth.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Renewals) > maxRenewalBatch {
		h.auth.respondError(w, http.StatusBadRequest, "too many renewals in one batch")
		return
	}
	for _, renewal := range req.Renewals {
		if renewal.SubscriptionID == "" || renewal.OrderID == "" {
			h.auth.respondError(w, http.StatusBadRequest, "subscription_id and order_id are required")
			return
		}
		if !renewal.Amount.IsPositive() {
			h.auth.respondError(w, http.StatusBadRequest, "amount must be positive")
			return
		}
	}

	result := h.renewals.ProcessDueRenewals(r.Context(), req.Renewals)

	resp := ProcessRenewalsResponse{
		Success:     result.FailedCount == 0,
		Result:      result,
		ProcessedAt: h.now().Format(time.RFC3339),
	}

	statusCode := http.StatusOK
	if !resp.Success {
		statusCode = http.StatusPartialContent
	}
	h.auth.respondJSON(w, statusCode, resp)
}
