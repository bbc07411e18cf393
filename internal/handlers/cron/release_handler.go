package cron

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/payment-engine/internal/domain"
)

const maxReleaseBatch = 500

// ReleaseProcessor charges pre-orders whose product has been released.
type ReleaseProcessor interface {
	ProcessRelease(ctx context.Context, orderID string) (domain.ResponseOutcome, error)
}

// ReleaseHandler handles the scheduler's pre-order release endpoint
type ReleaseHandler struct {
	releases ReleaseProcessor
	logger   *zap.Logger
	auth     cronAuth
	now      func() time.Time
}

// NewReleaseHandler creates a new pre-order release cron handler
func NewReleaseHandler(releases ReleaseProcessor, logger *zap.Logger, cronSecret string) *ReleaseHandler {
	return &ReleaseHandler{
		releases: releases,
		logger:   logger,
		auth:     cronAuth{secret: cronSecret, logger: logger},
		now:      time.Now,
	}
}

// ReleaseRequest lists the pre-orders to charge.
type ReleaseRequest struct {
	OrderIDs []string `json:"order_ids"`
}

// ReleaseOutcome is the result for one order.
type ReleaseOutcome struct {
	OrderID string `json:"order_id"`
	Outcome string `json:"outcome,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ReleaseResponse represents the response from release processing
type ReleaseResponse struct {
	Success      bool             `json:"success"`
	Processed    int              `json:"processed"`
	SuccessCount int              `json:"success_count"`
	FailureCount int              `json:"failure_count"`
	Orders       []ReleaseOutcome `json:"orders"`
	ProcessedAt  string           `json:"processed_at"`
}

// ProcessReleases handles the POST /cron/process-releases endpoint
func (h *ReleaseHandler) ProcessReleases(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("Pre-order release cron job triggered",
		zap.String("remote_addr", r.RemoteAddr),
	)

	if !h.auth.guard(w, r) {
		return
	}

	var req ReleaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.auth.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.OrderIDs) == 0 {
		h.auth.respondError(w, http.StatusBadRequest, "order_ids is required")
		return
	}
	if len(req.OrderIDs) > maxReleaseBatch {
		h.auth.respondError(w, http.StatusBadRequest, "too many orders in one batch")
		return
	}

	resp := ReleaseResponse{
		Processed: len(req.OrderIDs),
		Orders:    make([]ReleaseOutcome, 0, len(req.OrderIDs)),
	}
	for _, orderID := range req.OrderIDs {
		outcome, err := h.releases.ProcessRelease(r.Context(), orderID)
		entry := ReleaseOutcome{OrderID: orderID}
		switch {
		case err != nil:
			entry.Error = err.Error()
			resp.FailureCount++
			h.logger.Warn("Pre-order release failed",
				zap.String("order_id", orderID),
				zap.Error(err),
			)
		case outcome == domain.OutcomeDeclined:
			entry.Outcome = string(outcome)
			resp.FailureCount++
		default:
			entry.Outcome = string(outcome)
			resp.SuccessCount++
		}
		resp.Orders = append(resp.Orders, entry)
	}

	resp.Success = resp.FailureCount == 0
	resp.ProcessedAt = h.now().Format(time.RFC3339)

	h.logger.Info("Pre-order release completed",
		zap.Int("processed", resp.Processed),
		zap.Int("success", resp.SuccessCount),
		zap.Int("failed", resp.FailureCount),
	)

	statusCode := http.StatusOK
	if !resp.Success {
		statusCode = http.StatusPartialContent
	}
	h.auth.respondJSON(w, statusCode, resp)
}
