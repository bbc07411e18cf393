package checkout

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/kevin07696/payment-engine/internal/domain"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// OrderReader loads orders so checkout can pick the right flow.
type OrderReader interface {
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
}

// PaymentProcessor runs checkout for an order.
type PaymentProcessor interface {
	ProcessPayment(ctx context.Context, orderID string, fields *domain.PaymentFields) (*domain.PaymentResult, error)
}

// Capturer captures authorized orders.
type Capturer interface {
	Capture(ctx context.Context, orderID string) (*domain.CaptureResult, error)
}

// PaymentMethodUpdater switches the token a subscription renews with.
type PaymentMethodUpdater interface {
	UpdatePaymentMethod(ctx context.Context, subscriptionID string, userID int64, tokenID string) error
}

// Handler serves the checkout, capture and subscription payment-method endpoints
type Handler struct {
	orders        OrderReader
	checkout      PaymentProcessor
	preorders     PaymentProcessor
	capturer      Capturer
	subscriptions PaymentMethodUpdater
	logger        *zap.Logger
}

// NewHandler creates a checkout handler. Orders flagged charge-upon-release
// go to preorders; every other order goes to checkout.
func NewHandler(
	orders OrderReader,
	checkout PaymentProcessor,
	preorders PaymentProcessor,
	capturer Capturer,
	subscriptions PaymentMethodUpdater,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		orders:        orders,
		checkout:      checkout,
		preorders:     preorders,
		capturer:      capturer,
		subscriptions: subscriptions,
		logger:        logger,
	}
}

// RegisterRoutes mounts the handler's endpoints on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/checkout", h.ProcessPayment)
	mux.HandleFunc("/api/v1/orders/capture", h.Capture)
	mux.HandleFunc("/api/v1/subscriptions/payment-method", h.UpdatePaymentMethod)
}

// ProcessPaymentRequest is the checkout request body.
type ProcessPaymentRequest struct {
	OrderID string               `json:"order_id"`
	Payment domain.PaymentFields `json:"payment"`
}

// ProcessPayment handles POST /api/v1/checkout. Declines and field errors
// are reported in the result with status 200 or 422; only failures to reach
// the order are HTTP errors.
func (h *Handler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "only POST method is allowed")
		return
	}

	var req ProcessPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.OrderID == "" {
		h.respondError(w, http.StatusBadRequest, "order_id is required")
		return
	}

	order, err := h.orders.GetOrder(r.Context(), req.OrderID)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	processor := h.checkout
	if order.ChargeUponRelease {
		processor = h.preorders
	}

	result, err := processor.ProcessPayment(r.Context(), req.OrderID, &req.Payment)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}

	h.logger.Info("Checkout processed",
		zap.String("order_id", req.OrderID),
		zap.Bool("success", result.Success),
	)

	statusCode := http.StatusOK
	if len(result.FieldErrors) > 0 {
		statusCode = http.StatusUnprocessableEntity
	}
	h.respondJSON(w, statusCode, result)
}

// CaptureRequest is the capture request body.
type CaptureRequest struct {
	OrderID string `json:"order_id"`
}

// Capture handles POST /api/v1/orders/capture. A declined capture is a 200
// with approved=false; a refused capture is a 409.
func (h *Handler) Capture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "only POST method is allowed")
		return
	}

	var req CaptureRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.OrderID == "" {
		h.respondError(w, http.StatusBadRequest, "order_id is required")
		return
	}

	result, err := h.capturer.Capture(r.Context(), req.OrderID)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

// UpdatePaymentMethodRequest is the subscription payment-method request body.
type UpdatePaymentMethodRequest struct {
	SubscriptionID string `json:"subscription_id"`
	UserID         int64  `json:"user_id"`
	TokenID        string `json:"token_id"`
}

// UpdatePaymentMethod handles POST /api/v1/subscriptions/payment-method.
func (h *Handler) UpdatePaymentMethod(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "only POST method is allowed")
		return
	}

	var req UpdatePaymentMethodRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.SubscriptionID == "" || req.TokenID == "" || req.UserID <= 0 {
		h.respondError(w, http.StatusBadRequest, "subscription_id, user_id and token_id are required")
		return
	}

	if err := h.subscriptions.UpdatePaymentMethod(r.Context(), req.SubscriptionID, req.UserID, req.TokenID); err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// statusFor maps domain error codes to HTTP statuses.
func statusFor(code domain.ErrorCode) int {
	switch code {
	case domain.ErrorCodeOrderNotFound, domain.ErrorCodeTokenNotFound:
		return http.StatusNotFound
	case domain.ErrorCodeValidationFailed, domain.ErrorCodeTokenInvalid:
		return http.StatusBadRequest
	case domain.ErrorCodeAlreadyCaptured, domain.ErrorCodeNotCapturable,
		domain.ErrorCodeCaptureInProgress, domain.ErrorCodeAuthorizationExpired,
		domain.ErrorCodeFeatureUnsupported:
		return http.StatusConflict
	case domain.ErrorCodeGatewayError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	code := domain.GetErrorCode(err)
	statusCode := statusFor(code)
	if statusCode == http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.Error(err))
		h.respondError(w, statusCode, "internal error")
		return
	}
	h.respondJSON(w, statusCode, map[string]interface{}{
		"success": false,
		"code":    code,
		"error":   err.Error(),
	})
}

func (h *Handler) respondJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, statusCode int, message string) {
	h.respondJSON(w, statusCode, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
