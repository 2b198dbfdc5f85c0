package http

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/codewithrichardb/ecommerce-backend/internal/service"
	"github.com/codewithrichardb/ecommerce-backend/pkg/httputil"
	"github.com/codewithrichardb/ecommerce-backend/pkg/validator"
)

// trackingPixel is a 1x1 transparent GIF served by the open tracking endpoint.
var trackingPixel, _ = base64.StdEncoding.DecodeString(
	"R0lGODlhAQABAIAAAAAAAP///yH5BAEAAAAALAAAAAABAAEAAAIBRAA7",
)

// AbandonedCartHandler handles HTTP requests for abandoned cart endpoints.
type AbandonedCartHandler struct {
	service *service.RecoveryService
	logger  *slog.Logger
}

// NewAbandonedCartHandler creates a new abandoned cart HTTP handler.
func NewAbandonedCartHandler(svc *service.RecoveryService, logger *slog.Logger) *AbandonedCartHandler {
	return &AbandonedCartHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// SaveCartRequest is the JSON request body for capturing an abandoned cart.
type SaveCartRequest struct {
	UserID     string            `json:"user_id"`
	Email      string            `json:"email" validate:"required,email"`
	Items      []CartItemRequest `json:"items" validate:"required,min=1,dive"`
	CouponCode string            `json:"coupon_code"`
	Metadata   map[string]string `json:"metadata"`
}

// --- Handlers ---

// SaveCart handles POST /api/v1/abandoned-carts
func (h *AbandonedCartHandler) SaveCart(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req SaveCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	cart, err := h.service.SaveAbandonedCart(r.Context(), &service.SaveAbandonedCartInput{
		UserID:     req.UserID,
		Email:      req.Email,
		Items:      toCartItems(req.Items),
		CouponCode: req.CouponCode,
		Metadata:   req.Metadata,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: cart})
}

// GetCart handles GET /api/v1/abandoned-carts/{id}
func (h *AbandonedCartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeBadRequest(w, "cart id is required")
		return
	}

	cart, err := h.service.GetCart(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: cart})
}

// RecoverCart handles POST /api/v1/abandoned-carts/recover/{token}
func (h *AbandonedCartHandler) RecoverCart(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		writeBadRequest(w, "recovery token is required")
		return
	}

	cart, err := h.service.RecoverCart(r.Context(), token)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: cart})
}

// TrackOpen handles GET /api/v1/abandoned-carts/track/open/{emailId}
//
// Mail clients fetch this as an inline image, so the response is always the
// tracking pixel regardless of whether the reminder could be attributed.
func (h *AbandonedCartHandler) TrackOpen(w http.ResponseWriter, r *http.Request) {
	emailID := chi.URLParam(r, "emailId")
	if emailID != "" {
		if err := h.service.TrackOpen(r.Context(), emailID); err != nil {
			h.logger.DebugContext(r.Context(), "open tracking failed",
				slog.String("email_id", emailID),
				slog.String("error", err.Error()),
			)
		}
	}

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(trackingPixel)
}

// TrackClick handles GET /api/v1/abandoned-carts/track/click/{emailId}
//
// Redirects to the redirectUrl query parameter when present so reminder
// links can route through this endpoint transparently.
func (h *AbandonedCartHandler) TrackClick(w http.ResponseWriter, r *http.Request) {
	emailID := chi.URLParam(r, "emailId")
	if emailID == "" {
		writeBadRequest(w, "email id is required")
		return
	}

	if _, err := h.service.TrackClick(r.Context(), emailID); err != nil {
		h.logger.DebugContext(r.Context(), "click tracking failed",
			slog.String("email_id", emailID),
			slog.String("error", err.Error()),
		)
	}

	if redirect := r.URL.Query().Get("redirectUrl"); redirect != "" {
		http.Redirect(w, r, redirect, http.StatusFound)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]bool{"tracked": true}})
}

// CartStats handles GET /api/v1/abandoned-carts/stats
func (h *AbandonedCartHandler) CartStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.CartStats(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: stats})
}

// ProcessEmails handles POST /api/v1/abandoned-carts/process-emails
//
// Triggers a reminder sweep on demand, in addition to the periodic one.
func (h *AbandonedCartHandler) ProcessEmails(w http.ResponseWriter, r *http.Request) {
	sent, err := h.service.ProcessDueReminders(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]int{"emails_sent": sent}})
}
