package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/codewithrichardb/ecommerce-backend/internal/domain"
	"github.com/codewithrichardb/ecommerce-backend/internal/repository"
	"github.com/codewithrichardb/ecommerce-backend/internal/service"
	"github.com/codewithrichardb/ecommerce-backend/pkg/httputil"
	"github.com/codewithrichardb/ecommerce-backend/pkg/pagination"
	"github.com/codewithrichardb/ecommerce-backend/pkg/validator"
)

// CouponHandler handles HTTP requests for coupon endpoints.
type CouponHandler struct {
	service *service.CouponService
	logger  *slog.Logger
}

// NewCouponHandler creates a new coupon HTTP handler.
func NewCouponHandler(svc *service.CouponService, logger *slog.Logger) *CouponHandler {
	return &CouponHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// CartItemRequest is one cart line item in validate and apply requests.
type CartItemRequest struct {
	ProductID   string `json:"product_id" validate:"required"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity" validate:"required,gt=0"`
	Price       int64  `json:"price" validate:"gte=0"`
	Image       string `json:"image"`
	VariantID   string `json:"variant_id"`
	VariantName string `json:"variant_name"`
	Size        string `json:"size"`
	Color       string `json:"color"`
}

// BuyXGetYRequest configures a buy X get Y coupon.
type BuyXGetYRequest struct {
	BuyQuantity int    `json:"buy_quantity" validate:"required,gt=0"`
	GetQuantity int    `json:"get_quantity" validate:"required,gt=0"`
	ProductID   string `json:"product_id"`
	CategoryID  string `json:"category_id"`
}

// CreateCouponRequest is the JSON request body for creating a coupon.
type CreateCouponRequest struct {
	Code              string           `json:"code" validate:"required,min=3,max=50"`
	Description       string           `json:"description"`
	DiscountType      string           `json:"discount_type" validate:"required,oneof=percentage fixed free_shipping buy_x_get_y"`
	DiscountValue     int64            `json:"discount_value" validate:"gte=0"`
	MinOrderValue     int64            `json:"min_order_value" validate:"gte=0"`
	MaxDiscountAmount int64            `json:"max_discount_amount" validate:"gte=0"`
	StartDate         string           `json:"start_date" validate:"required"`
	EndDate           *string          `json:"end_date"`
	Status            string           `json:"status" validate:"omitempty,oneof=active expired scheduled used disabled"`
	UsageLimit        int              `json:"usage_limit" validate:"gte=0"`
	IndividualUseOnly bool             `json:"individual_use_only"`
	ExcludeSaleItems  bool             `json:"exclude_sale_items"`
	Scope             string           `json:"scope" validate:"omitempty,oneof=cart product category customer"`
	ProductIDs        []string         `json:"product_ids"`
	CategoryIDs       []string         `json:"category_ids"`
	CustomerIDs       []string         `json:"customer_ids"`
	BuyXGetY          *BuyXGetYRequest `json:"buy_x_get_y"`
}

// UpdateCouponRequest is the JSON request body for updating a coupon.
type UpdateCouponRequest struct {
	Description       *string          `json:"description"`
	DiscountValue     *int64           `json:"discount_value" validate:"omitempty,gt=0"`
	MinOrderValue     *int64           `json:"min_order_value" validate:"omitempty,gte=0"`
	MaxDiscountAmount *int64           `json:"max_discount_amount" validate:"omitempty,gte=0"`
	StartDate         *string          `json:"start_date"`
	EndDate           *string          `json:"end_date"`
	Status            *string          `json:"status" validate:"omitempty,oneof=active expired scheduled used disabled"`
	UsageLimit        *int             `json:"usage_limit" validate:"omitempty,gte=0"`
	IndividualUseOnly *bool            `json:"individual_use_only"`
	ExcludeSaleItems  *bool            `json:"exclude_sale_items"`
	ProductIDs        []string         `json:"product_ids"`
	CategoryIDs       []string         `json:"category_ids"`
	CustomerIDs       []string         `json:"customer_ids"`
	BuyXGetY          *BuyXGetYRequest `json:"buy_x_get_y"`
}

// ValidateCouponRequest is the JSON request body for validating a coupon.
type ValidateCouponRequest struct {
	Code     string            `json:"code" validate:"required"`
	Subtotal int64             `json:"subtotal" validate:"required,gt=0"`
	UserID   string            `json:"user_id"`
	Items    []CartItemRequest `json:"items" validate:"dive"`
}

// ApplyCouponRequest is the JSON request body for applying a coupon.
type ApplyCouponRequest struct {
	Code     string            `json:"code" validate:"required"`
	Subtotal int64             `json:"subtotal" validate:"required,gt=0"`
	UserID   string            `json:"user_id"`
	OrderID  string            `json:"order_id"`
	Items    []CartItemRequest `json:"items" validate:"dive"`
}

// --- Handlers ---

// CreateCoupon handles POST /api/v1/coupons
func (h *CouponHandler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req CreateCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	startDate, err := time.Parse(time.RFC3339, req.StartDate)
	if err != nil {
		writeBadRequest(w, "start_date must be in RFC3339 format")
		return
	}

	input := &service.CreateCouponInput{
		Code:              req.Code,
		Description:       req.Description,
		DiscountType:      req.DiscountType,
		DiscountValue:     req.DiscountValue,
		MinOrderValue:     req.MinOrderValue,
		MaxDiscountAmount: req.MaxDiscountAmount,
		StartDate:         startDate,
		Status:            req.Status,
		UsageLimit:        req.UsageLimit,
		IndividualUseOnly: req.IndividualUseOnly,
		ExcludeSaleItems:  req.ExcludeSaleItems,
		Scope:             req.Scope,
		ProductIDs:        req.ProductIDs,
		CategoryIDs:       req.CategoryIDs,
		CustomerIDs:       req.CustomerIDs,
		BuyXGetY:          toBuyXGetY(req.BuyXGetY),
	}

	if req.EndDate != nil {
		endDate, err := time.Parse(time.RFC3339, *req.EndDate)
		if err != nil {
			writeBadRequest(w, "end_date must be in RFC3339 format")
			return
		}
		input.EndDate = &endDate
	}

	coupon, err := h.service.CreateCoupon(r.Context(), input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: coupon})
}

// ListCoupons handles GET /api/v1/coupons
func (h *CouponHandler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)
	filter := repository.CouponFilter{
		Page:    params.Page,
		PerPage: params.PerPage,
	}

	if v := r.URL.Query().Get("status"); v != "" {
		filter.Status = &v
	}
	if v := r.URL.Query().Get("discount_type"); v != "" {
		filter.DiscountType = &v
	}

	coupons, total, err := h.service.ListCoupons(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, pagination.NewResult(coupons, total, params))
}

// GetCoupon handles GET /api/v1/coupons/{id}
func (h *CouponHandler) GetCoupon(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeBadRequest(w, "coupon id is required")
		return
	}

	coupon, err := h.service.GetCoupon(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: coupon})
}

// UpdateCoupon handles PUT /api/v1/coupons/{id}
func (h *CouponHandler) UpdateCoupon(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	id := chi.URLParam(r, "id")
	if id == "" {
		writeBadRequest(w, "coupon id is required")
		return
	}

	var req UpdateCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	input := &service.UpdateCouponInput{
		Description:       req.Description,
		DiscountValue:     req.DiscountValue,
		MinOrderValue:     req.MinOrderValue,
		MaxDiscountAmount: req.MaxDiscountAmount,
		Status:            req.Status,
		UsageLimit:        req.UsageLimit,
		IndividualUseOnly: req.IndividualUseOnly,
		ExcludeSaleItems:  req.ExcludeSaleItems,
		ProductIDs:        req.ProductIDs,
		CategoryIDs:       req.CategoryIDs,
		CustomerIDs:       req.CustomerIDs,
		BuyXGetY:          toBuyXGetY(req.BuyXGetY),
	}

	if req.StartDate != nil {
		startDate, err := time.Parse(time.RFC3339, *req.StartDate)
		if err != nil {
			writeBadRequest(w, "start_date must be in RFC3339 format")
			return
		}
		input.StartDate = &startDate
	}

	if req.EndDate != nil {
		endDate, err := time.Parse(time.RFC3339, *req.EndDate)
		if err != nil {
			writeBadRequest(w, "end_date must be in RFC3339 format")
			return
		}
		input.EndDate = &endDate
	}

	coupon, err := h.service.UpdateCoupon(r.Context(), id, input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: coupon})
}

// DeleteCoupon handles DELETE /api/v1/coupons/{id}
func (h *CouponHandler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeBadRequest(w, "coupon id is required")
		return
	}

	if err := h.service.DeleteCoupon(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusNoContent, nil)
}

// ValidateCoupon handles POST /api/v1/coupons/validate
func (h *CouponHandler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req ValidateCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	validation, err := h.service.ValidateCoupon(r.Context(), req.Code, &service.ValidateCouponInput{
		Subtotal: req.Subtotal,
		Items:    toCartItems(req.Items),
		UserID:   req.UserID,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: validation})
}

// ApplyCoupon handles POST /api/v1/coupons/apply
func (h *CouponHandler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req ApplyCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	application, err := h.service.ApplyCoupon(r.Context(), req.Code, &service.ApplyCouponInput{
		Subtotal: req.Subtotal,
		Items:    toCartItems(req.Items),
		UserID:   req.UserID,
		OrderID:  req.OrderID,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: application})
}

// AvailableCoupons handles GET /api/v1/coupons/available
func (h *CouponHandler) AvailableCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.service.AvailableCoupons(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: coupons})
}

// CouponStats handles GET /api/v1/coupons/stats
func (h *CouponHandler) CouponStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.CouponStats(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: stats})
}

// --- Helpers ---

func toCartItems(items []CartItemRequest) []domain.CartItem {
	out := make([]domain.CartItem, 0, len(items))
	for _, it := range items {
		out = append(out, domain.CartItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			Price:       it.Price,
			Image:       it.Image,
			VariantID:   it.VariantID,
			VariantName: it.VariantName,
			Size:        it.Size,
			Color:       it.Color,
		})
	}
	return out
}

func toBuyXGetY(req *BuyXGetYRequest) *domain.BuyXGetY {
	if req == nil {
		return nil
	}
	return &domain.BuyXGetY{
		BuyQuantity: req.BuyQuantity,
		GetQuantity: req.GetQuantity,
		ProductID:   req.ProductID,
		CategoryID:  req.CategoryID,
	}
}

func writeBadRequest(w http.ResponseWriter, message string) {
	httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
		Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: message},
	})
}
