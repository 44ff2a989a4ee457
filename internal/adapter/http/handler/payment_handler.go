package handler

import (
	"vidpay/internal/adapter/http/dto"
	"vidpay/internal/adapter/http/middleware"
	"vidpay/internal/core/domain"
	"vidpay/internal/core/ports"
	"vidpay/pkg/apperror"
	"vidpay/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderIdempotencyKey is the client-supplied replay protection header.
const HeaderIdempotencyKey = "Idempotency-Key"

// PaymentHandler handles payment intake and lookup endpoints.
type PaymentHandler struct {
	paymentSvc ports.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentSvc ports.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentSvc: paymentSvc}
}

// ProcessPayment handles POST /api/v1/payments.
func (h *PaymentHandler) ProcessPayment(c *gin.Context) {
	userID, ok := authenticatedUser(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	metadata := domain.PaymentMetadata{
		ContentType:         domain.ContentType(req.Metadata.ContentType),
		RentalDurationHours: req.Metadata.RentalDurationHours,
	}
	if req.Metadata.ContentID != "" {
		contentID, err := uuid.Parse(req.Metadata.ContentID)
		if err != nil {
			response.Error(c, apperror.Validation("metadata.content_id must be a UUID"))
			return
		}
		metadata.ContentID = contentID
	}

	result, err := h.paymentSvc.ProcessPayment(c.Request.Context(), ports.PaymentRequest{
		UserID:         userID,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Purpose:        domain.Purpose(req.Purpose),
		Method:         ports.PaymentMethod(req.PaymentMethod),
		Email:          req.Email,
		Metadata:       metadata,
		IdempotencyKey: c.GetHeader(HeaderIdempotencyKey),
		ClientIP:       c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	if result.Replayed {
		response.OK(c, dto.ToPaymentResultResponse(result))
		return
	}
	response.Created(c, dto.ToPaymentResultResponse(result))
}

// GetPayment handles GET /api/v1/payments/:id.
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	userID, ok := authenticatedUser(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	paymentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("payment id must be a UUID"))
		return
	}

	payment, err := h.paymentSvc.GetPayment(c.Request.Context(), userID, paymentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ToPaymentResponse(payment))
}

// VerifyPayment handles GET /api/v1/payments/verify/:reference. It asks the
// gateway for the authoritative charge state and applies it, covering
// webhooks the platform never received.
func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	userID, ok := authenticatedUser(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	reference := c.Param("reference")
	if reference == "" {
		response.Error(c, apperror.Validation("reference is required"))
		return
	}

	payment, err := h.paymentSvc.VerifyPayment(c.Request.Context(), reference)
	if err != nil {
		response.Error(c, err)
		return
	}
	if payment.UserID != userID {
		response.Error(c, apperror.ErrNotFound("payment"))
		return
	}
	response.OK(c, dto.ToPaymentResponse(payment))
}

// authenticatedUser pulls the JWTAuth-verified user id off the context.
func authenticatedUser(c *gin.Context) (uuid.UUID, bool) {
	v, exists := c.Get(middleware.CtxUserID)
	if !exists {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
