package handler

import (
	"vidpay/internal/adapter/http/dto"
	"vidpay/internal/core/domain"
	"vidpay/internal/core/ports"
	"vidpay/pkg/apperror"
	"vidpay/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EntitlementHandler answers "can this user watch this content right now".
type EntitlementHandler struct {
	entitlementSvc ports.EntitlementService
}

// NewEntitlementHandler creates a new EntitlementHandler.
func NewEntitlementHandler(entitlementSvc ports.EntitlementService) *EntitlementHandler {
	return &EntitlementHandler{entitlementSvc: entitlementSvc}
}

// CheckAccess handles GET /api/v1/entitlements. Query params: content_id,
// content_type, and for episodes an optional season_id. Episode access is
// the union of the direct episode entitlement and the parent season's.
func (h *EntitlementHandler) CheckAccess(c *gin.Context) {
	userID, ok := authenticatedUser(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	contentID, err := uuid.Parse(c.Query("content_id"))
	if err != nil {
		response.Error(c, apperror.Validation("content_id must be a UUID"))
		return
	}
	contentType := domain.ContentType(c.Query("content_type"))
	if !contentType.IsValid() {
		response.Error(c, apperror.Validation("content_type must be movie, season or episode"))
		return
	}

	access, err := h.entitlementSvc.HasAccess(c.Request.Context(), userID, contentID, contentType)
	if err != nil {
		response.Error(c, err)
		return
	}

	// Episodes inherit access from their parent season.
	if !access.HasAccess && contentType == domain.ContentTypeEpisode {
		if seasonID, serr := uuid.Parse(c.Query("season_id")); serr == nil {
			seasonAccess, aerr := h.entitlementSvc.HasAccess(c.Request.Context(), userID, seasonID, domain.ContentTypeSeason)
			if aerr != nil {
				response.Error(c, aerr)
				return
			}
			if seasonAccess.HasAccess {
				access = seasonAccess
			}
		}
	}

	response.OK(c, dto.ToEntitlementResponse(access))
}
