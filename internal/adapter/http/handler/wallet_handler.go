package handler

import (
	"strconv"
	"time"

	"vidpay/internal/adapter/http/dto"
	"vidpay/internal/core/ports"
	"vidpay/pkg/apperror"
	"vidpay/pkg/response"

	"github.com/gin-gonic/gin"
)

// WalletHandler handles wallet balance and statement endpoints. Top-ups go
// through the payment intake endpoint with purpose wallet_topup; there is
// no direct balance mutation surface.
type WalletHandler struct {
	walletSvc ports.WalletService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(walletSvc ports.WalletService) *WalletHandler {
	return &WalletHandler{walletSvc: walletSvc}
}

// GetWallet handles GET /api/v1/wallet.
func (h *WalletHandler) GetWallet(c *gin.Context) {
	userID, ok := authenticatedUser(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	wallet, err := h.walletSvc.GetWallet(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.WalletResponse{
		WalletID:  wallet.ID.String(),
		Balance:   wallet.Balance,
		UpdatedAt: wallet.UpdatedAt.Format(time.RFC3339),
	})
}

// GetStatement handles GET /api/v1/wallet/transactions.
func (h *WalletHandler) GetStatement(c *gin.Context) {
	userID, ok := authenticatedUser(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	entries, total, err := h.walletSvc.GetStatement(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	items := make([]dto.StatementEntryResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, dto.ToStatementEntryResponse(e))
	}
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))

	response.OK(c, dto.StatementResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	})
}
