package handler

import (
	"reseller-ledger/internal/adapter/http/dto"
	"reseller-ledger/internal/core/domain"
	"reseller-ledger/internal/core/ports"
	"reseller-ledger/pkg/apperror"
	"reseller-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey lets a seller retry a withdrawal without paying out twice.
const HeaderIdempotencyKey = "Idempotency-Key"

const maxIdempotencyKeyLen = 64

// WalletHandler handles the seller's wallet endpoints.
type WalletHandler struct {
	walletSvc     ports.WalletService
	withdrawalSvc ports.WithdrawalService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(walletSvc ports.WalletService, withdrawalSvc ports.WithdrawalService) *WalletHandler {
	return &WalletHandler{
		walletSvc:     walletSvc,
		withdrawalSvc: withdrawalSvc,
	}
}

// GetWallet handles GET /api/v1/wallet.
func (h *WalletHandler) GetWallet(c *gin.Context) {
	sellerID, ok := currentSeller(c)
	if !ok {
		return
	}

	wallet, err := h.walletSvc.GetWallet(c.Request.Context(), sellerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, wallet)
}

// ListMovements handles GET /api/v1/wallet/movements.
func (h *WalletHandler) ListMovements(c *gin.Context) {
	sellerID, ok := currentSeller(c)
	if !ok {
		return
	}

	var q dto.MovementListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	filter := q.ToFilter(sellerID)

	movements, total, err := h.walletSvc.ListMovements(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	if movements == nil {
		movements = []domain.Movement{}
	}

	response.OK(c, dto.MovementListResponse{
		Movements: movements,
		Total:     total,
		Page:      filter.Page,
		PageSize:  filter.PageSize,
	})
}

// GetSummary handles GET /api/v1/wallet/summary.
func (h *WalletHandler) GetSummary(c *gin.Context) {
	sellerID, ok := currentSeller(c)
	if !ok {
		return
	}

	summary, err := h.walletSvc.GetSummary(c.Request.Context(), sellerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, summary)
}

// UpdateSettings handles PUT /api/v1/wallet/settings.
func (h *WalletHandler) UpdateSettings(c *gin.Context) {
	sellerID, ok := currentSeller(c)
	if !ok {
		return
	}

	var req dto.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	dto.SanitizeStruct(&req)

	wallet, err := h.walletSvc.UpdateSettings(c.Request.Context(), sellerID, req.ToPort())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, wallet)
}

// RequestWithdrawal handles POST /api/v1/wallet/withdrawals.
func (h *WalletHandler) RequestWithdrawal(c *gin.Context) {
	sellerID, ok := currentSeller(c)
	if !ok {
		return
	}

	key := c.GetHeader(HeaderIdempotencyKey)
	if len(key) > maxIdempotencyKeyLen {
		response.Error(c, apperror.Validation("Idempotency-Key must be at most 64 characters"))
		return
	}

	var req dto.WithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	dto.SanitizeStruct(&req)

	result, err := h.withdrawalSvc.RequestWithdrawal(c.Request.Context(), req.ToPort(sellerID, key))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// GetSeller handles GET /api/v1/seller.
func (h *WalletHandler) GetSeller(c *gin.Context) {
	sellerID, ok := currentSeller(c)
	if !ok {
		return
	}

	seller, err := h.walletSvc.GetSeller(c.Request.Context(), sellerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, seller)
}
