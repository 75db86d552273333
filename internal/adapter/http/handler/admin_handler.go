package handler

import (
	"reseller-ledger/internal/adapter/http/dto"
	"reseller-ledger/internal/core/ports"
	"reseller-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// AdminHandler handles withdrawal review.
type AdminHandler struct {
	withdrawalSvc ports.WithdrawalService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(withdrawalSvc ports.WithdrawalService) *AdminHandler {
	return &AdminHandler{withdrawalSvc: withdrawalSvc}
}

// ApproveWithdrawal handles POST /api/v1/admin/withdrawals/:id/approve.
func (h *AdminHandler) ApproveWithdrawal(c *gin.Context) {
	adminID, ok := currentSeller(c)
	if !ok {
		return
	}
	movementID, ok := pathID(c)
	if !ok {
		return
	}

	movement, err := h.withdrawalSvc.ApproveWithdrawal(c.Request.Context(), movementID, actor(adminID.String()))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, movement)
}

// RejectWithdrawal handles POST /api/v1/admin/withdrawals/:id/reject.
func (h *AdminHandler) RejectWithdrawal(c *gin.Context) {
	adminID, ok := currentSeller(c)
	if !ok {
		return
	}
	movementID, ok := pathID(c)
	if !ok {
		return
	}

	var req dto.RejectWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	dto.SanitizeStruct(&req)

	result, err := h.withdrawalSvc.RejectWithdrawal(c.Request.Context(), movementID, actor(adminID.String()), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

func actor(id string) string {
	return "admin:" + id
}
