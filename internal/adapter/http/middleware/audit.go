package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"reseller-ledger/internal/core/domain"
	"reseller-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type auditRoute struct {
	action       domain.AuditAction
	resourceType string
}

// auditedRoutes maps "METHOD route-template" to the audited action.
var auditedRoutes = map[string]auditRoute{
	"POST /api/v1/orders":                        {domain.AuditActionCreateOrder, "order"},
	"POST /api/v1/orders/:id/deliver":            {domain.AuditActionConfirmDelivery, "order"},
	"PATCH /api/v1/orders/:id/status":            {domain.AuditActionUpdateOrderStatus, "order"},
	"POST /api/v1/wallet/withdrawals":            {domain.AuditActionWithdrawal, "wallet"},
	"PUT /api/v1/wallet/settings":                {domain.AuditActionUpdateSettings, "wallet"},
	"POST /api/v1/admin/withdrawals/:id/approve": {domain.AuditActionApproveWithdrawal, "movement"},
	"POST /api/v1/admin/withdrawals/:id/reject":  {domain.AuditActionRejectWithdrawal, "movement"},
}

// AuditLog records successful ledger-mutating requests after they complete.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status < http.StatusOK || status >= http.StatusMultipleChoices {
			return
		}

		route, ok := mapRouteToAction(c.Request.Method, c.FullPath())
		if !ok {
			return
		}

		var sellerID *uuid.UUID
		if id, ok := SellerID(c); ok {
			sellerID = &id
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"request_id": c.GetString(CtxRequestID),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			ID:           uuid.New(),
			SellerID:     sellerID,
			Action:       route.action,
			ResourceType: route.resourceType,
			ResourceID:   c.Param("id"),
			IPAddress:    c.ClientIP(),
			Details:      string(details),
			CreatedAt:    time.Now().UTC(),
		})
	}
}

func mapRouteToAction(method, fullPath string) (auditRoute, bool) {
	route, ok := auditedRoutes[method+" "+fullPath]
	return route, ok
}
