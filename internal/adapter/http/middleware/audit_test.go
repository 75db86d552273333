package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"reseller-ledger/internal/core/domain"
	"reseller-ledger/internal/core/ports/mocks"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestAuditLog_DeliveryConfirmed(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockAudit := mocks.NewMockAuditService(ctrl)

	sellerID := uuid.New()
	orderID := uuid.New()

	var entry *domain.AuditLog
	mockAudit.EXPECT().Log(gomock.Any(), gomock.Any()).Do(func(_ context.Context, e *domain.AuditLog) {
		entry = e
	})

	r := gin.New()
	r.Use(AuditLog(mockAudit))
	r.POST("/api/v1/orders/:id/deliver", func(c *gin.Context) {
		c.Set(CtxSellerID, sellerID)
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/deliver", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, entry)
	assert.Equal(t, domain.AuditActionConfirmDelivery, entry.Action)
	assert.Equal(t, "order", entry.ResourceType)
	assert.Equal(t, orderID.String(), entry.ResourceID)
	require.NotNil(t, entry.SellerID)
	assert.Equal(t, sellerID, *entry.SellerID)
	assert.Contains(t, entry.Details, `"status":200`)
}

func TestAuditLog_SkipsReads(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockAudit := mocks.NewMockAuditService(ctrl)

	r := gin.New()
	r.Use(AuditLog(mockAudit))
	r.GET("/api/v1/wallet", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuditLog_SkipsFailedRequests(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockAudit := mocks.NewMockAuditService(ctrl)

	r := gin.New()
	r.Use(AuditLog(mockAudit))
	r.POST("/api/v1/wallet/withdrawals", func(c *gin.Context) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error_code": "VAL_003"})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/wallet/withdrawals", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestAuditLog_SkipsUnauditedWrites(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockAudit := mocks.NewMockAuditService(ctrl)

	r := gin.New()
	r.Use(AuditLog(mockAudit))
	r.POST("/api/v1/webhooks/wompi", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"outcome": "applied"})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/wompi", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMapRouteToAction(t *testing.T) {
	tests := []struct {
		method, path string
		action       domain.AuditAction
		resourceType string
	}{
		{"POST", "/api/v1/orders", domain.AuditActionCreateOrder, "order"},
		{"POST", "/api/v1/orders/:id/deliver", domain.AuditActionConfirmDelivery, "order"},
		{"PATCH", "/api/v1/orders/:id/status", domain.AuditActionUpdateOrderStatus, "order"},
		{"POST", "/api/v1/wallet/withdrawals", domain.AuditActionWithdrawal, "wallet"},
		{"PUT", "/api/v1/wallet/settings", domain.AuditActionUpdateSettings, "wallet"},
		{"POST", "/api/v1/admin/withdrawals/:id/approve", domain.AuditActionApproveWithdrawal, "movement"},
		{"POST", "/api/v1/admin/withdrawals/:id/reject", domain.AuditActionRejectWithdrawal, "movement"},
	}
	for _, tt := range tests {
		route, ok := mapRouteToAction(tt.method, tt.path)
		require.True(t, ok, "%s %s", tt.method, tt.path)
		assert.Equal(t, tt.action, route.action)
		assert.Equal(t, tt.resourceType, route.resourceType)
	}

	_, ok := mapRouteToAction("GET", "/api/v1/orders/:id")
	assert.False(t, ok)
	_, ok = mapRouteToAction("POST", "/api/v1/orders/:id/sync")
	assert.False(t, ok)
}
