package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"reseller-ledger/internal/core/domain"
	"reseller-ledger/internal/core/ports"
	"reseller-ledger/internal/core/ports/mocks"
	"reseller-ledger/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	sellerToken = "seller-token"
	adminToken  = "admin-token"
)

type harness struct {
	orders      *mocks.MockOrderService
	settlement  *mocks.MockSettlementService
	withdrawals *mocks.MockWithdrawalService
	webhooks    *mocks.MockWebhookService
	wallets     *mocks.MockWalletService
	sellerID    uuid.UUID
	adminID     uuid.UUID
	router      *gin.Engine
}

func newHarness(t *testing.T, opts ...func(*RouterDeps)) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)
	h := &harness{
		orders:      mocks.NewMockOrderService(ctrl),
		settlement:  mocks.NewMockSettlementService(ctrl),
		withdrawals: mocks.NewMockWithdrawalService(ctrl),
		webhooks:    mocks.NewMockWebhookService(ctrl),
		wallets:     mocks.NewMockWalletService(ctrl),
		sellerID:    uuid.New(),
		adminID:     uuid.New(),
	}

	tokens := mocks.NewMockTokenService(ctrl)
	tokens.EXPECT().Validate(sellerToken).Return(&ports.TokenClaims{SellerID: h.sellerID, Role: ports.RoleSeller}, nil).AnyTimes()
	tokens.EXPECT().Validate(adminToken).Return(&ports.TokenClaims{SellerID: h.adminID, Role: ports.RoleAdmin}, nil).AnyTimes()
	tokens.EXPECT().Validate(gomock.Any()).Return(nil, errors.New("token is malformed")).AnyTimes()

	deps := RouterDeps{
		OrderSvc:      h.orders,
		SettlementSvc: h.settlement,
		WithdrawalSvc: h.withdrawals,
		WebhookSvc:    h.webhooks,
		WalletSvc:     h.wallets,
		TokenSvc:      tokens,
		Logger:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h.router = SetupRouter(deps)
	return h
}

func (h *harness) do(method, path, token string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Data      map[string]interface{} `json:"data"`
	ErrorCode string                 `json:"error_code"`
	Reason    string                 `json:"reason"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func sampleWallet(sellerID uuid.UUID) *domain.Wallet {
	return &domain.Wallet{
		ID:             uuid.New(),
		SellerID:       sellerID,
		Balance:        decimal.NewFromInt(60000),
		PendingBalance: decimal.NewFromInt(8000),
		Points:         9,
		IsActive:       true,
	}
}

// --- Webhook ---

func TestWebhook_Applied(t *testing.T) {
	h := newHarness(t)
	payload := []byte(`{"event":"transaction.updated","data":{"transaction":{"id":"tx-1","status":"APPROVED"}}}`)

	h.webhooks.EXPECT().HandleWebhookEvent(gomock.Any(), payload, "abc123").Return(ports.WebhookApplied, nil)

	w := h.do(http.MethodPost, "/api/v1/webhooks/wompi", "", payload, HeaderEventSignature, "abc123")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "applied", decode(t, w).Data["outcome"])
}

func TestWebhook_DuplicateAcknowledged(t *testing.T) {
	h := newHarness(t)
	h.webhooks.EXPECT().HandleWebhookEvent(gomock.Any(), gomock.Any(), "sig").Return(ports.WebhookDuplicate, nil)

	w := h.do(http.MethodPost, "/api/v1/webhooks/wompi", "", `{}`, HeaderEventSignature, "sig")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "duplicate", decode(t, w).Data["outcome"])
}

func TestWebhook_InvalidSignature(t *testing.T) {
	h := newHarness(t)
	h.webhooks.EXPECT().HandleWebhookEvent(gomock.Any(), gomock.Any(), "").Return(ports.WebhookOutcome(""), apperror.ErrInvalidSignature())

	w := h.do(http.MethodPost, "/api/v1/webhooks/wompi", "", `{}`)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	env := decode(t, w)
	assert.Equal(t, "SEC_001", env.ErrorCode)
	assert.Equal(t, "invalid_signature", env.Reason)
}

// --- Wallet ---

func TestWallet_RequiresToken(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/v1/wallet", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/v1/wallet", "forged", nil).Code)
}

func TestGetWallet_Success(t *testing.T) {
	h := newHarness(t)
	h.wallets.EXPECT().GetWallet(gomock.Any(), h.sellerID).Return(sampleWallet(h.sellerID), nil)

	w := h.do(http.MethodGet, "/api/v1/wallet", sellerToken, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w).Data
	assert.Equal(t, "60000", data["balance"])
	assert.Equal(t, "8000", data["pending_balance"])
	assert.Equal(t, h.sellerID.String(), data["seller_id"])
}

func TestListMovements_PassesFilter(t *testing.T) {
	h := newHarness(t)

	var got domain.MovementFilter
	h.wallets.EXPECT().ListMovements(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, f domain.MovementFilter) ([]domain.Movement, int64, error) {
			got = f
			return nil, 0, nil
		})

	w := h.do(http.MethodGet, "/api/v1/wallet/movements?type=withdrawal&status=pending&page=2&page_size=5", sellerToken, nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, h.sellerID, got.SellerID)
	require.NotNil(t, got.Type)
	assert.Equal(t, domain.MovementWithdrawal, *got.Type)
	require.NotNil(t, got.Status)
	assert.Equal(t, domain.MovementStatusPending, *got.Status)
	assert.Equal(t, 2, got.Page)
	assert.Equal(t, 5, got.PageSize)

	data := decode(t, w).Data
	assert.Equal(t, []interface{}{}, data["movements"])
	assert.Equal(t, float64(0), data["total"])
}

func TestListMovements_InvalidType(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodGet, "/api/v1/wallet/movements?type=refund", sellerToken, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VAL_001", decode(t, w).ErrorCode)
}

func TestGetSummary_Success(t *testing.T) {
	h := newHarness(t)
	h.wallets.EXPECT().GetSummary(gomock.Any(), h.sellerID).Return(&ports.WalletSummary{
		Wallet:            sampleWallet(h.sellerID),
		PendingCommission: decimal.NewFromInt(8000),
		PointsEarned:      9,
	}, nil)

	w := h.do(http.MethodGet, "/api/v1/wallet/summary", sellerToken, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w).Data
	assert.Equal(t, "8000", data["pending_commission"])
	assert.Equal(t, float64(9), data["points_earned"])
}

func TestUpdateSettings_Success(t *testing.T) {
	h := newHarness(t)

	h.wallets.EXPECT().UpdateSettings(gomock.Any(), h.sellerID, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ uuid.UUID, req ports.UpdateSettingsRequest) (*domain.Wallet, error) {
			require.NotNil(t, req.PreferredMethod)
			assert.Equal(t, domain.PayoutMethodNequi, *req.PreferredMethod)
			require.NotNil(t, req.Payout)
			assert.Equal(t, "3001234567", req.Payout.PhoneNumber)
			assert.Nil(t, req.MinimumWithdrawal)
			return sampleWallet(h.sellerID), nil
		})

	w := h.do(http.MethodPut, "/api/v1/wallet/settings", sellerToken, map[string]interface{}{
		"preferred_method": "nequi",
		"payout":           map[string]string{"phone_number": "3001234567"},
	})

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUpdateSettings_RejectsUnknownMethod(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPut, "/api/v1/wallet/settings", sellerToken, map[string]interface{}{"preferred_method": "paypal"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetSeller_Success(t *testing.T) {
	h := newHarness(t)
	h.wallets.EXPECT().GetSeller(gomock.Any(), h.sellerID).Return(&domain.Seller{
		ID:    h.sellerID,
		Name:  "Tienda Ana",
		Stats: domain.SellerStats{SalesCount: 3},
	}, nil)

	w := h.do(http.MethodGet, "/api/v1/seller", sellerToken, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Tienda Ana", decode(t, w).Data["name"])
}

// --- Withdrawals ---

func TestRequestWithdrawal_Success(t *testing.T) {
	h := newHarness(t)

	h.withdrawals.EXPECT().RequestWithdrawal(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req ports.WithdrawalRequest) (*ports.WithdrawalResult, error) {
			assert.Equal(t, h.sellerID, req.SellerID)
			assert.True(t, req.Amount.Equal(decimal.NewFromInt(50000)))
			assert.Equal(t, domain.PayoutMethodBankTransfer, req.Method)
			assert.Equal(t, "wd-2025-01", req.IdempotencyKey)
			return &ports.WithdrawalResult{
				Movement:   &domain.Movement{ID: uuid.New(), Type: domain.MovementWithdrawal, Status: domain.MovementStatusPending},
				NewBalance: decimal.NewFromInt(10000),
			}, nil
		})

	w := h.do(http.MethodPost, "/api/v1/wallet/withdrawals", sellerToken,
		`{"amount":"50000","method":"bank_transfer"}`, HeaderIdempotencyKey, "wd-2025-01")

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "10000", decode(t, w).Data["new_balance"])
}

func TestRequestWithdrawal_BusinessErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
		reason string
	}{
		{"insufficient funds", apperror.ErrInsufficientFunds(), http.StatusUnprocessableEntity, "LED_001", "insufficient_funds"},
		{"below minimum", apperror.ErrBelowMinimumWithdrawal("50000"), http.StatusUnprocessableEntity, "VAL_003", "validation"},
		{"inactive wallet", apperror.ErrWalletInactive(), http.StatusForbidden, "LED_010", "conflict"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.withdrawals.EXPECT().RequestWithdrawal(gomock.Any(), gomock.Any()).Return(nil, tt.err)

			w := h.do(http.MethodPost, "/api/v1/wallet/withdrawals", sellerToken, `{"amount":"70000"}`)

			assert.Equal(t, tt.status, w.Code)
			env := decode(t, w)
			assert.Equal(t, tt.code, env.ErrorCode)
			assert.Equal(t, tt.reason, env.Reason)
		})
	}
}

func TestRequestWithdrawal_InvalidInput(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/v1/wallet/withdrawals", sellerToken, `{"amount":"0"}`).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/v1/wallet/withdrawals", sellerToken, `{"amount":"-10"}`).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/v1/wallet/withdrawals", sellerToken, `not json`).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/v1/wallet/withdrawals", sellerToken,
		`{"amount":"100"}`, HeaderIdempotencyKey, strings.Repeat("k", 65)).Code)
}

// --- Orders ---

func TestCreateOrder_Success(t *testing.T) {
	h := newHarness(t)
	productID := uuid.New()

	h.orders.EXPECT().CreateOrder(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req ports.CreateOrderRequest) (*domain.Order, error) {
			assert.Equal(t, h.sellerID, req.SellerID)
			assert.Equal(t, "ORD-77", req.Reference)
			require.Len(t, req.Items, 1)
			assert.Equal(t, productID, req.Items[0].ProductID)
			assert.Equal(t, 2, req.Items[0].Quantity)
			assert.Equal(t, "Ana", req.Customer.Name)
			assert.True(t, req.CreatePaymentLink)
			return &domain.Order{ID: uuid.New(), Reference: req.Reference, Status: domain.OrderStatusPaymentPending}, nil
		})

	w := h.do(http.MethodPost, "/api/v1/orders", sellerToken, map[string]interface{}{
		"reference":           "ORD-77",
		"items":               []map[string]interface{}{{"product_id": productID.String(), "quantity": 2}},
		"customer":            map[string]string{"name": " Ana "},
		"create_payment_link": true,
	})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "payment_pending", decode(t, w).Data["status"])
}

func TestCreateOrder_DuplicateReference(t *testing.T) {
	h := newHarness(t)
	h.orders.EXPECT().CreateOrder(gomock.Any(), gomock.Any()).Return(nil, apperror.ErrDuplicateReference())

	w := h.do(http.MethodPost, "/api/v1/orders", sellerToken, map[string]interface{}{
		"reference": "ORD-77",
		"items":     []map[string]interface{}{{"product_id": uuid.NewString(), "quantity": 1}},
		"customer":  map[string]string{"name": "Ana"},
	})

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "LED_002", decode(t, w).ErrorCode)
}

func TestCreateOrder_Validation(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "/api/v1/orders", sellerToken, map[string]interface{}{
		"reference": "ORD 77",
		"items":     []map[string]interface{}{},
		"customer":  map[string]string{"name": "Ana"},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetOrder_NotFound(t *testing.T) {
	h := newHarness(t)
	orderID := uuid.New()
	h.orders.EXPECT().GetOrder(gomock.Any(), h.sellerID, orderID).Return(nil, apperror.ErrNotFound("order"))

	w := h.do(http.MethodGet, "/api/v1/orders/"+orderID.String(), sellerToken, nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeliver_Success(t *testing.T) {
	h := newHarness(t)
	orderID := uuid.New()
	wallet := sampleWallet(h.sellerID)

	h.settlement.EXPECT().ConfirmDelivery(gomock.Any(), ports.DeliveryRequest{
		SellerID:   h.sellerID,
		OrderID:    orderID,
		Notes:      "left with doorman",
		Photos:     []string{"https://cdn.example.com/p.jpg"},
		ReceivedBy: "Carlos",
	}).Return(&ports.SettlementResult{
		DepositedAmount: decimal.NewFromInt(8000),
		DepositedPoints: 9,
		Shortfall:       decimal.Zero,
		Wallet:          wallet,
		Order:           &domain.Order{ID: orderID, Status: domain.OrderStatusDelivered},
	}, nil)

	w := h.do(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/deliver", sellerToken, map[string]interface{}{
		"notes":       "left with doorman",
		"photos":      []string{"https://cdn.example.com/p.jpg"},
		"received_by": "Carlos",
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decode(t, w).Data
	assert.Equal(t, "8000", data["deposited_amount"])
	assert.Equal(t, float64(9), data["deposited_points"])
	assert.Equal(t, "60000", data["balance"])
}

func TestDeliver_EmptyBody(t *testing.T) {
	h := newHarness(t)
	orderID := uuid.New()

	h.settlement.EXPECT().ConfirmDelivery(gomock.Any(), ports.DeliveryRequest{SellerID: h.sellerID, OrderID: orderID}).
		Return(nil, apperror.ErrAlreadyDelivered())

	w := h.do(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/deliver", sellerToken, nil)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "LED_003", decode(t, w).ErrorCode)
}

func TestDeliver_InvalidID(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "/api/v1/orders/not-a-uuid/deliver", sellerToken, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateStatus_Advance(t *testing.T) {
	h := newHarness(t)
	orderID := uuid.New()
	h.settlement.EXPECT().AdvanceOrder(gomock.Any(), h.sellerID, orderID, domain.OrderStatusShipped).
		Return(&domain.Order{ID: orderID, Status: domain.OrderStatusShipped}, nil)

	w := h.do(http.MethodPatch, "/api/v1/orders/"+orderID.String()+"/status", sellerToken, `{"status":"shipped"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "shipped", decode(t, w).Data["status"])
}

func TestUpdateStatus_CancelKeepsReason(t *testing.T) {
	h := newHarness(t)
	orderID := uuid.New()
	h.settlement.EXPECT().CancelOrder(gomock.Any(), h.sellerID, orderID, "customer changed mind").
		Return(&domain.Order{ID: orderID, Status: domain.OrderStatusCancelled}, nil)

	w := h.do(http.MethodPatch, "/api/v1/orders/"+orderID.String()+"/status", sellerToken,
		`{"status":"cancelled","reason":"customer changed mind"}`)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUpdateStatus_DeliveredNotAllowedHere(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPatch, "/api/v1/orders/"+uuid.NewString()+"/status", sellerToken, `{"status":"delivered"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateStatus_InvalidTransition(t *testing.T) {
	h := newHarness(t)
	h.settlement.EXPECT().AdvanceOrder(gomock.Any(), gomock.Any(), gomock.Any(), domain.OrderStatusConfirmed).
		Return(nil, apperror.ErrInvalidTransition("delivered", "confirmed"))

	w := h.do(http.MethodPatch, "/api/v1/orders/"+uuid.NewString()+"/status", sellerToken, `{"status":"confirmed"}`)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "LED_007", decode(t, w).ErrorCode)
}

func TestSyncPayment(t *testing.T) {
	h := newHarness(t)
	orderID := uuid.New()
	h.webhooks.EXPECT().SyncPayment(gomock.Any(), h.sellerID, orderID).
		Return(&domain.Order{ID: orderID, PaymentStatus: domain.PaymentStatusApproved}, nil)

	w := h.do(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/sync", sellerToken, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "approved", decode(t, w).Data["payment_status"])
}

// --- Admin ---

func TestAdmin_SellerForbidden(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "/api/v1/admin/withdrawals/"+uuid.NewString()+"/approve", sellerToken, nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "SEC_003", decode(t, w).ErrorCode)
}

func TestAdmin_ApproveWithdrawal(t *testing.T) {
	h := newHarness(t)
	movementID := uuid.New()
	h.withdrawals.EXPECT().ApproveWithdrawal(gomock.Any(), movementID, "admin:"+h.adminID.String()).
		Return(&domain.Movement{ID: movementID, Status: domain.MovementStatusApproved}, nil)

	w := h.do(http.MethodPost, "/api/v1/admin/withdrawals/"+movementID.String()+"/approve", adminToken, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "approved", decode(t, w).Data["status"])
}

func TestAdmin_ApproveNotReviewable(t *testing.T) {
	h := newHarness(t)
	h.withdrawals.EXPECT().ApproveWithdrawal(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, apperror.ErrMovementNotReviewable())

	w := h.do(http.MethodPost, "/api/v1/admin/withdrawals/"+uuid.NewString()+"/approve", adminToken, nil)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAdmin_RejectWithdrawal(t *testing.T) {
	h := newHarness(t)
	movementID := uuid.New()
	h.withdrawals.EXPECT().RejectWithdrawal(gomock.Any(), movementID, "admin:"+h.adminID.String(), "account closed").
		Return(&ports.WithdrawalResult{
			Movement:   &domain.Movement{ID: movementID, Status: domain.MovementStatusRejected},
			NewBalance: decimal.NewFromInt(60000),
		}, nil)

	w := h.do(http.MethodPost, "/api/v1/admin/withdrawals/"+movementID.String()+"/reject", adminToken, `{"reason":"account closed"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "60000", decode(t, w).Data["new_balance"])
}

func TestAdmin_RejectRequiresReason(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "/api/v1/admin/withdrawals/"+uuid.NewString()+"/reject", adminToken, `{}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- Audit wiring ---

func TestRouter_AuditsWithdrawal(t *testing.T) {
	var audit *mocks.MockAuditService
	h := newHarness(t, func(d *RouterDeps) {
		audit = mocks.NewMockAuditService(gomock.NewController(t))
		d.AuditSvc = audit
	})

	h.withdrawals.EXPECT().RequestWithdrawal(gomock.Any(), gomock.Any()).Return(&ports.WithdrawalResult{
		Movement: &domain.Movement{ID: uuid.New()},
	}, nil)

	var entry *domain.AuditLog
	audit.EXPECT().Log(gomock.Any(), gomock.Any()).Do(func(_ context.Context, e *domain.AuditLog) { entry = e })

	w := h.do(http.MethodPost, "/api/v1/wallet/withdrawals", sellerToken, `{"amount":"50000"}`)

	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, entry)
	assert.Equal(t, domain.AuditActionWithdrawal, entry.Action)
	require.NotNil(t, entry.SellerID)
	assert.Equal(t, h.sellerID, *entry.SellerID)
}

// --- Health & metrics ---

func TestHealthCheck_AllHealthy(t *testing.T) {
	ctrl := gomock.NewController(t)
	pg := mocks.NewMockHealthChecker(ctrl)
	pg.EXPECT().Name().Return("postgresql").AnyTimes()
	pg.EXPECT().Ping(gomock.Any()).Return(nil)

	h := newHarness(t, func(d *RouterDeps) { d.HealthCheckers = []ports.HealthChecker{pg} })
	w := h.do(http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
}

func TestHealthCheck_Degraded(t *testing.T) {
	ctrl := gomock.NewController(t)
	pg := mocks.NewMockHealthChecker(ctrl)
	pg.EXPECT().Name().Return("postgresql").AnyTimes()
	pg.EXPECT().Ping(gomock.Any()).Return(nil)
	rd := mocks.NewMockHealthChecker(ctrl)
	rd.EXPECT().Name().Return("redis").AnyTimes()
	rd.EXPECT().Ping(gomock.Any()).Return(errors.New("connection refused"))

	h := newHarness(t, func(d *RouterDeps) { d.HealthCheckers = []ports.HealthChecker{pg, rd} })
	w := h.do(http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp struct {
		Status       string               `json:"status"`
		Dependencies map[string]depStatus `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "healthy", resp.Dependencies["postgresql"].Status)
	assert.Equal(t, "unhealthy", resp.Dependencies["redis"].Status)
	assert.Equal(t, "connection refused", resp.Dependencies["redis"].Error)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "ledger_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	h := newHarness(t, func(d *RouterDeps) { d.Gatherer = reg })
	w := h.do(http.MethodGet, "/metrics", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ledger_test_total 1")
}

func TestMetricsEndpoint_DisabledWithoutGatherer(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/metrics", "", nil).Code)
}
