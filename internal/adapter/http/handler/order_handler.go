package handler

import (
	"reseller-ledger/internal/adapter/http/dto"
	"reseller-ledger/internal/core/domain"
	"reseller-ledger/internal/core/ports"
	"reseller-ledger/pkg/apperror"
	"reseller-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// OrderHandler handles order intake and fulfilment endpoints.
type OrderHandler struct {
	orderSvc      ports.OrderService
	settlementSvc ports.SettlementService
	webhookSvc    ports.WebhookService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orderSvc ports.OrderService, settlementSvc ports.SettlementService, webhookSvc ports.WebhookService) *OrderHandler {
	return &OrderHandler{
		orderSvc:      orderSvc,
		settlementSvc: settlementSvc,
		webhookSvc:    webhookSvc,
	}
}

// Create handles POST /api/v1/orders.
func (h *OrderHandler) Create(c *gin.Context) {
	sellerID, ok := currentSeller(c)
	if !ok {
		return
	}

	var req dto.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	dto.SanitizeStruct(&req)

	in, err := req.ToPort(sellerID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid product id"))
		return
	}

	order, err := h.orderSvc.CreateOrder(c.Request.Context(), in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, order)
}

// Get handles GET /api/v1/orders/:id.
func (h *OrderHandler) Get(c *gin.Context) {
	sellerID, ok := currentSeller(c)
	if !ok {
		return
	}
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	order, err := h.orderSvc.GetOrder(c.Request.Context(), sellerID, orderID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, order)
}

// Deliver handles POST /api/v1/orders/:id/deliver.
func (h *OrderHandler) Deliver(c *gin.Context) {
	sellerID, ok := currentSeller(c)
	if !ok {
		return
	}
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	var req dto.DeliverRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, bindError(err))
			return
		}
	}
	dto.SanitizeStruct(&req)

	result, err := h.settlementSvc.ConfirmDelivery(c.Request.Context(), ports.DeliveryRequest{
		SellerID:   sellerID,
		OrderID:    orderID,
		Notes:      req.Notes,
		Photos:     req.Photos,
		Signature:  req.Signature,
		ReceivedBy: req.ReceivedBy,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewDeliveryResponse(result))
}

// UpdateStatus handles PATCH /api/v1/orders/:id/status. Cancellation goes
// through CancelOrder so the reason is recorded.
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	sellerID, ok := currentSeller(c)
	if !ok {
		return
	}
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	var req dto.UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	dto.SanitizeStruct(&req)

	var (
		order *domain.Order
		err   error
	)
	status := domain.OrderStatus(req.Status)
	if status == domain.OrderStatusCancelled {
		order, err = h.settlementSvc.CancelOrder(c.Request.Context(), sellerID, orderID, req.Reason)
	} else {
		order, err = h.settlementSvc.AdvanceOrder(c.Request.Context(), sellerID, orderID, status)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, order)
}

// Sync handles POST /api/v1/orders/:id/sync.
func (h *OrderHandler) Sync(c *gin.Context) {
	sellerID, ok := currentSeller(c)
	if !ok {
		return
	}
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	order, err := h.webhookSvc.SyncPayment(c.Request.Context(), sellerID, orderID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, order)
}
