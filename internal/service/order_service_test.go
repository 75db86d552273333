package service

import (
	"context"
	"errors"
	"testing"

	"reseller-ledger/internal/core/domain"
	"reseller-ledger/internal/core/ports"
	"reseller-ledger/internal/core/ports/mocks"
	"reseller-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestOrderService_CreateOrder_Validation(t *testing.T) {
	ctrl := gomock.NewController(t)
	productRepo := mocks.NewMockProductRepository(ctrl)
	svc := NewOrderService(newTestCalculator(t), productRepo, mocks.NewMockOrderRepository(ctrl),
		mocks.NewMockPaymentTransactionRepository(ctrl), nil, mocks.NewMockDBTransactor(ctrl), PaymentLinkConfig{}, newTestLogger())
	ctx := context.Background()
	sellerID := uuid.New()
	productID := uuid.New()

	tests := []struct {
		name string
		req  ports.CreateOrderRequest
	}{
		{"missing seller", ports.CreateOrderRequest{Reference: "R", Items: []ports.OrderItemRequest{{ProductID: productID, Quantity: 1}}}},
		{"blank reference", ports.CreateOrderRequest{SellerID: sellerID, Reference: "  ", Items: []ports.OrderItemRequest{{ProductID: productID, Quantity: 1}}}},
		{"no items", ports.CreateOrderRequest{SellerID: sellerID, Reference: "R"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateOrder(ctx, tt.req)
			assert.True(t, apperror.IsKind(err, apperror.KindValidation))
		})
	}

	productRepo.EXPECT().GetByID(gomock.Any(), productID).Return(&domain.Product{ID: productID, Price: dec("1000"), IsActive: false}, nil)
	_, err := svc.CreateOrder(ctx, ports.CreateOrderRequest{SellerID: sellerID, Reference: "R", Items: []ports.OrderItemRequest{{ProductID: productID, Quantity: 1}}})
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound), "inactive products cannot be sold")

	productRepo.EXPECT().GetByID(gomock.Any(), productID).Return(&domain.Product{ID: productID, Price: dec("1000"), IsActive: true}, nil)
	_, err = svc.CreateOrder(ctx, ports.CreateOrderRequest{SellerID: sellerID, Reference: "R", Items: []ports.OrderItemRequest{{ProductID: productID, Quantity: 0}}})
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))
}

func TestOrderService_CreateOrder_DuplicateReference(t *testing.T) {
	ctrl := gomock.NewController(t)
	productRepo := mocks.NewMockProductRepository(ctrl)
	orderRepo := mocks.NewMockOrderRepository(ctrl)
	transactor := mocks.NewMockDBTransactor(ctrl)
	svc := NewOrderService(newTestCalculator(t), productRepo, orderRepo,
		mocks.NewMockPaymentTransactionRepository(ctrl), nil, transactor, PaymentLinkConfig{}, newTestLogger())
	productID := uuid.New()

	productRepo.EXPECT().GetByID(gomock.Any(), productID).Return(&domain.Product{ID: productID, Price: dec("45000"), CostPrice: decPtr("25000"), IsActive: true}, nil)
	transactor.EXPECT().Begin(gomock.Any()).Return(&mockTx{}, nil)
	orderRepo.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).Return(ports.ErrUniqueViolation)

	_, err := svc.CreateOrder(context.Background(), ports.CreateOrderRequest{
		SellerID: uuid.New(), Reference: "WOMPI-1",
		Items: []ports.OrderItemRequest{{ProductID: productID, Quantity: 1}},
	})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, "LED_002"))
}

func TestOrderService_CreateOrder_PricesLines(t *testing.T) {
	h := newLedgerHarness(t)

	order, err := h.orders.CreateOrder(context.Background(), ports.CreateOrderRequest{
		SellerID:  h.sellerID,
		Reference: " ORD-7 ",
		Items: []ports.OrderItemRequest{
			{ProductID: h.product.ID, Quantity: 2},
			{ProductID: h.product.ID, Quantity: 1, UnitPrice: decPtr("50000"), Commission: decPtr("7000")},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "ORD-7", order.Reference)
	assert.Equal(t, domain.OrderStatusCreated, order.Status)
	assert.True(t, order.Total.Equal(dec("140000")))
	assert.True(t, order.CommissionTotal.Equal(dec("15000")))
	assert.Equal(t, int64(9+5), order.PointsTotal)
	assert.True(t, order.Items[1].Explicit)

	payment, err := h.paymentRepo.GetByOrderID(context.Background(), order.ID)
	require.NoError(t, err)
	require.NotNil(t, payment)
	assert.Equal(t, "ORD-7", payment.Reference)
	assert.True(t, payment.Amount.Equal(order.Total))
}

func TestOrderService_CreateOrder_AttachesPaymentLink(t *testing.T) {
	h := newLedgerHarness(t)
	ctrl := gomock.NewController(t)
	gateway := mocks.NewMockPaymentGateway(ctrl)
	svc := NewOrderService(newTestCalculator(t), productRepoFor(h), h.orderRepo, h.paymentRepo, gateway, h.store,
		PaymentLinkConfig{Currency: "COP", RedirectURL: "https://shop.example/thanks"}, newTestLogger())

	gateway.EXPECT().CreatePaymentLink(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req ports.PaymentLinkRequest) (*ports.PaymentLink, error) {
			assert.Equal(t, "ORD-LINK", req.Reference)
			assert.True(t, req.Amount.Equal(dec("90000")))
			assert.Equal(t, "COP", req.Currency)
			return &ports.PaymentLink{ID: "link-1", URL: "https://checkout.example/l/link-1"}, nil
		})

	order, err := svc.CreateOrder(context.Background(), ports.CreateOrderRequest{
		SellerID: h.sellerID, Reference: "ORD-LINK", CreatePaymentLink: true,
		Items: []ports.OrderItemRequest{{ProductID: h.product.ID, Quantity: 2}},
	})
	require.NoError(t, err)
	require.NotNil(t, order.PaymentLinkID)
	assert.Equal(t, "link-1", *order.PaymentLinkID)

	stored := h.order(t, order.ID)
	require.NotNil(t, stored.PaymentURL)
	assert.Equal(t, "https://checkout.example/l/link-1", *stored.PaymentURL)
}

func TestOrderService_CreateOrder_LinkFailureKeepsOrder(t *testing.T) {
	h := newLedgerHarness(t)
	ctrl := gomock.NewController(t)
	gateway := mocks.NewMockPaymentGateway(ctrl)
	svc := NewOrderService(newTestCalculator(t), productRepoFor(h), h.orderRepo, h.paymentRepo, gateway, h.store,
		PaymentLinkConfig{Currency: "COP"}, newTestLogger())

	gateway.EXPECT().CreatePaymentLink(gomock.Any(), gomock.Any()).Return(nil, errors.New("gateway down"))

	order, err := svc.CreateOrder(context.Background(), ports.CreateOrderRequest{
		SellerID: h.sellerID, Reference: "ORD-NOLINK", CreatePaymentLink: true,
		Items: []ports.OrderItemRequest{{ProductID: h.product.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Nil(t, order.PaymentLinkID)
	assert.Equal(t, "ORD-NOLINK", h.order(t, order.ID).Reference)
}

func TestOrderService_GetOrder_HidesOtherSellers(t *testing.T) {
	h := newLedgerHarness(t)
	order := h.createOrder(t, "ORD-1", 1, nil)

	got, err := h.orders.GetOrder(context.Background(), h.sellerID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = h.orders.GetOrder(context.Background(), uuid.New(), order.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))
}
