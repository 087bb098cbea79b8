package handler

import (
	"context"
	"time"

	"github.com/samber/lo"
	"google.golang.org/grpc/status"

	"github.com/rl1809/order-service/internal/adapter/handler/pb"
	"github.com/rl1809/order-service/internal/core/domain"
)

type GRPCHandler struct {
	pb.UnimplementedOrderServiceServer
	orderService orderService
}

func NewGRPCHandler(orderService orderService) *GRPCHandler {
	return &GRPCHandler{orderService: orderService}
}

func (h *GRPCHandler) CreateOrder(ctx context.Context, req *pb.CreateOrderRequest) (*pb.CreateOrderResponse, error) {
	order, err := h.orderService.CreateOrder(ctx, domain.CreateOrderRequest{
		RequestID:  req.GetRequestId(),
		CustomerID: req.GetCustomerId(),
		Lines: lo.Map(req.GetLines(), func(l *pb.OrderLineRequest, _ int) domain.OrderLineRequest {
			return domain.OrderLineRequest{ProductID: l.GetProductId(), Quantity: int(l.GetQuantity())}
		}),
	})
	if err != nil {
		return nil, toStatusError(err)
	}

	return &pb.CreateOrderResponse{Order: toPBOrder(order)}, nil
}

func (h *GRPCHandler) GetOrder(ctx context.Context, req *pb.GetOrderRequest) (*pb.GetOrderResponse, error) {
	order, err := h.orderService.GetOrder(ctx, req.GetOrderId())
	if err != nil {
		return nil, toStatusError(err)
	}

	return &pb.GetOrderResponse{Order: toPBOrder(order)}, nil
}

func toStatusError(err error) error {
	return status.Error(grpcCode(domain.KindOf(err)), publicMessage(err))
}

func toPBOrder(order domain.Order) *pb.Order {
	return &pb.Order{
		Id:         order.ID,
		CustomerId: order.CustomerID,
		Status:     string(order.Status),
		Lines: lo.Map(order.Lines, func(l domain.OrderLine, _ int) *pb.OrderLine {
			return &pb.OrderLine{
				ProductId: l.ProductID,
				Quantity:  int64(l.Quantity),
				Price: &pb.Money{
					Amount:   l.Price.AmountString(),
					Currency: l.Price.Currency.String(),
				},
			}
		}),
		TotalQuantity: int64(order.TotalQuantity()),
		CreatedAt:     order.CreatedAt.Format(time.RFC3339Nano),
	}
}
