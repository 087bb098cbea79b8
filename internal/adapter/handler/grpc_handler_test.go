package handler

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/rl1809/order-service/internal/adapter/handler/pb"
	"github.com/rl1809/order-service/internal/adapter/storage"
	"github.com/rl1809/order-service/internal/core/domain"
)

const bufSize = 1024 * 1024

type grpcHandlerSuite struct {
	suite.Suite

	listener *bufconn.Listener
	server   *grpc.Server
	conn     *grpc.ClientConn
	client   pb.OrderServiceClient
	store    *storage.MemoryStore
}

func TestGRPCHandlerSuite(t *testing.T) {
	defer goleak.VerifyNone(t)

	suite.Run(t, new(grpcHandlerSuite))
}

func (s *grpcHandlerSuite) SetupTest() {
	svc, store := newTestService(s.T())
	s.store = store

	s.listener = bufconn.Listen(bufSize)
	s.server = grpc.NewServer()
	pb.RegisterOrderServiceServer(s.server, NewGRPCHandler(svc))

	go func() { _ = s.server.Serve(s.listener) }()

	var err error
	s.conn, err = grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return s.listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	s.Require().NoError(err)

	s.client = pb.NewOrderServiceClient(s.conn)
}

func (s *grpcHandlerSuite) TearDownTest() {
	if s.conn != nil {
		s.conn.Close()
	}
	if s.server != nil {
		s.server.GracefulStop()
	}
	if s.listener != nil {
		s.listener.Close()
	}
}

func (s *grpcHandlerSuite) TestCreateAndGetOrder() {
	ctx := context.Background()

	resp, err := s.client.CreateOrder(ctx, &pb.CreateOrderRequest{
		CustomerId: "c1",
		Lines: []*pb.OrderLineRequest{
			{ProductId: "P1", Quantity: 2},
			{ProductId: "P2", Quantity: 1},
		},
	})
	s.Require().NoError(err)

	order := resp.GetOrder()
	s.NotEmpty(order.GetId())
	s.Equal("c1", order.CustomerId)
	s.Equal("pending", order.Status)
	s.Equal(int64(3), order.TotalQuantity)
	s.Require().Len(order.GetLines(), 2)
	s.Equal("P1", order.Lines[0].ProductId)
	s.Equal(&pb.Money{Amount: "10.00", Currency: "USD"}, order.Lines[0].Price)

	stock, _ := s.store.Stock("P2")
	s.Equal(0, stock)

	got, err := s.client.GetOrder(ctx, &pb.GetOrderRequest{OrderId: order.Id})
	s.Require().NoError(err)
	s.Equal(order, got.GetOrder())
}

func (s *grpcHandlerSuite) TestErrorCodes() {
	tests := []struct {
		name     string
		req      *pb.CreateOrderRequest
		wantCode codes.Code
	}{
		{
			name:     "empty request",
			req:      &pb.CreateOrderRequest{},
			wantCode: codes.InvalidArgument,
		},
		{
			name: "non-positive quantity",
			req: &pb.CreateOrderRequest{
				CustomerId: "c1",
				Lines:      []*pb.OrderLineRequest{{ProductId: "P1", Quantity: 0}},
			},
			wantCode: codes.InvalidArgument,
		},
		{
			name: "unknown customer",
			req: &pb.CreateOrderRequest{
				CustomerId: "ghost",
				Lines:      []*pb.OrderLineRequest{{ProductId: "P1", Quantity: 1}},
			},
			wantCode: codes.NotFound,
		},
		{
			name: "unknown product",
			req: &pb.CreateOrderRequest{
				CustomerId: "c1",
				Lines:      []*pb.OrderLineRequest{{ProductId: "X9", Quantity: 1}},
			},
			wantCode: codes.NotFound,
		},
		{
			name: "insufficient stock",
			req: &pb.CreateOrderRequest{
				CustomerId: "c1",
				Lines:      []*pb.OrderLineRequest{{ProductId: "P2", Quantity: 2}},
			},
			wantCode: codes.FailedPrecondition,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.client.CreateOrder(context.Background(), tt.req)
			s.Require().Error(err)

			st, ok := status.FromError(err)
			s.Require().True(ok)
			s.Equal(tt.wantCode, st.Code(), st.Message())
		})
	}

	s.Equal(0, s.store.OrderCount())
}

func (s *grpcHandlerSuite) TestDuplicateRequestID() {
	req := &pb.CreateOrderRequest{
		RequestId:  "req-7",
		CustomerId: "c1",
		Lines:      []*pb.OrderLineRequest{{ProductId: "P1", Quantity: 1}},
	}

	_, err := s.client.CreateOrder(context.Background(), req)
	s.Require().NoError(err)

	_, err = s.client.CreateOrder(context.Background(), req)
	s.Equal(codes.AlreadyExists, status.Code(err))
}

func (s *grpcHandlerSuite) TestGetOrderNotFound() {
	_, err := s.client.GetOrder(context.Background(), &pb.GetOrderRequest{OrderId: "missing"})
	s.Equal(codes.NotFound, status.Code(err))

	_, err = s.client.GetOrder(context.Background(), &pb.GetOrderRequest{})
	s.Equal(codes.InvalidArgument, status.Code(err))
}

func TestToPBOrder_WideQuantitiesAndPrecisePrices(t *testing.T) {
	price, err := domain.NewMoney("0.0049", "USD")
	if err != nil {
		t.Fatal(err)
	}

	order := toPBOrder(domain.Order{
		ID:     "o1",
		Status: domain.OrderStatusPending,
		Lines: []domain.OrderLine{
			{ProductID: "P1", Quantity: 3_000_000_000, Price: price},
			{ProductID: "P2", Quantity: 1, Price: price},
		},
	})

	if got := order.Lines[0].Quantity; got != 3_000_000_000 {
		t.Errorf("expected quantity 3000000000, got %d", got)
	}
	if got := order.TotalQuantity; got != 3_000_000_001 {
		t.Errorf("expected total quantity 3000000001, got %d", got)
	}
	if got := order.Lines[0].Price.Amount; got != "0.0049" {
		t.Errorf("expected price 0.0049, got %s", got)
	}
}
