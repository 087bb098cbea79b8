// Package pb holds the OrderService wire messages and service descriptor.
//
// Messages travel as JSON, not protobuf: the service is served under the gRPC
// content-subtype "json" (content-type application/grpc+json). Clients built with
// NewOrderServiceClient send it automatically; other clients must call with
// grpc.CallContentSubtype(CodecName) or set that content-type themselves.
// Plain protobuf clients are not supported.
package pb

type OrderLineRequest struct {
	ProductId string `json:"product_id,omitempty"`
	Quantity  int64  `json:"quantity,omitempty"`
}

func (x *OrderLineRequest) GetProductId() string {
	if x != nil {
		return x.ProductId
	}
	return ""
}

func (x *OrderLineRequest) GetQuantity() int64 {
	if x != nil {
		return x.Quantity
	}
	return 0
}

type CreateOrderRequest struct {
	RequestId  string              `json:"request_id,omitempty"`
	CustomerId string              `json:"customer_id,omitempty"`
	Lines      []*OrderLineRequest `json:"lines,omitempty"`
}

func (x *CreateOrderRequest) GetRequestId() string {
	if x != nil {
		return x.RequestId
	}
	return ""
}

func (x *CreateOrderRequest) GetCustomerId() string {
	if x != nil {
		return x.CustomerId
	}
	return ""
}

func (x *CreateOrderRequest) GetLines() []*OrderLineRequest {
	if x != nil {
		return x.Lines
	}
	return nil
}

type Money struct {
	Amount   string `json:"amount,omitempty"`
	Currency string `json:"currency,omitempty"`
}

type OrderLine struct {
	ProductId string `json:"product_id,omitempty"`
	Quantity  int64  `json:"quantity,omitempty"`
	Price     *Money `json:"price,omitempty"`
}

type Order struct {
	Id            string       `json:"id,omitempty"`
	CustomerId    string       `json:"customer_id,omitempty"`
	Status        string       `json:"status,omitempty"`
	Lines         []*OrderLine `json:"lines,omitempty"`
	TotalQuantity int64        `json:"total_quantity,omitempty"`
	// CreatedAt is RFC 3339 with nanoseconds
	CreatedAt string `json:"created_at,omitempty"`
}

func (x *Order) GetId() string {
	if x != nil {
		return x.Id
	}
	return ""
}

func (x *Order) GetLines() []*OrderLine {
	if x != nil {
		return x.Lines
	}
	return nil
}

type CreateOrderResponse struct {
	Order *Order `json:"order,omitempty"`
}

func (x *CreateOrderResponse) GetOrder() *Order {
	if x != nil {
		return x.Order
	}
	return nil
}

type GetOrderRequest struct {
	OrderId string `json:"order_id,omitempty"`
}

func (x *GetOrderRequest) GetOrderId() string {
	if x != nil {
		return x.OrderId
	}
	return ""
}

type GetOrderResponse struct {
	Order *Order `json:"order,omitempty"`
}

func (x *GetOrderResponse) GetOrder() *Order {
	if x != nil {
		return x.Order
	}
	return nil
}
