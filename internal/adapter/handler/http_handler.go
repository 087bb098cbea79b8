package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/samber/lo"

	"github.com/rl1809/order-service/internal/core/domain"
	"github.com/rl1809/order-service/internal/telemetry"
)

type orderService interface {
	CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
}

type HTTPHandler struct {
	orderService orderService
}

type CreateOrderHTTPRequest struct {
	RequestID  string                    `json:"request_id,omitempty"`
	CustomerID string                    `json:"customer_id"`
	Products   []OrderProductHTTPRequest `json:"products"`
}

type OrderProductHTTPRequest struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

type OrderHTTPResponse struct {
	ID            string              `json:"id"`
	CustomerID    string              `json:"customer_id"`
	Status        string              `json:"status"`
	Lines         []OrderLineHTTPItem `json:"lines"`
	TotalQuantity int                 `json:"total_quantity"`
	CreatedAt     time.Time           `json:"created_at"`
}

type OrderLineHTTPItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
	Currency  string `json:"currency"`
}

type ErrorHTTPResponse struct {
	Error ErrorHTTPBody `json:"error"`
}

type ErrorHTTPBody struct {
	Kind       string   `json:"kind"`
	Message    string   `json:"message"`
	ProductIDs []string `json:"product_ids,omitempty"`
}

func NewHTTPHandler(orderService orderService) *HTTPHandler {
	return &HTTPHandler{orderService: orderService}
}

// RegisterRoutes mounts the order API on r.
func (h *HTTPHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HealthCheck)
	r.Route("/api/orders", func(r chi.Router) {
		r.Post("/", h.CreateOrder)
		r.Get("/{orderID}", h.GetOrder)
	})
}

// NewRouter builds the chi router with request id, logging, tracing, CORS and
// a per-request timeout, and mounts h on it.
func NewRouter(h *HTTPHandler, logger *slog.Logger, corsOptions cors.Options, timeout time.Duration) *chi.Mux {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(telemetry.NewLoggerMiddleware(logger))
	router.Use(telemetry.NewTraceMiddleware)
	router.Use(cors.New(corsOptions).Handler)
	if timeout > 0 {
		router.Use(requestTimeout(timeout))
	}

	h.RegisterRoutes(router)

	return router
}

// requestTimeout bounds the context handed to the service. Unlike chi's Timeout
// it leaves the response to the handler, which maps the deadline to 503.
func requestTimeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (h *HTTPHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorHTTPResponse{Error: ErrorHTTPBody{
			Kind:    string(domain.KindInvalidRequest),
			Message: "invalid request body",
		}})
		return
	}

	order, err := h.orderService.CreateOrder(r.Context(), domain.CreateOrderRequest{
		RequestID:  req.RequestID,
		CustomerID: req.CustomerID,
		Lines: lo.Map(req.Products, func(p OrderProductHTTPRequest, _ int) domain.OrderLineRequest {
			return domain.OrderLineRequest{ProductID: p.ID, Quantity: p.Quantity}
		}),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Location", "/api/orders/"+order.ID)
	writeJSON(w, http.StatusCreated, toOrderHTTPResponse(order))
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderService.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderHTTPResponse(order))
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func toOrderHTTPResponse(order domain.Order) OrderHTTPResponse {
	return OrderHTTPResponse{
		ID:         order.ID,
		CustomerID: order.CustomerID,
		Status:     string(order.Status),
		Lines: lo.Map(order.Lines, func(l domain.OrderLine, _ int) OrderLineHTTPItem {
			return OrderLineHTTPItem{
				ProductID: l.ProductID,
				Quantity:  l.Quantity,
				Price:     l.Price.AmountString(),
				Currency:  l.Price.Currency.String(),
			}
		}),
		TotalQuantity: order.TotalQuantity(),
		CreatedAt:     order.CreatedAt,
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)

	writeJSON(w, httpStatus(kind), ErrorHTTPResponse{Error: ErrorHTTPBody{
		Kind:       string(kind),
		Message:    publicMessage(err),
		ProductIDs: domain.OffendingProductIDs(err),
	}})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Error writing response", "error", err)
	}
}
