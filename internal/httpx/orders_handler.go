package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/agrostore/order-core/internal/ids"
	"github.com/agrostore/order-core/internal/logging"
	"github.com/agrostore/order-core/internal/orders"
	"github.com/agrostore/order-core/internal/redisx"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	msgOrderCreated   = "Order created successfully"
	msgCreateFailed   = "Gagal membuat pesanan"
	msgRetryLater     = "Gagal membuat pesanan, silakan coba lagi"
	msgOrderNotFound  = "Order not found"
	msgUserIDRequired = "User ID is required"
	msgLoadFailed     = "Gagal memuat pesanan"

	headerIdempotencyKey = "Idempotency-Key"
)

type OrderService interface {
	CreateOrder(ctx context.Context, req orders.CreateOrderRequest) (orders.Result, error)
	GetOrder(ctx context.Context, id string) (orders.Order, error)
	ListOrders(ctx context.Context, userID string) ([]orders.Order, error)
}

type OrdersHandler struct {
	Orders OrderService
	Cache  *redisx.OrderCache // optional
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.FromContext(ctx)

	var req orders.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid json"})
		return
	}

	// Fast-path idempotency via Redis (DB tetap jadi kebenaran)
	idemKey := strings.TrimSpace(r.Header.Get(headerIdempotencyKey))
	if idemKey != "" && req.UserID != "" {
		id, ok, err := h.Cache.IdempotentOrderID(ctx, req.UserID, idemKey)
		if err != nil {
			log.Warn("idempotency lookup", zap.Error(err))
		}
		if ok {
			log.Info("idempotent replay", zap.String("order_id", id))
			writeJSON(w, http.StatusOK, createOrderResp{Message: msgOrderCreated, OrderID: id})
			return
		}
	}

	res, err := h.Orders.CreateOrder(ctx, req)
	if err != nil {
		writeError(w, log, err, msgCreateFailed)
		return
	}

	if idemKey != "" {
		if err := h.Cache.RememberIdempotency(ctx, req.UserID, idemKey, res.OrderID); err != nil {
			log.Warn("idempotency store", zap.String("order_id", res.OrderID), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, createOrderResp{Message: msgOrderCreated, OrderID: res.OrderID})
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: msgUserIDRequired})
		return
	}
	list, err := h.Orders.ListOrders(r.Context(), userID)
	if err != nil {
		writeError(w, logging.FromContext(r.Context()), err, msgLoadFailed)
		return
	}
	out := make([]orderView, 0, len(list))
	for _, o := range list {
		out = append(out, toOrderView(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.FromContext(ctx)
	orderID := chi.URLParam(r, "id")

	// 1) coba cache
	if b, ok, err := h.Cache.Order(ctx, orderID); err != nil {
		log.Warn("order cache get", zap.String("order_id", orderID), zap.Error(err))
	} else if ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(b)
		return
	}

	// 2) fallback DB
	o, err := h.Orders.GetOrder(ctx, orderID)
	if err != nil {
		writeError(w, log, err, msgLoadFailed)
		return
	}
	b, err := json.Marshal(toOrderView(o))
	if err != nil {
		writeError(w, log, err, msgLoadFailed)
		return
	}
	if err := h.Cache.PutOrder(ctx, orderID, b); err != nil {
		log.Warn("order cache put", zap.String("order_id", orderID), zap.Error(err))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

// writeError maps domain errors to responses. Causes of 500s are logged,
// never echoed to the client.
func writeError(w http.ResponseWriter, log *zap.Logger, err error, fallback string) {
	var (
		verr *orders.ValidationError
		serr *orders.StockError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResp{Error: verr.Error(), Details: verr.Problems})
	case errors.As(err, &serr):
		writeJSON(w, http.StatusBadRequest, errorResp{Error: orders.MsgInsufficientStock, Details: serr.Details()})
	case errors.Is(err, orders.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, errorResp{Error: msgOrderNotFound})
	case errors.Is(err, ids.ErrIDCollisionExhausted):
		log.Error("order id allocation exhausted", zap.Error(err))
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusInternalServerError, errorResp{Error: msgRetryLater})
	default:
		log.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp{Error: fallback})
	}
}
