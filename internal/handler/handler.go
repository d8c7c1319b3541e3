// Package handler exposes order quoting and placement over HTTP.
package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/electro-checkout/internal/domain/order"
)

const maxBodyBytes = 1 << 20

// OrderService is the domain API served by Handler.
type OrderService interface {
	Quote(ctx context.Context, req order.PlaceOrderRequest) (*order.Assembly, error)
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.Order, error)
}

// Handler serves the checkout API.
type Handler struct {
	orders OrderService
}

// NewHandler creates a Handler backed by the order service.
func NewHandler(orders OrderService) *Handler {
	return &Handler{orders: orders}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/quote", h.Quote)
	mux.HandleFunc("POST /api/orders", h.PlaceOrder)
}

// Quote prices a cart without side effects.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	req, ok := readRequest(w, r)
	if !ok {
		return
	}
	a, err := h.orders.Quote(r.Context(), req)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeAssembly(a))
}

// PlaceOrder places the order and redeems its coupon.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	req, ok := readRequest(w, r)
	if !ok {
		return
	}
	o, err := h.orders.PlaceOrder(r.Context(), req)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, encodeOrder(o))
}

func readRequest(w http.ResponseWriter, r *http.Request) (order.PlaceOrderRequest, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, apiError{Message: "request body too large"})
			return order.PlaceOrderRequest{}, false
		}
		writeError(w, http.StatusBadRequest, apiError{Message: "read request body"})
		return order.PlaceOrderRequest{}, false
	}

	req, err := decodeOrderRequest(data)
	if err != nil {
		zctx.From(r.Context()).Debug("Malformed request", zap.Error(err))
		writeError(w, http.StatusBadRequest, apiError{Message: "malformed request: " + err.Error()})
		return order.PlaceOrderRequest{}, false
	}
	return req, true
}
