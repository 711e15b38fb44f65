package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/duende/internal/model"
	"github.com/dukerupert/duende/internal/store"
)

// OrderHandler is the ingest side of the order collection. Confirmed orders
// written here reach the scheduler through the store's subscription.
type OrderHandler struct {
	orders *store.OrderStore
	logger *slog.Logger
}

func NewOrderHandler(orders *store.OrderStore, logger *slog.Logger) *OrderHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderHandler{orders: orders, logger: logger}
}

type orderRequest struct {
	OrderNumber     string `json:"order_number"`
	DeliveryAt      string `json:"delivery_at"`
	DeliveryAddress string `json:"delivery_address"`
	Status          string `json:"status"`
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	status := model.OrderStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeMessage(w, http.StatusBadRequest, "invalid status")
		return
	}

	orders, err := h.orders.List(r.Context(), status)
	if err != nil {
		h.logger.Error("list orders", "error", err)
		writeMessage(w, http.StatusInternalServerError, "failed to list orders")
		return
	}
	if orders == nil {
		orders = []model.ConfirmedOrder{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetByNumber(r.Context(), r.PathValue("number"))
	if err != nil {
		h.logger.Error("get order", "error", err)
		writeMessage(w, http.StatusInternalServerError, "failed to get order")
		return
	}
	if order == nil {
		writeMessage(w, http.StatusNotFound, "order not found")
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// Upsert creates or replaces an order keyed by its number.
func (h *OrderHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	req.OrderNumber = strings.TrimSpace(req.OrderNumber)
	if req.OrderNumber == "" {
		writeMessage(w, http.StatusBadRequest, "order_number is required")
		return
	}
	deliveryAt, err := time.Parse(time.RFC3339, req.DeliveryAt)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "delivery_at must be RFC3339 format")
		return
	}
	status := model.OrderStatus(req.Status)
	if status == "" {
		status = model.OrderStatusPending
	}
	if !status.Valid() {
		writeMessage(w, http.StatusBadRequest, "invalid status")
		return
	}

	order, err := h.orders.Upsert(r.Context(), model.ConfirmedOrder{
		OrderNumber:     req.OrderNumber,
		DeliveryAt:      deliveryAt,
		DeliveryAddress: strings.TrimSpace(req.DeliveryAddress),
		Status:          status,
	})
	if err != nil {
		h.logger.Error("upsert order", "order_number", req.OrderNumber, "error", err)
		writeMessage(w, http.StatusInternalServerError, "failed to save order")
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	status := model.OrderStatus(req.Status)
	if !status.Valid() {
		writeMessage(w, http.StatusBadRequest, "invalid status")
		return
	}

	number := r.PathValue("number")
	order, err := h.orders.SetStatus(r.Context(), number, status)
	if err != nil {
		h.logger.Error("update order status", "order_number", number, "error", err)
		writeMessage(w, http.StatusInternalServerError, "failed to update order")
		return
	}
	if order == nil {
		writeMessage(w, http.StatusNotFound, "order not found")
		return
	}
	writeJSON(w, http.StatusOK, order)
}
