package model

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pendiente"
	OrderStatusConfirmed OrderStatus = "confirmada"
	OrderStatusDelivered OrderStatus = "entregada"
	OrderStatusCancelled OrderStatus = "cancelada"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// ConfirmedOrder is an external order as seen by the calendar. Only orders with
// OrderStatusConfirmed reach the synchronizer.
type ConfirmedOrder struct {
	OrderNumber     string      `json:"order_number"`
	DeliveryAt      time.Time   `json:"delivery_at"`
	DeliveryAddress string      `json:"delivery_address"`
	Status          OrderStatus `json:"status"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}
