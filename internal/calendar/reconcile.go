package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukerupert/duende/internal/model"
)

// OrderEventDuration is the length given to events derived from orders.
const OrderEventDuration = 10 * time.Minute

// Synchronizer materializes confirmed orders as calendar events.
type Synchronizer struct {
	events EventGateway
	logger *slog.Logger
}

func NewSynchronizer(events EventGateway, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{events: events, logger: logger}
}

// OrderEvent builds the calendar event for a confirmed order.
func OrderEvent(order model.ConfirmedOrder) model.CalendarEvent {
	start := order.DeliveryAt.UTC()
	end := start.Add(OrderEventDuration)
	number := order.OrderNumber
	return model.CalendarEvent{
		Title:       fmt.Sprintf("Orden %s", number),
		Description: fmt.Sprintf("Entrega de la Orden %s con destino %s", number, order.DeliveryAddress),
		Start:       &start,
		End:         &end,
		Type:        model.EventTypeOrder,
		AllDay:      true,
		OrderNumber: &number,
	}
}

// Reconcile creates an event for every confirmed order that has none and
// returns the events it created. Orders already represented in existing, or
// found by the store's conditional insert, are skipped. Existing events are
// never modified.
func (s *Synchronizer) Reconcile(ctx context.Context, orders []model.ConfirmedOrder, existing []model.CalendarEvent) ([]model.CalendarEvent, error) {
	known := make(map[string]struct{}, len(existing))
	for _, ev := range existing {
		if ev.OrderNumber != nil {
			known[*ev.OrderNumber] = struct{}{}
		}
	}

	var created []model.CalendarEvent
	for _, order := range orders {
		number := strings.TrimSpace(order.OrderNumber)
		if number == "" || order.Status != model.OrderStatusConfirmed {
			continue
		}
		if _, ok := known[number]; ok {
			continue
		}
		known[number] = struct{}{}

		order.OrderNumber = number
		ev := OrderEvent(order)
		id, ok, err := s.events.CreateForOrder(ctx, Denormalize(ev))
		if err != nil {
			return created, &StoreError{Op: "create order event", Err: err}
		}
		if !ok {
			s.logger.Debug("order already has an event", "order_number", number, "event_id", id)
			continue
		}

		ev.ID = id
		created = append(created, ev)
		s.logger.Info("created order event", "order_number", number, "event_id", id)
	}
	return created, nil
}
