package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/duende/internal/model"
)

const orderColumns = `order_number, delivery_at, delivery_address, status, created_at, updated_at`

// OrderStore holds external orders and feeds confirmed ones to subscribers.
type OrderStore struct {
	db     *sql.DB
	logger *slog.Logger

	mu   sync.Mutex
	subs map[chan []model.ConfirmedOrder]struct{}
}

func NewOrderStore(db *sql.DB, logger *slog.Logger) *OrderStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderStore{
		db:     db,
		logger: logger,
		subs:   make(map[chan []model.ConfirmedOrder]struct{}),
	}
}

// Upsert inserts or replaces an order and publishes the confirmed set.
func (s *OrderStore) Upsert(ctx context.Context, o model.ConfirmedOrder) (*model.ConfirmedOrder, error) {
	if o.Status == "" {
		o.Status = model.OrderStatusPending
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO orders (order_number, delivery_at, delivery_address, status)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(order_number) DO UPDATE SET
		   delivery_at = excluded.delivery_at,
		   delivery_address = excluded.delivery_address,
		   status = excluded.status,
		   updated_at = CURRENT_TIMESTAMP`,
		o.OrderNumber, o.DeliveryAt.UTC().Format(time.RFC3339Nano), o.DeliveryAddress, string(o.Status),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert order: %w", err)
	}

	s.Publish(ctx)
	return s.GetByNumber(ctx, o.OrderNumber)
}

// SetStatus changes the status of an order. It returns nil when the order does not exist.
func (s *OrderStore) SetStatus(ctx context.Context, orderNumber string, status model.OrderStatus) (*model.ConfirmedOrder, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE order_number = ?`,
		string(status), orderNumber,
	)
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	s.Publish(ctx)
	return s.GetByNumber(ctx, orderNumber)
}

func (s *OrderStore) GetByNumber(ctx context.Context, orderNumber string) (*model.ConfirmedOrder, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number = ?`, orderNumber)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	return o, nil
}

// List returns orders with the given status, or all orders when status is empty.
func (s *OrderStore) List(ctx context.Context, status model.OrderStatus) ([]model.ConfirmedOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY delivery_at ASC, order_number ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []model.ConfirmedOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

func (s *OrderStore) ListConfirmed(ctx context.Context) ([]model.ConfirmedOrder, error) {
	return s.List(ctx, model.OrderStatusConfirmed)
}

// Subscribe returns a channel carrying the full set of confirmed orders: once
// immediately, then after every change made through this store and on every
// Publish. A subscriber that falls behind only sees the latest set. The
// channel is closed when ctx is done.
func (s *OrderStore) Subscribe(ctx context.Context) (<-chan []model.ConfirmedOrder, error) {
	initial, err := s.ListConfirmed(ctx)
	if err != nil {
		return nil, err
	}

	ch := make(chan []model.ConfirmedOrder, 1)
	ch <- initial

	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, ch)
		close(ch)
		s.mu.Unlock()
	}()

	return ch, nil
}

// Publish sends the current confirmed set to all subscribers. It also picks
// up rows written by other processes sharing the database.
func (s *OrderStore) Publish(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subs) == 0 {
		return
	}

	orders, err := s.ListConfirmed(ctx)
	if err != nil {
		s.logger.Error("publish confirmed orders", "error", err)
		return
	}

	for ch := range s.subs {
		// Replace an undelivered snapshot with the newer one.
		select {
		case <-ch:
		default:
		}
		ch <- orders
	}
}

func (s *OrderStore) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func scanOrder(row scanner) (*model.ConfirmedOrder, error) {
	var o model.ConfirmedOrder
	var deliveryAt, status string
	if err := row.Scan(&o.OrderNumber, &deliveryAt, &o.DeliveryAddress, &status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, deliveryAt)
	if err != nil {
		return nil, fmt.Errorf("order %s delivery_at: %w", o.OrderNumber, err)
	}
	o.DeliveryAt = t
	o.Status = model.OrderStatus(status)
	return &o, nil
}
