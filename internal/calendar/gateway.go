package calendar

import (
	"context"

	"github.com/dukerupert/duende/internal/model"
)

// EventGateway is the event collection the scheduler reads and writes.
// Records are on the persisted time basis.
type EventGateway interface {
	List(ctx context.Context) ([]model.RawEventRecord, error)
	// Create inserts rec and returns its id. A zero rec.ID asks the store to
	// assign max existing id + 1.
	Create(ctx context.Context, rec model.RawEventRecord) (int64, error)
	Update(ctx context.Context, id int64, patch model.EventPatch) error
	Delete(ctx context.Context, id int64) error
	// CreateForOrder inserts rec unless an event with the same order number
	// exists, as one atomic step. created is false when the event already existed.
	CreateForOrder(ctx context.Context, rec model.RawEventRecord) (id int64, created bool, err error)
}

// OrderFeed is a live subscription to confirmed orders. Every value on the
// channel is the full current set. The channel closes when ctx is done.
type OrderFeed interface {
	Subscribe(ctx context.Context) (<-chan []model.ConfirmedOrder, error)
}
