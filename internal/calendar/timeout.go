package calendar

import (
	"context"
	"time"

	"github.com/dukerupert/duende/internal/model"
)

// timeoutGateway bounds every call to the wrapped gateway.
type timeoutGateway struct {
	next    EventGateway
	timeout time.Duration
}

func withTimeout(next EventGateway, d time.Duration) EventGateway {
	if d <= 0 {
		return next
	}
	return &timeoutGateway{next: next, timeout: d}
}

func (g *timeoutGateway) List(ctx context.Context) ([]model.RawEventRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.next.List(ctx)
}

func (g *timeoutGateway) Create(ctx context.Context, rec model.RawEventRecord) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.next.Create(ctx, rec)
}

func (g *timeoutGateway) Update(ctx context.Context, id int64, patch model.EventPatch) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.next.Update(ctx, id, patch)
}

func (g *timeoutGateway) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.next.Delete(ctx, id)
}

func (g *timeoutGateway) CreateForOrder(ctx context.Context, rec model.RawEventRecord) (int64, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.next.CreateForOrder(ctx, rec)
}
