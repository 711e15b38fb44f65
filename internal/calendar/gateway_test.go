package calendar

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dukerupert/duende/internal/model"
)

var errStoreDown = errors.New("store down")

// memGateway is an in-memory EventGateway. Setting fail* makes the matching
// call return errStoreDown.
type memGateway struct {
	mu      sync.Mutex
	records map[int64]model.RawEventRecord

	failList   bool
	failCreate bool
	failUpdate bool
	failDelete bool
	failOrder  bool
	// failOrderAfter makes CreateForOrder fail once this many order events exist.
	failOrderAfter int

	orderCalls int
}

func newMemGateway(records ...model.RawEventRecord) *memGateway {
	g := &memGateway{records: make(map[int64]model.RawEventRecord), failOrderAfter: -1}
	for _, r := range records {
		g.records[r.ID] = r
	}
	return g
}

func (g *memGateway) List(ctx context.Context) ([]model.RawEventRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failList {
		return nil, errStoreDown
	}
	out := make([]model.RawEventRecord, 0, len(g.records))
	for _, r := range g.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (g *memGateway) nextID() int64 {
	var max int64
	for id := range g.records {
		if id > max {
			max = id
		}
	}
	return max + 1
}

func (g *memGateway) Create(ctx context.Context, rec model.RawEventRecord) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failCreate {
		return 0, errStoreDown
	}
	if rec.ID == 0 {
		rec.ID = g.nextID()
	}
	g.records[rec.ID] = rec
	return rec.ID, nil
}

func (g *memGateway) Update(ctx context.Context, id int64, patch model.EventPatch) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failUpdate {
		return errStoreDown
	}
	rec, ok := g.records[id]
	if !ok {
		return nil
	}
	rec.Title = patch.Title
	rec.Description = patch.Description
	rec.Start = patch.Start
	rec.End = patch.End
	rec.Tipo = patch.Tipo
	g.records[id] = rec
	return nil
}

func (g *memGateway) Delete(ctx context.Context, id int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failDelete {
		return errStoreDown
	}
	delete(g.records, id)
	return nil
}

func (g *memGateway) CreateForOrder(ctx context.Context, rec model.RawEventRecord) (int64, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.orderCalls++
	if g.failOrder {
		return 0, false, errStoreDown
	}
	count := 0
	for _, r := range g.records {
		if r.NumeroOrden == nil {
			continue
		}
		if *r.NumeroOrden == *rec.NumeroOrden {
			return r.ID, false, nil
		}
		count++
	}
	if g.failOrderAfter >= 0 && count >= g.failOrderAfter {
		return 0, false, errStoreDown
	}
	rec.ID = g.nextID()
	g.records[rec.ID] = rec
	return rec.ID, true, nil
}

func (g *memGateway) get(id int64) (model.RawEventRecord, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.records[id]
	return r, ok
}

func (g *memGateway) len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.records)
}

func (g *memGateway) setFailList(v bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failList = v
}

// storedAt builds a persisted record whose displayed interval is [start, end).
func storedAt(id int64, tag string, start, end time.Time) model.RawEventRecord {
	d := storageShift
	if tag == model.TagOrder {
		d = 0
	}
	s := start.Add(-d)
	e := end.Add(-d)
	return model.RawEventRecord{ID: id, Title: tag, Start: &s, End: &e, Tipo: tag}
}

func at(hour, min int) time.Time {
	return time.Date(2026, 2, 5, hour, min, 0, 0, time.UTC)
}
