package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/duende/internal/model"
)

const eventColumns = `id, title, description, start_at, end_at, event_type, order_number`

// EventStore persists calendar events in their stored shape.
type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

// Create inserts rec. When rec.ID is zero the new id is max existing id + 1,
// computed inside the insert statement.
func (s *EventStore) Create(ctx context.Context, rec model.RawEventRecord) (int64, error) {
	var (
		result sql.Result
		err    error
	)
	if rec.ID != 0 {
		result, err = s.db.ExecContext(ctx,
			`INSERT INTO calendar_events (id, title, description, start_at, end_at, event_type, order_number)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.Title, rec.Description, formatTime(rec.Start), formatTime(rec.End), rec.Tipo, nullString(rec.NumeroOrden),
		)
	} else {
		result, err = s.db.ExecContext(ctx,
			`INSERT INTO calendar_events (id, title, description, start_at, end_at, event_type, order_number)
			 SELECT COALESCE(MAX(id), 0) + 1, ?, ?, ?, ?, ?, ? FROM calendar_events`,
			rec.Title, rec.Description, formatTime(rec.Start), formatTime(rec.End), rec.Tipo, nullString(rec.NumeroOrden),
		)
	}
	if err != nil {
		return 0, fmt.Errorf("insert calendar event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// CreateForOrder inserts rec unless an event already carries its order
// number. The check and the insert are a single statement, so concurrent
// writers cannot both create an event for the same order.
func (s *EventStore) CreateForOrder(ctx context.Context, rec model.RawEventRecord) (int64, bool, error) {
	if rec.NumeroOrden == nil || *rec.NumeroOrden == "" {
		return 0, false, fmt.Errorf("create order event: order number is required")
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO calendar_events (id, title, description, start_at, end_at, event_type, order_number)
		 SELECT COALESCE(MAX(id), 0) + 1, ?, ?, ?, ?, ?, ? FROM calendar_events WHERE true
		 ON CONFLICT(order_number) DO NOTHING`,
		rec.Title, rec.Description, formatTime(rec.Start), formatTime(rec.End), rec.Tipo, *rec.NumeroOrden,
	)
	if err != nil {
		return 0, false, fmt.Errorf("insert order event: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		id, err := result.LastInsertId()
		if err != nil {
			return 0, false, fmt.Errorf("last insert id: %w", err)
		}
		return id, true, nil
	}

	existing, err := s.GetByOrderNumber(ctx, *rec.NumeroOrden)
	if err != nil {
		return 0, false, err
	}
	if existing == nil {
		return 0, false, fmt.Errorf("order event %q: insert skipped but no event found", *rec.NumeroOrden)
	}
	return existing.ID, false, nil
}

func (s *EventStore) GetByID(ctx context.Context, id int64) (*model.RawEventRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM calendar_events WHERE id = ?`, id)
	rec, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query calendar event: %w", err)
	}
	return rec, nil
}

func (s *EventStore) GetByOrderNumber(ctx context.Context, orderNumber string) (*model.RawEventRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM calendar_events WHERE order_number = ?`, orderNumber)
	rec, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query calendar event by order: %w", err)
	}
	return rec, nil
}

// List returns every event ordered by id.
func (s *EventStore) List(ctx context.Context) ([]model.RawEventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM calendar_events ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query calendar events: %w", err)
	}
	defer rows.Close()

	var records []model.RawEventRecord
	for rows.Next() {
		rec, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan calendar event: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func (s *EventStore) Update(ctx context.Context, id int64, patch model.EventPatch) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE calendar_events
		 SET title = ?, description = ?, start_at = ?, end_at = ?, event_type = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		patch.Title, patch.Description, formatTime(patch.Start), formatTime(patch.End), patch.Tipo, id,
	)
	if err != nil {
		return fmt.Errorf("update calendar event: %w", err)
	}
	return nil
}

func (s *EventStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM calendar_events WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete calendar event: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*model.RawEventRecord, error) {
	var rec model.RawEventRecord
	var start, end, orderNumber sql.NullString

	if err := row.Scan(&rec.ID, &rec.Title, &rec.Description, &start, &end, &rec.Tipo, &orderNumber); err != nil {
		return nil, err
	}

	var err error
	if rec.Start, err = parseTime(start); err != nil {
		return nil, fmt.Errorf("event %d start: %w", rec.ID, err)
	}
	if rec.End, err = parseTime(end); err != nil {
		return nil, fmt.Errorf("event %d end: %w", rec.ID, err)
	}
	if orderNumber.Valid {
		rec.NumeroOrden = &orderNumber.String
	}
	return &rec, nil
}

func formatTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
