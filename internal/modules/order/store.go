// README: Order store backed by PostgreSQL.
package order

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"taxihub/internal/types"
)

// activeStatuses are the states that occupy a client or a driver.
const activeStatuses = `'scheduled','requested','offering','accepted','driver_arrived','in_progress'`

const orderColumns = `
	id, client_id, driver_id, status, status_version, tariff_id,
	price_amount, discount_amount, discount_source, currency,
	pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
	payment, distance_km, duration_min,
	scheduled_at, created_at, accepted_at, arrived_at, started_at,
	completed_at, cancelled_at, cancel_reason, cancel_actor`

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, o *Order) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (`+orderColumns+`
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14,
			$15, $16, $17,
			$18, $19, $20, $21, $22,
			$23, $24, $25, $26
		)`,
		string(o.ID),
		string(o.ClientID),
		toStringPtr(o.DriverID),
		string(o.Status),
		o.StatusVersion,
		string(o.TariffID),
		o.Price.Amount,
		o.Discount.Amount,
		string(o.DiscountSource),
		o.Price.Currency,
		o.Pickup.Lat, o.Pickup.Lng,
		o.Dropoff.Lat, o.Dropoff.Lng,
		string(o.Payment),
		o.DistanceKm,
		o.DurationMin,
		o.ScheduledAt,
		o.CreatedAt,
		o.AcceptedAt, o.ArrivedAt, o.StartedAt,
		o.CompletedAt, o.CancelledAt, o.CancelReason, o.CancelActor,
	)
	if err != nil {
		return err
	}

	for _, stop := range o.Stops {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_stops (order_id, seq, lat, lng)
			VALUES ($1, $2, $3, $4)`,
			string(o.ID), stop.Seq, stop.Point.Lat, stop.Point.Lng,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Order, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1`, string(id),
	)
	o, err := scanOrder(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadStops(ctx, []*Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *PGStore) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET status = $1,
		    status_version = status_version + 1,
		    arrived_at = CASE WHEN $1 = 'driver_arrived' THEN NOW() ELSE arrived_at END,
		    started_at = CASE WHEN $1 = 'in_progress' THEN NOW() ELSE started_at END,
		    completed_at = CASE WHEN $1 = 'completed' THEN NOW() ELSE completed_at END
		WHERE id = $2 AND status = $3 AND status_version = $4`,
		string(to),
		string(id),
		string(from),
		version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) BindDriver(ctx context.Context, id types.ID, from, to Status, version int, driverID types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET status = $1,
		    status_version = status_version + 1,
		    driver_id = $2,
		    accepted_at = NOW()
		WHERE id = $3 AND status = $4 AND status_version = $5
		  AND NOT EXISTS (
			SELECT 1 FROM orders
			WHERE driver_id = $2
			  AND status IN (`+activeStatuses+`)
		  )`,
		string(to),
		string(driverID),
		string(id),
		string(from),
		version,
	)
	if isUniqueViolation(err) {
		// The partial unique index on active driver_id fired: a rival
		// accept for another order committed first. By now that row is
		// visible, so the caller's busy check will classify this.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *PGStore) CancelOrder(ctx context.Context, id types.ID, from Status, version int, reason, actor string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET status = 'cancelled',
		    status_version = status_version + 1,
		    driver_id = NULL,
		    cancelled_at = NOW(),
		    cancel_reason = $1,
		    cancel_actor = $2
		WHERE id = $3 AND status = $4 AND status_version = $5`,
		reason,
		actor,
		string(id),
		string(from),
		version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO order_state_events (
			order_id, from_status, to_status, actor_type, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.OrderID),
		string(e.FromStatus),
		string(e.ToStatus),
		e.ActorType,
		toStringPtr(e.ActorID),
		e.CreatedAt,
	)
	return err
}

func (s *PGStore) HasActiveByClient(ctx context.Context, clientID types.ID) (bool, error) {
	return s.existsActive(ctx, "client_id", clientID)
}

func (s *PGStore) HasActiveByDriver(ctx context.Context, driverID types.ID) (bool, error) {
	return s.existsActive(ctx, "driver_id", driverID)
}

func (s *PGStore) existsActive(ctx context.Context, column string, id types.ID) (bool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM orders
			WHERE `+column+` = $1
			  AND status IN (`+activeStatuses+`)
		)`, string(id),
	)
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (s *PGStore) ListBroadcastable(ctx context.Context) ([]*Order, error) {
	return s.list(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status IN ('requested','offering')
		ORDER BY created_at ASC`)
}

func (s *PGStore) ListUnacceptedBefore(ctx context.Context, cutoff time.Time) ([]*Order, error) {
	return s.list(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status IN ('requested','offering')
		  AND created_at < $1
		ORDER BY created_at ASC`, cutoff)
}

func (s *PGStore) ListScheduledDue(ctx context.Context, by time.Time) ([]*Order, error) {
	return s.list(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status = 'scheduled'
		  AND scheduled_at <= $1
		ORDER BY scheduled_at ASC`, by)
}

func (s *PGStore) ListByClient(ctx context.Context, clientID types.ID, limit int) ([]*Order, error) {
	return s.list(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE client_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, string(clientID), limit)
}

func (s *PGStore) ListByDriver(ctx context.Context, driverID types.ID, limit int) ([]*Order, error) {
	return s.list(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE driver_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, string(driverID), limit)
}

func (s *PGStore) list(ctx context.Context, query string, args ...any) ([]*Order, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.loadStops(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *PGStore) loadStops(ctx context.Context, orders []*Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[types.ID]*Order, len(orders))
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		ids = append(ids, string(o.ID))
	}
	rows, err := s.db.Query(ctx, `
		SELECT order_id, seq, lat, lng
		FROM order_stops
		WHERE order_id = ANY($1)
		ORDER BY order_id, seq`, ids,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var orderID types.ID
		var stop Stop
		if err := rows.Scan(&orderID, &stop.Seq, &stop.Point.Lat, &stop.Point.Lng); err != nil {
			return err
		}
		if o, ok := byID[orderID]; ok {
			o.Stops = append(o.Stops, stop)
		}
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*Order, error) {
	var o Order
	var driverID, cancelReason, cancelActor sql.NullString
	var scheduledAt, acceptedAt, arrivedAt, startedAt, completedAt, cancelledAt sql.NullTime

	err := row.Scan(
		&o.ID, &o.ClientID, &driverID, &o.Status, &o.StatusVersion, &o.TariffID,
		&o.Price.Amount, &o.Discount.Amount, &o.DiscountSource, &o.Price.Currency,
		&o.Pickup.Lat, &o.Pickup.Lng, &o.Dropoff.Lat, &o.Dropoff.Lng,
		&o.Payment, &o.DistanceKm, &o.DurationMin,
		&scheduledAt, &o.CreatedAt, &acceptedAt, &arrivedAt, &startedAt,
		&completedAt, &cancelledAt, &cancelReason, &cancelActor,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	o.Discount.Currency = o.Price.Currency
	if driverID.Valid {
		d := types.ID(driverID.String)
		o.DriverID = &d
	}
	o.ScheduledAt = toTimePtr(scheduledAt)
	o.AcceptedAt = toTimePtr(acceptedAt)
	o.ArrivedAt = toTimePtr(arrivedAt)
	o.StartedAt = toTimePtr(startedAt)
	o.CompletedAt = toTimePtr(completedAt)
	o.CancelledAt = toTimePtr(cancelledAt)
	if cancelReason.Valid {
		o.CancelReason = &cancelReason.String
	}
	if cancelActor.Valid {
		o.CancelActor = &cancelActor.String
	}
	return &o, nil
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func toTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
