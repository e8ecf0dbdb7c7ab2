// README: Filter store backed by PostgreSQL; sector refs and payments as text arrays.
package filter

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taxihub/internal/types"
)

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

const filterColumns = `
	id, driver_id, name, enabled,
	pickup_mode, pickup_lat, pickup_lng, pickup_radius_km, pickup_sector_ids,
	dropoff_sector_ids,
	pricing_mode, min_price, min_per_km,
	duration_threshold_min, day_short_min, day_long_min, night_short_min, night_long_min,
	city_per_km_min, suburb_per_km_min, suburb_distance_km,
	payments, auto_accept, ether, cyclic`

func (s *PGStore) Create(ctx context.Context, f *Filter) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO driver_filters (`+filterColumns+`)
		VALUES ($1, $2, $3, $4,
		        $5, $6, $7, $8, $9,
		        $10,
		        $11, $12, $13,
		        $14, $15, $16, $17, $18,
		        $19, $20, $21,
		        $22, $23, $24, $25)`,
		filterArgs(f)...,
	)
	if err != nil {
		return fmt.Errorf("insert filter: %w", err)
	}
	return nil
}

func (s *PGStore) Update(ctx context.Context, f *Filter) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE driver_filters SET
			name = $3, enabled = $4,
			pickup_mode = $5, pickup_lat = $6, pickup_lng = $7, pickup_radius_km = $8, pickup_sector_ids = $9,
			dropoff_sector_ids = $10,
			pricing_mode = $11, min_price = $12, min_per_km = $13,
			duration_threshold_min = $14, day_short_min = $15, day_long_min = $16,
			night_short_min = $17, night_long_min = $18,
			city_per_km_min = $19, suburb_per_km_min = $20, suburb_distance_km = $21,
			payments = $22, auto_accept = $23, ether = $24, cyclic = $25
		WHERE id = $1 AND driver_id = $2`,
		filterArgs(f)...,
	)
	if err != nil {
		return false, fmt.Errorf("update filter: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) Delete(ctx context.Context, driverID, id types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM driver_filters WHERE id = $1 AND driver_id = $2`,
		string(id), string(driverID),
	)
	if err != nil {
		return false, fmt.Errorf("delete filter: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Filter, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+filterColumns+` FROM driver_filters WHERE id = $1`, string(id),
	)
	f, err := scanFilter(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return f, err
}

func (s *PGStore) ListByDriver(ctx context.Context, driverID types.ID) ([]*Filter, error) {
	return s.list(ctx, `
		SELECT `+filterColumns+` FROM driver_filters WHERE driver_id = $1 ORDER BY name`,
		string(driverID),
	)
}

func (s *PGStore) ListEnabledByDriver(ctx context.Context, driverID types.ID) ([]*Filter, error) {
	return s.list(ctx, `
		SELECT `+filterColumns+` FROM driver_filters WHERE driver_id = $1 AND enabled ORDER BY name`,
		string(driverID),
	)
}

func (s *PGStore) ExistsByName(ctx context.Context, driverID types.ID, name string) (bool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM driver_filters WHERE driver_id = $1 AND name = $2)`,
		string(driverID), name,
	)
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("check filter name: %w", err)
	}
	return exists, nil
}

func (s *PGStore) SetEnabled(ctx context.Context, driverID, id types.ID, enabled bool) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE driver_filters SET enabled = $3 WHERE id = $1 AND driver_id = $2`,
		string(id), string(driverID), enabled,
	)
	if err != nil {
		return false, fmt.Errorf("toggle filter: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) list(ctx context.Context, query string, args ...any) ([]*Filter, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query filters: %w", err)
	}
	defer rows.Close()

	var out []*Filter
	for rows.Next() {
		f, err := scanFilter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func filterArgs(f *Filter) []any {
	return []any{
		string(f.ID), string(f.DriverID), f.Name, f.Enabled,
		string(f.PickupMode), f.PickupAnchor.Lat, f.PickupAnchor.Lng, f.PickupRadiusKm, idsToStrings(f.PickupSectorIDs),
		idsToStrings(f.DropoffSectorIDs),
		string(f.PricingMode), f.Simple.MinPrice, f.Simple.MinPerKm,
		f.Composite.DurationThresholdMin, f.Composite.DayShortMin, f.Composite.DayLongMin,
		f.Composite.NightShortMin, f.Composite.NightLongMin,
		f.Composite.CityPerKmMin, f.Composite.SuburbPerKmMin, f.Composite.SuburbDistanceKm,
		paymentsToStrings(f.Payments), f.AutoAccept, f.Ether, f.Cyclic,
	}
}

func scanFilter(row pgx.Row) (*Filter, error) {
	var f Filter
	var pickupSectors, dropoffSectors, payments []string
	err := row.Scan(
		&f.ID, &f.DriverID, &f.Name, &f.Enabled,
		&f.PickupMode, &f.PickupAnchor.Lat, &f.PickupAnchor.Lng, &f.PickupRadiusKm, &pickupSectors,
		&dropoffSectors,
		&f.PricingMode, &f.Simple.MinPrice, &f.Simple.MinPerKm,
		&f.Composite.DurationThresholdMin, &f.Composite.DayShortMin, &f.Composite.DayLongMin,
		&f.Composite.NightShortMin, &f.Composite.NightLongMin,
		&f.Composite.CityPerKmMin, &f.Composite.SuburbPerKmMin, &f.Composite.SuburbDistanceKm,
		&payments, &f.AutoAccept, &f.Ether, &f.Cyclic,
	)
	if err != nil {
		return nil, err
	}
	f.PickupSectorIDs = stringsToIDs(pickupSectors)
	f.DropoffSectorIDs = stringsToIDs(dropoffSectors)
	for _, p := range payments {
		f.Payments = append(f.Payments, types.PaymentMethod(p))
	}
	return &f, nil
}

func idsToStrings(ids []types.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func stringsToIDs(ss []string) []types.ID {
	if len(ss) == 0 {
		return nil
	}
	out := make([]types.ID, len(ss))
	for i, s := range ss {
		out[i] = types.ID(s)
	}
	return out
}

func paymentsToStrings(ps []types.PaymentMethod) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return out
}
