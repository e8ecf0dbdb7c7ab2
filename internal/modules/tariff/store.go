// README: Tariff store backed by PostgreSQL.
package tariff

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taxihub/internal/types"
)

var ErrNotFound = errors.New("tariff not found")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, id types.ID) (Tariff, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, active, base_fare, per_km, currency
		FROM tariffs
		WHERE id = $1`, string(id),
	)
	var t Tariff
	err := row.Scan(&t.ID, &t.Name, &t.Active, &t.BaseFare.Amount, &t.PerKm, &t.BaseFare.Currency)
	if errors.Is(err, pgx.ErrNoRows) {
		return Tariff{}, ErrNotFound
	}
	if err != nil {
		return Tariff{}, fmt.Errorf("scan tariff: %w", err)
	}
	return t, nil
}

func (s *Store) ListActive(ctx context.Context) ([]Tariff, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, active, base_fare, per_km, currency
		FROM tariffs
		WHERE active
		ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("query tariffs: %w", err)
	}
	defer rows.Close()

	var out []Tariff
	for rows.Next() {
		var t Tariff
		if err := rows.Scan(&t.ID, &t.Name, &t.Active, &t.BaseFare.Amount, &t.PerKm, &t.BaseFare.Currency); err != nil {
			return nil, fmt.Errorf("scan tariff: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
