// README: Sector store backed by PostgreSQL; polygons stored as ordered vertex rows.
package location

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"taxihub/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) ByIDs(ctx context.Context, ids []types.ID) (map[types.ID]Sector, error) {
	if len(ids) == 0 {
		return map[types.ID]Sector{}, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}
	rows, err := s.db.Query(ctx, `
		SELECT s.id, s.name, v.lat, v.lng
		FROM sectors s
		JOIN sector_vertices v ON v.sector_id = s.id
		WHERE s.id = ANY($1)
		ORDER BY s.id, v.seq`, raw,
	)
	if err != nil {
		return nil, fmt.Errorf("query sectors: %w", err)
	}
	defer rows.Close()

	out := make(map[types.ID]Sector)
	for rows.Next() {
		var id, name string
		var p types.Point
		if err := rows.Scan(&id, &name, &p.Lat, &p.Lng); err != nil {
			return nil, fmt.Errorf("scan sector vertex: %w", err)
		}
		sec := out[types.ID(id)]
		sec.ID = types.ID(id)
		sec.Name = name
		sec.Polygon = append(sec.Polygon, p)
		out[types.ID(id)] = sec
	}
	return out, rows.Err()
}

func (s *Store) All(ctx context.Context) (map[types.ID]Sector, error) {
	rows, err := s.db.Query(ctx, `
		SELECT s.id, s.name, v.lat, v.lng
		FROM sectors s
		JOIN sector_vertices v ON v.sector_id = s.id
		ORDER BY s.id, v.seq`,
	)
	if err != nil {
		return nil, fmt.Errorf("query sectors: %w", err)
	}
	defer rows.Close()

	out := make(map[types.ID]Sector)
	for rows.Next() {
		var id, name string
		var p types.Point
		if err := rows.Scan(&id, &name, &p.Lat, &p.Lng); err != nil {
			return nil, fmt.Errorf("scan sector vertex: %w", err)
		}
		sec := out[types.ID(id)]
		sec.ID = types.ID(id)
		sec.Name = name
		sec.Polygon = append(sec.Polygon, p)
		out[types.ID(id)] = sec
	}
	return out, rows.Err()
}
