// README: Online-driver presence backed by Redis GEO.
package location

import (
	"context"

	"github.com/redis/go-redis/v9"

	"taxihub/internal/types"
)

const driverGeoKey = "presence:drivers"

type Presence struct {
	redis *redis.Client
}

func NewPresence(rdb *redis.Client) *Presence {
	return &Presence{redis: rdb}
}

// SetOnline registers (or refreshes) a driver's position in the GEO set.
func (p *Presence) SetOnline(ctx context.Context, driverID types.ID, pos types.Point) error {
	return p.redis.GeoAdd(ctx, driverGeoKey, &redis.GeoLocation{
		Name:      string(driverID),
		Longitude: pos.Lng,
		Latitude:  pos.Lat,
	}).Err()
}

func (p *Presence) SetOffline(ctx context.Context, driverID types.ID) error {
	return p.redis.ZRem(ctx, driverGeoKey, string(driverID)).Err()
}

// Nearby returns online driver IDs within radiusKm of pt, closest first.
func (p *Presence) Nearby(ctx context.Context, pt types.Point, radiusKm float64) ([]types.ID, error) {
	results, err := p.redis.GeoSearch(ctx, driverGeoKey, &redis.GeoSearchQuery{
		Longitude:  pt.Lng,
		Latitude:   pt.Lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(results))
	for i, r := range results {
		ids[i] = types.ID(r)
	}
	return ids, nil
}
