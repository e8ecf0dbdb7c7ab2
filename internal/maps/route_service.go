// README: Route estimates via the Google Maps Directions API.
package maps

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"taxihub/internal/types"
)

// RouteService handles interactions with Google Maps API.
type RouteService struct {
	client *maps.Client
}

// NewRouteService creates a new RouteService with the given API Key.
func NewRouteService(apiKey string) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client}, nil
}

// Estimate returns the driving distance in kilometres and duration in
// minutes for a trip from pickup to dropoff through the given stops.
func (s *RouteService) Estimate(ctx context.Context, from, to types.Point, stops []types.Point) (float64, float64, error) {
	r := &maps.DirectionsRequest{
		Origin:      latLng(from),
		Destination: latLng(to),
		Mode:        maps.TravelModeDriving,
	}
	for _, p := range stops {
		r.Waypoints = append(r.Waypoints, latLng(p))
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return 0, 0, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return 0, 0, fmt.Errorf("no route found")
	}

	meters := 0
	minutes := 0.0
	for _, leg := range routes[0].Legs {
		meters += leg.Distance.Meters
		minutes += leg.Duration.Minutes()
	}
	return float64(meters) / 1000, minutes, nil
}

func latLng(p types.Point) string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lng)
}
