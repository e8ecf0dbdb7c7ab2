// README: Named polygonal sectors used for geofenced driver filters.
package location

import "taxihub/internal/types"

type Sector struct {
	ID      types.ID
	Name    string
	Polygon []types.Point
}

// Contains reports whether p falls inside the sector polygon.
func (s Sector) Contains(p types.Point) bool {
	return PointInPolygon(p, s.Polygon)
}
