// README: Filter matcher; decides whether a broadcast order is surfaced to a driver.
package filter

import (
	"taxihub/internal/modules/location"
	"taxihub/internal/types"
)

// nightStart/nightEnd bound the night tariff window for composite pricing.
const (
	nightStartHour = 22
	nightEndHour   = 6
)

// Matches evaluates a candidate order against one filter. All checks must
// pass, in order: payment type, pickup geofence, drop-off sectors, price
// floor. sectors maps sector IDs to their polygons; a referenced sector
// missing from the map counts as a failed geofence, never a pass.
func Matches(c Candidate, f *Filter, sectors map[types.ID]location.Sector) bool {
	if !paymentAccepted(c, f) {
		return false
	}
	if !pickupInZone(c, f, sectors) {
		return false
	}
	if !dropoffAllowed(c, f, sectors) {
		return false
	}
	return priceAcceptable(c, f)
}

// MatchesAny reports whether at least one enabled filter accepts the order.
// A driver with no enabled filters runs in open-ether mode and sees every
// broadcast order.
func MatchesAny(c Candidate, filters []*Filter, sectors map[types.ID]location.Sector) bool {
	enabled := 0
	for _, f := range filters {
		if !f.Enabled {
			continue
		}
		enabled++
		if Matches(c, f, sectors) {
			return true
		}
	}
	return enabled == 0
}

func paymentAccepted(c Candidate, f *Filter) bool {
	if len(f.Payments) == 0 {
		return true
	}
	for _, p := range f.Payments {
		if p == c.Payment {
			return true
		}
	}
	return false
}

func pickupInZone(c Candidate, f *Filter, sectors map[types.ID]location.Sector) bool {
	switch f.PickupMode {
	case ModeRadius:
		return location.HaversineKm(f.PickupAnchor, c.Pickup) <= f.PickupRadiusKm
	case ModeSectors:
		return inAnySector(c.Pickup, f.PickupSectorIDs, sectors)
	default:
		return false
	}
}

func dropoffAllowed(c Candidate, f *Filter, sectors map[types.ID]location.Sector) bool {
	if len(f.DropoffSectorIDs) == 0 {
		return true
	}
	return inAnySector(c.Dropoff, f.DropoffSectorIDs, sectors)
}

func inAnySector(p types.Point, ids []types.ID, sectors map[types.ID]location.Sector) bool {
	for _, id := range ids {
		sec, ok := sectors[id]
		if !ok {
			continue
		}
		if sec.Contains(p) {
			return true
		}
	}
	return false
}

func priceAcceptable(c Candidate, f *Filter) bool {
	switch f.PricingMode {
	case PricingComposite:
		return compositeAcceptable(c, f.Composite)
	default:
		return simpleAcceptable(c, f.Simple)
	}
}

func simpleAcceptable(c Candidate, p SimplePricing) bool {
	if c.Price.Amount < p.MinPrice {
		return false
	}
	return perKmAcceptable(c, p.MinPerKm)
}

func compositeAcceptable(c Candidate, p CompositePricing) bool {
	night := isNight(c)
	long := c.DurationMin > p.DurationThresholdMin

	var min int64
	switch {
	case night && long:
		min = p.NightLongMin
	case night:
		min = p.NightShortMin
	case long:
		min = p.DayLongMin
	default:
		min = p.DayShortMin
	}
	if c.Price.Amount < min {
		return false
	}

	perKmMin := p.CityPerKmMin
	if p.SuburbDistanceKm > 0 && c.DistanceKm > p.SuburbDistanceKm {
		perKmMin = p.SuburbPerKmMin
	}
	return perKmAcceptable(c, perKmMin)
}

// perKmAcceptable compares the order's effective per-km rate to a floor.
// A zero-distance order has no meaningful rate; the check passes.
func perKmAcceptable(c Candidate, min int64) bool {
	if min <= 0 || c.DistanceKm <= 0 {
		return true
	}
	return float64(c.Price.Amount)/c.DistanceKm >= float64(min)
}

func isNight(c Candidate) bool {
	h := c.CreatedAt.Hour()
	return h >= nightStartHour || h < nightEndHour
}
