// README: Driver filter definitions; which broadcast orders a driver wants to see.
package filter

import (
	"time"

	"taxihub/internal/types"
)

// GeofenceMode selects which pickup sub-fields are meaningful: the radius
// fields are ignored in sector mode and vice versa.
type GeofenceMode string

const (
	ModeRadius  GeofenceMode = "radius"
	ModeSectors GeofenceMode = "sectors"
)

// PricingMode selects the price-floor evaluation scheme.
type PricingMode string

const (
	PricingSimple    PricingMode = "simple"
	PricingComposite PricingMode = "composite"
)

type Filter struct {
	ID       types.ID
	DriverID types.ID
	Name     string
	Enabled  bool

	PickupMode      GeofenceMode
	PickupAnchor    types.Point
	PickupRadiusKm  float64
	PickupSectorIDs []types.ID

	// DropoffSectorIDs, when non-empty, constrain the destination too.
	DropoffSectorIDs []types.ID

	PricingMode PricingMode
	Simple      SimplePricing
	Composite   CompositePricing

	// Payments is the accepted set; empty means any payment method.
	Payments []types.PaymentMethod

	AutoAccept bool
	Ether      bool
	Cyclic     bool
}

type SimplePricing struct {
	MinPrice int64
	MinPerKm int64
}

// CompositePricing applies day/night minimums keyed on a trip-duration
// threshold, plus city/suburb per-km floors keyed on trip distance.
type CompositePricing struct {
	DurationThresholdMin float64
	DayShortMin          int64
	DayLongMin           int64
	NightShortMin        int64
	NightLongMin         int64
	CityPerKmMin         int64
	SuburbPerKmMin       int64
	// SuburbDistanceKm is the trip length above which the suburb per-km
	// floor applies instead of the city one.
	SuburbDistanceKm float64
}

// Candidate is the order view the matcher evaluates; built by the dispatcher
// from a requested order.
type Candidate struct {
	Pickup      types.Point
	Dropoff     types.Point
	Price       types.Money
	DistanceKm  float64
	DurationMin float64
	Payment     types.PaymentMethod
	CreatedAt   time.Time
}
