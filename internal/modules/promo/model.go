// README: Promo tasks, per-client progress, and one-off promo codes.
package promo

import (
	"time"

	"taxihub/internal/types"
)

// DiscountSource names what backed an order's discount. Stored on the order
// at creation so settlement consumes the same source it resolved, not
// whatever happens to be available at completion time.
type DiscountSource string

const (
	SourceNone       DiscountSource = ""
	SourceTaskReward DiscountSource = "task_reward"
	SourcePromoCode  DiscountSource = "promo_code"
)

// Metric selects what a task counts toward its goal.
type Metric string

const (
	MetricRides    Metric = "rides"
	MetricDistance Metric = "distance_km"
)

// Task is a recurring goal granting a percent discount when reached.
type Task struct {
	ID              types.ID
	Name            string
	Active          bool
	Metric          Metric
	Required        int64
	DiscountPercent int
	// OneTime tasks stop counting after the first completed cycle.
	OneTime bool
	// RewardHours bounds how long an earned reward stays usable; 0 = no expiry.
	RewardHours int
}

// Progress is a client's counter toward one task. Created lazily on the
// first qualifying ride.
type Progress struct {
	ClientID        types.ID
	TaskID          types.ID
	Count           int64
	RewardAvailable bool
	CompletedCount  int
	RewardExpiresAt *time.Time
}

// Code is a globally issued promo code a client activates manually.
type Code struct {
	ID              types.ID
	Code            string
	DiscountPercent int
	// UsageLimit caps total activations across all clients; 0 = unlimited.
	UsageLimit int
	ExpiresAt  time.Time
	// DurationHours sets the personal expiry window after activation,
	// independent of the code's own global expiry.
	DurationHours int
}

// Usage is one client's activation of a code; at most one un-consumed
// usage per client at a time.
type Usage struct {
	ID          int64
	ClientID    types.ID
	CodeID      types.ID
	ActivatedAt time.Time
	ExpiresAt   time.Time
	Consumed    bool
}
