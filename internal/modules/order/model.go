// README: Order aggregate and status definitions.
package order

import (
	"time"

	"taxihub/internal/modules/promo"
	"taxihub/internal/types"
)

type Status string

const (
	StatusNone          Status = "none"
	StatusScheduled     Status = "scheduled"
	StatusRequested     Status = "requested"
	StatusOffering      Status = "offering"
	StatusAccepted      Status = "accepted"
	StatusDriverArrived Status = "driver_arrived"
	StatusInProgress    Status = "in_progress"
	StatusCompleted     Status = "completed"
	StatusCancelled     Status = "cancelled"
)

// Stop is one intermediate waypoint; Seq is strictly increasing per order.
type Stop struct {
	Seq   int
	Point types.Point
}

type Order struct {
	ID            types.ID
	ClientID      types.ID
	DriverID      *types.ID
	Status        Status
	StatusVersion int
	TariffID      types.ID
	// Price is the amount the client pays, after Discount was subtracted
	// from the tariff price at creation time.
	Price    types.Money
	Discount types.Money
	// DiscountSource records what backed Discount at creation, so
	// settlement consumes that source and nothing else.
	DiscountSource promo.DiscountSource
	Pickup         types.Point
	Dropoff        types.Point
	Stops          []Stop
	Payment        types.PaymentMethod

	DistanceKm  float64
	DurationMin float64

	ScheduledAt  *time.Time
	CreatedAt    time.Time
	AcceptedAt   *time.Time
	ArrivedAt    *time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	CancelledAt  *time.Time
	CancelReason *string
	CancelActor  *string
}

// Terminal reports whether no further transitions are possible.
func (o *Order) Terminal() bool {
	return o.Status == StatusCompleted || o.Status == StatusCancelled
}

type Event struct {
	ID         int64
	OrderID    types.ID
	FromStatus Status
	ToStatus   Status
	ActorType  string
	ActorID    *types.ID
	CreatedAt  time.Time
}

// AllowedTransitions represents the order state flow as code. Cancellation is
// reachable from every non-terminal state; completion is legal straight from
// acceptance so a driver who forgot to tap through the intermediate states
// can still close the ride.
var AllowedTransitions = map[Status][]Status{
	StatusScheduled:     {StatusRequested, StatusCancelled},
	StatusRequested:     {StatusOffering, StatusAccepted, StatusCancelled},
	StatusOffering:      {StatusAccepted, StatusCancelled},
	StatusAccepted:      {StatusDriverArrived, StatusInProgress, StatusCompleted, StatusCancelled},
	StatusDriverArrived: {StatusInProgress, StatusCancelled},
	StatusInProgress:    {StatusCompleted, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// BroadcastAction tells the broadcast notifier whether an order entered or
// left the pool visible to drivers.
type BroadcastAction string

const (
	BroadcastAdd    BroadcastAction = "ADD"
	BroadcastRemove BroadcastAction = "REMOVE"
)
