// README: Broadcast dispatch, matching live orders against online drivers.
package dispatch

import (
	"context"
	"errors"
	"strconv"

	"taxihub/internal/logger"
	"taxihub/internal/modules/filter"
	"taxihub/internal/modules/location"
	"taxihub/internal/modules/order"
	"taxihub/internal/types"
)

// Presence lists the drivers currently online near a point.
type Presence interface {
	Nearby(ctx context.Context, pt types.Point, radiusKm float64) ([]types.ID, error)
}

// FilterSource returns a driver's enabled ether filters.
type FilterSource interface {
	ListEnabledByDriver(ctx context.Context, driverID types.ID) ([]*filter.Filter, error)
}

// SectorSource resolves every known sector for geofence checks.
type SectorSource interface {
	All(ctx context.Context) (map[types.ID]location.Sector, error)
}

// TokenSource maps a user to their device push token.
type TokenSource interface {
	FCMToken(ctx context.Context, id types.ID) (string, error)
}

// OfferTracker records that an order has been fanned out to drivers.
type OfferTracker interface {
	MarkOffering(ctx context.Context, orderID types.ID) error
}

// Ledger remembers which drivers were already offered an order.
type Ledger interface {
	MarkNotified(ctx context.Context, orderID, driverID types.ID) (bool, error)
	Notified(ctx context.Context, orderID types.ID) ([]types.ID, error)
	Clear(ctx context.Context, orderID types.ID) error
}

type Service struct {
	presence Presence
	filters  FilterSource
	sectors  SectorSource
	tokens   TokenSource
	ledger   Ledger
	pool     *PushPool
	offers   OfferTracker
	radiusKm float64
	log      logger.ILogger
}

type Deps struct {
	Presence Presence
	Filters  FilterSource
	Sectors  SectorSource
	Tokens   TokenSource
	Ledger   Ledger
	Pool     *PushPool
	RadiusKm float64
	Log      logger.ILogger
}

func NewService(deps Deps) *Service {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	radius := deps.RadiusKm
	if radius <= 0 {
		radius = 10
	}
	return &Service{
		presence: deps.Presence,
		filters:  deps.Filters,
		sectors:  deps.Sectors,
		tokens:   deps.Tokens,
		ledger:   deps.Ledger,
		pool:     deps.Pool,
		radiusKm: radius,
		log:      log,
	}
}

// BindOffers wires the callback that flips broadcast orders into the
// offering state. Set after construction since the order service and the
// dispatcher reference each other.
func (s *Service) BindOffers(t OfferTracker) {
	s.offers = t
}

// EligibleDrivers returns the online drivers near the pickup whose filters
// accept the order, closest first.
func (s *Service) EligibleDrivers(ctx context.Context, o *order.Order) ([]types.ID, error) {
	nearby, err := s.presence.Nearby(ctx, o.Pickup, s.radiusKm)
	if err != nil {
		return nil, err
	}
	if len(nearby) == 0 {
		return nil, nil
	}
	sectors, err := s.sectors.All(ctx)
	if err != nil {
		return nil, err
	}
	c := candidateOf(o)

	var eligible []types.ID
	for _, driverID := range nearby {
		fs, err := s.filters.ListEnabledByDriver(ctx, driverID)
		if err != nil {
			s.log.Warn("load driver filters", logger.String("driver_id", string(driverID)), logger.Error(err))
			continue
		}
		if filter.MatchesAny(c, fs, sectors) {
			eligible = append(eligible, driverID)
		}
	}
	return eligible, nil
}

// OnOrderChanged implements order.Broadcaster. ADD offers the order to every
// eligible driver not yet notified; REMOVE tells previously notified drivers
// the order is gone.
func (s *Service) OnOrderChanged(ctx context.Context, o *order.Order, action order.BroadcastAction) {
	switch action {
	case order.BroadcastAdd:
		s.broadcastAdd(ctx, o)
	case order.BroadcastRemove:
		s.broadcastRemove(ctx, o)
	}
}

func (s *Service) broadcastAdd(ctx context.Context, o *order.Order) {
	drivers, err := s.EligibleDrivers(ctx, o)
	if err != nil {
		s.log.Error("eligible drivers lookup failed", logger.String("order_id", string(o.ID)), logger.Error(err))
		return
	}
	sent := 0
	for _, driverID := range drivers {
		first, err := s.ledger.MarkNotified(ctx, o.ID, driverID)
		if err != nil {
			s.log.Warn("notify ledger write failed", logger.Error(err))
			continue
		}
		if !first {
			continue
		}
		if s.push(ctx, driverID, offerNotification(o)) {
			sent++
		}
	}
	s.log.Info("order broadcast",
		logger.String("order_id", string(o.ID)),
		logger.Int("eligible", len(drivers)),
		logger.Int("pushed", sent))

	if sent > 0 && s.offers != nil && o.Status == order.StatusRequested {
		err := s.offers.MarkOffering(ctx, o.ID)
		// A driver may accept while the fan-out runs; the state machine
		// rejecting the flip then is expected.
		if err != nil && !errors.Is(err, order.ErrInvalidState) && !errors.Is(err, order.ErrConflict) {
			s.log.Warn("mark offering failed", logger.String("order_id", string(o.ID)), logger.Error(err))
		}
	}
}

func (s *Service) broadcastRemove(ctx context.Context, o *order.Order) {
	notified, err := s.ledger.Notified(ctx, o.ID)
	if err != nil {
		s.log.Warn("notify ledger read failed", logger.Error(err))
		return
	}
	note := removeNotification(o)
	for _, driverID := range notified {
		// The bound driver keeps the order on screen; everyone else
		// gets it withdrawn.
		if o.DriverID != nil && *o.DriverID == driverID {
			continue
		}
		s.push(ctx, driverID, note)
	}
	if err := s.ledger.Clear(ctx, o.ID); err != nil {
		s.log.Warn("notify ledger clear failed", logger.Error(err))
	}
}

func (s *Service) push(ctx context.Context, driverID types.ID, n Notification) bool {
	token, err := s.tokens.FCMToken(ctx, driverID)
	if err != nil || token == "" {
		return false
	}
	return s.pool.Enqueue(token, n)
}

func candidateOf(o *order.Order) filter.Candidate {
	return filter.Candidate{
		Pickup:      o.Pickup,
		Dropoff:     o.Dropoff,
		Price:       o.Price,
		DistanceKm:  o.DistanceKm,
		DurationMin: o.DurationMin,
		Payment:     o.Payment,
		CreatedAt:   o.CreatedAt,
	}
}

func offerNotification(o *order.Order) Notification {
	return Notification{
		Title: "New order nearby",
		Body:  "Open the app to view the ride details",
		Data: map[string]string{
			"action":       string(order.BroadcastAdd),
			"order_id":     string(o.ID),
			"price":        strconv.FormatInt(o.Price.Amount, 10),
			"currency":     o.Price.Currency,
			"payment":      string(o.Payment),
			"distance_km":  strconv.FormatFloat(o.DistanceKm, 'f', 1, 64),
			"duration_min": strconv.FormatFloat(o.DurationMin, 'f', 0, 64),
		},
	}
}

func removeNotification(o *order.Order) Notification {
	return Notification{
		Title: "Order no longer available",
		Data: map[string]string{
			"action":   string(order.BroadcastRemove),
			"order_id": string(o.ID),
		},
	}
}
