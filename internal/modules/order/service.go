// README: Order service implements state transitions and their side effects.
package order

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"taxihub/internal/logger"
	"taxihub/internal/modules/location"
	"taxihub/internal/modules/promo"
	"taxihub/internal/modules/tariff"
	"taxihub/internal/types"
)

var (
	ErrNotFound       = errors.New("order not found")
	ErrInvalidState   = errors.New("invalid state transition")
	ErrConflict       = errors.New("order state conflict")
	ErrForbidden      = errors.New("order belongs to another party")
	ErrBadRequest     = errors.New("bad request")
	ErrActiveOrder    = errors.New("client has active order")
	ErrDriverBusy     = errors.New("driver has active order")
	ErrDriverOffline  = errors.New("driver is offline")
	ErrTariffInactive = errors.New("tariff is not active")
)

// Store is the persistence contract. Every status-changing method is a
// compare-and-set keyed on (status, status_version): it reports false when
// the row no longer matches, so a lost race surfaces as ErrConflict instead
// of a silent overwrite.
type Store interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id types.ID) (*Order, error)
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int) (bool, error)
	// BindDriver transitions from→to and sets the driver in one conditional
	// statement that also verifies the driver has no other active order.
	BindDriver(ctx context.Context, id types.ID, from, to Status, version int, driverID types.ID) (bool, error)
	// CancelOrder transitions to cancelled, clears the driver binding and
	// records the reason and acting party.
	CancelOrder(ctx context.Context, id types.ID, from Status, version int, reason, actor string) (bool, error)
	AppendEvent(ctx context.Context, e *Event) error
	HasActiveByClient(ctx context.Context, clientID types.ID) (bool, error)
	HasActiveByDriver(ctx context.Context, driverID types.ID) (bool, error)
	ListBroadcastable(ctx context.Context) ([]*Order, error)
	ListUnacceptedBefore(ctx context.Context, cutoff time.Time) ([]*Order, error)
	ListScheduledDue(ctx context.Context, by time.Time) ([]*Order, error)
	ListByClient(ctx context.Context, clientID types.ID, limit int) ([]*Order, error)
	ListByDriver(ctx context.Context, driverID types.ID, limit int) ([]*Order, error)
}

type TariffSource interface {
	Get(ctx context.Context, id types.ID) (tariff.Tariff, error)
}

// Promo resolves an order-time discount and settles it after completion.
// The source returned by ResolveDiscount is stored on the order and handed
// back at settlement, so completion consumes what creation resolved.
type Promo interface {
	ResolveDiscount(ctx context.Context, clientID types.ID, price types.Money) (types.Money, promo.DiscountSource, error)
	SettleCompletion(ctx context.Context, clientID types.ID, discount types.Money, source promo.DiscountSource, distanceKm float64) error
}

// RouteEstimator returns distance (km) and duration (minutes) for a route.
type RouteEstimator interface {
	Estimate(ctx context.Context, from, to types.Point, stops []types.Point) (float64, float64, error)
}

// Broadcaster is told when an order enters or leaves the driver-visible pool.
type Broadcaster interface {
	OnOrderChanged(ctx context.Context, o *Order, action BroadcastAction)
}

// ActivityScorer adjusts a driver's activity score on completion/cancellation.
type ActivityScorer interface {
	AddActivityScore(ctx context.Context, driverID types.ID, delta int) error
}

// ChatHistory clears the per-order chat when the order reaches a terminal state.
type ChatHistory interface {
	Clear(ctx context.Context, orderID types.ID) error
}

// DriverDirectory answers whether a driver is currently online.
type DriverDirectory interface {
	DriverOnline(ctx context.Context, driverID types.ID) (bool, error)
}

const (
	completionScoreBonus = 1
	cancellationPenalty  = 3
	scheduledLeadWindow  = 30 * time.Minute
)

type Service struct {
	store       Store
	tariffs     TariffSource
	promo       Promo
	route       RouteEstimator
	broadcaster Broadcaster
	activity    ActivityScorer
	chat        ChatHistory
	drivers     DriverDirectory
	log         logger.ILogger
	now         func() time.Time
}

type Deps struct {
	Store       Store
	Tariffs     TariffSource
	Promo       Promo
	Route       RouteEstimator
	Broadcaster Broadcaster
	Activity    ActivityScorer
	Chat        ChatHistory
	Drivers     DriverDirectory
	Log         logger.ILogger
}

func NewService(deps Deps) *Service {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store:       deps.Store,
		tariffs:     deps.Tariffs,
		promo:       deps.Promo,
		route:       deps.Route,
		broadcaster: deps.Broadcaster,
		activity:    deps.Activity,
		chat:        deps.Chat,
		drivers:     deps.Drivers,
		log:         log,
		now:         time.Now,
	}
}

type CreateCommand struct {
	ClientID    types.ID
	TariffID    types.ID
	Pickup      types.Point
	Dropoff     types.Point
	Stops       []types.Point
	Payment     types.PaymentMethod
	ScheduledAt *time.Time
}

type AcceptCommand struct {
	OrderID  types.ID
	DriverID types.ID
}

type AssignCommand struct {
	OrderID      types.ID
	DriverID     types.ID
	DispatcherID types.ID
}

type ArriveCommand struct {
	OrderID  types.ID
	DriverID types.ID
}

type StartCommand struct {
	OrderID  types.ID
	DriverID types.ID
}

type CompleteCommand struct {
	OrderID  types.ID
	DriverID types.ID
}

type CancelCommand struct {
	OrderID   types.ID
	ActorType string // "client", "driver", "dispatcher", "system"
	ActorID   types.ID
	Reason    string
}

// Create validates the tariff, resolves the client's active discount and
// persists the order in requested (or scheduled) state.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Order, error) {
	if cmd.ClientID == "" || cmd.TariffID == "" {
		return nil, ErrBadRequest
	}
	t, err := s.tariffs.Get(ctx, cmd.TariffID)
	if err != nil {
		if errors.Is(err, tariff.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !t.Active {
		return nil, ErrTariffInactive
	}

	active, err := s.store.HasActiveByClient(ctx, cmd.ClientID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, ErrActiveOrder
	}

	distKm, durMin := s.estimateRoute(ctx, cmd.Pickup, cmd.Dropoff, cmd.Stops)
	price := t.PriceFor(distKm)

	discount := types.Money{Currency: price.Currency}
	source := promo.SourceNone
	if s.promo != nil {
		d, src, err := s.promo.ResolveDiscount(ctx, cmd.ClientID, price)
		if err != nil {
			s.log.Warn("discount resolution failed", logger.String("client_id", string(cmd.ClientID)), logger.Error(err))
		} else {
			discount = d
			source = src
		}
	}

	now := s.now()
	status := StatusRequested
	if cmd.ScheduledAt != nil && cmd.ScheduledAt.After(now) {
		status = StatusScheduled
	}

	o := &Order{
		ID:             newID(),
		ClientID:       cmd.ClientID,
		Status:         status,
		TariffID:       cmd.TariffID,
		Price:          price.Sub(discount),
		Discount:       discount,
		DiscountSource: source,
		Pickup:         cmd.Pickup,
		Dropoff:        cmd.Dropoff,
		Stops:          stopsFromPoints(cmd.Stops),
		Payment:        cmd.Payment,
		DistanceKm:     distKm,
		DurationMin:    durMin,
		ScheduledAt:    cmd.ScheduledAt,
		CreatedAt:      now,
	}
	if err := s.store.Create(ctx, o); err != nil {
		return nil, err
	}
	s.appendEvent(ctx, o.ID, StatusNone, status, "client", &cmd.ClientID)

	if status == StatusRequested {
		s.notify(ctx, o, BroadcastAdd)
	}
	return o, nil
}

// Accept binds a driver to a requested or offering order. Exactly one of any
// number of concurrent attempts succeeds; the rest observe ErrConflict (or
// ErrDriverBusy when the driver picked up something else meanwhile).
func (s *Service) Accept(ctx context.Context, cmd AcceptCommand) error {
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return err
	}
	if o.Status == StatusAccepted {
		// Someone else got it first.
		return ErrConflict
	}
	if !CanTransition(o.Status, StatusAccepted) {
		return ErrInvalidState
	}
	ok, err := s.store.BindDriver(ctx, o.ID, o.Status, StatusAccepted, o.StatusVersion, cmd.DriverID)
	if err != nil {
		return err
	}
	if !ok {
		return s.classifyBindFailure(ctx, cmd.DriverID)
	}
	s.appendEvent(ctx, o.ID, o.Status, StatusAccepted, "driver", &cmd.DriverID)
	s.notify(ctx, o, BroadcastRemove)
	return nil
}

// Assign is the dispatcher override: it binds a driver without the driver's
// own accept action. The driver must be online and free.
func (s *Service) Assign(ctx context.Context, cmd AssignCommand) error {
	if s.drivers != nil {
		online, err := s.drivers.DriverOnline(ctx, cmd.DriverID)
		if err != nil {
			return err
		}
		if !online {
			return ErrDriverOffline
		}
	}

	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return err
	}
	if o.Status == StatusAccepted {
		return ErrConflict
	}
	if !CanTransition(o.Status, StatusAccepted) {
		return ErrInvalidState
	}
	ok, err := s.store.BindDriver(ctx, o.ID, o.Status, StatusAccepted, o.StatusVersion, cmd.DriverID)
	if err != nil {
		return err
	}
	if !ok {
		return s.classifyBindFailure(ctx, cmd.DriverID)
	}
	s.appendEvent(ctx, o.ID, o.Status, StatusAccepted, "dispatcher", &cmd.DispatcherID)
	s.notify(ctx, o, BroadcastRemove)
	return nil
}

// MarkOffering moves a requested order into the offering state once the
// dispatcher has fanned it out to drivers.
func (s *Service) MarkOffering(ctx context.Context, orderID types.ID) error {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if !CanTransition(o.Status, StatusOffering) {
		return ErrInvalidState
	}
	ok, err := s.store.UpdateStatus(ctx, o.ID, o.Status, StatusOffering, o.StatusVersion)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	s.appendEvent(ctx, o.ID, o.Status, StatusOffering, "system", nil)
	return nil
}

func (s *Service) Arrive(ctx context.Context, cmd ArriveCommand) error {
	return s.driverTransition(ctx, cmd.OrderID, cmd.DriverID, StatusDriverArrived)
}

func (s *Service) Start(ctx context.Context, cmd StartCommand) error {
	return s.driverTransition(ctx, cmd.OrderID, cmd.DriverID, StatusInProgress)
}

// Complete closes the ride and settles the promo side: consume the applied
// discount and advance the client's progress counters.
func (s *Service) Complete(ctx context.Context, cmd CompleteCommand) error {
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return err
	}
	if err := s.checkOwnership(o, cmd.DriverID); err != nil {
		return err
	}
	if !CanTransition(o.Status, StatusCompleted) {
		return ErrInvalidState
	}
	ok, err := s.store.UpdateStatus(ctx, o.ID, o.Status, StatusCompleted, o.StatusVersion)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	s.appendEvent(ctx, o.ID, o.Status, StatusCompleted, "driver", &cmd.DriverID)

	if s.promo != nil {
		if err := s.promo.SettleCompletion(ctx, o.ClientID, o.Discount, o.DiscountSource, o.DistanceKm); err != nil {
			// The completion is already durable; promo settlement is
			// idempotent and reconciled on the next qualifying ride.
			s.log.Error("promo settlement failed",
				logger.String("order_id", string(o.ID)),
				logger.String("client_id", string(o.ClientID)),
				logger.Error(err))
		}
	}
	if s.activity != nil {
		if err := s.activity.AddActivityScore(ctx, cmd.DriverID, completionScoreBonus); err != nil {
			s.log.Warn("activity score update failed", logger.Error(err))
		}
	}
	s.clearChat(ctx, o.ID)
	s.notify(ctx, o, BroadcastRemove)
	return nil
}

// Cancel moves any non-terminal order to cancelled. Drivers may only cancel
// their own order and take an activity penalty for dropping an accepted one.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) error {
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return err
	}
	if o.Terminal() {
		return ErrInvalidState
	}
	switch cmd.ActorType {
	case "client":
		if o.ClientID != cmd.ActorID {
			return ErrForbidden
		}
	case "driver":
		if o.DriverID == nil || *o.DriverID != cmd.ActorID {
			return ErrForbidden
		}
	}

	wasAccepted := o.DriverID != nil
	ok, err := s.store.CancelOrder(ctx, o.ID, o.Status, o.StatusVersion, cmd.Reason, cmd.ActorType)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	actorID := cmd.ActorID
	var actorRef *types.ID
	if actorID != "" {
		actorRef = &actorID
	}
	s.appendEvent(ctx, o.ID, o.Status, StatusCancelled, cmd.ActorType, actorRef)

	if cmd.ActorType == "driver" && wasAccepted && s.activity != nil {
		if err := s.activity.AddActivityScore(ctx, cmd.ActorID, -cancellationPenalty); err != nil {
			s.log.Warn("activity penalty failed", logger.Error(err))
		}
	}
	s.clearChat(ctx, o.ID)
	s.notify(ctx, o, BroadcastRemove)
	return nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Order, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListBroadcastable(ctx context.Context) ([]*Order, error) {
	return s.store.ListBroadcastable(ctx)
}

func (s *Service) ListByClient(ctx context.Context, clientID types.ID, limit int) ([]*Order, error) {
	return s.store.ListByClient(ctx, clientID, limit)
}

func (s *Service) ListByDriver(ctx context.Context, driverID types.ID, limit int) ([]*Order, error) {
	return s.store.ListByDriver(ctx, driverID, limit)
}

func (s *Service) driverTransition(ctx context.Context, orderID, driverID types.ID, to Status) error {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if err := s.checkOwnership(o, driverID); err != nil {
		return err
	}
	if !CanTransition(o.Status, to) {
		return ErrInvalidState
	}
	ok, err := s.store.UpdateStatus(ctx, o.ID, o.Status, to, o.StatusVersion)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	s.appendEvent(ctx, o.ID, o.Status, to, "driver", &driverID)
	return nil
}

func (s *Service) checkOwnership(o *Order, driverID types.ID) error {
	if o.DriverID == nil || *o.DriverID != driverID {
		return ErrForbidden
	}
	return nil
}

// classifyBindFailure turns a failed BindDriver CAS into the right error:
// the driver being busy elsewhere, or plainly losing the race for this order.
func (s *Service) classifyBindFailure(ctx context.Context, driverID types.ID) error {
	busy, err := s.store.HasActiveByDriver(ctx, driverID)
	if err == nil && busy {
		return ErrDriverBusy
	}
	return ErrConflict
}

func (s *Service) estimateRoute(ctx context.Context, from, to types.Point, stops []types.Point) (float64, float64) {
	if s.route != nil {
		if dist, dur, err := s.route.Estimate(ctx, from, to, stops); err == nil {
			return dist, dur
		}
	}
	// Fallback: straight-line legs through the stops at an urban pace.
	const avgSpeedKmh = 30.0
	dist := 0.0
	prev := from
	for _, p := range stops {
		dist += location.HaversineKm(prev, p)
		prev = p
	}
	dist += location.HaversineKm(prev, to)
	return dist, dist / avgSpeedKmh * 60
}

func (s *Service) appendEvent(ctx context.Context, orderID types.ID, from, to Status, actorType string, actorID *types.ID) {
	err := s.store.AppendEvent(ctx, &Event{
		OrderID:    orderID,
		FromStatus: from,
		ToStatus:   to,
		ActorType:  actorType,
		ActorID:    actorID,
		CreatedAt:  s.now(),
	})
	if err != nil {
		s.log.Warn("append order event failed", logger.String("order_id", string(orderID)), logger.Error(err))
	}
}

func (s *Service) notify(ctx context.Context, o *Order, action BroadcastAction) {
	if s.broadcaster == nil {
		return
	}
	fresh, err := s.store.Get(ctx, o.ID)
	if err != nil {
		fresh = o
	}
	s.broadcaster.OnOrderChanged(ctx, fresh, action)
}

func (s *Service) clearChat(ctx context.Context, orderID types.ID) {
	if s.chat == nil {
		return
	}
	if err := s.chat.Clear(ctx, orderID); err != nil {
		s.log.Warn("chat clear failed", logger.String("order_id", string(orderID)), logger.Error(err))
	}
}

func stopsFromPoints(points []types.Point) []Stop {
	stops := make([]Stop, len(points))
	for i, p := range points {
		stops[i] = Stop{Seq: i + 1, Point: p}
	}
	return stops
}

func newID() types.ID {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return types.ID(hex.EncodeToString(b[:]))
}
