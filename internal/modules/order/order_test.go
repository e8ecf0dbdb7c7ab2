package order

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"taxihub/internal/modules/promo"
	"taxihub/internal/modules/tariff"
	"taxihub/internal/types"
)

// memStore is an in-memory Store with the same conditional-update semantics
// as the PostgreSQL implementation.
type memStore struct {
	mu     sync.Mutex
	orders map[types.ID]*Order
	events []*Event
}

func newMemStore() *memStore {
	return &memStore{orders: make(map[types.ID]*Order)}
}

func cloneOrder(o *Order) *Order {
	c := *o
	if o.DriverID != nil {
		d := *o.DriverID
		c.DriverID = &d
	}
	c.Stops = append([]Stop(nil), o.Stops...)
	return &c
}

func (m *memStore) Create(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = cloneOrder(o)
	return nil
}

func (m *memStore) Get(_ context.Context, id types.ID) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (m *memStore) UpdateStatus(_ context.Context, id types.ID, from, to Status, version int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != from || o.StatusVersion != version {
		return false, nil
	}
	o.Status = to
	o.StatusVersion++
	now := time.Now()
	switch to {
	case StatusDriverArrived:
		o.ArrivedAt = &now
	case StatusInProgress:
		o.StartedAt = &now
	case StatusCompleted:
		o.CompletedAt = &now
	}
	return true, nil
}

func (m *memStore) BindDriver(_ context.Context, id types.ID, from, to Status, version int, driverID types.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.orders {
		if other.DriverID != nil && *other.DriverID == driverID && !other.Terminal() {
			return false, nil
		}
	}
	o, ok := m.orders[id]
	if !ok || o.Status != from || o.StatusVersion != version {
		return false, nil
	}
	d := driverID
	o.DriverID = &d
	o.Status = to
	o.StatusVersion++
	now := time.Now()
	o.AcceptedAt = &now
	return true, nil
}

func (m *memStore) CancelOrder(_ context.Context, id types.ID, from Status, version int, reason, actor string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != from || o.StatusVersion != version {
		return false, nil
	}
	o.Status = StatusCancelled
	o.StatusVersion++
	o.DriverID = nil
	now := time.Now()
	o.CancelledAt = &now
	o.CancelReason = &reason
	o.CancelActor = &actor
	return true, nil
}

func (m *memStore) AppendEvent(_ context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memStore) HasActiveByClient(_ context.Context, clientID types.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ClientID == clientID && !o.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) HasActiveByDriver(_ context.Context, driverID types.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.DriverID != nil && *o.DriverID == driverID && !o.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) ListBroadcastable(_ context.Context) ([]*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Order
	for _, o := range m.orders {
		if o.Status == StatusRequested || o.Status == StatusOffering {
			out = append(out, cloneOrder(o))
		}
	}
	return out, nil
}

func (m *memStore) ListUnacceptedBefore(_ context.Context, cutoff time.Time) ([]*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Order
	for _, o := range m.orders {
		if (o.Status == StatusRequested || o.Status == StatusOffering) && o.CreatedAt.Before(cutoff) {
			out = append(out, cloneOrder(o))
		}
	}
	return out, nil
}

func (m *memStore) ListScheduledDue(_ context.Context, by time.Time) ([]*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Order
	for _, o := range m.orders {
		if o.Status == StatusScheduled && o.ScheduledAt != nil && !o.ScheduledAt.After(by) {
			out = append(out, cloneOrder(o))
		}
	}
	return out, nil
}

func (m *memStore) ListByClient(_ context.Context, clientID types.ID, limit int) ([]*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Order
	for _, o := range m.orders {
		if o.ClientID == clientID {
			out = append(out, cloneOrder(o))
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) ListByDriver(_ context.Context, driverID types.ID, limit int) ([]*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Order
	for _, o := range m.orders {
		if o.DriverID != nil && *o.DriverID == driverID {
			out = append(out, cloneOrder(o))
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

type memTariffs struct {
	tariffs map[types.ID]tariff.Tariff
}

func (m *memTariffs) Get(_ context.Context, id types.ID) (tariff.Tariff, error) {
	t, ok := m.tariffs[id]
	if !ok {
		return tariff.Tariff{}, tariff.ErrNotFound
	}
	return t, nil
}

type stubPromo struct {
	mu       sync.Mutex
	discount types.Money
	source   promo.DiscountSource
	settled  []types.Money
	sources  []promo.DiscountSource
}

func (p *stubPromo) ResolveDiscount(_ context.Context, _ types.ID, _ types.Money) (types.Money, promo.DiscountSource, error) {
	return p.discount, p.source, nil
}

func (p *stubPromo) SettleCompletion(_ context.Context, _ types.ID, discount types.Money, source promo.DiscountSource, _ float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settled = append(p.settled, discount)
	p.sources = append(p.sources, source)
	return nil
}

type scoreRecorder struct {
	mu     sync.Mutex
	deltas map[types.ID]int
}

func (r *scoreRecorder) AddActivityScore(_ context.Context, driverID types.ID, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deltas == nil {
		r.deltas = make(map[types.ID]int)
	}
	r.deltas[driverID] += delta
	return nil
}

type actionRecorder struct {
	mu      sync.Mutex
	actions []BroadcastAction
}

func (r *actionRecorder) OnOrderChanged(_ context.Context, _ *Order, action BroadcastAction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, action)
}

func testTariffs() *memTariffs {
	return &memTariffs{tariffs: map[types.ID]tariff.Tariff{
		"standard": {
			ID:       "standard",
			Name:     "Standard",
			Active:   true,
			BaseFare: types.Money{Amount: 100, Currency: "UZS"},
			PerKm:    10,
		},
		"retired": {ID: "retired", Name: "Retired", Active: false},
	}}
}

func newTestService(store Store, p Promo) *Service {
	return NewService(Deps{
		Store:   store,
		Tariffs: testTariffs(),
		Promo:   p,
	})
}

func createRequested(t *testing.T, svc *Service, clientID types.ID) *Order {
	t.Helper()
	o, err := svc.Create(context.Background(), CreateCommand{
		ClientID: clientID,
		TariffID: "standard",
		Pickup:   types.Point{Lat: 41.31, Lng: 69.24},
		Dropoff:  types.Point{Lat: 41.35, Lng: 69.30},
		Payment:  types.PayCash,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return o
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusRequested, StatusAccepted, true},
		{StatusRequested, StatusOffering, true},
		{StatusOffering, StatusAccepted, true},
		{StatusAccepted, StatusDriverArrived, true},
		{StatusAccepted, StatusCompleted, true},
		{StatusDriverArrived, StatusInProgress, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusScheduled, StatusRequested, true},
		{StatusRequested, StatusCancelled, true},
		{StatusInProgress, StatusCancelled, true},

		{StatusRequested, StatusInProgress, false},
		{StatusAccepted, StatusRequested, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusRequested, false},
		{StatusCompleted, StatusInProgress, false},
		{StatusDriverArrived, StatusAccepted, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestCreateComputesPriceAndDiscount(t *testing.T) {
	store := newMemStore()
	rewards := &stubPromo{discount: types.Money{Amount: 20, Currency: "UZS"}, source: promo.SourceTaskReward}
	svc := newTestService(store, rewards)

	o := createRequested(t, svc, "client-1")

	if o.Status != StatusRequested {
		t.Fatalf("status = %s, want requested", o.Status)
	}
	if o.Discount.Amount != 20 {
		t.Fatalf("discount = %d, want 20", o.Discount.Amount)
	}
	if o.DistanceKm <= 0 {
		t.Fatalf("distance = %f, want > 0", o.DistanceKm)
	}
	full := o.Price.Amount + o.Discount.Amount
	if full <= 100 {
		t.Fatalf("full price = %d, want > base fare", full)
	}
}

func TestCreateRejectsSecondActiveOrder(t *testing.T) {
	svc := newTestService(newMemStore(), nil)

	createRequested(t, svc, "client-1")
	_, err := svc.Create(context.Background(), CreateCommand{
		ClientID: "client-1",
		TariffID: "standard",
		Payment:  types.PayCash,
	})
	if !errors.Is(err, ErrActiveOrder) {
		t.Fatalf("err = %v, want ErrActiveOrder", err)
	}
}

func TestCreateInactiveTariff(t *testing.T) {
	svc := newTestService(newMemStore(), nil)

	_, err := svc.Create(context.Background(), CreateCommand{
		ClientID: "client-1",
		TariffID: "retired",
		Payment:  types.PayCash,
	})
	if !errors.Is(err, ErrTariffInactive) {
		t.Fatalf("err = %v, want ErrTariffInactive", err)
	}
}

func TestMarkOfferingThenAccept(t *testing.T) {
	store := newMemStore()
	svc := NewService(Deps{Store: store, Tariffs: testTariffs()})
	ctx := context.Background()

	o := createRequested(t, svc, "client-1")
	if err := svc.MarkOffering(ctx, o.ID); err != nil {
		t.Fatalf("mark offering: %v", err)
	}
	cur, _ := store.Get(ctx, o.ID)
	if cur.Status != StatusOffering {
		t.Fatalf("status = %s, want %s", cur.Status, StatusOffering)
	}

	// Flipping again is rejected but acceptance still goes through.
	if err := svc.MarkOffering(ctx, o.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second mark offering: %v, want ErrInvalidState", err)
	}
	if err := svc.Accept(ctx, AcceptCommand{OrderID: o.ID, DriverID: "driver-1"}); err != nil {
		t.Fatalf("accept from offering: %v", err)
	}
}

func TestLifecycleHappyPath(t *testing.T) {
	store := newMemStore()
	rewards := &stubPromo{discount: types.Money{Amount: 20, Currency: "UZS"}, source: promo.SourceTaskReward}
	scores := &scoreRecorder{}
	svc := NewService(Deps{
		Store:    store,
		Tariffs:  testTariffs(),
		Promo:    rewards,
		Activity: scores,
	})
	ctx := context.Background()

	o := createRequested(t, svc, "client-1")

	if err := svc.Accept(ctx, AcceptCommand{OrderID: o.ID, DriverID: "driver-1"}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	cur, _ := store.Get(ctx, o.ID)
	if cur.DriverID == nil || *cur.DriverID != "driver-1" {
		t.Fatal("driver not bound after accept")
	}

	if err := svc.Arrive(ctx, ArriveCommand{OrderID: o.ID, DriverID: "driver-1"}); err != nil {
		t.Fatalf("arrive: %v", err)
	}
	if err := svc.Start(ctx, StartCommand{OrderID: o.ID, DriverID: "driver-1"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.Complete(ctx, CompleteCommand{OrderID: o.ID, DriverID: "driver-1"}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	cur, _ = store.Get(ctx, o.ID)
	if cur.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", cur.Status)
	}
	if cur.DriverID == nil {
		t.Fatal("completed order must keep its driver")
	}
	if len(rewards.settled) != 1 || rewards.settled[0].Amount != 20 {
		t.Fatalf("settled = %v, want one settlement of 20", rewards.settled)
	}
	if len(rewards.sources) != 1 || rewards.sources[0] != promo.SourceTaskReward {
		t.Fatalf("settled sources = %v, want the creation-time source", rewards.sources)
	}
	if scores.deltas["driver-1"] != completionScoreBonus {
		t.Fatalf("driver score delta = %d, want %d", scores.deltas["driver-1"], completionScoreBonus)
	}
}

func TestCompleteStraightFromAccepted(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	o := createRequested(t, svc, "client-1")
	if err := svc.Accept(ctx, AcceptCommand{OrderID: o.ID, DriverID: "driver-1"}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := svc.Complete(ctx, CompleteCommand{OrderID: o.ID, DriverID: "driver-1"}); err != nil {
		t.Fatalf("complete: %v", err)
	}
}

func TestDriverOwnership(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	o := createRequested(t, svc, "client-1")
	if err := svc.Accept(ctx, AcceptCommand{OrderID: o.ID, DriverID: "driver-1"}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := svc.Start(ctx, StartCommand{OrderID: o.ID, DriverID: "driver-2"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign start err = %v, want ErrForbidden", err)
	}
	if err := svc.Complete(ctx, CompleteCommand{OrderID: o.ID, DriverID: "driver-2"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign complete err = %v, want ErrForbidden", err)
	}
}

func TestConcurrentAcceptExactlyOneWins(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	o := createRequested(t, svc, "client-1")

	const drivers = 16
	var wg sync.WaitGroup
	errs := make([]error, drivers)
	for i := 0; i < drivers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			driverID := types.ID("driver-" + string(rune('a'+n)))
			errs[n] = svc.Accept(ctx, AcceptCommand{OrderID: o.ID, DriverID: driverID})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrConflict), errors.Is(err, ErrInvalidState):
		default:
			t.Fatalf("unexpected accept error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("wins = %d, want exactly 1", wins)
	}

	cur, _ := store.Get(ctx, o.ID)
	if cur.Status != StatusAccepted || cur.DriverID == nil {
		t.Fatalf("order after race: status=%s driver=%v", cur.Status, cur.DriverID)
	}
}

func TestAcceptBusyDriver(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	first := createRequested(t, svc, "client-1")
	if err := svc.Accept(ctx, AcceptCommand{OrderID: first.ID, DriverID: "driver-1"}); err != nil {
		t.Fatalf("accept first: %v", err)
	}

	second := createRequested(t, svc, "client-2")
	err := svc.Accept(ctx, AcceptCommand{OrderID: second.ID, DriverID: "driver-1"})
	if !errors.Is(err, ErrDriverBusy) {
		t.Fatalf("err = %v, want ErrDriverBusy", err)
	}
}

func TestCancelClearsDriver(t *testing.T) {
	store := newMemStore()
	scores := &scoreRecorder{}
	svc := NewService(Deps{
		Store:    store,
		Tariffs:  testTariffs(),
		Activity: scores,
	})
	ctx := context.Background()

	o := createRequested(t, svc, "client-1")
	if err := svc.Accept(ctx, AcceptCommand{OrderID: o.ID, DriverID: "driver-1"}); err != nil {
		t.Fatalf("accept: %v", err)
	}

	err := svc.Cancel(ctx, CancelCommand{
		OrderID:   o.ID,
		ActorType: "driver",
		ActorID:   "driver-1",
		Reason:    "flat tire",
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}

	cur, _ := store.Get(ctx, o.ID)
	if cur.Status != StatusCancelled {
		t.Fatalf("status = %s, want cancelled", cur.Status)
	}
	if cur.DriverID != nil {
		t.Fatal("cancelled order must not keep a driver binding")
	}
	if cur.CancelReason == nil || *cur.CancelReason != "flat tire" {
		t.Fatalf("reason = %v, want flat tire", cur.CancelReason)
	}
	if scores.deltas["driver-1"] != -cancellationPenalty {
		t.Fatalf("penalty = %d, want %d", scores.deltas["driver-1"], -cancellationPenalty)
	}
}

func TestCancelGuards(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	o := createRequested(t, svc, "client-1")

	err := svc.Cancel(ctx, CancelCommand{OrderID: o.ID, ActorType: "client", ActorID: "client-2"})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign client cancel err = %v, want ErrForbidden", err)
	}

	if err := svc.Cancel(ctx, CancelCommand{OrderID: o.ID, ActorType: "client", ActorID: "client-1"}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	err = svc.Cancel(ctx, CancelCommand{OrderID: o.ID, ActorType: "client", ActorID: "client-1"})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("terminal cancel err = %v, want ErrInvalidState", err)
	}
}

func TestScheduledOrderLifecycle(t *testing.T) {
	store := newMemStore()
	rec := &actionRecorder{}
	svc := NewService(Deps{
		Store:       store,
		Tariffs:     testTariffs(),
		Broadcaster: rec,
	})
	ctx := context.Background()

	at := time.Now().Add(2 * time.Hour)
	o, err := svc.Create(ctx, CreateCommand{
		ClientID:    "client-1",
		TariffID:    "standard",
		Payment:     types.PayCash,
		ScheduledAt: &at,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if o.Status != StatusScheduled {
		t.Fatalf("status = %s, want scheduled", o.Status)
	}
	if len(rec.actions) != 0 {
		t.Fatal("scheduled order must not be broadcast on creation")
	}

	// Not yet inside the lead window.
	if n, _ := svc.PromoteScheduled(ctx); n != 0 {
		t.Fatalf("promoted = %d, want 0", n)
	}

	svc.now = func() time.Time { return at.Add(-10 * time.Minute) }
	n, err := svc.PromoteScheduled(ctx)
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if n != 1 {
		t.Fatalf("promoted = %d, want 1", n)
	}
	cur, _ := store.Get(ctx, o.ID)
	if cur.Status != StatusRequested {
		t.Fatalf("status = %s, want requested", cur.Status)
	}
	if len(rec.actions) != 1 || rec.actions[0] != BroadcastAdd {
		t.Fatalf("actions = %v, want one ADD", rec.actions)
	}
}

func TestExpireUnaccepted(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	o := createRequested(t, svc, "client-1")

	if n, _ := svc.ExpireUnaccepted(ctx, time.Hour); n != 0 {
		t.Fatalf("expired = %d, want 0 while fresh", n)
	}

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	n, err := svc.ExpireUnaccepted(ctx, time.Hour)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired = %d, want 1", n)
	}
	cur, _ := store.Get(ctx, o.ID)
	if cur.Status != StatusCancelled {
		t.Fatalf("status = %s, want cancelled", cur.Status)
	}
	if cur.CancelActor == nil || *cur.CancelActor != "system" {
		t.Fatalf("actor = %v, want system", cur.CancelActor)
	}
}

func TestBroadcastActions(t *testing.T) {
	store := newMemStore()
	rec := &actionRecorder{}
	svc := NewService(Deps{
		Store:       store,
		Tariffs:     testTariffs(),
		Broadcaster: rec,
	})
	ctx := context.Background()

	o := createRequested(t, svc, "client-1")
	if err := svc.Accept(ctx, AcceptCommand{OrderID: o.ID, DriverID: "driver-1"}); err != nil {
		t.Fatalf("accept: %v", err)
	}

	if len(rec.actions) != 2 || rec.actions[0] != BroadcastAdd || rec.actions[1] != BroadcastRemove {
		t.Fatalf("actions = %v, want [ADD REMOVE]", rec.actions)
	}
}
