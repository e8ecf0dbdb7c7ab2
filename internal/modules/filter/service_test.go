package filter

import (
	"context"
	"testing"

	"taxihub/internal/types"
)

// memFilterStore is an in-memory Store for service tests.
type memFilterStore struct {
	filters map[types.ID]*Filter
}

func newMemFilterStore() *memFilterStore {
	return &memFilterStore{filters: make(map[types.ID]*Filter)}
}

func (m *memFilterStore) Create(_ context.Context, f *Filter) error {
	cp := *f
	m.filters[f.ID] = &cp
	return nil
}

func (m *memFilterStore) Update(_ context.Context, f *Filter) (bool, error) {
	cur, ok := m.filters[f.ID]
	if !ok || cur.DriverID != f.DriverID {
		return false, nil
	}
	cp := *f
	m.filters[f.ID] = &cp
	return true, nil
}

func (m *memFilterStore) Delete(_ context.Context, driverID, id types.ID) (bool, error) {
	cur, ok := m.filters[id]
	if !ok || cur.DriverID != driverID {
		return false, nil
	}
	delete(m.filters, id)
	return true, nil
}

func (m *memFilterStore) Get(_ context.Context, id types.ID) (*Filter, error) {
	f, ok := m.filters[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (m *memFilterStore) ListByDriver(_ context.Context, driverID types.ID) ([]*Filter, error) {
	var out []*Filter
	for _, f := range m.filters {
		if f.DriverID == driverID {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memFilterStore) ListEnabledByDriver(ctx context.Context, driverID types.ID) ([]*Filter, error) {
	all, _ := m.ListByDriver(ctx, driverID)
	var out []*Filter
	for _, f := range all {
		if f.Enabled {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *memFilterStore) ExistsByName(_ context.Context, driverID types.ID, name string) (bool, error) {
	for _, f := range m.filters {
		if f.DriverID == driverID && f.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (m *memFilterStore) SetEnabled(_ context.Context, driverID, id types.ID, enabled bool) (bool, error) {
	f, ok := m.filters[id]
	if !ok || f.DriverID != driverID {
		return false, nil
	}
	f.Enabled = enabled
	return true, nil
}

func validFilter(id types.ID, name string) *Filter {
	f := radiusFilter()
	f.ID = id
	f.Name = name
	return f
}

func TestServiceCreate_DuplicateName(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemFilterStore())

	if err := svc.Create(ctx, validFilter("f1", "home")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Create(ctx, validFilter("f2", "home")); err != ErrDuplicateName {
		t.Fatalf("duplicate name: got %v, want ErrDuplicateName", err)
	}
	// Same name under another driver is fine.
	other := validFilter("f3", "home")
	other.DriverID = "d2"
	if err := svc.Create(ctx, other); err != nil {
		t.Fatalf("create for other driver: %v", err)
	}
}

func TestServiceCreate_Validation(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemFilterStore())

	cases := []struct {
		name   string
		mutate func(*Filter)
	}{
		{"missing name", func(f *Filter) { f.Name = "" }},
		{"radius mode without radius", func(f *Filter) { f.PickupRadiusKm = 0 }},
		{"unknown pickup mode", func(f *Filter) { f.PickupMode = "teleport" }},
		{"unknown pricing mode", func(f *Filter) { f.PricingMode = "auction" }},
		{"composite without threshold", func(f *Filter) {
			f.PricingMode = PricingComposite
			f.Composite.DurationThresholdMin = 0
		}},
		{"unknown payment method", func(f *Filter) {
			f.Payments = []types.PaymentMethod{"barter"}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := validFilter("fx", "x")
			tc.mutate(f)
			if err := svc.Create(ctx, f); err != ErrInvalidFilter {
				t.Errorf("got %v, want ErrInvalidFilter", err)
			}
		})
	}
}

func TestServiceToggleAndDelete_Scoping(t *testing.T) {
	ctx := context.Background()
	store := newMemFilterStore()
	svc := NewService(store)

	if err := svc.Create(ctx, validFilter("f1", "home")); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Another driver cannot toggle or delete someone else's filter.
	if err := svc.Toggle(ctx, "d2", "f1", false); err != ErrNotFound {
		t.Fatalf("foreign toggle: got %v, want ErrNotFound", err)
	}
	if err := svc.Delete(ctx, "d2", "f1"); err != ErrNotFound {
		t.Fatalf("foreign delete: got %v, want ErrNotFound", err)
	}

	if err := svc.Toggle(ctx, "d1", "f1", false); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	enabled, _ := svc.ListEnabledByDriver(ctx, "d1")
	if len(enabled) != 0 {
		t.Fatalf("expected no enabled filters, got %d", len(enabled))
	}

	if err := svc.Delete(ctx, "d1", "f1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "f1"); err != ErrNotFound {
		t.Fatal("filter still present after delete")
	}
}
