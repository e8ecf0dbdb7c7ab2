// README: Filter CRUD service; filters are owned and edited by their driver.
package filter

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"

	"taxihub/internal/types"
)

var (
	ErrNotFound      = errors.New("filter not found")
	ErrDuplicateName = errors.New("filter name already in use")
	ErrInvalidFilter = errors.New("invalid filter configuration")
)

type Store interface {
	Create(ctx context.Context, f *Filter) error
	Update(ctx context.Context, f *Filter) (bool, error)
	Delete(ctx context.Context, driverID, id types.ID) (bool, error)
	Get(ctx context.Context, id types.ID) (*Filter, error)
	ListByDriver(ctx context.Context, driverID types.ID) ([]*Filter, error)
	ListEnabledByDriver(ctx context.Context, driverID types.ID) ([]*Filter, error)
	ExistsByName(ctx context.Context, driverID types.ID, name string) (bool, error)
	SetEnabled(ctx context.Context, driverID, id types.ID, enabled bool) (bool, error)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func newID() types.ID {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return types.ID(hex.EncodeToString(b[:]))
}

func (s *Service) Create(ctx context.Context, f *Filter) error {
	if err := validate(f); err != nil {
		return err
	}
	exists, err := s.store.ExistsByName(ctx, f.DriverID, f.Name)
	if err != nil {
		return err
	}
	if exists {
		return ErrDuplicateName
	}
	if f.ID == "" {
		f.ID = newID()
	}
	return s.store.Create(ctx, f)
}

func (s *Service) Update(ctx context.Context, f *Filter) error {
	if err := validate(f); err != nil {
		return err
	}
	ok, err := s.store.Update(ctx, f)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *Service) Toggle(ctx context.Context, driverID, id types.ID, enabled bool) error {
	ok, err := s.store.SetEnabled(ctx, driverID, id, enabled)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *Service) Delete(ctx context.Context, driverID, id types.ID) error {
	ok, err := s.store.Delete(ctx, driverID, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *Service) ListByDriver(ctx context.Context, driverID types.ID) ([]*Filter, error) {
	return s.store.ListByDriver(ctx, driverID)
}

func (s *Service) ListEnabledByDriver(ctx context.Context, driverID types.ID) ([]*Filter, error) {
	return s.store.ListEnabledByDriver(ctx, driverID)
}

func validate(f *Filter) error {
	if f.DriverID == "" || f.Name == "" {
		return ErrInvalidFilter
	}
	switch f.PickupMode {
	case ModeRadius:
		if f.PickupRadiusKm <= 0 {
			return ErrInvalidFilter
		}
	case ModeSectors:
		// An empty sector list is legal but matches nothing; the driver is
		// warned client-side. Unknown modes are rejected.
	default:
		return ErrInvalidFilter
	}
	switch f.PricingMode {
	case PricingSimple, PricingComposite:
	default:
		return ErrInvalidFilter
	}
	if f.PricingMode == PricingComposite && f.Composite.DurationThresholdMin <= 0 {
		return ErrInvalidFilter
	}
	for _, p := range f.Payments {
		if p != types.PayCash && p != types.PayCard {
			return ErrInvalidFilter
		}
	}
	return nil
}
