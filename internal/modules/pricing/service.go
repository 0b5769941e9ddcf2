// README: Pricing service resolves the active price table for a route and publishes new versions.
package pricing

import (
	"context"
	"time"

	"lastmile/internal/types"
)

// Lookup finds the single active entry for a key.
type Lookup interface {
	ActiveEntry(ctx context.Context, key Key) (Entry, bool, error)
}

// Catalog is the full price-table collaborator.
type Catalog interface {
	Lookup
	ListActive(ctx context.Context, station string) ([]Entry, error)
	History(ctx context.Context, key Key) ([]Entry, error)
	Publish(ctx context.Context, e Entry) (Entry, error)
}

// Resolve maps vehicleType to its service type codes and returns the first
// active entry for (station, code, ownership).
func Resolve(ctx context.Context, l Lookup, station string, vehicleType types.VehicleType, ownership types.Ownership) (Entry, error) {
	for _, st := range ServiceTypesFor(vehicleType) {
		e, ok, err := l.ActiveEntry(ctx, Key{Station: station, ServiceType: st, Ownership: ownership})
		if err != nil {
			return Entry{}, err
		}
		if ok {
			return e, nil
		}
	}
	return Entry{}, &NoPriceTableError{Station: station, VehicleType: vehicleType, Ownership: ownership}
}

type Service struct {
	store Catalog
	now   func() time.Time
}

func NewService(store Catalog) *Service {
	return &Service{store: store, now: time.Now}
}

func (s *Service) ResolveActive(ctx context.Context, station string, vehicleType types.VehicleType, ownership types.Ownership) (Entry, error) {
	return Resolve(ctx, s.store, station, vehicleType, ownership)
}

func (s *Service) ListActive(ctx context.Context, station string) ([]Entry, error) {
	return s.store.ListActive(ctx, station)
}

func (s *Service) History(ctx context.Context, key Key) ([]Entry, error) {
	return s.store.History(ctx, key)
}

// PublishVersion makes e the active entry for its key. The previous active
// version is closed (effectiveTo set) and kept for history.
func (s *Service) PublishVersion(ctx context.Context, e Entry) (Entry, error) {
	if err := e.validate(); err != nil {
		return Entry{}, err
	}
	if e.ID == "" {
		e.ID = types.NewID()
	}
	if e.EffectiveFrom.IsZero() {
		e.EffectiveFrom = s.now().UTC()
	}
	return s.store.Publish(ctx, e)
}
