package route

import (
	"context"
	"time"

	"lastmile/internal/modules/pricing"
	"lastmile/internal/types"
)

// Tx is the unit of work every state change runs in. GetRoute and GetOffer
// lock the row until the transaction ends. Callers lock route before offer
// before slot.
type Tx interface {
	GetRoute(ctx context.Context, id types.ID) (*Route, error)
	InsertRoute(ctx context.Context, r *Route) error
	// UpdateRoute persists the mutable columns. The price snapshot is not among them.
	UpdateRoute(ctx context.Context, r *Route) error

	GetOffer(ctx context.Context, id types.ID) (*Offer, error)
	// ActiveOffer returns the route's active offer, or nil.
	ActiveOffer(ctx context.Context, routeID types.ID) (*Offer, error)
	InsertOffer(ctx context.Context, o *Offer) error
	UpdateOffer(ctx context.Context, o *Offer) error

	// ClaimSlot records offerID as the holder of key. When the key is already
	// held it returns ok=false and the holding offer.
	ClaimSlot(ctx context.Context, key SlotKey, offerID types.ID) (holder types.ID, ok bool, err error)
	ReleaseSlot(ctx context.Context, key SlotKey, offerID types.ID) error

	AppendEvent(ctx context.Context, e *Event) error

	// Prices reads price tables inside this transaction.
	Prices() pricing.Lookup
}

type Repository interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error

	GetRoute(ctx context.Context, id types.ID) (*Route, error)
	ListRoutes(ctx context.Context, f Filter) ([]Route, error)
	GetOffer(ctx context.Context, id types.ID) (*Offer, error)
	ListOffers(ctx context.Context, routeID types.ID) ([]Offer, error)
	Events(ctx context.Context, routeID types.ID) ([]Event, error)
	// SlotHolders maps each driver holding a slot for the tuple to the holding offer.
	SlotHolders(ctx context.Context, date time.Time, cycle types.Cycle, vehicleType types.VehicleType) (map[types.ID]types.ID, error)
}
