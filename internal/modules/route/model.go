// README: Route aggregate, offers, exclusivity slots and the route state flow.
package route

import (
	"time"

	"lastmile/internal/modules/pricing"
	"lastmile/internal/types"
)

type Status string

const (
	StatusNone      Status = ""
	StatusAvailable Status = "DISPONIVEL"
	StatusOffered   Status = "OFERTADA"
	StatusAccepted  Status = "ACEITA"
	StatusRefused   Status = "RECUSADA"
	StatusConfirmed Status = "CONFIRMADA"
	StatusValidated Status = "VALIDADA"
	StatusCancelled Status = "CANCELADA"
)

type OfferStatus string

const (
	OfferPending  OfferStatus = "PENDENTE"
	OfferAccepted OfferStatus = "ACEITA"
	OfferRefused  OfferStatus = "RECUSADA"
)

// HoldsSlot reports whether an offer in this status occupies its driver's slot.
func (s OfferStatus) HoldsSlot() bool {
	return s == OfferPending || s == OfferAccepted
}

type Type string

const (
	TypeDelivery Type = "DELIVERY"
	TypeRescue   Type = "RESCUE"
	TypeExtra    Type = "EXTRA"
)

func (t Type) Valid() bool {
	return t == TypeDelivery || t == TypeRescue || t == TypeExtra
}

// Rescue describes the route a rescue run picks packages up from.
type Rescue struct {
	RescuedRouteID types.ID    `json:"rescued_route_id"`
	StopCount      int         `json:"stop_count"`
	LocationCount  int         `json:"location_count"`
	PackageCount   int         `json:"package_count"`
	Origin         types.Point `json:"origin"`
}

type Route struct {
	ID            types.ID          `json:"id"`
	Date          time.Time         `json:"date"`
	StartTime     string            `json:"start_time"`
	EndTime       string            `json:"end_time,omitempty"`
	Code          string            `json:"code,omitempty"`
	VehicleType   types.VehicleType `json:"vehicle_type"`
	Type          Type              `json:"route_type"`
	Cycle         types.Cycle       `json:"cycle"`
	DurationHours float64           `json:"duration_hours"`
	Ownership     types.Ownership   `json:"ownership"`
	LocationID    types.ID          `json:"location_id"`
	// Price is frozen at creation; nothing writes it afterwards.
	Price            pricing.Snapshot `json:"price"`
	RealKm           *float64         `json:"real_km,omitempty"`
	FinalValue       *float64         `json:"final_value,omitempty"`
	Status           Status           `json:"status"`
	StatusVersion    int              `json:"status_version"`
	AssignedDriverID *types.ID        `json:"assigned_driver_id,omitempty"`
	PackageCount     int              `json:"package_count"`
	LocationCount    int              `json:"location_count"`
	StopCount        int              `json:"stop_count"`
	ActualStartTime  *time.Time       `json:"actual_start_time,omitempty"`
	Rescue           *Rescue          `json:"rescue,omitempty"`
	CancelReason     string           `json:"cancel_reason,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	ValidatedAt      *time.Time       `json:"validated_at,omitempty"`
}

// SlotFor is the exclusivity key driverID would occupy on this route.
func (r *Route) SlotFor(driverID types.ID) SlotKey {
	return SlotKey{
		Date:        types.FormatDate(r.Date),
		Cycle:       r.Cycle,
		VehicleType: r.VehicleType,
		DriverID:    driverID,
	}
}

type Offer struct {
	ID            types.ID    `json:"id"`
	RouteID       types.ID    `json:"route_id"`
	DriverID      types.ID    `json:"driver_id"`
	Status        OfferStatus `json:"status"`
	Active        bool        `json:"active"`
	CreatedAt     time.Time   `json:"created_at"`
	RespondedAt   *time.Time  `json:"responded_at,omitempty"`
	DeactivatedAt *time.Time  `json:"deactivated_at,omitempty"`
}

// SlotKey is the exclusivity key: one active PENDENTE/ACEITA offer per driver
// per (date, cycle, vehicle type), across all routes.
type SlotKey struct {
	Date        string            `json:"date"`
	Cycle       types.Cycle       `json:"cycle"`
	VehicleType types.VehicleType `json:"vehicle_type"`
	DriverID    types.ID          `json:"driver_id"`
}

type Event struct {
	ID         int64     `json:"id"`
	RouteID    types.ID  `json:"route_id"`
	FromStatus Status    `json:"from_status"`
	ToStatus   Status    `json:"to_status"`
	Operation  Operation `json:"operation"`
	ActorID    *types.ID `json:"actor_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Filter narrows ListRoutes. Zero values match everything.
type Filter struct {
	Date     *time.Time
	Status   Status
	DriverID types.ID
	Limit    int
}

type Operation string

const (
	OpCreateRoute  Operation = "create_route"
	OpCreateOffer  Operation = "create_offer"
	OpRespondOffer Operation = "respond_offer"
	OpReoffer      Operation = "reoffer_route"
	OpCancelOffer  Operation = "cancel_offer"
	OpCancelRoute  Operation = "cancel_route"
	OpConfirm      Operation = "confirm_route"
	OpValidate     Operation = "validate_route"
)

// AllowedTransitions represents the route state flow (diagram) as code.
var AllowedTransitions = map[Status][]Status{
	StatusNone:      {StatusAvailable},
	StatusAvailable: {StatusOffered},
	StatusOffered:   {StatusAccepted, StatusRefused, StatusOffered, StatusAvailable, StatusCancelled},
	StatusAccepted:  {StatusConfirmed, StatusOffered, StatusAvailable, StatusCancelled},
	StatusRefused:   {StatusOffered},
	StatusConfirmed: {StatusValidated, StatusOffered, StatusAvailable, StatusCancelled},
}

// operationSources narrows the flow per operation: e.g. createOffer may not
// run on an OFERTADA route even though OFERTADA -> OFERTADA exists for re-offers.
var operationSources = map[Operation][]Status{
	OpCreateOffer:  {StatusAvailable, StatusRefused},
	OpRespondOffer: {StatusOffered},
	OpReoffer:      {StatusOffered, StatusAccepted, StatusConfirmed, StatusRefused},
	OpCancelOffer:  {StatusOffered, StatusAccepted, StatusConfirmed},
	OpCancelRoute:  {StatusOffered, StatusAccepted, StatusConfirmed},
	OpConfirm:      {StatusAccepted},
	OpValidate:     {StatusConfirmed},
}

func CanTransition(from, to Status) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanApply reports whether op may run on a route currently in from.
func CanApply(op Operation, from Status) bool {
	for _, s := range operationSources[op] {
		if s == from {
			return true
		}
	}
	return false
}
