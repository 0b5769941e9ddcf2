// README: Route service drives the offer/confirmation/validation lifecycle.
// Every state change runs in one repository transaction together with its
// offer, slot and event writes.
package route

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lastmile/internal/infra/logger"
	"lastmile/internal/modules/driver"
	"lastmile/internal/modules/eligibility"
	"lastmile/internal/modules/location"
	"lastmile/internal/modules/pricing"
	"lastmile/internal/types"
)

type DriverReader interface {
	Get(ctx context.Context, id types.ID) (driver.Driver, error)
}

// DistanceEstimator projects the driving distance for rescue routes.
type DistanceEstimator interface {
	DistanceKm(ctx context.Context, from, to types.Point) (float64, error)
}

type Metrics interface {
	ObserveOperation(op, outcome string)
	RoutesCreated(n int)
	RouteSettled(finalValue float64)
}

type NopMetrics struct{}

func (NopMetrics) ObserveOperation(string, string) {}
func (NopMetrics) RoutesCreated(int)               {}
func (NopMetrics) RouteSettled(float64)            {}

type Deps struct {
	Drivers   DriverReader
	Locations location.Directory
	Distance  DistanceEstimator
	Metrics   Metrics
	Log       logger.Logger
	Now       func() time.Time
}

type Service struct {
	repo      Repository
	drivers   DriverReader
	locations location.Directory
	distance  DistanceEstimator
	metrics   Metrics
	log       logger.Logger
	now       func() time.Time
}

func NewService(repo Repository, deps Deps) *Service {
	s := &Service{
		repo:      repo,
		drivers:   deps.Drivers,
		locations: deps.Locations,
		distance:  deps.Distance,
		metrics:   deps.Metrics,
		log:       deps.Log,
		now:       deps.Now,
	}
	if s.metrics == nil {
		s.metrics = NopMetrics{}
	}
	if s.log == nil {
		s.log = logger.NopLogger{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

type RescueInput struct {
	RescuedRouteID types.ID    `json:"rescued_route_id"`
	StopCount      int         `json:"stop_count"`
	LocationCount  int         `json:"location_count"`
	PackageCount   int         `json:"package_count"`
	Origin         types.Point `json:"origin"`
}

type CreateCommand struct {
	Date          time.Time
	StartTime     string
	EndTime       string
	Code          string
	LocationID    types.ID
	VehicleType   types.VehicleType
	Type          Type
	Cycle         types.Cycle
	DurationHours float64
	Ownership     types.Ownership
	// ProjectedKm is estimated for rescue routes when nil, otherwise zero.
	ProjectedKm       *float64
	ExtraPerHourBonus float64
	FixedBonus        float64
	Rescue            *RescueInput
}

type CreateOfferCommand struct {
	RouteID  types.ID
	DriverID types.ID
}

// OfferResult carries the new offer and, when the driver fails the
// compliance rules, a warning. The offer is created either way.
type OfferResult struct {
	Offer   Offer               `json:"offer"`
	Warning *EligibilityWarning `json:"warning,omitempty"`
}

// ReofferResult is the re-offered route plus the new driver's compliance
// warning, if any.
type ReofferResult struct {
	Route   Route               `json:"route"`
	Warning *EligibilityWarning `json:"warning,omitempty"`
}

type RespondCommand struct {
	OfferID types.ID
	Accept  bool
}

type ReofferCommand struct {
	RouteID  types.ID
	DriverID types.ID
}

type CancelRouteCommand struct {
	RouteID types.ID
	Reason  string
}

type ConfirmCommand struct {
	RouteID         types.ID
	Code            string
	PackageCount    int
	LocationCount   int
	StopCount       int
	ActualStartTime *time.Time
}

type ValidateCommand struct {
	RouteID types.ID `json:"route_id"`
	RealKm  float64  `json:"real_km"`
}

type ValidationFailure struct {
	RouteID types.ID `json:"route_id"`
	Reason  string   `json:"reason"`
}

type BatchValidationResult struct {
	Validated int                 `json:"validated"`
	Routes    []Route             `json:"routes"`
	Failed    []ValidationFailure `json:"failed"`
}

func (s *Service) GetRoute(ctx context.Context, id types.ID) (*Route, error) {
	return s.repo.GetRoute(ctx, id)
}

func (s *Service) ListRoutes(ctx context.Context, f Filter) ([]Route, error) {
	return s.repo.ListRoutes(ctx, f)
}

func (s *Service) ListOffers(ctx context.Context, routeID types.ID) ([]Offer, error) {
	if _, err := s.repo.GetRoute(ctx, routeID); err != nil {
		return nil, err
	}
	return s.repo.ListOffers(ctx, routeID)
}

func (s *Service) Events(ctx context.Context, routeID types.ID) ([]Event, error) {
	if _, err := s.repo.GetRoute(ctx, routeID); err != nil {
		return nil, err
	}
	return s.repo.Events(ctx, routeID)
}

func (s *Service) CreateRoute(ctx context.Context, cmd CreateCommand) (r *Route, err error) {
	defer func() { s.observe(OpCreateRoute, err) }()

	if err := s.normalize(&cmd); err != nil {
		return nil, err
	}
	loc, err := s.location(ctx, cmd.LocationID)
	if err != nil {
		return nil, err
	}
	if cmd.Type == TypeRescue {
		if err := s.prepareRescue(ctx, &cmd, loc); err != nil {
			return nil, err
		}
	}

	err = s.repo.InTx(ctx, func(tx Tx) error {
		entry, err := pricing.Resolve(ctx, tx.Prices(), loc.Station, cmd.VehicleType, cmd.Ownership)
		if err != nil {
			return err
		}
		r = newRoute(cmd, snapshot(entry, cmd), s.now().UTC())
		return s.insert(ctx, tx, r)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RoutesCreated(1)
	return r, nil
}

// CreateOffer offers a DISPONIVEL or RECUSADA route to driverID. The driver's
// exclusivity slot is claimed in the same transaction that locks the route.
func (s *Service) CreateOffer(ctx context.Context, cmd CreateOfferCommand) (res *OfferResult, err error) {
	defer func() { s.observe(OpCreateOffer, err) }()

	d, err := s.driver(ctx, cmd.DriverID)
	if err != nil {
		return nil, err
	}
	var o *Offer
	err = s.repo.InTx(ctx, func(tx Tx) error {
		r, err := tx.GetRoute(ctx, cmd.RouteID)
		if err != nil {
			return err
		}
		if err := checkTransition(OpCreateOffer, r.Status, StatusOffered); err != nil {
			return err
		}
		o, err = s.offer(ctx, tx, r, d, OpCreateOffer)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &OfferResult{Offer: *o, Warning: s.warn(d)}, nil
}

// RespondOffer records the driver's answer. Refusal frees the slot but keeps
// the driver on the route so the refusal stays visible.
func (s *Service) RespondOffer(ctx context.Context, cmd RespondCommand) (o *Offer, err error) {
	defer func() { s.observe(OpRespondOffer, err) }()

	peek, err := s.repo.GetOffer(ctx, cmd.OfferID)
	if err != nil {
		return nil, err
	}
	err = s.repo.InTx(ctx, func(tx Tx) error {
		r, err := tx.GetRoute(ctx, peek.RouteID)
		if err != nil {
			return err
		}
		o, err = tx.GetOffer(ctx, cmd.OfferID)
		if err != nil {
			return err
		}
		if o.Status != OfferPending || !o.Active {
			from := string(o.Status)
			if !o.Active {
				from += " (inactive)"
			}
			return &TransitionError{Op: OpRespondOffer, From: from}
		}

		now := s.now().UTC()
		to, offerStatus := StatusAccepted, OfferAccepted
		if !cmd.Accept {
			to, offerStatus = StatusRefused, OfferRefused
		}
		if err := checkTransition(OpRespondOffer, r.Status, to); err != nil {
			return err
		}
		o.Status = offerStatus
		o.RespondedAt = &now
		if err := tx.UpdateOffer(ctx, o); err != nil {
			return err
		}
		if !offerStatus.HoldsSlot() {
			if err := tx.ReleaseSlot(ctx, r.SlotFor(o.DriverID), o.ID); err != nil {
				return err
			}
		}
		return s.move(ctx, tx, r, to, OpRespondOffer, &o.DriverID)
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// ReofferRoute moves the route to a new driver. The previous offer is
// deactivated with its status kept and its slot freed before the new slot is
// claimed, all in one transaction.
func (s *Service) ReofferRoute(ctx context.Context, cmd ReofferCommand) (res *ReofferResult, err error) {
	defer func() { s.observe(OpReoffer, err) }()

	d, err := s.driver(ctx, cmd.DriverID)
	if err != nil {
		return nil, err
	}
	var r *Route
	err = s.repo.InTx(ctx, func(tx Tx) error {
		r, err = tx.GetRoute(ctx, cmd.RouteID)
		if err != nil {
			return err
		}
		if err := checkTransition(OpReoffer, r.Status, StatusOffered); err != nil {
			return err
		}
		_, err = s.offer(ctx, tx, r, d, OpReoffer)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &ReofferResult{Route: *r, Warning: s.warn(d)}, nil
}

// CancelOffer withdraws the active offer and puts the route back up for allocation.
func (s *Service) CancelOffer(ctx context.Context, routeID types.ID) (r *Route, err error) {
	defer func() { s.observe(OpCancelOffer, err) }()

	err = s.repo.InTx(ctx, func(tx Tx) error {
		r, err = tx.GetRoute(ctx, routeID)
		if err != nil {
			return err
		}
		if err := checkTransition(OpCancelOffer, r.Status, StatusAvailable); err != nil {
			return err
		}
		if err := s.deactivate(ctx, tx, r); err != nil {
			return err
		}
		r.AssignedDriverID = nil
		return s.move(ctx, tx, r, StatusAvailable, OpCancelOffer, nil)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) CancelRoute(ctx context.Context, cmd CancelRouteCommand) (r *Route, err error) {
	defer func() { s.observe(OpCancelRoute, err) }()

	err = s.repo.InTx(ctx, func(tx Tx) error {
		r, err = tx.GetRoute(ctx, cmd.RouteID)
		if err != nil {
			return err
		}
		if err := checkTransition(OpCancelRoute, r.Status, StatusCancelled); err != nil {
			return err
		}
		if err := s.deactivate(ctx, tx, r); err != nil {
			return err
		}
		r.CancelReason = strings.TrimSpace(cmd.Reason)
		return s.move(ctx, tx, r, StatusCancelled, OpCancelRoute, nil)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) ConfirmRoute(ctx context.Context, cmd ConfirmCommand) (r *Route, err error) {
	defer func() { s.observe(OpConfirm, err) }()

	code := strings.TrimSpace(cmd.Code)
	switch {
	case code == "":
		return nil, invalid("code", "is required")
	case cmd.PackageCount < 0:
		return nil, invalid("package_count", "must not be negative")
	case cmd.LocationCount < 0:
		return nil, invalid("location_count", "must not be negative")
	case cmd.StopCount < 0:
		return nil, invalid("stop_count", "must not be negative")
	}

	err = s.repo.InTx(ctx, func(tx Tx) error {
		r, err = tx.GetRoute(ctx, cmd.RouteID)
		if err != nil {
			return err
		}
		if err := checkTransition(OpConfirm, r.Status, StatusConfirmed); err != nil {
			return err
		}
		r.Code = code
		r.PackageCount = cmd.PackageCount
		r.LocationCount = cmd.LocationCount
		r.StopCount = cmd.StopCount
		if cmd.ActualStartTime != nil {
			t := cmd.ActualStartTime.UTC()
			r.ActualStartTime = &t
		}
		return s.move(ctx, tx, r, StatusConfirmed, OpConfirm, r.AssignedDriverID)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ValidateRoute settles a confirmed route with its real mileage. The final
// value uses the km rate frozen at creation.
func (s *Service) ValidateRoute(ctx context.Context, cmd ValidateCommand) (r *Route, err error) {
	defer func() { s.observe(OpValidate, err) }()

	if cmd.RealKm < 0 {
		return nil, invalid("real_km", "must not be negative")
	}
	err = s.repo.InTx(ctx, func(tx Tx) error {
		r, err = tx.GetRoute(ctx, cmd.RouteID)
		if err != nil {
			return err
		}
		if err := checkTransition(OpValidate, r.Status, StatusValidated); err != nil {
			return err
		}
		now := s.now().UTC()
		km := types.RoundKm(cmd.RealKm)
		final := pricing.FinalValue(r.Price, km)
		r.RealKm = &km
		r.FinalValue = &final
		r.ValidatedAt = &now
		return s.move(ctx, tx, r, StatusValidated, OpValidate, nil)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RouteSettled(*r.FinalValue)
	return r, nil
}

// ValidateRoutesBatch validates each item in its own transaction and reports
// per-item failures instead of stopping.
func (s *Service) ValidateRoutesBatch(ctx context.Context, items []ValidateCommand) BatchValidationResult {
	res := BatchValidationResult{Routes: make([]Route, 0, len(items)), Failed: make([]ValidationFailure, 0)}
	for _, item := range items {
		r, err := s.ValidateRoute(ctx, item)
		if err != nil {
			res.Failed = append(res.Failed, ValidationFailure{RouteID: item.RouteID, Reason: err.Error()})
			continue
		}
		res.Validated++
		res.Routes = append(res.Routes, *r)
	}
	s.log.Infof("batch validation: %d validated, %d failed", res.Validated, len(res.Failed))
	return res
}

// offer deactivates whatever offer is active on r, claims d's slot and
// records a new PENDENTE offer. r ends up OFERTADA with d assigned.
func (s *Service) offer(ctx context.Context, tx Tx, r *Route, d driver.Driver, op Operation) (*Offer, error) {
	if d.VehicleType != r.VehicleType {
		return nil, invalid("driver_id", fmt.Sprintf("driver vehicle %s does not match route vehicle %s", d.VehicleType, r.VehicleType))
	}
	if err := s.deactivate(ctx, tx, r); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	o := &Offer{
		ID:        types.NewID(),
		RouteID:   r.ID,
		DriverID:  d.ID,
		Status:    OfferPending,
		Active:    true,
		CreatedAt: now,
	}
	slot := r.SlotFor(d.ID)
	holder, ok, err := tx.ClaimSlot(ctx, slot, o.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &SlotConflictError{Slot: slot, Holder: holder}
	}
	if err := tx.InsertOffer(ctx, o); err != nil {
		return nil, err
	}
	r.AssignedDriverID = &o.DriverID
	if err := s.move(ctx, tx, r, StatusOffered, op, nil); err != nil {
		return nil, err
	}
	return o, nil
}

// deactivate retires the route's active offer, keeping its status, and frees
// the slot it held.
func (s *Service) deactivate(ctx context.Context, tx Tx, r *Route) error {
	o, err := tx.ActiveOffer(ctx, r.ID)
	if err != nil || o == nil {
		return err
	}
	now := s.now().UTC()
	o.Active = false
	o.DeactivatedAt = &now
	if err := tx.UpdateOffer(ctx, o); err != nil {
		return err
	}
	return tx.ReleaseSlot(ctx, r.SlotFor(o.DriverID), o.ID)
}

func (s *Service) move(ctx context.Context, tx Tx, r *Route, to Status, op Operation, actor *types.ID) error {
	now := s.now().UTC()
	from := r.Status
	r.Status = to
	r.StatusVersion++
	r.UpdatedAt = now
	if err := tx.UpdateRoute(ctx, r); err != nil {
		return err
	}
	return tx.AppendEvent(ctx, &Event{
		RouteID:    r.ID,
		FromStatus: from,
		ToStatus:   to,
		Operation:  op,
		ActorID:    actor,
		CreatedAt:  now,
	})
}

func (s *Service) insert(ctx context.Context, tx Tx, r *Route) error {
	if err := tx.InsertRoute(ctx, r); err != nil {
		return err
	}
	return tx.AppendEvent(ctx, &Event{
		RouteID:    r.ID,
		FromStatus: StatusNone,
		ToStatus:   StatusAvailable,
		Operation:  OpCreateRoute,
		CreatedAt:  r.CreatedAt,
	})
}

func (s *Service) warn(d driver.Driver) *EligibilityWarning {
	res := eligibility.Evaluate(d, s.now())
	if res.Eligible {
		return nil
	}
	return &EligibilityWarning{DriverID: d.ID, Reasons: res.Reasons}
}

func (s *Service) driver(ctx context.Context, id types.ID) (driver.Driver, error) {
	if id == "" {
		return driver.Driver{}, invalid("driver_id", "is required")
	}
	d, err := s.drivers.Get(ctx, id)
	if errors.Is(err, driver.ErrNotFound) {
		return driver.Driver{}, &NotFoundError{Kind: "driver", ID: id}
	}
	return d, err
}

func (s *Service) location(ctx context.Context, id types.ID) (location.Location, error) {
	loc, err := s.locations.Get(ctx, id)
	if errors.Is(err, location.ErrNotFound) {
		return location.Location{}, &NotFoundError{Kind: "location", ID: id}
	}
	return loc, err
}

func (s *Service) observe(op Operation, err error) {
	outcome := Outcome(err)
	s.metrics.ObserveOperation(string(op), outcome)
	switch outcome {
	case "ok":
	case "error":
		s.log.Errorf("%s: %v", op, err)
	default:
		s.log.Debugw("route operation rejected", map[string]any{"operation": string(op), "outcome": outcome, "error": err.Error()})
	}
}

func checkTransition(op Operation, from, to Status) error {
	if !CanApply(op, from) || !CanTransition(from, to) {
		return &TransitionError{Op: op, From: string(from), To: string(to)}
	}
	return nil
}
