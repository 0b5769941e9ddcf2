// README: Matching service filters the driver pool down to allocation candidates.
// Filters run in order: vehicle type, status, compliance, availability, exclusivity slot.
package matching

import (
	"context"
	"time"

	"lastmile/internal/infra/logger"
	"lastmile/internal/modules/availability"
	"lastmile/internal/modules/driver"
	"lastmile/internal/modules/eligibility"
	"lastmile/internal/modules/route"
	"lastmile/internal/types"
)

type RouteReader interface {
	GetRoute(ctx context.Context, id types.ID) (*route.Route, error)
	SlotHolders(ctx context.Context, date time.Time, cycle types.Cycle, vehicleType types.VehicleType) (map[types.ID]types.ID, error)
}

type DriverLister interface {
	List(ctx context.Context, f driver.Filter) ([]driver.Driver, error)
}

type AvailabilityIndexer interface {
	Index(ctx context.Context, from, to time.Time) (*availability.Index, error)
}

type Config struct {
	// LookaheadDays widens the availability window from today so one cached
	// index serves every route of an allocation session.
	LookaheadDays int
}

type Service struct {
	routes       RouteReader
	drivers      DriverLister
	availability AvailabilityIndexer
	cfg          Config
	log          logger.Logger
	now          func() time.Time
}

func NewService(routes RouteReader, drivers DriverLister, avail AvailabilityIndexer, cfg Config, log logger.Logger) *Service {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Service{routes: routes, drivers: drivers, availability: avail, cfg: cfg, log: log, now: time.Now}
}

// Candidates lists the drivers that may be offered routeID, sorted by name then id.
func (s *Service) Candidates(ctx context.Context, routeID types.ID) ([]Candidate, error) {
	res, err := s.Match(ctx, routeID)
	if err != nil {
		return nil, err
	}
	return res.Candidates, nil
}

// Match runs the filters and also reports the excluded drivers.
func (s *Service) Match(ctx context.Context, routeID types.ID) (*Result, error) {
	r, err := s.routes.GetRoute(ctx, routeID)
	if err != nil {
		return nil, err
	}
	if r.Status != route.StatusAvailable && r.Status != route.StatusRefused {
		return nil, &route.TransitionError{Op: route.OpCreateOffer, From: string(r.Status)}
	}

	pool, err := s.drivers.List(ctx, driver.Filter{VehicleType: r.VehicleType})
	if err != nil {
		return nil, err
	}
	from, to := s.window(r.Date)
	idx, err := s.availability.Index(ctx, from, to)
	if err != nil {
		return nil, err
	}
	held, err := s.routes.SlotHolders(ctx, r.Date, r.Cycle, r.VehicleType)
	if err != nil {
		return nil, err
	}

	now := s.now()
	res := &Result{Candidates: make([]Candidate, 0, len(pool)), Excluded: make([]Exclusion, 0)}
	for _, d := range pool {
		if d.VehicleType != r.VehicleType {
			continue
		}
		if d.Status != driver.StatusActive {
			res.Excluded = append(res.Excluded, Exclusion{Driver: d, Reason: ReasonNotActive})
			continue
		}
		if ev := eligibility.Evaluate(d, now); !ev.Eligible {
			res.Excluded = append(res.Excluded, Exclusion{Driver: d, Reason: ReasonNotEligible, Compliance: ev.Reasons})
			continue
		}
		if !idx.Available(d.ID, r.Date, r.Cycle) {
			res.Excluded = append(res.Excluded, Exclusion{Driver: d, Reason: ReasonUnavailable})
			continue
		}
		if _, ok := held[d.ID]; ok {
			res.Excluded = append(res.Excluded, Exclusion{Driver: d, Reason: ReasonSlotHeld})
			continue
		}
		res.Candidates = append(res.Candidates, Candidate{Driver: d})
	}
	sortCandidates(res.Candidates)

	s.log.Debugw("matching pass", map[string]any{
		"route_id":   string(r.ID),
		"pool":       len(pool),
		"candidates": len(res.Candidates),
		"excluded":   len(res.Excluded),
	})
	return res, nil
}

// window picks the availability range to load for a route date.
func (s *Service) window(date time.Time) (time.Time, time.Time) {
	date = types.Day(date)
	from := types.Day(s.now())
	to := from.AddDate(0, 0, s.cfg.LookaheadDays)
	if date.Before(from) || date.After(to) {
		return date, date
	}
	return from, to
}
