package route

import (
	"context"
	"time"

	"lastmile/internal/modules/pricing"
	"lastmile/internal/types"
)

// GenerationSpec describes a set of routes that differ only by start time.
type GenerationSpec struct {
	Date              time.Time         `json:"date"`
	Cycle             types.Cycle       `json:"cycle"`
	LocationID        types.ID          `json:"location_id"`
	VehicleType       types.VehicleType `json:"vehicle_type"`
	DurationHours     float64           `json:"duration_hours"`
	StartTimes        []string          `json:"start_times"`
	Type              Type              `json:"route_type,omitempty"`
	Ownership         types.Ownership   `json:"ownership,omitempty"`
	ProjectedKm       *float64          `json:"projected_km,omitempty"`
	ExtraPerHourBonus float64           `json:"per_hour_bonus,omitempty"`
	FixedBonus        float64           `json:"fixed_bonus,omitempty"`
}

type BatchError struct {
	Index  int            `json:"index"`
	Spec   GenerationSpec `json:"spec"`
	Reason string         `json:"reason"`
}

type BatchResult struct {
	Created int          `json:"created"`
	Routes  []Route      `json:"routes"`
	Errors  []BatchError `json:"errors"`
}

// CreateRoutesBatch creates one route per start time of each spec. A spec is
// all-or-nothing; a failing spec does not stop the others.
func (s *Service) CreateRoutesBatch(ctx context.Context, specs []GenerationSpec) BatchResult {
	res := BatchResult{Routes: make([]Route, 0), Errors: make([]BatchError, 0)}
	for i, spec := range specs {
		routes, err := s.generate(ctx, spec)
		s.observe(OpCreateRoute, err)
		if err != nil {
			res.Errors = append(res.Errors, BatchError{Index: i, Spec: spec, Reason: err.Error()})
			continue
		}
		res.Created += len(routes)
		res.Routes = append(res.Routes, routes...)
	}
	if res.Created > 0 {
		s.metrics.RoutesCreated(res.Created)
	}
	s.log.Infof("batch generation: %d routes created, %d specs failed", res.Created, len(res.Errors))
	return res
}

func (s *Service) generate(ctx context.Context, spec GenerationSpec) ([]Route, error) {
	if len(spec.StartTimes) == 0 {
		return nil, invalid("start_times", "at least one start time is required")
	}
	if spec.Type == TypeRescue {
		return nil, invalid("route_type", "rescue routes are created one at a time")
	}
	cmds := make([]CreateCommand, len(spec.StartTimes))
	for i, start := range spec.StartTimes {
		cmds[i] = CreateCommand{
			Date:              spec.Date,
			StartTime:         start,
			LocationID:        spec.LocationID,
			VehicleType:       spec.VehicleType,
			Type:              spec.Type,
			Cycle:             spec.Cycle,
			DurationHours:     spec.DurationHours,
			Ownership:         spec.Ownership,
			ProjectedKm:       spec.ProjectedKm,
			ExtraPerHourBonus: spec.ExtraPerHourBonus,
			FixedBonus:        spec.FixedBonus,
		}
		if err := s.normalize(&cmds[i]); err != nil {
			return nil, err
		}
	}
	loc, err := s.location(ctx, spec.LocationID)
	if err != nil {
		return nil, err
	}

	var routes []Route
	err = s.repo.InTx(ctx, func(tx Tx) error {
		routes = make([]Route, 0, len(cmds))
		entry, err := pricing.Resolve(ctx, tx.Prices(), loc.Station, cmds[0].VehicleType, cmds[0].Ownership)
		if err != nil {
			return err
		}
		price := snapshot(entry, cmds[0])
		now := s.now().UTC()
		for _, cmd := range cmds {
			r := newRoute(cmd, price, now)
			if err := s.insert(ctx, tx, r); err != nil {
				return err
			}
			routes = append(routes, *r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return routes, nil
}
