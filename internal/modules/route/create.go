package route

import (
	"context"
	"time"

	"lastmile/internal/modules/location"
	"lastmile/internal/modules/pricing"
	"lastmile/internal/types"
)

const ClockLayout = "15:04"

// normalize applies defaults and rejects malformed input before anything is written.
func (s *Service) normalize(cmd *CreateCommand) error {
	if cmd.Type == "" {
		cmd.Type = TypeDelivery
	}
	if cmd.Ownership == "" {
		cmd.Ownership = types.OwnershipSelf
	}
	if cmd.Type == TypeRescue && cmd.Cycle == "" {
		cmd.Cycle = types.NoCycle
	}

	switch {
	case cmd.Date.IsZero():
		return invalid("date", "is required")
	case cmd.LocationID == "":
		return invalid("location_id", "is required")
	case !cmd.VehicleType.Valid():
		return invalid("vehicle_type", "unknown vehicle type "+string(cmd.VehicleType))
	case !cmd.Type.Valid():
		return invalid("route_type", "unknown route type "+string(cmd.Type))
	case !cmd.Ownership.Valid():
		return invalid("ownership", "unknown ownership "+string(cmd.Ownership))
	case !cmd.Cycle.Valid():
		return invalid("cycle", "unknown cycle "+string(cmd.Cycle))
	case cmd.DurationHours <= 0 || cmd.DurationHours > 24:
		return invalid("duration_hours", "must be in (0, 24]")
	case cmd.ProjectedKm != nil && *cmd.ProjectedKm < 0:
		return invalid("projected_km", "must not be negative")
	case cmd.ExtraPerHourBonus < 0:
		return invalid("per_hour_bonus", "must not be negative")
	case cmd.FixedBonus < 0:
		return invalid("fixed_bonus", "must not be negative")
	}

	if cmd.Type == TypeRescue {
		if cmd.Cycle != types.NoCycle {
			return invalid("cycle", "rescue routes run outside shift cycles")
		}
		if cmd.Rescue == nil || cmd.Rescue.RescuedRouteID == "" {
			return invalid("rescued_route_id", "is required for rescue routes")
		}
		if cmd.Rescue.StopCount < 0 || cmd.Rescue.LocationCount < 0 || cmd.Rescue.PackageCount < 0 {
			return invalid("rescue", "counts must not be negative")
		}
	} else if cmd.Rescue != nil {
		return invalid("rescue", "only rescue routes carry rescue details")
	}

	start, err := time.Parse(ClockLayout, cmd.StartTime)
	if err != nil {
		return invalid("start_time", "expected HH:MM")
	}
	if cmd.EndTime == "" {
		cmd.EndTime = start.Add(time.Duration(cmd.DurationHours * float64(time.Hour))).Format(ClockLayout)
	} else if _, err := time.Parse(ClockLayout, cmd.EndTime); err != nil {
		return invalid("end_time", "expected HH:MM")
	}
	cmd.Date = types.Day(cmd.Date)
	return nil
}

// prepareRescue checks the rescued route and fills in the projected distance
// from the pickup origin to the station when the caller left it out.
func (s *Service) prepareRescue(ctx context.Context, cmd *CreateCommand, loc location.Location) error {
	if _, err := s.repo.GetRoute(ctx, cmd.Rescue.RescuedRouteID); err != nil {
		return err
	}
	if cmd.ProjectedKm != nil {
		return nil
	}
	km := 0.0
	origin := cmd.Rescue.Origin
	if !origin.IsZero() && !loc.Position.IsZero() {
		km = types.DistanceKm(origin, loc.Position)
		if s.distance != nil {
			est, err := s.distance.DistanceKm(ctx, origin, loc.Position)
			if err != nil {
				s.log.Warnf("rescue distance estimate failed, using straight line: %v", err)
			} else {
				km = est
			}
		}
	}
	km = types.RoundKm(km)
	cmd.ProjectedKm = &km
	return nil
}

func snapshot(e pricing.Entry, cmd CreateCommand) pricing.Snapshot {
	km := 0.0
	if cmd.ProjectedKm != nil {
		km = *cmd.ProjectedKm
	}
	return pricing.Compute(e, pricing.SnapshotInput{
		Date:              cmd.Date,
		DurationHours:     cmd.DurationHours,
		ProjectedKm:       km,
		ExtraPerHourBonus: cmd.ExtraPerHourBonus,
		FixedBonus:        cmd.FixedBonus,
	})
}

func newRoute(cmd CreateCommand, price pricing.Snapshot, now time.Time) *Route {
	r := &Route{
		ID:            types.NewID(),
		Date:          cmd.Date,
		StartTime:     cmd.StartTime,
		EndTime:       cmd.EndTime,
		Code:          cmd.Code,
		VehicleType:   cmd.VehicleType,
		Type:          cmd.Type,
		Cycle:         cmd.Cycle,
		DurationHours: cmd.DurationHours,
		Ownership:     cmd.Ownership,
		LocationID:    cmd.LocationID,
		Price:         price,
		Status:        StatusAvailable,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if cmd.Rescue != nil {
		r.Rescue = &Rescue{
			RescuedRouteID: cmd.Rescue.RescuedRouteID,
			StopCount:      cmd.Rescue.StopCount,
			LocationCount:  cmd.Rescue.LocationCount,
			PackageCount:   cmd.Rescue.PackageCount,
			Origin:         cmd.Rescue.Origin,
		}
	}
	return r
}
