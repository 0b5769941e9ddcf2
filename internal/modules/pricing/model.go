// README: Versioned price-table entries and the frozen route price snapshot.
package pricing

import (
	"errors"
	"fmt"
	"time"

	"lastmile/internal/types"
)

// ServiceType is the price-table code a vehicle type is billed under.
type ServiceType string

const (
	ServiceMotorcycle ServiceType = "MOTORCYCLE"
	ServiceCar        ServiceType = "CAR"
	ServiceCargoVan   ServiceType = "CARGO_VAN"
	ServiceSmallVan   ServiceType = "SMALL_VAN"
	ServiceLargeVan   ServiceType = "LARGE_VAN"
	ServiceVan        ServiceType = "VAN"
)

// serviceTypes lists, in lookup order, the codes a vehicle type may be priced under.
var serviceTypes = map[types.VehicleType][]ServiceType{
	types.VehicleMotorcycle: {ServiceMotorcycle},
	types.VehicleCar:        {ServiceCar},
	types.VehicleCargoVan:   {ServiceCargoVan, ServiceSmallVan},
	types.VehicleLargeVan:   {ServiceLargeVan, ServiceVan},
}

func ServiceTypesFor(v types.VehicleType) []ServiceType {
	return serviceTypes[v]
}

type Key struct {
	Station     string          `json:"station"`
	ServiceType ServiceType     `json:"service_type"`
	Ownership   types.Ownership `json:"ownership"`
}

type Entry struct {
	ID               types.ID `json:"id"`
	Key              `json:"key"`
	Version          int        `json:"version"`
	HourlyRate       float64    `json:"hourly_rate"`
	CancellationRate float64    `json:"cancellation_rate"`
	KmRate           float64    `json:"km_rate"`
	WeekendBonus     float64    `json:"weekend_bonus"`
	EffectiveFrom    time.Time  `json:"effective_from"`
	EffectiveTo      *time.Time `json:"effective_to,omitempty"`
	Active           bool       `json:"active"`
}

var (
	ErrNoPriceTable = errors.New("no active price table")
	ErrInvalidEntry = errors.New("invalid price table entry")
)

// NoPriceTableError names the combination that had no active entry.
type NoPriceTableError struct {
	Station     string
	VehicleType types.VehicleType
	Ownership   types.Ownership
}

func (e *NoPriceTableError) Error() string {
	return fmt.Sprintf("no active price table for station=%s vehicle=%s ownership=%s", e.Station, e.VehicleType, e.Ownership)
}

func (e *NoPriceTableError) Is(target error) bool { return target == ErrNoPriceTable }

// SnapshotInput carries the route-side parameters of the price computation.
type SnapshotInput struct {
	Date          time.Time
	DurationHours float64
	ProjectedKm   float64
	// ExtraPerHourBonus is added on top of the table's weekend bonus.
	ExtraPerHourBonus float64
	FixedBonus        float64
}

// Snapshot is copied onto a route at creation and never recomputed.
type Snapshot struct {
	PriceTableID        types.ID `json:"price_table_id"`
	PriceTableVersion   int      `json:"price_table_version"`
	HourlyRate          float64  `json:"hourly_rate"`
	KmRate              float64  `json:"km_rate"`
	PerHourBonus        float64  `json:"per_hour_bonus"`
	FixedBonus          float64  `json:"fixed_bonus"`
	ProjectedValue      float64  `json:"projected_value"`
	ProjectedKm         float64  `json:"projected_km"`
	TotalProjectedValue float64  `json:"total_projected_value"`
}

// Compute freezes e into a snapshot:
//
//	projected      = hourlyRate*h + perHourBonus*h + fixedBonus
//	totalProjected = projected + projectedKm*kmRate
func Compute(e Entry, in SnapshotInput) Snapshot {
	perHour := in.ExtraPerHourBonus
	if isWeekend(in.Date) {
		perHour += e.WeekendBonus
	}
	base := e.HourlyRate * in.DurationHours
	projected := types.RoundCents(base + perHour*in.DurationHours + in.FixedBonus)
	return Snapshot{
		PriceTableID:        e.ID,
		PriceTableVersion:   e.Version,
		HourlyRate:          e.HourlyRate,
		KmRate:              e.KmRate,
		PerHourBonus:        perHour,
		FixedBonus:          in.FixedBonus,
		ProjectedValue:      projected,
		ProjectedKm:         in.ProjectedKm,
		TotalProjectedValue: types.RoundCents(projected + in.ProjectedKm*e.KmRate),
	}
}

// FinalValue settles a route with the km rate frozen in its snapshot.
func FinalValue(s Snapshot, realKm float64) float64 {
	return types.RoundCents(s.ProjectedValue + realKm*s.KmRate)
}

func isWeekend(d time.Time) bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func (e Entry) validate() error {
	switch {
	case e.Station == "":
		return fmt.Errorf("%w: station is required", ErrInvalidEntry)
	case e.ServiceType == "":
		return fmt.Errorf("%w: service type is required", ErrInvalidEntry)
	case !e.Ownership.Valid():
		return fmt.Errorf("%w: unknown ownership %q", ErrInvalidEntry, e.Ownership)
	case e.HourlyRate <= 0:
		return fmt.Errorf("%w: hourly rate must be positive", ErrInvalidEntry)
	case e.KmRate < 0 || e.CancellationRate < 0 || e.WeekendBonus < 0:
		return fmt.Errorf("%w: rates must not be negative", ErrInvalidEntry)
	}
	return nil
}
