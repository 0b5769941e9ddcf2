// README: Fleet enums shared by drivers, availability, pricing and routes.
package types

import (
	"fmt"
	"time"
)

type VehicleType string

const (
	VehicleMotorcycle VehicleType = "MOTORCYCLE"
	VehicleCar        VehicleType = "CAR"
	VehicleCargoVan   VehicleType = "CARGO_VAN"
	VehicleLargeVan   VehicleType = "LARGE_VAN"
)

func (v VehicleType) Valid() bool {
	switch v {
	case VehicleMotorcycle, VehicleCar, VehicleCargoVan, VehicleLargeVan:
		return true
	}
	return false
}

// Cycle is a named shift window. NoCycle is used by rescue routes.
type Cycle string

const (
	Cycle1       Cycle = "CYCLE_1"
	Cycle2       Cycle = "CYCLE_2"
	CycleSameDay Cycle = "SAME_DAY"
	NoCycle      Cycle = "NO_CYCLE"
)

// ShiftCycles lists the cycles a driver can declare availability for.
var ShiftCycles = []Cycle{Cycle1, Cycle2, CycleSameDay}

func (c Cycle) Valid() bool {
	switch c {
	case Cycle1, Cycle2, CycleSameDay, NoCycle:
		return true
	}
	return false
}

// Ownership tells whether the vehicle belongs to the driver or to a carrier.
type Ownership string

const (
	OwnershipSelf    Ownership = "SELF"
	OwnershipCarrier Ownership = "CARRIER"
)

func (o Ownership) Valid() bool {
	return o == OwnershipSelf || o == OwnershipCarrier
}

const DateLayout = "2006-01-02"

// ParseDate parses a calendar day and returns it at UTC midnight.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return d, nil
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
