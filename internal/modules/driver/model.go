// README: Driver snapshot as published by the driver-management collaborator.
package driver

import (
	"errors"
	"time"

	"lastmile/internal/types"
)

type Status string

const (
	StatusOnboarding Status = "ONBOARDING"
	StatusActive     Status = "ACTIVE"
	StatusInactive   Status = "INACTIVE"
	StatusSuspended  Status = "SUSPENDED"
	StatusDeleted    Status = "DELETED"
)

var ErrNotFound = errors.New("driver not found")

type License struct {
	Number     string    `json:"number"`
	ValidUntil time.Time `json:"valid_until"`
}

type BackgroundCheck struct {
	Passed       bool      `json:"passed"`
	NextCheckDue time.Time `json:"next_check_due"`
}

type Driver struct {
	ID                     types.ID          `json:"id"`
	Name                   string            `json:"name"`
	VehicleType            types.VehicleType `json:"vehicle_type"`
	Status                 Status            `json:"status"`
	VehicleManufactureYear int               `json:"vehicle_manufacture_year"`
	License                License           `json:"license"`
	BackgroundCheck        BackgroundCheck   `json:"background_check"`
	HasActiveContract      bool              `json:"has_active_contract"`
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	VehicleType types.VehicleType
	Status      Status
}

func (f Filter) Match(d Driver) bool {
	if f.VehicleType != "" && d.VehicleType != f.VehicleType {
		return false
	}
	if f.Status != "" && d.Status != f.Status {
		return false
	}
	return true
}
