// Package eligibility decides whether a driver may currently receive route offers.
// It is pure: every input, including the reference time, is passed in.
package eligibility

import (
	"time"

	"lastmile/internal/modules/driver"
)

// MaxVehicleAgeYears is the oldest vehicle allowed on a route, counted in calendar years.
const MaxVehicleAgeYears = 15

type Reason string

const (
	ReasonNotActive         Reason = "driver_not_active"
	ReasonVehicleTooOld     Reason = "vehicle_too_old"
	ReasonLicenseMissing    Reason = "license_missing"
	ReasonLicenseExpired    Reason = "license_expired"
	ReasonBackgroundFailed  Reason = "background_check_failed"
	ReasonBackgroundOverdue Reason = "background_check_overdue"
	ReasonNoActiveContract  Reason = "no_active_contract"
)

// AllReasons lists reasons in evaluation order. Summaries report every one of them.
var AllReasons = []Reason{
	ReasonNotActive,
	ReasonVehicleTooOld,
	ReasonLicenseMissing,
	ReasonLicenseExpired,
	ReasonBackgroundFailed,
	ReasonBackgroundOverdue,
	ReasonNoActiveContract,
}

type Result struct {
	Eligible bool     `json:"eligible"`
	Reasons  []Reason `json:"reasons"`
}

// Evaluate applies every compliance rule and reports all failures, not just the first.
func Evaluate(d driver.Driver, now time.Time) Result {
	var reasons []Reason
	if d.Status != driver.StatusActive {
		reasons = append(reasons, ReasonNotActive)
	}
	if now.Year()-d.VehicleManufactureYear > MaxVehicleAgeYears {
		reasons = append(reasons, ReasonVehicleTooOld)
	}
	switch {
	case d.License.Number == "":
		reasons = append(reasons, ReasonLicenseMissing)
	case !d.License.ValidUntil.After(now):
		reasons = append(reasons, ReasonLicenseExpired)
	}
	switch {
	case !d.BackgroundCheck.Passed:
		reasons = append(reasons, ReasonBackgroundFailed)
	case !d.BackgroundCheck.NextCheckDue.After(now):
		reasons = append(reasons, ReasonBackgroundOverdue)
	}
	if !d.HasActiveContract {
		reasons = append(reasons, ReasonNoActiveContract)
	}
	return Result{Eligible: len(reasons) == 0, Reasons: reasons}
}

// Summary counts drivers per outcome for compliance displays.
type Summary struct {
	Total    int            `json:"total"`
	Eligible int            `json:"eligible"`
	ByReason map[Reason]int `json:"by_reason"`
}

func Summarize(drivers []driver.Driver, now time.Time) Summary {
	s := Summary{Total: len(drivers), ByReason: make(map[Reason]int, len(AllReasons))}
	for _, r := range AllReasons {
		s.ByReason[r] = 0
	}
	for _, d := range drivers {
		res := Evaluate(d, now)
		if res.Eligible {
			s.Eligible++
			continue
		}
		for _, r := range res.Reasons {
			s.ByReason[r]++
		}
	}
	return s
}
