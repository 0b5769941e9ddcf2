// README: Allocation candidates for an open route.
package matching

import (
	"lastmile/internal/modules/driver"
	"lastmile/internal/modules/eligibility"
)

// Candidate is a driver that passed every allocation filter.
type Candidate struct {
	driver.Driver
}

// Exclusion records why a driver of the route's vehicle type was filtered out.
type Exclusion struct {
	Driver driver.Driver `json:"driver"`
	Reason Reason        `json:"reason"`
	// Compliance is set when Reason is ReasonNotEligible.
	Compliance []eligibility.Reason `json:"compliance,omitempty"`
}

type Reason string

const (
	ReasonNotActive   Reason = "not_active"
	ReasonNotEligible Reason = "not_eligible"
	ReasonUnavailable Reason = "unavailable"
	ReasonSlotHeld    Reason = "slot_held"
)

// Result is the full outcome of one matching pass.
type Result struct {
	Candidates []Candidate `json:"candidates"`
	Excluded   []Exclusion `json:"excluded"`
}
