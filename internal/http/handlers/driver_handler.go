// README: Driver compliance overview built from the eligibility rules.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"lastmile/internal/modules/driver"
	"lastmile/internal/modules/eligibility"
	"lastmile/internal/types"
)

type DriverLister interface {
	List(ctx context.Context, f driver.Filter) ([]driver.Driver, error)
}

type DriverHandler struct {
	drivers DriverLister
	now     func() time.Time
}

func NewDriverHandler(drivers DriverLister) *DriverHandler {
	return &DriverHandler{drivers: drivers, now: time.Now}
}

type driverCompliance struct {
	DriverID types.ID             `json:"driver_id"`
	Name     string               `json:"name"`
	Eligible bool                 `json:"eligible"`
	Reasons  []eligibility.Reason `json:"reasons,omitempty"`
}

func (h *DriverHandler) Compliance(c *gin.Context) {
	f := driver.Filter{
		VehicleType: types.VehicleType(c.Query("vehicle_type")),
		Status:      driver.Status(c.Query("status")),
	}
	drivers, err := h.drivers.List(c.Request.Context(), f)
	if err != nil {
		writeRouteError(c, err)
		return
	}
	now := h.now()
	out := make([]driverCompliance, 0, len(drivers))
	for _, d := range drivers {
		res := eligibility.Evaluate(d, now)
		out = append(out, driverCompliance{DriverID: d.ID, Name: d.Name, Eligible: res.Eligible, Reasons: res.Reasons})
	}
	writeJSON(c, http.StatusOK, gin.H{
		"summary": eligibility.Summarize(drivers, now),
		"drivers": out,
	})
}
