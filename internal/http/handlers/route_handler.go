// README: Route handlers: creation, listing, candidates and the offer lifecycle.
package handlers

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"lastmile/internal/modules/matching"
	"lastmile/internal/modules/route"
	"lastmile/internal/types"
)

type RouteHandler struct {
	routes   *route.Service
	matching *matching.Service
}

func NewRouteHandler(routes *route.Service, matching *matching.Service) *RouteHandler {
	return &RouteHandler{routes: routes, matching: matching}
}

type createRouteReq struct {
	Date          string             `json:"date" binding:"required"`
	StartTime     string             `json:"start_time" binding:"required"`
	EndTime       string             `json:"end_time"`
	Code          string             `json:"code"`
	LocationID    string             `json:"location_id" binding:"required"`
	VehicleType   string             `json:"vehicle_type" binding:"required"`
	RouteType     string             `json:"route_type"`
	Cycle         string             `json:"cycle"`
	DurationHours float64            `json:"duration_hours" binding:"required,gt=0,lte=24"`
	Ownership     string             `json:"ownership"`
	ProjectedKm   *float64           `json:"projected_km" binding:"omitempty,gte=0"`
	PerHourBonus  float64            `json:"per_hour_bonus" binding:"gte=0"`
	FixedBonus    float64            `json:"fixed_bonus" binding:"gte=0"`
	Rescue        *route.RescueInput `json:"rescue"`
}

func (h *RouteHandler) Create(c *gin.Context) {
	var req createRouteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}
	r, err := h.routes.CreateRoute(c.Request.Context(), route.CreateCommand{
		Date:              date,
		StartTime:         req.StartTime,
		EndTime:           req.EndTime,
		Code:              req.Code,
		LocationID:        types.ID(req.LocationID),
		VehicleType:       types.VehicleType(req.VehicleType),
		Type:              route.Type(req.RouteType),
		Cycle:             types.Cycle(req.Cycle),
		DurationHours:     req.DurationHours,
		Ownership:         types.Ownership(req.Ownership),
		ProjectedKm:       req.ProjectedKm,
		ExtraPerHourBonus: req.PerHourBonus,
		FixedBonus:        req.FixedBonus,
		Rescue:            req.Rescue,
	})
	if err != nil {
		writeRouteError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, r)
}

type generationSpecReq struct {
	Date          string   `json:"date"`
	Cycle         string   `json:"cycle"`
	LocationID    string   `json:"location_id"`
	VehicleType   string   `json:"vehicle_type"`
	DurationHours float64  `json:"duration_hours"`
	StartTimes    []string `json:"start_times"`
	RouteType     string   `json:"route_type"`
	Ownership     string   `json:"ownership"`
	ProjectedKm   *float64 `json:"projected_km"`
	PerHourBonus  float64  `json:"per_hour_bonus"`
	FixedBonus    float64  `json:"fixed_bonus"`
}

type createBatchReq struct {
	Specs []generationSpecReq `json:"specs" binding:"required,min=1"`
}

// CreateBatch always answers 200 with the partial result; per-spec problems,
// including unparseable dates, are reported in errors under the spec's index.
func (h *RouteHandler) CreateBatch(c *gin.Context) {
	var req createBatchReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	var (
		specs     = make([]route.GenerationSpec, 0, len(req.Specs))
		positions = make([]int, 0, len(req.Specs))
		dateErrs  []route.BatchError
	)
	for i, s := range req.Specs {
		spec := route.GenerationSpec{
			Cycle:             types.Cycle(s.Cycle),
			LocationID:        types.ID(s.LocationID),
			VehicleType:       types.VehicleType(s.VehicleType),
			DurationHours:     s.DurationHours,
			StartTimes:        s.StartTimes,
			Type:              route.Type(s.RouteType),
			Ownership:         types.Ownership(s.Ownership),
			ProjectedKm:       s.ProjectedKm,
			ExtraPerHourBonus: s.PerHourBonus,
			FixedBonus:        s.FixedBonus,
		}
		date, err := parseDate(s.Date)
		if err != nil {
			dateErrs = append(dateErrs, route.BatchError{
				Index:  i,
				Spec:   spec,
				Reason: fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", s.Date),
			})
			continue
		}
		spec.Date = date
		specs = append(specs, spec)
		positions = append(positions, i)
	}

	res := h.routes.CreateRoutesBatch(c.Request.Context(), specs)
	for i := range res.Errors {
		res.Errors[i].Index = positions[res.Errors[i].Index]
	}
	if len(dateErrs) > 0 {
		res.Errors = append(res.Errors, dateErrs...)
		sort.SliceStable(res.Errors, func(i, j int) bool { return res.Errors[i].Index < res.Errors[j].Index })
	}
	writeJSON(c, http.StatusOK, res)
}

func (h *RouteHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	r, err := h.routes.GetRoute(c.Request.Context(), id)
	if err != nil {
		writeRouteError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *RouteHandler) List(c *gin.Context) {
	var f route.Filter
	if v := c.Query("date"); v != "" {
		d, err := parseDate(v)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
			return
		}
		f.Date = &d
	}
	f.Status = route.Status(c.Query("status"))
	f.DriverID = types.ID(c.Query("driver_id"))
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(c, http.StatusBadRequest, "invalid limit")
			return
		}
		f.Limit = n
	}
	routes, err := h.routes.ListRoutes(c.Request.Context(), f)
	if err != nil {
		writeRouteError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"routes": routes})
}

// Candidates lists allocatable drivers. ?explain=true adds the excluded drivers.
func (h *RouteHandler) Candidates(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	res, err := h.matching.Match(c.Request.Context(), id)
	if err != nil {
		writeRouteError(c, err)
		return
	}
	if c.Query("explain") == "true" {
		writeJSON(c, http.StatusOK, res)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"candidates": res.Candidates})
}

func (h *RouteHandler) Offers(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	offers, err := h.routes.ListOffers(c.Request.Context(), id)
	if err != nil {
		writeRouteError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"offers": offers})
}

func (h *RouteHandler) Events(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	events, err := h.routes.Events(c.Request.Context(), id)
	if err != nil {
		writeRouteError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"events": events})
}

type driverReq struct {
	DriverID string `json:"driver_id" binding:"required"`
}

func (h *RouteHandler) CreateOffer(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req driverReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	res, err := h.routes.CreateOffer(c.Request.Context(), route.CreateOfferCommand{RouteID: id, DriverID: types.ID(req.DriverID)})
	if err != nil {
		writeRouteError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, res)
}

func (h *RouteHandler) Reoffer(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req driverReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	res, err := h.routes.ReofferRoute(c.Request.Context(), route.ReofferCommand{RouteID: id, DriverID: types.ID(req.DriverID)})
	if err != nil {
		writeRouteError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}

func (h *RouteHandler) CancelOffer(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	r, err := h.routes.CancelOffer(c.Request.Context(), id)
	if err != nil {
		writeRouteError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

type cancelReq struct {
	Reason string `json:"reason"`
}

func (h *RouteHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req cancelReq
	if hasBody(c) {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
	}
	r, err := h.routes.CancelRoute(c.Request.Context(), route.CancelRouteCommand{RouteID: id, Reason: req.Reason})
	if err != nil {
		writeRouteError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

type confirmReq struct {
	Code            string     `json:"code" binding:"required"`
	PackageCount    int        `json:"package_count" binding:"gte=0"`
	LocationCount   int        `json:"location_count" binding:"gte=0"`
	StopCount       int        `json:"stop_count" binding:"gte=0"`
	ActualStartTime *time.Time `json:"actual_start_time"`
}

func (h *RouteHandler) Confirm(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req confirmReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	r, err := h.routes.ConfirmRoute(c.Request.Context(), route.ConfirmCommand{
		RouteID:         id,
		Code:            req.Code,
		PackageCount:    req.PackageCount,
		LocationCount:   req.LocationCount,
		StopCount:       req.StopCount,
		ActualStartTime: req.ActualStartTime,
	})
	if err != nil {
		writeRouteError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

type validateReq struct {
	RealKm *float64 `json:"real_km" binding:"required,gte=0"`
}

func (h *RouteHandler) Validate(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req validateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	r, err := h.routes.ValidateRoute(c.Request.Context(), route.ValidateCommand{RouteID: id, RealKm: *req.RealKm})
	if err != nil {
		writeRouteError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

type validateItemReq struct {
	RouteID string   `json:"route_id" binding:"required"`
	RealKm  *float64 `json:"real_km" binding:"required,gte=0"`
}

type validateBatchReq struct {
	Items []validateItemReq `json:"items" binding:"required,min=1,dive"`
}

// ValidateBatch rejects the whole request when any item lacks real_km, so no
// route is settled on a defaulted mileage.
func (h *RouteHandler) ValidateBatch(c *gin.Context) {
	var req validateBatchReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	items := make([]route.ValidateCommand, len(req.Items))
	for i, it := range req.Items {
		items[i] = route.ValidateCommand{RouteID: types.ID(it.RouteID), RealKm: *it.RealKm}
	}
	writeJSON(c, http.StatusOK, h.routes.ValidateRoutesBatch(c.Request.Context(), items))
}
