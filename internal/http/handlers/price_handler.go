// README: Price table handlers: active entries per station and version publishing.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"lastmile/internal/modules/pricing"
	"lastmile/internal/types"
)

type PriceHandler struct {
	pricing *pricing.Service
}

func NewPriceHandler(svc *pricing.Service) *PriceHandler {
	return &PriceHandler{pricing: svc}
}

func (h *PriceHandler) List(c *gin.Context) {
	station := c.Query("station")
	if station == "" {
		writeError(c, http.StatusBadRequest, "station is required")
		return
	}
	entries, err := h.pricing.ListActive(c.Request.Context(), station)
	if err != nil {
		writeRouteError(c, err)
		return
	}
	if entries == nil {
		entries = []pricing.Entry{}
	}
	writeJSON(c, http.StatusOK, gin.H{"price_tables": entries})
}

// History lists every version published for one key, newest first.
func (h *PriceHandler) History(c *gin.Context) {
	key := pricing.Key{
		Station:     c.Query("station"),
		ServiceType: pricing.ServiceType(c.Query("service_type")),
		Ownership:   types.Ownership(c.Query("ownership")),
	}
	if key.Station == "" || key.ServiceType == "" || key.Ownership == "" {
		writeError(c, http.StatusBadRequest, "station, service_type and ownership are required")
		return
	}
	entries, err := h.pricing.History(c.Request.Context(), key)
	if err != nil {
		writeRouteError(c, err)
		return
	}
	if entries == nil {
		entries = []pricing.Entry{}
	}
	writeJSON(c, http.StatusOK, gin.H{"versions": entries})
}

type publishReq struct {
	Station          string     `json:"station" binding:"required"`
	ServiceType      string     `json:"service_type" binding:"required"`
	Ownership        string     `json:"ownership" binding:"required"`
	HourlyRate       float64    `json:"hourly_rate" binding:"required,gt=0"`
	CancellationRate float64    `json:"cancellation_rate" binding:"gte=0"`
	KmRate           float64    `json:"km_rate" binding:"gte=0"`
	WeekendBonus     float64    `json:"weekend_bonus" binding:"gte=0"`
	EffectiveFrom    *time.Time `json:"effective_from"`
}

// Publish makes the posted rates the active version for their key.
func (h *PriceHandler) Publish(c *gin.Context) {
	var req publishReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	e := pricing.Entry{
		Key: pricing.Key{
			Station:     req.Station,
			ServiceType: pricing.ServiceType(req.ServiceType),
			Ownership:   types.Ownership(req.Ownership),
		},
		HourlyRate:       req.HourlyRate,
		CancellationRate: req.CancellationRate,
		KmRate:           req.KmRate,
		WeekendBonus:     req.WeekendBonus,
	}
	if req.EffectiveFrom != nil {
		e.EffectiveFrom = req.EffectiveFrom.UTC()
	}
	out, err := h.pricing.PublishVersion(c.Request.Context(), e)
	if err != nil {
		writeRouteError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, out)
}
