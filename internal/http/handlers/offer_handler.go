// README: Offer handlers for driver responses.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lastmile/internal/modules/route"
)

type OfferHandler struct {
	routes *route.Service
}

func NewOfferHandler(routes *route.Service) *OfferHandler {
	return &OfferHandler{routes: routes}
}

type respondReq struct {
	Accept *bool `json:"accept" binding:"required"`
}

func (h *OfferHandler) Respond(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req respondReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	o, err := h.routes.RespondOffer(c.Request.Context(), route.RespondCommand{OfferID: id, Accept: *req.Accept})
	if err != nil {
		writeRouteError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}
