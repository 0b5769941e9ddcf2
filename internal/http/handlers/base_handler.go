// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"lastmile/internal/modules/pricing"
	"lastmile/internal/modules/route"
	"lastmile/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeRouteError maps domain errors onto status codes:
// validation 400, not found 404, missing price table 422, conflict 409.
func writeRouteError(c *gin.Context, err error) {
	var ve *route.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(c, http.StatusBadRequest, errorResponse{Error: err.Error(), Field: ve.Field})
	case errors.Is(err, pricing.ErrInvalidEntry):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, route.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, pricing.ErrNoPriceTable):
		writeError(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, route.ErrConflict):
		writeError(c, http.StatusConflict, err.Error())
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func bindError(c *gin.Context, err error) {
	writeError(c, http.StatusBadRequest, "invalid request: "+err.Error())
}

func pathID(c *gin.Context) (types.ID, bool) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing id")
		return "", false
	}
	return types.ID(id), true
}

// hasBody reports whether the request carries a JSON body worth binding.
func hasBody(c *gin.Context) bool {
	return c.Request.ContentLength > 0
}

func parseDate(v string) (time.Time, error) {
	return types.ParseDate(strings.TrimSpace(v))
}
