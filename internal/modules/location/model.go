// README: Delivery location (hub) with the pricing station it belongs to.
package location

import (
	"errors"

	"lastmile/internal/types"
)

var ErrNotFound = errors.New("location not found")

type Location struct {
	ID       types.ID    `json:"id"`
	Name     string      `json:"name"`
	Station  string      `json:"station"`
	Position types.Point `json:"position"`
}
