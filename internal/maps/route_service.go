// README: Driving distance estimates for rescue routes via Google Maps Directions.
package maps

import (
	"context"
	"fmt"
	"strconv"

	"googlemaps.github.io/maps"

	"lastmile/internal/types"
)

// RouteService handles interactions with Google Maps API.
type RouteService struct {
	client *maps.Client
}

// NewRouteService creates a new RouteService with the given API Key.
func NewRouteService(apiKey string) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client}, nil
}

// DistanceKm returns the driving distance of the first suggested route.
func (s *RouteService) DistanceKm(ctx context.Context, from, to types.Point) (float64, error) {
	r := &maps.DirectionsRequest{
		Origin:      latLng(from),
		Destination: latLng(to),
		Mode:        maps.TravelModeDriving,
		Language:    "pt-BR",
		Region:      "BR",
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return 0, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return 0, fmt.Errorf("no route found")
	}

	meters := 0
	for _, leg := range routes[0].Legs {
		meters += leg.Distance.Meters
	}
	return float64(meters) / 1000, nil
}

// StraightLine estimates distance as the great-circle length. It is used when
// no API key is configured.
type StraightLine struct{}

func (StraightLine) DistanceKm(_ context.Context, from, to types.Point) (float64, error) {
	return types.DistanceKm(from, to), nil
}

func latLng(p types.Point) string {
	return strconv.FormatFloat(p.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(p.Lng, 'f', 6, 64)
}
