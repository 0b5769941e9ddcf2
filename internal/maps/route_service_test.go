package maps

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lastmile/internal/types"
)

func TestNewRouteServiceRequiresKey(t *testing.T) {
	_, err := NewRouteService("")
	assert.Error(t, err)
}

func TestStraightLine(t *testing.T) {
	sp := types.Point{Lat: -23.5505, Lng: -46.6333}
	campinas := types.Point{Lat: -22.9056, Lng: -47.0608}

	km, err := StraightLine{}.DistanceKm(context.Background(), sp, campinas)
	require.NoError(t, err)
	assert.InDelta(t, 83.5, km, 2)

	km, err = StraightLine{}.DistanceKm(context.Background(), sp, sp)
	require.NoError(t, err)
	assert.Zero(t, km)
}

func TestLatLng(t *testing.T) {
	assert.Equal(t, "-23.550500,-46.633300", latLng(types.Point{Lat: -23.5505, Lng: -46.6333}))
}
