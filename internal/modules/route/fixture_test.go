package route

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lastmile/internal/modules/driver"
	"lastmile/internal/modules/location"
	"lastmile/internal/modules/pricing"
	"lastmile/internal/types"
)

// 2024-01-10 is a Wednesday.
var (
	testDay = time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	testNow = time.Date(2024, 1, 9, 12, 0, 0, 0, time.UTC)
)

const testStation = "SP01"

type fixture struct {
	svc     *Service
	store   Repository
	prices  *pricing.MemoryCatalog
	drivers *driver.MemoryDirectory
	entry   pricing.Entry
}

func compliant(id types.ID, name string, vt types.VehicleType) driver.Driver {
	return driver.Driver{
		ID:                     id,
		Name:                   name,
		VehicleType:            vt,
		Status:                 driver.StatusActive,
		VehicleManufactureYear: 2019,
		License:                driver.License{Number: "CNH-" + string(id), ValidUntil: testNow.AddDate(2, 0, 0)},
		BackgroundCheck:        driver.BackgroundCheck{Passed: true, NextCheckDue: testNow.AddDate(0, 6, 0)},
		HasActiveContract:      true,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	prices := pricing.NewMemoryCatalog()
	return newFixtureWith(t, NewMemStore(prices), prices)
}

func newFixtureWith(t *testing.T, store Repository, prices *pricing.MemoryCatalog) *fixture {
	t.Helper()
	f := &fixture{store: store, prices: prices}
	if prices != nil {
		e, err := prices.Publish(context.Background(), pricing.Entry{
			ID:            "pt-cargo-v1",
			Key:           pricing.Key{Station: testStation, ServiceType: pricing.ServiceCargoVan, Ownership: types.OwnershipSelf},
			HourlyRate:    40,
			KmRate:        0.64,
			WeekendBonus:  5,
			EffectiveFrom: testNow.AddDate(0, -1, 0),
		})
		require.NoError(t, err)
		f.entry = e
	}

	f.drivers = driver.NewMemoryDirectory(
		compliant("d-a", "Ana", types.VehicleCargoVan),
		compliant("d-b", "Bruno", types.VehicleCargoVan),
		compliant("d-c", "Carla", types.VehicleCargoVan),
		compliant("d-car", "Davi", types.VehicleCar),
	)
	locations := location.NewMemoryDirectory(
		location.Location{ID: "loc-1", Name: "Hub Centro", Station: testStation, Position: types.Point{Lat: -23.5505, Lng: -46.6333}},
		location.Location{ID: "loc-2", Name: "Hub Norte", Station: "SP02", Position: types.Point{Lat: -23.4800, Lng: -46.6200}},
	)
	f.svc = NewService(store, Deps{
		Drivers:   f.drivers,
		Locations: locations,
		Now:       func() time.Time { return testNow },
	})
	return f
}

func (f *fixture) createRoute(t *testing.T, mods ...func(*CreateCommand)) *Route {
	t.Helper()
	km := 50.0
	cmd := CreateCommand{
		Date:          testDay,
		StartTime:     "08:00",
		LocationID:    "loc-1",
		VehicleType:   types.VehicleCargoVan,
		Cycle:         types.Cycle1,
		DurationHours: 8,
		ProjectedKm:   &km,
	}
	for _, m := range mods {
		m(&cmd)
	}
	r, err := f.svc.CreateRoute(context.Background(), cmd)
	require.NoError(t, err)
	return r
}

// routeIn drives a fresh route into status using driver d-a.
func (f *fixture) routeIn(t *testing.T, status Status) *Route {
	t.Helper()
	return f.routeFor(t, status, "d-a")
}

func (f *fixture) routeFor(t *testing.T, status Status, driverID types.ID) *Route {
	t.Helper()
	ctx := context.Background()
	r := f.createRoute(t)
	if status == StatusAvailable {
		return r
	}

	res, err := f.svc.CreateOffer(ctx, CreateOfferCommand{RouteID: r.ID, DriverID: driverID})
	require.NoError(t, err)
	switch status {
	case StatusOffered:
	case StatusRefused:
		_, err = f.svc.RespondOffer(ctx, RespondCommand{OfferID: res.Offer.ID, Accept: false})
		require.NoError(t, err)
	default:
		_, err = f.svc.RespondOffer(ctx, RespondCommand{OfferID: res.Offer.ID, Accept: true})
		require.NoError(t, err)
	}
	switch status {
	case StatusConfirmed, StatusValidated:
		_, err = f.svc.ConfirmRoute(ctx, ConfirmCommand{RouteID: r.ID, Code: "R-100", PackageCount: 120, LocationCount: 40, StopCount: 38})
		require.NoError(t, err)
	case StatusCancelled:
		_, err = f.svc.CancelRoute(ctx, CancelRouteCommand{RouteID: r.ID, Reason: "client cancelled"})
		require.NoError(t, err)
	}
	if status == StatusValidated {
		_, err = f.svc.ValidateRoute(ctx, ValidateCommand{RouteID: r.ID, RealKm: 48})
		require.NoError(t, err)
	}

	got, err := f.svc.GetRoute(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, status, got.Status)
	return got
}

func (f *fixture) activeOffer(t *testing.T, routeID types.ID) *Offer {
	t.Helper()
	offers, err := f.svc.ListOffers(context.Background(), routeID)
	require.NoError(t, err)
	for i := range offers {
		if offers[i].Active {
			return &offers[i]
		}
	}
	return nil
}

func (f *fixture) holders(t *testing.T, r *Route) map[types.ID]types.ID {
	t.Helper()
	h, err := f.store.SlotHolders(context.Background(), r.Date, r.Cycle, r.VehicleType)
	require.NoError(t, err)
	return h
}
