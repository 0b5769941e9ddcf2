package route

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lastmile/internal/modules/driver"
	"lastmile/internal/modules/eligibility"
	"lastmile/internal/modules/pricing"
	"lastmile/internal/types"
)

func TestCreateRouteFreezesPrice(t *testing.T) {
	f := newFixture(t)
	r := f.createRoute(t)

	assert.Equal(t, StatusAvailable, r.Status)
	assert.Equal(t, TypeDelivery, r.Type)
	assert.Equal(t, types.OwnershipSelf, r.Ownership)
	assert.Equal(t, "16:00", r.EndTime)
	assert.Equal(t, 320.0, r.Price.ProjectedValue)
	assert.Equal(t, 352.0, r.Price.TotalProjectedValue)
	assert.Equal(t, 0.64, r.Price.KmRate)
	assert.Equal(t, f.entry.ID, r.Price.PriceTableID)
	assert.Equal(t, 1, r.Price.PriceTableVersion)
	assert.Nil(t, r.AssignedDriverID)

	events, err := f.svc.Events(context.Background(), r.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, StatusNone, events[0].FromStatus)
	assert.Equal(t, StatusAvailable, events[0].ToStatus)
}

func TestCreateRouteWeekendBonus(t *testing.T) {
	f := newFixture(t)
	r := f.createRoute(t, func(c *CreateCommand) {
		c.Date = testDay.AddDate(0, 0, 3) // Saturday
		c.FixedBonus = 15
	})
	assert.Equal(t, 5.0, r.Price.PerHourBonus)
	assert.Equal(t, 320.0+40+15, r.Price.ProjectedValue)
}

func TestCreateRouteValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	km := -1.0

	cases := []struct {
		name  string
		field string
		mod   func(*CreateCommand)
	}{
		{"zero duration", "duration_hours", func(c *CreateCommand) { c.DurationHours = 0 }},
		{"duration over a day", "duration_hours", func(c *CreateCommand) { c.DurationHours = 24.5 }},
		{"missing date", "date", func(c *CreateCommand) { c.Date = time.Time{} }},
		{"bad start", "start_time", func(c *CreateCommand) { c.StartTime = "8am" }},
		{"bad vehicle", "vehicle_type", func(c *CreateCommand) { c.VehicleType = "TRUCK" }},
		{"bad cycle", "cycle", func(c *CreateCommand) { c.Cycle = "CYCLE_9" }},
		{"negative km", "projected_km", func(c *CreateCommand) { c.ProjectedKm = &km }},
		{"missing location", "location_id", func(c *CreateCommand) { c.LocationID = "" }},
		{"rescue without origin route", "rescued_route_id", func(c *CreateCommand) { c.Type = TypeRescue; c.Cycle = "" }},
		{"rescue in a shift cycle", "cycle", func(c *CreateCommand) {
			c.Type = TypeRescue
			c.Rescue = &RescueInput{RescuedRouteID: "r-1"}
		}},
		{"rescue details on delivery", "rescue", func(c *CreateCommand) { c.Rescue = &RescueInput{RescuedRouteID: "r-1"} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			km := 50.0
			cmd := CreateCommand{
				Date: testDay, StartTime: "08:00", LocationID: "loc-1", VehicleType: types.VehicleCargoVan,
				Cycle: types.Cycle1, DurationHours: 8, ProjectedKm: &km,
			}
			tc.mod(&cmd)
			_, err := f.svc.CreateRoute(ctx, cmd)
			require.ErrorIs(t, err, ErrValidation)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
		})
	}

	routes, err := f.svc.ListRoutes(ctx, Filter{})
	require.NoError(t, err)
	assert.Empty(t, routes)
}

func TestCreateRouteNoPriceTable(t *testing.T) {
	f := newFixture(t)
	km := 10.0
	_, err := f.svc.CreateRoute(context.Background(), CreateCommand{
		Date: testDay, StartTime: "08:00", LocationID: "loc-2", VehicleType: types.VehicleCargoVan,
		Cycle: types.Cycle1, DurationHours: 8, ProjectedKm: &km,
	})
	require.ErrorIs(t, err, pricing.ErrNoPriceTable)
	var npt *pricing.NoPriceTableError
	require.ErrorAs(t, err, &npt)
	assert.Equal(t, "SP02", npt.Station)
	assert.Equal(t, "no_price_table", Outcome(err))
}

func TestCreateRouteUnknownLocation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateRoute(context.Background(), CreateCommand{
		Date: testDay, StartTime: "08:00", LocationID: "nowhere", VehicleType: types.VehicleCargoVan,
		Cycle: types.Cycle1, DurationHours: 8,
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

type fixedDistance struct {
	km    float64
	err   error
	calls int
}

func (d *fixedDistance) DistanceKm(context.Context, types.Point, types.Point) (float64, error) {
	d.calls++
	return d.km, d.err
}

func TestCreateRescueRoute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	origin := f.createRoute(t)

	dist := &fixedDistance{km: 12.36}
	f.svc.distance = dist

	r, err := f.svc.CreateRoute(ctx, CreateCommand{
		Date: testDay, StartTime: "13:30", LocationID: "loc-1", VehicleType: types.VehicleCargoVan,
		Type: TypeRescue, DurationHours: 3,
		Rescue: &RescueInput{RescuedRouteID: origin.ID, StopCount: 5, PackageCount: 30, Origin: types.Point{Lat: -23.60, Lng: -46.70}},
	})
	require.NoError(t, err)
	assert.Equal(t, types.NoCycle, r.Cycle)
	assert.Equal(t, 1, dist.calls)
	assert.Equal(t, 12.4, r.Price.ProjectedKm)
	require.NotNil(t, r.Rescue)
	assert.Equal(t, origin.ID, r.Rescue.RescuedRouteID)
	assert.Equal(t, 30, r.Rescue.PackageCount)
}

func TestCreateRescueRouteFallsBackToStraightLine(t *testing.T) {
	f := newFixture(t)
	origin := f.createRoute(t)
	f.svc.distance = &fixedDistance{err: errors.New("quota exceeded")}

	from := types.Point{Lat: -23.60, Lng: -46.70}
	r, err := f.svc.CreateRoute(context.Background(), CreateCommand{
		Date: testDay, StartTime: "13:30", LocationID: "loc-1", VehicleType: types.VehicleCargoVan,
		Type: TypeRescue, DurationHours: 3,
		Rescue: &RescueInput{RescuedRouteID: origin.ID, Origin: from},
	})
	require.NoError(t, err)
	want := types.RoundKm(types.DistanceKm(from, types.Point{Lat: -23.5505, Lng: -46.6333}))
	assert.Equal(t, want, r.Price.ProjectedKm)
	assert.Greater(t, r.Price.ProjectedKm, 0.0)
}

func TestCreateRescueRouteUnknownOrigin(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateRoute(context.Background(), CreateCommand{
		Date: testDay, StartTime: "13:30", LocationID: "loc-1", VehicleType: types.VehicleCargoVan,
		Type: TypeRescue, DurationHours: 3,
		Rescue: &RescueInput{RescuedRouteID: "missing"},
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOfferAcceptConfirmValidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.createRoute(t)

	res, err := f.svc.CreateOffer(ctx, CreateOfferCommand{RouteID: r.ID, DriverID: "d-a"})
	require.NoError(t, err)
	assert.Nil(t, res.Warning)
	assert.Equal(t, OfferPending, res.Offer.Status)
	assert.True(t, res.Offer.Active)
	assert.Equal(t, map[types.ID]types.ID{"d-a": res.Offer.ID}, f.holders(t, r))

	o, err := f.svc.RespondOffer(ctx, RespondCommand{OfferID: res.Offer.ID, Accept: true})
	require.NoError(t, err)
	assert.Equal(t, OfferAccepted, o.Status)
	require.NotNil(t, o.RespondedAt)
	assert.Equal(t, map[types.ID]types.ID{"d-a": res.Offer.ID}, f.holders(t, r))

	start := testDay.Add(8*time.Hour + 5*time.Minute)
	got, err := f.svc.ConfirmRoute(ctx, ConfirmCommand{
		RouteID: r.ID, Code: "  R-778 ", PackageCount: 140, LocationCount: 52, StopCount: 49, ActualStartTime: &start,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
	assert.Equal(t, "R-778", got.Code)
	assert.Equal(t, 140, got.PackageCount)
	require.NotNil(t, got.ActualStartTime)

	got, err = f.svc.ValidateRoute(ctx, ValidateCommand{RouteID: r.ID, RealKm: 47.5})
	require.NoError(t, err)
	assert.Equal(t, StatusValidated, got.Status)
	require.NotNil(t, got.FinalValue)
	assert.Equal(t, 350.4, *got.FinalValue)
	assert.Equal(t, 47.5, *got.RealKm)
	require.NotNil(t, got.AssignedDriverID)
	assert.Equal(t, types.ID("d-a"), *got.AssignedDriverID)

	events, err := f.svc.Events(ctx, r.ID)
	require.NoError(t, err)
	var path []Status
	for _, e := range events {
		path = append(path, e.ToStatus)
	}
	assert.Equal(t, []Status{StatusAvailable, StatusOffered, StatusAccepted, StatusConfirmed, StatusValidated}, path)
	assert.Equal(t, 4, got.StatusVersion)
}

func TestConfirmRouteRequiresCode(t *testing.T) {
	f := newFixture(t)
	r := f.routeIn(t, StatusAccepted)

	_, err := f.svc.ConfirmRoute(context.Background(), ConfirmCommand{RouteID: r.ID, Code: "   "})
	require.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.ConfirmRoute(context.Background(), ConfirmCommand{RouteID: r.ID, Code: "R-1", StopCount: -1})
	require.ErrorIs(t, err, ErrValidation)

	got, err := f.svc.GetRoute(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, got.Status)
}

func TestValidateTwiceIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.routeIn(t, StatusConfirmed)

	first, err := f.svc.ValidateRoute(ctx, ValidateCommand{RouteID: r.ID, RealKm: 61.3})
	require.NoError(t, err)
	want := pricing.FinalValue(r.Price, 61.3)
	assert.Equal(t, want, *first.FinalValue)

	_, err = f.svc.ValidateRoute(ctx, ValidateCommand{RouteID: r.ID, RealKm: 61.3})
	require.ErrorIs(t, err, ErrConflict)
	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, string(StatusValidated), te.From)

	got, err := f.svc.GetRoute(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, want, *got.FinalValue)
}

func TestValidateRejectsNegativeKm(t *testing.T) {
	f := newFixture(t)
	r := f.routeIn(t, StatusConfirmed)
	_, err := f.svc.ValidateRoute(context.Background(), ValidateCommand{RouteID: r.ID, RealKm: -3})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSnapshotSurvivesPriceChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.routeIn(t, StatusConfirmed)
	before := r.Price

	_, err := f.prices.Publish(ctx, pricing.Entry{
		ID:            "pt-cargo-v2",
		Key:           f.entry.Key,
		HourlyRate:    55,
		KmRate:        1.10,
		EffectiveFrom: testNow,
	})
	require.NoError(t, err)

	got, err := f.svc.ValidateRoute(ctx, ValidateCommand{RouteID: r.ID, RealKm: 50})
	require.NoError(t, err)
	assert.Equal(t, before, got.Price)
	assert.Equal(t, 352.0, *got.FinalValue)

	got, err = f.svc.GetRoute(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, before, got.Price)

	fresh, err := f.svc.CreateRoute(ctx, CreateCommand{
		Date: testDay, StartTime: "09:00", LocationID: "loc-1", VehicleType: types.VehicleCargoVan,
		Cycle: types.Cycle1, DurationHours: 8,
	})
	require.NoError(t, err)
	assert.Equal(t, 55.0, fresh.Price.HourlyRate)
	assert.NotEqual(t, before, fresh.Price)
}

func TestExclusivityAcrossRoutes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r1 := f.createRoute(t)
	r2 := f.createRoute(t, func(c *CreateCommand) { c.StartTime = "10:00" })
	r3 := f.createRoute(t, func(c *CreateCommand) { c.Cycle = types.Cycle2 })

	first, err := f.svc.CreateOffer(ctx, CreateOfferCommand{RouteID: r1.ID, DriverID: "d-a"})
	require.NoError(t, err)

	_, err = f.svc.CreateOffer(ctx, CreateOfferCommand{RouteID: r2.ID, DriverID: "d-a"})
	require.ErrorIs(t, err, ErrConflict)
	var sc *SlotConflictError
	require.ErrorAs(t, err, &sc)
	assert.Equal(t, first.Offer.ID, sc.Holder)
	assert.Equal(t, "2024-01-10", sc.Slot.Date)

	got, err := f.svc.GetRoute(ctx, r2.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAvailable, got.Status)
	offers, err := f.svc.ListOffers(ctx, r2.ID)
	require.NoError(t, err)
	assert.Empty(t, offers)

	_, err = f.svc.CreateOffer(ctx, CreateOfferCommand{RouteID: r3.ID, DriverID: "d-a"})
	require.NoError(t, err, "a different cycle is a different slot")

	_, err = f.svc.RespondOffer(ctx, RespondCommand{OfferID: first.Offer.ID, Accept: false})
	require.NoError(t, err)
	_, err = f.svc.CreateOffer(ctx, CreateOfferCommand{RouteID: r2.ID, DriverID: "d-a"})
	require.NoError(t, err, "refusal frees the slot")
}

func TestCreateOfferVehicleMismatch(t *testing.T) {
	f := newFixture(t)
	r := f.createRoute(t)
	_, err := f.svc.CreateOffer(context.Background(), CreateOfferCommand{RouteID: r.ID, DriverID: "d-car"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.CreateOffer(context.Background(), CreateOfferCommand{RouteID: r.ID, DriverID: "ghost"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateOfferEligibilityWarning(t *testing.T) {
	f := newFixture(t)
	d := compliant("d-old", "Otto", types.VehicleCargoVan)
	d.VehicleManufactureYear = 2001
	d.HasActiveContract = false
	f.drivers.Put(d)
	r := f.createRoute(t)

	res, err := f.svc.CreateOffer(context.Background(), CreateOfferCommand{RouteID: r.ID, DriverID: d.ID})
	require.NoError(t, err)
	require.NotNil(t, res.Warning)
	assert.Equal(t, []eligibility.Reason{eligibility.ReasonVehicleTooOld, eligibility.ReasonNoActiveContract}, res.Warning.Reasons)
	assert.Equal(t, OfferPending, res.Offer.Status)
}

func TestReofferEligibilityWarning(t *testing.T) {
	f := newFixture(t)
	d := compliant("d-lapsed", "Lia", types.VehicleCargoVan)
	d.License.ValidUntil = testNow.AddDate(0, 0, -1)
	f.drivers.Put(d)
	r := f.routeIn(t, StatusOffered)

	res, err := f.svc.ReofferRoute(context.Background(), ReofferCommand{RouteID: r.ID, DriverID: d.ID})
	require.NoError(t, err)
	require.NotNil(t, res.Warning)
	assert.Equal(t, d.ID, res.Warning.DriverID)
	assert.Equal(t, []eligibility.Reason{eligibility.ReasonLicenseExpired}, res.Warning.Reasons)
	assert.Equal(t, StatusOffered, res.Route.Status)
	require.NotNil(t, res.Route.AssignedDriverID)
	assert.Equal(t, d.ID, *res.Route.AssignedDriverID)
	assert.Contains(t, f.holders(t, r), d.ID)
}

func TestReofferAfterRefusal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.createRoute(t)

	res, err := f.svc.CreateOffer(ctx, CreateOfferCommand{RouteID: r.ID, DriverID: "d-a"})
	require.NoError(t, err)
	_, err = f.svc.RespondOffer(ctx, RespondCommand{OfferID: res.Offer.ID, Accept: false})
	require.NoError(t, err)

	got, err := f.svc.GetRoute(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRefused, got.Status)
	assert.Empty(t, f.holders(t, r))

	reoffered, err := f.svc.ReofferRoute(ctx, ReofferCommand{RouteID: r.ID, DriverID: "d-b"})
	require.NoError(t, err)
	assert.Nil(t, reoffered.Warning)
	got = &reoffered.Route
	assert.Equal(t, StatusOffered, got.Status)
	require.NotNil(t, got.AssignedDriverID)
	assert.Equal(t, types.ID("d-b"), *got.AssignedDriverID)

	old, err := f.store.GetOffer(ctx, res.Offer.ID)
	require.NoError(t, err)
	assert.Equal(t, OfferRefused, old.Status)
	assert.False(t, old.Active)

	active := f.activeOffer(t, r.ID)
	require.NotNil(t, active)
	assert.Equal(t, types.ID("d-b"), active.DriverID)
	assert.Equal(t, map[types.ID]types.ID{"d-b": active.ID}, f.holders(t, r))
}

func TestReofferFromAcceptedMovesSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.routeIn(t, StatusConfirmed)
	prev := f.activeOffer(t, r.ID)
	require.NotNil(t, prev)

	got, err := f.svc.ReofferRoute(ctx, ReofferCommand{RouteID: r.ID, DriverID: "d-c"})
	require.NoError(t, err)
	assert.Equal(t, StatusOffered, got.Route.Status)

	old, err := f.store.GetOffer(ctx, prev.ID)
	require.NoError(t, err)
	assert.Equal(t, OfferAccepted, old.Status, "historical status is kept")
	assert.False(t, old.Active)
	require.NotNil(t, old.DeactivatedAt)

	h := f.holders(t, r)
	assert.NotContains(t, h, types.ID("d-a"))
	assert.Contains(t, h, types.ID("d-c"))
}

func TestReofferToBusyDriverKeepsOriginalOffer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r1 := f.routeIn(t, StatusOffered)
	r2 := f.createRoute(t, func(c *CreateCommand) { c.StartTime = "12:00" })
	_, err := f.svc.CreateOffer(ctx, CreateOfferCommand{RouteID: r2.ID, DriverID: "d-b"})
	require.NoError(t, err)

	_, err = f.svc.ReofferRoute(ctx, ReofferCommand{RouteID: r1.ID, DriverID: "d-b"})
	require.ErrorIs(t, err, ErrConflict)

	active := f.activeOffer(t, r1.ID)
	require.NotNil(t, active)
	assert.Equal(t, types.ID("d-a"), active.DriverID)
	assert.Contains(t, f.holders(t, r1), types.ID("d-a"))
}

func TestCancelOfferFreesSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.routeIn(t, StatusOffered)
	require.Contains(t, f.holders(t, r), types.ID("d-a"))

	got, err := f.svc.CancelOffer(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAvailable, got.Status)
	assert.Nil(t, got.AssignedDriverID)
	assert.Empty(t, f.holders(t, r))
	assert.Nil(t, f.activeOffer(t, r.ID))

	other := f.createRoute(t, func(c *CreateCommand) { c.StartTime = "14:00" })
	_, err = f.svc.CreateOffer(ctx, CreateOfferCommand{RouteID: other.ID, DriverID: "d-a"})
	assert.NoError(t, err)
}

func TestCancelRouteFreesSlot(t *testing.T) {
	f := newFixture(t)
	r := f.routeIn(t, StatusAccepted)

	got, err := f.svc.CancelRoute(context.Background(), CancelRouteCommand{RouteID: r.ID, Reason: " weather "})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, "weather", got.CancelReason)
	assert.Empty(t, f.holders(t, r))
}

func TestRespondToInactiveOffer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.routeIn(t, StatusOffered)
	prev := f.activeOffer(t, r.ID)

	_, err := f.svc.ReofferRoute(ctx, ReofferCommand{RouteID: r.ID, DriverID: "d-b"})
	require.NoError(t, err)

	_, err = f.svc.RespondOffer(ctx, RespondCommand{OfferID: prev.ID, Accept: true})
	require.ErrorIs(t, err, ErrConflict)

	_, err = f.svc.RespondOffer(ctx, RespondCommand{OfferID: "missing", Accept: true})
	require.ErrorIs(t, err, ErrNotFound)
}

// Every (operation, source state) pair either succeeds or fails with ErrConflict,
// and only the pairs in the route flow succeed.
func TestStateMachine(t *testing.T) {
	all := []Status{StatusAvailable, StatusOffered, StatusAccepted, StatusRefused, StatusConfirmed, StatusValidated, StatusCancelled}

	ops := []struct {
		op    Operation
		to    Status
		legal []Status
		run   func(f *fixture, r *Route) error
	}{
		{OpCreateOffer, StatusOffered, []Status{StatusAvailable, StatusRefused}, func(f *fixture, r *Route) error {
			_, err := f.svc.CreateOffer(context.Background(), CreateOfferCommand{RouteID: r.ID, DriverID: "d-b"})
			return err
		}},
		{OpRespondOffer, StatusAccepted, []Status{StatusOffered}, func(f *fixture, r *Route) error {
			offers, err := f.svc.ListOffers(context.Background(), r.ID)
			if err != nil {
				return err
			}
			_, err = f.svc.RespondOffer(context.Background(), RespondCommand{OfferID: offers[len(offers)-1].ID, Accept: true})
			return err
		}},
		{OpReoffer, StatusOffered, []Status{StatusOffered, StatusAccepted, StatusRefused, StatusConfirmed}, func(f *fixture, r *Route) error {
			_, err := f.svc.ReofferRoute(context.Background(), ReofferCommand{RouteID: r.ID, DriverID: "d-b"})
			return err
		}},
		{OpCancelOffer, StatusAvailable, []Status{StatusOffered, StatusAccepted, StatusConfirmed}, func(f *fixture, r *Route) error {
			_, err := f.svc.CancelOffer(context.Background(), r.ID)
			return err
		}},
		{OpCancelRoute, StatusCancelled, []Status{StatusOffered, StatusAccepted, StatusConfirmed}, func(f *fixture, r *Route) error {
			_, err := f.svc.CancelRoute(context.Background(), CancelRouteCommand{RouteID: r.ID})
			return err
		}},
		{OpConfirm, StatusConfirmed, []Status{StatusAccepted}, func(f *fixture, r *Route) error {
			_, err := f.svc.ConfirmRoute(context.Background(), ConfirmCommand{RouteID: r.ID, Code: "R-9"})
			return err
		}},
		{OpValidate, StatusValidated, []Status{StatusConfirmed}, func(f *fixture, r *Route) error {
			_, err := f.svc.ValidateRoute(context.Background(), ValidateCommand{RouteID: r.ID, RealKm: 10})
			return err
		}},
	}

	for _, op := range ops {
		for _, from := range all {
			if op.op == OpRespondOffer && from == StatusAvailable {
				continue // no offer to answer
			}
			legal := false
			for _, s := range op.legal {
				legal = legal || s == from
			}
			t.Run(string(op.op)+"/"+string(from), func(t *testing.T) {
				f := newFixture(t)
				r := f.routeIn(t, from)
				err := op.run(f, r)

				got, gerr := f.svc.GetRoute(context.Background(), r.ID)
				require.NoError(t, gerr)
				if legal {
					require.NoError(t, err)
					assert.Equal(t, op.to, got.Status)
					assert.True(t, CanTransition(from, op.to))
					return
				}
				require.ErrorIs(t, err, ErrConflict)
				assert.Equal(t, from, got.Status, "failed operation must not change state")
				assert.Equal(t, r.StatusVersion, got.StatusVersion)
			})
		}
	}
}

func TestValidateRoutesBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ok1 := f.routeIn(t, StatusConfirmed)
	accepted := f.routeFor(t, StatusAccepted, "d-c")

	res := f.svc.ValidateRoutesBatch(ctx, []ValidateCommand{
		{RouteID: ok1.ID, RealKm: 40},
		{RouteID: accepted.ID, RealKm: 40},
		{RouteID: "missing", RealKm: 1},
		{RouteID: ok1.ID, RealKm: 40},
	})
	assert.Equal(t, 1, res.Validated)
	require.Len(t, res.Routes, 1)
	assert.Equal(t, 320+0.64*40, *res.Routes[0].FinalValue)
	require.Len(t, res.Failed, 3)
	assert.Equal(t, accepted.ID, res.Failed[0].RouteID)
	assert.Contains(t, res.Failed[0].Reason, "invalid transition")
	assert.Equal(t, types.ID("missing"), res.Failed[1].RouteID)
	assert.Equal(t, ok1.ID, res.Failed[2].RouteID)

	got, err := f.svc.GetRoute(ctx, accepted.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, got.Status)
}

func TestCreateRoutesBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	spec := func(start ...string) GenerationSpec {
		return GenerationSpec{
			Date: testDay, Cycle: types.Cycle1, LocationID: "loc-1",
			VehicleType: types.VehicleCargoVan, DurationHours: 8, StartTimes: start,
		}
	}
	tooLong := spec("07:00")
	tooLong.DurationHours = 25

	res := f.svc.CreateRoutesBatch(ctx, []GenerationSpec{
		tooLong,
		spec("08:00", "bad"),
		spec("06:00", "09:00"),
	})

	assert.Equal(t, 2, res.Created)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, 0, res.Errors[0].Index)
	assert.Contains(t, res.Errors[0].Reason, "duration_hours")
	assert.Equal(t, 1, res.Errors[1].Index)
	assert.Contains(t, res.Errors[1].Reason, "start_time")

	require.Len(t, res.Routes, 2)
	assert.Equal(t, "06:00", res.Routes[0].StartTime)
	assert.Equal(t, "09:00", res.Routes[1].StartTime)
	assert.Equal(t, res.Routes[0].Price, res.Routes[1].Price)
	assert.Equal(t, f.entry.ID, res.Routes[0].Price.PriceTableID)

	day := testDay
	stored, err := f.svc.ListRoutes(ctx, Filter{Date: &day})
	require.NoError(t, err)
	require.Len(t, stored, 2, "failed specs must not leave routes behind")
	for _, r := range stored {
		assert.NotEqual(t, "08:00", r.StartTime)
		assert.Equal(t, StatusAvailable, r.Status)
	}
}

func TestListRoutesFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createRoute(t, func(c *CreateCommand) { c.StartTime = "10:00" })
	b := f.createRoute(t, func(c *CreateCommand) { c.StartTime = "06:00" })
	f.createRoute(t, func(c *CreateCommand) { c.Date = testDay.AddDate(0, 0, 1) })
	_, err := f.svc.CreateOffer(ctx, CreateOfferCommand{RouteID: a.ID, DriverID: "d-c"})
	require.NoError(t, err)

	day := testDay
	routes, err := f.svc.ListRoutes(ctx, Filter{Date: &day})
	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.Equal(t, b.ID, routes[0].ID)
	assert.Equal(t, a.ID, routes[1].ID)

	routes, err = f.svc.ListRoutes(ctx, Filter{Status: StatusOffered})
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Equal(t, a.ID, routes[0].ID)

	routes, err = f.svc.ListRoutes(ctx, Filter{DriverID: "d-c"})
	require.NoError(t, err)
	assert.Len(t, routes, 1)

	routes, err = f.svc.ListRoutes(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, routes, 1)
}

type countingMetrics struct {
	ops     map[string]int
	created int
	settled []float64
}

func (m *countingMetrics) ObserveOperation(op, outcome string) {
	if m.ops == nil {
		m.ops = make(map[string]int)
	}
	m.ops[op+"/"+outcome]++
}
func (m *countingMetrics) RoutesCreated(n int)        { m.created += n }
func (m *countingMetrics) RouteSettled(value float64) { m.settled = append(m.settled, value) }

func TestServiceReportsMetrics(t *testing.T) {
	f := newFixture(t)
	m := &countingMetrics{}
	f.svc.metrics = m

	r := f.routeIn(t, StatusValidated)
	_, err := f.svc.ValidateRoute(context.Background(), ValidateCommand{RouteID: r.ID, RealKm: 1})
	require.Error(t, err)

	assert.Equal(t, 1, m.created)
	assert.Equal(t, []float64{pricing.FinalValue(r.Price, 48)}, m.settled)
	assert.Equal(t, 1, m.ops["create_offer/ok"])
	assert.Equal(t, 1, m.ops["validate_route/ok"])
	assert.Equal(t, 1, m.ops["validate_route/conflict"])
}

func TestNewServiceDefaults(t *testing.T) {
	svc := NewService(NewMemStore(pricing.NewMemoryCatalog()), Deps{Drivers: driver.NewMemoryDirectory()})
	assert.NotNil(t, svc.metrics)
	assert.NotNil(t, svc.log)
	assert.NotNil(t, svc.now)
}
