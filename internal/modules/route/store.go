// README: Route store backed by PostgreSQL. Exclusivity lives in offer_slots,
// whose primary key is the (day, cycle, vehicle_type, driver_id) tuple.
package route

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lastmile/internal/modules/pricing"
	"lastmile/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

const routeColumns = `
	id, day, start_time, end_time, code, vehicle_type, route_type, cycle,
	duration_hours, ownership, location_id,
	price_table_id, price_table_version, hourly_rate_snapshot, km_rate_snapshot,
	per_hour_bonus, fixed_bonus, projected_value, projected_km, total_projected_value,
	real_km, final_value, status, status_version, assigned_driver_id,
	package_count, location_count, stop_count, actual_start_time,
	rescued_route_id, rescue_stop_count, rescue_location_count, rescue_package_count,
	origin_lat, origin_lng, cancel_reason, created_at, updated_at, validated_at`

const offerColumns = `id, route_id, driver_id, status, active, created_at, responded_at, deactivated_at`

func (s *Store) GetRoute(ctx context.Context, id types.ID) (*Route, error) {
	return getRoute(ctx, s.db, id, false)
}

func (s *Store) ListRoutes(ctx context.Context, f Filter) ([]Route, error) {
	var (
		where []string
		args  []any
	)
	if f.Date != nil {
		args = append(args, types.Day(*f.Date))
		where = append(where, fmt.Sprintf("day = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.DriverID != "" {
		args = append(args, string(f.DriverID))
		where = append(where, fmt.Sprintf("assigned_driver_id = $%d", len(args)))
	}
	q := `SELECT ` + routeColumns + ` FROM routes`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY day, start_time, id"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}
	defer rows.Close()
	out := make([]Route, 0)
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *Store) GetOffer(ctx context.Context, id types.ID) (*Offer, error) {
	return getOffer(ctx, s.db, id, false)
}

func (s *Store) ListOffers(ctx context.Context, routeID types.ID) ([]Offer, error) {
	rows, err := s.db.Query(ctx, `SELECT `+offerColumns+` FROM offers WHERE route_id = $1 ORDER BY created_at, id`, string(routeID))
	if err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	defer rows.Close()
	out := make([]Offer, 0)
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (s *Store) Events(ctx context.Context, routeID types.ID) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, route_id, from_status, to_status, operation, actor_id, created_at
		FROM route_state_events
		WHERE route_id = $1
		ORDER BY id`, string(routeID))
	if err != nil {
		return nil, fmt.Errorf("list route events: %w", err)
	}
	defer rows.Close()
	out := make([]Event, 0)
	for rows.Next() {
		var e Event
		var actor *string
		if err := rows.Scan(&e.ID, &e.RouteID, &e.FromStatus, &e.ToStatus, &e.Operation, &actor, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ActorID = toIDPtr(actor)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) SlotHolders(ctx context.Context, date time.Time, cycle types.Cycle, vehicleType types.VehicleType) (map[types.ID]types.ID, error) {
	rows, err := s.db.Query(ctx, `
		SELECT driver_id, offer_id
		FROM offer_slots
		WHERE day = $1 AND cycle = $2 AND vehicle_type = $3`,
		types.Day(date), string(cycle), string(vehicleType))
	if err != nil {
		return nil, fmt.Errorf("slot holders: %w", err)
	}
	defer rows.Close()
	out := make(map[types.ID]types.ID)
	for rows.Next() {
		var driverID, offerID types.ID
		if err := rows.Scan(&driverID, &offerID); err != nil {
			return nil, err
		}
		out[driverID] = offerID
	}
	return out, rows.Err()
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetRoute(ctx context.Context, id types.ID) (*Route, error) {
	return getRoute(ctx, t.tx, id, true)
}

func (t *pgTx) InsertRoute(ctx context.Context, r *Route) error {
	var rescuedID *string
	var rescueStops, rescueLocations, rescuePackages *int
	var originLat, originLng *float64
	if r.Rescue != nil {
		id := string(r.Rescue.RescuedRouteID)
		rescuedID = &id
		rescueStops, rescueLocations, rescuePackages = &r.Rescue.StopCount, &r.Rescue.LocationCount, &r.Rescue.PackageCount
		originLat, originLng = &r.Rescue.Origin.Lat, &r.Rescue.Origin.Lng
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO routes (`+routeColumns+`) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11,
			$12, $13, $14, $15,
			$16, $17, $18, $19, $20,
			$21, $22, $23, $24, $25,
			$26, $27, $28, $29,
			$30, $31, $32, $33,
			$34, $35, $36, $37, $38, $39
		)`,
		string(r.ID), types.Day(r.Date), r.StartTime, nullString(r.EndTime), nullString(r.Code),
		string(r.VehicleType), string(r.Type), string(r.Cycle),
		r.DurationHours, string(r.Ownership), string(r.LocationID),
		string(r.Price.PriceTableID), r.Price.PriceTableVersion, r.Price.HourlyRate, r.Price.KmRate,
		r.Price.PerHourBonus, r.Price.FixedBonus, r.Price.ProjectedValue, r.Price.ProjectedKm, r.Price.TotalProjectedValue,
		r.RealKm, r.FinalValue, string(r.Status), r.StatusVersion, fromIDPtr(r.AssignedDriverID),
		r.PackageCount, r.LocationCount, r.StopCount, r.ActualStartTime,
		rescuedID, rescueStops, rescueLocations, rescuePackages,
		originLat, originLng, nullString(r.CancelReason), r.CreatedAt, r.UpdatedAt, r.ValidatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert route: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateRoute(ctx context.Context, r *Route) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE routes SET
			code = $2,
			status = $3,
			status_version = $4,
			assigned_driver_id = $5,
			package_count = $6,
			location_count = $7,
			stop_count = $8,
			actual_start_time = $9,
			real_km = $10,
			final_value = $11,
			cancel_reason = $12,
			updated_at = $13,
			validated_at = $14
		WHERE id = $1`,
		string(r.ID), nullString(r.Code), string(r.Status), r.StatusVersion, fromIDPtr(r.AssignedDriverID),
		r.PackageCount, r.LocationCount, r.StopCount, r.ActualStartTime,
		r.RealKm, r.FinalValue, nullString(r.CancelReason), r.UpdatedAt, r.ValidatedAt,
	)
	if err != nil {
		return fmt.Errorf("update route: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return &NotFoundError{Kind: "route", ID: r.ID}
	}
	return nil
}

func (t *pgTx) GetOffer(ctx context.Context, id types.ID) (*Offer, error) {
	return getOffer(ctx, t.tx, id, true)
}

func (t *pgTx) ActiveOffer(ctx context.Context, routeID types.ID) (*Offer, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+offerColumns+` FROM offers WHERE route_id = $1 AND active FOR UPDATE`, string(routeID))
	o, err := scanOffer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active offer: %w", err)
	}
	return o, nil
}

func (t *pgTx) InsertOffer(ctx context.Context, o *Offer) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO offers (`+offerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(o.ID), string(o.RouteID), string(o.DriverID), string(o.Status), o.Active,
		o.CreatedAt, o.RespondedAt, o.DeactivatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert offer: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateOffer(ctx context.Context, o *Offer) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE offers
		SET status = $2, active = $3, responded_at = $4, deactivated_at = $5
		WHERE id = $1`,
		string(o.ID), string(o.Status), o.Active, o.RespondedAt, o.DeactivatedAt,
	)
	if err != nil {
		return fmt.Errorf("update offer: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return &NotFoundError{Kind: "offer", ID: o.ID}
	}
	return nil
}

// ClaimSlot relies on the primary key: a concurrent claimer blocks on the
// uncommitted row and then sees the conflict once the first commits.
func (t *pgTx) ClaimSlot(ctx context.Context, key SlotKey, offerID types.ID) (types.ID, bool, error) {
	day, err := types.ParseDate(key.Date)
	if err != nil {
		return "", false, err
	}
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO offer_slots (day, cycle, vehicle_type, driver_id, offer_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (day, cycle, vehicle_type, driver_id) DO NOTHING`,
		day, string(key.Cycle), string(key.VehicleType), string(key.DriverID), string(offerID))
	if err != nil {
		return "", false, fmt.Errorf("claim slot: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return offerID, true, nil
	}
	var holder types.ID
	err = t.tx.QueryRow(ctx, `
		SELECT offer_id FROM offer_slots
		WHERE day = $1 AND cycle = $2 AND vehicle_type = $3 AND driver_id = $4`,
		day, string(key.Cycle), string(key.VehicleType), string(key.DriverID)).Scan(&holder)
	if err != nil {
		return "", false, fmt.Errorf("read slot holder: %w", err)
	}
	return holder, false, nil
}

func (t *pgTx) ReleaseSlot(ctx context.Context, key SlotKey, offerID types.ID) error {
	day, err := types.ParseDate(key.Date)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		DELETE FROM offer_slots
		WHERE day = $1 AND cycle = $2 AND vehicle_type = $3 AND driver_id = $4 AND offer_id = $5`,
		day, string(key.Cycle), string(key.VehicleType), string(key.DriverID), string(offerID))
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	return nil
}

func (t *pgTx) AppendEvent(ctx context.Context, e *Event) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO route_state_events (route_id, from_status, to_status, operation, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		string(e.RouteID), string(e.FromStatus), string(e.ToStatus), string(e.Operation),
		fromIDPtr(e.ActorID), e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("append route event: %w", err)
	}
	return nil
}

func (t *pgTx) Prices() pricing.Lookup {
	return pricing.NewStore(t.tx)
}

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getRoute(ctx context.Context, q queryer, id types.ID, lock bool) (*Route, error) {
	sql := `SELECT ` + routeColumns + ` FROM routes WHERE id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	r, err := scanRoute(q.QueryRow(ctx, sql, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Kind: "route", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get route %s: %w", id, err)
	}
	return r, nil
}

func getOffer(ctx context.Context, q queryer, id types.ID, lock bool) (*Offer, error) {
	sql := `SELECT ` + offerColumns + ` FROM offers WHERE id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	o, err := scanOffer(q.QueryRow(ctx, sql, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Kind: "offer", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get offer %s: %w", id, err)
	}
	return o, nil
}

func scanRoute(row pgx.Row) (*Route, error) {
	var r Route
	var endTime, code, driverID, rescuedID, cancelReason *string
	var rescueStops, rescueLocations, rescuePackages *int
	var originLat, originLng *float64
	err := row.Scan(
		&r.ID, &r.Date, &r.StartTime, &endTime, &code, &r.VehicleType, &r.Type, &r.Cycle,
		&r.DurationHours, &r.Ownership, &r.LocationID,
		&r.Price.PriceTableID, &r.Price.PriceTableVersion, &r.Price.HourlyRate, &r.Price.KmRate,
		&r.Price.PerHourBonus, &r.Price.FixedBonus, &r.Price.ProjectedValue, &r.Price.ProjectedKm, &r.Price.TotalProjectedValue,
		&r.RealKm, &r.FinalValue, &r.Status, &r.StatusVersion, &driverID,
		&r.PackageCount, &r.LocationCount, &r.StopCount, &r.ActualStartTime,
		&rescuedID, &rescueStops, &rescueLocations, &rescuePackages,
		&originLat, &originLng, &cancelReason, &r.CreatedAt, &r.UpdatedAt, &r.ValidatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.EndTime = deref(endTime)
	r.Code = deref(code)
	r.CancelReason = deref(cancelReason)
	r.AssignedDriverID = toIDPtr(driverID)
	if rescuedID != nil {
		r.Rescue = &Rescue{RescuedRouteID: types.ID(*rescuedID)}
		if rescueStops != nil {
			r.Rescue.StopCount = *rescueStops
		}
		if rescueLocations != nil {
			r.Rescue.LocationCount = *rescueLocations
		}
		if rescuePackages != nil {
			r.Rescue.PackageCount = *rescuePackages
		}
		if originLat != nil && originLng != nil {
			r.Rescue.Origin = types.Point{Lat: *originLat, Lng: *originLng}
		}
	}
	return &r, nil
}

func scanOffer(row pgx.Row) (*Offer, error) {
	var o Offer
	if err := row.Scan(&o.ID, &o.RouteID, &o.DriverID, &o.Status, &o.Active, &o.CreatedAt, &o.RespondedAt, &o.DeactivatedAt); err != nil {
		return nil, err
	}
	return &o, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func toIDPtr(s *string) *types.ID {
	if s == nil {
		return nil
	}
	id := types.ID(*s)
	return &id
}

func fromIDPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
