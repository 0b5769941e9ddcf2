// README: Read-only driver directory backed by PostgreSQL.
package driver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lastmile/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const driverColumns = `
	id, name, vehicle_type, status, vehicle_manufacture_year,
	license_number, license_valid_until,
	background_check_passed, background_next_check_due,
	has_active_contract`

func (s *Store) Get(ctx context.Context, id types.ID) (Driver, error) {
	row := s.db.QueryRow(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id = $1`, string(id))
	d, err := scanDriver(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Driver{}, ErrNotFound
	}
	if err != nil {
		return Driver{}, fmt.Errorf("get driver %s: %w", id, err)
	}
	return d, nil
}

func (s *Store) List(ctx context.Context, f Filter) ([]Driver, error) {
	var (
		where []string
		args  []any
	)
	if f.VehicleType != "" {
		args = append(args, string(f.VehicleType))
		where = append(where, fmt.Sprintf("vehicle_type = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	q := `SELECT ` + driverColumns + ` FROM drivers`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY name, id"

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list drivers: %w", err)
	}
	defer rows.Close()

	var out []Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDriver(row pgx.Row) (Driver, error) {
	var d Driver
	var licenseNumber *string
	var licenseValidUntil, nextCheckDue *time.Time
	err := row.Scan(
		&d.ID, &d.Name, &d.VehicleType, &d.Status, &d.VehicleManufactureYear,
		&licenseNumber, &licenseValidUntil,
		&d.BackgroundCheck.Passed, &nextCheckDue,
		&d.HasActiveContract,
	)
	if err != nil {
		return Driver{}, err
	}
	if licenseNumber != nil {
		d.License.Number = *licenseNumber
	}
	if licenseValidUntil != nil {
		d.License.ValidUntil = *licenseValidUntil
	}
	if nextCheckDue != nil {
		d.BackgroundCheck.NextCheckDue = *nextCheckDue
	}
	return d, nil
}
