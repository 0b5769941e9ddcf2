// README: Price-table store backed by PostgreSQL; usable on a pool or inside a caller's transaction.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Store struct {
	db DBTX
}

func NewStore(db DBTX) *Store {
	return &Store{db: db}
}

const entryColumns = `
	id, station, service_type, ownership, version,
	hourly_rate, cancellation_rate, km_rate, weekend_bonus,
	effective_from, effective_to, active`

func (s *Store) ActiveEntry(ctx context.Context, key Key) (Entry, bool, error) {
	row := s.db.QueryRow(ctx, `SELECT `+entryColumns+`
		FROM price_tables
		WHERE station = $1 AND service_type = $2 AND ownership = $3 AND active`,
		key.Station, string(key.ServiceType), string(key.Ownership))
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("active price table: %w", err)
	}
	return e, true, nil
}

func (s *Store) ListActive(ctx context.Context, station string) ([]Entry, error) {
	return s.query(ctx, `SELECT `+entryColumns+`
		FROM price_tables
		WHERE station = $1 AND active
		ORDER BY service_type, ownership`, station)
}

func (s *Store) History(ctx context.Context, key Key) ([]Entry, error) {
	return s.query(ctx, `SELECT `+entryColumns+`
		FROM price_tables
		WHERE station = $1 AND service_type = $2 AND ownership = $3
		ORDER BY version DESC`,
		key.Station, string(key.ServiceType), string(key.Ownership))
}

// Publish supersedes the active entry for e.Key and inserts e as the next version.
func (s *Store) Publish(ctx context.Context, e Entry) (Entry, error) {
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		// Serialise publishers of the same key.
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`,
			e.Station+"|"+string(e.ServiceType)+"|"+string(e.Ownership)); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE price_tables
			SET active = false, effective_to = $4
			WHERE station = $1 AND service_type = $2 AND ownership = $3 AND active`,
			e.Station, string(e.ServiceType), string(e.Ownership), e.EffectiveFrom); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, `
			SELECT COALESCE(MAX(version), 0) + 1
			FROM price_tables
			WHERE station = $1 AND service_type = $2 AND ownership = $3`,
			e.Station, string(e.ServiceType), string(e.Ownership)).Scan(&e.Version); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO price_tables (
				id, station, service_type, ownership, version,
				hourly_rate, cancellation_rate, km_rate, weekend_bonus,
				effective_from, effective_to, active
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULL, true)`,
			string(e.ID), e.Station, string(e.ServiceType), string(e.Ownership), e.Version,
			e.HourlyRate, e.CancellationRate, e.KmRate, e.WeekendBonus, e.EffectiveFrom)
		return err
	})
	if err != nil {
		return Entry{}, fmt.Errorf("publish price table: %w", err)
	}
	e.Active = true
	e.EffectiveTo = nil
	return e, nil
}

func (s *Store) query(ctx context.Context, sql string, args ...any) ([]Entry, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	var effectiveTo *time.Time
	err := row.Scan(
		&e.ID, &e.Station, &e.ServiceType, &e.Ownership, &e.Version,
		&e.HourlyRate, &e.CancellationRate, &e.KmRate, &e.WeekendBonus,
		&e.EffectiveFrom, &effectiveTo, &e.Active,
	)
	e.EffectiveTo = effectiveTo
	return e, err
}

var _ Catalog = (*Store)(nil)
var _ Lookup = (*Store)(nil)
