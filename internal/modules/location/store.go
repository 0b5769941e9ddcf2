// README: Location store backed by Postgres with a Redis read-through cache.
package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"lastmile/internal/types"
)

const (
	cacheKeyPrefix = "location:%s"
	cacheTTL       = 10 * time.Minute
)

type Store struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

// NewStore returns a Postgres-backed store. redis may be nil to disable caching.
func NewStore(db *pgxpool.Pool, redis *redis.Client) *Store {
	return &Store{db: db, redis: redis}
}

func (s *Store) Get(ctx context.Context, id types.ID) (Location, error) {
	if loc, ok := s.cached(ctx, id); ok {
		return loc, nil
	}
	var loc Location
	err := s.db.QueryRow(ctx, `
		SELECT id, name, station, lat, lng
		FROM locations
		WHERE id = $1`, string(id),
	).Scan(&loc.ID, &loc.Name, &loc.Station, &loc.Position.Lat, &loc.Position.Lng)
	if errors.Is(err, pgx.ErrNoRows) {
		return Location{}, ErrNotFound
	}
	if err != nil {
		return Location{}, fmt.Errorf("get location %s: %w", id, err)
	}
	s.remember(ctx, loc)
	return loc, nil
}

func (s *Store) cached(ctx context.Context, id types.ID) (Location, bool) {
	if s.redis == nil {
		return Location{}, false
	}
	b, err := s.redis.Get(ctx, fmt.Sprintf(cacheKeyPrefix, id)).Bytes()
	if err != nil {
		return Location{}, false
	}
	var loc Location
	if err := json.Unmarshal(b, &loc); err != nil {
		return Location{}, false
	}
	return loc, true
}

func (s *Store) remember(ctx context.Context, loc Location) {
	if s.redis == nil {
		return
	}
	b, err := json.Marshal(loc)
	if err != nil {
		return
	}
	_ = s.redis.Set(ctx, fmt.Sprintf(cacheKeyPrefix, loc.ID), b, cacheTTL).Err()
}
