// README: Availability service builds session indexes, going through the cache when configured.
package availability

import (
	"context"
	"fmt"
	"time"

	"lastmile/internal/infra/logger"
)

// Source lists raw availability rows for an inclusive date range.
type Source interface {
	List(ctx context.Context, from, to time.Time) ([]Row, error)
}

type RowCache interface {
	Get(ctx context.Context, from, to time.Time) ([]Row, bool, error)
	Set(ctx context.Context, from, to time.Time, rows []Row) error
}

type Service struct {
	source Source
	cache  RowCache
	log    logger.Logger
}

// NewService wires a Source. cache may be nil.
func NewService(source Source, cache RowCache, log logger.Logger) *Service {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Service{source: source, cache: cache, log: log}
}

// Index loads availability for [from, to] and builds the lookup once.
func (s *Service) Index(ctx context.Context, from, to time.Time) (*Index, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("availability range: to %s before from %s", to.Format(time.DateOnly), from.Format(time.DateOnly))
	}
	if s.cache != nil {
		rows, ok, err := s.cache.Get(ctx, from, to)
		if err != nil {
			s.log.Warnf("availability cache get: %v", err)
		} else if ok {
			return Build(rows), nil
		}
	}
	rows, err := s.source.List(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, from, to, rows); err != nil {
			s.log.Warnf("availability cache set: %v", err)
		}
	}
	return Build(rows), nil
}
