package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"lastmile/internal/config"
	httptransport "lastmile/internal/http"
	"lastmile/internal/infra"
	"lastmile/internal/infra/logger"
	"lastmile/internal/maps"
	"lastmile/internal/metrics"
	"lastmile/internal/modules/availability"
	"lastmile/internal/modules/driver"
	"lastmile/internal/modules/location"
	"lastmile/internal/modules/matching"
	"lastmile/internal/modules/pricing"
	"lastmile/internal/modules/route"
)

type serveOptions struct {
	migrate  bool
	seedPath string
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.migrate, "migrate", false, "apply migrations before serving (postgres backend)")
	cmd.Flags().StringVar(&opts.seedPath, "seed", "", "JSON seed file for the memory backend")
	return cmd
}

// backend is the set of stores one storage choice provides.
type backend struct {
	routes       route.Repository
	matchRoutes  matching.RouteReader
	prices       pricing.Catalog
	drivers      *driverSource
	locations    location.Directory
	availability availability.Source
	cache        availability.RowCache
	close        func()
}

// driverSource satisfies both the route and matching driver interfaces.
type driverSource struct {
	route.DriverReader
	matching.DriverLister
}

func serve(ctx context.Context, cfg *config.Config, opts *serveOptions) error {
	log := logger.New("api")
	gin.SetMode(cfg.HTTP.GinMode)

	var (
		b   *backend
		err error
	)
	switch cfg.Store.Backend {
	case "memory":
		b, err = memoryBackend(ctx, opts.seedPath)
	default:
		b, err = postgresBackend(ctx, cfg, opts, log)
	}
	if err != nil {
		return err
	}
	defer b.close()

	var distance route.DistanceEstimator = maps.StraightLine{}
	if cfg.Maps.APIKey != "" {
		rs, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			return fmt.Errorf("maps client: %w", err)
		}
		distance = rs
	}

	var routeMetrics route.Metrics = route.NopMetrics{}
	deps := httptransport.RouterDeps{Log: logger.New("http"), MetricsPath: cfg.Metrics.Path}
	if cfg.Metrics.Enabled {
		sink, err := metrics.NewPromSink(prometheus.DefaultRegisterer)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		routeMetrics = sink
		deps.Metrics = promhttp.Handler()
	}

	routeSvc := route.NewService(b.routes, route.Deps{
		Drivers:   b.drivers,
		Locations: b.locations,
		Distance:  distance,
		Metrics:   routeMetrics,
		Log:       logger.New("route"),
	})
	availSvc := availability.NewService(b.availability, b.cache, logger.New("availability"))
	matchSvc := matching.NewService(b.matchRoutes, b.drivers, availSvc,
		matching.Config{LookaheadDays: cfg.Matching.LookaheadDays}, logger.New("matching"))

	deps.Routes = routeSvc
	deps.Matching = matchSvc
	deps.Pricing = pricing.NewService(b.prices)
	deps.Drivers = b.drivers

	server := httptransport.NewServer(cfg.HTTP.Addr, httptransport.NewRouter(deps), log)
	log.Infof("store backend: %s", cfg.Store.Backend)
	return server.Run(ctx)
}

func postgresBackend(ctx context.Context, cfg *config.Config, opts *serveOptions, log logger.Logger) (*backend, error) {
	db, err := infra.NewDB(ctx, cfg.DB.DSN, cfg.DB.MaxConns)
	if err != nil {
		return nil, err
	}
	if opts.migrate {
		if err := applyMigrations(ctx, db, log); err != nil {
			db.Close()
			return nil, err
		}
	}
	closers := []func(){db.Close}

	b := &backend{}
	store := route.NewStore(db)
	b.routes = store
	b.matchRoutes = store
	b.prices = pricing.NewStore(db)
	drivers := driver.NewStore(db)
	b.drivers = &driverSource{DriverReader: drivers, DriverLister: drivers}
	b.availability = availability.NewStore(db)

	if cfg.Redis.Enabled {
		rdb := infra.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		closers = append(closers, func() { _ = rdb.Close() })
		b.locations = location.NewStore(db, rdb)
		if cfg.Matching.AvailabilityCacheSeconds > 0 {
			b.cache = availability.NewCache(rdb, time.Duration(cfg.Matching.AvailabilityCacheSeconds)*time.Second)
		}
	} else {
		b.locations = location.NewStore(db, nil)
	}
	b.close = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return b, nil
}

func memoryBackend(ctx context.Context, seedPath string) (*backend, error) {
	prices := pricing.NewMemoryCatalog()
	drivers := driver.NewMemoryDirectory()
	locations := location.NewMemoryDirectory()
	avail := availability.NewMemorySource()
	if seedPath != "" {
		if err := loadSeed(ctx, seedPath, prices, drivers, locations, avail); err != nil {
			return nil, err
		}
	}
	store := route.NewMemStore(prices)
	return &backend{
		routes:       store,
		matchRoutes:  store,
		prices:       prices,
		drivers:      &driverSource{DriverReader: drivers, DriverLister: drivers},
		locations:    locations,
		availability: avail,
		close:        func() {},
	}, nil
}
