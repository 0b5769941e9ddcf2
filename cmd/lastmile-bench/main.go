// README: Smoke and load runner against a live lastmile-api; prints PASS/FAIL/SKIP per case.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

func main() {
	cfg := loadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	results := NewRunner(cfg).RunAll(ctx)

	fmt.Println("\n== Summary ==")
	pass, fail, skipped := 0, 0, 0
	for _, r := range results {
		switch r.Status {
		case StatusPass:
			pass++
		case StatusFail:
			fail++
		case StatusSkip:
			skipped++
		}
	}
	fmt.Printf("PASS=%d FAIL=%d SKIP=%d\n", pass, fail, skipped)

	if fail > 0 || (cfg.Strict && skipped > 0) {
		os.Exit(1)
	}
}

type Config struct {
	BaseURL        string
	DSN            string
	RedisAddr      string
	ApplyMigration bool
	Strict         bool
	Timeout        time.Duration
	Concurrency    int
	Duration       time.Duration
	// Fixture ids the flow cases run against. They must exist on the server.
	LocationID  string
	DriverID    string
	VehicleType string
	Date        string
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.BaseURL, "base-url", envOrDefault("LASTMILE_BENCH_BASE_URL", "http://localhost:8080"), "API base URL")
	flag.StringVar(&cfg.DSN, "dsn", envOrDefault("LASTMILE_DB__DSN", ""), "Postgres DSN (optional)")
	flag.StringVar(&cfg.RedisAddr, "redis", envOrDefault("LASTMILE_REDIS__ADDR", ""), "Redis address (optional)")
	flag.BoolVar(&cfg.ApplyMigration, "apply-migration", envOrDefaultBool("LASTMILE_BENCH_APPLY_MIGRATION", false), "Apply embedded migrations before tests")
	flag.BoolVar(&cfg.Strict, "strict", envOrDefaultBool("LASTMILE_BENCH_STRICT", false), "Fail on skipped cases")
	flag.DurationVar(&cfg.Timeout, "timeout", envOrDefaultDuration("LASTMILE_BENCH_TIMEOUT", 60*time.Second), "Total timeout")
	flag.IntVar(&cfg.Concurrency, "concurrency", envOrDefaultInt("LASTMILE_BENCH_CONCURRENCY", 20), "Concurrency for race and perf cases")
	flag.DurationVar(&cfg.Duration, "duration", envOrDefaultDuration("LASTMILE_BENCH_DURATION", 10*time.Second), "Duration for perf cases")
	flag.StringVar(&cfg.LocationID, "location", envOrDefault("LASTMILE_BENCH_LOCATION", ""), "Location id used to create routes")
	flag.StringVar(&cfg.DriverID, "driver", envOrDefault("LASTMILE_BENCH_DRIVER", ""), "Driver id used for offers")
	flag.StringVar(&cfg.VehicleType, "vehicle-type", envOrDefault("LASTMILE_BENCH_VEHICLE_TYPE", "CARGO_VAN"), "Vehicle type of the bench driver")
	flag.StringVar(&cfg.Date, "date", envOrDefault("LASTMILE_BENCH_DATE", time.Now().AddDate(0, 0, 1).Format(time.DateOnly)), "Route date (YYYY-MM-DD)")
	flag.Parse()
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(v)
		return v == "1" || v == "true" || v == "yes"
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		_, _ = fmt.Sscanf(v, "%d", &n)
		if n > 0 {
			return n
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
