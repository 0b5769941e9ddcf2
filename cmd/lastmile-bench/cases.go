// README: Bench cases: environment, schema, route lifecycle flow, slot race and throughput.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"lastmile/internal/migrations"
)

const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
	StatusSkip = "SKIP"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client

	// flow state shared by the ordered lifecycle cases
	routeID string
	offerID string
}

type Result struct {
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))
	for _, tc := range tests {
		res := tc.Run(ctx, r)
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
	return results
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{Name: "Env: Postgres connect", Run: func(ctx context.Context, r *Runner) Result {
			if r.db == nil {
				return skip("dsn not configured")
			}
			ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			if err := r.db.Ping(ctx); err != nil {
				return fail(err.Error())
			}
			return pass("")
		}},
		{Name: "Env: Redis connect", Run: func(ctx context.Context, r *Runner) Result {
			if r.redis == nil {
				return skip("redis not configured")
			}
			ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			if err := r.redis.Ping(ctx).Err(); err != nil {
				return fail(err.Error())
			}
			return pass("")
		}},
		{Name: "Migration: apply", Run: func(ctx context.Context, r *Runner) Result {
			if !r.cfg.ApplyMigration {
				return skip("apply-migration=false")
			}
			if r.db == nil {
				return skip("dsn not configured")
			}
			if err := migrations.Apply(ctx, r.db); err != nil {
				return fail(err.Error())
			}
			return pass("")
		}},
		{Name: "Migration: tables exist", Run: func(ctx context.Context, r *Runner) Result {
			if r.db == nil {
				return skip("dsn not configured")
			}
			tables, err := embeddedTables()
			if err != nil {
				return fail(err.Error())
			}
			for _, t := range tables {
				var exists bool
				err := r.db.QueryRow(ctx,
					"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)", t,
				).Scan(&exists)
				if err != nil {
					return fail(err.Error())
				}
				if !exists {
					return fail("missing table: " + t)
				}
			}
			return pass(fmt.Sprintf("%d tables", len(tables)))
		}},
		{Name: "API: health", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodGet, "/health", nil, http.StatusOK, nil)
		}},
		{Name: "Validation: create route missing fields -> 400", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodPost, "/api/routes", map[string]any{}, http.StatusBadRequest, nil)
		}},
		{Name: "Validation: unknown route -> 404", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodGet, "/api/routes/does-not-exist", nil, http.StatusNotFound, nil)
		}},

		{Name: "Flow: create route", Run: func(ctx context.Context, r *Runner) Result {
			if r.cfg.LocationID == "" {
				return skip("location not configured")
			}
			return r.expect(ctx, http.MethodPost, "/api/routes", r.routeBody("08:00", "CYCLE_1"), http.StatusCreated, func(b []byte) error {
				var out struct {
					ID string `json:"id"`
				}
				if err := json.Unmarshal(b, &out); err != nil {
					return err
				}
				r.routeID = out.ID
				return nil
			})
		}},
		{Name: "Flow: candidates", Run: func(ctx context.Context, r *Runner) Result {
			if r.routeID == "" {
				return skip("no route")
			}
			return r.expect(ctx, http.MethodGet, "/api/routes/"+r.routeID+"/candidates?explain=true", nil, http.StatusOK, nil)
		}},
		{Name: "Flow: offer to driver", Run: func(ctx context.Context, r *Runner) Result {
			if r.routeID == "" || r.cfg.DriverID == "" {
				return skip("no route or driver")
			}
			return r.expect(ctx, http.MethodPost, "/api/routes/"+r.routeID+"/offers", map[string]any{"driver_id": r.cfg.DriverID}, http.StatusCreated, func(b []byte) error {
				var out struct {
					Offer struct {
						ID string `json:"id"`
					} `json:"offer"`
				}
				if err := json.Unmarshal(b, &out); err != nil {
					return err
				}
				r.offerID = out.Offer.ID
				return nil
			})
		}},
		{Name: "Flow: same driver, same slot -> 409", Run: func(ctx context.Context, r *Runner) Result {
			if r.offerID == "" {
				return skip("no offer")
			}
			id, err := r.createRoute(ctx, "09:00", "CYCLE_1")
			if err != nil {
				return fail(err.Error())
			}
			res := r.expect(ctx, http.MethodPost, "/api/routes/"+id+"/offers", map[string]any{"driver_id": r.cfg.DriverID}, http.StatusConflict, nil)
			_, _, _, _ = r.call(ctx, http.MethodPost, "/api/routes/"+id+"/cancel", map[string]any{"reason": "bench cleanup"})
			return res
		}},
		{Name: "Flow: driver accepts", Run: func(ctx context.Context, r *Runner) Result {
			if r.offerID == "" {
				return skip("no offer")
			}
			return r.expect(ctx, http.MethodPost, "/api/offers/"+r.offerID+"/respond", map[string]any{"accept": true}, http.StatusOK, nil)
		}},
		{Name: "Flow: confirm", Run: func(ctx context.Context, r *Runner) Result {
			if r.offerID == "" {
				return skip("no offer")
			}
			return r.expect(ctx, http.MethodPost, "/api/routes/"+r.routeID+"/confirm", map[string]any{
				"code": "BENCH-" + r.routeID[:8], "package_count": 40, "stop_count": 35, "location_count": 30,
			}, http.StatusOK, nil)
		}},
		{Name: "Flow: validate", Run: func(ctx context.Context, r *Runner) Result {
			if r.offerID == "" {
				return skip("no offer")
			}
			return r.expect(ctx, http.MethodPost, "/api/routes/"+r.routeID+"/validate", map[string]any{"real_km": 47.5}, http.StatusOK, func(b []byte) error {
				var out struct {
					FinalValue *float64 `json:"final_value"`
				}
				if err := json.Unmarshal(b, &out); err != nil {
					return err
				}
				if out.FinalValue == nil {
					return fmt.Errorf("final_value missing")
				}
				return nil
			})
		}},
		{Name: "Flow: validate twice -> 409", Run: func(ctx context.Context, r *Runner) Result {
			if r.offerID == "" {
				return skip("no offer")
			}
			return r.expect(ctx, http.MethodPost, "/api/routes/"+r.routeID+"/validate", map[string]any{"real_km": 47.5}, http.StatusConflict, nil)
		}},
		{Name: "Consistency: event log", Run: func(ctx context.Context, r *Runner) Result {
			if r.offerID == "" {
				return skip("no offer")
			}
			return r.expect(ctx, http.MethodGet, "/api/routes/"+r.routeID+"/events", nil, http.StatusOK, checkEventChain)
		}},
		{Name: "Consistency: accepted offer holds one slot", Run: func(ctx context.Context, r *Runner) Result {
			if r.offerID == "" {
				return skip("no offer")
			}
			if r.db == nil {
				return skip("dsn not configured")
			}
			var n int
			if err := r.db.QueryRow(ctx, "SELECT count(*) FROM offer_slots WHERE offer_id=$1", r.offerID).Scan(&n); err != nil {
				return fail(err.Error())
			}
			if n != 1 {
				return fail(fmt.Sprintf("slots=%d", n))
			}
			return pass("")
		}},

		{Name: "Concurrency: one driver, many routes, same slot", Run: func(ctx context.Context, r *Runner) Result {
			if r.cfg.LocationID == "" || r.cfg.DriverID == "" {
				return skip("location or driver not configured")
			}
			return concurrentOffers(ctx, r)
		}},

		{Name: "Perf: list routes throughput", Run: func(ctx context.Context, r *Runner) Result {
			return perfLoad(ctx, r, http.MethodGet, "/api/routes?date="+r.cfg.Date+"&limit=50", nil)
		}},
	}
}

func (r *Runner) routeBody(start, cycle string) map[string]any {
	return map[string]any{
		"date":           r.cfg.Date,
		"start_time":     start,
		"location_id":    r.cfg.LocationID,
		"vehicle_type":   r.cfg.VehicleType,
		"cycle":          cycle,
		"duration_hours": 8,
		"projected_km":   50,
	}
}

func (r *Runner) createRoute(ctx context.Context, start, cycle string) (string, error) {
	status, body, _, err := r.call(ctx, http.MethodPost, "/api/routes", r.routeBody(start, cycle))
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated {
		return "", fmt.Errorf("create route: status=%d", status)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (r *Runner) call(ctx context.Context, method, path string, body any) (int, []byte, time.Duration, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, 0, err
		}
		reader = strings.NewReader(string(b))
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, 0, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	return resp.StatusCode, b, time.Since(start), err
}

func (r *Runner) expect(ctx context.Context, method, path string, body any, want int, check func([]byte) error) Result {
	status, b, latency, err := r.call(ctx, method, path, body)
	if err != nil {
		return fail(err.Error())
	}
	if status != want {
		return Result{Status: StatusFail, Latency: latency, Note: fmt.Sprintf("status=%d want=%d body=%s", status, want, truncate(b))}
	}
	if check != nil {
		if err := check(b); err != nil {
			return Result{Status: StatusFail, Latency: latency, Note: err.Error()}
		}
	}
	return Result{Status: StatusPass, Latency: latency, Note: fmt.Sprintf("status=%d", status)}
}

// checkEventChain verifies each event starts where the previous one ended.
func checkEventChain(b []byte) error {
	var out struct {
		Events []struct {
			FromStatus string `json:"from_status"`
			ToStatus   string `json:"to_status"`
		} `json:"events"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return err
	}
	if len(out.Events) == 0 {
		return fmt.Errorf("no events")
	}
	for i := 1; i < len(out.Events); i++ {
		if out.Events[i].FromStatus != out.Events[i-1].ToStatus {
			return fmt.Errorf("event %d starts at %s, previous ended at %s", i, out.Events[i].FromStatus, out.Events[i-1].ToStatus)
		}
	}
	if last := out.Events[len(out.Events)-1].ToStatus; last != "VALIDADA" {
		return fmt.Errorf("last status %s", last)
	}
	return nil
}

// concurrentOffers creates one route per worker in the same slot and offers
// all of them to the bench driver at once. Exactly one offer may win.
func concurrentOffers(ctx context.Context, r *Runner) Result {
	ids := make([]string, 0, r.cfg.Concurrency)
	for i := 0; i < r.cfg.Concurrency; i++ {
		id, err := r.createRoute(ctx, fmt.Sprintf("%02d:00", 6+i%12), "CYCLE_2")
		if err != nil {
			return fail(err.Error())
		}
		ids = append(ids, id)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		succ     int
		conflict int
		winner   string
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			status, _, _, err := r.call(ctx, http.MethodPost, "/api/routes/"+id+"/offers", map[string]any{"driver_id": r.cfg.DriverID})
			if err != nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			switch status {
			case http.StatusCreated:
				succ++
				winner = id
			case http.StatusConflict:
				conflict++
			}
		}(id)
	}
	wg.Wait()

	if winner != "" {
		_, _, _, _ = r.call(ctx, http.MethodPost, "/api/routes/"+winner+"/cancel-offer", nil)
	}
	note := fmt.Sprintf("success=%d conflict=%d", succ, conflict)
	if succ != 1 {
		return fail(note)
	}
	return pass(note)
}

func perfLoad(ctx context.Context, r *Runner, method, path string, payload any) Result {
	end := time.Now().Add(r.cfg.Duration)
	var (
		count    int64
		errCount int64
		mu       sync.Mutex
		wg       sync.WaitGroup
	)
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				status, _, _, err := r.call(ctx, method, path, payload)
				mu.Lock()
				if err != nil || status >= 500 {
					errCount++
				} else {
					count++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if count == 0 {
		return fail("no requests completed")
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return pass(fmt.Sprintf("rps=%.1f errors=%d", rps, errCount))
}

var createTableRe = regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)

func embeddedTables() ([]string, error) {
	names, err := migrations.Files()
	if err != nil {
		return nil, err
	}
	var tables []string
	for _, name := range names {
		stmts, err := migrations.Statements(name)
		if err != nil {
			return nil, err
		}
		for _, s := range stmts {
			if m := createTableRe.FindStringSubmatch(s); m != nil {
				tables = append(tables, m[1])
			}
		}
	}
	return tables, nil
}

func truncate(b []byte) string {
	const limit = 200
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}

func pass(note string) Result { return Result{Status: StatusPass, Note: note} }
func fail(note string) Result { return Result{Status: StatusFail, Note: note} }
func skip(note string) Result { return Result{Status: StatusSkip, Note: note} }
