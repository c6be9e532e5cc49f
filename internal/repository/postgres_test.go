package repository

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/stockdesk/apipulse/internal/database"
	"github.com/stockdesk/apipulse/internal/model"
)

// testPool connects to APIPULSE_TEST_DATABASE_URL and skips the test when it
// is not set.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("APIPULSE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("APIPULSE_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	if err := database.RunMigrations(ctx, dsn, zerolog.Nop()); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `TRUNCATE api_logs, status_records`)
		pool.Close()
	})
	_, _ = pool.Exec(ctx, `TRUNCATE api_logs, status_records`)
	return pool
}

func TestStatusRepositoryConcurrentMutate(t *testing.T) {
	repo := NewStatusRepository(testPool(t))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m := model.Mutation{
				Set: map[string]any{"method": "GET"},
				Inc: map[string]float64{model.FieldTotalRequests: 1, model.FieldSuccessfulRequests: 1},
				Mean: []model.MeanUpdate{{
					Field:  model.FieldAverageResponseTime,
					Weight: model.FieldTotalRequests,
					Sample: float64(i),
				}},
			}
			if _, err := repo.Mutate(ctx, model.DomainAPI, "GET:/stocks/:id", m); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	rec, err := repo.Get(ctx, model.DomainAPI, "GET:/stocks/:id")
	if err != nil || rec == nil {
		t.Fatalf("Get = %v, %v", rec, err)
	}
	api := rec.(*model.ApiStatus)
	if api.TotalRequests != 50 || api.SuccessfulRequests != 50 || api.Method != "GET" {
		t.Errorf("record = %+v", api)
	}
	if want := 24.5; api.AverageResponseTime < want-1e-6 || api.AverageResponseTime > want+1e-6 {
		t.Errorf("average = %v, want %v", api.AverageResponseTime, want)
	}

	missing, err := repo.Get(ctx, model.DomainAPI, "GET:/nothing")
	if err != nil || missing != nil {
		t.Errorf("Get missing = %v, %v", missing, err)
	}
}

func TestLogRepository(t *testing.T) {
	repo := NewLogRepository(testPool(t))
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	for i, code := range []int{200, 302, 500, 404} {
		o := model.Observation{Method: "GET", URL: "/stocks/" + string(rune('a'+i)), StatusCode: code, RequestBody: []byte(`{"q":1}`)}
		if err := repo.Insert(ctx, model.NewLogEntry(o, base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 4 || stats.Errors != 2 || stats.Warnings != 1 || stats.ErrorRate != 50 {
		t.Errorf("stats = %+v", stats)
	}

	list, _ := repo.List(ctx, 2, 0)
	if len(list) != 2 || list[0].URL != "/stocks/d" || string(list[0].RequestBody) != `{"q": 1}` {
		t.Errorf("List = %+v", list)
	}
	errs, _ := repo.ListErrors(ctx, 10)
	if len(errs) != 2 {
		t.Errorf("ListErrors = %d entries", len(errs))
	}
	byURL, _ := repo.ListByURL(ctx, "/stocks/[ab]$", 10)
	if len(byURL) != 2 {
		t.Errorf("ListByURL = %d entries", len(byURL))
	}
	// valid for Go, rejected by PostgreSQL
	named, err := repo.ListByURL(ctx, "/stocks/(?P<id>c)", 10)
	if err != nil || len(named) != 1 || named[0].URL != "/stocks/c" {
		t.Errorf("ListByURL named group = %d entries, err %v", len(named), err)
	}
}
