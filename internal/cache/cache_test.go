package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stockdesk/apipulse/internal/config"
)

func TestSnapshotCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("APIPULSE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("APIPULSE_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client, err := NewClient(ctx, config.RedisConfig{Addr: addr})
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	c := NewSnapshotCache(client, time.Second)
	name := "test-" + time.Now().Format("150405.000000")

	var got map[string]int
	if ok, err := c.Get(ctx, name, &got); ok || err != nil {
		t.Fatalf("Get before Set = %v, %v", ok, err)
	}
	if err := c.Set(ctx, name, map[string]int{"total": 3}); err != nil {
		t.Fatal(err)
	}
	if ok, err := c.Get(ctx, name, &got); !ok || err != nil || got["total"] != 3 {
		t.Fatalf("Get after Set = %v, %v, %v", ok, err, got)
	}
}
