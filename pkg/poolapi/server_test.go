package poolapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/arcdb/pagepool/pkg/bufferpool"
	"github.com/arcdb/pagepool/pkg/pagestore"
)

func newTestServer(t *testing.T) (*Server, *bufferpool.Manager) {
	t.Helper()
	dir := t.TempDir()
	store, err := pagestore.NewFileStore(filepath.Join(dir, "pool.db"), 64)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	pool, err := bufferpool.New(4, 64, store)
	if err != nil {
		t.Fatalf("bufferpool.New: %v", err)
	}

	cfg := DefaultConfig()
	cfg.EnableLogging = false
	srv, err := New(cfg, pool)
	if err != nil {
		t.Fatalf("New server: %v", err)
	}
	return srv, pool
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/_health", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
}

func TestHandleStatsReflectsPool(t *testing.T) {
	srv, pool := newTestServer(t)
	ctx := context.Background()

	if _, _, err := pool.NewPage(ctx); err != nil {
		t.Fatalf("NewPage: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/_stats", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	var stats bufferpool.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Resident != 1 {
		t.Errorf("Resident = %d, want 1", stats.Resident)
	}
	if stats.Pinned != 1 {
		t.Errorf("Pinned = %d, want 1", stats.Pinned)
	}
}

func TestHandleMetricsExposesGauges(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/_metrics", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{"pagepool_capacity_frames", "pagepool_resident_frames", "pagepool_uptime_seconds"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q:\n%s", want, body)
		}
	}
}

func TestGraphQLPoolStatsQuery(t *testing.T) {
	srv, pool := newTestServer(t)
	ctx := context.Background()
	if _, _, err := pool.NewPage(ctx); err != nil {
		t.Fatalf("NewPage: %v", err)
	}

	body := strings.NewReader(`{"query":"{ poolStats { capacity resident pinned } }"}`)
	req := httptest.NewRequest(http.MethodPost, "/graphql", body)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data struct {
			PoolStats struct {
				Capacity int `json:"capacity"`
				Resident int `json:"resident"`
				Pinned   int `json:"pinned"`
			} `json:"poolStats"`
		} `json:"data"`
		Errors []interface{} `json:"errors"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v, body=%s", err, rec.Body.String())
	}
	if len(resp.Errors) > 0 {
		t.Fatalf("unexpected graphql errors: %v", resp.Errors)
	}
	if resp.Data.PoolStats.Capacity != 4 {
		t.Errorf("capacity = %d, want 4", resp.Data.PoolStats.Capacity)
	}
	if resp.Data.PoolStats.Pinned != 1 {
		t.Errorf("pinned = %d, want 1", resp.Data.PoolStats.Pinned)
	}
}

func TestGraphQLFrameQueryUnknownIndex(t *testing.T) {
	srv, _ := newTestServer(t)

	body := strings.NewReader(`{"query":"{ frame(index: 99) { index resident } }"}`)
	req := httptest.NewRequest(http.MethodPost, "/graphql", body)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	var resp struct {
		Errors []interface{} `json:"errors"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Errors) == 0 {
		t.Error("expected an error for an out-of-range frame index")
	}
}
