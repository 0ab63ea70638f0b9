package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/zeltra/internal/billing"
	"github.com/smallbiznis/zeltra/internal/clock"
	"github.com/smallbiznis/zeltra/internal/config"
	"github.com/smallbiznis/zeltra/internal/identity"
	"github.com/smallbiznis/zeltra/internal/invoice"
	"github.com/smallbiznis/zeltra/internal/lock"
	"github.com/smallbiznis/zeltra/internal/logger"
	"github.com/smallbiznis/zeltra/internal/migration"
	"github.com/smallbiznis/zeltra/internal/observability"
	"github.com/smallbiznis/zeltra/internal/providers"
	"github.com/smallbiznis/zeltra/internal/ratelimit"
	"github.com/smallbiznis/zeltra/internal/scheduler"
	"github.com/smallbiznis/zeltra/internal/server"
	"github.com/smallbiznis/zeltra/internal/usage"
	"github.com/smallbiznis/zeltra/pkg/db"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type testEnv struct {
	app       *fx.App
	db        *gorm.DB
	baseURL   string
	scheduler *scheduler.Scheduler
	httpSrv   *httptest.Server
}

var env *testEnv

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	setDefaultEnv()

	var err error
	env, err = startEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to start test environment:", err)
		os.Exit(1)
	}

	code := m.Run()
	env.shutdown()
	os.Exit(code)
}

func TestE2E_HealthCheck(t *testing.T) {
	resp, err := http.Get(env.baseURL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
}

func TestE2E_MissingOwnerIsRejected(t *testing.T) {
	resp, body := doJSON(t, http.MethodGet, "/v1/usage", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d: %s", resp.StatusCode, string(body))
	}
}

func TestE2E_MonthlyBillingLifecycle(t *testing.T) {
	resetDatabase(t, env.db)
	const owner = "e2e-owner"

	resp, body := doJSON(t, http.MethodGet, "/v1/invoices/2024-01", owner, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 before profile exists, got %d: %s", resp.StatusCode, string(body))
	}

	resp, body = doJSON(t, http.MethodPut, "/v1/profile", owner, map[string]any{
		"full_name": "Grace Hopper",
		"email":     "grace@example.com",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upsert profile: %d: %s", resp.StatusCode, string(body))
	}

	for _, event := range []map[string]any{
		{"service_type": "EC2", "usage_type": "compute_hours", "quantity": "24", "unit_cost": "0.034", "billing_period": "2024-01"},
		{"service_type": "S3", "usage_type": "storage_gb_hours", "quantity": "100", "unit_cost": "0.00096", "billing_period": "2024-01"},
	} {
		resp, body = doJSON(t, http.MethodPost, "/v1/usage", owner, event)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("record usage: %d: %s", resp.StatusCode, string(body))
		}
	}

	resp, body = doJSON(t, http.MethodPost, "/v1/billing/2024-01/generate", owner, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("generate billing: %d: %s", resp.StatusCode, string(body))
	}
	summary := decodeData[map[string]any](t, body)
	if summary["total_amount"] != "0.91" || summary["status"] != "generated" {
		t.Fatalf("unexpected summary: %v", summary)
	}

	resp, body = doJSON(t, http.MethodGet, "/v1/invoices/2024-01", owner, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("render invoice: %d: %s", resp.StatusCode, string(body))
	}
	number := resp.Header.Get("X-Invoice-Number")
	if !strings.HasPrefix(number, "ZC-") {
		t.Fatalf("unexpected invoice number %q", number)
	}
	for _, want := range []string{"Grace Hopper", "January 2024", "£0.91", number} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("invoice missing %q", want)
		}
	}

	resp, body = doJSON(t, http.MethodGet, "/v1/invoices/2024-01/pdf", owner, nil)
	if resp.StatusCode != http.StatusOK || !bytes.HasPrefix(body, []byte("%PDF")) {
		t.Fatalf("export pdf: %d", resp.StatusCode)
	}

	resp, body = doJSON(t, http.MethodPost, "/v1/billing/2024-01/status", owner, map[string]any{"status": "paid"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("mark paid: %d: %s", resp.StatusCode, string(body))
	}

	resp, body = doJSON(t, http.MethodPost, "/v1/billing/2024-01/generate", owner, nil)
	if resp.StatusCode != http.StatusBadRequest || !strings.Contains(string(body), "summary_closed") {
		t.Fatalf("expected closed summary rejection, got %d: %s", resp.StatusCode, string(body))
	}

	if n := countRows(t, env.db, "billing_summaries", "owner_id = ?", owner); n != 1 {
		t.Fatalf("expected one summary row, got %d", n)
	}
}

func TestE2E_SchedulerGeneratesCurrentPeriod(t *testing.T) {
	resetDatabase(t, env.db)

	for _, owner := range []string{"sched-a", "sched-b"} {
		resp, body := doJSON(t, http.MethodPost, "/v1/usage", owner, map[string]any{
			"service_type": "EC2",
			"usage_type":   "compute_hours",
			"quantity":     "10",
			"unit_cost":    "0.1",
		})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("record usage: %d: %s", resp.StatusCode, string(body))
		}
	}

	if err := env.scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("scheduler run: %v", err)
	}

	if n := countRows(t, env.db, "billing_summaries", "status = ?", "generated"); n != 2 {
		t.Fatalf("expected two generated summaries, got %d", n)
	}
}

func startEnv() (*testEnv, error) {
	var (
		srv         *server.Server
		dbConn      *gorm.DB
		schedulerSv *scheduler.Scheduler
	)

	app := fx.New(
		fx.NopLogger,
		config.Module,
		logger.Module,
		observability.Module,
		db.Module,
		migration.Module,
		clock.Module,
		lock.Module,
		ratelimit.Module,
		identity.Module,
		usage.Module,
		billing.Module,
		invoice.Module,
		providers.Module,
		fx.Provide(scheduler.ProvideConfig),
		fx.Provide(scheduler.New),
		fx.Provide(func() (*snowflake.Node, error) {
			return snowflake.NewNode(1)
		}),
		fx.Provide(server.NewEngine),
		fx.Provide(server.NewServer),
		fx.Populate(&srv, &dbConn, &schedulerSv),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return nil, err
	}

	httpSrv := httptest.NewServer(srv.Engine())

	return &testEnv{
		app:       app,
		db:        dbConn,
		baseURL:   httpSrv.URL,
		scheduler: schedulerSv,
		httpSrv:   httpSrv,
	}, nil
}

func (e *testEnv) shutdown() {
	if e == nil {
		return
	}
	if e.httpSrv != nil {
		e.httpSrv.Close()
	}
	if e.app != nil {
		_ = e.app.Stop(context.Background())
	}
}

func setDefaultEnv() {
	setEnvIfEmpty("ENVIRONMENT", "test")
	setEnvIfEmpty("LOG_LEVEL", "error")
	setEnvIfEmpty("DATABASE_TYPE", "sqlite")
	setEnvIfEmpty("DATABASE_PATH", "file:zeltra_e2e?mode=memory&cache=shared")
	setEnvIfEmpty("DATABASE_MAX_OPEN_CONN", "1")
	setEnvIfEmpty("SCHEDULER_ENABLED", "false")
}

func setEnvIfEmpty(key, value string) {
	if strings.TrimSpace(os.Getenv(key)) != "" {
		return
	}
	_ = os.Setenv(key, value)
}

func resetDatabase(t *testing.T, dbConn *gorm.DB) {
	t.Helper()
	for _, table := range []string{"billing_summaries", "usage_events", "profiles"} {
		if err := dbConn.Exec("DELETE FROM " + table).Error; err != nil {
			t.Fatalf("reset %s: %v", table, err)
		}
	}
}

func countRows(t *testing.T, dbConn *gorm.DB, table, where string, args ...any) int64 {
	t.Helper()
	var count int64
	if err := dbConn.Table(table).Where(where, args...).Count(&count).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return count
}

func decodeData[T any](t *testing.T, body []byte) T {
	t.Helper()
	var envelope struct {
		Data T `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return envelope.Data
}

func doJSON(t *testing.T, method, path, ownerID string, payload any) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("encode json: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, env.baseURL+path, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if ownerID != "" {
		req.Header.Set(server.HeaderOwnerID, ownerID)
	}

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, data
}
