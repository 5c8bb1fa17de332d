package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/sheetload/internal/config"
	"github.com/JonMunkholm/sheetload/internal/core"
	"github.com/JonMunkholm/sheetload/internal/filetype"
	"github.com/JonMunkholm/sheetload/internal/metrics"
	"github.com/JonMunkholm/sheetload/internal/mover"
	"github.com/JonMunkholm/sheetload/internal/preflight"
	"github.com/JonMunkholm/sheetload/internal/settings"
	"github.com/JonMunkholm/sheetload/internal/sink"
)

// =============================================================================
// Fixtures
// =============================================================================

type allowAll struct{}

func (allowAll) Check(_ context.Context, schema string) (preflight.Report, error) {
	return preflight.Report{Schema: schema, OK: true}, nil
}

func ordersType() filetype.Config {
	return filetype.Config{
		Name: "orders",
		Columns: filetype.ColumnMap{
			{Source: "Order ID", Target: "order_id"},
			{Source: "Amount", Target: "amount"},
		},
		DTypes: map[string]string{"order_id": "INT", "amount": "DECIMAL(10,2)"},
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: 10 * time.Second},
		Rate:   config.RateLimitConfig{Enabled: false},
	}
}

type fixture struct {
	srv  *Server
	sink *sink.Memory
	dir  string
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	sk := sink.NewMemory()
	svc := core.NewService(settings.NewMemory(ordersType()), sk, mover.None{}, allowAll{}, core.Options{})
	return &fixture{srv: NewServer(svc, metrics.New(), cfg), sink: sk, dir: t.TempDir()}
}

func (f *fixture) file(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	f.srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func jsonString(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

// =============================================================================
// Health and metrics
// =============================================================================

func TestHealth(t *testing.T) {
	f := newFixture(t, testConfig())

	rec := f.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	decodeBody(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, testConfig())

	rec := f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

// =============================================================================
// File types
// =============================================================================

func TestTypes(t *testing.T) {
	f := newFixture(t, testConfig())

	rec := f.do(t, http.MethodGet, "/api/types", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	decodeBody(t, rec, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "orders", list[0]["name"])
	assert.Equal(t, "replace", list[0]["strategy"])

	rec = f.do(t, http.MethodGet, "/api/types/invoices", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	body := `{"columns":{"Invoice No":"invoice_no","Total":"total"},"dtypes":{"total":"DECIMAL(12,2)"},"update_strategy":"upsert","upsert_keys":["invoice_no"]}`
	rec = f.do(t, http.MethodPut, "/api/types/invoices", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/types/invoices", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]any
	decodeBody(t, rec, &got)
	assert.Equal(t, "upsert", got["strategy"])
	assert.Equal(t, "invoices", got["table"])
}

func TestSaveType_Invalid(t *testing.T) {
	f := newFixture(t, testConfig())

	tests := []struct {
		name string
		body string
		want int
		code string
	}{
		{"bad json", `{"columns":`, http.StatusBadRequest, "RQ002"},
		{"bad strategy", `{"columns":{"a":"a"},"update_strategy":"merge"}`, http.StatusUnprocessableEntity, "CF001"},
		{"unknown upsert key", `{"columns":{"a":"a"},"update_strategy":"upsert","upsert_keys":["b"]}`, http.StatusUnprocessableEntity, "CF001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPut, "/api/types/broken", tt.body)
			assert.Equal(t, tt.want, rec.Code)

			var resp ErrorResponse
			decodeBody(t, rec, &resp)
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}

// =============================================================================
// Inspection
// =============================================================================

func TestDetectAndPreview(t *testing.T) {
	f := newFixture(t, testConfig())
	path := f.file(t, "o.csv", "Order ID,Amount,Notes\n1,10.00,x\n")

	rec := f.do(t, http.MethodPost, "/api/detect", jsonString(t, map[string]string{"path": path}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var detected map[string]any
	decodeBody(t, rec, &detected)
	assert.Equal(t, "orders", detected["type"])
	assert.Equal(t, true, detected["detected"])

	rec = f.do(t, http.MethodPost, "/api/preview", jsonString(t, map[string]string{"path": path, "type": "orders"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var p core.Preview
	decodeBody(t, rec, &p)
	assert.True(t, p.OK)
	assert.Equal(t, []string{"Notes"}, p.Extra)
}

func TestInspectionErrors(t *testing.T) {
	f := newFixture(t, testConfig())

	tests := []struct {
		name   string
		target string
		body   string
		want   int
	}{
		{"missing path", "/api/detect", `{}`, http.StatusBadRequest},
		{"missing type", "/api/preview", `{"path":"/tmp/x.csv"}`, http.StatusBadRequest},
		{"file not found", "/api/detect", `{"path":"/definitely/not/here.csv"}`, http.StatusNotFound},
		{"unknown type", "/api/preview", jsonString(t, map[string]string{"path": f.file(t, "p.csv", "Order ID\n1\n"), "type": "invoices"}), http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, tt.target, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestAllowedRoots(t *testing.T) {
	cfg := testConfig()
	allowed := t.TempDir()
	cfg.Ingest.AllowedRoots = []string{allowed}
	f := newFixture(t, cfg)

	outside := f.file(t, "o.csv", "Order ID,Amount\n1,2\n")
	rec := f.do(t, http.MethodPost, "/api/detect", jsonString(t, map[string]string{"path": outside}))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	inside := filepath.Join(allowed, "o.csv")
	require.NoError(t, os.WriteFile(inside, []byte("Order ID,Amount\n1,2\n"), 0o644))
	rec = f.do(t, http.MethodPost, "/api/detect", jsonString(t, map[string]string{"path": inside}))
	assert.Equal(t, http.StatusOK, rec.Code)
}

// =============================================================================
// Runs
// =============================================================================

func TestRunLifecycle(t *testing.T) {
	f := newFixture(t, testConfig())
	f.file(t, "o.csv", "Order ID,Amount\n1,10.00\n2,20.00\n")

	rec := f.do(t, http.MethodPost, "/api/runs", jsonString(t, map[string][]string{"paths": {f.dir}}))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var started map[string]string
	decodeBody(t, rec, &started)
	id := started["id"]
	require.NotEmpty(t, id)
	assert.Equal(t, "/api/runs/"+id, rec.Header().Get("Location"))

	var info core.RunInfo
	require.Eventually(t, func() bool {
		rec := f.do(t, http.MethodGet, "/api/runs/"+id, "")
		if rec.Code != http.StatusOK {
			return false
		}
		decodeBody(t, rec, &info)
		return info.Done
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, core.PhaseComplete, info.Progress.Phase)
	require.NotNil(t, info.Report)
	assert.Equal(t, 1, info.Report.Successful())
	assert.Len(t, f.sink.Rows("public", "orders"), 2)

	rec = f.do(t, http.MethodGet, "/api/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []core.RunInfo
	decodeBody(t, rec, &runs)
	assert.Len(t, runs, 1)
}

func TestRunErrors(t *testing.T) {
	f := newFixture(t, testConfig())

	rec := f.do(t, http.MethodPost, "/api/runs", `{"paths":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/runs/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/runs/unknown/cancel", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// Middleware wiring
// =============================================================================

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2, RunLimit: 1}
	f := newFixture(t, cfg)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", "").Code)

	rec := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestAPIKeyRequired(t *testing.T) {
	cfg := testConfig()
	cfg.Security = config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"secret"}}
	f := newFixture(t, cfg)

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/types", "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/types", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	f.srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
