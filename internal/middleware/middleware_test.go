package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestAPIKeyAuth(t *testing.T) {
	h := APIKeyAuth("s3cret")(okHandler)
	cases := []struct {
		name   string
		path   string
		header map[string]string
		want   int
	}{
		{"missing", "/v1/history", nil, http.StatusUnauthorized},
		{"bearer", "/v1/history", map[string]string{"Authorization": "Bearer s3cret"}, http.StatusOK},
		{"raw", "/v1/history", map[string]string{"Authorization": "s3cret"}, http.StatusOK},
		{"x-api-key", "/v1/history", map[string]string{"X-API-Key": "s3cret"}, http.StatusOK},
		{"wrong", "/v1/history", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized},
		{"health is public", "/health", nil, http.StatusOK},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, c.path, nil)
			for k, v := range c.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != c.want {
				t.Fatalf("status = %d, want %d", rec.Code, c.want)
			}
		})
	}
}

func TestAPIKeyAuthDisabled(t *testing.T) {
	rec := httptest.NewRecorder()
	APIKeyAuth("")(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/history", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestTokenBucketRefill(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	tb := newTokenBucket(2, 1, clock)

	for i := 0; i < 2; i++ {
		if ok, _ := tb.Allow(); !ok {
			t.Fatalf("token %d denied", i)
		}
	}
	ok, wait := tb.Allow()
	if ok {
		t.Fatal("third call should be limited")
	}
	if wait <= 0 || wait > time.Second {
		t.Fatalf("wait = %v", wait)
	}

	now = now.Add(1500 * time.Millisecond)
	if ok, _ := tb.Allow(); !ok {
		t.Fatal("refilled token denied")
	}
	if ok, _ := tb.Allow(); ok {
		t.Fatal("only one token should have been refilled")
	}
}

func TestRateLimitPerIP(t *testing.T) {
	h := RateLimit(1, 0.001)(okHandler)
	do := func(ip, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}
	if rec := do("10.0.0.1", "/v1/scans"); rec.Code != http.StatusOK {
		t.Fatalf("first = %d", rec.Code)
	}
	rec := do("10.0.0.1", "/v1/scans")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second = %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After")
	}
	if rec := do("10.0.0.2", "/v1/scans"); rec.Code != http.StatusOK {
		t.Fatalf("other ip = %d", rec.Code)
	}
	if rec := do("10.0.0.1", "/health"); rec.Code != http.StatusOK {
		t.Fatalf("health = %d", rec.Code)
	}
}

func TestRateLimiterPrune(t *testing.T) {
	now := time.Now()
	rl := NewRateLimiter(1, 1)
	rl.now = func() time.Time { return now }
	rl.Allow("a")
	rl.Allow("b")
	now = now.Add(time.Hour)
	rl.Allow("b")
	if n := rl.Prune(10 * time.Minute); n != 1 {
		t.Fatalf("pruned %d", n)
	}
}

func TestHealthHandler(t *testing.T) {
	checks := map[string]HealthChecker{
		"database": CheckFunc(func(ctx context.Context) error { return nil }),
	}
	rec := httptest.NewRecorder()
	HealthHandler(checks, map[string]any{"mock_mode": true})(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "healthy" || body.Info["mock_mode"] != true {
		t.Fatalf("body = %+v", body)
	}

	checks["database"] = CheckFunc(func(ctx context.Context) error { return errors.New("db down") })
	rec = httptest.NewRecorder()
	HealthHandler(checks, nil)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "db down") {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fail", nil))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			done := m.ScanStarted()
			m.RecordScan("High", 1, true)
			done()
		}()
	}
	wg.Wait()
	m.RecordScan("Low", 0, false)
	m.RecordBulkItem("N/A")

	if m.RequestsSuccess.Load() != 1 || m.RequestsFailed.Load() != 1 {
		t.Fatalf("requests ok=%d failed=%d", m.RequestsSuccess.Load(), m.RequestsFailed.Load())
	}
	if m.ScansTotal.Load() != 11 || m.RiskHigh.Load() != 10 || m.RiskLow.Load() != 1 || m.ScansUnsaved.Load() != 1 {
		t.Fatalf("snapshot = %v", m.Snapshot())
	}
	if m.ProviderErrors.Load() != 10 || m.ScansRunning.Load() != 0 || m.BulkItemsTotal.Load() != 1 {
		t.Fatalf("snapshot = %v", m.Snapshot())
	}
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("tea"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/scans", nil))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatal(err)
	}
	if rec["path"] != "/v1/scans" || rec["status"] != float64(http.StatusTeapot) || rec["bytes"] != float64(3) {
		t.Fatalf("log = %v", rec)
	}
}

func TestValidators(t *testing.T) {
	if _, err := ValidateInput(" \x00 "); err == nil {
		t.Fatal("empty input accepted")
	}
	if s, err := ValidateInput(" example.com\x07 "); err != nil || s != "example.com" {
		t.Fatalf("got %q %v", s, err)
	}
	if _, err := ValidateInput(strings.Repeat("a", MaxInputLen+1)); err == nil {
		t.Fatal("long input accepted")
	}
	if r, err := ValidateRisk("high"); err != nil || r != "High" {
		t.Fatalf("risk %q %v", r, err)
	}
	if _, err := ValidateRisk("critical"); err == nil {
		t.Fatal("critical accepted")
	}
	if v, err := ValidateScanType("URL"); err != nil || v != "url" {
		t.Fatalf("type %q %v", v, err)
	}
	if _, err := ValidateScanType("ip"); err == nil {
		t.Fatal("ip accepted")
	}
	if n := ValidateFileName(`C:\Users\x\evil.exe`); n != "evil.exe" {
		t.Fatalf("name = %q", n)
	}
	if ValidateLimit(0) != 50 || ValidateLimit(9999) != 500 || ValidateLimit(10) != 10 {
		t.Fatal("limit clamp")
	}
	if ValidateOffset(-3) != 0 {
		t.Fatal("offset clamp")
	}
}
