package providers

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bryanwahyu/viruslens/internal/domain/scans"
)

func testOptions(srv *httptest.Server, key string) Options {
	return Options{BaseURL: srv.URL, APIKey: key, Client: srv.Client(), Retries: 3, Backoff: time.Millisecond}
}

func TestVirusTotalHash(t *testing.T) {
	hash := "d41d8cd98f00b204e9800998ecf8427e"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-apikey") != "k" {
			t.Errorf("missing api key header")
		}
		if r.URL.Path != "/api/v3/files/"+hash {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"data":{"id":"` + hash + `","attributes":{"reputation":-3,"last_analysis_stats":{"malicious":4,"suspicious":1,"harmless":10,"undetected":50}}}}`))
	}))
	defer srv.Close()

	res := NewVirusTotal(testOptions(srv, "k")).Query(context.Background(), strings.ToUpper(hash), scans.TypeHash)
	if res.Failed() {
		t.Fatalf("unexpected failure: %v", res.Summary)
	}
	if res.Engine != scans.EngineVirusTotal {
		t.Fatalf("engine = %s", res.Engine)
	}
	if res.Summary["malicious"] != int64(4) || res.Summary["suspicious"] != int64(1) || res.Summary["reputation"] != int64(-3) {
		t.Fatalf("summary = %v", res.Summary)
	}
	if scans.EngineRisk(res) != scans.RiskHigh {
		t.Fatalf("risk = %s", scans.EngineRisk(res))
	}
}

func TestVirusTotalURLIdentifier(t *testing.T) {
	target := "http://example.com/a?b=c"
	want := "/api/v3/urls/" + base64.RawURLEncoding.EncodeToString([]byte(target))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != want {
			t.Errorf("path = %s, want %s", r.URL.Path, want)
		}
		if strings.Contains(r.URL.Path, "=") {
			t.Errorf("identifier must not be padded")
		}
		w.Write([]byte(`{"data":{"attributes":{"last_analysis_stats":{"malicious":0}}}}`))
	}))
	defer srv.Close()

	res := NewVirusTotal(testOptions(srv, "k")).Query(context.Background(), target, scans.TypeURL)
	if res.Failed() {
		t.Fatalf("unexpected failure: %v", res.Summary)
	}
}

func TestVirusTotalNotFoundIsNotFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":"NotFoundError"}}`, http.StatusNotFound)
	}))
	defer srv.Close()

	res := NewVirusTotal(testOptions(srv, "k")).Query(context.Background(), "http://new.example", scans.TypeURL)
	if res.Failed() {
		t.Fatalf("404 should not be a failure: %v", res.Summary)
	}
	if res.Summary["malicious"] != int64(0) {
		t.Fatalf("summary = %v", res.Summary)
	}
}

func TestVirusTotalFailures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{"unauthorized", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusUnauthorized) }, "HTTP 401"},
		{"bad json", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{not json`)) }, "invalid JSON"},
		{"empty object", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{}`)) }, "empty response"},
		{"array body", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`[1,2]`)) }, "invalid JSON"},
	}
	for _, c := range cases {
		srv := httptest.NewServer(c.handler)
		res := NewVirusTotal(testOptions(srv, "k")).Query(context.Background(), "d41d8cd98f00b204e9800998ecf8427e", scans.TypeHash)
		srv.Close()
		if !res.Failed() {
			t.Errorf("%s: expected failure", c.name)
			continue
		}
		if !strings.Contains(res.ErrorMessage(), c.want) {
			t.Errorf("%s: error = %q, want %q", c.name, res.ErrorMessage(), c.want)
		}
	}
}

func TestVirusTotalMissingKey(t *testing.T) {
	res := NewVirusTotal(Options{}).Query(context.Background(), "x", scans.TypeHash)
	if !res.Failed() || res.ErrorMessage() != "missing API key" {
		t.Fatalf("got %+v", res)
	}
}

func TestRetryOnRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"pulse_info":{"count":2}}`))
	}))
	defer srv.Close()

	res := NewOTX(testOptions(srv, "")).Query(context.Background(), "d41d8cd98f00b204e9800998ecf8427e", scans.TypeHash)
	if res.Failed() {
		t.Fatalf("expected success after retries: %v", res.Summary)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("calls = %d", calls)
	}
	if res.Summary["pulses"] != int64(2) {
		t.Fatalf("summary = %v", res.Summary)
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	res := NewOTX(testOptions(srv, "")).Query(context.Background(), "http://x.example", scans.TypeURL)
	if !res.Failed() || atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("failed=%v calls=%d", res.Failed(), calls)
	}
}

func TestTimeoutBecomesErrorResult(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	o := testOptions(srv, "")
	o.Retries = 1
	res := NewOTX(o).Query(ctx, "http://slow.example", scans.TypeURL)
	if !res.Failed() || res.ErrorMessage() != "timeout" {
		t.Fatalf("got %+v", res)
	}
}

func TestOTXSections(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		if r.Header.Get("X-OTX-API-KEY") != "otx" {
			t.Errorf("missing otx key")
		}
		w.Write([]byte(`{"pulse_info":{"count":0,"pulses":[]}}`))
	}))
	defer srv.Close()

	p := NewOTX(testOptions(srv, "otx"))
	p.Query(context.Background(), "d41d8cd98f00b204e9800998ecf8427e", scans.TypeHash)
	p.Query(context.Background(), "example.com", scans.TypeURL)
	mu.Lock()
	defer mu.Unlock()
	if len(paths) != 2 || !strings.HasPrefix(paths[0], "/api/v1/indicators/file/") || !strings.HasPrefix(paths[1], "/api/v1/indicators/url/") {
		t.Fatalf("paths = %v", paths)
	}
	if p.Supports(scans.TypeUnknown) {
		t.Fatal("otx should not support unknown")
	}
}

func TestURLScanSearchThenResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/v1/search/":
			if q := r.URL.Query().Get("q"); q != `page.url:"http://evil.test/login"` {
				t.Errorf("q = %s", q)
			}
			w.Write([]byte(`{"total":4,"results":[{"_id":"abc-123","task":{"uuid":"abc-123"}}]}`))
		case r.URL.Path == "/api/v1/result/abc-123/":
			w.Write([]byte(`{"verdicts":{"overall":{"malicious":true,"score":100}},"page":{"domain":"evil.test"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	res := NewURLScan(testOptions(srv, "")).Query(context.Background(), "http://evil.test/login", scans.TypeURL)
	if res.Failed() {
		t.Fatalf("failed: %v", res.Summary)
	}
	if res.Summary["malicious"] != true || res.Summary["score"] != int64(100) || res.Summary["results"] != int64(4) || res.Summary["uuid"] != "abc-123" {
		t.Fatalf("summary = %v", res.Summary)
	}
}

func TestURLScanNoHits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"total":0,"results":[]}`))
	}))
	defer srv.Close()

	p := NewURLScan(testOptions(srv, ""))
	res := p.Query(context.Background(), "http://quiet.test", scans.TypeURL)
	if res.Failed() {
		t.Fatalf("no hits is not a failure: %v", res.Summary)
	}
	if res.Summary["results"] != int64(0) || scans.EngineRisk(res) != scans.RiskLow {
		t.Fatalf("summary = %v", res.Summary)
	}
	if p.Supports(scans.TypeHash) {
		t.Fatal("urlscan must not support hashes")
	}
}

func TestMock(t *testing.T) {
	m := NewMock("X", []scans.IOCType{scans.TypeURL}, map[string]any{"malicious": 1}, map[string]any{"k": "v"})
	a := m.Query(context.Background(), "u", scans.TypeURL)
	a.Raw["k"] = "changed"
	b := m.Query(context.Background(), "u", scans.TypeURL)
	if b.Raw["k"] != "v" {
		t.Fatal("mock leaks its fixture")
	}

	failing := NewMock("Y", nil, map[string]any{"error": "boom"}, nil)
	if r := failing.Query(context.Background(), "u", scans.TypeURL); !r.Failed() || r.ErrorMessage() != "boom" {
		t.Fatalf("failing mock = %+v", r)
	}
}

func TestBuild(t *testing.T) {
	mock := Build(Settings{MockMode: true}, nil)
	real := Build(Settings{VirusTotalKey: "k"}, nil)
	if len(mock) != 3 || len(real) != 3 {
		t.Fatalf("len mock=%d real=%d", len(mock), len(real))
	}
	want := []string{scans.EngineVirusTotal, scans.EngineURLScan, scans.EngineOTX}
	for i, name := range want {
		if mock[i].Name() != name || real[i].Name() != name {
			t.Fatalf("order[%d] = %s/%s", i, mock[i].Name(), real[i].Name())
		}
	}
	for _, p := range mock {
		res := p.Query(context.Background(), "http://example.com", scans.TypeURL)
		if res.Failed() || scans.EngineRisk(res) != scans.RiskLow {
			t.Fatalf("%s mock fixture = %+v", p.Name(), res)
		}
	}
}
