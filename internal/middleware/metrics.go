package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strings"
	"sync/atomic"
	"time"
)

// Metrics stores application counters. All methods are safe for concurrent use.
type Metrics struct {
	RequestsTotal      atomic.Uint64
	RequestsInProgress atomic.Int64
	RequestsSuccess    atomic.Uint64
	RequestsFailed     atomic.Uint64

	ScansTotal      atomic.Uint64
	ScansRunning    atomic.Int64
	ScansUnsaved    atomic.Uint64 // persistence stage failed
	ProviderErrors  atomic.Uint64
	RiskHigh        atomic.Uint64
	RiskMedium      atomic.Uint64
	RiskLow         atomic.Uint64
	BulkItemsTotal  atomic.Uint64
	AnalysesTotal   atomic.Uint64
	ReportsArchived atomic.Uint64

	StartTime time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{StartTime: time.Now()}
}

// ScanStarted increments running scans; call the returned func when done.
func (m *Metrics) ScanStarted() func() {
	m.ScansRunning.Add(1)
	return func() { m.ScansRunning.Add(-1) }
}

// RecordScan counts one finished scan by overall risk.
func (m *Metrics) RecordScan(risk string, providerErrors int, saved bool) {
	m.ScansTotal.Add(1)
	m.ProviderErrors.Add(uint64(providerErrors))
	if !saved {
		m.ScansUnsaved.Add(1)
	}
	m.recordRisk(risk)
}

// RecordBulkItem counts one processed bulk row.
func (m *Metrics) RecordBulkItem(risk string) {
	m.BulkItemsTotal.Add(1)
	m.recordRisk(risk)
}

func (m *Metrics) recordRisk(risk string) {
	switch strings.ToLower(risk) {
	case "high":
		m.RiskHigh.Add(1)
	case "medium":
		m.RiskMedium.Add(1)
	case "low":
		m.RiskLow.Add(1)
	}
}

// Snapshot returns current metrics
func (m *Metrics) Snapshot() map[string]any {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	return map[string]any{
		"requests_total":       m.RequestsTotal.Load(),
		"requests_in_progress": m.RequestsInProgress.Load(),
		"requests_success":     m.RequestsSuccess.Load(),
		"requests_failed":      m.RequestsFailed.Load(),
		"scans_total":          m.ScansTotal.Load(),
		"scans_running":        m.ScansRunning.Load(),
		"scans_unsaved":        m.ScansUnsaved.Load(),
		"provider_errors":      m.ProviderErrors.Load(),
		"bulk_items_total":     m.BulkItemsTotal.Load(),
		"analyses_total":       m.AnalysesTotal.Load(),
		"reports_archived":     m.ReportsArchived.Load(),
		"risk": map[string]uint64{
			"High":   m.RiskHigh.Load(),
			"Medium": m.RiskMedium.Load(),
			"Low":    m.RiskLow.Load(),
		},
		"uptime_seconds": time.Since(m.StartTime).Seconds(),
		"memory": map[string]any{
			"alloc_bytes":       ms.Alloc,
			"total_alloc_bytes": ms.TotalAlloc,
			"sys_bytes":         ms.Sys,
			"num_gc":            ms.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}

// Middleware tracks request metrics
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.RequestsTotal.Add(1)
		m.RequestsInProgress.Add(1)
		defer m.RequestsInProgress.Add(-1)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		if wrapped.statusCode >= 200 && wrapped.statusCode < 400 {
			m.RequestsSuccess.Add(1)
		} else {
			m.RequestsFailed.Add(1)
		}
	})
}

// Handler returns metrics as JSON
func (m *Metrics) Handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(m.Snapshot())
}
