package providers

import (
	"context"

	"github.com/bryanwahyu/viruslens/internal/domain/scans"
)

// Mock returns a fixed answer without touching the network.
type Mock struct {
	name    string
	types   map[scans.IOCType]bool
	summary map[string]any
	raw     map[string]any
}

// NewMock builds a provider that always answers with summary/raw.
// An empty raw makes it behave like a failed provider.
func NewMock(name string, types []scans.IOCType, summary, raw map[string]any) *Mock {
	m := &Mock{name: name, types: make(map[scans.IOCType]bool, len(types)), summary: summary, raw: raw}
	for _, t := range types {
		m.types[t] = true
	}
	return m
}

func (m *Mock) Name() string { return m.name }

func (m *Mock) Supports(t scans.IOCType) bool { return m.types[t] }

func (m *Mock) Query(ctx context.Context, ioc string, t scans.IOCType) scans.EngineResult {
	if err := ctx.Err(); err != nil {
		return scans.ErrorResult(m.name, reason(err))
	}
	if len(m.raw) == 0 {
		msg, _ := m.summary["error"].(string)
		if msg == "" {
			msg = "empty response"
		}
		return scans.ErrorResult(m.name, msg)
	}
	return scans.EngineResult{Engine: m.name, Summary: cloneMap(m.summary), Raw: cloneMap(m.raw)}
}

// MockSet returns the default offline providers: every engine answers with
// zero detections.
func MockSet() []scans.Provider {
	both := []scans.IOCType{scans.TypeURL, scans.TypeHash}
	return []scans.Provider{
		NewMock(scans.EngineVirusTotal, both,
			map[string]any{"malicious": int64(0), "suspicious": int64(0), "harmless": int64(0), "undetected": int64(0), "reputation": int64(0)},
			map[string]any{"data": map[string]any{
				"id": "mock",
				"attributes": map[string]any{
					"last_analysis_stats": map[string]any{"harmless": 0, "malicious": 0, "suspicious": 0, "undetected": 0},
				},
			}},
		),
		NewMock(scans.EngineURLScan, []scans.IOCType{scans.TypeURL},
			map[string]any{"results": int64(0), "malicious": false, "score": int64(0), "uuid": ""},
			map[string]any{"results": []any{}, "total": 0},
		),
		NewMock(scans.EngineOTX, both,
			map[string]any{"pulses": int64(0)},
			map[string]any{"pulse_info": map[string]any{"count": 0, "pulses": []any{}}},
		),
	}
}
