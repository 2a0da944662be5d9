package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/bryanwahyu/viruslens/internal/domain/scans"
)

const virusTotalBase = "https://www.virustotal.com"

// VirusTotal adapter (API v3), url + hash.
type VirusTotal struct {
	opts Options
}

func NewVirusTotal(o Options) *VirusTotal {
	if o.BaseURL == "" {
		o.BaseURL = virusTotalBase
	}
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	return &VirusTotal{opts: o}
}

func (v *VirusTotal) Name() string { return scans.EngineVirusTotal }

func (v *VirusTotal) Supports(t scans.IOCType) bool {
	return t == scans.TypeURL || t == scans.TypeHash
}

func (v *VirusTotal) Query(ctx context.Context, ioc string, t scans.IOCType) scans.EngineResult {
	if v.opts.APIKey == "" {
		return scans.ErrorResult(v.Name(), "missing API key")
	}

	var endpoint string
	switch t {
	case scans.TypeHash:
		endpoint = v.opts.BaseURL + "/api/v3/files/" + strings.ToLower(strings.TrimSpace(ioc))
	case scans.TypeURL:
		id := base64.RawURLEncoding.EncodeToString([]byte(strings.TrimSpace(ioc)))
		endpoint = v.opts.BaseURL + "/api/v3/urls/" + id
	default:
		return scans.ErrorResult(v.Name(), "unsupported type "+string(t))
	}

	raw, err := getJSON(ctx, v.opts, endpoint, map[string]string{"x-apikey": v.opts.APIKey})
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			// belum pernah dianalisa VT, bukan error
			return scans.EngineResult{
				Engine:  v.Name(),
				Summary: virusTotalSummary(nil),
				Raw:     map[string]any{"data": map[string]any{}},
			}
		}
		return scans.ErrorResult(v.Name(), reason(err))
	}
	if len(raw) == 0 {
		return scans.ErrorResult(v.Name(), "empty response")
	}
	attrs, _ := objectAt(raw, "data", "attributes")
	return scans.EngineResult{Engine: v.Name(), Summary: virusTotalSummary(attrs), Raw: raw}
}

func virusTotalSummary(attrs map[string]any) map[string]any {
	stats, ok := objectAt(attrs, "last_analysis_stats")
	if !ok {
		stats, _ = objectAt(attrs, "stats")
	}
	return map[string]any{
		"malicious":  count(stats, "malicious"),
		"suspicious": count(stats, "suspicious"),
		"harmless":   count(stats, "harmless"),
		"undetected": count(stats, "undetected"),
		"reputation": count(attrs, "reputation"),
	}
}
