package providers

import (
	"context"
	"net/url"
	"strings"

	"github.com/bryanwahyu/viruslens/internal/domain/scans"
)

const otxBase = "https://otx.alienvault.com"

// OTX adapter (AlienVault Open Threat Exchange), url + hash.
type OTX struct {
	opts Options
}

func NewOTX(o Options) *OTX {
	if o.BaseURL == "" {
		o.BaseURL = otxBase
	}
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	return &OTX{opts: o}
}

func (o *OTX) Name() string { return scans.EngineOTX }

func (o *OTX) Supports(t scans.IOCType) bool {
	return t == scans.TypeURL || t == scans.TypeHash
}

func (o *OTX) Query(ctx context.Context, ioc string, t scans.IOCType) scans.EngineResult {
	var section string
	switch t {
	case scans.TypeURL:
		section = "url"
	case scans.TypeHash:
		section = "file"
	default:
		return scans.ErrorResult(o.Name(), "unsupported type "+string(t))
	}

	endpoint := o.opts.BaseURL + "/api/v1/indicators/" + section + "/" + url.PathEscape(strings.TrimSpace(ioc)) + "/general"
	raw, err := getJSON(ctx, o.opts, endpoint, map[string]string{"X-OTX-API-KEY": o.opts.APIKey})
	if err != nil {
		return scans.ErrorResult(o.Name(), reason(err))
	}
	if len(raw) == 0 {
		return scans.ErrorResult(o.Name(), "empty response")
	}
	info, _ := objectAt(raw, "pulse_info")
	return scans.EngineResult{
		Engine:  o.Name(),
		Summary: map[string]any{"pulses": count(info, "count")},
		Raw:     raw,
	}
}
