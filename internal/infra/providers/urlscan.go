package providers

import (
	"context"
	"net/url"
	"strings"

	"github.com/bryanwahyu/viruslens/internal/domain/scans"
)

const urlscanBase = "https://urlscan.io"

// URLScan adapter: search for the newest public scan of the URL, then load its result.
type URLScan struct {
	opts Options
}

func NewURLScan(o Options) *URLScan {
	if o.BaseURL == "" {
		o.BaseURL = urlscanBase
	}
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	return &URLScan{opts: o}
}

func (u *URLScan) Name() string { return scans.EngineURLScan }

func (u *URLScan) Supports(t scans.IOCType) bool { return t == scans.TypeURL }

func (u *URLScan) Query(ctx context.Context, ioc string, t scans.IOCType) scans.EngineResult {
	if t != scans.TypeURL {
		return scans.ErrorResult(u.Name(), "unsupported type "+string(t))
	}
	headers := map[string]string{"API-Key": u.opts.APIKey}

	q := url.QueryEscape(`page.url:"` + strings.TrimSpace(ioc) + `"`)
	search, err := getJSON(ctx, u.opts, u.opts.BaseURL+"/api/v1/search/?q="+q+"&size=1", headers)
	if err != nil {
		return scans.ErrorResult(u.Name(), reason(err))
	}
	if len(search) == 0 {
		return scans.ErrorResult(u.Name(), "empty response")
	}

	hits, _ := search["results"].([]any)
	total := count(search, "total")
	if total == 0 {
		total = int64(len(hits))
	}
	if len(hits) == 0 {
		return scans.EngineResult{
			Engine:  u.Name(),
			Summary: map[string]any{"results": int64(0), "malicious": false, "score": int64(0), "uuid": ""},
			Raw:     search,
		}
	}

	id := resultID(hits[0])
	if id == "" {
		return scans.ErrorResult(u.Name(), "search hit without uuid")
	}
	result, err := getJSON(ctx, u.opts, u.opts.BaseURL+"/api/v1/result/"+url.PathEscape(id)+"/", headers)
	if err != nil {
		return scans.ErrorResult(u.Name(), reason(err))
	}
	if len(result) == 0 {
		return scans.ErrorResult(u.Name(), "empty response")
	}

	overall, _ := objectAt(result, "verdicts", "overall")
	malicious, _ := overall["malicious"].(bool)
	return scans.EngineResult{
		Engine: u.Name(),
		Summary: map[string]any{
			"results":   total,
			"malicious": malicious,
			"score":     count(overall, "score"),
			"uuid":      id,
		},
		Raw: result,
	}
}

func resultID(hit any) string {
	h, ok := hit.(map[string]any)
	if !ok {
		return ""
	}
	if id, ok := h["_id"].(string); ok && id != "" {
		return id
	}
	task, _ := objectAt(h, "task")
	id, _ := task["uuid"].(string)
	return id
}
