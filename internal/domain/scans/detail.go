package scans

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DetailRecord is the flat field set used for reports. Values are short
// strings; a missing or empty key means "not available".
type DetailRecord map[string]string

// DetailKeys lists every key Extract emits, in report order.
var DetailKeys = []string{
	"overall_risk", "type",
	"reputation", "category", "counts",
	"domain", "whois", "country", "asn",
	"dns", "ips",
	"html_title", "scripts", "resources",
	"redirects", "downloads", "execution",
	"linked", "files", "domains",
	"cert_issuer", "cert_subject", "cert_validity",
	"av_stats", "av_malicious",
	"ml_verdict", "ml_tags",
	"community", "first_seen", "last_seen",
}

const (
	maxCategories   = 5
	maxResourceTags = 8
	maxMLTags       = 12
	maxIPs          = 5
	maxAVEngines    = 10
)

// ProviderPriority is the order in which engines feed the detail record.
// Later providers only fill fields left empty by earlier ones.
var ProviderPriority = []string{EngineVirusTotal, EngineURLScan, EngineOTX}

// NewDetailRecord returns a record with every key set to "".
func NewDetailRecord() DetailRecord {
	d := make(DetailRecord, len(DetailKeys))
	for _, k := range DetailKeys {
		d[k] = ""
	}
	return d
}

// Get returns the value for key, "" when absent.
func (d DetailRecord) Get(key string) string { return d[key] }

func (d DetailRecord) setIfEmpty(key, value string) {
	if d[key] == "" && value != "" {
		d[key] = value
	}
}

// Extract flattens an AggregateResult into a DetailRecord. It is total: every
// key in DetailKeys is present in the result, whatever the engines contain.
func Extract(res AggregateResult) DetailRecord {
	d := NewDetailRecord()
	d["overall_risk"] = string(res.OverallRisk)
	d["type"] = string(res.Type)

	for _, name := range ProviderPriority {
		e, ok := firstEngine(res.Engines, name)
		if !ok {
			continue
		}
		switch name {
		case EngineVirusTotal:
			extractVirusTotal(d, e.Raw)
		case EngineURLScan:
			supplementURLScan(d, e.Raw)
		case EngineOTX:
			supplementOTX(d, e)
		}
	}
	return d
}

func firstEngine(engines []EngineResult, name string) (EngineResult, bool) {
	for _, e := range engines {
		if e.Engine == name {
			return e, true
		}
	}
	return EngineResult{}, false
}

func extractVirusTotal(d DetailRecord, raw map[string]any) {
	data := mapAt(raw, "data")
	attrs := mapAt(data, "attributes")
	if len(attrs) == 0 {
		return
	}

	// reputation & categorization
	if truthy(attrs["reputation"]) {
		d["reputation"] = stringOf(attrs["reputation"])
	}
	if cats := mapAt(attrs, "categories"); len(cats) > 0 {
		vals := make([]string, 0, len(cats))
		for _, v := range cats {
			if truthy(v) {
				vals = append(vals, stringOf(v))
			}
		}
		d["category"] = strings.Join(uniqueSorted(vals, maxCategories), ", ")
	}
	stats := mapAt(attrs, "last_analysis_stats")
	if len(stats) == 0 {
		stats = mapAt(attrs, "stats")
	}
	if len(stats) > 0 {
		d["counts"] = formatCounts(stats)
		d["av_stats"] = d["counts"]
	}

	// domain & hosting
	d["domain"] = stringOf(data["id"])
	if truthy(attrs["whois"]) {
		d["whois"] = "Available"
	}
	if truthy(attrs["country"]) {
		d["country"] = stringOf(attrs["country"])
	}
	if truthy(attrs["asn"]) {
		d["asn"] = "AS" + stringOf(attrs["asn"])
	}

	// dns
	dns := attrs["last_dns_records"]
	if !truthy(dns) {
		dns = attrs["dns_records"]
	}
	if truthy(dns) {
		d["dns"] = "Available"
		d["ips"] = strings.Join(uniqueOrdered(dnsValues(dns), maxIPs), ", ")
	}

	// static content
	if truthy(attrs["title"]) {
		d["html_title"] = stringOf(attrs["title"])
	}
	if n := len(listOf(attrs["outgoing_links"])); n > 0 {
		d["scripts"] = fmt.Sprintf("%d external resources found", n)
	}
	tags := stringsOf(attrs["tags"])
	if len(tags) > 0 {
		d["resources"] = strings.Join(uniqueSorted(tags, maxResourceTags), ", ")
		d["ml_tags"] = strings.Join(uniqueSorted(tags, maxMLTags), ", ")
	}

	// dynamic behaviour
	if n := len(listOf(attrs["redirection_chain"])); n > 0 {
		d["redirects"] = fmt.Sprintf("%d redirect(s)", n)
	}
	if truthy(attrs["downloaded_files"]) {
		d["downloads"] = fmt.Sprintf("%d file(s)", sizeOf(attrs["downloaded_files"]))
	}
	if truthy(attrs["behaviour_summary"]) {
		d["execution"] = "Behavior captured"
	}

	// relationships
	rel := mapAt(data, "relationships")
	if n := len(listOf(valueAt(rel, "downloaded_files", "data"))); n > 0 {
		d["linked"] = fmt.Sprintf("%d items", n)
	}
	if n := len(listOf(valueAt(rel, "communicating_files", "data"))); n > 0 {
		d["files"] = fmt.Sprintf("%d files", n)
	}
	if n := len(listOf(valueAt(rel, "contacted_domains", "data"))); n > 0 {
		d["domains"] = fmt.Sprintf("%d domains", n)
	}

	// certificate
	if cert := mapAt(attrs, "last_https_certificate"); cert != nil {
		if truthy(cert["issuer"]) {
			d["cert_issuer"] = stringOf(cert["issuer"])
		}
		if truthy(cert["subject"]) {
			d["cert_subject"] = stringOf(cert["subject"])
		}
		if v := mapAt(cert, "validity"); len(v) > 0 {
			d["cert_validity"] = fmt.Sprintf("Valid from %s to %s", stringOf(v["not_before"]), stringOf(v["not_after"]))
		}
	}

	// engines flagging malicious
	if results := mapAt(attrs, "last_analysis_results"); len(results) > 0 {
		names := make([]string, 0, len(results))
		for name, r := range results {
			if rm, ok := r.(map[string]any); ok && rm["category"] == "malicious" {
				names = append(names, name)
			}
		}
		sort.Strings(names)
		if len(names) > maxAVEngines {
			names = names[:maxAVEngines]
		}
		d["av_malicious"] = strings.Join(names, ", ")
	}

	if truthy(attrs["verdict"]) {
		d["ml_verdict"] = stringOf(attrs["verdict"])
	}

	// community & history
	if votes := mapAt(attrs, "total_votes"); votes != nil {
		h, m := intFromAny(votes["harmless"]), intFromAny(votes["malicious"])
		if h != 0 || m != 0 {
			d["community"] = fmt.Sprintf("Safe: %d, Unsafe: %d", h, m)
		}
	}
	if truthy(attrs["first_submission_date"]) {
		d["first_seen"] = formatEpoch(attrs["first_submission_date"])
	}
	if truthy(attrs["last_analysis_date"]) {
		d["last_seen"] = formatEpoch(attrs["last_analysis_date"])
	}
}

func supplementURLScan(d DetailRecord, raw map[string]any) {
	if b, ok := valueAt(raw, "verdicts", "overall", "malicious").(bool); ok && b {
		d.setIfEmpty("reputation", "High risk (urlscan.io flagged)")
	}
	page := mapAt(raw, "page")
	if page == nil {
		return
	}
	if truthy(page["domain"]) {
		d.setIfEmpty("domain", stringOf(page["domain"]))
	}
	if truthy(page["ip"]) {
		d.setIfEmpty("ips", stringOf(page["ip"]))
	}
	if truthy(page["country"]) {
		d.setIfEmpty("country", stringOf(page["country"]))
	}
	if truthy(page["asn"]) {
		asn := stringOf(page["asn"])
		if !strings.HasPrefix(strings.ToUpper(asn), "AS") {
			asn = "AS" + asn
		}
		d.setIfEmpty("asn", asn)
	}
	if truthy(page["title"]) {
		d.setIfEmpty("html_title", stringOf(page["title"]))
	}
}

func supplementOTX(d DetailRecord, e EngineResult) {
	if n := intFromAny(e.Summary["pulses"]); n > 0 {
		d.setIfEmpty("reputation", fmt.Sprintf("Risk detected (%d threat intelligence pulse(s))", n))
	}
	var tags []string
	for _, p := range listOf(valueAt(e.Raw, "pulse_info", "pulses")) {
		pm, ok := p.(map[string]any)
		if !ok {
			continue
		}
		tags = append(tags, stringsOf(pm["tags"])...)
	}
	if len(tags) > 0 {
		d.setIfEmpty("ml_tags", strings.Join(uniqueSorted(tags, maxMLTags), ", "))
	}
}

// formatCounts sums the four buckets itself; any provider "total" is ignored.
func formatCounts(stats map[string]any) string {
	h := intFromAny(stats["harmless"])
	m := intFromAny(stats["malicious"])
	s := intFromAny(stats["suspicious"])
	u := intFromAny(stats["undetected"])
	return fmt.Sprintf("Clean: %d, Malicious: %d, Suspicious: %d, Undetected: %d (Total: %d)", h, m, s, u, h+m+s+u)
}

// dnsValues reads record values from either the list form
// ([{type, value}, ...]) or the map form ({"A": [{value}], ...}).
func dnsValues(v any) []string {
	var out []string
	collect := func(recs []any) {
		for _, r := range recs {
			if rm, ok := r.(map[string]any); ok && truthy(rm["value"]) {
				out = append(out, stringOf(rm["value"]))
			}
		}
	}
	switch t := v.(type) {
	case []any:
		collect(t)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			collect(listOf(t[k]))
		}
	}
	return out
}

// formatEpoch converts unix seconds to UTC ISO-8601. Values that are not
// numbers are returned as-is (stringified).
func formatEpoch(v any) string {
	n, ok := numberFromAny(v)
	if !ok {
		if s, isStr := v.(string); isStr {
			if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
				n, ok = f, true
			}
		}
	}
	if !ok {
		return stringOf(v)
	}
	return time.Unix(int64(n), 0).UTC().Format(TimestampLayout)
}
