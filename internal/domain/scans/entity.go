package scans

import (
	"strings"
	"time"
	"unicode/utf8"
)

// IOCType enum
type IOCType string

const (
	TypeURL     IOCType = "url"
	TypeHash    IOCType = "hash"
	TypeUnknown IOCType = "unknown"
)

// ParseIOCType maps a declared type ("url", "hash", "" ...) to an IOCType.
// Empty or unrecognised values resolve to TypeUnknown so the classifier decides.
func ParseIOCType(s string) (IOCType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "url":
		return TypeURL, true
	case "hash", "file":
		return TypeHash, true
	case "", "unknown", "auto":
		return TypeUnknown, true
	default:
		return TypeUnknown, false
	}
}

// Risk enum
type Risk string

const (
	RiskLow    Risk = "Low"
	RiskMedium Risk = "Medium"
	RiskHigh   Risk = "High"
)

func (r Risk) rank() int {
	switch r {
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}

// Max returns the worse of two risks.
func (r Risk) Max(o Risk) Risk {
	if o.rank() > r.rank() {
		return o
	}
	if r == "" {
		return RiskLow
	}
	return r
}

// Engine names as reported in EngineResult.Engine
const (
	EngineVirusTotal = "VirusTotal"
	EngineURLScan    = "urlscan.io"
	EngineOTX        = "AlienVault OTX"
)

// EngineResult is one provider answer. An empty Raw means the provider failed
// or returned nothing usable; Summary then carries {"error": reason}.
type EngineResult struct {
	Engine  string         `json:"engine"`
	Summary map[string]any `json:"summary"`
	Raw     map[string]any `json:"raw"`
}

// ErrorResult builds the failure shape for an engine.
func ErrorResult(engine, reason string) EngineResult {
	return EngineResult{
		Engine:  engine,
		Summary: map[string]any{"error": reason},
		Raw:     map[string]any{},
	}
}

// Failed reports whether the provider produced no payload.
func (e EngineResult) Failed() bool { return len(e.Raw) == 0 }

// ErrorMessage returns summary["error"] for failed engines, "" otherwise.
func (e EngineResult) ErrorMessage() string {
	if !e.Failed() {
		return ""
	}
	if s, ok := e.Summary["error"].(string); ok {
		return s
	}
	return "empty provider response"
}

// AggregateResult is produced once per scan and must not be mutated afterwards.
type AggregateResult struct {
	Type        IOCType        `json:"type"`
	OverallRisk Risk           `json:"overall_risk"`
	Engines     []EngineResult `json:"engines"`
}

// NewAggregateResult copies engines and derives the overall risk from them.
func NewAggregateResult(t IOCType, engines []EngineResult) AggregateResult {
	out := make([]EngineResult, len(engines))
	copy(out, engines)
	return AggregateResult{
		Type:        t,
		OverallRisk: OverallRisk(out),
		Engines:     out,
	}
}

// MaxSummaryLen batas panjang summary yang disimpan
const MaxSummaryLen = 1000

// TruncateSummary cuts s to MaxSummaryLen characters (runes, not bytes).
func TruncateSummary(s string) string {
	if utf8.RuneCountInString(s) <= MaxSummaryLen {
		return s
	}
	r := []rune(s)
	return string(r[:MaxSummaryLen])
}

// TimestampLayout is UTC ISO-8601 with a trailing Z.
const TimestampLayout = "2006-01-02T15:04:05Z"

// HistoryEntry is one persisted scan. Append-only.
type HistoryEntry struct {
	ID         int64        `json:"id"`
	InputValue string       `json:"input"`
	ScanType   string       `json:"type"`
	Summary    string       `json:"summary"`
	RiskScore  string       `json:"risk"`
	Detail     DetailRecord `json:"detail"`
	Timestamp  string       `json:"timestamp"`
}

// NewEntry is the input of Repository.Record.
type NewEntry struct {
	ScanType   string
	InputValue string
	Summary    string
	RiskScore  string
	Detail     DetailRecord
	CreatedAt  time.Time
}
