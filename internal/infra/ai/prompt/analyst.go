package prompt

import (
	"encoding/json"
	"fmt"
	"strings"
)

// GetSystemPrompt provides strict directions and schema for JSON output.
func GetSystemPrompt() string {
	return `You are a senior threat-intelligence analyst triaging an indicator of compromise (a URL or a file hash). You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below. Do not include code fences.

Requirements:
- Output must be a single JSON object.
- verdict is one of: malicious, suspicious, benign, unknown.
- confidence is a number between 0 and 1.
- Base the verdict only on the report fields given; empty or "not available" fields are not evidence either way.
- recommendations is an array of short imperative sentences.

Schema (example with empty values):
{
  "verdict": "<malicious|suspicious|benign|unknown>",
  "confidence": 0,
  "summary": "<string>",
  "indicators": ["<string>"],
  "recommendations": ["<string>"]
}`
}

// GetUserPrompt wraps the flat scan report.
func GetUserPrompt(report string) string {
	return fmt.Sprintf("Triage this scan report and respond with the JSON per schema.\n\n%s", report)
}

// Triage matches the schema used by the system prompt.
type Triage struct {
	Verdict         string   `json:"verdict"`
	Confidence      float64  `json:"confidence"`
	Summary         string   `json:"summary"`
	Indicators      []string `json:"indicators"`
	Recommendations []string `json:"recommendations"`
}

var verdicts = map[string]bool{"malicious": true, "suspicious": true, "benign": true, "unknown": true}

// Normalize validates the model output and re-encodes it in canonical form.
// Code fences are stripped; an unknown verdict becomes "unknown".
func Normalize(content string) (string, error) {
	s := strings.TrimSpace(content)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	var t Triage
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &t); err != nil {
		return "", fmt.Errorf("model returned invalid JSON: %w", err)
	}
	t.Verdict = strings.ToLower(strings.TrimSpace(t.Verdict))
	if !verdicts[t.Verdict] {
		t.Verdict = "unknown"
	}
	if t.Confidence < 0 {
		t.Confidence = 0
	}
	if t.Confidence > 1 {
		t.Confidence = 1
	}
	if t.Indicators == nil {
		t.Indicators = []string{}
	}
	if t.Recommendations == nil {
		t.Recommendations = []string{}
	}
	b, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("failed to marshal triage: %w", err)
	}
	return string(b), nil
}
