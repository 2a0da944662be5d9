package analyst

import "time"

// AnalysisID identifier type
type AnalysisID string

// Analysis is an AI triage note attached to one history entry
type Analysis struct {
	ID        AnalysisID `json:"id"`
	HistoryID int64      `json:"history_id"`
	Model     string     `json:"model"`
	Result    string     `json:"result"` // JSON string from AI
	CreatedAt time.Time  `json:"created_at"`
}
