package scans

// HistoryPage represents a page of history with paging metadata
type HistoryPage struct {
	Data   []*HistoryEntry `json:"data"`
	Total  int64           `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}
