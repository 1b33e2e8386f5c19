package model

// OwnerStats aggregates campaign volume for one principal. Read-only
// reporting; computed from stored campaigns, never cached.
type OwnerStats struct {
	Campaigns   int     `json:"campaigns"`
	Items       int     `json:"items"`
	Succeeded   int     `json:"succeeded"`
	Failed      int     `json:"failed"`
	TotalVolume int64   `json:"total_volume"`
	SuccessRate float64 `json:"success_rate"`
}
