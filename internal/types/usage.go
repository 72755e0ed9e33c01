package types

import (
	"time"
)

// UsageRecord is the normalized result of one acquisition from the admin dashboard.
// CostPercentage is nil exactly when CostLimit is 0 (unlimited or unknown).
type UsageRecord struct {
	RequestCount   int       `json:"requestCount"`
	TokenCount     float64   `json:"tokenCount"`
	TodayCost      float64   `json:"todayCost"`
	CostLimit      float64   `json:"costLimit"`
	CostPercentage *float64  `json:"costPercentage"`
	APIKeyName     string    `json:"apiKeyName"`
	APIKeyStatus   string    `json:"apiKeyStatus"`
	ExpiryDate     string    `json:"expiryDate"`
	LastUpdate     time.Time `json:"lastUpdate"`
}

// DefaultRecord is the safe all-zero record handed out when acquisition fails.
func DefaultRecord(now time.Time) UsageRecord {
	return UsageRecord{LastUpdate: now}
}

// Clone returns a deep copy; the percentage pointer is never shared.
func (r UsageRecord) Clone() UsageRecord {
	out := r
	if r.CostPercentage != nil {
		pct := *r.CostPercentage
		out.CostPercentage = &pct
	}
	return out
}

// HasLimit reports whether a daily cost limit is known.
func (r UsageRecord) HasLimit() bool {
	return r.CostLimit > 0
}

// Percentage returns the cost percentage, or 0 when there is no limit.
func (r UsageRecord) Percentage() float64 {
	if r.CostPercentage == nil {
		return 0
	}
	return *r.CostPercentage
}

// Snapshot is a persisted UsageRecord as read back from the history store.
type Snapshot struct {
	ID        int64       `json:"id"`
	Source    string      `json:"source"`
	FetchedAt time.Time   `json:"fetched_at"`
	Record    UsageRecord `json:"record"`
}

// ModelUsage is one row of the per-model breakdown behind a UsageRecord.
type ModelUsage struct {
	Model    string  `json:"model"`
	Requests int     `json:"requests"`
	Tokens   float64 `json:"tokens"`
	Cost     float64 `json:"cost"`
}

// UsageReport is a record together with the model rows it was summed from.
type UsageReport struct {
	Record UsageRecord  `json:"record"`
	Models []ModelUsage `json:"models"`
}
