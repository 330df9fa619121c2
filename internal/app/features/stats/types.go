// internal/app/features/stats/types.go
package statsfeature

import "time"

// ProviderCount is one row of a per-provider breakdown.
type ProviderCount struct {
	Provider string `json:"provider"`
	Label    string `json:"label"`
	Count    int64  `json:"count"`
}

// LoginWindow counts logins over a recent period.
type LoginWindow struct {
	Period     string          `json:"period"` // "day", "week", "month"
	Since      time.Time       `json:"since"`
	Total      int64           `json:"total"`
	ByProvider []ProviderCount `json:"by_provider"`
}

// IdentityStats is the /stats/identities body.
type IdentityStats struct {
	Total      int64           `json:"total"`
	ByProvider []ProviderCount `json:"by_provider"`
	Logins     *LoginWindow    `json:"logins,omitempty"`
}
