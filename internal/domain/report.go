package domain

import (
	"encoding/json"
	"time"
)

// Report is a successful analysis kept in local history
type Report struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	Flow      Flow            `json:"flow"`
	Source    string          `json:"source"`
	Title     string          `json:"title"`
	Summary   string          `json:"summary"`
	ReportID  string          `json:"report_id,omitempty"`
	Result    json.RawMessage `json:"result"`
	CreatedAt time.Time       `json:"created_at"`
}

// Decode unmarshals the stored analysis result
func (r *Report) Decode() (*AnalysisResult, error) {
	var result AnalysisResult
	if err := json.Unmarshal(r.Result, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RemoteReport is a report as listed by the backend for a session
type RemoteReport struct {
	ID                   string   `json:"_id"`
	SourceURL            string   `json:"source_url"`
	SourceType           string   `json:"source_type"`
	ConversationStarters []string `json:"conversation_starters"`
	PainPoints           []string `json:"pain_points"`
	MarketGaps           []string `json:"market_gaps"`
	SessionID            string   `json:"session_id"`
	CreatedAt            string   `json:"created_at"`
}

// Usage is the backend's view of a session's report quota.
// A nil Limit means the tier is unlimited.
type Usage struct {
	ReportsGenerated int     `json:"reports_generated"`
	Limit            *int    `json:"limit"`
	Tier             string  `json:"tier"`
	ResetDate        *string `json:"reset_date"`
}

// Unlimited reports whether the tier has no report limit
func (u *Usage) Unlimited() bool {
	return u.Limit == nil
}

// Remaining returns how many reports are left in the current period.
// ok is false for unlimited tiers.
func (u *Usage) Remaining() (left int, ok bool) {
	if u.Limit == nil {
		return 0, false
	}
	left = *u.Limit - u.ReportsGenerated
	if left < 0 {
		return 0, true
	}
	return left, true
}
