package domain

// EmailDraft is an outreach email drafted by the backend from an analysis
type EmailDraft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
