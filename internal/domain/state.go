package domain

import "time"

// Phase is the tag of a flow's workflow state
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseValidating Phase = "validating"
	PhaseSubmitting Phase = "submitting"
	PhaseSuccess    Phase = "success"
	PhaseFailed     Phase = "failed"
)

// Busy reports whether a submission is being validated or is in flight
func (p Phase) Busy() bool {
	return p == PhaseValidating || p == PhaseSubmitting
}

// Terminal reports whether the phase holds an outcome that can be reset
func (p Phase) Terminal() bool {
	return p == PhaseSuccess || p == PhaseFailed
}

// ErrorKind classifies a user-visible failure
type ErrorKind string

const (
	ErrorKindValidation ErrorKind = "validation"
	ErrorKindNetwork    ErrorKind = "network"
	ErrorKindBackend    ErrorKind = "backend"
	ErrorKindUnknown    ErrorKind = "unknown"
)

// User-facing messages
const (
	MsgEmptyURL    = "Please enter a URL"
	MsgNotPDF      = "Please upload a PDF file"
	MsgURLFallback = "Failed to analyze URL. Please try again."
	MsgPDFFallback = "Failed to analyze PDF. Please try again."
	MsgFlowBusy    = "An analysis is already in progress"
)

// FallbackMessage returns the generic failure message of a flow
func FallbackMessage(flow Flow) string {
	if flow == FlowDocument {
		return MsgPDFFallback
	}
	return MsgURLFallback
}

// ErrorInfo is a normalized, user-facing failure
type ErrorInfo struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *ErrorInfo) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// State is a read-only snapshot of one flow's workflow state.
// Result is set only in PhaseSuccess, Error only in PhaseFailed.
type State struct {
	Flow       Flow            `json:"flow"`
	Phase      Phase           `json:"phase"`
	Input      string          `json:"input,omitempty"`
	Result     *AnalysisResult `json:"result,omitempty"`
	Error      *ErrorInfo      `json:"error,omitempty"`
	Generation uint64          `json:"generation"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Clone returns a deep copy of the snapshot
func (s State) Clone() State {
	c := s
	c.Result = s.Result.Clone()
	if s.Error != nil {
		e := *s.Error
		c.Error = &e
	}
	return c
}
