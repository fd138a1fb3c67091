package models

// ActionResult reports the outcome of a single-path lifecycle action.
type ActionResult struct {
	Action     string          `json:"action"`
	Path       string          `json:"path"`
	Request    *PublishRequest `json:"request,omitempty"`
	Recipients []string        `json:"recipients,omitempty"`
	Removed    int             `json:"removed"`
	Message    string          `json:"message,omitempty"`
	Warnings   []string        `json:"warnings,omitempty"`
	// Skipped is set when an identical action was already in flight.
	Skipped bool `json:"skipped,omitempty"`
}

// Lifecycle action names.
const (
	ActionSubmit   = "submit"
	ActionResend   = "resend"
	ActionApprove  = "approve"
	ActionReject   = "reject"
	ActionWithdraw = "withdraw"
	ActionBulk     = "bulk-approve"
)
