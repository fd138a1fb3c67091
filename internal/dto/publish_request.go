package dto

// PathRequest targets a single content path (submit, resend, approve, withdraw).
type PathRequest struct {
	Path string `json:"path" validate:"required,startswith=/"`
}

// RejectRequest carries the mandatory rejection reason. Requester may be empty
// when only one request is pending for the path.
type RejectRequest struct {
	Path      string `json:"path" validate:"required,startswith=/"`
	Requester string `json:"requester" validate:"omitempty,email"`
	Reason    string `json:"reason" validate:"required"`
}

// BulkApproveRequest lists the paths to publish in one job.
type BulkApproveRequest struct {
	Paths []string `json:"paths" validate:"required,min=1,max=500,dive,required,startswith=/"`
}

// ListRequestsQuery filters the pending list. Approver "me" limits it to the
// requests the caller may approve.
type ListRequestsQuery struct {
	Approver string `form:"approver"`
}

// FindRequestQuery looks up a pending request.
type FindRequestQuery struct {
	Path      string `form:"path" validate:"required,startswith=/"`
	Requester string `form:"requester"`
}

// ExportQuery selects the report format.
type ExportQuery struct {
	Format string `form:"format" validate:"omitempty,oneof=csv pdf"`
}

// ApproverPreviewQuery asks who approves a path.
type ApproverPreviewQuery struct {
	Path    string `form:"path" validate:"required,startswith=/"`
	Refresh bool   `form:"refresh"`
}

// DecisionQuery filters the decision log.
type DecisionQuery struct {
	Path     string `form:"path"`
	Decision string `form:"decision" validate:"omitempty,oneof=published rejected withdrawn"`
	Limit    int    `form:"limit" validate:"omitempty,min=1,max=200"`
}
