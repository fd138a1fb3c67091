package models

import (
	"strings"
	"time"
)

// RequestStatus is the stored state of a sheet row. Resolution removes the row,
// so pending is the only persisted value.
type RequestStatus string

const (
	RequestStatusPending RequestStatus = "pending"
)

// Sheet column keys for publish request rows.
const (
	ColumnPath      = "path"
	ColumnRequester = "requester"
	ColumnApprover  = "approver"
	ColumnStatus    = "status"
	ColumnCreated   = "created"
)

// RequestColumns is the canonical column order for new request rows.
var RequestColumns = []string{ColumnPath, ColumnRequester, ColumnApprover, ColumnStatus, ColumnCreated}

// PublishRequest is one pending publish request row.
type PublishRequest struct {
	Path      string        `json:"path"`
	Requester string        `json:"requester"`
	Approver  string        `json:"approver"`
	Status    RequestStatus `json:"status"`
	Created   time.Time     `json:"created"`
}

// IsPending reports whether the row is still awaiting a decision.
func (r PublishRequest) IsPending() bool {
	return strings.EqualFold(string(r.Status), string(RequestStatusPending))
}

// ApproverList splits the comma joined approver snapshot.
func (r PublishRequest) ApproverList() []string {
	return SplitList(r.Approver)
}

// Matches reports whether the row targets path and, when requester is not empty,
// was raised by requester. Emails compare case-insensitively.
func (r PublishRequest) Matches(path, requester string) bool {
	if r.Path != path {
		return false
	}
	return requester == "" || strings.EqualFold(r.Requester, requester)
}

// ToRow encodes the request using the canonical column order.
func (r PublishRequest) ToRow() SheetRow {
	row := NewSheetRow(RequestColumns...)
	row.Set(ColumnPath, r.Path)
	row.Set(ColumnRequester, r.Requester)
	row.Set(ColumnApprover, r.Approver)
	row.Set(ColumnStatus, string(r.Status))
	if !r.Created.IsZero() {
		row.Set(ColumnCreated, r.Created.UTC().Format(time.RFC3339Nano))
	}
	return row
}

// RequestFromRow normalises a sheet row into a PublishRequest. Column names are
// matched case-insensitively.
func RequestFromRow(row SheetRow) PublishRequest {
	req := PublishRequest{
		Path:      strings.TrimSpace(row.GetFold(ColumnPath)),
		Requester: strings.TrimSpace(row.GetFold(ColumnRequester)),
		Approver:  strings.TrimSpace(row.GetFold(ColumnApprover)),
		Status:    RequestStatus(strings.ToLower(strings.TrimSpace(row.GetFold(ColumnStatus)))),
	}
	if created := strings.TrimSpace(row.GetFold(ColumnCreated)); created != "" {
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			req.Created = ts
		}
	}
	return req
}

// SplitList splits a comma separated cell, trimming entries and dropping empties.
func SplitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
