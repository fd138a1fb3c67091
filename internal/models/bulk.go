package models

import (
	"net/http"
	"strings"
)

// Bulk job states reported by the admin API.
const (
	JobStateCreated   = "created"
	JobStateRunning   = "running"
	JobStateStopped   = "stopped"
	JobStateCompleted = "completed"
)

// BulkJob is a server side batch publish operation.
type BulkJob struct {
	SelfURL   string         `json:"selfUrl"`
	State     string         `json:"state"`
	Resources []BulkResource `json:"resources"`
}

// Terminal reports whether the job has stopped or completed.
func (j BulkJob) Terminal() bool {
	switch strings.ToLower(j.State) {
	case JobStateStopped, JobStateCompleted:
		return true
	default:
		return false
	}
}

// BulkResource is the per-path outcome inside a job.
type BulkResource struct {
	Path   string `json:"path"`
	Status int    `json:"status"`
}

// Succeeded treats 200 and 304 as a successful publish.
func (r BulkResource) Succeeded() bool {
	return r.Status == http.StatusOK || r.Status == http.StatusNotModified
}

// BulkFailure names a path that was not published and why.
type BulkFailure struct {
	Path   string `json:"path"`
	Status int    `json:"status,omitempty"`
	Reason string `json:"reason"`
}

// BulkResult summarises a bulk approval.
type BulkResult struct {
	Published []string      `json:"published"`
	Failed    []BulkFailure `json:"failed"`
	JobURL    string        `json:"jobUrl,omitempty"`
	JobState  string        `json:"jobState,omitempty"`
	Removed   int           `json:"removed"`
	Notified  []string      `json:"notified,omitempty"`
	Warnings  []string      `json:"warnings,omitempty"`
	Skipped   bool          `json:"skipped,omitempty"`
}

// Partial reports whether some, but not all, paths were published.
func (r BulkResult) Partial() bool {
	return len(r.Published) > 0 && len(r.Failed) > 0
}

// FailedPaths lists the paths that were not published.
func (r BulkResult) FailedPaths() []string {
	out := make([]string, 0, len(r.Failed))
	for _, f := range r.Failed {
		out = append(out, f.Path)
	}
	return out
}
