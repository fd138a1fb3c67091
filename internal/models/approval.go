package models

// ApprovalRule maps a content path pattern to the people who must approve it.
// Patterns are "/*" or "*" (everything), "<prefix>/*" or an exact path.
type ApprovalRule struct {
	Pattern   string   `json:"pattern"`
	Approvers []string `json:"approvers"`
	CC        []string `json:"cc,omitempty"`
}

// GroupMapping expands a distribution list name into literal addresses.
// Email holds one or more comma separated addresses.
type GroupMapping struct {
	Group string `json:"group"`
	Email string `json:"email"`
}

// ApprovalConfig is the normalised rule document for one org/repo.
type ApprovalConfig struct {
	Rules  []ApprovalRule `json:"rules"`
	Groups []GroupMapping `json:"groups"`
	Source string         `json:"source"`
}

// ApproverResolution is the outcome of matching a path and expanding its groups.
type ApproverResolution struct {
	Path       string   `json:"path"`
	Pattern    string   `json:"pattern"`
	Approvers  []string `json:"approvers"`
	CC         []string `json:"cc"`
	Unresolved []string `json:"unresolved,omitempty"`
	Source     string   `json:"source,omitempty"`
}
