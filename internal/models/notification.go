package models

// ApprovalNotification asks approvers to review a path.
type ApprovalNotification struct {
	Org         string   `json:"org"`
	Repo        string   `json:"repo"`
	Path        string   `json:"path"`
	AuthorEmail string   `json:"authorEmail"`
	Approvers   []string `json:"approvers"`
	CC          []string `json:"cc,omitempty"`
}

// RejectionNotification tells the author why a request was rejected.
type RejectionNotification struct {
	Org         string `json:"org"`
	Repo        string `json:"repo"`
	Path        string `json:"path"`
	AuthorEmail string `json:"authorEmail"`
	Reason      string `json:"reason"`
	RejectedBy  string `json:"rejectedBy,omitempty"`
}

// PublishedPage pairs a published path with the author to notify.
type PublishedPage struct {
	Path        string `json:"path"`
	AuthorEmail string `json:"authorEmail"`
}

// PublishedNotification tells authors their pages went live. Grouping by
// recipient is the sender's job.
type PublishedNotification struct {
	Org   string          `json:"org"`
	Repo  string          `json:"repo"`
	Pages []PublishedPage `json:"pages"`
}

// Authors returns the distinct author emails in first-seen order.
func (n PublishedNotification) Authors() []string {
	seen := make(map[string]struct{}, len(n.Pages))
	out := make([]string, 0, len(n.Pages))
	for _, p := range n.Pages {
		if p.AuthorEmail == "" {
			continue
		}
		if _, ok := seen[p.AuthorEmail]; ok {
			continue
		}
		seen[p.AuthorEmail] = struct{}{}
		out = append(out, p.AuthorEmail)
	}
	return out
}

// NotificationReceipt is the sender's acknowledgement.
type NotificationReceipt struct {
	Message    string   `json:"message"`
	Recipients []string `json:"recipients,omitempty"`
}
