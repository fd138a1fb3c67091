package models

import "time"

// DecisionType records how a publish request left the sheet.
type DecisionType string

const (
	DecisionPublished DecisionType = "published"
	DecisionRejected  DecisionType = "rejected"
	DecisionWithdrawn DecisionType = "withdrawn"
)

// Decision is an audit record of a terminal action on a publish request.
type Decision struct {
	ID        string       `db:"id" json:"id"`
	Org       string       `db:"org" json:"org"`
	Repo      string       `db:"repo" json:"repo"`
	Path      string       `db:"path" json:"path"`
	Requester string       `db:"requester" json:"requester"`
	Actor     string       `db:"actor" json:"actor"`
	Decision  DecisionType `db:"decision" json:"decision"`
	Reason    *string      `db:"reason" json:"reason,omitempty"`
	CreatedAt time.Time    `db:"created_at" json:"createdAt"`
}

// DecisionFilter constrains decision log queries.
type DecisionFilter struct {
	Org      string
	Repo     string
	Path     string
	Decision DecisionType
	Limit    int
}
