package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/content-approval-api/internal/models"
)

// DecisionRepository persists the publish decision log.
type DecisionRepository struct {
	db *sqlx.DB
}

// NewDecisionRepository constructs the repository.
func NewDecisionRepository(db *sqlx.DB) *DecisionRepository {
	return &DecisionRepository{db: db}
}

// Create inserts a decision row.
func (r *DecisionRepository) Create(ctx context.Context, decision *models.Decision) error {
	if decision.ID == "" {
		decision.ID = uuid.NewString()
	}
	if decision.CreatedAt.IsZero() {
		decision.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO publish_decisions
	(id, org, repo, path, requester, actor, decision, reason, created_at)
	VALUES (:id, :org, :repo, :path, :requester, :actor, :decision, :reason, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, decision); err != nil {
		return fmt.Errorf("create decision: %w", err)
	}
	return nil
}

// List returns decisions matching the filter, latest first.
func (r *DecisionRepository) List(ctx context.Context, filter models.DecisionFilter) ([]models.Decision, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(`SELECT id, org, repo, path, requester, actor, decision, reason, created_at FROM publish_decisions`)

	conditions := make([]string, 0, 4)
	if filter.Org != "" {
		args = append(args, filter.Org)
		conditions = append(conditions, fmt.Sprintf("org = $%d", len(args)))
	}
	if filter.Repo != "" {
		args = append(args, filter.Repo)
		conditions = append(conditions, fmt.Sprintf("repo = $%d", len(args)))
	}
	if filter.Path != "" {
		args = append(args, filter.Path)
		conditions = append(conditions, fmt.Sprintf("path = $%d", len(args)))
	}
	if filter.Decision != "" {
		args = append(args, filter.Decision)
		conditions = append(conditions, fmt.Sprintf("decision = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d", limit))

	var decisions []models.Decision
	if err := r.db.SelectContext(ctx, &decisions, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	return decisions, nil
}
