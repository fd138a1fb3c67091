package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/content-approval-api/internal/dto"
	"github.com/noah-isme/content-approval-api/internal/models"
	"github.com/noah-isme/content-approval-api/internal/repository"
	appErrors "github.com/noah-isme/content-approval-api/pkg/errors"
)

type requestStore interface {
	ListPending(ctx context.Context, org, repo string) ([]models.PublishRequest, error)
	FindPending(ctx context.Context, org, repo, path, requester string) (*models.PublishRequest, error)
	Append(ctx context.Context, org, repo string, req models.PublishRequest) error
	RemoveMatching(ctx context.Context, org, repo string, match func(models.PublishRequest) bool) ([]models.PublishRequest, error)
}

type approverResolver interface {
	Resolve(ctx context.Context, org, repo, path string) (*models.ApproverResolution, error)
	Preview(ctx context.Context, org, repo, path string, refresh bool) (*models.ApproverResolution, error)
	FilterApprovable(ctx context.Context, org, repo, email string, requests []models.PublishRequest) ([]models.PublishRequest, error)
}

type pathPublisher interface {
	Publish(ctx context.Context, org, repo, path, idempotencyKey string) error
}

type notificationSender interface {
	RequestApproval(ctx context.Context, n models.ApprovalNotification) (*models.NotificationReceipt, error)
	NotifyRejected(ctx context.Context, n models.RejectionNotification) (*models.NotificationReceipt, error)
	NotifyPublished(ctx context.Context, n models.PublishedNotification) (*models.NotificationReceipt, error)
	Retry(kind string, payload interface{}) bool
}

type decisionStore interface {
	Create(ctx context.Context, decision *models.Decision) error
	List(ctx context.Context, filter models.DecisionFilter) ([]models.Decision, error)
}

var idempotencyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:publish-approval:publish"))

// PublishIdempotencyKey derives a stable key for publishing the request so that
// a retried approve is recognised by the publish API.
func PublishIdempotencyKey(org, repo string, req models.PublishRequest) string {
	name := strings.Join([]string{
		strings.ToLower(org),
		strings.ToLower(repo),
		req.Path,
		strings.ToLower(req.Requester),
		req.Created.UTC().Format(time.RFC3339Nano),
	}, "|")
	return uuid.NewSHA1(idempotencyNamespace, []byte(name)).String()
}

// workflowOptions holds collaborators shared by the lifecycle and bulk services.
type workflowOptions struct {
	decisions decisionStore
	guard     *InFlightGuard
	metrics   *MetricsService
	now       func() time.Time
}

// WorkflowOption configures the lifecycle and bulk services.
type WorkflowOption func(*workflowOptions)

// WithDecisionStore enables the decision log.
func WithDecisionStore(store decisionStore) WorkflowOption {
	return func(o *workflowOptions) {
		o.decisions = store
	}
}

// WithInFlightGuard shares a guard with other services acting on the same paths.
func WithInFlightGuard(guard *InFlightGuard) WorkflowOption {
	return func(o *workflowOptions) {
		if guard != nil {
			o.guard = guard
		}
	}
}

// WithMetrics records lifecycle outcomes.
func WithMetrics(metrics *MetricsService) WorkflowOption {
	return func(o *workflowOptions) {
		o.metrics = metrics
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) WorkflowOption {
	return func(o *workflowOptions) {
		if now != nil {
			o.now = now
		}
	}
}

func newWorkflowOptions(opts []WorkflowOption) workflowOptions {
	o := workflowOptions{
		guard: NewInFlightGuard(),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// PublishRequestService runs the publish request lifecycle.
type PublishRequestService struct {
	workflowOptions
	store         requestStore
	approvers     approverResolver
	publisher     pathPublisher
	notifications notificationSender
	validator     *validator.Validate
	logger        *zap.Logger
}

// NewPublishRequestService constructs the service.
func NewPublishRequestService(store requestStore, approvers approverResolver, publisher pathPublisher, notifications notificationSender, validate *validator.Validate, logger *zap.Logger, opts ...WorkflowOption) *PublishRequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &PublishRequestService{
		workflowOptions: newWorkflowOptions(opts),
		store:           store,
		approvers:       approvers,
		publisher:       publisher,
		notifications:   notifications,
		validator:       validate,
		logger:          logger,
	}
}

// Submit raises a publish request for path on behalf of actor.
func (s *PublishRequestService) Submit(ctx context.Context, org, repo string, req dto.PathRequest, actor string) (result *models.ActionResult, err error) {
	defer func() { s.record(models.ActionSubmit, result, err) }()
	if err := s.validate(req, actor); err != nil {
		return nil, err
	}
	release, ok := s.guard.TryAcquire(InFlightKey(models.ActionSubmit, org, repo, req.Path+"#"+strings.ToLower(actor)))
	if !ok {
		return skipped(models.ActionSubmit, req.Path), nil
	}
	defer release()

	existing, err := s.store.FindPending(ctx, org, repo, req.Path, actor)
	if err != nil {
		return nil, storeError(err, "failed to read publish requests")
	}
	if existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("a publish request for %s is already pending", req.Path))
	}

	resolution, err := s.approvers.Resolve(ctx, org, repo, req.Path)
	if err != nil {
		return nil, err
	}

	request := models.PublishRequest{
		Path:      req.Path,
		Requester: actor,
		Approver:  strings.Join(resolution.Approvers, ","),
		Status:    models.RequestStatusPending,
		Created:   s.now(),
	}
	result = &models.ActionResult{Action: models.ActionSubmit, Path: req.Path, Request: &request}
	result.Warnings = unresolvedWarnings(resolution)

	notification := models.ApprovalNotification{
		Org: org, Repo: repo, Path: req.Path, AuthorEmail: actor,
		Approvers: resolution.Approvers, CC: resolution.CC,
	}
	notified := false
	if receipt, notifyErr := s.notifications.RequestApproval(ctx, notification); notifyErr != nil {
		s.logger.Warn("approval request email failed", zap.String("org", org), zap.String("repo", repo), zap.String("path", req.Path), zap.Error(notifyErr))
		result.Warnings = append(result.Warnings, s.deferNotification(NotifyRequestApproval, notification, notifyErr))
	} else {
		notified = true
		result.Recipients = receiptRecipients(receipt, resolution.Approvers)
	}

	if err := s.store.Append(ctx, org, repo, request); err != nil {
		message := "failed to record publish request"
		if notified {
			message = "approvers were notified but the publish request could not be recorded"
		}
		return nil, storeError(err, message)
	}

	result.Message = "publish request submitted"
	return result, nil
}

// Resend re-notifies the approvers of the caller's pending request.
func (s *PublishRequestService) Resend(ctx context.Context, org, repo string, req dto.PathRequest, actor string) (result *models.ActionResult, err error) {
	defer func() { s.record(models.ActionResend, result, err) }()
	if err := s.validate(req, actor); err != nil {
		return nil, err
	}
	release, ok := s.guard.TryAcquire(InFlightKey(models.ActionResend, org, repo, req.Path+"#"+strings.ToLower(actor)))
	if !ok {
		return skipped(models.ActionResend, req.Path), nil
	}
	defer release()

	existing, err := s.store.FindPending(ctx, org, repo, req.Path, actor)
	if err != nil {
		return nil, storeError(err, "failed to read publish requests")
	}
	if existing == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no pending publish request for %s", req.Path))
	}

	resolution, err := s.approvers.Resolve(ctx, org, repo, req.Path)
	if err != nil {
		return nil, err
	}
	receipt, err := s.notifications.RequestApproval(ctx, models.ApprovalNotification{
		Org: org, Repo: repo, Path: req.Path, AuthorEmail: existing.Requester,
		Approvers: resolution.Approvers, CC: resolution.CC,
	})
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrNotificationRequired, err, "failed to resend approval request")
	}
	return &models.ActionResult{
		Action:     models.ActionResend,
		Path:       req.Path,
		Request:    existing,
		Recipients: receiptRecipients(receipt, resolution.Approvers),
		Warnings:   unresolvedWarnings(resolution),
		Message:    "approval request resent",
	}, nil
}

// Approve publishes path and then clears every pending request for it.
func (s *PublishRequestService) Approve(ctx context.Context, org, repo string, req dto.PathRequest, actor string) (result *models.ActionResult, err error) {
	defer func() { s.record(models.ActionApprove, result, err) }()
	if err := s.validate(req, actor); err != nil {
		return nil, err
	}
	release, ok := s.guard.TryAcquire(decisionKey(org, repo, req.Path))
	if !ok {
		return skipped(models.ActionApprove, req.Path), nil
	}
	defer release()

	pending, err := s.store.FindPending(ctx, org, repo, req.Path, "")
	if err != nil {
		return nil, storeError(err, "failed to read publish requests")
	}
	if pending == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no pending publish request for %s", req.Path))
	}
	if err := s.authorize(ctx, org, repo, req.Path, actor); err != nil {
		return nil, err
	}

	if err := s.publisher.Publish(ctx, org, repo, req.Path, PublishIdempotencyKey(org, repo, *pending)); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrRemoteCallFailed, err, fmt.Sprintf("failed to publish %s", req.Path))
	}

	result = &models.ActionResult{Action: models.ActionApprove, Path: req.Path, Request: pending, Message: "published"}
	removed, err := s.store.RemoveMatching(ctx, org, repo, func(r models.PublishRequest) bool {
		return r.IsPending() && r.Path == req.Path
	})
	if err != nil {
		s.logger.Error("published but request rows were not removed", zap.String("org", org), zap.String("repo", repo), zap.String("path", req.Path), zap.Error(err))
		result.Warnings = append(result.Warnings, fmt.Sprintf("published, but the pending request could not be removed: %v", err))
		removed = []models.PublishRequest{*pending}
	} else {
		result.Removed = len(removed)
	}

	s.recordDecisions(ctx, org, repo, removed, actor, models.DecisionPublished, nil)
	notified, warning := s.notifyPublished(ctx, org, repo, removed)
	result.Recipients = notified
	if warning != "" {
		result.Warnings = append(result.Warnings, warning)
	}
	return result, nil
}

// Reject emails the requester the reason and then removes the request.
func (s *PublishRequestService) Reject(ctx context.Context, org, repo string, req dto.RejectRequest, actor string) (result *models.ActionResult, err error) {
	defer func() { s.record(models.ActionReject, result, err) }()
	req.Reason = strings.TrimSpace(req.Reason)
	if err := s.validate(req, actor); err != nil {
		return nil, err
	}
	release, ok := s.guard.TryAcquire(decisionKey(org, repo, req.Path))
	if !ok {
		return skipped(models.ActionReject, req.Path), nil
	}
	defer release()

	target, err := s.rejectTarget(ctx, org, repo, req)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, org, repo, req.Path, actor); err != nil {
		return nil, err
	}

	receipt, err := s.notifications.NotifyRejected(ctx, models.RejectionNotification{
		Org: org, Repo: repo, Path: req.Path, AuthorEmail: target.Requester,
		Reason: req.Reason, RejectedBy: actor,
	})
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrNotificationRequired, err, "rejection email failed; the request is still pending")
	}

	removed, err := s.store.RemoveMatching(ctx, org, repo, func(r models.PublishRequest) bool {
		return r.IsPending() && r.Matches(target.Path, target.Requester)
	})
	if err != nil {
		return nil, storeError(err, "rejection was sent but the request could not be removed")
	}

	reason := req.Reason
	s.recordDecisions(ctx, org, repo, removed, actor, models.DecisionRejected, &reason)
	return &models.ActionResult{
		Action:     models.ActionReject,
		Path:       req.Path,
		Request:    target,
		Recipients: receiptRecipients(receipt, []string{target.Requester}),
		Removed:    len(removed),
		Message:    "rejected",
	}, nil
}

func (s *PublishRequestService) rejectTarget(ctx context.Context, org, repo string, req dto.RejectRequest) (*models.PublishRequest, error) {
	if req.Requester != "" {
		target, err := s.store.FindPending(ctx, org, repo, req.Path, req.Requester)
		if err != nil {
			return nil, storeError(err, "failed to read publish requests")
		}
		if target == nil {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no pending publish request for %s from %s", req.Path, req.Requester))
		}
		return target, nil
	}

	all, err := s.store.ListPending(ctx, org, repo)
	if err != nil {
		return nil, storeError(err, "failed to read publish requests")
	}
	var matches []models.PublishRequest
	for _, r := range all {
		if r.Path == req.Path {
			matches = append(matches, r)
		}
	}
	switch len(matches) {
	case 0:
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no pending publish request for %s", req.Path))
	case 1:
		return &matches[0], nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("%d requests are pending for %s; requester is required", len(matches), req.Path))
	}
}

// Withdraw removes the caller's own pending request. Withdrawing twice is not an error.
func (s *PublishRequestService) Withdraw(ctx context.Context, org, repo string, req dto.PathRequest, actor string) (result *models.ActionResult, err error) {
	defer func() { s.record(models.ActionWithdraw, result, err) }()
	if err := s.validate(req, actor); err != nil {
		return nil, err
	}
	release, ok := s.guard.TryAcquire(InFlightKey(models.ActionWithdraw, org, repo, req.Path+"#"+strings.ToLower(actor)))
	if !ok {
		return skipped(models.ActionWithdraw, req.Path), nil
	}
	defer release()

	removed, err := s.store.RemoveMatching(ctx, org, repo, func(r models.PublishRequest) bool {
		return r.IsPending() && r.Matches(req.Path, actor)
	})
	if err != nil {
		return nil, storeError(err, "failed to withdraw publish request")
	}
	result = &models.ActionResult{Action: models.ActionWithdraw, Path: req.Path, Removed: len(removed)}
	if len(removed) == 0 {
		result.Message = "no matching request found"
		return result, nil
	}
	result.Request = &removed[0]
	result.Message = "publish request withdrawn"
	s.recordDecisions(ctx, org, repo, removed, actor, models.DecisionWithdrawn, nil)
	return result, nil
}

// ListPending returns every pending request, or only those actor may approve
// when forApprover is set.
func (s *PublishRequestService) ListPending(ctx context.Context, org, repo, actor string, forApprover bool) ([]models.PublishRequest, error) {
	requests, err := s.store.ListPending(ctx, org, repo)
	if err != nil {
		return nil, storeError(err, "failed to read publish requests")
	}
	if !forApprover {
		return requests, nil
	}
	if actor == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "sign in to list requests awaiting your approval")
	}
	return s.approvers.FilterApprovable(ctx, org, repo, actor, requests)
}

// FindPending returns the pending request for path, optionally raised by requester.
func (s *PublishRequestService) FindPending(ctx context.Context, org, repo string, query dto.FindRequestQuery) (*models.PublishRequest, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lookup")
	}
	found, err := s.store.FindPending(ctx, org, repo, query.Path, query.Requester)
	if err != nil {
		return nil, storeError(err, "failed to read publish requests")
	}
	if found == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no pending publish request for %s", query.Path))
	}
	return found, nil
}

// PreviewApprovers shows who would be asked to approve a path.
func (s *PublishRequestService) PreviewApprovers(ctx context.Context, org, repo string, query dto.ApproverPreviewQuery) (*models.ApproverResolution, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid path")
	}
	return s.approvers.Preview(ctx, org, repo, query.Path, query.Refresh)
}

// ListDecisions reads the decision log.
func (s *PublishRequestService) ListDecisions(ctx context.Context, org, repo string, query dto.DecisionQuery) ([]models.Decision, error) {
	if s.decisions == nil {
		return nil, appErrors.Clone(appErrors.ErrServiceNotConfigured, "decision log is disabled")
	}
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid decision filter")
	}
	decisions, err := s.decisions.List(ctx, models.DecisionFilter{
		Org:      org,
		Repo:     repo,
		Path:     query.Path,
		Decision: models.DecisionType(query.Decision),
		Limit:    query.Limit,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list decisions")
	}
	return decisions, nil
}

func (s *PublishRequestService) validate(req interface{}, actor string) error {
	if strings.TrimSpace(actor) == "" {
		return appErrors.Clone(appErrors.ErrUnauthorized, "sign in to manage publish requests")
	}
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid publish request payload")
	}
	return nil
}

func (s *PublishRequestService) authorize(ctx context.Context, org, repo, path, actor string) error {
	resolution, err := s.approvers.Resolve(ctx, org, repo, path)
	if err != nil {
		return err
	}
	if !containsFold(resolution.Approvers, actor) {
		return appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("%s is not an approver for %s", actor, path))
	}
	return nil
}

func (s *PublishRequestService) notifyPublished(ctx context.Context, org, repo string, published []models.PublishRequest) ([]string, string) {
	return notifyPublished(ctx, s.notifications, s.logger, org, repo, published)
}

func (s *PublishRequestService) deferNotification(kind string, payload interface{}, cause error) string {
	return deferNotification(s.notifications, kind, payload, cause)
}

func (s *PublishRequestService) recordDecisions(ctx context.Context, org, repo string, rows []models.PublishRequest, actor string, decision models.DecisionType, reason *string) {
	recordDecisions(ctx, s.decisions, s.logger, s.now, org, repo, rows, actor, decision, reason)
}

func (s *PublishRequestService) record(action string, result *models.ActionResult, err error) {
	switch {
	case err != nil:
		s.metrics.RecordAction(action, "failed")
	case result != nil && result.Skipped:
		s.metrics.RecordAction(action, "skipped")
	default:
		s.metrics.RecordAction(action, "success")
	}
}

// decisionKey guards every terminal decision on a path so approve, reject and
// bulk approve never act on the same request at once.
func decisionKey(org, repo, path string) string {
	return InFlightKey("decide", org, repo, path)
}

func skipped(action, path string) *models.ActionResult {
	return &models.ActionResult{Action: action, Path: path, Skipped: true, Message: "already in progress"}
}

func unresolvedWarnings(resolution *models.ApproverResolution) []string {
	if len(resolution.Unresolved) == 0 {
		return nil
	}
	return []string{fmt.Sprintf("not a known group or address: %s", strings.Join(resolution.Unresolved, ", "))}
}

func receiptRecipients(receipt *models.NotificationReceipt, fallback []string) []string {
	if receipt != nil && len(receipt.Recipients) > 0 {
		return receipt.Recipients
	}
	return fallback
}

// storeError maps request store failures onto the HTTP error taxonomy.
func storeError(err error, message string) error {
	if errors.Is(err, repository.ErrSheetConflict) {
		return appErrors.WrapAs(appErrors.ErrSheetConflict, err, message)
	}
	return appErrors.WrapAs(appErrors.ErrRemoteCallFailed, err, message)
}

func deferNotification(sender notificationSender, kind string, payload interface{}, cause error) string {
	warning := describeNotifyError(kind, cause)
	if errors.Is(cause, appErrors.ErrServiceNotConfigured) {
		return warning
	}
	if sender.Retry(kind, payload) {
		return warning + "; retry scheduled"
	}
	return warning
}

func notifyPublished(ctx context.Context, sender notificationSender, logger *zap.Logger, org, repo string, published []models.PublishRequest) ([]string, string) {
	pages := make([]models.PublishedPage, 0, len(published))
	for _, r := range published {
		pages = append(pages, models.PublishedPage{Path: r.Path, AuthorEmail: r.Requester})
	}
	notification := models.PublishedNotification{Org: org, Repo: repo, Pages: pages}
	if len(pages) == 0 {
		return nil, ""
	}
	receipt, err := sender.NotifyPublished(ctx, notification)
	if err != nil {
		logger.Warn("published notification failed", zap.String("org", org), zap.String("repo", repo), zap.Int("pages", len(pages)), zap.Error(err))
		return nil, deferNotification(sender, NotifyPublished, notification, err)
	}
	return receiptRecipients(receipt, notification.Authors()), ""
}

func recordDecisions(ctx context.Context, store decisionStore, logger *zap.Logger, now func() time.Time, org, repo string, rows []models.PublishRequest, actor string, decision models.DecisionType, reason *string) {
	if store == nil {
		return
	}
	for _, row := range rows {
		entry := &models.Decision{
			Org:       org,
			Repo:      repo,
			Path:      row.Path,
			Requester: row.Requester,
			Actor:     actor,
			Decision:  decision,
			Reason:    reason,
			CreatedAt: now(),
		}
		if err := store.Create(ctx, entry); err != nil {
			logger.Warn("failed to record publish decision", zap.String("path", row.Path), zap.String("decision", string(decision)), zap.Error(err))
		}
	}
}
