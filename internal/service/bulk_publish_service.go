package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/content-approval-api/internal/dto"
	"github.com/noah-isme/content-approval-api/internal/models"
	"github.com/noah-isme/content-approval-api/pkg/adminapi"
	"github.com/noah-isme/content-approval-api/pkg/config"
	appErrors "github.com/noah-isme/content-approval-api/pkg/errors"
)

type bulkPublisher interface {
	BulkPublish(ctx context.Context, org, repo string, paths []string) (*adminapi.BulkPublishResponse, error)
	JobDetails(ctx context.Context, selfURL string) (*models.BulkJob, error)
}

// BulkPublishService publishes many pending paths in one remote job.
type BulkPublishService struct {
	workflowOptions
	store         requestStore
	approvers     approverResolver
	publisher     bulkPublisher
	notifications notificationSender
	validator     *validator.Validate
	logger        *zap.Logger
	pollInterval  time.Duration
	maxWait       time.Duration
}

// NewBulkPublishService constructs the service. Pass the same guard as the
// lifecycle service so approve and bulk approve exclude each other per path.
func NewBulkPublishService(store requestStore, approvers approverResolver, publisher bulkPublisher, notifications notificationSender, cfg config.BulkConfig, validate *validator.Validate, logger *zap.Logger, opts ...WorkflowOption) *BulkPublishService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	maxWait := cfg.MaxWait
	if maxWait <= 0 {
		maxWait = 60 * time.Second
	}
	return &BulkPublishService{
		workflowOptions: newWorkflowOptions(opts),
		store:           store,
		approvers:       approvers,
		publisher:       publisher,
		notifications:   notifications,
		validator:       validate,
		logger:          logger,
		pollInterval:    interval,
		maxWait:         maxWait,
	}
}

// BulkApproveAll publishes every eligible path in req. Paths that are not
// pending or that actor may not approve are reported as failed and never sent.
func (s *BulkPublishService) BulkApproveAll(ctx context.Context, org, repo string, req dto.BulkApproveRequest, actor string) (result *models.BulkResult, err error) {
	polls := 0
	defer func() {
		switch {
		case err != nil:
			s.metrics.RecordAction(models.ActionBulk, "failed")
		case result.Skipped:
			s.metrics.RecordAction(models.ActionBulk, "skipped")
		default:
			s.metrics.RecordAction(models.ActionBulk, "success")
			s.metrics.RecordBulkOutcome(len(result.Published), len(result.Failed), polls)
		}
	}()

	if strings.TrimSpace(actor) == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "sign in to approve publish requests")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk approve payload")
	}

	// hold every requested path before reading the sheet so a duplicate
	// trigger cannot act on a snapshot taken while this one publishes
	paths := uniquePaths(req.Paths)
	keys := make([]string, len(paths))
	for i, p := range paths {
		keys[i] = decisionKey(org, repo, p)
	}
	release, ok := s.guard.TryAcquire(keys...)
	if !ok {
		return &models.BulkResult{Skipped: true, Published: []string{}, Failed: []models.BulkFailure{}}, nil
	}
	defer release()

	result = &models.BulkResult{Published: []string{}, Failed: []models.BulkFailure{}}
	eligible, pending, err := s.eligiblePaths(ctx, org, repo, paths, actor, result)
	if err != nil {
		return nil, err
	}
	if len(eligible) == 0 {
		return result, nil
	}

	resp, err := s.publisher.BulkPublish(ctx, org, repo, eligible)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrRemoteCallFailed, err, "bulk publish request failed; nothing was published")
	}

	succeeded := eligible
	if resp.SelfURL != "" {
		result.JobURL = resp.SelfURL
		job, n, err := s.poll(ctx, resp.SelfURL)
		polls = n
		if err != nil {
			return nil, err
		}
		result.JobState = job.State
		succeeded = s.reconcile(eligible, job, result)
	}
	result.Published = append(result.Published, succeeded...)
	if len(succeeded) == 0 {
		return result, nil
	}

	publishedSet := make(map[string]struct{}, len(succeeded))
	for _, p := range succeeded {
		publishedSet[p] = struct{}{}
	}
	removed, err := s.store.RemoveMatching(ctx, org, repo, func(r models.PublishRequest) bool {
		_, ok := publishedSet[r.Path]
		return ok && r.IsPending()
	})
	if err != nil {
		s.logger.Error("bulk published but request rows were not removed", zap.String("org", org), zap.String("repo", repo), zap.Strings("paths", succeeded), zap.Error(err))
		result.Warnings = append(result.Warnings, fmt.Sprintf("published, but pending requests could not be removed: %v", err))
		removed = nil
		for _, r := range pending {
			if _, ok := publishedSet[r.Path]; ok {
				removed = append(removed, r)
			}
		}
	} else {
		result.Removed = len(removed)
	}

	recordDecisions(ctx, s.decisions, s.logger, s.now, org, repo, removed, actor, models.DecisionPublished, nil)
	notified, warning := notifyPublished(ctx, s.notifications, s.logger, org, repo, removed)
	result.Notified = notified
	if warning != "" {
		result.Warnings = append(result.Warnings, warning)
	}
	if result.Partial() {
		s.logger.Warn("bulk publish partially failed", zap.String("org", org), zap.String("repo", repo), zap.Strings("failed", result.FailedPaths()))
	}
	return result, nil
}

func (s *BulkPublishService) eligiblePaths(ctx context.Context, org, repo string, paths []string, actor string, result *models.BulkResult) ([]string, []models.PublishRequest, error) {
	pending, err := s.store.ListPending(ctx, org, repo)
	if err != nil {
		return nil, nil, storeError(err, "failed to read publish requests")
	}
	pendingPaths := make(map[string]struct{}, len(pending))
	for _, r := range pending {
		pendingPaths[r.Path] = struct{}{}
	}

	eligible := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, ok := pendingPaths[p]; !ok {
			result.Failed = append(result.Failed, models.BulkFailure{Path: p, Reason: "no pending publish request"})
			continue
		}
		resolution, err := s.approvers.Resolve(ctx, org, repo, p)
		if err != nil {
			var appErr *appErrors.Error
			if errors.As(err, &appErr) && appErr.Code == appErrors.ErrConfigurationMissing.Code {
				result.Failed = append(result.Failed, models.BulkFailure{Path: p, Reason: appErr.Message})
				continue
			}
			return nil, nil, err
		}
		if !containsFold(resolution.Approvers, actor) {
			result.Failed = append(result.Failed, models.BulkFailure{Path: p, Status: http.StatusForbidden, Reason: "not an approver for this path"})
			continue
		}
		eligible = append(eligible, p)
	}
	return eligible, pending, nil
}

// poll waits for the job to reach a terminal state. It returns the number of
// status fetches made.
func (s *BulkPublishService) poll(ctx context.Context, selfURL string) (*models.BulkJob, int, error) {
	deadline := time.Now().Add(s.maxWait)
	timer := time.NewTimer(min(s.pollInterval, s.maxWait))
	defer timer.Stop()

	polls := 0
	state := "unknown"
	var lastErr error
	for {
		select {
		case <-ctx.Done():
			return nil, polls, appErrors.WrapAs(appErrors.ErrPollTimeout, ctx.Err(),
				fmt.Sprintf("stopped waiting for bulk publish job %s; it may still complete", selfURL))
		case <-timer.C:
		}

		polls++
		job, err := s.publisher.JobDetails(ctx, selfURL)
		if err != nil {
			lastErr = err
			s.logger.Warn("bulk job status check failed", zap.String("job", selfURL), zap.Int("poll", polls), zap.Error(err))
		} else {
			if job.Terminal() {
				return job, polls, nil
			}
			state = job.State
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			message := fmt.Sprintf("bulk publish job %s still %s after %s; it may still complete, check it before retrying", selfURL, state, s.maxWait)
			return nil, polls, appErrors.WrapAs(appErrors.ErrPollTimeout, lastErr, message)
		}
		timer.Reset(min(s.pollInterval, remaining))
	}
}

// reconcile records per-path failures on result and returns the published paths.
func (s *BulkPublishService) reconcile(sent []string, job *models.BulkJob, result *models.BulkResult) []string {
	byPath := make(map[string]models.BulkResource, len(job.Resources))
	for _, res := range job.Resources {
		byPath[res.Path] = res
	}
	succeeded := make([]string, 0, len(sent))
	for _, p := range sent {
		res, ok := byPath[p]
		switch {
		case !ok:
			result.Failed = append(result.Failed, models.BulkFailure{Path: p, Reason: "missing from bulk job result"})
		case res.Succeeded():
			succeeded = append(succeeded, p)
		default:
			result.Failed = append(result.Failed, models.BulkFailure{Path: p, Status: res.Status, Reason: fmt.Sprintf("publish returned status %d", res.Status)})
		}
	}
	return succeeded
}

func uniquePaths(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
