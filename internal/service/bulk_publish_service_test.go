package service

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/content-approval-api/internal/dto"
	"github.com/noah-isme/content-approval-api/internal/models"
	"github.com/noah-isme/content-approval-api/pkg/adminapi"
	"github.com/noah-isme/content-approval-api/pkg/config"
	appErrors "github.com/noah-isme/content-approval-api/pkg/errors"
)

type bulkFixture struct {
	store     *memoryRequestStore
	publisher *publisherStub
	notifier  *notifierStub
	decisions *decisionStub
	guard     *InFlightGuard
	svc       *BulkPublishService
}

func newBulkFixture(cfg config.BulkConfig, rows ...models.PublishRequest) *bulkFixture {
	f := &bulkFixture{
		store:     &memoryRequestStore{rows: rows},
		publisher: &publisherStub{},
		notifier:  &notifierStub{},
		decisions: &decisionStub{},
		guard:     NewInFlightGuard(),
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Millisecond
	}
	if cfg.MaxWait == 0 {
		cfg.MaxWait = time.Second
	}
	f.svc = NewBulkPublishService(f.store, &approverStub{approvers: []string{approver}}, f.publisher,
		NewNotificationService(f.notifier, nil, nil), cfg, nil, nil,
		WithDecisionStore(f.decisions), WithInFlightGuard(f.guard))
	return f
}

func bulkRequest(paths ...string) dto.BulkApproveRequest {
	return dto.BulkApproveRequest{Paths: paths}
}

func TestBulkApprovePartialFailure(t *testing.T) {
	f := newBulkFixture(config.BulkConfig{},
		pendingRow("/a", "ann@x.com"),
		pendingRow("/b", "bob@x.com"),
		pendingRow("/c", "cat@x.com"),
	)
	f.publisher.selfURL = "https://admin.example/job/42"
	f.publisher.jobs = []*models.BulkJob{
		{State: models.JobStateRunning},
		{State: models.JobStateCompleted, Resources: []models.BulkResource{
			{Path: "/a", Status: http.StatusOK},
			{Path: "/b", Status: http.StatusInternalServerError},
			{Path: "/c", Status: http.StatusNotModified},
		}},
	}

	result, err := f.svc.BulkApproveAll(context.Background(), "acme", "site", bulkRequest("/a", "/b", "/c"), approver)
	require.NoError(t, err)

	assert.Equal(t, []string{"/a", "/c"}, result.Published)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "/b", result.Failed[0].Path)
	assert.Equal(t, http.StatusInternalServerError, result.Failed[0].Status)
	assert.True(t, result.Partial())
	assert.Equal(t, models.JobStateCompleted, result.JobState)
	assert.Equal(t, 2, result.Removed)
	assert.Equal(t, []string{"/b"}, f.store.paths())

	require.Len(t, f.publisher.bulkCalls, 1)
	assert.Equal(t, []string{"/a", "/b", "/c"}, f.publisher.bulkCalls[0])
	assert.Equal(t, 2, f.publisher.detailCalls)

	require.Len(t, f.notifier.published, 1)
	assert.Equal(t, []string{"ann@x.com", "cat@x.com"}, f.notifier.published[0].Authors())
	assert.Equal(t, []string{"ann@x.com", "cat@x.com"}, result.Notified)
	assert.Len(t, f.decisions.entries, 2)
}

func TestBulkApprovePollTimeoutRemovesNothing(t *testing.T) {
	f := newBulkFixture(config.BulkConfig{PollInterval: time.Millisecond, MaxWait: 5 * time.Millisecond},
		pendingRow("/a", "ann@x.com"),
	)
	f.publisher.selfURL = "https://admin.example/job/7"
	f.publisher.jobs = []*models.BulkJob{{State: models.JobStateRunning}}

	_, err := f.svc.BulkApproveAll(context.Background(), "acme", "site", bulkRequest("/a"), approver)
	assert.Equal(t, appErrors.ErrPollTimeout.Code, appCode(t, err))
	assert.Contains(t, err.Error(), "still running")
	assert.Equal(t, []string{"/a"}, f.store.paths())
	assert.Empty(t, f.notifier.published)
	assert.Empty(t, f.decisions.entries)
}

func TestBulkApproveWithoutJobPublishesAll(t *testing.T) {
	f := newBulkFixture(config.BulkConfig{},
		pendingRow("/a", "ann@x.com"),
		pendingRow("/b", "ann@x.com"),
	)

	result, err := f.svc.BulkApproveAll(context.Background(), "acme", "site", bulkRequest("/a", "/b", "/a"), approver)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a", "/b"}, result.Published)
	assert.Empty(t, result.Failed)
	assert.Zero(t, f.publisher.detailCalls)
	assert.Empty(t, f.store.paths())
	require.Len(t, f.notifier.published, 1)
	assert.Len(t, f.notifier.published[0].Pages, 2)
}

func TestBulkApproveNeverSendsIneligiblePaths(t *testing.T) {
	f := newBulkFixture(config.BulkConfig{},
		pendingRow("/a", "ann@x.com"),
		pendingRow("/unruled/b", "ann@x.com"),
	)

	result, err := f.svc.BulkApproveAll(context.Background(), "acme", "site", bulkRequest("/a", "/missing", "/unruled/b"), approver)
	require.NoError(t, err)
	require.Len(t, f.publisher.bulkCalls, 1)
	assert.Equal(t, []string{"/a"}, f.publisher.bulkCalls[0])
	assert.ElementsMatch(t, []string{"/missing", "/unruled/b"}, result.FailedPaths())
	assert.Equal(t, []string{"/unruled/b"}, f.store.paths())

	denied, err := f.svc.BulkApproveAll(context.Background(), "acme", "site", bulkRequest("/unruled/b"), "ann@x.com")
	require.NoError(t, err)
	assert.Empty(t, denied.Published)
	assert.Len(t, f.publisher.bulkCalls, 1)
}

func TestBulkApproveForbiddenForNonApprover(t *testing.T) {
	f := newBulkFixture(config.BulkConfig{}, pendingRow("/a", "ann@x.com"))

	result, err := f.svc.BulkApproveAll(context.Background(), "acme", "site", bulkRequest("/a"), "ann@x.com")
	require.NoError(t, err)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, http.StatusForbidden, result.Failed[0].Status)
	assert.Empty(t, f.publisher.bulkCalls)
	assert.Equal(t, []string{"/a"}, f.store.paths())
}

func TestBulkApproveRemoteFailurePublishesNothing(t *testing.T) {
	f := newBulkFixture(config.BulkConfig{}, pendingRow("/a", "ann@x.com"))
	f.publisher.bulkErr = &adminapi.StatusError{Operation: "bulk_publish", StatusCode: http.StatusServiceUnavailable}

	_, err := f.svc.BulkApproveAll(context.Background(), "acme", "site", bulkRequest("/a"), approver)
	assert.Equal(t, appErrors.ErrRemoteCallFailed.Code, appCode(t, err))
	assert.Equal(t, []string{"/a"}, f.store.paths())
}

func TestBulkApproveValidation(t *testing.T) {
	f := newBulkFixture(config.BulkConfig{})

	_, err := f.svc.BulkApproveAll(context.Background(), "acme", "site", bulkRequest(), approver)
	assert.Equal(t, appErrors.ErrValidation.Code, appCode(t, err))

	_, err = f.svc.BulkApproveAll(context.Background(), "acme", "site", bulkRequest("/a"), "")
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appCode(t, err))
}

func TestBulkApproveSkipsWhileApproveInFlight(t *testing.T) {
	f := newBulkFixture(config.BulkConfig{}, pendingRow("/a", "ann@x.com"))
	release, ok := f.guard.TryAcquire(decisionKey("acme", "site", "/a"))
	require.True(t, ok)

	result, err := f.svc.BulkApproveAll(context.Background(), "acme", "site", bulkRequest("/a"), approver)
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Empty(t, f.publisher.bulkCalls)

	release()
	result, err = f.svc.BulkApproveAll(context.Background(), "acme", "site", bulkRequest("/a"), approver)
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Equal(t, []string{"/a"}, result.Published)
}

// pausingStore holds the first ListPending caller after it has read its
// snapshot until resume is closed.
type pausingStore struct {
	*memoryRequestStore
	listed chan struct{}
	resume chan struct{}
	once   sync.Once
}

func (p *pausingStore) ListPending(ctx context.Context, org, repo string) ([]models.PublishRequest, error) {
	rows, err := p.memoryRequestStore.ListPending(ctx, org, repo)
	p.once.Do(func() {
		close(p.listed)
		<-p.resume
	})
	return rows, err
}

func TestBulkApproveTwiceConcurrentlyPublishesOnce(t *testing.T) {
	f := newBulkFixture(config.BulkConfig{}, pendingRow("/a", "ann@x.com"))
	store := &pausingStore{memoryRequestStore: f.store, listed: make(chan struct{}), resume: make(chan struct{})}
	svc := NewBulkPublishService(store, &approverStub{approvers: []string{approver}}, f.publisher,
		NewNotificationService(f.notifier, nil, nil), config.BulkConfig{PollInterval: time.Millisecond, MaxWait: time.Second}, nil, nil,
		WithDecisionStore(f.decisions), WithInFlightGuard(f.guard))

	done := make(chan *models.BulkResult, 1)
	go func() {
		result, err := svc.BulkApproveAll(context.Background(), "acme", "site", bulkRequest("/a"), approver)
		assert.NoError(t, err)
		done <- result
	}()
	<-store.listed

	second, err := svc.BulkApproveAll(context.Background(), "acme", "site", bulkRequest("/a"), approver)
	require.NoError(t, err)
	assert.True(t, second.Skipped)

	close(store.resume)
	first := <-done
	assert.False(t, first.Skipped)
	assert.Equal(t, []string{"/a"}, first.Published)
	assert.Equal(t, [][]string{{"/a"}}, f.publisher.bulkCalls)
	assert.Len(t, f.decisions.entries, 1)
}

func TestBulkApprovePollsUntilDeadline(t *testing.T) {
	maxWait := 50 * time.Millisecond
	f := newBulkFixture(config.BulkConfig{PollInterval: 20 * time.Millisecond, MaxWait: maxWait}, pendingRow("/a", "ann@x.com"))
	f.publisher.selfURL = "https://admin.example/job/9"
	f.publisher.jobs = []*models.BulkJob{{State: models.JobStateRunning}}

	started := time.Now()
	_, err := f.svc.BulkApproveAll(context.Background(), "acme", "site", bulkRequest("/a"), approver)
	assert.Equal(t, appErrors.ErrPollTimeout.Code, appCode(t, err))
	assert.GreaterOrEqual(t, f.publisher.lastDetail.Sub(started), maxWait)
	assert.GreaterOrEqual(t, f.publisher.detailCalls, 3)
}

func TestUniquePaths(t *testing.T) {
	assert.Equal(t, []string{"/a", "/b"}, uniquePaths([]string{" /a", "/b", "", "/a"}))
}
