package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/content-approval-api/internal/models"
	"github.com/noah-isme/content-approval-api/internal/repository"
	appErrors "github.com/noah-isme/content-approval-api/pkg/errors"
)

type ruleLoaderStub struct {
	cfg   *models.ApprovalConfig
	err   error
	loads int
}

func (s *ruleLoaderStub) Load(_ context.Context, _, _ string) (*models.ApprovalConfig, error) {
	s.loads++
	if s.err != nil {
		return nil, s.err
	}
	clone := *s.cfg
	return &clone, nil
}

type memoryCache struct {
	values map[string]models.ApprovalConfig
}

func (m *memoryCache) Get(_ context.Context, key string, dest interface{}) error {
	v, ok := m.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	*(dest.(*models.ApprovalConfig)) = v
	return nil
}

func (m *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.values[key] = *(value.(*models.ApprovalConfig))
	return nil
}

func (m *memoryCache) Delete(_ context.Context, key string) error {
	delete(m.values, key)
	return nil
}

func (m *memoryCache) DeleteByPattern(context.Context, string) error { return nil }

func testApprovalConfig() *models.ApprovalConfig {
	return &models.ApprovalConfig{
		Rules: []models.ApprovalRule{
			{Pattern: "/*", Approvers: []string{"editors"}},
			{Pattern: "/drafts/*", Approvers: []string{"lead@x.com", "editors"}, CC: []string{"audit"}},
			{Pattern: "/legal/*", Approvers: []string{"empty-group"}},
		},
		Groups: []models.GroupMapping{
			{Group: "Editors", Email: "a@x.com, b@x.com"},
			{Group: "empty-group", Email: ""},
		},
		Source: "/acme/.da/config.json",
	}
}

func TestApproverServiceResolve(t *testing.T) {
	loader := &ruleLoaderStub{cfg: testApprovalConfig()}
	svc := NewApproverService(loader, nil, time.Minute, nil)

	res, err := svc.Resolve(context.Background(), "acme", "site", "/drafts/post")
	require.NoError(t, err)
	assert.Equal(t, "/drafts/*", res.Pattern)
	assert.Equal(t, []string{"lead@x.com", "a@x.com", "b@x.com"}, res.Approvers)
	assert.Equal(t, []string{"audit"}, res.CC)
	assert.Equal(t, []string{"audit"}, res.Unresolved)
	assert.Equal(t, "/acme/.da/config.json", res.Source)
}

func TestApproverServiceConfigMissing(t *testing.T) {
	loader := &ruleLoaderStub{err: fmt.Errorf("%w for acme/site", repository.ErrRulesNotConfigured)}
	svc := NewApproverService(loader, nil, time.Minute, nil)

	_, err := svc.Resolve(context.Background(), "acme", "site", "/page")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConfigurationMissing.Code, appErr.Code)
	assert.Equal(t, http.StatusUnprocessableEntity, appErr.Status)
	assert.Contains(t, appErr.Message, "acme/site")
}

func TestApproverServiceRemoteFailure(t *testing.T) {
	loader := &ruleLoaderStub{err: errors.New("dial tcp: refused")}
	svc := NewApproverService(loader, nil, time.Minute, nil)

	_, err := svc.Resolve(context.Background(), "acme", "site", "/page")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrRemoteCallFailed))
}

func TestApproverServiceNoApproversFailsClosed(t *testing.T) {
	loader := &ruleLoaderStub{cfg: testApprovalConfig()}
	svc := NewApproverService(loader, nil, time.Minute, nil)

	_, err := svc.Resolve(context.Background(), "acme", "site", "/legal/terms")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrConfigurationMissing))
}

func TestApproverServiceNoMatchingRule(t *testing.T) {
	loader := &ruleLoaderStub{cfg: &models.ApprovalConfig{Rules: []models.ApprovalRule{{Pattern: "/drafts/*", Approvers: []string{"a@x.com"}}}}}
	svc := NewApproverService(loader, nil, time.Minute, nil)

	_, err := svc.Resolve(context.Background(), "acme", "site", "/news/item")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrConfigurationMissing))
	assert.Contains(t, err.Error(), "/news/item")
}

func TestApproverServiceCachesConfig(t *testing.T) {
	loader := &ruleLoaderStub{cfg: testApprovalConfig()}
	cache := NewCacheService(&memoryCache{values: map[string]models.ApprovalConfig{}}, nil, time.Minute, nil, true)
	svc := NewApproverService(loader, cache, time.Minute, nil)
	ctx := context.Background()

	_, err := svc.Resolve(ctx, "acme", "site", "/page")
	require.NoError(t, err)
	_, err = svc.Resolve(ctx, "ACME", "site", "/other")
	require.NoError(t, err)
	assert.Equal(t, 1, loader.loads)

	_, err = svc.Preview(ctx, "acme", "site", "/page", true)
	require.NoError(t, err)
	assert.Equal(t, 2, loader.loads)
}

func TestApproverServiceCanApproveAndFilter(t *testing.T) {
	loader := &ruleLoaderStub{cfg: testApprovalConfig()}
	svc := NewApproverService(loader, nil, time.Minute, nil)
	ctx := context.Background()

	ok, err := svc.CanApprove(ctx, "acme", "site", "/drafts/post", "LEAD@x.com")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.CanApprove(ctx, "acme", "site", "/page", "lead@x.com")
	require.NoError(t, err)
	assert.False(t, ok)

	requests := []models.PublishRequest{
		{Path: "/drafts/post", Requester: "r@x.com"},
		{Path: "/page", Requester: "r@x.com"},
		{Path: "/legal/terms", Requester: "r@x.com"},
	}
	filtered, err := svc.FilterApprovable(ctx, "acme", "site", "lead@x.com", requests)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "/drafts/post", filtered[0].Path)
}
