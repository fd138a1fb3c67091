package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	appErrors "github.com/noah-isme/content-approval-api/pkg/errors"
)

type cacheRepoStub struct {
	values  map[string]interface{}
	getErr  error
	deleted []string
}

func newCacheRepoStub() *cacheRepoStub {
	return &cacheRepoStub{values: map[string]interface{}{}}
}

func (s *cacheRepoStub) Get(_ context.Context, key string, dest interface{}) error {
	if s.getErr != nil {
		return s.getErr
	}
	v, ok := s.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	if d, ok := dest.(*string); ok {
		*d = v.(string)
	}
	return nil
}

func (s *cacheRepoStub) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	s.values[key] = value
	return nil
}

func (s *cacheRepoStub) Delete(_ context.Context, key string) error {
	delete(s.values, key)
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *cacheRepoStub) DeleteByPattern(_ context.Context, pattern string) error {
	s.deleted = append(s.deleted, pattern)
	return nil
}

func TestCacheServiceHitAndMiss(t *testing.T) {
	repo := newCacheRepoStub()
	svc := NewCacheService(repo, NewMetricsService(), time.Minute, nil, true)
	ctx := context.Background()

	var out string
	assert.False(t, svc.Get(ctx, "k", &out))

	svc.Set(ctx, "k", "v", 0)
	assert.True(t, svc.Get(ctx, "k", &out))
	assert.Equal(t, "v", out)

	svc.Delete(ctx, "k")
	assert.False(t, svc.Get(ctx, "k", &out))
}

func TestCacheServiceSwallowsBackendErrors(t *testing.T) {
	repo := newCacheRepoStub()
	repo.getErr = errors.New("connection refused")
	svc := NewCacheService(repo, nil, 0, nil, true)

	var out string
	assert.False(t, svc.Get(context.Background(), "k", &out))
}

func TestCacheServiceDisabled(t *testing.T) {
	repo := newCacheRepoStub()
	svc := NewCacheService(repo, nil, 0, nil, false)
	ctx := context.Background()

	svc.Set(ctx, "k", "v", 0)
	svc.Invalidate(ctx, "*")
	assert.Empty(t, repo.values)
	assert.Empty(t, repo.deleted)
	assert.False(t, svc.Enabled())
}
