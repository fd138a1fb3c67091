package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/content-approval-api/internal/middleware"
	"github.com/noah-isme/content-approval-api/internal/models"
)

type tokenResolverStub struct {
	emails map[string]string
}

func (s tokenResolverStub) Resolve(_ context.Context, token string) (*models.Identity, error) {
	return &models.Identity{Email: s.emails[token]}, nil
}

func newRouter(requests *requestServiceMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	resolver := tokenResolverStub{emails: map[string]string{"lead-token": "lead@x.com"}}
	r := gin.New()
	h := NewPublishRequestHandler(requests, nil, nil)
	RegisterRepoRoutes(r.Group("/orgs/:org/repos/:repo"), h, middleware.OptionalIdentity(resolver), middleware.RequireIdentity(resolver))
	return r
}

func serve(r *gin.Engine, method, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestDecisionLogRequiresIdentity(t *testing.T) {
	r := newRouter(&requestServiceMock{})

	w := serve(r, http.MethodGet, "/orgs/acme/repos/site/decisions", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(r, http.MethodGet, "/orgs/acme/repos/site/decisions", "unknown-token")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(r, http.MethodGet, "/orgs/acme/repos/site/decisions?decision=rejected", "lead-token")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPendingListIsPublic(t *testing.T) {
	requests := &requestServiceMock{requests: []models.PublishRequest{{Path: "/a"}}}
	r := newRouter(requests)

	w := serve(r, http.MethodGet, "/orgs/acme/repos/site/requests", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, requests.actor)

	w = serve(r, http.MethodGet, "/orgs/acme/repos/site/requests", "lead-token")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "lead@x.com", requests.actor)
}

func TestWritesRequireIdentity(t *testing.T) {
	r := newRouter(&requestServiceMock{})

	for _, target := range []string{"/requests", "/requests/approve", "/requests/reject", "/requests/withdraw", "/requests/bulk-approve"} {
		w := serve(r, http.MethodPost, "/orgs/acme/repos/site"+target, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, target)
	}
}
