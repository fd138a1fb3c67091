package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/content-approval-api/internal/dto"
	"github.com/noah-isme/content-approval-api/internal/middleware"
	"github.com/noah-isme/content-approval-api/internal/models"
	"github.com/noah-isme/content-approval-api/internal/service"
	appErrors "github.com/noah-isme/content-approval-api/pkg/errors"
)

type requestServiceMock struct {
	actor       string
	forApprover bool
	pathReq     dto.PathRequest
	rejectReq   dto.RejectRequest
	result      *models.ActionResult
	requests    []models.PublishRequest
	resolution  *models.ApproverResolution
	err         error
}

func (m *requestServiceMock) action(req dto.PathRequest, actor string) (*models.ActionResult, error) {
	m.pathReq, m.actor = req, actor
	return m.result, m.err
}

func (m *requestServiceMock) Submit(_ context.Context, _, _ string, req dto.PathRequest, actor string) (*models.ActionResult, error) {
	return m.action(req, actor)
}

func (m *requestServiceMock) Resend(_ context.Context, _, _ string, req dto.PathRequest, actor string) (*models.ActionResult, error) {
	return m.action(req, actor)
}

func (m *requestServiceMock) Approve(_ context.Context, _, _ string, req dto.PathRequest, actor string) (*models.ActionResult, error) {
	return m.action(req, actor)
}

func (m *requestServiceMock) Withdraw(_ context.Context, _, _ string, req dto.PathRequest, actor string) (*models.ActionResult, error) {
	return m.action(req, actor)
}

func (m *requestServiceMock) Reject(_ context.Context, _, _ string, req dto.RejectRequest, actor string) (*models.ActionResult, error) {
	m.rejectReq, m.actor = req, actor
	return m.result, m.err
}

func (m *requestServiceMock) ListPending(_ context.Context, _, _, actor string, forApprover bool) ([]models.PublishRequest, error) {
	m.actor, m.forApprover = actor, forApprover
	return m.requests, m.err
}

func (m *requestServiceMock) FindPending(_ context.Context, _, _ string, query dto.FindRequestQuery) (*models.PublishRequest, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.PublishRequest{Path: query.Path, Requester: query.Requester}, nil
}

func (m *requestServiceMock) PreviewApprovers(_ context.Context, _, _ string, _ dto.ApproverPreviewQuery) (*models.ApproverResolution, error) {
	return m.resolution, m.err
}

func (m *requestServiceMock) ListDecisions(_ context.Context, _, _ string, _ dto.DecisionQuery) ([]models.Decision, error) {
	return nil, m.err
}

type bulkServiceMock struct {
	result *models.BulkResult
	err    error
	req    dto.BulkApproveRequest
}

func (m *bulkServiceMock) BulkApproveAll(_ context.Context, _, _ string, req dto.BulkApproveRequest, _ string) (*models.BulkResult, error) {
	m.req = req
	return m.result, m.err
}

type exportServiceMock struct {
	result *service.ExportResult
	err    error
}

func (m *exportServiceMock) PendingReport(_ context.Context, _, _ string, _ dto.ExportQuery) (*service.ExportResult, error) {
	return m.result, m.err
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "org", Value: "acme"}, {Key: "repo", Value: "site"}}
	return c, w
}

func withActor(c *gin.Context, email string) {
	c.Set(middleware.ContextIdentityKey, &models.Identity{Email: email})
}

type envelope struct {
	Data  json.RawMessage        `json:"data"`
	Error *appErrors.Error       `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestSubmitReturnsCreated(t *testing.T) {
	svc := &requestServiceMock{result: &models.ActionResult{Action: models.ActionSubmit, Path: "/drafts/a"}}
	h := NewPublishRequestHandler(svc, nil, nil)

	c, w := newGinContext(http.MethodPost, "/orgs/acme/repos/site/requests", []byte(`{"path":"/drafts/a"}`))
	withActor(c, "author@x.com")
	h.Submit(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "author@x.com", svc.actor)
	assert.Equal(t, "/drafts/a", svc.pathReq.Path)
}

func TestActionMapsServiceErrors(t *testing.T) {
	svc := &requestServiceMock{err: appErrors.Clone(appErrors.ErrConfigurationMissing, "no publish approval rules configured for acme/site")}
	h := NewPublishRequestHandler(svc, nil, nil)

	c, w := newGinContext(http.MethodPost, "/orgs/acme/repos/site/requests/approve", []byte(`{"path":"/drafts/a"}`))
	withActor(c, "lead@x.com")
	h.Approve(c)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	env := decode(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, "CONFIGURATION_MISSING", env.Error.Code)
}

func TestActionRejectsMalformedBody(t *testing.T) {
	h := NewPublishRequestHandler(&requestServiceMock{}, nil, nil)
	c, w := newGinContext(http.MethodPost, "/orgs/acme/repos/site/requests/withdraw", []byte(`{`))
	h.Withdraw(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSkippedActionIsFlagged(t *testing.T) {
	svc := &requestServiceMock{result: &models.ActionResult{Action: models.ActionApprove, Skipped: true}}
	h := NewPublishRequestHandler(svc, nil, nil)

	c, w := newGinContext(http.MethodPost, "/orgs/acme/repos/site/requests/approve", []byte(`{"path":"/drafts/a"}`))
	middleware.WithResponseMeta()(c)
	withActor(c, "lead@x.com")
	h.Approve(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w).Meta["skipped"])
}

func TestRejectPassesReason(t *testing.T) {
	svc := &requestServiceMock{result: &models.ActionResult{Action: models.ActionReject}}
	h := NewPublishRequestHandler(svc, nil, nil)

	c, w := newGinContext(http.MethodPost, "/orgs/acme/repos/site/requests/reject",
		[]byte(`{"path":"/drafts/a","requester":"author@x.com","reason":"typo"}`))
	withActor(c, "lead@x.com")
	h.Reject(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "typo", svc.rejectReq.Reason)
	assert.Equal(t, "author@x.com", svc.rejectReq.Requester)
}

func TestListForApprover(t *testing.T) {
	svc := &requestServiceMock{requests: []models.PublishRequest{{Path: "/drafts/a"}}}
	h := NewPublishRequestHandler(svc, nil, nil)

	c, w := newGinContext(http.MethodGet, "/orgs/acme/repos/site/requests?approver=ME", nil)
	middleware.WithResponseMeta()(c)
	withActor(c, "lead@x.com")
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, svc.forApprover)
	assert.Equal(t, "lead@x.com", svc.actor)
	assert.EqualValues(t, 1, decode(t, w).Meta["total"])
}

func TestFindAndApprovers(t *testing.T) {
	svc := &requestServiceMock{resolution: &models.ApproverResolution{Path: "/drafts/a", Pattern: "/drafts/*", Approvers: []string{"lead@x.com"}}}
	h := NewPublishRequestHandler(svc, nil, nil)

	c, w := newGinContext(http.MethodGet, "/orgs/acme/repos/site/requests/find?path=/drafts/a&requester=a@x.com", nil)
	h.Find(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "a@x.com")

	c, w = newGinContext(http.MethodGet, "/orgs/acme/repos/site/approvers?path=/drafts/a&refresh=true", nil)
	h.Approvers(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/drafts/*")
}

func TestBulkApprovePartialIsMultiStatus(t *testing.T) {
	bulk := &bulkServiceMock{result: &models.BulkResult{
		Published: []string{"/a", "/c"},
		Failed:    []models.BulkFailure{{Path: "/b", Status: http.StatusInternalServerError, Reason: "publish returned status 500"}},
	}}
	h := NewPublishRequestHandler(&requestServiceMock{}, bulk, nil)

	c, w := newGinContext(http.MethodPost, "/orgs/acme/repos/site/requests/bulk-approve", []byte(`{"paths":["/a","/b","/c"]}`))
	middleware.WithResponseMeta()(c)
	withActor(c, "lead@x.com")
	h.BulkApprove(c)

	require.Equal(t, http.StatusMultiStatus, w.Code)
	env := decode(t, w)
	assert.Equal(t, "PARTIAL_BULK_FAILURE", env.Meta["code"])
	var result models.BulkResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, []string{"/b"}, result.FailedPaths())
	assert.Equal(t, []string{"/a", "/b", "/c"}, bulk.req.Paths)
}

func TestBulkApproveTimeout(t *testing.T) {
	bulk := &bulkServiceMock{err: appErrors.Clone(appErrors.ErrPollTimeout, "still running")}
	h := NewPublishRequestHandler(&requestServiceMock{}, bulk, nil)

	c, w := newGinContext(http.MethodPost, "/orgs/acme/repos/site/requests/bulk-approve", []byte(`{"paths":["/a"]}`))
	h.BulkApprove(c)
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestExportStreamsFile(t *testing.T) {
	exp := &exportServiceMock{result: &service.ExportResult{
		Filename:    "publish-requests_acme-site_20240501_100000.csv",
		ContentType: "text/csv; charset=utf-8",
		Body:        []byte("Path\n/drafts/a\n"),
	}}
	h := NewPublishRequestHandler(&requestServiceMock{}, nil, exp)

	c, w := newGinContext(http.MethodGet, "/orgs/acme/repos/site/requests/export?format=csv", nil)
	h.Export(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "publish-requests_acme-site")
	assert.Equal(t, "Path\n/drafts/a\n", w.Body.String())
}

func TestUnconfiguredOptionalServices(t *testing.T) {
	h := NewPublishRequestHandler(&requestServiceMock{}, nil, nil)

	c, w := newGinContext(http.MethodGet, "/orgs/acme/repos/site/requests/export", nil)
	h.Export(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	c, w = newGinContext(http.MethodPost, "/orgs/acme/repos/site/requests/bulk-approve", []byte(`{"paths":["/a"]}`))
	h.BulkApprove(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestReadyReportsFailingCheck(t *testing.T) {
	h := NewMetricsHandler(nil, map[string]ReadinessCheck{
		"redis":    func(context.Context) error { return nil },
		"postgres": func(context.Context) error { return appErrors.ErrServiceNotConfigured },
	})

	c, w := newGinContext(http.MethodGet, "/ready", nil)
	h.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":"ok"`)

	c, w = newGinContext(http.MethodGet, "/health", nil)
	h.Health(c)
	assert.Equal(t, http.StatusOK, w.Code)

	c, w = newGinContext(http.MethodGet, "/metrics", nil)
	h.Prometheus(c)
	c.Writer.WriteHeaderNow() // gin engine flushes buffered status after handlers
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
