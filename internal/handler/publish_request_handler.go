package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/content-approval-api/internal/dto"
	"github.com/noah-isme/content-approval-api/internal/middleware"
	"github.com/noah-isme/content-approval-api/internal/models"
	"github.com/noah-isme/content-approval-api/internal/service"
	appErrors "github.com/noah-isme/content-approval-api/pkg/errors"
	"github.com/noah-isme/content-approval-api/pkg/response"
)

type publishRequestService interface {
	Submit(ctx context.Context, org, repo string, req dto.PathRequest, actor string) (*models.ActionResult, error)
	Resend(ctx context.Context, org, repo string, req dto.PathRequest, actor string) (*models.ActionResult, error)
	Approve(ctx context.Context, org, repo string, req dto.PathRequest, actor string) (*models.ActionResult, error)
	Reject(ctx context.Context, org, repo string, req dto.RejectRequest, actor string) (*models.ActionResult, error)
	Withdraw(ctx context.Context, org, repo string, req dto.PathRequest, actor string) (*models.ActionResult, error)
	ListPending(ctx context.Context, org, repo, actor string, forApprover bool) ([]models.PublishRequest, error)
	FindPending(ctx context.Context, org, repo string, query dto.FindRequestQuery) (*models.PublishRequest, error)
	PreviewApprovers(ctx context.Context, org, repo string, query dto.ApproverPreviewQuery) (*models.ApproverResolution, error)
	ListDecisions(ctx context.Context, org, repo string, query dto.DecisionQuery) ([]models.Decision, error)
}

type bulkPublishService interface {
	BulkApproveAll(ctx context.Context, org, repo string, req dto.BulkApproveRequest, actor string) (*models.BulkResult, error)
}

type exportService interface {
	PendingReport(ctx context.Context, org, repo string, query dto.ExportQuery) (*service.ExportResult, error)
}

// PublishRequestHandler exposes the publish approval workflow.
type PublishRequestHandler struct {
	requests publishRequestService
	bulk     bulkPublishService
	export   exportService
}

// NewPublishRequestHandler constructs the handler.
func NewPublishRequestHandler(requests publishRequestService, bulk bulkPublishService, export exportService) *PublishRequestHandler {
	return &PublishRequestHandler{requests: requests, bulk: bulk, export: export}
}

// List godoc
// @Summary List pending publish requests
// @Tags PublishRequests
// @Produce json
// @Param org path string true "Organisation"
// @Param repo path string true "Repository"
// @Param approver query string false "Use 'me' to list only requests the caller may approve"
// @Success 200 {object} response.Envelope
// @Router /orgs/{org}/repos/{repo}/requests [get]
func (h *PublishRequestHandler) List(c *gin.Context) {
	var query dto.ListRequestsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	org, repo := repoParams(c)
	forApprover := strings.EqualFold(strings.TrimSpace(query.Approver), "me")
	requests, err := h.requests.ListPending(c.Request.Context(), org, repo, actorFromContext(c), forApprover)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "total", len(requests))
	response.JSON(c, http.StatusOK, requests, middleware.ExtractMeta(c))
}

// Find godoc
// @Summary Find a pending publish request
// @Tags PublishRequests
// @Produce json
// @Param org path string true "Organisation"
// @Param repo path string true "Repository"
// @Param path query string true "Content path"
// @Param requester query string false "Requester email"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /orgs/{org}/repos/{repo}/requests/find [get]
func (h *PublishRequestHandler) Find(c *gin.Context) {
	var query dto.FindRequestQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	org, repo := repoParams(c)
	found, err := h.requests.FindPending(c.Request.Context(), org, repo, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, found)
}

// Submit godoc
// @Summary Request approval to publish a path
// @Tags PublishRequests
// @Accept json
// @Produce json
// @Param org path string true "Organisation"
// @Param repo path string true "Repository"
// @Param payload body dto.PathRequest true "Path to publish"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /orgs/{org}/repos/{repo}/requests [post]
func (h *PublishRequestHandler) Submit(c *gin.Context) {
	h.pathAction(c, h.requests.Submit, http.StatusCreated)
}

// Resend godoc
// @Summary Resend the approval email for the caller's pending request
// @Tags PublishRequests
// @Accept json
// @Produce json
// @Param org path string true "Organisation"
// @Param repo path string true "Repository"
// @Param payload body dto.PathRequest true "Pending path"
// @Success 200 {object} response.Envelope
// @Router /orgs/{org}/repos/{repo}/requests/resend [post]
func (h *PublishRequestHandler) Resend(c *gin.Context) {
	h.pathAction(c, h.requests.Resend, http.StatusOK)
}

// Approve godoc
// @Summary Publish a path and clear its pending requests
// @Tags PublishRequests
// @Accept json
// @Produce json
// @Param org path string true "Organisation"
// @Param repo path string true "Repository"
// @Param payload body dto.PathRequest true "Path to approve"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /orgs/{org}/repos/{repo}/requests/approve [post]
func (h *PublishRequestHandler) Approve(c *gin.Context) {
	h.pathAction(c, h.requests.Approve, http.StatusOK)
}

// Withdraw godoc
// @Summary Withdraw the caller's pending request
// @Tags PublishRequests
// @Accept json
// @Produce json
// @Param org path string true "Organisation"
// @Param repo path string true "Repository"
// @Param payload body dto.PathRequest true "Path to withdraw"
// @Success 200 {object} response.Envelope
// @Router /orgs/{org}/repos/{repo}/requests/withdraw [post]
func (h *PublishRequestHandler) Withdraw(c *gin.Context) {
	h.pathAction(c, h.requests.Withdraw, http.StatusOK)
}

// Reject godoc
// @Summary Reject a pending request with a reason
// @Tags PublishRequests
// @Accept json
// @Produce json
// @Param org path string true "Organisation"
// @Param repo path string true "Repository"
// @Param payload body dto.RejectRequest true "Rejection"
// @Success 200 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /orgs/{org}/repos/{repo}/requests/reject [post]
func (h *PublishRequestHandler) Reject(c *gin.Context) {
	var req dto.RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid reject payload"))
		return
	}
	org, repo := repoParams(c)
	result, err := h.requests.Reject(c.Request.Context(), org, repo, req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respondAction(c, result, http.StatusOK)
}

// BulkApprove godoc
// @Summary Publish many pending paths in one job
// @Tags PublishRequests
// @Accept json
// @Produce json
// @Param org path string true "Organisation"
// @Param repo path string true "Repository"
// @Param payload body dto.BulkApproveRequest true "Paths to publish"
// @Success 200 {object} response.Envelope
// @Success 207 {object} response.Envelope
// @Failure 504 {object} response.Envelope
// @Router /orgs/{org}/repos/{repo}/requests/bulk-approve [post]
func (h *PublishRequestHandler) BulkApprove(c *gin.Context) {
	if h.bulk == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrServiceNotConfigured, "bulk publish is not configured"))
		return
	}
	var req dto.BulkApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid bulk approve payload"))
		return
	}
	org, repo := repoParams(c)
	result, err := h.bulk.BulkApproveAll(c.Request.Context(), org, repo, req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	status := http.StatusOK
	if result.Skipped {
		middleware.SetMeta(c, "skipped", true)
	} else if len(result.Failed) > 0 {
		status = http.StatusMultiStatus
		middleware.SetMeta(c, "code", "PARTIAL_BULK_FAILURE")
	}
	response.JSON(c, status, result, middleware.ExtractMeta(c))
}

// Export godoc
// @Summary Download the pending request report
// @Tags PublishRequests
// @Produce text/csv
// @Produce application/pdf
// @Param org path string true "Organisation"
// @Param repo path string true "Repository"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /orgs/{org}/repos/{repo}/requests/export [get]
func (h *PublishRequestHandler) Export(c *gin.Context) {
	if h.export == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrServiceNotConfigured, "report export is not configured"))
		return
	}
	var query dto.ExportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	org, repo := repoParams(c)
	report, err := h.export.PendingReport(c.Request.Context(), org, repo, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, report.Filename, report.ContentType, report.Body)
}

// Approvers godoc
// @Summary Preview the approvers for a path
// @Tags PublishRequests
// @Produce json
// @Param org path string true "Organisation"
// @Param repo path string true "Repository"
// @Param path query string true "Content path"
// @Param refresh query bool false "Bypass the rule cache"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /orgs/{org}/repos/{repo}/approvers [get]
func (h *PublishRequestHandler) Approvers(c *gin.Context) {
	var query dto.ApproverPreviewQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	org, repo := repoParams(c)
	resolution, err := h.requests.PreviewApprovers(c.Request.Context(), org, repo, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, resolution)
}

// Decisions godoc
// @Summary List recorded publish decisions
// @Tags PublishRequests
// @Produce json
// @Param org path string true "Organisation"
// @Param repo path string true "Repository"
// @Param path query string false "Content path"
// @Param decision query string false "published, rejected or withdrawn"
// @Param limit query int false "Maximum rows (1-200)"
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /orgs/{org}/repos/{repo}/decisions [get]
func (h *PublishRequestHandler) Decisions(c *gin.Context) {
	var query dto.DecisionQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	org, repo := repoParams(c)
	decisions, err := h.requests.ListDecisions(c.Request.Context(), org, repo, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, decisions)
}

type pathActionFunc func(ctx context.Context, org, repo string, req dto.PathRequest, actor string) (*models.ActionResult, error)

func (h *PublishRequestHandler) pathAction(c *gin.Context, action pathActionFunc, status int) {
	var req dto.PathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid publish request payload"))
		return
	}
	org, repo := repoParams(c)
	result, err := action(c.Request.Context(), org, repo, req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respondAction(c, result, status)
}

func (h *PublishRequestHandler) respondAction(c *gin.Context, result *models.ActionResult, status int) {
	if result.Skipped {
		middleware.SetMeta(c, "skipped", true)
		status = http.StatusOK
	}
	response.JSON(c, status, result, middleware.ExtractMeta(c))
}
