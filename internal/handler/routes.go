package handler

import "github.com/gin-gonic/gin"

// RegisterRepoRoutes mounts the workflow endpoints on a repository scoped group.
// optional guards public reads; required guards everything that mutates state
// or exposes requester data.
func RegisterRepoRoutes(group *gin.RouterGroup, h *PublishRequestHandler, optional, required gin.HandlerFunc) {
	reads := group.Group("", optional)
	reads.GET("/requests", h.List)
	reads.GET("/requests/find", h.Find)
	reads.GET("/requests/export", h.Export)
	reads.GET("/approvers", h.Approvers)

	writes := group.Group("", required)
	writes.GET("/decisions", h.Decisions)
	writes.POST("/requests", h.Submit)
	writes.POST("/requests/resend", h.Resend)
	writes.POST("/requests/approve", h.Approve)
	writes.POST("/requests/reject", h.Reject)
	writes.POST("/requests/withdraw", h.Withdraw)
	writes.POST("/requests/bulk-approve", h.BulkApprove)
}
