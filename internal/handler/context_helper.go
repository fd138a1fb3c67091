package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/content-approval-api/internal/middleware"
)

// actorFromContext returns the caller's email, or "" when anonymous.
func actorFromContext(c *gin.Context) string {
	identity := middleware.IdentityFromContext(c)
	if !identity.Authenticated() {
		return ""
	}
	return identity.Email
}

func repoParams(c *gin.Context) (string, string) {
	return c.Param("org"), c.Param("repo")
}
