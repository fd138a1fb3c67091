package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/content-approval-api/internal/models"
	appErrors "github.com/noah-isme/content-approval-api/pkg/errors"
	"github.com/noah-isme/content-approval-api/pkg/logger"
	"github.com/noah-isme/content-approval-api/pkg/response"
)

// ContextIdentityKey is the gin context key storing the resolved *models.Identity.
const ContextIdentityKey = "identity"

type identityResolver interface {
	Resolve(ctx context.Context, token string) (*models.Identity, error)
}

// RequireIdentity blocks the request unless the bearer token resolves to an email.
func RequireIdentity(resolver identityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing bearer token"))
			c.Abort()
			return
		}

		identity, err := resolver.Resolve(c.Request.Context(), token)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		if !identity.Authenticated() {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "token does not identify a user"))
			c.Abort()
			return
		}

		setIdentity(c, identity)
		c.Next()
	}
}

// OptionalIdentity attaches the identity when one resolves but never blocks.
func OptionalIdentity(resolver identityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Next()
			return
		}

		identity, err := resolver.Resolve(c.Request.Context(), token)
		if err != nil || !identity.Authenticated() {
			c.Next()
			return
		}

		setIdentity(c, identity)
		c.Next()
	}
}

// IdentityFromContext returns the caller, or nil when anonymous.
func IdentityFromContext(c *gin.Context) *models.Identity {
	value, exists := c.Get(ContextIdentityKey)
	if !exists {
		return nil
	}
	identity, ok := value.(*models.Identity)
	if !ok {
		return nil
	}
	return identity
}

func setIdentity(c *gin.Context, identity *models.Identity) {
	c.Set(ContextIdentityKey, identity)
	c.Set(logger.ActorContextKey, identity.Email)
}

func bearerToken(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
