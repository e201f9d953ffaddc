// Package middleware provides the gin middleware chain that turns incoming
// requests into authenticated, logged, access-scoped calls.
package middleware

import (
	"net/http"
	"strings"

	"github.com/clinicerp/backend/internal/infrastructure/auth"
	"github.com/clinicerp/backend/internal/infrastructure/logger"
	"github.com/clinicerp/backend/internal/infrastructure/persistence/access"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestID attaches a request ID and a request-scoped logger to the
// context, generating an ID when the client did not send one.
func RequestID(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		ctx, _ := logger.WithRequestID(c.Request.Context(), log, id)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// Authenticate verifies the bearer token and installs the resulting access
// context on the request. Requests without a valid token are rejected.
func Authenticate(tokens *auth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		claims, err := tokens.Parse(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		principal, err := claims.Principal()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token claims"})
			return
		}

		ctx := c.Request.Context()
		log := logger.FromContext(ctx)
		ctx, log = logger.WithUserID(ctx, log, principal.ActorID.String())
		ctx, _ = logger.WithTenantID(ctx, log, principal.TenantID.String())
		ctx = access.WithContext(ctx, access.New(principal))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
