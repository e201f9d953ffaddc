// Package router assembles the HTTP surface
package router

import (
	"net/http"

	"github.com/clinicerp/backend/internal/infrastructure/auth"
	"github.com/clinicerp/backend/internal/interfaces/http/handler"
	"github.com/clinicerp/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// Handlers collects the endpoint implementations the router mounts
type Handlers struct {
	Patient *handler.PatientHandler
	Audit   *handler.AuditHandler // nil when the database sink is disabled
}

// New builds the gin engine with the full middleware chain and all routes.
// The otelgin middleware opens the server span the context logger and the
// otelgorm plugin correlate against.
func New(service string, log *zap.Logger, tokens *auth.TokenService, h Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(service))
	r.Use(middleware.RequestID(log))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")
	v1.Use(middleware.Authenticate(tokens))
	{
		patients := v1.Group("/patients")
		{
			patients.GET("", h.Patient.List)
			patients.POST("", h.Patient.Create)
			patients.GET("/:id", h.Patient.Get)
			patients.PUT("/:id", h.Patient.Update)
			patients.DELETE("/:id", h.Patient.Delete)
			patients.POST("/:id/restore", h.Patient.Restore)
		}

		if h.Audit != nil {
			v1.GET("/audit/:entity_type/:entity_id", h.Audit.Trail)
		}
	}

	return r
}
