package handler

import (
	"net/http"

	"github.com/clinicerp/backend/internal/infrastructure/persistence/access"
	"github.com/clinicerp/backend/internal/infrastructure/persistence/audit"
	"github.com/clinicerp/backend/internal/infrastructure/persistence/scope"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditHandler exposes stored audit trails. Only available when the
// database sink is enabled.
type AuditHandler struct {
	db       *gorm.DB
	registry *scope.Registry
	store    *audit.GormSink
}

// NewAuditHandler creates an audit handler backed by the database sink
func NewAuditHandler(db *gorm.DB, registry *scope.Registry, store *audit.GormSink) *AuditHandler {
	return &AuditHandler{db: db, registry: registry, store: store}
}

// Trail returns the audit trail of one entity, newest first. The entity is
// first resolved under the caller's scope; an entity the caller cannot see
// yields the same not-found as one that does not exist, so the trail never
// reveals other tenants' data or its existence. Tombstoned rows stay
// visible to callers whose scope covers them.
// GET /v1/audit/:entity_type/:entity_id
func (h *AuditHandler) Trail(c *gin.Context) {
	ac, ok := access.FromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	entityID, err := uuid.Parse(c.Param("entity_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entity id"})
		return
	}

	desc, ok := h.registry.LookupByName(c.Param("entity_type"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	var count int64
	err = h.db.WithContext(c.Request.Context()).
		Table(desc.Table).
		Scopes(desc.ScopeIncludeDeleted(ac)).
		Where("id = ?", entityID).
		Count(&count).Error
	if err != nil {
		respondError(c, err)
		return
	}
	if count == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	entries, err := h.store.FindByEntity(c.Request.Context(), desc.Name, entityID.String())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
