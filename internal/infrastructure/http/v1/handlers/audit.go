package handlers

import (
	"github.com/gin-gonic/gin"

	"lotledger/internal/core/apperror"
	"lotledger/internal/infrastructure/storage/postgres"
)

// auditedEntityTypes limits history queries to entities the API writes.
var auditedEntityTypes = map[string]bool{
	"receipt":          true,
	"allocation_order": true,
	"stock_count":      true,
}

// AuditHandler exposes audit history for documents.
type AuditHandler struct {
	*BaseHandler
	audit *postgres.AuditService
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(base *BaseHandler, audit *postgres.AuditService) *AuditHandler {
	return &AuditHandler{BaseHandler: base, audit: audit}
}

// History handles GET /audit/:entityType/:id.
func (h *AuditHandler) History(c *gin.Context) {
	entityType := c.Param("entityType")
	if !auditedEntityTypes[entityType] {
		h.Error(c, apperror.NewValidation("unknown entity type").WithDetail("entity_type", entityType))
		return
	}

	entityID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	limit := h.ParseIntQuery(c, "limit", 50)

	entries, err := h.audit.GetEntityHistory(c.Request.Context(), entityType, entityID, limit)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		items = append(items, gin.H{
			"id":        e.ID.String(),
			"action":    e.Action,
			"actorId":   e.ActorID,
			"changes":   e.Changes,
			"createdAt": e.CreatedAt,
		})
	}
	h.ListOK(c, items, len(items), limit, 0)
}

// RegisterRoutes registers audit routes.
func (h *AuditHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/:entityType/:id", h.History)
}
