package handlers

import (
	"github.com/gin-gonic/gin"

	"lotledger/internal/core/id"
	"lotledger/internal/domain/allocation"
	"lotledger/internal/infrastructure/storage/postgres"
	"lotledger/pkg/logger"
)

// AllocationHandler handles allocation order requests.
type AllocationHandler struct {
	*BaseHandler
	service *allocation.Service
	audit   *postgres.AuditService
}

// NewAllocationHandler creates a new allocation order handler.
func NewAllocationHandler(base *BaseHandler, service *allocation.Service, audit *postgres.AuditService) *AllocationHandler {
	return &AllocationHandler{BaseHandler: base, service: service, audit: audit}
}

// Create handles POST /allocations.
func (h *AllocationHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()
	var req allocation.CreateInput
	if !h.BindJSON(c, &req) {
		return
	}

	order, err := h.service.Create(ctx, req)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.logAudit(c, order.ID, postgres.AuditActionCreate, map[string]any{
		"number": order.Number,
		"lines":  len(order.Lines),
	})
	h.Created(c, order)
}

// AddLine handles POST /allocations/:id/lines.
func (h *AllocationHandler) AddLine(c *gin.Context) {
	ctx := c.Request.Context()
	orderID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	var req allocation.LineInput
	if !h.BindJSON(c, &req) {
		return
	}

	line, err := h.service.AddLine(ctx, orderID, req)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, line)
}

// Complete handles POST /allocations/:id/complete.
func (h *AllocationHandler) Complete(c *gin.Context) {
	ctx := c.Request.Context()
	orderID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	order, err := h.service.Complete(ctx, orderID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.logAudit(c, order.ID, postgres.AuditActionComplete, map[string]any{
		"number": order.Number,
		"lines":  len(order.Lines),
	})
	h.OK(c, order)
}

// Cancel handles POST /allocations/:id/cancel.
func (h *AllocationHandler) Cancel(c *gin.Context) {
	ctx := c.Request.Context()
	orderID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	if err := h.service.Cancel(ctx, orderID); err != nil {
		h.Error(c, err)
		return
	}

	h.logAudit(c, orderID, postgres.AuditActionCancel, nil)
	h.Success(c, "allocation order cancelled")
}

// Get handles GET /allocations/:id.
func (h *AllocationHandler) Get(c *gin.Context) {
	orderID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	order, err := h.service.Get(c.Request.Context(), orderID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, order)
}

// List handles GET /allocations.
func (h *AllocationHandler) List(c *gin.Context) {
	filter := allocation.ListFilter{
		Limit:  h.ParseIntQuery(c, "limit", 100),
		Offset: h.ParseIntQuery(c, "offset", 0),
	}

	if kind := c.Query("kind"); kind != "" {
		k := allocation.Kind(kind)
		filter.Kind = &k
	}
	if status := c.Query("status"); status != "" {
		st := allocation.Status(status)
		filter.Status = &st
	}

	orders, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.ListOK(c, orders, len(orders), filter.Limit, filter.Offset)
}

func (h *AllocationHandler) logAudit(c *gin.Context, entityID id.ID, action postgres.AuditAction, changes map[string]any) {
	if h.audit == nil {
		return
	}
	ctx := c.Request.Context()
	if err := h.audit.LogChange(ctx, "allocation_order", entityID, action, changes); err != nil {
		logger.Warn(ctx, "audit log failed", "entity_id", entityID, "action", action, "error", err)
	}
}

// RegisterRoutes registers allocation order routes.
func (h *AllocationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.POST("/:id/lines", h.AddLine)
	rg.POST("/:id/complete", h.Complete)
	rg.POST("/:id/cancel", h.Cancel)
}
