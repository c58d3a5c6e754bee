package handlers

import (
	"github.com/gin-gonic/gin"

	"lotledger/internal/core/id"
	"lotledger/internal/domain/stockcount"
	"lotledger/internal/infrastructure/storage/postgres"
	"lotledger/pkg/logger"
)

// StockCountHandler handles stock count requests.
type StockCountHandler struct {
	*BaseHandler
	service *stockcount.Service
	audit   *postgres.AuditService
}

// NewStockCountHandler creates a new stock count handler.
func NewStockCountHandler(base *BaseHandler, service *stockcount.Service, audit *postgres.AuditService) *StockCountHandler {
	return &StockCountHandler{BaseHandler: base, service: service, audit: audit}
}

// Create handles POST /stock-counts.
func (h *StockCountHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()
	var req stockcount.CreateInput
	if !h.BindJSON(c, &req) {
		return
	}

	count, err := h.service.Create(ctx, req)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.logAudit(c, count.ID, postgres.AuditActionCreate, map[string]any{
		"number": count.Number,
		"lines":  len(count.Lines),
	})
	h.Created(c, count)
}

// Submit handles POST /stock-counts/:id/submit.
func (h *StockCountHandler) Submit(c *gin.Context) {
	ctx := c.Request.Context()
	countID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	count, err := h.service.Submit(ctx, countID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, count)
}

// Approve handles POST /stock-counts/:id/approve.
func (h *StockCountHandler) Approve(c *gin.Context) {
	ctx := c.Request.Context()
	countID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	count, err := h.service.Approve(ctx, countID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.logAudit(c, count.ID, postgres.AuditActionApprove, map[string]any{
		"number": count.Number,
		"lines":  len(count.Lines),
	})
	h.OK(c, count)
}

// Get handles GET /stock-counts/:id.
func (h *StockCountHandler) Get(c *gin.Context) {
	countID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	count, err := h.service.Get(c.Request.Context(), countID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, count)
}

// List handles GET /stock-counts.
func (h *StockCountHandler) List(c *gin.Context) {
	filter := stockcount.ListFilter{
		Limit:  h.ParseIntQuery(c, "limit", 100),
		Offset: h.ParseIntQuery(c, "offset", 0),
	}

	if status := c.Query("status"); status != "" {
		st := stockcount.Status(status)
		filter.Status = &st
	}

	counts, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.ListOK(c, counts, len(counts), filter.Limit, filter.Offset)
}

func (h *StockCountHandler) logAudit(c *gin.Context, entityID id.ID, action postgres.AuditAction, changes map[string]any) {
	if h.audit == nil {
		return
	}
	ctx := c.Request.Context()
	if err := h.audit.LogChange(ctx, "stock_count", entityID, action, changes); err != nil {
		logger.Warn(ctx, "audit log failed", "entity_id", entityID, "action", action, "error", err)
	}
}

// RegisterRoutes registers stock count routes.
func (h *StockCountHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.POST("/:id/submit", h.Submit)
	rg.POST("/:id/approve", h.Approve)
}
