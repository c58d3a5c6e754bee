package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/receipt"
	"lotledger/internal/infrastructure/storage/postgres"
	"lotledger/pkg/logger"
)

// ReceiptHandler handles receiving document requests.
type ReceiptHandler struct {
	*BaseHandler
	service *receipt.Service
	audit   *postgres.AuditService
}

// NewReceiptHandler creates a new receipt handler.
func NewReceiptHandler(base *BaseHandler, service *receipt.Service, audit *postgres.AuditService) *ReceiptHandler {
	return &ReceiptHandler{BaseHandler: base, service: service, audit: audit}
}

// Create handles POST /receipts.
func (h *ReceiptHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()
	var req receipt.CreateInput
	if !h.BindJSON(c, &req) {
		return
	}

	rec, err := h.service.Create(ctx, req)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.logAudit(c, rec.ID, postgres.AuditActionCreate, map[string]any{
		"number": rec.Number,
		"lines":  len(rec.Lines),
	})
	h.Created(c, rec)
}

// reconcileRequest carries cumulative actuals for one or more lines.
type reconcileRequest struct {
	Lines []receipt.LineActuals `json:"lines"`
}

// Reconcile handles POST /receipts/:id/reconcile.
func (h *ReceiptHandler) Reconcile(c *gin.Context) {
	ctx := c.Request.Context()
	receiptID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	var req reconcileRequest
	if !h.BindJSON(c, &req) {
		return
	}
	if len(req.Lines) == 0 {
		h.Error(c, apperror.NewValidation("lines is required"))
		return
	}

	rec, err := h.service.Reconcile(ctx, receiptID, req.Lines)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.logAudit(c, rec.ID, postgres.AuditActionReconcile, map[string]any{
		"number": rec.Number,
		"status": rec.Status.String(),
		"lines":  len(req.Lines),
	})
	h.OK(c, rec)
}

// lineActualsRequest carries cumulative actuals for one line; the line id
// comes from the URL.
type lineActualsRequest struct {
	ActualGood        types.Quantity `json:"actualGood"`
	ActualDamaged     types.Quantity `json:"actualDamaged"`
	Reason            string         `json:"reason,omitempty"`
	UnitPriceOverride *types.Money   `json:"unitPriceOverride,omitempty"`
}

// ReconcileLine handles POST /receipts/:id/lines/:lineId/reconcile.
func (h *ReceiptHandler) ReconcileLine(c *gin.Context) {
	ctx := c.Request.Context()
	receiptID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	lineID, ok := h.ParseID(c, "lineId")
	if !ok {
		return
	}

	var req lineActualsRequest
	if !h.BindJSON(c, &req) {
		return
	}

	rec, err := h.service.ReconcileLine(ctx, receiptID, receipt.LineActuals{
		LineID:            lineID,
		ActualGood:        req.ActualGood,
		ActualDamaged:     req.ActualDamaged,
		Reason:            req.Reason,
		UnitPriceOverride: req.UnitPriceOverride,
	})
	if err != nil {
		h.Error(c, err)
		return
	}

	h.logAudit(c, rec.ID, postgres.AuditActionReconcile, map[string]any{
		"number":  rec.Number,
		"status":  rec.Status.String(),
		"line_id": lineID,
	})
	h.OK(c, rec)
}

// Cancel handles POST /receipts/:id/cancel.
func (h *ReceiptHandler) Cancel(c *gin.Context) {
	ctx := c.Request.Context()
	receiptID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	if err := h.service.Cancel(ctx, receiptID); err != nil {
		h.Error(c, err)
		return
	}

	h.logAudit(c, receiptID, postgres.AuditActionCancel, nil)
	h.Success(c, "receipt cancelled")
}

// Get handles GET /receipts/:id.
func (h *ReceiptHandler) Get(c *gin.Context) {
	receiptID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	rec, err := h.service.Get(c.Request.Context(), receiptID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, rec)
}

// List handles GET /receipts.
func (h *ReceiptHandler) List(c *gin.Context) {
	filter := receipt.ListFilter{
		Limit:  h.ParseIntQuery(c, "limit", 100),
		Offset: h.ParseIntQuery(c, "offset", 0),
	}

	if supplierID := c.Query("supplierId"); supplierID != "" {
		if parsed, err := id.Parse(supplierID); err == nil {
			filter.SupplierID = &parsed
		}
	}
	if status := c.Query("status"); status != "" {
		if parsed, err := strconv.Atoi(status); err == nil {
			st := receipt.Status(parsed)
			filter.Status = &st
		}
	}

	receipts, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.ListOK(c, receipts, len(receipts), filter.Limit, filter.Offset)
}

// logAudit records the operation best-effort; a failed audit write never
// fails the request that already committed.
func (h *ReceiptHandler) logAudit(c *gin.Context, entityID id.ID, action postgres.AuditAction, changes map[string]any) {
	if h.audit == nil {
		return
	}
	ctx := c.Request.Context()
	if err := h.audit.LogChange(ctx, "receipt", entityID, action, changes); err != nil {
		logger.Warn(ctx, "audit log failed", "entity_id", entityID, "action", action, "error", err)
	}
}

// RegisterRoutes registers receipt routes.
func (h *ReceiptHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.POST("/:id/reconcile", h.Reconcile)
	rg.POST("/:id/lines/:lineId/reconcile", h.ReconcileLine)
	rg.POST("/:id/cancel", h.Cancel)
}
