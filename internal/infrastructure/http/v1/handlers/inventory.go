package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"lotledger/internal/core/apperror"
	"lotledger/internal/domain/ledger"
	"lotledger/internal/domain/lot"
	"lotledger/internal/infrastructure/http/v1/dto"
)

// InventoryHandler handles balance, ledger, and lot queries.
type InventoryHandler struct {
	*BaseHandler
	ledger *ledger.Service
	lots   *lot.Service
}

// NewInventoryHandler creates a new inventory query handler.
func NewInventoryHandler(base *BaseHandler, ledgerSvc *ledger.Service, lots *lot.Service) *InventoryHandler {
	return &InventoryHandler{BaseHandler: base, ledger: ledgerSvc, lots: lots}
}

// Balance handles GET /inventory/:productId/balance.
// The optional at query parameter (RFC3339) returns the balance as of that
// point in time, reconstructed from the ledger.
func (h *InventoryHandler) Balance(c *gin.Context) {
	ctx := c.Request.Context()
	productID, ok := h.ParseID(c, "productId")
	if !ok {
		return
	}

	resp := dto.BalanceResponse{ProductID: productID.String()}

	if at := c.Query("at"); at != "" {
		parsed, err := time.Parse(time.RFC3339, at)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid at parameter, expected RFC3339"))
			return
		}
		balance, err := h.ledger.GetBalanceAt(ctx, productID, parsed)
		if err != nil {
			h.Error(c, err)
			return
		}
		resp.Balance = balance
		resp.At = &parsed
		h.OK(c, resp)
		return
	}

	balance, err := h.ledger.GetBalance(ctx, productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	resp.Balance = balance
	h.OK(c, resp)
}

// Ledger handles GET /inventory/:productId/ledger.
func (h *InventoryHandler) Ledger(c *gin.Context) {
	ctx := c.Request.Context()
	productID, ok := h.ParseID(c, "productId")
	if !ok {
		return
	}

	filter := ledger.Filter{
		Limit:  h.ParseIntQuery(c, "limit", 200),
		Offset: h.ParseIntQuery(c, "offset", 0),
	}
	if from := c.Query("from"); from != "" {
		if parsed, err := time.Parse(time.RFC3339, from); err == nil {
			filter.From = &parsed
		}
	}
	if to := c.Query("to"); to != "" {
		if parsed, err := time.Parse(time.RFC3339, to); err == nil {
			filter.To = &parsed
		}
	}

	entries, err := h.ledger.GetLedger(ctx, productID, filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.ListOK(c, entries, len(entries), filter.Limit, filter.Offset)
}

// Lots handles GET /inventory/:productId/lots.
func (h *InventoryHandler) Lots(c *gin.Context) {
	ctx := c.Request.Context()
	productID, ok := h.ParseID(c, "productId")
	if !ok {
		return
	}

	lots, remaining, err := h.lots.Snapshot(ctx, productID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, gin.H{
		"productId": productID.String(),
		"lots":      lots,
		"remaining": remaining,
	})
}

// RegisterRoutes registers inventory query routes.
func (h *InventoryHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/:productId/balance", h.Balance)
	rg.GET("/:productId/ledger", h.Ledger)
	rg.GET("/:productId/lots", h.Lots)
}
