package handlers

import (
	"github.com/gin-gonic/gin"

	"lotledger/internal/domain/damage"
	"lotledger/internal/infrastructure/http/v1/dto"
)

// DamageHandler handles damage tracking requests.
type DamageHandler struct {
	*BaseHandler
	service *damage.Service
}

// NewDamageHandler creates a new damage handler.
func NewDamageHandler(base *BaseHandler, service *damage.Service) *DamageHandler {
	return &DamageHandler{BaseHandler: base, service: service}
}

// Pending handles GET /damage/pending.
func (h *DamageHandler) Pending(c *gin.Context) {
	summary, err := h.service.PendingSummary(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"items": summary, "count": len(summary)})
}

// CheckThresholds handles POST /damage/check-thresholds.
// Sweeps pending damage and creates supplier return orders for every
// supplier/product group that crossed the return threshold.
func (h *DamageHandler) CheckThresholds(c *gin.Context) {
	orderIDs, err := h.service.CheckThresholds(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}

	ids := make([]string, 0, len(orderIDs))
	for _, orderID := range orderIDs {
		ids = append(ids, orderID.String())
	}
	h.OK(c, dto.ThresholdCheckResponse{
		ReturnOrderIDs: ids,
		OrdersCreated:  len(ids),
	})
}

// RegisterRoutes registers damage routes.
func (h *DamageHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/pending", h.Pending)
	rg.POST("/check-thresholds", h.CheckThresholds)
}
