package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/marketsync/backend/internal/application/marketsync"
	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/interfaces/http/dto"
)

// StatsReader reports on synced orders and fees
type StatsReader interface {
	OrderStats(ctx context.Context, marketplace integration.Marketplace, storeID string) ([]marketsync.StoreOrderStats, error)
	FinancialStats(ctx context.Context, marketplace integration.Marketplace, storeID string) ([]marketsync.StoreFinancialStats, error)
	PendingFinancial(ctx context.Context, marketplace integration.Marketplace, storeID string, window integration.TimeWindow) ([]marketsync.PendingOrder, error)
}

// StatsHandler serves the read-only stats endpoints
type StatsHandler struct {
	BaseHandler
	stats StatsReader
	now   func() time.Time
}

// NewStatsHandler creates a StatsHandler
func NewStatsHandler(stats StatsReader, clock integration.Clock) *StatsHandler {
	h := &StatsHandler{stats: stats, now: time.Now}
	if clock != nil {
		h.now = clock.Now
	}
	return h
}

// RegisterRoutes registers the stats routes under the API group
func (h *StatsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/orders/stats", h.OrderStats)
	rg.GET("/financial/stats", h.FinancialStats)
	rg.GET("/financial/pending", h.PendingFinancial)
}

// OrderStats godoc
// @Summary      Order counts by status per store
// @Tags         stats
// @Produce      json
// @Param        marketplace query string true "shopee or mercado_livre"
// @Param        store_id query string false "Store ID"
// @Success      200 {object} dto.Response
// @Router       /orders/stats [get]
func (h *StatsHandler) OrderStats(c *gin.Context) {
	var q dto.StatsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	stats, err := h.stats.OrderStats(c.Request.Context(), integration.Marketplace(q.Marketplace), q.Target())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}

// FinancialStats godoc
// @Summary      Fee coverage and fee totals per store
// @Tags         stats
// @Produce      json
// @Param        marketplace query string true "shopee or mercado_livre"
// @Param        store_id query string false "Store ID"
// @Success      200 {object} dto.Response
// @Router       /financial/stats [get]
func (h *StatsHandler) FinancialStats(c *gin.Context) {
	var q dto.StatsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	stats, err := h.stats.FinancialStats(c.Request.Context(), integration.Marketplace(q.Marketplace), q.Target())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}

// PendingFinancial godoc
// @Summary      Orders still waiting for fee data
// @Tags         stats
// @Produce      json
// @Param        marketplace query string true "shopee or mercado_livre"
// @Param        store_id query string false "Store ID"
// @Param        preset query string false "24h, week or month"
// @Success      200 {object} dto.Response
// @Router       /financial/pending [get]
func (h *StatsHandler) PendingFinancial(c *gin.Context) {
	var q dto.StatsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	window, err := q.Window(h.now().UTC())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	pending, err := h.stats.PendingFinancial(c.Request.Context(), integration.Marketplace(q.Marketplace), q.Target(), window)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, pending)
}
