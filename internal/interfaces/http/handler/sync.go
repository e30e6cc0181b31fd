package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/infrastructure/logger"
	"github.com/marketsync/backend/internal/infrastructure/scheduler"
	"github.com/marketsync/backend/internal/interfaces/http/dto"
)

// TriggerAPI marks jobs queued through the HTTP API
const TriggerAPI = "api"

// SyncRunner executes a sync request and waits for the summary
type SyncRunner interface {
	Run(ctx context.Context, req integration.SyncRequest) (*integration.SyncSummary, error)
}

// JobQueue runs sync requests in the background
type JobQueue interface {
	Submit(req integration.SyncRequest, trigger string) (*scheduler.SyncJob, error)
	GetJob(id uuid.UUID) (scheduler.SyncJob, error)
	GetJobHistory(limit int) []scheduler.SyncJob
	IsRunning() bool
}

// SyncResponse is a finished sync with its per-store results and totals
type SyncResponse struct {
	*integration.SyncSummary
	Totals integration.StoreSyncResult `json:"totals"`
}

// SyncHandler triggers token refreshes and order/fee syncs
type SyncHandler struct {
	BaseHandler
	runner SyncRunner
	queue  JobQueue
	logger *zap.Logger
}

// NewSyncHandler creates a SyncHandler. queue may be nil, in which case
// async requests are refused.
func NewSyncHandler(runner SyncRunner, queue JobQueue, logger *zap.Logger) *SyncHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncHandler{runner: runner, queue: queue, logger: logger}
}

// RegisterRoutes registers the sync routes under the API group
func (h *SyncHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/tokens/refresh", h.RefreshTokens)
	rg.POST("/tokens/refresh/:storeId", h.RefreshTokens)
	rg.POST("/orders/sync", h.SyncOrders)
	rg.POST("/orders/sync/:storeId", h.SyncOrders)
	rg.POST("/financial/sync", h.SyncFinancials)
	rg.POST("/financial/sync/:storeId", h.SyncFinancials)
	rg.GET("/jobs", h.ListJobs)
	rg.GET("/jobs/:id", h.GetJob)
}

// RefreshTokens godoc
// @Summary      Refresh store access tokens
// @Tags         sync
// @Accept       json
// @Produce      json
// @Param        storeId path string false "Store ID, all stores when omitted"
// @Param        request body dto.SyncRequest true "Sync request"
// @Success      200 {object} dto.Response
// @Router       /tokens/refresh/{storeId} [post]
func (h *SyncHandler) RefreshTokens(c *gin.Context) {
	h.trigger(c, integration.SyncKindTokens)
}

// SyncOrders godoc
// @Summary      Sync marketplace orders
// @Tags         sync
// @Accept       json
// @Produce      json
// @Param        storeId path string false "Store ID, all stores when omitted"
// @Param        request body dto.SyncRequest true "Sync request"
// @Success      200 {object} dto.Response
// @Success      202 {object} dto.Response
// @Router       /orders/sync/{storeId} [post]
func (h *SyncHandler) SyncOrders(c *gin.Context) {
	h.trigger(c, integration.SyncKindOrders)
}

// SyncFinancials godoc
// @Summary      Sync order fee data
// @Tags         sync
// @Accept       json
// @Produce      json
// @Param        storeId path string false "Store ID, all stores when omitted"
// @Param        request body dto.SyncRequest true "Sync request"
// @Success      200 {object} dto.Response
// @Success      202 {object} dto.Response
// @Router       /financial/sync/{storeId} [post]
func (h *SyncHandler) SyncFinancials(c *gin.Context) {
	h.trigger(c, integration.SyncKindFinancial)
}

// ListJobs returns the most recent background jobs
func (h *SyncHandler) ListJobs(c *gin.Context) {
	if h.queue == nil {
		h.Success(c, []scheduler.SyncJob{})
		return
	}
	var q struct {
		Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	if q.Limit == 0 {
		q.Limit = 20
	}
	h.Success(c, h.queue.GetJobHistory(q.Limit))
}

// GetJob returns one background job
func (h *SyncHandler) GetJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "invalid job id")
		return
	}
	if h.queue == nil {
		h.HandleError(c, scheduler.ErrJobNotFound)
		return
	}
	job, err := h.queue.GetJob(id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, job)
}

func (h *SyncHandler) trigger(c *gin.Context, kind integration.SyncKind) {
	var body dto.SyncRequest
	if err := bindSyncRequest(c, &body); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	req, err := body.ToDomain(kind, c.Param("storeId"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if body.Async {
		h.enqueue(c, req)
		return
	}

	ctx := c.Request.Context()
	if requestID := getRequestID(c); requestID != "" {
		ctx = logger.WithRunID(ctx, requestID)
	}
	summary, err := h.runner.Run(ctx, req)
	if err != nil {
		if summary != nil {
			h.handleErrorWithData(c, err, newSyncResponse(summary))
			return
		}
		h.HandleError(c, err)
		return
	}
	h.Success(c, newSyncResponse(summary))
}

func (h *SyncHandler) enqueue(c *gin.Context, req integration.SyncRequest) {
	if h.queue == nil {
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeUnavailable, "background sync is disabled")
		return
	}
	job, err := h.queue.Submit(req, TriggerAPI)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.logger.Info("Sync job queued",
		zap.String("job_id", job.ID.String()),
		zap.String("kind", string(req.Kind)),
		zap.String("marketplace", string(req.Marketplace)),
		zap.String("store_id", req.StoreID),
	)

	snapshot, err := h.queue.GetJob(job.ID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, snapshot)
}

// bindSyncRequest reads the JSON body, or the query string when there is no body
func bindSyncRequest(c *gin.Context, req *dto.SyncRequest) error {
	if c.Request.ContentLength == 0 {
		return c.ShouldBindQuery(req)
	}
	return c.ShouldBindJSON(req)
}

func newSyncResponse(summary *integration.SyncSummary) SyncResponse {
	return SyncResponse{SyncSummary: summary, Totals: summary.Totals()}
}
