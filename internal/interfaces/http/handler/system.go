package handler

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/infrastructure/scheduler"
	"github.com/marketsync/backend/internal/interfaces/http/dto"
)

// Pinger checks a dependency is reachable
type Pinger interface {
	Ping() error
}

// SchedulerStatus is the part of the scheduler the status endpoint reads
type SchedulerStatus interface {
	IsRunning() bool
	GetJobHistory(limit int) []scheduler.SyncJob
}

// SystemHandler serves health and status
type SystemHandler struct {
	BaseHandler
	name      string
	version   string
	db        Pinger
	scheduler SchedulerStatus
	startTime time.Time
}

// NewSystemHandler creates a SystemHandler. sched may be nil when scheduling is disabled.
func NewSystemHandler(name, version string, db Pinger, sched SchedulerStatus) *SystemHandler {
	return &SystemHandler{
		name:      name,
		version:   version,
		db:        db,
		scheduler: sched,
		startTime: time.Now(),
	}
}

// RegisterRoutes registers /health and /status; mount it at the server root
func (h *SystemHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/health", h.Health)
	rg.GET("/status", h.Status)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string `json:"status" example:"ok"`
	Database string `json:"database" example:"ok"`
}

// StatusResponse represents the service status response
type StatusResponse struct {
	Name         string                    `json:"name" example:"marketsync"`
	Version      string                    `json:"version" example:"1.0.0"`
	GoVersion    string                    `json:"go_version" example:"go1.25.5"`
	Uptime       string                    `json:"uptime" example:"1h30m45s"`
	Marketplaces []integration.Marketplace `json:"marketplaces"`
	Scheduler    SchedulerStatusResponse   `json:"scheduler"`
}

// SchedulerStatusResponse describes the background scheduler
type SchedulerStatusResponse struct {
	Enabled    bool                `json:"enabled"`
	Running    bool                `json:"running"`
	RecentJobs []scheduler.SyncJob `json:"recent_jobs"`
}

// Health godoc
// @Summary      Liveness and database reachability
// @Tags         system
// @Produce      json
// @Success      200 {object} dto.Response
// @Failure      503 {object} dto.Response
// @Router       /health [get]
func (h *SystemHandler) Health(c *gin.Context) {
	if h.db != nil {
		if err := h.db.Ping(); err != nil {
			resp := dto.NewErrorResponseWithRequestID(dto.ErrCodeUnavailable, "database unreachable", getRequestID(c))
			resp.Data = HealthResponse{Status: "degraded", Database: "unreachable"}
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
	}
	h.Success(c, HealthResponse{Status: "ok", Database: "ok"})
}

// Status godoc
// @Summary      Service version, uptime and scheduler state
// @Tags         system
// @Produce      json
// @Success      200 {object} dto.Response
// @Router       /status [get]
func (h *SystemHandler) Status(c *gin.Context) {
	status := StatusResponse{
		Name:         h.name,
		Version:      h.version,
		GoVersion:    runtime.Version(),
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		Marketplaces: integration.AllMarketplaces(),
		Scheduler:    SchedulerStatusResponse{RecentJobs: []scheduler.SyncJob{}},
	}
	if h.scheduler != nil {
		status.Scheduler.Enabled = true
		status.Scheduler.Running = h.scheduler.IsRunning()
		status.Scheduler.RecentJobs = h.scheduler.GetJobHistory(10)
	}
	h.Success(c, status)
}
