package v1

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edupgarcia/bulk-processing/internal/domain/entity"
)

const runsLimit = 20

type StatusReader interface {
	GetStatus(ctx context.Context, stage entity.Stage, path string) (entity.RunStatus, error)
}

type RunLister interface {
	ListRuns(ctx context.Context, path string, limit int) ([]entity.Run, error)
}

// HealthCheck reports an error when a dependency is unhealthy.
type HealthCheck func(ctx context.Context) error

type StatusHandler struct {
	Stage  entity.Stage
	Status StatusReader
	Runs   RunLister
	Checks map[string]HealthCheck
}

func NewStatusHandler(stage entity.Stage, status StatusReader, runs RunLister, checks map[string]HealthCheck) *StatusHandler {
	return &StatusHandler{Stage: stage, Status: status, Runs: runs, Checks: checks}
}

func (h *StatusHandler) Register(r gin.IRouter) {
	r.GET("/healthz", h.Health)
	api := r.Group("/api/v1")
	api.GET("/runs/:path", h.GetRuns)
}

type healthResponse struct {
	Status    string            `json:"status"`
	Stage     entity.Stage      `json:"stage"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

func (h *StatusHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.Checks))
	for name := range h.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := healthResponse{
		Status:    "healthy",
		Stage:     h.Stage,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  make(map[string]string, len(names)),
	}
	for _, name := range names {
		if err := h.Checks[name](ctx); err != nil {
			resp.Services[name] = "unhealthy: " + err.Error()
			resp.Status = "unhealthy"
			continue
		}
		resp.Services[name] = "healthy"
	}

	if resp.Status != "healthy" {
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type runView struct {
	ID          string           `json:"id"`
	Status      entity.RunStatus `json:"status"`
	Attempt     int              `json:"attempt"`
	Source      string           `json:"source"`
	Destination string           `json:"destination"`
	Objects     int              `json:"objects"`
	Skipped     int              `json:"skipped"`
	PublishedID string           `json:"published_id,omitempty"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func newRunView(r entity.Run) runView {
	return runView{
		ID:          r.ID.String(),
		Status:      r.Status,
		Attempt:     r.Attempt,
		Source:      r.SourceBucket + "/" + r.SourcePath,
		Destination: r.DestBucket + "/" + r.DestPath,
		Objects:     r.Objects,
		Skipped:     r.Skipped,
		PublishedID: r.PublishedID,
		Error:       r.Error,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func (h *StatusHandler) GetRuns(c *gin.Context) {
	path := c.Param("path")
	ctx := c.Request.Context()

	resp := gin.H{"stage": h.Stage, "path": path}
	found := false

	if h.Status != nil {
		status, err := h.Status.GetStatus(ctx, h.Stage, path)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if status != "" {
			resp["status"] = status
			found = true
		}
	}

	if h.Runs != nil {
		runs, err := h.Runs.ListRuns(ctx, path, runsLimit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		views := make([]runView, 0, len(runs))
		for _, r := range runs {
			if r.Stage != h.Stage {
				continue
			}
			views = append(views, newRunView(r))
		}
		if len(views) > 0 {
			found = true
			if _, ok := resp["status"]; !ok {
				resp["status"] = views[0].Status
			}
		}
		resp["runs"] = views
	}

	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no runs for path"})
		return
	}
	c.JSON(http.StatusOK, resp)
}
