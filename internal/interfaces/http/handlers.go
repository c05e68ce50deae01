package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Ludentes/RooDemo-sub001/internal/domain"
	"github.com/Ludentes/RooDemo-sub001/pkg/logger"
)

// maxUploadSize caps a single export file at 64 MiB.
const maxUploadSize = 64 << 20

// DirectoryWatcher is the watch admin surface exposed over HTTP.
type DirectoryWatcher interface {
	Register(root string) error
	Unregister(root string) error
	List() map[string]time.Time
}

type Handler struct {
	service domain.IngestionService
	queue   domain.UpdateQueue
	watcher DirectoryWatcher
	logger  *logger.Logger
}

func NewHandler(service domain.IngestionService, queue domain.UpdateQueue, watcher DirectoryWatcher, logger *logger.Logger) *Handler {
	return &Handler{
		service: service,
		queue:   queue,
		watcher: watcher,
		logger:  logger,
	}
}

func (h *Handler) UploadFile(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Missing file field in multipart form",
		})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadSize+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to read uploaded file",
		})
		return
	}
	if len(data) > maxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": "File exceeds the upload size limit",
		})
		return
	}

	result, err := h.service.ProcessUpload(c.Request.Context(), header.Filename, data, domain.SourceUpload)
	if err != nil {
		h.renderError(c, err, "Failed to process file")
		return
	}

	c.JSON(http.StatusOK, result)
}

type directoryRequest struct {
	Path string `json:"path" binding:"required"`
}

func (h *Handler) ProcessDirectory(c *gin.Context) {
	var req directoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Request body must contain a path field",
		})
		return
	}

	result, err := h.service.ProcessDirectory(c.Request.Context(), req.Path)
	if err != nil {
		h.renderError(c, err, "Failed to process directory")
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetStatistics(c *gin.Context) {
	constituencyID := c.Param("constituencyId")

	granularity, ok := domain.ParseGranularity(c.Query("granularity"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid granularity. Must be one of hour, day, week, month",
		})
		return
	}

	from, ok := parseTimeParam(c, "from")
	if !ok {
		return
	}
	to, ok := parseTimeParam(c, "to")
	if !ok {
		return
	}

	stats, err := h.service.GetStatistics(c.Request.Context(), constituencyID, granularity, from, to)
	if err != nil {
		h.renderError(c, err, "Failed to retrieve statistics")
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) RefreshStatistics(c *gin.Context) {
	constituencyID := c.Param("constituencyId")

	err := h.queue.Enqueue(domain.UpdateTask{
		Trigger:        domain.TriggerManual,
		ConstituencyID: constituencyID,
	})
	if err != nil {
		if errors.Is(err, domain.ErrQueueFull) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "Update queue is full, try again later",
			})
			return
		}
		h.renderError(c, err, "Failed to schedule refresh")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":          "scheduled",
		"constituency_id": constituencyID,
	})
}

type watchRequest struct {
	Path string `json:"path" binding:"required"`
}

func (h *Handler) RegisterWatch(c *gin.Context) {
	var req watchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Request body must contain a path field",
		})
		return
	}

	if err := h.watcher.Register(req.Path); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "watching",
		"path":   req.Path,
	})
}

func (h *Handler) UnregisterWatch(c *gin.Context) {
	var req watchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Request body must contain a path field",
		})
		return
	}

	if err := h.watcher.Unregister(req.Path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "stopped",
		"path":   req.Path,
	})
}

func (h *Handler) ListWatches(c *gin.Context) {
	type watchEntry struct {
		Path  string    `json:"path"`
		Since time.Time `json:"since"`
	}

	entries := []watchEntry{}
	for path, since := range h.watcher.List() {
		entries = append(entries, watchEntry{Path: path, Since: since})
	}

	c.JSON(http.StatusOK, gin.H{
		"watches": entries,
	})
}

func (h *Handler) GetDeadTasks(c *gin.Context) {
	tasks := h.queue.DeadTasks()
	if tasks == nil {
		tasks = []domain.DeadTask{}
	}
	c.JSON(http.StatusOK, gin.H{
		"dead_tasks": tasks,
	})
}

func (h *Handler) GetHealth(c *gin.Context) {
	stats, err := h.getServiceStats(c)
	if err != nil {
		h.logger.Errorw("Health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":             "healthy",
		"total_transactions": stats["total_transactions"],
	})
}

func (h *Handler) GetReadiness(c *gin.Context) {
	if _, err := h.getServiceStats(c); err != nil {
		h.logger.Errorw("Readiness check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
	})
}

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.getServiceStats(c)
	if err != nil {
		h.logger.Errorw("Failed to get stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve statistics",
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// StatsProvider is implemented by services that expose operational
// counters beyond the core ingestion surface.
type StatsProvider interface {
	GetStats(ctx context.Context) (map[string]interface{}, error)
}

func (h *Handler) getServiceStats(c *gin.Context) (map[string]interface{}, error) {
	provider, ok := h.service.(StatsProvider)
	if !ok {
		return map[string]interface{}{}, nil
	}
	return provider.GetStats(c.Request.Context())
}

func (h *Handler) renderError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrConstituencyNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrMetadataExtraction),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrTransactionExtraction),
		errors.Is(err, domain.ErrDirectoryProcessing):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Errorw(fallback, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

func parseTimeParam(c *gin.Context, name string) (time.Time, bool) {
	value := c.Query(name)
	if value == "" {
		return time.Time{}, true
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid " + name + " parameter. Must be RFC3339",
		})
		return time.Time{}, false
	}
	return parsed, true
}
