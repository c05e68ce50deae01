package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Ludentes/RooDemo-sub001/internal/domain"
	"github.com/Ludentes/RooDemo-sub001/pkg/logger"
)

func NewRouter(service domain.IngestionService, queue domain.UpdateQueue, watcher DirectoryWatcher, requestTimeout time.Duration, logger *logger.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(),
		TimeoutMiddleware(requestTimeout),
		RateLimitMiddleware(),
	)

	handler := NewHandler(service, queue, watcher, logger)

	router.GET("/health", handler.GetHealth)
	router.GET("/ready", handler.GetReadiness)

	api := router.Group("/api")
	{
		api.POST("/files/upload", handler.UploadFile)
		api.POST("/files/directory", handler.ProcessDirectory)

		api.GET("/statistics/:constituencyId", handler.GetStatistics)
		api.POST("/statistics/:constituencyId/refresh", handler.RefreshStatistics)

		api.POST("/watch", handler.RegisterWatch)
		api.DELETE("/watch", handler.UnregisterWatch)
		api.GET("/watch", handler.ListWatches)

		api.GET("/tasks/dead", handler.GetDeadTasks)
	}

	router.GET("/stats", handler.GetStats)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
