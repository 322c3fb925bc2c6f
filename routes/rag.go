package routes

import (
	"net/http"
	"time"

	"knowledgebase-rag-service/internal/logger"
	"knowledgebase-rag-service/internal/queue"
	"knowledgebase-rag-service/internal/telemetry"
	"knowledgebase-rag-service/models"
	"knowledgebase-rag-service/services"
	"knowledgebase-rag-service/utils"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
)

// SetupRAGRoutes registers the indexing and query endpoints. The asynq client
// is optional; without it async indexing requests fall back to synchronous
// processing.
func SetupRAGRoutes(router *gin.Engine, indexing *services.IndexingService, rag *services.RAGService, status *services.StatusService, queueClient *asynq.Client, metrics *telemetry.Metrics) {
	localrag := router.Group("/localrag")

	localrag.POST("/index", func(c *gin.Context) {
		var req models.IndexFileRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		if req.Async && queueClient != nil {
			task, err := queue.NewIndexFileTask(req.Path)
			if err != nil {
				utils.RespondWithInternalError(c, "Failed to create indexing task", nil)
				return
			}
			info, err := queueClient.Enqueue(task)
			if err != nil {
				utils.RespondWithInternalError(c, "Failed to enqueue indexing task", gin.H{"error": err.Error()})
				return
			}
			logger.Info("indexing task enqueued", "task_id", info.ID, "path", req.Path)
			c.JSON(http.StatusAccepted, gin.H{"task_id": info.ID, "queue": info.Queue})
			return
		}

		result, err := indexing.IndexFile(c.Request.Context(), req.Path)
		if err != nil {
			utils.RespondWithPipelineError(c, err)
			return
		}
		if metrics != nil {
			metrics.RecordChunksIndexed(result.ChunkCount, req.Path)
		}
		c.JSON(http.StatusOK, result)
	})

	localrag.POST("/index-text", func(c *gin.Context) {
		var req models.IndexTextRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		if req.Async && queueClient != nil {
			task, err := queue.NewIndexTextTask(req.SourceID, req.Title, req.Text)
			if err != nil {
				utils.RespondWithInternalError(c, "Failed to create indexing task", nil)
				return
			}
			info, err := queueClient.Enqueue(task)
			if err != nil {
				utils.RespondWithInternalError(c, "Failed to enqueue indexing task", gin.H{"error": err.Error()})
				return
			}
			logger.Info("indexing task enqueued", "task_id", info.ID, "source_id", req.SourceID)
			c.JSON(http.StatusAccepted, gin.H{"task_id": info.ID, "queue": info.Queue})
			return
		}

		result, err := indexing.IndexDocument(c.Request.Context(), req.Text, services.SourceMeta{
			SourceID: req.SourceID,
			Title:    req.Title,
		})
		if err != nil {
			utils.RespondWithPipelineError(c, err)
			return
		}
		if metrics != nil {
			metrics.RecordChunksIndexed(result.ChunkCount, req.SourceID)
		}
		c.JSON(http.StatusOK, result)
	})

	localrag.POST("/query", func(c *gin.Context) {
		var req models.QueryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		start := time.Now()
		result, err := rag.Answer(c.Request.Context(), req.Question)
		if metrics != nil {
			metrics.RecordQuery(time.Since(start).Seconds(), len(result.Sources), err == nil)
		}
		if err != nil {
			utils.RespondWithPipelineError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	})

	localrag.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, status.Status(c.Request.Context()))
	})

	localrag.DELETE("/stale-chunks", func(c *gin.Context) {
		deleted, err := indexing.PurgeStaleChunks(c.Request.Context())
		if err != nil {
			utils.RespondWithPipelineError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": deleted})
	})
}
