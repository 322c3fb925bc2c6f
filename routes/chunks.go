package routes

import (
	"net/http"

	"knowledgebase-rag-service/models"
	"knowledgebase-rag-service/services"
	"knowledgebase-rag-service/utils"

	"github.com/gin-gonic/gin"
)

// SetupChunkRoutes registers direct chunk management endpoints. Chunks are
// write-once, so there is no update route.
func SetupChunkRoutes(router *gin.Engine, indexing *services.IndexingService, store services.ChunkStore) {
	chunks := router.Group("/chunks")

	chunks.POST("", func(c *gin.Context) {
		var req models.AddChunkRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		chunk, err := indexing.AddChunk(c.Request.Context(), req.Text, services.SourceMeta{
			SourceID: req.SourceID,
			Title:    req.Title,
		})
		if err != nil {
			utils.RespondWithPipelineError(c, err)
			return
		}
		c.JSON(http.StatusCreated, chunk)
	})

	chunks.GET("", func(c *gin.Context) {
		all, err := store.FindAll(c.Request.Context())
		if err != nil {
			utils.RespondWithPipelineError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": len(all), "chunks": all})
	})

	chunks.GET("/:id", func(c *gin.Context) {
		chunk, err := store.FindByChunkID(c.Request.Context(), c.Param("id"))
		if err != nil {
			utils.RespondWithPipelineError(c, err)
			return
		}
		if chunk == nil {
			utils.RespondWithNotFound(c, "Chunk not found")
			return
		}
		c.JSON(http.StatusOK, chunk)
	})

	chunks.DELETE("/:id", func(c *gin.Context) {
		deleted, err := store.DeleteByChunkID(c.Request.Context(), c.Param("id"))
		if err != nil {
			utils.RespondWithPipelineError(c, err)
			return
		}
		if deleted == 0 {
			utils.RespondWithNotFound(c, "Chunk not found")
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": deleted})
	})
}
