package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/learning-buddy/internal/common"
	"github.com/suPer8Hu/learning-buddy/internal/config"
	"github.com/suPer8Hu/learning-buddy/internal/httpapi/handlers"
	"github.com/suPer8Hu/learning-buddy/internal/httpapi/middleware"
)

// NewRouter mounts the API. metricsHandler may be nil.
func NewRouter(cfg config.Config, h *handlers.Handler, metricsHandler http.Handler) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(h.Log))
	r.Use(middleware.RequestLogger(h.Log))
	r.Use(middleware.CORS(cfg.CORSAllow))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/ping", h.Ping)
	if metricsHandler != nil {
		r.GET("/metrics", gin.WrapH(metricsHandler))
	}

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))

	// Chat
	authGroup.POST("/chat/sessions", h.CreateChatSession)
	authGroup.POST("/chat/messages", h.SendChatMessage)
	authGroup.GET("/chat/sessions/:session_id/messages", h.ListChatMessages)
	authGroup.POST("/chat/messages/stream", h.SendChatMessageStream)
	authGroup.POST("/chat/messages/async", h.SendChatMessageAsync)
	authGroup.GET("/chat/jobs/:job_id", h.GetChatJob)

	// Memory
	authGroup.GET("/memory/entities", h.ListEntities)
	authGroup.POST("/memory/entities", h.CreateEntity)
	authGroup.POST("/memory/entities/observations", h.AddObservations)
	authGroup.GET("/memory/relations", h.ListRelations)
	authGroup.POST("/memory/relations", h.CreateRelation)
	authGroup.GET("/memory/context", h.MemoryContext)

	// Videos
	authGroup.GET("/videos", h.ListVideos)
	authGroup.GET("/videos/:video_id/chunk", h.GetChunkAt)
	authGroup.GET("/videos/:video_id/chunks", h.ListChunks)
	authGroup.POST("/admin/videos/:video_id/ingest", h.IngestVideo)

	return r
}
