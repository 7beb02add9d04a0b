package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/learning-buddy/internal/chat"
	"github.com/suPer8Hu/learning-buddy/internal/common"
	"github.com/suPer8Hu/learning-buddy/internal/httpapi/middleware"
	"github.com/suPer8Hu/learning-buddy/internal/logger"
	"github.com/suPer8Hu/learning-buddy/internal/memory"
	"github.com/suPer8Hu/learning-buddy/internal/video"
)

// Enqueuer hands work to the background worker.
type Enqueuer interface {
	PublishJob(ctx context.Context, jobID string) error
	PublishIngest(ctx context.Context, videoID string) error
}

type Handler struct {
	Log      *logger.Logger
	ChatSvc  *chat.Service
	Memory   *memory.Service
	Videos   *video.Locator
	Ingester *video.Ingester
	// Rabbit is nil when no broker is configured; queued work then runs in
	// process.
	Rabbit Enqueuer
}

func (h *Handler) log() *logger.Logger {
	if h.Log == nil {
		return logger.NewNop()
	}
	return h.Log
}

func ok(c *gin.Context, data any) { common.OK(c, data) }

func fail(c *gin.Context, httpStatus int, code int, msg string) {
	common.Fail(c, httpStatus, code, msg)
}

func userIDFromContext(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}

func (h *Handler) Ping(c *gin.Context) {
	ok(c, gin.H{"pong": true})
}
