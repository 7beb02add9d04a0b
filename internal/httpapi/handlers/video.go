package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/learning-buddy/internal/video"
)

func (h *Handler) ListVideos(c *gin.Context) {
	vids, err := h.Videos.ListVideos(c.Request.Context())
	if err != nil {
		h.log().Error("list videos failed", "error", err)
		fail(c, http.StatusInternalServerError, 50004, "video store error")
		return
	}
	ok(c, gin.H{"videos": vids})
}

func queryInt(c *gin.Context, key string) (int, bool) {
	n, err := strconv.Atoi(c.Query(key))
	return n, err == nil
}

// GetChunkAt returns the chunk covering ?t= seconds; chunk is null in a gap.
func (h *Handler) GetChunkAt(c *gin.Context) {
	t, valid := queryInt(c, "t")
	if !valid || t < 0 {
		fail(c, http.StatusBadRequest, 10005, "t must be a non-negative integer")
		return
	}
	chunk, err := h.Videos.FindChunk(c.Request.Context(), c.Param("video_id"), t)
	if err != nil {
		h.log().Error("find chunk failed", "video_id", c.Param("video_id"), "t", t, "error", err)
		fail(c, http.StatusInternalServerError, 50004, "video store error")
		return
	}
	ok(c, gin.H{"chunk": chunk})
}

func (h *Handler) ListChunks(c *gin.Context) {
	from, okFrom := queryInt(c, "from")
	to, okTo := queryInt(c, "to")
	if !okFrom || !okTo {
		fail(c, http.StatusBadRequest, 10005, "from and to must be integers")
		return
	}
	chunks, err := h.Videos.FindSurrounding(c.Request.Context(), c.Param("video_id"), from, to)
	if err != nil {
		if errors.Is(err, video.ErrInvalidRange) {
			fail(c, http.StatusBadRequest, 10006, "from must not exceed to")
			return
		}
		h.log().Error("find chunks failed", "video_id", c.Param("video_id"), "error", err)
		fail(c, http.StatusInternalServerError, 50004, "video store error")
		return
	}
	ok(c, gin.H{"chunks": chunks})
}

// IngestVideo queues a transcript reload, or runs it inline without a broker.
func (h *Handler) IngestVideo(c *gin.Context) {
	videoID := c.Param("video_id")
	if h.Rabbit != nil {
		if err := h.Rabbit.PublishIngest(c.Request.Context(), videoID); err != nil {
			h.log().Error("publish ingest failed", "video_id", videoID, "error", err)
			fail(c, http.StatusInternalServerError, 50002, "enqueue failed")
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"code": 0, "message": "ok", "data": gin.H{"video_id": videoID, "queued": true}})
		return
	}

	rep, err := h.Ingester.Ingest(context.WithoutCancel(c.Request.Context()), videoID)
	if err != nil {
		h.log().Error("ingest failed", "video_id", videoID, "error", err)
		fail(c, http.StatusBadGateway, 50005, "ingest failed")
		return
	}
	ok(c, gin.H{"report": rep, "queued": false})
}
