package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/learning-buddy/internal/chat"
	"gorm.io/gorm"
)

type createSessionReq struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

func (h *Handler) CreateChatSession(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req createSessionReq
	_ = c.ShouldBindJSON(&req) // allow empty {}

	sess, err := h.ChatSvc.CreateSession(c.Request.Context(), uid, req.Provider, req.Model)
	if err != nil {
		h.log().Error("create session failed", "user_id", uid, "error", err)
		fail(c, http.StatusInternalServerError, 50001, "failed to create session")
		return
	}

	ok(c, gin.H{"session_id": sess.SessionID})
}

type sendMessageReq struct {
	SessionID string `json:"session_id" binding:"required"`
	Message   string `json:"message" binding:"required"`
	VideoID   string `json:"video_id"`
	Timestamp *int   `json:"timestamp"`
}

func (r sendMessageReq) videoContext() *chat.VideoContext {
	if strings.TrimSpace(r.VideoID) == "" || r.Timestamp == nil {
		return nil
	}
	return &chat.VideoContext{VideoID: strings.TrimSpace(r.VideoID), Timestamp: *r.Timestamp}
}

func (h *Handler) SendChatMessage(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	reply, err := h.ChatSvc.SendMessage(c.Request.Context(), uid, req.SessionID, req.Message, req.videoContext())
	if err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			fail(c, http.StatusNotFound, 40004, "session not found")
			return
		}
		h.log().Error("send message failed", "user_id", uid, "session_id", req.SessionID, "error", err)
		fail(c, http.StatusBadRequest, 40001, "failed to send message")
		return
	}

	ok(c, gin.H{
		"session_id": req.SessionID,
		"reply":      reply.Content,
		"message_id": reply.MessageID,
		"degraded":   reply.Degraded,
		"concepts":   reply.Concepts,
	})
}

func (h *Handler) ListChatMessages(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	sessionID := c.Param("session_id")
	if err := h.ChatSvc.ValidateSessionOwner(c.Request.Context(), uid, sessionID); err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			fail(c, http.StatusNotFound, 40004, "session not found")
			return
		}
		fail(c, http.StatusInternalServerError, 50002, "failed to list messages")
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	beforeIDStr := c.Query("before_id")
	var beforeID uint64
	if beforeIDStr != "" {
		if n, err := strconv.ParseUint(beforeIDStr, 10, 64); err == nil {
			beforeID = n
		}
	}

	msgs, err := h.ChatSvc.ListMessages(c.Request.Context(), uid, sessionID, limit, beforeID)
	if err != nil {
		fail(c, http.StatusInternalServerError, 50002, "failed to list messages")
		return
	}

	var nextBeforeID uint64
	if len(msgs) > 0 {
		nextBeforeID = msgs[len(msgs)-1].ID
	}

	ok(c, gin.H{
		"messages":       msgs,
		"next_before_id": nextBeforeID,
	})
}

func (h *Handler) SendChatMessageStream(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	// SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // helpful if behind nginx

	// avoid gin writing a JSON response later
	c.Status(http.StatusOK)

	ctx := c.Request.Context()
	chunks, done, msgIDCh, errs := h.ChatSvc.SendMessageStream(ctx, uid, req.SessionID, req.Message, req.videoContext())

	// heartbeat ticker (keeps connections alive)
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		// can't stream
		fmt.Fprintf(c.Writer, "event: error\ndata: flusher not supported\n\n")
		return
	}

	writeJSON := func(event string, payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			// last-resort: send a simple error that won't break SSE framing
			fmt.Fprintf(c.Writer, "event: error\ndata: {\"message\":\"json marshal failed\"}\n\n")
			flusher.Flush()
			return
		}
		if event != "" {
			fmt.Fprintf(c.Writer, "event: %s\n", event)
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", string(b))
		flusher.Flush()
	}

	for {
		select {
		case ch, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			writeJSON("chunk", gin.H{
				"type":  "chunk",
				"delta": ch,
			})

		case <-ticker.C:
			writeJSON("ping", gin.H{
				"type": "ping",
				"ts":   time.Now().Unix(),
			})

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err == nil {
				continue
			}
			if errors.Is(err, chat.ErrSessionNotFound) {
				writeJSON("error", gin.H{
					"type":    "error",
					"message": "session not found",
				})
				return
			}
			writeJSON("error", gin.H{
				"type":    "error",
				"message": err.Error(),
			})
			return

		case <-done:
			if chunks != nil {
				// drain what the producer buffered before closing
				for ch := range chunks {
					writeJSON("chunk", gin.H{"type": "chunk", "delta": ch})
				}
			}
			if errs != nil {
				if err := <-errs; err != nil {
					writeJSON("error", gin.H{"type": "error", "message": err.Error()})
					return
				}
			}
			var mid uint64
			select {
			case mid = <-msgIDCh:
			default:
			}
			writeJSON("done", gin.H{
				"type":       "done",
				"message_id": mid,
			})
			return

		case <-ctx.Done():
			return
		}
	}
}

func (h *Handler) SendChatMessageAsync(c *gin.Context) {
	var req sendMessageReq

	uid, okk := userIDFromContext(c)
	if !okk {
		fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	// read idempotency key
	idempoKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if len(idempoKey) > 128 {
		fail(c, http.StatusBadRequest, 10003, "idempotency key too long")
		return
	}

	var idempoKeyPtr *string
	if idempoKey != "" {
		idempoKeyPtr = &idempoKey
	}
	ctx := c.Request.Context()
	log := h.log().With("user_id", uid, "session_id", req.SessionID)

	// Insert user message immediately; a repeated key returns the stored one.
	if _, _, err := h.ChatSvc.InsertUserMessageOrGetExisting(ctx, uid, req.SessionID, req.Message, idempoKeyPtr); err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			fail(c, http.StatusNotFound, 40401, "session not found")
			return
		}
		log.Error("insert user message failed", "error", err)
		fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	jobID, err := chat.NewJobID()
	if err != nil {
		log.Error("new job id failed", "error", err)
		fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	// Create job row (idempotent if key is provided)
	j := &chat.Job{
		ID:             jobID,
		UserID:         uid,
		SessionID:      req.SessionID,
		Prompt:         req.Message,
		IdempotencyKey: idempoKeyPtr,
		Status:         chat.JobQueued,
	}
	if vc := req.videoContext(); vc != nil {
		j.VideoID = vc.VideoID
		j.Timestamp = &vc.Timestamp
	}

	job, created, err := h.ChatSvc.CreateJobOrGetExisting(ctx, j)
	if err != nil {
		log.Error("create job failed", "job_id", jobID, "key", idempoKey, "error", err)
		fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	j = job

	// Enqueue only when a new job was created
	if created {
		if h.Rabbit == nil {
			go h.runJobInline(context.WithoutCancel(ctx), j.ID)
		} else if err := h.Rabbit.PublishJob(ctx, j.ID); err != nil {
			log.Error("publish job failed", "job_id", j.ID, "error", err)
			fail(c, http.StatusInternalServerError, 50002, "enqueue failed")
			return
		}
	}

	ok(c, gin.H{"job_id": j.ID})
}

func (h *Handler) runJobInline(ctx context.Context, jobID string) {
	if _, err := h.ChatSvc.RunJob(ctx, jobID); err != nil {
		h.log().Error("inline job failed", "job_id", jobID, "error", err)
	}
}

func (h *Handler) GetChatJob(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	jobID := c.Param("job_id")
	if jobID == "" {
		fail(c, http.StatusBadRequest, 10002, "job_id required")
		return
	}

	j, err := h.ChatSvc.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			fail(c, http.StatusNotFound, 40402, "job not found")
			return
		}
		fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	if j.UserID != uid {
		// hide existence
		fail(c, http.StatusNotFound, 40402, "job not found")
		return
	}

	ok(c, gin.H{
		"job": gin.H{
			"id":                j.ID,
			"session_id":        j.SessionID,
			"status":            j.Status,
			"result_message_id": j.ResultMessageID,
			"error":             j.Error,
			"created_at":        j.CreatedAt,
			"updated_at":        j.UpdatedAt,
		},
	})
}
