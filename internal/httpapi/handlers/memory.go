package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/learning-buddy/internal/memory"
)

type createEntityReq struct {
	Name         string   `json:"name" binding:"required"`
	EntityType   string   `json:"entity_type"`
	Observations []string `json:"observations"`
}

func (h *Handler) CreateEntity(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	var req createEntityReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	e, err := h.Memory.CreateEntity(c.Request.Context(), uid, req.Name, req.EntityType, req.Observations)
	if err != nil {
		h.memoryError(c, err)
		return
	}
	ok(c, gin.H{"entity": e})
}

type addObservationsReq struct {
	Name         string   `json:"name" binding:"required"`
	Observations []string `json:"observations" binding:"required"`
}

func (h *Handler) AddObservations(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	var req addObservationsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	e, err := h.Memory.AddObservations(c.Request.Context(), uid, req.Name, req.Observations)
	if err != nil {
		h.memoryError(c, err)
		return
	}
	ok(c, gin.H{"entity": e})
}

func (h *Handler) ListEntities(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	ents, err := h.Memory.GetEntities(c.Request.Context(), uid, c.Query("type"), c.Query("q"))
	if err != nil {
		h.memoryError(c, err)
		return
	}
	ok(c, gin.H{"entities": ents})
}

type createRelationReq struct {
	From         string   `json:"from" binding:"required"`
	To           string   `json:"to" binding:"required"`
	RelationType string   `json:"relation_type" binding:"required"`
	Strength     *float64 `json:"strength"`
}

func (h *Handler) CreateRelation(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	var req createRelationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	strength := memory.DefaultConfidence
	if req.Strength != nil {
		strength = *req.Strength
	}
	rel, err := h.Memory.CreateRelation(c.Request.Context(), uid, req.From, req.To, req.RelationType, strength)
	if err != nil {
		h.memoryError(c, err)
		return
	}
	ok(c, gin.H{"relation": rel})
}

func (h *Handler) ListRelations(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	rels, err := h.Memory.GetRelations(c.Request.Context(), uid, c.Query("name"))
	if err != nil {
		h.memoryError(c, err)
		return
	}
	ok(c, gin.H{"relations": rels})
}

func (h *Handler) MemoryContext(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	res := h.Memory.Assembler().Build(c.Request.Context(), uid, c.Query("topic"))
	ok(c, gin.H{"context": res.Text, "degraded": res.Degraded})
}

func (h *Handler) memoryError(c *gin.Context, err error) {
	if errors.Is(err, memory.ErrEmptyName) || errors.Is(err, memory.ErrEmptyRelationType) {
		fail(c, http.StatusBadRequest, 10004, err.Error())
		return
	}
	h.log().Error("memory store failed", "path", c.FullPath(), "error", err)
	fail(c, http.StatusInternalServerError, 50003, "memory store error")
}
