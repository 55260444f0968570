package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/challengeplans/server/content"
	mw "github.com/challengeplans/server/middleware"
)

// ContentHandler handles note and study plan REST endpoints.
type ContentHandler struct {
	content *content.Service
}

// NewContentHandler creates a ContentHandler.
func NewContentHandler(svc *content.Service) *ContentHandler {
	return &ContentHandler{content: svc}
}

type noteRequest struct {
	Title   string `json:"title" binding:"required,min=1,max=128"`
	Content string `json:"content" binding:"max=65536"`
}

// CreateNote handles POST /api/notes.
func (h *ContentHandler) CreateNote(c *gin.Context) {
	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	note, err := h.content.CreateNote(c.Request.Context(), mw.GetUserID(c), req.Title, req.Content)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, note)
}

// PublishNote handles POST /api/notes/:id/publish.
func (h *ContentHandler) PublishNote(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.content.PublishNote(c.Request.Context(), mw.GetUserID(c), id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "published"})
}

type rateRequest struct {
	Score int `json:"score" binding:"required,min=1,max=5"`
}

// RateNote handles POST /api/notes/:id/rating.
func (h *ContentHandler) RateNote(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req rateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.content.RateNote(c.Request.Context(), mw.GetUserID(c), id, req.Score); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "rated"})
}

// ListNotes handles GET /api/notes?limit=20&offset=0.
func (h *ContentHandler) ListNotes(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	out, err := h.content.ListPublicNotes(c.Request.Context(), limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notes": out})
}

type planRequest struct {
	Title       string `json:"title" binding:"required,min=1,max=128"`
	Description string `json:"description" binding:"max=65536"`
}

// CreatePlan handles POST /api/plans.
func (h *ContentHandler) CreatePlan(c *gin.Context) {
	var req planRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	plan, err := h.content.CreatePlan(c.Request.Context(), mw.GetUserID(c), req.Title, req.Description)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, plan)
}

// PublishPlan handles POST /api/plans/:id/publish.
func (h *ContentHandler) PublishPlan(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.content.PublishPlan(c.Request.Context(), mw.GetUserID(c), id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "published"})
}

// ListPlans handles GET /api/plans?limit=20&offset=0.
func (h *ContentHandler) ListPlans(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	out, err := h.content.ListPublicPlans(c.Request.Context(), limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plans": out})
}
