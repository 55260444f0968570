package rest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/challengeplans/server/challenge"
	mw "github.com/challengeplans/server/middleware"
	"github.com/challengeplans/server/progress"
)

// ChallengeHandler handles challenge and participation REST endpoints.
type ChallengeHandler struct {
	challenges *challenge.Service
	progress   *progress.Service
}

// NewChallengeHandler creates a ChallengeHandler.
func NewChallengeHandler(ch *challenge.Service, p *progress.Service) *ChallengeHandler {
	return &ChallengeHandler{challenges: ch, progress: p}
}

type createChallengeRequest struct {
	Title       string    `json:"title" binding:"required,min=1,max=128"`
	Description string    `json:"description" binding:"max=4096"`
	Public      bool      `json:"public"`
	StartDate   time.Time `json:"start_date" binding:"required"`
	EndDate     time.Time `json:"end_date" binding:"required"`
	Difficulty  string    `json:"difficulty"`
}

// Create handles POST /api/challenges.
func (h *ChallengeHandler) Create(c *gin.Context) {
	var req createChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ch, err := h.challenges.Create(c.Request.Context(), mw.GetUserID(c), challenge.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Public:      req.Public,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Difficulty:  req.Difficulty,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, ch)
}

// Activate handles POST /api/challenges/:id/activate.
func (h *ChallengeHandler) Activate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ch, err := h.challenges.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	if ch.CreatorID != mw.GetUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not the creator"})
		return
	}
	if err := h.challenges.Activate(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "activated"})
}

// List handles GET /api/challenges?limit=20&offset=0.
func (h *ChallengeHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	out, err := h.challenges.ListPublic(c.Request.Context(), limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"challenges": out})
}

// ListMine handles GET /api/challenges/mine.
func (h *ChallengeHandler) ListMine(c *gin.Context) {
	out, err := h.challenges.ListByCreator(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"challenges": out})
}

// Get handles GET /api/challenges/:id.
func (h *ChallengeHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ch, err := h.challenges.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	tasks, err := h.challenges.ListTasks(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"challenge": ch, "tasks": tasks})
}

// Join handles POST /api/challenges/:id/join.
func (h *ChallengeHandler) Join(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.progress.Join(c.Request.Context(), mw.GetUserID(c), id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "joined"})
}

// Leave handles POST /api/challenges/:id/leave.
func (h *ChallengeHandler) Leave(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.progress.Leave(c.Request.Context(), mw.GetUserID(c), id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "left"})
}

// pathID parses an int64 path parameter, responding 400 on garbage.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
